package calltree

import (
	"fmt"
	"strings"

	"github.com/715d/callaudit/pkg/descriptor"
	"github.com/715d/callaudit/pkg/universe"
)

// DefaultHotPaths are per-frame and per-request entry points of common
// runtimes.
var DefaultHotPaths = []string{
	"UnityEngine.MonoBehaviour::Update",
	"UnityEngine.MonoBehaviour::LateUpdate",
	"UnityEngine.MonoBehaviour::FixedUpdate",
	"UnityEngine.MonoBehaviour::OnGUI",
	"UnityEngine.MonoBehaviour::OnRenderObject",
	"*::ServeHTTP",
}

// HotPaths matches methods against "Type::Method" patterns. Both halves may
// contain '*' wildcards; the type half is matched against the declaring type
// and each of its base types.
type HotPaths struct {
	patterns []hotPattern
}

type hotPattern struct {
	typ    string
	method string
}

// ParseHotPaths compiles patterns.
func ParseHotPaths(patterns []string) (*HotPaths, error) {
	h := &HotPaths{patterns: make([]hotPattern, 0, len(patterns))}
	for _, p := range patterns {
		typ, method, ok := strings.Cut(strings.TrimSpace(p), "::")
		if !ok || typ == "" || method == "" {
			return nil, fmt.Errorf("invalid hot path %q: want Type::Method", p)
		}
		h.patterns = append(h.patterns, hotPattern{typ: typ, method: method})
	}
	return h, nil
}

// MustParseHotPaths is ParseHotPaths for static patterns.
func MustParseHotPaths(patterns ...string) *HotPaths {
	h, err := ParseHotPaths(patterns)
	if err != nil {
		panic(err)
	}
	return h
}

// Len returns the number of patterns.
func (h *HotPaths) Len() int {
	if h == nil {
		return 0
	}
	return len(h.patterns)
}

// Match reports whether ref is a hot entry point. bases lists the base types
// of ref's declaring type.
func (h *HotPaths) Match(ref universe.MethodRef, bases []string) bool {
	if h == nil {
		return false
	}
	name := descriptor.NormalizeMember(ref.Name)
	typ := ref.DeclaringType.FullName()
	for _, p := range h.patterns {
		if !glob(p.method, name) && !glob(p.method, ref.Name) {
			continue
		}
		if glob(p.typ, typ) {
			return true
		}
		for _, base := range bases {
			if glob(p.typ, base) {
				return true
			}
		}
	}
	return false
}

// glob matches s against pattern where '*' matches any run of characters.
func glob(pattern, s string) bool {
	star := strings.IndexByte(pattern, '*')
	if star < 0 {
		return pattern == s
	}
	if !strings.HasPrefix(s, pattern[:star]) {
		return false
	}
	rest, s := pattern[star+1:], s[star:]
	for i := 0; i <= len(s); i++ {
		if glob(rest, s[i:]) {
			return true
		}
	}
	return false
}
