// Package callsite matches decoded call instructions against the descriptor
// registry.
package callsite

import (
	"github.com/715d/callaudit/pkg/descriptor"
	"github.com/715d/callaudit/pkg/il"
	"github.com/715d/callaudit/pkg/universe"
)

// Formatter describes a callee matched by a wildcard rule.
type Formatter func(callee universe.MethodRef) string

// DefaultFormatter names the callee member: "'UnityEngine.Camera.allCameras' usage".
func DefaultFormatter(callee universe.MethodRef) string {
	return descriptor.UsageTitle(callee.DeclaringType.FullName() + "." + descriptor.NormalizeMember(callee.Name))
}

// Result is a successful match.
type Result struct {
	Descriptor  *descriptor.Descriptor
	Description string
	// Wildcard is set when the match came from a namespace rule.
	Wildcard bool
}

// Matcher resolves call sites to rules.
type Matcher struct {
	registry *descriptor.Registry
	format   Formatter
}

// NewMatcher creates a matcher over registry. A nil format uses
// DefaultFormatter.
func NewMatcher(registry *descriptor.Registry, format Formatter) *Matcher {
	if format == nil {
		format = DefaultFormatter
	}
	return &Matcher{registry: registry, format: format}
}

// Match reports the rule matching a call to callee made by inst. Instructions
// that are not call sites never match.
func (m *Matcher) Match(inst il.Instruction, callee universe.MethodRef) (Result, bool) {
	if !inst.IsCallSite() {
		return Result{}, false
	}
	return m.MatchCallee(callee)
}

// MatchCallee looks callee up without an instruction: exact rules first, then
// namespace wildcards.
func (m *Matcher) MatchCallee(callee universe.MethodRef) (Result, bool) {
	member := descriptor.NormalizeMember(callee.Name)
	if d, ok := m.registry.LookupExact(callee.DeclaringType.FullName(), member); ok {
		return Result{Descriptor: d, Description: d.Title}, true
	}
	if d, ok := m.registry.LookupNamespace(callee.DeclaringType.Namespace); ok {
		return Result{Descriptor: d, Description: m.format(callee), Wildcard: true}, true
	}
	return Result{}, false
}
