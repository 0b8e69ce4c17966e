package calltree

import (
	"github.com/715d/callaudit/pkg/universe"
)

// Site is a call instruction inside a method body.
type Site struct {
	Caller *universe.Method
	Offset int
}

// Location returns the source location of the call, or nil.
func (s Site) Location() *universe.Location {
	return s.Caller.LocationAt(s.Offset)
}

// CallerIndex maps each callee to the sites that call it. Each caller is
// recorded once per callee, at its first call site, in insertion order.
type CallerIndex struct {
	sites map[string][]Site
	seen  map[siteKey]struct{}
}

type siteKey struct {
	callee string
	caller *universe.Method
}

// NewCallerIndex creates an empty index.
func NewCallerIndex() *CallerIndex {
	return &CallerIndex{
		sites: make(map[string][]Site),
		seen:  make(map[siteKey]struct{}),
	}
}

// Add records that site calls callee.
func (x *CallerIndex) Add(callee universe.MethodRef, site Site) {
	key := callee.FullName()
	sk := siteKey{callee: key, caller: site.Caller}
	if _, dup := x.seen[sk]; dup {
		return
	}
	x.seen[sk] = struct{}{}
	x.sites[key] = append(x.sites[key], site)
}

// Callers returns the call sites of callee.
func (x *CallerIndex) Callers(callee universe.MethodRef) []Site {
	if x == nil {
		return nil
	}
	return x.sites[callee.FullName()]
}

// Len returns the number of distinct callees.
func (x *CallerIndex) Len() int {
	if x == nil {
		return 0
	}
	return len(x.sites)
}
