// Package ssa lowers Go SSA form into the instruction universe scanned by the
// audit engine.
package ssa

import (
	"errors"
	"fmt"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// buildMode builds generic functions once, with instances as thin wrappers,
// so each generic body is lowered a single time.
const buildMode = ssa.BareInits

// Program is a built SSA program and the packages to lower.
type Program struct {
	Prog *ssa.Program
	// Targets are the packages of the main module, in load order.
	Targets []*ssa.Package
}

// Build constructs the SSA program for pkgs. Only main module packages
// become targets; dependencies are kept so calls into them resolve to
// declared functions. With includeDeps every non-std package is a target.
func Build(pkgs []*packages.Package, includeDeps bool) (*Program, error) {
	valid := make([]*packages.Package, 0, len(pkgs))
	for _, pkg := range pkgs {
		if pkg != nil {
			valid = append(valid, pkg)
		}
	}
	if len(valid) == 0 {
		return nil, errors.New("no valid packages provided")
	}

	prog, ssaPkgs := ssautil.AllPackages(valid, buildMode)
	if prog == nil {
		return nil, errors.New("SSA program construction failed")
	}
	prog.Build()

	p := &Program{Prog: prog}
	seen := make(map[*ssa.Package]bool)
	for i, pkg := range valid {
		sp := ssaPkgs[i]
		if sp == nil {
			return nil, fmt.Errorf("package %s has type errors", pkg.PkgPath)
		}
		if seen[sp] || !isTargetPackage(pkg, includeDeps) {
			continue
		}
		seen[sp] = true
		p.Targets = append(p.Targets, sp)
	}
	return p, nil
}
