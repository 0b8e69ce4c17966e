package ssa

import (
	"log/slog"
	"sync"

	"golang.org/x/tools/go/packages"
)

var getStdLibSet = sync.OnceValue(func() map[string]struct{} {
	pkgs, _ := packages.Load(&packages.Config{Mode: packages.NeedName}, "std")
	m := make(map[string]struct{}, len(pkgs)+1)
	for _, p := range pkgs {
		m[p.PkgPath] = struct{}{}
	}
	m["unsafe"] = struct{}{} // not in `go list std`
	slog.Debug("loaded std lib packages", "num", len(m))
	return m
})

// isTargetPackage tells whether p is lowered into a module. The standard
// library never is: its functions are the callees rules point at.
func isTargetPackage(p *packages.Package, includeDeps bool) bool {
	if _, ok := getStdLibSet()[p.PkgPath]; ok {
		return false
	}
	if includeDeps {
		return true
	}
	if p.Module != nil {
		return p.Module.Main
	}
	// GOPATH fallback: anything outside stdlib is assumed to be user code.
	return true
}
