package analysis

import (
	"go/token"
	"go/types"

	"golang.org/x/tools/go/packages"

	"github.com/715d/callaudit/pkg/universe"
)

// FuncInfo is what the source tells us about a declared function beyond its
// body: comment directives and assembly involvement.
type FuncInfo struct {
	// Object is the *types.Func of the declaration.
	Object types.Object

	// Ref is the universe reference of the function.
	Ref universe.MethodRef

	// DeclarationPos is the position of the function name.
	DeclarationPos token.Pos

	// Package is the package declaring the function.
	Package *packages.Package

	// IsSuppressed is set by a nolint or lint:ignore comment.
	IsSuppressed   bool
	SuppressReason string

	// IsHotPath is set by a callaudit:hotpath directive.
	IsHotPath bool

	// HasAssemblyImplementation is set when a TEXT symbol in the package's
	// assembly files provides the body.
	HasAssemblyImplementation bool

	// CalledFromAssembly is set when an assembly body CALLs the function.
	CalledFromAssembly bool
}

// NewFuncInfo creates the metadata record of fn.
func NewFuncInfo(fn *types.Func, pkg *packages.Package, names *NameCache) *FuncInfo {
	if fn == nil {
		return &FuncInfo{Package: pkg}
	}
	return &FuncInfo{
		Object:         fn,
		Ref:            names.MethodRef(fn),
		DeclarationPos: fn.Pos(),
		Package:        pkg,
	}
}

// Name returns "Type.Method" or "pkg.Func" for logs.
func (fi *FuncInfo) Name() string {
	return fi.Ref.PrettyName()
}
