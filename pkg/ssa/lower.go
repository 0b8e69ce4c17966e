package ssa

import (
	"cmp"
	"context"
	"go/token"
	"go/types"
	"log/slog"
	goruntime "runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/ssa"

	"github.com/715d/callaudit/internal/analysis"
	"github.com/715d/callaudit/pkg/assembly"
	"github.com/715d/callaudit/pkg/il"
	"github.com/715d/callaudit/pkg/universe"
)

// Options configures lowering.
type Options struct {
	// Funcs is the source metadata of declared functions, keyed by their
	// *types.Func. Anonymous functions inherit the entry of their enclosing
	// declaration.
	Funcs map[types.Object]*analysis.FuncInfo
	// Assembly holds the assembly scan of each package by import path.
	Assembly map[string]*assembly.Info
	// Names is shared with the collector of Funcs. Nil creates a new cache.
	Names *analysis.NameCache
}

// Lowerer turns SSA functions into universe methods. Static calls become
// call instructions, interface method invocations callvirt, closures ldftn
// and panics throw. Every call carries a sequence point for its line.
type Lowerer struct {
	prog   *ssa.Program
	opts   Options
	names  *analysis.NameCache
	byPath map[string]*ssa.Package
}

// NewLowerer creates a lowerer over a built program.
func NewLowerer(prog *ssa.Program, opts Options) *Lowerer {
	names := opts.Names
	if names == nil {
		names = analysis.NewNameCache()
	}
	byPath := make(map[string]*ssa.Package)
	for _, pkg := range prog.AllPackages() {
		byPath[pkg.Pkg.Path()] = pkg
	}
	return &Lowerer{prog: prog, opts: opts, names: names, byPath: byPath}
}

// Lower returns one module per package, named by import path, in the order
// of pkgs. Packages are lowered concurrently.
func (l *Lowerer) Lower(ctx context.Context, pkgs []*ssa.Package) ([]*universe.Module, error) {
	modules := make([]*universe.Module, len(pkgs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(goruntime.NumCPU())
	for i, pkg := range pkgs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			modules[i] = l.LowerPackage(pkg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return modules, nil
}

// LowerPackage lowers the functions and named types of pkg.
func (l *Lowerer) LowerPackage(pkg *ssa.Package) *universe.Module {
	path := pkg.Pkg.Path()
	mod := universe.NewModule(path)
	asm := l.opts.Assembly[path]

	for _, def := range l.typeDefs(pkg) {
		mod.AddType(def)
	}

	implemented := make(map[string]bool)
	if asm != nil {
		for _, f := range asm.Funcs {
			if f.Package == "" || f.Package == path {
				implemented[f.Name] = true
			}
		}
	}

	for _, fn := range l.packageFuncs(pkg) {
		// Body-less declarations implemented in assembly are added below
		// with the assembly body.
		if fn.Blocks == nil && fn.Parent() == nil && implemented[fn.Name()] {
			continue
		}
		mod.AddMethod(l.lowerFunc(mod, fn))
	}

	if asm != nil {
		for _, f := range asm.Funcs {
			if f.Package != "" && f.Package != path {
				continue
			}
			mod.AddMethod(l.lowerAssembly(mod, path, f))
		}
	}

	slog.Debug("lowered package", "package", path, "methods", len(mod.Methods), "member_refs", len(mod.MemberRefs))
	return mod
}

// packageFuncs returns the declared functions, methods, init functions and
// closures of pkg sorted by source position. Synthetic wrappers are skipped.
func (l *Lowerer) packageFuncs(pkg *ssa.Package) []*ssa.Function {
	var out []*ssa.Function
	seen := make(map[*ssa.Function]bool)
	var add func(fn *ssa.Function)
	add = func(fn *ssa.Function) {
		if fn == nil || seen[fn] {
			return
		}
		seen[fn] = true
		if fn.Synthetic != "" && fn.Name() != "init" {
			return
		}
		out = append(out, fn)
		for _, anon := range fn.AnonFuncs {
			add(anon)
		}
	}

	for _, member := range pkg.Members {
		switch m := member.(type) {
		case *ssa.Function:
			add(m)
		case *ssa.Type:
			named, ok := m.Type().(*types.Named)
			if !ok || types.IsInterface(named) {
				continue
			}
			for i := range named.NumMethods() {
				add(l.prog.FuncValue(named.Method(i)))
			}
		}
	}

	// Declared init functions are only reachable from the package
	// initializer.
	if init := pkg.Func("init"); init != nil {
		for _, b := range init.Blocks {
			for _, instr := range b.Instrs {
				call, ok := instr.(*ssa.Call)
				if !ok {
					continue
				}
				if callee := call.Call.StaticCallee(); callee != nil && callee.Pkg == pkg && strings.HasPrefix(callee.Name(), "init#") {
					add(callee)
				}
			}
		}
	}

	slices.SortFunc(out, func(a, b *ssa.Function) int {
		return cmp.Or(cmp.Compare(a.Pos(), b.Pos()), strings.Compare(a.Name(), b.Name()))
	})
	return out
}

// typeDefs returns the named non-interface types of pkg. A struct's first
// embedded field is recorded as its base type, which lets hot path rules
// written for the embedded type match the embedding one.
func (l *Lowerer) typeDefs(pkg *ssa.Package) []universe.TypeDef {
	var defs []universe.TypeDef
	for _, member := range pkg.Members {
		t, ok := member.(*ssa.Type)
		if !ok {
			continue
		}
		named, ok := t.Type().(*types.Named)
		if !ok || types.IsInterface(named) {
			continue
		}
		def := universe.TypeDef{Type: l.names.TypeRef(named)}
		if st, ok := named.Underlying().(*types.Struct); ok {
			for i := range st.NumFields() {
				if f := st.Field(i); f.Embedded() {
					def.Base = l.names.TypeRef(f.Type()).FullName()
					break
				}
			}
		}
		defs = append(defs, def)
	}
	slices.SortFunc(defs, func(a, b universe.TypeDef) int {
		return strings.Compare(a.Type.FullName(), b.Type.FullName())
	})
	return defs
}

func (l *Lowerer) lowerFunc(mod *universe.Module, fn *ssa.Function) *universe.Method {
	m := &universe.Method{Ref: l.funcRef(fn)}
	if info := l.funcInfo(fn); info != nil {
		m.Suppressed = info.IsSuppressed
		m.HotPath = info.IsHotPath && fn.Parent() == nil
	}
	if fn.Blocks == nil {
		m.Extern = true
		return m
	}

	var (
		asm   il.Assembler
		fset  = l.prog.Fset
		last  token.Position
		point = func(pos token.Pos) {
			if !pos.IsValid() || fset == nil {
				return
			}
			p := fset.Position(pos)
			if p.Line == last.Line && p.Filename == last.Filename {
				return
			}
			last = p
			m.SequencePoints = append(m.SequencePoints, universe.SequencePoint{Offset: asm.Offset(), File: p.Filename, Line: p.Line})
		}
	)

	point(fn.Pos())
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			switch instr := instr.(type) {
			case ssa.CallInstruction:
				common := instr.Common()
				switch {
				case common.IsInvoke():
					point(instr.Pos())
					asm.EmitCall(il.Callvirt, mod.AddMemberRef(l.names.MethodRef(common.Method)), false)
				case isPackageInit(common.StaticCallee()):
					// Initializers of imported packages are not calls into
					// their APIs.
				case common.StaticCallee() != nil:
					point(instr.Pos())
					asm.EmitCall(il.Call, mod.AddMemberRef(l.funcRef(common.StaticCallee())), false)
				}
				// Builtins and calls through func values have no callee
				// to match.
			case *ssa.MakeClosure:
				if closure, ok := instr.Fn.(*ssa.Function); ok {
					point(instr.Pos())
					asm.EmitToken(il.Ldftn, mod.AddMemberRef(l.funcRef(closure)))
				}
			case *ssa.Panic:
				point(instr.Pos())
				asm.Emit(il.Throw)
			case *ssa.Return:
				asm.Emit(il.Ret)
			}
		}
	}
	m.Body = asm.Bytes()
	return m
}

// lowerAssembly builds the body of an assembly function from its CALL and
// JMP lines. JMP becomes a tail call.
func (l *Lowerer) lowerAssembly(mod *universe.Module, pkgPath string, f *assembly.Func) *universe.Method {
	m := &universe.Method{Ref: l.symbolRef(pkgPath, f.Name)}
	if decl := l.declaredFunc(pkgPath, f.Name); decl != nil {
		if info := l.opts.Funcs[decl.Object()]; info != nil {
			m.Suppressed = info.IsSuppressed
			m.HotPath = info.IsHotPath
		}
	}

	var asm il.Assembler
	m.SequencePoints = append(m.SequencePoints, universe.SequencePoint{Offset: 0, File: f.File, Line: f.Line})
	for _, c := range f.Calls {
		m.SequencePoints = append(m.SequencePoints, universe.SequencePoint{Offset: asm.Offset(), File: f.File, Line: c.Line})
		target := c.Package
		if target == "" {
			target = pkgPath
		}
		asm.EmitCall(il.Call, mod.AddMemberRef(l.symbolRef(target, c.Name)), c.Tail)
	}
	asm.Emit(il.Ret)
	m.Body = asm.Bytes()
	return m
}

// symbolRef resolves an assembly symbol to the Go declaration when the
// package is part of the program, so callers link up with Go call sites.
func (l *Lowerer) symbolRef(pkgPath, name string) universe.MethodRef {
	if fn := l.declaredFunc(pkgPath, name); fn != nil {
		return l.funcRef(fn)
	}
	return universe.MethodRef{DeclaringType: universe.TypeRef{Namespace: pkgPath}, Name: name}
}

func (l *Lowerer) declaredFunc(pkgPath, name string) *ssa.Function {
	pkg := l.byPath[pkgPath]
	if pkg == nil {
		return nil
	}
	return pkg.Func(name)
}

// funcRef names fn in the universe. Generic instances name their origin.
// Closures and the package initializer have no types.Func; they are named
// by their SSA name ("Update$1") on the enclosing declaration's type.
func (l *Lowerer) funcRef(fn *ssa.Function) universe.MethodRef {
	if origin := fn.Origin(); origin != nil {
		fn = origin
	}
	// Declared init functions share the name "init"; they keep their SSA
	// names ("init#1") below.
	if obj, ok := fn.Object().(*types.Func); ok && fn.Parent() == nil && obj.Name() == fn.Name() {
		return l.names.MethodRef(obj)
	}

	ref := universe.MethodRef{Name: fn.Name()}
	top := fn
	for top.Parent() != nil {
		top = top.Parent()
	}
	if obj, ok := top.Object().(*types.Func); ok {
		ref.DeclaringType = l.names.MethodRef(obj).DeclaringType
	} else if fn.Pkg != nil {
		ref.DeclaringType = universe.TypeRef{Namespace: fn.Pkg.Pkg.Path()}
	}
	ref.ReturnType, ref.Params = l.names.Signature(fn.Signature)
	return ref
}

func isPackageInit(fn *ssa.Function) bool {
	return fn != nil && fn.Synthetic == "package initializer"
}

// funcInfo returns the metadata of fn's enclosing declaration.
func (l *Lowerer) funcInfo(fn *ssa.Function) *analysis.FuncInfo {
	if len(l.opts.Funcs) == 0 {
		return nil
	}
	for fn.Parent() != nil {
		fn = fn.Parent()
	}
	if origin := fn.Origin(); origin != nil {
		fn = origin
	}
	obj := fn.Object()
	if obj == nil {
		return nil
	}
	return l.opts.Funcs[obj]
}
