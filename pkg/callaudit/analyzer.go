package callaudit

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"log/slog"
	"maps"
	goruntime "runtime"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/packages"

	"github.com/715d/callaudit/internal/analysis"
	"github.com/715d/callaudit/pkg/assembly"
	"github.com/715d/callaudit/pkg/directive"
	"github.com/715d/callaudit/pkg/ssa"
	"github.com/715d/callaudit/pkg/suppress"
	"github.com/715d/callaudit/pkg/universe"
)

// AnalyzerOptions holds configuration options for the analyzer.
type AnalyzerOptions struct {
	// SkipGenerated suppresses functions declared in generated files.
	SkipGenerated bool
	// IncludeDeps lowers non-std dependencies as well as the main module.
	IncludeDeps bool
	// Linter is the name matched by nolint and lint:ignore comments.
	// Empty uses suppress.Linter.
	Linter string
}

// Analyzer turns loaded packages into universe modules.
type Analyzer struct {
	nameCache *analysis.NameCache
	opts      AnalyzerOptions
}

// NewAnalyzer creates a new analyzer with the given options.
func NewAnalyzer(opts AnalyzerOptions) *Analyzer {
	return &Analyzer{
		nameCache: analysis.NewNameCache(),
		opts:      opts,
	}
}

// Analyze reads the source metadata of pkgs (suppressions, directives and
// assembly), builds SSA and lowers the target packages to one module each.
func (a *Analyzer) Analyze(ctx context.Context, pkgs []*packages.Package) ([]*universe.Module, error) {
	if len(pkgs) == 0 {
		return nil, errors.New("no packages provided")
	}

	suppressions, err := a.loadSuppressions(pkgs)
	if err != nil {
		return nil, fmt.Errorf("failed to load suppressions: %w", err)
	}

	assemblyInfo := a.scanAssemblyFiles(pkgs)
	funcs := a.collectFunctions(pkgs, assemblyInfo)
	a.checkSuppressions(funcs, suppressions)

	prog, err := ssa.Build(pkgs, a.opts.IncludeDeps)
	if err != nil {
		return nil, fmt.Errorf("build SSA: %w", err)
	}

	lowerer := ssa.NewLowerer(prog.Prog, ssa.Options{
		Funcs:    funcs,
		Assembly: assemblyInfo,
		Names:    a.nameCache,
	})
	modules, err := lowerer.Lower(ctx, prog.Targets)
	if err != nil {
		return nil, fmt.Errorf("lowering packages: %w", err)
	}
	asmFuncs := 0
	for _, info := range funcs {
		if info.HasAssemblyImplementation || info.CalledFromAssembly {
			asmFuncs++
		}
	}
	slog.Debug("analyzed packages", "packages", len(pkgs), "modules", len(modules),
		"functions", len(funcs), "assembly_functions", asmFuncs)
	return modules, nil
}

func (a *Analyzer) collectFunctions(pkgs []*packages.Package, assemblyInfo map[string]*assembly.Info) map[types.Object]*analysis.FuncInfo {
	// Each goroutine writes only its own index.
	results := make([]map[types.Object]*analysis.FuncInfo, len(pkgs))

	var wg errgroup.Group
	wg.SetLimit(goruntime.NumCPU())
	var total int64

	for idx, pkg := range pkgs {
		if pkg == nil || pkg.Types == nil {
			continue
		}
		wg.Go(func() error {
			result := make(map[types.Object]*analysis.FuncInfo)
			decls, generated := buildFuncDeclMap(pkg.Fset, pkg.Syntax)
			asm := assemblyInfo[pkg.PkgPath]

			record := func(fn *types.Func) {
				if fn.Name() == "" || isCGoGeneratedFunction(fn.Name()) {
					return
				}
				info := analysis.NewFuncInfo(fn, pkg, a.nameCache)
				if decl, ok := decls[fn.Pos()]; ok {
					a.applyDirectives(info, decl)
					if a.opts.SkipGenerated && generated[decl] {
						info.IsSuppressed = true
						info.SuppressReason = "generated"
					}
				}
				if asm != nil && fn.Signature().Recv() == nil {
					_, info.HasAssemblyImplementation = asm.ImplementedFunctions[fn.Name()]
					_, info.CalledFromAssembly = asm.CalledFunctions[fn.Name()]
				}
				result[fn] = info
			}

			scope := pkg.Types.Scope()
			for _, name := range scope.Names() {
				switch obj := scope.Lookup(name).(type) {
				case *types.Func:
					record(obj)
				case *types.TypeName:
					named, ok := obj.Type().(*types.Named)
					if !ok || types.IsInterface(named) {
						continue
					}
					for i := range named.NumMethods() {
						record(named.Method(i))
					}
				}
			}

			// init functions are not in the scope.
			for pos, decl := range decls {
				if pkg.TypesInfo != nil && decl.Recv == nil && decl.Name.Name == "init" {
					if fn, ok := pkg.TypesInfo.Defs[decl.Name].(*types.Func); ok && fn.Pos() == pos {
						record(fn)
					}
				}
			}

			results[idx] = result
			atomic.AddInt64(&total, int64(len(result)))
			return nil
		})
	}

	_ = wg.Wait()

	finalFuncs := make(map[types.Object]*analysis.FuncInfo, total)
	for _, pkgFuncs := range results {
		maps.Copy(finalFuncs, pkgFuncs)
	}
	return finalFuncs
}

// applyDirectives sets the flags of the callaudit directives on decl.
// Unknown directives are reported and ignored.
func (a *Analyzer) applyDirectives(info *analysis.FuncInfo, decl *ast.FuncDecl) {
	for _, d := range directive.Find(decl) {
		switch d.Type {
		case directive.TypeHotPath:
			info.IsHotPath = true
		case directive.TypeUnknown:
			slog.Warn("unknown directive", "function", info.Name(), "directive", directive.Prefix+d.Name)
		}
	}
}

// loadSuppressions loads suppression comments from all files in the given packages.
func (a *Analyzer) loadSuppressions(pkgs []*packages.Package) (*suppress.Checker, error) {
	checker := suppress.NewChecker(a.opts.Linter)

	var allFiles []*ast.File
	var fset *token.FileSet
	for _, pkg := range pkgs {
		if pkg == nil {
			continue
		}
		if pkg.Fset != nil {
			fset = pkg.Fset
		}
		for _, file := range pkg.Syntax {
			if file != nil {
				allFiles = append(allFiles, file)
			}
		}
	}

	if fset != nil && len(allFiles) > 0 {
		if err := checker.Load(fset, allFiles); err != nil {
			return nil, err
		}
	}
	return checker, nil
}

// checkSuppressions marks the functions carrying a suppression comment.
func (a *Analyzer) checkSuppressions(funcs map[types.Object]*analysis.FuncInfo, checker *suppress.Checker) {
	for _, info := range funcs {
		if ok, reason := checker.IsSuppressed(info.DeclarationPos); ok {
			info.IsSuppressed = true
			info.SuppressReason = reason
		}
	}
}

// buildFuncDeclMap indexes the function declarations of files by the
// position of their name, which is what types.Func.Pos reports. The second
// map holds the declarations found in generated files.
func buildFuncDeclMap(fset *token.FileSet, files []*ast.File) (map[token.Pos]*ast.FuncDecl, map[*ast.FuncDecl]bool) {
	decls := make(map[token.Pos]*ast.FuncDecl)
	generated := make(map[*ast.FuncDecl]bool)
	for _, file := range files {
		if file == nil {
			continue
		}
		gen := isGeneratedFile(fset, file)
		for _, decl := range file.Decls {
			if fn, ok := decl.(*ast.FuncDecl); ok && fn.Name != nil {
				decls[fn.Name.Pos()] = fn
				if gen {
					generated[fn] = true
				}
			}
		}
	}
	return decls, generated
}

// isGeneratedFile checks if a file contains generated code markers.
func isGeneratedFile(fset *token.FileSet, file *ast.File) bool {
	if file == nil || fset == nil {
		return false
	}
	if ast.IsGenerated(file) {
		return true
	}
	for _, commentGroup := range file.Comments {
		for _, comment := range commentGroup.List {
			text := comment.Text
			if strings.Contains(text, "Code generated") ||
				strings.Contains(text, "DO NOT EDIT") ||
				strings.Contains(text, "autogenerated") ||
				strings.Contains(text, "AUTO-GENERATED") {
				return true
			}
		}
	}
	return false
}

// scanAssemblyFiles scans all packages for assembly files and returns assembly information
func (a *Analyzer) scanAssemblyFiles(pkgs []*packages.Package) map[string]*assembly.Info {
	result := make(map[string]*assembly.Info)
	for _, pkg := range pkgs {
		if pkg == nil {
			continue
		}
		info, err := assembly.ScanPackage(pkg)
		if err != nil {
			// Assembly is supplementary; the Go declarations are still audited.
			slog.Warn("scanning assembly files", "package", pkg.PkgPath, "error", err)
			continue
		}
		if len(info.Funcs) > 0 {
			result[pkg.PkgPath] = info
		}
	}
	return result
}

// isCGoGeneratedFunction checks if a function name indicates it's generated by CGo
func isCGoGeneratedFunction(name string) bool {
	return strings.HasPrefix(name, "_Cgo_") || strings.HasPrefix(name, "_cgo_")
}
