package audit

import (
	"context"
	"fmt"

	"github.com/715d/callaudit/pkg/callsite"
	"github.com/715d/callaudit/pkg/calltree"
	"github.com/715d/callaudit/pkg/descriptor"
	"github.com/715d/callaudit/pkg/issue"
	"github.com/715d/callaudit/pkg/universe"
)

// Input is what a module audits.
type Input struct {
	// Universe holds the compiled modules scanned by the code module.
	Universe []*universe.Module
	// Root is the project directory inspected by the settings and asset
	// modules.
	Root string
	// Assemblies restricts the code scan by module name. Empty scans all.
	Assemblies []string
	Progress   Progress
}

// Module is one independent audit pass. Each module owns its descriptors
// and writes a single category.
type Module interface {
	Name() string
	Category() issue.Category
	Registry() *descriptor.Registry
	Audit(ctx context.Context, in Input, emit func(*issue.Issue)) (Result, error)
}

// CodeModuleOptions configures the code module.
type CodeModuleOptions struct {
	HotPaths  *calltree.HotPaths
	MaxDepth  int
	Formatter callsite.Formatter
}

// CodeModule reports calls to problematic APIs.
type CodeModule struct {
	registry *descriptor.Registry
	opts     CodeModuleOptions
}

// NewCodeModule builds a code module over ds.
func NewCodeModule(ds []descriptor.Descriptor, opts CodeModuleOptions) (*CodeModule, error) {
	reg := descriptor.NewRegistry()
	if err := reg.RegisterAll(ds); err != nil {
		return nil, fmt.Errorf("code module: %w", err)
	}
	return &CodeModule{registry: reg, opts: opts}, nil
}

func (m *CodeModule) Name() string                   { return "code" }
func (m *CodeModule) Category() issue.Category       { return issue.CategoryCode }
func (m *CodeModule) Registry() *descriptor.Registry { return m.registry }

func (m *CodeModule) Audit(ctx context.Context, in Input, emit func(*issue.Issue)) (Result, error) {
	w, err := NewWalker(WalkerOptions{
		Registry:   m.registry,
		HotPaths:   m.opts.HotPaths,
		MaxDepth:   m.opts.MaxDepth,
		Formatter:  m.opts.Formatter,
		Assemblies: in.Assemblies,
		Category:   issue.CategoryCode,
		Progress:   in.Progress,
	})
	if err != nil {
		return Result{}, err
	}
	return w.Scan(ctx, in.Universe, emit)
}
