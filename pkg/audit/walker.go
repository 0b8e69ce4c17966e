// Package audit scans the symbol universe for rule violations and runs the
// code, settings and asset modules that feed a report.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/715d/callaudit/pkg/callsite"
	"github.com/715d/callaudit/pkg/calltree"
	"github.com/715d/callaudit/pkg/descriptor"
	"github.com/715d/callaudit/pkg/il"
	"github.com/715d/callaudit/pkg/issue"
	"github.com/715d/callaudit/pkg/universe"
)

// Status tells whether a scan ran to completion.
type Status int

const (
	StatusCompleted Status = iota
	// StatusCancelled results hold only part of the issues and must not be
	// treated as authoritative.
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result summarizes one scan.
type Result struct {
	Status Status
	// Methods counts the units scanned: method bodies for the code module,
	// checks for settings and files for assets.
	Methods      int
	Issues       int
	DecodeErrors int
}

// Progress receives scan progress. Advance is called once per method.
type Progress interface {
	Start(total int, description string)
	Advance()
	Clear()
}

type nopProgress struct{}

func (nopProgress) Start(int, string) {}
func (nopProgress) Advance()          {}
func (nopProgress) Clear()            {}

// WalkerOptions configures a Walker.
type WalkerOptions struct {
	Registry *descriptor.Registry
	HotPaths *calltree.HotPaths
	// MaxDepth bounds call trees; zero uses calltree.DefaultMaxDepth.
	MaxDepth int
	// Formatter describes wildcard matches; nil uses callsite.DefaultFormatter.
	Formatter callsite.Formatter
	// Assemblies restricts the scanned modules by name. Empty scans all.
	// Unselected modules still contribute callers to call trees.
	Assemblies []string
	// Category of emitted issues. Defaults to issue.CategoryCode.
	Category issue.Category
	Progress Progress
}

// Walker scans method bodies for calls matching the registry.
type Walker struct {
	opts    WalkerOptions
	matcher *callsite.Matcher
}

// NewWalker creates a walker.
func NewWalker(opts WalkerOptions) (*Walker, error) {
	if opts.Registry == nil {
		return nil, errors.New("walker requires a descriptor registry")
	}
	if opts.Progress == nil {
		opts.Progress = nopProgress{}
	}
	return &Walker{
		opts:    opts,
		matcher: callsite.NewMatcher(opts.Registry, opts.Formatter),
	}, nil
}

// call is a resolved call site.
type call struct {
	inst   il.Instruction
	callee universe.MethodRef
}

type scanTarget struct {
	module *universe.Module
	method *universe.Method
	calls  []call
}

// Scan walks every method with a body in the selected modules and calls emit
// for each issue, in method order. Cancellation is checked between methods,
// both while indexing callers and while matching; a cancelled scan returns StatusCancelled with the issues of the methods
// completed so far and a nil error.
func (w *Walker) Scan(ctx context.Context, modules []*universe.Module, emit func(*issue.Issue)) (Result, error) {
	var res Result
	start := time.Now()
	defer func() {
		scanDuration.Observe(time.Since(start).Seconds())
	}()

	// Pass 1: decode bodies and index callers.
	callers := calltree.NewCallerIndex()
	var targets []scanTarget
	for _, mod := range modules {
		selected := w.selected(mod.Name)
		for _, m := range mod.Methods {
			if err := ctx.Err(); err != nil {
				res.Status = StatusCancelled
				slog.Debug("scan cancelled while indexing callers", "assembly", mod.Name)
				return res, nil
			}
			if !m.HasBody() {
				continue
			}
			calls, err := resolveCalls(mod, m)
			if err != nil {
				if selected {
					res.DecodeErrors++
					decodeErrors.Inc()
					slog.Warn("skipping method with unreadable body",
						"method", m.Ref.FullName(), "assembly", mod.Name, "error", err)
				}
				continue
			}
			for _, c := range calls {
				callers.Add(c.callee, calltree.Site{Caller: m, Offset: c.inst.Offset})
			}
			if selected {
				targets = append(targets, scanTarget{module: mod, method: m, calls: calls})
			}
		}
	}

	builder := &calltree.Builder{
		Callers:  callers,
		HotPaths: w.opts.HotPaths,
		Types:    universe.NewHierarchy(modules),
		MaxDepth: w.opts.MaxDepth,
	}

	// Pass 2: match call sites.
	progress := w.opts.Progress
	progress.Start(len(targets), "Analyzing methods")
	defer progress.Clear()

	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			res.Status = StatusCancelled
			slog.Debug("scan cancelled", "methods", res.Methods, "remaining", len(targets)-res.Methods)
			return res, nil
		}
		res.Methods++
		methodsScanned.Inc()
		if !t.method.Suppressed {
			res.Issues += w.scanMethod(t, builder, emit)
		}
		progress.Advance()
	}

	res.Status = StatusCompleted
	return res, nil
}

func (w *Walker) scanMethod(t scanTarget, builder *calltree.Builder, emit func(*issue.Issue)) int {
	found := 0
	for _, c := range t.calls {
		match, ok := w.matcher.Match(c.inst, c.callee)
		if !ok {
			continue
		}
		tree := builder.Build(c.callee, calltree.Site{Caller: t.method, Offset: c.inst.Offset})
		severity := match.Descriptor.Severity
		if tree.Hot {
			severity = severity.Escalate()
		}
		emit(&issue.Issue{
			Descriptor:  match.Descriptor,
			Description: match.Description,
			Category:    w.opts.Category,
			Location:    t.method.LocationAt(c.inst.Offset),
			Assembly:    t.module.Name,
			Severity:    severity,
			CallTree:    tree,
		})
		issuesFound.WithLabelValues(w.opts.Category.String()).Inc()
		found++
	}
	return found
}

func (w *Walker) selected(assembly string) bool {
	return len(w.opts.Assemblies) == 0 || slices.Contains(w.opts.Assemblies, assembly)
}

// resolveCalls decodes the body of m and resolves the callee of every call
// site. Malformed bodies and dangling tokens fail the whole method.
func resolveCalls(mod *universe.Module, m *universe.Method) ([]call, error) {
	insts, err := il.Decode(m.Body)
	if err != nil {
		return nil, err
	}
	var calls []call
	for _, inst := range insts {
		if !inst.IsCallSite() {
			continue
		}
		callee, err := mod.ResolveMethod(inst.Token)
		if err != nil {
			return nil, &il.DecodeError{Offset: inst.Offset, Err: err}
		}
		calls = append(calls, call{inst: inst, callee: callee})
	}
	return calls, nil
}
