package audit

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/715d/callaudit/pkg/issue"
)

const tracerName = "github.com/715d/callaudit/pkg/audit"

// batchSize is the number of issues buffered per module before they are
// added to the report and passed to OnIncomingIssues.
const batchSize = 64

// AuditParams configures one audit run.
type AuditParams struct {
	Input Input
	// Categories selects the modules to run by category. Empty runs all.
	Categories []issue.Category
	// ExistingReport is updated in place: the categories being re-run are
	// cleared first and the others are kept.
	ExistingReport *issue.Report
	// OnIncomingIssues receives issues in batches as modules produce them.
	OnIncomingIssues func([]*issue.Issue)
	// OnModuleCompleted is called once per module.
	OnModuleCompleted func(module string, res Result)
	// OnCompleted is called with the final report.
	OnCompleted func(*issue.Report)
	// NewProgress, if set, creates the progress sink of each module. It
	// overrides Input.Progress, which would otherwise be shared.
	NewProgress func(module string) Progress
}

// Outcome summarizes an audit run.
type Outcome struct {
	Report  *issue.Report
	Modules map[string]Result
}

// Cancelled reports whether any module was cancelled.
func (o Outcome) Cancelled() bool {
	for _, r := range o.Modules {
		if r.Status == StatusCancelled {
			return true
		}
	}
	return false
}

// Auditor runs modules concurrently into one report.
type Auditor struct {
	modules []Module
}

// NewAuditor creates an auditor over modules. Modules must write distinct
// categories.
func NewAuditor(modules ...Module) (*Auditor, error) {
	seen := make(map[issue.Category]string, len(modules))
	for _, m := range modules {
		if prev, ok := seen[m.Category()]; ok {
			return nil, fmt.Errorf("modules %s and %s both write category %s", prev, m.Name(), m.Category())
		}
		seen[m.Category()] = m.Name()
	}
	return &Auditor{modules: modules}, nil
}

// Modules returns the registered modules.
func (a *Auditor) Modules() []Module {
	return slices.Clone(a.modules)
}

// Audit runs the selected modules, one goroutine each. A module error cancels
// the others and is returned. A cancelled module marks the report as not
// authoritative.
func (a *Auditor) Audit(ctx context.Context, params AuditParams) (Outcome, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "audit.Auditor.Audit",
		trace.WithAttributes(attribute.Int("modules", len(a.modules))),
	)
	defer span.End()

	report := params.ExistingReport
	if report == nil {
		report = issue.NewReport()
	}
	out := Outcome{Report: report, Modules: make(map[string]Result)}

	var (
		mu        sync.Mutex
		callbacks sync.Mutex
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range a.modules {
		if len(params.Categories) > 0 && !slices.Contains(params.Categories, m.Category()) {
			continue
		}
		report.ClearCategory(m.Category())
		report.Touch(m.Category())

		g.Go(func() error {
			flush := func(batch []*issue.Issue) {
				if len(batch) == 0 {
					return
				}
				report.AddBatch(batch)
				if params.OnIncomingIssues != nil {
					callbacks.Lock()
					params.OnIncomingIssues(batch)
					callbacks.Unlock()
				}
			}

			in := params.Input
			if params.NewProgress != nil {
				in.Progress = params.NewProgress(m.Name())
			}
			res, err := a.runModule(gctx, m, in, flush)

			mu.Lock()
			out.Modules[m.Name()] = res
			mu.Unlock()
			if err != nil {
				moduleRuns.WithLabelValues(m.Name(), "failed").Inc()
				report.MarkIncomplete(m.Category())
				return fmt.Errorf("%s module: %w", m.Name(), err)
			}
			moduleRuns.WithLabelValues(m.Name(), res.Status.String()).Inc()
			if res.Status == StatusCancelled {
				report.MarkIncomplete(m.Category())
			}
			if params.OnModuleCompleted != nil {
				callbacks.Lock()
				params.OnModuleCompleted(m.Name(), res)
				callbacks.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}

	span.SetAttributes(attribute.Int("issues", report.Len()), attribute.Bool("cancelled", out.Cancelled()))
	if params.OnCompleted != nil {
		params.OnCompleted(report)
	}
	return out, nil
}

func (a *Auditor) runModule(ctx context.Context, m Module, in Input, flush func([]*issue.Issue)) (Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "audit.Module."+m.Name(),
		trace.WithAttributes(attribute.String("category", m.Category().String())),
	)
	defer span.End()

	start := time.Now()
	batch := make([]*issue.Issue, 0, batchSize)
	res, err := m.Audit(ctx, in, func(i *issue.Issue) {
		batch = append(batch, i)
		if len(batch) == batchSize {
			flush(batch)
			batch = make([]*issue.Issue, 0, batchSize)
		}
	})
	flush(batch)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(
		attribute.Int("issues", res.Issues),
		attribute.Int("scanned", res.Methods),
		attribute.String("status", res.Status.String()),
	)
	slog.Debug("module completed",
		"module", m.Name(),
		"status", res.Status,
		"issues", res.Issues,
		"scanned", res.Methods,
		"decode_errors", res.DecodeErrors,
		"duration", time.Since(start))
	return res, nil
}
