package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/715d/callaudit/pkg/audit"
	"github.com/715d/callaudit/pkg/baseline"
	"github.com/715d/callaudit/pkg/callaudit"
	"github.com/715d/callaudit/pkg/calltree"
	"github.com/715d/callaudit/pkg/descriptor"
	"github.com/715d/callaudit/pkg/issue"
	"github.com/715d/callaudit/pkg/universe"
)

func runCommand(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		cfg.Packages = args
	} else {
		cfg.Packages = []string{"./..."}
	}

	fc, dir, err := loadFileConfig(cfg.ConfigFile, cfg.Root)
	if err != nil {
		return errWithCode(err, exitError)
	}
	fc.merge(&cfg, cmd.Flags(), dir)

	failOn, err := descriptor.ParseSeverity(cfg.FailOn)
	if err != nil {
		return errWithCode(fmt.Errorf("--fail-on: %w", err), exitError)
	}

	slog.Info("starting call audit", "packages", cfg.Packages, "root", cfg.Root)

	result, err := runAudit(cmd.Context(), &cfg, fc)
	if err != nil {
		return errWithCode(fmt.Errorf("audit: %w", err), exitError)
	}

	if cfg.Fix {
		applyFixes(cmd.Context(), result)
	}

	if cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsFile, prometheus.DefaultGatherer); err != nil {
			return errWithCode(fmt.Errorf("writing metrics: %w", err), exitError)
		}
	}

	if err := writeResults(cmd.OutOrStdout(), result, &cfg); err != nil {
		return errWithCode(fmt.Errorf("format results: %w", err), exitError)
	}

	if result.Failing(failOn) > 0 {
		return errWithCode(nil, exitIssuesFound)
	}
	return nil
}

// Result is the outcome of one run.
type Result struct {
	Report  *issue.Report
	Modules map[string]audit.Result
	// Diff is set when the run was compared with a baseline.
	Diff             *baseline.Diff
	BaselineRunID    string
	AnalysisDuration time.Duration
}

// Failing counts the issues at or above min. With a baseline only added
// issues count.
func (r *Result) Failing(min descriptor.Severity) int {
	issues := r.Report.All()
	if r.Diff != nil {
		issues = r.Diff.Added
	}
	n := 0
	for _, i := range issues {
		if i.Severity >= min {
			n++
		}
	}
	return n
}

func runAudit(ctx context.Context, cfg *Config, fc *FileConfig) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	categories := make([]issue.Category, 0, len(cfg.Categories))
	for _, name := range cfg.Categories {
		c, err := issue.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("--categories: %w", err)
		}
		categories = append(categories, c)
	}

	auditor, err := newAuditor(cfg, fc)
	if err != nil {
		return nil, err
	}

	var modules []*universe.Module
	if wantsCode(categories) {
		modules, err = loadUniverse(ctx, cfg, fc)
		if err != nil {
			return nil, err
		}
	}

	params := audit.AuditParams{
		Input: audit.Input{
			Universe:   modules,
			Root:       cfg.Root,
			Assemblies: cfg.Assemblies,
		},
		Categories: categories,
		OnModuleCompleted: func(module string, res audit.Result) {
			slog.Info("module completed", "module", module, "status", res.Status,
				"units", res.Methods, "issues", res.Issues, "decode_errors", res.DecodeErrors)
		},
	}
	if !cfg.JSON && !cfg.Verbose && isTerminal(os.Stderr) {
		progress := newTerminalProgress(os.Stderr)
		params.NewProgress = progress.ForModule
	}

	out, err := auditor.Audit(ctx, params)
	if err != nil {
		return nil, err
	}
	result := &Result{Report: out.Report, Modules: out.Modules}

	if cfg.Baseline {
		if err := compareBaseline(ctx, cfg, result); err != nil {
			return nil, err
		}
	}

	result.AnalysisDuration = time.Since(start)
	slog.Info("audit completed", "dur", result.AnalysisDuration, "issues", out.Report.Len(), "authoritative", out.Report.Authoritative())
	return result, nil
}

func wantsCode(categories []issue.Category) bool {
	if len(categories) == 0 {
		return true
	}
	for _, c := range categories {
		if c == issue.CategoryCode {
			return true
		}
	}
	return false
}

// newAuditor builds the code, settings and assets modules.
func newAuditor(cfg *Config, fc *FileConfig) (*audit.Auditor, error) {
	rules, err := loadRules(fc)
	if err != nil {
		return nil, err
	}
	hotPaths, err := calltree.ParseHotPaths(append(append([]string(nil), calltree.DefaultHotPaths...), cfg.HotPaths...))
	if err != nil {
		return nil, err
	}

	code, err := audit.NewCodeModule(rules, audit.CodeModuleOptions{
		HotPaths: hotPaths,
		MaxDepth: cfg.MaxDepth,
	})
	if err != nil {
		return nil, err
	}
	settings, err := audit.NewSettingsModule(audit.DefaultSettingsAnalyzers()...)
	if err != nil {
		return nil, err
	}
	assets, err := audit.NewAssetsModule(audit.AssetsModuleOptions{
		LargeFileThreshold: fc.Assets.LargeFileThreshold,
		SkipDirs:           fc.Assets.SkipDirs,
	})
	if err != nil {
		return nil, err
	}
	return audit.NewAuditor(code, settings, assets)
}

// loadRules returns the built-in rule sets named in the config, "go" by
// default, followed by the rule files.
func loadRules(fc *FileConfig) ([]descriptor.Descriptor, error) {
	sets := fc.Builtin
	if len(sets) == 0 {
		sets = []string{"go"}
	}
	var rules []descriptor.Descriptor
	for _, name := range sets {
		ds, err := descriptor.Builtin(name)
		if err != nil {
			return nil, err
		}
		rules = append(rules, ds...)
	}
	for _, path := range fc.Rules {
		ds, err := descriptor.LoadFile(path)
		if err != nil {
			return nil, err
		}
		rules = append(rules, ds...)
	}
	slog.Debug("loaded rules", "sets", sets, "files", fc.Rules, "descriptors", len(rules))
	return rules, nil
}

// loadUniverse reads the universe dumps given with --module, or loads and
// lowers the Go packages.
func loadUniverse(ctx context.Context, cfg *Config, fc *FileConfig) ([]*universe.Module, error) {
	if len(cfg.Modules) > 0 {
		var modules []*universe.Module
		for _, path := range cfg.Modules {
			f, err := os.Open(path)
			if err != nil {
				return nil, fmt.Errorf("opening universe dump: %w", err)
			}
			mods, err := universe.ReadModules(f)
			_ = f.Close()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			modules = append(modules, mods...)
		}
		return modules, nil
	}

	slog.Info("loading packages", "packages", cfg.Packages)
	if len(cfg.BuildTags) > 0 {
		slog.Info("using build tags", "tags", cfg.BuildTags)
	}
	pkgs, err := callaudit.LoadPackages(ctx, callaudit.LoaderOptions{
		Packages:  cfg.Packages,
		BuildTags: cfg.BuildTags,
		Dir:       cfg.Root,
		Tests:     cfg.Tests,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("loaded packages", "num", len(pkgs))

	analyzer := callaudit.NewAnalyzer(callaudit.AnalyzerOptions{
		SkipGenerated: cfg.SkipGenerated,
		IncludeDeps:   cfg.IncludeDeps,
		Linter:        fc.Linter,
	})
	return analyzer.Analyze(ctx, pkgs)
}

// applyFixes runs the fixer of every issue that has one. Failures are logged
// and the issue stays in the report.
func applyFixes(ctx context.Context, result *Result) int {
	fixed := 0
	for _, i := range result.Report.All() {
		if i.Descriptor == nil || i.Descriptor.Fixer == nil {
			continue
		}
		if err := i.Fix(ctx); err != nil {
			slog.Warn("fix failed", "issue", i.DescriptorID(), "location", i.Location.String(), "error", err)
			continue
		}
		slog.Info("fixed", "issue", i.DescriptorID(), "location", i.Location.String())
		fixed++
	}
	return fixed
}

// compareBaseline diffs the report with the saved baseline and saves the
// report as the new baseline when it is authoritative.
func compareBaseline(ctx context.Context, cfg *Config, result *Result) error {
	dir := cfg.BaselineDir
	if dir == "" {
		dir = baseline.DefaultDir(cfg.Root)
	}
	store, err := baseline.Open(dir)
	if err != nil {
		return err
	}
	defer store.Close()

	prev, meta, err := store.Load(ctx, cfg.Root)
	switch {
	case errors.Is(err, baseline.ErrNoBaseline):
		slog.Info("no baseline yet", "dir", dir)
	case err != nil:
		return err
	default:
		result.BaselineRunID = meta.RunID
	}
	diff := baseline.Compare(prev, result.Report)
	result.Diff = &diff

	if !result.Report.Authoritative() {
		slog.Warn("run incomplete, baseline not updated")
		return nil
	}
	_, err = store.Save(ctx, cfg.Root, result.Report)
	return err
}
