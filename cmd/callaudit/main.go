// Package main implements the CLI driver for the callaudit analyzer.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config holds all command-line configuration options for the audit.
type Config struct {
	Packages      []string // the Go packages to analyze
	Root          string   // project directory inspected by the settings and assets modules
	ConfigFile    string   // callaudit.yaml; empty looks in Root
	Verbose       bool     // enables detailed output and statistics
	JSON          bool     // enables JSON output format
	BuildTags     []string // build tags to use during package loading
	Profile       bool     // enables CPU and memory profiling
	Trace         bool     // writes OpenTelemetry spans to stderr
	SkipGenerated bool     // suppress functions in files with generated code markers
	Tests         bool     // audit _test.go files too
	IncludeDeps   bool     // audit non-std dependencies as well as the main module
	MaxDepth      int      // call tree depth
	HotPaths      []string // extra Type::Method hot path patterns
	Assemblies    []string // restrict the code scan to these modules
	Modules       []string // universe dumps scanned instead of loading packages
	Categories    []string // categories to run; empty runs all
	Baseline      bool     // compare with and update the saved baseline
	BaselineDir   string   // baseline store; empty uses <root>/.callaudit/baseline
	MetricsFile   string   // Prometheus text file written after the run
	FailOn        string   // lowest severity that fails the run
	Fix           bool     // apply the fixers of fixable issues
}

const (
	exitIssuesFound = 1
	exitError       = 2
)

var (
	// Set via ldflags during build.
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var cfg Config

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		_ = teardown(nil, nil)
		if err.Error() != "" {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		var cErr codedError
		if errors.As(err, &cErr) {
			os.Exit(cErr.code)
		}
		os.Exit(exitError)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "callaudit [packages...]",
		Short: "Find calls to expensive or problematic APIs in Go code",
		Long: `callaudit scans the compiled form of Go packages for calls matching a
library of rules (reflection, regexp compilation, fmt formatting, ...).

Every finding carries a call tree of the functions leading to the call. Calls
reachable from a hot path (a //callaudit:hotpath function or a configured
Type::Method pattern) are escalated one severity level.

It also checks go.mod settings and large non-code files under the project root.`,
		Example: `  callaudit ./...                      # Audit all packages
  callaudit --json ./... > report.json # JSON output to file
  callaudit --baseline ./...           # Report only what changed since the last run
  callaudit --categories Code ./...    # Only the code module
  callaudit --module universe.json     # Audit a precompiled universe dump`,
		Args:               cobra.ArbitraryArgs,
		RunE:               runCommand,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
		SilenceUsage:       true,
		SilenceErrors:      true,
		Version:            version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("callaudit version %s\n  commit: %s\n  built:  %s\n", version, gitCommit, buildTime))

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose output")
	pf.BoolVar(&cfg.JSON, "json", false, "Output in JSON format")
	pf.StringVar(&cfg.ConfigFile, "config", "", "Configuration file (default <root>/callaudit.yaml when present)")
	pf.StringSliceVar(&cfg.BuildTags, "build-tags", []string{}, "Build tags to use during package loading")
	pf.BoolVar(&cfg.Profile, "profile", false, "Enable CPU and memory profiling (writes cpu.prof and mem.prof to current directory)")
	pf.BoolVar(&cfg.Trace, "trace", false, "Write OpenTelemetry spans to stderr")

	f := rootCmd.Flags()
	f.StringVar(&cfg.Root, "root", ".", "Project directory for the settings and assets checks")
	f.BoolVar(&cfg.SkipGenerated, "skip-generated", true, "Skip functions in files with generated code markers (e.g., '// Code generated')")
	f.BoolVar(&cfg.Tests, "tests", false, "Also audit _test.go files")
	f.BoolVar(&cfg.IncludeDeps, "include-deps", false, "Audit non-standard-library dependencies too")
	f.IntVar(&cfg.MaxDepth, "max-depth", 0, "Maximum call tree depth (default 8)")
	f.StringSliceVar(&cfg.HotPaths, "hot-path", nil, "Additional hot path pattern, Type::Method with * wildcards")
	f.StringSliceVar(&cfg.Assemblies, "assembly", nil, "Restrict the code scan to these packages")
	f.StringSliceVar(&cfg.Modules, "module", nil, "Scan a universe dump instead of loading packages")
	f.StringSliceVar(&cfg.Categories, "categories", nil, "Categories to analyze (Code, ProjectSetting, Asset)")
	f.BoolVar(&cfg.Baseline, "baseline", false, "Compare with the previous run and save this one")
	f.StringVar(&cfg.BaselineDir, "baseline-dir", "", "Baseline store directory (default <root>/.callaudit/baseline)")
	f.StringVar(&cfg.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this file")
	f.StringVar(&cfg.FailOn, "fail-on", "info", "Lowest severity that makes the run fail (info, minor, moderate, major, critical)")
	f.BoolVar(&cfg.Fix, "fix", false, "Apply the automatic fix of fixable issues (e.g. a missing toolchain directive)")

	rootCmd.AddCommand(newRulesCmd(), newDumpCmd())
	return rootCmd
}

var (
	cpuProfile     *os.File
	tracerProvider *sdktrace.TracerProvider
)

func setup(_ *cobra.Command, _ []string) error {
	// Disable logger unless verbose flag is set.
	slog.SetDefault(slog.New(slog.DiscardHandler))
	if cfg.Verbose {
		opts := &slog.HandlerOptions{Level: slog.LevelDebug}
		var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
		if cfg.JSON {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		}
		slog.SetDefault(slog.New(handler))
	}

	if cfg.Trace {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("creating trace exporter: %w", err)
		}
		tracerProvider = sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		otel.SetTracerProvider(tracerProvider)
	}

	if !cfg.Profile {
		return nil
	}

	var err error
	cpuProfile, err = os.Create("cpu.prof")
	if err != nil {
		return fmt.Errorf("creating cpu.prof: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuProfile); err != nil {
		_ = cpuProfile.Close()
		return fmt.Errorf("starting CPU profile: %w", err)
	}
	slog.Info("cpu profiling started", "file", "cpu.prof")
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			slog.Warn("flushing spans", "error", err)
		}
		tracerProvider = nil
	}

	if !cfg.Profile || cpuProfile == nil {
		return nil
	}

	pprof.StopCPUProfile()
	defer cpuProfile.Close()
	cpuProfile = nil
	slog.Info("cpu profiling stopped", "file", "cpu.prof")

	memFile, err := os.Create("mem.prof")
	if err != nil {
		return fmt.Errorf("creating mem.prof: %w", err)
	}
	defer memFile.Close()
	runtime.GC() // Get up-to-date statistics
	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("writing memory profile: %w", err)
	}
	slog.Info("memory profiling completed", "file", "mem.prof")
	return nil
}

func errWithCode(err error, code int) error {
	return codedError{err: err, code: code}
}

type codedError struct {
	err  error
	code int
}

func (e codedError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e codedError) Unwrap() error { return e.err }
