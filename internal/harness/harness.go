package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/callaudit/pkg/audit"
	"github.com/715d/callaudit/pkg/callaudit"
	"github.com/715d/callaudit/pkg/calltree"
	"github.com/715d/callaudit/pkg/descriptor"
	"github.com/715d/callaudit/pkg/issue"
)

// TestHarness manages test execution.
type TestHarness struct {
	// rules are the code rules every configuration is audited with.
	rules []descriptor.Descriptor

	// root is the root directory for test data
	root string
}

// NewHarness creates a new test harness auditing with the builtin "go" rules.
func NewHarness(t *testing.T, root string) *TestHarness {
	t.Helper()
	rules, err := descriptor.Builtin("go")
	require.NoError(t, err)
	return &TestHarness{rules: rules, root: root}
}

// Run executes a test case with all its build configurations.
func (h *TestHarness) Run(t *testing.T, tc *TestCase) *TestResult {
	t.Helper()
	require.NotEmpty(t, tc.BuildConfigurations, "test case has no build configurations")

	var results []ConfigurationResult
	var allSuccess = true

	for _, cfg := range tc.BuildConfigurations {
		cfgResult := h.runConfiguration(t, tc, cfg)
		results = append(results, *cfgResult)
		if !cfgResult.Success {
			allSuccess = false
		}
	}

	var resultMsg string
	if allSuccess {
		resultMsg = fmt.Sprintf("All %d configurations passed", len(tc.BuildConfigurations))
	} else {
		failedCount := 0
		var msgs []string
		for _, cr := range results {
			if !cr.Success {
				failedCount++
				msgs = append(msgs, fmt.Sprintf("[%s] %s:\n  %s",
					cr.Configuration.Name, cr.Message, strings.Join(cr.Details, "\n  ")))
			}
		}
		resultMsg = fmt.Sprintf("%d/%d configurations failed:\n%s",
			failedCount, len(tc.BuildConfigurations), strings.Join(msgs, "\n"))
	}

	return &TestResult{
		TestCase:             tc,
		ConfigurationResults: results,
		Success:              allSuccess,
		Message:              resultMsg,
	}
}

// runConfiguration loads, lowers and audits the module for one build
// configuration.
func (h *TestHarness) runConfiguration(t *testing.T, tc *TestCase, cfg BuildConfiguration) *ConfigurationResult {
	t.Helper()
	issues, err := h.audit(t, tc, cfg)
	if err != nil {
		for _, expectedErr := range cfg.ExpectedErrors {
			if strings.Contains(err.Error(), expectedErr) {
				return &ConfigurationResult{
					Configuration: cfg,
					Success:       true,
					Message:       fmt.Sprintf("Got expected error: %v", err),
				}
			}
		}
		require.NoError(t, err)
	}
	return h.validateConfigurationResults(cfg, issues)
}

func (h *TestHarness) audit(t *testing.T, tc *TestCase, cfg BuildConfiguration) ([]*issue.Issue, error) {
	t.Helper()
	pkgs, err := LoadPackages(t, &LoaderConfig{
		Dir:       filepath.Join(h.root, tc.Dir),
		BuildTags: cfg.BuildTags,
		EnableCGo: cfg.EnableCGo,
		GOOS:      cfg.GOOS,
		GOARCH:    cfg.GOARCH,
		Tests:     cfg.Tests,
	})
	if err != nil {
		return nil, err
	}

	modules, err := callaudit.NewAnalyzer(callaudit.AnalyzerOptions{
		SkipGenerated: cfg.SkipGenerated,
		Linter:        cfg.Linter,
	}).Analyze(t.Context(), pkgs)
	if err != nil {
		return nil, err
	}

	hotPaths, err := calltree.ParseHotPaths(append(append([]string(nil), calltree.DefaultHotPaths...), cfg.HotPaths...))
	if err != nil {
		return nil, err
	}
	code, err := audit.NewCodeModule(h.rules, audit.CodeModuleOptions{HotPaths: hotPaths})
	if err != nil {
		return nil, err
	}

	var issues []*issue.Issue
	res, err := code.Audit(context.WithoutCancel(t.Context()), audit.Input{Universe: modules}, func(i *issue.Issue) {
		issues = append(issues, i)
	})
	if err != nil {
		return nil, err
	}
	if res.DecodeErrors > 0 {
		return nil, fmt.Errorf("%d methods could not be decoded", res.DecodeErrors)
	}
	return issues, nil
}

// validateConfigurationResults compares actual results with expected for a specific build configuration
func (h *TestHarness) validateConfigurationResults(cfg BuildConfiguration, issues []*issue.Issue) *ConfigurationResult {
	cfgResult := ConfigurationResult{
		Configuration: cfg,
		Issues:        issues,
	}

	if err := validateExpectedIssues(cfg.ExpectedIssues); err != nil {
		cfgResult.Success = false
		cfgResult.Message = fmt.Sprintf("Invalid expected.yaml: %v", err)
		cfgResult.Details = []string{err.Error()}
		return &cfgResult
	}

	actual := make([]FoundIssue, 0, len(issues))
	for _, i := range issues {
		actual = append(actual, FoundIssue{
			ID:       i.DescriptorID(),
			Caller:   i.CallingMethod(),
			Hot:      i.IsHot(),
			File:     i.Filename(),
			Line:     i.Line(),
			Severity: i.Severity.String(),
		})
	}

	validateResults(&cfgResult, cfg.ExpectedIssues, actual)
	return &cfgResult
}

// ConfigurationResult represents the result of running a single build configuration.
type ConfigurationResult struct {
	// Configuration is the build configuration that was run.
	Configuration BuildConfiguration

	// Issues is the raw result of the audit.
	Issues []*issue.Issue

	// Success indicates if this configuration passed.
	Success bool

	// Message provides a summary of the result for this configuration.
	Message string

	// Details provides detailed information about failures for this configuration.
	Details []string
}

// TestResult represents the result of running a test case.
type TestResult struct {
	// TestCase is the test case that was run.
	TestCase *TestCase

	// ConfigurationResults contains results for each build configuration.
	ConfigurationResults []ConfigurationResult

	// Success indicates if the test passed (all configurations passed)
	Success bool

	// Skipped indicates if the test was skipped.
	Skipped bool

	// Message provides a summary of the result.
	Message string
}

// FoundIssue is the comparable form of an audit finding.
type FoundIssue struct {
	ID       string
	Caller   string
	Hot      bool
	File     string
	Line     int
	Severity string
}

func (f FoundIssue) String() string {
	s := fmt.Sprintf("%s in %s at %s:%d (%s)", f.ID, f.Caller, f.File, f.Line, f.Severity)
	if f.Hot {
		s += " hot"
	}
	return s
}

func (e ExpectedIssue) matches(f FoundIssue) bool {
	return e.ID == f.ID && e.Caller == f.Caller && e.Hot == f.Hot &&
		(e.File == "" || e.File == f.File) &&
		(e.Line == 0 || e.Line == f.Line) &&
		(e.Severity == "" || e.Severity == f.Severity)
}

func (e ExpectedIssue) String() string {
	s := e.ID + " in " + e.Caller
	if e.File != "" {
		s += fmt.Sprintf(" at %s:%d", e.File, e.Line)
	}
	if e.Hot {
		s += " hot"
	}
	return s
}

// validateExpectedIssues validates that expected issues have required fields
func validateExpectedIssues(expected []ExpectedIssue) error {
	for i, exp := range expected {
		if strings.TrimSpace(exp.ID) == "" {
			return fmt.Errorf("expected issue at index %d has empty or missing 'id' field", i)
		}
		if strings.TrimSpace(exp.Caller) == "" {
			return fmt.Errorf("expected issue at index %d has empty or missing 'caller' field", i)
		}
		if exp.Count < 0 {
			return fmt.Errorf("expected issue at index %d has negative count", i)
		}
	}
	return nil
}

// validateResults pairs every expected issue with as many matching findings
// as its count. Unpaired expectations are missing; unpaired findings are
// unexpected.
func validateResults(cfgResult *ConfigurationResult, expected []ExpectedIssue, actual []FoundIssue) {
	used := make([]bool, len(actual))

	var missing []string
	for _, exp := range expected {
		want := max(exp.Count, 1)
		got := 0
		for i, a := range actual {
			if got == want {
				break
			}
			if !used[i] && exp.matches(a) {
				used[i] = true
				got++
			}
		}
		if got < want {
			missing = append(missing, fmt.Sprintf("%s (found %d of %d)", exp, got, want))
		}
	}

	var unexpected []string
	for i, a := range actual {
		if !used[i] {
			unexpected = append(unexpected, a.String())
		}
	}

	sort.Strings(missing)
	sort.Strings(unexpected)

	var details []string
	for _, m := range missing {
		details = append(details, "Should have been reported: "+m)
	}
	for _, u := range unexpected {
		details = append(details, "Should not have been reported: "+u)
	}

	success := len(missing) == 0 && len(unexpected) == 0
	var message string
	if success {
		message = fmt.Sprintf("All %d expected issues found", len(actual))
	} else {
		message = fmt.Sprintf("Test failed: %d missing, %d unexpected", len(missing), len(unexpected))
	}

	cfgResult.Success = success
	cfgResult.Message = message
	cfgResult.Details = details
}
