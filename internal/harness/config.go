// Package harness runs the audit against the test modules under testdata and
// compares the findings with each module's expected.yaml.
package harness

// TestCase represents a single test scenario.
type TestCase struct {
	// Dir is the directory containing the test module.
	Dir string `yaml:"-"`

	// BuildConfigurations defines the configurations the module is audited with.
	BuildConfigurations []BuildConfiguration `yaml:"build_configurations"`
}

// BuildConfiguration represents a single build and audit configuration.
type BuildConfiguration struct {
	// Name is a descriptive name for this configuration.
	Name string `yaml:"name"`

	// BuildTags are the build tags to use when loading packages.
	BuildTags []string `yaml:"build_tags"`

	// EnableCGo indicates whether CGo should be enabled.
	EnableCGo bool `yaml:"enable_cgo"`

	// GOOS sets the target operating system.
	GOOS string `yaml:"goos,omitempty"`

	// GOARCH sets the target architecture.
	GOARCH string `yaml:"goarch,omitempty"`

	// Tests also loads the _test.go files.
	Tests bool `yaml:"tests"`

	// SkipGenerated suppresses functions in generated files.
	SkipGenerated bool `yaml:"skip_generated"`

	// Linter overrides the name matched by suppression comments.
	Linter string `yaml:"linter,omitempty"`

	// HotPaths are Type::Method patterns added to the default hot paths.
	HotPaths []string `yaml:"hot_paths"`

	// ExpectedIssues lists the findings expected for this configuration.
	ExpectedIssues []ExpectedIssue `yaml:"expected_issues"`

	// ExpectedErrors lists any expected error messages for this configuration.
	ExpectedErrors []string `yaml:"expected_errors"`
}

// ExpectedIssue describes one or more identical findings. File, Line and
// Severity are only compared when set.
type ExpectedIssue struct {
	ID       string `yaml:"id"`
	Caller   string `yaml:"caller"`
	Hot      bool   `yaml:"hot"`
	File     string `yaml:"file,omitempty"`
	Line     int    `yaml:"line,omitempty"`
	Severity string `yaml:"severity,omitempty"`
	// Count defaults to 1.
	Count int `yaml:"count,omitempty"`
}
