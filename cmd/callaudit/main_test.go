package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/715d/callaudit/pkg/baseline"
	"github.com/715d/callaudit/pkg/descriptor"
	"github.com/715d/callaudit/pkg/issue"
	"github.com/715d/callaudit/pkg/universe"
)

// gameProject copies the game test module to a temporary directory so runs
// can write the baseline and apply fixes.
func gameProject(t *testing.T) string {
	t.Helper()
	t.Setenv("GOWORK", "off")
	t.Setenv("GOFLAGS", "-mod=mod")
	dir := t.TempDir()
	require.NoError(t, os.CopyFS(dir, os.DirFS("../../pkg/callaudit/testdata/game")))
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfg = Config{}
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	cmd.SetContext(context.Background())
	err := cmd.Execute()
	return out.String(), err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var cErr codedError
	if errors.As(err, &cErr) {
		return cErr.code
	}
	return -1
}

func TestParseFileConfig(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    FileConfig
		wantErr string
	}{
		{name: "empty", input: ""},
		{
			name: "full",
			input: `builtin: [go]
rules: [extra.yaml]
hot_paths: ["*::ServeHTTP", "example.com/game.Player::Update"]
max_depth: 4
fail_on: major
linter: gocritic
assets:
  large_file_threshold: 4096
  skip_dirs: [dist]
`,
			want: FileConfig{
				Builtin:  []string{"go"},
				Rules:    []string{"extra.yaml"},
				HotPaths: []string{"*::ServeHTTP", "example.com/game.Player::Update"},
				MaxDepth: 4,
				FailOn:   "major",
				Linter:   "gocritic",
				Assets:   AssetsConfig{LargeFileThreshold: 4096, SkipDirs: []string{"dist"}},
			},
		},
		{name: "unknown field", input: "hotpaths: [a]\n", wantErr: "field hotpaths not found"},
		{name: "bad hot path", input: "hot_paths: [Update]\n", wantErr: "HotPaths"},
		{name: "bad severity", input: "fail_on: fatal\n", wantErr: "FailOn"},
		{name: "negative depth", input: "max_depth: -1\n", wantErr: "MaxDepth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc, err := parseFileConfig(strings.NewReader(tt.input))
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, *fc)
		})
	}
}

func TestLoadFileConfig(t *testing.T) {
	dir := t.TempDir()

	fc, cfgDir, err := loadFileConfig("", dir)
	require.NoError(t, err)
	assert.Equal(t, FileConfig{}, *fc)
	assert.Empty(t, cfgDir)

	_, _, err = loadFileConfig(filepath.Join(dir, "missing.yaml"), dir)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, defaultConfigName), []byte("max_depth: 3\n"), 0o644))
	fc, cfgDir, err = loadFileConfig("", dir)
	require.NoError(t, err)
	assert.Equal(t, 3, fc.MaxDepth)
	assert.Equal(t, dir, cfgDir)
}

func TestFileConfigMerge(t *testing.T) {
	fc := &FileConfig{
		Rules:    []string{"rules.yaml", "/abs/other.yaml"},
		HotPaths: []string{"*::Tick"},
		MaxDepth: 3,
		FailOn:   "major",
	}

	cmd := newRootCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"--fail-on", "critical", "--hot-path", "*::Draw"}))

	c := Config{FailOn: "critical", HotPaths: []string{"*::Draw"}}
	fc.merge(&c, cmd.Flags(), "/etc/callaudit")

	assert.Equal(t, 3, c.MaxDepth)
	assert.Equal(t, "critical", c.FailOn, "flag wins")
	assert.Equal(t, []string{"*::Tick", "*::Draw"}, c.HotPaths)
	assert.Equal(t, []string{filepath.Join("/etc/callaudit", "rules.yaml"), "/abs/other.yaml"}, fc.Rules)
}

func TestResultFailing(t *testing.T) {
	report := issue.NewReport()
	report.Add(&issue.Issue{Category: issue.CategoryCode, Severity: descriptor.SeverityMinor})
	report.Add(&issue.Issue{Category: issue.CategoryCode, Severity: descriptor.SeverityMajor})
	r := &Result{Report: report}

	assert.Equal(t, 2, r.Failing(descriptor.SeverityInfo))
	assert.Equal(t, 1, r.Failing(descriptor.SeverityModerate))
	assert.Equal(t, 0, r.Failing(descriptor.SeverityCritical))

	r.Diff = &baseline.Diff{Unchanged: report.All()}
	assert.Equal(t, 0, r.Failing(descriptor.SeverityInfo), "only added issues count")
}

func TestRunAudit(t *testing.T) {
	root := gameProject(t)
	c := &Config{Packages: []string{"./..."}, Root: root, SkipGenerated: true}

	result, err := runAudit(context.Background(), c, &FileConfig{})
	require.NoError(t, err)
	require.True(t, result.Report.Authoritative())

	byID := make(map[string]int)
	for _, i := range result.Report.All() {
		byID[i.DescriptorID()]++
	}
	assert.Equal(t, 1, byID["CAC0002"])
	assert.Equal(t, 1, byID["CAC0003"], "init only; Setup is suppressed and tables.go is generated")
	assert.Positive(t, byID["CAC0001"])
	assert.Equal(t, 1, byID["CAS0002"], "no toolchain directive")
	assert.Zero(t, byID["CAS0001"])

	for _, name := range []string{"code", "settings", "assets"} {
		require.Contains(t, result.Modules, name)
	}
	assert.Positive(t, result.Modules["code"].Methods)
}

func TestRunAudit_Categories(t *testing.T) {
	root := gameProject(t)
	c := &Config{Root: root, Categories: []string{"ProjectSetting"}}

	result, err := runAudit(context.Background(), c, &FileConfig{})
	require.NoError(t, err)
	for _, i := range result.Report.All() {
		assert.Equal(t, issue.CategoryProjectSetting, i.Category)
	}
	assert.NotContains(t, result.Modules, "code")

	c.Categories = []string{"Bogus"}
	_, err = runAudit(context.Background(), c, &FileConfig{})
	require.ErrorContains(t, err, "--categories")
}

func TestCommand_ExitCodes(t *testing.T) {
	root := gameProject(t)

	out, err := execute(t, "--root", root)
	assert.Equal(t, exitIssuesFound, exitCode(err))
	assert.Contains(t, out, "CAC0002")
	assert.Contains(t, out, "(hot, severity moderate)")

	_, err = execute(t, "--root", root, "--fail-on", "critical")
	assert.NoError(t, err)

	_, err = execute(t, "--root", root, "--fail-on", "fatal")
	assert.Equal(t, exitError, exitCode(err))
}

func TestCommand_JSON(t *testing.T) {
	root := gameProject(t)

	out, err := execute(t, "--root", root, "--json", "--fail-on", "critical")
	require.NoError(t, err)

	var got struct {
		RunID         string `json:"run_id"`
		Authoritative bool   `json:"authoritative"`
		Issues        []struct {
			DescriptorID string `json:"descriptor_id"`
			Fingerprint  string `json:"fingerprint"`
		} `json:"issues"`
		Stats struct {
			Modules map[string]struct {
				Status string `json:"status"`
			} `json:"modules"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.NotEmpty(t, got.RunID)
	assert.True(t, got.Authoritative)
	assert.NotEmpty(t, got.Issues)
	assert.Equal(t, "completed", got.Stats.Modules["code"].Status)
}

func TestCommand_Baseline(t *testing.T) {
	root := gameProject(t)
	dir := filepath.Join(t.TempDir(), "baseline")

	out, err := execute(t, "--root", root, "--baseline", "--baseline-dir", dir)
	assert.Equal(t, exitIssuesFound, exitCode(err), "every issue is new")
	assert.Contains(t, out, "0 resolved, 0 unchanged")

	out, err = execute(t, "--root", root, "--baseline", "--baseline-dir", dir)
	require.NoError(t, err, "nothing new since the last run")
	assert.Contains(t, out, "0 new, 0 resolved")
}

func TestCommand_Fix(t *testing.T) {
	root := gameProject(t)

	_, err := execute(t, "--root", root, "--categories", "ProjectSetting", "--fix")
	assert.Equal(t, exitIssuesFound, exitCode(err))

	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "toolchain go1.22.0")

	_, err = execute(t, "--root", root, "--categories", "ProjectSetting")
	assert.NoError(t, err)
}

func TestCommand_DumpAndModule(t *testing.T) {
	root := gameProject(t)
	dump := filepath.Join(t.TempDir(), "universe.json")

	_, err := execute(t, "dump", "--root", root, "-o", dump)
	require.NoError(t, err)

	f, err := os.Open(dump)
	require.NoError(t, err)
	modules, err := universe.ReadModules(f)
	require.NoError(t, f.Close())
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t, "example.com/game", modules[0].Name)

	out, err := execute(t, "--module", dump, "--categories", "Code")
	assert.Equal(t, exitIssuesFound, exitCode(err))
	assert.Contains(t, out, "CAC0002")
}

func TestCommand_Rules(t *testing.T) {
	out, err := execute(t, "rules", "--root", t.TempDir())
	require.NoError(t, err)
	for _, id := range []string{"CAC0001", "CAS0002", "CAA0001"} {
		assert.Contains(t, out, id)
	}

	out, err = execute(t, "rules", "--set", "go", "--json")
	require.NoError(t, err)
	var rules []jRule
	require.NoError(t, json.Unmarshal([]byte(out), &rules))
	require.NotEmpty(t, rules)
	assert.NotContains(t, out, "CAS0002")

	_, err = execute(t, "rules", "--set", "cobol")
	assert.Equal(t, exitError, exitCode(err))
}

func TestFormatTextOutput(t *testing.T) {
	report := issue.NewReport()
	report.Add(&issue.Issue{
		Descriptor:  &descriptor.Descriptor{ID: "CAC0002"},
		Description: "'fmt.Sprintf' usage",
		Category:    issue.CategoryCode,
		Location:    &universe.Location{Path: "player.go", Line: 22},
		Severity:    descriptor.SeverityMinor,
	})

	out := formatTextOutput(&Result{Report: report}, &Config{})
	assert.Equal(t, "player.go:22: CAC0002 'fmt.Sprintf' usage (severity minor)\n", out)

	out = formatTextOutput(&Result{
		Report: report,
		Diff: &baseline.Diff{
			Resolved: []issue.Record{{DescriptorID: "CAC0003", Description: "gone", Location: &universe.Location{Path: "a.go", Line: 1}}},
		},
	}, &Config{})
	assert.Equal(t, "resolved: a.go:1 CAC0003 gone\n0 new, 1 resolved, 0 unchanged\n", out)
}
