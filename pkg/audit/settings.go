package audit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/semver"

	"github.com/715d/callaudit/pkg/descriptor"
	"github.com/715d/callaudit/pkg/issue"
	"github.com/715d/callaudit/pkg/universe"
)

// MinGoVersion is the oldest go directive accepted without an issue. Go 1.22
// gives each loop iteration its own variables.
const MinGoVersion = "1.22"

// Project is the module definition inspected by settings analyzers.
type Project struct {
	// ModPath is the path of go.mod as reported in issue locations.
	ModPath  string
	Mod      *modfile.File
	HasGoSum bool
}

// Finding is one settings analyzer result.
type Finding struct {
	Line        int
	Description string
}

// SettingsAnalyzer checks one aspect of the project definition.
type SettingsAnalyzer struct {
	Descriptor descriptor.Descriptor
	Check      func(p *Project) []Finding
}

// DefaultSettingsAnalyzers returns the built-in go.mod checks.
func DefaultSettingsAnalyzers() []SettingsAnalyzer {
	return []SettingsAnalyzer{
		{
			Descriptor: descriptor.Descriptor{
				ID:       "CAS0001",
				Type:     "go.mod",
				Method:   "go",
				Title:    "Old go directive",
				Areas:    []descriptor.Area{descriptor.AreaQuality},
				Severity: descriptor.SeverityModerate,
				Problem:  "The go directive selects language semantics older than " + MinGoVersion + ", including shared loop variables.",
				Solution: "Raise the go directive to " + MinGoVersion + " or later and re-run the tests.",
			},
			Check: checkGoDirective,
		},
		{
			Descriptor: descriptor.Descriptor{
				ID:       "CAS0002",
				Type:     "go.mod",
				Method:   "toolchain",
				Title:    "Missing toolchain directive",
				Areas:    []descriptor.Area{descriptor.AreaRequirement},
				Severity: descriptor.SeverityInfo,
				Problem:  "Without a toolchain directive builds use whichever Go release is installed.",
				Solution: "Pin the toolchain with a toolchain directive.",
				Fixer:    addToolchain,
			},
			Check: checkToolchain,
		},
		{
			Descriptor: descriptor.Descriptor{
				ID:       "CAS0003",
				Type:     "go.mod",
				Method:   "replace",
				Title:    "Local replace directive",
				Areas:    []descriptor.Area{descriptor.AreaQuality, descriptor.AreaRequirement},
				Severity: descriptor.SeverityMajor,
				Problem:  "A replace directive pointing at a directory makes the build depend on files outside the module.",
				Solution: "Publish the replacement or use a go.work file for local development.",
			},
			Check: checkLocalReplace,
		},
		{
			Descriptor: descriptor.Descriptor{
				ID:       "CAS0004",
				Type:     "go.sum",
				Method:   "missing",
				Title:    "Missing go.sum",
				Areas:    []descriptor.Area{descriptor.AreaRequirement},
				Severity: descriptor.SeverityMajor,
				Problem:  "The module has requirements but no go.sum, so downloads cannot be verified.",
				Solution: "Run go mod tidy and commit go.sum.",
			},
			Check: checkGoSum,
		},
	}
}

func checkGoDirective(p *Project) []Finding {
	if p.Mod.Go == nil {
		return []Finding{{Line: 1, Description: "go.mod has no go directive"}}
	}
	if compareGoVersions(p.Mod.Go.Version, MinGoVersion) >= 0 {
		return nil
	}
	return []Finding{{
		Line:        p.Mod.Go.Syntax.Start.Line,
		Description: fmt.Sprintf("go directive %s is older than %s", p.Mod.Go.Version, MinGoVersion),
	}}
}

func checkToolchain(p *Project) []Finding {
	if p.Mod.Toolchain != nil {
		return nil
	}
	line := 1
	if p.Mod.Go != nil {
		line = p.Mod.Go.Syntax.Start.Line
	}
	return []Finding{{Line: line, Description: "go.mod does not pin a toolchain"}}
}

func checkLocalReplace(p *Project) []Finding {
	var out []Finding
	for _, r := range p.Mod.Replace {
		if r.New.Version != "" || !modfile.IsDirectoryPath(r.New.Path) {
			continue
		}
		out = append(out, Finding{
			Line:        r.Syntax.Start.Line,
			Description: fmt.Sprintf("%s is replaced by local directory %s", r.Old.Path, r.New.Path),
		})
	}
	return out
}

func checkGoSum(p *Project) []Finding {
	if p.HasGoSum || len(p.Mod.Require) == 0 {
		return nil
	}
	return []Finding{{Description: fmt.Sprintf("%d requirements but no go.sum", len(p.Mod.Require))}}
}

// compareGoVersions compares go directive versions such as "1.21" and
// "1.22.3". Pre-release suffixes are ignored.
func compareGoVersions(a, b string) int {
	return semver.Compare(goSemver(a), goSemver(b))
}

func goSemver(v string) string {
	if i := strings.IndexFunc(v, func(r rune) bool { return r != '.' && (r < '0' || r > '9') }); i >= 0 {
		v = v[:i]
	}
	return "v" + strings.TrimSuffix(v, ".")
}

// addToolchain pins the toolchain to the release named by the go directive.
func addToolchain(_ context.Context, target descriptor.FixTarget) error {
	path := target.Path()
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	f, err := modfile.Parse(path, data, nil)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if f.Toolchain != nil {
		return nil
	}
	if f.Go == nil {
		return fmt.Errorf("%s has no go directive to derive a toolchain from", path)
	}
	version := f.Go.Version
	if strings.Count(version, ".") == 1 {
		version += ".0"
	}
	if err := f.AddToolchainStmt("go" + version); err != nil {
		return fmt.Errorf("adding toolchain: %w", err)
	}
	f.Cleanup()
	out, err := f.Format()
	if err != nil {
		return fmt.Errorf("formatting %s: %w", path, err)
	}
	return os.WriteFile(path, out, 0o644)
}

// SettingsModule inspects the project's go.mod and go.sum.
type SettingsModule struct {
	registry  *descriptor.Registry
	analyzers []SettingsAnalyzer
}

// NewSettingsModule registers analyzers and their descriptors.
func NewSettingsModule(analyzers ...SettingsAnalyzer) (*SettingsModule, error) {
	reg := descriptor.NewRegistry()
	for _, a := range analyzers {
		if err := reg.Register(a.Descriptor); err != nil {
			return nil, fmt.Errorf("settings module: %w", err)
		}
	}
	return &SettingsModule{registry: reg, analyzers: analyzers}, nil
}

func (m *SettingsModule) Name() string                   { return "settings" }
func (m *SettingsModule) Category() issue.Category       { return issue.CategoryProjectSetting }
func (m *SettingsModule) Registry() *descriptor.Registry { return m.registry }

func (m *SettingsModule) Audit(ctx context.Context, in Input, emit func(*issue.Issue)) (Result, error) {
	modPath := filepath.Join(in.Root, "go.mod")
	data, err := os.ReadFile(modPath)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("no go.mod, skipping settings", "root", in.Root)
		return Result{Status: StatusCompleted}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("reading go.mod: %w", err)
	}
	f, err := modfile.Parse(modPath, data, nil)
	if err != nil {
		return Result{}, fmt.Errorf("parsing go.mod: %w", err)
	}
	_, sumErr := os.Stat(filepath.Join(in.Root, "go.sum"))
	p := &Project{ModPath: modPath, Mod: f, HasGoSum: sumErr == nil}

	progress := in.Progress
	if progress == nil {
		progress = nopProgress{}
	}
	progress.Start(len(m.analyzers), "Analyzing settings")
	defer progress.Clear()

	var res Result
	for _, a := range m.analyzers {
		if ctx.Err() != nil {
			res.Status = StatusCancelled
			return res, nil
		}
		d, _ := m.registry.ByID(a.Descriptor.ID)
		for _, fd := range a.Check(p) {
			loc := &universe.Location{Path: modPath, Line: fd.Line}
			if d.Type == "go.sum" {
				loc = &universe.Location{Path: filepath.Join(in.Root, "go.sum")}
			}
			emit(&issue.Issue{
				Descriptor:  d,
				Description: fd.Description,
				Category:    issue.CategoryProjectSetting,
				Location:    loc,
				Severity:    d.Severity,
			})
			issuesFound.WithLabelValues(issue.CategoryProjectSetting.String()).Inc()
			res.Issues++
		}
		res.Methods++
		progress.Advance()
	}
	res.Status = StatusCompleted
	return res, nil
}
