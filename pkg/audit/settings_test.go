package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/715d/callaudit/pkg/issue"
)

const oldGoMod = `module example.com/game

go 1.20

require example.com/engine v1.4.0

replace example.com/engine => ../engine
`

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func auditSettings(t *testing.T, root string) (Result, []*issue.Issue) {
	t.Helper()
	m, err := NewSettingsModule(DefaultSettingsAnalyzers()...)
	require.NoError(t, err)
	var issues []*issue.Issue
	res, err := m.Audit(context.Background(), Input{Root: root}, func(i *issue.Issue) {
		issues = append(issues, i)
	})
	require.NoError(t, err)
	return res, issues
}

func TestSettingsModule(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  map[string]int // descriptor id -> line
	}{
		{
			name:  "old module",
			files: map[string]string{"go.mod": oldGoMod},
			want:  map[string]int{"CAS0001": 3, "CAS0002": 3, "CAS0003": 7, "CAS0004": 0},
		},
		{
			name: "current module",
			files: map[string]string{
				"go.mod": "module example.com/game\n\ngo 1.23.1\n\ntoolchain go1.23.4\n\nrequire example.com/engine v1.4.0\n",
				"go.sum": "",
			},
			want: map[string]int{},
		},
		{
			name:  "no requirements needs no go.sum",
			files: map[string]string{"go.mod": "module example.com/game\n\ngo 1.22\n\ntoolchain go1.22.0\n"},
			want:  map[string]int{},
		},
		{
			name:  "missing go directive",
			files: map[string]string{"go.mod": "module example.com/game\n\ntoolchain go1.22.0\n"},
			want:  map[string]int{"CAS0001": 1},
		},
		{
			name:  "versioned replace is fine",
			files: map[string]string{"go.mod": "module example.com/game\n\ngo 1.22\n\ntoolchain go1.22.0\n\nreplace example.com/engine => example.com/fork v1.0.0\n"},
			want:  map[string]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := writeProject(t, tt.files)
			res, issues := auditSettings(t, root)
			assert.Equal(t, StatusCompleted, res.Status)
			assert.Equal(t, 4, res.Methods)
			assert.Equal(t, len(tt.want), res.Issues)

			got := make(map[string]int)
			for _, i := range issues {
				assert.Equal(t, issue.CategoryProjectSetting, i.Category)
				assert.NotEmpty(t, i.Description)
				got[i.DescriptorID()] = i.Line()
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSettingsModule_NoGoMod(t *testing.T) {
	res, issues := auditSettings(t, t.TempDir())
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Empty(t, issues)
}

func TestSettingsModule_InvalidGoMod(t *testing.T) {
	root := writeProject(t, map[string]string{"go.mod": "module\n\ngo banana split\n"})
	m, err := NewSettingsModule(DefaultSettingsAnalyzers()...)
	require.NoError(t, err)
	_, err = m.Audit(context.Background(), Input{Root: root}, func(*issue.Issue) {})
	assert.ErrorContains(t, err, "parsing go.mod")
}

func TestSettingsModule_DuplicateAnalyzer(t *testing.T) {
	a := DefaultSettingsAnalyzers()
	_, err := NewSettingsModule(append(a, a[0])...)
	assert.Error(t, err)
}

func TestSettingsModule_FixToolchain(t *testing.T) {
	root := writeProject(t, map[string]string{"go.mod": oldGoMod})
	_, issues := auditSettings(t, root)

	var toolchain *issue.Issue
	for _, i := range issues {
		if i.DescriptorID() == "CAS0002" {
			toolchain = i
		}
	}
	require.NotNil(t, toolchain)
	require.NoError(t, toolchain.Fix(context.Background()))

	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "toolchain go1.20.0")

	_, issues = auditSettings(t, root)
	for _, i := range issues {
		assert.NotEqual(t, "CAS0002", i.DescriptorID(), "fixed issue is gone")
	}

	// A second fix is a no-op.
	require.NoError(t, toolchain.Fix(context.Background()))
}

func TestSettingsModule_NoFixer(t *testing.T) {
	root := writeProject(t, map[string]string{"go.mod": oldGoMod})
	_, issues := auditSettings(t, root)
	for _, i := range issues {
		if i.DescriptorID() == "CAS0003" {
			assert.ErrorIs(t, i.Fix(context.Background()), issue.ErrNoFixer)
		}
	}
}

func TestCompareGoVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.21", "1.22", -1},
		{"1.22", "1.22", 0},
		{"1.22.3", "1.22", 1},
		{"1.23rc1", "1.22", 1},
		{"1.9", "1.22", -1},
	}
	for _, tt := range tests {
		t.Run(tt.a+" vs "+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, compareGoVersions(tt.a, tt.b))
		})
	}
}
