package suppress

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChecker_ParseComment(t *testing.T) {
	tests := []struct {
		name           string
		comment        string
		expectedType   SuppressionType
		expectedReason string
		expectParsed   bool
	}{
		{"nolint basic", "//nolint:callaudit", SuppressionNolint, "", true},
		{"nolint with reason", "//nolint:callaudit // startup only", SuppressionNolint, "startup only", true},
		{"nolint all", "//nolint:all", SuppressionNolint, "", true},
		{"generic nolint", "//nolint", SuppressionNolint, "", true},
		{"generic nolint with reason", "//nolint // vendored", SuppressionNolint, "vendored", true},
		{"nolint with multiple rules", "//nolint:errcheck,callaudit", SuppressionNolint, "", true},
		{"lint ignore", "//lint:ignore callaudit measured, not hot", SuppressionLintIgnore, "measured, not hot", true},
		{"lint ignore several checks", "//lint:ignore SA1019,callaudit legacy", SuppressionLintIgnore, "legacy", true},
		{"unrelated comment", "// regular comment", 0, "", false},
		{"nolint different rule", "//nolint:deadcode", 0, "", false},
		{"nolint prefix only", "//nolintish", 0, "", false},
		{"malformed lint ignore", "//lint:ignore", 0, "", false},
		{"lint ignore different check", "//lint:ignore SA1019 old api", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewChecker("")
			s, ok := checker.parseComment(&ast.Comment{Text: tt.comment})
			require.Equal(t, tt.expectParsed, ok)
			if tt.expectParsed {
				require.Equal(t, tt.expectedType, s.Type)
				require.Equal(t, tt.expectedReason, s.Reason)
			}
		})
	}
}

func TestChecker_CustomLinter(t *testing.T) {
	checker := NewChecker("perf")
	_, ok := checker.parseComment(&ast.Comment{Text: "//nolint:perf"})
	require.True(t, ok)
	_, ok = checker.parseComment(&ast.Comment{Text: "//nolint:callaudit"})
	require.False(t, ok)
}

func loadSource(t *testing.T, src string) (*Checker, map[string]token.Pos) {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "test.go", src, parser.ParseComments)
	require.NoError(t, err)

	checker := NewChecker(Linter)
	require.NoError(t, checker.Load(fset, []*ast.File{file}))

	positions := make(map[string]token.Pos)
	for _, decl := range file.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok {
			positions[fn.Name.Name] = fn.Name.Pos()
		}
	}
	return checker, positions
}

func TestChecker_IsSuppressed(t *testing.T) {
	checker, positions := loadSource(t, `package test

type Player struct{}

//nolint:callaudit
func (p *Player) Load() {}

func Regular() {}

//lint:ignore callaudit runs once at startup
func Init() {}

func Inline() {} //nolint:callaudit // tiny

// Doc comment breaks adjacency.
//nolint:callaudit
// More doc.
func Detached() {}

//nolint:callaudit
var x = 1

func AfterVar() {}
`)

	tests := []struct {
		funcName         string
		expectSuppressed bool
		expectReason     string
	}{
		{"Load", true, "suppressed"},
		{"Regular", false, ""},
		{"Init", true, "runs once at startup"},
		{"Inline", true, "tiny"},
		{"Detached", false, ""},
		{"AfterVar", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.funcName, func(t *testing.T) {
			pos := positions[tt.funcName]
			require.NotEqual(t, token.NoPos, pos)
			suppressed, reason := checker.IsSuppressed(pos)
			require.Equal(t, tt.expectSuppressed, suppressed)
			require.Equal(t, tt.expectReason, reason)
		})
	}
	require.Equal(t, 3, checker.Len())

	t.Run("invalid position", func(t *testing.T) {
		suppressed, reason := checker.IsSuppressed(token.NoPos)
		require.False(t, suppressed)
		require.Empty(t, reason)
	})
}

func TestChecker_Load(t *testing.T) {
	checker := NewChecker(Linter)
	require.Error(t, checker.Load(nil, nil))
	require.NoError(t, checker.Load(token.NewFileSet(), []*ast.File{nil}))
	require.Zero(t, checker.Len())
}
