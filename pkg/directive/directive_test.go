package directive

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		comment string
		want    Info
	}{
		{"//callaudit:hotpath", Info{Type: TypeHotPath, Name: "hotpath"}},
		{"//callaudit:hotpath frame loop", Info{Type: TypeHotPath, Name: "hotpath", Args: "frame loop"}},
		{"//callaudit:cold", Info{Type: TypeUnknown, Name: "cold"}},
		{"// callaudit:hotpath", Info{}},
		{"//callaudit:", Info{}},
		{"//go:noinline", Info{}},
		{"/* callaudit:hotpath */", Info{}},
	}
	for _, tt := range tests {
		t.Run(tt.comment, func(t *testing.T) {
			require.Equal(t, tt.want, Parse(tt.comment))
		})
	}
}

func TestFind(t *testing.T) {
	src := `package game

// Update runs every frame.
//
//callaudit:hotpath
//callaudit:budget 2ms
func Update() {}

func Start() {}

//callaudit:hotpath
var notAFunc = 1
`
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "game.go", src, parser.ParseComments)
	require.NoError(t, err)

	funcs := make(map[string]*ast.FuncDecl)
	for _, decl := range file.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok {
			funcs[fn.Name.Name] = fn
		}
	}

	update := Find(funcs["Update"])
	require.Len(t, update, 2)
	require.Equal(t, TypeHotPath, update[0].Type)
	require.Equal(t, Info{Type: TypeUnknown, Name: "budget", Args: "2ms"}, update[1])
	require.True(t, IsHotPath(funcs["Update"]))

	require.Empty(t, Find(funcs["Start"]))
	require.False(t, IsHotPath(funcs["Start"]))
	require.False(t, IsHotPath(nil))
}
