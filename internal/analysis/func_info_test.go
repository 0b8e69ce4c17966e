package analysis

import (
	"go/token"
	"go/types"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/packages"
)

func TestNewFuncInfo(t *testing.T) {
	tests := []struct {
		name     string
		pkgPath  string
		funcName string
		want     string
	}{
		{"exported function", "example.com/test", "ExportedFunc", "example.com/test.ExportedFunc"},
		{"unexported function", "example.com/test", "helper", "example.com/test.helper"},
		{"internal package", "example.com/test/internal/handler", "Serve", "example.com/test/internal/handler.Serve"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpkg := types.NewPackage(tt.pkgPath, "test")
			pkg := &packages.Package{ID: tt.pkgPath, PkgPath: tt.pkgPath, Types: tpkg}
			fn := types.NewFunc(token.Pos(42), tpkg, tt.funcName, types.NewSignatureType(nil, nil, nil, nil, nil, false))

			fi := NewFuncInfo(fn, pkg, NewNameCache())
			require.Same(t, pkg, fi.Package)
			require.Equal(t, fn, fi.Object)
			require.Equal(t, token.Pos(42), fi.DeclarationPos)
			require.Equal(t, tt.want, fi.Name())
			require.False(t, fi.IsSuppressed)
			require.False(t, fi.IsHotPath)
		})
	}
}

func TestNewFuncInfo_Nil(t *testing.T) {
	pkg := &packages.Package{PkgPath: "example.com/test"}
	fi := NewFuncInfo(nil, pkg, NewNameCache())
	require.Nil(t, fi.Object)
	require.Same(t, pkg, fi.Package)
	require.Empty(t, fi.Name())
}
