package assembly

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/packages"
)

func TestScanner_scanReader(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantFuncs  []Func
		wantImpl   map[string]struct{}
		wantCalled map[string]struct{}
	}{
		{
			name: "leaf functions",
			input: `//go:build amd64

#include "textflag.h"

// func Add(x, y int) int
TEXT ·Add(SB), NOSPLIT, $0-24
    MOVQ x+0(FP), AX
    ADDQ y+8(FP), AX
    MOVQ AX, ret+16(FP)
    RET
`,
			wantFuncs:  []Func{{Name: "Add", File: "add.s", Line: 6}},
			wantImpl:   map[string]struct{}{"Add": {}},
			wantCalled: map[string]struct{}{},
		},
		{
			name: "calls into go and other packages",
			input: `TEXT ·asmCallsGo(SB), $24-0
    MOVQ $10, AX
    CALL ·helperFunc(SB)
    // CALL ·commentedOut(SB)
    CALL runtime·entersyscall<ABIInternal>(SB)
    CALL crypto∕internal∕fips140∕aes·encryptBlock(SB)
    JMP ·tail(SB)
`,
			wantFuncs: []Func{{
				Name: "asmCallsGo", File: "add.s", Line: 1,
				Calls: []Call{
					{Name: "helperFunc", Line: 3},
					{Package: "runtime", Name: "entersyscall", Line: 5},
					{Package: "crypto/internal/fips140/aes", Name: "encryptBlock", Line: 6},
					{Name: "tail", Line: 7, Tail: true},
				},
			}},
			wantImpl:   map[string]struct{}{"asmCallsGo": {}},
			wantCalled: map[string]struct{}{"helperFunc": {}, "tail": {}},
		},
		{
			name: "foreign text symbol",
			input: `TEXT runtime·memhash(SB), NOSPLIT, $0-32
    CALL ·fallback(SB)
    RET
`,
			wantFuncs: []Func{{
				Package: "runtime", Name: "memhash", File: "add.s", Line: 1,
				Calls: []Call{{Name: "fallback", Line: 2}},
			}},
			wantImpl:   map[string]struct{}{},
			wantCalled: map[string]struct{}{"fallback": {}},
		},
		{
			name:       "call before any text",
			input:      "CALL ·orphan(SB)\n",
			wantImpl:   map[string]struct{}{},
			wantCalled: map[string]struct{}{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := newInfo()
			require.NoError(t, scanReader("add.s", strings.NewReader(tt.input), info))

			var got []Func
			for _, f := range info.Funcs {
				got = append(got, *f)
			}
			require.Equal(t, tt.wantFuncs, got)
			require.Equal(t, tt.wantImpl, info.ImplementedFunctions)
			require.Equal(t, tt.wantCalled, info.CalledFunctions)
		})
	}
}

func TestScanPackage(t *testing.T) {
	dir := t.TempDir()
	asm := filepath.Join(dir, "sum_amd64.s")
	require.NoError(t, os.WriteFile(asm, []byte("TEXT ·sum(SB), $0\n    RET\n"), 0o644))
	other := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(other, []byte("TEXT ·ignored(SB)\n"), 0o644))

	info, err := ScanPackage(&packages.Package{OtherFiles: []string{asm, other}})
	require.NoError(t, err)
	require.Len(t, info.Funcs, 1)
	require.Equal(t, asm, info.Funcs[0].File)
	require.Contains(t, info.ImplementedFunctions, "sum")

	info, err = ScanPackage(nil)
	require.NoError(t, err)
	require.Empty(t, info.Funcs)

	_, err = ScanPackage(&packages.Package{OtherFiles: []string{filepath.Join(dir, "missing.s")}})
	require.Error(t, err)
}
