// Package assembly scans Go assembly files for function bodies and the
// calls they make, so hand-written assembly takes part in the audit.
package assembly

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"golang.org/x/tools/go/packages"
)

// Call is a CALL or JMP to a Go symbol.
type Call struct {
	// Package is the import path of the target. Empty means the package of
	// the assembly file.
	Package string
	Name    string
	Line    int
	// Tail is set for JMP, which transfers control without returning.
	Tail bool
}

// Func is a TEXT symbol and the calls in its body.
type Func struct {
	Package string
	Name    string
	File    string
	Line    int
	Calls   []Call
}

// Info contains the functions found in a package's assembly files.
type Info struct {
	Funcs []*Func
	// ImplementedFunctions holds the package-local TEXT symbols.
	ImplementedFunctions map[string]struct{}
	// CalledFunctions holds the package-local CALL and JMP targets.
	CalledFunctions map[string]struct{}
}

func newInfo() *Info {
	return &Info{
		ImplementedFunctions: make(map[string]struct{}),
		CalledFunctions:      make(map[string]struct{}),
	}
}

var (
	// TEXT directive: TEXT ·name(SB) or TEXT pkg·name<ABIInternal>(SB).
	// The · (middle dot) separates the package from the symbol.
	textPattern = regexp.MustCompile(`^\s*TEXT\s+([^\s·(]*)·([a-zA-Z_][a-zA-Z0-9_]*)(?:<[^>]*>)?\(SB\)`)

	// CALL and JMP to a symbol: CALL ·name(SB), JMP runtime·morestack(SB).
	callPattern = regexp.MustCompile(`\b(CALL|JMP)\s+([^\s·(]*)·([a-zA-Z_][a-zA-Z0-9_]*)(?:<[^>]*>)?\(SB\)`)
)

// ScanPackage scans the assembly files of pkg. pkg.OtherFiles is already
// filtered by the build configuration used when loading the package.
func ScanPackage(pkg *packages.Package) (*Info, error) {
	info := newInfo()
	if pkg == nil {
		return info, nil
	}
	for _, file := range pkg.OtherFiles {
		if !strings.HasSuffix(file, ".s") {
			continue
		}
		if err := scanFile(file, info); err != nil {
			return info, fmt.Errorf("scan assembly file: %s: %w", file, err)
		}
	}
	return info, nil
}

func scanFile(filename string, info *Info) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return scanReader(filename, file, info)
}

// scanReader scans r line by line. Calls are attributed to the last TEXT
// symbol seen; calls before any TEXT are ignored.
func scanReader(filename string, r io.Reader, info *Info) error {
	scanner := bufio.NewScanner(r)
	var (
		current *Func
		line    int
	)
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if i := strings.Index(text, "//"); i >= 0 {
			text = text[:i]
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		if m := textPattern.FindStringSubmatch(text); m != nil {
			current = &Func{Package: symbolPackage(m[1]), Name: m[2], File: filename, Line: line}
			info.Funcs = append(info.Funcs, current)
			if current.Package == "" {
				info.ImplementedFunctions[current.Name] = struct{}{}
			}
			continue
		}

		if m := callPattern.FindStringSubmatch(text); m != nil && current != nil {
			call := Call{Package: symbolPackage(m[2]), Name: m[3], Line: line, Tail: m[1] == "JMP"}
			current.Calls = append(current.Calls, call)
			if call.Package == "" {
				info.CalledFunctions[call.Name] = struct{}{}
			}
		}
	}
	return scanner.Err()
}

// symbolPackage converts the assembler spelling of an import path, which
// writes '/' as U+2215, back to the import path.
func symbolPackage(s string) string {
	return strings.ReplaceAll(s, "∕", "/")
}
