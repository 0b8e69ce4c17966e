// Package directive recognizes the callaudit comment directives placed on
// function declarations.
package directive

import (
	"go/ast"
	"strings"
)

// Prefix starts every callaudit directive. Like compiler directives there is
// no space after the slashes.
const Prefix = "callaudit:"

// Type is a directive kind.
type Type int

const (
	TypeNone Type = iota
	// TypeHotPath marks the function as a performance-critical entry point.
	TypeHotPath
	// TypeUnknown is a callaudit directive with an unrecognized name.
	TypeUnknown
)

// Info is a directive found on a function.
type Info struct {
	Type Type
	// Name is the directive name without the prefix, e.g. "hotpath".
	Name string
	// Args is the rest of the line.
	Args string
}

var directives = map[string]Type{
	"hotpath": TypeHotPath,
}

// Find returns the callaudit directives in fn's doc comment.
func Find(fn *ast.FuncDecl) []Info {
	if fn == nil || fn.Doc == nil {
		return nil
	}
	var out []Info
	for _, comment := range fn.Doc.List {
		if d := Parse(comment.Text); d.Type != TypeNone {
			out = append(out, d)
		}
	}
	return out
}

// IsHotPath reports whether fn carries a hotpath directive.
func IsHotPath(fn *ast.FuncDecl) bool {
	for _, d := range Find(fn) {
		if d.Type == TypeHotPath {
			return true
		}
	}
	return false
}

// Parse parses one comment line. Comments that are not callaudit directives
// give TypeNone.
func Parse(comment string) Info {
	text, ok := strings.CutPrefix(comment, "//")
	if !ok {
		return Info{}
	}
	text, ok = strings.CutPrefix(text, Prefix)
	if !ok {
		return Info{}
	}
	name, args, _ := strings.Cut(text, " ")
	if name == "" {
		return Info{}
	}
	typ, known := directives[name]
	if !known {
		typ = TypeUnknown
	}
	return Info{Type: typ, Name: name, Args: strings.TrimSpace(args)}
}
