// Package suppress implements comment-based suppression of findings inside a
// function.
package suppress

import (
	"errors"
	"go/ast"
	"go/token"
	"regexp"
	"strings"
)

// Linter is the name matched in nolint and lint:ignore comments.
const Linter = "callaudit"

// SuppressionType tells which comment style silenced a function.
type SuppressionType int

const (
	// SuppressionNolint represents //nolint and //nolint:callaudit comments.
	SuppressionNolint SuppressionType = iota

	// SuppressionLintIgnore represents //lint:ignore callaudit comments.
	SuppressionLintIgnore
)

// Suppression is a parsed suppression comment.
type Suppression struct {
	Position token.Pos
	Reason   string
	Type     SuppressionType
}

var (
	// nolintPattern matches "//nolint", "//nolint:a,b" and an optional
	// trailing "// reason".
	nolintPattern = regexp.MustCompile(`^//\s*nolint(?::([^\s/]+))?(?:\s*//\s*(.*?))?\s*$`)

	// lintIgnorePattern matches "//lint:ignore check[,check] reason".
	lintIgnorePattern = regexp.MustCompile(`^//\s*lint:ignore\s+(\S+)(?:\s+(.*?))?\s*$`)
)

// Checker records which function declarations carry a suppression comment,
// either on the line above the func keyword's name or on the same line.
// Load must complete before IsSuppressed is called concurrently.
type Checker struct {
	linter       string
	suppressions map[token.Pos]Suppression
}

// NewChecker creates a checker matching comments for linter. An empty
// linter uses Linter.
func NewChecker(linter string) *Checker {
	if linter == "" {
		linter = Linter
	}
	return &Checker{
		linter:       linter,
		suppressions: make(map[token.Pos]Suppression),
	}
}

// Load parses suppression comments from files and attaches them to the
// function declarations they precede.
func (sc *Checker) Load(fset *token.FileSet, files []*ast.File) error {
	if fset == nil {
		return errors.New("fset cannot be nil")
	}
	for _, file := range files {
		if file == nil {
			continue
		}
		byLine := make(map[int]Suppression)
		for _, group := range file.Comments {
			for _, comment := range group.List {
				if s, ok := sc.parseComment(comment); ok {
					byLine[fset.Position(comment.Pos()).Line] = s
				}
			}
		}
		if len(byLine) == 0 {
			continue
		}

		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok {
				continue
			}
			// Keyed by the name position, which is what types.Object.Pos
			// and ssa.Function.Pos report.
			pos := fn.Name.Pos()
			line := fset.Position(fn.Pos()).Line
			s, ok := byLine[line-1]
			if !ok {
				s, ok = byLine[line]
			}
			if ok {
				sc.suppressions[pos] = s
			}
		}
	}
	return nil
}

func (sc *Checker) parseComment(comment *ast.Comment) (Suppression, bool) {
	text := comment.Text

	if m := nolintPattern.FindStringSubmatch(text); m != nil {
		if m[1] != "" && !sc.names(m[1]) {
			return Suppression{}, false
		}
		return Suppression{Position: comment.Pos(), Reason: m[2], Type: SuppressionNolint}, true
	}

	if m := lintIgnorePattern.FindStringSubmatch(text); m != nil && sc.names(m[1]) {
		return Suppression{Position: comment.Pos(), Reason: m[2], Type: SuppressionLintIgnore}, true
	}

	return Suppression{}, false
}

// names reports whether a comma separated linter list includes ours.
func (sc *Checker) names(list string) bool {
	for name := range strings.SplitSeq(list, ",") {
		if name = strings.TrimSpace(name); name == sc.linter || name == "all" {
			return true
		}
	}
	return false
}

// IsSuppressed reports whether the function declared at pos is suppressed,
// with the comment's reason ("suppressed" when none was given).
func (sc *Checker) IsSuppressed(pos token.Pos) (bool, string) {
	s, ok := sc.suppressions[pos]
	if !ok {
		return false, ""
	}
	if s.Reason == "" {
		return true, "suppressed"
	}
	return true, s.Reason
}

// Len returns the number of suppressed functions.
func (sc *Checker) Len() int {
	return len(sc.suppressions)
}
