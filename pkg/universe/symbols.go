// Package universe models the scanned symbol universe: modules (assemblies)
// holding method definitions with encoded bodies, the member references
// their call instructions point at, type definitions and source mapping.
package universe

import (
	"path/filepath"
	"strconv"
	"strings"
)

// TypeRef names a type by namespace and (possibly nested) type name. Package
// level Go functions use an empty Name.
type TypeRef struct {
	Namespace string `json:"namespace,omitempty" yaml:"namespace"`
	Name      string `json:"name,omitempty" yaml:"name"`
}

// FullName returns "Namespace.Name", or whichever half is non-empty.
func (t TypeRef) FullName() string {
	switch {
	case t.Namespace == "":
		return t.Name
	case t.Name == "":
		return t.Namespace
	default:
		return t.Namespace + "." + t.Name
	}
}

// IsZero reports whether the reference is empty.
func (t TypeRef) IsZero() bool {
	return t.Namespace == "" && t.Name == ""
}

func (t TypeRef) String() string { return t.FullName() }

// ParseTypeRef splits a full type name at its last dot. Go package paths
// keep their slashes in the namespace ("net/http.Client").
func ParseTypeRef(full string) TypeRef {
	slash := strings.LastIndex(full, "/")
	dot := strings.LastIndex(full, ".")
	if dot <= slash {
		return TypeRef{Name: full}
	}
	return TypeRef{Namespace: full[:dot], Name: full[dot+1:]}
}

// MethodRef identifies a method: declaring type, name and signature.
type MethodRef struct {
	DeclaringType TypeRef  `json:"declaring_type"`
	Name          string   `json:"name"`
	ReturnType    string   `json:"return_type,omitempty"`
	Params        []string `json:"params,omitempty"`
}

// FullName returns the signature-qualified name, e.g.
// "System.Void MyClass::Dummy()". It doubles as the method identity.
func (m MethodRef) FullName() string {
	var b strings.Builder
	b.Grow(64)
	if m.ReturnType != "" {
		b.WriteString(m.ReturnType)
		b.WriteByte(' ')
	}
	b.WriteString(m.DeclaringType.FullName())
	b.WriteString("::")
	b.WriteString(m.Name)
	b.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p)
	}
	b.WriteByte(')')
	return b.String()
}

// PrettyName returns "DeclaringType.Name" without the signature.
func (m MethodRef) PrettyName() string {
	if t := m.DeclaringType.FullName(); t != "" {
		return t + "." + m.Name
	}
	return m.Name
}

func (m MethodRef) String() string { return m.FullName() }

// TypeDef describes a type defined in a module.
type TypeDef struct {
	Type TypeRef `json:"type"`
	// Base is the full name of the base type, if any.
	Base string `json:"base,omitempty"`
}

// SequencePoint maps a body offset to a source position.
type SequencePoint struct {
	Offset int    `json:"offset"`
	File   string `json:"file"`
	Line   int    `json:"line"`
}

// Method is a method definition.
type Method struct {
	Ref MethodRef `json:"ref"`
	// Body is the encoded instruction stream. Nil for abstract or extern
	// methods.
	Body     []byte `json:"body,omitempty"`
	Abstract bool   `json:"abstract,omitempty"`
	Extern   bool   `json:"extern,omitempty"`
	// SequencePoints are sorted by offset.
	SequencePoints []SequencePoint `json:"sequence_points,omitempty"`
	// Suppressed methods are indexed as callers but never produce issues.
	Suppressed bool `json:"suppressed,omitempty"`
	// HotPath marks the method as a performance-critical entry point.
	HotPath bool `json:"hot_path,omitempty"`
}

// HasBody reports whether the method has an instruction stream to scan.
func (m *Method) HasBody() bool {
	return m != nil && !m.Abstract && !m.Extern && len(m.Body) > 0
}

// PositionAt returns the sequence point covering offset: the last point at or
// before it. The second result is false when no source mapping exists.
func (m *Method) PositionAt(offset int) (SequencePoint, bool) {
	var best SequencePoint
	found := false
	for _, sp := range m.SequencePoints {
		if sp.Offset > offset {
			break
		}
		best, found = sp, true
	}
	return best, found
}

// Position returns the first sequence point of the method.
func (m *Method) Position() (SequencePoint, bool) {
	if m == nil || len(m.SequencePoints) == 0 {
		return SequencePoint{}, false
	}
	return m.SequencePoints[0], true
}

// Location is a source position. A nil *Location means no source mapping.
type Location struct {
	Path string `json:"path"`
	Line int    `json:"line,omitempty"`
}

// Filename returns the base name of the path, or "" for a nil location.
func (l *Location) Filename() string {
	if l == nil {
		return ""
	}
	return filepath.Base(l.Path)
}

func (l *Location) String() string {
	switch {
	case l == nil:
		return ""
	case l.Line > 0:
		return l.Path + ":" + strconv.Itoa(l.Line)
	default:
		return l.Path
	}
}

// LocationAt returns the source location of the instruction at offset, or
// nil without source mapping.
func (m *Method) LocationAt(offset int) *Location {
	if m == nil {
		return nil
	}
	sp, ok := m.PositionAt(offset)
	if !ok {
		return nil
	}
	return &Location{Path: sp.File, Line: sp.Line}
}
