package universe

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/715d/callaudit/pkg/il"
)

// ErrBadToken is returned when a call operand does not resolve to a method.
var ErrBadToken = errors.New("token does not resolve to a method")

// Module is one assembly of the symbol universe.
type Module struct {
	Name       string      `json:"name"`
	Methods    []*Method   `json:"methods"`
	MemberRefs []MethodRef `json:"member_refs,omitempty"`
	Types      []TypeDef   `json:"types,omitempty"`

	refIndex map[string]il.Token
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{Name: name}
}

// AddMemberRef interns ref and returns the token call instructions use to
// reference it.
func (m *Module) AddMemberRef(ref MethodRef) il.Token {
	if m.refIndex == nil {
		m.refIndex = make(map[string]il.Token, len(m.MemberRefs))
		for i, r := range m.MemberRefs {
			m.refIndex[r.FullName()] = il.NewToken(il.TableMemberRef, i+1)
		}
	}
	key := ref.FullName()
	if tok, ok := m.refIndex[key]; ok {
		return tok
	}
	m.MemberRefs = append(m.MemberRefs, ref)
	tok := il.NewToken(il.TableMemberRef, len(m.MemberRefs))
	m.refIndex[key] = tok
	return tok
}

// AddMethod appends a method definition and returns its token.
func (m *Module) AddMethod(meth *Method) il.Token {
	m.Methods = append(m.Methods, meth)
	return il.NewToken(il.TableMethodDef, len(m.Methods))
}

// AddType registers a type definition.
func (m *Module) AddType(def TypeDef) {
	m.Types = append(m.Types, def)
}

// ResolveMethod resolves a call operand token.
func (m *Module) ResolveMethod(tok il.Token) (MethodRef, error) {
	row := tok.Row()
	switch tok.Table() {
	case il.TableMemberRef:
		if row >= 1 && row <= len(m.MemberRefs) {
			return m.MemberRefs[row-1], nil
		}
	case il.TableMethodDef:
		if row >= 1 && row <= len(m.Methods) && m.Methods[row-1] != nil {
			return m.Methods[row-1].Ref, nil
		}
	}
	return MethodRef{}, fmt.Errorf("%w: %s", ErrBadToken, tok)
}

// dump is the on-disk layout of a universe file.
type dump struct {
	Modules []*Module `json:"modules"`
}

// ReadModules decodes a JSON universe dump.
func ReadModules(r io.Reader) ([]*Module, error) {
	var d dump
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("decoding universe: %w", err)
	}
	for i, mod := range d.Modules {
		if mod == nil || mod.Name == "" {
			return nil, fmt.Errorf("decoding universe: module %d has no name", i)
		}
	}
	return d.Modules, nil
}

// WriteModules encodes modules as a JSON universe dump.
func WriteModules(w io.Writer, modules []*Module) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dump{Modules: modules}); err != nil {
		return fmt.Errorf("encoding universe: %w", err)
	}
	return nil
}
