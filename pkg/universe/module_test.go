package universe

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/715d/callaudit/pkg/il"
)

func TestMethodRef_Names(t *testing.T) {
	tests := []struct {
		name   string
		ref    MethodRef
		full   string
		pretty string
	}{
		{
			name: "cecil style",
			ref: MethodRef{
				DeclaringType: TypeRef{Name: "MyClass"},
				Name:          "Dummy",
				ReturnType:    "System.Void",
			},
			full:   "System.Void MyClass::Dummy()",
			pretty: "MyClass.Dummy",
		},
		{
			name: "params",
			ref: MethodRef{
				DeclaringType: TypeRef{Namespace: "System", Name: "AppDomain"},
				Name:          "GetAssemblies",
				ReturnType:    "System.Reflection.Assembly[]",
				Params:        []string{"System.Int32", "System.String"},
			},
			full:   "System.Reflection.Assembly[] System.AppDomain::GetAssemblies(System.Int32,System.String)",
			pretty: "System.AppDomain.GetAssemblies",
		},
		{
			name:   "go package function",
			ref:    MethodRef{DeclaringType: TypeRef{Namespace: "os"}, Name: "Exit"},
			full:   "os::Exit()",
			pretty: "os.Exit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.full, tt.ref.FullName())
			assert.Equal(t, tt.pretty, tt.ref.PrettyName())
		})
	}
}

func TestParseTypeRef(t *testing.T) {
	tests := []struct {
		in   string
		want TypeRef
	}{
		{"System.AppDomain", TypeRef{Namespace: "System", Name: "AppDomain"}},
		{"UnityEngine.UI.Text", TypeRef{Namespace: "UnityEngine.UI", Name: "Text"}},
		{"net/http.Client", TypeRef{Namespace: "net/http", Name: "Client"}},
		{"example.com/pkg", TypeRef{Name: "example.com/pkg"}},
		{"MyClass", TypeRef{Name: "MyClass"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTypeRef(tt.in))
		})
	}
}

func TestModule_ResolveMethod(t *testing.T) {
	mod := NewModule("Assembly-CSharp")
	a := MethodRef{DeclaringType: TypeRef{Namespace: "System", Name: "AppDomain"}, Name: "GetAssemblies"}
	b := MethodRef{DeclaringType: TypeRef{Namespace: "UnityEngine", Name: "Camera"}, Name: "get_allCameras"}

	tokA := mod.AddMemberRef(a)
	tokB := mod.AddMemberRef(b)
	assert.Equal(t, tokA, mod.AddMemberRef(a), "member refs are interned")
	assert.NotEqual(t, tokA, tokB)
	require.Len(t, mod.MemberRefs, 2)

	def := &Method{Ref: MethodRef{DeclaringType: TypeRef{Name: "MyClass"}, Name: "Dummy"}}
	tokDef := mod.AddMethod(def)
	assert.Equal(t, il.TableMethodDef, tokDef.Table())

	got, err := mod.ResolveMethod(tokB)
	require.NoError(t, err)
	assert.Equal(t, b, got)

	got, err = mod.ResolveMethod(tokDef)
	require.NoError(t, err)
	assert.Equal(t, def.Ref, got)

	for _, bad := range []il.Token{
		il.NewToken(il.TableMemberRef, 0),
		il.NewToken(il.TableMemberRef, 3),
		il.NewToken(il.TableMethodDef, 2),
		il.NewToken(il.TableString, 1),
	} {
		_, err := mod.ResolveMethod(bad)
		assert.True(t, errors.Is(err, ErrBadToken), "token %s", bad)
	}
}

func TestHierarchy_BaseTypes(t *testing.T) {
	game := NewModule("Game")
	game.AddType(TypeDef{Type: TypeRef{Name: "Player"}, Base: "Actor"})
	game.AddType(TypeDef{Type: TypeRef{Name: "Loop"}, Base: "Loop2"})
	game.AddType(TypeDef{Type: TypeRef{Name: "Loop2"}, Base: "Loop"})
	engine := NewModule("Engine")
	engine.AddType(TypeDef{Type: TypeRef{Name: "Actor"}, Base: "UnityEngine.MonoBehaviour"})

	h := NewHierarchy([]*Module{game, engine})
	assert.Equal(t, []string{"Actor", "UnityEngine.MonoBehaviour"}, h.BaseTypes("Player"))
	assert.Empty(t, h.BaseTypes("Unknown"))
	assert.Equal(t, []string{"Loop2"}, h.BaseTypes("Loop"))
	assert.Empty(t, (*Hierarchy)(nil).BaseTypes("Player"))
}

func TestLocation(t *testing.T) {
	var nilLoc *Location
	assert.Equal(t, "", nilLoc.String())
	assert.Equal(t, "", nilLoc.Filename())

	loc := &Location{Path: "Assets/Scripts/MyClass.cs", Line: 12}
	assert.Equal(t, "Assets/Scripts/MyClass.cs:12", loc.String())
	assert.Equal(t, "MyClass.cs", loc.Filename())
	assert.Equal(t, "go.mod", (&Location{Path: "go.mod"}).String())

	m := &Method{SequencePoints: []SequencePoint{{Offset: 4, File: "a.go", Line: 3}}}
	assert.Nil(t, m.LocationAt(0))
	assert.Equal(t, &Location{Path: "a.go", Line: 3}, m.LocationAt(9))
	assert.Nil(t, (*Method)(nil).LocationAt(0))
}

func TestMethod_PositionAt(t *testing.T) {
	m := &Method{SequencePoints: []SequencePoint{
		{Offset: 0, File: "a.cs", Line: 10},
		{Offset: 6, File: "a.cs", Line: 11},
		{Offset: 20, File: "a.cs", Line: 14},
	}}

	sp, ok := m.PositionAt(7)
	require.True(t, ok)
	assert.Equal(t, 11, sp.Line)

	sp, ok = m.PositionAt(25)
	require.True(t, ok)
	assert.Equal(t, 14, sp.Line)

	_, ok = (&Method{}).PositionAt(3)
	assert.False(t, ok)

	_, ok = (*Method)(nil).Position()
	assert.False(t, ok)
}

func TestMethod_HasBody(t *testing.T) {
	assert.True(t, (&Method{Body: []byte{0x2A}}).HasBody())
	assert.False(t, (&Method{}).HasBody())
	assert.False(t, (&Method{Body: []byte{0x2A}, Abstract: true}).HasBody())
	assert.False(t, (&Method{Body: []byte{0x2A}, Extern: true}).HasBody())
}

func TestReadWriteModules(t *testing.T) {
	mod := NewModule("Assembly-CSharp")
	var asm il.Assembler
	asm.EmitCall(il.Call, mod.AddMemberRef(MethodRef{
		DeclaringType: TypeRef{Namespace: "System", Name: "AppDomain"},
		Name:          "GetAssemblies",
	}), false)
	asm.Emit(il.Ret)
	mod.AddMethod(&Method{
		Ref:            MethodRef{DeclaringType: TypeRef{Name: "MyClass"}, Name: "Dummy", ReturnType: "System.Void"},
		Body:           asm.Bytes(),
		SequencePoints: []SequencePoint{{Offset: 0, File: "MyClass.cs", Line: 7}},
	})

	var buf bytes.Buffer
	require.NoError(t, WriteModules(&buf, []*Module{mod}))

	got, err := ReadModules(&buf)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mod.Name, got[0].Name)
	assert.Equal(t, mod.MemberRefs, got[0].MemberRefs)
	require.Len(t, got[0].Methods, 1)
	assert.Equal(t, asm.Bytes(), got[0].Methods[0].Body)

	// Interning keeps working on a decoded module.
	assert.Equal(t, il.NewToken(il.TableMemberRef, 1), got[0].AddMemberRef(mod.MemberRefs[0]))
}

func TestReadModules_Invalid(t *testing.T) {
	_, err := ReadModules(strings.NewReader(`{"modules": [{"methods": []}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no name")

	_, err = ReadModules(strings.NewReader(`{`))
	require.Error(t, err)
}
