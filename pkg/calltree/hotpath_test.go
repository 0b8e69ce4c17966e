package calltree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/715d/callaudit/pkg/universe"
)

func TestParseHotPaths(t *testing.T) {
	h, err := ParseHotPaths(DefaultHotPaths)
	require.NoError(t, err)
	assert.Equal(t, len(DefaultHotPaths), h.Len())

	for _, bad := range []string{"Update", "::Update", "Type::", ""} {
		_, err := ParseHotPaths([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestHotPaths_Match(t *testing.T) {
	h := MustParseHotPaths(
		"UnityEngine.MonoBehaviour::Update",
		"*::ServeHTTP",
		"example.com/game.*::Tick*",
		"Props::value",
	)

	ref := func(ns, typ, name string) universe.MethodRef {
		return universe.MethodRef{DeclaringType: universe.TypeRef{Namespace: ns, Name: typ}, Name: name}
	}

	tests := []struct {
		name  string
		ref   universe.MethodRef
		bases []string
		want  bool
	}{
		{"declared type", ref("UnityEngine", "MonoBehaviour", "Update"), nil, true},
		{"base type", ref("", "Player", "Update"), []string{"UnityEngine.MonoBehaviour"}, true},
		{"wrong method", ref("", "Player", "Start"), []string{"UnityEngine.MonoBehaviour"}, false},
		{"no base", ref("", "Player", "Update"), nil, false},
		{"type wildcard", ref("example.com/api", "Server", "ServeHTTP"), nil, true},
		{"both wildcards", ref("example.com/game", "World", "TickPhysics"), nil, true},
		{"namespace mismatch", ref("example.com/other", "World", "TickPhysics"), nil, false},
		{"accessor normalized", ref("", "Props", "get_value"), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.Match(tt.ref, tt.bases))
		})
	}

	var nilPaths *HotPaths
	assert.False(t, nilPaths.Match(ref("", "A", "B"), nil))
}

func TestGlob(t *testing.T) {
	tests := []struct {
		pattern, s string
		want       bool
	}{
		{"*", "", true},
		{"*", "anything", true},
		{"Tick*", "Tick", true},
		{"Tick*", "Ticker", true},
		{"*Update", "LateUpdate", true},
		{"*Update", "UpdateLate", false},
		{"a*b*c", "aXbYc", true},
		{"a*b*c", "aXcYb", false},
		{"exact", "exact", true},
		{"exact", "exactly", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, glob(tt.pattern, tt.s), "%s ~ %s", tt.pattern, tt.s)
	}
}
