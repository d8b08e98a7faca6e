package frontmatter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValue_Scalar(t *testing.T) {
	cases := []struct {
		v    Value
		want string
		ok   bool
	}{
		{String("x"), "x", true},
		{Int(42), "42", true},
		{Float(1.5), "1.5", true},
		{Bool(true), "true", true},
		{Null(), "", true},
		{Sequence(String("a")), "", false},
		{Mapping(nil), "", false},
	}
	for _, tc := range cases {
		got, ok := tc.v.Scalar()
		require.Equal(t, tc.ok, ok, tc.v.Kind().String())
		require.Equal(t, tc.want, got)
	}
}

func TestValue_Truthy(t *testing.T) {
	require.False(t, Null().Truthy())
	require.False(t, String("").Truthy())
	require.False(t, Bool(false).Truthy())
	require.False(t, Int(0).Truthy())
	require.False(t, Sequence().Truthy())
	require.True(t, String("x").Truthy())
	require.True(t, Sequence(Null()).Truthy())
}

func TestMap_OrderAndReplace(t *testing.T) {
	m := NewMap()
	m.Set("b", Int(1))
	m.Set("a", Int(2))
	m.Set("b", Int(3))
	require.Equal(t, []string{"b", "a"}, m.Keys())

	v, _ := m.Get("b")
	require.Equal(t, "3", v.String())

	m.Delete("b")
	require.Equal(t, []string{"a"}, m.Keys())
}

func TestMap_MergeFromDeep(t *testing.T) {
	base := NewMap()
	inner := NewMap()
	inner.Set("x", Int(1))
	inner.Set("y", Int(2))
	base.Set("nested", Mapping(inner))
	base.Set("title", String("base"))

	overlay := NewMap()
	overInner := NewMap()
	overInner.Set("y", Int(20))
	overlay.Set("nested", Mapping(overInner))
	overlay.Set("title", String("overlay"))

	base.MergeFrom(overlay)

	x, _ := base.Lookup("nested.x")
	y, _ := base.Lookup("nested.y")
	title, _ := base.Get("title")
	require.Equal(t, "1", x.String())
	require.Equal(t, "20", y.String())
	require.Equal(t, "overlay", title.String())

	// the original inner mapping is untouched
	origY, _ := inner.Get("y")
	require.Equal(t, "2", origY.String())
}

func TestValue_MarshalJSONKeepsOrder(t *testing.T) {
	m := NewMap()
	m.Set("z", String("last"))
	m.Set("a", Sequence(Int(1), Bool(false)))
	data, err := json.Marshal(Mapping(m))
	require.NoError(t, err)
	require.Equal(t, `{"z":"last","a":[1,false]}`, string(data))
}

func TestValue_Equal(t *testing.T) {
	a := Sequence(String("x"), Int(1))
	b := Sequence(String("x"), Int(1))
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(Sequence(String("x"))))
	require.False(t, Int(1).Equal(Float(1)))
}
