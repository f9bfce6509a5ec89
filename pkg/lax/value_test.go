package lax

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToString(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{true, "True"},
		{false, "False"},
		{3, "3"},
		{int64(-3), "-3"},
		{uint8(7), "7"},
		{2.0, "2.0"},
		{1.25, "1.25"},
		{float32(1.5), "1.5"},
		{1e20, "1e+20"},
		{1e-5, "1e-05"},
		{math.Inf(-1), "-inf"},
		{[]any{1, "a", nil, true}, "[1, 'a', None, True]"},
		{[]string{"it's"}, `["it's"]`},
		{map[string]any{"b": 2, "a": []any{}}, "{'a': [], 'b': 2}"},
		{map[string]string{"k": "v"}, "{'k': 'v'}"},
		{&LoopState{Index: 1, Index0: 0, First: true, Last: true, Length: 1},
			"{'first': True, 'index': 1, 'index0': 0, 'last': True, 'length': 1, 'parentloop': None}"},
		{errors.New("bad"), "bad"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toString(tt.in), "%#v", tt.in)
	}
}

func TestQuoteRepr(t *testing.T) {
	assert.Equal(t, `'plain'`, quoteRepr("plain"))
	assert.Equal(t, `"it's"`, quoteRepr("it's"))
	assert.Equal(t, `'both \' "'`, quoteRepr(`both ' "`))
	assert.Equal(t, `'a\nb\\c'`, quoteRepr("a\nb\\c"))
}

func TestTruthy(t *testing.T) {
	falsy := []any{nil, false, 0, int64(0), 0.0, "", []any{}, []string{}, map[string]any{}, (*LoopState)(nil)}
	for _, v := range falsy {
		assert.False(t, truthy(v), "%#v", v)
	}
	truthyValues := []any{true, 1, -1, 0.5, "0", "False", []any{nil}, map[string]any{"a": nil}, &LoopState{}, struct{}{}}
	for _, v := range truthyValues {
		assert.True(t, truthy(v), "%#v", v)
	}
}

func TestEqualAndCompare(t *testing.T) {
	assert.True(t, equal(1, 1.0))
	assert.True(t, equal(true, 1))
	assert.False(t, equal("1", 1))
	assert.True(t, equal(nil, nil))
	assert.False(t, equal([]any{1, "a"}, []any{1}))
	assert.True(t, equal(map[string]any{"a": 1}, map[string]any{"a": int64(1)}))

	c, err := compare([]any{1, 2}, []any{1, 3})
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	c, err = compare("b", "a")
	require.NoError(t, err)
	assert.Equal(t, 1, c)

	c, err = compare([]any{1}, []any{1, 0})
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	_, err = compare(nil, 1)
	assert.EqualError(t, err, "comparison not supported between instances of 'NoneType' and 'int'")
}

func TestLookupPath(t *testing.T) {
	ctx := Context{
		"user":  map[string]any{"profile": map[string]string{"name": "ann"}, "nothing": nil},
		"items": []any{"a", "b"},
	}

	v, ok := lookupPath(ctx, "user.profile.name")
	assert.True(t, ok)
	assert.Equal(t, "ann", v)

	v, ok = lookupPath(ctx, "items.-1")
	assert.True(t, ok)
	assert.Equal(t, "b", v)

	_, ok = lookupPath(ctx, "user.nothing.name")
	assert.False(t, ok)

	_, ok = lookupPath(ctx, "user.missing")
	assert.False(t, ok)

	_, ok = lookupPath(ctx, "items.5")
	assert.False(t, ok)
}

func TestIterate(t *testing.T) {
	assert.Equal(t, []any{"h", "é"}, iterate("hé"))
	assert.Equal(t, []any{"a", "b"}, iterate(map[string]any{"b": 1, "a": 2}))
	assert.Equal(t, []any{int64(1), int64(2)}, iterate([]int{1, 2}))
	assert.Nil(t, iterate(42))
	assert.Nil(t, iterate(nil))
}

func TestValidateContext(t *testing.T) {
	assert.NoError(t, validateContext(nil))
	assert.NoError(t, validateContext(map[string]any{"ok": 1, "_private": 2, "héllo": 3}))

	err := validateContext(map[string]any{"fine": 1, "bad-key": 2, "9lives": 3})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "9lives", ve.Key)
	assert.ErrorIs(t, err, ErrInvalidContextKey)
}

type testAuthor struct {
	Name string `mapstructure:"name"`
}

type testPage struct {
	Title   string        `mapstructure:"title"`
	Views   int           `mapstructure:"views"`
	Tags    []string      `mapstructure:"tags"`
	Author  testAuthor    `mapstructure:"author"`
	Editors []*testAuthor `mapstructure:"editors"`
	secret  string
}

func TestToContext(t *testing.T) {
	page := testPage{
		Title:   "Hello",
		Views:   3,
		Tags:    []string{"go"},
		Author:  testAuthor{Name: "ann"},
		Editors: []*testAuthor{{Name: "bo"}},
		secret:  "hidden",
	}
	ctx, err := ToContext(page)
	require.NoError(t, err)

	assert.Equal(t, "Hello", ctx["title"])
	assert.Equal(t, 3, ctx["views"])
	assert.Equal(t, []string{"go"}, ctx["tags"])
	assert.Equal(t, map[string]any{"name": "ann"}, ctx["author"])
	assert.Equal(t, []any{map[string]any{"name": "bo"}}, ctx["editors"])
	assert.NotContains(t, ctx, "secret")

	out, err := New("{{ title }} by {{ author.name }}, edited by {{ editors.0.name }}").Render(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Hello by ann, edited by bo", out)

	// Maps are copied rather than shared.
	src := map[string]any{"a": 1}
	ctx, err = ToContext(src)
	require.NoError(t, err)
	ctx["b"] = 2
	assert.NotContains(t, src, "b")

	ctx, err = ToContext(nil)
	require.NoError(t, err)
	assert.Empty(t, ctx)
}
