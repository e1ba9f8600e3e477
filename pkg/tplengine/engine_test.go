package tplengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolverFor(values map[string]any) Resolver {
	return func(path string) (any, bool) {
		v, ok := values[path]
		return v, ok
	}
}

func TestResolve_IdentityWithoutTemplate(t *testing.T) {
	out, resolutions, err := Resolve("plain string, no templates here", resolverFor(nil))
	require.NoError(t, err)
	assert.Equal(t, "plain string, no templates here", out)
	assert.Nil(t, resolutions)
}

func TestResolve_SubstitutesStringValue(t *testing.T) {
	out, resolutions, err := Resolve("prefix-{{use.x}}-suffix", resolverFor(map[string]any{"x": "MID"}))
	require.NoError(t, err)
	assert.Equal(t, "prefix-MID-suffix", out)
	require.Len(t, resolutions, 1)
	assert.Equal(t, "x", resolutions[0].Alias)
}

func TestResolve_StringifiesNonStringValue(t *testing.T) {
	out, _, err := Resolve("count={{use.n}}", resolverFor(map[string]any{"n": 42}))
	require.NoError(t, err)
	assert.Equal(t, "count=42", out)
}

func TestResolve_StringifiesObjectAsJSON(t *testing.T) {
	out, _, err := Resolve("{{use.obj}}", resolverFor(map[string]any{"obj": map[string]any{"a": 1}}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, out)
}

func TestResolve_DottedAndBracketPaths(t *testing.T) {
	out, resolutions, err := Resolve("{{use.p.key}} {{use.items[0]}}", resolverFor(map[string]any{
		"p.key":     "qr",
		"items[0]":  "first",
	}))
	require.NoError(t, err)
	assert.Equal(t, "qr first", out)
	assert.Len(t, resolutions, 2)
}

func TestResolve_UnresolvedAliasFails(t *testing.T) {
	_, _, err := Resolve("{{use.missing}}", resolverFor(nil))
	require.Error(t, err)
	var bindErr *BindingError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, "missing", bindErr.Alias)
}

func TestHasTemplate(t *testing.T) {
	assert.True(t, HasTemplate("a {{use.x}} b"))
	assert.False(t, HasTemplate("no templates"))
}

func TestReferences_ExtractsAllAliases(t *testing.T) {
	refs := References("{{use.a}} and {{use.b.c}}")
	assert.Equal(t, []string{"a", "b.c"}, refs)
}

func TestReferences_EmptyWhenNone(t *testing.T) {
	assert.Nil(t, References("plain"))
}
