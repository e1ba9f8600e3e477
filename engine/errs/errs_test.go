package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_MessageIncludesFixHint(t *testing.T) {
	e := New(KindValidation, "validation.x", "bad thing", "do the good thing")
	assert.Contains(t, e.Error(), "bad thing")
	assert.Contains(t, e.Error(), "do the good thing")
}

func TestWrap_UnwrapsToCause(t *testing.T) {
	cause := errors.New("boom")
	e := Wrap(KindProvider, "provider.x", "retry later", cause)
	assert.Equal(t, cause, errors.Unwrap(e))
	assert.Contains(t, e.Message, "boom")
}

func TestAsMap_NilSafe(t *testing.T) {
	var e *Error
	assert.Nil(t, e.AsMap())
}

func TestAsMap_HasAllFields(t *testing.T) {
	e := New(KindMcp, "mcp.not_connected", "not connected", "call connect")
	m := e.AsMap()
	assert.Equal(t, "mcp", m["kind"])
	assert.Equal(t, "mcp.not_connected", m["code"])
}

func TestDanglingBinding_NamesTaskAndAlias(t *testing.T) {
	e := DanglingBinding("task1", "missing_alias")
	assert.Equal(t, KindValidation, e.Kind)
	assert.Contains(t, e.Message, "task1")
	assert.Contains(t, e.Message, "missing_alias")
}

func TestErrorsAs_ExtractsTypedError(t *testing.T) {
	var target *Error
	err := error(McpNotConnected("srv"))
	require.True(t, errors.As(err, &target))
	assert.Equal(t, KindMcp, target.Kind)
}
