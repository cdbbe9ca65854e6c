package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCapturesStack(t *testing.T) {
	err := New(TypeQuery, "boom")
	assert.Equal(t, TypeQuery, err.Type)
	assert.Equal(t, "query: boom", err.Error())
	assert.NotEmpty(t, err.Stack)
}

func TestWrapPreservesCauseAndStack(t *testing.T) {
	cause := stderrors.New("disk full")
	wrapped := Wrap(cause, TypeSink, "write batch")
	assert.Equal(t, "sink: write batch: disk full", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)

	inner := New(TypeOverflow, "too big")
	outer := Wrapf(inner, TypeOf(inner), "row group %d", 3)
	assert.Equal(t, TypeOverflow, outer.Type)
	// Re-wrapping keeps the original capture site.
	assert.Equal(t, inner.Stack, outer.Stack)
	assert.ErrorIs(t, outer, inner)
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, TypeSink, "nothing"))
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, TypeConfig, TypeOf(New(TypeConfig, "bad")))
	assert.Equal(t, TypeConfig, TypeOf(fmt.Errorf("outer: %w", New(TypeConfig, "bad"))))
	assert.Equal(t, TypeInternal, TypeOf(stderrors.New("plain")))
}

func TestIsType(t *testing.T) {
	err := New(TypeRowCountMismatch, "columns disagree")
	assert.True(t, IsType(err, TypeRowCountMismatch))
	assert.False(t, IsType(err, TypeSink))
	assert.False(t, IsType(stderrors.New("plain"), TypeSink))
}

func TestWithDetail(t *testing.T) {
	err := New(TypeLengthMismatch, "wrong length").
		WithDetail("value_length", 3).
		WithDetail("type_length", 16)
	assert.Equal(t, 3, err.Detail("value_length"))
	assert.Equal(t, 16, err.Detail("type_length"))
	assert.Nil(t, err.Detail("absent"))

	require.Nil(t, New(TypeInternal, "x").Detail("absent"))
}
