package devicesdk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStructuredError(t *testing.T) {
	err := NewError("begin_write", CodeInvalidInput, "buffer below MinChunkBufLen")

	assert.Equal(t, "begin_write", err.Op)
	assert.Equal(t, CodeInvalidInput, err.Code)
	assert.Equal(t, "devicesdk: begin_write: buffer below MinChunkBufLen", err.Error())
}

func TestErrorWithoutOpOmitsPrefix(t *testing.T) {
	err := NewError("", CodeEmpty, "")
	assert.Equal(t, "devicesdk: empty", err.Error())
}

func TestWrapErrorPreservesCode(t *testing.T) {
	inner := NewError("read", CodeFull, "ring cannot fit request")
	wrapped := WrapError("save", inner)

	assert.Equal(t, "save", wrapped.Op)
	assert.Equal(t, CodeFull, wrapped.Code)
}

func TestWrapErrorNilIsNil(t *testing.T) {
	assert.Nil(t, WrapError("op", nil))
}

func TestErrorIsComparesByCode(t *testing.T) {
	a := NewError("op1", CodeDoesNotExist, "no coredump present")
	b := &Error{Code: CodeDoesNotExist}
	assert.True(t, errors.Is(a, b))

	c := &Error{Code: CodeTimeout}
	assert.False(t, errors.Is(a, c))
}

func TestIsCode(t *testing.T) {
	err := NewError("get_next", CodeTimeout, "operation timed out")

	assert.True(t, IsCode(err, CodeTimeout))
	assert.False(t, IsCode(err, CodeFull))
	assert.False(t, IsCode(nil, CodeTimeout))
}
