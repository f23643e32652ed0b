package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlowError_Format(t *testing.T) {
	err := NewError(ErrCodeNotFound, "no such object")
	assert.Equal(t, "[NOT_FOUND] no such object", err.Error())

	err = NewErrorf(ErrCodeInvalidAggregate, "%s cannot hold %s", "Folder", "Event").WithObject(42)
	assert.Equal(t, "[INVALID_AGGREGATE] object 42: Folder cannot hold Event", err.Error())
}

func TestFlowError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewError(ErrCodeStore, "commit failed").WithCause(cause)
	assert.ErrorIs(t, err, cause)
}

func TestIsCode(t *testing.T) {
	err := NewError(ErrCodeMalformedStream, "bad header").WithDetails(map[string]any{"slot": 0})
	wrapped := fmt.Errorf("import: %w", err)

	assert.True(t, IsCode(wrapped, ErrCodeMalformedStream))
	assert.False(t, IsCode(wrapped, ErrCodeStore))
	assert.False(t, IsCode(errors.New("plain"), ErrCodeStore))
	assert.Equal(t, 0, err.Details["slot"])
}
