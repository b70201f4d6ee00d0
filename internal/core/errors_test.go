package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := Invalidf("period must be >= 1, got %d", 0)

	assert.True(t, errors.Is(err, ErrInvalidParameter))
	assert.False(t, errors.Is(err, ErrLengthMismatch))
	assert.Contains(t, err.Error(), "INVALID_PARAMETER")
	assert.Contains(t, err.Error(), "got 0")
}

func TestWrapError_KeepsCause(t *testing.T) {
	cause := fmt.Errorf("high has 3 values, low has 2")
	err := WrapError(ErrLengthMismatch, cause)

	assert.ErrorIs(t, err, ErrLengthMismatch)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[LENGTH_MISMATCH] input arrays have different lengths: high has 3 values, low has 2", err.Error())
}

func TestError_NoCause(t *testing.T) {
	assert.Equal(t, "[UNKNOWN_INDICATOR] unknown indicator type", ErrUnknownIndicator.Error())
	assert.Nil(t, ErrUnknownIndicator.Unwrap())
}
