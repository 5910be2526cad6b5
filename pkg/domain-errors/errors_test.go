package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches direct error", func(t *testing.T) {
		err := New(CodeNotFound, "request not found")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeConflict))
	})

	t.Run("matches through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("accept: %w", New(CodeConflict, "already accepted"))
		assert.True(t, HasCode(err, CodeConflict))
	})

	t.Run("plain errors have no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, CodeInternal, "failed to load request")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to load request: connection reset", err.Error())
	assert.Nil(t, Wrap(nil, CodeInternal, "unused"))
}

func TestErrorIsComparesCodeAndMessage(t *testing.T) {
	err := New(CodeUnauthorized, "token has expired")

	require.ErrorIs(t, err, New(CodeUnauthorized, "token has expired"))
	require.ErrorIs(t, err, &Error{Code: CodeUnauthorized})
	require.NotErrorIs(t, err, New(CodeUnauthorized, "invalid token"))
}

func TestFieldOf(t *testing.T) {
	err := NewField(CodeValidation, "quantity", "quantity must be positive")
	assert.Equal(t, "quantity", FieldOf(err))
	assert.Equal(t, "", FieldOf(New(CodeValidation, "x")))
}
