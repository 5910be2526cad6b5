package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "hemogrid/pkg/domain-errors"
	"hemogrid/pkg/platform/sentinel"
)

func TestIsRetryable(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "55P03"} {
		err := fmt.Errorf("update request: %w", &pgconn.PgError{Code: code})
		assert.True(t, IsRetryable(err), code)
	}
	assert.False(t, IsRetryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestClassifyKeepsChain(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "40P01"}
	wrapped := dErrors.Wrap(pgErr, dErrors.CodeInternal, "failed to lock request")

	err := classify(wrapped)
	require.ErrorIs(t, err, sentinel.ErrUnavailable)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))

	plain := errors.New("boom")
	assert.Same(t, plain, classify(plain))
}

func TestUniqueViolation(t *testing.T) {
	name, ok := UniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "donations_request_key",
	}))
	require.True(t, ok)
	assert.Equal(t, "donations_request_key", name)

	_, ok = UniqueViolation(errors.New("x"))
	assert.False(t, ok)
}
