package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipamd/internal/domain"
)

func TestTranslateNoRows(t *testing.T) {
	err := translate(pgx.ErrNoRows)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	wrapped := translate(fmt.Errorf("scan subnet: %w", pgx.ErrNoRows))
	assert.ErrorIs(t, wrapped, domain.ErrNotFound)
}

func TestTranslateContentionCodes(t *testing.T) {
	for _, code := range []string{
		codeSerializationFailure,
		codeDeadlockDetected,
		codeLockNotAvailable,
	} {
		err := translate(&pgconn.PgError{Code: code})
		assert.ErrorIs(t, err, domain.ErrContention, "code %s", code)
	}
}

func TestTranslateUniqueViolation(t *testing.T) {
	err := translate(&pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "unique_ip"})
	require.ErrorIs(t, err, domain.ErrConflict)

	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Detail, "unique_ip")
}

func TestTranslatePassesThroughOtherErrors(t *testing.T) {
	cause := errors.New("connection refused")
	assert.Equal(t, cause, translate(cause))

	pgErr := &pgconn.PgError{Code: "42P01"} // undefined table
	assert.Equal(t, error(pgErr), translate(pgErr))
}

func TestTranslateNil(t *testing.T) {
	assert.NoError(t, translate(nil))
}

func TestIsNoRows(t *testing.T) {
	assert.True(t, isNoRows(pgx.ErrNoRows))
	assert.True(t, isNoRows(fmt.Errorf("find ip: %w", pgx.ErrNoRows)))
	assert.False(t, isNoRows(errors.New("boom")))
}
