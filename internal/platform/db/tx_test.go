package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

func TestClassifyContention(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "55P03"} {
		err := Classify(fmt.Errorf("update sku: %w", &pgconn.PgError{Code: code}))
		require.ErrorIs(t, err, shared.ErrTransactionConflict, code)
		require.True(t, shared.Retryable(err))
	}
}

func TestClassifyDeadline(t *testing.T) {
	err := Classify(context.DeadlineExceeded)
	require.ErrorIs(t, err, shared.ErrTransactionConflict)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClassifyPassthrough(t *testing.T) {
	require.NoError(t, Classify(nil))
	require.ErrorIs(t, Classify(pgx.ErrNoRows), shared.ErrNotFound)

	plain := errors.New("boom")
	require.Same(t, plain, Classify(plain))

	unique := &pgconn.PgError{Code: "23505"}
	require.False(t, shared.Retryable(Classify(unique)))
}
