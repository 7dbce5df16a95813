package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyScope namespaces keys so the same client key can be reused across endpoints.
type IdempotencyScope string

// ScopeManualItem guards manual invoice item creation.
const ScopeManualItem IdempotencyScope = "billing.manual_item"

// ErrIdempotencyConflict indicates the key was already claimed in its scope.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// IdempotencyStore keeps claimed request keys in Postgres.
type IdempotencyStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool, now: time.Now}
}

// Claim records key under scope. A key that is already present yields ErrIdempotencyConflict.
func (s *IdempotencyStore) Claim(ctx context.Context, scope IdempotencyScope, key string) error {
	if s == nil || s.pool == nil {
		return errors.New("idempotency store not initialised")
	}
	if scope == "" || key == "" {
		return fmt.Errorf("%w: idempotency scope and key required", ErrValidation)
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO idempotency_keys (scope, key, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (scope, key) DO NOTHING`, string(scope), key, s.now().UTC())
	if err != nil {
		return fmt.Errorf("idempotency: claim %s/%s: %w", scope, key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrIdempotencyConflict, key)
	}
	return nil
}

// Release frees a claimed key after the guarded operation failed, so the client may retry.
func (s *IdempotencyStore) Release(ctx context.Context, scope IdempotencyScope, key string) error {
	if s == nil || s.pool == nil || key == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE scope = $1 AND key = $2`, string(scope), key)
	return err
}

// Purge drops keys older than retention and reports how many were removed.
func (s *IdempotencyStore) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, nil
	}
	cutoff := s.now().UTC().Add(-retention)
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("idempotency: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}
