package marketplace

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

func newTestStore(t *testing.T, ttl time.Duration) (*StateStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStateStore(client, ttl), mr
}

func TestStateStoreTakeIsSingleUse(t *testing.T) {
	store, _ := newTestStore(t, time.Minute)
	ctx := context.Background()

	state, err := store.Create(ctx, "u1")
	require.NoError(t, err)
	require.NotEmpty(t, state.State)
	require.NotEmpty(t, state.CodeVerifier)
	require.Equal(t, challenge(state.CodeVerifier), state.CodeChallenge)

	taken, err := store.Take(ctx, state.State)
	require.NoError(t, err)
	require.Equal(t, "u1", taken.UserID)
	require.Equal(t, state.CodeVerifier, taken.CodeVerifier)

	_, err = store.Take(ctx, state.State)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStateStoreExpires(t *testing.T) {
	store, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	state, err := store.Create(ctx, "u1")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	_, err = store.Take(ctx, state.State)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStateStoreRequiresUser(t *testing.T) {
	store, _ := newTestStore(t, time.Minute)
	_, err := store.Create(context.Background(), "")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestChallengeKnownVector(t *testing.T) {
	// RFC 7636 appendix B
	require.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", challenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"))
}
