// Package marketplace holds the boundary to external sales channels: OAuth
// state kept between authorise and callback, and order ingestion.
package marketplace

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

const statePrefix = "marketplace:oauth:state:"

// OAuthState is the pending authorisation of one user.
type OAuthState struct {
	State         string    `json:"state"`
	UserID        string    `json:"user_id"`
	CodeVerifier  string    `json:"code_verifier"`
	CodeChallenge string    `json:"code_challenge"`
	CreatedAt     time.Time `json:"created_at"`
}

// StateStore keeps OAuth states in Redis with a TTL. Each state can be taken once.
type StateStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewStateStore constructs the store.
func NewStateStore(client redis.UniversalClient, ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateStore{client: client, ttl: ttl}
}

// Create issues a new state with a PKCE verifier for userID.
func (s *StateStore) Create(ctx context.Context, userID string) (OAuthState, error) {
	if s == nil || s.client == nil {
		return OAuthState{}, errors.New("marketplace: state store not initialised")
	}
	if userID == "" {
		return OAuthState{}, fmt.Errorf("%w: user required", shared.ErrValidation)
	}
	verifier, err := newVerifier()
	if err != nil {
		return OAuthState{}, err
	}
	state := OAuthState{
		State:         uuid.NewString(),
		UserID:        userID,
		CodeVerifier:  verifier,
		CodeChallenge: challenge(verifier),
		CreatedAt:     time.Now().UTC(),
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return OAuthState{}, err
	}
	if err := s.client.Set(ctx, statePrefix+state.State, payload, s.ttl).Err(); err != nil {
		return OAuthState{}, fmt.Errorf("marketplace: store state: %w", err)
	}
	return state, nil
}

// Take returns and deletes a state. Unknown or expired states are not found.
func (s *StateStore) Take(ctx context.Context, state string) (OAuthState, error) {
	if s == nil || s.client == nil {
		return OAuthState{}, errors.New("marketplace: state store not initialised")
	}
	raw, err := s.client.GetDel(ctx, statePrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return OAuthState{}, fmt.Errorf("oauth state: %w", shared.ErrNotFound)
	}
	if err != nil {
		return OAuthState{}, fmt.Errorf("marketplace: take state: %w", err)
	}
	var out OAuthState
	if err := json.Unmarshal(raw, &out); err != nil {
		return OAuthState{}, fmt.Errorf("marketplace: decode state: %w", err)
	}
	return out, nil
}

func newVerifier() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("marketplace: verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// challenge derives the S256 code challenge.
func challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
