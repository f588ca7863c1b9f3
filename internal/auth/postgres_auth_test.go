package auth

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// testAPIKey is the raw API key used in tests. Must start with "gov_" and be >= 8 chars.
const testAPIKey = "gov_test_valid_key_1234567890abcdef"

// testHash returns a bcrypt hash of testAPIKey using MinCost (fast for tests).
func testHash(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testAPIKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to generate bcrypt hash: %v", err)
	}
	return string(hash)
}

// mockStore implements ClientStore for testing.
type mockStore struct {
	row       *clientRow
	err       error
	callCount atomic.Int32
}

func (m *mockStore) LookupByPrefix(_ context.Context, _ string) (*clientRow, error) {
	m.callCount.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.row, nil
}

func TestPostgresAuth_CacheMiss_ValidKey(t *testing.T) {
	store := &mockStore{
		row: &clientRow{
			ClientID:   "client-abc",
			APIKeyHash: testHash(t),
			Active:     true,
		},
	}
	cache := NewAuthCache(1 * time.Minute)
	a := newPostgresAuthenticatorWithStore(store, cache, zap.NewNop())

	client, err := a.Authenticate(authedRequest("Bearer " + testAPIKey))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if client.ClientID != "client-abc" {
		t.Errorf("expected client-abc, got %s", client.ClientID)
	}
	if store.callCount.Load() != 1 {
		t.Errorf("expected 1 DB call, got %d", store.callCount.Load())
	}
}

func TestPostgresAuth_CacheHit_NoDBCall(t *testing.T) {
	store := &mockStore{
		row: &clientRow{
			ClientID:   "client-abc",
			APIKeyHash: testHash(t),
			Active:     true,
		},
	}
	cache := NewAuthCache(1 * time.Minute)
	a := newPostgresAuthenticatorWithStore(store, cache, zap.NewNop())

	// First call — cache miss, hits DB
	if _, err := a.Authenticate(authedRequest("Bearer " + testAPIKey)); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if store.callCount.Load() != 1 {
		t.Fatalf("expected 1 DB call after first auth, got %d", store.callCount.Load())
	}

	// Second call — cache hit, no DB call
	client, err := a.Authenticate(authedRequest("Bearer " + testAPIKey))
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if store.callCount.Load() != 1 {
		t.Errorf("expected still 1 DB call (cache hit), got %d", store.callCount.Load())
	}
	if client.ClientID != "client-abc" {
		t.Errorf("expected client-abc from cache, got %s", client.ClientID)
	}
}

func TestPostgresAuth_WrongKey_Rejected(t *testing.T) {
	store := &mockStore{
		row: &clientRow{
			ClientID:   "client-abc",
			APIKeyHash: testHash(t), // Hash of testAPIKey
			Active:     true,
		},
	}
	cache := NewAuthCache(1 * time.Minute)
	a := newPostgresAuthenticatorWithStore(store, cache, zap.NewNop())

	_, err := a.Authenticate(authedRequest("Bearer gov_wrong_key_doesnt_match_hash"))
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("expected ErrInvalidAPIKey, got: %v", err)
	}
}

func TestPostgresAuth_InactiveClient_Rejected(t *testing.T) {
	store := &mockStore{
		row: &clientRow{
			ClientID:   "client-abc",
			APIKeyHash: testHash(t),
			Active:     false,
		},
	}
	cache := NewAuthCache(1 * time.Minute)
	a := newPostgresAuthenticatorWithStore(store, cache, zap.NewNop())

	_, err := a.Authenticate(authedRequest("Bearer " + testAPIKey))
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("expected ErrInvalidAPIKey for inactive client, got: %v", err)
	}
}

func TestPostgresAuth_ClientNotFound(t *testing.T) {
	// The real sqlClientStore converts sql.ErrNoRows → ErrInvalidAPIKey.
	// The mock simulates that behavior.
	store := &mockStore{err: ErrInvalidAPIKey}
	cache := NewAuthCache(1 * time.Minute)
	a := newPostgresAuthenticatorWithStore(store, cache, zap.NewNop())

	_, err := a.Authenticate(authedRequest("Bearer " + testAPIKey))
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("expected ErrInvalidAPIKey, got: %v", err)
	}
}

func TestPostgresAuth_DBDown_ReturnsUnavailable(t *testing.T) {
	store := &mockStore{err: errors.New("connection refused")}
	cache := NewAuthCache(1 * time.Minute)
	a := newPostgresAuthenticatorWithStore(store, cache, zap.NewNop())

	_, err := a.Authenticate(authedRequest("Bearer " + testAPIKey))
	if !errors.Is(err, ErrAuthUnavailable) {
		t.Errorf("expected ErrAuthUnavailable, got: %v", err)
	}
}

func TestPostgresAuth_ShortKey_Rejected(t *testing.T) {
	store := &mockStore{}
	cache := NewAuthCache(1 * time.Minute)
	a := newPostgresAuthenticatorWithStore(store, cache, zap.NewNop())

	_, err := a.Authenticate(authedRequest("Bearer gov_x"))
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("expected ErrInvalidAPIKey for short key, got: %v", err)
	}
	if store.callCount.Load() != 0 {
		t.Error("DB should not be called for a key shorter than the prefix")
	}
}

func TestPostgresAuth_MissingAPIKey(t *testing.T) {
	store := &mockStore{}
	cache := NewAuthCache(1 * time.Minute)
	a := newPostgresAuthenticatorWithStore(store, cache, zap.NewNop())

	_, err := a.Authenticate(authedRequest(""))
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got: %v", err)
	}
	if store.callCount.Load() != 0 {
		t.Error("DB should not be called when API key is missing")
	}
}

func TestPostgresAuth_StaleHit_ServesStaleAndRefreshes(t *testing.T) {
	hash := testHash(t)
	store := &mockStore{
		row: &clientRow{
			ClientID:   "client-old",
			APIKeyHash: hash,
			Active:     true,
		},
	}
	cache := NewAuthCache(1 * time.Millisecond) // Very short TTL
	a := newPostgresAuthenticatorWithStore(store, cache, zap.NewNop())

	// First call — cache miss
	client, err := a.Authenticate(authedRequest("Bearer " + testAPIKey))
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if client.ClientID != "client-old" {
		t.Fatalf("expected client-old, got %s", client.ClientID)
	}

	// Wait for cache to expire
	time.Sleep(5 * time.Millisecond)

	// Update what the store returns so we can verify refresh happened
	store.row = &clientRow{
		ClientID:   "client-new",
		APIKeyHash: hash,
		Active:     true,
	}

	// Second call — stale hit, returns old value immediately
	client2, err := a.Authenticate(authedRequest("Bearer " + testAPIKey))
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if client2.ClientID != "client-old" {
		t.Errorf("stale hit should return the old client, got %s", client2.ClientID)
	}

	// Wait for background refresh to complete
	time.Sleep(200 * time.Millisecond)

	// Third call — should now have the refreshed value
	client3, err := a.Authenticate(authedRequest("Bearer " + testAPIKey))
	if err != nil {
		t.Fatalf("third call failed: %v", err)
	}
	if client3.ClientID != "client-new" {
		t.Errorf("expected refreshed client-new, got %s", client3.ClientID)
	}
}

// Verify the interface is satisfied at compile time.
var _ Authenticator = (*PostgresAuthenticator)(nil)
var _ ClientStore = (*sqlClientStore)(nil)
