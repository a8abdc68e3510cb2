package gocardless

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"koru/internal/infrastructure/cache"
)

type tokenServer struct {
	newCalls      atomic.Int32
	refreshCalls  atomic.Int32
	accessExpires int
	refreshStatus int
	refreshBody   string
	newStatus     int
	lastRefresh   atomic.Value
}

func (s *tokenServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/token/new/", func(w http.ResponseWriter, r *http.Request) {
		s.newCalls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "id", body["secret_id"])
		assert.Equal(t, "key", body["secret_key"])

		if s.newStatus != 0 {
			w.WriteHeader(s.newStatus)
			w.Write([]byte(`{"detail":"Authentication failed"}`))
			return
		}
		json.NewEncoder(w).Encode(TokenResponse{
			Access:         "access-new",
			AccessExpires:  s.accessExpires,
			Refresh:        "refresh-new",
			RefreshExpires: 2592000,
		})
	})
	mux.HandleFunc("/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		s.refreshCalls.Add(1)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		s.lastRefresh.Store(body["refresh"])

		if s.refreshStatus != 0 {
			w.WriteHeader(s.refreshStatus)
			w.Write([]byte(`{"detail":"Token is invalid or expired"}`))
			return
		}
		if s.refreshBody != "" {
			w.Write([]byte(s.refreshBody))
			return
		}
		json.NewEncoder(w).Encode(RefreshResponse{Access: "access-refreshed", AccessExpires: 86400})
	})
	return mux
}

func newTestTokenSource(t *testing.T, ts *tokenServer) (*TokenSource, *cache.MemoryStore) {
	t.Helper()
	server := httptest.NewServer(ts.handler(t))
	t.Cleanup(server.Close)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := cache.NewMemoryStoreWithClock(func() time.Time { return now })
	return NewTokenSource(server.URL, "id", "key", store, nil), store
}

func TestTokenSource_IssuesAndCachesNewToken(t *testing.T) {
	ts := &tokenServer{accessExpires: 86400}
	source, store := newTestTokenSource(t, ts)
	ctx := context.Background()

	token, err := source.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-new", token)

	ttl, ok := store.TTL(accessTokenKey)
	require.True(t, ok)
	assert.Equal(t, 86400*time.Second-ExpiryBuffer, ttl)

	ttl, ok = store.TTL(refreshTokenKey)
	require.True(t, ok)
	assert.Equal(t, 2592000*time.Second-ExpiryBuffer, ttl)

	token, err = source.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-new", token)
	assert.Equal(t, int32(1), ts.newCalls.Load())
}

func TestTokenSource_ShortLivedTokenIsNotCached(t *testing.T) {
	ts := &tokenServer{accessExpires: 30}
	source, store := newTestTokenSource(t, ts)
	ctx := context.Background()

	_, err := source.Token(ctx)
	require.NoError(t, err)

	_, ok := store.TTL(accessTokenKey)
	assert.False(t, ok, "token expiring inside the buffer must not be cached")

	// The refresh token was cached, so the second call refreshes instead of re-issuing.
	token, err := source.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-refreshed", token)
	assert.Equal(t, int32(1), ts.newCalls.Load())
	assert.Equal(t, int32(1), ts.refreshCalls.Load())
}

func TestTokenSource_UsesCachedRefreshToken(t *testing.T) {
	ts := &tokenServer{accessExpires: 86400}
	source, store := newTestTokenSource(t, ts)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, refreshTokenKey, "stored-refresh", time.Hour))

	token, err := source.Token(ctx)
	require.NoError(t, err)

	assert.Equal(t, "access-refreshed", token)
	assert.Equal(t, "stored-refresh", ts.lastRefresh.Load())
	assert.Equal(t, int32(0), ts.newCalls.Load())

	cached, err := store.Get(ctx, accessTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "access-refreshed", cached)
}

func TestTokenSource_RejectedRefreshFallsBackToNewToken(t *testing.T) {
	ts := &tokenServer{accessExpires: 86400, refreshStatus: http.StatusUnauthorized}
	source, store := newTestTokenSource(t, ts)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, refreshTokenKey, "dead-refresh", time.Hour))

	token, err := source.Token(ctx)
	require.NoError(t, err)

	assert.Equal(t, "access-new", token)
	assert.Equal(t, int32(1), ts.refreshCalls.Load())
	assert.Equal(t, int32(1), ts.newCalls.Load())

	cached, err := store.Get(ctx, refreshTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "refresh-new", cached)
}

func TestTokenSource_MalformedRefreshResponseKeepsRefreshToken(t *testing.T) {
	ts := &tokenServer{accessExpires: 86400, refreshBody: `{"access": `}
	source, store := newTestTokenSource(t, ts)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, refreshTokenKey, "good-refresh", time.Hour))

	_, err := source.Token(ctx)
	var authErr *ProviderAuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusOK, authErr.StatusCode)
	assert.Equal(t, int32(0), ts.newCalls.Load())

	cached, err := store.Get(ctx, refreshTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "good-refresh", cached)
}

func TestTokenSource_RejectedCredentials(t *testing.T) {
	ts := &tokenServer{newStatus: http.StatusUnauthorized}
	source, _ := newTestTokenSource(t, ts)

	_, err := source.Token(context.Background())
	require.Error(t, err)

	var authErr *ProviderAuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.Contains(t, authErr.Body, "Authentication failed")
}

func TestTokenSource_UnreachableProvider(t *testing.T) {
	store := cache.NewMemoryStore()
	source := NewTokenSource("http://127.0.0.1:1", "id", "key", store, nil)

	_, err := source.Token(context.Background())

	var authErr *ProviderAuthError
	require.True(t, errors.As(err, &authErr))
	assert.Zero(t, authErr.StatusCode)
	assert.Error(t, authErr.Err)
}
