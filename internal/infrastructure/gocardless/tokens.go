package gocardless

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"koru/internal/infrastructure/cache"
	"koru/internal/shared/logging"
)

const (
	accessTokenKey  = "gocardless:token"
	refreshTokenKey = "gocardless:refresh_token"
)

// ExpiryBuffer is subtracted from every provider-reported lifetime before a
// token is cached, so a cached token is never handed out in its final minute.
const ExpiryBuffer = 60 * time.Second

// TokenSource hands out provider access tokens, reusing cached ones until
// they are within ExpiryBuffer of expiring.
//
// There is no locking: concurrent callers that all miss the cache will each
// exchange credentials and overwrite each other's entries. The provider
// issues tokens idempotently, so this only costs extra requests.
type TokenSource struct {
	httpClient *http.Client
	baseURL    string
	secretID   string
	secretKey  string
	cache      cache.Store
	logger     *zap.Logger
}

func NewTokenSource(baseURL, secretID, secretKey string, store cache.Store, logger *zap.Logger) *TokenSource {
	return &TokenSource{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		secretID:   secretID,
		secretKey:  secretKey,
		cache:      store,
		logger:     logging.OrNop(logger),
	}
}

// Token returns a usable access token.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	token, err := s.cache.Get(ctx, accessTokenKey)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("failed to read cached access token", zap.Error(err))
	}

	refresh, err := s.cache.Get(ctx, refreshTokenKey)
	switch {
	case err == nil:
		token, err := s.refresh(ctx, refresh)
		if err == nil {
			return token, nil
		}
		var authErr *ProviderAuthError
		if !errors.As(err, &authErr) || authErr.StatusCode < http.StatusBadRequest {
			return "", err
		}
		// The provider rejected the refresh token; start over with a new pair.
		s.logger.Warn("refresh token rejected, requesting new credentials", zap.Int("status", authErr.StatusCode))
		if err := s.cache.Delete(ctx, refreshTokenKey); err != nil {
			s.logger.Warn("failed to drop rejected refresh token", zap.Error(err))
		}
	case !errors.Is(err, cache.ErrMiss):
		s.logger.Warn("failed to read cached refresh token", zap.Error(err))
	}

	return s.issue(ctx)
}

func (s *TokenSource) refresh(ctx context.Context, refresh string) (string, error) {
	var resp RefreshResponse
	if err := s.exchange(ctx, "refresh GoCardless token", "/token/refresh/", map[string]string{"refresh": refresh}, &resp); err != nil {
		return "", err
	}

	s.store(ctx, accessTokenKey, resp.Access, resp.AccessExpires)
	return resp.Access, nil
}

func (s *TokenSource) issue(ctx context.Context) (string, error) {
	body := map[string]string{
		"secret_id":  s.secretID,
		"secret_key": s.secretKey,
	}

	var resp TokenResponse
	if err := s.exchange(ctx, "create GoCardless token", "/token/new/", body, &resp); err != nil {
		return "", err
	}

	s.store(ctx, accessTokenKey, resp.Access, resp.AccessExpires)
	s.store(ctx, refreshTokenKey, resp.Refresh, resp.RefreshExpires)
	return resp.Access, nil
}

func (s *TokenSource) exchange(ctx context.Context, operation, path string, body any, out any) error {
	status, respBody, err := doJSON(ctx, s.httpClient, http.MethodPost, s.baseURL+path, "", body)
	if err != nil {
		return &ProviderAuthError{Operation: operation, Err: err}
	}
	if status < 200 || status > 299 {
		return &ProviderAuthError{Operation: operation, StatusCode: status, Body: string(respBody)}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &ProviderAuthError{Operation: operation, StatusCode: status, Err: err}
	}
	return nil
}

// store caches value for expiresIn seconds minus ExpiryBuffer. Tokens whose
// remaining lifetime is inside the buffer are not cached at all.
func (s *TokenSource) store(ctx context.Context, key, value string, expiresIn int) {
	ttl := time.Duration(expiresIn)*time.Second - ExpiryBuffer
	if ttl <= 0 {
		s.logger.Debug("token lifetime within expiry buffer, not caching",
			zap.String("key", key), zap.Int("expires_in", expiresIn))
		return
	}
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.logger.Warn("failed to cache token", zap.String("key", key), zap.Error(err))
	}
}
