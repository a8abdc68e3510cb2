// Package cache provides the key/value-with-TTL store used for provider
// credentials, institution lists and pending requisitions.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store is an expiring string cache. Implementations must be safe for
// concurrent use; they are shared across worker goroutines.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key for ttl. A non-positive ttl is rejected
	// with ErrInvalidTTL so callers never write entries that would outlive
	// the value they hold.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ErrInvalidTTL is returned by Set for a zero or negative ttl.
var ErrInvalidTTL = errors.New("cache ttl must be positive")
