// Package cache holds short-lived derived values such as the best fee tier of a route.
package cache

import (
	"context"
	"time"
)

// Retention levels.
const (
	Hard    = 7 * 24 * time.Hour
	Medium  = 12 * time.Hour
	Low     = time.Hour
	Instant = time.Minute
)

// Cache is a string key/value store with per-entry expiry.
type Cache interface {
	// Get returns the value and whether it was present and unexpired.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}
