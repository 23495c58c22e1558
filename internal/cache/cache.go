// Package cache holds the key/value stores that front the measurement API.
package cache

import (
	"context"
	"strings"
	"time"
)

// Store is a byte-valued cache with per-entry expiry. A miss is reported as
// found=false with a nil error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Purger is implemented by stores that need expired entries swept explicitly.
type Purger interface {
	Purge(ctx context.Context) (int, error)
}

// DefaultKeyPrefix namespaces per-day emission entries.
const DefaultKeyPrefix = "emissions:day"

// DayKey builds the cache key for one (domain, date) pair.
func DayKey(prefix, domain, date string) string {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return strings.Join([]string{prefix, domain, date}, ":")
}
