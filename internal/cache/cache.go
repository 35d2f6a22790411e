// Package cache defines the cache collaborator consumed by the template read
// path and write-path invalidation. The interface mirrors a redis-style
// key/value store; callers receive it by injection, never through a
// package-level singleton.
package cache

import (
	"context"
	"time"
)

type Cache interface {
	// Get returns the stored blob and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores the blob; a zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// ScanDelete removes every key with the given prefix.
	ScanDelete(ctx context.Context, prefix string) error
}
