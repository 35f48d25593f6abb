// Package cache implements response caching for the gateway's exact-match
// cache: identical chat requests (same raw request body, per httpapi's
// cacheKey) within the configured TTL are served without an upstream call.
//
// Two backends implement Cache:
//   - ExactCache  — Redis-backed, shares entries across gateway replicas.
//   - MemoryCache — in-process TTL cache; no external dependency, but
//     entries aren't visible to other replicas. Suited to a single-instance
//     deployment or local development.
package cache

import (
	"context"
	"time"
)

// Cache stores serialized chat responses keyed by an opaque string the
// caller derives from the request (httpapi.cacheKey hashes the raw request
// body). Implementations are not responsible for key derivation.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
