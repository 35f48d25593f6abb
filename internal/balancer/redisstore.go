package balancer

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSessionStore is the distributed alternative to SegmentedSessionStore,
// for gateways running multiple replicas that need to share sticky-session
// bindings. It is grounded on the teacher's Redis usage in
// internal/ratelimit/rpm.go: same client type, same graceful-degradation
// posture on Redis errors (a balancer that can't reach its session store
// falls back to "no session", not to an error, since re-selecting an
// instance is always safe).
type RedisSessionStore struct {
	rdb    *redis.Client
	keyPfx string
	// ctxTimeout bounds every Redis round trip so a slow/unreachable Redis
	// never stalls request handling beyond a bounded amount.
	ctxTimeout time.Duration
}

// NewRedisSessionStore wraps an existing client. keyPrefix namespaces keys,
// e.g. "llmcore:" in a shared Redis instance.
func NewRedisSessionStore(rdb *redis.Client, keyPrefix string) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, keyPfx: keyPrefix, ctxTimeout: 250 * time.Millisecond}
}

func (r *RedisSessionStore) key(providerType, apiKeyID string) string {
	var b strings.Builder
	b.WriteString(r.keyPfx)
	b.WriteString("sess:")
	b.WriteString(providerType)
	b.WriteByte(':')
	b.WriteString(apiKeyID)
	return b.String()
}

func (r *RedisSessionStore) withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.ctxTimeout)
}

func (r *RedisSessionStore) Get(providerType, apiKeyID string) (Session, bool) {
	ctx, cancel := r.withTimeout()
	defer cancel()

	name, err := r.rdb.Get(ctx, r.key(providerType, apiKeyID)).Result()
	if err != nil {
		// Covers redis.Nil (no binding) and any transport error; in both
		// cases the caller proceeds as if no session existed.
		return Session{}, false
	}
	return Session{InstanceName: name, LastAccess: time.Now()}, true
}

func (r *RedisSessionStore) Touch(providerType, apiKeyID string, now time.Time) {
	ctx, cancel := r.withTimeout()
	defer cancel()
	// Sliding TTL refresh; Redis's native expiry replaces the explicit
	// sweeper for this backend (see Sweep).
	r.rdb.Expire(ctx, r.key(providerType, apiKeyID), SessionTTL)
}

func (r *RedisSessionStore) Set(providerType, apiKeyID, instanceName string, now time.Time) {
	ctx, cancel := r.withTimeout()
	defer cancel()
	r.rdb.Set(ctx, r.key(providerType, apiKeyID), instanceName, SessionTTL)
}

func (r *RedisSessionStore) Delete(providerType, apiKeyID string) {
	ctx, cancel := r.withTimeout()
	defer cancel()
	r.rdb.Del(ctx, r.key(providerType, apiKeyID))
}

// Sweep is a no-op for the Redis backend: every key carries its own TTL, so
// expiry is handled by the server rather than a periodic scan.
func (r *RedisSessionStore) Sweep(now time.Time) {}
