package balancer

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) *RedisSessionStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisSessionStore(client, "test:")
}

func TestRedisSessionStore_SetGetDelete(t *testing.T) {
	store := newTestRedisStore(t)

	if _, ok := store.Get("openai", "key-1"); ok {
		t.Fatal("expected no session before Set")
	}

	store.Set("openai", "key-1", "primary", time.Now())
	sess, ok := store.Get("openai", "key-1")
	if !ok {
		t.Fatal("expected a session after Set")
	}
	if sess.InstanceName != "primary" {
		t.Errorf("InstanceName = %q, want primary", sess.InstanceName)
	}

	store.Delete("openai", "key-1")
	if _, ok := store.Get("openai", "key-1"); ok {
		t.Fatal("expected session to be gone after Delete")
	}
}

func TestRedisSessionStore_GetOnUnreachableRedisIsGraceful(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()
	store := NewRedisSessionStore(client, "test:")
	store.ctxTimeout = 50 * time.Millisecond

	if _, ok := store.Get("openai", "key-1"); ok {
		t.Fatal("expected Get against an unreachable Redis to report no session, not error out")
	}
}
