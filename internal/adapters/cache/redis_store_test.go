package cache

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/ports"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStore(client)
}

func TestRedisStoreSetGetDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mr, store := newTestRedis(t)

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ports.ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := store.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("get = %q, %v", got, err)
	}
	if ttl := mr.TTL("k"); ttl != time.Minute {
		t.Fatalf("expected 1m ttl, got %s", ttl)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("k") {
		t.Fatalf("expected key to be deleted")
	}
}

func TestRedisStoreIncrementWithinSetsWindowOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mr, store := newTestRedis(t)

	n, err := store.IncrementWithin(ctx, "login:fail:bob@example.com", 15*time.Minute)
	if err != nil || n != 1 {
		t.Fatalf("first increment = %d, %v", n, err)
	}
	mr.FastForward(10 * time.Minute)

	n, err = store.IncrementWithin(ctx, "login:fail:bob@example.com", 15*time.Minute)
	if err != nil || n != 2 {
		t.Fatalf("second increment = %d, %v", n, err)
	}
	if ttl := mr.TTL("login:fail:bob@example.com"); ttl != 5*time.Minute {
		t.Fatalf("expected window not to be extended, ttl=%s", ttl)
	}

	mr.FastForward(5 * time.Minute)
	if mr.Exists("login:fail:bob@example.com") {
		t.Fatalf("expected counter to expire with the window")
	}
}

func TestRedisStoreIncrementWithinRepairsMissingTTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mr, store := newTestRedis(t)

	if _, err := store.Increment(ctx, "counter"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	n, err := store.IncrementWithin(ctx, "counter", time.Minute)
	if err != nil || n != 2 {
		t.Fatalf("increment within = %d, %v", n, err)
	}
	if ttl := mr.TTL("counter"); ttl != time.Minute {
		t.Fatalf("expected ttl to be attached, got %s", ttl)
	}
}

func TestRedisStoreTakeIsSingleUse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, store := newTestRedis(t)

	if err := store.Set(ctx, "verify", []byte("1"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := store.Take(ctx, "verify")
	if err != nil || string(got) != "1" {
		t.Fatalf("take = %q, %v", got, err)
	}
	if _, err := store.Take(ctx, "verify"); !errors.Is(err, ports.ErrCacheMiss) {
		t.Fatalf("expected second take to miss, got %v", err)
	}
}

func TestRedisStoreDeleteIfEquals(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mr, store := newTestRedis(t)

	if err := store.Set(ctx, "reset", []byte("digest-a"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	ok, err := store.DeleteIfEquals(ctx, "reset", []byte("digest-b"))
	if err != nil || ok {
		t.Fatalf("mismatch delete = %v, %v", ok, err)
	}
	if !mr.Exists("reset") {
		t.Fatalf("mismatch must not delete the key")
	}
	ok, err = store.DeleteIfEquals(ctx, "reset", []byte("digest-a"))
	if err != nil || !ok {
		t.Fatalf("match delete = %v, %v", ok, err)
	}
	ok, err = store.DeleteIfEquals(ctx, "reset", []byte("digest-a"))
	if err != nil || ok {
		t.Fatalf("replay delete = %v, %v", ok, err)
	}
}

func TestRedisStoreSetMembership(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mr, store := newTestRedis(t)

	if err := store.AddToSet(ctx, "auth:user:1", time.Hour, "a", "b"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.AddToSet(ctx, "auth:user:1", time.Hour, "b", "c"); err != nil {
		t.Fatalf("add: %v", err)
	}
	members, err := store.MembersOf(ctx, "auth:user:1")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	sort.Strings(members)
	if len(members) != 3 || members[0] != "a" || members[2] != "c" {
		t.Fatalf("unexpected members: %v", members)
	}
	if ttl := mr.TTL("auth:user:1"); ttl != time.Hour {
		t.Fatalf("expected set ttl, got %s", ttl)
	}
	if err := store.RemoveFromSet(ctx, "auth:user:1", "a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	members, _ = store.MembersOf(ctx, "auth:user:1")
	if len(members) != 2 {
		t.Fatalf("expected 2 members after removal, got %v", members)
	}
}
