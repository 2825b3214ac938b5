package redisadapter

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) *PendingCountCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewPendingCountCache(client)
}

func TestGetPendingCountMissingSnapshot(t *testing.T) {
	cache := newTestCache(t)

	_, ok, err := cache.GetPendingCount(context.Background())
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ok {
		t.Fatalf("expected no snapshot before first set")
	}
}

func TestSetAndGetPendingCount(t *testing.T) {
	cache := newTestCache(t)

	if err := cache.SetPendingCount(context.Background(), 7); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	count, ok, err := cache.GetPendingCount(context.Background())
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok || count != 7 {
		t.Fatalf("expected snapshot 7, got %d (ok=%v)", count, ok)
	}

	if err := cache.SetPendingCount(context.Background(), 0); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	count, ok, err = cache.GetPendingCount(context.Background())
	if err != nil {
		t.Fatalf("get after overwrite failed: %v", err)
	}
	if !ok || count != 0 {
		t.Fatalf("expected snapshot 0, got %d (ok=%v)", count, ok)
	}
}
