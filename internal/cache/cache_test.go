package cache

import (
	"context"
	"testing"
	"time"
)

func TestLRUCache_Eviction(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache[string](3, time.Hour)

	c.Set(ctx, "key1", "value1")
	c.Set(ctx, "key2", "value2")
	c.Set(ctx, "key3", "value3")
	c.Get(ctx, "key1") // key2 becomes the oldest
	c.Set(ctx, "key4", "value4")

	if _, found, _ := c.Get(ctx, "key2"); found {
		t.Error("key2 should have been evicted")
	}
	for _, k := range []string{"key1", "key3", "key4"} {
		if _, found, _ := c.Get(ctx, k); !found {
			t.Errorf("%s should still be cached", k)
		}
	}
	if c.Size() != 3 {
		t.Errorf("expected size 3, got %d", c.Size())
	}
}

func TestLRUCache_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[int](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set(ctx, "a", 1)
	c.Set(ctx, "b", 2)
	if v, found, _ := c.Get(ctx, "a"); !found || v != 1 {
		t.Fatalf("expected a=1, got %d (found=%v)", v, found)
	}

	now = now.Add(2 * time.Minute)
	if _, found, _ := c.Get(ctx, "a"); found {
		t.Error("a should have expired")
	}
	if removed := c.CleanExpired(); removed != 1 {
		t.Errorf("expected 1 expired entry to be cleaned, got %d", removed)
	}
	if c.Size() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Size())
	}
}

func TestLRUCache_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache[string](10, time.Hour)
	c.Set(ctx, "a", "1")
	c.Set(ctx, "b", "2")

	c.Delete(ctx, "a")
	if _, found, _ := c.Get(ctx, "a"); found {
		t.Error("a should be deleted")
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
	if c.Size() != 0 {
		t.Errorf("expected empty cache after Clear, got %d", c.Size())
	}
	c.Set(ctx, "c", "3")
	if _, found, _ := c.Get(ctx, "c"); !found {
		t.Error("cache should be usable after Clear")
	}
}

func TestManager_StartStop(t *testing.T) {
	c := NewLRUCache[string](10, time.Nanosecond)
	c.Set(context.Background(), "a", "1")

	m := NewManager(nil)
	m.Register(c)
	m.Register("not a cache")
	if len(m.caches) != 1 {
		t.Fatalf("expected 1 registered cache, got %d", len(m.caches))
	}

	m.StartCleanup(5 * time.Millisecond)
	deadline := time.Now().Add(time.Second)
	for c.Size() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()

	if c.Size() != 0 {
		t.Error("expired entry should have been cleaned by the manager")
	}
}
