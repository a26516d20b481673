package cache

import (
	"strings"
	"testing"
	"time"
)

func TestGetSet(t *testing.T) {
	c := New[string, int](10, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Set("a", 1)
	v, ok := c.Get("a")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if v != 1 {
		t.Errorf("expected 1, got %d", v)
	}
}

func TestExpiry(t *testing.T) {
	c := New[string, string](10, 10*time.Millisecond)
	c.Set("k", "v")

	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit before TTL")
	}

	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after TTL elapsed")
	}
}

func TestRemove(t *testing.T) {
	c := New[string, int](10, time.Minute)
	c.Set("a", 1)
	c.Remove("a")

	if _, ok := c.Get("a"); ok {
		t.Error("expected miss after Remove")
	}
}

func TestRemoveFunc(t *testing.T) {
	c := New[string, int](10, time.Minute)
	c.Set("tag:alpha|beta", 1)
	c.Set("tag:alpha|gamma", 2)
	c.Set("tag:delta|epsilon", 3)

	c.RemoveFunc(func(k string) bool {
		return strings.Contains(k, "alpha")
	})

	if _, ok := c.Get("tag:alpha|beta"); ok {
		t.Error("expected alpha|beta removed")
	}
	if _, ok := c.Get("tag:alpha|gamma"); ok {
		t.Error("expected alpha|gamma removed")
	}
	if _, ok := c.Get("tag:delta|epsilon"); !ok {
		t.Error("expected delta|epsilon retained")
	}
}

func TestPurge(t *testing.T) {
	c := New[int, int](10, time.Minute)
	for i := 0; i < 5; i++ {
		c.Set(i, i)
	}
	if c.Len() != 5 {
		t.Fatalf("expected 5 entries, got %d", c.Len())
	}

	c.Purge()

	if c.Len() != 0 {
		t.Errorf("expected empty cache after Purge, got %d entries", c.Len())
	}
}

func TestLRUBound(t *testing.T) {
	c := New[int, int](3, time.Minute)
	for i := 0; i < 5; i++ {
		c.Set(i, i)
	}

	if c.Len() > 3 {
		t.Errorf("cache exceeded its bound: %d entries", c.Len())
	}

	// Most recent entries survive eviction.
	if _, ok := c.Get(4); !ok {
		t.Error("expected most recent entry to survive")
	}
}
