package calculations

import (
	"testing"
	"time"
)

func TestInMemoryTemplatesCache(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewInMemoryTemplatesCache(CacheConfig{TTL: time.Minute})
	cache.now = func() time.Time { return now }

	if cache.IsValid() || cache.Get() != nil {
		t.Fatal("empty cache should be invalid")
	}

	cache.Set([]*Template{electricalTemplate()})
	if !cache.IsValid() {
		t.Fatal("cache should be valid after Set()")
	}

	got := cache.Get()
	if len(got) != 1 {
		t.Fatalf("Get() returned %d templates, want 1", len(got))
	}
	got[0].Name = "changed"
	if cache.Get()[0].Name == "changed" {
		t.Error("Get() should return copies")
	}

	now = now.Add(2 * time.Minute)
	if cache.IsValid() || cache.Get() != nil {
		t.Error("cache should expire after TTL")
	}

	cache.Set([]*Template{electricalTemplate()})
	cache.Invalidate()
	if cache.IsValid() {
		t.Error("Invalidate() should clear the cache")
	}
}

func TestInMemoryTemplatesCacheWithoutTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewInMemoryTemplatesCache(CacheConfig{})
	cache.now = func() time.Time { return now }

	cache.Set([]*Template{beamTemplate()})
	now = now.Add(24 * time.Hour)
	if !cache.IsValid() {
		t.Error("a zero TTL should never expire")
	}
}
