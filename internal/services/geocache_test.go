package services

import (
	"fmt"
	"testing"
	"time"

	"civicfix-api/internal/models"
)

func TestGeoCacheGetSet(t *testing.T) {
	cache := NewGeoCache(time.Hour, 100, 0)

	if _, ok := cache.Get("39.7684,-89.6502"); ok {
		t.Error("empty cache should miss")
	}

	cache.Set("39.7684,-89.6502", "Springfield, USA")
	got, ok := cache.Get("39.7684,-89.6502")
	if !ok || got != "Springfield, USA" {
		t.Errorf("Get = (%q, %t), want cached address", got, ok)
	}
}

func TestGeoCacheTTLExpiry(t *testing.T) {
	cache := NewGeoCache(time.Hour, 100, 0)

	cache.Set("stale", "Old Address")
	// Age the entry past the TTL by hand.
	cache.mu.Lock()
	cache.entries["stale"] = models.CacheEntry{
		Address:   "Old Address",
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}
	cache.mu.Unlock()

	if _, ok := cache.Get("stale"); ok {
		t.Error("expired entry must read as a miss")
	}
}

func TestGeoCacheEvictsOldestOnOverflow(t *testing.T) {
	cache := NewGeoCache(time.Hour, 10, 0)

	for i := 0; i < 11; i++ {
		cache.Set(fmt.Sprintf("key-%d", i), "addr")
	}

	// Overflowing by one drops the overflow plus 10% of the limit: the two
	// oldest entries go, the rest stay.
	if got := cache.Len(); got != 9 {
		t.Errorf("Len after overflow = %d, want 9", got)
	}
	for _, key := range []string{"key-0", "key-1"} {
		if _, ok := cache.Get(key); ok {
			t.Errorf("%s should have been evicted first", key)
		}
	}
	for i := 2; i < 11; i++ {
		if _, ok := cache.Get(fmt.Sprintf("key-%d", i)); !ok {
			t.Errorf("key-%d should have survived eviction", i)
		}
	}
}

func TestGeoCacheSetExistingKeyDoesNotGrow(t *testing.T) {
	cache := NewGeoCache(time.Hour, 10, 0)

	for i := 0; i < 20; i++ {
		cache.Set("same", fmt.Sprintf("addr-%d", i))
	}

	if got := cache.Len(); got != 1 {
		t.Errorf("Len after repeated Set of one key = %d, want 1", got)
	}
	if got, _ := cache.Get("same"); got != "addr-19" {
		t.Errorf("latest value should win, got %q", got)
	}
}

func TestGeoCacheSweep(t *testing.T) {
	cache := NewGeoCache(time.Hour, 100, 0)

	cache.Set("fresh", "New Address")
	cache.Set("stale", "Old Address")
	cache.mu.Lock()
	cache.entries["stale"] = models.CacheEntry{
		Address:   "Old Address",
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}
	cache.mu.Unlock()

	cache.Sweep()

	if got := cache.Len(); got != 1 {
		t.Errorf("Len after sweep = %d, want 1", got)
	}
	if _, ok := cache.Get("fresh"); !ok {
		t.Error("sweep must keep entries within TTL")
	}
}

func TestGeoCacheEvictionSkipsSweptSlots(t *testing.T) {
	cache := NewGeoCache(time.Hour, 4, 0)

	for i := 0; i < 4; i++ {
		cache.Set(fmt.Sprintf("key-%d", i), "addr")
	}
	// Expire and sweep the two oldest so their order slots go stale.
	cache.mu.Lock()
	for i := 0; i < 2; i++ {
		key := fmt.Sprintf("key-%d", i)
		cache.entries[key] = models.CacheEntry{Address: "addr", CreatedAt: time.Now().Add(-2 * time.Hour)}
	}
	cache.mu.Unlock()
	cache.Sweep()

	// Refill past the bound; eviction must step over the swept slots and
	// still land on live entries.
	for i := 4; i < 8; i++ {
		cache.Set(fmt.Sprintf("key-%d", i), "addr")
	}

	if got := cache.Len(); got > 4 {
		t.Errorf("Len = %d, want at most the configured bound of 4", got)
	}
	if _, ok := cache.Get("key-7"); !ok {
		t.Error("newest entry should survive eviction")
	}
}
