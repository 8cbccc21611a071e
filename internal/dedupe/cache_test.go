// ABOUTME: Tests for the dedupe cache shared by push and polling unread producers.
// ABOUTME: Validates TTL expiration against a fake clock, size limits, eviction and atomicity.

package dedupe

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ZIon2025-x/LinkU1-sub000/internal/clock"
)

func newTestCache(ttl time.Duration, maxSize int) (*Cache, *clock.Fake) {
	clk := clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	return New(ttl, maxSize, WithClock(clk)), clk
}

func TestCache_Check(t *testing.T) {
	cache, _ := newTestCache(5*time.Minute, 100)
	defer cache.Close()

	assert.False(t, cache.Check("never-seen-key"))
	cache.Mark("my-key")
	assert.True(t, cache.Check("my-key"))
}

func TestCache_Check_Expired(t *testing.T) {
	cache, clk := newTestCache(10*time.Second, 100)
	defer cache.Close()

	cache.Mark("expiring-key")
	clk.Advance(9 * time.Second)
	assert.True(t, cache.Check("expiring-key"))

	clk.Advance(time.Second)
	assert.False(t, cache.Check("expiring-key"))
}

func TestCache_Mark_RefreshesTimestamp(t *testing.T) {
	cache, clk := newTestCache(10*time.Second, 100)
	defer cache.Close()

	cache.Mark("refresh-key")
	clk.Advance(6 * time.Second)
	cache.Mark("refresh-key")
	clk.Advance(6 * time.Second)

	assert.True(t, cache.Check("refresh-key"))
}

func TestCache_EvictionOrder(t *testing.T) {
	cache, _ := newTestCache(5*time.Minute, 3)
	defer cache.Close()

	cache.Mark("first")
	cache.Mark("second")
	cache.Mark("third")
	cache.Mark("fourth")

	assert.False(t, cache.Check("first"), "first should be evicted")
	assert.True(t, cache.Check("second"))
	assert.True(t, cache.Check("third"))
	assert.True(t, cache.Check("fourth"))

	cache.Mark("fifth")
	assert.False(t, cache.Check("second"), "second should be evicted")
}

func TestCache_SweepRemovesExpired(t *testing.T) {
	cache, clk := newTestCache(10*time.Second, 100)
	defer cache.Close()

	cache.Mark("a")
	cache.Mark("b")
	assert.Equal(t, 2, cache.size())

	clk.Advance(sweepInterval)
	assert.Equal(t, 0, cache.size(), "sweep should purge expired entries")
}

func TestCache_CheckAndMark(t *testing.T) {
	cache, clk := newTestCache(10*time.Second, 100)
	defer cache.Close()

	assert.False(t, cache.CheckAndMark("k"), "first CheckAndMark should return false")
	assert.True(t, cache.CheckAndMark("k"), "second CheckAndMark should return true")

	clk.Advance(10 * time.Second)
	assert.False(t, cache.CheckAndMark("k"), "expired key should count as new")
}

func TestCache_CheckAndMark_Atomic(t *testing.T) {
	cache, _ := newTestCache(5*time.Minute, 100)
	defer cache.Close()

	const numGoroutines = 100

	var winners int
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			if !cache.CheckAndMark(Key("task:1", "42")) {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners, "exactly one goroutine should win the race for CheckAndMark")
}

func TestCache_Reset(t *testing.T) {
	cache, _ := newTestCache(5*time.Minute, 100)
	defer cache.Close()

	cache.Mark("a")
	cache.Mark("b")
	assert.True(t, cache.Check("b"))

	cache.Reset()
	assert.Equal(t, 0, cache.size())
	assert.False(t, cache.Check("b"))
}

func TestCache_Close(t *testing.T) {
	cache, clk := newTestCache(5*time.Minute, 100)

	cache.Close()
	cache.Close()
	assert.Equal(t, 0, clk.Pending(), "sweeper should be stopped")
}
