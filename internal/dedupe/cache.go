// ABOUTME: Thread-safe TTL cache recording which message ids have been counted.
// ABOUTME: Lets push and polling report the same message without double counting.

package dedupe

import (
	"container/list"
	"sync"
	"time"

	"github.com/ZIon2025-x/LinkU1-sub000/internal/clock"
)

// sweepInterval is how often expired entries are purged.
const sweepInterval = time.Minute

type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache is a TTL and size bounded set of keys. Expiry is measured against an
// injected clock so tests can drive it without sleeping.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	clk     clock.Clock
	sweep   clock.Timer
	closed  bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(c *Cache) { c.clk = clk }
}

// New creates a cache with the given TTL and maximum size.
func New(ttl time.Duration, maxSize int, opts ...Option) *Cache {
	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		clk:     clock.Real(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.mu.Lock()
	c.scheduleSweepLocked()
	c.mu.Unlock()
	return c
}

// Key builds the cache key for one message in one conversation.
func Key(conversationID, messageID string) string {
	return conversationID + "/" + messageID
}

// Check reports whether key was seen and has not expired.
func (c *Cache) Check(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveLocked(key)
}

// CheckAndMark reports whether key was already seen, marking it if not.
// Exactly one of any number of concurrent callers gets false for a new key.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.liveLocked(key) {
		return true
	}
	c.markLocked(key)
	return false
}

// Mark records key as seen, refreshing its timestamp if already present.
func (c *Cache) Mark(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(key)
}

// Reset drops every entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seen = make(map[string]*entry)
	c.order.Init()
}

// size returns the number of tracked keys, expired or not.
func (c *Cache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) liveLocked(key string) bool {
	e, ok := c.seen[key]
	if !ok {
		return false
	}
	return c.clk.Now().Sub(e.seenAt) < c.ttl
}

func (c *Cache) markLocked(key string) {
	now := c.clk.Now()

	if e, ok := c.seen[key]; ok {
		e.seenAt = now
		c.order.MoveToBack(e.element)
		return
	}

	if c.maxSize > 0 && len(c.seen) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.seen[key] = &entry{
		seenAt:  now,
		element: c.order.PushBack(key),
	}
}

func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

func (c *Cache) scheduleSweepLocked() {
	if c.closed {
		return
	}
	c.sweep = c.clk.AfterFunc(sweepInterval, func() {
		c.runCleanup()
		c.mu.Lock()
		c.scheduleSweepLocked()
		c.mu.Unlock()
	})
}

// runCleanup removes all expired entries.
func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	for key, e := range c.seen {
		if now.Sub(e.seenAt) >= c.ttl {
			c.order.Remove(e.element)
			delete(c.seen, key)
		}
	}
}

// Close stops the sweeper. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if c.sweep != nil {
		c.sweep.Stop()
	}
}
