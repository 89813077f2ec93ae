// ABOUTME: Thread-safe TTL cache of claimed idempotency keys
// ABOUTME: Lets the API reject a replayed send within a window while allowing retries of rejected ones

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// cleanupInterval is how often expired keys are swept.
const cleanupInterval = time.Minute

type keyEntry struct {
	claimedAt time.Time
	element   *list.Element
}

// Cache tracks idempotency keys for a TTL, bounded to maxKeys entries.
// The oldest claim is evicted first when the cache is full.
type Cache struct {
	mu      sync.Mutex
	keys    map[string]*keyEntry
	order   *list.List // oldest claim at front
	ttl     time.Duration
	maxKeys int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache and starts its background sweeper. Call Close to stop it.
func New(ttl time.Duration, maxKeys int) *Cache {
	c := &Cache{
		keys:    make(map[string]*keyEntry),
		order:   list.New(),
		ttl:     ttl,
		maxKeys: maxKeys,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Claim records key and reports whether it was fresh. A key already claimed
// within the TTL is not refreshed and Claim returns false.
func (c *Cache) Claim(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry, ok := c.keys[key]; ok {
		if now.Sub(entry.claimedAt) < c.ttl {
			return false
		}
		c.order.Remove(entry.element)
		delete(c.keys, key)
	}

	if len(c.keys) >= c.maxKeys {
		c.evictOldest()
	}

	c.keys[key] = &keyEntry{
		claimedAt: now,
		element:   c.order.PushBack(key),
	}
	return true
}

// Seen reports whether key is currently claimed.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.keys[key]
	return ok && c.now().Sub(entry.claimedAt) < c.ttl
}

// Forget releases a claim so the same key can be used again.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.keys[key]; ok {
		c.order.Remove(entry.element)
		delete(c.keys, key)
	}
}

// Len returns the number of tracked keys, expired ones included until swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keys)
}

// evictOldest must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.keys, key)
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep drops expired keys. Claims are ordered by time, so it stops at the
// first live one.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		key, _ := front.Value.(string)
		if now.Sub(c.keys[key].claimedAt) < c.ttl {
			return
		}
		c.order.Remove(front)
		delete(c.keys, key)
	}
}

// Close stops the sweeper. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
