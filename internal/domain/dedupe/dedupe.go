// Package dedupe remembers the outcome of idempotent requests.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/rollcall/internal/domain/model"
)

const defaultMaxSize = 4096

// Cache stores call results keyed by a client supplied idempotency key so a
// retried request is answered without a second pick.
type Cache interface {
	// Lookup returns the result recorded for key, if any.
	Lookup(ctx context.Context, key string) (model.CallResult, bool)

	// Record stores result under key. An existing entry is left untouched so
	// the first outcome always wins.
	Record(ctx context.Context, key string, result model.CallResult)

	// Reset forgets every recorded key.
	Reset(ctx context.Context)

	Size() int64
}

// node is one entry of the insertion ordered list.
type node struct {
	key    string
	result model.CallResult
	next   *node
}

func (n *node) reset() {
	n.key = ""
	n.result = model.CallResult{}
	n.next = nil
}

// inMemoryCache keeps entries in a map plus a singly linked list ordered by
// insertion. Bounded mode evicts the oldest entry first.
type inMemoryCache struct {
	mu       sync.Mutex
	entries  map[string]*node
	head     *node // oldest
	tail     *node // newest
	maxSize  int   // 0 or negative means unbounded
	size     atomic.Int64
	nodePool sync.Pool
}

// NewInMemoryCache creates a new in-memory result cache.
func NewInMemoryCache(opts ...Option) Cache {
	c := &inMemoryCache{
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.entries = make(map[string]*node)
	c.nodePool = sync.Pool{
		New: func() interface{} {
			return &node{}
		},
	}
	return c
}

func (c *inMemoryCache) Lookup(_ context.Context, key string) (model.CallResult, bool) {
	if key == "" {
		return model.CallResult{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.entries[key]
	if !ok {
		return model.CallResult{}, false
	}
	return n.result, true
}

func (c *inMemoryCache) Record(_ context.Context, key string, result model.CallResult) {
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		return
	}
	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	n := c.nodePool.Get().(*node)
	n.key = key
	n.result = result
	if c.tail == nil {
		c.head = n
	} else {
		c.tail.next = n
	}
	c.tail = n
	c.entries[key] = n
	c.size.Add(1)
}

// evictOldest drops the head of the list. Must be called with c.mu held.
func (c *inMemoryCache) evictOldest() {
	n := c.head
	if n == nil {
		return
	}
	c.head = n.next
	if c.head == nil {
		c.tail = nil
	}
	delete(c.entries, n.key)
	n.reset()
	c.nodePool.Put(n)
	c.size.Add(-1)
}

func (c *inMemoryCache) Reset(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for n := c.head; n != nil; {
		next := n.next
		n.reset()
		c.nodePool.Put(n)
		n = next
	}
	c.head, c.tail = nil, nil
	c.entries = make(map[string]*node)
	c.size.Store(0)
}

// Size returns the current number of entries.
func (c *inMemoryCache) Size() int64 {
	return c.size.Load()
}
