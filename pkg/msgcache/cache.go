// Package msgcache provides the response cache a message-oriented transport
// uses to detect retransmitted requests and to replay the response it sent
// the first time.
//
// Entries are keyed by the peer endpoint and the 16-bit message id. Each entry
// expires after the exchange lifetime; capacity is bounded by the accounted
// byte size and, optionally, by the entry count. Eviction takes entries in
// expiry order, which is also insertion order for a constant lifetime.
package msgcache

import (
	"cmp"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sumatoshi-tech/rbkit/pkg/rbtree"
)

// DefaultLifetime is the CoAP EXCHANGE_LIFETIME for the default transmission
// parameters, in which a retransmitted request may still arrive.
const DefaultLifetime = 247 * time.Second

// DefaultMaxBytes is the capacity used when no limit is configured.
const DefaultMaxBytes = 64 << 10

// entryOverhead is the accounted size of an entry beyond its endpoint and
// response bytes: message id, expiry and the two tree nodes.
const entryOverhead = 64

// Sentinel errors.
var (
	// ErrDuplicate is returned by Add when a live entry for the key exists.
	ErrDuplicate = errors.New("msgcache: duplicate message")
	// ErrTooLarge is returned by Add when a single entry exceeds the capacity.
	ErrTooLarge = errors.New("msgcache: entry exceeds cache capacity")
	// ErrClosed is returned by Add after Close.
	ErrClosed = errors.New("msgcache: cache is closed")
)

// Key identifies a message exchanged with a peer.
type Key struct {
	Endpoint  string
	MessageID uint16
}

// Compare orders keys by endpoint, then by message id.
func (k Key) Compare(other Key) int {
	if c := strings.Compare(k.Endpoint, other.Endpoint); c != 0 {
		return c
	}

	return cmp.Compare(k.MessageID, other.MessageID)
}

// Entry is a snapshot of a cached response.
type Entry struct {
	Key
	Response []byte
	Expires  time.Time
}

// record is the payload shared by the two trees of a shard.
type record struct {
	key      Key
	response []byte
	expires  time.Time
	size     int64

	byKey    rbtree.Ref[*record]
	byExpiry rbtree.Ref[*record]
}

func compareByKey(a, b *record) int {
	return a.key.Compare(b.key)
}

func compareByExpiry(a, b *record) int {
	if c := a.expires.Compare(b.expires); c != 0 {
		return c
	}

	return a.key.Compare(b.key)
}

// shard owns one allocator and the two trees threaded through its nodes.
type shard struct {
	mu sync.Mutex

	byKey    *rbtree.Tree[*record]
	byExpiry *rbtree.Tree[*record]

	maxBytes   int64
	maxEntries int
	curBytes   int64
}

// Cache is a thread-safe message deduplication and response cache.
type Cache struct {
	shards []*shard
	alloc  *rbtree.ShardedAllocator[*record]

	// Capacity limits, split evenly across shards.
	maxBytes   int64
	maxEntries int
	lifetime   time.Duration
	now        func() time.Time
	shardCount int

	closed atomic.Bool

	// Metrics (atomic for lock-free reads).
	hits       atomic.Int64
	misses     atomic.Int64
	duplicates atomic.Int64
	evictions  atomic.Int64
	expired    atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxBytes sets the maximum accounted size of all entries.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		c.maxBytes = n
	}
}

// WithMaxEntries sets the maximum number of entries. Zero means no count limit.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		c.maxEntries = n
	}
}

// WithLifetime sets how long an entry stays valid after Add.
func WithLifetime(d time.Duration) Option {
	return func(c *Cache) {
		c.lifetime = d
	}
}

// WithClock replaces time.Now, mostly for tests and simulations.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithShards splits the cache into n independently locked shards selected
// by endpoint. Capacity limits are divided evenly between the shards.
func WithShards(n int) Option {
	return func(c *Cache) {
		c.shardCount = n
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		maxBytes:   DefaultMaxBytes,
		lifetime:   DefaultLifetime,
		now:        time.Now,
		shardCount: 1,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.maxBytes <= 0 {
		c.maxBytes = DefaultMaxBytes
	}

	if c.lifetime <= 0 {
		c.lifetime = DefaultLifetime
	}

	c.shardCount = max(c.shardCount, 1)
	c.alloc = rbtree.NewShardedAllocator[*record](c.shardCount)
	c.shards = make([]*shard, c.shardCount)

	for idx, alloc := range c.alloc.Shards() {
		sh := &shard{
			byKey:    rbtree.New(alloc, compareByKey),
			byExpiry: rbtree.New(alloc, compareByExpiry),
			maxBytes: ceilDiv(c.maxBytes, int64(c.shardCount)),
		}

		if c.maxEntries > 0 {
			sh.maxEntries = int(ceilDiv(int64(c.maxEntries), int64(c.shardCount)))
		}

		c.shards[idx] = sh
	}

	return c
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

func (c *Cache) shardFor(endpoint string) *shard {
	return c.shards[c.alloc.ShardIndex(endpoint)]
}

// Lifetime returns the configured entry lifetime.
func (c *Cache) Lifetime() time.Duration {
	return c.lifetime
}

// Len returns the number of entries in the cache, expired or not.
func (c *Cache) Len() int {
	total := 0

	for _, sh := range c.shards {
		sh.mu.Lock()
		total += sh.byKey.Len()
		sh.mu.Unlock()
	}

	return total
}

// TreeStats sums the structural counters of all the trees, for metrics.
func (c *Cache) TreeStats() rbtree.Stats {
	var total rbtree.Stats

	for _, sh := range c.shards {
		sh.mu.Lock()

		for _, tree := range []*rbtree.Tree[*record]{sh.byKey, sh.byExpiry} {
			st := tree.Stats()
			total.Inserts += st.Inserts
			total.Detaches += st.Detaches
			total.Rotations += st.Rotations
			total.Swaps += st.Swaps
		}

		sh.mu.Unlock()
	}

	return total
}
