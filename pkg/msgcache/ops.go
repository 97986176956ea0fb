package msgcache

import (
	"bytes"
	"fmt"
	"slices"
	"time"
)

// Add caches the response sent for the message identified by endpoint and id.
//
// Expired entries of the shard are dropped first. If a live entry for the key
// is already cached, the message is a retransmission: ErrDuplicate is
// returned and the cache is left unchanged. Otherwise the oldest entries are
// evicted until the new one fits.
func (c *Cache) Add(endpoint string, id uint16, response []byte) error {
	rec := &record{
		key:      Key{Endpoint: endpoint, MessageID: id},
		response: bytes.Clone(response),
		size:     int64(len(endpoint)+len(response)) + entryOverhead,
	}

	sh := c.shardFor(endpoint)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}

	now := c.now()
	c.expired.Add(int64(sh.purge(now)))

	if !sh.byKey.Find(rec).Nil() {
		c.duplicates.Add(1)

		return fmt.Errorf("%w: %s#%d", ErrDuplicate, endpoint, id)
	}

	if rec.size > sh.maxBytes {
		return fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, rec.size, sh.maxBytes)
	}

	for sh.curBytes+rec.size > sh.maxBytes || (sh.maxEntries > 0 && sh.byKey.Len() >= sh.maxEntries) {
		sh.remove(*sh.byExpiry.First().Value())
		c.evictions.Add(1)
	}

	rec.expires = now.Add(c.lifetime)

	return sh.insert(rec)
}

// Get returns the cached response for the message. Expired entries are
// dropped and reported as misses. The returned slice is a copy.
func (c *Cache) Get(endpoint string, id uint16) ([]byte, bool) {
	sh := c.shardFor(endpoint)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if c.closed.Load() {
		c.misses.Add(1)

		return nil, false
	}

	ref := sh.byKey.Find(&record{key: Key{Endpoint: endpoint, MessageID: id}})
	if ref.Nil() {
		c.misses.Add(1)

		return nil, false
	}

	rec := *ref.Value()
	if rec.expired(c.now()) {
		sh.remove(rec)
		c.expired.Add(1)
		c.misses.Add(1)

		return nil, false
	}

	c.hits.Add(1)

	return bytes.Clone(rec.response), true
}

// Remove drops the entry for the message. Returns true iff it was cached.
func (c *Cache) Remove(endpoint string, id uint16) bool {
	sh := c.shardFor(endpoint)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if c.closed.Load() {
		return false
	}

	ref := sh.byKey.Find(&record{key: Key{Endpoint: endpoint, MessageID: id}})
	if ref.Nil() {
		return false
	}

	sh.remove(*ref.Value())

	return true
}

// Purge drops every entry expired at now and returns how many were dropped.
func (c *Cache) Purge(now time.Time) int {
	total := 0

	for _, sh := range c.shards {
		sh.mu.Lock()

		if !c.closed.Load() {
			total += sh.purge(now)
		}

		sh.mu.Unlock()
	}

	c.expired.Add(int64(total))

	return total
}

// Entries returns a snapshot of the live entries ordered by key.
func (c *Cache) Entries() []Entry {
	now := c.now()

	var entries []Entry

	for _, sh := range c.shards {
		sh.mu.Lock()

		if !c.closed.Load() {
			for rec := range sh.byKey.Values() {
				if rec.expired(now) {
					continue
				}

				entries = append(entries, Entry{Key: rec.key, Response: bytes.Clone(rec.response), Expires: rec.expires})
			}
		}

		sh.mu.Unlock()
	}

	slices.SortFunc(entries, func(a, b Entry) int {
		return a.Key.Compare(b.Key)
	})

	return entries
}

// Reset drops all entries. Counters are kept.
func (c *Cache) Reset() {
	for _, sh := range c.shards {
		sh.mu.Lock()

		if !c.closed.Load() {
			sh.clear()
		}

		sh.mu.Unlock()
	}
}

// Close drops all entries and releases the trees. Add fails with ErrClosed
// afterwards and lookups miss. Closing twice is a no-op.
func (c *Cache) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	for _, sh := range c.shards {
		sh.mu.Lock()
		sh.clear()
		sh.byKey.Release()
		sh.byExpiry.Release()
		sh.mu.Unlock()
	}

	return nil
}

func (rec *record) expired(now time.Time) bool {
	return !now.Before(rec.expires)
}

func (sh *shard) insert(rec *record) error {
	alloc := sh.byKey.Allocator()

	keyNode := alloc.New()
	*keyNode.Value() = rec

	ref, err := sh.byKey.Insert(keyNode)
	if err != nil {
		alloc.Free(keyNode)

		return fmt.Errorf("index %s#%d: %w", rec.key.Endpoint, rec.key.MessageID, err)
	}

	rec.byKey = ref

	expiryNode := alloc.New()
	*expiryNode.Value() = rec

	ref, err = sh.byExpiry.Insert(expiryNode)
	if err != nil {
		alloc.Free(expiryNode)
		sh.byKey.Delete(rec.byKey)

		return fmt.Errorf("schedule %s#%d: %w", rec.key.Endpoint, rec.key.MessageID, err)
	}

	rec.byExpiry = ref
	sh.curBytes += rec.size

	return nil
}

func (sh *shard) remove(rec *record) {
	sh.byKey.Delete(rec.byKey)
	sh.byExpiry.Delete(rec.byExpiry)
	sh.curBytes -= rec.size
}

// purge drops the expired prefix of the expiry order.
func (sh *shard) purge(now time.Time) int {
	removed := 0

	for first := sh.byExpiry.First(); !first.Nil() && (*first.Value()).expired(now); first = sh.byExpiry.First() {
		sh.remove(*first.Value())
		removed++
	}

	return removed
}

func (sh *shard) clear() {
	sh.byKey.Clear()
	sh.byExpiry.Clear()
	sh.curBytes = 0
}
