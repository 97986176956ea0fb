package msgcache

// Stats holds cache performance metrics.
type Stats struct {
	Hits       int64
	Misses     int64
	Duplicates int64 // Retransmissions rejected by Add.
	Evictions  int64 // Live entries dropped to make room.
	Expired    int64
	Entries    int
	Bytes      int64
	MaxBytes   int64
	MaxEntries int // 0 when count-based limit is not set.
}

// HitRate returns the cache hit rate as a fraction (0.0 to 1.0).
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}

	return float64(s.Hits) / float64(total)
}

// Stats returns current cache statistics.
func (c *Cache) Stats() Stats {
	st := Stats{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Duplicates: c.duplicates.Load(),
		Evictions:  c.evictions.Load(),
		Expired:    c.expired.Load(),
		MaxBytes:   c.maxBytes,
		MaxEntries: c.maxEntries,
	}

	for _, sh := range c.shards {
		sh.mu.Lock()
		st.Entries += sh.byKey.Len()
		st.Bytes += sh.curBytes
		sh.mu.Unlock()
	}

	return st
}

// CacheHits returns the total cache hit count (atomic, lock-free).
func (c *Cache) CacheHits() int64 { return c.hits.Load() }

// CacheMisses returns the total cache miss count (atomic, lock-free).
func (c *Cache) CacheMisses() int64 { return c.misses.Load() }
