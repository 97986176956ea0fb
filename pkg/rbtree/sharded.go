package rbtree

import (
	"hash/fnv"

	"github.com/Sumatoshi-tech/rbkit/pkg/safeconv"
)

// ShardedAllocator manages multiple Allocators to allow parallel access.
// Each shard must still be used by one goroutine at a time; the caller picks
// the shard by key and serializes per shard.
type ShardedAllocator[T any] struct {
	shards []*Allocator[T]
}

// NewShardedAllocator creates a new ShardedAllocator with n shards.
func NewShardedAllocator[T any](shardCount int) *ShardedAllocator[T] {
	if shardCount <= 0 {
		shardCount = 1
	}

	shards := make([]*Allocator[T], shardCount)

	for idx := range shardCount {
		shards[idx] = NewAllocator[T]()
	}

	return &ShardedAllocator[T]{shards: shards}
}

// ShardIndex returns the index of the shard owning the given key.
func (sa *ShardedAllocator[T]) ShardIndex(key string) int {
	hasher := fnv.New32a()
	hasher.Write([]byte(key))

	return int(hasher.Sum32() % safeconv.MustIntToUint32(len(sa.shards)))
}

// GetShard returns the allocator shard for the given key.
func (sa *ShardedAllocator[T]) GetShard(key string) *Allocator[T] {
	return sa.shards[sa.ShardIndex(key)]
}

// Shards returns all underlying allocators.
func (sa *ShardedAllocator[T]) Shards() []*Allocator[T] {
	return sa.shards
}

// Used sums the nodes handed out by all shards.
func (sa *ShardedAllocator[T]) Used() int {
	total := 0

	for _, shard := range sa.shards {
		total += shard.Used()
	}

	return total
}
