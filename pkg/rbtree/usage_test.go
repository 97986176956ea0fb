package rbtree //nolint:testpackage // tests require access to unexported fields.

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertInvalidUsage(tb testing.TB, fn func()) {
	tb.Helper()

	var recovered any

	func() {
		defer func() { recovered = recover() }()

		fn()
	}()

	err, ok := recovered.(error)
	require.True(tb, ok, "expected a panic with an error value, got %v", recovered)
	assert.ErrorIs(tb, err, ErrInvalidUsage)
}

func TestInvalidUsage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fn   func(t *testing.T, tree *Tree[int])
	}{
		{"detach nil ref", func(_ *testing.T, tree *Tree[int]) {
			tree.Detach(Ref[int]{})
		}},
		{"detach missing key", func(_ *testing.T, tree *Tree[int]) {
			tree.Detach(tree.Find(100))
		}},
		{"detach twice", func(_ *testing.T, tree *Tree[int]) {
			ref := tree.Find(2)
			tree.Detach(ref)
			tree.Detach(ref)
		}},
		{"detach ref of another tree", func(t *testing.T, tree *Tree[int]) {
			other := makeTree(t, 1, 2, 3)
			tree.Detach(other.Find(2))
		}},
		{"insert linked node", func(_ *testing.T, tree *Tree[int]) {
			nd := tree.Allocator().New()
			*nd.Value() = 50
			_, _ = tree.Insert(nd)
			_, _ = tree.Insert(nd)
		}},
		{"insert node of another allocator", func(_ *testing.T, tree *Tree[int]) {
			nd := NewAllocator[int]().New()
			_, _ = tree.Insert(nd)
		}},
		{"insert nil node", func(_ *testing.T, tree *Tree[int]) {
			_, _ = tree.Insert(Node[int]{alloc: tree.Allocator()})
		}},
		{"insert freed node", func(_ *testing.T, tree *Tree[int]) {
			nd := tree.Allocator().New()
			tree.Allocator().Free(nd)
			_, _ = tree.Insert(nd)
		}},
		{"value of freed node", func(_ *testing.T, tree *Tree[int]) {
			nd := tree.Allocator().New()
			tree.Allocator().Free(nd)
			nd.Value()
		}},
		{"free linked node", func(_ *testing.T, tree *Tree[int]) {
			nd := tree.Allocator().New()
			*nd.Value() = 50
			_, _ = tree.Insert(nd)
			tree.Allocator().Free(nd)
		}},
		{"double free", func(_ *testing.T, tree *Tree[int]) {
			nd := tree.Allocator().New()
			tree.Allocator().Free(nd)
			tree.Allocator().Free(nd)
		}},
		{"free into another allocator", func(_ *testing.T, tree *Tree[int]) {
			NewAllocator[int]().Free(tree.Allocator().New())
		}},
		{"release non-empty tree", func(_ *testing.T, tree *Tree[int]) {
			tree.Release()
		}},
		{"use after release", func(_ *testing.T, tree *Tree[int]) {
			tree.Clear()
			tree.Release()
			tree.Find(1)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tree := makeTree(t, 1, 2, 3)
			assertInvalidUsage(t, func() { tt.fn(t, tree) })
		})
	}
}

func TestNewRequiresAllocatorAndComparator(t *testing.T) {
	t.Parallel()

	assertInvalidUsage(t, func() { New[int](nil, func(a, b int) int { return a - b }) })
	assertInvalidUsage(t, func() { New(NewAllocator[int](), nil) })
}

func TestSharedAllocator(t *testing.T) {
	t.Parallel()

	alloc := NewAllocator[int]()
	first, second := NewOrdered(alloc), NewOrdered(alloc)

	for key := range 10 {
		require.True(t, insertKey(first, key))
		require.True(t, insertKey(second, key*10))
	}

	assert.Equal(t, 20, alloc.Used())

	// Nodes move freely between trees of the same allocator.
	nd := first.Detach(first.Find(5))
	_, err := second.Insert(nd)
	require.NoError(t, err)

	assert.Equal(t, 9, first.Len())
	assert.Equal(t, 11, second.Len())
	assert.False(t, second.Find(5).Nil())
	require.NoError(t, first.Validate())
	require.NoError(t, second.Validate())

	// The linked flag alone does not make a node part of another tree.
	assertInvalidUsage(t, func() {
		first.Detach(Ref[int]{tree: first, idx: second.Find(20).idx})
	})
}

func TestAllocatorReusesGaps(t *testing.T) {
	t.Parallel()

	alloc := NewAllocator[int]()
	nodes := []Node[int]{alloc.New(), alloc.New(), alloc.New()}
	size := alloc.Size()

	*nodes[1].Value() = 42
	alloc.Free(nodes[1])
	assert.Equal(t, 2, alloc.Used())

	reused := alloc.New()
	assert.Equal(t, nodes[1].idx, reused.idx)
	assert.Equal(t, 0, *reused.Value())
	assert.Equal(t, size, alloc.Size())
	assert.Equal(t, 3, alloc.Used())
}

func TestFreedNodeCannotCorruptTree(t *testing.T) {
	t.Parallel()

	tree := makeTree(t, 1, 2, 3)
	stale := tree.Allocator().New()
	tree.Allocator().Free(stale)

	assertInvalidUsage(t, func() { _, _ = tree.Insert(stale) })
	assert.Equal(t, 3, tree.Len())

	// The slot is handed out again and reset; the tree must be unaffected.
	reused := tree.Allocator().New()
	assert.Equal(t, stale.idx, reused.idx)
	assert.True(t, reused.Isolated())
	assert.Equal(t, []int{1, 2, 3}, collect(tree))
	require.NoError(t, tree.Validate())

	*reused.Value() = 4
	_, err := tree.Insert(reused)
	require.NoError(t, err)
	require.NoError(t, tree.Validate())
}

func TestAllocatorReserve(t *testing.T) {
	t.Parallel()

	alloc := NewAllocator[int]()
	alloc.Reserve(100)
	assert.GreaterOrEqual(t, cap(alloc.storage), 100)

	nd := alloc.New()
	*nd.Value() = 7
	alloc.Reserve(1000)
	assert.Equal(t, 7, *nd.Value())
}

func TestClear(t *testing.T) {
	t.Parallel()

	tree := makeFull4LevelTree(t)
	tree.Clear()

	assert.Equal(t, 0, tree.Len())
	assert.True(t, tree.Root().Nil())
	assert.Equal(t, 0, tree.Allocator().Used())
	assert.Equal(t, int64(15), tree.Stats().Detaches)
	require.NoError(t, tree.Validate())

	require.True(t, insertKey(tree, 1))
	tree.Clear()
	tree.Release()
	assert.Nil(t, tree.Allocator())
}

func TestClone(t *testing.T) {
	t.Parallel()

	tree := makeFull4LevelTree(t)

	for _, dst := range []*Allocator[int]{NewAllocator[int](), tree.Allocator()} {
		clone := tree.Clone(dst)

		require.NoError(t, clone.Validate())
		assert.Equal(t, collect(tree), collect(clone))
		assert.Equal(t, tree.Height(), clone.Height())
		assertNode(t, clone.Find(12), 12, Red, 8, 10, 14)
		assertNode(t, clone.Find(2), 2, Black, 4, 1, 3)

		*clone.Find(15).Value() = 16
		assert.Equal(t, 15, keyOf(tree.Last()))

		clone.Clear()
		assert.Equal(t, 15, tree.Len())
		require.NoError(t, tree.Validate())
	}

	assert.Equal(t, 15, tree.Allocator().Used())
}
