package rbtree

import "iter"

// Ref refers to an element linked in a tree.
//
// A Ref stays valid while its element is linked, including across inserts and
// detaches of other elements: nodes never move in the allocator and a
// deletion relinks nodes instead of copying payloads. The zero Ref and Refs
// returned by failed lookups are nil.
type Ref[T any] struct {
	tree *Tree[T]
	idx  uint32
}

// Nil reports whether the Ref points at no element.
func (ref Ref[T]) Nil() bool {
	return ref.idx == 0
}

// Equal checks for the underlying nodes equality.
func (ref Ref[T]) Equal(other Ref[T]) bool {
	return ref.tree == other.tree && ref.idx == other.idx
}

// Value returns the payload of the element, or nil for a nil Ref.
// The part of the payload the comparator looks at must not be changed while
// the element is linked.
func (ref Ref[T]) Value() *T {
	if ref.idx == 0 {
		return nil
	}

	return &ref.tree.storage()[ref.idx].item
}

// Color returns the color of the element. Nil Refs are black.
func (ref Ref[T]) Color() Color {
	if ref.idx == 0 {
		return Black
	}

	return ref.tree.storage()[ref.idx].color
}

// Parent returns the structural parent, nil for the root.
func (ref Ref[T]) Parent() Ref[T] {
	return ref.link(func(hdr *node[T]) uint32 { return hdr.parent })
}

// Left returns the structural left child.
func (ref Ref[T]) Left() Ref[T] {
	return ref.link(func(hdr *node[T]) uint32 { return hdr.left })
}

// Right returns the structural right child.
func (ref Ref[T]) Right() Ref[T] {
	return ref.link(func(hdr *node[T]) uint32 { return hdr.right })
}

func (ref Ref[T]) link(pick func(hdr *node[T]) uint32) Ref[T] {
	if ref.idx == 0 {
		return ref
	}

	return Ref[T]{ref.tree, pick(&ref.tree.storage()[ref.idx])}
}

// Next returns the in-order successor, nil after the last element.
func (ref Ref[T]) Next() Ref[T] {
	if ref.idx == 0 {
		return ref
	}

	return Ref[T]{ref.tree, doNext(ref.idx, ref.tree.storage())}
}

// Prev returns the in-order predecessor, nil before the first element.
func (ref Ref[T]) Prev() Ref[T] {
	if ref.idx == 0 {
		return ref
	}

	return Ref[T]{ref.tree, doPrev(ref.idx, ref.tree.storage())}
}

// First returns the minimum element, nil if the tree is empty.
func (tree *Tree[T]) First() Ref[T] {
	return Ref[T]{tree, leftmost(tree.root, tree.storage())}
}

// Last returns the maximum element, nil if the tree is empty.
func (tree *Tree[T]) Last() Ref[T] {
	return Ref[T]{tree, rightmost(tree.root, tree.storage())}
}

// All iterates over the elements in ascending order.
// The tree must not be modified during the iteration.
func (tree *Tree[T]) All() iter.Seq[Ref[T]] {
	return func(yield func(Ref[T]) bool) {
		for ref := tree.First(); !ref.Nil(); ref = ref.Next() {
			if !yield(ref) {
				return
			}
		}
	}
}

// Backward iterates over the elements in descending order.
func (tree *Tree[T]) Backward() iter.Seq[Ref[T]] {
	return func(yield func(Ref[T]) bool) {
		for ref := tree.Last(); !ref.Nil(); ref = ref.Prev() {
			if !yield(ref) {
				return
			}
		}
	}
}

// Values iterates over copies of the payloads in ascending order.
func (tree *Tree[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		for ref := range tree.All() {
			if !yield(*ref.Value()) {
				return
			}
		}
	}
}

func leftmost[T any](nodeIdx uint32, alloc []node[T]) uint32 {
	if nodeIdx == 0 {
		return 0
	}

	for alloc[nodeIdx].left != 0 {
		nodeIdx = alloc[nodeIdx].left
	}

	return nodeIdx
}

func rightmost[T any](nodeIdx uint32, alloc []node[T]) uint32 {
	if nodeIdx == 0 {
		return 0
	}

	for alloc[nodeIdx].right != 0 {
		nodeIdx = alloc[nodeIdx].right
	}

	return nodeIdx
}

// Return the minimum node that's larger than N. Return 0 if no such
// node is found.
func doNext[T any](nodeIdx uint32, alloc []node[T]) uint32 {
	if alloc[nodeIdx].right != 0 {
		return leftmost(alloc[nodeIdx].right, alloc)
	}

	for {
		parent := alloc[nodeIdx].parent
		if parent == 0 {
			return 0
		}

		if isLeftChild(nodeIdx, alloc) {
			return parent
		}

		nodeIdx = parent
	}
}

// Return the maximum node that's smaller than N. Return 0 if no
// such node is found.
func doPrev[T any](nodeIdx uint32, alloc []node[T]) uint32 {
	if alloc[nodeIdx].left != 0 {
		return rightmost(alloc[nodeIdx].left, alloc)
	}

	for {
		parent := alloc[nodeIdx].parent
		if parent == 0 {
			return 0
		}

		if isRightChild(nodeIdx, alloc) {
			return parent
		}

		nodeIdx = parent
	}
}
