package rbtree

import (
	"errors"
	"fmt"
)

// ErrInvariantViolation is returned by Validate when the tree structure is broken.
var ErrInvariantViolation = errors.New("rbtree: invariant violation")

// Validate walks the whole tree and checks the red-black invariants: the root
// is black and has no parent, parent links mirror child links, no red node has
// a red child, every root-to-null path carries the same number of black
// nodes, elements are strictly ascending and the element count is exact.
func (tree *Tree[T]) Validate() error {
	alloc := tree.storage()

	if tree.root == 0 {
		if tree.count != 0 {
			return fmt.Errorf("%w: empty tree reports %d elements", ErrInvariantViolation, tree.count)
		}

		return nil
	}

	if alloc[tree.root].parent != 0 {
		return fmt.Errorf("%w: root #%d has parent #%d", ErrInvariantViolation, tree.root, alloc[tree.root].parent)
	}

	if alloc[tree.root].color != Black {
		return fmt.Errorf("%w: root #%d is red", ErrInvariantViolation, tree.root)
	}

	_, err := tree.validateSubtree(tree.root, alloc)
	if err != nil {
		return err
	}

	count := 0
	prev := uint32(0)

	for nodeIdx := leftmost(tree.root, alloc); nodeIdx != 0; nodeIdx = doNext(nodeIdx, alloc) {
		if prev != 0 && tree.compare(alloc[prev].item, alloc[nodeIdx].item) >= 0 {
			return fmt.Errorf("%w: node #%d is not ordered after #%d", ErrInvariantViolation, nodeIdx, prev)
		}

		prev = nodeIdx
		count++
	}

	if count != tree.count {
		return fmt.Errorf("%w: counted %d elements, tree reports %d", ErrInvariantViolation, count, tree.count)
	}

	return nil
}

// validateSubtree returns the black height of the subtree rooted at nodeIdx.
func (tree *Tree[T]) validateSubtree(nodeIdx uint32, alloc []node[T]) (int, error) {
	if nodeIdx == 0 {
		return 1, nil
	}

	hdr := &alloc[nodeIdx]
	if !hdr.linked {
		return 0, fmt.Errorf("%w: node #%d is reachable but not linked", ErrInvariantViolation, nodeIdx)
	}

	for _, child := range []uint32{hdr.left, hdr.right} {
		if child == 0 {
			continue
		}

		if alloc[child].parent != nodeIdx {
			return 0, fmt.Errorf("%w: node #%d points to parent #%d instead of #%d",
				ErrInvariantViolation, child, alloc[child].parent, nodeIdx)
		}

		if hdr.color == Red && alloc[child].color == Red {
			return 0, fmt.Errorf("%w: red node #%d has red child #%d", ErrInvariantViolation, nodeIdx, child)
		}
	}

	leftHeight, err := tree.validateSubtree(hdr.left, alloc)
	if err != nil {
		return 0, err
	}

	rightHeight, err := tree.validateSubtree(hdr.right, alloc)
	if err != nil {
		return 0, err
	}

	if leftHeight != rightHeight {
		return 0, fmt.Errorf("%w: node #%d has black heights %d and %d",
			ErrInvariantViolation, nodeIdx, leftHeight, rightHeight)
	}

	if hdr.color == Black {
		leftHeight++
	}

	return leftHeight, nil
}

// Height returns the number of nodes on the longest root-to-leaf path.
func (tree *Tree[T]) Height() int {
	return height(tree.root, tree.storage())
}

func height[T any](nodeIdx uint32, alloc []node[T]) int {
	if nodeIdx == 0 {
		return 0
	}

	return 1 + max(height(alloc[nodeIdx].left, alloc), height(alloc[nodeIdx].right, alloc))
}

// Clone makes a deep copy of the tree with nodes taken from dst. The copy has
// the same shape, colors and payloads. dst may be the tree's own allocator.
func (tree *Tree[T]) Clone(dst *Allocator[T]) *Tree[T] {
	clone := New(dst, tree.compare)

	dst.Reserve(tree.count)
	clone.root = tree.cloneSubtree(dst, tree.root, 0)
	clone.count = tree.count

	return clone
}

func (tree *Tree[T]) cloneSubtree(dst *Allocator[T], srcIdx, parent uint32) uint32 {
	if srcIdx == 0 {
		return 0
	}

	dstIdx := dst.malloc()
	// Read the source after malloc, which may have grown a shared storage.
	src := tree.storage()[srcIdx]

	dst.storage[dstIdx] = node[T]{item: src.item, parent: parent, color: src.color, linked: true}

	left := tree.cloneSubtree(dst, src.left, dstIdx)
	right := tree.cloneSubtree(dst, src.right, dstIdx)

	dst.storage[dstIdx].left = left
	dst.storage[dstIdx].right = right

	return dstIdx
}
