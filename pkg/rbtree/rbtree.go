package rbtree

import (
	"cmp"
	"errors"
)

// ErrDuplicateKey is returned by Insert when an element comparing equal to
// the new one is already in the tree.
var ErrDuplicateKey = errors.New("rbtree: duplicate key")

// Stats holds cumulative structural counters of a tree.
type Stats struct {
	Inserts   int64
	Detaches  int64
	Rotations int64
	Swaps     int64
}

// Tree is a red-black tree over nodes owned by an Allocator.
//
// Elements are ordered by the comparator given at construction, which must be
// a total order: negative when a < b, zero when equal, positive when a > b.
// The tree is not safe for concurrent use; callers serialize access to a
// tree instance externally.
type Tree[T any] struct {
	// Nodes allocator.
	allocator *Allocator[T]

	compare func(a, b T) int

	// Root of the tree.
	root uint32

	// Number of nodes under root, including the root.
	count int

	stats Stats
}

// New creates an empty tree ordered by compare, linking nodes of allocator.
func New[T any](allocator *Allocator[T], compare func(a, b T) int) *Tree[T] {
	if allocator == nil || compare == nil {
		usagePanic("a tree needs an allocator and a comparator")
	}

	return &Tree[T]{allocator: allocator, compare: compare}
}

// NewOrdered creates an empty tree over an ordered type using cmp.Compare.
func NewOrdered[T cmp.Ordered](allocator *Allocator[T]) *Tree[T] {
	return New(allocator, cmp.Compare[T])
}

func (tree *Tree[T]) storage() []node[T] {
	if tree.allocator == nil {
		usagePanic("tree has been released")
	}

	return tree.allocator.storage
}

// Allocator returns the bound nodes allocator.
func (tree *Tree[T]) Allocator() *Allocator[T] {
	return tree.allocator
}

// Len returns the number of elements in the tree.
func (tree *Tree[T]) Len() int {
	return tree.count
}

// Stats returns the cumulative structural counters.
func (tree *Tree[T]) Stats() Stats {
	return tree.stats
}

// Root returns the root element, or a nil Ref when the tree is empty.
func (tree *Tree[T]) Root() Ref[T] {
	return Ref[T]{tree, tree.root}
}

// Insert links an unattached node into the tree.
//
// If an element comparing equal is already present, the tree is left
// unchanged, the node stays owned by the caller and ErrDuplicateKey is
// returned together with a Ref to the existing element.
func (tree *Tree[T]) Insert(nd Node[T]) (Ref[T], error) {
	if nd.alloc != tree.allocator {
		usagePanic("node belongs to a different allocator")
	}

	if nd.idx == 0 {
		usagePanic("cannot insert a nil node")
	}

	tree.allocator.checkLive(nd.idx)

	alloc := tree.storage()
	newNode := &alloc[nd.idx]

	if newNode.linked {
		usagePanic("node #%d is already linked", nd.idx)
	}

	var (
		parent uint32
		comp   int
	)

	for cur := tree.root; cur != 0; {
		parent = cur
		comp = tree.compare(newNode.item, alloc[cur].item)

		switch {
		case comp < 0:
			cur = alloc[cur].left
		case comp > 0:
			cur = alloc[cur].right
		default:
			return Ref[T]{tree, cur}, ErrDuplicateKey
		}
	}

	newNode.parent = parent
	newNode.left = 0
	newNode.right = 0
	newNode.color = Red
	newNode.linked = true

	switch {
	case parent == 0:
		tree.root = nd.idx
	case comp < 0:
		alloc[parent].left = nd.idx
	default:
		alloc[parent].right = nd.idx
	}

	tree.count++
	tree.stats.Inserts++

	tree.insertFixup(nd.idx)

	return Ref[T]{tree, nd.idx}, nil
}

// insertFixup restores the red-black properties after a red leaf was attached.
func (tree *Tree[T]) insertFixup(nodeIdx uint32) {
	alloc := tree.storage()

	for {
		parent := alloc[nodeIdx].parent

		// Case 1: N is at the root.
		if parent == 0 {
			alloc[nodeIdx].color = Black

			return
		}

		// Case 2: the parent is black, so the tree already
		// satisfies the RB properties.
		if alloc[parent].color == Black {
			return
		}

		// The parent is red, hence not the root, so the grandparent exists.
		grandparent := alloc[parent].parent

		var uncle uint32
		if isLeftChild(parent, alloc) {
			uncle = alloc[grandparent].right
		} else {
			uncle = alloc[grandparent].left
		}

		// Case 3: parent and uncle are both red.
		// Then paint both black and make grandparent red.
		if getColor(uncle, alloc) == Red {
			alloc[parent].color = Black
			alloc[uncle].color = Black
			alloc[grandparent].color = Red
			nodeIdx = grandparent

			continue
		}

		// Case 4: parent is red, uncle is black, N is the inner grandchild.
		if isRightChild(nodeIdx, alloc) && isLeftChild(parent, alloc) {
			tree.rotateLeft(parent)
			nodeIdx = alloc[nodeIdx].left

			continue
		}

		if isLeftChild(nodeIdx, alloc) && isRightChild(parent, alloc) {
			tree.rotateRight(parent)
			nodeIdx = alloc[nodeIdx].right

			continue
		}

		// Case 5: parent is red, uncle is black, N is the outer grandchild.
		alloc[parent].color = Black
		alloc[grandparent].color = Red

		if isLeftChild(nodeIdx, alloc) {
			tree.rotateRight(grandparent)
		} else {
			tree.rotateLeft(grandparent)
		}

		return
	}
}

// Find returns the element comparing equal to key, or a nil Ref.
func (tree *Tree[T]) Find(key T) Ref[T] {
	alloc := tree.storage()
	nodeIdx := tree.root

	for nodeIdx != 0 {
		comp := tree.compare(key, alloc[nodeIdx].item)

		switch {
		case comp < 0:
			nodeIdx = alloc[nodeIdx].left
		case comp > 0:
			nodeIdx = alloc[nodeIdx].right
		default:
			return Ref[T]{tree, nodeIdx}
		}
	}

	return Ref[T]{tree, 0}
}

// FindGE finds the smallest element N such that N >= key. Returns a nil Ref
// if no such element exists.
func (tree *Tree[T]) FindGE(key T) Ref[T] {
	nodeIdx, _ := tree.findGE(key)

	return Ref[T]{tree, nodeIdx}
}

// FindLE finds the largest element N such that N <= key. Returns a nil Ref
// if no such element exists.
func (tree *Tree[T]) FindLE(key T) Ref[T] {
	nodeIdx, exact := tree.findGE(key)
	if exact {
		return Ref[T]{tree, nodeIdx}
	}

	if nodeIdx != 0 {
		return Ref[T]{tree, doPrev(nodeIdx, tree.storage())}
	}

	return tree.Last()
}

// Find a node whose item >= key. The second return value is true iff the
// node compares equal to key. Returns (0, false) if all nodes are < key.
func (tree *Tree[T]) findGE(key T) (uint32, bool) {
	alloc := tree.storage()
	nodeIdx := tree.root

	for nodeIdx != 0 {
		comp := tree.compare(key, alloc[nodeIdx].item)

		switch {
		case comp == 0:
			return nodeIdx, true
		case comp < 0:
			if alloc[nodeIdx].left == 0 {
				return nodeIdx, false
			}

			nodeIdx = alloc[nodeIdx].left
		default:
			if alloc[nodeIdx].right == 0 {
				return doNext(nodeIdx, alloc), false
			}

			nodeIdx = alloc[nodeIdx].right
		}
	}

	return 0, false
}

// Release ends the life of an empty tree. Releasing a tree which still links
// elements is a contract violation: detach or Clear them first.
func (tree *Tree[T]) Release() {
	if tree.root != 0 {
		usagePanic("cannot release a tree with %d elements", tree.count)
	}

	tree.allocator = nil
	tree.compare = nil
}

// Internal node attribute accessors.
func getColor[T any](nodeIdx uint32, alloc []node[T]) Color {
	if nodeIdx == 0 {
		return Black
	}

	return alloc[nodeIdx].color
}

func isLeftChild[T any](nodeIdx uint32, alloc []node[T]) bool {
	return nodeIdx == alloc[alloc[nodeIdx].parent].left
}

func isRightChild[T any](nodeIdx uint32, alloc []node[T]) bool {
	return nodeIdx == alloc[alloc[nodeIdx].parent].right
}

/*
	 X           Y
	A Y    =>   X C
	 B C       A B
*/
func (tree *Tree[T]) rotateLeft(x uint32) {
	alloc := tree.storage()
	y := alloc[x].right
	doAssert(y != 0)

	// Move "B".
	alloc[x].right = alloc[y].left
	if alloc[y].left != 0 {
		alloc[alloc[y].left].parent = x
	}

	tree.replaceChild(alloc[x].parent, x, y)
	alloc[y].parent = alloc[x].parent
	alloc[y].left = x
	alloc[x].parent = y

	tree.stats.Rotations++
}

/*
	  Y         X
	 X C  =>   A Y
	A B         B C
*/
func (tree *Tree[T]) rotateRight(y uint32) {
	alloc := tree.storage()
	x := alloc[y].left
	doAssert(x != 0)

	// Move "B".
	alloc[y].left = alloc[x].right
	if alloc[x].right != 0 {
		alloc[alloc[x].right].parent = y
	}

	tree.replaceChild(alloc[y].parent, y, x)
	alloc[x].parent = alloc[y].parent
	alloc[x].right = y
	alloc[y].parent = x

	tree.stats.Rotations++
}

// replaceChild points the link of parent (or the root) that referenced
// oldChild at newChild. Back-references are left to the caller.
func (tree *Tree[T]) replaceChild(parent, oldChild, newChild uint32) {
	if parent == 0 {
		tree.root = newChild

		return
	}

	alloc := tree.storage()
	if alloc[parent].left == oldChild {
		alloc[parent].left = newChild
	} else {
		doAssert(alloc[parent].right == oldChild)
		alloc[parent].right = newChild
	}
}
