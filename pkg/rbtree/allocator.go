// Package rbtree provides an intrusive red-black tree whose nodes live in a
// caller-owned arena.
//
// Nodes are allocated from an Allocator and referenced by uint32 indices, so
// the parent/left/right links form a cyclic graph without pointers. Index 0 is
// reserved and plays the role of the null link. The tree never allocates or
// frees memory on its own: Allocator.New hands out an unattached Node, the
// tree threads it in on Insert and hands it back on Detach, and only then may
// the caller Free it.
package rbtree

import (
	"errors"
	"fmt"
	"math"

	"github.com/Sumatoshi-tech/rbkit/pkg/safeconv"
)

// ErrInvalidUsage is the panic value (wrapped) raised on contract violations
// such as detaching a node that is not linked in the given tree.
var ErrInvalidUsage = errors.New("rbtree: invalid usage")

// growCapacityNumerator and growCapacityDenominator define the 3/2 growth factor for storage.
const (
	growCapacityNumerator   = 3
	growCapacityDenominator = 2
)

// maxNodes is the highest index an allocator may hand out.
const maxNodes = math.MaxUint32 - 1

// Color is the color of a tree node.
type Color bool

// Node colors. Null children are black.
const (
	Red   Color = false
	Black Color = true
)

// String implements fmt.Stringer.
func (c Color) String() string {
	if c == Black {
		return "BLACK"
	}

	return "RED"
}

// node is the per-element header followed by the caller payload.
type node[T any] struct {
	item                T
	parent, left, right uint32
	color               Color
	linked              bool
}

// Allocator is the arena that owns the memory of tree nodes.
// A single allocator may back several trees.
type Allocator[T any] struct {
	storage []node[T]
	gaps    map[uint32]bool
}

// NewAllocator creates an empty allocator.
func NewAllocator[T any]() *Allocator[T] {
	return &Allocator[T]{
		storage: []node[T]{},
		gaps:    map[uint32]bool{},
	}
}

// Size returns the number of allocated slots, including free ones.
func (allocator *Allocator[T]) Size() int {
	return len(allocator.storage)
}

// Used returns the number of nodes currently handed out.
func (allocator *Allocator[T]) Used() int {
	if len(allocator.storage) == 0 {
		return 0
	}

	// Slot zero is reserved and never counted.
	return len(allocator.storage) - len(allocator.gaps) - 1
}

// New allocates an isolated node: red, all links null, zero payload.
// The caller owns the node until it is inserted into a tree.
func (allocator *Allocator[T]) New() Node[T] {
	return Node[T]{alloc: allocator, idx: allocator.malloc()}
}

// Free returns an unattached node to the allocator. Freeing a node that is
// still linked into a tree is a contract violation.
func (allocator *Allocator[T]) Free(nd Node[T]) {
	if nd.alloc != allocator {
		usagePanic("node belongs to a different allocator")
	}

	if nd.idx == 0 {
		usagePanic("cannot free a nil node")
	}

	if allocator.storage[nd.idx].linked {
		usagePanic("node #%d must be detached before it is freed", nd.idx)
	}

	allocator.free(nd.idx)
}

// Reserve grows the storage so that at least n more nodes can be allocated
// without reallocation.
func (allocator *Allocator[T]) Reserve(n int) {
	need := len(allocator.storage) + n
	if need <= cap(allocator.storage) {
		return
	}

	grown := make([]node[T], len(allocator.storage), (need*growCapacityNumerator)/growCapacityDenominator)
	copy(grown, allocator.storage)
	allocator.storage = grown
}

func (allocator *Allocator[T]) malloc() uint32 {
	if len(allocator.gaps) > 0 {
		var key uint32

		for key = range allocator.gaps {
			break
		}

		delete(allocator.gaps, key)
		allocator.storage[key] = node[T]{}

		return key
	}

	nodeLen := len(allocator.storage)
	if nodeLen == 0 {
		// Zero is reserved.
		allocator.storage = append(allocator.storage, node[T]{color: Black})
		nodeLen = 1
	}

	if nodeLen > maxNodes {
		panic("rbtree: the allocator has reached the maximum value for uint32 indices")
	}

	allocator.storage = append(allocator.storage, node[T]{})

	return safeconv.MustIntToUint32(nodeLen)
}

// checkLive panics if nodeIdx was returned to the allocator. A freed slot is
// handed out again by the next New, which resets its links.
func (allocator *Allocator[T]) checkLive(nodeIdx uint32) {
	if allocator.gaps[nodeIdx] {
		usagePanic("node #%d has been freed", nodeIdx)
	}
}

func (allocator *Allocator[T]) free(nodeIdx uint32) {
	if nodeIdx == 0 {
		panic("node #0 is special and cannot be deallocated")
	}

	_, exists := allocator.gaps[nodeIdx]
	if exists {
		usagePanic("node #%d is freed twice", nodeIdx)
	}

	allocator.storage[nodeIdx] = node[T]{}
	allocator.gaps[nodeIdx] = true
}

// Node is a handle to a node that is not linked into any tree.
// It is obtained from Allocator.New or Tree.Detach.
type Node[T any] struct {
	alloc *Allocator[T]
	idx   uint32
}

// Nil reports whether the handle refers to no node.
func (nd Node[T]) Nil() bool {
	return nd.idx == 0
}

// Value returns the payload of the node for initialization before insertion.
func (nd Node[T]) Value() *T {
	if nd.idx == 0 {
		return nil
	}

	nd.alloc.checkLive(nd.idx)

	return &nd.alloc.storage[nd.idx].item
}

// Color returns the node color. Detached nodes keep the color they had last.
func (nd Node[T]) Color() Color {
	if nd.idx == 0 {
		return Black
	}

	return nd.alloc.storage[nd.idx].color
}

// Isolated reports whether all links of the node are null.
func (nd Node[T]) Isolated() bool {
	if nd.idx == 0 {
		return true
	}

	hdr := &nd.alloc.storage[nd.idx]

	return !hdr.linked && hdr.parent == 0 && hdr.left == 0 && hdr.right == 0
}

func usagePanic(format string, args ...any) {
	panic(fmt.Errorf("%w: "+format, append([]any{ErrInvalidUsage}, args...)...))
}

func doAssert(condition bool) {
	if !condition {
		panic("rbtree internal assertion failed")
	}
}
