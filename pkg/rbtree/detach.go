package rbtree

// Detach unlinks the element from the tree and hands the now isolated node
// back to the caller, who may reinsert or Free it. The node keeps its payload
// and its last color; all of its links become null.
//
// Detaching a Ref that is nil or not linked in this tree is a contract
// violation.
func (tree *Tree[T]) Detach(ref Ref[T]) Node[T] {
	if ref.tree != tree {
		usagePanic("reference does not belong to this tree")
	}

	if !tree.contains(ref.idx) {
		usagePanic("node #%d is not linked in this tree", ref.idx)
	}

	tree.doDetach(ref.idx)

	return Node[T]{alloc: tree.allocator, idx: ref.idx}
}

// Delete detaches the element and frees its node through the bound allocator.
func (tree *Tree[T]) Delete(ref Ref[T]) {
	tree.allocator.Free(tree.Detach(ref))
}

// DeleteKey deletes the element comparing equal to key. Returns true iff
// such an element was found.
func (tree *Tree[T]) DeleteKey(key T) bool {
	ref := tree.Find(key)
	if ref.Nil() {
		return false
	}

	tree.Delete(ref)

	return true
}

// Clear detaches and frees all the elements.
func (tree *Tree[T]) Clear() {
	alloc := tree.storage()
	nodes := make([]uint32, 0, tree.count)

	for nodeIdx := leftmost(tree.root, alloc); nodeIdx != 0; nodeIdx = doNext(nodeIdx, alloc) {
		nodes = append(nodes, nodeIdx)
	}

	for _, nodeIdx := range nodes {
		tree.allocator.free(nodeIdx)
	}

	tree.stats.Detaches += int64(len(nodes))
	tree.root = 0
	tree.count = 0
}

// contains checks that nodeIdx is linked and that its ancestry ends at our root.
// Several trees may share one allocator, so the linked flag alone is not enough.
func (tree *Tree[T]) contains(nodeIdx uint32) bool {
	if nodeIdx == 0 || tree.root == 0 {
		return false
	}

	alloc := tree.storage()
	if !alloc[nodeIdx].linked {
		return false
	}

	for alloc[nodeIdx].parent != 0 {
		nodeIdx = alloc[nodeIdx].parent
	}

	return nodeIdx == tree.root
}

// Remove N from the tree, leaving it isolated.
func (tree *Tree[T]) doDetach(nodeIdx uint32) {
	alloc := tree.storage()

	// A node with two children trades places with its in-order successor,
	// which has no left child. Payloads stay with their nodes.
	if alloc[nodeIdx].left != 0 && alloc[nodeIdx].right != 0 {
		tree.swapNodes(nodeIdx, leftmost(alloc[nodeIdx].right, alloc))
	}

	doAssert(alloc[nodeIdx].left == 0 || alloc[nodeIdx].right == 0)

	child := alloc[nodeIdx].left
	if child == 0 {
		child = alloc[nodeIdx].right
	}

	parent := alloc[nodeIdx].parent

	tree.replaceChild(parent, nodeIdx, child)

	if child != 0 {
		alloc[child].parent = parent
	}

	if alloc[nodeIdx].color == Black {
		if getColor(child, alloc) == Red {
			// The red child absorbs the lost black node.
			alloc[child].color = Black
		} else {
			tree.detachFixup(child, parent)
		}
	}

	hdr := &alloc[nodeIdx]
	hdr.parent = 0
	hdr.left = 0
	hdr.right = 0
	hdr.linked = false

	tree.count--
	tree.stats.Detaches++
}

// detachFixup resolves the black-height deficit at X, a possibly null node
// whose parent is given explicitly.
//
//nolint:gocognit,cyclop // the six deletion cases are clearer inline.
func (tree *Tree[T]) detachFixup(x, parent uint32) {
	alloc := tree.storage()

	for x != tree.root && getColor(x, alloc) == Black {
		// Case 1 (X is the root) ends the loop.
		if x == alloc[parent].left {
			sib := alloc[parent].right

			// Case 2: red sibling. Rotate it above the parent so that X gets a black sibling.
			if getColor(sib, alloc) == Red {
				alloc[sib].color = Black
				alloc[parent].color = Red
				tree.rotateLeft(parent)
				sib = alloc[parent].right
			}

			doAssert(sib != 0)

			if getColor(alloc[sib].left, alloc) == Black && getColor(alloc[sib].right, alloc) == Black {
				alloc[sib].color = Red

				// Case 4: red parent takes the black of the sibling.
				if alloc[parent].color == Red {
					alloc[parent].color = Black

					return
				}

				// Case 3: everything black, push the deficit up.
				x = parent
				parent = alloc[x].parent

				continue
			}

			// Case 5: far child black, near child red.
			if getColor(alloc[sib].right, alloc) == Black {
				alloc[alloc[sib].left].color = Black
				alloc[sib].color = Red
				tree.rotateRight(sib)
				sib = alloc[parent].right
			}

			// Case 6: far child red.
			alloc[sib].color = alloc[parent].color
			alloc[parent].color = Black
			alloc[alloc[sib].right].color = Black
			tree.rotateLeft(parent)

			return
		}

		sib := alloc[parent].left

		// Case 2, mirrored.
		if getColor(sib, alloc) == Red {
			alloc[sib].color = Black
			alloc[parent].color = Red
			tree.rotateRight(parent)
			sib = alloc[parent].left
		}

		doAssert(sib != 0)

		if getColor(alloc[sib].left, alloc) == Black && getColor(alloc[sib].right, alloc) == Black {
			alloc[sib].color = Red

			// Case 4, mirrored.
			if alloc[parent].color == Red {
				alloc[parent].color = Black

				return
			}

			// Case 3, mirrored.
			x = parent
			parent = alloc[x].parent

			continue
		}

		// Case 5, mirrored.
		if getColor(alloc[sib].left, alloc) == Black {
			alloc[alloc[sib].right].color = Black
			alloc[sib].color = Red
			tree.rotateLeft(sib)
			sib = alloc[parent].left
		}

		// Case 6, mirrored.
		alloc[sib].color = alloc[parent].color
		alloc[parent].color = Black
		alloc[alloc[sib].left].color = Black
		tree.rotateRight(parent)

		return
	}
}

// swapNodes exchanges the structural identity of A and B: color, parent and
// children, together with every link pointing at them from their neighbors
// and from the root. Payloads stay attached to their nodes.
//
// The links are rewritten through a substitution that maps A to B and B to A,
// which covers every layout in one pass:
//   - unrelated nodes;
//   - siblings, whose shared parent is rewritten once;
//   - A the parent of B or B the parent of A, where the link between them
//     turns around instead of becoming a self-reference;
//   - either node at the root.
func (tree *Tree[T]) swapNodes(a, b uint32) {
	doAssert(a != 0 && b != 0 && a != b)

	alloc := tree.storage()
	oldA, oldB := alloc[a], alloc[b]

	subst := func(idx uint32) uint32 {
		switch idx {
		case a:
			return b
		case b:
			return a
		default:
			return idx
		}
	}

	alloc[a].parent = subst(oldB.parent)
	alloc[a].left = subst(oldB.left)
	alloc[a].right = subst(oldB.right)
	alloc[a].color = oldB.color

	alloc[b].parent = subst(oldA.parent)
	alloc[b].left = subst(oldA.left)
	alloc[b].right = subst(oldA.right)
	alloc[b].color = oldA.color

	// Former parents; a shared one is rewritten only once.
	for i, parent := range []uint32{oldA.parent, oldB.parent} {
		if parent == 0 || parent == a || parent == b || (i == 1 && parent == oldA.parent) {
			continue
		}

		alloc[parent].left = subst(alloc[parent].left)
		alloc[parent].right = subst(alloc[parent].right)
	}

	// Former children.
	for _, child := range []uint32{oldA.left, oldA.right, oldB.left, oldB.right} {
		if child == 0 || child == a || child == b {
			continue
		}

		alloc[child].parent = subst(alloc[child].parent)
	}

	switch tree.root {
	case a:
		tree.root = b
	case b:
		tree.root = a
	}

	tree.stats.Swaps++
}
