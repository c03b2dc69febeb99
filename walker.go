package merk

import (
	"github.com/pkg/errors"
)

// Walker applies batches to trees, resolving pruned children through its
// Source as the batch reaches them.
//
// The walker never writes to a node that is reachable from the tree it was
// given. Every node it changes is copied first, so the caller's tree is left
// exactly as it was whether the apply succeeds or fails. Subtrees the batch
// does not reach are shared between the old and the new tree.
type Walker struct {
	source  Source
	deleted [][]byte
}

// NewWalker returns a walker that fetches pruned nodes from source.
func NewWalker(source Source) *Walker {
	return &Walker{source: source}
}

// Apply applies batch to tree, which may be nil, and returns the new root,
// or nil if the tree is now empty. Every changed node, and every ancestor of
// one, is left modified until the new tree is committed.
func Apply(tree *Node, batch Batch, source Source) (*Node, error) {
	return NewWalker(source).Apply(tree, batch)
}

// Apply is the Walker form of the package-level Apply. The keys removed by
// the batch are available from Deleted until the next call.
func (w *Walker) Apply(tree *Node, batch Batch) (*Node, error) {
	w.deleted = nil
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	root, err := w.applyTo(tree, batch)
	if err != nil {
		w.deleted = nil
		return nil, err
	}
	return root, nil
}

// Deleted returns the keys of the nodes removed by the last successful Apply.
func (w *Walker) Deleted() [][]byte {
	return w.deleted
}

func (w *Walker) applyTo(tree *Node, batch Batch) (*Node, error) {
	if len(batch) == 0 {
		return tree, nil
	}
	if tree == nil {
		return w.build(batch)
	}
	return w.applySorted(tree, batch)
}

// build creates a balanced subtree from a batch of puts, rooted at the
// middle entry.
func (w *Walker) build(batch Batch) (*Node, error) {
	mid := len(batch) / 2
	entry := batch[mid]
	if entry.Op.Type != OpPut {
		return nil, errors.Wrapf(ErrDeleteOnEmpty, "key %X", entry.Key)
	}
	return w.recurse(NewNode(entry.Key, entry.Op.Value), batch, mid, true)
}

func (w *Walker) applySorted(tree *Node, batch Batch) (*Node, error) {
	idx, found := batch.search(tree.key)
	if found && batch[idx].Op.Type == OpDelete {
		rest, err := w.remove(tree)
		if err != nil {
			return nil, err
		}
		w.deleted = append(w.deleted, tree.key)

		// Both halves go through one pass so the new path is copied once.
		remaining := make(Batch, 0, len(batch)-1)
		remaining = append(remaining, batch[:idx]...)
		remaining = append(remaining, batch[idx+1:]...)
		return w.applyTo(rest, remaining)
	}

	node := tree.clone()
	if found {
		node.value = batch[idx].Op.Value
	}
	return w.recurse(node, batch, idx, found)
}

// recurse applies the entries on either side of mid to the matching child of
// node, then rebalances. node must already belong to this walk.
func (w *Walker) recurse(node *Node, batch Batch, mid int, exclusive bool) (*Node, error) {
	leftBatch := batch[:mid]
	rightBatch := batch[mid:]
	if exclusive {
		rightBatch = batch[mid+1:]
	}

	if len(leftBatch) > 0 {
		if err := w.walk(node, true, leftBatch); err != nil {
			return nil, err
		}
	}
	if len(rightBatch) > 0 {
		if err := w.walk(node, false, rightBatch); err != nil {
			return nil, err
		}
	}
	return w.maybeBalance(node)
}

func (w *Walker) walk(node *Node, left bool, batch Batch) error {
	child, err := node.child(w.source, left)
	if err != nil {
		return err
	}
	child, err = w.applyTo(child, batch)
	if err != nil {
		return err
	}
	node.attach(left, child)
	return nil
}

// remove splices node out of its subtree and returns what replaces it.
func (w *Walker) remove(node *Node) (*Node, error) {
	hasLeft := node.left != nil
	hasRight := node.right != nil
	left := node.ChildHeight(true) > node.ChildHeight(false)

	switch {
	case hasLeft && hasRight:
		// Two children: promote the nearest edge of the taller child.
		tall, err := node.child(w.source, left)
		if err != nil {
			return nil, err
		}
		short, err := node.child(w.source, !left)
		if err != nil {
			return nil, err
		}
		return w.promoteEdge(tall, !left, short)
	case hasLeft || hasRight:
		return node.child(w.source, left)
	default:
		return nil, nil
	}
}

// promoteEdge removes the outermost node on the given side of tree and makes
// it the root of tree's remainder, with attach as its other child.
func (w *Walker) promoteEdge(tree *Node, left bool, attach *Node) (*Node, error) {
	edge, rest, err := w.removeEdge(tree, left)
	if err != nil {
		return nil, err
	}
	edge.attach(!left, rest)
	edge.attach(left, attach)
	return w.maybeBalance(edge)
}

// removeEdge detaches the outermost node on the given side of tree. It
// returns a copy of that node, with no children, and the rebalanced
// remainder of tree.
func (w *Walker) removeEdge(tree *Node, left bool) (edge *Node, rest *Node, err error) {
	if tree.Link(left) == nil {
		rest, err = tree.child(w.source, !left)
		if err != nil {
			return nil, nil, err
		}
		edge = tree.clone()
		edge.attach(!left, nil)
		return edge, rest, nil
	}

	child, err := tree.child(w.source, left)
	if err != nil {
		return nil, nil, err
	}
	edge, childRest, err := w.removeEdge(child, left)
	if err != nil {
		return nil, nil, err
	}
	node := tree.clone()
	node.attach(left, childRest)
	rest, err = w.maybeBalance(node)
	if err != nil {
		return nil, nil, err
	}
	return edge, rest, nil
}

// maybeBalance restores the AVL property at node, which must belong to this
// walk, and returns the root of the rebalanced subtree.
func (w *Walker) maybeBalance(node *Node) (*Node, error) {
	balance := node.BalanceFactor()
	if balance >= -1 && balance <= 1 {
		return node, nil
	}

	left := balance < 0
	child, err := w.ownChild(node, left)
	if err != nil {
		return nil, err
	}
	// A child leaning the other way needs a double rotation.
	if left == (child.BalanceFactor() > 0) {
		child, err = w.rotate(child, !left)
		if err != nil {
			return nil, err
		}
		node.attach(left, child)
	}
	return w.rotate(node, left)
}

// rotate lifts node's child on the given side above it. The grandchild that
// changes parent is moved by link, so a pruned grandchild stays pruned.
func (w *Walker) rotate(node *Node, left bool) (*Node, error) {
	child, err := w.ownChild(node, left)
	if err != nil {
		return nil, err
	}

	node.setLink(left, child.Link(!left))
	node.updateHeightSize()
	node.modified = true
	node, err = w.maybeBalance(node)
	if err != nil {
		return nil, err
	}

	child.attach(!left, node)
	return w.maybeBalance(child)
}

// ownChild returns a copy of node's child on the given side that the walk may
// modify. The child must exist.
func (w *Walker) ownChild(node *Node, left bool) (*Node, error) {
	child, err := node.child(w.source, left)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, errors.Errorf("expected child on %s side of %X", sideName(left), node.key)
	}
	return child.clone(), nil
}

func sideName(left bool) string {
	if left {
		return "left"
	}
	return "right"
}
