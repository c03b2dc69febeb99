package merk

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Committer receives every node that a commit pass makes clean.
type Committer interface {
	// Write is called once per committed node, after its hash has been
	// recomputed and after all of its modified descendants were written. The
	// node is already clean, so it can be encoded. If Write fails the node is
	// marked modified again.
	Write(node *Node) error

	// Prune reports whether the node's left and right children should be
	// replaced by pruned references once the node is written.
	Prune(node *Node) (left, right bool)
}

// NoopCommitter keeps the whole tree in memory and persists nothing.
type NoopCommitter struct{}

var _ Committer = NoopCommitter{}

func (NoopCommitter) Write(*Node) error {
	return nil
}

func (NoopCommitter) Prune(*Node) (bool, bool) {
	return false, false
}

// Commit recomputes the hash of every modified node in the subtree, children
// first, and hands each to c. Clean subtrees are skipped, so the cost is
// proportional to the size of the change.
//
// An error from c aborts the pass and is returned as is. Nodes written before
// the error stay committed.
func (node *Node) Commit(c Committer) error {
	if !node.modified {
		return nil
	}
	for _, left := range [2]bool{true, false} {
		if l := node.Link(left); l != nil && l.IsModified() {
			if err := l.node.Commit(c); err != nil {
				return err
			}
		}
	}
	return node.commitSelf(c)
}

func (node *Node) commitSelf(c Committer) error {
	node.hash = node.computeHash()
	node.modified = false
	if err := c.Write(node); err != nil {
		node.modified = true
		return err
	}

	pruneLeft, pruneRight := c.Prune(node)
	if pruneLeft && node.left != nil {
		node.left.prune()
	}
	if pruneRight && node.right != nil {
		node.right.prune()
	}
	return nil
}

// CommitParallel is Commit with disjoint modified subtrees committed
// concurrently by up to workers goroutines. c must be safe for concurrent
// use. Each node is still written after all of its modified descendants.
func (node *Node) CommitParallel(ctx context.Context, c Committer, workers int) error {
	if !node.modified {
		return nil
	}
	if workers <= 1 {
		return node.Commit(c)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, sub := range node.frontier(frontierDepth(workers)) {
		sub := sub
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return sub.Commit(c)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	// Everything below the frontier is clean now.
	return node.Commit(c)
}

// frontier returns the modified nodes found depth levels below node, plus any
// modified node above that depth with no modified children.
func (node *Node) frontier(depth int) []*Node {
	if depth == 0 {
		return []*Node{node}
	}
	var out []*Node
	for _, left := range [2]bool{true, false} {
		if l := node.Link(left); l != nil && l.IsModified() {
			out = append(out, l.node.frontier(depth-1)...)
		}
	}
	if len(out) == 0 {
		out = append(out, node)
	}
	return out
}

// frontierDepth is the shallowest depth with at least 2*workers subtrees in
// a full tree.
func frontierDepth(workers int) int {
	depth := 1
	for 1<<depth < 2*workers {
		depth++
	}
	return depth
}
