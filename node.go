package merk

// NOTE: sizes are int64 throughout, heights are uint8. A balanced tree with
// 2^64 nodes is still well under 255 levels tall.

import (
	"bytes"
	"fmt"
)

// Node is a single vertex of the tree. It exclusively owns its child links.
type Node struct {
	key      []byte
	value    []byte
	hash     Hash
	left     *Link
	right    *Link
	height   uint8
	size     int64
	modified bool
}

// NewNode returns a new, uncommitted leaf.
func NewNode(key []byte, value []byte) *Node {
	return &Node{
		key:      key,
		value:    value,
		height:   1,
		size:     1,
		modified: true,
	}
}

// Key returns the node's key. It must not be modified.
func (node *Node) Key() []byte {
	return node.key
}

// Value returns the node's value.
func (node *Node) Value() []byte {
	return node.value
}

// Hash returns the cached hash. It is stale while the node is modified.
func (node *Node) Hash() Hash {
	return node.hash
}

// Height returns the height of the subtree rooted at this node; a leaf is 1.
func (node *Node) Height() uint8 {
	return node.height
}

// Size returns the number of nodes in the subtree, resident or not.
func (node *Node) Size() int64 {
	return node.size
}

// IsModified reports whether the node has changed since it was last committed.
func (node *Node) IsModified() bool {
	return node.modified
}

// Link returns the link on the given side (left if true), or nil.
func (node *Node) Link(left bool) *Link {
	if left {
		return node.left
	}
	return node.right
}

// Child returns the resident child on the given side, or nil if there is no
// child or it is pruned.
func (node *Node) Child(left bool) *Node {
	if l := node.Link(left); l != nil {
		return l.node
	}
	return nil
}

// ChildHeight returns the height of the child on the given side, 0 if absent.
func (node *Node) ChildHeight(left bool) uint8 {
	if l := node.Link(left); l != nil {
		return l.Height()
	}
	return 0
}

// ChildHash returns the hash of the child on the given side, or NullHash.
func (node *Node) ChildHash(left bool) Hash {
	if l := node.Link(left); l != nil {
		return l.Hash()
	}
	return NullHash
}

func (node *Node) childSize(left bool) int64 {
	if l := node.Link(left); l != nil {
		return l.Size()
	}
	return 0
}

// BalanceFactor is the right subtree's height minus the left's.
func (node *Node) BalanceFactor() int {
	return int(node.ChildHeight(false)) - int(node.ChildHeight(true))
}

// computeHash derives the node hash from the current key, value and child
// hashes. Children must already be committed.
func (node *Node) computeHash() Hash {
	return NodeHash(KVHash(node.key, node.value), node.ChildHash(true), node.ChildHash(false))
}

// clone returns a modified shallow copy. Child links are copied so that the
// copy can resolve, replace or prune them without touching the original.
func (node *Node) clone() *Node {
	return &Node{
		key:      node.key,
		value:    node.value,
		hash:     node.hash,
		left:     node.left.clone(),
		right:    node.right.clone(),
		height:   node.height,
		size:     node.size,
		modified: true,
	}
}

func (node *Node) setLink(left bool, link *Link) {
	if left {
		node.left = link
	} else {
		node.right = link
	}
}

// attach replaces the child on the given side. child may be nil.
func (node *Node) attach(left bool, child *Node) *Node {
	if child != nil && child == node {
		panic("cannot attach node to itself")
	}
	node.setLink(left, newResidentLink(child))
	node.updateHeightSize()
	node.modified = true
	return node
}

func (node *Node) updateHeightSize() {
	node.height = maxUint8(node.ChildHeight(true), node.ChildHeight(false)) + 1
	node.size = node.childSize(true) + node.childSize(false) + 1
}

// child returns the child on the given side, fetching it through source
// without attaching it if it is pruned.
func (node *Node) child(source Source, left bool) (*Node, error) {
	l := node.Link(left)
	if l == nil {
		return nil, nil
	}
	if l.node != nil {
		return l.node, nil
	}
	return source.Fetch(l)
}

// get returns the value stored under key in the subtree, or nil. Pruned nodes
// on the path are fetched but the tree is left as it was.
func (node *Node) get(source Source, key []byte) ([]byte, error) {
	for node != nil {
		cmp := bytes.Compare(key, node.key)
		if cmp == 0 {
			return node.value, nil
		}
		var err error
		node, err = node.child(source, cmp < 0)
		if err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// traverse calls fn for every key/value pair in ascending order until fn
// returns true. Pruned subtrees are fetched and discarded as they are
// visited.
func (node *Node) traverse(source Source, fn func(key, value []byte) bool) (stopped bool, err error) {
	if node == nil {
		return false, nil
	}
	left, err := node.child(source, true)
	if err != nil {
		return false, err
	}
	if stopped, err := left.traverse(source, fn); stopped || err != nil {
		return stopped, err
	}
	if fn(node.key, node.value) {
		return true, nil
	}
	right, err := node.child(source, false)
	if err != nil {
		return false, err
	}
	return right.traverse(source, fn)
}

// Iterate visits every key/value pair of the subtree in ascending key order
// until fn returns true. source resolves pruned children; the tree itself is
// not changed.
func (node *Node) Iterate(source Source, fn func(key, value []byte) bool) error {
	_, err := node.traverse(source, fn)
	return err
}

// String returns a string representation of the node.
func (node *Node) String() string {
	return fmt.Sprintf("Node{%X:%X h=%d n=%d modified=%v #%s L=%v R=%v}",
		node.key, node.value, node.height, node.size, node.modified, node.hash, node.left, node.right)
}

func maxUint8(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}
