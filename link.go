package merk

import (
	"fmt"
)

// Link is the edge from a parent node to one of its children. A link is either
// resident, owning the child node in memory, or pruned, in which case it only
// records enough about the child to hash and balance its parent. A pruned link
// must be resolved through a Source before the child can be read or mutated.
type Link struct {
	node *Node

	// Only meaningful while pruned.
	key    []byte
	hash   Hash
	height uint8
	size   int64
}

// NewPrunedLink returns a reference to a child that is not held in memory.
func NewPrunedLink(key []byte, hash Hash, height uint8, size int64) *Link {
	return &Link{
		key:    key,
		hash:   hash,
		height: height,
		size:   size,
	}
}

func newResidentLink(node *Node) *Link {
	if node == nil {
		return nil
	}
	return &Link{node: node}
}

// IsPruned reports whether the child must be fetched before use.
func (l *Link) IsPruned() bool {
	return l.node == nil
}

// Node returns the resident child, or nil if the link is pruned.
func (l *Link) Node() *Node {
	return l.node
}

// Key returns the key of the child node.
func (l *Link) Key() []byte {
	if l.node != nil {
		return l.node.key
	}
	return l.key
}

// Hash returns the child's hash. For a resident child it is only valid once
// the child has been committed.
func (l *Link) Hash() Hash {
	if l.node != nil {
		return l.node.hash
	}
	return l.hash
}

// Height returns the height of the child's subtree.
func (l *Link) Height() uint8 {
	if l.node != nil {
		return l.node.height
	}
	return l.height
}

// Size returns the number of nodes in the child's subtree.
func (l *Link) Size() int64 {
	if l.node != nil {
		return l.node.size
	}
	return l.size
}

// IsModified reports whether the child is resident and has uncommitted changes.
func (l *Link) IsModified() bool {
	return l.node != nil && l.node.modified
}

// prune replaces a resident, clean child with a reference to it.
func (l *Link) prune() {
	if l.node == nil {
		return
	}
	if l.node.modified {
		panic(fmt.Sprintf("cannot prune modified node %X", l.node.key))
	}
	l.key = l.node.key
	l.hash = l.node.hash
	l.height = l.node.height
	l.size = l.node.size
	l.node = nil
}

func (l *Link) clone() *Link {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

func (l *Link) String() string {
	if l.node != nil {
		return fmt.Sprintf("resident(%X)", l.node.key)
	}
	return fmt.Sprintf("pruned(%X %s h=%d n=%d)", l.key, l.hash, l.height, l.size)
}
