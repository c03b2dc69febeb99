package merk

import "fmt"

// Source resolves a pruned link into the node it references. Implementations
// must not modify the tree; the walker attaches the returned node itself.
type Source interface {
	Fetch(link *Link) (*Node, error)
}

// PanicSource is used when the whole tree is known to be resident. Reaching a
// pruned link is a programming error.
type PanicSource struct{}

var _ Source = PanicSource{}

// Fetch panics with the key of the pruned link.
func (PanicSource) Fetch(link *Link) (*Node, error) {
	panic(fmt.Sprintf("unexpected fetch of pruned node %X", link.Key()))
}

//go:generate mockgen -destination=internal/mock/mock_merk.go -package=mock github.com/cosmos/merk Source,Committer
