package merk

import "github.com/pkg/errors"

var (
	// ErrDuplicateKey is returned when a batch holds two entries for one key.
	ErrDuplicateKey = errors.New("duplicate key in batch")

	// ErrUnsortedBatch is returned when batch keys are not in ascending order.
	ErrUnsortedBatch = errors.New("batch keys are not sorted")

	// ErrDeleteOnEmpty is returned when a batch deletes a key the tree does
	// not hold.
	ErrDeleteOnEmpty = errors.New("tried to delete non-existent key")

	// ErrNotFound is returned by a Source when a referenced node is missing
	// from the backing store.
	ErrNotFound = errors.New("node not found")

	// ErrCorrupt is returned by a Source when stored bytes do not decode to
	// the node they are supposed to hold.
	ErrCorrupt = errors.New("corrupt node")

	// ErrNodeModified is returned when encoding a node whose hash, or whose
	// resident child's hash, is stale.
	ErrNodeModified = errors.New("node has uncommitted changes")
)
