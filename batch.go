package merk

import (
	"bytes"
	"sort"

	"github.com/pkg/errors"
)

// OpType distinguishes the operations a batch entry can carry.
type OpType uint8

const (
	OpPut OpType = iota
	OpDelete
)

func (t OpType) String() string {
	switch t {
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Op is a single mutation. Value is only meaningful for OpPut.
type Op struct {
	Type  OpType
	Value []byte
}

// Put returns an operation that inserts or replaces a value.
func Put(value []byte) Op {
	return Op{Type: OpPut, Value: value}
}

// Delete returns an operation that removes a key.
func Delete() Op {
	return Op{Type: OpDelete}
}

// BatchEntry pairs a key with the operation to apply to it.
type BatchEntry struct {
	Key []byte
	Op  Op
}

// Batch is a sequence of entries with strictly increasing keys.
type Batch []BatchEntry

// Validate checks that keys are strictly increasing, which also rules out
// duplicates.
func (b Batch) Validate() error {
	for i := 1; i < len(b); i++ {
		switch bytes.Compare(b[i-1].Key, b[i].Key) {
		case 0:
			return errors.Wrapf(ErrDuplicateKey, "key %X at index %d", b[i].Key, i)
		case 1:
			return errors.Wrapf(ErrUnsortedBatch, "key %X at index %d sorts before %X", b[i].Key, i, b[i-1].Key)
		}
	}
	return nil
}

// Sort orders the batch by key in place. The sort is stable, so duplicate
// keys keep their relative order and are still reported by Validate.
func (b Batch) Sort() {
	sort.SliceStable(b, func(i, j int) bool {
		return bytes.Compare(b[i].Key, b[j].Key) < 0
	})
}

// search returns the index of the first entry whose key is >= key, and
// whether that entry's key equals key.
func (b Batch) search(key []byte) (int, bool) {
	i := sort.Search(len(b), func(i int) bool {
		return bytes.Compare(b[i].Key, key) >= 0
	})
	return i, i < len(b) && bytes.Equal(b[i].Key, key)
}
