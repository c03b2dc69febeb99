// Package testutil builds batches and trees for tests and checks the
// structural and hash invariants of committed trees.
package testutil

import (
	"bytes"
	"encoding/binary"
	"math/rand"

	"github.com/stretchr/testify/require"

	"github.com/cosmos/merk"
)

type helper interface {
	Helper()
}

func markHelper(t require.TestingT) {
	if h, ok := t.(helper); ok {
		h.Helper()
	}
}

// AssertTreeInvariants checks every resident node under node: keys are
// ordered, balance factors are within one, heights and sizes add up, no
// resident child of a clean node is modified, and every clean node's hash
// matches its contents.
func AssertTreeInvariants(t require.TestingT, node *merk.Node) {
	markHelper(t)
	assertInvariants(t, node, nil, nil)
}

func assertInvariants(t require.TestingT, node *merk.Node, lower, upper []byte) {
	markHelper(t)
	key := node.Key()
	if lower != nil {
		require.True(t, bytes.Compare(lower, key) < 0, "key %X not above %X", key, lower)
	}
	if upper != nil {
		require.True(t, bytes.Compare(key, upper) < 0, "key %X not below %X", key, upper)
	}

	bf := node.BalanceFactor()
	require.True(t, bf > -2 && bf < 2, "balance factor %d at %X", bf, key)

	left, right := node.ChildHeight(true), node.ChildHeight(false)
	height := left
	if right > height {
		height = right
	}
	require.Equal(t, height+1, node.Height(), "height at %X", key)

	var size int64 = 1
	for _, isLeft := range []bool{true, false} {
		link := node.Link(isLeft)
		if link == nil {
			continue
		}
		size += link.Size()
		if isLeft {
			require.True(t, bytes.Compare(link.Key(), key) < 0, "left child %X of %X", link.Key(), key)
		} else {
			require.True(t, bytes.Compare(link.Key(), key) > 0, "right child %X of %X", link.Key(), key)
		}
		if !node.IsModified() {
			require.False(t, link.IsModified(), "modified child %X under clean node %X", link.Key(), key)
		}
	}
	require.Equal(t, size, node.Size(), "size at %X", key)

	if !node.IsModified() {
		expected := merk.NodeHash(merk.KVHash(key, node.Value()), node.ChildHash(true), node.ChildHash(false))
		require.Equal(t, expected, node.Hash(), "hash at %X", key)
	}

	if child := node.Child(true); child != nil {
		assertInvariants(t, child, lower, key)
	}
	if child := node.Child(false); child != nil {
		assertInvariants(t, child, key, upper)
	}
}

// ApplyMemOnlyUnchecked applies batch to a fully resident tree and commits
// the result in memory.
func ApplyMemOnlyUnchecked(t require.TestingT, tree *merk.Node, batch merk.Batch) *merk.Node {
	markHelper(t)
	root, err := merk.Apply(tree, batch, merk.PanicSource{})
	require.NoError(t, err, "apply failed")
	require.NotNil(t, root, "expected tree")
	require.NoError(t, root.Commit(merk.NoopCommitter{}), "commit failed")
	return root
}

// ApplyMemOnly is ApplyMemOnlyUnchecked followed by AssertTreeInvariants.
func ApplyMemOnly(t require.TestingT, tree *merk.Node, batch merk.Batch) *merk.Node {
	markHelper(t)
	root := ApplyMemOnlyUnchecked(t, tree, batch)
	AssertTreeInvariants(t, root)
	return root
}

// ApplyToMemOnly is ApplyMemOnly for a tree that may be nil or become empty.
func ApplyToMemOnly(t require.TestingT, tree *merk.Node, batch merk.Batch) *merk.Node {
	markHelper(t)
	root, err := merk.Apply(tree, batch, merk.PanicSource{})
	require.NoError(t, err, "apply failed")
	if root == nil {
		return nil
	}
	require.NoError(t, root.Commit(merk.NoopCommitter{}), "commit failed")
	AssertTreeInvariants(t, root)
	return root
}

// Key encodes n as an 8-byte big-endian key, so numeric and key order agree.
func Key(n uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, n)
	return key
}

// DefaultValue is the value written by PutEntry.
func DefaultValue() []byte {
	return bytes.Repeat([]byte{123}, 60)
}

func PutEntry(n uint64) merk.BatchEntry {
	return merk.BatchEntry{Key: Key(n), Op: merk.Put(DefaultValue())}
}

func DelEntry(n uint64) merk.BatchEntry {
	return merk.BatchEntry{Key: Key(n), Op: merk.Delete()}
}

// MakeBatchSeq returns puts for the keys start through end-1.
func MakeBatchSeq(start, end uint64) merk.Batch {
	batch := make(merk.Batch, 0, end-start)
	for n := start; n < end; n++ {
		batch = append(batch, PutEntry(n))
	}
	return batch
}

// MakeDelBatchSeq returns deletes for the keys start through end-1.
func MakeDelBatchSeq(start, end uint64) merk.Batch {
	batch := make(merk.Batch, 0, end-start)
	for n := start; n < end; n++ {
		batch = append(batch, DelEntry(n))
	}
	return batch
}

// MakeBatchRand returns up to size puts of random keys drawn from seed.
func MakeBatchRand(size uint64, seed int64) merk.Batch {
	r := rand.New(rand.NewSource(seed))
	batch := make(merk.Batch, 0, size)
	for i := uint64(0); i < size; i++ {
		batch = append(batch, PutEntry(r.Uint64()))
	}
	return SortDedupe(batch)
}

// MakeDelBatchRand returns the deletes matching MakeBatchRand(size, seed).
func MakeDelBatchRand(size uint64, seed int64) merk.Batch {
	r := rand.New(rand.NewSource(seed))
	batch := make(merk.Batch, 0, size)
	for i := uint64(0); i < size; i++ {
		batch = append(batch, DelEntry(r.Uint64()))
	}
	return SortDedupe(batch)
}

// RandomValue returns size random bytes from r.
func RandomValue(r *rand.Rand, size int) []byte {
	value := make([]byte, size)
	r.Read(value)
	return value
}

// MakeMixedBatchRand returns a batch of roughly size entries that inserts new
// keys and updates and deletes keys already in tree, which must be fully
// resident. A nil tree only gets inserts.
func MakeMixedBatchRand(t require.TestingT, tree *merk.Node, size uint64, seed int64) merk.Batch {
	markHelper(t)
	r := rand.New(rand.NewSource(seed))

	var keys [][]byte
	if tree != nil {
		err := tree.Iterate(merk.PanicSource{}, func(key, _ []byte) bool {
			keys = append(keys, key)
			return false
		})
		require.NoError(t, err)
	}

	batch := make(merk.Batch, 0, size)
	for i := uint64(0); i < size; i++ {
		kind := 0
		if len(keys) > 0 {
			kind = r.Intn(3)
		}
		switch kind {
		case 0:
			batch = append(batch, merk.BatchEntry{Key: RandomValue(r, 4), Op: merk.Put(RandomValue(r, 2))})
		case 1:
			key := keys[r.Intn(len(keys))]
			batch = append(batch, merk.BatchEntry{Key: key, Op: merk.Put(RandomValue(r, 2))})
		default:
			key := keys[r.Intn(len(keys))]
			batch = append(batch, merk.BatchEntry{Key: key, Op: merk.Delete()})
		}
	}
	return SortDedupe(batch)
}

// SortDedupe sorts batch by key and keeps only the last entry for each key.
func SortDedupe(batch merk.Batch) merk.Batch {
	batch.Sort()
	out := batch[:0]
	for _, entry := range batch {
		if n := len(out); n > 0 && bytes.Equal(out[n-1].Key, entry.Key) {
			out[n-1] = entry
			continue
		}
		out = append(out, entry)
	}
	return out
}

// MakeTreeRand builds a committed tree from nodeCount/batchSize random
// batches, starting from a single node with a 20-byte zero key.
func MakeTreeRand(t require.TestingT, nodeCount, batchSize uint64, initialSeed int64) *merk.Node {
	markHelper(t)
	require.True(t, nodeCount >= batchSize)
	require.Zero(t, nodeCount%batchSize)

	tree := newSeedTree(t)
	seed := initialSeed
	for i := uint64(0); i < nodeCount/batchSize; i++ {
		tree = ApplyMemOnly(t, tree, MakeBatchRand(batchSize, seed))
		seed++
	}
	return tree
}

// MakeTreeSeq builds a committed tree holding the sequential keys
// 0..nodeCount-1 plus a single 20-byte zero key.
func MakeTreeSeq(t require.TestingT, nodeCount uint64) *merk.Node {
	markHelper(t)
	batchSize := nodeCount
	if nodeCount >= 10_000 {
		require.Zero(t, nodeCount%10_000)
		batchSize = 10_000
	}

	tree := newSeedTree(t)
	for i := uint64(0); i < nodeCount/batchSize; i++ {
		tree = ApplyMemOnly(t, tree, MakeBatchSeq(i*batchSize, (i+1)*batchSize))
	}
	return tree
}

func newSeedTree(t require.TestingT) *merk.Node {
	return ApplyMemOnly(t, nil, merk.Batch{{Key: make([]byte, 20), Op: merk.Put(DefaultValue())}})
}

// Keys returns the keys of a fully resident tree in order.
func Keys(t require.TestingT, tree *merk.Node) [][]byte {
	markHelper(t)
	var keys [][]byte
	if tree == nil {
		return keys
	}
	err := tree.Iterate(merk.PanicSource{}, func(key, _ []byte) bool {
		keys = append(keys, key)
		return false
	})
	require.NoError(t, err)
	return keys
}
