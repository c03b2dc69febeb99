package merk_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmos/merk"
	"github.com/cosmos/merk/internal/mock"
	"github.com/cosmos/merk/testutil"
)

func TestCommitWritesModifiedNodes(t *testing.T) {
	ctrl := gomock.NewController(t)
	root, err := merk.Apply(nil, testutil.MakeBatchSeq(0, 31), merk.PanicSource{})
	require.NoError(t, err)

	written := map[string]bool{}
	c := mock.NewMockCommitter(ctrl)
	c.EXPECT().Write(gomock.Any()).DoAndReturn(func(node *merk.Node) error {
		assertCommitted(t, node)
		// Children are always written first.
		for _, left := range []bool{true, false} {
			if child := node.Child(left); child != nil {
				require.True(t, written[string(child.Key())])
			}
		}
		written[string(node.Key())] = true
		return nil
	}).Times(31)
	c.EXPECT().Prune(gomock.Any()).Return(false, false).Times(31)

	require.NoError(t, root.Commit(c))
	require.Len(t, written, 31)
	testutil.AssertTreeInvariants(t, root)
}

func TestCommitIdempotent(t *testing.T) {
	tree := testutil.MakeTreeSeq(t, 100)
	hash := tree.Hash()

	// A clean tree must not reach the committer.
	c := mock.NewMockCommitter(gomock.NewController(t))
	require.NoError(t, tree.Commit(c))
	require.NoError(t, tree.CommitParallel(context.Background(), c, 4))
	require.Equal(t, hash, tree.Hash())
}

func TestCommitOnlyTouchesChangedPath(t *testing.T) {
	tree := testutil.MakeTreeSeq(t, 1000)
	updated, err := merk.Apply(tree, merk.Batch{{Key: testutil.Key(500), Op: merk.Put([]byte("x"))}}, merk.PanicSource{})
	require.NoError(t, err)

	c := &countingCommitter{t: t}
	require.NoError(t, updated.Commit(c))
	require.LessOrEqual(t, c.writes.Load(), int64(updated.Height()))
	require.Positive(t, c.writes.Load())
	testutil.AssertTreeInvariants(t, updated)
}

func TestCommitWriteError(t *testing.T) {
	root, err := merk.Apply(nil, testutil.MakeBatchSeq(0, 15), merk.PanicSource{})
	require.NoError(t, err)

	errWrite := errors.New("disk full")
	writes := 0
	c := mock.NewMockCommitter(gomock.NewController(t))
	c.EXPECT().Write(gomock.Any()).DoAndReturn(func(node *merk.Node) error {
		assertCommitted(t, node)
		writes++
		if writes > 4 {
			return errWrite
		}
		return nil
	}).Times(5)
	c.EXPECT().Prune(gomock.Any()).Return(false, false).Times(4)

	err = root.Commit(c)
	require.Same(t, errWrite, err)
	require.True(t, root.IsModified())

	clean := 0
	countClean(root, &clean)
	require.Equal(t, 4, clean)

	// Committing again finishes the job.
	require.NoError(t, root.Commit(merk.NoopCommitter{}))
	testutil.AssertTreeInvariants(t, root)
}

func TestCommitPrunes(t *testing.T) {
	root, err := merk.Apply(nil, testutil.MakeBatchSeq(0, 7), merk.PanicSource{})
	require.NoError(t, err)

	c := mock.NewMockCommitter(gomock.NewController(t))
	c.EXPECT().Write(gomock.Any()).Return(nil).Times(7)
	c.EXPECT().Prune(gomock.Any()).Return(true, true).Times(7)
	require.NoError(t, root.Commit(c))

	require.True(t, root.Link(true).IsPruned())
	require.True(t, root.Link(false).IsPruned())
	require.EqualValues(t, 3, root.Link(true).Size())
	require.EqualValues(t, 2, root.Link(true).Height())
	testutil.AssertTreeInvariants(t, root)
}

func TestCommitParallel(t *testing.T) {
	batch := testutil.MakeBatchRand(5_000, 7)
	seq, err := merk.Apply(nil, batch, merk.PanicSource{})
	require.NoError(t, err)
	par, err := merk.Apply(nil, batch, merk.PanicSource{})
	require.NoError(t, err)

	require.NoError(t, seq.Commit(merk.NoopCommitter{}))

	c := &countingCommitter{t: t}
	require.NoError(t, par.CommitParallel(context.Background(), c, 8))
	require.Equal(t, seq.Hash(), par.Hash())
	require.Equal(t, par.Size(), c.writes.Load())
	testutil.AssertTreeInvariants(t, par)
}

func TestCommitParallelError(t *testing.T) {
	root, err := merk.Apply(nil, testutil.MakeBatchSeq(0, 1_000), merk.PanicSource{})
	require.NoError(t, err)

	errWrite := errors.New("disk full")
	c := &countingCommitter{t: t, fail: 100, err: errWrite}
	err = root.CommitParallel(context.Background(), c, 4)
	require.True(t, errors.Is(err, errWrite))
	require.True(t, root.IsModified())
}

func countClean(node *merk.Node, n *int) {
	if node == nil {
		return
	}
	if !node.IsModified() {
		*n++
	}
	countClean(node.Child(true), n)
	countClean(node.Child(false), n)
}

// assertCommitted checks that a node handed to a committer is clean and
// carries the hash of its current contents. It only uses assert, so it is
// safe to call from commit goroutines.
func assertCommitted(t assert.TestingT, node *merk.Node) {
	assert.False(t, node.IsModified(), "node %X written while modified", node.Key())
	expected := merk.NodeHash(merk.KVHash(node.Key(), node.Value()), node.ChildHash(true), node.ChildHash(false))
	assert.Equal(t, expected, node.Hash(), "hash of %X", node.Key())
}

// encodingCommitter encodes every written node the way the store does.
type encodingCommitter struct {
	encoded map[string][]byte
}

func (c *encodingCommitter) Write(node *merk.Node) error {
	bz, err := node.Encode()
	if err != nil {
		return err
	}
	c.encoded[string(node.Key())] = bz
	return nil
}

func (c *encodingCommitter) Prune(*merk.Node) (bool, bool) {
	return false, false
}

func TestCommitEncodesNodes(t *testing.T) {
	root, err := merk.Apply(nil, testutil.MakeBatchSeq(0, 100), merk.PanicSource{})
	require.NoError(t, err)

	c := &encodingCommitter{encoded: map[string][]byte{}}
	require.NoError(t, root.Commit(c))
	require.Len(t, c.encoded, 100)

	decoded, err := merk.DecodeNode(root.Key(), c.encoded[string(root.Key())])
	require.NoError(t, err)
	require.Equal(t, root.Hash(), decoded.Hash())
	require.Equal(t, root.Size(), decoded.Size())

	// A second pass over an updated tree only encodes the changed path.
	updated, err := merk.Apply(root, merk.Batch{{Key: testutil.Key(7), Op: merk.Put([]byte("x"))}}, merk.PanicSource{})
	require.NoError(t, err)
	c = &encodingCommitter{encoded: map[string][]byte{}}
	require.NoError(t, updated.Commit(c))
	require.Contains(t, c.encoded, string(testutil.Key(7)))
	require.LessOrEqual(t, len(c.encoded), int(updated.Height()))
}

// countingCommitter counts writes and fails every write after fail, if set.
type countingCommitter struct {
	t      assert.TestingT
	mtx    sync.Mutex
	writes atomic.Int64
	fail   int64
	err    error
}

func (c *countingCommitter) Write(node *merk.Node) error {
	assertCommitted(c.t, node)
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.fail > 0 && c.writes.Load() >= c.fail {
		return c.err
	}
	c.writes.Add(1)
	return nil
}

func (c *countingCommitter) Prune(*merk.Node) (bool, bool) {
	return false, false
}
