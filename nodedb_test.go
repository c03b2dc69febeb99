package merk

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/cosmos/merk/metrics"
)

func newTestNodeDB(t *testing.T, cacheSize int) (*NodeDB, dbm.DB, *metrics.TreeMetrics) {
	db := dbm.NewMemDB()
	m := &metrics.TreeMetrics{}
	ndb, err := NewNodeDB(db, cacheSize, m, nil)
	require.NoError(t, err)
	return ndb, db, m
}

// saveTree commits the tree built from keys into ndb and returns its root.
func saveTree(t *testing.T, ndb *NodeDB, keys ...string) *Node {
	var batch Batch
	for _, k := range keys {
		batch = append(batch, BatchEntry{Key: []byte(k), Op: Put([]byte("v" + k))})
	}
	root, err := Apply(nil, batch, PanicSource{})
	require.NoError(t, err)

	b := ndb.NewBatch()
	defer b.Close()
	require.NoError(t, root.Commit(ndb.newCommitter(b, root, 0)))
	require.NoError(t, ndb.SetRoot(b, root))
	require.NoError(t, b.Write())
	return root
}

func TestNodeDB_Fetch(t *testing.T) {
	ndb, _, m := newTestNodeDB(t, 10)
	root := saveTree(t, ndb, "a", "b", "c")
	require.EqualValues(t, 3, m.NodeWrite)

	// KeepLevels of 0 prunes everything below the root.
	require.True(t, root.Link(true).IsPruned())
	require.True(t, root.Link(false).IsPruned())

	node, err := ndb.Fetch(root.Link(true))
	require.NoError(t, err)
	require.Equal(t, []byte("a"), node.Key())
	require.Equal(t, []byte("va"), node.Value())
	require.False(t, node.IsModified())
	require.EqualValues(t, 1, m.FetchCacheMiss)

	_, err = ndb.Fetch(root.Link(true))
	require.NoError(t, err)
	require.EqualValues(t, 1, m.FetchCacheHit)
	require.EqualValues(t, 2, m.Fetch)
}

func TestNodeDB_FetchErrors(t *testing.T) {
	ndb, db, m := newTestNodeDB(t, 0)
	root := saveTree(t, ndb, "a", "b", "c")

	_, err := ndb.Fetch(NewPrunedLink([]byte("x"), NullHash, 1, 1))
	require.True(t, errors.Is(err, ErrNotFound))

	link := root.Link(true)
	_, err = ndb.Fetch(NewPrunedLink(link.Key(), KVHash(nil, nil), link.Height(), link.Size()))
	require.True(t, errors.Is(err, ErrCorrupt))

	_, err = ndb.Fetch(NewPrunedLink(link.Key(), link.Hash(), link.Height()+1, link.Size()))
	require.True(t, errors.Is(err, ErrCorrupt))

	require.NoError(t, db.Set(nodeKeyFormat.Key([]byte("a")), []byte{0xff}))
	_, err = ndb.Fetch(link)
	require.True(t, errors.Is(err, ErrCorrupt))

	require.EqualValues(t, 4, m.FetchError)
}

func TestNodeDB_SaveUncaches(t *testing.T) {
	ndb, _, _ := newTestNodeDB(t, 10)
	root := saveTree(t, ndb, "a", "b", "c")
	_, err := ndb.Fetch(root.Link(true))
	require.NoError(t, err)
	require.True(t, ndb.cache.Contains("a"))

	b := ndb.NewBatch()
	defer b.Close()
	require.NoError(t, ndb.DeleteNode(b, []byte("a")))
	require.False(t, ndb.cache.Contains("a"))
	require.NoError(t, b.Write())

	_, err = ndb.Fetch(root.Link(true))
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestNodeDB_Root(t *testing.T) {
	ndb, db, _ := newTestNodeDB(t, 10)

	root, err := ndb.LoadRoot()
	require.NoError(t, err)
	require.Nil(t, root)

	saved := saveTree(t, ndb, "a", "b", "c", "d")
	root, err = ndb.LoadRoot()
	require.NoError(t, err)
	require.Equal(t, saved.Hash(), root.Hash())
	require.Equal(t, saved.Size(), root.Size())
	require.True(t, root.Link(true).IsPruned())

	b := ndb.NewBatch()
	require.NoError(t, ndb.SetRoot(b, nil))
	require.NoError(t, b.Write())
	require.NoError(t, b.Close())
	root, err = ndb.LoadRoot()
	require.NoError(t, err)
	require.Nil(t, root)

	require.NoError(t, db.Set(rootMetadataKey, []byte{0x00}))
	_, err = ndb.LoadRoot()
	require.True(t, errors.Is(err, ErrCorrupt))

	require.NoError(t, db.Set(rootMetadataKey, []byte{0x07}))
	_, err = ndb.LoadRoot()
	require.True(t, errors.Is(err, ErrCorrupt))
}

func TestCommitter_Prune(t *testing.T) {
	ndb, _, _ := newTestNodeDB(t, 0)
	var batch Batch
	for _, k := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		batch = append(batch, BatchEntry{Key: []byte(k), Op: Put(nil)})
	}
	root, err := Apply(nil, batch, PanicSource{})
	require.NoError(t, err)

	b := ndb.NewBatch()
	defer b.Close()
	c := ndb.newCommitter(b, root, 1)
	require.NoError(t, root.Commit(c))

	// The root and one level below it stay resident.
	require.Equal(t, int64(4), c.pruned)
	require.False(t, root.Link(true).IsPruned())
	require.False(t, root.Link(false).IsPruned())
	for _, left := range []bool{true, false} {
		child := root.Child(left)
		require.True(t, child.Link(true).IsPruned())
		require.True(t, child.Link(false).IsPruned())
	}
}
