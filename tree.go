package merk

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
	dbm "github.com/tendermint/tm-db"

	"github.com/cosmos/merk/metrics"
)

// Tree is a merk tree persisted in a tm-db database. Only the top KeepLevels
// levels are held in memory between batches; everything below is fetched
// from the database when a batch or a read reaches it.
//
// Apply is exclusive; Get, Has, Iterate and RootHash may run concurrently
// with each other.
type Tree struct {
	mtx     sync.RWMutex
	ndb     *NodeDB
	root    *Node
	opts    Options
	logger  log.Logger
	metrics *metrics.TreeMetrics
}

// NewTree opens the tree stored in db, which may be empty. A nil opts uses
// DefaultOptions.
func NewTree(db dbm.DB, opts *Options) (*Tree, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	logger := moduleLogger(opts.Logger)
	ndb, err := NewNodeDB(db, opts.CacheSize, opts.Metrics, logger)
	if err != nil {
		return nil, err
	}
	root, err := ndb.LoadRoot()
	if err != nil {
		return nil, errors.Wrap(err, "loading root")
	}
	return &Tree{
		ndb:     ndb,
		root:    root,
		opts:    *opts,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Apply applies batch, commits the result and writes it to the database in
// a single database batch. If anything fails, nothing is written and the tree
// keeps its previous root.
func (t *Tree) Apply(batch Batch) error {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	err := t.apply(batch)
	t.metrics.IncApply(err != nil)
	if err != nil {
		t.logger.Error("apply failed, keeping previous root", "entries", len(batch), "err", err)
	}
	return err
}

func (t *Tree) apply(batch Batch) error {
	walker := NewWalker(t.ndb)
	root, err := walker.Apply(t.root, batch)
	if err != nil {
		return err
	}

	dbBatch := t.ndb.NewBatch()
	defer dbBatch.Close()

	for _, key := range walker.Deleted() {
		if err := t.ndb.DeleteNode(dbBatch, key); err != nil {
			return err
		}
	}

	if root != nil {
		start := time.Now()
		c := t.ndb.newCommitter(dbBatch, root, t.opts.KeepLevels)
		if t.opts.ParallelCommit > 1 {
			err = root.CommitParallel(context.Background(), c, t.opts.ParallelCommit)
		} else {
			err = root.Commit(c)
		}
		if err != nil {
			return errors.Wrap(err, "committing")
		}
		t.metrics.AddCommitTime(time.Since(start))
		t.metrics.AddNodePrune(c.pruned)
	}

	if err := t.ndb.SetRoot(dbBatch, root); err != nil {
		return err
	}
	if t.opts.Sync {
		err = dbBatch.WriteSync()
	} else {
		err = dbBatch.Write()
	}
	if err != nil {
		return errors.Wrap(err, "writing batch")
	}

	t.root = root
	t.logger.Debug("applied batch",
		"entries", len(batch),
		"deleted", len(walker.Deleted()),
		"size", t.size(),
		"hash", t.rootHash())
	return nil
}

// Get returns the value stored under key, or nil if there is none.
func (t *Tree) Get(key []byte) ([]byte, error) {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return t.root.get(t.ndb, key)
}

// Has reports whether key is present.
func (t *Tree) Has(key []byte) (bool, error) {
	value, err := t.Get(key)
	return value != nil, err
}

// Iterate visits every key/value pair in ascending key order until fn
// returns true.
func (t *Tree) Iterate(fn func(key, value []byte) bool) error {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return t.root.Iterate(t.ndb, fn)
}

// RootHash returns the hash of the root node, or NullHash for an empty tree.
func (t *Tree) RootHash() Hash {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return t.rootHash()
}

func (t *Tree) rootHash() Hash {
	if t.root == nil {
		return NullHash
	}
	return t.root.hash
}

// Size returns the number of keys in the tree.
func (t *Tree) Size() int64 {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return t.size()
}

func (t *Tree) size() int64 {
	if t.root == nil {
		return 0
	}
	return t.root.size
}

// Root returns the committed root node. It must not be modified; pass it to
// Apply to derive a new tree instead.
func (t *Tree) Root() *Node {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return t.root
}

// Source returns the node store, for resolving pruned links below Root.
func (t *Tree) Source() Source {
	return t.ndb
}
