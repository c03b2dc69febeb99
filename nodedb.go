package merk

import (
	"sync"

	"github.com/gogo/protobuf/proto"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
	dbm "github.com/tendermint/tm-db"

	"github.com/cosmos/merk/metrics"
)

var (
	// All node keys are prefixed with the byte 'n', followed by the tree key
	// of the node. A node keeps its storage key across rotations.
	nodeKeyFormat = NewKeyFormat('n', 0) // n<key>

	// Key Format for storing metadata about the tree such as the root link.
	metadataKeyFormat = NewKeyFormat('m', 0) // m<keystring>

	rootMetadataKey = metadataKeyFormat.Key("root")
)

// NodeDB stores committed nodes in a tm-db database and serves as the Source
// for pruned links. Fetching never changes the database.
type NodeDB struct {
	logger  log.Logger
	db      dbm.DB                     // Persistent node storage.
	cache   *lru.Cache[string, []byte] // Encoded nodes by tree key, nil if disabled.
	metrics *metrics.TreeMetrics
}

var _ Source = (*NodeDB)(nil)

// NewNodeDB returns a node store over db that caches up to cacheSize encoded
// nodes.
func NewNodeDB(db dbm.DB, cacheSize int, m *metrics.TreeMetrics, logger log.Logger) (*NodeDB, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	ndb := &NodeDB{
		logger:  logger,
		db:      db,
		metrics: m,
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, []byte](cacheSize)
		if err != nil {
			return nil, err
		}
		ndb.cache = cache
	}
	return ndb, nil
}

// Fetch loads the node that link references. It returns ErrNotFound if the
// node is not stored and ErrCorrupt if the stored bytes do not decode to a
// node with the link's hash.
func (ndb *NodeDB) Fetch(link *Link) (*Node, error) {
	key := link.Key()
	node, err := ndb.getNode(key)
	if err != nil {
		ndb.metrics.IncFetchError()
		return nil, err
	}
	if node.hash != link.Hash() {
		ndb.metrics.IncFetchError()
		return nil, errors.Wrapf(ErrCorrupt, "node %X has hash %s, expected %s", key, node.hash, link.Hash())
	}
	if node.height != link.Height() || node.size != link.Size() {
		ndb.metrics.IncFetchError()
		return nil, errors.Wrapf(ErrCorrupt, "node %X has height %d size %d, expected height %d size %d",
			key, node.height, node.size, link.Height(), link.Size())
	}
	return node, nil
}

func (ndb *NodeDB) getNode(key []byte) (*Node, error) {
	bz, hit, err := ndb.get(key)
	if err != nil {
		return nil, err
	}
	ndb.metrics.IncFetch(hit)
	if bz == nil {
		return nil, errors.Wrapf(ErrNotFound, "node %X", key)
	}
	node, err := DecodeNode(key, bz)
	if err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "node %X: %v", key, err)
	}
	return node, nil
}

func (ndb *NodeDB) get(key []byte) (bz []byte, cacheHit bool, err error) {
	if ndb.cache != nil {
		if bz, ok := ndb.cache.Get(string(key)); ok {
			return bz, true, nil
		}
	}
	bz, err = ndb.db.Get(nodeKeyFormat.Key(key))
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading node %X", key)
	}
	if bz != nil && ndb.cache != nil {
		ndb.cache.Add(string(key), bz)
	}
	return bz, false, nil
}

// SaveNode adds a committed node to batch.
func (ndb *NodeDB) SaveNode(batch dbm.Batch, node *Node) error {
	bz, err := node.Encode()
	if err != nil {
		return err
	}
	if err := batch.Set(nodeKeyFormat.Key(node.key), bz); err != nil {
		return errors.Wrapf(err, "saving node %X", node.key)
	}
	ndb.uncache(node.key)
	ndb.metrics.IncNodeWrite()
	return nil
}

// DeleteNode adds the removal of the node stored under key to batch.
func (ndb *NodeDB) DeleteNode(batch dbm.Batch, key []byte) error {
	if err := batch.Delete(nodeKeyFormat.Key(key)); err != nil {
		return errors.Wrapf(err, "deleting node %X", key)
	}
	ndb.uncache(key)
	ndb.metrics.IncNodeDelete()
	return nil
}

// The cache is only refilled by reads, so a batch that is never written
// cannot leave unwritten nodes behind in it.
func (ndb *NodeDB) uncache(key []byte) {
	if ndb.cache != nil {
		ndb.cache.Remove(string(key))
	}
}

// SetRoot records root, which must be committed, as the tree root in batch.
// A nil root clears it.
func (ndb *NodeDB) SetRoot(batch dbm.Batch, root *Node) error {
	if root == nil {
		return batch.Delete(rootMetadataKey)
	}
	buf := proto.NewBuffer(nil)
	if err := encodeLink(buf, newResidentLink(root)); err != nil {
		return errors.Wrap(err, "encoding root link")
	}
	return batch.Set(rootMetadataKey, buf.Bytes())
}

// LoadRoot fetches the stored root node with both children pruned, or nil
// if the tree is empty.
func (ndb *NodeDB) LoadRoot() (*Node, error) {
	bz, err := ndb.db.Get(rootMetadataKey)
	if err != nil {
		return nil, errors.Wrap(err, "reading root link")
	}
	if bz == nil {
		return nil, nil
	}
	link, err := decodeLink(proto.NewBuffer(bz))
	if err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "root link: %v", err)
	}
	if link == nil {
		return nil, errors.Wrap(ErrCorrupt, "empty root link")
	}
	ndb.logger.Debug("loading root", "key", link.Key(), "hash", link.Hash(), "size", link.Size())
	return ndb.Fetch(link)
}

// NewBatch starts a database batch for a commit.
func (ndb *NodeDB) NewBatch() dbm.Batch {
	return ndb.db.NewBatch()
}

// committer writes committed nodes into a database batch and prunes children
// that sit KeepLevels or more below the root.
type committer struct {
	mtx    sync.Mutex
	ndb    *NodeDB
	batch  dbm.Batch
	height uint8
	levels uint8
	pruned int64
}

var _ Committer = (*committer)(nil)

func (ndb *NodeDB) newCommitter(batch dbm.Batch, root *Node, keepLevels uint8) *committer {
	return &committer{
		ndb:    ndb,
		batch:  batch,
		height: root.Height(),
		levels: keepLevels,
	}
}

func (c *committer) Write(node *Node) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.ndb.SaveNode(c.batch, node)
}

func (c *committer) Prune(node *Node) (bool, bool) {
	// Depth is measured from the root's height, as the exact depth of a node
	// is not known during a post-order pass.
	prune := int(c.height)-int(node.Height()) >= int(c.levels)
	if prune {
		c.mtx.Lock()
		if node.left != nil && !node.left.IsPruned() {
			c.pruned++
		}
		if node.right != nil && !node.right.IsPruned() {
			c.pruned++
		}
		c.mtx.Unlock()
	}
	return prune, prune
}
