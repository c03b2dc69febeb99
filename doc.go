// Package merk implements a merkleized AVL tree that is mutated by sorted
// batches of operations.
//
// Every node carries a hash of its key, value and the hashes of its children,
// so the root hash authenticates the whole key space. Subtrees may be pruned
// to references and are fetched from a Source when a batch reaches them.
//
// Building a tree in memory:
//
//	batch := merk.Batch{
//		{Key: []byte("alice"), Op: merk.Put([]byte("abc"))},
//		{Key: []byte("bob"), Op: merk.Put([]byte("xyz"))},
//	}
//	root, err := merk.Apply(nil, batch, merk.PanicSource{})
//	...
//	err = root.Commit(merk.NoopCommitter{})
//	root.Hash()
//
// Batch keys must be strictly increasing; use Batch.Sort on unsorted input.
// Apply never changes the tree it is given, so a failed batch leaves the
// previous tree usable:
//
//	next, err := merk.Apply(root, merk.Batch{{Key: []byte("carol"), Op: merk.Delete()}}, merk.PanicSource{})
//	// err is ErrDeleteOnEmpty, root is unchanged
//
// A persistent tree over a tm-db database:
//
//	tree, err := merk.NewTree(dbm.NewMemDB(), merk.DefaultOptions())
//	err = tree.Apply(batch)
//	value, err := tree.Get([]byte("alice"))
//	tree.RootHash()
package merk
