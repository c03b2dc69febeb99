package merk

import (
	"github.com/tendermint/tendermint/libs/log"

	"github.com/cosmos/merk/metrics"
)

// Options define tree options.
type Options struct {
	// Sync writes each commit with WriteSync.
	Sync bool

	// KeepLevels is how many levels below the root stay resident after a
	// commit. Children of deeper nodes are pruned to references.
	KeepLevels uint8

	// CacheSize is the number of encoded nodes the node store keeps in
	// memory. 0 disables the cache.
	CacheSize int

	// ParallelCommit is the number of goroutines used to commit disjoint
	// subtrees. 0 or 1 commits on the calling goroutine.
	ParallelCommit int

	Logger  log.Logger
	Metrics *metrics.TreeMetrics
}

// DefaultOptions returns the default options.
func DefaultOptions() *Options {
	return &Options{
		Sync:       false,
		KeepLevels: 16,
		CacheSize:  10000,
		Logger:     log.NewNopLogger(),
		Metrics:    &metrics.TreeMetrics{},
	}
}
