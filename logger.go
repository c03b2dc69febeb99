package merk

import (
	"github.com/tendermint/tendermint/libs/log"
)

// moduleLogger tags a tree's log lines with the module name, falling back to
// a no-op logger.
func moduleLogger(logger log.Logger) log.Logger {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return logger.With("module", "merk")
}
