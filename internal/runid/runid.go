// Package runid generates the identifiers that tag one linkage run's
// shards so they can be told apart in shared storage.
package runid

import (
	"strconv"

	"github.com/google/uuid"
)

// New returns a fresh run identifier.
func New() string {
	return uuid.New().String()
}

// Shard returns the identifier for one chunk's shard within a run:
// stable for a given (run, index) pair, distinct across runs.
func Shard(runID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(runID)).String() + "-" + strconv.Itoa(index)
}
