// Package digest computes the dataset identifier used to address a
// dataset's shared-memory segment: the first 24 hex characters of
// md5(job-id ‖ dataset-name).
package digest

import (
	"crypto/md5" //nolint:gosec // chosen for portability and fixed length, not security
	"encoding/hex"
)

// idLen is the number of hex characters kept from the full digest.
// Shared-memory segment names have platform-imposed length limits
// (e.g. macOS/Darwin's historical 31-byte POSIX shm name cap), so the
// full 32-char md5 hex digest is truncated.
const idLen = 24

// DatasetID returns the deterministic 24-character hex identifier for the
// dataset named datasetName produced within jobID. Stable for a given
// (jobID, datasetName) pair and depends on nothing else.
func DatasetID(jobID, datasetName string) string {
	sum := md5.Sum([]byte(jobID + datasetName)) //nolint:gosec
	return hex.EncodeToString(sum[:])[:idLen]
}
