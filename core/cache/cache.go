package cache

import "github.com/opencontainers/go-digest"

// Cache holds encoded directory snapshots, keyed by the digest of the
// archive bytes they were parsed from. A hit lets a load skip directory
// parsing entirely.
//
// A Cache must be safe for concurrent use and enforces its own size
// limit.
type Cache interface {
	// Get returns the snapshot for key, or false on a miss.
	Get(key digest.Digest) ([]byte, bool)

	// Put stores a snapshot. data is not retained after Put returns.
	Put(key digest.Digest, data []byte) error

	// Delete drops the snapshot for key. Deleting a missing key is not an
	// error.
	Delete(key digest.Digest) error

	// MaxBytes is the size limit, 0 when unlimited.
	MaxBytes() int64

	// SizeBytes is the total size of stored snapshots.
	SizeBytes() int64

	// Prune evicts snapshots until at most targetBytes remain and returns
	// the bytes freed.
	Prune(targetBytes int64) (int64, error)
}
