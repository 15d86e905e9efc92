// Package disk provides a filesystem-backed directory snapshot cache.
package disk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opencontainers/go-digest"
)

const (
	defaultShardPrefixLen = 2
	dirPerm               = 0o700
	filePerm              = 0o600

	// snapshotExt marks snapshot files. Only these count toward the size
	// limit and are pruned; anything else under the root is left alone.
	snapshotExt = ".dir"
)

// Cache implements cache.Cache on the local filesystem. A snapshot for
// key sha256:abcd... lives at <root>/sha256/ab/abcd....dir.
//
// Writes go to a temporary file in the target directory and are renamed
// into place, so readers never see a partial snapshot. The cache is safe
// for concurrent use, including by several processes sharing root.
type Cache struct {
	root     string
	shardLen int
	maxBytes int64

	size    atomic.Int64
	pruneMu sync.Mutex
}

// Option configures a disk cache.
type Option func(*Cache)

// WithShardPrefixLen sets how many hex characters of the digest name the
// shard directory. Zero stores every snapshot of an algorithm in one
// directory. Defaults to 2.
func WithShardPrefixLen(n int) Option {
	return func(c *Cache) {
		c.shardLen = n
	}
}

// WithMaxBytes limits the total size of stored snapshots. Zero means no
// limit; negative values are rejected by New.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		c.maxBytes = n
	}
}

// New opens the cache rooted at dir, creating it if needed. Snapshots
// already present count toward the size limit.
func New(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("disk cache: empty root directory")
	}
	c := &Cache{root: dir, shardLen: defaultShardPrefixLen}
	for _, opt := range opts {
		opt(c)
	}
	switch {
	case c.shardLen < 0:
		return nil, fmt.Errorf("disk cache: negative shard prefix length %d", c.shardLen)
	case c.maxBytes < 0:
		return nil, fmt.Errorf("disk cache: negative size limit %d", c.maxBytes)
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, err
	}
	snaps, err := scan(dir)
	if err != nil {
		return nil, err
	}
	c.size.Store(totalSize(snaps))
	return c, nil
}

// Get returns the snapshot stored for key and marks it recently used.
func (c *Cache) Get(key digest.Digest) ([]byte, bool) {
	path, err := c.snapshotPath(key)
	if err != nil {
		return nil, false
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is derived from a validated digest
	if err != nil {
		return nil, false
	}
	now := time.Now()
	_ = os.Chtimes(path, now, now) //nolint:errcheck // recency is best effort
	return data, true
}

// Put stores data for key. A key that is already cached keeps its first
// snapshot, and a snapshot larger than the size limit is silently dropped.
func (c *Cache) Put(key digest.Digest, data []byte) error {
	path, err := c.snapshotPath(key)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	n := int64(len(data))
	fits, err := c.reserve(n)
	if err != nil || !fits {
		return err
	}

	if err := writeAtomic(path, data); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			// Another writer stored the same key first.
			return nil
		}
		return err
	}
	c.size.Add(n)
	return nil
}

// writeAtomic writes data to path through a temporary file in the same
// directory.
func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Delete removes the snapshot for key. A missing snapshot is not an error.
func (c *Cache) Delete(key digest.Digest) error {
	path, err := c.snapshotPath(key)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	c.size.Add(-info.Size())
	return nil
}

// MaxBytes returns the size limit (0 = unlimited).
func (c *Cache) MaxBytes() int64 {
	return c.maxBytes
}

// SizeBytes returns the total size of stored snapshots.
func (c *Cache) SizeBytes() int64 {
	return c.size.Load()
}

// Prune removes the least recently used snapshots until at most
// targetBytes remain, and returns the number of bytes freed.
func (c *Cache) Prune(targetBytes int64) (int64, error) {
	c.pruneMu.Lock()
	defer c.pruneMu.Unlock()

	snaps, err := scan(c.root)
	if err != nil {
		return 0, err
	}
	freed, remaining, err := evict(snaps, max(targetBytes, 0))
	c.size.Store(remaining)
	return freed, err
}

func (c *Cache) snapshotPath(key digest.Digest) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	hex := key.Encoded()
	dir := filepath.Join(c.root, key.Algorithm().String())
	if c.shardLen > 0 {
		dir = filepath.Join(dir, hex[:min(c.shardLen, len(hex))])
	}
	return filepath.Join(dir, hex+snapshotExt), nil
}

// reserve makes room for n more bytes, pruning if needed. It reports
// false when n cannot fit under the limit at all.
func (c *Cache) reserve(n int64) (bool, error) {
	if c.maxBytes == 0 {
		return true, nil
	}
	if n > c.maxBytes {
		return false, nil
	}
	if c.SizeBytes()+n <= c.maxBytes {
		return true, nil
	}
	if _, err := c.Prune(c.maxBytes - n); err != nil {
		return false, err
	}
	return c.SizeBytes()+n <= c.maxBytes, nil
}
