package disk

import (
	"cmp"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// snapshotFile is one stored snapshot.
type snapshotFile struct {
	path    string
	size    int64
	lastUse time.Time
}

// scan lists the snapshot files below root.
func scan(root string) ([]snapshotFile, error) {
	var snaps []snapshotFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || !strings.HasSuffix(d.Name(), snapshotExt) {
			return nil
		}
		info, err := d.Info()
		if errors.Is(err, fs.ErrNotExist) {
			// Removed by a concurrent prune.
			return nil
		} else if err != nil {
			return err
		}
		snaps = append(snaps, snapshotFile{path: path, size: info.Size(), lastUse: info.ModTime()})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return snaps, err
}

func totalSize(snaps []snapshotFile) int64 {
	var n int64
	for _, s := range snaps {
		n += s.size
	}
	return n
}

// evict removes snapshots, least recently used first, until at most
// target bytes remain. Ties are broken by path so pruning is
// deterministic.
func evict(snaps []snapshotFile, target int64) (freed, remaining int64, err error) {
	remaining = totalSize(snaps)
	if remaining <= target {
		return 0, remaining, nil
	}

	slices.SortFunc(snaps, func(a, b snapshotFile) int {
		if c := a.lastUse.Compare(b.lastUse); c != 0 {
			return c
		}
		return cmp.Compare(a.path, b.path)
	})

	for _, s := range snaps {
		if remaining <= target {
			break
		}
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return freed, remaining, err
		}
		remaining -= s.size
		freed += s.size
	}
	return freed, remaining, nil
}
