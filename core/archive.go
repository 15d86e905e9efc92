package pak

import (
	"fmt"
	"io/fs"
	"iter"

	"github.com/meigma/pak/core/internal/index"
	"github.com/meigma/pak/core/internal/paktype"
	"github.com/meigma/pak/internal/fsutil"
	"github.com/meigma/pak/internal/pathutil"
	"github.com/meigma/pak/internal/sizing"
)

// Re-export types from internal/paktype for public API.
type (
	// Entry is one file record of an archive directory.
	Entry = paktype.Entry

	// ValidationResult reports the outcome of Archive.Validate.
	ValidationResult = paktype.ValidationResult
)

// Archive is a read-only view of one parsed archive.
//
// Implementations are immutable after construction and safe for concurrent
// use. Paths passed to any method are normalised with NormalizePath.
type Archive interface {
	fs.FS

	// Name returns the display name the archive was loaded under.
	Name() string

	// Size returns the size of the archive buffer in bytes.
	Size() int64

	// List returns every entry name.
	List() []string

	// Has reports whether an entry with the given path exists.
	Has(path string) bool

	// ReadFile returns the exact [offset, offset+length) view of the archive
	// buffer for path. The returned slice aliases the archive and must be
	// treated as read-only.
	ReadFile(path string) ([]byte, error)

	// Entry returns the directory record for path.
	Entry(path string) (Entry, bool)

	// Entries returns every directory record.
	Entries() []Entry

	// ListEntries is an alias of Entries.
	ListEntries() []Entry

	// Validate checks the directory against the buffer.
	Validate() ValidationResult
}

// directory holds the buffer and index shared by both archive types and
// implements everything except Validate.
type directory struct {
	name string
	data []byte
	idx  *index.Index
}

// Name returns the display name the archive was loaded under.
func (d *directory) Name() string {
	return d.name
}

// Size returns the size of the archive buffer in bytes.
func (d *directory) Size() int64 {
	return int64(len(d.data))
}

// Len returns the number of entries in the archive.
func (d *directory) Len() int {
	return d.idx.Len()
}

// List returns every entry name in sorted order.
func (d *directory) List() []string {
	names := make([]string, 0, d.idx.Len())
	for e := range d.idx.Entries() {
		names = append(names, e.Name)
	}
	return names
}

// Has reports whether an entry with the given path exists.
func (d *directory) Has(path string) bool {
	_, ok := d.idx.Lookup(NormalizePath(path))
	return ok
}

// Entry returns the directory record for path.
func (d *directory) Entry(path string) (Entry, bool) {
	return d.idx.Lookup(NormalizePath(path))
}

// Entries returns every directory record in name order.
func (d *directory) Entries() []Entry {
	entries := make([]Entry, 0, d.idx.Len())
	for e := range d.idx.Entries() {
		entries = append(entries, e)
	}
	return entries
}

// ListEntries is an alias of Entries.
func (d *directory) ListEntries() []Entry {
	return d.Entries()
}

// EntriesWithPrefix returns an iterator over entries whose name starts
// with prefix.
func (d *directory) EntriesWithPrefix(prefix string) iter.Seq[Entry] {
	return d.idx.EntriesWithPrefix(prefix)
}

// ReadFile returns the content of path as a view of the archive buffer.
//
// The slice is capped at the entry's end, so appending to it never writes
// into the archive. It must otherwise be treated as read-only; this differs
// from the fs.ReadFileFS contract, which permits callers to modify the
// result.
func (d *directory) ReadFile(path string) ([]byte, error) {
	name := NormalizePath(path)
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readfile", Path: path, Err: fs.ErrInvalid}
	}
	e, ok := d.idx.Lookup(name)
	if !ok {
		return nil, &fs.PathError{Op: "readfile", Path: path, Err: ErrNotFound}
	}
	return d.slice(e)
}

func (d *directory) slice(e Entry) ([]byte, error) {
	if !sizing.InRange(e.Offset, e.Length, d.Size()) {
		return nil, &fs.PathError{
			Op:   "readfile",
			Path: e.Name,
			Err:  fmt.Errorf("%w: [%d,%d) outside %d byte archive", ErrSizeOverflow, e.Offset, e.End(), d.Size()),
		}
	}
	end := e.End()
	return d.data[e.Offset:end:end], nil
}

// Open implements fs.FS.
//
// Files are returned as in-memory readers over the archive buffer.
// Directories are synthesized from entry paths.
func (d *directory) Open(path string) (fs.File, error) {
	name := NormalizePath(path)
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrInvalid}
	}

	if e, ok := d.idx.Lookup(name); ok {
		content, err := d.slice(e)
		if err != nil {
			return nil, err
		}
		return fsutil.NewFile(pathutil.Base(name), content), nil
	}

	if d.isDir(name) {
		return fsutil.NewDir(name, func() *fsutil.DirIter {
			prefix := pathutil.DirPrefix(name)
			return fsutil.NewDirIter(d.sizes(prefix), prefix)
		}), nil
	}

	return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
}

// Stat implements fs.StatFS.
//
// For directories (paths that are prefixes of other entries), Stat returns
// synthetic directory info.
func (d *directory) Stat(path string) (fs.FileInfo, error) {
	name := NormalizePath(path)
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrInvalid}
	}

	if e, ok := d.idx.Lookup(name); ok {
		return fsutil.NewInfo(pathutil.Base(name), int64(e.Length)), nil
	}

	if d.isDir(name) {
		return fsutil.NewDirInfo(pathutil.Base(name)), nil
	}

	return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
}

// ReadDir implements fs.ReadDirFS.
//
// ReadDir returns directory entries for the named directory, sorted by name.
func (d *directory) ReadDir(path string) ([]fs.DirEntry, error) {
	name := NormalizePath(path)
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readdir", Path: path, Err: fs.ErrInvalid}
	}

	prefix := pathutil.DirPrefix(name)
	entries := fsutil.ReadDirAll(d.sizes(prefix), prefix)
	if len(entries) == 0 && name != "." {
		return nil, &fs.PathError{Op: "readdir", Path: path, Err: fs.ErrNotExist}
	}
	return entries, nil
}

// isDir checks if name is a directory (has entries under it).
func (d *directory) isDir(name string) bool {
	if name == "." {
		return true
	}
	for range d.idx.EntriesWithPrefix(name + "/") {
		return true
	}
	return false
}

// sizes adapts the prefix iterator to the path/size pairs fsutil expects.
func (d *directory) sizes(prefix string) iter.Seq2[string, int64] {
	return func(yield func(string, int64) bool) {
		for e := range d.idx.EntriesWithPrefix(prefix) {
			if !yield(e.Name, int64(e.Length)) {
				return
			}
		}
	}
}
