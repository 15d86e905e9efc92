// Package vfs merges mounted archives into one read-only namespace.
//
// An FS is an immutable snapshot: it is built once from a set of mounts and
// never changes, so readers holding one see a consistent view while the
// mount set moves on. For every path exactly one mount wins: the one with
// the highest priority, and among equal priorities the one mounted last.
package vfs

import (
	"cmp"
	"fmt"
	"io/fs"
	"iter"
	"slices"
	"strings"

	pak "github.com/meigma/pak/core"
	"github.com/meigma/pak/internal/fsutil"
	"github.com/meigma/pak/internal/pathutil"
)

// Interface compliance.
var (
	_ fs.FS         = (*FS)(nil)
	_ fs.StatFS     = (*FS)(nil)
	_ fs.ReadFileFS = (*FS)(nil)
	_ fs.ReadDirFS  = (*FS)(nil)
)

// Mount is one archive contributing to an FS.
type Mount struct {
	// ID identifies the mount in File.SourceID.
	ID string

	// Archive supplies the files.
	Archive pak.Archive

	// Priority orders mounts; higher wins.
	Priority int

	// Seq breaks priority ties; higher (mounted later) wins.
	Seq uint64
}

// File describes the winning copy of a logical path.
type File struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	SourceID string `json:"sourceId"`
}

// Listing holds the immediate children of a directory.
type Listing struct {
	Files       []File   `json:"files"`
	Directories []string `json:"directories"`
}

type winner struct {
	mount int // index into FS.mounts
	size  int64
}

// FS is an immutable merged view of mounted archives.
// It is safe for concurrent use.
type FS struct {
	mounts []Mount           // ascending precedence
	files  map[string]winner // path -> winning mount
	paths  []string          // sorted keys of files
	byExt  map[string][]string
}

// New builds a snapshot from mounts. The slice is not retained.
func New(mounts ...Mount) *FS {
	ordered := slices.Clone(mounts)
	slices.SortStableFunc(ordered, comparePrecedence)

	f := &FS{
		mounts: ordered,
		files:  make(map[string]winner),
		byExt:  make(map[string][]string),
	}
	for i, m := range ordered {
		for _, e := range m.Archive.Entries() {
			f.files[e.Name] = winner{mount: i, size: int64(e.Length)}
		}
	}

	f.paths = make([]string, 0, len(f.files))
	for p := range f.files {
		f.paths = append(f.paths, p)
	}
	slices.Sort(f.paths)
	for _, p := range f.paths {
		ext := pathutil.Ext(p)
		f.byExt[ext] = append(f.byExt[ext], p)
	}
	return f
}

// comparePrecedence orders mounts from lowest to highest precedence.
func comparePrecedence(a, b Mount) int {
	return cmp.Or(cmp.Compare(a.Priority, b.Priority), cmp.Compare(a.Seq, b.Seq))
}

// Mounts returns the mounts in ascending precedence.
func (f *FS) Mounts() []Mount {
	return slices.Clone(f.mounts)
}

// Len returns the number of distinct paths.
func (f *FS) Len() int {
	return len(f.paths)
}

// HasFile reports whether any mount contains path.
func (f *FS) HasFile(path string) bool {
	_, ok := f.files[pathutil.Normalize(path)]
	return ok
}

// Lookup returns the winning copy of path.
func (f *FS) Lookup(path string) (File, bool) {
	name := pathutil.Normalize(path)
	w, ok := f.files[name]
	if !ok {
		return File{}, false
	}
	return f.file(name, w), true
}

func (f *FS) file(name string, w winner) File {
	return File{Path: name, Size: w.size, SourceID: f.mounts[w.mount].ID}
}

// ReadFile returns the content of the winning copy of path.
// The slice aliases archive memory and must be treated as read-only.
func (f *FS) ReadFile(path string) ([]byte, error) {
	name := pathutil.Normalize(path)
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readfile", Path: path, Err: fs.ErrInvalid}
	}
	w, ok := f.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "readfile", Path: path, Err: fs.ErrNotExist}
	}
	m := f.mounts[w.mount]
	data, err := m.Archive.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.ID, err)
	}
	return data, nil
}

// Sources returns the IDs of every mount containing path, lowest
// precedence first; the last ID is the winner.
func (f *FS) Sources(path string) []string {
	name := pathutil.Normalize(path)
	var ids []string
	for _, m := range f.mounts {
		if m.Archive.Has(name) {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// Files returns every path's winning copy, sorted by path.
func (f *FS) Files() []File {
	files := make([]File, 0, len(f.paths))
	for _, p := range f.paths {
		files = append(files, f.file(p, f.files[p]))
	}
	return files
}

// FindByExtension returns the winning copies of every path whose extension
// (without the dot, case-insensitive) is one of exts. Results are grouped
// by extension in argument order and sorted by path within a group.
func (f *FS) FindByExtension(exts ...string) []File {
	var files []File
	seen := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimPrefix(ext, "."))
		if seen[ext] {
			continue
		}
		seen[ext] = true
		for _, p := range f.byExt[ext] {
			files = append(files, f.file(p, f.files[p]))
		}
	}
	return files
}

// Search returns the files whose path contains query, case-insensitively,
// sorted by path. An empty query matches nothing.
func (f *FS) Search(query string) []File {
	query = strings.ToLower(strings.ReplaceAll(query, "\\", "/"))
	if query == "" {
		return nil
	}
	var files []File
	for _, p := range f.paths {
		if strings.Contains(p, query) {
			files = append(files, f.file(p, f.files[p]))
		}
	}
	return files
}

// List returns the immediate children of dir ("" or "." for the root).
// Directories are synthesized from file paths.
func (f *FS) List(dir string) Listing {
	prefix := pathutil.DirPrefix(pathutil.Normalize(dir))
	var l Listing
	it := fsutil.NewDirIter(f.sizes(prefix), prefix)
	defer it.Close()
	for {
		de, ok := it.Next()
		if !ok {
			return l
		}
		if de.IsDir() {
			l.Directories = append(l.Directories, de.Name())
			continue
		}
		name := de.Name()
		if prefix != "" {
			name = prefix + name
		}
		l.Files = append(l.Files, f.file(name, f.files[name]))
	}
}

// Open implements fs.FS.
func (f *FS) Open(path string) (fs.File, error) {
	name := pathutil.Normalize(path)
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrInvalid}
	}
	if _, ok := f.files[name]; ok {
		data, err := f.ReadFile(name)
		if err != nil {
			return nil, err
		}
		return fsutil.NewFile(pathutil.Base(name), data), nil
	}
	if f.isDir(name) {
		return fsutil.NewDir(name, func() *fsutil.DirIter {
			prefix := pathutil.DirPrefix(name)
			return fsutil.NewDirIter(f.sizes(prefix), prefix)
		}), nil
	}
	return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
}

// Stat implements fs.StatFS.
func (f *FS) Stat(path string) (fs.FileInfo, error) {
	name := pathutil.Normalize(path)
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrInvalid}
	}
	if w, ok := f.files[name]; ok {
		return fsutil.NewInfo(pathutil.Base(name), w.size), nil
	}
	if f.isDir(name) {
		return fsutil.NewDirInfo(pathutil.Base(name)), nil
	}
	return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
}

// ReadDir implements fs.ReadDirFS.
func (f *FS) ReadDir(path string) ([]fs.DirEntry, error) {
	name := pathutil.Normalize(path)
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readdir", Path: path, Err: fs.ErrInvalid}
	}
	prefix := pathutil.DirPrefix(name)
	entries := fsutil.ReadDirAll(f.sizes(prefix), prefix)
	if len(entries) == 0 && name != "." {
		return nil, &fs.PathError{Op: "readdir", Path: path, Err: fs.ErrNotExist}
	}
	return entries, nil
}

func (f *FS) isDir(name string) bool {
	if name == "." {
		return true
	}
	for range f.sizes(name + "/") {
		return true
	}
	return false
}

// sizes yields the sorted paths under prefix with their sizes.
func (f *FS) sizes(prefix string) iter.Seq2[string, int64] {
	return func(yield func(string, int64) bool) {
		start, _ := slices.BinarySearch(f.paths, prefix)
		for _, p := range f.paths[start:] {
			if !strings.HasPrefix(p, prefix) {
				return
			}
			if !yield(p, f.files[p].size) {
				return
			}
		}
	}
}
