// Package fsutil provides the fs.FileInfo, fs.DirEntry and fs.File
// implementations shared by archives and the merged virtual filesystem.
package fsutil

import (
	"bytes"
	"io"
	"io/fs"
	"iter"
	"time"

	"github.com/meigma/pak/internal/pathutil"
)

// Info implements fs.FileInfo for regular files.
type Info struct {
	name string
	size int64
}

// NewInfo creates an Info for a file of the given size.
func NewInfo(name string, size int64) *Info {
	return &Info{name: name, size: size}
}

func (fi *Info) Name() string       { return fi.name }
func (fi *Info) Size() int64        { return fi.size }
func (fi *Info) Mode() fs.FileMode  { return 0o444 }
func (fi *Info) ModTime() time.Time { return time.Time{} }
func (fi *Info) IsDir() bool        { return false }
func (fi *Info) Sys() any           { return nil }

// DirInfo implements fs.FileInfo for synthetic directories.
type DirInfo struct {
	name string
}

// NewDirInfo creates a DirInfo with the given name.
func NewDirInfo(name string) *DirInfo {
	return &DirInfo{name: name}
}

func (di *DirInfo) Name() string       { return di.name }
func (di *DirInfo) Size() int64        { return 0 }
func (di *DirInfo) Mode() fs.FileMode  { return fs.ModeDir | 0o555 }
func (di *DirInfo) ModTime() time.Time { return time.Time{} }
func (di *DirInfo) IsDir() bool        { return true }
func (di *DirInfo) Sys() any           { return nil }

// DirEntry implements fs.DirEntry by wrapping fs.FileInfo.
type DirEntry struct {
	info fs.FileInfo
}

// NewDirEntry creates a DirEntry wrapping the given FileInfo.
func NewDirEntry(info fs.FileInfo) *DirEntry {
	return &DirEntry{info: info}
}

func (de *DirEntry) Name() string               { return de.info.Name() }
func (de *DirEntry) IsDir() bool                { return de.info.IsDir() }
func (de *DirEntry) Type() fs.FileMode          { return de.info.Mode().Type() }
func (de *DirEntry) Info() (fs.FileInfo, error) { return de.info, nil }

// File is an fs.File over an in-memory byte slice.
// It also implements io.ReaderAt and io.Seeker.
type File struct {
	*bytes.Reader
	info fs.FileInfo
}

// NewFile returns a File reading content, reporting name as its base name.
func NewFile(name string, content []byte) *File {
	return &File{
		Reader: bytes.NewReader(content),
		info:   NewInfo(name, int64(len(content))),
	}
}

// Stat returns the file's info.
func (f *File) Stat() (fs.FileInfo, error) {
	return f.info, nil
}

// Close is a no-op; the content is owned by the archive.
func (f *File) Close() error {
	return nil
}

// Dir implements fs.ReadDirFile for synthetic directories.
// Archive directories are synthesized from file paths since the format
// does not store directories explicitly.
type Dir struct {
	name string
	open func() *DirIter
	iter *DirIter
}

// NewDir creates a directory handle named name. open is called on the first
// ReadDir to start iterating the directory's children.
func NewDir(name string, open func() *DirIter) *Dir {
	return &Dir{name: name, open: open}
}

func (d *Dir) Read(_ []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}

func (d *Dir) Stat() (fs.FileInfo, error) {
	if d.name == "." {
		return NewDirInfo("."), nil
	}
	return NewDirInfo(pathutil.Base(d.name)), nil
}

func (d *Dir) Close() error {
	if d.iter != nil {
		d.iter.Close()
		d.iter = nil
	}
	return nil
}

// ReadDir reads up to n entries; n <= 0 reads all remaining entries.
func (d *Dir) ReadDir(n int) ([]fs.DirEntry, error) {
	if d.iter == nil {
		d.iter = d.open()
	}

	entries := make([]fs.DirEntry, 0)
	for n <= 0 || len(entries) < n {
		entry, ok := d.iter.Next()
		if !ok {
			break
		}
		entries = append(entries, entry)
	}
	if n > 0 && len(entries) == 0 {
		return nil, io.EOF
	}
	return entries, nil
}

// DirIter iterates over the children of a directory, synthesizing
// subdirectories. It deduplicates entries that share a common directory
// component. The source sequence must yield paths in sorted order.
type DirIter struct {
	next     func() (string, int64, bool)
	stop     func()
	prefix   string
	lastName string
	done     bool
}

// NewDirIter creates an iterator over the children of prefix ("" for the
// root, otherwise a path ending in "/"). seq yields every file path under
// prefix with its size.
func NewDirIter(seq iter.Seq2[string, int64], prefix string) *DirIter {
	next, stop := iter.Pull2(seq)
	return &DirIter{
		next:   next,
		stop:   stop,
		prefix: prefix,
	}
}

// Next returns the next directory entry.
func (it *DirIter) Next() (fs.DirEntry, bool) {
	if it.done {
		return nil, false
	}
	for {
		path, size, ok := it.next()
		if !ok {
			it.Close()
			return nil, false
		}

		childName, isSubDir := pathutil.Child(path, it.prefix)
		if childName == it.lastName {
			continue
		}
		it.lastName = childName

		if isSubDir {
			return NewDirEntry(NewDirInfo(childName)), true
		}
		return NewDirEntry(NewInfo(childName, size)), true
	}
}

// Close releases resources held by the iterator.
func (it *DirIter) Close() {
	if it.done {
		return
	}
	it.done = true
	if it.stop != nil {
		it.stop()
		it.stop = nil
	}
}

// ReadDirAll collects every child of prefix from seq.
func ReadDirAll(seq iter.Seq2[string, int64], prefix string) []fs.DirEntry {
	it := NewDirIter(seq, prefix)
	defer it.Close()

	entries := make([]fs.DirEntry, 0)
	for {
		entry, ok := it.Next()
		if !ok {
			return entries
		}
		entries = append(entries, entry)
	}
}
