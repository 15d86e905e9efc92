package index

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"iter"
	"slices"
	"sort"
	"strings"

	"github.com/meigma/pak/core/internal/paktype"
	"github.com/meigma/pak/internal/pathutil"
	"github.com/meigma/pak/internal/sizing"
)

// Layout constants of the PAK format.
const (
	HeaderSize  = 12
	RecordSize  = 64
	NameSize    = 56
	MaxEntries  = 1 << 20
	headerMagic = "PACK"
)

// Index provides access to the entries of one archive.
//
// Entries are sorted by name, enabling efficient prefix scans.
type Index struct {
	entries []paktype.Entry
}

// Parse reads the directory of a PAK buffer.
//
// Names are normalised (see pathutil.Normalize). Duplicate names and
// records pointing outside the buffer are rejected.
func Parse(data []byte) (*Index, error) {
	dirOffset, dirLength, err := ParseHeader(data, int64(len(data)))
	if err != nil {
		return nil, err
	}
	return ParseDirectory(data[dirOffset:dirOffset+dirLength], int64(len(data)))
}

// ParseHeader validates the 12-byte header of an archive of size bytes and
// returns the location of its directory.
func ParseHeader(header []byte, size int64) (dirOffset, dirLength int64, err error) {
	if len(header) < HeaderSize || size < HeaderSize {
		return 0, 0, fmt.Errorf("%w: %d byte buffer is shorter than the header", paktype.ErrParse, min(int64(len(header)), size))
	}
	if string(header[:4]) != headerMagic {
		return 0, 0, fmt.Errorf("%w: %w: %q", paktype.ErrParse, paktype.ErrBadMagic, header[:4])
	}

	off := int32(binary.LittleEndian.Uint32(header[4:8]))    //nolint:gosec // format stores int32
	length := int32(binary.LittleEndian.Uint32(header[8:12])) //nolint:gosec // format stores int32
	if off < 0 || length < 0 {
		return 0, 0, fmt.Errorf("%w: %w: negative directory offset or length", paktype.ErrParse, paktype.ErrSizeOverflow)
	}
	if length%RecordSize != 0 {
		return 0, 0, fmt.Errorf("%w: directory length %d is not a multiple of %d", paktype.ErrParse, length, RecordSize)
	}
	if !sizing.InRange(off, length, size) {
		return 0, 0, fmt.Errorf("%w: %w: directory [%d,+%d) outside %d byte buffer",
			paktype.ErrParse, paktype.ErrSizeOverflow, off, length, size)
	}
	if count := int(length / RecordSize); count > MaxEntries {
		return 0, 0, fmt.Errorf("%w: %d entries exceeds limit %d", paktype.ErrParse, count, MaxEntries)
	}
	return int64(off), int64(length), nil
}

// ParseDirectory decodes directory records of an archive of size bytes.
// It does not need the rest of the archive, so a remote directory can be
// read without downloading file content.
func ParseDirectory(dir []byte, size int64) (idx *Index, err error) {
	defer func() {
		if r := recover(); r != nil {
			idx = nil
			err = fmt.Errorf("%w: %v", paktype.ErrParse, r)
		}
	}()

	if len(dir)%RecordSize != 0 {
		return nil, fmt.Errorf("%w: directory length %d is not a multiple of %d", paktype.ErrParse, len(dir), RecordSize)
	}
	count := len(dir) / RecordSize
	entries := make([]paktype.Entry, 0, count)
	for i := range count {
		rec := dir[i*RecordSize : (i+1)*RecordSize]
		name := rec[:NameSize]
		if n := bytes.IndexByte(name, 0); n >= 0 {
			name = name[:n]
		}
		offset := int32(binary.LittleEndian.Uint32(rec[56:60])) //nolint:gosec // format stores int32
		length := int32(binary.LittleEndian.Uint32(rec[60:64])) //nolint:gosec // format stores int32
		if len(name) == 0 {
			return nil, fmt.Errorf("%w: record %d has an empty name", paktype.ErrParse, i)
		}
		if offset < 0 || length < 0 {
			return nil, fmt.Errorf("%w: %w: record %q has negative offset or length",
				paktype.ErrParse, paktype.ErrSizeOverflow, name)
		}
		entry := paktype.Entry{
			Name:   pathutil.Normalize(string(name)),
			Offset: uint32(offset),
			Length: uint32(length),
		}
		if !sizing.InRange(entry.Offset, entry.Length, size) {
			return nil, fmt.Errorf("%w: %w: %q [%d,+%d) outside %d byte buffer",
				paktype.ErrParse, paktype.ErrSizeOverflow, entry.Name, entry.Offset, entry.Length, size)
		}
		entries = append(entries, entry)
	}

	return FromEntries(entries)
}

// FromEntries builds an index from an already computed entry table.
//
// The slice is sorted in place and retained; callers must not modify it
// after calling FromEntries.
func FromEntries(entries []paktype.Entry) (*Index, error) {
	slices.SortFunc(entries, func(a, b paktype.Entry) int {
		return strings.Compare(a.Name, b.Name)
	})
	for i := 1; i < len(entries); i++ {
		if entries[i].Name == entries[i-1].Name {
			return nil, fmt.Errorf("%w: %w: %q", paktype.ErrParse, paktype.ErrDuplicateEntry, entries[i].Name)
		}
	}
	return &Index{entries: entries}, nil
}

// Lookup returns the entry for the given normalised name.
func (idx *Index) Lookup(name string) (paktype.Entry, bool) {
	i, found := slices.BinarySearchFunc(idx.entries, name, func(e paktype.Entry, target string) int {
		return strings.Compare(e.Name, target)
	})
	if !found {
		return paktype.Entry{}, false
	}
	return idx.entries[i], true
}

// Len returns the number of entries in the index.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Entries returns an iterator over all entries in name order.
func (idx *Index) Entries() iter.Seq[paktype.Entry] {
	return func(yield func(paktype.Entry) bool) {
		for _, e := range idx.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// EntriesWithPrefix returns an iterator over entries whose name starts with
// prefix, in name order.
func (idx *Index) EntriesWithPrefix(prefix string) iter.Seq[paktype.Entry] {
	return func(yield func(paktype.Entry) bool) {
		start := sort.Search(len(idx.entries), func(i int) bool {
			return idx.entries[i].Name >= prefix
		})
		for _, e := range idx.entries[start:] {
			if !strings.HasPrefix(e.Name, prefix) {
				return
			}
			if !yield(e) {
				return
			}
		}
	}
}

// Validate checks every entry against a buffer of size bytes and reports
// all problems found.
func (idx *Index) Validate(size int64) paktype.ValidationResult {
	var errs []string
	for _, e := range idx.entries {
		if !sizing.InRange(e.Offset, e.Length, size) {
			errs = append(errs, fmt.Sprintf("%s: range [%d,%d) exceeds archive size %d", e.Name, e.Offset, e.End(), size))
		}
		if e.Offset < HeaderSize && e.Length > 0 {
			errs = append(errs, fmt.Sprintf("%s: offset %d overlaps the header", e.Name, e.Offset))
		}
	}
	return paktype.ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}
