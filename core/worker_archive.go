package pak

import (
	"fmt"
	"io/fs"
	"maps"
	"slices"
	"sync/atomic"

	"github.com/meigma/pak/core/internal/index"
)

// Interface compliance.
var (
	_ Archive       = (*WorkerArchive)(nil)
	_ fs.StatFS     = (*WorkerArchive)(nil)
	_ fs.ReadFileFS = (*WorkerArchive)(nil)
	_ fs.ReadDirFS  = (*WorkerArchive)(nil)
)

// ParseResult is the reply of a background directory parse: the entry table
// and the buffer it describes, handed back to the caller.
//
// A ParseResult transfers ownership of Buffer. Once NewWorkerArchive has
// bound it, the result is consumed and must not be used again.
type ParseResult struct {
	Name    string
	Entries map[string]Entry
	Buffer  []byte

	consumed atomic.Bool
}

// ParseEntries parses the directory of data and returns it as a
// ParseResult that owns data. It is the function background workers run.
func ParseEntries(name string, data []byte) (*ParseResult, error) {
	idx, err := index.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	entries := make(map[string]Entry, idx.Len())
	for e := range idx.Entries() {
		entries[e.Name] = e
	}
	return &ParseResult{Name: name, Entries: entries, Buffer: data}, nil
}

// Consumed reports whether the result has been bound to an archive.
func (r *ParseResult) Consumed() bool {
	return r.consumed.Load()
}

// WorkerArchive is an archive bound to a directory that was parsed
// elsewhere. Construction never re-parses the buffer.
type WorkerArchive struct {
	directory
}

// NewWorkerArchive binds a parse result to a new archive and consumes it.
//
// Entry names are normalised; the map keys are ignored in favour of each
// entry's Name, falling back to the key when Name is empty.
func NewWorkerArchive(res *ParseResult) (*WorkerArchive, error) {
	if res == nil {
		return nil, fmt.Errorf("%w: nil parse result", ErrParse)
	}
	if !res.consumed.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("bind %s: %w", res.Name, ErrBufferConsumed)
	}

	entries := make([]Entry, 0, len(res.Entries))
	for _, key := range slices.Sorted(maps.Keys(res.Entries)) {
		e := res.Entries[key]
		if e.Name == "" {
			e.Name = key
		}
		e.Name = NormalizePath(e.Name)
		entries = append(entries, e)
	}
	idx, err := index.FromEntries(entries)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", res.Name, err)
	}

	data := res.Buffer
	res.Buffer = nil
	return &WorkerArchive{directory{name: res.Name, data: data, idx: idx}}, nil
}

// WorkerArchiveFromBytes always fails with ErrUnsupportedOperation.
// Raw buffers must go through a dispatcher or Parse.
func WorkerArchiveFromBytes(name string, _ []byte) (*WorkerArchive, error) {
	return nil, fmt.Errorf("worker archive %s: %w: use a dispatcher or Parse", name, ErrUnsupportedOperation)
}

// Validate always succeeds; the directory was checked by the parser that
// produced it.
func (a *WorkerArchive) Validate() ValidationResult {
	return ValidationResult{IsValid: true, Errors: []string{}}
}
