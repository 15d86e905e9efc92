package index

import (
	"errors"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/meigma/pak/core/internal/fb"
	"github.com/meigma/pak/core/internal/paktype"
)

// SnapshotVersion is the format version written by Encode.
const SnapshotVersion = 1

// Snapshot is a decoded directory snapshot.
type Snapshot struct {
	Name  string
	Size  int64
	Index *Index
}

// Encode serialises the index of an archive of size bytes as a FlatBuffers
// Directory table.
func Encode(name string, size int64, idx *Index) []byte {
	b := flatbuffers.NewBuilder(64 + idx.Len()*48)

	offsets := make([]flatbuffers.UOffsetT, idx.Len())
	for i, e := range idx.entries {
		nameOff := b.CreateString(e.Name)
		fb.EntryStart(b)
		fb.EntryAddName(b, nameOff)
		fb.EntryAddOffset(b, e.Offset)
		fb.EntryAddLength(b, e.Length)
		offsets[i] = fb.EntryEnd(b)
	}

	fb.DirectoryStartEntriesVector(b, len(offsets))
	for i := len(offsets) - 1; i >= 0; i-- {
		b.PrependUOffsetT(offsets[i])
	}
	entriesOff := b.EndVector(len(offsets))
	nameOff := b.CreateString(name)

	fb.DirectoryStart(b)
	fb.DirectoryAddVersion(b, SnapshotVersion)
	fb.DirectoryAddName(b, nameOff)
	fb.DirectoryAddSize(b, uint64(size)) //nolint:gosec // sizes are non-negative
	fb.DirectoryAddEntries(b, entriesOff)
	b.Finish(fb.DirectoryEnd(b))
	return b.FinishedBytes()
}

// Decode parses a snapshot produced by Encode.
func Decode(data []byte) (snap *Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			snap = nil
			err = fmt.Errorf("%w: snapshot: %v", paktype.ErrParse, r)
		}
	}()
	if len(data) == 0 {
		return nil, errors.New("pak: empty snapshot data")
	}

	root := fb.GetRootAsDirectory(data, 0)
	if v := root.Version(); v != SnapshotVersion {
		return nil, fmt.Errorf("%w: snapshot version %d, want %d", paktype.ErrParse, v, SnapshotVersion)
	}

	n := root.EntriesLength()
	if n > MaxEntries {
		return nil, fmt.Errorf("%w: %d entries exceeds limit %d", paktype.ErrParse, n, MaxEntries)
	}
	entries := make([]paktype.Entry, 0, n)
	var fbEntry fb.Entry
	for i := range n {
		if !root.Entries(&fbEntry, i) {
			return nil, fmt.Errorf("%w: snapshot entry %d missing", paktype.ErrParse, i)
		}
		entries = append(entries, paktype.Entry{
			Name:   string(fbEntry.Name()),
			Offset: fbEntry.Offset(),
			Length: fbEntry.Length(),
		})
	}

	idx, err := FromEntries(entries)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Name:  string(root.Name()),
		Size:  int64(root.Size()), //nolint:gosec // written from an int64
		Index: idx,
	}, nil
}
