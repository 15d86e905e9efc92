package pak

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/meigma/pak/core/internal/index"
)

// maxSnapshotMemory bounds the decoded size of a directory snapshot.
const maxSnapshotMemory = 64 << 20

var (
	snapshotEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1), zstd.WithLowerEncoderMem(true))
	})
	snapshotDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(maxSnapshotMemory))
	})
)

// ErrSnapshotMismatch is returned when a snapshot does not describe the
// buffer it is being bound to.
var ErrSnapshotMismatch = errors.New("pak: snapshot does not match archive")

// MarshalDirectory encodes the directory of a as a zstd-compressed
// FlatBuffers snapshot suitable for a directory cache.
func MarshalDirectory(a Archive) ([]byte, error) {
	idx, err := index.FromEntries(a.Entries())
	if err != nil {
		return nil, err
	}
	enc, err := snapshotEncoder()
	if err != nil {
		return nil, fmt.Errorf("snapshot encoder: %w", err)
	}
	raw := index.Encode(a.Name(), a.Size(), idx)
	return enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

// FromSnapshot binds a snapshot produced by MarshalDirectory to the buffer
// it describes, skipping the directory parse.
//
// The provided data is retained by the archive; callers must not modify it
// after calling FromSnapshot.
func FromSnapshot(name string, snapshot, data []byte) (*PakArchive, error) {
	dec, err := snapshotDecoder()
	if err != nil {
		return nil, fmt.Errorf("snapshot decoder: %w", err)
	}
	raw, err := dec.DecodeAll(snapshot, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot: %w", ErrParse, err)
	}
	snap, err := index.Decode(raw)
	if err != nil {
		return nil, err
	}
	if snap.Size != int64(len(data)) {
		return nil, fmt.Errorf("%w: snapshot size %d, archive size %d", ErrSnapshotMismatch, snap.Size, len(data))
	}
	a := &PakArchive{directory{name: name, data: data, idx: snap.Index}}
	if res := a.Validate(); !res.IsValid {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotMismatch, res.Errors[0])
	}
	return a, nil
}
