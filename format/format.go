// Package format holds what the Quake II asset readers under format/ share:
// their error sentinels and the fixed-width string and bounds helpers the
// binary layouts need.
//
// The readers decode only the parts of each format that indexing consumes.
// Geometry, visibility and animation data are skipped.
package format

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/meigma/pak/internal/sizing"
)

// Sentinel errors shared by the format readers.
var (
	// ErrBadMagic is returned when a buffer does not start with the
	// expected identifier.
	ErrBadMagic = errors.New("format: bad magic")

	// ErrUnsupportedVersion is returned for a known format at an unknown
	// version.
	ErrUnsupportedVersion = errors.New("format: unsupported version")

	// ErrTruncated is returned when a header, lump or record lies outside
	// the buffer.
	ErrTruncated = errors.New("format: truncated")

	// ErrMalformed is returned for structurally invalid content, such as an
	// unbalanced entity lump.
	ErrMalformed = errors.New("format: malformed")
)

// CString returns b up to its first NUL byte.
func CString(b []byte) string {
	if n := bytes.IndexByte(b, 0); n >= 0 {
		b = b[:n]
	}
	return string(b)
}

// Int32 reads the little-endian int32 at off.
func Int32(b []byte, off int) int32 {
	return int32(binary.LittleEndian.Uint32(b[off : off+4])) //nolint:gosec // formats store int32
}

// Slice returns data[off:off+length], failing with ErrTruncated when the
// range is negative or outside data. what names the range in the error.
func Slice(data []byte, off, length int32, what string) ([]byte, error) {
	if !sizing.InRange(off, length, int64(len(data))) {
		return nil, fmt.Errorf("%w: %s [%d,+%d) outside %d byte buffer", ErrTruncated, what, off, length, len(data))
	}
	return data[off : off+length], nil
}

// Header checks that data holds at least size bytes and starts with magic
// followed by a little-endian version in versions.
func Header(data []byte, magic string, size int, versions ...int32) (int32, error) {
	if len(data) < size {
		return 0, fmt.Errorf("%w: %d byte buffer is shorter than the %d byte header", ErrTruncated, len(data), size)
	}
	if string(data[:4]) != magic {
		return 0, fmt.Errorf("%w: got %q, want %q", ErrBadMagic, data[:4], magic)
	}
	v := Int32(data, 4)
	for _, want := range versions {
		if v == want {
			return v, nil
		}
	}
	return v, fmt.Errorf("%w: %s version %d", ErrUnsupportedVersion, magic, v)
}
