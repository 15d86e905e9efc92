// Package sizing checks byte ranges against buffer and archive sizes.
package sizing

import (
	"io"
	"math"
)

// Integer is any integer type an archive stores offsets or lengths in.
type Integer interface {
	~int32 | ~int64 | ~int | ~uint32 | ~uint64
}

// InRange reports whether [off, off+length) lies inside size bytes.
// Negative offsets or lengths are never in range.
func InRange[T Integer](off, length T, size int64) bool {
	if off < 0 || length < 0 || size < 0 {
		return false
	}
	o, l := uint64(off), uint64(length) //nolint:gosec // both checked non-negative
	end := o + l
	return end >= o && end <= uint64(size)
}

// ReadAtMost reads r to EOF, failing with tooLarge once more than limit
// bytes arrive.
func ReadAtMost(r io.Reader, limit int64, tooLarge error) ([]byte, error) {
	if limit < 0 || limit == math.MaxInt64 {
		return nil, tooLarge
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, tooLarge
	}
	return data, nil
}
