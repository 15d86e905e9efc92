package paktype

import (
	"errors"
	"io/fs"
)

// Sentinel errors for archive operations.
var (
	// ErrNotFound is returned when a path is absent from an archive or
	// filesystem. It is fs.ErrNotExist so errors.Is works with both.
	ErrNotFound = fs.ErrNotExist

	// ErrParse is returned when an archive buffer cannot be parsed.
	ErrParse = errors.New("pak: parse failed")

	// ErrBadMagic is returned when the buffer does not start with "PACK".
	ErrBadMagic = errors.New("pak: bad magic")

	// ErrDuplicateEntry is returned when a directory lists a path twice.
	ErrDuplicateEntry = errors.New("pak: duplicate entry")

	// ErrSizeOverflow is returned when an entry or directory lies outside
	// the archive buffer.
	ErrSizeOverflow = errors.New("pak: size overflow")

	// ErrUnsupportedOperation is returned when an archive variant is built
	// in a way it does not support.
	ErrUnsupportedOperation = errors.New("pak: unsupported operation")

	// ErrBufferConsumed is returned when a parse result whose buffer was
	// already handed to an archive is used again.
	ErrBufferConsumed = errors.New("pak: buffer already consumed")
)
