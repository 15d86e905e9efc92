package pak

import "github.com/meigma/pak/core/internal/paktype"

// Sentinel errors re-exported from internal/paktype.
var (
	// ErrNotFound is returned when a path is absent from an archive.
	// It is fs.ErrNotExist.
	ErrNotFound = paktype.ErrNotFound

	// ErrParse is returned when an archive buffer cannot be parsed.
	ErrParse = paktype.ErrParse

	// ErrBadMagic is returned when the buffer does not start with "PACK".
	ErrBadMagic = paktype.ErrBadMagic

	// ErrDuplicateEntry is returned when a directory lists a path twice.
	ErrDuplicateEntry = paktype.ErrDuplicateEntry

	// ErrSizeOverflow is returned when an entry lies outside the buffer.
	ErrSizeOverflow = paktype.ErrSizeOverflow

	// ErrUnsupportedOperation is returned by WorkerArchiveFromBytes.
	ErrUnsupportedOperation = paktype.ErrUnsupportedOperation

	// ErrBufferConsumed is returned when a ParseResult is bound twice.
	ErrBufferConsumed = paktype.ErrBufferConsumed
)
