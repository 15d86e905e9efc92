package pak

import (
	pakcore "github.com/meigma/pak/core"
	"github.com/meigma/pak/mount"
)

// Errors re-exported from core.
var (
	// ErrNotFound is returned when a path is absent. It is fs.ErrNotExist.
	ErrNotFound = pakcore.ErrNotFound

	// ErrParse is returned when an archive cannot be parsed.
	ErrParse = pakcore.ErrParse

	// ErrBadMagic is returned when data is not a PAK archive.
	ErrBadMagic = pakcore.ErrBadMagic

	// ErrDuplicateEntry is returned when an archive lists a path twice.
	ErrDuplicateEntry = pakcore.ErrDuplicateEntry

	// ErrSizeOverflow is returned when an entry lies outside its archive.
	ErrSizeOverflow = pakcore.ErrSizeOverflow

	// ErrUnsupportedOperation is returned when an archive variant is built
	// in a way it does not support.
	ErrUnsupportedOperation = pakcore.ErrUnsupportedOperation

	// ErrBufferConsumed is returned when a parse result is bound twice.
	ErrBufferConsumed = pakcore.ErrBufferConsumed
)

// Errors re-exported from mount.
var (
	// ErrDuplicateID is returned when an id is already mounted.
	ErrDuplicateID = mount.ErrDuplicateID

	// ErrNotMounted is returned when no archive is mounted under an id.
	ErrNotMounted = mount.ErrNotMounted

	// ErrOrderMismatch is returned when a new order does not name every
	// mounted archive exactly once.
	ErrOrderMismatch = mount.ErrOrderMismatch
)
