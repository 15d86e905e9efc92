package pak

import (
	"fmt"
	"io/fs"

	"github.com/meigma/pak/core/internal/index"
)

// Interface compliance.
var (
	_ Archive       = (*PakArchive)(nil)
	_ fs.StatFS     = (*PakArchive)(nil)
	_ fs.ReadFileFS = (*PakArchive)(nil)
	_ fs.ReadDirFS  = (*PakArchive)(nil)
)

// PakArchive is an archive whose directory was parsed synchronously from
// its own buffer.
type PakArchive struct {
	directory
}

// Parse parses the directory of a PAK buffer.
//
// The provided data is retained by the archive; callers must not modify it
// after calling Parse. Parse failures wrap ErrParse, and additionally
// ErrBadMagic, ErrSizeOverflow or ErrDuplicateEntry where they apply.
func Parse(name string, data []byte) (*PakArchive, error) {
	idx, err := index.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return &PakArchive{directory{name: name, data: data, idx: idx}}, nil
}

// Validate re-checks every entry against the buffer and reports all
// problems found.
func (a *PakArchive) Validate() ValidationResult {
	return a.idx.Validate(a.Size())
}
