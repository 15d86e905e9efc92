package pak

import (
	"github.com/meigma/pak/internal/pathutil"
)

// FileType classifies a path by extension.
type FileType string

// File types.
const (
	FileTypePCX     FileType = "pcx"
	FileTypeWAL     FileType = "wal"
	FileTypeMD2     FileType = "md2"
	FileTypeMD3     FileType = "md3"
	FileTypeSP2     FileType = "sp2"
	FileTypeWAV     FileType = "wav"
	FileTypeBSP     FileType = "bsp"
	FileTypeText    FileType = "txt"
	FileTypeUnknown FileType = "unknown"
)

// TypeOf returns the file type of path. Plain text covers .txt, .cfg and
// .ent files.
func TypeOf(path string) FileType {
	switch ext := pathutil.Ext(path); ext {
	case "pcx", "wal", "md2", "md3", "sp2", "wav", "bsp":
		return FileType(ext)
	case "txt", "cfg", "ent":
		return FileTypeText
	default:
		return FileTypeUnknown
	}
}

// Metadata describes one copy of a file.
type Metadata struct {
	Path      string   `json:"path"`
	Name      string   `json:"name"`
	Size      int64    `json:"size"`
	Extension string   `json:"extension"`
	FileType  FileType `json:"fileType"`

	// Source is the display name of the archive supplying the file and
	// SourceID its mount id.
	Source   string `json:"source"`
	SourceID string `json:"sourceId"`

	// Overridden is set when an archive with strictly higher priority
	// also holds the path.
	Overridden bool `json:"overridden"`
}

// Stat returns the metadata of the merged copy of path.
func (e *Explorer) Stat(path string) (Metadata, bool) {
	f, ok := e.FS().Lookup(path)
	if !ok {
		return Metadata{}, false
	}
	return e.metadata(f.Path, f.Size, f.SourceID), true
}

// StatIn returns the metadata of the copy of path held by the archive
// mounted under id, whether or not that copy wins.
func (e *Explorer) StatIn(id, path string) (Metadata, bool) {
	rec, ok := e.mounts.Get(id)
	if !ok {
		return Metadata{}, false
	}
	entry, ok := rec.Archive.Entry(path)
	if !ok {
		return Metadata{}, false
	}
	return e.metadata(entry.Name, int64(entry.Length), id), true
}

func (e *Explorer) metadata(path string, size int64, id string) Metadata {
	source := id
	if rec, ok := e.mounts.Get(id); ok {
		source = rec.DisplayName
	}
	return Metadata{
		Path:       path,
		Name:       pathutil.Base(path),
		Size:       size,
		Extension:  pathutil.Ext(path),
		FileType:   TypeOf(path),
		Source:     source,
		SourceID:   id,
		Overridden: e.mounts.IsOverridden(id, path),
	}
}
