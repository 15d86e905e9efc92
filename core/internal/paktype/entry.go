// Package paktype holds the types shared by the PAK directory parser,
// its encoded snapshots, and the public archive API.
package paktype

// Entry is one file record of a PAK directory.
type Entry struct {
	// Name is the normalised path of the file inside the archive
	// (e.g., "models/monsters/tank/skin.pcx").
	Name string

	// Offset is the byte offset of the file content in the archive.
	Offset uint32

	// Length is the size in bytes of the file content.
	Length uint32
}

// End returns the offset one past the last byte of the entry.
func (e Entry) End() uint64 {
	return uint64(e.Offset) + uint64(e.Length)
}

// ValidationResult reports the outcome of an archive consistency check.
type ValidationResult struct {
	IsValid bool
	Errors  []string
}
