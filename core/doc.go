//go:generate flatc --go --go-namespace fb -o internal schema/directory.fbs

// Package pak provides read-only access to Quake II PAK archives.
//
// A PAK archive is a single buffer holding file contents followed by a
// directory of name, offset and length records. Two archive types share
// the Archive contract:
//   - PakArchive: parsed synchronously from raw bytes with Parse
//   - WorkerArchive: bound to a directory that was parsed elsewhere (for
//     example on a background goroutine) via NewWorkerArchive
//
// Both implement fs.FS and related interfaces for stdlib compatibility.
// Paths are case-insensitive; lookups normalise their argument with
// NormalizePath.
package pak
