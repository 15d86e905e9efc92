// Package index parses and queries PAK directories.
//
// A PAK file starts with a 12-byte header ("PACK", directory offset,
// directory length, both little-endian int32) and ends with a directory of
// 64-byte records: a 56-byte NUL-padded name followed by the file offset
// and length. The index keeps records sorted by normalised name, enabling
// O(log n) lookups and prefix scans for directory operations.
package index
