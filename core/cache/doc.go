// Package cache provides content-addressed storage for parsed PAK
// directories.
//
// Parsing a large PAK directory is cheap compared with reading the archive,
// but remote and repeatedly loaded archives benefit from skipping it. Keys
// are digests of the whole archive buffer, so a hit always describes the
// same bytes that are being loaded.
package cache
