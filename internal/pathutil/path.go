// Package pathutil provides path manipulation for slash-separated archive paths.
package pathutil

import "strings"

// Normalize converts an archive or user supplied path to the canonical
// lookup form used by archives and the virtual filesystem.
//
// It performs the following transformations:
//   - Backslashes become slashes: "models\\a.md2" → "models/a.md2"
//   - Leading, trailing and repeated slashes are removed
//   - ASCII letters are lower-cased, Quake II paths are case-insensitive
//   - Empty input and "/" become "."
//
// "." and ".." elements are preserved; fs.ValidPath rejects them later.
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.Trim(p, "/")
	if p == "" {
		return "."
	}

	parts := strings.Split(p, "/")
	result := parts[:0]
	for _, part := range parts {
		if part != "" {
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		return "."
	}
	return strings.ToLower(strings.Join(result, "/"))
}

// Base returns the last element of a slash-separated path.
// If path is empty or ".", it returns ".".
func Base(path string) string {
	if path == "" || path == "." {
		return "."
	}
	path = strings.TrimSuffix(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Dir returns everything but the last element of path, or "" at the root.
func Dir(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[:i]
	}
	return ""
}

// DirPrefix converts a path to its directory prefix form.
// For "." and "", returns "" (empty prefix matches all).
// For other paths, appends "/" to match children.
func DirPrefix(name string) string {
	if name == "." || name == "" {
		return ""
	}
	return name + "/"
}

// Child extracts the immediate child name from a full path given a prefix.
// Returns the child name and whether it's a subdirectory (has more path components).
// If path doesn't have the prefix, behavior is undefined.
func Child(path, prefix string) (name string, isSubDir bool) {
	relPath := strings.TrimPrefix(path, prefix)
	if idx := strings.Index(relPath, "/"); idx >= 0 {
		return relPath[:idx], true
	}
	return relPath, false
}

// Ext returns the lower-cased extension of the last path element without
// the leading dot, or "" when there is none.
func Ext(path string) string {
	base := Base(path)
	i := strings.LastIndexByte(base, '.')
	if i < 0 || i == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[i+1:])
}

// StripExt returns path without the extension of its last element.
// "models/skin.pcx" → "models/skin", "models/skin" → "models/skin".
func StripExt(path string) string {
	slash := strings.LastIndexByte(path, '/')
	dot := strings.LastIndexByte(path, '.')
	if dot <= slash {
		return path
	}
	return path[:dot]
}
