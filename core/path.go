package pak

import "github.com/meigma/pak/internal/pathutil"

// NormalizePath converts a user-provided path to the form archives store.
//
// It performs the following transformations:
//   - Converts backslashes: "models\\tank" → "models/tank"
//   - Strips leading and trailing slashes: "/maps/" → "maps"
//   - Collapses consecutive slashes: "maps//base1.bsp" → "maps/base1.bsp"
//   - Lower-cases: "PICS/Colormap.PCX" → "pics/colormap.pcx"
//   - Converts empty string and "/" to root: "" → "."
//
// Paths containing "." or ".." elements are preserved and will be rejected
// by archive methods via fs.ValidPath.
func NormalizePath(p string) string {
	return pathutil.Normalize(p)
}
