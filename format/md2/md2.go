// Package md2 reads the header and skin table of Quake II (IDP2 version 8)
// models.
package md2

import (
	"fmt"

	"github.com/meigma/pak/format"
)

// Layout constants.
const (
	Magic      = "IDP2"
	Version    = 8
	HeaderSize = 68
	SkinSize   = 64

	// MaxSkins is the engine limit on skins per model.
	MaxSkins = 32
)

// Model is the decoded subset of an MD2 file.
type Model struct {
	SkinWidth    int32
	SkinHeight   int32
	NumVertices  int32
	NumTexCoords int32
	NumTriangles int32
	NumFrames    int32

	// Skins are the skin image paths, as stored.
	Skins []string
}

// Parse decodes the header and skin names of data.
func Parse(data []byte) (*Model, error) {
	if _, err := format.Header(data, Magic, HeaderSize, Version); err != nil {
		return nil, fmt.Errorf("md2: %w", err)
	}

	m := &Model{
		SkinWidth:    format.Int32(data, 8),
		SkinHeight:   format.Int32(data, 12),
		NumVertices:  format.Int32(data, 24),
		NumTexCoords: format.Int32(data, 28),
		NumTriangles: format.Int32(data, 32),
		NumFrames:    format.Int32(data, 40),
	}

	numSkins := format.Int32(data, 20)
	if numSkins < 0 || numSkins > MaxSkins {
		return nil, fmt.Errorf("md2: %w: %d skins", format.ErrMalformed, numSkins)
	}
	skins, err := format.Slice(data, format.Int32(data, 44), numSkins*SkinSize, "skins")
	if err != nil {
		return nil, fmt.Errorf("md2: %w", err)
	}
	for off := 0; off < len(skins); off += SkinSize {
		if name := format.CString(skins[off : off+SkinSize]); name != "" {
			m.Skins = append(m.Skins, name)
		}
	}
	return m, nil
}
