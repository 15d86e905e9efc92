// Package bsp reads the entity and texture information of Quake II (IBSP
// version 38) maps.
package bsp

import (
	"fmt"
	"slices"

	"github.com/meigma/pak/format"
)

// Layout constants of the IBSP header and the lumps read here.
const (
	Magic   = "IBSP"
	Version = 38

	NumLumps   = 19
	HeaderSize = 8 + NumLumps*8

	LumpEntities = 0
	LumpTexinfo  = 5

	TexinfoSize       = 76
	texinfoNameOffset = 40
	texinfoNameSize   = 32
)

// Map is the decoded subset of a BSP file.
type Map struct {
	Version int32

	// Entities in lump order.
	Entities []Entity

	// Textures lists the distinct texture names referenced by texinfo, in
	// first-use order, relative to textures/ and without extension, as stored.
	Textures []string
}

// Parse decodes the entity and texinfo lumps of data.
func Parse(data []byte) (*Map, error) {
	v, err := format.Header(data, Magic, HeaderSize, Version)
	if err != nil {
		return nil, fmt.Errorf("bsp: %w", err)
	}

	entLump, err := lump(data, LumpEntities)
	if err != nil {
		return nil, err
	}
	entities, err := ParseEntities(format.CString(entLump))
	if err != nil {
		return nil, fmt.Errorf("bsp: entities: %w", err)
	}

	texLump, err := lump(data, LumpTexinfo)
	if err != nil {
		return nil, err
	}
	if len(texLump)%TexinfoSize != 0 {
		return nil, fmt.Errorf("bsp: %w: texinfo lump length %d is not a multiple of %d",
			format.ErrMalformed, len(texLump), TexinfoSize)
	}

	var textures []string
	for off := 0; off < len(texLump); off += TexinfoSize {
		name := format.CString(texLump[off+texinfoNameOffset : off+texinfoNameOffset+texinfoNameSize])
		if name != "" && !slices.Contains(textures, name) {
			textures = append(textures, name)
		}
	}

	return &Map{Version: v, Entities: entities, Textures: textures}, nil
}

func lump(data []byte, n int) ([]byte, error) {
	base := 8 + n*8
	b, err := format.Slice(data, format.Int32(data, base), format.Int32(data, base+4), fmt.Sprintf("lump %d", n))
	if err != nil {
		return nil, fmt.Errorf("bsp: %w", err)
	}
	return b, nil
}

// TexturePath returns the file a texinfo name refers to.
func TexturePath(name string) string {
	return "textures/" + name + ".wal"
}
