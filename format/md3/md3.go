// Package md3 reads the surface and shader tables of IDP3 version 15 models.
package md3

import (
	"fmt"

	"github.com/meigma/pak/format"
)

// Layout constants.
const (
	Magic             = "IDP3"
	Version           = 15
	HeaderSize        = 108
	SurfaceHeaderSize = 108
	ShaderSize        = 68
	NameSize          = 64

	// MaxSurfaces and MaxShaders bound the tables read from one file.
	MaxSurfaces = 32
	MaxShaders  = 256
)

// Model is the decoded subset of an MD3 file.
type Model struct {
	Name      string
	NumFrames int32
	NumTags   int32
	Surfaces  []Surface
}

// Surface is one mesh of a model.
type Surface struct {
	Name    string
	Shaders []string
}

// Shaders returns the shader names of every surface in order.
func (m *Model) Shaders() []string {
	var out []string
	for _, s := range m.Surfaces {
		out = append(out, s.Shaders...)
	}
	return out
}

// Parse decodes the header, surface names and shader names of data.
func Parse(data []byte) (*Model, error) {
	if _, err := format.Header(data, Magic, HeaderSize, Version); err != nil {
		return nil, fmt.Errorf("md3: %w", err)
	}

	m := &Model{
		Name:      format.CString(data[8 : 8+NameSize]),
		NumFrames: format.Int32(data, 76),
		NumTags:   format.Int32(data, 80),
	}

	numSurfaces := format.Int32(data, 84)
	if numSurfaces < 0 || numSurfaces > MaxSurfaces {
		return nil, fmt.Errorf("md3: %w: %d surfaces", format.ErrMalformed, numSurfaces)
	}

	off := format.Int32(data, 100)
	for i := range numSurfaces {
		surf, err := format.Slice(data, off, SurfaceHeaderSize, fmt.Sprintf("surface %d", i))
		if err != nil {
			return nil, fmt.Errorf("md3: %w", err)
		}
		if string(surf[:4]) != Magic {
			return nil, fmt.Errorf("md3: surface %d: %w", i, format.ErrBadMagic)
		}

		s := Surface{Name: format.CString(surf[4 : 4+NameSize])}
		numShaders := format.Int32(surf, 76)
		if numShaders < 0 || numShaders > MaxShaders {
			return nil, fmt.Errorf("md3: %w: surface %d has %d shaders", format.ErrMalformed, i, numShaders)
		}
		shaders, err := format.Slice(data, off+format.Int32(surf, 92), numShaders*ShaderSize, fmt.Sprintf("surface %d shaders", i))
		if err != nil {
			return nil, fmt.Errorf("md3: %w", err)
		}
		for so := 0; so < len(shaders); so += ShaderSize {
			if name := format.CString(shaders[so : so+NameSize]); name != "" {
				s.Shaders = append(s.Shaders, name)
			}
		}
		m.Surfaces = append(m.Surfaces, s)

		end := format.Int32(surf, 104)
		if end <= 0 {
			return nil, fmt.Errorf("md3: %w: surface %d has end offset %d", format.ErrMalformed, i, end)
		}
		off += end
	}
	return m, nil
}
