// Package pcx reads the header and 256 colour palette of 8-bit PCX images,
// the format of Quake II skins and of pics/colormap.pcx.
package pcx

import (
	"encoding/binary"
	"fmt"
	"image/color"

	"github.com/meigma/pak/format"
)

// Layout constants.
const (
	Manufacturer = 0x0A
	HeaderSize   = 128

	paletteMarker = 0x0C
	paletteSize   = 256 * 3
)

// Header is the fixed PCX header.
type Header struct {
	Version      uint8
	Encoding     uint8
	BitsPerPixel uint8
	Width        int
	Height       int
	Planes       uint8
	BytesPerLine int
}

// ParseHeader decodes the header of data.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("pcx: %w: %d byte buffer is shorter than the header", format.ErrTruncated, len(data))
	}
	if data[0] != Manufacturer {
		return Header{}, fmt.Errorf("pcx: %w: manufacturer 0x%02x", format.ErrBadMagic, data[0])
	}
	le := binary.LittleEndian
	xmin, ymin := le.Uint16(data[4:]), le.Uint16(data[6:])
	xmax, ymax := le.Uint16(data[8:]), le.Uint16(data[10:])
	if xmax < xmin || ymax < ymin {
		return Header{}, fmt.Errorf("pcx: %w: window (%d,%d)-(%d,%d)", format.ErrMalformed, xmin, ymin, xmax, ymax)
	}
	return Header{
		Version:      data[1],
		Encoding:     data[2],
		BitsPerPixel: data[3],
		Width:        int(xmax-xmin) + 1,
		Height:       int(ymax-ymin) + 1,
		Planes:       data[65],
		BytesPerLine: int(le.Uint16(data[66:])),
	}, nil
}

// Palette returns the 256 colour palette stored after the image data of an
// 8-bit single plane PCX.
func Palette(data []byte) (color.Palette, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if h.BitsPerPixel != 8 || h.Planes != 1 {
		return nil, fmt.Errorf("pcx: %w: %d bpp, %d planes has no palette", format.ErrMalformed, h.BitsPerPixel, h.Planes)
	}
	if len(data) < HeaderSize+1+paletteSize {
		return nil, fmt.Errorf("pcx: %w: no room for a palette", format.ErrTruncated)
	}
	raw := data[len(data)-paletteSize-1:]
	if raw[0] != paletteMarker {
		return nil, fmt.Errorf("pcx: %w: palette marker 0x%02x", format.ErrMalformed, raw[0])
	}
	raw = raw[1:]

	p := make(color.Palette, 256)
	for i := range p {
		p[i] = color.RGBA{R: raw[i*3], G: raw[i*3+1], B: raw[i*3+2], A: 0xFF}
	}
	return p, nil
}

// RawPalette returns the palette as 768 packed RGB bytes.
func RawPalette(p color.Palette) []byte {
	out := make([]byte, 0, paletteSize)
	for _, c := range p {
		r, g, b, _ := c.RGBA()
		out = append(out, byte(r>>8), byte(g>>8), byte(b>>8))
	}
	return out
}
