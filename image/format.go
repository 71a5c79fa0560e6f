// Package image provides texel formats, mipmap generation and image file
// I/O for tilereplay.
//
// Pixels are handled in the device's native layouts: multi-byte texels are
// little-endian, so an A8R8G8B8 pixel 0xAARRGGBB is stored as B, G, R, A.
package image

import "encoding/binary"

// Format represents a texel storage format.
type Format uint8

const (
	// FormatA8R8G8B8 is 32-bit ARGB (4 bytes per pixel).
	// This is the format of color buffers and saved images.
	FormatA8R8G8B8 Format = iota

	// FormatR5G6B5 is 16-bit RGB without alpha.
	FormatR5G6B5

	// FormatA1R5G5B5 is 16-bit RGB with a 1-bit alpha.
	FormatA1R5G5B5

	// FormatA4R4G4B4 is 16-bit ARGB with 4 bits per channel.
	FormatA4R4G4B4

	// FormatA8L8 is 16-bit luminance with alpha (L in the low byte).
	FormatA8L8

	// FormatL8 is 8-bit luminance.
	FormatL8

	// FormatA8 is 8-bit alpha.
	FormatA8

	// formatCount is the number of formats (for internal use).
	formatCount
)

// FormatInfo contains metadata about a texel format.
type FormatInfo struct {
	// BytesPerPixel is the number of bytes per texel.
	BytesPerPixel int

	// HasAlpha indicates if the format stores alpha.
	HasAlpha bool

	// IsLuminance indicates if color is a single luminance channel.
	IsLuminance bool
}

// formatInfoTable contains metadata for each format.
var formatInfoTable = [formatCount]FormatInfo{
	FormatA8R8G8B8: {BytesPerPixel: 4, HasAlpha: true},
	FormatR5G6B5:   {BytesPerPixel: 2},
	FormatA1R5G5B5: {BytesPerPixel: 2, HasAlpha: true},
	FormatA4R4G4B4: {BytesPerPixel: 2, HasAlpha: true},
	FormatA8L8:     {BytesPerPixel: 2, HasAlpha: true, IsLuminance: true},
	FormatL8:       {BytesPerPixel: 1, IsLuminance: true},
	FormatA8:       {BytesPerPixel: 1, HasAlpha: true},
}

// Info returns the FormatInfo for this format.
func (f Format) Info() FormatInfo {
	if f >= formatCount {
		return FormatInfo{}
	}
	return formatInfoTable[f]
}

// BytesPerPixel returns the number of bytes per texel.
func (f Format) BytesPerPixel() int {
	return f.Info().BytesPerPixel
}

// HasAlpha returns true if this format has an alpha channel.
func (f Format) HasAlpha() bool {
	return f.Info().HasAlpha
}

// IsValid returns true if the format is a valid known format.
func (f Format) IsValid() bool {
	return f < formatCount
}

// RowBytes calculates the number of bytes needed for a row of the given width.
func (f Format) RowBytes(width int) int {
	return width * f.BytesPerPixel()
}

// ImageBytes calculates the total number of bytes needed for an image.
func (f Format) ImageBytes(width, height int) int {
	return f.RowBytes(width) * height
}

// String returns a string representation of the format.
func (f Format) String() string {
	switch f {
	case FormatA8R8G8B8:
		return "A8R8G8B8"
	case FormatR5G6B5:
		return "R5G6B5"
	case FormatA1R5G5B5:
		return "A1R5G5B5"
	case FormatA4R4G4B4:
		return "A4R4G4B4"
	case FormatA8L8:
		return "A8L8"
	case FormatL8:
		return "L8"
	case FormatA8:
		return "A8"
	default:
		return "Unknown"
	}
}

// Load decodes the texel at the start of b into a packed 0xAARRGGBB color.
// b must hold at least BytesPerPixel bytes.
func (f Format) Load(b []byte) uint32 {
	switch f {
	case FormatA8R8G8B8:
		return binary.LittleEndian.Uint32(b)
	case FormatR5G6B5:
		v := uint32(binary.LittleEndian.Uint16(b))
		return 0xff000000 | expand(v>>11, 5)<<16 | expand(v>>5&0x3f, 6)<<8 | expand(v&0x1f, 5)
	case FormatA1R5G5B5:
		v := uint32(binary.LittleEndian.Uint16(b))
		a := uint32(0)
		if v&0x8000 != 0 {
			a = 0xff
		}
		return a<<24 | expand(v>>10&0x1f, 5)<<16 | expand(v>>5&0x1f, 5)<<8 | expand(v&0x1f, 5)
	case FormatA4R4G4B4:
		v := uint32(binary.LittleEndian.Uint16(b))
		return expand(v>>12, 4)<<24 | expand(v>>8&0xf, 4)<<16 | expand(v>>4&0xf, 4)<<8 | expand(v&0xf, 4)
	case FormatA8L8:
		l, a := uint32(b[0]), uint32(b[1])
		return a<<24 | l<<16 | l<<8 | l
	case FormatL8:
		l := uint32(b[0])
		return 0xff000000 | l<<16 | l<<8 | l
	case FormatA8:
		return uint32(b[0]) << 24
	default:
		return 0
	}
}

// Store encodes the packed 0xAARRGGBB color c into the texel at the start of b.
// b must hold at least BytesPerPixel bytes.
func (f Format) Store(b []byte, c uint32) {
	a, r, g, bl := c>>24, c>>16&0xff, c>>8&0xff, c&0xff
	switch f {
	case FormatA8R8G8B8:
		binary.LittleEndian.PutUint32(b, c)
	case FormatR5G6B5:
		binary.LittleEndian.PutUint16(b, uint16(r>>3<<11|g>>2<<5|bl>>3))
	case FormatA1R5G5B5:
		binary.LittleEndian.PutUint16(b, uint16(a>>7<<15|r>>3<<10|g>>3<<5|bl>>3))
	case FormatA4R4G4B4:
		binary.LittleEndian.PutUint16(b, uint16(a>>4<<12|r>>4<<8|g>>4<<4|bl>>4))
	case FormatA8L8:
		b[0] = byte(luminance(r, g, bl))
		b[1] = byte(a)
	case FormatL8:
		b[0] = byte(luminance(r, g, bl))
	case FormatA8:
		b[0] = byte(a)
	}
}

// expand widens an n-bit channel to 8 bits by bit replication.
func expand(v uint32, bits uint) uint32 {
	v &= 1<<bits - 1
	return (v<<(8-bits) | v>>(2*bits-8)) & 0xff
}

// luminance returns the Rec. 601 luma of an 8-bit RGB triple.
func luminance(r, g, b uint32) uint32 {
	return (r*299 + g*587 + b*114 + 500) / 1000
}
