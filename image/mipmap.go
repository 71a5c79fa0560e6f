package image

import (
	"errors"
	"fmt"
	"math/bits"
)

// Common errors for texture operations.
var (
	// ErrInvalidDimensions is returned when width or height is non-positive.
	ErrInvalidDimensions = errors.New("image: invalid dimensions")

	// ErrInvalidFormat is returned when the format is not recognized.
	ErrInvalidFormat = errors.New("image: invalid format")

	// ErrInvalidPitch is returned when pitch is less than minimum required.
	ErrInvalidPitch = errors.New("image: pitch too small for width")

	// ErrDataTooSmall is returned when provided data is smaller than required.
	ErrDataTooSmall = errors.New("image: data buffer too small")
)

// MipLevels returns the number of levels of a full mip chain for the given
// dimensions: each level halves both dimensions until the largest reaches 1.
func MipLevels(width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	return bits.Len(uint(max(width, height)))
}

// GenerateMipmaps builds a linear mip chain from the source texels.
//
// Level 0 is a tightly packed copy of the source; each following level is
// half the size of the previous one (clamped to 1) and is computed with a
// 2x2 box filter. The levels are stored back to back in the returned
// buffer, and offsets[i] is the byte offset of level i within it.
//
// pitch is the byte distance between source rows and must be at least
// format.RowBytes(width).
func GenerateMipmaps(pixels []byte, format Format, width, height, pitch int) (linear []byte, offsets []uint32, err error) {
	if width <= 0 || height <= 0 {
		return nil, nil, ErrInvalidDimensions
	}
	if !format.IsValid() {
		return nil, nil, ErrInvalidFormat
	}
	rowBytes := format.RowBytes(width)
	if pitch < rowBytes {
		return nil, nil, fmt.Errorf("%w: pitch %d, need %d", ErrInvalidPitch, pitch, rowBytes)
	}
	if need := pitch*(height-1) + rowBytes; len(pixels) < need {
		return nil, nil, fmt.Errorf("%w: have %d bytes, need %d", ErrDataTooSmall, len(pixels), need)
	}

	levels := MipLevels(width, height)
	total := 0
	for i := range levels {
		total += format.ImageBytes(max(1, width>>i), max(1, height>>i))
	}
	linear = make([]byte, total)
	offsets = make([]uint32, levels)

	// Level 0 is the source with its pitch removed
	for y := range height {
		copy(linear[y*rowBytes:(y+1)*rowBytes], pixels[y*pitch:])
	}

	off := format.ImageBytes(width, height)
	srcOff := 0
	srcW, srcH := width, height
	for i := 1; i < levels; i++ {
		dstW, dstH := max(1, srcW/2), max(1, srcH/2)
		offsets[i] = uint32(off)
		downsample(linear[off:], linear[srcOff:], format, srcW, srcH, dstW, dstH)

		srcOff = off
		off += format.ImageBytes(dstW, dstH)
		srcW, srcH = dstW, dstH
	}

	return linear, offsets, nil
}

// downsample writes a dstW x dstH box-filtered copy of src into dst.
// Both images are tightly packed.
func downsample(dst, src []byte, format Format, srcW, srcH, dstW, dstH int) {
	bpp := format.BytesPerPixel()
	texel := func(x, y int) uint32 {
		x = min(x, srcW-1)
		y = min(y, srcH-1)
		return format.Load(src[(y*srcW+x)*bpp:])
	}

	for dy := range dstH {
		for dx := range dstW {
			sx, sy := dx*2, dy*2

			// Sample 2x2 region (handle odd dimensions)
			c0 := texel(sx, sy)
			c1 := texel(sx+1, sy)
			c2 := texel(sx, sy+1)
			c3 := texel(sx+1, sy+1)

			var out uint32
			for shift := uint32(0); shift < 32; shift += 8 {
				sum := c0>>shift&0xff + c1>>shift&0xff + c2>>shift&0xff + c3>>shift&0xff
				out |= (sum / 4) << shift
			}
			format.Store(dst[(dy*dstW+dx)*bpp:], out)
		}
	}
}
