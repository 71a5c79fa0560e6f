package image

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// I/O errors.
var (
	// ErrUnsupportedFormat is returned when the file format is not supported.
	ErrUnsupportedFormat = errors.New("image: unsupported file format")

	// ErrSizeMismatch is returned when compared images differ in size.
	ErrSizeMismatch = errors.New("image: size mismatch")
)

// fileKind identifies an image container by file extension.
type fileKind int

const (
	kindUnknown fileKind = iota
	kindPNG
	kindBMP
	kindTIFF
)

func kindOf(path string) fileKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return kindPNG
	case ".bmp":
		return kindBMP
	case ".tif", ".tiff":
		return kindTIFF
	default:
		return kindUnknown
	}
}

// SaveImage writes pixels of the given format to path. The container is
// chosen from the extension: .png, .bmp, .tif or .tiff.
//
// pitch is the byte distance between rows. A negative pitch means the rows
// are stored bottom-up: the first row in memory is the last row of the image.
func SaveImage(path string, format Format, pixels []byte, width, height, pitch int) error {
	img, err := ToNRGBA(format, pixels, width, height, pitch)
	if err != nil {
		return err
	}

	kind := kindOf(path)
	if kind == kindUnknown {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("image: create file: %w", err)
	}
	if err := encode(f, kind, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func encode(w io.Writer, kind fileKind, img image.Image) error {
	var err error
	switch kind {
	case kindPNG:
		err = png.Encode(w, img)
	case kindBMP:
		err = bmp.Encode(w, img)
	case kindTIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return ErrUnsupportedFormat
	}
	if err != nil {
		return fmt.Errorf("image: encode: %w", err)
	}
	return nil
}

// LoadImage reads an image file and returns its pixels as tightly packed,
// top-down A8R8G8B8 texels.
func LoadImage(path string) (pixels []byte, width, height int, err error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("image: open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var img image.Image
	switch kindOf(path) {
	case kindPNG:
		img, err = png.Decode(f)
	case kindBMP:
		img, err = bmp.Decode(f)
	case kindTIFF:
		img, err = tiff.Decode(f)
	default:
		// Try to detect from content
		img, _, err = image.Decode(f)
	}
	if err != nil {
		return nil, 0, 0, fmt.Errorf("image: decode %s: %w", path, err)
	}

	pixels, width, height = FromStdImage(img)
	return pixels, width, height, nil
}

// CompareImages loads two images and returns the number of pixels that
// differ once both are quantized to format.
func CompareImages(path, reference string, format Format) (int, error) {
	if !format.IsValid() {
		return 0, ErrInvalidFormat
	}
	a, aw, ah, err := LoadImage(path)
	if err != nil {
		return 0, err
	}
	b, bw, bh, err := LoadImage(reference)
	if err != nil {
		return 0, err
	}
	if aw != bw || ah != bh {
		return 0, fmt.Errorf("%w: %dx%d vs %dx%d", ErrSizeMismatch, aw, ah, bw, bh)
	}

	var ta, tb [4]byte
	errs := 0
	for i := 0; i < len(a); i += 4 {
		format.Store(ta[:], FormatA8R8G8B8.Load(a[i:]))
		format.Store(tb[:], FormatA8R8G8B8.Load(b[i:]))
		if format.Load(ta[:]) != format.Load(tb[:]) {
			errs++
		}
	}
	return errs, nil
}

// ToNRGBA converts device texels to a standard library image.
// See SaveImage for the meaning of a negative pitch.
func ToNRGBA(format Format, pixels []byte, width, height, pitch int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidDimensions
	}
	if !format.IsValid() {
		return nil, ErrInvalidFormat
	}
	absPitch := pitch
	if absPitch < 0 {
		absPitch = -absPitch
	}
	rowBytes := format.RowBytes(width)
	if absPitch < rowBytes {
		return nil, fmt.Errorf("%w: pitch %d, need %d", ErrInvalidPitch, pitch, rowBytes)
	}
	if need := absPitch*(height-1) + rowBytes; len(pixels) < need {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrDataTooSmall, len(pixels), need)
	}

	bpp := format.BytesPerPixel()
	nrgba := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		srcY := y
		if pitch < 0 {
			srcY = height - 1 - y
		}
		row := pixels[srcY*absPitch:]
		dst := nrgba.Pix[y*nrgba.Stride:]
		for x := range width {
			c := format.Load(row[x*bpp:])
			dst[x*4] = byte(c >> 16)
			dst[x*4+1] = byte(c >> 8)
			dst[x*4+2] = byte(c)
			dst[x*4+3] = byte(c >> 24)
		}
	}
	return nrgba, nil
}

// FromStdImage converts a standard library image to tightly packed,
// top-down A8R8G8B8 texels.
func FromStdImage(img image.Image) (pixels []byte, width, height int) {
	bounds := img.Bounds()
	width, height = bounds.Dx(), bounds.Dy()
	pixels = make([]byte, width*height*4)

	// Fast path for NRGBA images
	if nrgba, ok := img.(*image.NRGBA); ok {
		for y := range height {
			src := nrgba.Pix[y*nrgba.Stride:]
			for x := range width {
				c := uint32(src[x*4+3])<<24 | uint32(src[x*4])<<16 | uint32(src[x*4+1])<<8 | uint32(src[x*4+2])
				FormatA8R8G8B8.Store(pixels[(y*width+x)*4:], c)
			}
		}
		return pixels, width, height
	}

	// Generic slow path for any image type
	for y := range height {
		for x := range width {
			r, g, b, a := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// RGBA() is premultiplied 16-bit; undo premultiplication for ARGB storage
			if a != 0 && a != 0xffff {
				r = r * 0xffff / a
				g = g * 0xffff / a
				b = b * 0xffff / a
			}
			c := (a>>8)<<24 | (r>>8)<<16 | (g>>8)<<8 | b>>8
			FormatA8R8G8B8.Store(pixels[(y*width+x)*4:], c)
		}
	}
	return pixels, width, height
}
