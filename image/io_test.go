package image

import (
	"errors"
	"path/filepath"
	"testing"
)

// gradient returns a w x h A8R8G8B8 image with distinct rows.
func gradient(w, h int) []byte {
	pixels := make([]byte, w*h*4)
	for y := range h {
		for x := range w {
			c := 0xff000000 | uint32(y*40)<<16 | uint32(x*30)<<8 | 0x10
			FormatA8R8G8B8.Store(pixels[(y*w+x)*4:], c)
		}
	}
	return pixels
}

func TestSaveLoadRoundTrip(t *testing.T) {
	const w, h = 5, 3
	src := gradient(w, h)

	for _, ext := range []string{".png", ".bmp", ".tiff"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out"+ext)
			if err := SaveImage(path, FormatA8R8G8B8, src, w, h, w*4); err != nil {
				t.Fatalf("SaveImage() error = %v", err)
			}
			got, gw, gh, err := LoadImage(path)
			if err != nil {
				t.Fatalf("LoadImage() error = %v", err)
			}
			if gw != w || gh != h {
				t.Fatalf("size = %dx%d, want %dx%d", gw, gh, w, h)
			}
			for i := range src {
				if got[i] != src[i] {
					t.Fatalf("byte %d = %#x, want %#x", i, got[i], src[i])
				}
			}
		})
	}
}

func TestSaveImageNegativePitchFlips(t *testing.T) {
	const w, h = 2, 3
	src := gradient(w, h)
	img, err := ToNRGBA(FormatA8R8G8B8, src, w, h, -w*4)
	if err != nil {
		t.Fatalf("ToNRGBA() error = %v", err)
	}

	// Top row of the image is the last row in memory.
	last := FormatA8R8G8B8.Load(src[(h-1)*w*4:])
	r, g, b := img.Pix[0], img.Pix[1], img.Pix[2]
	got := 0xff000000 | uint32(r)<<16 | uint32(g)<<8 | uint32(b)
	if got != last {
		t.Errorf("top-left = %#08x, want %#08x", got, last)
	}
}

func TestSaveImageUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jpg")
	err := SaveImage(path, FormatA8R8G8B8, make([]byte, 4), 1, 1, 4)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("SaveImage(.jpg) error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestCompareImages(t *testing.T) {
	const w, h = 4, 4
	dir := t.TempDir()
	src := gradient(w, h)

	a := filepath.Join(dir, "a.png")
	if err := SaveImage(a, FormatA8R8G8B8, src, w, h, w*4); err != nil {
		t.Fatal(err)
	}

	t.Run("self", func(t *testing.T) {
		n, err := CompareImages(a, a, FormatA8R8G8B8)
		if err != nil {
			t.Fatalf("CompareImages() error = %v", err)
		}
		if n != 0 {
			t.Errorf("CompareImages(self) = %d, want 0", n)
		}
	})

	t.Run("black", func(t *testing.T) {
		black := make([]byte, w*h*4)
		for i := 3; i < len(black); i += 4 {
			black[i] = 0xff
		}
		b := filepath.Join(dir, "black.bmp")
		if err := SaveImage(b, FormatA8R8G8B8, black, w, h, w*4); err != nil {
			t.Fatal(err)
		}
		n, err := CompareImages(a, b, FormatA8R8G8B8)
		if err != nil {
			t.Fatalf("CompareImages() error = %v", err)
		}
		if n != w*h {
			t.Errorf("CompareImages(black) = %d, want %d", n, w*h)
		}
	})

	t.Run("size mismatch", func(t *testing.T) {
		c := filepath.Join(dir, "small.png")
		if err := SaveImage(c, FormatA8R8G8B8, src[:16], 2, 2, 8); err != nil {
			t.Fatal(err)
		}
		if _, err := CompareImages(a, c, FormatA8R8G8B8); !errors.Is(err, ErrSizeMismatch) {
			t.Errorf("error = %v, want ErrSizeMismatch", err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		if _, err := CompareImages(a, filepath.Join(dir, "none.png"), FormatA8R8G8B8); err == nil {
			t.Error("expected error for missing reference")
		}
	})
}
