package image

import (
	"errors"
	"testing"
)

func TestMipLevels(t *testing.T) {
	tests := []struct {
		w, h, want int
	}{
		{1, 1, 1},
		{2, 2, 2},
		{64, 64, 7},
		{64, 16, 7},
		{100, 3, 7},
		{0, 4, 0},
	}
	for _, tt := range tests {
		if got := MipLevels(tt.w, tt.h); got != tt.want {
			t.Errorf("MipLevels(%d, %d) = %d, want %d", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestGenerateMipmapsLayout(t *testing.T) {
	const w, h = 8, 4
	pixels := make([]byte, w*h*4)
	linear, offsets, err := GenerateMipmaps(pixels, FormatA8R8G8B8, w, h, w*4)
	if err != nil {
		t.Fatalf("GenerateMipmaps() error = %v", err)
	}

	// 8x4, 4x2, 2x1, 1x1
	wantOffsets := []uint32{0, 128, 160, 168}
	if len(offsets) != len(wantOffsets) {
		t.Fatalf("len(offsets) = %d, want %d", len(offsets), len(wantOffsets))
	}
	for i, want := range wantOffsets {
		if offsets[i] != want {
			t.Errorf("offsets[%d] = %d, want %d", i, offsets[i], want)
		}
	}
	if len(linear) != 172 {
		t.Errorf("len(linear) = %d, want 172", len(linear))
	}
}

func TestGenerateMipmapsBoxFilter(t *testing.T) {
	// 2x2 checker of black and white averages to mid gray.
	pixels := make([]byte, 16)
	FormatA8R8G8B8.Store(pixels[0:], 0xff000000)
	FormatA8R8G8B8.Store(pixels[4:], 0xffffffff)
	FormatA8R8G8B8.Store(pixels[8:], 0xffffffff)
	FormatA8R8G8B8.Store(pixels[12:], 0xff000000)

	linear, offsets, err := GenerateMipmaps(pixels, FormatA8R8G8B8, 2, 2, 8)
	if err != nil {
		t.Fatalf("GenerateMipmaps() error = %v", err)
	}
	if got := FormatA8R8G8B8.Load(linear[offsets[1]:]); got != 0xff7f7f7f {
		t.Errorf("level 1 = %#08x, want 0xff7f7f7f", got)
	}
}

func TestGenerateMipmapsRemovesPitch(t *testing.T) {
	// 2x1 L8 image with 4 bytes of row padding.
	pixels := []byte{10, 20, 0, 0}
	linear, _, err := GenerateMipmaps(pixels, FormatL8, 2, 1, 4)
	if err != nil {
		t.Fatalf("GenerateMipmaps() error = %v", err)
	}
	if linear[0] != 10 || linear[1] != 20 {
		t.Errorf("level 0 = %v, want [10 20]", linear[:2])
	}
	if linear[2] != 15 {
		t.Errorf("level 1 = %d, want 15", linear[2])
	}
}

func TestGenerateMipmapsErrors(t *testing.T) {
	tests := []struct {
		name   string
		pixels []byte
		format Format
		w, h   int
		pitch  int
		want   error
	}{
		{"zero width", make([]byte, 4), FormatA8R8G8B8, 0, 1, 4, ErrInvalidDimensions},
		{"bad format", make([]byte, 4), Format(99), 1, 1, 4, ErrInvalidFormat},
		{"small pitch", make([]byte, 16), FormatA8R8G8B8, 2, 2, 4, ErrInvalidPitch},
		{"short data", make([]byte, 12), FormatA8R8G8B8, 2, 2, 8, ErrDataTooSmall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := GenerateMipmaps(tt.pixels, tt.format, tt.w, tt.h, tt.pitch)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func BenchmarkGenerateMipmaps(b *testing.B) {
	const size = 256
	pixels := make([]byte, size*size*4)
	for i := range pixels {
		pixels[i] = byte(i)
	}
	for b.Loop() {
		_, _, _ = GenerateMipmaps(pixels, FormatA8R8G8B8, size, size, size*4)
	}
}
