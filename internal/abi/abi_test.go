package abi

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gogpu/tilereplay/device"
)

func TestLayoutSizes(t *testing.T) {
	if got := binary.Size(KernelArg{}); got != KernelArgSize {
		t.Errorf("binary.Size(KernelArg) = %d, want %d", got, KernelArgSize)
	}
	if got := len(AppendPrim(nil, &Prim{})); got != PrimStride {
		t.Errorf("encoded Prim = %d bytes, want %d", got, PrimStride)
	}
	if got := len(AppendTileHeader(nil, TileHeader{})); got != TileHeaderSize {
		t.Errorf("encoded TileHeader = %d bytes, want %d", got, TileHeaderSize)
	}
}

func TestPrimEncoding(t *testing.T) {
	p := Prim{
		Edges: [3]Edge{{A: -3, B: 7, C: -1 << 40}, {A: 1, B: 0, C: 12}, {A: 0, B: -9, C: 0}},
		Z:     Plane{A: 0.25, B: -0.5, C: 1},
		R:     Plane{C: 1},
		V:     Plane{A: 1.5},
	}
	got, err := DecodePrim(AppendPrim(nil, &p))
	if err != nil {
		t.Fatalf("DecodePrim() error = %v", err)
	}
	if got != p {
		t.Errorf("DecodePrim() = %+v, want %+v", got, p)
	}

	if _, err := DecodePrim(make([]byte, PrimStride-1)); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("DecodePrim(short) error = %v, want ErrShortBuffer", err)
	}
}

func TestTileHeaderEncoding(t *testing.T) {
	h := TileHeader{X: 32, Y: 96, PidsOffset: 7, PidsCount: 3, LogSize: 5}
	got, err := DecodeTileHeader(AppendTileHeader(nil, h))
	if err != nil {
		t.Fatalf("DecodeTileHeader() error = %v", err)
	}
	if got != h {
		t.Errorf("DecodeTileHeader() = %+v, want %+v", got, h)
	}
}

func TestEdgeEval(t *testing.T) {
	// x >= 2 expressed in subpixel units: x*256 - 2*256 >= 0.
	e := Edge{A: 1, B: 0, C: -2 << SubpixelBits}
	if e.Eval(1, 0) >= 0 {
		t.Error("pixel 1 should be outside x >= 2")
	}
	if e.Eval(2, 5) < 0 {
		t.Error("pixel 2 should be inside x >= 2")
	}
}

func TestKernelArgRecord(t *testing.T) {
	var a KernelArg
	a.Record(device.DCRRasterTileCount, 9)
	a.Record(device.DCROMStencilZFail, device.OMStencilOpIncr)
	a.Record(device.DCRTexMipOff(3), 0x400)
	a.Record(0x10, 1) // outside the graphics units

	if got := a.Raster(device.DCRRasterTileCount); got != 9 {
		t.Errorf("Raster(TileCount) = %d, want 9", got)
	}
	if got := a.OM(device.DCROMStencilZFail); got != device.OMStencilOpIncr {
		t.Errorf("OM(StencilZFail) = %d, want %d", got, device.OMStencilOpIncr)
	}
	if got := a.Tex(device.DCRTexMipOff(3)); got != 0x400 {
		t.Errorf("Tex(MipOff(3)) = %#x, want 0x400", got)
	}
}

func TestKernelArgMarshal(t *testing.T) {
	a := KernelArg{
		LogNumTasks:  6,
		SwTex:        true,
		ColorEnabled: true,
		TexModulate:  true,
		PrimAddr:     0x1_0000_0040,
	}
	a.Record(device.DCROMBlendFunc, 0x00000101)

	b, err := a.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}
	if len(b) != KernelArgSize {
		t.Fatalf("MarshalBinary() = %d bytes, want %d", len(b), KernelArgSize)
	}
	// PrimAddr sits after the flag block at a fixed offset.
	if got := binary.LittleEndian.Uint64(b[16:]); got != a.PrimAddr {
		t.Errorf("PrimAddr at offset 16 = %#x, want %#x", got, a.PrimAddr)
	}

	var got KernelArg
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary() error = %v", err)
	}
	if got != a {
		t.Errorf("UnmarshalBinary() = %+v, want %+v", got, a)
	}
}

func TestLog2Ceil(t *testing.T) {
	tests := []struct {
		in   uint32
		want uint32
	}{
		{0, 0}, {1, 0}, {2, 1}, {3, 2}, {4, 2}, {5, 3}, {64, 6}, {100, 7}, {256, 8},
	}
	for _, tt := range tests {
		if got := Log2Ceil(tt.in); got != tt.want {
			t.Errorf("Log2Ceil(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if got := Log2Ceil(int64(1000)); got != 10 {
		t.Errorf("Log2Ceil(int64(1000)) = %d, want 10", got)
	}
}
