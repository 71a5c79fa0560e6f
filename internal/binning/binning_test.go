package binning

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/gogpu/tilereplay/internal/abi"
	"github.com/gogpu/tilereplay/trace"
)

func ndc(x, y float32) trace.Vertex {
	return trace.Vertex{Pos: [4]float32{x, y, 0, 1}, Color: 0xffffffff}
}

// quad covers the whole target with two triangles sharing a diagonal.
var quad = []trace.Vertex{ndc(-1, -1), ndc(1, -1), ndc(1, 1), ndc(-1, 1)}

func decodePrims(t *testing.T, buf []byte) []abi.Prim {
	t.Helper()
	if len(buf)%abi.PrimStride != 0 {
		t.Fatalf("primitive buffer size %d is not a multiple of %d", len(buf), abi.PrimStride)
	}
	var prims []abi.Prim
	for off := 0; off < len(buf); off += abi.PrimStride {
		p, err := abi.DecodePrim(buf[off:])
		if err != nil {
			t.Fatal(err)
		}
		prims = append(prims, p)
	}
	return prims
}

func inside(p *abi.Prim, x, y int) bool {
	for _, e := range p.Edges {
		if e.Eval(x, y) < 0 {
			return false
		}
	}
	return true
}

func TestBinSingleTile(t *testing.T) {
	verts := []trace.Vertex{ndc(-1, -1), ndc(0, -1), ndc(-1, 0)}
	res := Bin(verts, []trace.Primitive{{0, 1, 2}}, 64, 64, 0, 1, 5)

	if res.Tiles != 1 {
		t.Fatalf("Tiles = %d, want 1", res.Tiles)
	}
	if len(res.PrimBuf) != abi.PrimStride {
		t.Fatalf("len(PrimBuf) = %d, want %d", len(res.PrimBuf), abi.PrimStride)
	}
	if len(res.TileBuf) != abi.TileHeaderSize+4 {
		t.Fatalf("len(TileBuf) = %d, want %d", len(res.TileBuf), abi.TileHeaderSize+4)
	}

	h, err := abi.DecodeTileHeader(res.TileBuf)
	if err != nil {
		t.Fatal(err)
	}
	want := abi.TileHeader{X: 0, Y: 0, PidsOffset: 0, PidsCount: 1, LogSize: 5}
	if h != want {
		t.Errorf("header = %+v, want %+v", h, want)
	}
	if pid := binary.LittleEndian.Uint32(res.TileBuf[abi.TileHeaderSize:]); pid != 0 {
		t.Errorf("pid = %d, want 0", pid)
	}
}

func TestBinQuadTiles(t *testing.T) {
	res := Bin(quad, []trace.Primitive{{0, 1, 2}, {0, 2, 3}}, 64, 64, 0, 1, 5)
	if res.Tiles != 4 {
		t.Fatalf("Tiles = %d, want 4", res.Tiles)
	}

	// Diagonal tiles carry both triangles, the others one each.
	wantCounts := []uint32{2, 1, 1, 2}
	var offset uint32
	for i, want := range wantCounts {
		h, err := abi.DecodeTileHeader(res.TileBuf[i*abi.TileHeaderSize:])
		if err != nil {
			t.Fatal(err)
		}
		if h.PidsCount != want {
			t.Errorf("tile %d (%d,%d): PidsCount = %d, want %d", i, h.X, h.Y, h.PidsCount, want)
		}
		if h.PidsOffset != offset {
			t.Errorf("tile %d: PidsOffset = %d, want %d", i, h.PidsOffset, offset)
		}
		offset += h.PidsCount
	}
	if got := len(res.TileBuf); got != 4*abi.TileHeaderSize+6*4 {
		t.Errorf("len(TileBuf) = %d, want %d", got, 4*abi.TileHeaderSize+6*4)
	}
}

func TestBinSharedEdgeCoversOnce(t *testing.T) {
	const size = 16
	res := Bin(quad, []trace.Primitive{{0, 1, 2}, {0, 2, 3}}, size, size, 0, 1, 3)
	prims := decodePrims(t, res.PrimBuf)
	if len(prims) != 2 {
		t.Fatalf("got %d prims, want 2", len(prims))
	}
	for y := range size {
		for x := range size {
			n := 0
			for i := range prims {
				if inside(&prims[i], x, y) {
					n++
				}
			}
			if n != 1 {
				t.Fatalf("pixel (%d,%d) covered %d times, want 1", x, y, n)
			}
		}
	}
}

func TestBinWindingInvariant(t *testing.T) {
	ccw := Bin(quad, []trace.Primitive{{0, 1, 2}}, 32, 32, 0, 1, 4)
	cw := Bin(quad, []trace.Primitive{{0, 2, 1}}, 32, 32, 0, 1, 4)
	if ccw.Tiles != cw.Tiles || !bytes.Equal(ccw.TileBuf, cw.TileBuf) || !bytes.Equal(ccw.PrimBuf, cw.PrimBuf) {
		t.Error("clockwise triangle binned differently from its counter-clockwise twin")
	}
}

func TestBinDropped(t *testing.T) {
	behind := []trace.Vertex{ndc(-1, -1), ndc(1, -1), {Pos: [4]float32{0, 1, 0, -1}}}
	tests := []struct {
		name  string
		verts []trace.Vertex
	}{
		{"offscreen", []trace.Vertex{ndc(2, 2), ndc(3, 2), ndc(2, 3)}},
		{"degenerate", []trace.Vertex{ndc(-1, -1), ndc(0, 0), ndc(1, 1)}},
		{"behind eye", behind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Bin(tt.verts, []trace.Primitive{{0, 1, 2}}, 64, 64, 0, 1, 5)
			if res.Tiles != 0 || res.TileBuf != nil || res.PrimBuf != nil {
				t.Errorf("Bin() = %+v, want empty result", res)
			}
		})
	}
}

func TestBinAttributePlanes(t *testing.T) {
	verts := []trace.Vertex{
		{Pos: [4]float32{-1, -1, -1, 1}, Color: 0xff000000},
		{Pos: [4]float32{1, -1, -1, 1}, Color: 0xffff0000},
		{Pos: [4]float32{-1, 1, 1, 1}, Color: 0xff000000},
	}
	res := Bin(verts, []trace.Primitive{{0, 1, 2}}, 100, 100, 0, 1, 5)
	prims := decodePrims(t, res.PrimBuf)

	p := prims[0]
	// Red grows with x, depth grows with y.
	if r := p.R.At(49, 0); r < 0.49 || r > 0.51 {
		t.Errorf("R at x=49 = %v, want about 0.5", r)
	}
	if z := p.Z.At(0, 49); z < 0.49 || z > 0.51 {
		t.Errorf("Z at y=49 = %v, want about 0.5", z)
	}
	if a := p.A.At(10, 10); a < 0.999 || a > 1.001 {
		t.Errorf("A = %v, want 1", a)
	}
}

func BenchmarkBin(b *testing.B) {
	const n = 64
	verts := make([]trace.Vertex, 0, 3*n)
	prims := make([]trace.Primitive, 0, n)
	for i := range n {
		f := float32(i)/n*2 - 1
		verts = append(verts, ndc(f, -1), ndc(1, f), ndc(-f, 1))
		prims = append(prims, trace.Primitive{uint32(3 * i), uint32(3*i + 1), uint32(3*i + 2)})
	}
	for b.Loop() {
		Bin(verts, prims, 256, 256, 0, 1, 5)
	}
}
