// Package abi defines the memory layouts shared by the host and the device:
// the tile and primitive buffers produced by binning and the kernel
// argument block. All layouts are little-endian with fixed sizes.
package abi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

// ErrShortBuffer is returned when decoding from a buffer smaller than the layout.
var ErrShortBuffer = errors.New("abi: buffer too short")

// SubpixelBits is the fractional precision of edge equations.
const SubpixelBits = 8

// Edge is a fixed-point edge equation e(x, y) = A*x + B*y + C evaluated at
// pixel centres expressed with SubpixelBits of fraction. A pixel is inside
// an edge when e >= 0.
type Edge struct {
	A, B int32
	C    int64
}

// Eval evaluates the edge at pixel (x, y).
func (e Edge) Eval(x, y int) int64 {
	const half = 1 << (SubpixelBits - 1)
	fx := int64(x)<<SubpixelBits + half
	fy := int64(y)<<SubpixelBits + half
	return int64(e.A)*fx + int64(e.B)*fy + e.C
}

// Plane is an attribute plane a(x, y) = A*x + B*y + C over pixel-centre
// coordinates in floating point.
type Plane struct {
	A, B, C float32
}

// At evaluates the plane at pixel (x, y).
func (p Plane) At(x, y int) float32 {
	return p.A*(float32(x)+0.5) + p.B*(float32(y)+0.5) + p.C
}

// Prim is one rasterizer primitive record.
type Prim struct {
	Edges [3]Edge

	// Z is window depth in [0, 1].
	Z Plane

	// R, G, B, A are color channels in [0, 1].
	R, G, B, A Plane

	// U, V are normalized texture coordinates.
	U, V Plane
}

// PrimStride is the size of an encoded Prim in bytes.
const PrimStride = 3*16 + 7*12

// TileHeader describes one non-empty tile of the tile buffer.
type TileHeader struct {
	// X and Y are the tile origin in pixels.
	X, Y uint16

	// PidsOffset is the index of the tile's first entry in the primitive id list.
	PidsOffset uint32

	// PidsCount is the number of primitive ids covering the tile.
	PidsCount uint32

	// LogSize is log2 of the tile edge length in pixels.
	LogSize uint32
}

// TileHeaderSize is the size of an encoded TileHeader in bytes.
const TileHeaderSize = 16

// AppendPrim appends the encoding of p to b.
func AppendPrim(b []byte, p *Prim) []byte {
	for _, e := range p.Edges {
		b = binary.LittleEndian.AppendUint32(b, uint32(e.A))
		b = binary.LittleEndian.AppendUint32(b, uint32(e.B))
		b = binary.LittleEndian.AppendUint64(b, uint64(e.C))
	}
	for _, pl := range [...]Plane{p.Z, p.R, p.G, p.B, p.A, p.U, p.V} {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(pl.A))
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(pl.B))
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(pl.C))
	}
	return b
}

// DecodePrim decodes the primitive record at the start of b.
func DecodePrim(b []byte) (Prim, error) {
	var p Prim
	if len(b) < PrimStride {
		return p, fmt.Errorf("%w: prim needs %d bytes, have %d", ErrShortBuffer, PrimStride, len(b))
	}
	off := 0
	for i := range p.Edges {
		p.Edges[i].A = int32(binary.LittleEndian.Uint32(b[off:]))
		p.Edges[i].B = int32(binary.LittleEndian.Uint32(b[off+4:]))
		p.Edges[i].C = int64(binary.LittleEndian.Uint64(b[off+8:]))
		off += 16
	}
	for _, pl := range []*Plane{&p.Z, &p.R, &p.G, &p.B, &p.A, &p.U, &p.V} {
		pl.A = math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
		pl.B = math.Float32frombits(binary.LittleEndian.Uint32(b[off+4:]))
		pl.C = math.Float32frombits(binary.LittleEndian.Uint32(b[off+8:]))
		off += 12
	}
	return p, nil
}

// AppendTileHeader appends the encoding of h to b.
func AppendTileHeader(b []byte, h TileHeader) []byte {
	b = binary.LittleEndian.AppendUint16(b, h.X)
	b = binary.LittleEndian.AppendUint16(b, h.Y)
	b = binary.LittleEndian.AppendUint32(b, h.PidsOffset)
	b = binary.LittleEndian.AppendUint32(b, h.PidsCount)
	return binary.LittleEndian.AppendUint32(b, h.LogSize)
}

// DecodeTileHeader decodes the tile header at the start of b.
func DecodeTileHeader(b []byte) (TileHeader, error) {
	if len(b) < TileHeaderSize {
		return TileHeader{}, fmt.Errorf("%w: tile header needs %d bytes, have %d", ErrShortBuffer, TileHeaderSize, len(b))
	}
	return TileHeader{
		X:          binary.LittleEndian.Uint16(b[0:]),
		Y:          binary.LittleEndian.Uint16(b[2:]),
		PidsOffset: binary.LittleEndian.Uint32(b[4:]),
		PidsCount:  binary.LittleEndian.Uint32(b[8:]),
		LogSize:    binary.LittleEndian.Uint32(b[12:]),
	}, nil
}

// Log2Ceil returns the smallest n such that 1<<n >= v. Values below 2 return 0.
func Log2Ceil[T constraints.Integer](v T) T {
	var n T
	for T(1)<<n < v {
		n++
	}
	return n
}

// encodeStruct writes v with encoding/binary.
func encodeStruct(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(binary.Size(v))
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("abi: encode: %w", err)
	}
	return buf.Bytes(), nil
}
