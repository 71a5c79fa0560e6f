// Package binning assigns the primitives of a draw call to the screen tiles
// they overlap and produces the tile and primitive buffers consumed by the
// rasterizer.
//
// Screen space has its origin at the bottom-left corner with y growing
// upward; row 0 of the color buffer is the bottom row of the image.
package binning

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/tilereplay/internal/abi"
	"github.com/gogpu/tilereplay/trace"
)

// MaxCoord bounds screen coordinates in pixels. Primitives reaching beyond
// it are dropped, which keeps edge coefficients within int32.
const MaxCoord = 1 << 14

// Result is the output of Bin.
type Result struct {
	// Tiles is the number of non-empty tiles.
	Tiles int

	// TileBuf holds Tiles headers followed by the primitive id list.
	TileBuf []byte

	// PrimBuf holds the primitive records, abi.PrimStride bytes each.
	PrimBuf []byte
}

type vertex struct {
	x, y   float64 // snapped screen position in pixels
	fx, fy int64   // same in subpixels
	z      float64
	color  [4]float64 // r, g, b, a
	u, v   float64
}

type bbox struct {
	x0, y0, x1, y1 int // inclusive pixel bounds
}

// Bin rasterizes the setup of every primitive and distributes them over a
// grid of (1 << tileLogSize)-pixel tiles covering width x height pixels.
//
// Primitives with a vertex at or behind the eye (w <= 0), degenerate
// primitives and primitives outside the target are dropped. Clockwise
// primitives are reoriented rather than culled.
func Bin(vertices []trace.Vertex, prims []trace.Primitive, width, height int, near, far float32, tileLogSize int) Result {
	if width <= 0 || height <= 0 {
		panic("binning: invalid target size")
	}
	if tileLogSize < 0 || tileLogSize > 15 {
		panic("binning: invalid tile size")
	}

	tileSize := 1 << tileLogSize
	tilesX := (width + tileSize - 1) >> tileLogSize
	tilesY := (height + tileSize - 1) >> tileLogSize
	lists := make([][]uint32, tilesX*tilesY)

	var primBuf []byte
	var pid uint32
	for _, p := range prims {
		var v [3]vertex
		ok := true
		for i, idx := range p {
			v[i], ok = project(&vertices[idx], width, height, near, far)
			if !ok {
				break
			}
		}
		if !ok {
			continue
		}

		prim, box, ok := setup(v, width, height)
		if !ok {
			continue
		}

		added := false
		for ty := box.y0 >> tileLogSize; ty <= box.y1>>tileLogSize; ty++ {
			for tx := box.x0 >> tileLogSize; tx <= box.x1>>tileLogSize; tx++ {
				if !overlaps(&prim, tx<<tileLogSize, ty<<tileLogSize, tileSize) {
					continue
				}
				t := ty*tilesX + tx
				lists[t] = append(lists[t], pid)
				added = true
			}
		}
		if added {
			primBuf = abi.AppendPrim(primBuf, &prim)
			pid++
		}
	}

	var res Result
	var numPids int
	for _, l := range lists {
		if len(l) > 0 {
			res.Tiles++
			numPids += len(l)
		}
	}
	if res.Tiles == 0 {
		return Result{}
	}

	res.TileBuf = make([]byte, 0, res.Tiles*abi.TileHeaderSize+numPids*4)
	var offset uint32
	for t, l := range lists {
		if len(l) == 0 {
			continue
		}
		res.TileBuf = abi.AppendTileHeader(res.TileBuf, abi.TileHeader{
			X:          uint16((t % tilesX) << tileLogSize),
			Y:          uint16((t / tilesX) << tileLogSize),
			PidsOffset: offset,
			PidsCount:  uint32(len(l)),
			LogSize:    uint32(tileLogSize),
		})
		offset += uint32(len(l))
	}
	for _, l := range lists {
		for _, id := range l {
			res.TileBuf = binary.LittleEndian.AppendUint32(res.TileBuf, id)
		}
	}
	res.PrimBuf = primBuf
	return res
}

// project maps a clip-space vertex to snapped screen space.
func project(in *trace.Vertex, width, height int, near, far float32) (vertex, bool) {
	w := float64(in.Pos[3])
	if !(w > 0) {
		return vertex{}, false
	}
	nx, ny, nz := float64(in.Pos[0])/w, float64(in.Pos[1])/w, float64(in.Pos[2])/w
	sx := (nx + 1) * 0.5 * float64(width)
	sy := (ny + 1) * 0.5 * float64(height)
	if math.IsNaN(sx) || math.IsNaN(sy) || math.Abs(sx) > MaxCoord || math.Abs(sy) > MaxCoord {
		return vertex{}, false
	}

	var out vertex
	out.fx = int64(math.Round(sx * (1 << abi.SubpixelBits)))
	out.fy = int64(math.Round(sy * (1 << abi.SubpixelBits)))
	out.x = float64(out.fx) / (1 << abi.SubpixelBits)
	out.y = float64(out.fy) / (1 << abi.SubpixelBits)
	out.z = float64(near) + float64(far-near)*(nz+1)*0.5

	c := in.Color
	out.color = [4]float64{
		float64(c>>16&0xff) / 255,
		float64(c>>8&0xff) / 255,
		float64(c&0xff) / 255,
		float64(c>>24) / 255,
	}
	out.u, out.v = float64(in.UV[0]), float64(in.UV[1])
	return out, true
}

// setup computes edge equations and attribute planes for a triangle and
// its pixel bounding box clipped to the target.
func setup(v [3]vertex, width, height int) (abi.Prim, bbox, bool) {
	area := (v[1].fx-v[0].fx)*(v[2].fy-v[0].fy) - (v[2].fx-v[0].fx)*(v[1].fy-v[0].fy)
	if area == 0 {
		return abi.Prim{}, bbox{}, false
	}
	if area < 0 {
		v[1], v[2] = v[2], v[1]
	}

	minX := min(v[0].x, v[1].x, v[2].x)
	maxX := max(v[0].x, v[1].x, v[2].x)
	minY := min(v[0].y, v[1].y, v[2].y)
	maxY := max(v[0].y, v[1].y, v[2].y)
	box := bbox{
		x0: max(0, int(math.Floor(minX))),
		y0: max(0, int(math.Floor(minY))),
		x1: min(width-1, int(math.Ceil(maxX))-1),
		y1: min(height-1, int(math.Ceil(maxY))-1),
	}
	if box.x0 > box.x1 || box.y0 > box.y1 {
		return abi.Prim{}, bbox{}, false
	}

	var p abi.Prim
	for i := range 3 {
		a, b := &v[i], &v[(i+1)%3]
		e := abi.Edge{
			A: int32(a.fy - b.fy),
			B: int32(b.fx - a.fx),
			C: a.fx*b.fy - b.fx*a.fy,
		}
		// Top-left rule: pixels exactly on other edges belong to the neighbor.
		if !(e.A > 0 || (e.A == 0 && e.B < 0)) {
			e.C--
		}
		p.Edges[i] = e
	}

	plane := func(a0, a1, a2 float64) abi.Plane {
		x0, y0 := v[0].x, v[0].y
		dx1, dy1 := v[1].x-x0, v[1].y-y0
		dx2, dy2 := v[2].x-x0, v[2].y-y0
		det := dx1*dy2 - dx2*dy1
		da1, da2 := a1-a0, a2-a0
		pa := (da1*dy2 - da2*dy1) / det
		pb := (dx1*da2 - dx2*da1) / det
		return abi.Plane{A: float32(pa), B: float32(pb), C: float32(a0 - pa*x0 - pb*y0)}
	}
	p.Z = plane(v[0].z, v[1].z, v[2].z)
	p.R = plane(v[0].color[0], v[1].color[0], v[2].color[0])
	p.G = plane(v[0].color[1], v[1].color[1], v[2].color[1])
	p.B = plane(v[0].color[2], v[1].color[2], v[2].color[2])
	p.A = plane(v[0].color[3], v[1].color[3], v[2].color[3])
	p.U = plane(v[0].u, v[1].u, v[2].u)
	p.V = plane(v[0].v, v[1].v, v[2].v)
	return p, box, true
}

// overlaps reports whether any pixel centre of the tile at (x, y) may lie
// inside the primitive. Each edge is tested at the tile pixel where it is
// largest.
func overlaps(p *abi.Prim, x, y, size int) bool {
	for _, e := range p.Edges {
		cx, cy := x, y
		if e.A > 0 {
			cx += size - 1
		}
		if e.B > 0 {
			cy += size - 1
		}
		if e.Eval(cx, cy) < 0 {
			return false
		}
	}
	return true
}
