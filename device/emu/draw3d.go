package emu

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gogpu/tilereplay/device"
	"github.com/gogpu/tilereplay/internal/abi"
)

// Draw3D is the registry name of the built-in rendering kernel.
const Draw3D = "draw3d"

func init() {
	RegisterKernel(Draw3D, draw3d)
}

// Counter costs of the draw3d kernel, in instructions. Cycles are derived
// from instructions with a fixed stall factor so that counters depend only
// on the work done, not on host scheduling.
const (
	costTask     = 32
	costTile     = 16
	costPrim     = 12
	costPixel    = 6
	costFragment = 20
	costTexel    = 10
	costBlend    = 8
	stallFactor  = 2
)

// regs resolves unit registers from the hardware register file or from the
// shadow copies in the argument block.
type regs struct {
	l   *Launch
	arg *abi.KernelArg
}

func (r regs) raster(addr uint32) uint32 {
	if r.arg.SwRast {
		return r.arg.Raster(addr)
	}
	return r.l.DCR(addr)
}

func (r regs) om(addr uint32) uint32 {
	if r.arg.SwOM {
		return r.arg.OM(addr)
	}
	return r.l.DCR(addr)
}

func (r regs) tex(addr uint32) uint32 {
	if r.arg.SwTex {
		return r.arg.Tex(addr)
	}
	return r.l.DCR(addr)
}

// drawJob is the per-launch state shared by all tasks.
type drawJob struct {
	arg      abi.KernelArg
	tiles    []byte // headers
	pids     []byte
	prims    []byte
	stride   uint32
	scissor  [4]int // left, bottom, right, top (exclusive)
	om       *outputMerger
	sampler  *sampler
	numTasks int
}

// draw3d renders the tile buffer described by the raster registers.
// Tile i is processed by task i % numTasks; within a tile, primitives are
// drawn in primitive id order.
func draw3d(ctx context.Context, l *Launch) error {
	job, err := newDrawJob(l)
	if err != nil {
		return err
	}
	return l.Run(ctx, job.numTasks, func(ctx context.Context, task, core int) error {
		var instrs uint64 = costTask
		count := len(job.tiles) / abi.TileHeaderSize
		for t := task; t < count; t += job.numTasks {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := job.drawTile(t)
			if err != nil {
				return err
			}
			instrs += n
		}
		l.Retire(core, instrs, instrs*stallFactor)
		return nil
	})
}

func newDrawJob(l *Launch) (*drawJob, error) {
	job := &drawJob{}
	if err := job.arg.UnmarshalBinary(l.Args); err != nil {
		return nil, err
	}
	r := regs{l: l, arg: &job.arg}
	job.numTasks = 1 << job.arg.LogNumTasks

	tileCount := uint64(r.raster(device.DCRRasterTileCount))
	tbuf := uint64(r.raster(device.DCRRasterTBufAddr)) * device.BlockSize
	headers, err := l.Mem(tbuf, tileCount*abi.TileHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("tile buffer: %w", err)
	}
	job.tiles = headers

	var numPids uint64
	for off := 0; off < len(headers); off += abi.TileHeaderSize {
		h, _ := abi.DecodeTileHeader(headers[off:])
		numPids = max(numPids, uint64(h.PidsOffset)+uint64(h.PidsCount))
	}
	if job.pids, err = l.Mem(tbuf+tileCount*abi.TileHeaderSize, numPids*4); err != nil {
		return nil, fmt.Errorf("primitive ids: %w", err)
	}

	job.stride = r.raster(device.DCRRasterPBufStride)
	if job.stride < abi.PrimStride {
		return nil, fmt.Errorf("primitive stride %d below %d", job.stride, abi.PrimStride)
	}
	pbuf := uint64(r.raster(device.DCRRasterPBufAddr)) * device.BlockSize
	if job.arg.SwRast {
		pbuf = job.arg.PrimAddr
	}
	var maxPid uint64
	for off := 0; off+4 <= len(job.pids); off += 4 {
		maxPid = max(maxPid, uint64(binary.LittleEndian.Uint32(job.pids[off:]))+1)
	}
	if job.prims, err = l.Mem(pbuf, maxPid*uint64(job.stride)); err != nil {
		return nil, fmt.Errorf("primitive buffer: %w", err)
	}

	sx, sy := r.raster(device.DCRRasterScissorX), r.raster(device.DCRRasterScissorY)
	job.scissor = [4]int{int(sx & 0xffff), int(sy & 0xffff), int(sx >> 16), int(sy >> 16)}

	if job.om, err = newOutputMerger(l, r, job.scissor[2], job.scissor[3]); err != nil {
		return nil, err
	}
	if job.arg.TexEnabled {
		if job.sampler, err = newSampler(l, r); err != nil {
			return nil, err
		}
	}
	return job, nil
}

// drawTile rasterizes every primitive of tile t and returns the retired
// instruction count.
func (job *drawJob) drawTile(t int) (uint64, error) {
	h, err := abi.DecodeTileHeader(job.tiles[t*abi.TileHeaderSize:])
	if err != nil {
		return 0, err
	}
	size := 1 << h.LogSize
	x0, y0 := max(int(h.X), job.scissor[0]), max(int(h.Y), job.scissor[1])
	x1, y1 := min(int(h.X)+size, job.scissor[2]), min(int(h.Y)+size, job.scissor[3])

	instrs := uint64(costTile)
	for i := range h.PidsCount {
		pid := binary.LittleEndian.Uint32(job.pids[(h.PidsOffset+i)*4:])
		prim, err := abi.DecodePrim(job.prims[uint64(pid)*uint64(job.stride):])
		if err != nil {
			return instrs, err
		}
		instrs += costPrim
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				instrs += costPixel
				if !covers(&prim, x, y) {
					continue
				}
				instrs += job.shade(&prim, x, y)
			}
		}
	}
	return instrs, nil
}

func covers(p *abi.Prim, x, y int) bool {
	for _, e := range p.Edges {
		if e.Eval(x, y) < 0 {
			return false
		}
	}
	return true
}

// shade computes the fragment color and hands it to the output merger.
func (job *drawJob) shade(p *abi.Prim, x, y int) uint64 {
	instrs := uint64(costFragment)

	vertex := rgba{
		r: clamp01(p.R.At(x, y)),
		g: clamp01(p.G.At(x, y)),
		b: clamp01(p.B.At(x, y)),
		a: clamp01(p.A.At(x, y)),
	}

	var c rgba
	switch {
	case job.arg.TexEnabled:
		instrs += costTexel
		c = job.sampler.sample(p, x, y)
		if job.arg.TexModulate {
			c = c.mul(vertex)
		}
	case job.arg.ColorEnabled:
		c = vertex
	default:
		c = rgba{1, 1, 1, 1}
	}

	if job.om.merge(x, y, p.Z.At(x, y), c) {
		instrs += costBlend
	}
	return instrs
}

// rgba is a color with channels in [0, 1].
type rgba struct {
	r, g, b, a float32
}

func (c rgba) mul(o rgba) rgba {
	return rgba{c.r * o.r, c.g * o.g, c.b * o.b, c.a * o.a}
}

func unpack(argb uint32) rgba {
	const inv255 = float32(1.0 / 255.0)
	return rgba{
		r: float32(argb>>16&0xff) * inv255,
		g: float32(argb>>8&0xff) * inv255,
		b: float32(argb&0xff) * inv255,
		a: float32(argb>>24) * inv255,
	}
}

func (c rgba) pack() uint32 {
	q := func(v float32) uint32 { return uint32(clamp01(v)*255 + 0.5) }
	return q(c.a)<<24 | q(c.r)<<16 | q(c.g)<<8 | q(c.b)
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
