package emu

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/gogpu/tilereplay/device"
	"github.com/gogpu/tilereplay/internal/abi"
	"github.com/gogpu/tilereplay/internal/binning"
	"github.com/gogpu/tilereplay/trace"
)

// target is a color and depth buffer pair on a test device.
type target struct {
	d            *Device
	w, h         int
	color, depth device.Buffer
}

func newTarget(t *testing.T, d *Device, w, h int) *target {
	t.Helper()
	tg := &target{d: d, w: w, h: h}
	var err error
	if tg.color, err = d.MemAlloc(uint64(w*h*4), device.MemReadWrite); err != nil {
		t.Fatal(err)
	}
	if tg.depth, err = d.MemAlloc(uint64(w*h*4), device.MemReadWrite); err != nil {
		t.Fatal(err)
	}
	tg.fill(t, tg.depth, depthMax)
	return tg
}

func (tg *target) fill(t *testing.T, buf device.Buffer, v uint32) {
	t.Helper()
	b := make([]byte, tg.w*tg.h*4)
	for off := 0; off < len(b); off += 4 {
		binary.LittleEndian.PutUint32(b[off:], v)
	}
	if err := tg.d.CopyToDev(buf, b, 0); err != nil {
		t.Fatal(err)
	}
}

func (tg *target) read(t *testing.T, buf device.Buffer) []uint32 {
	t.Helper()
	b := make([]byte, tg.w*tg.h*4)
	if err := tg.d.CopyFromDev(b, buf, 0); err != nil {
		t.Fatal(err)
	}
	out := make([]uint32, tg.w*tg.h)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return out
}

func (tg *target) pixel(t *testing.T, x, y int) uint32 {
	t.Helper()
	return tg.read(t, tg.color)[y*tg.w+x]
}

// draw bins the primitives, programs the units and runs draw3d.
// Registers in overrides replace the pass-through defaults.
func (tg *target) draw(t *testing.T, verts []trace.Vertex, prims []trace.Primitive, arg abi.KernelArg, overrides map[uint32]uint32) {
	t.Helper()
	d := tg.d
	res := binning.Bin(verts, prims, tg.w, tg.h, 0, 1, 2)
	if res.Tiles == 0 {
		t.Fatal("nothing binned")
	}

	upload := func(b []byte) device.Buffer {
		buf, err := d.MemAlloc(uint64(len(b)), device.MemRead)
		if err != nil {
			t.Fatal(err)
		}
		if err := d.CopyToDev(buf, b, 0); err != nil {
			t.Fatal(err)
		}
		return buf
	}
	tbuf, pbuf := upload(res.TileBuf), upload(res.PrimBuf)
	block := func(b device.Buffer) uint32 { return uint32(b.Address() / device.BlockSize) }

	values := map[uint32]uint32{
		device.DCRRasterTBufAddr:   block(tbuf),
		device.DCRRasterTileCount:  uint32(res.Tiles),
		device.DCRRasterPBufAddr:   block(pbuf),
		device.DCRRasterPBufStride: abi.PrimStride,
		device.DCRRasterScissorX:   uint32(tg.w) << 16,
		device.DCRRasterScissorY:   uint32(tg.h) << 16,

		device.DCROMCBufAddr:         block(tg.color),
		device.DCROMCBufPitch:        uint32(tg.w * 4),
		device.DCROMCBufWriteMask:    0xf,
		device.DCROMZBufAddr:         block(tg.depth),
		device.DCROMZBufPitch:        uint32(tg.w * 4),
		device.DCROMDepthFunc:        device.OMCompareAlways,
		device.DCROMStencilFunc:      device.OMCompareAlways,
		device.DCROMStencilMask:      0xff,
		device.DCROMStencilWriteMask: 0xff,
		device.DCROMBlendMode:        device.OMBlendModeAdd,
		device.DCROMBlendFunc:        device.OMBlendFuncZero<<24 | device.OMBlendFuncZero<<16 | device.OMBlendFuncOne<<8 | device.OMBlendFuncOne,
	}
	for addr, v := range overrides {
		values[addr] = v
	}
	for addr, v := range values {
		unit, _ := device.UnitOf(addr)
		shadow := unit == device.UnitRaster && arg.SwRast ||
			unit == device.UnitOM && arg.SwOM ||
			unit == device.UnitTex && arg.SwTex
		if shadow {
			arg.Record(addr, v)
			continue
		}
		if err := d.WriteDCR(addr, v); err != nil {
			t.Fatal(err)
		}
	}
	if arg.SwRast {
		arg.PrimAddr = pbuf.Address()
	}

	argBytes, err := arg.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	args := upload(argBytes)
	prog, err := d.UploadProgram(Program(Draw3D))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Start(context.Background(), prog, args); err != nil {
		t.Fatal(err)
	}
	if err := d.ReadyWait(context.Background(), 10*time.Second); err != nil {
		t.Fatalf("ReadyWait() error = %v", err)
	}
	for _, b := range []device.Buffer{tbuf, pbuf, args, prog} {
		if err := d.MemFree(b); err != nil {
			t.Fatal(err)
		}
	}
}

func vtx(x, y, z float32, color uint32) trace.Vertex {
	return trace.Vertex{Pos: [4]float32{x, y, z, 1}, Color: color}
}

// quadAt covers the whole target at NDC depth z.
func quadAt(z float32, color uint32) []trace.Vertex {
	return []trace.Vertex{vtx(-1, -1, z, color), vtx(1, -1, z, color), vtx(1, 1, z, color), vtx(-1, 1, z, color)}
}

var (
	quadPrims  = []trace.Primitive{{0, 1, 2}, {0, 2, 3}}
	lowerLeft  = []trace.Primitive{{0, 1, 3}}
	colorOnly  = abi.KernelArg{LogNumTasks: 2, ColorEnabled: true}
	depthColor = abi.KernelArg{LogNumTasks: 2, ColorEnabled: true, DepthEnabled: true}
)

func TestDrawFill(t *testing.T) {
	d := newTestDevice(t)
	tg := newTarget(t, d, 8, 8)
	tg.draw(t, quadAt(0, 0xff00ff00), quadPrims, colorOnly, nil)

	for i, got := range tg.read(t, tg.color) {
		if got != 0xff00ff00 {
			t.Fatalf("pixel %d = %#08x, want 0xff00ff00", i, got)
		}
	}
}

func TestDrawDefaultColorIsWhite(t *testing.T) {
	d := newTestDevice(t)
	tg := newTarget(t, d, 4, 4)
	tg.draw(t, quadAt(0, 0xff000000), quadPrims, abi.KernelArg{}, nil)
	if got := tg.pixel(t, 2, 1); got != 0xffffffff {
		t.Errorf("pixel = %#08x, want white", got)
	}
}

func TestDrawCoverage(t *testing.T) {
	d := newTestDevice(t)
	tg := newTarget(t, d, 8, 8)
	tg.draw(t, quadAt(0, 0xffff0000), lowerLeft, colorOnly, nil)

	tests := []struct {
		x, y int
		want uint32
	}{
		{0, 0, 0xffff0000},
		{6, 0, 0xffff0000},
		{0, 6, 0xffff0000},
		{7, 1, 0},
		{7, 7, 0},
		{4, 5, 0},
	}
	for _, tt := range tests {
		if got := tg.pixel(t, tt.x, tt.y); got != tt.want {
			t.Errorf("pixel(%d, %d) = %#08x, want %#08x", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestDrawScissor(t *testing.T) {
	d := newTestDevice(t)
	tg := newTarget(t, d, 8, 8)
	tg.draw(t, quadAt(0, 0xffffffff), quadPrims, colorOnly, map[uint32]uint32{
		device.DCRRasterScissorX: 6<<16 | 2,
		device.DCRRasterScissorY: 8<<16 | 4,
	})

	px := tg.read(t, tg.color)
	for y := range 8 {
		for x := range 8 {
			want := uint32(0)
			if x >= 2 && x < 6 && y >= 4 {
				want = 0xffffffff
			}
			if got := px[y*8+x]; got != want {
				t.Errorf("pixel(%d, %d) = %#08x, want %#08x", x, y, got, want)
			}
		}
	}
}

func TestDrawDepthTest(t *testing.T) {
	d := newTestDevice(t)
	tg := newTarget(t, d, 4, 4)
	less := map[uint32]uint32{
		device.DCROMDepthFunc:      device.OMCompareLess,
		device.DCROMDepthWriteMask: 1,
	}

	tg.draw(t, quadAt(0, 0xffff0000), quadPrims, depthColor, less) // z = 0.5
	tg.draw(t, quadAt(0.5, 0xff00ff00), quadPrims, depthColor, less)
	if got := tg.pixel(t, 1, 1); got != 0xffff0000 {
		t.Fatalf("farther fragment: pixel = %#08x, want red", got)
	}

	tg.draw(t, quadAt(-0.5, 0xff0000ff), quadPrims, depthColor, less) // z = 0.25
	if got := tg.pixel(t, 1, 1); got != 0xff0000ff {
		t.Fatalf("nearer fragment: pixel = %#08x, want blue", got)
	}

	const want = depthMax / 4
	if got := tg.read(t, tg.depth)[5] & depthMax; got < want-1 || got > want+1 {
		t.Errorf("depth = %#x, want about %#x", got, want)
	}
}

func TestDrawStencilMask(t *testing.T) {
	d := newTestDevice(t)
	tg := newTarget(t, d, 8, 8)

	// Mark the lower-left triangle in the stencil buffer without touching color.
	tg.draw(t, quadAt(0, 0xffffffff), lowerLeft, colorOnly, map[uint32]uint32{
		device.DCROMCBufWriteMask: 0,
		device.DCROMStencilZPass:  device.OMStencilOpReplace,
		device.DCROMStencilRef:    1,
	})
	if got := tg.pixel(t, 0, 0); got != 0 {
		t.Fatalf("masked color write changed pixel to %#08x", got)
	}
	if got := tg.read(t, tg.depth)[0] >> depthBits; got != 1 {
		t.Fatalf("stencil = %d, want 1", got)
	}

	tg.draw(t, quadAt(0, 0xff00ff00), quadPrims, colorOnly, map[uint32]uint32{
		device.DCROMStencilFunc: device.OMCompareEqual,
		device.DCROMStencilRef:  1,
	})
	if got := tg.pixel(t, 0, 0); got != 0xff00ff00 {
		t.Errorf("inside stencil: pixel = %#08x, want green", got)
	}
	if got := tg.pixel(t, 7, 7); got != 0 {
		t.Errorf("outside stencil: pixel = %#08x, want 0", got)
	}
}

func TestDrawStencilZFail(t *testing.T) {
	d := newTestDevice(t)
	tg := newTarget(t, d, 4, 4)
	tg.draw(t, quadAt(0, 0xffffffff), quadPrims, depthColor, map[uint32]uint32{
		device.DCROMDepthFunc:    device.OMCompareNever,
		device.DCROMStencilZFail: device.OMStencilOpIncr,
		device.DCROMStencilZPass: device.OMStencilOpZero,
	})
	if got := tg.read(t, tg.depth)[0] >> depthBits; got != 1 {
		t.Errorf("stencil after depth fail = %d, want 1", got)
	}
	if got := tg.pixel(t, 0, 0); got != 0 {
		t.Errorf("pixel = %#08x, want untouched", got)
	}
}

func TestDrawBlend(t *testing.T) {
	d := newTestDevice(t)
	tg := newTarget(t, d, 4, 4)
	tg.fill(t, tg.color, 0x000000ff)

	tg.draw(t, quadAt(0, 0x80ff0000), quadPrims, colorOnly, map[uint32]uint32{
		device.DCROMBlendFunc: device.OMBlendFuncZero<<24 | device.OMBlendFuncOneMinusSrcA<<16 |
			device.OMBlendFuncOne<<8 | device.OMBlendFuncSrcA,
	})
	if got := tg.pixel(t, 2, 2); got != 0x8080007f {
		t.Errorf("pixel = %#08x, want 0x8080007f", got)
	}
}

func TestDrawColorWriteMask(t *testing.T) {
	d := newTestDevice(t)
	tg := newTarget(t, d, 4, 4)
	tg.fill(t, tg.color, 0x11223344)

	tg.draw(t, quadAt(0, 0xffaabbcc), quadPrims, colorOnly, map[uint32]uint32{
		device.DCROMCBufWriteMask: 1 << 2, // R
	})
	if got := tg.pixel(t, 3, 0); got != 0x11aa3344 {
		t.Errorf("pixel = %#08x, want 0x11aa3344", got)
	}
}

func TestDrawSoftwareFallback(t *testing.T) {
	render := func(arg abi.KernelArg) ([]uint32, uint64) {
		d := newTestDevice(t, WithTopology(2, 1, 1))
		tg := newTarget(t, d, 8, 8)
		verts := []trace.Vertex{vtx(-1, -1, 0, 0xffff0000), vtx(1, -1, 0, 0xff00ff00), vtx(1, 1, 0, 0xff0000ff), vtx(-1, 1, 0, 0x80ffffff)}
		tg.draw(t, verts, quadPrims, arg, map[uint32]uint32{
			device.DCROMDepthFunc:      device.OMCompareLess,
			device.DCROMDepthWriteMask: 1,
		})
		instrs, err := d.QueryCounter(device.CounterInstrs, -1)
		if err != nil {
			t.Fatal(err)
		}
		return tg.read(t, tg.color), instrs
	}

	hw, hwInstrs := render(depthColor)
	sw := depthColor
	sw.SwRast, sw.SwOM = true, true
	soft, swInstrs := render(sw)

	for i := range hw {
		if hw[i] != soft[i] {
			t.Fatalf("pixel %d: hardware %#08x, fallback %#08x", i, hw[i], soft[i])
		}
	}
	if hwInstrs == 0 || hwInstrs != swInstrs {
		t.Errorf("instrs = %d (hardware) and %d (fallback), want equal and non-zero", hwInstrs, swInstrs)
	}
}

func TestDrawTextured(t *testing.T) {
	texels := []uint32{0xffff0000, 0xff00ff00, 0xff0000ff, 0xffffffff}

	for _, sw := range []bool{false, true} {
		d := newTestDevice(t)
		tg := newTarget(t, d, 4, 4)

		tex, err := d.MemAlloc(16, device.MemRead)
		if err != nil {
			t.Fatal(err)
		}
		b := make([]byte, 0, 16)
		for _, c := range texels {
			b = binary.LittleEndian.AppendUint32(b, c)
		}
		if err := d.CopyToDev(tex, b, 0); err != nil {
			t.Fatal(err)
		}

		verts := quadAt(0, 0xff808080)
		for i, uv := range [4][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 1}} {
			verts[i].UV = uv
		}
		arg := abi.KernelArg{LogNumTasks: 1, TexEnabled: true, SwTex: sw}
		tg.draw(t, verts, quadPrims, arg, map[uint32]uint32{
			device.DCRTexAddr:      uint32(tex.Address() / device.BlockSize),
			device.DCRTexLogDim:    1<<16 | 1,
			device.DCRTexFormat:    device.TexFormatA8R8G8B8,
			device.DCRTexFilter:    device.TexFilterPoint,
			device.DCRTexWrap:      device.TexWrapClamp,
			device.DCRTexMipOff(0): 0,
		})

		tests := []struct {
			x, y int
			want uint32
		}{
			{0, 0, texels[0]},
			{3, 0, texels[1]},
			{0, 3, texels[2]},
			{3, 3, texels[3]},
		}
		for _, tt := range tests {
			if got := tg.pixel(t, tt.x, tt.y); got != tt.want {
				t.Errorf("sw=%v: pixel(%d, %d) = %#08x, want %#08x", sw, tt.x, tt.y, got, tt.want)
			}
		}
	}
}
