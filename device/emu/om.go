package emu

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/tilereplay/device"
)

// Depth buffer texels hold depth in the low 24 bits and stencil in the high 8.
const (
	depthBits = 24
	depthMax  = 1<<depthBits - 1
)

// outputMerger applies the depth/stencil tests, blending and write masks.
type outputMerger struct {
	color      []byte
	colorPitch int
	writeMask  uint32 // ARGB byte mask

	depth      []byte // nil when neither test is active
	depthPitch int
	depthFunc  uint32
	depthWrite bool

	stencilFunc      uint32
	stencilFail      uint32
	stencilZFail     uint32
	stencilZPass     uint32
	stencilRef       uint32
	stencilMask      uint32
	stencilWriteMask uint32

	blendModeRGB, blendModeA uint32
	srcRGB, srcA             uint32
	dstRGB, dstA             uint32
	blendConst               rgba
}

func newOutputMerger(l *Launch, r regs, width, height int) (*outputMerger, error) {
	om := &outputMerger{
		colorPitch:       int(r.om(device.DCROMCBufPitch)),
		depthFunc:        r.om(device.DCROMDepthFunc),
		depthWrite:       r.om(device.DCROMDepthWriteMask) != 0,
		stencilFunc:      r.om(device.DCROMStencilFunc),
		stencilFail:      r.om(device.DCROMStencilFail),
		stencilZFail:     r.om(device.DCROMStencilZFail),
		stencilZPass:     r.om(device.DCROMStencilZPass),
		stencilRef:       r.om(device.DCROMStencilRef) & 0xff,
		stencilMask:      r.om(device.DCROMStencilMask) & 0xff,
		stencilWriteMask: r.om(device.DCROMStencilWriteMask) & 0xff,
		blendConst:       unpack(r.om(device.DCROMBlendConst)),
	}

	lanes := r.om(device.DCROMCBufWriteMask)
	for lane, shift := range [4]uint32{0, 8, 16, 24} { // B, G, R, A
		if lanes&(1<<lane) != 0 {
			om.writeMask |= 0xff << shift
		}
	}

	// The low half of BLEND_MODE drives the color lanes, the high half alpha.
	mode := r.om(device.DCROMBlendMode)
	om.blendModeRGB, om.blendModeA = mode&0xffff, mode>>16
	fn := r.om(device.DCROMBlendFunc)
	om.srcRGB, om.srcA = fn&0xff, fn>>8&0xff
	om.dstRGB, om.dstA = fn>>16&0xff, fn>>24

	var err error
	cbuf := uint64(r.om(device.DCROMCBufAddr)) * device.BlockSize
	if om.color, err = l.Mem(cbuf, uint64(om.colorPitch*height)); err != nil {
		return nil, fmt.Errorf("color buffer: %w", err)
	}
	if om.colorPitch < width*4 {
		return nil, fmt.Errorf("color pitch %d below %d", om.colorPitch, width*4)
	}

	if om.depthActive() || om.stencilActive() {
		om.depthPitch = int(r.om(device.DCROMZBufPitch))
		if om.depthPitch < width*4 {
			return nil, fmt.Errorf("depth pitch %d below %d", om.depthPitch, width*4)
		}
		zbuf := uint64(r.om(device.DCROMZBufAddr)) * device.BlockSize
		if om.depth, err = l.Mem(zbuf, uint64(om.depthPitch*height)); err != nil {
			return nil, fmt.Errorf("depth buffer: %w", err)
		}
	}
	return om, nil
}

func (om *outputMerger) depthActive() bool {
	return om.depthFunc != device.OMCompareAlways || om.depthWrite
}

func (om *outputMerger) stencilActive() bool {
	if om.stencilFunc != device.OMCompareAlways {
		return true
	}
	if om.stencilWriteMask == 0 {
		return false
	}
	return om.stencilFail != device.OMStencilOpKeep ||
		om.stencilZFail != device.OMStencilOpKeep ||
		om.stencilZPass != device.OMStencilOpKeep
}

// merge processes one fragment and reports whether it reached the color
// buffer.
func (om *outputMerger) merge(x, y int, z float32, src rgba) bool {
	if om.depth != nil {
		zoff := y*om.depthPitch + x*4
		stored := binary.LittleEndian.Uint32(om.depth[zoff:])
		depth, stencil := stored&depthMax, stored>>depthBits
		fragZ := uint32(clamp01(z)*depthMax + 0.5)

		pass := true
		if !compare(om.stencilFunc, om.stencilRef&om.stencilMask, stencil&om.stencilMask) {
			stencil = om.stencilOp(om.stencilFail, stencil)
			pass = false
		} else if !compare(om.depthFunc, fragZ, depth) {
			stencil = om.stencilOp(om.stencilZFail, stencil)
			pass = false
		} else {
			stencil = om.stencilOp(om.stencilZPass, stencil)
			if om.depthWrite {
				depth = fragZ
			}
		}
		binary.LittleEndian.PutUint32(om.depth[zoff:], stencil<<depthBits|depth)
		if !pass {
			return false
		}
	}

	coff := y*om.colorPitch + x*4
	old := binary.LittleEndian.Uint32(om.color[coff:])
	out := om.blend(src, unpack(old)).pack()
	binary.LittleEndian.PutUint32(om.color[coff:], old&^om.writeMask|out&om.writeMask)
	return true
}

func compare(fn, ref, value uint32) bool {
	switch fn {
	case device.OMCompareNever:
		return false
	case device.OMCompareLess:
		return ref < value
	case device.OMCompareEqual:
		return ref == value
	case device.OMCompareLessEqual:
		return ref <= value
	case device.OMCompareGreater:
		return ref > value
	case device.OMCompareNotEqual:
		return ref != value
	case device.OMCompareGreaterEqual:
		return ref >= value
	}
	return true
}

// stencilOp applies op to the stored stencil value, honoring the write mask.
func (om *outputMerger) stencilOp(op, s uint32) uint32 {
	var v uint32
	switch op {
	case device.OMStencilOpZero:
		v = 0
	case device.OMStencilOpReplace:
		v = om.stencilRef
	case device.OMStencilOpIncr:
		v = min(s+1, 0xff)
	case device.OMStencilOpDecr:
		v = s
		if v > 0 {
			v--
		}
	case device.OMStencilOpInvert:
		v = ^s & 0xff
	case device.OMStencilOpIncrWrap:
		v = (s + 1) & 0xff
	case device.OMStencilOpDecrWrap:
		v = (s - 1) & 0xff
	default:
		return s
	}
	return s&^om.stencilWriteMask | v&om.stencilWriteMask
}

func (om *outputMerger) blend(src, dst rgba) rgba {
	f := func(fn uint32, alphaLane bool, ch int) float32 {
		pick := func(c rgba) float32 {
			if alphaLane {
				return c.a
			}
			return [3]float32{c.r, c.g, c.b}[ch]
		}
		switch fn {
		case device.OMBlendFuncZero:
			return 0
		case device.OMBlendFuncOne:
			return 1
		case device.OMBlendFuncSrcRGB:
			return pick(src)
		case device.OMBlendFuncOneMinusSrcRGB:
			return 1 - pick(src)
		case device.OMBlendFuncDstRGB:
			return pick(dst)
		case device.OMBlendFuncOneMinusDstRGB:
			return 1 - pick(dst)
		case device.OMBlendFuncSrcA:
			return src.a
		case device.OMBlendFuncOneMinusSrcA:
			return 1 - src.a
		case device.OMBlendFuncDstA:
			return dst.a
		case device.OMBlendFuncOneMinusDstA:
			return 1 - dst.a
		case device.OMBlendFuncConstRGB:
			return pick(om.blendConst)
		case device.OMBlendFuncOneMinusConstRGB:
			return 1 - pick(om.blendConst)
		case device.OMBlendFuncConstA:
			return om.blendConst.a
		case device.OMBlendFuncOneMinusConstA:
			return 1 - om.blendConst.a
		case device.OMBlendFuncAlphaSat:
			if alphaLane {
				return 1
			}
			return min(src.a, 1-dst.a)
		}
		return 1
	}
	eq := func(mode uint32, s, d, fs, fd float32) float32 {
		switch mode {
		case device.OMBlendModeSub:
			return s*fs - d*fd
		case device.OMBlendModeRevSub:
			return d*fd - s*fs
		case device.OMBlendModeMin:
			return min(s, d)
		case device.OMBlendModeMax:
			return max(s, d)
		}
		return s*fs + d*fd
	}

	var out rgba
	out.r = eq(om.blendModeRGB, src.r, dst.r, f(om.srcRGB, false, 0), f(om.dstRGB, false, 0))
	out.g = eq(om.blendModeRGB, src.g, dst.g, f(om.srcRGB, false, 1), f(om.dstRGB, false, 1))
	out.b = eq(om.blendModeRGB, src.b, dst.b, f(om.srcRGB, false, 2), f(om.dstRGB, false, 2))
	out.a = eq(om.blendModeA, src.a, dst.a, f(om.srcA, true, 0), f(om.dstA, true, 0))
	return out
}
