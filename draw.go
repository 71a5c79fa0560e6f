package tilereplay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gogpu/tilereplay/device"
	"github.com/gogpu/tilereplay/image"
	"github.com/gogpu/tilereplay/internal/abi"
	"github.com/gogpu/tilereplay/internal/binning"
	"github.com/gogpu/tilereplay/internal/translate"
	"github.com/gogpu/tilereplay/trace"
)

// Replay runs the selected draw calls of tr in trace order and returns the
// statistics of every launched one. Draw calls outside the configured
// range, and draw calls covering no tile, are skipped without touching the
// device. Cancellation of ctx is observed between draw calls and while
// waiting for a launch.
func (rc *RenderContext) Replay(ctx context.Context, tr *trace.Trace) ([]DrawStats, error) {
	if err := rc.checkTextures(tr); err != nil {
		return nil, err
	}
	var draws []DrawStats
	last := len(tr.DrawCalls) - 1
	for i := range tr.DrawCalls {
		if !rc.cfg.inRange(i) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return draws, err
		}
		dc := &tr.DrawCalls[i]
		stats, launched, err := rc.draw(ctx, i, dc, tr.Texture(dc), i == last)
		if err != nil {
			return draws, fmt.Errorf("draw call %d: %w", i, err)
		}
		if launched {
			rc.counters.add(stats)
			draws = append(draws, stats)
		}
	}
	return draws, nil
}

// checkTextures rejects textures of selected draw calls whose mip chain
// does not fit the texture unit, before anything reaches the device.
func (rc *RenderContext) checkTextures(tr *trace.Trace) error {
	for i := range tr.DrawCalls {
		dc := &tr.DrawCalls[i]
		if !rc.cfg.inRange(i) || !dc.State.TexEnabled {
			continue
		}
		tex := tr.Texture(dc)
		if tex == nil {
			continue
		}
		if n := image.MipLevels(tex.Width, tex.Height); n > device.TexLODMax {
			return fmt.Errorf("%w: draw call %d: %dx%d texture needs %d mip levels, device supports %d",
				ErrConfig, i, tex.Width, tex.Height, n, device.TexLODMax)
		}
	}
	return nil
}

// draw replays one draw call and reports whether it was launched.
func (rc *RenderContext) draw(ctx context.Context, index int, dc *trace.DrawCall, tex *trace.Texture, last bool) (DrawStats, bool, error) {
	begin := time.Now()
	st := &dc.State

	res := binning.Bin(dc.Vertices, dc.Primitives, rc.cfg.Width, rc.cfg.Height,
		dc.Viewport.Near, dc.Viewport.Far, rc.cfg.TileLogSize)
	if res.Tiles == 0 {
		rc.log.Debug("draw call covers no tile", "index", index)
		return DrawStats{}, false, nil
	}

	tileAddr, err := rc.bufs.provision(roleTile, res.TileBuf)
	if err != nil {
		return DrawStats{}, false, err
	}
	primAddr, err := rc.bufs.provision(rolePrim, res.PrimBuf)
	if err != nil {
		return DrawStats{}, false, err
	}

	if err := rc.programRaster(tileAddr, res.Tiles, primAddr); err != nil {
		return DrawStats{}, false, err
	}
	if err := rc.programOM(st); err != nil {
		return DrawStats{}, false, err
	}
	if st.TexEnabled {
		if err := rc.programTexture(tex, st); err != nil {
			return DrawStats{}, false, err
		}
	}

	arg := packKernelArg(&rc.arg, st, primAddr)
	block, err := arg.MarshalBinary()
	if err != nil {
		return DrawStats{}, false, fmt.Errorf("%w: pack kernel argument: %w", ErrResource, err)
	}
	if _, err := rc.bufs.provision(roleArgs, block); err != nil {
		return DrawStats{}, false, err
	}

	if err := rc.dev.Start(ctx, rc.program, rc.bufs.get(roleArgs)); err != nil {
		return DrawStats{}, false, fmt.Errorf("%w: start kernel: %w", ErrResource, err)
	}
	if err := rc.dev.ReadyWait(ctx, time.Duration(rc.cfg.Timeout)); err != nil {
		switch {
		case errors.Is(err, device.ErrTimeout):
			return DrawStats{}, false, fmt.Errorf("%w: %w", ErrTimeout, err)
		case ctx.Err() != nil:
			return DrawStats{}, false, err
		}
		return DrawStats{}, false, fmt.Errorf("%w: wait for kernel: %w", ErrResource, err)
	}

	stats := DrawStats{Index: index, Tiles: res.Tiles}
	if stats.Cycles, err = rc.dev.QueryCounter(device.CounterCycles, -1); err != nil {
		return DrawStats{}, false, fmt.Errorf("%w: query cycles: %w", ErrResource, err)
	}
	if stats.Instrs, err = rc.dev.QueryCounter(device.CounterInstrs, -1); err != nil {
		return DrawStats{}, false, fmt.Errorf("%w: query instructions: %w", ErrResource, err)
	}
	if !last {
		if err := rc.dev.DumpPerf(rc.perf()); err != nil {
			return DrawStats{}, false, fmt.Errorf("%w: dump performance: %w", ErrResource, err)
		}
	}
	stats.Elapsed = time.Since(begin)

	rc.log.Info("draw call", "index", index, "tiles", res.Tiles,
		"instrs", stats.Instrs, "cycles", stats.Cycles, "elapsed", stats.Elapsed)
	return stats, true, nil
}

func (rc *RenderContext) perf() io.Writer {
	if rc.cfg.Perf == nil {
		return io.Discard
	}
	return rc.cfg.Perf
}

// dcrWrite is one register write.
type dcrWrite struct {
	addr, value uint32
}

func (rc *RenderContext) writeAll(writes []dcrWrite) error {
	for _, w := range writes {
		if err := rc.regs.WriteDCR(w.addr, w.value); err != nil {
			return err
		}
	}
	return nil
}

func (rc *RenderContext) programRaster(tileAddr uint64, tiles int, primAddr uint64) error {
	tbuf, err := blockAddress(tileAddr)
	if err != nil {
		return err
	}
	pbuf, err := blockAddress(primAddr)
	if err != nil {
		return err
	}
	return rc.writeAll([]dcrWrite{
		{device.DCRRasterTBufAddr, tbuf},
		{device.DCRRasterTileCount, uint32(tiles)},
		{device.DCRRasterPBufAddr, pbuf},
		{device.DCRRasterPBufStride, abi.PrimStride},
		{device.DCRRasterScissorX, uint32(rc.cfg.Width) << 16},
		{device.DCRRasterScissorY, uint32(rc.cfg.Height) << 16},
	})
}

func (rc *RenderContext) programOM(st *trace.State) error {
	cbuf, err := blockAddress(rc.bufs.get(roleColor).Address())
	if err != nil {
		return err
	}
	writes := []dcrWrite{
		{device.DCROMCBufAddr, cbuf},
		{device.DCROMCBufPitch, uint32(rc.pitch())},
		{device.DCROMCBufWriteMask, uint32(st.ColorWriteMask & 0xf)},
	}

	if st.DepthTest || st.StencilTest {
		zbuf, err := blockAddress(rc.bufs.get(roleDepth).Address())
		if err != nil {
			return err
		}
		writes = append(writes,
			dcrWrite{device.DCROMZBufAddr, zbuf},
			dcrWrite{device.DCROMZBufPitch, uint32(rc.pitch())},
		)
	}

	if st.DepthTest {
		var mask uint32
		if st.DepthWrite {
			mask = 1
		}
		writes = append(writes,
			dcrWrite{device.DCROMDepthFunc, translate.Compare(st.DepthFunc)},
			dcrWrite{device.DCROMDepthWriteMask, mask},
		)
	} else {
		writes = append(writes,
			dcrWrite{device.DCROMDepthFunc, translate.DepthFuncDisabled},
			dcrWrite{device.DCROMDepthWriteMask, 0},
		)
	}

	if st.StencilTest {
		writes = append(writes,
			dcrWrite{device.DCROMStencilFunc, translate.Compare(st.StencilFunc)},
			dcrWrite{device.DCROMStencilZPass, translate.StencilOp(st.StencilZPass)},
			dcrWrite{device.DCROMStencilZFail, translate.StencilOp(st.StencilZFail)},
			dcrWrite{device.DCROMStencilFail, translate.StencilOp(st.StencilFail)},
			dcrWrite{device.DCROMStencilRef, uint32(st.StencilRef)},
			dcrWrite{device.DCROMStencilMask, uint32(st.StencilMask)},
			dcrWrite{device.DCROMStencilWriteMask, uint32(st.StencilWriteMask)},
		)
	} else {
		writes = append(writes,
			dcrWrite{device.DCROMStencilFunc, translate.StencilFuncDisabled},
			dcrWrite{device.DCROMStencilZPass, translate.StencilOpDisabled},
			dcrWrite{device.DCROMStencilZFail, translate.StencilOpDisabled},
			dcrWrite{device.DCROMStencilFail, translate.StencilOpDisabled},
			dcrWrite{device.DCROMStencilRef, translate.StencilRefDisabled},
			dcrWrite{device.DCROMStencilMask, translate.StencilMaskDisabled},
			dcrWrite{device.DCROMStencilWriteMask, translate.StencilWriteMaskDisabled},
		)
	}

	if st.Blend {
		writes = append(writes,
			dcrWrite{device.DCROMBlendMode, device.OMBlendModeAdd<<16 | device.OMBlendModeAdd},
			dcrWrite{device.DCROMBlendFunc, translate.BlendFuncWord(st.BlendSrc, st.BlendDst)},
		)
	} else {
		writes = append(writes,
			dcrWrite{device.DCROMBlendMode, translate.BlendModeDisabled},
			dcrWrite{device.DCROMBlendFunc, translate.BlendFuncDisabled},
		)
	}
	return rc.writeAll(writes)
}

func (rc *RenderContext) programTexture(tex *trace.Texture, st *trace.State) error {
	if tex == nil {
		return fmt.Errorf("%w: texturing enabled without a texture", ErrConfig)
	}
	chain, err := rc.mips.GetOrCreate(tex, func() (mipChain, error) {
		linear, offsets, err := image.GenerateMipmaps(tex.Pixels, tex.Format, tex.Width, tex.Height, tex.Pitch())
		return mipChain{linear, offsets}, err
	})
	if err != nil {
		return fmt.Errorf("%w: generate mipmaps: %w", ErrConfig, err)
	}
	linear, offsets := chain.linear, chain.offsets
	if len(offsets) > device.TexLODMax {
		panic(fmt.Sprintf("tilereplay: %dx%d texture has %d mip levels, device supports %d",
			tex.Width, tex.Height, len(offsets), device.TexLODMax))
	}

	addr, err := rc.bufs.provision(roleTexture, linear)
	if err != nil {
		return err
	}
	block, err := blockAddress(addr)
	if err != nil {
		return err
	}

	logW, logH := abi.Log2Ceil(tex.Width), abi.Log2Ceil(tex.Height)
	writes := []dcrWrite{
		{device.DCRTexStage, 0},
		{device.DCRTexLogDim, uint32(logH)<<16 | uint32(logW)},
		{device.DCRTexFormat, translate.TexFormat(tex.Format)},
		{device.DCRTexWrap, translate.TexWrapWord(st.AddressU, st.AddressV)},
		{device.DCRTexFilter, translate.TexFilter(st.MinFilter, st.MagFilter)},
		{device.DCRTexAddr, block},
	}
	for lod, off := range offsets {
		writes = append(writes, dcrWrite{device.DCRTexMipOff(lod), off})
	}
	rc.log.Debug("texture provisioned", "width", tex.Width, "height", tex.Height,
		"format", tex.Format.String(), "levels", len(offsets))
	return rc.writeAll(writes)
}
