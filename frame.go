package tilereplay

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/tilereplay/device"
	"github.com/gogpu/tilereplay/image"
	"github.com/gogpu/tilereplay/internal/abi"
	"github.com/gogpu/tilereplay/internal/cache"
	"github.com/gogpu/tilereplay/trace"
)

// mipCacheBudget bounds the host memory held by cached mipmap chains.
const mipCacheBudget = 64 << 20

// mipChain is a texture with its mip levels laid out linearly.
type mipChain struct {
	linear  []byte
	offsets []uint32
}

// RenderContext owns a device and the frame-wide state of a replay: the
// color and depth buffers, the uploaded program, the per-role buffer slots
// and the base kernel argument block.
//
// A RenderContext is not safe for concurrent use.
type RenderContext struct {
	dev     device.Device
	cfg     Config
	bufs    buffers
	regs    RegisterWriter
	arg     abi.KernelArg
	program device.Buffer

	// mips keeps generated mipmap chains of textures sampled by earlier
	// draw calls.
	mips *cache.Cache[*trace.Texture, mipChain]

	counters Counters
	log      *slog.Logger
	closed   bool
}

// NewRenderContext prepares dev for replaying draw calls with cfg: it checks
// the graphics extensions, derives the task count from the device topology,
// allocates and clears the color and depth buffers and uploads the program.
//
// The RenderContext takes ownership of dev. On error dev has been closed.
func NewRenderContext(dev device.Device, cfg Config) (*RenderContext, error) {
	log := Logger()
	propagateLogger(dev, log)

	rc := &RenderContext{
		dev:  dev,
		cfg:  cfg,
		bufs: buffers{dev: dev, log: log},
		log:  log,
		mips: cache.New[*trace.Texture](mipCacheBudget, func(m mipChain) int { return len(m.linear) }),
	}
	if err := rc.setup(); err != nil {
		if cerr := rc.Close(); cerr != nil {
			log.Warn("teardown after failed setup", "err", cerr)
		}
		return nil, err
	}
	return rc, nil
}

func (rc *RenderContext) setup() error {
	isa, err := rc.dev.Caps(device.CapISAFlags)
	if err != nil {
		return fmt.Errorf("%w: query ISA: %w", ErrSetup, err)
	}
	if missing := device.ISAExtGraphics &^ isa; missing != 0 {
		return fmt.Errorf("%w: missing graphics extensions %#x", ErrSetup, missing)
	}

	tasks := uint64(1)
	for _, c := range []device.Cap{device.CapNumCores, device.CapNumWarps, device.CapNumThreads} {
		n, err := rc.dev.Caps(c)
		if err != nil {
			return fmt.Errorf("%w: query %v: %w", ErrSetup, c, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: device reports zero %v", ErrSetup, c)
		}
		tasks *= n
	}

	rc.arg = abi.KernelArg{
		LogNumTasks: uint32(abi.Log2Ceil(tasks)),
		SwRast:      rc.cfg.SwRast,
		SwTex:       rc.cfg.SwTex,
		SwOM:        rc.cfg.SwOM,
	}
	rc.regs = newRegisterWriter(rc.dev, &rc.arg)
	rc.log.Debug("device configured", "tasks", tasks, "log_tasks", rc.arg.LogNumTasks,
		"sw_rast", rc.cfg.SwRast, "sw_tex", rc.cfg.SwTex, "sw_om", rc.cfg.SwOM)

	n := rc.cfg.Width * rc.cfg.Height
	if _, err := rc.bufs.provision(roleColor, filled(n, rc.cfg.ClearColor)); err != nil {
		return err
	}
	if _, err := rc.bufs.provision(roleDepth, filled(n, rc.cfg.ClearDepth)); err != nil {
		return err
	}

	prog, err := rc.cfg.program()
	if err != nil {
		return err
	}
	if rc.program, err = rc.dev.UploadProgram(prog); err != nil {
		return fmt.Errorf("%w: upload program: %w", ErrResource, err)
	}
	return nil
}

// filled returns n little-endian copies of v.
func filled(n int, v uint32) []byte {
	b := make([]byte, n*4)
	for off := 0; off < len(b); off += 4 {
		binary.LittleEndian.PutUint32(b[off:], v)
	}
	return b
}

// pitch is the byte distance between color and depth buffer rows.
func (rc *RenderContext) pitch() int {
	return rc.cfg.Width * 4
}

// Counters returns the counters accumulated so far.
func (rc *RenderContext) Counters() Counters {
	return rc.counters
}

// ReadColor copies the color buffer back to the host. Row 0 is the bottom
// row of the image.
func (rc *RenderContext) ReadColor() ([]byte, error) {
	buf := rc.bufs.get(roleColor)
	if buf == nil {
		return nil, fmt.Errorf("%w: no color buffer", ErrResource)
	}
	pixels := make([]byte, rc.cfg.Height*rc.pitch())
	if err := rc.dev.CopyFromDev(pixels, buf, 0); err != nil {
		return nil, fmt.Errorf("%w: read back color buffer: %w", ErrResource, err)
	}
	return pixels, nil
}

// Save writes the color buffer to path, top row first.
func (rc *RenderContext) Save(path string) error {
	pixels, err := rc.ReadColor()
	if err != nil {
		return err
	}
	if err := image.SaveImage(path, image.FormatA8R8G8B8, pixels, rc.cfg.Width, rc.cfg.Height, -rc.pitch()); err != nil {
		return fmt.Errorf("%w: save %s: %w", ErrResource, path, err)
	}
	rc.log.Info("output saved", "path", path)
	return nil
}

// Close releases every buffer and the program, then closes the device.
// Release failures are logged; only the device close error is returned.
// Close is idempotent.
func (rc *RenderContext) Close() error {
	if rc.closed {
		return nil
	}
	rc.closed = true

	var errs []error
	if err := rc.bufs.releaseAll(); err != nil {
		errs = append(errs, err)
	}
	if rc.program != nil {
		if err := rc.dev.MemFree(rc.program); err != nil {
			errs = append(errs, err)
		}
		rc.program = nil
	}
	if err := errors.Join(errs...); err != nil {
		rc.log.Warn("release device memory", "err", err)
	}

	if err := rc.dev.Close(); err != nil {
		return fmt.Errorf("%w: close device: %w", ErrResource, err)
	}
	return nil
}
