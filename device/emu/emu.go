// Package emu is a software implementation of device.Device.
//
// The emulator models device memory, the register file of the raster,
// texture and output merger units, program upload and launch, and the
// cycle/instruction counters. Programs name a kernel registered with
// RegisterKernel; the built-in "draw3d" kernel renders tile-binned
// primitives the way the hardware pipeline does.
//
// Importing the package registers the device as "emu":
//
//	import _ "github.com/gogpu/tilereplay/device/emu"
//
//	dev, err := device.Open("emu")
package emu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/tilereplay/device"
)

// Name is the registry name of the emulator.
const Name = "emu"

// Version is reported by device.CapVersion.
const Version = 1

// TexStages is the number of texture stages.
const TexStages = 1

// ErrInvalidRegister is returned for writes to unknown registers or stages.
var ErrInvalidRegister = errors.New("emu: invalid register")

// Default topology and memory size.
const (
	DefaultCores   = 4
	DefaultWarps   = 4
	DefaultThreads = 4
	DefaultMemory  = 256 << 20
)

func init() {
	device.Register(Name, func() (device.Device, error) {
		return New(), nil
	})
}

type config struct {
	cores, warps, threads int
	isa                   uint64
	memory                uint64
	launchDelay           time.Duration
}

// Option configures a Device.
type Option func(*config)

// WithTopology sets the number of cores, warps per core and threads per warp.
// Non-positive values keep the defaults.
func WithTopology(cores, warps, threads int) Option {
	return func(c *config) {
		if cores > 0 {
			c.cores = cores
		}
		if warps > 0 {
			c.warps = warps
		}
		if threads > 0 {
			c.threads = threads
		}
	}
}

// WithISA sets the ISA extension bits reported by device.CapISAFlags.
func WithISA(flags uint64) Option {
	return func(c *config) { c.isa = flags }
}

// WithMemory sets the device memory size in bytes.
func WithMemory(size uint64) Option {
	return func(c *config) { c.memory = size }
}

// WithLaunchDelay delays the start of every kernel by d.
func WithLaunchDelay(d time.Duration) Option {
	return func(c *config) { c.launchDelay = d }
}

// dcrFile holds the register state of the graphics units.
type dcrFile struct {
	raster [device.DCRRasterCount]uint32
	om     [device.DCROMCount]uint32
	stage  uint32
	tex    [TexStages][device.DCRTexCount]uint32
}

// Device is the software device. It is safe for concurrent use, although
// the driver protocol is sequential.
type Device struct {
	mu sync.Mutex

	cfg      config
	heap     *heap
	buffers  map[uint64]*buffer
	programs map[uint64]string // program address -> kernel name
	dcr      dcrFile
	run      *launch // launched and not yet awaited
	last     [2][]uint64
	launches int
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc

	log atomic.Pointer[slog.Logger]
}

var _ device.Device = (*Device)(nil)

// New returns a device configured by opts.
func New(opts ...Option) *Device {
	cfg := config{
		cores:   DefaultCores,
		warps:   DefaultWarps,
		threads: DefaultThreads,
		isa:     device.ISAExtGraphics,
		memory:  DefaultMemory,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Device{
		cfg:      cfg,
		heap:     newHeap(cfg.memory),
		buffers:  make(map[uint64]*buffer),
		programs: make(map[uint64]string),
		ctx:      ctx,
		cancel:   cancel,
	}
	d.log.Store(loggerPtr.Load())
	d.resetCounters()
	return d
}

func (d *Device) resetCounters() {
	d.last = [2][]uint64{make([]uint64, d.cfg.cores), make([]uint64, d.cfg.cores)}
}

// Caps implements device.Device.
func (d *Device) Caps(id device.Cap) (uint64, error) {
	switch id {
	case device.CapVersion:
		return Version, nil
	case device.CapNumCores:
		return uint64(d.cfg.cores), nil
	case device.CapNumWarps:
		return uint64(d.cfg.warps), nil
	case device.CapNumThreads:
		return uint64(d.cfg.threads), nil
	case device.CapGlobalMemSize:
		return d.cfg.memory, nil
	case device.CapISAFlags:
		return d.cfg.isa, nil
	}
	return 0, fmt.Errorf("%w: %d", device.ErrUnknownCap, int(id))
}

// ready reports whether host-side state may change. Called with mu held.
func (d *Device) ready() error {
	if d.closed {
		return device.ErrClosed
	}
	if d.run != nil {
		return device.ErrBusy
	}
	return nil
}

// MemAlloc implements device.Device.
func (d *Device) MemAlloc(size uint64, flags device.MemFlags) (device.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ready(); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: zero size", device.ErrInvalidBuffer)
	}
	addr, err := d.heap.alloc(size)
	if err != nil {
		return nil, err
	}
	b := &buffer{dev: d, addr: addr, size: size, flags: flags}
	d.buffers[addr] = b
	d.logger().Debug("emu: alloc", "addr", fmt.Sprintf("%#x", addr), "size", size)
	return b, nil
}

// MemFree implements device.Device.
func (d *Device) MemFree(buf device.Buffer) error {
	if buf == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ready(); err != nil {
		return err
	}
	b, err := d.lookup(buf)
	if err != nil {
		return err
	}
	b.freed = true
	delete(d.buffers, b.addr)
	delete(d.programs, b.addr)
	d.heap.release(b.addr, b.size)
	return nil
}

// lookup resolves a buffer owned by this device. Called with mu held.
func (d *Device) lookup(buf device.Buffer) (*buffer, error) {
	b, ok := buf.(*buffer)
	if !ok || b.dev != d || b.freed {
		return nil, device.ErrInvalidBuffer
	}
	return b, nil
}

func (d *Device) span(buf device.Buffer, offset uint64, n int) ([]byte, error) {
	b, err := d.lookup(buf)
	if err != nil {
		return nil, err
	}
	if offset > b.size || uint64(n) > b.size-offset {
		return nil, fmt.Errorf("%w: %d bytes at offset %d of %d", device.ErrOutOfRange, n, offset, b.size)
	}
	return d.heap.bytes(b.addr+offset, uint64(n)), nil
}

// CopyToDev implements device.Device.
func (d *Device) CopyToDev(buf device.Buffer, src []byte, offset uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ready(); err != nil {
		return err
	}
	dst, err := d.span(buf, offset, len(src))
	if err != nil {
		return err
	}
	copy(dst, src)
	return nil
}

// CopyFromDev implements device.Device.
func (d *Device) CopyFromDev(dst []byte, buf device.Buffer, offset uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ready(); err != nil {
		return err
	}
	src, err := d.span(buf, offset, len(dst))
	if err != nil {
		return err
	}
	copy(dst, src)
	return nil
}

// WriteDCR implements device.Device.
func (d *Device) WriteDCR(addr, value uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ready(); err != nil {
		return err
	}
	unit, index := device.UnitOf(addr)
	switch unit {
	case device.UnitRaster:
		d.dcr.raster[index] = value
	case device.UnitOM:
		d.dcr.om[index] = value
	case device.UnitTex:
		if addr == device.DCRTexStage {
			if value >= TexStages {
				return fmt.Errorf("%w: texture stage %d", ErrInvalidRegister, value)
			}
			d.dcr.stage = value
		}
		d.dcr.tex[d.dcr.stage][index] = value
	default:
		return fmt.Errorf("%w: %#x", ErrInvalidRegister, addr)
	}
	return nil
}

// Close implements device.Device. It stops a pending launch and waits for
// its kernel to return.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	run := d.run
	d.run = nil
	d.cancel()
	d.mu.Unlock()

	if run != nil {
		<-run.done
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range d.buffers {
		b.freed = true
	}
	d.buffers = nil
	d.programs = nil
	d.heap = newHeap(0)
	return nil
}

// InUse returns the number of live allocations and their total size.
func (d *Device) InUse() (count int, bytes uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range d.buffers {
		count++
		bytes += b.size
	}
	return count, bytes
}

// Launches returns the number of completed launches.
func (d *Device) Launches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.launches
}

// DCR returns the current value of a register. Texture registers are read
// from the selected stage.
func (d *Device) DCR(addr uint32) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dcr.read(addr)
}

func (f *dcrFile) read(addr uint32) uint32 {
	unit, index := device.UnitOf(addr)
	switch unit {
	case device.UnitRaster:
		return f.raster[index]
	case device.UnitOM:
		return f.om[index]
	case device.UnitTex:
		return f.tex[f.stage][index]
	}
	return 0
}
