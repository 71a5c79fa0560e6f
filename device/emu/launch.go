package emu

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/tilereplay/device"
)

// Kernel is a program body executed by the emulator.
// The context is cancelled when the device is closed.
type Kernel func(ctx context.Context, l *Launch) error

var (
	kernelsMu sync.RWMutex
	kernels   = make(map[string]Kernel)
)

// RegisterKernel makes a kernel available to programs naming it.
// Registering a name again replaces the kernel.
func RegisterKernel(name string, k Kernel) {
	kernelsMu.Lock()
	defer kernelsMu.Unlock()
	kernels[name] = k
}

func lookupKernel(name string) (Kernel, bool) {
	kernelsMu.RLock()
	defer kernelsMu.RUnlock()
	k, ok := kernels[name]
	return k, ok
}

// Kernels returns the names of registered kernels, sorted.
func Kernels() []string {
	kernelsMu.RLock()
	defer kernelsMu.RUnlock()
	names := make([]string, 0, len(kernels))
	for name := range kernels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var programMagic = [4]byte{'V', 'X', 'B', 'N'}

// Program returns a program image that runs the named kernel.
//
// The image is the magic "VXBN" followed by the little-endian uint16
// length of the name and the name itself.
func Program(name string) []byte {
	b := make([]byte, 0, 6+len(name))
	b = append(b, programMagic[:]...)
	b = binary.LittleEndian.AppendUint16(b, uint16(len(name)))
	return append(b, name...)
}

// parseProgram returns the kernel name of a program image.
func parseProgram(image []byte) (string, error) {
	if len(image) < 6 || !bytes.Equal(image[:4], programMagic[:]) {
		return "", fmt.Errorf("%w: bad header", device.ErrInvalidProgram)
	}
	n := int(binary.LittleEndian.Uint16(image[4:]))
	if len(image) < 6+n {
		return "", fmt.Errorf("%w: truncated name", device.ErrInvalidProgram)
	}
	name := string(image[6 : 6+n])
	if _, ok := lookupKernel(name); !ok {
		return "", fmt.Errorf("%w: unknown kernel %q", device.ErrInvalidProgram, name)
	}
	return name, nil
}

// UploadProgram implements device.Device.
func (d *Device) UploadProgram(image []byte) (device.Buffer, error) {
	name, err := parseProgram(image)
	if err != nil {
		return nil, err
	}
	buf, err := d.MemAlloc(uint64(len(image)), device.MemRead)
	if err != nil {
		return nil, err
	}
	if err := d.CopyToDev(buf, image, 0); err != nil {
		_ = d.MemFree(buf)
		return nil, err
	}

	d.mu.Lock()
	d.programs[buf.Address()] = name
	d.mu.Unlock()
	d.logger().Debug("emu: program uploaded", "kernel", name, "addr", fmt.Sprintf("%#x", buf.Address()))
	return buf, nil
}

// launch is one kernel execution.
type launch struct {
	done chan struct{}
	l    *Launch
	err  error
}

// Launch is the execution environment of a kernel.
type Launch struct {
	// Args holds a copy of the argument buffer.
	Args []byte

	// Cores is the number of cores tasks are spread over.
	Cores int

	// Warps and Threads complete the device topology.
	Warps, Threads int

	dcr    dcrFile
	mem    *heap
	cycles []atomic.Uint64
	instrs []atomic.Uint64
}

// DCR returns the value a register had when the kernel was launched.
// Texture registers are read from stage 0.
func (l *Launch) DCR(addr uint32) uint32 {
	return l.dcr.read(addr)
}

// Mem returns size bytes of device memory starting at addr.
// The slice aliases device memory.
func (l *Launch) Mem(addr, size uint64) ([]byte, error) {
	b := l.mem.slice(addr)
	if b == nil || uint64(len(b)) < size {
		return nil, fmt.Errorf("%w: %d bytes at %#x", device.ErrOutOfRange, size, addr)
	}
	return b[:size:size], nil
}

// Retire adds to the counters of core.
func (l *Launch) Retire(core int, instrs, cycles uint64) {
	l.instrs[core].Add(instrs)
	l.cycles[core].Add(cycles)
}

// Run executes fn for tasks [0, n), at most Cores at a time. Task i runs
// on core i % Cores. The first error cancels the remaining tasks.
func (l *Launch) Run(ctx context.Context, n int, fn func(ctx context.Context, task, core int) error) error {
	// gctx is cancelled when Wait returns; only the parent ctx decides the
	// outcome of a launch whose tasks all succeeded.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.Cores)
	for task := range n {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return fn(gctx, task, task%l.Cores)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Start implements device.Device. Registers and the argument buffer are
// captured at launch; the kernel runs asynchronously until ReadyWait.
func (d *Device) Start(ctx context.Context, program, args device.Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ready(); err != nil {
		return err
	}
	p, err := d.lookup(program)
	if err != nil {
		return fmt.Errorf("program: %w", err)
	}
	name, ok := d.programs[p.addr]
	if !ok {
		return fmt.Errorf("%w: buffer %#x holds no program", device.ErrInvalidProgram, p.addr)
	}
	kernel, _ := lookupKernel(name)
	a, err := d.lookup(args)
	if err != nil {
		return fmt.Errorf("args: %w", err)
	}

	l := &Launch{
		Args:    bytes.Clone(d.heap.bytes(a.addr, a.size)),
		Cores:   d.cfg.cores,
		Warps:   d.cfg.warps,
		Threads: d.cfg.threads,
		dcr:     d.dcr,
		mem:     d.heap,
		cycles:  make([]atomic.Uint64, d.cfg.cores),
		instrs:  make([]atomic.Uint64, d.cfg.cores),
	}
	l.dcr.stage = 0
	run := &launch{done: make(chan struct{}), l: l}
	d.run = run

	kctx := d.ctx
	delay := d.cfg.launchDelay
	log := d.logger()
	log.Debug("emu: start", "kernel", name, "launch", d.launches)

	go func() {
		defer close(run.done)
		if delay > 0 {
			t := time.NewTimer(delay)
			defer t.Stop()
			select {
			case <-t.C:
			case <-kctx.Done():
				run.err = device.ErrClosed
				return
			}
		}
		if err := kernel(kctx, l); err != nil {
			run.err = fmt.Errorf("kernel %s: %w", name, err)
		}
	}()
	return nil
}

// ReadyWait implements device.Device. On timeout the launch stays pending
// and the device remains busy.
func (d *Device) ReadyWait(ctx context.Context, timeout time.Duration) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return device.ErrClosed
	}
	run := d.run
	d.mu.Unlock()
	if run == nil {
		return device.ErrNotStarted
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-run.done:
	case <-timer.C:
		return fmt.Errorf("%w after %v", device.ErrTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.run != run {
		return device.ErrClosed
	}
	d.run = nil
	d.launches++
	for core := range run.l.Cores {
		d.last[device.CounterCycles][core] = run.l.cycles[core].Load()
		d.last[device.CounterInstrs][core] = run.l.instrs[core].Load()
	}
	return run.err
}

// QueryCounter implements device.Device. Counters describe the last
// completed launch.
func (d *Device) QueryCounter(id device.Counter, core int) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, device.ErrClosed
	}
	if id != device.CounterCycles && id != device.CounterInstrs {
		return 0, fmt.Errorf("%w: counter %d", device.ErrUnknownCap, int(id))
	}
	values := d.last[id]
	if core >= len(values) {
		return 0, fmt.Errorf("%w: core %d of %d", device.ErrOutOfRange, core, len(values))
	}
	if core >= 0 {
		return values[core], nil
	}
	var total uint64
	for _, v := range values {
		if id == device.CounterCycles {
			total = max(total, v)
		} else {
			total += v
		}
	}
	return total, nil
}

// DumpPerf implements device.Device.
func (d *Device) DumpPerf(w io.Writer) error {
	d.mu.Lock()
	cycles := append([]uint64(nil), d.last[device.CounterCycles]...)
	instrs := append([]uint64(nil), d.last[device.CounterInstrs]...)
	d.mu.Unlock()

	var totalCycles, totalInstrs uint64
	for core := range cycles {
		if _, err := fmt.Fprintf(w, "PERF: core%d: instrs=%d, cycles=%d, IPC=%.3f\n",
			core, instrs[core], cycles[core], ipc(instrs[core], cycles[core])); err != nil {
			return err
		}
		totalCycles = max(totalCycles, cycles[core])
		totalInstrs += instrs[core]
	}
	_, err := fmt.Fprintf(w, "PERF: instrs=%d, cycles=%d, IPC=%.3f\n",
		totalInstrs, totalCycles, ipc(totalInstrs, totalCycles))
	return err
}

func ipc(instrs, cycles uint64) float64 {
	if cycles == 0 {
		return 0
	}
	return float64(instrs) / float64(cycles)
}
