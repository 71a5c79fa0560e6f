package tilereplay

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gogpu/tilereplay/device"
)

// event is one recorded device call.
type event struct {
	op    string // alloc, free, copy, dcr, upload, start, wait, query, perf, close
	addr  uint64 // buffer address, or register address for dcr
	value uint32 // register value
	data  []byte // copied bytes
}

type fakeBuffer struct {
	addr, size uint64
}

func (b *fakeBuffer) Address() uint64 { return b.addr }
func (b *fakeBuffer) Size() uint64    { return b.size }

// fakeDevice records every call in order. Allocations are bump allocated
// from base with the given alignment.
type fakeDevice struct {
	events []event
	caps   map[device.Cap]uint64
	next   uint64
	align  uint64
	mem    map[uint64][]byte

	waitErr error
	closed  bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		caps: map[device.Cap]uint64{
			device.CapISAFlags:   device.ISAExtGraphics,
			device.CapNumCores:   2,
			device.CapNumWarps:   2,
			device.CapNumThreads: 3,
		},
		next:  0x1000,
		align: device.BlockSize,
		mem:   make(map[uint64][]byte),
	}
}

func (d *fakeDevice) record(e event) { d.events = append(d.events, e) }

func (d *fakeDevice) Caps(id device.Cap) (uint64, error) {
	v, ok := d.caps[id]
	if !ok {
		return 0, device.ErrUnknownCap
	}
	return v, nil
}

func (d *fakeDevice) MemAlloc(size uint64, _ device.MemFlags) (device.Buffer, error) {
	b := &fakeBuffer{addr: d.next, size: size}
	d.next += (size + d.align - 1) / d.align * d.align
	d.mem[b.addr] = make([]byte, size)
	d.record(event{op: "alloc", addr: b.addr})
	return b, nil
}

func (d *fakeDevice) MemFree(buf device.Buffer) error {
	if buf == nil {
		return nil
	}
	delete(d.mem, buf.Address())
	d.record(event{op: "free", addr: buf.Address()})
	return nil
}

func (d *fakeDevice) CopyToDev(buf device.Buffer, src []byte, offset uint64) error {
	copy(d.mem[buf.Address()][offset:], src)
	d.record(event{op: "copy", addr: buf.Address(), data: append([]byte(nil), src...)})
	return nil
}

func (d *fakeDevice) CopyFromDev(dst []byte, buf device.Buffer, offset uint64) error {
	copy(dst, d.mem[buf.Address()][offset:])
	return nil
}

func (d *fakeDevice) WriteDCR(addr, value uint32) error {
	d.record(event{op: "dcr", addr: uint64(addr), value: value})
	return nil
}

func (d *fakeDevice) UploadProgram(image []byte) (device.Buffer, error) {
	buf, err := d.MemAlloc(uint64(len(image)), device.MemRead)
	if err != nil {
		return nil, err
	}
	d.record(event{op: "upload", addr: buf.Address()})
	return buf, nil
}

func (d *fakeDevice) Start(_ context.Context, program, args device.Buffer) error {
	d.record(event{op: "start", addr: args.Address()})
	return nil
}

func (d *fakeDevice) ReadyWait(context.Context, time.Duration) error {
	d.record(event{op: "wait"})
	return d.waitErr
}

func (d *fakeDevice) QueryCounter(id device.Counter, core int) (uint64, error) {
	d.record(event{op: "query"})
	if id == device.CounterCycles {
		return 200, nil
	}
	return 100, nil
}

func (d *fakeDevice) DumpPerf(w io.Writer) error {
	d.record(event{op: "perf"})
	_, err := fmt.Fprintln(w, "PERF: fake")
	return err
}

func (d *fakeDevice) Close() error {
	d.closed = true
	d.record(event{op: "close"})
	return nil
}

// since returns the events recorded after the first n.
func (d *fakeDevice) since(n int) []event {
	return d.events[n:]
}

// dcrs returns the register writes among events in order.
func dcrs(events []event) []event {
	var out []event
	for _, e := range events {
		if e.op == "dcr" {
			out = append(out, e)
		}
	}
	return out
}

// dcrValue returns the last value written to addr among events.
func dcrValue(events []event, addr uint32) (uint32, bool) {
	v, ok := uint32(0), false
	for _, e := range events {
		if e.op == "dcr" && e.addr == uint64(addr) {
			v, ok = e.value, true
		}
	}
	return v, ok
}

// index returns the position of the first event matching op and addr, or -1.
func index(events []event, op string, addr uint64) int {
	for i, e := range events {
		if e.op == op && e.addr == addr {
			return i
		}
	}
	return -1
}

var _ device.Device = (*fakeDevice)(nil)
