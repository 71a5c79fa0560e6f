// Package device defines the driver API of a tile-based GPU made of a
// rasterizer, a texture unit and an output merger.
//
// The host programs the pipeline through device configuration registers
// (DCRs), moves data with explicit copies, uploads a compiled program and
// launches it with an argument buffer. Every call is synchronous; any
// non-nil error is considered fatal by callers.
//
// Concrete devices register themselves by name (see Register) and are
// opened with Open:
//
//	dev, err := device.Open("emu")
//	if err != nil {
//	    return err
//	}
//	defer dev.Close()
package device

import (
	"context"
	"errors"
	"io"
	"time"
)

// Common device errors.
var (
	// ErrNotAvailable is returned by Open when no device of the requested name is registered.
	ErrNotAvailable = errors.New("device: not available")

	// ErrClosed is returned when operating on a closed device.
	ErrClosed = errors.New("device: closed")

	// ErrBusy is returned by Start while a previous launch has not been awaited.
	ErrBusy = errors.New("device: busy")

	// ErrNotStarted is returned by ReadyWait when nothing was launched.
	ErrNotStarted = errors.New("device: not started")

	// ErrTimeout is returned by ReadyWait when the device did not complete in time.
	ErrTimeout = errors.New("device: timeout")

	// ErrInvalidBuffer is returned for buffers not owned by the device or already freed.
	ErrInvalidBuffer = errors.New("device: invalid buffer")

	// ErrOutOfRange is returned for copies that exceed a buffer's size.
	ErrOutOfRange = errors.New("device: copy out of range")

	// ErrUnknownCap is returned by Caps for unrecognized capability ids.
	ErrUnknownCap = errors.New("device: unknown capability")

	// ErrInvalidProgram is returned by UploadProgram for unreadable program images.
	ErrInvalidProgram = errors.New("device: invalid program")
)

// BlockSize is the device's minimum addressable transfer granularity in bytes.
// Registers holding memory addresses take block addresses (byte address / BlockSize).
const BlockSize = 64

// MaxTimeout is the longest a host is expected to wait for one launch.
const MaxTimeout = 24 * time.Hour

// MemFlags describe how the device accesses an allocation.
type MemFlags uint32

const (
	// MemRead marks memory read by the device.
	MemRead MemFlags = 1 << iota

	// MemWrite marks memory written by the device.
	MemWrite

	// MemReadWrite marks memory both read and written by the device.
	MemReadWrite = MemRead | MemWrite
)

// Buffer is a device memory allocation.
type Buffer interface {
	// Address returns the device byte address of the allocation.
	// It is aligned to BlockSize.
	Address() uint64

	// Size returns the allocation size in bytes.
	Size() uint64
}

// Device is the driver API consumed by the replay engine.
type Device interface {
	// Caps returns the value of a device capability.
	Caps(id Cap) (uint64, error)

	// MemAlloc allocates size bytes of device memory.
	MemAlloc(size uint64, flags MemFlags) (Buffer, error)

	// MemFree releases an allocation. Freeing nil is a no-op.
	MemFree(buf Buffer) error

	// CopyToDev copies src into buf starting at offset.
	CopyToDev(buf Buffer, src []byte, offset uint64) error

	// CopyFromDev copies len(dst) bytes of buf starting at offset into dst.
	CopyFromDev(dst []byte, buf Buffer, offset uint64) error

	// WriteDCR writes a device configuration register.
	WriteDCR(addr uint32, value uint32) error

	// UploadProgram loads a compiled program image into device memory.
	UploadProgram(image []byte) (Buffer, error)

	// Start launches program with args as its argument buffer.
	// Registers are latched at launch.
	Start(ctx context.Context, program, args Buffer) error

	// ReadyWait blocks until the last launch completes or timeout elapses.
	ReadyWait(ctx context.Context, timeout time.Duration) error

	// QueryCounter returns a performance counter of the last launch.
	// A negative core aggregates all cores: instructions are summed and
	// cycles take the slowest core.
	QueryCounter(id Counter, core int) (uint64, error)

	// DumpPerf writes a human-readable performance report.
	DumpPerf(w io.Writer) error

	// Close releases all device resources.
	Close() error
}
