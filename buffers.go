package tilereplay

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/tilereplay/device"
)

// role names a device buffer owned by a RenderContext. Each role holds at
// most one allocation at a time.
type role int

const (
	roleTile role = iota
	rolePrim
	roleTexture
	roleArgs
	roleColor
	roleDepth

	roleCount
)

var roleNames = [roleCount]string{
	roleTile:    "tile",
	rolePrim:    "primitive",
	roleTexture: "texture",
	roleArgs:    "argument",
	roleColor:   "color",
	roleDepth:   "depth",
}

func (r role) String() string {
	if r < 0 || r >= roleCount {
		return fmt.Sprintf("role(%d)", int(r))
	}
	return roleNames[r]
}

// flags returns how the device accesses buffers of the role.
func (r role) flags() device.MemFlags {
	if r == roleColor || r == roleDepth {
		return device.MemReadWrite
	}
	return device.MemRead
}

// buffers manages the per-role device allocations.
type buffers struct {
	dev   device.Device
	slots [roleCount]device.Buffer
	log   *slog.Logger
}

// provision replaces the buffer of r with a new allocation holding data
// and returns its device address. The address stays valid until the next
// provision or release of r.
func (b *buffers) provision(r role, data []byte) (uint64, error) {
	if len(data) == 0 {
		panic(fmt.Sprintf("tilereplay: empty %s buffer", r))
	}
	if err := b.release(r); err != nil {
		return 0, err
	}

	buf, err := b.dev.MemAlloc(uint64(len(data)), r.flags())
	if err != nil {
		return 0, fmt.Errorf("%w: allocate %s buffer: %w", ErrResource, r, err)
	}
	b.slots[r] = buf
	if err := b.dev.CopyToDev(buf, data, 0); err != nil {
		return 0, fmt.Errorf("%w: upload %s buffer: %w", ErrResource, r, err)
	}

	addr := buf.Address()
	b.log.Debug("buffer provisioned", "role", r.String(), "addr", fmt.Sprintf("%#x", addr), "size", len(data))
	return addr, nil
}

// get returns the current buffer of r, or nil.
func (b *buffers) get(r role) device.Buffer {
	return b.slots[r]
}

func (b *buffers) release(r role) error {
	buf := b.slots[r]
	if buf == nil {
		return nil
	}
	b.slots[r] = nil
	if err := b.dev.MemFree(buf); err != nil {
		return fmt.Errorf("%w: release %s buffer: %w", ErrResource, r, err)
	}
	return nil
}

// releaseAll frees every slot and returns the joined errors.
func (b *buffers) releaseAll() error {
	var errs []error
	for r := range roleCount {
		if err := b.release(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// blockAddress converts a byte address to the block address taken by
// address registers.
func blockAddress(addr uint64) (uint32, error) {
	if addr%device.BlockSize != 0 {
		return 0, fmt.Errorf("%w: address %#x not aligned to %d bytes", ErrResource, addr, device.BlockSize)
	}
	block := addr / device.BlockSize
	if block > 1<<32-1 {
		return 0, fmt.Errorf("%w: address %#x beyond the register range", ErrResource, addr)
	}
	return uint32(block), nil
}
