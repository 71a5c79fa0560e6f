package emu

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/tilereplay/device"
)

// ErrOutOfMemory is returned when an allocation exceeds the device memory.
var ErrOutOfMemory = errors.New("emu: out of device memory")

// memBase is the device address of the first allocation. Address zero is
// never handed out.
const memBase = 0x10000

// buffer is an allocation in device memory.
type buffer struct {
	dev   *Device
	addr  uint64
	size  uint64
	flags device.MemFlags
	freed bool
}

func (b *buffer) Address() uint64 { return b.addr }
func (b *buffer) Size() uint64    { return b.size }

// span is a free address range [addr, addr+size).
type span struct {
	addr, size uint64
}

// heap is a first-fit allocator over [memBase, memBase+capacity).
// Freed ranges are coalesced; backing storage grows with the high-water mark.
type heap struct {
	capacity uint64
	top      uint64 // first never-allocated address
	free     []span // sorted by address
	mem      []byte
	used     uint64
}

func newHeap(capacity uint64) *heap {
	return &heap{capacity: capacity, top: memBase}
}

// alloc reserves size bytes aligned to device.BlockSize.
func (h *heap) alloc(size uint64) (uint64, error) {
	size = alignUp(max(size, 1), device.BlockSize)

	for i, s := range h.free {
		if s.size < size {
			continue
		}
		addr := s.addr
		if s.size == size {
			h.free = slices.Delete(h.free, i, i+1)
		} else {
			h.free[i] = span{addr: s.addr + size, size: s.size - size}
		}
		h.used += size
		clear(h.bytes(addr, size))
		return addr, nil
	}

	if h.top+size > memBase+h.capacity {
		return 0, fmt.Errorf("%w: %d bytes requested, %d of %d in use", ErrOutOfMemory, size, h.used, h.capacity)
	}
	addr := h.top
	h.top += size
	if need := int(h.top - memBase); need > len(h.mem) {
		h.mem = append(h.mem, make([]byte, need-len(h.mem))...)
	}
	h.used += size
	clear(h.bytes(addr, size))
	return addr, nil
}

// release returns a range to the free list.
func (h *heap) release(addr, size uint64) {
	size = alignUp(max(size, 1), device.BlockSize)
	h.used -= size

	i, _ := slices.BinarySearchFunc(h.free, addr, func(s span, a uint64) int {
		switch {
		case s.addr < a:
			return -1
		case s.addr > a:
			return 1
		}
		return 0
	})
	h.free = slices.Insert(h.free, i, span{addr: addr, size: size})

	// Coalesce with the following and preceding spans.
	if i+1 < len(h.free) && h.free[i].addr+h.free[i].size == h.free[i+1].addr {
		h.free[i].size += h.free[i+1].size
		h.free = slices.Delete(h.free, i+1, i+2)
	}
	if i > 0 && h.free[i-1].addr+h.free[i-1].size == h.free[i].addr {
		h.free[i-1].size += h.free[i].size
		h.free = slices.Delete(h.free, i, i+1)
		i--
	}

	// Give the trailing span back to the bump region.
	if last := h.free[len(h.free)-1]; last.addr+last.size == h.top {
		h.top = last.addr
		h.free = h.free[:len(h.free)-1]
	}
}

// bytes returns the backing storage of [addr, addr+size).
func (h *heap) bytes(addr, size uint64) []byte {
	off := addr - memBase
	return h.mem[off : off+size : off+size]
}

// slice returns the backing storage from addr to the end of allocated memory,
// or nil when addr is outside it.
func (h *heap) slice(addr uint64) []byte {
	if addr < memBase || addr >= h.top {
		return nil
	}
	return h.mem[addr-memBase : h.top-memBase]
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
