package abi

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/gogpu/tilereplay/device"
)

// KernelArg is the argument block of one draw3d launch.
//
// The device reads it from the argument buffer at launch. When a software
// fallback flag is set the kernel reads the corresponding unit's
// configuration from the shadow register arrays instead of the hardware
// register file.
type KernelArg struct {
	LogNumTasks uint32

	SwRast bool
	SwTex  bool
	SwOM   bool

	DepthEnabled bool
	ColorEnabled bool
	TexEnabled   bool
	TexModulate  bool

	_ [5]byte

	PrimAddr uint64

	RasterDCRs [device.DCRRasterCount]uint32
	OMDCRs     [device.DCROMCount]uint32
	TexDCRs    [device.DCRTexCount]uint32
}

// KernelArgSize is the size of an encoded KernelArg in bytes.
const KernelArgSize = 4 + 7 + 5 + 8 + 4*(device.DCRRasterCount+device.DCROMCount+device.DCRTexCount)

// Record stores a register write in the shadow arrays.
// Writes to addresses outside the graphics units are ignored.
func (a *KernelArg) Record(addr, value uint32) {
	unit, index := device.UnitOf(addr)
	switch unit {
	case device.UnitRaster:
		a.RasterDCRs[index] = value
	case device.UnitOM:
		a.OMDCRs[index] = value
	case device.UnitTex:
		a.TexDCRs[index] = value
	}
}

// Raster returns the shadow value of a raster register.
func (a *KernelArg) Raster(addr uint32) uint32 { return a.RasterDCRs[addr-device.DCRRasterBase] }

// OM returns the shadow value of an output merger register.
func (a *KernelArg) OM(addr uint32) uint32 { return a.OMDCRs[addr-device.DCROMBase] }

// Tex returns the shadow value of a texture register.
func (a *KernelArg) Tex(addr uint32) uint32 { return a.TexDCRs[addr-device.DCRTexBase] }

// MarshalBinary encodes the argument block.
func (a *KernelArg) MarshalBinary() ([]byte, error) {
	return encodeStruct(a)
}

// UnmarshalBinary decodes an argument block produced by MarshalBinary.
func (a *KernelArg) UnmarshalBinary(b []byte) error {
	if len(b) < KernelArgSize {
		return fmt.Errorf("%w: kernel arg needs %d bytes, have %d", ErrShortBuffer, KernelArgSize, len(b))
	}
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, a); err != nil {
		return fmt.Errorf("abi: decode kernel arg: %w", err)
	}
	return nil
}
