package tilereplay

import (
	"fmt"

	"github.com/gogpu/tilereplay/device"
	"github.com/gogpu/tilereplay/internal/abi"
)

// RegisterWriter programs device configuration registers.
type RegisterWriter interface {
	WriteDCR(addr, value uint32) error
}

// hardwareWriter writes registers to the device only.
type hardwareWriter struct {
	dev device.Device
}

func (w hardwareWriter) WriteDCR(addr, value uint32) error {
	if err := w.dev.WriteDCR(addr, value); err != nil {
		return fmt.Errorf("%w: write DCR %#x: %w", ErrResource, addr, err)
	}
	return nil
}

// mirroredWriter writes registers to the device and records them in the
// shadow arrays of the argument block, for kernels running a unit in
// software.
type mirroredWriter struct {
	hw  hardwareWriter
	arg *abi.KernelArg
}

func (w mirroredWriter) WriteDCR(addr, value uint32) error {
	if err := w.hw.WriteDCR(addr, value); err != nil {
		return err
	}
	w.arg.Record(addr, value)
	return nil
}

// newRegisterWriter returns the writer for the fallback flags of arg.
func newRegisterWriter(dev device.Device, arg *abi.KernelArg) RegisterWriter {
	hw := hardwareWriter{dev: dev}
	if arg.SwRast || arg.SwTex || arg.SwOM {
		return mirroredWriter{hw: hw, arg: arg}
	}
	return hw
}
