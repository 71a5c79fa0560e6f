// Package tilereplay replays captured 3-D draw call traces on a tile-based
// GPU made of a rasterizer, a texture unit and an output merger.
//
// # Overview
//
// Each draw call of a trace is binned into screen tiles, its geometry and
// texture are uploaded to device memory, its pipeline state is translated
// into device configuration register (DCR) writes, and a kernel is launched
// and awaited while performance counters are collected. The final color
// buffer is saved as an image and optionally compared with a reference.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/tilereplay"
//	    "github.com/gogpu/tilereplay/device/emu"
//	)
//
//	cfg := tilereplay.DefaultConfig()
//	cfg.Trace = "triangle.gtrc"
//	cfg.Program = emu.Program(emu.Draw3D)
//	res, err := tilereplay.Run(ctx, cfg)
//	os.Exit(tilereplay.ExitCode(err))
//
// # Architecture
//
// The package is organized into:
//   - Run: loads the trace, opens the device, replays, saves and compares
//   - RenderContext: frame-wide device state and the per-draw protocol
//   - trace: trace model and file format
//   - device: driver API and backend registry; device/emu is the software device
//   - image: texel formats, mipmaps, image files
//   - internal/binning, internal/translate, internal/abi: binning, register
//     encodings and the kernel argument layout shared with the device
//
// # Coordinate System
//
// Screen coordinates follow the device:
//   - Origin (0,0) at bottom-left
//   - X increases right
//   - Y increases up
//
// Saved images are flipped so that they read top row first.
//
// # Software Fallbacks
//
// Config.SwRast, SwTex and SwOM ask the kernel to emulate a unit. Registers
// are then also recorded in the kernel argument block, where the kernel
// reads them instead of the hardware register file.
package tilereplay

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
