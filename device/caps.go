package device

// Cap identifies a device capability queried with Device.Caps.
type Cap int

const (
	// CapVersion is the device version.
	CapVersion Cap = iota

	// CapNumCores is the number of cores.
	CapNumCores

	// CapNumWarps is the number of warps per core.
	CapNumWarps

	// CapNumThreads is the number of threads per warp.
	CapNumThreads

	// CapGlobalMemSize is the device memory size in bytes.
	CapGlobalMemSize

	// CapISAFlags is the ISA extension bit set (see ISAFlags).
	CapISAFlags
)

// String returns the capability name.
func (c Cap) String() string {
	switch c {
	case CapVersion:
		return "Version"
	case CapNumCores:
		return "NumCores"
	case CapNumWarps:
		return "NumWarps"
	case CapNumThreads:
		return "NumThreads"
	case CapGlobalMemSize:
		return "GlobalMemSize"
	case CapISAFlags:
		return "ISAFlags"
	default:
		return "Unknown"
	}
}

// ISA extension bits reported by CapISAFlags.
const (
	ISAExtRaster uint64 = 1 << 0
	ISAExtTex    uint64 = 1 << 1
	ISAExtOM     uint64 = 1 << 2

	// ISAExtGraphics is the set of extensions a replay requires.
	ISAExtGraphics = ISAExtRaster | ISAExtTex | ISAExtOM
)

// Counter identifies a performance counter.
type Counter int

const (
	// CounterCycles counts elapsed device cycles (MCYCLE).
	CounterCycles Counter = iota

	// CounterInstrs counts retired instructions (MINSTRET).
	CounterInstrs
)

// String returns the counter name.
func (c Counter) String() string {
	switch c {
	case CounterCycles:
		return "mcycle"
	case CounterInstrs:
		return "minstret"
	default:
		return "unknown"
	}
}
