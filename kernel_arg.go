package tilereplay

import (
	"github.com/gogpu/tilereplay/internal/abi"
	"github.com/gogpu/tilereplay/trace"
)

// packKernelArg derives the argument block of one draw call from the
// frame-wide base block.
//
// Modulation needs a vertex color, so it is dropped when color output is
// disabled. A texture replacing the color makes the vertex color unused,
// so color is turned off when texturing without modulation.
func packKernelArg(base *abi.KernelArg, st *trace.State, primAddr uint64) abi.KernelArg {
	arg := *base
	arg.DepthEnabled = st.DepthTest
	arg.ColorEnabled = st.ColorEnabled
	arg.TexEnabled = st.TexEnabled
	arg.TexModulate = st.TexEnabled && st.EnvMode == trace.EnvModulate
	arg.PrimAddr = primAddr

	if arg.TexModulate && !arg.ColorEnabled {
		arg.TexModulate = false
	}
	if arg.TexEnabled && arg.ColorEnabled && !arg.TexModulate {
		arg.ColorEnabled = false
	}
	return arg
}
