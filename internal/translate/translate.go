// Package translate maps abstract pipeline state to device register encodings.
//
// Every function is pure. Values outside an enumeration are programming
// errors and panic.
package translate

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/tilereplay/device"
	"github.com/gogpu/tilereplay/image"
	"github.com/gogpu/tilereplay/trace"
)

// Register values used when a feature is disabled.
const (
	// DepthFuncDisabled passes every fragment.
	DepthFuncDisabled = device.OMCompareAlways

	StencilFuncDisabled      = device.OMCompareAlways
	StencilOpDisabled        = device.OMStencilOpKeep
	StencilRefDisabled       = 0
	StencilMaskDisabled      = device.OMStencilMask
	StencilWriteMaskDisabled = 0
)

// BlendModeDisabled is the BLEND_MODE value with blending off: ADD for
// both source and destination.
const BlendModeDisabled = device.OMBlendModeAdd<<16 | device.OMBlendModeAdd

// BlendFuncDisabled is the BLEND_FUNC value with blending off: source
// factors ONE, destination factors ZERO.
const BlendFuncDisabled = device.OMBlendFuncZero<<24 | device.OMBlendFuncZero<<16 |
	device.OMBlendFuncOne<<8 | device.OMBlendFuncOne

// Compare returns the encoding of a comparison function.
func Compare(f gputypes.CompareFunction) uint32 {
	switch f {
	case gputypes.CompareFunctionNever:
		return device.OMCompareNever
	case gputypes.CompareFunctionLess:
		return device.OMCompareLess
	case gputypes.CompareFunctionEqual:
		return device.OMCompareEqual
	case gputypes.CompareFunctionLessEqual:
		return device.OMCompareLessEqual
	case gputypes.CompareFunctionGreater:
		return device.OMCompareGreater
	case gputypes.CompareFunctionNotEqual:
		return device.OMCompareNotEqual
	case gputypes.CompareFunctionGreaterEqual:
		return device.OMCompareGreaterEqual
	case gputypes.CompareFunctionAlways:
		return device.OMCompareAlways
	}
	panic(fmt.Sprintf("translate: unknown compare function %v", f))
}

// StencilOp returns the encoding of a stencil operation.
func StencilOp(op trace.StencilOp) uint32 {
	switch op {
	case trace.StencilKeep:
		return device.OMStencilOpKeep
	case trace.StencilZero:
		return device.OMStencilOpZero
	case trace.StencilReplace:
		return device.OMStencilOpReplace
	case trace.StencilIncr:
		return device.OMStencilOpIncr
	case trace.StencilDecr:
		return device.OMStencilOpDecr
	case trace.StencilInvert:
		return device.OMStencilOpInvert
	case trace.StencilIncrWrap:
		return device.OMStencilOpIncrWrap
	case trace.StencilDecrWrap:
		return device.OMStencilOpDecrWrap
	}
	panic(fmt.Sprintf("translate: unknown stencil op %v", op))
}

// BlendFunc returns the encoding of a blend factor. The same encoding is
// used for the color and alpha lanes.
func BlendFunc(f gputypes.BlendFactor) uint32 {
	switch f {
	case gputypes.BlendFactorZero:
		return device.OMBlendFuncZero
	case gputypes.BlendFactorOne:
		return device.OMBlendFuncOne
	case gputypes.BlendFactorSrc:
		return device.OMBlendFuncSrcRGB
	case gputypes.BlendFactorOneMinusSrc:
		return device.OMBlendFuncOneMinusSrcRGB
	case gputypes.BlendFactorSrcAlpha:
		return device.OMBlendFuncSrcA
	case gputypes.BlendFactorOneMinusSrcAlpha:
		return device.OMBlendFuncOneMinusSrcA
	case gputypes.BlendFactorDst:
		return device.OMBlendFuncDstRGB
	case gputypes.BlendFactorOneMinusDst:
		return device.OMBlendFuncOneMinusDstRGB
	case gputypes.BlendFactorDstAlpha:
		return device.OMBlendFuncDstA
	case gputypes.BlendFactorOneMinusDstAlpha:
		return device.OMBlendFuncOneMinusDstA
	case gputypes.BlendFactorSrcAlphaSaturated:
		return device.OMBlendFuncAlphaSat
	case gputypes.BlendFactorConstant:
		return device.OMBlendFuncConstRGB
	case gputypes.BlendFactorOneMinusConstant:
		return device.OMBlendFuncOneMinusConstRGB
	}
	panic(fmt.Sprintf("translate: unknown blend factor %v", f))
}

// BlendFuncWord packs source and destination factors into a BLEND_FUNC value.
func BlendFuncWord(src, dst gputypes.BlendFactor) uint32 {
	s, d := BlendFunc(src), BlendFunc(dst)
	return d<<24 | d<<16 | s<<8 | s
}

// TexFormat returns the encoding of a texel format.
func TexFormat(f image.Format) uint32 {
	switch f {
	case image.FormatA8R8G8B8:
		return device.TexFormatA8R8G8B8
	case image.FormatR5G6B5:
		return device.TexFormatR5G6B5
	case image.FormatA1R5G5B5:
		return device.TexFormatA1R5G5B5
	case image.FormatA4R4G4B4:
		return device.TexFormatA4R4G4B4
	case image.FormatA8L8:
		return device.TexFormatA8L8
	case image.FormatL8:
		return device.TexFormatL8
	case image.FormatA8:
		return device.TexFormatA8
	}
	panic(fmt.Sprintf("translate: unknown texture format %v", f))
}

// TexFilter returns the filter encoding for a min/mag pair: bilinear when
// either filter is linear, point otherwise.
func TexFilter(minFilter, magFilter gputypes.FilterMode) uint32 {
	linear := false
	for _, f := range [...]gputypes.FilterMode{minFilter, magFilter} {
		switch f {
		case gputypes.FilterModeNearest:
		case gputypes.FilterModeLinear:
			linear = true
		default:
			panic(fmt.Sprintf("translate: unknown filter mode %v", f))
		}
	}
	if linear {
		return device.TexFilterBilinear
	}
	return device.TexFilterPoint
}

// TexWrap returns the encoding of an address mode.
func TexWrap(m gputypes.AddressMode) uint32 {
	switch m {
	case gputypes.AddressModeClampToEdge:
		return device.TexWrapClamp
	case gputypes.AddressModeRepeat:
		return device.TexWrapRepeat
	case gputypes.AddressModeMirrorRepeat:
		return device.TexWrapMirror
	}
	panic(fmt.Sprintf("translate: unknown address mode %v", m))
}

// TexWrapWord packs the per-axis wrap modes into a TEX_WRAP value.
func TexWrapWord(u, v gputypes.AddressMode) uint32 {
	return TexWrap(v)<<16 | TexWrap(u)
}
