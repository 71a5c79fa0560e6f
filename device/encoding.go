package device

// Comparison function encodings for depth and stencil tests.
const (
	OMCompareNever uint32 = iota
	OMCompareLess
	OMCompareEqual
	OMCompareLessEqual
	OMCompareGreater
	OMCompareNotEqual
	OMCompareGreaterEqual
	OMCompareAlways
)

// Stencil operation encodings.
const (
	OMStencilOpKeep uint32 = iota
	OMStencilOpZero
	OMStencilOpReplace
	OMStencilOpIncr
	OMStencilOpDecr
	OMStencilOpInvert
	OMStencilOpIncrWrap
	OMStencilOpDecrWrap
)

// OMStencilMask is the full stencil mask.
const OMStencilMask uint32 = 0xff

// Blend equation encodings.
const (
	OMBlendModeAdd uint32 = iota
	OMBlendModeSub
	OMBlendModeRevSub
	OMBlendModeMin
	OMBlendModeMax
)

// Blend factor encodings.
const (
	OMBlendFuncZero uint32 = iota
	OMBlendFuncOne
	OMBlendFuncSrcRGB
	OMBlendFuncOneMinusSrcRGB
	OMBlendFuncDstRGB
	OMBlendFuncOneMinusDstRGB
	OMBlendFuncSrcA
	OMBlendFuncOneMinusSrcA
	OMBlendFuncDstA
	OMBlendFuncOneMinusDstA
	OMBlendFuncConstRGB
	OMBlendFuncOneMinusConstRGB
	OMBlendFuncConstA
	OMBlendFuncOneMinusConstA
	OMBlendFuncAlphaSat
)

// Texel format encodings.
const (
	TexFormatA8R8G8B8 uint32 = iota
	TexFormatR5G6B5
	TexFormatA1R5G5B5
	TexFormatA4R4G4B4
	TexFormatA8L8
	TexFormatL8
	TexFormatA8
)

// Texture filter encodings.
const (
	TexFilterPoint uint32 = iota
	TexFilterBilinear
)

// Texture wrap encodings.
const (
	TexWrapClamp uint32 = iota
	TexWrapRepeat
	TexWrapMirror
)
