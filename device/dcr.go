package device

// Rasterizer configuration registers.
const (
	DCRRasterBase uint32 = 0x100

	DCRRasterTBufAddr   = DCRRasterBase + 0 // tile buffer block address
	DCRRasterTileCount  = DCRRasterBase + 1 // number of tiles in the tile buffer
	DCRRasterPBufAddr   = DCRRasterBase + 2 // primitive buffer block address
	DCRRasterPBufStride = DCRRasterBase + 3 // primitive record stride in bytes
	DCRRasterScissorX   = DCRRasterBase + 4 // right<<16 | left
	DCRRasterScissorY   = DCRRasterBase + 5 // top<<16 | bottom

	DCRRasterCount = 6
)

// Output merger configuration registers.
const (
	DCROMBase uint32 = 0x200

	DCROMCBufAddr         = DCROMBase + 0  // color buffer block address
	DCROMCBufPitch        = DCROMBase + 1  // color buffer row pitch in bytes
	DCROMCBufWriteMask    = DCROMBase + 2  // ARGB lane mask, bit 3 = A ... bit 0 = B
	DCROMZBufAddr         = DCROMBase + 3  // depth buffer block address
	DCROMZBufPitch        = DCROMBase + 4  // depth buffer row pitch in bytes
	DCROMDepthFunc        = DCROMBase + 5  // OMCompare* encoding
	DCROMDepthWriteMask   = DCROMBase + 6  // 0 or 1
	DCROMStencilFunc      = DCROMBase + 7  // OMCompare* encoding
	DCROMStencilZPass     = DCROMBase + 8  // OMStencilOp* applied when depth passes
	DCROMStencilZFail     = DCROMBase + 9  // OMStencilOp* applied when depth fails
	DCROMStencilFail      = DCROMBase + 10 // OMStencilOp* applied when stencil fails
	DCROMStencilRef       = DCROMBase + 11
	DCROMStencilMask      = DCROMBase + 12
	DCROMStencilWriteMask = DCROMBase + 13
	DCROMBlendMode        = DCROMBase + 14 // dst<<16 | src, OMBlendMode* encoding
	DCROMBlendFunc        = DCROMBase + 15 // dstA<<24 | dstRGB<<16 | srcA<<8 | srcRGB
	DCROMBlendConst       = DCROMBase + 16 // A8R8G8B8 constant color

	DCROMCount = 17
)

// Texture unit configuration registers. Writes apply to the stage selected
// by DCRTexStage.
const (
	DCRTexBase uint32 = 0x300

	DCRTexStage   = DCRTexBase + 0
	DCRTexAddr    = DCRTexBase + 1 // texture block address
	DCRTexLogDim  = DCRTexBase + 2 // logHeight<<16 | logWidth
	DCRTexFormat  = DCRTexBase + 3 // TexFormat* encoding
	DCRTexFilter  = DCRTexBase + 4 // TexFilter* encoding
	DCRTexWrap    = DCRTexBase + 5 // wrapV<<16 | wrapU
	DCRTexMipBase = DCRTexBase + 6 // first mip offset register

	DCRTexCount = 6 + TexLODMax
)

// TexLODMax is the number of mip levels a texture stage can address.
const TexLODMax = 12

// DCRTexMipOff returns the register holding the byte offset of mip level lod.
// lod must be below TexLODMax.
func DCRTexMipOff(lod int) uint32 {
	if lod < 0 || lod >= TexLODMax {
		panic("device: mip level out of range")
	}
	return DCRTexMipBase + uint32(lod)
}

// Unit identifies the pipeline unit a register belongs to.
type Unit int

const (
	UnitNone Unit = iota
	UnitRaster
	UnitOM
	UnitTex
)

// UnitOf returns the unit of addr and the register's index within that unit.
func UnitOf(addr uint32) (Unit, int) {
	switch {
	case addr >= DCRRasterBase && addr < DCRRasterBase+DCRRasterCount:
		return UnitRaster, int(addr - DCRRasterBase)
	case addr >= DCROMBase && addr < DCROMBase+DCROMCount:
		return UnitOM, int(addr - DCROMBase)
	case addr >= DCRTexBase && addr < DCRTexBase+DCRTexCount:
		return UnitTex, int(addr - DCRTexBase)
	default:
		return UnitNone, 0
	}
}
