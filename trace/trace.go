// Package trace holds captured 3-D rendering traces: ordered draw calls with
// their geometry and pipeline state, plus the textures they sample.
//
// Traces are immutable once loaded. Use Load or Decode to read one and Save
// or Encode to write one.
package trace

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/tilereplay/image"
)

// ErrInvalid is returned when a trace references missing data.
var ErrInvalid = errors.New("trace: invalid trace")

// NoTexture is the TextureID of draw calls that sample no texture.
const NoTexture int32 = -1

// StencilOp is the operation applied to the stencil value.
type StencilOp uint8

const (
	StencilKeep StencilOp = iota
	StencilZero
	StencilReplace
	StencilIncr
	StencilDecr
	StencilInvert
	StencilIncrWrap
	StencilDecrWrap

	stencilOpCount
)

// String returns the operation name.
func (op StencilOp) String() string {
	switch op {
	case StencilKeep:
		return "keep"
	case StencilZero:
		return "zero"
	case StencilReplace:
		return "replace"
	case StencilIncr:
		return "incr"
	case StencilDecr:
		return "decr"
	case StencilInvert:
		return "invert"
	case StencilIncrWrap:
		return "incr-wrap"
	case StencilDecrWrap:
		return "decr-wrap"
	default:
		return fmt.Sprintf("StencilOp(%d)", uint8(op))
	}
}

// EnvMode selects how a sampled texel combines with the vertex color.
type EnvMode uint8

const (
	// EnvReplace outputs the texel.
	EnvReplace EnvMode = iota

	// EnvModulate multiplies the texel by the vertex color.
	EnvModulate

	envModeCount
)

// String returns the mode name.
func (m EnvMode) String() string {
	switch m {
	case EnvReplace:
		return "replace"
	case EnvModulate:
		return "modulate"
	default:
		return fmt.Sprintf("EnvMode(%d)", uint8(m))
	}
}

// State is the abstract pipeline state of one draw call.
type State struct {
	DepthTest  bool
	DepthFunc  gputypes.CompareFunction
	DepthWrite bool

	StencilTest      bool
	StencilFunc      gputypes.CompareFunction
	StencilFail      StencilOp
	StencilZFail     StencilOp
	StencilZPass     StencilOp
	StencilRef       uint8
	StencilMask      uint8
	StencilWriteMask uint8

	Blend    bool
	BlendSrc gputypes.BlendFactor
	BlendDst gputypes.BlendFactor

	// ColorWriteMask enables color lanes: bit 3 = A, bit 2 = R, bit 1 = G, bit 0 = B.
	ColorWriteMask uint8

	// ColorEnabled writes interpolated vertex colors.
	ColorEnabled bool

	TexEnabled bool
	MinFilter  gputypes.FilterMode
	MagFilter  gputypes.FilterMode
	AddressU   gputypes.AddressMode
	AddressV   gputypes.AddressMode
	EnvMode    EnvMode
}

// DefaultState returns the state of a draw call with every test disabled
// and all color lanes written.
func DefaultState() State {
	return State{
		DepthFunc:        gputypes.CompareFunctionLess,
		DepthWrite:       true,
		StencilFunc:      gputypes.CompareFunctionAlways,
		StencilMask:      0xff,
		StencilWriteMask: 0xff,
		BlendSrc:         gputypes.BlendFactorOne,
		BlendDst:         gputypes.BlendFactorZero,
		ColorWriteMask:   0xf,
		ColorEnabled:     true,
		MinFilter:        gputypes.FilterModeNearest,
		MagFilter:        gputypes.FilterModeNearest,
		AddressU:         gputypes.AddressModeClampToEdge,
		AddressV:         gputypes.AddressModeClampToEdge,
		EnvMode:          EnvModulate,
	}
}

// Viewport maps normalized device coordinates to the render target.
type Viewport struct {
	X, Y          float32
	Width, Height float32
	Near, Far     float32
}

// Vertex is a post-transform vertex.
type Vertex struct {
	// Pos is the clip-space position.
	Pos [4]float32

	// Color is a packed A8R8G8B8 color.
	Color uint32

	// UV is the texture coordinate.
	UV [2]float32
}

// Primitive is a triangle given by three vertex indices.
type Primitive [3]uint32

// DrawCall is one captured draw.
type DrawCall struct {
	Vertices   []Vertex
	Primitives []Primitive
	Viewport   Viewport
	State      State

	// TextureID indexes Trace.Textures, or is NoTexture.
	TextureID int32
}

// Texture is a tightly packed texture image.
type Texture struct {
	Format image.Format
	Width  int
	Height int
	Pixels []byte
}

// Pitch returns the byte distance between texture rows.
func (t *Texture) Pitch() int {
	return t.Format.RowBytes(t.Width)
}

// Trace is a captured sequence of draw calls.
type Trace struct {
	DrawCalls []DrawCall
	Textures  []Texture
}

// Texture returns the texture sampled by dc, or nil when it samples none.
func (t *Trace) Texture(dc *DrawCall) *Texture {
	if dc.TextureID < 0 || int(dc.TextureID) >= len(t.Textures) {
		return nil
	}
	return &t.Textures[dc.TextureID]
}

// Validate checks that every reference inside the trace resolves.
func (t *Trace) Validate() error {
	for i := range t.Textures {
		tex := &t.Textures[i]
		if !tex.Format.IsValid() {
			return fmt.Errorf("%w: texture %d: format %d", ErrInvalid, i, tex.Format)
		}
		if tex.Width <= 0 || tex.Height <= 0 {
			return fmt.Errorf("%w: texture %d: size %dx%d", ErrInvalid, i, tex.Width, tex.Height)
		}
		if want := tex.Format.ImageBytes(tex.Width, tex.Height); len(tex.Pixels) != want {
			return fmt.Errorf("%w: texture %d: have %d bytes, want %d", ErrInvalid, i, len(tex.Pixels), want)
		}
	}
	for i := range t.DrawCalls {
		dc := &t.DrawCalls[i]
		for j, p := range dc.Primitives {
			for _, v := range p {
				if int(v) >= len(dc.Vertices) {
					return fmt.Errorf("%w: draw %d: primitive %d: vertex %d of %d", ErrInvalid, i, j, v, len(dc.Vertices))
				}
			}
		}
		if dc.State.TexEnabled && t.Texture(dc) == nil {
			return fmt.Errorf("%w: draw %d: texture %d not found", ErrInvalid, i, dc.TextureID)
		}
	}
	return nil
}

// Stats summarizes a trace.
type Stats struct {
	DrawCalls  int
	Vertices   int
	Primitives int
	Textures   int

	DepthTest   bool
	StencilTest bool
	Blend       bool
	Textured    bool
}

// Stats returns a summary of the trace.
func (t *Trace) Stats() Stats {
	s := Stats{
		DrawCalls: len(t.DrawCalls),
		Textures:  len(t.Textures),
	}
	for i := range t.DrawCalls {
		dc := &t.DrawCalls[i]
		s.Vertices += len(dc.Vertices)
		s.Primitives += len(dc.Primitives)
		s.DepthTest = s.DepthTest || dc.State.DepthTest
		s.StencilTest = s.StencilTest || dc.State.StencilTest
		s.Blend = s.Blend || dc.State.Blend
		s.Textured = s.Textured || dc.State.TexEnabled
	}
	return s
}

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("draw_calls", s.DrawCalls),
		slog.Int("vertices", s.Vertices),
		slog.Int("primitives", s.Primitives),
		slog.Int("textures", s.Textures),
		slog.Bool("depth", s.DepthTest),
		slog.Bool("stencil", s.StencilTest),
		slog.Bool("blend", s.Blend),
		slog.Bool("textured", s.Textured),
	)
}
