package trace

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/tilereplay/image"
)

// Codec errors.
var (
	// ErrBadMagic is returned when the stream is not a trace.
	ErrBadMagic = errors.New("trace: bad magic")

	// ErrVersion is returned for traces written by an unsupported encoder.
	ErrVersion = errors.New("trace: unsupported version")

	// ErrCorrupt is returned for malformed trace contents.
	ErrCorrupt = errors.New("trace: corrupt trace")
)

var magic = [4]byte{'G', 'T', 'R', 'C'}

const version = 1

// maxElements bounds every count read from a stream.
const maxElements = 1 << 24

// A trace stream is defined as:
//
//	header {
//	    magic       [4]byte   // 'G', 'T', 'R', 'C'
//	    version     uint32
//	    numDraws    uint32
//	    numTextures uint32
//	}
//	texture[numTextures] {
//	    format, width, height, size uint32
//	    pixels      [size]byte
//	}
//	draw[numDraws] {
//	    viewport    [6]float32   // x, y, width, height, near, far
//	    state       wireState
//	    textureID   int32
//	    numVertices, numPrimitives uint32
//	    vertices    [numVertices]{pos [4]float32; color uint32; uv [2]float32}
//	    primitives  [numPrimitives][3]uint32
//	}
//
// All fields are little-endian. Enumerations are stored as the trace's own
// codes, independent of the gputypes numbering.
type header struct {
	Magic       [4]byte
	Version     uint32
	NumDraws    uint32
	NumTextures uint32
}

type wireTexture struct {
	Format, Width, Height, Size uint32
}

const (
	flagDepthTest = 1 << iota
	flagDepthWrite
	flagStencilTest
	flagBlend
	flagColor
	flagTexture
)

type wireState struct {
	Flags            uint8
	DepthFunc        uint8
	StencilFunc      uint8
	StencilFail      uint8
	StencilZFail     uint8
	StencilZPass     uint8
	StencilRef       uint8
	StencilMask      uint8
	StencilWriteMask uint8
	BlendSrc         uint8
	BlendDst         uint8
	ColorWriteMask   uint8
	MinFilter        uint8
	MagFilter        uint8
	AddressU         uint8
	AddressV         uint8
	EnvMode          uint8
	_                [3]byte
}

type wireDraw struct {
	Viewport      [6]float32
	State         wireState
	TextureID     int32
	NumVertices   uint32
	NumPrimitives uint32
}

// Code tables. The index is the stored code.
var (
	compareCodes = []gputypes.CompareFunction{
		gputypes.CompareFunctionNever,
		gputypes.CompareFunctionLess,
		gputypes.CompareFunctionEqual,
		gputypes.CompareFunctionLessEqual,
		gputypes.CompareFunctionGreater,
		gputypes.CompareFunctionNotEqual,
		gputypes.CompareFunctionGreaterEqual,
		gputypes.CompareFunctionAlways,
	}
	blendCodes = []gputypes.BlendFactor{
		gputypes.BlendFactorZero,
		gputypes.BlendFactorOne,
		gputypes.BlendFactorSrc,
		gputypes.BlendFactorOneMinusSrc,
		gputypes.BlendFactorSrcAlpha,
		gputypes.BlendFactorOneMinusSrcAlpha,
		gputypes.BlendFactorDst,
		gputypes.BlendFactorOneMinusDst,
		gputypes.BlendFactorDstAlpha,
		gputypes.BlendFactorOneMinusDstAlpha,
		gputypes.BlendFactorSrcAlphaSaturated,
		gputypes.BlendFactorConstant,
		gputypes.BlendFactorOneMinusConstant,
	}
	filterCodes = []gputypes.FilterMode{
		gputypes.FilterModeNearest,
		gputypes.FilterModeLinear,
	}
	addressCodes = []gputypes.AddressMode{
		gputypes.AddressModeClampToEdge,
		gputypes.AddressModeRepeat,
		gputypes.AddressModeMirrorRepeat,
	}
)

func codeOf[T comparable](table []T, v T, what string) (uint8, error) {
	for i, t := range table {
		if t == v {
			return uint8(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unencodable %s %v", ErrInvalid, what, v)
}

func valueOf[T any](table []T, code uint8, what string) (T, error) {
	if int(code) >= len(table) {
		var zero T
		return zero, fmt.Errorf("%w: %s code %d", ErrCorrupt, what, code)
	}
	return table[code], nil
}

// Load reads a trace file.
func Load(path string) (*Trace, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("trace: open: %w", err)
	}
	defer func() { _ = f.Close() }()

	t, err := Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Save writes t to a trace file.
func Save(path string, t *Trace) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("trace: create: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := Encode(w, t); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("trace: write: %w", err)
	}
	return f.Close()
}

// Decode reads a trace from r and validates it.
func Decode(r io.Reader) (*Trace, error) {
	var h header
	if err := read(r, &h); err != nil {
		return nil, err
	}
	if h.Magic != magic {
		return nil, ErrBadMagic
	}
	if h.Version != version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}
	if h.NumDraws > maxElements || h.NumTextures > maxElements {
		return nil, fmt.Errorf("%w: %d draws, %d textures", ErrCorrupt, h.NumDraws, h.NumTextures)
	}

	t := &Trace{
		Textures:  make([]Texture, h.NumTextures),
		DrawCalls: make([]DrawCall, h.NumDraws),
	}
	for i := range t.Textures {
		if err := decodeTexture(r, &t.Textures[i]); err != nil {
			return nil, fmt.Errorf("texture %d: %w", i, err)
		}
	}
	for i := range t.DrawCalls {
		if err := decodeDraw(r, &t.DrawCalls[i]); err != nil {
			return nil, fmt.Errorf("draw %d: %w", i, err)
		}
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func decodeTexture(r io.Reader, tex *Texture) error {
	var wt wireTexture
	if err := read(r, &wt); err != nil {
		return err
	}
	if wt.Size > maxElements*4 {
		return fmt.Errorf("%w: texture size %d", ErrCorrupt, wt.Size)
	}
	tex.Format = image.Format(wt.Format)
	tex.Width = int(wt.Width)
	tex.Height = int(wt.Height)
	tex.Pixels = make([]byte, wt.Size)
	return read(r, tex.Pixels)
}

func decodeDraw(r io.Reader, dc *DrawCall) error {
	var wd wireDraw
	if err := read(r, &wd); err != nil {
		return err
	}
	if wd.NumVertices > maxElements || wd.NumPrimitives > maxElements {
		return fmt.Errorf("%w: %d vertices, %d primitives", ErrCorrupt, wd.NumVertices, wd.NumPrimitives)
	}

	vp := wd.Viewport
	dc.Viewport = Viewport{X: vp[0], Y: vp[1], Width: vp[2], Height: vp[3], Near: vp[4], Far: vp[5]}
	dc.TextureID = wd.TextureID

	var err error
	if dc.State, err = decodeState(wd.State); err != nil {
		return err
	}

	dc.Vertices = make([]Vertex, wd.NumVertices)
	if err := read(r, dc.Vertices); err != nil {
		return err
	}
	dc.Primitives = make([]Primitive, wd.NumPrimitives)
	return read(r, dc.Primitives)
}

func decodeState(ws wireState) (State, error) {
	s := State{
		DepthTest:        ws.Flags&flagDepthTest != 0,
		DepthWrite:       ws.Flags&flagDepthWrite != 0,
		StencilTest:      ws.Flags&flagStencilTest != 0,
		Blend:            ws.Flags&flagBlend != 0,
		ColorEnabled:     ws.Flags&flagColor != 0,
		TexEnabled:       ws.Flags&flagTexture != 0,
		StencilRef:       ws.StencilRef,
		StencilMask:      ws.StencilMask,
		StencilWriteMask: ws.StencilWriteMask,
		ColorWriteMask:   ws.ColorWriteMask & 0xf,
	}

	var err error
	if s.DepthFunc, err = valueOf(compareCodes, ws.DepthFunc, "depth func"); err != nil {
		return s, err
	}
	if s.StencilFunc, err = valueOf(compareCodes, ws.StencilFunc, "stencil func"); err != nil {
		return s, err
	}
	if s.BlendSrc, err = valueOf(blendCodes, ws.BlendSrc, "blend src"); err != nil {
		return s, err
	}
	if s.BlendDst, err = valueOf(blendCodes, ws.BlendDst, "blend dst"); err != nil {
		return s, err
	}
	if s.MinFilter, err = valueOf(filterCodes, ws.MinFilter, "min filter"); err != nil {
		return s, err
	}
	if s.MagFilter, err = valueOf(filterCodes, ws.MagFilter, "mag filter"); err != nil {
		return s, err
	}
	if s.AddressU, err = valueOf(addressCodes, ws.AddressU, "address u"); err != nil {
		return s, err
	}
	if s.AddressV, err = valueOf(addressCodes, ws.AddressV, "address v"); err != nil {
		return s, err
	}

	for _, op := range []struct {
		dst  *StencilOp
		code uint8
	}{
		{&s.StencilFail, ws.StencilFail},
		{&s.StencilZFail, ws.StencilZFail},
		{&s.StencilZPass, ws.StencilZPass},
	} {
		if op.code >= uint8(stencilOpCount) {
			return s, fmt.Errorf("%w: stencil op code %d", ErrCorrupt, op.code)
		}
		*op.dst = StencilOp(op.code)
	}
	if ws.EnvMode >= uint8(envModeCount) {
		return s, fmt.Errorf("%w: env mode code %d", ErrCorrupt, ws.EnvMode)
	}
	s.EnvMode = EnvMode(ws.EnvMode)
	return s, nil
}

// Encode validates t and writes it to w.
func Encode(w io.Writer, t *Trace) error {
	if err := t.Validate(); err != nil {
		return err
	}
	h := header{
		Magic:       magic,
		Version:     version,
		NumDraws:    uint32(len(t.DrawCalls)),
		NumTextures: uint32(len(t.Textures)),
	}
	if err := write(w, &h); err != nil {
		return err
	}

	for i := range t.Textures {
		tex := &t.Textures[i]
		wt := wireTexture{
			Format: uint32(tex.Format),
			Width:  uint32(tex.Width),
			Height: uint32(tex.Height),
			Size:   uint32(len(tex.Pixels)),
		}
		if err := write(w, &wt); err != nil {
			return err
		}
		if err := write(w, tex.Pixels); err != nil {
			return err
		}
	}

	for i := range t.DrawCalls {
		dc := &t.DrawCalls[i]
		ws, err := encodeState(&dc.State)
		if err != nil {
			return fmt.Errorf("draw %d: %w", i, err)
		}
		vp := dc.Viewport
		wd := wireDraw{
			Viewport:      [6]float32{vp.X, vp.Y, vp.Width, vp.Height, vp.Near, vp.Far},
			State:         ws,
			TextureID:     dc.TextureID,
			NumVertices:   uint32(len(dc.Vertices)),
			NumPrimitives: uint32(len(dc.Primitives)),
		}
		if err := write(w, &wd); err != nil {
			return err
		}
		if err := write(w, dc.Vertices); err != nil {
			return err
		}
		if err := write(w, dc.Primitives); err != nil {
			return err
		}
	}
	return nil
}

func encodeState(s *State) (wireState, error) {
	ws := wireState{
		StencilFail:      uint8(s.StencilFail),
		StencilZFail:     uint8(s.StencilZFail),
		StencilZPass:     uint8(s.StencilZPass),
		StencilRef:       s.StencilRef,
		StencilMask:      s.StencilMask,
		StencilWriteMask: s.StencilWriteMask,
		ColorWriteMask:   s.ColorWriteMask & 0xf,
		EnvMode:          uint8(s.EnvMode),
	}
	for _, f := range []struct {
		on  bool
		bit uint8
	}{
		{s.DepthTest, flagDepthTest},
		{s.DepthWrite, flagDepthWrite},
		{s.StencilTest, flagStencilTest},
		{s.Blend, flagBlend},
		{s.ColorEnabled, flagColor},
		{s.TexEnabled, flagTexture},
	} {
		if f.on {
			ws.Flags |= f.bit
		}
	}

	var err error
	if ws.DepthFunc, err = codeOf(compareCodes, s.DepthFunc, "depth func"); err != nil {
		return ws, err
	}
	if ws.StencilFunc, err = codeOf(compareCodes, s.StencilFunc, "stencil func"); err != nil {
		return ws, err
	}
	if ws.BlendSrc, err = codeOf(blendCodes, s.BlendSrc, "blend src"); err != nil {
		return ws, err
	}
	if ws.BlendDst, err = codeOf(blendCodes, s.BlendDst, "blend dst"); err != nil {
		return ws, err
	}
	if ws.MinFilter, err = codeOf(filterCodes, s.MinFilter, "min filter"); err != nil {
		return ws, err
	}
	if ws.MagFilter, err = codeOf(filterCodes, s.MagFilter, "mag filter"); err != nil {
		return ws, err
	}
	if ws.AddressU, err = codeOf(addressCodes, s.AddressU, "address u"); err != nil {
		return ws, err
	}
	if ws.AddressV, err = codeOf(addressCodes, s.AddressV, "address v"); err != nil {
		return ws, err
	}
	if s.StencilFail >= stencilOpCount || s.StencilZFail >= stencilOpCount || s.StencilZPass >= stencilOpCount {
		return ws, fmt.Errorf("%w: stencil op out of range", ErrInvalid)
	}
	if s.EnvMode >= envModeCount {
		return ws, fmt.Errorf("%w: env mode %d", ErrInvalid, s.EnvMode)
	}
	return ws, nil
}

func read(r io.Reader, v any) error {
	if err := binary.Read(r, binary.LittleEndian, v); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: truncated", ErrCorrupt)
		}
		return fmt.Errorf("trace: read: %w", err)
	}
	return nil
}

func write(w io.Writer, v any) error {
	if err := binary.Write(w, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("trace: write: %w", err)
	}
	return nil
}
