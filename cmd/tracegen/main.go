// Command tracegen writes sample draw call traces for tilereplay.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/tilereplay/image"
	"github.com/gogpu/tilereplay/trace"
)

// samples maps sample names to their generators.
var samples = map[string]func() *trace.Trace{
	"triangle": triangle,
	"quad":     quad,
	"depth":    depth,
	"textured": textured,
}

func names() []string {
	out := make([]string, 0, len(samples))
	for name := range samples {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func main() {
	var (
		dir  = flag.String("dir", ".", "output directory")
		only = flag.String("sample", "", "comma-separated samples to write (default: all of "+strings.Join(names(), ", ")+")")
	)
	flag.Parse()

	selected := names()
	if *only != "" {
		selected = strings.Split(*only, ",")
	}
	if err := os.MkdirAll(*dir, 0o755); err != nil {
		log.Fatalf("create %s: %v", *dir, err)
	}
	for _, name := range selected {
		gen, ok := samples[name]
		if !ok {
			log.Fatalf("unknown sample %q (have %s)", name, strings.Join(names(), ", "))
		}
		path := filepath.Join(*dir, name+".gtrc")
		if err := trace.Save(path, gen()); err != nil {
			log.Fatalf("write %s: %v", path, err)
		}
		fmt.Println(path)
	}
}

// viewport covers the default 128x128 output.
var viewport = trace.Viewport{Width: 128, Height: 128, Near: 0, Far: 1}

func vertex(x, y, z float32, color uint32) trace.Vertex {
	return trace.Vertex{Pos: [4]float32{x, y, z, 1}, Color: color}
}

// draw returns an untextured draw call.
func draw(st trace.State, prims []trace.Primitive, verts ...trace.Vertex) trace.DrawCall {
	return trace.DrawCall{
		Vertices:   verts,
		Primitives: prims,
		Viewport:   viewport,
		State:      st,
		TextureID:  trace.NoTexture,
	}
}

var quadPrims = []trace.Primitive{{0, 1, 2}, {0, 2, 3}}

// quadVerts returns a screen-aligned quad with corners (x0,y0) and (x1,y1).
func quadVerts(x0, y0, x1, y1, z float32, color uint32) []trace.Vertex {
	return []trace.Vertex{
		vertex(x0, y0, z, color),
		vertex(x1, y0, z, color),
		vertex(x1, y1, z, color),
		vertex(x0, y1, z, color),
	}
}

func triangle() *trace.Trace {
	dc := draw(trace.DefaultState(), []trace.Primitive{{0, 1, 2}},
		vertex(-0.8, -0.8, 0, 0xffff0000),
		vertex(0.8, -0.8, 0, 0xff00ff00),
		vertex(0, 0.8, 0, 0xff0000ff),
	)
	return &trace.Trace{DrawCalls: []trace.DrawCall{dc}}
}

func quad() *trace.Trace {
	opaque := draw(trace.DefaultState(), quadPrims, quadVerts(-0.9, -0.9, 0.5, 0.5, 0, 0xff2060c0)...)

	st := trace.DefaultState()
	st.Blend = true
	st.BlendSrc = gputypes.BlendFactorSrcAlpha
	st.BlendDst = gputypes.BlendFactorOneMinusSrcAlpha
	blended := draw(st, quadPrims, quadVerts(-0.5, -0.5, 0.9, 0.9, 0, 0x80ffc000)...)

	return &trace.Trace{DrawCalls: []trace.DrawCall{opaque, blended}}
}

// depth draws a far quad over a near one; the depth test keeps the near one
// in front. The stencil pass marks the near quad and a last draw only
// paints where the mark is set.
func depth() *trace.Trace {
	st := trace.DefaultState()
	st.DepthTest = true
	st.StencilTest = true
	st.StencilFunc = gputypes.CompareFunctionAlways
	st.StencilZPass = trace.StencilReplace
	st.StencilRef = 1
	near := draw(st, quadPrims, quadVerts(-0.6, -0.6, 0.6, 0.6, -0.5, 0xff00c000)...)

	st.StencilZPass = trace.StencilKeep
	far := draw(st, quadPrims, quadVerts(-1, -1, 1, 1, 0.5, 0xffc00000)...)

	mark := trace.DefaultState()
	mark.StencilTest = true
	mark.StencilFunc = gputypes.CompareFunctionEqual
	mark.StencilRef = 1
	mark.ColorWriteMask = 0x9 // alpha and blue
	stripe := draw(mark, quadPrims, quadVerts(-1, -0.1, 1, 0.1, 0, 0xffffffff)...)

	return &trace.Trace{DrawCalls: []trace.DrawCall{near, far, stripe}}
}

// checker returns a size x size A8R8G8B8 checkerboard with 4-texel squares.
func checker(size int) trace.Texture {
	f := image.FormatA8R8G8B8
	pixels := make([]byte, f.ImageBytes(size, size))
	for y := range size {
		for x := range size {
			c := uint32(0xff303030)
			if (x/4+y/4)%2 == 0 {
				c = 0xffe0e0e0
			}
			f.Store(pixels[(y*size+x)*4:], c)
		}
	}
	return trace.Texture{Format: f, Width: size, Height: size, Pixels: pixels}
}

func textured() *trace.Trace {
	st := trace.DefaultState()
	st.TexEnabled = true
	st.MinFilter = gputypes.FilterModeLinear
	st.MagFilter = gputypes.FilterModeNearest
	st.AddressU = gputypes.AddressModeRepeat
	st.AddressV = gputypes.AddressModeRepeat
	st.EnvMode = trace.EnvModulate

	verts := quadVerts(-0.9, -0.9, 0.9, 0.9, 0, 0xffffffff)
	uvs := [][2]float32{{0, 0}, {2, 0}, {2, 2}, {0, 2}}
	for i := range verts {
		verts[i].UV = uvs[i]
	}
	verts[2].Color = 0xffffff00

	dc := draw(st, quadPrims, verts...)
	dc.TextureID = 0
	return &trace.Trace{
		DrawCalls: []trace.DrawCall{dc},
		Textures:  []trace.Texture{checker(32)},
	}
}
