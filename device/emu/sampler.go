package emu

import (
	"fmt"
	"math"

	"github.com/gogpu/tilereplay/device"
	"github.com/gogpu/tilereplay/internal/abi"
	"github.com/gogpu/tilereplay/image"
)

// mipLevel is one resident level of the bound texture.
type mipLevel struct {
	texels        []byte
	width, height int
}

// sampler reads the texture bound to stage 0.
//
// Level dimensions follow the LOGDIM register: level i is
// max(1, (1<<logWidth)>>i) texels wide.
type sampler struct {
	format   image.Format
	bilinear bool
	wrapU    uint32
	wrapV    uint32
	levels   []mipLevel
}

func newSampler(l *Launch, r regs) (*sampler, error) {
	// TexFormat* encodings follow the image.Format order.
	format := image.Format(r.tex(device.DCRTexFormat))
	if !format.IsValid() {
		return nil, fmt.Errorf("texture format %d", format)
	}
	logDim := r.tex(device.DCRTexLogDim)
	logW, logH := int(logDim&0xffff), int(logDim>>16)
	wrap := r.tex(device.DCRTexWrap)

	s := &sampler{
		format:   format,
		bilinear: r.tex(device.DCRTexFilter) == device.TexFilterBilinear,
		wrapU:    wrap & 0xffff,
		wrapV:    wrap >> 16,
	}

	base := uint64(r.tex(device.DCRTexAddr)) * device.BlockSize
	numLevels := min(max(logW, logH)+1, device.TexLODMax)
	for i := range numLevels {
		w, h := max(1, (1<<logW)>>i), max(1, (1<<logH)>>i)
		off := uint64(r.tex(device.DCRTexMipOff(i)))
		if i > 0 && off == 0 {
			break
		}
		texels, err := l.Mem(base+off, uint64(format.ImageBytes(w, h)))
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("texture: %w", err)
			}
			break
		}
		s.levels = append(s.levels, mipLevel{texels: texels, width: w, height: h})
	}
	return s, nil
}

// sample returns the filtered texel for pixel (x, y) of p.
func (s *sampler) sample(p *abi.Prim, x, y int) rgba {
	lvl := &s.levels[s.lod(p)]
	u, v := p.U.At(x, y)*float32(lvl.width), p.V.At(x, y)*float32(lvl.height)

	if !s.bilinear {
		return s.texel(lvl, int(floor(u)), int(floor(v)))
	}

	u, v = u-0.5, v-0.5
	iu, iv := int(floor(u)), int(floor(v))
	fu, fv := u-floor(u), v-floor(v)
	c00 := s.texel(lvl, iu, iv)
	c10 := s.texel(lvl, iu+1, iv)
	c01 := s.texel(lvl, iu, iv+1)
	c11 := s.texel(lvl, iu+1, iv+1)
	lerp := func(a, b rgba, t float32) rgba {
		return rgba{
			a.r + (b.r-a.r)*t,
			a.g + (b.g-a.g)*t,
			a.b + (b.b-a.b)*t,
			a.a + (b.a-a.a)*t,
		}
	}
	return lerp(lerp(c00, c10, fu), lerp(c01, c11, fu), fv)
}

// lod selects the mip level from the screen-space footprint of a texel.
func (s *sampler) lod(p *abi.Prim) int {
	w, h := float64(s.levels[0].width), float64(s.levels[0].height)
	dx := math.Hypot(float64(p.U.A)*w, float64(p.V.A)*h)
	dy := math.Hypot(float64(p.U.B)*w, float64(p.V.B)*h)
	rho := max(dx, dy)
	if !(rho > 1) {
		return 0
	}
	return min(int(math.Log2(rho)), len(s.levels)-1)
}

func (s *sampler) texel(lvl *mipLevel, x, y int) rgba {
	x = wrapCoord(x, lvl.width, s.wrapU)
	y = wrapCoord(y, lvl.height, s.wrapV)
	bpp := s.format.BytesPerPixel()
	return unpack(s.format.Load(lvl.texels[(y*lvl.width+x)*bpp:]))
}

func wrapCoord(i, n int, mode uint32) int {
	switch mode {
	case device.TexWrapRepeat:
		i %= n
		if i < 0 {
			i += n
		}
		return i
	case device.TexWrapMirror:
		period := 2 * n
		i %= period
		if i < 0 {
			i += period
		}
		if i >= n {
			i = period - 1 - i
		}
		return i
	default:
		return min(max(i, 0), n-1)
	}
}

func floor(v float32) float32 {
	return float32(math.Floor(float64(v)))
}
