package translate

import (
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/tilereplay/device"
	"github.com/gogpu/tilereplay/image"
	"github.com/gogpu/tilereplay/trace"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		in   gputypes.CompareFunction
		want uint32
	}{
		{gputypes.CompareFunctionNever, device.OMCompareNever},
		{gputypes.CompareFunctionLess, device.OMCompareLess},
		{gputypes.CompareFunctionEqual, device.OMCompareEqual},
		{gputypes.CompareFunctionLessEqual, device.OMCompareLessEqual},
		{gputypes.CompareFunctionGreater, device.OMCompareGreater},
		{gputypes.CompareFunctionNotEqual, device.OMCompareNotEqual},
		{gputypes.CompareFunctionGreaterEqual, device.OMCompareGreaterEqual},
		{gputypes.CompareFunctionAlways, device.OMCompareAlways},
	}
	for _, tt := range tests {
		if got := Compare(tt.in); got != tt.want {
			t.Errorf("Compare(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestStencilOp(t *testing.T) {
	for op := trace.StencilKeep; op <= trace.StencilDecrWrap; op++ {
		// Trace and device share the operation order.
		if got := StencilOp(op); got != uint32(op) {
			t.Errorf("StencilOp(%v) = %d, want %d", op, got, op)
		}
	}
}

func TestBlendFuncWord(t *testing.T) {
	got := BlendFuncWord(gputypes.BlendFactorSrcAlpha, gputypes.BlendFactorOneMinusSrcAlpha)
	s, d := device.OMBlendFuncSrcA, device.OMBlendFuncOneMinusSrcA
	if want := d<<24 | d<<16 | s<<8 | s; got != want {
		t.Errorf("BlendFuncWord() = %#08x, want %#08x", got, want)
	}
	if got := BlendFuncWord(gputypes.BlendFactorOne, gputypes.BlendFactorZero); got != BlendFuncDisabled {
		t.Errorf("BlendFuncWord(One, Zero) = %#08x, want BlendFuncDisabled %#08x", got, BlendFuncDisabled)
	}
}

func TestTexFormat(t *testing.T) {
	tests := []struct {
		in   image.Format
		want uint32
	}{
		{image.FormatA8R8G8B8, device.TexFormatA8R8G8B8},
		{image.FormatR5G6B5, device.TexFormatR5G6B5},
		{image.FormatA1R5G5B5, device.TexFormatA1R5G5B5},
		{image.FormatA4R4G4B4, device.TexFormatA4R4G4B4},
		{image.FormatA8L8, device.TexFormatA8L8},
		{image.FormatL8, device.TexFormatL8},
		{image.FormatA8, device.TexFormatA8},
	}
	for _, tt := range tests {
		if got := TexFormat(tt.in); got != tt.want {
			t.Errorf("TexFormat(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestTexFilter(t *testing.T) {
	near, lin := gputypes.FilterModeNearest, gputypes.FilterModeLinear
	tests := []struct {
		name     string
		min, mag gputypes.FilterMode
		want     uint32
	}{
		{"both nearest", near, near, device.TexFilterPoint},
		{"linear min", lin, near, device.TexFilterBilinear},
		{"linear mag", near, lin, device.TexFilterBilinear},
		{"both linear", lin, lin, device.TexFilterBilinear},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TexFilter(tt.min, tt.mag); got != tt.want {
				t.Errorf("TexFilter() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTexWrapWordUsesBothAxes(t *testing.T) {
	got := TexWrapWord(gputypes.AddressModeRepeat, gputypes.AddressModeMirrorRepeat)
	want := device.TexWrapMirror<<16 | device.TexWrapRepeat
	if got != want {
		t.Errorf("TexWrapWord(Repeat, Mirror) = %#x, want %#x", got, want)
	}
}

func TestUnknownValuesPanic(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{"compare", func() { Compare(gputypes.CompareFunction(200)) }},
		{"stencil op", func() { StencilOp(trace.StencilOp(200)) }},
		{"blend", func() { BlendFunc(gputypes.BlendFactor(200)) }},
		{"format", func() { TexFormat(image.Format(200)) }},
		{"filter", func() { TexFilter(gputypes.FilterMode(200), gputypes.FilterModeNearest) }},
		{"wrap", func() { TexWrap(gputypes.AddressMode(200)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			tt.fn()
		})
	}
}
