package software

import (
	"github.com/gogpu/bloom/internal/color"
	"github.com/gogpu/bloom/kernel"
)

// dispatch holds the resolved inputs of one kernel invocation.
type dispatch struct {
	u    kernel.Uniforms
	main *Image
	base *Image

	dstW, dstH int
	// texel size of main in normalized coordinates
	tx, ty float32
}

// kernelFunc computes one destination pixel.
type kernelFunc func(d *dispatch, x, y int) color.RGBA

// kernelTable maps every kernel to its CPU implementation.
var kernelTable = [kernel.Count]kernelFunc{
	kernel.Prefilter:       prefilter,
	kernel.DownsampleFirst: downsampleFirst,
	kernel.Downsample:      downsample,
	kernel.Quarter:         downsample,
	kernel.BlurHorizontal:  blurHorizontal,
	kernel.BlurVertical:    blurVertical,
	kernel.Upsample:        upsample,
	kernel.Temporal:        temporal,
	kernel.Composite:       composite,
}

func (d *dispatch) uv(x, y int) (float32, float32) {
	return (float32(x) + 0.5) / float32(d.dstW), (float32(y) + 0.5) / float32(d.dstH)
}

// at reads img at the destination pixel: a direct fetch when the sizes
// agree, a bilinear sample otherwise.
func (d *dispatch) at(img *Image, x, y int) color.RGBA {
	if img.width == d.dstW && img.height == d.dstH {
		return img.pixel(x, y)
	}
	u, v := d.uv(x, y)
	return img.sample(u, v)
}

// response evaluates the soft-knee curve carried by the uniforms.
func (d *dispatch) response(br float32) float32 {
	u := &d.u
	if x := br - u.Threshold; x > -u.Knee && x < u.Knee {
		q := br - u.Coeff2
		return u.Coeff1 * q * q
	}
	return max(0, br-u.Threshold)
}

func prefilter(d *dispatch, x, y int) color.RGBA {
	u, v := d.uv(x, y)
	off := d.u.PrefilterOffset
	u += d.tx * off
	v += d.ty * off

	m := d.main.sample(u, v).ClampHDR()
	if d.u.Variant.AntiFlicker {
		s1 := d.main.sample(u-d.tx, v).ClampHDR()
		s2 := d.main.sample(u+d.tx, v).ClampHDR()
		s3 := d.main.sample(u, v-d.ty).ClampHDR()
		s4 := d.main.sample(u, v+d.ty).ClampHDR()
		m = color.Median5(m, s1, s2, s3, s4)
	}
	if d.u.Variant.ColorSpace == kernel.ColorSpaceGamma {
		m = m.ToLinear()
	}

	br := m.Brightness()
	m = m.ScaleRGB(d.response(br) / max(br, 1e-5))
	m.A = 0
	return m
}

// box4 averages four bilinear taps at (±dx, ±dy) around (u, v).
func box4(img *Image, u, v, dx, dy float32) color.RGBA {
	s := img.sample(u-dx, v-dy)
	s = s.Add(img.sample(u+dx, v-dy))
	s = s.Add(img.sample(u-dx, v+dy))
	s = s.Add(img.sample(u+dx, v+dy))
	return s.Scale(0.25)
}

func downsampleFirst(d *dispatch, x, y int) color.RGBA {
	u, v := d.uv(x, y)
	if !d.u.Variant.AntiFlicker {
		return box4(d.main, u, v, d.tx, d.ty)
	}

	s1 := d.main.sample(u-d.tx, v-d.ty)
	s2 := d.main.sample(u+d.tx, v-d.ty)
	s3 := d.main.sample(u-d.tx, v+d.ty)
	s4 := d.main.sample(u+d.tx, v+d.ty)
	w1 := color.KarisWeight(s1)
	w2 := color.KarisWeight(s2)
	w3 := color.KarisWeight(s3)
	w4 := color.KarisWeight(s4)

	s := s1.Scale(w1).Add(s2.Scale(w2)).Add(s3.Scale(w3)).Add(s4.Scale(w4))
	return s.Scale(1 / (w1 + w2 + w3 + w4))
}

// downsample also serves the quarter pass: with a destination a quarter
// of main's size the four taps cover exactly the 4x4 source block.
func downsample(d *dispatch, x, y int) color.RGBA {
	u, v := d.uv(x, y)
	return box4(d.main, u, v, d.tx, d.ty)
}

func blurHorizontal(d *dispatch, x, y int) color.RGBA {
	u, v := d.uv(x, y)
	var s color.RGBA
	for i := -2; i <= 2; i++ {
		s = s.Add(d.main.sample(u+float32(i)*d.tx, v))
	}
	return s.Scale(1.0 / 5)
}

func blurVertical(d *dispatch, x, y int) color.RGBA {
	u, v := d.uv(x, y)
	var s color.RGBA
	for i := -2; i <= 2; i++ {
		s = s.Add(d.main.sample(u, v+float32(i)*d.ty))
	}
	return s.Scale(1.0 / 5)
}

// upsampleFilter samples the coarse level: a 9-tap tent at SampleScale
// texels in high quality, a 4-tap box at half that distance otherwise.
func (d *dispatch) upsampleFilter(x, y int) color.RGBA {
	u, v := d.uv(x, y)
	scale := d.u.SampleScale
	if !d.u.Variant.HighQuality {
		return box4(d.main, u, v, d.tx*scale*0.5, d.ty*scale*0.5)
	}

	dx, dy := d.tx*scale, d.ty*scale
	m := d.main
	s := m.sample(u-dx, v-dy)
	s = s.Add(m.sample(u, v-dy).Scale(2))
	s = s.Add(m.sample(u+dx, v-dy))
	s = s.Add(m.sample(u-dx, v).Scale(2))
	s = s.Add(m.sample(u, v).Scale(4))
	s = s.Add(m.sample(u+dx, v).Scale(2))
	s = s.Add(m.sample(u-dx, v+dy))
	s = s.Add(m.sample(u, v+dy).Scale(2))
	s = s.Add(m.sample(u+dx, v+dy))
	return s.Scale(1.0 / 16)
}

func upsample(d *dispatch, x, y int) color.RGBA {
	return d.at(d.base, x, y).Add(d.upsampleFilter(x, y))
}

func temporal(d *dispatch, x, y int) color.RGBA {
	history := d.at(d.base, x, y)
	current := d.at(d.main, x, y)
	return history.Lerp(current, d.u.TemporalBlend)
}

func composite(d *dispatch, x, y int) color.RGBA {
	base := d.at(d.base, x, y)
	gamma := d.u.Variant.ColorSpace == kernel.ColorSpaceGamma
	if gamma {
		base = base.ToLinear()
	}

	bloom := d.upsampleFilter(x, y)
	i := d.u.Intensity
	out := color.RGBA{
		R: base.R + bloom.R*i,
		G: base.G + bloom.G*i,
		B: base.B + bloom.B*i,
		A: base.A,
	}
	if gamma {
		out = out.ToSRGB()
	}
	return out
}
