// Package color provides the per-pixel color math shared by the bloom
// kernels: sRGB transfer functions, RGBM packing, brightness and the
// filters used by the anti-flicker paths.
package color

// RGBA is an unclamped linear or sRGB-encoded color with float32
// components. HDR values above 1 are expected.
// Alpha is always linear (never gamma-encoded).
type RGBA struct {
	R, G, B, A float32
}

// Add returns the component-wise sum c + o.
func (c RGBA) Add(o RGBA) RGBA {
	return RGBA{c.R + o.R, c.G + o.G, c.B + o.B, c.A + o.A}
}

// Scale multiplies every component by s.
func (c RGBA) Scale(s float32) RGBA {
	return RGBA{c.R * s, c.G * s, c.B * s, c.A * s}
}

// ScaleRGB multiplies the color components by s and leaves alpha alone.
func (c RGBA) ScaleRGB(s float32) RGBA {
	return RGBA{c.R * s, c.G * s, c.B * s, c.A}
}

// Lerp interpolates from c to o by t.
func (c RGBA) Lerp(o RGBA, t float32) RGBA {
	return RGBA{
		R: c.R + (o.R-c.R)*t,
		G: c.G + (o.G-c.G)*t,
		B: c.B + (o.B-c.B)*t,
		A: c.A + (o.A-c.A)*t,
	}
}

// Brightness returns max(r, g, b), the measure the threshold curve works on.
func (c RGBA) Brightness() float32 {
	return max(c.R, c.G, c.B)
}

// Luminance returns the Rec. 709 luma of the color components.
func (c RGBA) Luminance() float32 {
	return 0.2126*c.R + 0.7152*c.G + 0.0722*c.B
}

// SafeHDR is the largest value a half-float render target holds safely.
const SafeHDR = 65000

// ClampHDR limits every color component to [0, SafeHDR]. NaN becomes 0.
func (c RGBA) ClampHDR() RGBA {
	return RGBA{clampHDR(c.R), clampHDR(c.G), clampHDR(c.B), c.A}
}

func clampHDR(v float32) float32 {
	if !(v > 0) {
		return 0
	}
	if v > SafeHDR {
		return SafeHDR
	}
	return v
}

// Median3 returns the per-channel median of three colors.
func Median3(a, b, c RGBA) RGBA {
	return RGBA{
		R: median(a.R, b.R, c.R),
		G: median(a.G, b.G, c.G),
		B: median(a.B, b.B, c.B),
		A: median(a.A, b.A, c.A),
	}
}

// Median5 approximates the median of a 5-tap cross as
// Median3(Median3(a, b, c), d, e).
func Median5(a, b, c, d, e RGBA) RGBA {
	return Median3(Median3(a, b, c), d, e)
}

func median(a, b, c float32) float32 {
	return max(min(a, b), min(max(a, b), c))
}

// KarisWeight returns 1/(1+brightness), the weight that keeps single
// bright texels from dominating an average.
func KarisWeight(c RGBA) float32 {
	return 1 / (c.Brightness() + 1)
}
