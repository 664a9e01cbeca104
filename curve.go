package bloom

import "math"

// kneeEpsilon keeps the quadratic coefficient finite for a zero knee.
const kneeEpsilon = 1e-5

// Curve is the brightness response of the prefilter: it maps the
// brightness of a pixel, max(r, g, b), to the energy that feeds the bloom.
type Curve interface {
	// Response returns the extracted energy for brightness x.
	Response(x float64) float64

	// Knee returns the curve in the form the prefilter kernel evaluates:
	// |x-threshold| < knee ? coeff1*(x-coeff2)^2 : max(0, x-threshold).
	Knee() (threshold, knee, coeff1, coeff2 float32)
}

// SoftKnee is a threshold with a quadratic transition of half-width
// Threshold*SoftKnee around it. The response and its first derivative are
// continuous, and the curve becomes a hard threshold as SoftKnee goes to 0.
type SoftKnee struct {
	Threshold float64
	SoftKnee  float64
}

func (c SoftKnee) coefficients() (knee, coeff1, coeff2 float64) {
	knee = c.Threshold * c.SoftKnee
	coeff1 = 0.25 / math.Max(knee, kneeEpsilon)
	coeff2 = c.Threshold - knee
	return knee, coeff1, coeff2
}

// Response implements Curve.
func (c SoftKnee) Response(x float64) float64 {
	knee, coeff1, coeff2 := c.coefficients()
	if math.Abs(x-c.Threshold) < knee {
		q := x - coeff2
		return coeff1 * q * q
	}
	return math.Max(0, x-c.Threshold)
}

// Knee implements Curve.
func (c SoftKnee) Knee() (threshold, knee, coeff1, coeff2 float32) {
	k, c1, c2 := c.coefficients()
	return float32(c.Threshold), float32(k), float32(c1), float32(c2)
}

// Exposure is the older exposure-driven extraction: a hard cutoff placed
// above Threshold by an exposure slider in [0, 1].
type Exposure struct {
	Threshold float64
	Exposure  float64
}

// Cutoff returns threshold + (-log10(lerp(1e-2, 1-1e-5, exposure))) * 10.
func (c Exposure) Cutoff() float64 {
	e := math.Min(math.Max(c.Exposure, 0), 1)
	lerp := 1e-2 + (1-1e-5-1e-2)*e
	return c.Threshold + -math.Log10(lerp)*10
}

// Response implements Curve.
func (c Exposure) Response(x float64) float64 {
	return math.Max(0, x-c.Cutoff())
}

// Knee implements Curve. The kernel sees a zero-knee curve at the cutoff.
func (c Exposure) Knee() (threshold, knee, coeff1, coeff2 float32) {
	cutoff := c.Cutoff()
	return float32(cutoff), 0, 0.25 / kneeEpsilon, float32(cutoff)
}

// CurvePoint is one point of a response preview.
type CurvePoint struct {
	X, Y float64
}

// SampleCurve evaluates c scaled by intensity at n evenly spaced points
// over [0, maxX], the way a parameter inspector draws the response.
// n below 2 is raised to 2.
func SampleCurve(c Curve, intensity float64, n int, maxX float64) []CurvePoint {
	n = max(n, 2)
	points := make([]CurvePoint, n)
	for i := range points {
		x := maxX * float64(i) / float64(n-1)
		points[i] = CurvePoint{X: x, Y: c.Response(x) * intensity}
	}
	return points
}
