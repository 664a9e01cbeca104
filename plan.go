package bloom

import (
	"fmt"
	"math"
)

// Pyramid limits.
const (
	MinIterations = 2
	MaxIterations = 16
)

// Extent is the size of one pyramid level.
type Extent struct {
	Width, Height int
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// half returns the next coarser level. A dimension never drops below 1.
func (e Extent) half() Extent {
	return Extent{Width: max(1, e.Width/2), Height: max(1, e.Height/2)}
}

// Plan is the per-frame layout of the bloom pyramid.
type Plan struct {
	// Iterations is the number of downsample steps of the main chain.
	Iterations int
	// SampleScale is the upsample tap distance in texels, in [0.5, 1.5).
	SampleScale float64

	// Effective is the prefilter resolution: the source size, halved in
	// low-resolution mode.
	Effective Extent
	// QuarterSteps is the number of 4x4 box passes between the prefilter
	// and level 0.
	QuarterSteps int
	// Levels holds Iterations+1 extents, finest first.
	Levels []Extent

	LowResolution bool
}

// PlanPyramid computes the pyramid for a width x height source.
//
// The iteration count follows log2(height) + radius - 6 so the blur
// covers the same fraction of the image at any resolution; SampleScale
// carries the fractional part so the extent varies continuously with
// radius. The count is clamped to [MinIterations, MaxIterations].
func PlanPyramid(width, height int, radius float64, highQuality bool) Plan {
	eff := Extent{Width: max(1, width), Height: max(1, height)}
	if !highQuality {
		eff = eff.half()
	}
	if math.IsNaN(radius) || radius < 0 {
		radius = 0
	}
	radius = math.Min(radius, MaxIterations+32)

	logh := math.Log2(float64(eff.Height)) + radius - 6
	whole := math.Floor(logh)
	iterations := MaxIterations
	if whole < MaxIterations {
		iterations = max(MinIterations, int(whole))
	}

	p := Plan{
		Iterations:    iterations,
		SampleScale:   0.5 + (logh - whole),
		Effective:     eff,
		Levels:        make([]Extent, iterations+1),
		LowResolution: !highQuality,
	}
	p.Levels[0] = eff
	for i := 1; i <= iterations; i++ {
		p.Levels[i] = p.Levels[i-1].half()
	}
	return p
}

// WithQuarterSteps trades pairs of halvings for single quarter passes
// while level 0 is taller than maxHeight, keeping at least MinIterations
// in the main chain. maxHeight <= 0 returns p unchanged.
func (p Plan) WithQuarterSteps(maxHeight int) Plan {
	if maxHeight <= 0 {
		return p
	}
	for p.Levels[0].Height > maxHeight && p.Iterations-2 >= MinIterations {
		p.QuarterSteps++
		p.Iterations -= 2
		p.Levels = p.Levels[2:]
	}
	return p
}

// quarterExtents returns the sizes written by the quarter passes.
func (p Plan) quarterExtents() []Extent {
	out := make([]Extent, p.QuarterSteps)
	e := p.Effective
	for i := range out {
		e = e.half().half()
		out[i] = e
	}
	return out
}
