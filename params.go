package bloom

import (
	"log/slog"
	"math"

	"github.com/gogpu/bloom/kernel"
)

// Parameter ranges.
const (
	MaxThreshold      = 2.0
	MaxRadius         = 7.0
	MaxBlurIterations = 4
)

// ColorSpace re-exports the kernel color space modes.
type ColorSpace = kernel.ColorSpace

const (
	ColorSpaceLinear = kernel.ColorSpaceLinear
	ColorSpaceGamma  = kernel.ColorSpaceGamma
	ColorSpaceIgnore = kernel.ColorSpaceIgnore
)

// Params is the per-frame configuration of the effect. The pipeline reads
// it and never retains it across frames.
type Params struct {
	// Threshold is the brightness where extraction starts, in [0, 2].
	Threshold float64 `yaml:"threshold"`
	// SoftKnee widens the threshold into a quadratic transition, in [0, 1].
	SoftKnee float64 `yaml:"soft_knee"`
	// Intensity scales the bloom added to the source, >= 0.
	Intensity float64 `yaml:"intensity"`
	// Radius controls the blur extent independently of resolution, in [0, 7].
	Radius float64 `yaml:"radius"`

	// HighQuality keeps the pyramid at full resolution and uses the 9-tap
	// tent filter when upsampling.
	HighQuality bool `yaml:"high_quality"`
	// AntiFlicker enables median prefiltering and Karis-weighted first
	// downsample.
	AntiFlicker bool `yaml:"anti_flicker"`

	// TemporalFiltering in [0, 1] blends the large-scale bloom with the
	// previous frames. 0 disables the accumulator.
	TemporalFiltering float64 `yaml:"temporal_filtering"`

	ColorSpace ColorSpace `yaml:"-"`

	// Curve overrides the soft-knee response. nil uses
	// SoftKnee{Threshold, SoftKnee}.
	Curve Curve `yaml:"-"`

	// BlurIterations adds separable box-blur passes over the coarsest
	// level, in [0, 4].
	BlurIterations int `yaml:"blur_iterations"`
}

// DefaultParams returns the stock configuration.
func DefaultParams() Params {
	return Params{
		Threshold:   0.8,
		SoftKnee:    0.5,
		Intensity:   0.8,
		Radius:      2.5,
		HighQuality: true,
	}
}

// Sanitize returns p with every field clamped into range. NaN is treated
// as the lower bound.
func (p Params) Sanitize() Params {
	p.Threshold = clampRange(p.Threshold, 0, MaxThreshold)
	p.SoftKnee = clampRange(p.SoftKnee, 0, 1)
	p.Intensity = clampRange(p.Intensity, 0, math.MaxFloat32)
	p.Radius = clampRange(p.Radius, 0, MaxRadius)
	p.TemporalFiltering = clampRange(p.TemporalFiltering, 0, 1)
	p.BlurIterations = min(max(p.BlurIterations, 0), MaxBlurIterations)
	if p.ColorSpace > ColorSpaceIgnore {
		p.ColorSpace = ColorSpaceLinear
	}
	return p
}

// ResponseCurve returns the curve the prefilter applies.
func (p Params) ResponseCurve() Curve {
	if p.Curve != nil {
		return p.Curve
	}
	return SoftKnee{Threshold: p.Threshold, SoftKnee: p.SoftKnee}
}

// LogValue implements slog.LogValuer.
func (p Params) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("threshold", p.Threshold),
		slog.Float64("soft_knee", p.SoftKnee),
		slog.Float64("intensity", p.Intensity),
		slog.Float64("radius", p.Radius),
		slog.Bool("high_quality", p.HighQuality),
		slog.Bool("anti_flicker", p.AntiFlicker),
		slog.Float64("temporal", p.TemporalFiltering),
		slog.String("color_space", p.ColorSpace.String()),
	)
}

func clampRange(v, lo, hi float64) float64 {
	if !(v > lo) {
		return lo
	}
	return math.Min(v, hi)
}

// Quality is the three-level quality setting of earlier revisions.
type Quality uint8

const (
	// QualityIgnoreColorSpace is low resolution with no color conversion.
	QualityIgnoreColorSpace Quality = iota
	// QualityLowResolution halves the pyramid resolution.
	QualityLowResolution
	// QualityNormal runs at full resolution.
	QualityNormal
)

// FromLegacyQuality maps a legacy quality level onto HighQuality and
// ColorSpace. gamma reports whether the host renders in gamma space.
func (p Params) FromLegacyQuality(level Quality, gamma bool) Params {
	p.HighQuality = level == QualityNormal
	switch {
	case level == QualityIgnoreColorSpace:
		p.ColorSpace = ColorSpaceIgnore
	case gamma:
		p.ColorSpace = ColorSpaceGamma
	default:
		p.ColorSpace = ColorSpaceLinear
	}
	return p
}
