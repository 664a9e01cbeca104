// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import (
	"fmt"
	"log/slog"
)

// ColorSpace selects how Composite treats the source image.
type ColorSpace uint8

const (
	// ColorSpaceLinear uses stored values as linear light.
	ColorSpaceLinear ColorSpace = iota

	// ColorSpaceGamma decodes sRGB before thresholding and compositing
	// and encodes the composite result back to sRGB.
	ColorSpaceGamma

	// ColorSpaceIgnore performs no conversion at all.
	ColorSpaceIgnore
)

// String returns the color space name.
func (c ColorSpace) String() string {
	switch c {
	case ColorSpaceLinear:
		return "linear"
	case ColorSpaceGamma:
		return "gamma"
	case ColorSpaceIgnore:
		return "ignore"
	default:
		return fmt.Sprintf("ColorSpace(%d)", uint8(c))
	}
}

// Variant selects the compile-time flavor of a kernel.
type Variant struct {
	AntiFlicker bool
	HighQuality bool
	ColorSpace  ColorSpace
}

// Uniforms are the inputs of one kernel dispatch.
type Uniforms struct {
	// Main is the primary input.
	Main Texture
	// Base is the secondary input of Upsample, Temporal and Composite.
	Base Texture

	// Response curve in the form the prefilter evaluates it:
	// |x-Threshold| < Knee ? Coeff1*(x-Coeff2)^2 : max(0, x-Threshold).
	Threshold float32
	Knee      float32
	Coeff1    float32
	Coeff2    float32

	// SampleScale is the blur tap distance in texels of Main.
	SampleScale float32
	// Intensity scales the bloom in Composite.
	Intensity float32
	// PrefilterOffset shifts prefilter taps, in texels of Main.
	PrefilterOffset float32
	// TemporalBlend is the weight of the current frame in Temporal.
	TemporalBlend float32

	Variant Variant
}

// LogValue implements slog.LogValuer.
func (u Uniforms) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Float64("threshold", float64(u.Threshold)),
		slog.Float64("knee", float64(u.Knee)),
		slog.Float64("sample_scale", float64(u.SampleScale)),
		slog.Float64("intensity", float64(u.Intensity)),
		slog.Bool("anti_flicker", u.Variant.AntiFlicker),
		slog.Bool("high_quality", u.Variant.HighQuality),
		slog.String("color_space", u.Variant.ColorSpace.String()),
	}
	if u.Main != nil {
		attrs = append(attrs, slog.String("main", extent(u.Main)))
	}
	if u.Base != nil {
		attrs = append(attrs, slog.String("base", extent(u.Base)))
	}
	return slog.GroupValue(attrs...)
}

func extent(t Texture) string {
	return fmt.Sprintf("%dx%d/%s", t.Width(), t.Height(), t.Format())
}
