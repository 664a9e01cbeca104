package main

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/gogpu/bloom/internal/color"
)

// lumaStats summarizes the Rec. 709 luminance of a picture. LDR values
// are decoded to linear first.
type lumaStats struct {
	Mean   float64
	Median float64
	P99    float64
	Max    float64
}

func luminanceStats(pic *picture) lumaStats {
	n := pic.width * pic.height
	if n == 0 {
		return lumaStats{}
	}
	lums := make([]float64, 0, n)
	for i := 0; i+3 < len(pic.pix); i += 4 {
		c := color.RGBA{R: pic.pix[i], G: pic.pix[i+1], B: pic.pix[i+2]}
		if pic.ldr {
			c = color.RGBA{R: color.DecodeSRGB8(unorm8(c.R)), G: color.DecodeSRGB8(unorm8(c.G)), B: color.DecodeSRGB8(unorm8(c.B))}
		}
		lums = append(lums, float64(c.Luminance()))
	}
	slices.Sort(lums)
	return lumaStats{
		Mean:   stat.Mean(lums, nil),
		Median: stat.Quantile(0.5, stat.Empirical, lums, nil),
		P99:    stat.Quantile(0.99, stat.Empirical, lums, nil),
		Max:    lums[len(lums)-1],
	}
}

func (s lumaStats) String() string {
	return fmt.Sprintf("mean %.4f median %.4f p99 %.4f max %.4f", s.Mean, s.Median, s.P99, s.Max)
}
