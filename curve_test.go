package bloom

import (
	"math"
	"testing"
)

func TestSoftKneeResponse(t *testing.T) {
	c := SoftKnee{Threshold: 0.8, SoftKnee: 0.5}
	tests := []struct {
		x, want float64
	}{
		{0, 0},
		{0.3, 0},
		{0.4, 0},     // t - knee
		{0.8, 0.1},   // c1 * knee^2 = knee/4
		{1.0, 0.225}, // 0.625 * 0.6^2
		{1.2, 0.4},   // t + knee
		{2.0, 1.2},
	}
	for _, tt := range tests {
		if got := c.Response(tt.x); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Response(%v) = %v, want %v", tt.x, got, tt.want)
		}
	}
}

func TestSoftKneeContinuity(t *testing.T) {
	const eps = 1e-7
	for _, c := range []SoftKnee{
		{Threshold: 0.8, SoftKnee: 0.5},
		{Threshold: 1, SoftKnee: 1},
		{Threshold: 2, SoftKnee: 0.1},
		{Threshold: 0.25, SoftKnee: 0.75},
	} {
		knee := c.Threshold * c.SoftKnee
		for _, edge := range []float64{c.Threshold - knee, c.Threshold + knee} {
			lo, hi := c.Response(edge-eps), c.Response(edge+eps)
			if math.Abs(hi-lo) > 1e-5 {
				t.Errorf("%+v: jump at %v: %v -> %v", c, edge, lo, hi)
			}
			// first derivative is continuous as well
			dlo := (c.Response(edge-eps) - c.Response(edge-2*eps)) / eps
			dhi := (c.Response(edge+2*eps) - c.Response(edge+eps)) / eps
			if math.Abs(dhi-dlo) > 1e-3 {
				t.Errorf("%+v: slope jump at %v: %v -> %v", c, edge, dlo, dhi)
			}
		}
	}
}

func TestSoftKneeConvergesToHardThreshold(t *testing.T) {
	const threshold = 1.0
	for _, sk := range []float64{0.5, 0.1, 0.01, 0.001, 0} {
		c := SoftKnee{Threshold: threshold, SoftKnee: sk}
		bound := threshold*sk/4 + 1e-12
		for x := 0.0; x <= 2; x += 0.01 {
			hard := math.Max(0, x-threshold)
			if d := math.Abs(c.Response(x) - hard); d > bound {
				t.Fatalf("soft knee %v: |Response(%v) - hard| = %v, want <= %v", sk, x, d, bound)
			}
		}
	}
}

func TestSoftKneeCoefficients(t *testing.T) {
	th, knee, c1, c2 := SoftKnee{Threshold: 0.8, SoftKnee: 0.5}.Knee()
	if th != 0.8 || knee != 0.4 || c2 != float32(0.8-0.4) {
		t.Errorf("Knee() = %v, %v, _, %v", th, knee, c2)
	}
	if math.Abs(float64(c1)-0.625) > 1e-6 {
		t.Errorf("coeff1 = %v, want 0.625", c1)
	}

	// zero knee keeps coeff1 finite
	_, knee, c1, _ = SoftKnee{Threshold: 1}.Knee()
	if knee != 0 || math.IsInf(float64(c1), 0) || c1 != 0.25/kneeEpsilon {
		t.Errorf("zero knee: knee=%v coeff1=%v", knee, c1)
	}
}

func TestExposureCutoff(t *testing.T) {
	tests := []struct {
		name     string
		exposure float64
		want     float64
	}{
		{"no exposure", 0, 0.5 + 20},
		{"full exposure", 1, 0.5 + -math.Log10(1-1e-5)*10},
		{"clamped high", 3, 0.5 + -math.Log10(1-1e-5)*10},
		{"clamped low", -1, 0.5 + 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Exposure{Threshold: 0.5, Exposure: tt.exposure}
			if got := c.Cutoff(); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cutoff() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExposureResponse(t *testing.T) {
	c := Exposure{Threshold: 0.5, Exposure: 1}
	cutoff := c.Cutoff()
	if got := c.Response(cutoff - 0.1); got != 0 {
		t.Errorf("Response below cutoff = %v, want 0", got)
	}
	if got := c.Response(cutoff + 1); math.Abs(got-1) > 1e-12 {
		t.Errorf("Response above cutoff = %v, want 1", got)
	}

	th, knee, _, c2 := c.Knee()
	if knee != 0 || th != float32(cutoff) || c2 != float32(cutoff) {
		t.Errorf("Knee() = %v, %v, _, %v, want zero knee at %v", th, knee, c2, cutoff)
	}
}

func TestSampleCurve(t *testing.T) {
	pts := SampleCurve(SoftKnee{Threshold: 1}, 2, 5, 2)
	want := []CurvePoint{{0, 0}, {0.5, 0}, {1, 0}, {1.5, 1}, {2, 2}}
	if len(pts) != len(want) {
		t.Fatalf("len = %d, want %d", len(pts), len(want))
	}
	for i := range want {
		if math.Abs(pts[i].X-want[i].X) > 1e-12 || math.Abs(pts[i].Y-want[i].Y) > 1e-12 {
			t.Errorf("point %d = %+v, want %+v", i, pts[i], want[i])
		}
	}

	if got := len(SampleCurve(SoftKnee{}, 1, 0, 1)); got != 2 {
		t.Errorf("n=0 gives %d points, want 2", got)
	}
}
