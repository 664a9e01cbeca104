package bloom

import (
	"math"
	"testing"
)

func TestPlanPyramid(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		radius       float64
		hq           bool
		wantIter     int
		wantScale    float64
		wantEffective Extent
	}{
		{"1080p default", 1920, 1080, 2.5, true, 6, 0.5 + math.Log2(1080) + 2.5 - 6 - 6, Extent{1920, 1080}},
		{"64 radius 3", 64, 64, 3, true, 3, 0.5, Extent{64, 64}},
		{"low resolution", 64, 64, 3, false, 2, 0.5, Extent{32, 32}},
		{"floor at two", 16, 16, 0, true, MinIterations, 0.5 + math.Log2(16) - 6 - math.Floor(math.Log2(16)-6), Extent{16, 16}},
		{"single pixel", 1, 1, 0, true, MinIterations, 0.5, Extent{1, 1}},
		{"capped", 1, 1 << 16, 7, true, MaxIterations, 0.5, Extent{1, 1 << 16}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PlanPyramid(tt.w, tt.h, tt.radius, tt.hq)
			if p.Iterations != tt.wantIter {
				t.Errorf("Iterations = %d, want %d", p.Iterations, tt.wantIter)
			}
			if math.Abs(p.SampleScale-tt.wantScale) > 1e-9 {
				t.Errorf("SampleScale = %v, want %v", p.SampleScale, tt.wantScale)
			}
			if p.Effective != tt.wantEffective {
				t.Errorf("Effective = %v, want %v", p.Effective, tt.wantEffective)
			}
			if len(p.Levels) != p.Iterations+1 {
				t.Fatalf("len(Levels) = %d, want %d", len(p.Levels), p.Iterations+1)
			}
			if p.Levels[0] != p.Effective {
				t.Errorf("Levels[0] = %v, want %v", p.Levels[0], p.Effective)
			}
			if p.LowResolution == tt.hq {
				t.Errorf("LowResolution = %v with highQuality %v", p.LowResolution, tt.hq)
			}
		})
	}
}

func TestPlanPyramidInvariants(t *testing.T) {
	sizes := []Extent{{1, 1}, {3, 1}, {1, 7}, {17, 9}, {640, 480}, {1920, 1080}, {3840, 2160}}
	radii := []float64{0, 0.5, 1, 2.5, 4.99, 7, -1, math.NaN(), math.Inf(1)}
	for _, s := range sizes {
		for _, r := range radii {
			for _, hq := range []bool{true, false} {
				p := PlanPyramid(s.Width, s.Height, r, hq)
				if p.Iterations < MinIterations || p.Iterations > MaxIterations {
					t.Fatalf("%v r=%v: Iterations = %d", s, r, p.Iterations)
				}
				if p.SampleScale < 0.5 || p.SampleScale >= 1.5 {
					t.Fatalf("%v r=%v: SampleScale = %v", s, r, p.SampleScale)
				}
				for i := 1; i < len(p.Levels); i++ {
					prev, cur := p.Levels[i-1], p.Levels[i]
					if cur.Width != max(1, prev.Width/2) || cur.Height != max(1, prev.Height/2) {
						t.Fatalf("%v r=%v: level %d = %v after %v", s, r, i, cur, prev)
					}
				}
			}
		}
	}
}

func TestPlanSampleScaleContinuous(t *testing.T) {
	// the fractional part of logh moves the tap distance, so the blur
	// grows monotonically between iteration steps
	prev := PlanPyramid(1024, 1024, 1, true)
	for r := 1.05; r < 1.95; r += 0.05 {
		p := PlanPyramid(1024, 1024, r, true)
		if p.Iterations != prev.Iterations {
			t.Fatalf("radius %v changed iterations %d -> %d", r, prev.Iterations, p.Iterations)
		}
		if p.SampleScale <= prev.SampleScale {
			t.Fatalf("radius %v: SampleScale %v not above %v", r, p.SampleScale, prev.SampleScale)
		}
		prev = p
	}
}

func TestWithQuarterSteps(t *testing.T) {
	p := PlanPyramid(1024, 1024, 7, true)
	if p.Iterations != 11 {
		t.Fatalf("Iterations = %d, want 11", p.Iterations)
	}

	q := p.WithQuarterSteps(128)
	if q.QuarterSteps != 2 || q.Iterations != 7 {
		t.Errorf("QuarterSteps, Iterations = %d, %d, want 2, 7", q.QuarterSteps, q.Iterations)
	}
	if len(q.Levels) != q.Iterations+1 || q.Levels[0] != (Extent{64, 64}) {
		t.Errorf("Levels = %v", q.Levels)
	}
	ext := q.quarterExtents()
	if len(ext) != 2 || ext[0] != (Extent{256, 256}) || ext[1] != q.Levels[0] {
		t.Errorf("quarterExtents() = %v", ext)
	}
	// the coarsest level is the same as without the pre-pass
	if q.Levels[q.Iterations] != p.Levels[p.Iterations] {
		t.Errorf("coarsest = %v, want %v", q.Levels[q.Iterations], p.Levels[p.Iterations])
	}

	if got := p.WithQuarterSteps(0); got.QuarterSteps != 0 || got.Iterations != p.Iterations {
		t.Errorf("WithQuarterSteps(0) changed the plan: %+v", got)
	}
	// never below the iteration floor
	small := PlanPyramid(256, 256, 0, true).WithQuarterSteps(1)
	if small.Iterations != MinIterations || small.QuarterSteps != 0 {
		t.Errorf("small plan = %d iterations, %d quarter steps", small.Iterations, small.QuarterSteps)
	}
}
