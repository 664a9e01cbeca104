package bloom

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/gogpu/bloom/backend/software"
	"github.com/gogpu/bloom/internal/pool"
	"github.com/gogpu/bloom/kernel"
)

func newTestPipeline(t *testing.T, b *software.Backend, opts ...Option) *Pipeline {
	t.Helper()
	if b == nil {
		b = software.New(software.WithWorkers(2))
	}
	p, err := New(b, opts...)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	t.Cleanup(func() {
		p.Teardown()
		_ = b.Close()
	})
	return p
}

func newImage(t *testing.T, b kernel.Backend, w, h int) *software.Image {
	t.Helper()
	tex, err := b.Allocate(w, h, kernel.FormatRGBA32F)
	if err != nil {
		t.Fatalf("Allocate(%d, %d) = %v", w, h, err)
	}
	return tex.(*software.Image)
}

func fillRandom(img *software.Image, seed uint64, scale float32) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for y := range img.Height() {
		for x := range img.Width() {
			img.SetRGBA(x, y, rng.Float32()*scale, rng.Float32()*scale, rng.Float32()*scale, rng.Float32())
		}
	}
}

func assertIdentical(t *testing.T, got, want *software.Image) {
	t.Helper()
	for y := range want.Height() {
		for x := range want.Width() {
			r0, g0, b0, a0 := want.RGBA(x, y)
			r1, g1, b1, a1 := got.RGBA(x, y)
			if r0 != r1 || g0 != g1 || b0 != b1 || a0 != a1 {
				t.Fatalf("pixel (%d,%d) = %v %v %v %v, want %v %v %v %v", x, y, r1, g1, b1, a1, r0, g0, b0, a0)
			}
		}
	}
}

func assertUniform(t *testing.T, img *software.Image, want, alpha, tol float64) {
	t.Helper()
	for y := range img.Height() {
		for x := range img.Width() {
			r, g, b, a := img.RGBA(x, y)
			for _, c := range []float32{r, g, b} {
				if math.Abs(float64(c)-want) > tol {
					t.Fatalf("pixel (%d,%d) = %v, want %v ± %v", x, y, c, want, tol)
				}
			}
			if float64(a) != alpha {
				t.Fatalf("pixel (%d,%d) alpha = %v, want %v", x, y, a, alpha)
			}
		}
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrNoBackend) {
		t.Errorf("New(nil) = %v, want ErrNoBackend", err)
	}
	b := software.New()
	t.Cleanup(func() { _ = b.Close() })
	if _, err := New(b, WithFormat(kernel.Format(42))); !errors.Is(err, kernel.ErrFormat) {
		t.Errorf("New(bad format) = %v, want ErrFormat", err)
	}
}

// A uniform gray frame blooms into a uniform frame: every level holds the
// prefiltered value and up[1] sums levels 1..Iterations.
func TestApplyUniformGray(t *testing.T) {
	// response(1) for threshold 0.8, soft knee 0.5
	const prefiltered = 0.225

	tests := []struct {
		name   string
		format kernel.Format
		tol    float64
		mutate func(*Params)
	}{
		{"rgba32f", kernel.FormatRGBA32F, 1e-4, nil},
		{"rgba16f", kernel.FormatRGBA16F, 5e-3, nil},
		{"rgbm", kernel.FormatRGBM8, 2e-2, nil},
		{"low resolution", kernel.FormatRGBA32F, 1e-4, func(p *Params) { p.HighQuality = false }},
		{"anti-flicker", kernel.FormatRGBA32F, 1e-4, func(p *Params) { p.AntiFlicker = true }},
		{"low resolution anti-flicker", kernel.FormatRGBA32F, 1e-4, func(p *Params) {
			p.HighQuality = false
			p.AntiFlicker = true
		}},
		{"extra blur", kernel.FormatRGBA32F, 1e-4, func(p *Params) { p.BlurIterations = 2 }},
		{"temporal", kernel.FormatRGBA32F, 1e-4, func(p *Params) { p.TemporalFiltering = 0.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline(t, nil, WithFormat(tt.format))
			src := newImage(t, p.Backend(), 64, 64)
			dst := newImage(t, p.Backend(), 64, 64)
			src.Fill(1, 1, 1, 1)

			params := DefaultParams()
			params.Radius = 3
			params.Intensity = 1
			if tt.mutate != nil {
				tt.mutate(&params)
			}

			// two frames so the temporal case blends a warm accumulator
			var res Result
			for range 2 {
				var err error
				if res, err = p.Apply(src, dst, params); err != nil {
					t.Fatalf("Apply() = %v", err)
				}
			}
			if res.PassThrough {
				t.Fatal("frame was passed through")
			}
			want := 1 + float64(res.Plan.Iterations)*prefiltered
			assertUniform(t, dst, want, 1, tt.tol)
		})
	}
}

func TestApplyHighThresholdIsIdentity(t *testing.T) {
	p := newTestPipeline(t, nil)
	src := newImage(t, p.Backend(), 48, 40)
	dst := newImage(t, p.Backend(), 48, 40)
	fillRandom(src, 1, 1)

	params := DefaultParams()
	params.Threshold = MaxThreshold
	params.SoftKnee = 0
	params.Intensity = 3
	params.AntiFlicker = true

	res, err := p.Apply(src, dst, params)
	if err != nil {
		t.Fatalf("Apply() = %v", err)
	}
	if res.PassThrough {
		t.Fatal("frame was passed through")
	}
	assertIdentical(t, dst, src)
}

func TestApplyZeroIntensityIsIdentity(t *testing.T) {
	p := newTestPipeline(t, nil)
	src := newImage(t, p.Backend(), 33, 17)
	dst := newImage(t, p.Backend(), 33, 17)
	fillRandom(src, 2, 8)

	params := DefaultParams()
	params.Intensity = 0
	res, err := p.Apply(src, dst, params)
	if err != nil {
		t.Fatalf("Apply() = %v", err)
	}
	if !res.PassThrough {
		t.Error("zero intensity should pass through")
	}
	assertIdentical(t, dst, src)
	if s := p.Stats(); s.Acquires != 0 {
		t.Errorf("zero intensity acquired %d textures", s.Acquires)
	}
}

func TestApplyCompositeMonotonic(t *testing.T) {
	p := newTestPipeline(t, nil, WithFormat(kernel.FormatRGBA32F))
	src := newImage(t, p.Backend(), 40, 40)
	fillRandom(src, 3, 4)

	var prev *software.Image
	for _, intensity := range []float64{0.25, 0.5, 1, 2, 4} {
		dst := newImage(t, p.Backend(), 40, 40)
		params := DefaultParams()
		params.Intensity = intensity
		if _, err := p.Apply(src, dst, params); err != nil {
			t.Fatalf("Apply(intensity %v) = %v", intensity, err)
		}
		lower := src
		if prev != nil {
			lower = prev
		}
		for y := range dst.Height() {
			for x := range dst.Width() {
				r0, g0, b0, _ := lower.RGBA(x, y)
				r1, g1, b1, _ := dst.RGBA(x, y)
				if r1 < r0 || g1 < g0 || b1 < b0 {
					t.Fatalf("intensity %v: pixel (%d,%d) decreased", intensity, x, y)
				}
			}
		}
		prev = dst
	}
}

func TestApplyPoolBalance(t *testing.T) {
	const frames = 6

	t.Run("stateless", func(t *testing.T) {
		p := newTestPipeline(t, nil)
		src := newImage(t, p.Backend(), 64, 48)
		dst := newImage(t, p.Backend(), 64, 48)
		fillRandom(src, 4, 2)

		var allocations int
		for i := range frames {
			if _, err := p.Apply(src, dst, DefaultParams()); err != nil {
				t.Fatalf("frame %d: Apply() = %v", i, err)
			}
			s := p.Stats()
			if s.Outstanding != 0 || s.Acquires != s.Releases {
				t.Fatalf("frame %d: stats %+v", i, s)
			}
			if i == 0 {
				allocations = s.Allocations
			} else if s.Allocations != allocations {
				t.Errorf("frame %d allocated: %d -> %d", i, allocations, s.Allocations)
			}
		}
	})

	t.Run("temporal", func(t *testing.T) {
		p := newTestPipeline(t, nil)
		src := newImage(t, p.Backend(), 64, 48)
		dst := newImage(t, p.Backend(), 64, 48)
		fillRandom(src, 5, 2)

		params := DefaultParams()
		params.TemporalFiltering = 0.3
		for i := range frames {
			res, err := p.Apply(src, dst, params)
			if err != nil {
				t.Fatalf("frame %d: Apply() = %v", i, err)
			}
			if !res.Temporal {
				t.Fatalf("frame %d: accumulator not warm", i)
			}
			s := p.Stats()
			if s.Outstanding != 1 || s.Acquires != s.Releases+1 {
				t.Fatalf("frame %d: stats %+v", i, s)
			}
		}

		params.TemporalFiltering = 0
		res, err := p.Apply(src, dst, params)
		if err != nil {
			t.Fatalf("Apply() = %v", err)
		}
		if res.Temporal {
			t.Error("accumulator still warm with filtering off")
		}
		if s := p.Stats(); s.Outstanding != 0 {
			t.Errorf("Outstanding = %d after cooling", s.Outstanding)
		}
	})

	t.Run("teardown", func(t *testing.T) {
		b := software.New()
		p := newTestPipeline(t, b)
		src := newImage(t, b, 32, 32)
		dst := newImage(t, b, 32, 32)

		params := DefaultParams()
		params.TemporalFiltering = 1
		if _, err := p.Apply(src, dst, params); err != nil {
			t.Fatalf("Apply() = %v", err)
		}
		p.Teardown()
		s := p.Stats()
		if s.Outstanding != 0 || s.Idle != 0 || s.Frees != s.Allocations {
			t.Errorf("stats after Teardown: %+v", s)
		}
		// only src and dst remain
		if live := b.Stats().LiveImages; live != 2 {
			t.Errorf("LiveImages = %d, want 2", live)
		}
	})
}

func TestTemporalExponentialAverage(t *testing.T) {
	p := newTestPipeline(t, nil, WithFormat(kernel.FormatRGBA32F))
	src := newImage(t, p.Backend(), 64, 64)
	dst := newImage(t, p.Backend(), 64, 64)

	// threshold 0 with a hard knee extracts the source unchanged
	params := DefaultParams()
	params.Threshold = 0
	params.SoftKnee = 0
	params.TemporalFiltering = 0.25
	w := blendWeight(params.TemporalFiltering)

	accum := func() float64 {
		t.Helper()
		img, ok := p.temporal.accum.(*software.Image)
		if !ok {
			t.Fatalf("accumulator is %T", p.temporal.accum)
		}
		r, _, _, _ := img.RGBA(7, 7)
		return float64(r)
	}

	src.Fill(0.5, 0.5, 0.5, 1)
	if _, err := p.Apply(src, dst, params); err != nil {
		t.Fatalf("Apply() = %v", err)
	}
	if got := accum(); math.Abs(got-0.5) > 1e-6 {
		t.Fatalf("cold start accumulator = %v, want 0.5", got)
	}

	src.Fill(1.5, 1.5, 1.5, 1)
	want := 0.5
	for i := range 12 {
		if _, err := p.Apply(src, dst, params); err != nil {
			t.Fatalf("frame %d: Apply() = %v", i, err)
		}
		want += (1.5 - want) * w
		if got := accum(); math.Abs(got-want) > 1e-5 {
			t.Fatalf("frame %d: accumulator = %v, want %v", i, got, want)
		}
	}
	if got := accum(); math.Abs(got-1.5) > 1e-3 {
		t.Errorf("accumulator did not converge: %v", got)
	}
}

func TestTemporalResetsOnResize(t *testing.T) {
	p := newTestPipeline(t, nil)
	params := DefaultParams()
	params.TemporalFiltering = 0.5

	for _, size := range []Extent{{64, 64}, {64, 64}, {32, 48}} {
		src := newImage(t, p.Backend(), size.Width, size.Height)
		dst := newImage(t, p.Backend(), size.Width, size.Height)
		res, err := p.Apply(src, dst, params)
		if err != nil {
			t.Fatalf("%v: Apply() = %v", size, err)
		}
		if p.temporal.extent != res.Plan.Levels[1] {
			t.Errorf("%v: accumulator extent %v, want %v", size, p.temporal.extent, res.Plan.Levels[1])
		}
		if s := p.Stats(); s.Outstanding != 1 {
			t.Errorf("%v: Outstanding = %d, want 1", size, s.Outstanding)
		}
	}
}

func TestApplyBufferExhausted(t *testing.T) {
	tests := []struct {
		name    string
		backend *software.Backend
		opts    []Option
		cause   error
	}{
		{"max buffers", software.New(), []Option{WithMaxBuffers(2)}, pool.ErrExhausted},
		// room for src and dst only
		{"memory limit", software.New(software.WithMemoryLimit(2 * 32 * 32 * 16)), nil, software.ErrMemoryLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline(t, tt.backend, tt.opts...)
			src := newImage(t, tt.backend, 32, 32)
			dst := newImage(t, tt.backend, 32, 32)
			fillRandom(src, 6, 3)

			params := DefaultParams()
			params.TemporalFiltering = 0.5
			res, err := p.Apply(src, dst, params)
			if !errors.Is(err, ErrBufferExhausted) || !errors.Is(err, tt.cause) {
				t.Fatalf("Apply() = %v, want ErrBufferExhausted wrapping %v", err, tt.cause)
			}
			if !res.PassThrough || res.Temporal {
				t.Errorf("Result = %+v", res)
			}
			assertIdentical(t, dst, src)
			if s := p.Stats(); s.Outstanding != 0 {
				t.Errorf("Outstanding = %d after failed frame", s.Outstanding)
			}
		})
	}
}

type flakyBackend struct {
	*software.Backend
	fail bool
}

func (b *flakyBackend) Compile() error {
	if b.fail {
		return fmt.Errorf("flaky: %w", kernel.ErrCompile)
	}
	return b.Backend.Compile()
}

func TestApplyExhaustedDuringQuarterPasses(t *testing.T) {
	for _, limit := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("limit %d", limit), func(t *testing.T) {
			b := software.New()
			p := newTestPipeline(t, b, WithQuarterDownsample(16), WithMaxBuffers(limit))
			src := newImage(t, b, 512, 512)
			dst := newImage(t, b, 512, 512)
			fillRandom(src, 11, 4)

			params := DefaultParams()
			params.Radius = 3
			res, err := p.Apply(src, dst, params)
			if res.Plan.QuarterSteps != 2 {
				t.Fatalf("plan has %d quarter steps, want 2", res.Plan.QuarterSteps)
			}
			switch {
			case err != nil:
				if !errors.Is(err, ErrBufferExhausted) {
					t.Fatalf("Apply() = %v, want ErrBufferExhausted", err)
				}
				if !res.PassThrough {
					t.Error("failed frame was not passed through")
				}
				assertIdentical(t, dst, src)
			case limit == 1:
				t.Fatal("Apply() succeeded with a single buffer")
			}
			if s := p.Stats(); s.Outstanding != 0 {
				t.Errorf("Outstanding = %d", s.Outstanding)
			}
		})
	}
}

func TestZeroIntensityCoolsDisabledTemporal(t *testing.T) {
	p := newTestPipeline(t, nil)
	src := newImage(t, p.Backend(), 64, 64)
	dst := newImage(t, p.Backend(), 64, 64)
	fillRandom(src, 12, 4)

	params := DefaultParams()
	params.TemporalFiltering = 0.5
	if res, err := p.Apply(src, dst, params); err != nil || !res.Temporal {
		t.Fatalf("warm-up frame: %+v, %v", res, err)
	}

	// intensity 0 alone keeps the history
	params.Intensity = 0
	res, err := p.Apply(src, dst, params)
	if err != nil || !res.Temporal {
		t.Fatalf("zero intensity frame: %+v, %v", res, err)
	}
	if s := p.Stats(); s.Outstanding != 1 {
		t.Errorf("Outstanding = %d with history kept, want 1", s.Outstanding)
	}

	params.TemporalFiltering = 0
	for i := range 3 {
		res, err := p.Apply(src, dst, params)
		if err != nil {
			t.Fatalf("frame %d: Apply() = %v", i, err)
		}
		if !res.PassThrough || res.Temporal {
			t.Errorf("frame %d: Result = %+v", i, res)
		}
		if s := p.Stats(); s.Outstanding != 0 {
			t.Errorf("frame %d: Outstanding = %d with temporal filtering off", i, s.Outstanding)
		}
		assertIdentical(t, dst, src)
	}
}

func TestInertPipeline(t *testing.T) {
	b := &flakyBackend{Backend: software.New(), fail: true}
	t.Cleanup(func() { _ = b.Close() })

	p, err := New(b)
	if !errors.Is(err, kernel.ErrCompile) {
		t.Fatalf("New() = %v, want ErrCompile", err)
	}
	if p == nil || !p.Inert() {
		t.Fatal("New() should return an inert pipeline")
	}

	src := newImage(t, b, 16, 16)
	dst := newImage(t, b, 16, 16)
	fillRandom(src, 7, 1)

	res, err := p.Apply(src, dst, DefaultParams())
	if err != nil || !res.PassThrough {
		t.Fatalf("Apply() = %+v, %v, want pass-through", res, err)
	}
	assertIdentical(t, dst, src)

	small := newImage(t, b, 8, 8)
	if _, err := p.Apply(src, small, DefaultParams()); !errors.Is(err, ErrInert) {
		t.Errorf("Apply(mismatched) = %v, want ErrInert", err)
	}

	b.fail = false
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize() = %v", err)
	}
	if p.Inert() {
		t.Error("pipeline still inert after Initialize")
	}
	if res, err := p.Apply(src, dst, DefaultParams()); err != nil || res.PassThrough {
		t.Errorf("Apply() after Initialize = %+v, %v", res, err)
	}
}

func TestApplyArguments(t *testing.T) {
	p := newTestPipeline(t, nil)
	img := newImage(t, p.Backend(), 8, 8)

	if _, err := p.Apply(img, img, DefaultParams()); !errors.Is(err, kernel.ErrAliased) {
		t.Errorf("Apply(img, img) = %v, want ErrAliased", err)
	}
	if _, err := p.Apply(nil, img, DefaultParams()); !errors.Is(err, kernel.ErrMissingInput) {
		t.Errorf("Apply(nil, img) = %v, want ErrMissingInput", err)
	}
	if err := p.PassThrough(img, nil); !errors.Is(err, kernel.ErrMissingInput) {
		t.Errorf("PassThrough(img, nil) = %v, want ErrMissingInput", err)
	}
}

func TestApplySinglePixel(t *testing.T) {
	p := newTestPipeline(t, nil, WithFormat(kernel.FormatRGBA32F))
	src := newImage(t, p.Backend(), 1, 1)
	dst := newImage(t, p.Backend(), 1, 1)
	src.Fill(1, 1, 1, 1)

	params := DefaultParams()
	params.Radius = 0
	params.Intensity = 1
	res, err := p.Apply(src, dst, params)
	if err != nil {
		t.Fatalf("Apply() = %v", err)
	}
	if res.Plan.Iterations != MinIterations {
		t.Errorf("Iterations = %d, want %d", res.Plan.Iterations, MinIterations)
	}
	assertUniform(t, dst, 1+MinIterations*0.225, 1, 1e-4)
}

func TestApplyQuarterDownsample(t *testing.T) {
	p := newTestPipeline(t, nil, WithFormat(kernel.FormatRGBA32F), WithQuarterDownsample(64))
	src := newImage(t, p.Backend(), 256, 256)
	dst := newImage(t, p.Backend(), 256, 256)
	src.Fill(1, 1, 1, 1)

	params := DefaultParams()
	params.Radius = 3
	params.Intensity = 1
	res, err := p.Apply(src, dst, params)
	if err != nil {
		t.Fatalf("Apply() = %v", err)
	}
	if res.Plan.QuarterSteps != 1 || res.Plan.Iterations != 3 {
		t.Fatalf("plan = %d quarter steps, %d iterations", res.Plan.QuarterSteps, res.Plan.Iterations)
	}
	assertUniform(t, dst, 1+3*0.225, 1, 1e-4)
	if s := p.Stats(); s.Outstanding != 0 {
		t.Errorf("Outstanding = %d", s.Outstanding)
	}
}

func BenchmarkApply(b *testing.B) {
	be := software.New()
	defer be.Close()
	p, err := New(be)
	if err != nil {
		b.Fatal(err)
	}
	defer p.Teardown()

	srcTex, _ := be.Allocate(640, 360, kernel.FormatRGBA32F)
	dstTex, _ := be.Allocate(640, 360, kernel.FormatRGBA32F)
	src := srcTex.(*software.Image)
	fillRandom(src, 8, 4)

	params := DefaultParams()
	b.ReportAllocs()
	for b.Loop() {
		if _, err := p.Apply(src, dstTex, params); err != nil {
			b.Fatal(err)
		}
	}
}
