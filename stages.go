package bloom

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gogpu/bloom/internal/pool"
	"github.com/gogpu/bloom/kernel"
)

// frame carries one invocation through the stages.
//
// down and up are the two halves of the pyramid chain, both of length
// Iterations+1. up[0] and up[Iterations] stay nil. Slots are cleared as
// their textures are released early.
type frame struct {
	backend kernel.Backend
	pool    *pool.Pool
	scope   *pool.Scope
	log     *slog.Logger

	params  Params
	plan    Plan
	format  kernel.Format
	variant kernel.Variant

	threshold, knee, coeff1, coeff2 float32

	down []kernel.Texture
	up   []kernel.Texture
}

func newFrame(p *Pipeline, scope *pool.Scope, params Params, plan Plan) *frame {
	f := &frame{
		backend: p.backend,
		pool:    p.pool,
		scope:   scope,
		log:     p.logger(),
		params:  params,
		plan:    plan,
		format:  p.opts.format,
		variant: kernel.Variant{
			AntiFlicker: params.AntiFlicker,
			HighQuality: params.HighQuality,
			ColorSpace:  params.ColorSpace,
		},
		down: make([]kernel.Texture, plan.Iterations+1),
		up:   make([]kernel.Texture, plan.Iterations+1),
	}
	f.threshold, f.knee, f.coeff1, f.coeff2 = params.ResponseCurve().Knee()
	return f
}

func (f *frame) acquire(e Extent) (kernel.Texture, error) {
	return f.scope.Acquire(e.Width, e.Height, f.format)
}

// uniforms returns the frame-wide uniforms bound to main and base.
func (f *frame) uniforms(main, base kernel.Texture) kernel.Uniforms {
	return kernel.Uniforms{
		Main:        main,
		Base:        base,
		Threshold:   f.threshold,
		Knee:        f.knee,
		Coeff1:      f.coeff1,
		Coeff2:      f.coeff2,
		SampleScale: float32(f.plan.SampleScale),
		Intensity:   float32(f.params.Intensity),
		Variant:     f.variant,
	}
}

func (f *frame) dispatch(k kernel.Kernel, dst kernel.Texture, u kernel.Uniforms) error {
	if f.log.Enabled(context.Background(), slog.LevelDebug) {
		f.log.Debug("bloom: dispatch",
			"kernel", k.String(),
			"dst", fmt.Sprintf("%dx%d", dst.Width(), dst.Height()),
			"uniforms", u)
	}
	if err := f.backend.Dispatch(k, dst, u); err != nil {
		return fmt.Errorf("bloom: %s: %w", k, err)
	}
	return nil
}

// prefilter extracts the bright part of src into level 0, through the
// quarter passes when the plan has any.
func (f *frame) prefilter(src kernel.Texture) error {
	target, err := f.acquire(f.plan.Effective)
	if err != nil {
		return err
	}

	u := f.uniforms(src, nil)
	if f.plan.LowResolution && f.params.AntiFlicker {
		u.PrefilterOffset = -0.5
	}
	if err := f.dispatch(kernel.Prefilter, target, u); err != nil {
		return err
	}

	for _, e := range f.plan.quarterExtents() {
		next, err := f.acquire(e)
		if err != nil {
			return err
		}
		if err := f.dispatch(kernel.Quarter, next, f.uniforms(target, nil)); err != nil {
			return err
		}
		f.scope.Release(target)
		target = next
	}

	f.down[0] = target
	return nil
}

// downsample builds levels 1..Iterations. Level 1 passes through the
// temporal accumulator before the chain continues.
func (f *frame) downsample(t *temporal) error {
	for i := 1; i <= f.plan.Iterations; i++ {
		dst, err := f.acquire(f.plan.Levels[i])
		if err != nil {
			return err
		}
		k := kernel.Downsample
		if i == 1 {
			k = kernel.DownsampleFirst
		}
		if err := f.dispatch(k, dst, f.uniforms(f.down[i-1], nil)); err != nil {
			return err
		}
		f.down[i] = dst

		if i == 1 {
			// level 0 is never read again
			f.scope.Release(f.down[0])
			f.down[0] = nil

			blended, err := t.apply(f, dst)
			if err != nil {
				return err
			}
			f.down[1] = blended
		}
	}
	return nil
}

// blur runs the extra separable box passes over the coarsest level.
func (f *frame) blur() error {
	n := f.plan.Iterations
	if f.params.BlurIterations == 0 {
		return nil
	}
	tmp, err := f.acquire(f.plan.Levels[n])
	if err != nil {
		return err
	}
	for range f.params.BlurIterations {
		if err := f.dispatch(kernel.BlurHorizontal, tmp, f.uniforms(f.down[n], nil)); err != nil {
			return err
		}
		if err := f.dispatch(kernel.BlurVertical, f.down[n], f.uniforms(tmp, nil)); err != nil {
			return err
		}
	}
	f.scope.Release(tmp)
	return nil
}

// upsample walks the chain from the coarsest level, adding each blurred
// coarse level onto the next finer one. up[1] holds the result.
func (f *frame) upsample() error {
	n := f.plan.Iterations

	first, err := f.acquire(f.plan.Levels[n-1])
	if err != nil {
		return err
	}
	if err := f.dispatch(kernel.Upsample, first, f.uniforms(f.down[n], f.down[n-1])); err != nil {
		return err
	}
	f.up[n-1] = first
	f.releaseDown(n)
	f.releaseDown(n - 1)

	for i := n - 1; i >= 2; i-- {
		dst, err := f.acquire(f.plan.Levels[i-1])
		if err != nil {
			return err
		}
		if err := f.dispatch(kernel.Upsample, dst, f.uniforms(f.up[i], f.down[i-1])); err != nil {
			return err
		}
		f.up[i-1] = dst
		f.scope.Release(f.up[i])
		f.up[i] = nil
		f.releaseDown(i - 1)
	}
	return nil
}

func (f *frame) releaseDown(i int) {
	if f.down[i] != nil {
		f.scope.Release(f.down[i])
		f.down[i] = nil
	}
}

// composite adds the bloom held in up[1] onto src and writes dst.
func (f *frame) composite(src, dst kernel.Texture) error {
	return f.dispatch(kernel.Composite, dst, f.uniforms(f.up[1], src))
}
