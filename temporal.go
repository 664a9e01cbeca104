package bloom

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/gogpu/bloom/internal/pool"
	"github.com/gogpu/bloom/kernel"
)

// temporal is the cross-frame accumulator of the large-scale bloom.
//
// Cold: accum is nil. Warm: accum holds last frame's level 1 and is
// outstanding in the pool across frames; it is the only texture that
// outlives an invocation.
type temporal struct {
	accum  kernel.Texture
	extent Extent
	format kernel.Format
}

func (t *temporal) warm() bool { return t.accum != nil }

// blendWeight returns the weight of the current frame, 1 - exp(-4f).
func blendWeight(f float64) float64 {
	return 1 - math.Exp(-4*f)
}

// apply runs on level 1 of the current frame and returns the texture the
// chain continues with. The accumulation buffer is read before it is
// replaced.
func (t *temporal) apply(f *frame, level1 kernel.Texture) (kernel.Texture, error) {
	amount := f.params.TemporalFiltering
	ext := f.plan.Levels[1]

	if t.warm() {
		switch {
		case amount <= 0:
			t.cool(f.pool, f.log, "disabled")
		case ext != t.extent || f.format != t.format:
			t.cool(f.pool, f.log, "resized")
		}
	}
	if amount <= 0 {
		return level1, nil
	}

	if !t.warm() {
		accum, err := t.snapshot(f, level1, ext)
		if err != nil {
			return nil, err
		}
		t.accum, t.extent, t.format = accum, ext, f.format
		f.log.Info("bloom: temporal accumulator warm", "extent", ext.String(), "format", f.format.String())
		return level1, nil
	}

	blended, err := f.acquire(ext)
	if err != nil {
		return nil, err
	}
	u := f.uniforms(level1, t.accum)
	u.TemporalBlend = float32(blendWeight(amount))
	if err := f.dispatch(kernel.Temporal, blended, u); err != nil {
		return nil, err
	}
	f.scope.Release(level1)

	next, err := t.snapshot(f, blended, ext)
	if err != nil {
		return nil, err
	}
	f.pool.Release(t.accum)
	t.accum = next
	return blended, nil
}

// snapshot copies src into a new texture and detaches it from the frame
// scope once the copy is issued.
func (t *temporal) snapshot(f *frame, src kernel.Texture, ext Extent) (kernel.Texture, error) {
	tex, err := f.acquire(ext)
	if err != nil {
		return nil, err
	}
	if err := f.backend.Copy(tex, src); err != nil {
		return nil, fmt.Errorf("bloom: temporal copy: %w", err)
	}
	f.scope.Keep(tex)
	return tex, nil
}

// cool releases the accumulation buffer.
func (t *temporal) cool(p *pool.Pool, log *slog.Logger, reason string) {
	if !t.warm() {
		return
	}
	p.Release(t.accum)
	t.accum = nil
	log.Info("bloom: temporal accumulator cold", "reason", reason)
}
