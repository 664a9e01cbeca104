package bloom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/bloom/internal/pool"
	"github.com/gogpu/bloom/kernel"
)

// Stats is a snapshot of the pipeline's texture pool.
type Stats = pool.Stats

// Result describes one Apply call.
type Result struct {
	// Plan is the pyramid the frame used. Zero for pass-through frames
	// that never planned.
	Plan Plan
	// PassThrough reports that dst holds an unmodified copy of src.
	PassThrough bool
	// Temporal reports that the accumulation buffer is warm after the
	// frame.
	Temporal bool
}

// Pipeline applies the bloom effect through a kernel backend.
//
// Apply calls must not overlap; the pipeline serializes them with a mutex
// to turn accidental concurrent use into waiting instead of corruption.
type Pipeline struct {
	mu sync.Mutex

	backend kernel.Backend
	opts    options
	pool    *pool.Pool

	temporal temporal
	compiled bool
}

// New creates a pipeline over b and compiles its kernels.
//
// When compilation fails New returns both the error and a usable inert
// pipeline: Apply then copies src to dst unchanged, and Initialize may be
// retried.
func New(b kernel.Backend, opts ...Option) (*Pipeline, error) {
	if b == nil {
		return nil, ErrNoBackend
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if !o.format.IsValid() {
		return nil, fmt.Errorf("bloom: intermediate format %s: %w", o.format, kernel.ErrFormat)
	}

	p := &Pipeline{
		backend: b,
		opts:    o,
		pool:    pool.New(b, o.maxBuffers, o.maxIdle),
	}
	if err := p.Initialize(); err != nil {
		return p, err
	}
	return p, nil
}

func (p *Pipeline) logger() *slog.Logger {
	if p.opts.logger != nil {
		return p.opts.logger
	}
	return Logger()
}

// Backend returns the kernel backend the pipeline dispatches to.
func (p *Pipeline) Backend() kernel.Backend {
	return p.backend
}

// Initialize compiles the kernels. On failure the pipeline is inert until
// a later Initialize succeeds.
func (p *Pipeline) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	log := p.logger()
	propagateLogger(p.backend, log)

	if err := p.backend.Compile(); err != nil {
		p.compiled = false
		log.Warn("bloom: kernels unavailable, pipeline is inert",
			"backend", p.backend.Name(), "error", err)
		return fmt.Errorf("bloom: initialize %s: %w", p.backend.Name(), err)
	}
	p.compiled = true
	log.Info("bloom: pipeline ready",
		"backend", p.backend.Name(), "format", p.opts.format.String())
	return nil
}

// Inert reports whether the kernels are unavailable.
func (p *Pipeline) Inert() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.compiled
}

// Apply renders one frame: src with bloom added is written to dst.
//
// Params are sanitized before use. A frame with zero intensity, or on an
// inert pipeline, is passed through; a zero-intensity frame keeps the
// temporal history unless temporal filtering is off too. When the frame fails midway every
// texture it acquired is released, the temporal history is dropped, dst
// receives a copy of src, and the error is returned with
// Result.PassThrough set.
func (p *Pipeline) Apply(src, dst kernel.Texture, params Params) (Result, error) {
	if src == nil || dst == nil {
		return Result{}, fmt.Errorf("bloom: apply: %w", kernel.ErrMissingInput)
	}
	if src == dst {
		return Result{}, fmt.Errorf("bloom: apply: %w", kernel.ErrAliased)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	params = params.Sanitize()
	log := p.logger()

	if !p.compiled {
		if err := p.passThrough(src, dst); err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrInert, err)
		}
		return Result{PassThrough: true}, nil
	}
	if params.Intensity == 0 {
		if params.TemporalFiltering == 0 {
			p.temporal.cool(p.pool, log, "disabled")
		}
		err := p.passThrough(src, dst)
		return Result{PassThrough: true, Temporal: p.temporal.warm()}, err
	}

	plan := PlanPyramid(src.Width(), src.Height(), params.Radius, params.HighQuality).
		WithQuarterSteps(p.opts.quarterMaxHeight)
	if log.Enabled(context.Background(), slog.LevelDebug) {
		log.Debug("bloom: plan",
			"src", Extent{src.Width(), src.Height()}.String(),
			"iterations", plan.Iterations,
			"sample_scale", plan.SampleScale,
			"quarter_steps", plan.QuarterSteps,
			"params", params)
	}

	err := p.render(src, dst, params, plan)
	if err == nil {
		err = p.backend.Flush()
	}
	if err == nil {
		return Result{Plan: plan, Temporal: p.temporal.warm()}, nil
	}

	if errors.Is(err, pool.ErrExhausted) {
		err = fmt.Errorf("%w: %w", ErrBufferExhausted, err)
	}
	log.Warn("bloom: frame failed, passing through", "error", err)
	p.temporal.cool(p.pool, log, "frame failed")
	if perr := p.passThrough(src, dst); perr != nil {
		return Result{Plan: plan}, errors.Join(err, perr)
	}
	return Result{Plan: plan, PassThrough: true}, err
}

// render issues every stage of one frame. The scope releases whatever the
// stages still hold on any return.
func (p *Pipeline) render(src, dst kernel.Texture, params Params, plan Plan) error {
	scope := p.pool.NewScope()
	defer scope.Close()

	f := newFrame(p, scope, params, plan)
	if err := f.prefilter(src); err != nil {
		return err
	}
	if err := f.downsample(&p.temporal); err != nil {
		return err
	}
	if err := f.blur(); err != nil {
		return err
	}
	if err := f.upsample(); err != nil {
		return err
	}
	return f.composite(src, dst)
}

// PassThrough copies src to dst unchanged, the fallback a host uses when
// the effect is disabled.
func (p *Pipeline) PassThrough(src, dst kernel.Texture) error {
	if src == nil || dst == nil {
		return fmt.Errorf("bloom: pass-through: %w", kernel.ErrMissingInput)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.passThrough(src, dst)
}

func (p *Pipeline) passThrough(src, dst kernel.Texture) error {
	if src == dst {
		return nil
	}
	if err := p.backend.Copy(dst, src); err != nil {
		return fmt.Errorf("bloom: pass-through: %w", err)
	}
	if err := p.backend.Flush(); err != nil {
		return fmt.Errorf("bloom: pass-through: %w", err)
	}
	return nil
}

// Teardown releases the accumulation buffer and frees every pooled
// texture. The pipeline stays usable; the next frame starts cold.
// The backend is not closed.
func (p *Pipeline) Teardown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.temporal.cool(p.pool, p.logger(), "teardown")
	p.pool.Drain()
}

// Stats returns the pool counters. After Teardown, Outstanding is zero.
func (p *Pipeline) Stats() Stats {
	return p.pool.Stats()
}
