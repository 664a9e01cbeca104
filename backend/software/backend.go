// Package software provides a CPU reference implementation of the bloom
// kernels.
//
// Every kernel runs on float32 values regardless of the storage format;
// textures quantize on write the way GPU render targets do. Dispatch
// executes immediately, fanning destination rows out across a worker
// pool, and returns when the destination is complete.
package software

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/bloom/backend"
	"github.com/gogpu/bloom/internal/color"
	"github.com/gogpu/bloom/internal/parallel"
	"github.com/gogpu/bloom/kernel"
)

// Name is the registry name of the software backend.
const Name = backend.NameSoftware

// ErrMemoryLimit is returned by Allocate when the configured memory limit
// would be exceeded.
var ErrMemoryLimit = errors.New("software: memory limit exceeded")

func init() {
	backend.Register(Name, func() (kernel.Backend, error) {
		return New(), nil
	})
}

// Stats reports backend activity.
type Stats struct {
	Dispatches  int
	Copies      int
	Flushes     int
	LiveImages  int
	LiveBytes   int
	Allocations int
}

// Backend executes bloom kernels on the CPU.
//
// Backend is safe for concurrent use, although the pipeline serializes
// its calls anyway.
type Backend struct {
	mu       sync.Mutex
	workers  *parallel.WorkerPool
	kernels  [kernel.Count]kernelFunc
	compiled bool

	memoryLimit int
	live        map[*Image]struct{}
	stats       Stats

	logger atomic.Pointer[slog.Logger]
}

// Option configures a Backend.
type Option func(*options)

type options struct {
	workers     int
	memoryLimit int
	logger      *slog.Logger
}

// WithWorkers sets the number of worker goroutines. Zero or negative uses
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithMemoryLimit bounds the bytes of live images. Zero means unlimited.
func WithMemoryLimit(bytes int) Option {
	return func(o *options) { o.memoryLimit = bytes }
}

// WithLogger sets the backend logger. By default the backend is silent.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a software backend.
func New(opts ...Option) *Backend {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	b := &Backend{
		workers:     parallel.NewWorkerPool(o.workers),
		memoryLimit: o.memoryLimit,
		live:        make(map[*Image]struct{}),
	}
	b.SetLogger(o.logger)
	return b
}

// SetLogger replaces the backend logger. nil disables logging.
func (b *Backend) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	b.logger.Store(l)
}

func (b *Backend) log() *slog.Logger {
	return b.logger.Load()
}

// Name returns "software".
func (b *Backend) Name() string { return Name }

// Compile binds the kernel table.
func (b *Backend) Compile() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for k, fn := range kernelTable {
		if fn == nil {
			b.compiled = false
			return fmt.Errorf("software: %s: %w", kernel.Kernel(k), kernel.ErrCompile)
		}
	}
	b.kernels = kernelTable
	b.compiled = true
	b.log().Info("software: kernels ready", "kernels", int(kernel.Count), "workers", b.workers.Workers())
	return nil
}

// Allocate creates an image owned by the backend.
func (b *Backend) Allocate(width, height int, format kernel.Format) (kernel.Texture, error) {
	if !format.IsValid() {
		return nil, fmt.Errorf("software: %v: %w", format, kernel.ErrFormat)
	}
	size := width * height * format.BytesPerPixel()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.memoryLimit > 0 && b.stats.LiveBytes+size > b.memoryLimit {
		return nil, fmt.Errorf("software: %dx%d %s (%d bytes live): %w",
			width, height, format, b.stats.LiveBytes, ErrMemoryLimit)
	}
	img, err := NewImage(width, height, format)
	if err != nil {
		return nil, err
	}
	b.live[img] = struct{}{}
	b.stats.LiveImages++
	b.stats.LiveBytes += size
	b.stats.Allocations++
	return img, nil
}

// Free releases an image allocated by Allocate. Other textures are ignored.
func (b *Backend) Free(tex kernel.Texture) {
	img, ok := tex.(*Image)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.live[img]; !ok {
		return
	}
	delete(b.live, img)
	b.stats.LiveImages--
	b.stats.LiveBytes -= img.Bytes()
}

// Dispatch runs k over every pixel of dst.
func (b *Backend) Dispatch(k kernel.Kernel, dst kernel.Texture, u kernel.Uniforms) error {
	if err := kernel.Validate(k, dst, u); err != nil {
		return err
	}

	b.mu.Lock()
	compiled := b.compiled
	fn := b.kernels[k]
	b.mu.Unlock()
	if !compiled {
		return fmt.Errorf("software: %s: %w", k, kernel.ErrNotCompiled)
	}

	out, err := asImage(dst)
	if err != nil {
		return fmt.Errorf("software: %s: dst: %w", k, err)
	}
	main, err := asImage(u.Main)
	if err != nil {
		return fmt.Errorf("software: %s: main: %w", k, err)
	}
	var base *Image
	if k.ReadsBase() {
		if base, err = asImage(u.Base); err != nil {
			return fmt.Errorf("software: %s: base: %w", k, err)
		}
	}

	d := &dispatch{
		u:    u,
		main: main,
		base: base,
		dstW: out.width,
		dstH: out.height,
		tx:   1 / float32(main.width),
		ty:   1 / float32(main.height),
	}

	b.workers.Rows(out.height, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := range out.width {
				out.setPixel(x, y, fn(d, x, y))
			}
		}
	})

	b.mu.Lock()
	b.stats.Dispatches++
	b.mu.Unlock()

	if log := b.log(); log.Enabled(context.Background(), slog.LevelDebug) {
		log.Debug("software: dispatch", "kernel", k.String(), "dst", fmt.Sprintf("%dx%d", out.width, out.height), "uniforms", u)
	}
	return nil
}

// Copy transfers src into dst, converting formats when they differ.
func (b *Backend) Copy(dst, src kernel.Texture) error {
	out, err := asImage(dst)
	if err != nil {
		return fmt.Errorf("software: copy: dst: %w", err)
	}
	in, err := asImage(src)
	if err != nil {
		return fmt.Errorf("software: copy: src: %w", err)
	}
	if out == in {
		return fmt.Errorf("software: copy: %w", kernel.ErrAliased)
	}
	if out.width != in.width || out.height != in.height {
		return fmt.Errorf("software: copy %dx%d into %dx%d: %w",
			in.width, in.height, out.width, out.height, kernel.ErrDimensions)
	}
	out.copyFrom(in)

	b.mu.Lock()
	b.stats.Copies++
	b.mu.Unlock()
	return nil
}

// Flush is a no-op: dispatches complete synchronously.
func (b *Backend) Flush() error {
	b.mu.Lock()
	b.stats.Flushes++
	b.mu.Unlock()
	return nil
}

// Close stops the worker pool.
func (b *Backend) Close() error {
	b.workers.Close()
	b.mu.Lock()
	b.compiled = false
	b.mu.Unlock()
	return nil
}

// Stats returns a snapshot of backend counters.
func (b *Backend) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func asImage(tex kernel.Texture) (*Image, error) {
	img, ok := tex.(*Image)
	if !ok || img == nil {
		return nil, fmt.Errorf("%T: %w", tex, kernel.ErrForeignTexture)
	}
	return img, nil
}

// Upload writes RGBA pixels, four float32 per texel, into tex.
func (b *Backend) Upload(tex kernel.Texture, pix []float32) error {
	img, err := asImage(tex)
	if err != nil {
		return fmt.Errorf("software: upload: %w", err)
	}
	if len(pix) != img.width*img.height*4 {
		return fmt.Errorf("software: upload %d values into %dx%d: %w", len(pix), img.width, img.height, kernel.ErrDimensions)
	}
	for y := range img.height {
		for x := range img.width {
			i := (y*img.width + x) * 4
			img.setPixel(x, y, color.RGBA{R: pix[i], G: pix[i+1], B: pix[i+2], A: pix[i+3]})
		}
	}
	return nil
}

// Download returns the decoded pixels of tex.
func (b *Backend) Download(tex kernel.Texture) ([]float32, error) {
	img, err := asImage(tex)
	if err != nil {
		return nil, fmt.Errorf("software: download: %w", err)
	}
	pix := make([]float32, 0, img.width*img.height*4)
	for y := range img.height {
		for x := range img.width {
			c := img.pixel(x, y)
			pix = append(pix, c.R, c.G, c.B, c.A)
		}
	}
	return pix, nil
}
