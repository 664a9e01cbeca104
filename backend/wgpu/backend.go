// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/bloom/backend"
	"github.com/gogpu/bloom/kernel"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

//go:embed shaders/bloom.wgsl
var bloomShaderWGSL string

// Name is the registry name of the WebGPU backend.
const Name = backend.NameWGPU

const (
	workgroupSize = 8
	texelBytes    = 16
	fenceTimeout  = 5 * time.Second

	// DefaultMaxTextureBytes matches the default storage binding limit.
	DefaultMaxTextureBytes = 128 << 20
)

// copyEntry is the pipeline index of the format-converting copy.
const copyEntry = int(kernel.Count)

const entryCount = copyEntry + 1

func entryPoint(i int) string {
	if i == copyEntry {
		return "cs_copy"
	}
	return "cs_" + kernel.Kernel(i).String()
}

var (
	// ErrNoDevice is returned when no HAL device is available.
	ErrNoDevice = errors.New("wgpu: no device")

	// ErrTimeout is returned when the GPU does not signal a fence in time.
	ErrTimeout = errors.New("wgpu: GPU timeout")

	// ErrTextureTooLarge is returned by Allocate above the texture size
	// limit.
	ErrTextureTooLarge = errors.New("wgpu: texture exceeds storage binding limit")
)

// Stats reports backend activity.
type Stats struct {
	Dispatches   int
	Copies       int
	Submits      int
	LiveTextures int
	LiveBytes    uint64
}

// Backend records bloom kernels as compute passes on a HAL device.
//
// Backend is safe for concurrent use, although the pipeline serializes
// its calls anyway.
type Backend struct {
	mu sync.Mutex

	device   hal.Device
	queue    hal.Queue
	instance hal.Instance // nil unless Open created the device
	external bool         // device is shared, don't destroy on Close

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipelines  [entryCount]hal.ComputePipeline
	compiled   bool

	recording *frame // open encoder, nil between frames
	inFlight  *frame // submitted, not yet retired

	maxTextureBytes uint64
	live            map[*Texture]struct{}
	stats           Stats

	logger atomic.Pointer[slog.Logger]
}

// Option configures a Backend.
type Option func(*options)

type options struct {
	logger          *slog.Logger
	maxTextureBytes uint64
}

// WithLogger sets the backend logger. By default the backend is silent.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMaxTextureBytes bounds the size of one texture buffer.
func WithMaxTextureBytes(n uint64) Option {
	return func(o *options) { o.maxTextureBytes = n }
}

// New creates a backend on device and queue. The caller keeps ownership
// of the device.
func New(device hal.Device, queue hal.Queue, opts ...Option) (*Backend, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("wgpu: device and queue are required: %w", ErrNoDevice)
	}
	o := options{maxTextureBytes: DefaultMaxTextureBytes}
	for _, opt := range opts {
		opt(&o)
	}
	b := &Backend{
		device:          device,
		queue:           queue,
		external:        true,
		maxTextureBytes: o.maxTextureBytes,
		live:            make(map[*Texture]struct{}),
	}
	b.SetLogger(o.logger)
	return b, nil
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

// Name returns "wgpu".
func (b *Backend) Name() string { return Name }

// Compile validates the WGSL module with naga and builds one compute
// pipeline per kernel. A failed Compile leaves no pipelines behind.
func (b *Backend) Compile() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.destroyPipelines()
	if _, err := naga.Compile(bloomShaderWGSL); err != nil {
		return fmt.Errorf("wgpu: validate shader: %w: %w", kernel.ErrCompile, err)
	}
	if err := b.createPipelines(); err != nil {
		b.destroyPipelines()
		return fmt.Errorf("wgpu: %w: %w", kernel.ErrCompile, err)
	}
	b.compiled = true
	b.log().Info("wgpu: kernels ready", "pipelines", entryCount)
	return nil
}

func (b *Backend) createPipelines() error {
	shader, err := b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "bloom",
		Source: hal.ShaderSource{WGSL: bloomShaderWGSL},
	})
	if err != nil {
		return fmt.Errorf("create shader module: %w", err)
	}
	b.shader = shader

	bindLayout, err := b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "bloom_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 3, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}
	b.bindLayout = bindLayout

	pipeLayout, err := b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "bloom_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{b.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	b.pipeLayout = pipeLayout

	for i := range b.pipelines {
		entry := entryPoint(i)
		p, err := b.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:   "bloom_" + entry,
			Layout:  b.pipeLayout,
			Compute: hal.ComputeState{Module: b.shader, EntryPoint: entry},
		})
		if err != nil {
			return fmt.Errorf("create compute pipeline %s: %w", entry, err)
		}
		b.pipelines[i] = p
	}
	return nil
}

func (b *Backend) destroyPipelines() {
	b.compiled = false
	for i, p := range b.pipelines {
		if p != nil {
			b.device.DestroyComputePipeline(p)
			b.pipelines[i] = nil
		}
	}
	if b.pipeLayout != nil {
		b.device.DestroyPipelineLayout(b.pipeLayout)
		b.pipeLayout = nil
	}
	if b.bindLayout != nil {
		b.device.DestroyBindGroupLayout(b.bindLayout)
		b.bindLayout = nil
	}
	if b.shader != nil {
		b.device.DestroyShaderModule(b.shader)
		b.shader = nil
	}
}

// Dispatch records k over every pixel of dst into the current frame.
func (b *Backend) Dispatch(k kernel.Kernel, dst kernel.Texture, u kernel.Uniforms) error {
	if err := kernel.Validate(k, dst, u); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.compiled {
		return fmt.Errorf("wgpu: %s: %w", k, kernel.ErrNotCompiled)
	}
	out, err := b.own(dst)
	if err != nil {
		return fmt.Errorf("wgpu: %s: dst: %w", k, err)
	}
	main, err := b.own(u.Main)
	if err != nil {
		return fmt.Errorf("wgpu: %s: main: %w", k, err)
	}
	base := main
	if k.ReadsBase() {
		if base, err = b.own(u.Base); err != nil {
			return fmt.Errorf("wgpu: %s: base: %w", k, err)
		}
	}

	if err := b.record(int(k), out, main, base, packParams(out, main, base, u)); err != nil {
		return fmt.Errorf("wgpu: %s: %w", k, err)
	}
	b.stats.Dispatches++

	if log := b.log(); log.Enabled(context.Background(), slog.LevelDebug) {
		log.Debug("wgpu: dispatch", "kernel", k.String(), "dst", fmt.Sprintf("%dx%d", out.width, out.height), "uniforms", u)
	}
	return nil
}

// Copy records a transfer of src into dst. Equal formats copy the buffer;
// differing formats run the converting copy kernel.
func (b *Backend) Copy(dst, src kernel.Texture) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	out, err := b.own(dst)
	if err != nil {
		return fmt.Errorf("wgpu: copy: dst: %w", err)
	}
	in, err := b.own(src)
	if err != nil {
		return fmt.Errorf("wgpu: copy: src: %w", err)
	}
	if out == in {
		return fmt.Errorf("wgpu: copy: %w", kernel.ErrAliased)
	}
	if out.width != in.width || out.height != in.height {
		return fmt.Errorf("wgpu: copy %dx%d into %dx%d: %w",
			in.width, in.height, out.width, out.height, kernel.ErrDimensions)
	}

	if out.format == in.format {
		f, err := b.begin()
		if err != nil {
			return fmt.Errorf("wgpu: copy: %w", err)
		}
		f.encoder.CopyBufferToBuffer(in.buf, out.buf, []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: in.size},
		})
	} else {
		if !b.compiled {
			return fmt.Errorf("wgpu: copy %s to %s: %w", in.format, out.format, kernel.ErrNotCompiled)
		}
		if err := b.record(copyEntry, out, in, in, packParams(out, in, in, kernel.Uniforms{})); err != nil {
			return fmt.Errorf("wgpu: copy: %w", err)
		}
	}
	b.stats.Copies++
	return nil
}

// Flush submits the recorded frame. It first retires the previous frame,
// waiting for its fence if the GPU has not finished it yet.
func (b *Backend) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

func (b *Backend) flushLocked() error {
	f := b.recording
	if f == nil {
		return nil
	}
	b.recording = nil

	cmdBuf, err := f.encoder.EndEncoding()
	if err != nil {
		f.release(b.device)
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	f.cmdBuf = cmdBuf

	if err := b.retire(); err != nil {
		f.release(b.device)
		return err
	}

	fence, err := b.device.CreateFence()
	if err != nil {
		f.release(b.device)
		return fmt.Errorf("wgpu: create fence: %w", err)
	}
	f.fence = fence
	if err := b.queue.Submit([]hal.CommandBuffer{f.cmdBuf}, f.fence, 1); err != nil {
		f.release(b.device)
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	b.inFlight = f
	b.stats.Submits++
	b.log().Debug("wgpu: frame submitted", "passes", f.passes, "uniforms", len(f.uniforms))
	return nil
}

// retire waits for the in-flight frame and destroys its resources.
func (b *Backend) retire() error {
	f := b.inFlight
	if f == nil {
		return nil
	}
	b.inFlight = nil
	defer f.release(b.device)

	ok, err := b.device.Wait(f.fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("wgpu: wait for GPU: %w", err)
	}
	if !ok {
		return fmt.Errorf("wgpu: after %v: %w", fenceTimeout, ErrTimeout)
	}
	return nil
}

// Close waits for outstanding GPU work and destroys every resource the
// backend created. A shared device is left alive.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if f := b.recording; f != nil {
		b.recording = nil
		f.encoder.DiscardEncoding()
		f.release(b.device)
	}
	err := b.retire()

	for tex := range b.live {
		b.device.DestroyBuffer(tex.buf)
		delete(b.live, tex)
	}
	b.stats.LiveTextures, b.stats.LiveBytes = 0, 0
	b.destroyPipelines()

	if !b.external {
		b.device.Destroy()
		if b.instance != nil {
			b.instance.Destroy()
			b.instance = nil
		}
	}
	return err
}

// Stats returns a snapshot of backend counters.
func (b *Backend) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func (b *Backend) own(tex kernel.Texture) (*Texture, error) {
	t, ok := tex.(*Texture)
	if !ok || t == nil || t.owner != b {
		return nil, fmt.Errorf("%T: %w", tex, kernel.ErrForeignTexture)
	}
	if t.buf == nil {
		return nil, fmt.Errorf("texture %dx%d was freed: %w", t.width, t.height, kernel.ErrForeignTexture)
	}
	return t, nil
}
