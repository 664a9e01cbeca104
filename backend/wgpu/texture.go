// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/bloom/internal/color"
	"github.com/gogpu/bloom/kernel"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/mrjoshuak/go-openexr/half"
)

// Texture is a storage buffer of width*height vec4<f32> texels.
type Texture struct {
	owner  *Backend
	buf    hal.Buffer
	size   uint64
	width  int
	height int
	format kernel.Format
}

// Width implements kernel.Texture.
func (t *Texture) Width() int { return t.width }

// Height implements kernel.Texture.
func (t *Texture) Height() int { return t.height }

// Format implements kernel.Texture.
func (t *Texture) Format() kernel.Format { return t.format }

// Allocate creates a texture buffer.
func (b *Backend) Allocate(width, height int, format kernel.Format) (kernel.Texture, error) {
	if !format.IsValid() {
		return nil, fmt.Errorf("wgpu: %v: %w", format, kernel.ErrFormat)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("wgpu: %dx%d: %w", width, height, kernel.ErrDimensions)
	}
	size := uint64(width) * uint64(height) * texelBytes //nolint:gosec // checked positive
	if size > b.maxTextureBytes {
		return nil, fmt.Errorf("wgpu: %dx%d is %d bytes, limit %d: %w", width, height, size, b.maxTextureBytes, ErrTextureTooLarge)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	buf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: fmt.Sprintf("bloom_texture_%dx%d", width, height), Size: size,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create texture buffer: %w", err)
	}
	t := &Texture{owner: b, buf: buf, size: size, width: width, height: height, format: format}
	b.live[t] = struct{}{}
	b.stats.LiveTextures++
	b.stats.LiveBytes += size
	return t, nil
}

// Free destroys a texture. A texture referenced by unfinished GPU work is
// destroyed when that work retires. Foreign textures are ignored.
func (b *Backend) Free(tex kernel.Texture) {
	t, ok := tex.(*Texture)
	if !ok || t == nil || t.owner != b {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.live[t]; !ok {
		return
	}
	delete(b.live, t)
	b.stats.LiveTextures--
	b.stats.LiveBytes -= t.size

	switch {
	case b.recording != nil:
		b.recording.garbage = append(b.recording.garbage, t.buf)
	case b.inFlight != nil:
		b.inFlight.garbage = append(b.inFlight.garbage, t.buf)
	default:
		b.device.DestroyBuffer(t.buf)
	}
	t.buf = nil
}

// Upload writes RGBA pixels, four float32 per texel, into tex. The values
// are quantized to the texture format. Recorded work is submitted first so
// the write lands after it.
func (b *Backend) Upload(tex kernel.Texture, pix []float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.own(tex)
	if err != nil {
		return fmt.Errorf("wgpu: upload: %w", err)
	}
	if len(pix) != t.width*t.height*4 {
		return fmt.Errorf("wgpu: upload %d values into %dx%d: %w", len(pix), t.width, t.height, kernel.ErrDimensions)
	}
	if err := b.flushLocked(); err != nil {
		return err
	}
	b.queue.WriteBuffer(t.buf, 0, encodeTexels(pix, t.format))
	return nil
}

// Download reads tex back as RGBA float32 pixels. It submits recorded
// work and waits for the GPU.
func (b *Backend) Download(tex kernel.Texture) ([]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.own(tex)
	if err != nil {
		return nil, fmt.Errorf("wgpu: download: %w", err)
	}
	if err := b.flushLocked(); err != nil {
		return nil, err
	}
	if err := b.retire(); err != nil {
		return nil, err
	}

	staging, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "bloom_staging", Size: t.size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create staging buffer: %w", err)
	}
	defer b.device.DestroyBuffer(staging)

	encoder, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "bloom_readback"})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("bloom_readback"); err != nil {
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(t.buf, staging, []hal.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: t.size}})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("wgpu: end encoding: %w", err)
	}
	defer b.device.FreeCommandBuffer(cmdBuf)

	fence, err := b.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("wgpu: create fence: %w", err)
	}
	defer b.device.DestroyFence(fence)
	if err := b.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return nil, fmt.Errorf("wgpu: submit: %w", err)
	}
	ok, err := b.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return nil, fmt.Errorf("wgpu: wait for GPU: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("wgpu: readback after %v: %w", fenceTimeout, ErrTimeout)
	}

	raw := make([]byte, t.size)
	if err := b.queue.ReadBuffer(staging, 0, raw); err != nil {
		return nil, fmt.Errorf("wgpu: readback: %w", err)
	}
	return decodeTexels(raw, t.format), nil
}

// encodeTexels converts RGBA pixels to the texel layout of format.
func encodeTexels(pix []float32, format kernel.Format) []byte {
	out := make([]byte, 0, len(pix)*4)
	put := func(v float32) { out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v)) }

	for i := 0; i+3 < len(pix); i += 4 {
		switch format {
		case kernel.FormatRGBM8:
			p := color.EncodeRGBM(color.RGBA{R: pix[i], G: pix[i+1], B: pix[i+2]})
			for _, c := range p {
				put(float32(c) / 255)
			}
		case kernel.FormatRGBA16F:
			for _, c := range pix[i : i+4] {
				put(half.FromFloat32(c).Float32())
			}
		default:
			for _, c := range pix[i : i+4] {
				put(c)
			}
		}
	}
	return out
}

// decodeTexels is the inverse of encodeTexels.
func decodeTexels(raw []byte, format kernel.Format) []float32 {
	pix := make([]float32, len(raw)/4)
	for i := range pix {
		pix[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	if format != kernel.FormatRGBM8 {
		return pix
	}
	for i := 0; i+3 < len(pix); i += 4 {
		var p [4]uint8
		for c := range p {
			p[c] = uint8(math.Round(float64(pix[i+c]) * 255)) //nolint:gosec // stored in [0,1]
		}
		d := color.DecodeRGBM(p)
		pix[i], pix[i+1], pix[i+2], pix[i+3] = d.R, d.G, d.B, d.A
	}
	return pix
}
