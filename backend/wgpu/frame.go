// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/bloom/kernel"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// paramsSize is the size of the Params uniform in bloom.wgsl.
const paramsSize = 64

// Variant flags, must match bloom.wgsl.
const (
	flagAntiFlicker uint32 = 1 << iota
	flagHighQuality
	flagGamma
)

// frame is one command stream with the transient resources its passes
// reference. Everything is destroyed when the frame retires.
type frame struct {
	encoder hal.CommandEncoder
	cmdBuf  hal.CommandBuffer
	fence   hal.Fence

	uniforms   []hal.Buffer
	bindGroups []hal.BindGroup
	garbage    []hal.Buffer // textures freed while the frame referenced them

	passes int
}

// begin returns the recording frame, opening an encoder if needed.
func (b *Backend) begin() (*frame, error) {
	if b.recording != nil {
		return b.recording, nil
	}
	encoder, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "bloom_frame"})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("bloom_frame"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	b.recording = &frame{encoder: encoder}
	return b.recording, nil
}

// record encodes one compute pass of pipeline entry over dst.
func (b *Backend) record(entry int, dst, main, base *Texture, params []byte) error {
	f, err := b.begin()
	if err != nil {
		return err
	}

	ub, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "bloom_params", Size: paramsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create uniform buffer: %w", err)
	}
	f.uniforms = append(f.uniforms, ub)
	b.queue.WriteBuffer(ub, 0, params)

	bg, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "bloom_bind", Layout: b.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: ub.NativeHandle(), Offset: 0, Size: paramsSize}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: main.buf.NativeHandle(), Offset: 0, Size: main.size}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: base.buf.NativeHandle(), Offset: 0, Size: base.size}},
			{Binding: 3, Resource: gputypes.BufferBinding{Buffer: dst.buf.NativeHandle(), Offset: 0, Size: dst.size}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group: %w", err)
	}
	f.bindGroups = append(f.bindGroups, bg)

	pass := f.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: entryPoint(entry)})
	pass.SetPipeline(b.pipelines[entry])
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(workgroups(dst.width), workgroups(dst.height), 1)
	pass.End()
	f.passes++
	return nil
}

// release destroys the frame's resources. The GPU must be done with them.
func (f *frame) release(device hal.Device) {
	for _, bg := range f.bindGroups {
		device.DestroyBindGroup(bg)
	}
	for _, buf := range f.uniforms {
		device.DestroyBuffer(buf)
	}
	for _, buf := range f.garbage {
		device.DestroyBuffer(buf)
	}
	if f.cmdBuf != nil {
		device.FreeCommandBuffer(f.cmdBuf)
	}
	if f.fence != nil {
		device.DestroyFence(f.fence)
	}
	*f = frame{}
}

func workgroups(n int) uint32 {
	return uint32((n + workgroupSize - 1) / workgroupSize) //nolint:gosec // texture sizes fit uint32
}

// packParams serializes the Params uniform of bloom.wgsl.
func packParams(dst, main, base *Texture, u kernel.Uniforms) []byte {
	var flags uint32
	if u.Variant.AntiFlicker {
		flags |= flagAntiFlicker
	}
	if u.Variant.HighQuality {
		flags |= flagHighQuality
	}
	if u.Variant.ColorSpace == kernel.ColorSpaceGamma {
		flags |= flagGamma
	}
	formats := uint32(main.format) | uint32(base.format)<<4 | uint32(dst.format)<<8

	out := make([]byte, 0, paramsSize)
	for _, v := range [...]uint32{
		uint32(main.width), uint32(main.height), //nolint:gosec // texture sizes fit uint32
		uint32(base.width), uint32(base.height), //nolint:gosec // texture sizes fit uint32
		uint32(dst.width), uint32(dst.height), //nolint:gosec // texture sizes fit uint32
		flags, formats,
	} {
		out = binary.LittleEndian.AppendUint32(out, v)
	}
	for _, v := range [...]float32{
		u.Threshold, u.Knee, u.Coeff1, u.Coeff2,
		u.SampleScale, u.Intensity, u.PrefilterOffset, u.TemporalBlend,
	} {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}
