// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu executes the bloom kernels as WebGPU compute passes on a
// gogpu/wgpu HAL device.
//
// # Architecture
//
// Every texture lives in a storage buffer of vec4<f32> texels. The kernels
// are entry points of one WGSL module (shaders/bloom.wgsl), validated with
// naga and built into one compute pipeline each:
//
//	Dispatch -> uniform buffer + bind group -> compute pass (8x8 workgroups)
//
// Dispatch and Copy record into a single command encoder per frame; Flush
// submits it. A frame's transient uniform buffers and bind groups are
// destroyed once its fence signals, which Flush checks at the start of
// the next frame, so the CPU never waits on the frame it just submitted.
//
// # Storage formats
//
// kernel.FormatRGBM8 is encoded and decoded inside the shaders and keeps
// its 8-bit precision. kernel.FormatRGBA16F is quantized on upload only;
// on the GPU it is held at float32 precision.
//
// # Device sharing
//
// New takes a HAL device and queue; NewFromProvider takes them from a
// gpucontext.DeviceProvider such as a gogpu application, and
// RegisterProvider exposes that device through the backend registry.
// Shared devices are never destroyed by Close.
package wgpu
