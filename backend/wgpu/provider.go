// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/bloom/backend"
	"github.com/gogpu/bloom/kernel"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"
)

// ErrNoHAL is returned when a device provider does not expose HAL types.
var ErrNoHAL = errors.New("wgpu: provider does not expose HAL device and queue")

// halProvider is implemented by providers that expose HAL handles, such as
// gogpu applications.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// NewFromProvider creates a backend on the device of a host application.
// The provider must implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue. The device is shared: Close leaves it alive.
func NewFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Backend, error) {
	if provider == nil {
		return nil, fmt.Errorf("wgpu: nil provider: %w", ErrNoDevice)
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("wgpu: HalDevice is not hal.Device: %w", ErrNoHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("wgpu: HalQueue is not hal.Queue: %w", ErrNoHAL)
	}
	return New(device, queue, opts...)
}

// RegisterProvider makes the registry's "wgpu" entry create backends on
// the provider's device, replacing the standalone device factory.
func RegisterProvider(provider gpucontext.DeviceProvider, opts ...Option) {
	backend.Register(Name, func() (kernel.Backend, error) {
		return NewFromProvider(provider, opts...)
	})
}
