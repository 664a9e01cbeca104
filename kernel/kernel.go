// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package kernel defines the contract between the bloom pipeline and the
// backend that executes its per-pixel kernels.
//
// A backend owns textures and runs kernels over them. The pipeline never
// touches pixels: it allocates textures through a pool, issues kernels in
// order and hands the backend the uniforms each kernel needs.
//
// Two backends ship with this module: backend/software executes kernels on
// the CPU, backend/wgpu records them as WebGPU compute passes.
package kernel

import (
	"errors"
	"fmt"
)

// Kernel identifies one of the per-pixel programs a backend executes.
type Kernel uint8

const (
	// Prefilter extracts the bright part of the source with the response
	// curve of the uniforms. Reads Main.
	Prefilter Kernel = iota

	// DownsampleFirst halves the prefiltered image. With anti-flicker the
	// four taps are averaged with Karis weights. Reads Main.
	DownsampleFirst

	// Downsample halves Main with a 4-tap bilinear box.
	Downsample

	// Quarter reduces Main to a quarter of its size with a 4x4 box.
	Quarter

	// BlurHorizontal applies a 5-tap box along x at the same resolution.
	BlurHorizontal

	// BlurVertical applies a 5-tap box along y at the same resolution.
	BlurVertical

	// Upsample writes Base + blur(Main) where Main is the coarser level.
	Upsample

	// Temporal writes lerp(Base, Main, TemporalBlend). Base is the
	// accumulated history, Main the current frame.
	Temporal

	// Composite writes Base + blur(Main) * Intensity honoring the color
	// space of the variant. Base is the source image.
	Composite

	// Count is the number of kernels.
	Count
)

var kernelNames = [Count]string{
	Prefilter:       "prefilter",
	DownsampleFirst: "downsample_first",
	Downsample:      "downsample",
	Quarter:         "quarter",
	BlurHorizontal:  "blur_h",
	BlurVertical:    "blur_v",
	Upsample:        "upsample",
	Temporal:        "temporal",
	Composite:       "composite",
}

// String returns the kernel name used in logs and shader entry points.
func (k Kernel) String() string {
	if k < Count {
		return kernelNames[k]
	}
	return fmt.Sprintf("Kernel(%d)", uint8(k))
}

// ReadsBase reports whether the kernel samples Uniforms.Base.
func (k Kernel) ReadsBase() bool {
	switch k {
	case Upsample, Temporal, Composite:
		return true
	default:
		return false
	}
}

// Errors reported by backends.
var (
	// ErrCompile is returned when a backend cannot build its kernels.
	ErrCompile = errors.New("kernel: compile failed")

	// ErrNotCompiled is returned by Dispatch before a successful Compile.
	ErrNotCompiled = errors.New("kernel: kernels not compiled")

	// ErrFormat is returned for an unknown or unsupported texture format.
	ErrFormat = errors.New("kernel: unsupported format")

	// ErrForeignTexture is returned when a texture was not allocated by
	// the backend it is handed to.
	ErrForeignTexture = errors.New("kernel: texture belongs to another backend")

	// ErrDimensions is returned for zero or negative texture sizes.
	ErrDimensions = errors.New("kernel: invalid texture dimensions")

	// ErrMissingInput is returned when a kernel's input texture is nil.
	ErrMissingInput = errors.New("kernel: missing input texture")

	// ErrAliased is returned when the destination is also an input.
	ErrAliased = errors.New("kernel: destination aliases an input")
)

// Texture is a backend-owned 2D image.
type Texture interface {
	Width() int
	Height() int
	Format() Format
}

// Backend executes kernels over the textures it allocates.
//
// Dispatch returns once the kernel is issued; a backend may defer execution
// until Flush but must preserve issue order. Backends are not required to
// be safe for concurrent use: the pipeline serializes every call.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string

	// Compile prepares every kernel. It may be called again after a
	// failure. Errors wrap ErrCompile.
	Compile() error

	// Allocate creates a texture. Errors wrap ErrFormat or ErrDimensions,
	// or report the backend's own allocation failure.
	Allocate(width, height int, format Format) (Texture, error)

	// Free destroys a texture allocated by this backend.
	Free(tex Texture)

	// Dispatch runs k over every pixel of dst.
	Dispatch(k Kernel, dst Texture, u Uniforms) error

	// Copy transfers src into dst. Both must have the same size; formats
	// may differ.
	Copy(dst, src Texture) error

	// Flush submits the work issued since the previous Flush.
	Flush() error

	// Close releases backend resources. Textures must be freed first.
	Close() error
}

// Validate checks the textures of a dispatch: dst and Main must be
// present, Base must be present when the kernel reads it, and dst must not
// alias an input.
func Validate(k Kernel, dst Texture, u Uniforms) error {
	if k >= Count {
		return fmt.Errorf("kernel: unknown kernel %d", uint8(k))
	}
	if dst == nil || u.Main == nil {
		return fmt.Errorf("%s: %w", k, ErrMissingInput)
	}
	if dst == u.Main {
		return fmt.Errorf("%s: %w", k, ErrAliased)
	}
	if k.ReadsBase() {
		if u.Base == nil {
			return fmt.Errorf("%s: base: %w", k, ErrMissingInput)
		}
		if dst == u.Base {
			return fmt.Errorf("%s: base: %w", k, ErrAliased)
		}
	}
	return nil
}
