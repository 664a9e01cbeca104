// Package bloom provides a multi-resolution screen-space bloom effect.
//
// # Overview
//
// The effect extracts the bright part of an HDR frame with a soft-knee
// threshold, builds a pyramid of successively halved copies, blurs them
// while walking back up the pyramid and adds the result onto the source.
// Every per-pixel step runs in a kernel backend; this package only plans
// the pyramid, moves textures through a pool and issues kernels in order.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/bloom"
//	    "github.com/gogpu/bloom/backend/software"
//	)
//
//	b := software.New()
//	p, err := bloom.New(b)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Teardown()
//
//	src, _ := b.Allocate(1920, 1080, kernel.FormatRGBA32F)
//	dst, _ := b.Allocate(1920, 1080, kernel.FormatRGBA32F)
//	// fill src ...
//	res, err := p.Apply(src, dst, bloom.DefaultParams())
//
// # Pyramid
//
// The number of downsample steps follows log2(height) + radius - 6, so the
// blur covers the same fraction of the frame at any resolution. The
// fractional part becomes the upsample tap distance, which makes the
// extent change smoothly with radius. See PlanPyramid.
//
// # Temporal filtering
//
// With Params.TemporalFiltering above zero the pipeline keeps level 1 of
// the pyramid across frames and blends each new frame into it with weight
// 1 - exp(-4f). This accumulation buffer is the only texture a pipeline
// holds between calls; Teardown releases it.
//
// # Backends
//
// Backends implement kernel.Backend. backend/software runs on the CPU and
// serves as the reference; backend/wgpu records WebGPU compute passes.
// The backend package keeps a registry so hosts can pick one by name.
//
// # Thread Safety
//
// A Pipeline serializes its own calls. Distinct pipelines may run
// concurrently on distinct backends.
package bloom
