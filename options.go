package bloom

import (
	"log/slog"

	"github.com/gogpu/bloom/kernel"
)

// Option configures a Pipeline during creation.
//
// Example:
//
//	p, err := bloom.New(software.New(),
//	    bloom.WithFormat(kernel.FormatRGBM8),
//	    bloom.WithMaxBuffers(48),
//	)
type Option func(*options)

type options struct {
	format           kernel.Format
	logger           *slog.Logger
	maxBuffers       int
	maxIdle          int
	quarterMaxHeight int
}

func defaultOptions() options {
	return options{
		format:  kernel.FormatRGBA16F,
		maxIdle: 4,
	}
}

// WithFormat selects the storage format of the intermediate textures.
// The default is kernel.FormatRGBA16F; kernel.FormatRGBM8 suits targets
// without float render support.
func WithFormat(f kernel.Format) Option {
	return func(o *options) {
		o.format = f
	}
}

// WithLogger sets the pipeline logger, overriding the package logger set
// with SetLogger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMaxBuffers bounds the textures the pipeline holds at once, the
// accumulation buffer included. A frame that would exceed it fails with
// ErrBufferExhausted. Zero means unlimited.
func WithMaxBuffers(n int) Option {
	return func(o *options) {
		o.maxBuffers = max(n, 0)
	}
}

// WithQuarterDownsample replaces pairs of halvings with single 4x4 box
// passes while the pyramid is taller than maxHeight. Zero disables it.
func WithQuarterDownsample(maxHeight int) Option {
	return func(o *options) {
		o.quarterMaxHeight = max(maxHeight, 0)
	}
}
