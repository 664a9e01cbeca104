package bloom

import "errors"

var (
	// ErrInert is returned by Apply when the kernels are not compiled and
	// the frame could not even be passed through.
	ErrInert = errors.New("bloom: pipeline is inert")

	// ErrBufferExhausted is returned when a frame cannot acquire its
	// intermediate textures. The frame is passed through; every texture
	// acquired before the failure has been released.
	ErrBufferExhausted = errors.New("bloom: buffer pool exhausted")

	// ErrNoBackend is returned by New for a nil backend.
	ErrNoBackend = errors.New("bloom: no kernel backend")
)
