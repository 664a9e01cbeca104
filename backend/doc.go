// Package backend is the registry of kernel backends for the bloom
// pipeline.
//
// Backend packages register a factory from init, so importing one makes it
// available by name:
//
//	import _ "github.com/gogpu/bloom/backend/software"
//
//	b, err := backend.Get("software")
//
// Default returns the preferred registered backend: wgpu when a GPU device
// can be opened, software otherwise.
package backend
