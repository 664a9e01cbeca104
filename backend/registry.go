package backend

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/bloom/kernel"
)

// Backend name constants.
const (
	// NameSoftware is the CPU reference backend.
	NameSoftware = "software"
	// NameWGPU is the WebGPU compute backend.
	NameWGPU = "wgpu"
)

// ErrNotAvailable is returned when a requested backend is not registered.
var ErrNotAvailable = errors.New("backend: not available")

// Factory creates a backend instance.
type Factory func() (kernel.Backend, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	// Priority order for Default (first available wins).
	priority = []string{NameWGPU, NameSoftware}
)

// Register registers a backend factory under name, replacing any previous
// registration.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// Unregister removes a backend from the registry.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available returns the sorted names of registered backends.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Get creates the backend registered under name.
func Get(name string) (kernel.Backend, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("backend %q: %w", name, ErrNotAvailable)
	}
	b, err := factory()
	if err != nil {
		return nil, fmt.Errorf("backend %q: %w", name, err)
	}
	return b, nil
}

// Default creates the first registered backend in priority order, then
// any other registered backend. Factory errors move on to the next
// candidate.
func Default() (kernel.Backend, error) {
	names := Available()
	ordered := make([]string, 0, len(names))
	for _, name := range priority {
		if slices.Contains(names, name) {
			ordered = append(ordered, name)
		}
	}
	for _, name := range names {
		if !slices.Contains(ordered, name) {
			ordered = append(ordered, name)
		}
	}

	var errs []error
	for _, name := range ordered {
		b, err := Get(name)
		if err == nil {
			return b, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, ErrNotAvailable
	}
	return nil, errors.Join(errs...)
}
