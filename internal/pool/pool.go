// Package pool provides transient texture management for the bloom chain.
package pool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/bloom/kernel"
)

// ErrExhausted is returned when a texture cannot be provided, either
// because the outstanding limit is reached or the backend allocation
// failed.
var ErrExhausted = errors.New("pool: texture pool exhausted")

// Allocator creates and destroys textures. kernel.Backend satisfies it.
type Allocator interface {
	Allocate(width, height int, format kernel.Format) (kernel.Texture, error)
	Free(tex kernel.Texture)
}

// Stats is a snapshot of pool activity.
type Stats struct {
	Acquires    int // successful Acquire calls
	Releases    int // Release calls
	Outstanding int // textures acquired and not yet released
	Idle        int // released textures kept for reuse
	Allocations int // textures created through the allocator
	Frees       int // textures destroyed through the allocator
}

// Pool hands out textures keyed by size and format and reuses released
// ones across frames.
//
// Thread safety: All methods are safe for concurrent use.
type Pool struct {
	mu          sync.Mutex
	alloc       Allocator
	buckets     map[poolKey][]kernel.Texture
	outstanding map[kernel.Texture]struct{}

	maxOutstanding int // 0 means unlimited
	maxPerBucket   int // idle textures kept per bucket, 0 means unlimited

	stats Stats
}

// poolKey identifies a bucket of identical texture specifications.
type poolKey struct {
	width  int
	height int
	format kernel.Format
}

// New creates a pool over alloc. maxOutstanding bounds the textures held
// at once; maxPerBucket bounds the idle textures retained per size and
// format. Zero disables either limit.
func New(alloc Allocator, maxOutstanding, maxPerBucket int) *Pool {
	return &Pool{
		alloc:          alloc,
		buckets:        make(map[poolKey][]kernel.Texture),
		outstanding:    make(map[kernel.Texture]struct{}),
		maxOutstanding: maxOutstanding,
		maxPerBucket:   maxPerBucket,
	}
}

// Acquire returns a texture of the given size and format, reusing an idle
// one when possible. Contents of a reused texture are undefined.
func (p *Pool) Acquire(width, height int, format kernel.Format) (kernel.Texture, error) {
	key := poolKey{width: width, height: height, format: format}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.maxOutstanding > 0 && len(p.outstanding) >= p.maxOutstanding {
		return nil, fmt.Errorf("%dx%d %s: %d outstanding: %w", width, height, format, len(p.outstanding), ErrExhausted)
	}

	var tex kernel.Texture
	if bucket := p.buckets[key]; len(bucket) > 0 {
		tex = bucket[len(bucket)-1]
		bucket[len(bucket)-1] = nil
		p.buckets[key] = bucket[:len(bucket)-1]
		p.stats.Idle--
	} else {
		t, err := p.alloc.Allocate(width, height, format)
		if err != nil {
			return nil, fmt.Errorf("%dx%d %s: %w: %w", width, height, format, ErrExhausted, err)
		}
		tex = t
		p.stats.Allocations++
	}

	p.outstanding[tex] = struct{}{}
	p.stats.Acquires++
	p.stats.Outstanding = len(p.outstanding)
	return tex, nil
}

// Release returns an acquired texture to the pool.
//
// Releasing a texture that is not outstanding is a programming error and
// panics.
func (p *Pool) Release(tex kernel.Texture) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.outstanding[tex]; !ok {
		panic(fmt.Sprintf("pool: release of texture that is not outstanding (%v)", describe(tex)))
	}
	delete(p.outstanding, tex)
	p.stats.Releases++
	p.stats.Outstanding = len(p.outstanding)

	key := poolKey{width: tex.Width(), height: tex.Height(), format: tex.Format()}
	bucket := p.buckets[key]
	if p.maxPerBucket > 0 && len(bucket) >= p.maxPerBucket {
		p.alloc.Free(tex)
		p.stats.Frees++
		return
	}
	p.buckets[key] = append(bucket, tex)
	p.stats.Idle++
}

// Drain destroys every idle texture. Outstanding textures are untouched.
func (p *Pool) Drain() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, bucket := range p.buckets {
		for _, tex := range bucket {
			p.alloc.Free(tex)
			p.stats.Frees++
		}
		delete(p.buckets, key)
	}
	p.stats.Idle = 0
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func describe(tex kernel.Texture) string {
	if tex == nil {
		return "nil"
	}
	return fmt.Sprintf("%dx%d %s", tex.Width(), tex.Height(), tex.Format())
}
