// Package parallel splits per-row image work into bands and runs them on a
// fixed set of goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// minBandRows keeps bands large enough that scheduling stays cheaper than
// the rows themselves.
const minBandRows = 8

// band is one contiguous half-open row range of a Rows call.
type band struct {
	y0, y1 int
	fn     func(y0, y1 int)
	done   *sync.WaitGroup
}

// WorkerPool runs row bands on long-lived goroutines.
//
// Thread safety: WorkerPool is safe for concurrent use. Concurrent Rows
// calls share the workers.
type WorkerPool struct {
	workers int
	bands   chan band

	mu     sync.RWMutex // held for reading while bands are queued
	closed bool
	wg     sync.WaitGroup
}

// NewWorkerPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &WorkerPool{
		workers: workers,
		bands:   make(chan band, workers*2),
	}
	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for b := range p.bands {
		b.fn(b.y0, b.y1)
		b.done.Done()
	}
}

// Rows calls fn over [0, height) split into bands and returns when every
// band is done. The calling goroutine runs the last band itself. Small
// images, and every call after Close, run inline.
func (p *WorkerPool) Rows(height int, fn func(y0, y1 int)) {
	if height <= 0 {
		return
	}
	n := min(p.workers*2, height/minBandRows)
	if n <= 1 {
		fn(0, height)
		return
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		fn(0, height)
		return
	}
	var done sync.WaitGroup
	done.Add(n - 1)
	for i := range n - 1 {
		p.bands <- band{y0: i * height / n, y1: (i + 1) * height / n, fn: fn, done: &done}
	}
	p.mu.RUnlock()

	fn((n-1)*height/n, height)
	done.Wait()
}

// Close stops the workers after the queued bands complete.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.bands)
	p.mu.Unlock()
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool still dispatches to its workers.
func (p *WorkerPool) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed
}
