package pool

import "github.com/gogpu/bloom/kernel"

// Scope tracks the textures acquired during one invocation so that every
// exit path releases them with a single deferred Close.
//
// A Scope is not safe for concurrent use.
type Scope struct {
	pool *Pool
	held []kernel.Texture
}

// NewScope starts a scope over p.
func (p *Pool) NewScope() *Scope {
	return &Scope{pool: p}
}

// Acquire acquires a texture from the pool and records it in the scope.
func (s *Scope) Acquire(width, height int, format kernel.Format) (kernel.Texture, error) {
	tex, err := s.pool.Acquire(width, height, format)
	if err != nil {
		return nil, err
	}
	s.held = append(s.held, tex)
	return tex, nil
}

// Release returns tex to the pool before the scope closes.
// tex must have been acquired by this scope.
func (s *Scope) Release(tex kernel.Texture) {
	if s.detach(tex) {
		s.pool.Release(tex)
		return
	}
	panic("pool: scope release of texture it does not hold (" + describe(tex) + ")")
}

// Keep removes tex from the scope without releasing it. The caller owns
// the release from now on.
func (s *Scope) Keep(tex kernel.Texture) {
	if !s.detach(tex) {
		panic("pool: scope keep of texture it does not hold (" + describe(tex) + ")")
	}
}

// Held returns the number of textures the scope will release on Close.
func (s *Scope) Held() int {
	return len(s.held)
}

// Close releases every texture still held, most recent first.
// Close is safe to call multiple times.
func (s *Scope) Close() {
	for i := len(s.held) - 1; i >= 0; i-- {
		s.pool.Release(s.held[i])
	}
	s.held = s.held[:0]
}

func (s *Scope) detach(tex kernel.Texture) bool {
	for i := len(s.held) - 1; i >= 0; i-- {
		if s.held[i] == tex {
			s.held = append(s.held[:i], s.held[i+1:]...)
			return true
		}
	}
	return false
}
