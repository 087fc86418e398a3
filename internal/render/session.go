package render

import (
	"context"
	"sync"
)

// Session hands out renderers exclusively. With one renderer it is the
// non-reentrant browser handle; with several it bounds concurrent pages.
type Session struct {
	free chan Renderer
	size int
}

// NewSession returns a Session over rs. It panics when rs is empty.
func NewSession(rs ...Renderer) *Session {
	if len(rs) == 0 {
		panic("render: NewSession needs at least one renderer")
	}
	free := make(chan Renderer, len(rs))
	for _, r := range rs {
		free <- r
	}
	return &Session{free: free, size: len(rs)}
}

// Size is the number of renderers in the session.
func (s *Session) Size() int { return s.size }

// Acquire blocks until a renderer is free or ctx ends. The returned release
// func gives the renderer back; calling it more than once is harmless.
func (s *Session) Acquire(ctx context.Context) (Renderer, func(), error) {
	select {
	case r := <-s.free:
		var once sync.Once
		return r, func() { once.Do(func() { s.free <- r }) }, nil
	case <-ctx.Done():
		return nil, func() {}, ctx.Err()
	}
}
