package playback

import "sync"

// Signal is a single-writer boolean broadcast cell. The scheduler
// writes the "currently playing translated audio" state; the
// translation session reads it for mic gating and crosstalk
// suppression. Subscribers are invoked on every transition.
type Signal struct {
	mu   sync.Mutex
	v    bool
	subs map[int]func(bool)
	next int
}

// NewSignal creates a signal in the false state.
func NewSignal() *Signal {
	return &Signal{subs: make(map[int]func(bool))}
}

// Get returns the current value.
func (s *Signal) Get() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v
}

// Set updates the value and notifies subscribers on change.
func (s *Signal) Set(v bool) {
	s.mu.Lock()
	if s.v == v {
		s.mu.Unlock()
		return
	}
	s.v = v
	fns := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Subscribe registers a transition listener and returns its
// deregistration handle.
func (s *Signal) Subscribe(fn func(bool)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
