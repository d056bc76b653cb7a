// Package disposer implements a LIFO stack of release callbacks, used to
// undo a sequence of setup steps in reverse order.
package disposer

import "sync"

// Stack collects release callbacks. Dispose runs them in reverse order of
// registration, exactly once.
type Stack struct {
	mu       sync.Mutex
	fns      []func()
	disposed bool
}

// New returns a Stack pre-populated with fns.
func New(fns ...func()) *Stack {
	s := &Stack{}
	s.Push(fns...)
	return s
}

// Push registers callbacks. Nil callbacks are skipped. Pushing onto a stack
// that was already disposed runs the callbacks immediately.
func (s *Stack) Push(fns ...func()) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		for i := len(fns) - 1; i >= 0; i-- {
			if fns[i] != nil {
				fns[i]()
			}
		}
		return
	}
	for _, fn := range fns {
		if fn != nil {
			s.fns = append(s.fns, fn)
		}
	}
	s.mu.Unlock()
}

// Len returns the number of pending callbacks.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fns)
}

// Dispose runs every pending callback, last registered first. Subsequent
// calls are no-ops.
func (s *Stack) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	fns := s.fns
	s.fns = nil
	s.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}
