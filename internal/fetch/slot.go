package fetch

import "context"

// Slot tracks the in-flight fetch of one resource. Each Begin starts a new
// generation and cancels the previous one; a result may only be applied
// while its generation is current.
//
// A Slot is not safe for concurrent use. The owner guards it with its own lock.
type Slot struct {
	gen       uint64
	signature string
	cancel    context.CancelFunc
}

// Begin starts a fetch for the given signature. It returns the context the
// fetch must run under and its generation.
func (s *Slot) Begin(parent context.Context, signature string) (context.Context, uint64) {
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	s.signature = signature
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	return ctx, s.gen
}

// Finish reports whether gen is still the current generation, releasing its
// context when it is. A false result means the response is stale.
func (s *Slot) Finish(gen uint64) bool {
	if gen != s.gen {
		return false
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return true
}

// Reset invalidates any in-flight fetch and forgets the signature
func (s *Slot) Reset() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	s.signature = ""
}

// Generation returns the current generation
func (s *Slot) Generation() uint64 {
	return s.gen
}

// Signature returns the signature of the latest Begin
func (s *Slot) Signature() string {
	return s.signature
}

// Pending reports whether a fetch is in flight
func (s *Slot) Pending() bool {
	return s.cancel != nil
}
