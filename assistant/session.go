package assistant

import (
	"context"
	"errors"
	"sync"
)

// ErrAborted reports a run that was superseded by Abort or a newer Begin.
var ErrAborted = errors.New("assistant: generation aborted")

// Token identifies one generation run. The zero Token is never valid.
type Token uint64

// Session hands out cancellation tokens. At most one token is valid at a
// time.
type Session struct {
	mu      sync.Mutex
	current Token
	cancel  context.CancelFunc
}

// Begin invalidates any earlier token, cancels its context, and returns a new
// token with a context derived from ctx that is cancelled when the token is
// invalidated.
func (s *Session) Begin(ctx context.Context) (Token, context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateLocked()
	s.current++
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	return s.current, runCtx
}

// Abort invalidates the current token.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateLocked()
}

// End releases t when it is still current. Later calls to Merge with t fail.
func (s *Session) End(t Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t == s.current {
		s.invalidateLocked()
	}
}

// Valid reports whether t is the current token.
func (s *Session) Valid(t Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validLocked(t)
}

// Merge runs fn while holding the session lock, provided t is still valid.
// An Abort issued concurrently waits until fn returns.
func (s *Session) Merge(t Token, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validLocked(t) {
		return ErrAborted
	}
	return fn()
}

func (s *Session) validLocked(t Token) bool {
	return t != 0 && t == s.current && s.cancel != nil
}

func (s *Session) invalidateLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
