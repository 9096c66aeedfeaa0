package playback

// SessionToken is an opaque, strictly increasing token minted once per
// play-at-index attempt. Every asynchronous continuation (resolver fetch,
// engine stop/load, retry timer) captures the token it was started under
// as an immutable value and compares it to the controller's current token
// before applying effects. A mismatch means the session was superseded and
// the continuation is a silent no-op.
type SessionToken uint64

// mintSessionLocked invalidates all in-flight continuations by advancing
// the current token. Must be called with the service lock held.
func (s *serviceImpl) mintSessionLocked() SessionToken {
	s.token++
	return s.token
}

// sessionCurrentLocked reports whether a captured token is still the live
// session. Must be called with the service lock held.
func (s *serviceImpl) sessionCurrentLocked(token SessionToken) bool {
	return token == s.token && !s.closed
}
