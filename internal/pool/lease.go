package pool

import "sync/atomic"

// Lease is a scoped hold on one session. Release and Discard are
// idempotent and safe to call from deferred paths; whichever runs first
// wins.
type Lease struct {
	p        *Pool
	s        Session
	released atomic.Bool
}

func newLease(p *Pool, s Session) *Lease {
	return &Lease{p: p, s: s}
}

// Session exposes the leased session. Must not be retained past Release.
func (l *Lease) Session() Session {
	return l.s
}

// Release returns the session to the pool.
func (l *Lease) Release() {
	if l.released.CompareAndSwap(false, true) {
		l.p.release(l.s, true)
	}
}

// Discard closes the session instead of pooling it. Used after query
// failures that may have poisoned the connection.
func (l *Lease) Discard() {
	if l.released.CompareAndSwap(false, true) {
		l.p.release(l.s, false)
	}
}
