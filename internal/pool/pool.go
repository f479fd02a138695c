package pool

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/apperrors"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/logging"
)

// State is the pool lifecycle state.
type State int32

const (
	StateInitializing State = iota
	StateReady
	StateDegraded
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// probeFailureLimit is the number of consecutive probe failures that flips
// the pool to degraded. One success flips it back.
const probeFailureLimit = 3

// maxRetryBackoff caps the exponential acquire backoff.
const maxRetryBackoff = 5 * time.Second

// Config bounds the pool. Min and Max are the hard configuration bounds;
// the effective cap moves between them at runtime via Resize.
type Config struct {
	MinSessions int
	MaxSessions int
	IdleTimeout time.Duration
}

// Recorder receives pool error observations. Implemented by the metrics
// aggregator.
type Recorder interface {
	RecordError(kind string)
}

// Status is an O(1) snapshot of pool state.
type Status struct {
	Total      int       `json:"total"`
	Idle       int       `json:"idle"`
	Leased     int       `json:"leased"`
	Waiting    int       `json:"waiting"`
	CurrentMax int       `json:"current_max"`
	State      string    `json:"state"`
	LastResize time.Time `json:"last_resize"`
}

type idleSession struct {
	s     Session
	since time.Time
}

type waiterResult struct {
	s   Session
	err error
}

type waiter struct {
	ch chan waiterResult // buffered, cap 1
	// cancelled is set under the pool mutex when the waiter gives up.
	// A handoff that finds it set must dispose of the session itself.
	cancelled bool
}

// Pool owns all sessions. Acquire is FIFO among waiters; Resize never
// invalidates in-flight leases; release is idempotent through the Lease.
type Pool struct {
	cfg     Config
	factory Factory
	log     logging.Logger
	rec     Recorder

	mu         sync.Mutex
	idle       []idleSession
	total      int
	leased     int
	currentMax int
	lastResize time.Time
	waiters    *list.List

	state         State
	probeFailures int
	lastProbeOK   bool
	lastHealthy   time.Time
}

// New creates a pool in the initializing state. Call Start to pre-warm the
// minimum sessions and move to ready.
func New(cfg Config, factory Factory, log logging.Logger, rec Recorder) (*Pool, error) {
	if cfg.MinSessions < 1 {
		return nil, apperrors.Newf(apperrors.KindInvalidRequest, "min sessions must be >= 1, got %d", cfg.MinSessions)
	}
	if cfg.MaxSessions < cfg.MinSessions {
		return nil, apperrors.Newf(apperrors.KindInvalidRequest, "max sessions %d below min %d", cfg.MaxSessions, cfg.MinSessions)
	}
	if log == nil {
		log = logging.NewNoOpLogger()
	}
	return &Pool{
		cfg:         cfg,
		factory:     factory,
		log:         log.WithComponent("pool"),
		rec:         rec,
		waiters:     list.New(),
		currentMax:  cfg.MaxSessions,
		lastProbeOK: true,
	}, nil
}

// Start pre-opens the minimum number of sessions and marks the pool ready.
// Failures to pre-warm are logged, not fatal: the pool opens lazily on
// demand afterwards.
func (p *Pool) Start(ctx context.Context) error {
	for i := 0; i < p.cfg.MinSessions; i++ {
		s, err := p.factory(ctx)
		if err != nil {
			p.recordError(err)
			p.log.Warn("pre-warm session open failed", "error", err)
			break
		}
		p.mu.Lock()
		p.total++
		p.idle = append(p.idle, idleSession{s: s, since: time.Now()})
		p.mu.Unlock()
	}
	p.mu.Lock()
	p.state = StateReady
	p.lastHealthy = time.Now()
	p.mu.Unlock()
	return nil
}

// Acquire leases a session, blocking FIFO behind earlier callers when the
// pool is at its effective cap. Deadline expiry while queued surfaces as
// PoolExhausted; expiry during a connect surfaces as Timeout; after
// shutdown every acquire fails with ShuttingDown.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if err := apperrors.FromContext(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.state >= StateClosing {
		p.mu.Unlock()
		return nil, apperrors.New(apperrors.KindShuttingDown, "pool is shutting down")
	}

	// Fast path: reuse an idle session, discarding any that idled out.
	for len(p.idle) > 0 {
		n := len(p.idle) - 1
		is := p.idle[n]
		p.idle = p.idle[:n]
		if p.cfg.IdleTimeout > 0 && time.Since(is.since) > p.cfg.IdleTimeout {
			p.total--
			go func() { _ = is.s.Close() }()
			continue
		}
		p.leased++
		p.mu.Unlock()
		return newLease(p, is.s), nil
	}

	// Headroom: open a new session.
	if p.total < p.currentMax {
		p.total++
		p.mu.Unlock()
		s, err := p.factory(ctx)
		if err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			p.recordError(err)
			return nil, err
		}
		p.mu.Lock()
		p.leased++
		p.mu.Unlock()
		return newLease(p, s), nil
	}

	// At cap: join the FIFO wait queue.
	w := &waiter{ch: make(chan waiterResult, 1)}
	elem := p.waiters.PushBack(w)
	p.mu.Unlock()

	select {
	case res := <-w.ch:
		if res.err != nil {
			return nil, res.err
		}
		return newLease(p, res.s), nil
	case <-ctx.Done():
		p.mu.Lock()
		select {
		case res := <-w.ch:
			// A session was handed over concurrently; give it back.
			p.mu.Unlock()
			if res.err == nil {
				p.release(res.s, true)
			}
		default:
			w.cancelled = true
			p.waiters.Remove(elem)
			p.mu.Unlock()
		}
		if ctx.Err() == context.DeadlineExceeded {
			return nil, apperrors.Wrap(apperrors.KindPoolExhausted, "pool at capacity", ctx.Err())
		}
		return nil, apperrors.Wrap(apperrors.KindCancelled, "acquire cancelled", ctx.Err())
	}
}

// AcquireWithRetry wraps Acquire with exponential backoff (base doubling
// per attempt, capped at 5s). Only transient connect failures and timeouts
// are retried; shutdown is terminal.
func (p *Pool) AcquireWithRetry(ctx context.Context, attempts int, base time.Duration) (*Lease, error) {
	if attempts < 1 {
		attempts = 1
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = base
	bo.Multiplier = 2
	bo.MaxInterval = maxRetryBackoff
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	var (
		lease   *Lease
		lastErr error
	)
	op := func() error {
		l, err := p.Acquire(ctx)
		if err != nil {
			if apperrors.Retryable(err) || apperrors.Is(err, apperrors.KindPoolExhausted) {
				lastErr = err
				return err
			}
			return backoff.Permanent(err)
		}
		lease = l
		return nil
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx))
	if err != nil {
		// backoff reports the bare context error when the deadline cuts a
		// retry short; the typed acquire error is the useful one.
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, err
	}
	return lease, nil
}

// Resize applies a new effective cap, clamped to the configured bounds,
// and returns the applied value. Shrinking closes surplus idle sessions
// lazily and never touches leased ones; growing hands waiting callers
// freshly opened sessions in FIFO order. Acquire callers are never blocked
// by a resize in progress.
func (p *Pool) Resize(newMax int) int {
	if newMax < p.cfg.MinSessions {
		newMax = p.cfg.MinSessions
	}
	if newMax > p.cfg.MaxSessions {
		newMax = p.cfg.MaxSessions
	}

	p.mu.Lock()
	if p.state >= StateClosing {
		applied := p.currentMax
		p.mu.Unlock()
		return applied
	}
	p.currentMax = newMax
	p.lastResize = time.Now()

	for p.total > p.currentMax && len(p.idle) > 0 {
		n := len(p.idle) - 1
		is := p.idle[n]
		p.idle = p.idle[:n]
		p.total--
		go func() { _ = is.s.Close() }()
	}

	for p.total < p.currentMax && p.waiters.Len() > 0 {
		elem := p.waiters.Front()
		p.waiters.Remove(elem)
		w := elem.Value.(*waiter)
		p.total++
		go p.openFor(w)
	}
	p.mu.Unlock()
	return newMax
}

// openFor opens a session for a waiter released by a grow. The waiter may
// cancel while the dial is in flight; the handoff happens under the mutex
// so that check and send are atomic against the cancel branch of Acquire.
func (p *Pool) openFor(w *waiter) {
	ctx, cancel := context.WithTimeout(context.Background(), maxRetryBackoff)
	defer cancel()
	s, err := p.factory(ctx)
	if err != nil {
		p.mu.Lock()
		p.total--
		if !w.cancelled {
			w.ch <- waiterResult{err: err}
		}
		p.mu.Unlock()
		p.recordError(err)
		return
	}
	p.mu.Lock()
	p.leased++
	if w.cancelled {
		// The waiter gave up mid-dial. Return the fresh session through
		// the normal release path so the next waiter or the idle stack
		// gets it.
		p.mu.Unlock()
		p.release(s, true)
		return
	}
	w.ch <- waiterResult{s: s}
	p.mu.Unlock()
}

// release returns a leased session. Unhealthy sessions are closed instead
// of being pooled. Called only via Lease, which guarantees idempotence.
func (p *Pool) release(s Session, healthy bool) {
	p.mu.Lock()
	p.leased--

	if p.state >= StateClosing || !healthy || p.total > p.currentMax {
		p.total--
		p.mu.Unlock()
		_ = s.Close()
		return
	}

	if p.waiters.Len() > 0 {
		elem := p.waiters.Front()
		p.waiters.Remove(elem)
		w := elem.Value.(*waiter)
		p.leased++
		// Send before unlocking: the channel holds one result, and doing
		// the dequeue and handoff in one critical section means a
		// concurrent cancel either sees the waiter still queued or finds
		// the session already in the channel.
		w.ch <- waiterResult{s: s}
		p.mu.Unlock()
		return
	}

	p.idle = append(p.idle, idleSession{s: s, since: time.Now()})
	p.mu.Unlock()
}

// Status returns an O(1) snapshot of the pool.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Total:      p.total,
		Idle:       len(p.idle),
		Leased:     p.leased,
		Waiting:    p.waiters.Len(),
		CurrentMax: p.currentMax,
		State:      p.state.String(),
		LastResize: p.lastResize,
	}
}

// CurrentState returns the lifecycle state.
func (p *Pool) CurrentState() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// LastProbeOK reports the outcome of the most recent health probe.
func (p *Pool) LastProbeOK() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastProbeOK
}

// LastHealthy returns when a probe last succeeded.
func (p *Pool) LastHealthy() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastHealthy
}

// HealthProbe runs a trivial round-trip with its own 2s deadline. Three
// consecutive failures move ready -> degraded; one success moves back.
func (p *Pool) HealthProbe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	ok := false
	lease, err := p.Acquire(ctx)
	if err == nil {
		rows, qerr := lease.Session().QueryContext(ctx, "SELECT 1")
		if qerr == nil {
			_ = rows.Close()
			ok = rows.Err() == nil
		}
		if ok {
			lease.Release()
		} else {
			lease.Discard()
		}
	}

	p.mu.Lock()
	p.lastProbeOK = ok
	if ok {
		p.probeFailures = 0
		p.lastHealthy = time.Now()
		if p.state == StateDegraded {
			p.state = StateReady
		}
	} else {
		p.probeFailures++
		if p.probeFailures >= probeFailureLimit && p.state == StateReady {
			p.state = StateDegraded
			p.log.Warn("pool degraded after consecutive probe failures", "failures", p.probeFailures)
		}
	}
	p.mu.Unlock()
	return ok
}

// Shutdown stops accepting acquires, waits up to grace for leases to come
// back, then closes everything. Returns the number of sessions that were
// still leased when grace expired.
func (p *Pool) Shutdown(grace time.Duration) int {
	p.mu.Lock()
	if p.state >= StateClosing {
		p.mu.Unlock()
		return 0
	}
	p.state = StateClosing

	for p.waiters.Len() > 0 {
		elem := p.waiters.Front()
		p.waiters.Remove(elem)
		w := elem.Value.(*waiter)
		w.ch <- waiterResult{err: apperrors.New(apperrors.KindShuttingDown, "pool is shutting down")}
	}
	p.mu.Unlock()

	deadline := time.Now().Add(grace)
	for {
		p.mu.Lock()
		if p.leased == 0 || time.Now().After(deadline) {
			break
		}
		p.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}

	// Lock is held here.
	for _, is := range p.idle {
		_ = is.s.Close()
		p.total--
	}
	p.idle = nil
	leaked := p.leased
	p.state = StateClosed
	p.mu.Unlock()

	if leaked > 0 {
		p.log.Error("sessions still leased at shutdown", "leaked", leaked)
	}
	return leaked
}

func (p *Pool) recordError(err error) {
	if p.rec != nil {
		p.rec.RecordError(string(apperrors.KindOf(err)))
	}
}
