// Package breaker isolates failing providers.
//
// A Breaker starts Closed. After FailureThreshold consecutive failures it
// opens and refuses calls until ResetTimeout has passed, then moves to
// HalfOpen and admits exactly one trial call. The trial's outcome either
// closes the breaker or reopens it for another ResetTimeout.
//
// Callers follow Allow, then exactly one of RecordSuccess, RecordFailure or
// Cancel, passing back the generation Allow returned:
//
//	gen, err := b.Allow()
//	if err != nil {
//	    // skip this provider; not a failure
//	}
//	if err := call(); err != nil {
//	    b.RecordFailure(gen)
//	} else {
//	    b.RecordSuccess(gen)
//	}
//
// Every state change starts a new generation. Outcomes of calls admitted in
// an earlier generation are ignored, so a slow call that was admitted while
// Closed cannot close an Open breaker or settle another caller's trial.
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrOpen is returned by Allow while the breaker is open.
	ErrOpen = errors.New("circuit open")

	// ErrTrialInFlight is returned by Allow in HalfOpen once the single
	// trial call has been claimed.
	ErrTrialInFlight = errors.New("circuit half-open: trial call in flight")
)

// Defaults applied by New to zero config fields.
const (
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 60 * time.Second
)

// State is the breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config configures a Breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker.
	// Default: 5
	FailureThreshold int

	// ResetTimeout is how long the breaker stays open before admitting a
	// trial call.
	// Default: 60 seconds
	ResetTimeout time.Duration
}

// StateChangeFunc observes transitions. It runs after the breaker lock has
// been released and must not block.
type StateChangeFunc func(name string, from, to State)

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Name                string    `json:"name"`
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	OpenedAt            time.Time `json:"opened_at,omitempty"`
	TrialInFlight       bool      `json:"trial_in_flight"`
}

// Breaker is a per-provider circuit breaker. It is safe for concurrent use.
type Breaker struct {
	name     string
	cfg      Config
	now      func() time.Time
	onChange StateChangeFunc

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool
	gen      uint64
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		b.now = now
	}
}

// WithStateChange registers a transition observer.
func WithStateChange(fn StateChangeFunc) Option {
	return func(b *Breaker) {
		b.onChange = fn
	}
}

// New creates a closed breaker.
func New(name string, cfg Config, opts ...Option) *Breaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}

	b := &Breaker{
		name:  name,
		cfg:   cfg,
		now:   time.Now,
		state: Closed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the breaker name (the provider id).
func (b *Breaker) Name() string {
	return b.name
}

// transition records a state change to report once the lock is released.
type transition struct {
	from, to State
}

// Allow reports whether a call may proceed and returns the generation the
// call was admitted in. In HalfOpen the first caller claims the trial and
// later callers get ErrTrialInFlight until the trial is settled.
func (b *Breaker) Allow() (uint64, error) {
	b.mu.Lock()
	changes := b.advanceLocked(nil)
	gen := b.gen

	var err error
	switch b.state {
	case Open:
		err = fmt.Errorf("%w: %s retries after %s", ErrOpen, b.name,
			b.openedAt.Add(b.cfg.ResetTimeout).Format(time.RFC3339))
	case HalfOpen:
		if b.trial {
			err = fmt.Errorf("%w: %s", ErrTrialInFlight, b.name)
		} else {
			b.trial = true
		}
	}
	b.mu.Unlock()

	b.notify(changes)
	return gen, err
}

// RecordSuccess resets the failure counter and closes the breaker. It is a
// no-op for a call admitted in an earlier generation.
func (b *Breaker) RecordSuccess(gen uint64) {
	b.mu.Lock()
	changes := b.advanceLocked(nil)
	if gen != b.gen {
		b.mu.Unlock()
		b.notify(changes)
		return
	}
	b.failures = 0
	b.trial = false
	if b.state != Closed {
		changes = b.setLocked(changes, Closed)
	}
	b.mu.Unlock()

	b.notify(changes)
}

// RecordFailure counts a failure. In Closed the breaker opens when the
// counter reaches the threshold; a failed HalfOpen trial reopens it with a
// fresh openedAt. Failures from an earlier generation are ignored.
func (b *Breaker) RecordFailure(gen uint64) {
	b.mu.Lock()
	changes := b.advanceLocked(nil)
	if gen != b.gen {
		b.mu.Unlock()
		b.notify(changes)
		return
	}

	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.openedAt = b.now()
			changes = b.setLocked(changes, Open)
		}
	case HalfOpen:
		b.failures++
		b.trial = false
		b.openedAt = b.now()
		changes = b.setLocked(changes, Open)
	}
	b.mu.Unlock()

	b.notify(changes)
}

// Cancel gives back a HalfOpen trial claim without reporting an outcome,
// for calls abandoned before a result was known.
func (b *Breaker) Cancel(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen == b.gen && b.state == HalfOpen {
		b.trial = false
	}
}

// State returns the current state, applying the Open to HalfOpen
// transition if the reset timeout has passed.
func (b *Breaker) State() State {
	b.mu.Lock()
	changes := b.advanceLocked(nil)
	state := b.state
	b.mu.Unlock()

	b.notify(changes)
	return state
}

// Snapshot returns a point-in-time view of the breaker.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	changes := b.advanceLocked(nil)
	s := Snapshot{
		Name:                b.name,
		State:               b.state,
		ConsecutiveFailures: b.failures,
		OpenedAt:            b.openedAt,
		TrialInFlight:       b.trial,
	}
	b.mu.Unlock()

	b.notify(changes)
	return s
}

// advanceLocked moves Open to HalfOpen once now >= openedAt + ResetTimeout.
// Caller must hold b.mu.
func (b *Breaker) advanceLocked(changes []transition) []transition {
	if b.state == Open && !b.now().Before(b.openedAt.Add(b.cfg.ResetTimeout)) {
		b.trial = false
		changes = b.setLocked(changes, HalfOpen)
	}
	return changes
}

// setLocked changes state, starts a new generation and appends the
// transition. Caller must hold b.mu.
func (b *Breaker) setLocked(changes []transition, to State) []transition {
	from := b.state
	b.state = to
	b.gen++
	return append(changes, transition{from: from, to: to})
}

func (b *Breaker) notify(changes []transition) {
	if b.onChange == nil {
		return
	}
	for _, c := range changes {
		b.onChange(b.name, c.from, c.to)
	}
}
