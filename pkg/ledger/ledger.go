package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/callisto/pkg/ledger/storage"
)

// DefaultWindow is the accounting period when Config.Window is zero.
const DefaultWindow = 24 * time.Hour

// entry is the accounting state of one provider (or the global cap).
type entry struct {
	id          string
	cap         float64
	accumulated float64
	windowStart time.Time
	mu          sync.Mutex
}

// rollLocked resets the window when it has expired. The start advances by
// whole windows so window boundaries stay aligned to the first use.
// Caller must hold e.mu.
func (e *entry) rollLocked(now time.Time, window time.Duration) {
	if e.windowStart.IsZero() {
		e.windowStart = now
		return
	}
	if elapsed := now.Sub(e.windowStart); elapsed >= window {
		e.windowStart = e.windowStart.Add(window * (elapsed / window))
		e.accumulated = 0
	}
}

// adjustLocked applies delta, never letting accumulated drop below zero.
// Caller must hold e.mu.
func (e *entry) adjustLocked(delta float64) {
	e.accumulated += delta
	if e.accumulated < 0 {
		e.accumulated = 0
	}
}

// settleLocked replaces an estimate with an actual cost. When the window
// rolled since the reservation was granted, the estimate was already wiped
// by the reset and only the actual cost is charged to the new window.
// Caller must hold e.mu.
func (e *entry) settleLocked(reservedIn time.Time, estimate, actual float64) {
	if e.windowStart.Equal(reservedIn) {
		e.adjustLocked(actual - estimate)
		return
	}
	e.adjustLocked(actual)
}

// Ledger tracks cost per provider within a rolling accounting window and
// grants spend through reservations.
//
// Each provider has its own lock; operations on different providers never
// contend. When a global cap is configured, Reserve, Commit and Release take
// the provider lock first and the global lock second.
type Ledger struct {
	window time.Duration
	global *entry // nil without a global cap
	now    func() time.Time
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry // entries are added, never removed
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// New creates a ledger with one entry per provider in cfg.Caps.
func New(cfg Config, opts ...Option) *Ledger {
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}

	l := &Ledger{
		window:  window,
		entries: make(map[string]*entry, len(cfg.Caps)),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for id, limit := range cfg.Caps {
		l.entries[id] = &entry{id: id, cap: limit}
	}
	if cfg.GlobalCap > 0 {
		l.global = &entry{id: GlobalID, cap: cfg.GlobalCap}
	}

	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "ledger")

	return l
}

// Window returns the accounting period.
func (l *Ledger) Window() time.Duration {
	return l.window
}

// Providers returns the provider ids the ledger tracks, sorted.
func (l *Ledger) Providers() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.entries))
	for id := range l.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reserve provisionally adds estimate to the provider's window if that keeps
// it within the cap (and within the global cap, if any). On denial nothing
// is mutated and the error wraps ErrBudgetExceeded.
func (l *Ledger) Reserve(providerID string, estimate float64) (*Reservation, error) {
	if estimate < 0 {
		return nil, fmt.Errorf("%w: estimate %.4f", ErrInvalidAmount, estimate)
	}
	e, ok := l.entry(providerID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}

	now := l.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.rollLocked(now, l.window)
	if e.accumulated+estimate > e.cap {
		return nil, fmt.Errorf("%w: provider %s used %.2f of %.2f, estimate %.2f",
			ErrBudgetExceeded, providerID, e.accumulated, e.cap, estimate)
	}

	res := &Reservation{
		ID:          uuid.NewString(),
		ProviderID:  providerID,
		Estimate:    estimate,
		CreatedAt:   now,
		windowStart: e.windowStart,
	}

	if g := l.global; g != nil {
		g.mu.Lock()
		defer g.mu.Unlock()

		g.rollLocked(now, l.window)
		if g.accumulated+estimate > g.cap {
			return nil, fmt.Errorf("%w: global used %.2f of %.2f, estimate %.2f",
				ErrBudgetExceeded, g.accumulated, g.cap, estimate)
		}
		g.accumulated += estimate
		res.globalWindowStart = g.windowStart
	}

	e.accumulated += estimate
	return res, nil
}

// Commit settles a reservation with the actual cost, adjusting the window by
// actual - estimate. Actual may exceed the estimate; the window can then end
// above the cap, which only blocks further reservations.
func (l *Ledger) Commit(res *Reservation, actual float64) error {
	if actual < 0 {
		return fmt.Errorf("%w: actual %.4f", ErrInvalidAmount, actual)
	}
	return l.settle(res, actual)
}

// Release settles a reservation whose call never produced a billable
// result, subtracting the estimate back out.
func (l *Ledger) Release(res *Reservation) error {
	return l.settle(res, 0)
}

func (l *Ledger) settle(res *Reservation, actual float64) error {
	if res == nil {
		return fmt.Errorf("reservation cannot be nil")
	}
	e, ok := l.entry(res.ProviderID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, res.ProviderID)
	}
	if !res.settled.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s", ErrAlreadySettled, res.ID)
	}

	now := l.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.rollLocked(now, l.window)
	e.settleLocked(res.windowStart, res.Estimate, actual)

	if g := l.global; g != nil {
		g.mu.Lock()
		defer g.mu.Unlock()

		g.rollLocked(now, l.window)
		g.settleLocked(res.globalWindowStart, res.Estimate, actual)
	}

	return nil
}

// Status returns the current window of a provider.
func (l *Ledger) Status(providerID string) (Status, error) {
	e, ok := l.entry(providerID)
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	return l.status(e), nil
}

// GlobalStatus returns the global window. The second result is false when
// no global cap is configured.
func (l *Ledger) GlobalStatus() (Status, bool) {
	if l.global == nil {
		return Status{}, false
	}
	return l.status(l.global), true
}

func (l *Ledger) status(e *entry) Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.rollLocked(l.now(), l.window)

	s := Status{
		ProviderID:  e.id,
		Cap:         e.cap,
		Used:        e.accumulated,
		Remaining:   e.cap - e.accumulated,
		WindowStart: e.windowStart,
		Reset:       e.windowStart.Add(l.window),
	}
	if s.Remaining < 0 {
		s.Remaining = 0
	}
	if e.cap > 0 {
		s.Percentage = e.accumulated / e.cap
	}
	return s
}

// Snapshot saves the current window of every entry to backend.
func (l *Ledger) Snapshot(ctx context.Context, backend storage.Backend) error {
	now := l.now()
	for _, e := range l.allEntries() {
		e.mu.Lock()
		e.rollLocked(now, l.window)
		state := &storage.WindowState{
			ProviderID:  e.id,
			WindowStart: e.windowStart,
			Accumulated: e.accumulated,
			Cap:         e.cap,
			UpdatedAt:   now,
		}
		e.mu.Unlock()

		if err := backend.Save(ctx, state); err != nil {
			return fmt.Errorf("snapshot %s: %w", e.id, err)
		}
	}

	l.logger.Debug("ledger snapshot saved", "entries", len(l.Providers()))
	return nil
}

// Restore loads windows saved by Snapshot. Windows that have already
// expired are ignored and the entry starts fresh; entries without saved
// state are left untouched.
func (l *Ledger) Restore(ctx context.Context, backend storage.Backend) error {
	now := l.now()
	restored := 0
	for _, e := range l.allEntries() {
		state, err := backend.Load(ctx, e.id)
		if err != nil {
			return fmt.Errorf("restore %s: %w", e.id, err)
		}
		if state == nil || state.WindowStart.IsZero() {
			continue
		}
		if now.Sub(state.WindowStart) >= l.window || state.WindowStart.After(now) {
			l.logger.Debug("discarding expired ledger window",
				"provider", e.id,
				"window_start", state.WindowStart,
			)
			continue
		}

		e.mu.Lock()
		e.windowStart = state.WindowStart
		e.accumulated = state.Accumulated
		e.mu.Unlock()
		restored++
	}

	l.logger.Info("ledger windows restored", "restored", restored)
	return nil
}

// Reconfigure applies new caps to a live ledger. Caps of existing entries
// change in place and keep their windows and outstanding reservations;
// providers new to cfg get fresh entries. Entries for providers missing from
// cfg are kept so reservations still in flight can settle. The window length
// and whether a global cap exists are fixed for the life of the ledger.
func (l *Ledger) Reconfigure(cfg Config) error {
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	if window != l.window {
		return fmt.Errorf("%w: window %s cannot change to %s", ErrIncompatibleConfig, l.window, window)
	}
	if (cfg.GlobalCap > 0) != (l.global != nil) {
		return fmt.Errorf("%w: global cap cannot be enabled or disabled", ErrIncompatibleConfig)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for id, limit := range cfg.Caps {
		e, ok := l.entries[id]
		if !ok {
			l.entries[id] = &entry{id: id, cap: limit}
			continue
		}
		e.mu.Lock()
		e.cap = limit
		e.mu.Unlock()
	}
	if g := l.global; g != nil {
		g.mu.Lock()
		g.cap = cfg.GlobalCap
		g.mu.Unlock()
	}

	l.logger.Info("ledger caps updated", "providers", len(cfg.Caps), "global_cap", cfg.GlobalCap)
	return nil
}

func (l *Ledger) entry(id string) (*entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[id]
	return e, ok
}

// allEntries returns provider entries followed by the global entry.
func (l *Ledger) allEntries() []*entry {
	ids := l.Providers()
	out := make([]*entry, 0, len(ids)+1)
	for _, id := range ids {
		e, _ := l.entry(id)
		out = append(out, e)
	}
	if l.global != nil {
		out = append(out, l.global)
	}
	return out
}
