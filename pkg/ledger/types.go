package ledger

import (
	"errors"
	"sync/atomic"
	"time"
)

var (
	// ErrBudgetExceeded is returned by Reserve when granting the estimate
	// would take the provider (or the global entry) over its cap.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrUnknownProvider is returned for provider ids the ledger was not built with.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrInvalidAmount is returned for negative costs.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrAlreadySettled is returned when a reservation is committed or
	// released more than once.
	ErrAlreadySettled = errors.New("reservation already settled")

	// ErrIncompatibleConfig is returned by Reconfigure for changes a live
	// ledger cannot take.
	ErrIncompatibleConfig = errors.New("incompatible ledger config")
)

// GlobalID is the storage key of the cross-provider entry.
const GlobalID = "*"

// Config contains ledger caps.
type Config struct {
	// Window is the accounting period.
	// Default: 24 hours
	Window time.Duration

	// Caps maps provider id to its cap (cents) per window.
	Caps map[string]float64

	// GlobalCap bounds the sum of all providers per window. Zero disables it.
	GlobalCap float64
}

// Reservation is the handle returned by Reserve. It must be settled exactly
// once with Commit or Release.
type Reservation struct {
	// ID uniquely identifies the reservation in logs.
	ID string

	// ProviderID is the provider charged.
	ProviderID string

	// Estimate is the amount provisionally added.
	Estimate float64

	// CreatedAt is when the reservation was granted.
	CreatedAt time.Time

	windowStart       time.Time
	globalWindowStart time.Time
	settled           atomic.Bool
}

// Settled reports whether Commit or Release has been called.
func (r *Reservation) Settled() bool {
	return r.settled.Load()
}

// Status contains the current window of one ledger entry.
type Status struct {
	// ProviderID is the entry id (GlobalID for the global entry).
	ProviderID string `json:"provider_id"`

	// Cap is the configured cap in cents.
	Cap float64 `json:"cap"`

	// Used is the accumulated cost in the window, outstanding
	// reservations included.
	Used float64 `json:"used"`

	// Remaining is Cap - Used, floored at zero.
	Remaining float64 `json:"remaining"`

	// Percentage is Used / Cap (0.0-1.0+).
	Percentage float64 `json:"percentage"`

	// WindowStart is when the current window opened. Zero if the entry has
	// not been touched yet.
	WindowStart time.Time `json:"window_start"`

	// Reset is when the current window closes.
	Reset time.Time `json:"reset"`
}
