package storage

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyProviderID is returned when a state or lookup has no provider id.
var ErrEmptyProviderID = errors.New("provider id cannot be empty")

// Backend defines the interface for budget window persistence.
// Implementations must be thread-safe.
type Backend interface {
	// Save persists the window state for a provider, replacing any
	// previous state for the same provider.
	Save(ctx context.Context, state *WindowState) error

	// Load retrieves the window state for a provider.
	// Returns nil, nil if no state exists.
	Load(ctx context.Context, providerID string) (*WindowState, error)

	// Delete removes the window state for a provider.
	// No-op if state doesn't exist.
	Delete(ctx context.Context, providerID string) error

	// List returns all stored window states ordered by provider id.
	List(ctx context.Context) ([]*WindowState, error)

	// Cleanup removes states not updated since olderThan and returns the
	// number of entries deleted.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)

	// Close releases any resources held by the backend.
	Close() error
}

// WindowState is the persisted accounting window of one ledger entry.
type WindowState struct {
	// ProviderID identifies the ledger entry. The global entry uses "*".
	ProviderID string `json:"provider_id"`

	// WindowStart is when the current accounting window opened.
	WindowStart time.Time `json:"window_start"`

	// Accumulated is the cost (cents) consumed in the window, including
	// outstanding reservations at snapshot time.
	Accumulated float64 `json:"accumulated"`

	// Cap is the cap in force when the snapshot was taken. Informational.
	Cap float64 `json:"cap"`

	// UpdatedAt is when this state was last saved.
	UpdatedAt time.Time `json:"updated_at"`
}

// clone returns a copy so callers never share backend-owned state.
func (s *WindowState) clone() *WindowState {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
