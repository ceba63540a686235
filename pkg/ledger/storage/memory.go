package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryBackend implements Backend using an in-process map.
// All data is lost when the process exits.
type MemoryBackend struct {
	// states maps provider id to window state.
	states map[string]*WindowState

	// mu protects access to states map.
	mu sync.RWMutex

	// now supplies UpdatedAt timestamps.
	now func() time.Time
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		states: make(map[string]*WindowState),
		now:    time.Now,
	}
}

// Save persists the window state for a provider.
func (m *MemoryBackend) Save(ctx context.Context, state *WindowState) error {
	if state == nil {
		return fmt.Errorf("state cannot be nil")
	}
	if state.ProviderID == "" {
		return ErrEmptyProviderID
	}

	stored := state.clone()
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[stored.ProviderID] = stored
	return nil
}

// Load retrieves the window state for a provider.
func (m *MemoryBackend) Load(ctx context.Context, providerID string) (*WindowState, error) {
	if providerID == "" {
		return nil, ErrEmptyProviderID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.states[providerID].clone(), nil
}

// Delete removes the window state for a provider.
func (m *MemoryBackend) Delete(ctx context.Context, providerID string) error {
	if providerID == "" {
		return ErrEmptyProviderID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, providerID)
	return nil
}

// List returns all stored window states ordered by provider id.
func (m *MemoryBackend) List(ctx context.Context) ([]*WindowState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make([]*WindowState, 0, len(m.states))
	for _, state := range m.states {
		states = append(states, state.clone())
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].ProviderID < states[j].ProviderID
	})

	return states, nil
}

// Cleanup removes states not updated since olderThan.
func (m *MemoryBackend) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for id, state := range m.states {
		if state.UpdatedAt.Before(olderThan) {
			delete(m.states, id)
			deleted++
		}
	}

	return deleted, nil
}

// Close is a no-op for the memory backend.
func (m *MemoryBackend) Close() error {
	return nil
}

// Size returns the current number of stored states.
func (m *MemoryBackend) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}
