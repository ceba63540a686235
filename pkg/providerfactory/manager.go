package providerfactory

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/providers"
)

// Entry is a built provider: its configuration, family and client.
type Entry struct {
	ID     string
	Config config.ProviderConfig
	Family providers.Family
	Client providers.Client
}

// ClientConfig returns the family input for this provider.
func (e *Entry) ClientConfig() providers.ClientConfig {
	return providers.ClientConfig{ProviderID: e.ID, Provider: e.Config}
}

// Manager owns the clients of a set of configured providers.
//
// Manager is thread-safe and can be used concurrently.
type Manager struct {
	registry *Registry
	logger   *slog.Logger

	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewManager creates a manager that builds clients from registry.
func NewManager(registry *Registry, logger *slog.Logger) *Manager {
	if registry == nil {
		registry = Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry: registry,
		logger:   logger,
		entries:  make(map[string]*Entry),
	}
}

// Add builds and stores the client for one provider. An existing entry with
// the same id is closed and replaced.
func (m *Manager) Add(id string, p config.ProviderConfig) error {
	family, client, err := m.registry.NewClient(id, p, m.logger)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[id]; ok {
		m.logger.Warn("replacing existing provider", "provider", id)
		if err := existing.Client.Close(); err != nil {
			m.logger.Error("error closing provider", "provider", id, "error", err)
		}
	}

	m.entries[id] = &Entry{ID: id, Config: p, Family: family, Client: client}

	m.logger.Info("provider added",
		"provider", id,
		"family", family.Name(),
		"total_providers", len(m.entries),
	)
	return nil
}

// LoadFromConfig builds a client for every enabled provider. All failures
// are collected and returned together.
func (m *Manager) LoadFromConfig(cfg *config.Config) error {
	ids := make([]string, 0, len(cfg.Providers))
	for id := range cfg.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		p := cfg.Providers[id]
		if !p.Enabled {
			continue
		}
		if err := m.Add(id, p); err != nil {
			m.logger.Error("failed to load provider", "provider", id, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to load %d provider(s): %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// Get returns the entry for id.
func (m *Manager) Get(id string) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	return e, ok
}

// IDs returns the managed provider ids, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of managed providers.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close closes every client and empties the manager.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for id, e := range m.entries {
		if err := e.Client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close provider %q: %w", id, err))
		}
	}
	m.entries = make(map[string]*Entry)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	m.logger.Info("provider manager closed")
	return nil
}
