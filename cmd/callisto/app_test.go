package main

import (
	"errors"
	"testing"
	"time"

	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/ledger"
)

// ============================================================================
// Reload Tests
// ============================================================================

func newTestApp(t *testing.T) *app {
	t.Helper()
	writeConfig(t, mockConfig)
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	a, err := newApp(cfg)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	t.Cleanup(a.close)
	return a
}

func reloadedConfig(t *testing.T, edit func(*config.Config)) *config.Config {
	t.Helper()
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if edit != nil {
		edit(cfg)
	}
	return cfg
}

func TestReload_InFlightReservationsSettleAgainstLiveBudget(t *testing.T) {
	a := newTestApp(t)
	old := a.router()
	l := old.Ledger()

	released, err := l.Reserve("primary", 10)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	committed, err := l.Reserve("primary", 10)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	a.reload(reloadedConfig(t, nil))

	current := a.router()
	if current == old {
		t.Fatal("Expected a new router after reload")
	}
	if current.Ledger() != l {
		t.Fatal("Expected the new router to share the live ledger")
	}

	if err := l.Release(released); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := l.Commit(committed, 60); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	s, err := current.Ledger().Status("primary")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if s.Used != 60 || s.Remaining != 40 {
		t.Errorf("Expected used 60 remaining 40, got used %.2f remaining %.2f", s.Used, s.Remaining)
	}
	if _, err := current.Ledger().Reserve("primary", 50); !errors.Is(err, ledger.ErrBudgetExceeded) {
		t.Errorf("Expected ErrBudgetExceeded beyond the daily cap, got %v", err)
	}
}

func TestReload_AppliesCapChanges(t *testing.T) {
	a := newTestApp(t)
	if _, err := a.router().Ledger().Reserve("primary", 10); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	a.reload(reloadedConfig(t, func(cfg *config.Config) {
		p := cfg.Providers["primary"]
		p.DailyCap = 15
		cfg.Providers["primary"] = p
	}))

	s, err := a.router().Ledger().Status("primary")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if s.Cap != 15 || s.Used != 10 {
		t.Errorf("Expected cap 15 used 10, got cap %.2f used %.2f", s.Cap, s.Used)
	}
}

func TestReload_RejectedConfigKeepsRouter(t *testing.T) {
	a := newTestApp(t)
	old := a.router()

	a.reload(reloadedConfig(t, func(cfg *config.Config) {
		cfg.Router.Window = time.Hour
	}))

	if a.router() != old {
		t.Error("Expected the current router to keep serving after a rejected reload")
	}
	if !old.Ready() {
		t.Error("Expected the current router to stay ready")
	}
}
