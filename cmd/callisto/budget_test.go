package main

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"mercator-hq/callisto/pkg/cli"
	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/ledger"
	"mercator-hq/callisto/pkg/ledger/storage"
)

func TestBudgetWindows(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	cfg := &config.Config{
		Router: config.RouterConfig{Window: 24 * time.Hour, GlobalDailyCap: 500},
		Providers: map[string]config.ProviderConfig{
			"primary": {DailyCap: 100},
		},
	}
	states := []*storage.WindowState{
		{ProviderID: ledger.GlobalID, WindowStart: now.Add(-time.Hour), Accumulated: 40, Cap: 300},
		{ProviderID: "primary", WindowStart: now.Add(-2 * time.Hour), Accumulated: 120, Cap: 80},
		{ProviderID: "retired", WindowStart: now.Add(-30 * time.Hour), Accumulated: 10, Cap: 20},
	}

	got := budgetWindows(states, cfg, now)
	if len(got) != 3 {
		t.Fatalf("Expected 3 windows, got %d", len(got))
	}

	tests := []struct {
		id        string
		cap       float64
		used      float64
		remaining float64
		expired   bool
	}{
		{ledger.GlobalID, 500, 40, 460, false},
		{"primary", 100, 120, 0, false},
		{"retired", 20, 0, 20, true},
	}

	for i, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			w := got[i]
			if w.ProviderID != tt.id {
				t.Fatalf("Expected provider %s, got %s", tt.id, w.ProviderID)
			}
			if w.Cap != tt.cap {
				t.Errorf("Expected cap %v, got %v", tt.cap, w.Cap)
			}
			if w.Used != tt.used {
				t.Errorf("Expected used %v, got %v", tt.used, w.Used)
			}
			if w.Remaining != tt.remaining {
				t.Errorf("Expected remaining %v, got %v", tt.remaining, w.Remaining)
			}
			if w.Expired != tt.expired {
				t.Errorf("Expected expired %v, got %v", tt.expired, w.Expired)
			}
		})
	}
}

func TestBudget_ShowsSnapshotAfterRouting(t *testing.T) {
	writeConfig(t, mockConfig)
	routeOnce(t, "budget-req-1")
	outputFormat = "json"

	cmd, out := testCommand()
	if err := runBudget(cmd, nil); err != nil {
		t.Fatalf("runBudget() error: %v", err)
	}

	var windows []budgetWindow
	if err := json.Unmarshal(out.Bytes(), &windows); err != nil {
		t.Fatalf("Expected JSON windows, got error: %v\n%s", err, out.String())
	}

	byID := make(map[string]budgetWindow)
	for _, w := range windows {
		byID[w.ProviderID] = w
	}
	primary, ok := byID["primary"]
	if !ok {
		t.Fatalf("Expected a window for primary, got %+v", windows)
	}
	if primary.Cap != 100 {
		t.Errorf("Expected cap 100, got %v", primary.Cap)
	}
	if primary.Used <= 0 {
		t.Errorf("Expected spend recorded for primary, got %v", primary.Used)
	}
	if backup, ok := byID["backup"]; ok && backup.Used != 0 {
		t.Errorf("Expected no spend for backup, got %v", backup.Used)
	}
}

func TestBudget_TextTable(t *testing.T) {
	writeConfig(t, mockConfig)
	routeOnce(t, "budget-req-1")

	cmd, out := testCommand()
	if err := runBudget(cmd, nil); err != nil {
		t.Fatalf("runBudget() error: %v", err)
	}
	for _, want := range []string{"PROVIDER", "primary", "active"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out.String())
		}
	}
}

func TestBudget_RequiresSQLiteBackend(t *testing.T) {
	writeConfig(t, `
ledger:
  backend: memory
`)

	cmd, _ := testCommand()
	err := runBudget(cmd, nil)
	if code := cli.ExitCode(err); code != cli.ExitConfigError {
		t.Errorf("Expected exit code %d, got %d (err: %v)", cli.ExitConfigError, code, err)
	}
}
