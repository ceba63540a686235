package main

import (
	"strings"
	"testing"
	"time"

	"mercator-hq/callisto/pkg/audit"
	"mercator-hq/callisto/pkg/cli"
)

func resetAuditFlags(t *testing.T) {
	t.Helper()
	orig, origPrune := auditFlags, auditPruneFlags
	t.Cleanup(func() { auditFlags, auditPruneFlags = orig, origPrune })
	auditFlags.since = ""
	auditFlags.until = ""
	auditFlags.provider = ""
	auditFlags.requestID = ""
	auditFlags.result = ""
	auditFlags.limit = audit.DefaultQueryLimit
	auditPruneFlags.days = 0
}

// routeOnce routes a prompt through the configured router so the audit and
// ledger stores have something to show.
func routeOnce(t *testing.T, id string) {
	t.Helper()
	resetRouteFlags(t)
	routeFlags.prompt = "hello"
	routeFlags.id = id

	cmd, _ := testCommand()
	if err := runRoute(cmd, nil); err != nil {
		t.Fatalf("runRoute() error: %v", err)
	}
}

func TestParseTimeFlag(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		value   string
		want    time.Time
		wantErr bool
	}{
		{"", time.Time{}, false},
		{"24h", now.Add(-24 * time.Hour), false},
		{"90m", now.Add(-90 * time.Minute), false},
		{"7d", now.AddDate(0, 0, -7), false},
		{"2026-10-01T00:00:00Z", time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), false},
		{"-1h", time.Time{}, true},
		{"yesterday", time.Time{}, true},
		{"xd", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := parseTimeFlag(tt.value, now)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q", tt.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTimeFlag(%q) error: %v", tt.value, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestBuildQuery_InvalidResult(t *testing.T) {
	resetAuditFlags(t)
	auditFlags.result = "maybe"

	if _, err := buildQuery(time.Now()); err == nil {
		t.Error("Expected error for unknown result")
	}
}

func TestAudit_ListsRoutedAttempts(t *testing.T) {
	writeConfig(t, mockConfig)
	routeOnce(t, "audit-req-1")
	routeOnce(t, "audit-req-2")

	resetAuditFlags(t)
	auditFlags.since = "1h"
	auditFlags.requestID = "audit-req-2"

	cmd, out := testCommand()
	if err := runAudit(cmd, nil); err != nil {
		t.Fatalf("runAudit() error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected header and one event, got %d lines:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[1], "audit-req-2") || !strings.Contains(lines[1], "success") {
		t.Errorf("Unexpected event row: %s", lines[1])
	}
	if strings.Contains(out.String(), "hello") {
		t.Error("Audit output must not contain prompt text")
	}
}

func TestAudit_NoMatches(t *testing.T) {
	writeConfig(t, mockConfig)
	routeOnce(t, "audit-req-1")

	resetAuditFlags(t)
	auditFlags.result = string(audit.ResultFailure)

	cmd, out := testCommand()
	if err := runAudit(cmd, nil); err != nil {
		t.Fatalf("runAudit() error: %v", err)
	}
	if !strings.Contains(out.String(), "No matching events") {
		t.Errorf("Expected no matches, got:\n%s", out.String())
	}
}

func TestAudit_RequiresSQLiteSink(t *testing.T) {
	writeConfig(t, `
audit:
  sink: log
`)
	resetAuditFlags(t)

	cmd, _ := testCommand()
	err := runAudit(cmd, nil)
	if code := cli.ExitCode(err); code != cli.ExitConfigError {
		t.Errorf("Expected exit code %d, got %d (err: %v)", cli.ExitConfigError, code, err)
	}
}

func TestAuditPrune(t *testing.T) {
	writeConfig(t, mockConfig)
	routeOnce(t, "audit-req-1")

	tests := []struct {
		name string
		days int
		want string
	}{
		{"recent events kept", 1, "Pruned 0 events"},
		{"default retention", 0, "older than 30 days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetAuditFlags(t)
			auditPruneFlags.days = tt.days

			cmd, out := testCommand()
			if err := runAuditPrune(cmd, nil); err != nil {
				t.Fatalf("runAuditPrune() error: %v", err)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("Expected output to contain %q, got:\n%s", tt.want, out.String())
			}
		})
	}
}
