package scheduler

import (
	"context"
	"log/slog"

	"mercator-hq/callisto/pkg/audit"
	"mercator-hq/callisto/pkg/ledger"
	"mercator-hq/callisto/pkg/ledger/storage"
)

// Job names used by the router process.
const (
	JobLedgerSnapshot = "ledger_snapshot"
	JobAuditPrune     = "audit_prune"
)

// LedgerSnapshot returns a job that persists the ledger's window state.
func LedgerSnapshot(l *ledger.Ledger, backend storage.Backend) JobFunc {
	return func(ctx context.Context) error {
		return l.Snapshot(ctx, backend)
	}
}

// AuditPrune returns a job that deletes audit events past retention.
func AuditPrune(p *audit.Pruner, logger *slog.Logger) JobFunc {
	return func(ctx context.Context) error {
		deleted, err := p.Prune(ctx)
		if err != nil {
			return err
		}
		if deleted > 0 && logger != nil {
			logger.Info("audit events pruned", "deleted_count", deleted)
		}
		return nil
	}
}
