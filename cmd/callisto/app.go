package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/callisto/pkg/audit"
	"mercator-hq/callisto/pkg/cli"
	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/ledger"
	"mercator-hq/callisto/pkg/ledger/storage"
	"mercator-hq/callisto/pkg/router"
	"mercator-hq/callisto/pkg/scheduler"
	"mercator-hq/callisto/pkg/telemetry/logging"
	"mercator-hq/callisto/pkg/telemetry/metrics"
	"mercator-hq/callisto/pkg/telemetry/tracing"
)

// shutdownTimeout bounds the final snapshot, flushes and exporter shutdown.
const shutdownTimeout = 10 * time.Second

// app holds the components a routing command needs.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	tracer    *tracing.Tracer
	collector *metrics.Collector
	sink      audit.Sink
	store     audit.Store
	backend   storage.Backend
	scheduler *scheduler.Scheduler

	current atomic.Pointer[router.Router]

	mu      sync.Mutex
	retired []*router.Router
}

// loadConfig reads the configuration file named by --config and applies
// environment overrides and the --verbose flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewExitError(cli.ExitConfigError, err)
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
		cfg.Router.Logging.Verbose = true
	}
	return cfg, nil
}

// newLogger builds the process logger and makes it the slog default.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.New(logging.FromConfig(cfg))
	if err != nil {
		return nil, cli.NewExitError(cli.ExitConfigError, err)
	}
	slog.SetDefault(logger)
	return logger, nil
}

// newApp wires logging, telemetry, the audit sink, ledger persistence and the
// router for cfg. The caller must call close.
func newApp(cfg *config.Config) (*app, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		collector: metrics.NewCollector(&cfg.Telemetry.Metrics, nil),
		scheduler: scheduler.New(logger),
	}

	a.tracer, err = tracing.New(&cfg.Telemetry.Tracing, tracing.WithServiceVersion(Version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	if err := a.openAudit(); err != nil {
		a.close()
		return nil, err
	}
	if err := a.openBackend(); err != nil {
		a.close()
		return nil, err
	}

	r, err := a.buildRouter(cfg, nil)
	if err != nil {
		a.close()
		return nil, err
	}
	a.current.Store(r)

	if err := a.scheduleJobs(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// openAudit selects the audit sink named by audit.sink.
func (a *app) openAudit() error {
	switch a.cfg.Audit.Sink {
	case "log", "":
		a.sink = audit.NewLogSink(a.logger)
	case "sqlite":
		store, err := openAuditStore(a.cfg, a.logger)
		if err != nil {
			return err
		}
		a.sink = store
		a.store = store
	case "memory":
		store := audit.NewMemorySink()
		a.sink = store
		a.store = store
	case "none":
		a.sink = audit.NopSink{}
	default:
		return cli.NewExitError(cli.ExitConfigError,
			fmt.Errorf("unsupported audit sink: %s", a.cfg.Audit.Sink))
	}
	return nil
}

// openAuditStore opens the SQLite audit database, creating its directory.
func openAuditStore(cfg *config.Config, logger *slog.Logger) (*audit.SQLiteSink, error) {
	if err := ensureDir(cfg.Audit.SQLite.Path); err != nil {
		return nil, err
	}
	store, err := audit.NewSQLiteSink(audit.SQLiteConfig{
		Path:        cfg.Audit.SQLite.Path,
		BufferSize:  cfg.Audit.SQLite.BufferSize,
		BusyTimeout: cfg.Audit.SQLite.BusyTimeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audit store: %w", err)
	}
	return store, nil
}

// openBackend opens the ledger snapshot store named by ledger.backend.
func (a *app) openBackend() error {
	backend, err := openLedgerBackend(a.cfg)
	if err != nil {
		return err
	}
	a.backend = backend
	return nil
}

func openLedgerBackend(cfg *config.Config) (storage.Backend, error) {
	switch cfg.Ledger.Backend {
	case "memory", "":
		return storage.NewMemoryBackend(), nil
	case "sqlite":
		if err := ensureDir(cfg.Ledger.SQLitePath); err != nil {
			return nil, err
		}
		backend, err := storage.NewSQLiteBackend(cfg.Ledger.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger store: %w", err)
		}
		return backend, nil
	default:
		return nil, cli.NewExitError(cli.ExitConfigError,
			fmt.Errorf("unsupported ledger backend: %s", cfg.Ledger.Backend))
	}
}

// buildRouter creates a router for cfg. A router built without a shared
// ledger restores its persisted budget windows.
func (a *app) buildRouter(cfg *config.Config, shared *ledger.Ledger) (*router.Router, error) {
	r, err := router.New(cfg,
		router.WithLogger(a.logger),
		router.WithAuditSink(a.sink),
		router.WithObserver(a.collector),
		router.WithTracer(a.tracer.Tracer()),
		router.WithLedger(shared),
	)
	if err != nil {
		return nil, err
	}

	if l := r.Ledger(); l != nil && shared == nil && a.backend != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := l.Restore(ctx, a.backend); err != nil {
			a.logger.Warn("failed to restore ledger windows", "error", err)
		}
	}
	return r, nil
}

// scheduleJobs registers the snapshot and retention jobs.
func (a *app) scheduleJobs() error {
	if a.backend != nil {
		snapshot := func(ctx context.Context) error {
			l := a.router().Ledger()
			if l == nil {
				return nil
			}
			return scheduler.LedgerSnapshot(l, a.backend)(ctx)
		}
		if err := a.scheduler.Add(scheduler.JobLedgerSnapshot, a.cfg.Ledger.SnapshotSchedule, snapshot); err != nil {
			return err
		}
	}
	if a.store != nil && a.cfg.Audit.Retention.Days > 0 {
		pruner := audit.NewPruner(a.store, a.cfg.Audit.Retention.Days, a.logger)
		if err := a.scheduler.Add(scheduler.JobAuditPrune, a.cfg.Audit.Retention.Schedule,
			scheduler.AuditPrune(pruner, a.logger)); err != nil {
			return err
		}
	}
	return nil
}

// router returns the router currently serving requests.
func (a *app) router() *router.Router {
	return a.current.Load()
}

// reload swaps in a router built from cfg. The new router shares the live
// ledger of the one it replaces, so calls still in flight on the old router
// settle against the same windows the new one reserves from. Replaced
// routers stay open until close so in-flight calls can finish. A router
// that is not ready is discarded and the old one keeps serving.
func (a *app) reload(cfg *config.Config) {
	old := a.router()

	r, err := a.buildRouter(cfg, old.Ledger())
	if err != nil {
		a.logger.Error("failed to rebuild router", "error", err)
		return
	}
	if cfg.Router.IsEnabled() && !r.Ready() {
		a.logger.Error("reloaded configuration rejected, keeping current router",
			"problems", r.Problems())
		if err := r.Close(); err != nil {
			a.logger.Warn("failed to close rejected router", "error", err)
		}
		return
	}
	a.current.Store(r)

	a.mu.Lock()
	a.retired = append(a.retired, old)
	a.mu.Unlock()

	a.logger.Info("router reloaded", "ready", r.Ready(), "providers", len(r.Providers()))
}

// watch reloads the router whenever the configuration file changes and
// passes validation. It blocks until ctx is done.
func (a *app) watch(ctx context.Context) error {
	w, err := config.NewWatcher(cfgFile, 0, a.logger)
	if err != nil {
		return err
	}
	defer w.Stop()
	return w.Watch(ctx, a.reload)
}

// close stops background jobs, saves the final ledger snapshot and releases
// every component. Errors are logged.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	var errs []error
	if r := a.router(); r != nil {
		if l := r.Ledger(); l != nil && a.backend != nil {
			if err := l.Snapshot(ctx, a.backend); err != nil {
				errs = append(errs, fmt.Errorf("final ledger snapshot: %w", err))
			}
		}
		errs = append(errs, r.Close())
	}

	a.mu.Lock()
	for _, r := range a.retired {
		errs = append(errs, r.Close())
	}
	a.retired = nil
	a.mu.Unlock()

	if a.sink != nil {
		errs = append(errs, a.sink.Close())
	}
	if a.backend != nil {
		errs = append(errs, a.backend.Close())
	}
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(ctx))
	}

	if err := errors.Join(errs...); err != nil {
		a.logger.Error("shutdown completed with errors", "error", err)
	}
}

// ensureDir creates the parent directory of a database file.
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}
