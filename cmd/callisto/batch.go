package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"mercator-hq/callisto/pkg/cli"
	"mercator-hq/callisto/pkg/router"
	"mercator-hq/callisto/pkg/telemetry/health"
	"mercator-hq/callisto/pkg/telemetry/logging"
	"mercator-hq/callisto/pkg/telemetry/tracing"
)

var batchFlags struct {
	input       string
	concurrency int
	metricsAddr string
	watch       bool
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Route many requests concurrently",
	Long: `Route every request in an input file with a bounded pool of workers.

The input is a YAML list of requests, or JSON Lines when the file ends in
.jsonl or .ndjson. Each record takes the fields of a single request (id,
text, messages, model, max_cost_cents, min_quality, max_tokens) plus an
optional traceparent that joins the routing spans to an upstream trace.

A failed request does not stop the batch; its status and error are reported
with the other results.

Examples:
  # Route a YAML file with eight workers
  callisto batch --input requests.yaml --concurrency 8

  # Serve /metrics, /healthz and /readyz while the batch runs
  callisto batch --input requests.jsonl --metrics-addr :9090

  # Pick up configuration edits while routing
  callisto batch --input requests.yaml --watch`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVarP(&batchFlags.input, "input", "i", "", "request file (.yaml, .jsonl; - for YAML on stdin)")
	batchCmd.Flags().IntVarP(&batchFlags.concurrency, "concurrency", "n", 4, "number of concurrent workers")
	batchCmd.Flags().StringVar(&batchFlags.metricsAddr, "metrics-addr", "", "serve metrics and health endpoints on this address")
	batchCmd.Flags().BoolVar(&batchFlags.watch, "watch", false, "reload the router when the config file changes")
	_ = batchCmd.MarkFlagRequired("input")
}

// batchRecord is one request of a batch input file.
type batchRecord struct {
	router.Request `yaml:",inline"`

	// TraceParent is a W3C traceparent header value.
	TraceParent string `json:"traceparent,omitempty" yaml:"traceparent,omitempty"`
}

// readBatch decodes records from path. JSON Lines is selected by extension.
func readBatch(path string, stdin io.Reader) ([]batchRecord, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return decodeJSONLines(r)
	default:
		var records []batchRecord
		if err := yaml.NewDecoder(r).Decode(&records); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to decode input: %w", err)
		}
		return records, nil
	}
}

func decodeJSONLines(r io.Reader) ([]batchRecord, error) {
	var records []batchRecord
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec batchRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return records, nil
}

// batchResult is the outcome of one batch record.
type batchResult struct {
	Index      int           `json:"index" yaml:"index"`
	RequestID  string        `json:"request_id" yaml:"request_id"`
	Status     router.Status `json:"status" yaml:"status"`
	ProviderID string        `json:"provider_id,omitempty" yaml:"provider_id,omitempty"`
	Model      string        `json:"model,omitempty" yaml:"model,omitempty"`
	CostCents  float64       `json:"cost_cents" yaml:"cost_cents"`
	Latency    time.Duration `json:"latency" yaml:"latency"`
	Attempts   int           `json:"attempts" yaml:"attempts"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// batchResults renders results as a table.
type batchResults []batchResult

func (b batchResults) Header() []string {
	return []string{"#", "REQUEST", "STATUS", "PROVIDER", "MODEL", "COST", "LATENCY", "ATTEMPTS", "ERROR"}
}

func (b batchResults) Rows() [][]string {
	rows := make([][]string, 0, len(b))
	for _, r := range b {
		rows = append(rows, []string{
			fmt.Sprintf("%d", r.Index),
			r.RequestID,
			string(r.Status),
			r.ProviderID,
			r.Model,
			fmt.Sprintf("%.4f", r.CostCents),
			r.Latency.Round(time.Millisecond).String(),
			fmt.Sprintf("%d", r.Attempts),
			r.Error,
		})
	}
	return rows
}

// batchSummary aggregates a batch run.
type batchSummary struct {
	Total     int            `json:"total" yaml:"total"`
	Succeeded int            `json:"succeeded" yaml:"succeeded"`
	Failed    int            `json:"failed" yaml:"failed"`
	ByStatus  map[string]int `json:"by_status" yaml:"by_status"`
	CostCents float64        `json:"cost_cents" yaml:"cost_cents"`
	Duration  time.Duration  `json:"duration" yaml:"duration"`
}

type batchReport struct {
	Summary batchSummary `json:"summary" yaml:"summary"`
	Results batchResults `json:"results" yaml:"results"`
}

func summarize(results []batchResult, elapsed time.Duration) batchSummary {
	s := batchSummary{
		Total:    len(results),
		ByStatus: make(map[string]int),
		Duration: elapsed,
	}
	for _, r := range results {
		s.ByStatus[string(r.Status)]++
		s.CostCents += r.CostCents
		if r.Status == router.StatusSuccess {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}

// routeBatch routes records with a pool of workers. current is consulted for
// every record so a reloaded router takes over mid-batch. Results keep the
// input order.
func routeBatch(ctx context.Context, current func() *router.Router, records []batchRecord, workers int, progress cli.ProgressReporter) []batchResult {
	if workers < 1 {
		workers = 1
	}
	results := make([]batchResult, len(records))
	jobs := make(chan int)

	progress.Start(int64(len(records)))
	defer progress.Finish()

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = routeRecord(ctx, current(), i, records[i])
				progress.Increment()
			}
		}()
	}

	for i := range records {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

func routeRecord(ctx context.Context, r *router.Router, index int, rec batchRecord) batchResult {
	if rec.TraceParent != "" {
		ctx = tracing.ExtractFromMap(ctx, map[string]string{tracing.TraceParentKey: rec.TraceParent})
	}
	if rec.ID != "" {
		ctx = logging.WithRequestID(ctx, rec.ID)
	}

	o := r.Route(ctx, rec.Request)
	return batchResult{
		Index:      index,
		RequestID:  o.RequestID,
		Status:     o.Status,
		ProviderID: o.ProviderID,
		Model:      o.Model,
		CostCents:  o.CostCents,
		Latency:    o.Latency,
		Attempts:   len(o.Attempts),
		Error:      o.Error(),
	}
}

// newObservabilityHandler serves metrics, health and version endpoints.
func newObservabilityHandler(a *app) http.Handler {
	checker := health.New(0)
	checker.RegisterCheck("router", func(ctx context.Context) error {
		return health.RouterCheck(a.router())(ctx)
	})
	checker.RegisterCheck("providers", func(ctx context.Context) error {
		return health.ProvidersCheck(a.router())(ctx)
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.collector.Handler())
	health.Register(mux, checker, Version, GitCommit, BuildDate)
	return tracing.HTTPMiddleware(mux)
}

// startServer listens on addr and serves h until the returned shutdown
// function is called.
func startServer(addr string, h http.Handler, a *app) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("observability server failed", "error", err)
		}
	}()
	a.logger.Info("observability server listening", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Warn("observability server shutdown failed", "error", err)
		}
	}, nil
}

func writeBatchReport(w io.Writer, report batchReport) error {
	f, err := formatter()
	if err != nil {
		return err
	}

	switch cli.OutputFormat(outputFormat) {
	case cli.FormatJSON, cli.FormatYAML:
		return f.FormatTo(w, report)
	case cli.FormatCSV:
		return f.FormatTo(w, report.Results)
	}

	if err := f.FormatTo(w, report.Results); err != nil {
		return err
	}

	s := report.Summary
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total:     %d\n", s.Total)
	fmt.Fprintf(w, "Succeeded: %d\n", s.Succeeded)
	fmt.Fprintf(w, "Failed:    %d\n", s.Failed)
	statuses := make([]string, 0, len(s.ByStatus))
	for status := range s.ByStatus {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		fmt.Fprintf(w, "  %-22s %d\n", status, s.ByStatus[status])
	}
	fmt.Fprintf(w, "Cost:      %.4f cents\n", s.CostCents)
	fmt.Fprintf(w, "Duration:  %s\n", s.Duration.Round(time.Millisecond))
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	records, err := readBatch(batchFlags.input, cmd.InOrStdin())
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := cli.SetupSignalHandler()
	defer cancel()

	a.scheduler.Start(ctx)

	if batchFlags.metricsAddr != "" {
		shutdown, err := startServer(batchFlags.metricsAddr, newObservabilityHandler(a), a)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	if batchFlags.watch {
		watchCtx, stopWatch := context.WithCancel(ctx)
		defer stopWatch()
		go func() {
			if err := a.watch(watchCtx); err != nil {
				a.logger.Error("config watcher stopped", "error", err)
			}
		}()
	}

	start := time.Now()
	results := routeBatch(ctx, a.router, records, batchFlags.concurrency, cli.NewProgressReporter(cmd.ErrOrStderr()))
	report := batchReport{
		Summary: summarize(results, time.Since(start)),
		Results: results,
	}

	if err := writeBatchReport(cmd.OutOrStdout(), report); err != nil {
		return err
	}

	switch {
	case ctx.Err() != nil:
		return cli.NewExitError(cli.ExitCanceled, nil)
	case report.Summary.Failed > 0:
		return cli.NewExitError(cli.ExitFailure,
			fmt.Errorf("%d of %d requests failed", report.Summary.Failed, report.Summary.Total))
	}
	return nil
}
