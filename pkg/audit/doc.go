// Package audit records one sanitized event per routing attempt.
//
// An Event names the provider, model, outcome, failure kind, cost and
// latency of an attempt. It has no field for prompt or response text, so
// sinks cannot leak request content.
//
// # Sinks
//
//   - LogSink: writes events as structured log records
//   - SQLiteSink: buffers events and writes them to SQLite in the background
//   - MemorySink: keeps events in memory, for tests and the "memory" setting
//   - MultiSink: fans events out to several sinks
//   - NopSink: discards events
//
// Recording is fire-and-forget. Sinks never block the router and never
// return errors to it; write failures are logged and counted.
//
// # Retention
//
// Pruner deletes stored events older than the retention period. The
// scheduler package runs it on a cron schedule.
package audit
