// Package logging builds the process logger: a log/slog logger with
// JSON or text output, level filtering, and a scrubbing handler.
//
// # Scrubbing
//
// When sanitizing is on, every string attribute and error passes through a
// Scrubber before it reaches the output. Values under sensitive keys
// (api_key, token, authorization, ...) are masked outright; other values
// have credentials (sk- keys, bearer tokens) masked and PII replaced with
// the placeholders of the redact package:
//
//	logger.Info("provider call failed", "error", err)
//	// error="... contact [REDACTED:EMAIL] ..."
//
// # Context fields
//
// Records logged with a context carry the request ID set by
// WithRequestID and, when a span is active, its trace and span IDs:
//
//	ctx = logging.WithRequestID(ctx, req.ID)
//	logger.InfoContext(ctx, "routing")
package logging
