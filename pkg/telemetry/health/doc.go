// Package health serves liveness and readiness probes for the router
// process.
//
// Liveness (/healthz) only reports that the process is up. Readiness
// (/readyz) runs every registered check concurrently, each bounded by the
// checker timeout, and answers 503 when any check fails. The router check
// fails while the configuration is invalid or the router is disabled, and
// the providers check fails when every provider's circuit breaker is open.
package health
