// Package scheduler runs named background jobs on cron schedules.
//
// The router process uses it for two jobs: persisting a ledger snapshot so
// spend survives restarts, and pruning audit events past their retention
// period. Schedules use standard five field cron syntax:
//
//	"0 3 * * *"    daily at 3 AM
//	"*/5 * * * *"  every five minutes
//	"@every 1m"    fixed interval
//
// A job with an empty schedule is not registered.
package scheduler
