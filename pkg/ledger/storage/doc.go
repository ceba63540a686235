// Package storage persists the current budget window of each provider.
//
// The ledger keeps its accounting in memory. A Backend lets it snapshot the
// open window periodically and restore it on start, so a restart inside a
// window does not hand every provider a fresh daily budget. Only the current
// window is stored; history is not kept.
//
// Two backends are provided:
//
//   - Memory: in-process map, used by tests and when persistence is off
//   - SQLite: file-backed, pure Go driver (modernc.org/sqlite), WAL mode
//
// # Usage
//
//	backend, err := storage.NewSQLiteBackend("data/ledger.db")
//	if err != nil {
//	    return err
//	}
//	defer backend.Close()
//
//	err = backend.Save(ctx, &storage.WindowState{
//	    ProviderID:  "openai",
//	    WindowStart: start,
//	    Accumulated: 42.5,
//	})
//
// # Thread Safety
//
// All backends are safe for concurrent use.
package storage
