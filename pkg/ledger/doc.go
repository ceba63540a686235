// Package ledger grants and accounts provider spend within a rolling
// accounting window.
//
// Spend goes through a reservation protocol:
//
//	res, err := l.Reserve("openai", estimate)
//	if errors.Is(err, ledger.ErrBudgetExceeded) {
//	    // try another provider
//	}
//	resp, err := call()
//	if err != nil {
//	    l.Release(res)
//	} else {
//	    l.Commit(res, resp.CostCents)
//	}
//
// Reserve checks accumulated + estimate <= cap and adds the estimate in the
// same critical section, so concurrent reservations can never together
// overshoot the cap. Commit replaces the estimate with the actual cost;
// Release removes it. Window rollover happens inside the same critical
// section as the requested change.
//
// State lives in memory. Snapshot and Restore move the open window to a
// storage.Backend so a restart inside a window keeps its accounting.
package ledger
