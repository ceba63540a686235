package router

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a point-in-time copy of the routing counters.
type Stats struct {
	TotalRequests    int64            `json:"total_requests"`
	ByStatus         map[string]int64 `json:"by_status"`
	ServedByProvider map[string]int64 `json:"served_by_provider"`
	SkipsByReason    map[string]int64 `json:"skips_by_reason"`
	Calls            int64            `json:"calls"`
	Retries          int64            `json:"retries"`
	Fallbacks        int64            `json:"fallbacks"`
	LastResetTime    time.Time        `json:"last_reset_time"`
}

// atomicStats implements thread-safe routing counters using atomic
// operations. Keyed counters live in sync.Maps of *atomic.Int64.
type atomicStats struct {
	totalRequests atomic.Int64
	calls         atomic.Int64
	retries       atomic.Int64
	fallbacks     atomic.Int64

	byStatus sync.Map // map[string]*atomic.Int64
	served   sync.Map // map[string]*atomic.Int64
	skips    sync.Map // map[string]*atomic.Int64

	mu            sync.RWMutex
	lastResetTime time.Time
}

func newAtomicStats() *atomicStats {
	return &atomicStats{lastResetTime: time.Now()}
}

func increment(m *sync.Map, key string) {
	val, _ := m.LoadOrStore(key, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)
}

func collect(m *sync.Map) map[string]int64 {
	out := make(map[string]int64)
	m.Range(func(key, value any) bool {
		out[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})
	return out
}

func (s *atomicStats) snapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		TotalRequests:    s.totalRequests.Load(),
		ByStatus:         collect(&s.byStatus),
		ServedByProvider: collect(&s.served),
		SkipsByReason:    collect(&s.skips),
		Calls:            s.calls.Load(),
		Retries:          s.retries.Load(),
		Fallbacks:        s.fallbacks.Load(),
		LastResetTime:    s.lastResetTime,
	}
}

func (s *atomicStats) reset() {
	s.totalRequests.Store(0)
	s.calls.Store(0)
	s.retries.Store(0)
	s.fallbacks.Store(0)

	for _, m := range []*sync.Map{&s.byStatus, &s.served, &s.skips} {
		m.Range(func(key, _ any) bool {
			m.Delete(key)
			return true
		})
	}

	s.mu.Lock()
	s.lastResetTime = time.Now()
	s.mu.Unlock()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
