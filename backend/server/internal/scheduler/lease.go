package scheduler

import "sync"

// leaseRegistry enforces at most one in-flight fetch per query id across
// concurrent ticks and adhoc triggers. Acquisition fails rather than blocks;
// a skipped query is picked up by a later tick.
type leaseRegistry struct {
	mu     sync.Mutex
	leased map[string]bool
}

func newLeaseRegistry() *leaseRegistry {
	return &leaseRegistry{leased: make(map[string]bool)}
}

func (l *leaseRegistry) TryAcquire(queryId string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.leased[queryId] {
		return false
	}
	l.leased[queryId] = true
	return true
}

func (l *leaseRegistry) Release(queryId string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.leased, queryId)
}
