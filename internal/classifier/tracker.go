package classifier

import "sync"

// TagTracker remembers the last notes observed for each ledger transaction. It is
// the only record of whether a transaction was already tagged when a change arrives.
//
// Callers serialize cycles themselves; the mutex only protects concurrent readers
// such as the status endpoint.
type TagTracker struct {
	mu    sync.RWMutex
	notes map[string]string
}

// NewTagTracker creates an empty tracker.
func NewTagTracker() *TagTracker {
	return &TagTracker{notes: make(map[string]string)}
}

// Get returns the tracked notes for id. ok is false when the id was never seen or
// its notes were null.
func (t *TagTracker) Get(id string) (notes string, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	notes, ok = t.notes[id]
	return notes, ok
}

// Set records notes for id. A nil value clears the entry.
func (t *TagTracker) Set(id string, notes *string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if notes == nil {
		delete(t.notes, id)
		return
	}
	t.notes[id] = *notes
}

// Reload replaces the whole state, typically with the recent-history window.
func (t *TagTracker) Reload(notes map[string]string) {
	fresh := make(map[string]string, len(notes))
	for id, n := range notes {
		fresh[id] = n
	}
	t.mu.Lock()
	t.notes = fresh
	t.mu.Unlock()
}

// Len returns the number of tracked transactions.
func (t *TagTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.notes)
}
