package upload

import (
	"sync"

	"github.com/matheus3301/chatsync/internal/bus"
)

// Tracker maps temporary message ids to upload percent complete.
type Tracker struct {
	mu       sync.RWMutex
	progress map[int64]int
	bus      *bus.Bus
}

// NewTracker creates an empty tracker that notifies b on changes.
func NewTracker(b *bus.Bus) *Tracker {
	return &Tracker{progress: make(map[int64]int), bus: b}
}

// Set records pct for tempID, clamped to [0, 100].
func (t *Tracker) Set(tempID int64, pct int) {
	pct = min(max(pct, 0), 100)
	t.mu.Lock()
	t.progress[tempID] = pct
	t.mu.Unlock()
	t.bus.Notify(bus.UploadProgress, bus.UploadChange{TempID: tempID, Percent: pct})
}

// Get returns the progress of tempID.
func (t *Tracker) Get(tempID int64) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pct, ok := t.progress[tempID]
	return pct, ok
}

// Remove drops the entry of tempID.
func (t *Tracker) Remove(tempID int64) {
	t.mu.Lock()
	delete(t.progress, tempID)
	t.mu.Unlock()
}

// Prune removes every entry for which relevant returns false.
func (t *Tracker) Prune(relevant func(tempID int64) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.progress {
		if !relevant(id) {
			delete(t.progress, id)
		}
	}
}

// Snapshot returns a copy of all entries.
func (t *Tracker) Snapshot() map[int64]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[int64]int, len(t.progress))
	for k, v := range t.progress {
		out[k] = v
	}
	return out
}
