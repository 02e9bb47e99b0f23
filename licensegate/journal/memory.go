package journal

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryJournal keeps entries in process memory. It is meant for tests and
// single-shot CLI runs where nothing needs to outlive the process.
type MemoryJournal struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryJournal creates an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{entries: make(map[string]Entry)}
}

func (j *MemoryJournal) Record(_ context.Context, e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[e.ClientToken] = e
	return nil
}

func (j *MemoryJournal) List(_ context.Context, productSKU string, limit int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []Entry
	for _, e := range j.entries {
		if e.ProductSKU == productSKU {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].CheckedOutAt.After(out[b].CheckedOutAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (j *MemoryJournal) Prune(_ context.Context, productSKU string, olderThan time.Duration) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for token, e := range j.entries {
		if e.ProductSKU == productSKU && e.CheckedOutAt.Before(cutoff) {
			delete(j.entries, token)
			removed++
		}
	}
	return removed, nil
}

func (j *MemoryJournal) Close(_ context.Context) error {
	return nil
}
