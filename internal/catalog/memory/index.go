package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/duckmesh/tabletalk/internal/catalog"
)

// Index keeps catalog entries in process. It backs tests and single-node
// development setups.
type Index struct {
	mu      sync.RWMutex
	entries map[string]catalog.Entry
}

func NewIndex(entries ...catalog.Entry) *Index {
	idx := &Index{entries: map[string]catalog.Entry{}}
	for _, entry := range entries {
		idx.entries[entry.TargetID] = entry
	}
	return idx
}

func (i *Index) Put(entry catalog.Entry) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries[entry.TargetID] = entry
}

func (i *Index) GetEntries(_ context.Context, userID string) ([]catalog.Entry, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]catalog.Entry, 0)
	for _, entry := range i.entries {
		if entry.UserID == userID {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Ordinal != out[b].Ordinal {
			return out[a].Ordinal < out[b].Ordinal
		}
		return out[a].TargetID < out[b].TargetID
	})
	return out, nil
}

func (i *Index) GetEntry(_ context.Context, targetID string) (catalog.Entry, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	entry, ok := i.entries[targetID]
	if !ok {
		return catalog.Entry{}, catalog.ErrNotFound
	}
	return entry, nil
}

// UpsertEntry stores entry, giving a new dataset the next ordinal of its user
// and keeping the ordinal of an existing one.
func (i *Index) UpsertEntry(_ context.Context, entry catalog.Entry) (catalog.Entry, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if existing, ok := i.entries[entry.TargetID]; ok {
		entry.Ordinal = existing.Ordinal
		entry.CreatedAt = existing.CreatedAt
	} else {
		next := 1
		for _, other := range i.entries {
			if other.UserID == entry.UserID && other.Ordinal >= next {
				next = other.Ordinal + 1
			}
		}
		entry.Ordinal = next
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now().UTC()
		}
	}
	i.entries[entry.TargetID] = entry
	return entry, nil
}
