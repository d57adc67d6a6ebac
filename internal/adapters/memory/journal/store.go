package journal

import (
	"context"
	"sort"
	"sync"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/journal"
)

// Store is an in-memory implementation of journal.Journal.
// It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	ids      map[string]struct{}
	byDriver map[domain.DriverID][]journal.Entry
}

func NewStore() *Store {
	return &Store{
		ids:      make(map[string]struct{}),
		byDriver: make(map[domain.DriverID][]journal.Entry),
	}
}

func (s *Store) Append(ctx context.Context, e journal.Entry) error {
	_ = ctx
	if e.ID == "" || e.DriverID == "" {
		return journal.ErrInvalidEntry
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[e.ID]; ok {
		return journal.ErrDuplicateEntry
	}
	s.ids[e.ID] = struct{}{}
	e.At = e.At.UTC()
	s.byDriver[e.DriverID] = append(s.byDriver[e.DriverID], e)
	return nil
}

func (s *Store) ListByDriver(ctx context.Context, driverID domain.DriverID, limit int) ([]journal.Entry, error) {
	_ = ctx
	if limit <= 0 {
		limit = journal.DefaultLimit
	}
	s.mu.RLock()
	out := append([]journal.Entry(nil), s.byDriver[driverID]...)
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.After(out[j].At)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
