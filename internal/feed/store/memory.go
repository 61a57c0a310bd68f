package store

import (
	"cmp"
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/renix-codex/feedsync/internal/feed"
	"github.com/renix-codex/feedsync/internal/models"
)

var errClosed = errors.New("store is closed")

// MemoryStore keeps records in a map. Upsert builds the merged map aside
// and swaps it in, so a batch is applied whole or not at all.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[int]models.PostRecord
	closed  bool
}

var _ feed.StorePort = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[int]models.PostRecord)}
}

func (s *MemoryStore) Upsert(ctx context.Context, posts []models.Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}

	next := maps.Clone(s.records)
	err := writeChunks(ctx, posts, func(chunk []models.Post) error {
		for _, p := range chunk {
			rec := next[p.ID]
			rec.Post = p
			next[p.ID] = rec
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.records = next
	return nil
}

func (s *MemoryStore) FetchAll(ctx context.Context) ([]models.PostRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}

	out := slices.Collect(maps.Values(s.records))
	slices.SortFunc(out, compareRecords)
	return out, nil
}

func (s *MemoryStore) Liked(ctx context.Context, id int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, errClosed
	}
	return s.records[id].Liked, nil
}

func (s *MemoryStore) ToggleLiked(ctx context.Context, id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, errClosed
	}
	rec, ok := s.records[id]
	if !ok {
		return false, nil
	}
	rec.Liked = !rec.Liked
	s.records[id] = rec
	return rec.Liked, nil
}

func (s *MemoryStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func compareRecords(a, b models.PostRecord) int {
	return cmp.Compare(a.ID, b.ID)
}
