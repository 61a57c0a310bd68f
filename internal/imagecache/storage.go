package imagecache

import (
	"context"
	"sync"
)

// MemoryStorage is an unbounded map.
type MemoryStorage struct {
	mu     sync.RWMutex
	images map[string]Image
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{images: make(map[string]Image)}
}

func (s *MemoryStorage) Get(_ context.Context, url string) (Image, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.images[url]
	return img, ok
}

func (s *MemoryStorage) Set(_ context.Context, img Image) {
	s.mu.Lock()
	s.images[img.URL] = img
	s.mu.Unlock()
}

func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}
