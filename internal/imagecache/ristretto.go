package imagecache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
)

// RistrettoStorage bounds the cache by total image bytes. Admission and
// eviction are ristretto's; an image may be rejected under pressure, in
// which case the next Load fetches it again.
type RistrettoStorage struct {
	cache *ristretto.Cache[string, Image]
}

// NewRistrettoStorage creates a store holding at most maxBytes of image data.
func NewRistrettoStorage(maxBytes int64) (*RistrettoStorage, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("ristretto storage needs a positive size, got %d", maxBytes)
	}
	// Ten counters per expected entry, assuming 16KiB avatars.
	counters := max(maxBytes/(16<<10)*10, 1000)
	cache, err := ristretto.NewCache(&ristretto.Config[string, Image]{
		NumCounters: counters,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}
	return &RistrettoStorage{cache: cache}, nil
}

func (s *RistrettoStorage) Get(_ context.Context, url string) (Image, bool) {
	return s.cache.Get(url)
}

func (s *RistrettoStorage) Set(_ context.Context, img Image) {
	if s.cache.Set(img.URL, img, int64(len(img.Data))+1) {
		// Make the write visible to the callbacks that follow.
		s.cache.Wait()
	}
}

func (s *RistrettoStorage) Close() {
	s.cache.Close()
}
