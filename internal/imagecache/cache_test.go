package imagecache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatedFetcher struct {
	gate  chan struct{}
	calls atomic.Int32
	fail  atomic.Bool
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{gate: make(chan struct{})}
}

func (f *gatedFetcher) Fetch(ctx context.Context, url string) (Image, error) {
	f.calls.Add(1)
	select {
	case <-f.gate:
	case <-ctx.Done():
		return Image{}, ctx.Err()
	}
	if f.fail.Load() {
		return Image{}, errors.New("host unreachable")
	}
	return Image{Data: []byte("png:" + url), ContentType: "image/png"}, nil
}

type countingMetrics struct {
	hits, misses, coalesced, errors atomic.Int32
}

func (m *countingMetrics) Hit()        { m.hits.Add(1) }
func (m *countingMetrics) Miss()       { m.misses.Add(1) }
func (m *countingMetrics) Coalesced()  { m.coalesced.Add(1) }
func (m *countingMetrics) FetchError() { m.errors.Add(1) }

type result struct {
	img Image
	ok  bool
}

func collect(ch <-chan result, n int, t *testing.T) []result {
	t.Helper()
	out := make([]result, 0, n)
	timeout := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case r := <-ch:
			out = append(out, r)
		case <-timeout:
			t.Fatalf("got %d of %d callbacks", len(out), n)
		}
	}
	return out
}

func TestCache_CoalescesConcurrentLoads(t *testing.T) {
	fetcher := newGatedFetcher()
	metrics := &countingMetrics{}
	c := New(fetcher, WithMetrics(metrics))
	ctx := context.Background()
	const url = "https://img.example/1"

	results := make(chan result, 5)
	for range 5 {
		c.Load(ctx, url, func(img Image, ok bool) { results <- result{img, ok} })
	}
	assert.Equal(t, 1, c.Pending())

	close(fetcher.gate)
	got := collect(results, 5, t)
	c.Wait()

	assert.EqualValues(t, 1, fetcher.calls.Load())
	for _, r := range got {
		require.True(t, r.ok)
		assert.Equal(t, url, r.img.URL)
		assert.Equal(t, []byte("png:"+url), r.img.Data)
	}
	assert.EqualValues(t, 1, metrics.misses.Load())
	assert.EqualValues(t, 4, metrics.coalesced.Load())
	assert.Zero(t, c.Pending())
}

func TestCache_HitSkipsFetch(t *testing.T) {
	fetcher := newGatedFetcher()
	close(fetcher.gate)
	metrics := &countingMetrics{}
	c := New(fetcher, WithMetrics(metrics))
	ctx := context.Background()

	_, err := c.Fetch(ctx, "u")
	require.NoError(t, err)

	img, ok := c.Get(ctx, "u")
	require.True(t, ok)
	assert.Equal(t, "image/png", img.ContentType)

	var called bool
	c.Load(ctx, "u", func(img Image, ok bool) {
		called = ok
	})
	assert.True(t, called, "hits are delivered inline by default")
	assert.EqualValues(t, 1, fetcher.calls.Load())
	assert.EqualValues(t, 1, metrics.hits.Load())
}

func TestCache_StoresBeforeCallback(t *testing.T) {
	fetcher := newGatedFetcher()
	close(fetcher.gate)
	c := New(fetcher)
	ctx := context.Background()

	seen := make(chan bool, 1)
	c.Load(ctx, "u", func(Image, bool) {
		_, cached := c.Get(ctx, "u")
		seen <- cached
	})
	select {
	case cached := <-seen:
		assert.True(t, cached)
	case <-time.After(5 * time.Second):
		t.Fatal("callback not invoked")
	}
}

func TestCache_FailureNotCached(t *testing.T) {
	fetcher := newGatedFetcher()
	close(fetcher.gate)
	fetcher.fail.Store(true)
	metrics := &countingMetrics{}
	c := New(fetcher, WithMetrics(metrics))
	ctx := context.Background()

	results := make(chan result, 2)
	c.Load(ctx, "u", func(img Image, ok bool) { results <- result{img, ok} })
	r := collect(results, 1, t)[0]
	assert.False(t, r.ok)
	assert.Empty(t, r.img.Data)
	c.Wait()

	_, ok := c.Get(ctx, "u")
	assert.False(t, ok)
	assert.EqualValues(t, 1, metrics.errors.Load())

	fetcher.fail.Store(false)
	img, err := c.Fetch(ctx, "u")
	require.NoError(t, err)
	assert.NotEmpty(t, img.Data)
	assert.EqualValues(t, 2, fetcher.calls.Load())
}

func TestCache_FetchReportsFailure(t *testing.T) {
	c := New(FetcherFunc(func(context.Context, string) (Image, error) {
		return Image{}, errors.New("404")
	}))
	_, err := c.Fetch(context.Background(), "u")
	assert.ErrorIs(t, err, ErrLoadFailed)
}

func TestCache_FetchCallerCancelDoesNotAbortLoad(t *testing.T) {
	fetcher := newGatedFetcher()
	c := New(fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Fetch(ctx, "u")
	assert.ErrorIs(t, err, context.Canceled)

	close(fetcher.gate)
	c.Wait()
	_, ok := c.Get(context.Background(), "u")
	assert.True(t, ok, "the shared load completes for other waiters")
}

func TestCache_FetchTimeout(t *testing.T) {
	fetcher := newGatedFetcher()
	c := New(fetcher, WithFetchTimeout(20*time.Millisecond))

	_, err := c.Fetch(context.Background(), "u")
	assert.ErrorIs(t, err, ErrLoadFailed)
	c.Wait()
	assert.Zero(t, c.Pending())
}

func TestCache_Executor(t *testing.T) {
	fetcher := newGatedFetcher()
	close(fetcher.gate)

	var mu sync.Mutex
	var queued []func()
	c := New(fetcher, WithExecutor(func(f func()) {
		mu.Lock()
		queued = append(queued, f)
		mu.Unlock()
	}))

	var delivered atomic.Int32
	c.Load(context.Background(), "u", func(Image, bool) { delivered.Add(1) })
	c.Wait()
	assert.Zero(t, delivered.Load(), "callbacks wait for the executor")

	mu.Lock()
	for _, f := range queued {
		f()
	}
	mu.Unlock()
	assert.EqualValues(t, 1, delivered.Load())
}

func TestCache_NilCallbackWarms(t *testing.T) {
	fetcher := newGatedFetcher()
	close(fetcher.gate)
	c := New(fetcher)

	c.Load(context.Background(), "u", nil)
	c.Wait()
	_, ok := c.Get(context.Background(), "u")
	assert.True(t, ok)
}

func TestCache_DistinctURLs(t *testing.T) {
	fetcher := newGatedFetcher()
	c := New(fetcher)
	ctx := context.Background()

	results := make(chan result, 3)
	for _, u := range []string{"a", "b", "c"} {
		c.Load(ctx, u, func(img Image, ok bool) { results <- result{img, ok} })
	}
	assert.Equal(t, 3, c.Pending())
	close(fetcher.gate)
	collect(results, 3, t)
	assert.EqualValues(t, 3, fetcher.calls.Load())
}

// pausingStorage holds the first armed lookup that misses until resume is
// closed, so a load can complete between a caller's miss and its pending check.
type pausingStorage struct {
	*MemoryStorage
	armed  atomic.Bool
	paused chan struct{}
	resume chan struct{}
}

func (s *pausingStorage) Get(ctx context.Context, url string) (Image, bool) {
	img, ok := s.MemoryStorage.Get(ctx, url)
	if !ok && s.armed.CompareAndSwap(true, false) {
		close(s.paused)
		<-s.resume
	}
	return img, ok
}

func TestCache_LoadAfterConcurrentCompletionDoesNotRefetch(t *testing.T) {
	fetcher := newGatedFetcher()
	storage := &pausingStorage{
		MemoryStorage: NewMemoryStorage(),
		paused:        make(chan struct{}),
		resume:        make(chan struct{}),
	}
	c := New(fetcher, WithStorage(storage))
	ctx := context.Background()
	const url = "https://img.example/race"

	first := make(chan result, 1)
	c.Load(ctx, url, func(img Image, ok bool) { first <- result{img, ok} })

	storage.armed.Store(true)
	second := make(chan result, 1)
	go c.Load(ctx, url, func(img Image, ok bool) { second <- result{img, ok} })
	<-storage.paused

	close(fetcher.gate)
	collect(first, 1, t)
	require.Eventually(t, func() bool { return c.Pending() == 0 }, 2*time.Second, 5*time.Millisecond)

	close(storage.resume)
	got := collect(second, 1, t)
	require.True(t, got[0].ok)
	assert.Equal(t, []byte("png:"+url), got[0].img.Data)

	c.Wait()
	assert.EqualValues(t, 1, fetcher.calls.Load())
}
