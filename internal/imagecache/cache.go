// Package imagecache is a keyed image cache that coalesces concurrent
// loads of the same URL into one fetch.
package imagecache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/renix-codex/feedsync/internal/logger"
	"github.com/renix-codex/feedsync/internal/telemetry"
)

const DefaultFetchTimeout = 15 * time.Second

var ErrLoadFailed = errors.New("image load failed")

type Image struct {
	URL         string
	Data        []byte
	ContentType string
}

// Fetcher downloads one image.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Image, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) (Image, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (Image, error) { return f(ctx, url) }

// Storage holds fetched images. Implementations are safe for concurrent use.
type Storage interface {
	Get(ctx context.Context, url string) (Image, bool)
	Set(ctx context.Context, img Image)
}

// Metrics receives cache observations. A nil Metrics disables collection.
type Metrics interface {
	Hit()
	Miss()
	Coalesced()
	FetchError()
}

// Executor runs completion callbacks. The default runs them inline on the
// goroutine that finished the load.
type Executor func(func())

func inline(f func()) { f() }

// Callback receives the image, or ok=false when the load failed.
type Callback func(img Image, ok bool)

type Cache struct {
	storage Storage
	fetcher Fetcher
	exec    Executor
	metrics Metrics
	timeout time.Duration

	mu      sync.Mutex
	pending map[string][]Callback
	wg      sync.WaitGroup
}

type Option func(*Cache)

func WithStorage(s Storage) Option {
	return func(c *Cache) {
		if s != nil {
			c.storage = s
		}
	}
}

func WithExecutor(e Executor) Option {
	return func(c *Cache) {
		if e != nil {
			c.exec = e
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func New(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		storage: NewMemoryStorage(),
		fetcher: fetcher,
		exec:    inline,
		timeout: DefaultFetchTimeout,
		pending: make(map[string][]Callback),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a cached image without fetching.
func (c *Cache) Get(ctx context.Context, url string) (Image, bool) {
	return c.storage.Get(ctx, url)
}

// Load delivers the image for url to onComplete. A cached image is
// delivered through the executor right away. Otherwise the caller joins the
// pending load for url, starting one if none is in flight. A successful
// result is stored before any callback runs; failures are not cached.
// onComplete may be nil to only warm the cache.
func (c *Cache) Load(ctx context.Context, url string, onComplete Callback) {
	if img, ok := c.storage.Get(ctx, url); ok {
		c.observe(Metrics.Hit)
		if onComplete != nil {
			c.exec(func() { onComplete(img, true) })
		}
		return
	}

	c.mu.Lock()
	if waiters, ok := c.pending[url]; ok {
		c.pending[url] = append(waiters, onComplete)
		c.mu.Unlock()
		c.observe(Metrics.Coalesced)
		return
	}
	// fetch stores before it drops the pending entry under mu, so a load
	// that finished since the first lookup is visible here.
	if img, ok := c.storage.Get(ctx, url); ok {
		c.mu.Unlock()
		c.observe(Metrics.Hit)
		if onComplete != nil {
			c.exec(func() { onComplete(img, true) })
		}
		return
	}
	c.pending[url] = []Callback{onComplete}
	c.wg.Add(1)
	c.mu.Unlock()

	c.observe(Metrics.Miss)
	go c.fetch(context.WithoutCancel(ctx), url)
}

// Fetch is the blocking form of Load. It shares the coalesced load with
// other callers; ctx only bounds how long this caller waits.
func (c *Cache) Fetch(ctx context.Context, url string) (Image, error) {
	type result struct {
		img Image
		ok  bool
	}
	ch := make(chan result, 1)
	c.Load(ctx, url, func(img Image, ok bool) { ch <- result{img, ok} })

	select {
	case r := <-ch:
		if !r.ok {
			return Image{}, ErrLoadFailed
		}
		return r.img, nil
	case <-ctx.Done():
		return Image{}, ctx.Err()
	}
}

// Pending reports the number of URLs with a load in flight.
func (c *Cache) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Wait blocks until every in-flight load has delivered its callbacks.
func (c *Cache) Wait() {
	c.wg.Wait()
}

func (c *Cache) fetch(ctx context.Context, url string) {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, "imagecache.fetch", attribute.String("url", url))
	defer span.End()

	start := time.Now()
	img, err := c.fetcher.Fetch(ctx, url)
	ok := err == nil
	if ok {
		img.URL = url
		c.storage.Set(ctx, img)
		logger.DebugCtx(ctx, "image fetched", logger.URL(url), logger.KeyBytes, len(img.Data),
			logger.KeyDuration, logger.Duration(start))
	} else {
		img = Image{}
		telemetry.RecordError(ctx, err)
		c.observe(Metrics.FetchError)
		logger.WarnCtx(ctx, "image fetch failed", logger.URL(url), logger.Err(err))
	}

	c.mu.Lock()
	waiters := c.pending[url]
	delete(c.pending, url)
	c.mu.Unlock()

	for _, cb := range waiters {
		if cb == nil {
			continue
		}
		c.exec(func() { cb(img, ok) })
	}
}

func (c *Cache) observe(f func(Metrics)) {
	if c.metrics != nil {
		f(c.metrics)
	}
}
