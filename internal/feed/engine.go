package feed

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/renix-codex/feedsync/internal/logger"
	"github.com/renix-codex/feedsync/internal/models"
	"github.com/renix-codex/feedsync/internal/telemetry"
)

const (
	DefaultPageSize          = 20
	DefaultPrefetchThreshold = 5
	DefaultFetchTimeout      = 30 * time.Second

	// staleGrace is how long past its fetch timeout a remote load may stay
	// outstanding before a new Refresh supersedes it.
	staleGrace = 5 * time.Second
)

// Engine keeps a sorted view of the local store, grows a pagination window
// over it, and merges remote posts into the store on refresh. At most one
// load is outstanding at a time.
type Engine struct {
	store    StorePort
	source   CollectorPort
	notifier Notifier
	metrics  Metrics
	now      func() time.Time

	pageSize     int
	threshold    int
	fetchTimeout time.Duration

	startOnce sync.Once
	startErr  error

	// emitMu orders notifications with the state changes that caused them.
	emitMu sync.Mutex

	mu          sync.Mutex
	all         []models.Post
	visible     int
	loading     bool
	token       uint64
	loadStarted time.Time
	cancel      context.CancelFunc
	done        chan struct{}
	lastErr     error
}

type Option func(*Engine)

func WithPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithPrefetchThreshold sets how close to the end of the window an index
// must be to trigger LoadMoreIfNeeded.
func WithPrefetchThreshold(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.threshold = n
		}
	}
}

func WithFetchTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.fetchTimeout = d
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(store StorePort, source CollectorPort, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		source:       source,
		notifier:     nopNotifier{},
		now:          time.Now,
		pageSize:     DefaultPageSize,
		threshold:    DefaultPrefetchThreshold,
		fetchTimeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start loads the local store and opens the first page. It never touches
// the network and only runs once; later calls return the first result.
func (e *Engine) Start(ctx context.Context) error {
	e.startOnce.Do(func() {
		e.emitMu.Lock()
		defer e.emitMu.Unlock()

		if err := e.reloadLocked(ctx); err != nil {
			e.startErr = err
			e.notifier.OnError(err)
			return
		}
		e.notifier.OnDataUpdated()
		logger.InfoCtx(ctx, "feed engine started", logger.KeyTotal, len(e.All()), logger.KeyVisible, len(e.Visible()))
	})
	return e.startErr
}

// Refresh pulls from the remote source. See LoadPosts.
func (e *Engine) Refresh(ctx context.Context) bool {
	return e.LoadPosts(ctx, true)
}

// LoadPosts starts a load and reports whether it did. It is a no-op while
// another load is outstanding, unless that load is a remote fetch older
// than the fetch timeout plus a grace period, in which case it is
// superseded. Local loads complete before LoadPosts returns; remote loads
// complete in the background and report through the Notifier.
func (e *Engine) LoadPosts(ctx context.Context, remote bool) bool {
	e.mu.Lock()
	if e.loading {
		if !remote || !e.staleLocked() {
			e.mu.Unlock()
			return false
		}
		logger.WarnCtx(ctx, "superseding stale load", logger.KeyToken, e.token,
			logger.KeyDuration, float64(e.now().Sub(e.loadStarted).Milliseconds()))
		if e.cancel != nil {
			e.cancel()
		}
		if e.metrics != nil {
			e.metrics.RecordSuperseded()
		}
	}

	e.token++
	token := e.token
	wasLoading := e.loading
	e.loading = true
	e.loadStarted = e.now()
	done := make(chan struct{})
	e.done = done
	e.cancel = nil
	e.mu.Unlock()

	if !wasLoading {
		e.emitLoading(true)
	}

	if !remote {
		defer close(done)
		e.loadLocal(ctx, token)
		return true
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.fetchTimeout)
	e.mu.Lock()
	if e.token == token {
		e.cancel = cancel
	}
	e.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		e.loadRemote(runCtx, token)
	}()
	return true
}

func (e *Engine) loadLocal(ctx context.Context, token uint64) {
	start := time.Now()
	e.emitMu.Lock()
	err := e.reloadLocked(ctx)
	if err != nil {
		e.notifier.OnError(err)
	} else {
		e.notifier.OnDataUpdated()
	}
	e.emitMu.Unlock()

	e.finish(token)
	e.observe(false, outcomeFor(err, OutcomeStoreError), start)
}

func (e *Engine) loadRemote(ctx context.Context, token uint64) {
	runID := uuid.NewString()
	ctx = logger.WithContext(ctx, logger.NewLogContext("refresh").WithRunID(runID))
	ctx, span := telemetry.StartSpan(ctx, "feed.engine.refresh", attribute.String("run_id", runID))
	defer span.End()

	start := time.Now()
	logger.DebugCtx(ctx, "remote load started", logger.KeyToken, token)

	posts, fetchErr := e.source.Fetch(ctx)

	// Loading is cleared before the result is handled.
	if !e.finish(token) {
		logger.WarnCtx(ctx, "discarding superseded load", logger.KeyToken, token)
		e.observe(true, OutcomeSuperseded, start)
		return
	}

	if fetchErr != nil {
		if KindOf(fetchErr) == 0 {
			fetchErr = RemoteFetchError("fetch posts", fetchErr)
		}
		telemetry.RecordError(ctx, fetchErr)
		logger.WarnCtx(ctx, "remote fetch failed, serving local posts", logger.Err(fetchErr))
		e.fallback(ctx, fetchErr)
		e.observe(true, OutcomeRemoteError, start)
		return
	}

	merged := Normalize(posts)
	if err := e.store.Upsert(ctx, merged); err != nil {
		err = PersistenceError("upsert posts", err)
		telemetry.RecordError(ctx, err)
		logger.ErrorCtx(ctx, "merge into store failed", logger.KeyCount, len(merged), logger.Err(err))
		e.fallback(ctx, err)
		e.observe(true, OutcomeStoreError, start)
		return
	}
	if e.metrics != nil {
		e.metrics.ObserveUpsert(len(merged))
	}

	e.emitMu.Lock()
	err := e.reloadLocked(ctx)
	if err != nil {
		e.notifier.OnError(err)
	} else {
		e.notifier.OnDataUpdated()
	}
	e.emitMu.Unlock()
	e.setLastErr(err)

	logger.InfoCtx(ctx, "remote load finished", logger.KeyCount, len(merged),
		logger.KeyTotal, len(e.All()), logger.KeyDuration, logger.Duration(start))
	e.observe(true, outcomeFor(err, OutcomeStoreError), start)
}

// fallback reports cause and republishes the last good local state.
func (e *Engine) fallback(ctx context.Context, cause error) {
	e.setLastErr(cause)
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.notifier.OnError(cause)
	if err := e.reloadLocked(ctx); err != nil {
		logger.ErrorCtx(ctx, "reload after failure failed", logger.Err(err))
		e.notifier.OnError(err)
		return
	}
	e.notifier.OnDataUpdated()
}

// finish clears the loading flag if token is still current. It returns
// false for superseded loads, which must not touch engine state.
func (e *Engine) finish(token uint64) bool {
	e.mu.Lock()
	if e.token != token {
		e.mu.Unlock()
		return false
	}
	e.loading = false
	e.cancel = nil
	e.mu.Unlock()

	e.emitLoading(false)
	return true
}

func (e *Engine) emitLoading(loading bool) {
	e.emitMu.Lock()
	e.notifier.OnLoadingStateChanged(loading)
	e.emitMu.Unlock()
}

// reloadLocked re-reads the store into the full list. The window keeps its
// length, grows to at least one page, and is capped by the new list.
// Callers hold emitMu.
func (e *Engine) reloadLocked(ctx context.Context) error {
	records, err := e.store.FetchAll(ctx)
	if err != nil {
		return PersistenceError("fetch all", err)
	}
	posts := PostsFromRecords(records)
	if !IsSortedUnique(posts) {
		posts = Normalize(posts)
	}

	e.mu.Lock()
	e.all = posts
	e.visible = min(max(e.visible, e.pageSize), len(posts))
	visible, total := e.visible, len(e.all)
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RecordWindow(visible, total)
	}
	return nil
}

func (e *Engine) setLastErr(err error) {
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
}

// LastError returns the error of the most recent completed remote load, or
// nil if it succeeded.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

func (e *Engine) staleLocked() bool {
	return e.now().Sub(e.loadStarted) > e.fetchTimeout+staleGrace
}

func (e *Engine) observe(remote bool, outcome string, start time.Time) {
	if e.metrics != nil {
		e.metrics.ObserveLoad(remote, outcome, time.Since(start).Seconds())
	}
}

func outcomeFor(err error, failure string) string {
	if err != nil {
		return failure
	}
	return OutcomeSuccess
}

// LoadMoreIfNeeded grows the window by one page when currentIndex is within
// the prefetch threshold of its end. It reports whether the window grew.
func (e *Engine) LoadMoreIfNeeded(currentIndex int) bool {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	if currentIndex < e.visible-e.threshold || e.visible >= len(e.all) {
		e.mu.Unlock()
		return false
	}
	e.visible = min(e.visible+e.pageSize, len(e.all))
	visible, total := e.visible, len(e.all)
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RecordWindow(visible, total)
	}
	e.notifier.OnDataUpdated()
	return true
}

// Visible returns a copy of the current window.
func (e *Engine) Visible() []models.Post {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.all[:e.visible])
}

// All returns a copy of the full sorted list.
func (e *Engine) All() []models.Post {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.all)
}

// Lookup finds a post by id in the full list.
func (e *Engine) Lookup(id int) (models.Post, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i, ok := slices.BinarySearchFunc(e.all, id, func(p models.Post, id int) int { return cmp.Compare(p.ID, id) })
	if !ok {
		return models.Post{}, false
	}
	return e.all[i], true
}

func (e *Engine) IsLoading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// PageSize returns the window growth step.
func (e *Engine) PageSize() int { return e.pageSize }

// Wait blocks until the most recently started load has been fully handled.
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsLiked reads the flag straight from the store. Failures read as false.
func (e *Engine) IsLiked(ctx context.Context, id int) bool {
	liked, err := e.store.Liked(ctx, id)
	if err != nil {
		logger.WarnCtx(ctx, "reading liked flag failed", logger.PostID(id), logger.Err(err))
		return false
	}
	return liked
}

// ToggleLike flips the flag in the store and returns the new value. Unknown
// ids are a no-op reporting false.
func (e *Engine) ToggleLike(ctx context.Context, id int) (bool, error) {
	liked, err := e.store.ToggleLiked(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, PersistenceError("toggle liked", err)
	}
	logger.DebugCtx(ctx, "liked flag toggled", logger.PostID(id), logger.KeyLiked, liked)
	return liked, nil
}

// Items decorates the current window with liked flags and avatar URLs.
func (e *Engine) Items(ctx context.Context) []models.FeedItem {
	visible := e.Visible()
	items := make([]models.FeedItem, 0, len(visible))
	for _, p := range visible {
		items = append(items, models.FeedItem{
			Post:      p,
			Liked:     e.IsLiked(ctx, p.ID),
			AvatarURL: p.AvatarURL(),
		})
	}
	return items
}

// Close cancels an outstanding remote load.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}
