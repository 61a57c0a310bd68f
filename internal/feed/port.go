package feed

import (
	"context"

	"github.com/renix-codex/feedsync/internal/models"
)

// CollectorPort is the remote source of posts. Implementations give no
// ordering, uniqueness, or retry guarantees.
type CollectorPort interface {
	Fetch(ctx context.Context) ([]models.Post, error)
}

// StorePort is the durable local post store.
//
// Upsert merges a batch atomically: existing ids get UserID/Title/Body
// overwritten with Liked left untouched, unseen ids are inserted unliked.
// FetchAll returns every record sorted by ascending id. Liked and
// ToggleLiked report false with a nil error for unknown ids.
type StorePort interface {
	Upsert(ctx context.Context, posts []models.Post) error
	FetchAll(ctx context.Context) ([]models.PostRecord, error)
	Liked(ctx context.Context, id int) (bool, error)
	ToggleLiked(ctx context.Context, id int) (bool, error)
	Healthcheck(ctx context.Context) error
	Close() error
}

// Metrics receives engine observations. A nil Metrics disables collection.
type Metrics interface {
	ObserveLoad(remote bool, outcome string, seconds float64)
	ObserveUpsert(batch int)
	RecordWindow(visible, total int)
	RecordSuperseded()
}

const (
	OutcomeSuccess     = "success"
	OutcomeRemoteError = "remote_error"
	OutcomeStoreError  = "store_error"
	OutcomeSuperseded  = "superseded"
)
