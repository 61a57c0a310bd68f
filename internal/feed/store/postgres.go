package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/renix-codex/feedsync/internal/feed"
	"github.com/renix-codex/feedsync/internal/models"
)

type PGStore struct{ pool *pgxpool.Pool }

var _ feed.StorePort = (*PGStore)(nil)

// NewPGStore connects to dsn and applies pending migrations.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	if err := RunMigrations(ctx, dsn); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &PGStore{pool: pool}, nil
}

const upsertPostSQL = `
INSERT INTO posts (id,user_id,title,body)
VALUES ($1,$2,$3,$4)
ON CONFLICT (id) DO UPDATE SET
  user_id=EXCLUDED.user_id, title=EXCLUDED.title, body=EXCLUDED.body`

// Upsert sends the batch inside one transaction, one pgx batch per chunk.
// Liked is never in the update set. Duplicate ids are collapsed first, the
// last occurrence winning.
func (s *PGStore) Upsert(ctx context.Context, posts []models.Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(posts) == 0 {
		return nil
	}
	posts = feed.Normalize(posts)
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return writeChunks(ctx, posts, func(chunk []models.Post) error {
			b := &pgx.Batch{}
			for _, p := range chunk {
				b.Queue(upsertPostSQL, p.ID, p.UserID, p.Title, p.Body)
			}
			br := tx.SendBatch(ctx, b)
			for range chunk {
				if _, err := br.Exec(); err != nil {
					br.Close()
					return err
				}
			}
			return br.Close()
		})
	})
}

func (s *PGStore) FetchAll(ctx context.Context) ([]models.PostRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT id,user_id,title,body,liked FROM posts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.PostRecord, error) {
		var r models.PostRecord
		err := row.Scan(&r.ID, &r.UserID, &r.Title, &r.Body, &r.Liked)
		return r, err
	})
}

func (s *PGStore) Liked(ctx context.Context, id int) (bool, error) {
	var liked bool
	err := s.pool.QueryRow(ctx, `SELECT liked FROM posts WHERE id=$1`, id).Scan(&liked)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return liked, err
}

func (s *PGStore) ToggleLiked(ctx context.Context, id int) (bool, error) {
	var liked bool
	err := s.pool.QueryRow(ctx, `UPDATE posts SET liked = NOT liked WHERE id=$1 RETURNING liked`, id).Scan(&liked)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return liked, err
}

func (s *PGStore) Healthcheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	return nil
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}
