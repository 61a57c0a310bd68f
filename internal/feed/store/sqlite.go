package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/renix-codex/feedsync/internal/feed"
	"github.com/renix-codex/feedsync/internal/models"
)

// postRow is the posts table layout.
type postRow struct {
	ID     int    `gorm:"primaryKey;autoIncrement:false"`
	UserID int    `gorm:"not null"`
	Title  string `gorm:"not null"`
	Body   string `gorm:"not null"`
	Liked  bool   `gorm:"not null;default:false"`
}

func (postRow) TableName() string { return "posts" }

func (r postRow) record() models.PostRecord {
	return models.PostRecord{
		Post:  models.Post{UserID: r.UserID, ID: r.ID, Title: r.Title, Body: r.Body},
		Liked: r.Liked,
	}
}

// SQLiteStore persists records through GORM on a pure-Go SQLite driver.
type SQLiteStore struct {
	db *gorm.DB
}

var _ feed.StorePort = (*SQLiteStore)(nil)

// NewSQLiteStore opens the database at path, creating parent directories.
// ":memory:" opens a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		// WAL for concurrent readers with a single writer; wait on locks
		// rather than failing.
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	// One connection keeps the single-writer rule and the in-memory
	// database alive.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&postRow{}); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Upsert writes the batch in one transaction. Duplicate ids are collapsed
// first, the last occurrence winning.
func (s *SQLiteStore) Upsert(ctx context.Context, posts []models.Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(posts) == 0 {
		return nil
	}
	posts = feed.Normalize(posts)
	rows := make([]postRow, len(posts))
	for i, p := range posts {
		rows[i] = postRow{ID: p.ID, UserID: p.UserID, Title: p.Title, Body: p.Body}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return writeChunks(ctx, rows, func(chunk []postRow) error {
			return tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"user_id", "title", "body"}),
			}).Create(&chunk).Error
		})
	})
}

func (s *SQLiteStore) FetchAll(ctx context.Context) ([]models.PostRecord, error) {
	var rows []postRow
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.PostRecord, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out, nil
}

func (s *SQLiteStore) Liked(ctx context.Context, id int) (bool, error) {
	var row postRow
	err := s.db.WithContext(ctx).Select("liked").Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return row.Liked, err
}

func (s *SQLiteStore) ToggleLiked(ctx context.Context, id int) (bool, error) {
	var liked bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&postRow{}).Where("id = ?", id).Update("liked", gorm.Expr("NOT liked"))
		if res.Error != nil || res.RowsAffected == 0 {
			return res.Error
		}
		var row postRow
		if err := tx.Select("liked").Where("id = ?", id).Take(&row).Error; err != nil {
			return err
		}
		liked = row.Liked
		return nil
	})
	return liked, err
}

func (s *SQLiteStore) Healthcheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
