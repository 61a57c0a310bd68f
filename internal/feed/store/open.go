package store

import (
	"context"
	"fmt"

	"github.com/renix-codex/feedsync/internal/feed"
	"github.com/renix-codex/feedsync/internal/logger"
)

// Type names a store backend.
type Type string

const (
	TypeMemory   Type = "memory"
	TypeBadger   Type = "badger"
	TypeSQLite   Type = "sqlite"
	TypePostgres Type = "postgres"
)

type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
	Database string `mapstructure:"database" yaml:"database"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
}

// DSN composes a keyword/value DSN accepted by pgx and golang-migrate.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Config selects and configures the post store.
type Config struct {
	Type Type `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger sqlite postgres"`

	// Path is the database location for badger and sqlite.
	Path string `mapstructure:"path" yaml:"path,omitempty"`

	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres,omitempty"`
}

// Open builds the configured backend.
func Open(ctx context.Context, cfg Config) (feed.StorePort, error) {
	logger.DebugCtx(ctx, "opening store", logger.KeyStore, string(cfg.Type))

	switch cfg.Type {
	case TypeMemory:
		return NewMemoryStore(), nil
	case TypeBadger:
		return NewBadgerStore(cfg.Path)
	case TypeSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite store requires a path")
		}
		return NewSQLiteStore(cfg.Path)
	case TypePostgres:
		if cfg.Postgres.Host == "" || cfg.Postgres.Database == "" {
			return nil, fmt.Errorf("postgres store requires host and database")
		}
		return NewPGStore(ctx, cfg.Postgres.DSN())
	default:
		return nil, fmt.Errorf("unsupported store type: %q", cfg.Type)
	}
}
