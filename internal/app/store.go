package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/aliuyar1234/inviteguard/internal/audit"
	"github.com/aliuyar1234/inviteguard/internal/db"
	"github.com/aliuyar1234/inviteguard/internal/invitations"
	"github.com/aliuyar1234/inviteguard/internal/store/postgres"
	"github.com/aliuyar1234/inviteguard/internal/store/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Backend is everything the process needs from a storage driver.
type Backend interface {
	invitations.Store
	audit.Sink

	Ping(ctx context.Context) error
	Close() error

	CreateTenant(ctx context.Context, name, slug string) (uuid.UUID, error)
	SetPasswordHash(ctx context.Context, email, passwordHash string) error
}

// StoreOptions controls OpenStore.
type StoreOptions struct {
	Pool db.PoolOptions

	// Migrate applies pending PostgreSQL migrations after connecting.
	// The SQLite schema is always applied.
	Migrate bool
}

const sqliteScheme = "sqlite:"

// OpenStore picks a driver from the DSN scheme: sqlite:<path> (or
// sqlite://<path>) for SQLite, postgres:// or postgresql:// for PostgreSQL.
func OpenStore(ctx context.Context, dsn string, opts StoreOptions) (Backend, error) {
	switch {
	case strings.HasPrefix(dsn, sqliteScheme):
		path := strings.TrimPrefix(strings.TrimPrefix(dsn, sqliteScheme), "//")
		log.Info().Str("driver", "sqlite").Msg("Opening store")
		s, err := sqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, nil

	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		log.Info().Str("driver", "postgres").Msg("Opening store")
		pool, err := db.Connect(ctx, dsn, opts.Pool)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if opts.Migrate {
			if err := db.RunMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		return postgres.New(pool), nil

	default:
		return nil, fmt.Errorf("unsupported database DSN scheme (want postgres:// or sqlite:)")
	}
}

var (
	_ Backend = (*postgres.Store)(nil)
	_ Backend = (*sqlite.Store)(nil)
)
