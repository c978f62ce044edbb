package pgx

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/nexuslab/nexus/pkg/logger"
	"github.com/nexuslab/nexus/pkg/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Storage is the PostgreSQL-backed RelationshipStore. Edges live in a
// single table keyed by the order-independent pair key; observation appends
// are a single upsert so concurrent appends to the same edge serialize at
// the row level without losing writes.
type Storage struct {
	conn *pgxpool.Pool
}

var _ store.RelationshipStore = (*Storage)(nil)

// NewStorageParams configures NewStorage.
type NewStorageParams struct {
	DatabaseURL string
	// SkipMigrations disables the automatic schema migration on startup.
	SkipMigrations bool
}

// NewStorage connects to PostgreSQL, runs pending schema migrations, and
// registers pgvector types on every pooled connection.
func NewStorage(ctx context.Context, params NewStorageParams) (*Storage, error) {
	if !params.SkipMigrations {
		if err := runMigrations(params.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
	}

	cfg, err := pgxpool.ParseConfig(params.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	conn, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect failed: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}

	return &Storage{conn: conn}, nil
}

// Pool exposes the underlying pool for components that share the
// connection, like the lease lock.
func (s *Storage) Pool() *pgxpool.Pool {
	return s.conn
}

// Close implements store.RelationshipStore.
func (s *Storage) Close(ctx context.Context) error {
	s.conn.Close()
	return nil
}

func runMigrations(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	logger.Debug("[Store] Migrations up to date")
	return nil
}
