// FilePath: internal/database/database.go
package database

import (
	"context"
	"fmt"

	"github.com/itsatony/emhub/internal/config"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	nuts "github.com/vaudience/go-nuts"
)

// DB is an interface that both PostgreSQL and TimescaleDB must implement
type DB interface {
	Close() error
	Ping(ctx context.Context) error
	GetDB() *sqlx.DB
}

type sqlxDB struct {
	db *sqlx.DB
}

func (s *sqlxDB) Close() error                   { return s.db.Close() }
func (s *sqlxDB) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *sqlxDB) GetDB() *sqlx.DB                { return s.db }

// DSN renders the lib/pq connection string for cfg.
func DSN(cfg config.PostgresConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(cfg config.PostgresConfig) (DB, error) {
	db, err := sqlx.Connect("postgres", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("error connecting to PostgreSQL: %w", err)
	}

	nuts.L.Infof("[PostgresDB] Connected to %s:%d/%s", cfg.Host, cfg.Port, cfg.DBName)
	return &sqlxDB{db: db}, nil
}

// NewTimescaleDB creates a new TimescaleDB database connection
func NewTimescaleDB(cfg config.PostgresConfig) (DB, error) {
	db, err := sqlx.Connect("postgres", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("error connecting to TimescaleDB: %w", err)
	}

	var hasTimescaleDB bool
	err = db.Get(&hasTimescaleDB, "SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'timescaledb')")
	if err != nil || !hasTimescaleDB {
		db.Close()
		return nil, fmt.Errorf("TimescaleDB extension not available")
	}

	nuts.L.Infof("[TimescaleDB] Connected to %s:%d/%s", cfg.Host, cfg.Port, cfg.DBName)
	return &sqlxDB{db: db}, nil
}
