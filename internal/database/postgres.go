package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/havenstay/backend/internal/config"
	"github.com/havenstay/backend/internal/store"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const pingTimeout = 5 * time.Second

// Open connects to the configured database and returns the matching SQL
// dialect for the ledger store.
func Open(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (*sql.DB, store.Dialect, error) {
	switch cfg.Driver {
	case "sqlite3":
		db, err := OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, "", err
		}
		logger.Info("database connection established", zap.String("driver", "sqlite3"), zap.String("path", cfg.Path))
		return db, store.SQLite, nil
	default:
		db, err := OpenPostgres(ctx, cfg)
		if err != nil {
			return nil, "", err
		}
		logger.Info("database connection established",
			zap.String("driver", "postgres"), zap.String("host", cfg.Host), zap.String("name", cfg.Name))
		return db, store.Postgres, nil
	}
}

// OpenPostgres opens and pings a lib/pq connection pool.
func OpenPostgres(ctx context.Context, cfg config.DBConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := ping(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	return db, nil
}

// OpenSQLite opens a file database for local development. Writes are
// serialized on one connection; WAL keeps readers unblocked.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := ping(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	return db, nil
}

func ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return db.PingContext(ctx)
}
