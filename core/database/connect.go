package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/m3rciful/insurebot/core/logger"
)

const (
	connectTimeout = 5 * time.Second
	readyTimeout   = 30 * time.Second
	readyInterval  = 2 * time.Second
)

// Connect opens a pooled connection for an SQL driver. Postgres is polled
// until it accepts connections or readyTimeout passes.
func Connect(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	if !cfg.IsSQL() {
		return nil, fmt.Errorf("db connect: driver %q is not an SQL driver", cfg.Driver)
	}
	attrs := []slog.Attr{
		slog.String("driver", cfg.Driver),
		slog.String("target", target(cfg)),
	}

	start := time.Now()
	db, err := open(ctx, cfg)
	if err != nil {
		logger.Error(ctx, logger.CompDB, "db.connect.fail", append(attrs,
			slog.Duration("duration", time.Since(start)),
			slog.Any("err", err))...)
		return nil, err
	}

	pool := cfg.MaxConnections
	if cfg.Driver == DriverSQLite {
		// one writer; sqlite serializes writes anyway
		pool = 1
	}
	db.SetMaxOpenConns(pool)
	db.SetMaxIdleConns(pool)

	logger.Info(ctx, logger.CompDB, "db.connect.ok", append(attrs,
		slog.Int("pool", pool),
		slog.Duration("duration", time.Since(start)))...)
	return db, nil
}

func open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	deadline := time.Now()
	if cfg.Driver == DriverPostgres {
		deadline = deadline.Add(readyTimeout)
	}
	for attempt := 1; ; attempt++ {
		db, err := tryOpen(ctx, cfg)
		if err == nil {
			return db, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("db connect after %d attempt(s): %w", attempt, err)
		}
		logger.Debug(ctx, logger.CompDB, "db.connect.retry",
			slog.Int("attempt", attempt), slog.Any("err", err))
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("db connect: %w", ctx.Err())
		case <-time.After(readyInterval):
		}
	}
}

func tryOpen(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	// ConnectContext pings, so a returned handle is usable.
	return sqlx.ConnectContext(cctx, cfg.Driver, cfg.DSN())
}

func target(cfg Config) string {
	if cfg.Driver == DriverSQLite {
		return cfg.Path
	}
	return cfg.Host + ":" + cfg.Port + "/" + cfg.Name
}
