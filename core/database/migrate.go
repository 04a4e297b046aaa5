package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/m3rciful/insurebot/core/logger"
)

// Migrate applies every pending up migration found in MigrationsDir, or in
// ./migrations/<driver> when it is empty. Non-SQL drivers are a no-op.
func Migrate(ctx context.Context, cfg Config) error {
	if !cfg.IsSQL() {
		return nil
	}
	dir, err := MigrationsDir(cfg)
	if err != nil {
		return err
	}
	files := upFiles(dir)
	logger.Debug(ctx, logger.CompMigrate, "migrate.resolve",
		slog.String("path", dir),
		slog.Int("files", len(files)))

	m, err := migrate.New("file://"+filepath.ToSlash(dir), cfg.MigrateURL())
	if err != nil {
		logger.Error(ctx, logger.CompMigrate, "migrate.init.fail", slog.Any("err", err))
		return fmt.Errorf("migrate init: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn(ctx, logger.CompMigrate, "migrate.close.fail", slog.Any("err", errors.Join(srcErr, dbErr)))
		}
	}()

	from, _, _ := m.Version()
	start := time.Now()
	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error(ctx, logger.CompMigrate, "migrate.up.fail",
			slog.Duration("duration", time.Since(start)),
			slog.Any("err", err))
		return fmt.Errorf("migrate up: %w", err)
	}
	to, _, _ := m.Version()

	applied := Between(files, uint64(from), uint64(to))
	attrs := []slog.Attr{
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("applied", len(applied)),
		slog.Duration("duration", time.Since(start)),
	}
	if len(applied) > 0 {
		attrs = append(attrs, slog.String("files", strings.Join(applied, ",")))
	}
	logger.Info(ctx, logger.CompMigrate, "migrate.done", attrs...)
	return nil
}

// MigrationsDir returns the absolute migrations directory for cfg.
func MigrationsDir(cfg Config) (string, error) {
	dir := strings.TrimSpace(cfg.MigrationsDir)
	if dir == "" {
		dir = filepath.Join("migrations", cfg.Driver)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("migrations dir: %w", err)
	}
	return abs, nil
}

func upFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names
}

// Between returns the migration files whose version v satisfies from < v <= to.
func Between(files []string, from, to uint64) []string {
	var out []string
	for _, f := range files {
		prefix, _, _ := strings.Cut(f, "_")
		v, err := strconv.ParseUint(prefix, 10, 64)
		if err == nil && v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
