// Package bootstrap brings up the process infrastructure: logging first,
// then the SQL database and its schema when the driver needs one.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/insurebot/core/config"
	coredatabase "github.com/m3rciful/insurebot/core/database"
	"github.com/m3rciful/insurebot/core/logger"
)

// Options select what Run initializes. The function fields default to the
// real implementations and exist for tests.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config

	InitLogger func(*coreconfig.Config) error
	Connect    func(context.Context, coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(context.Context, coredatabase.Config) error
}

// Result holds what Run opened. DB is nil for non-SQL drivers.
type Result struct {
	DB *sqlx.DB
}

// Run initializes the logger, then connects and migrates SQL databases.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, errors.New("bootstrap: nil config")
	}
	opts.defaults()

	if err := opts.InitLogger(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger: %w", err)
	}
	if !opts.Database.IsSQL() {
		return &Result{}, nil
	}

	db, err := opts.Connect(ctx, opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database: %w", err)
	}
	if err := opts.Migrate(ctx, opts.Database); err != nil {
		return nil, errors.Join(fmt.Errorf("bootstrap: migrations: %w", err), db.Close())
	}
	return &Result{DB: db}, nil
}

func (o *Options) defaults() {
	if o.InitLogger == nil {
		o.InitLogger = logger.Init
	}
	if o.Connect == nil {
		o.Connect = coredatabase.Connect
	}
	if o.Migrate == nil {
		o.Migrate = coredatabase.Migrate
	}
}
