// Package app wires the insurance bot together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/insurebot/core/bootstrap"
	corecmd "github.com/m3rciful/insurebot/core/cmd"
	coredatabase "github.com/m3rciful/insurebot/core/database"
	"github.com/m3rciful/insurebot/core/httpserver"
	"github.com/m3rciful/insurebot/core/logger"
	tg "github.com/m3rciful/insurebot/core/telegram"
	"github.com/m3rciful/insurebot/internal/conversation"
	"github.com/m3rciful/insurebot/internal/extraction"
	"github.com/m3rciful/insurebot/internal/fallback"
	"github.com/m3rciful/insurebot/internal/policy"
	"github.com/m3rciful/insurebot/internal/sessionstore"
	"github.com/m3rciful/insurebot/internal/telegrambot"

	tele "gopkg.in/telebot.v4"
)

// SessionStore is a conversation store the app can probe and close.
type SessionStore interface {
	conversation.Store
	Ping(ctx context.Context) error
	Close() error
}

// App holds the wired components.
type App struct {
	cfg     *Config
	db      *sqlx.DB
	store   SessionStore
	machine *conversation.Machine
	handler *telegrambot.Handler
	ops     *httpserver.Server
}

// Bootstrap initialises logging and storage and builds the conversation machine.
func Bootstrap(ctx context.Context, carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:   &cfg.Config,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, res.DB)
}

// New builds the app on an already initialised logger. db is required for SQL drivers.
func New(ctx context.Context, cfg *Config, db *sqlx.DB) (*App, error) {
	store, err := OpenStore(cfg.Database, db)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, db: db, store: store}

	profiles, err := extraction.NewProfiles(cfg.Extraction.Countries)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	opts := conversation.Options{
		Store:     store,
		Extractor: extraction.NewClient(cfg.Extraction, nil),
		Profiles:  profiles,
		Renderer:  policy.NewRenderer(cfg.Policy.Issuer),
	}
	if cfg.Fallback.Enabled() {
		gem, err := fallback.NewGemini(ctx, cfg.Fallback)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		opts.Responder = gem
	}
	a.machine, err = conversation.New(opts)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.handler = telegrambot.NewHandler(a.machine)

	if cfg.HTTP.Listen != "" {
		a.ops = httpserver.New(httpserver.Options{
			Listen:     cfg.HTTP.Listen,
			AdminToken: cfg.HTTP.AdminToken,
			Ready:      a.store.Ping,
		})
	}

	logger.Info(ctx, logger.CompApp, "wired",
		slog.String("store", cfg.Database.Driver),
		slog.Int("countries", len(profiles.List())),
		slog.Bool("fallback", opts.Responder != nil),
		slog.Bool("http", a.ops != nil),
	)
	return a, nil
}

// OpenStore selects the session backend for the configured driver.
func OpenStore(cfg coredatabase.Config, db *sqlx.DB) (SessionStore, error) {
	switch cfg.Driver {
	case coredatabase.DriverMemory, "":
		return sessionstore.NewMemory(), nil
	case coredatabase.DriverPostgres, coredatabase.DriverSQLite:
		if db == nil {
			return nil, fmt.Errorf("app: %s store needs a database connection", cfg.Driver)
		}
		return sessionstore.NewSQL(db), nil
	case coredatabase.DriverBadger:
		return sessionstore.OpenBadger(sessionstore.BadgerOptions{Dir: cfg.Path, TTL: cfg.SessionTTL})
	}
	return nil, fmt.Errorf("app: unsupported database driver %q", cfg.Driver)
}

// Machine exposes the conversation machine.
func (a *App) Machine() *conversation.Machine {
	return a.machine
}

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	reg := tg.NewRegistry()
	if err := a.handler.Register(reg); err != nil {
		return tg.RunOptions{}, fmt.Errorf("app: register handlers: %w", err)
	}
	return tg.RunOptions{
		Config:      &a.cfg.Config,
		Registry:    reg,
		Middlewares: a.middlewares(),
		Routes:      a.handler.Routes(reg),
		OnStart: func(_ context.Context, rt tg.Runtime) error {
			if a.ops != nil {
				a.ops.SetWebhookManager(botWebhooks{bot: rt.Bot})
			}
			return nil
		},
		OnStop: func(context.Context, tg.Runtime) error {
			if a.ops != nil {
				a.ops.SetWebhookManager(nil)
			}
			return a.Close()
		},
	}, nil
}

// middlewares hands updates the rate limiter cannot pace straight to the
// machine, so every message still gets an answer.
func (a *App) middlewares() []tg.Middleware {
	return tg.DefaultMiddlewares(&a.cfg.Config, a.handler.Handle)
}

// BackgroundTasks implements cmd.BackgroundApp.
func (a *App) BackgroundTasks() []corecmd.Task {
	if a.ops == nil {
		return nil
	}
	return []corecmd.Task{{Name: "http", Run: a.ops.Run}}
}

// Close releases the store and the database connection.
func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

type botWebhooks struct {
	bot *tele.Bot
}

func (w botWebhooks) SetWebhook(_ context.Context, url string) error {
	return w.bot.SetWebhook(&tele.Webhook{Endpoint: &tele.WebhookEndpoint{PublicURL: url}})
}

func (w botWebhooks) RemoveWebhook(context.Context) error {
	return w.bot.RemoveWebhook(false)
}
