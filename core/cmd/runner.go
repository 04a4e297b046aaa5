// Package cmd is the process entry point shared by bot binaries: it loads the
// environment and configuration, bootstraps the app and runs the bot next to
// any background tasks until a signal arrives.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	coreconfig "github.com/m3rciful/insurebot/core/config"
	"github.com/m3rciful/insurebot/core/logger"
	coretelegram "github.com/m3rciful/insurebot/core/telegram"
)

// ConfigCarrier is an app config that embeds the core configuration.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// TelegramApp builds the bot runtime options.
type TelegramApp interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
}

// Task runs next to the bot until ctx is cancelled.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// BackgroundApp is an app with extra tasks such as an HTTP server.
type BackgroundApp interface {
	BackgroundTasks() []Task
}

// Options configure Run.
type Options struct {
	// ConfigEnvVar names the variable holding the config path. Default CONFIG_PATH.
	ConfigEnvVar      string
	DefaultConfigPath string
	// EnvFiles are loaded before the config; missing files are skipped.
	EnvFiles []string

	LoadConfig func(path string) (ConfigCarrier, error)
	Bootstrap  func(ctx context.Context, cfg ConfigCarrier) (TelegramApp, error)

	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
}

// Run blocks until SIGINT, SIGTERM or the first failing task.
func Run(opts Options) error {
	if opts.LoadConfig == nil || opts.Bootstrap == nil {
		return errors.New("cmd: LoadConfig and Bootstrap are required")
	}
	if opts.ShutdownLogger == nil {
		opts.ShutdownLogger = logger.Shutdown
	}
	if opts.RunTelegram == nil {
		opts.RunTelegram = coretelegram.RunTelegram
	}

	loadEnvFiles(opts.EnvFiles)
	path, err := configPath(opts)
	if err != nil {
		return err
	}
	cfg, err := opts.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("cmd: load config %s: %w", path, err)
	}
	if cfg.CoreConfig() == nil {
		return errors.New("cmd: config has no core section")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	started := time.Now()
	app, err := opts.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap: %w", err)
	}
	defer func() {
		if err := opts.ShutdownLogger(); err != nil {
			log.Printf("logger shutdown: %v", err)
		}
	}()

	runOpts, err := app.TelegramRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: telegram options: %w", err)
	}
	announce(&runOpts, started)

	var tasks []Task
	if bg, ok := app.(BackgroundApp); ok {
		tasks = bg.BackgroundTasks()
	}
	return runAll(ctx, opts.RunTelegram, runOpts, tasks)
}

func configPath(opts Options) (string, error) {
	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	if p := os.Getenv(env); p != "" {
		return p, nil
	}
	if opts.DefaultConfigPath != "" {
		return opts.DefaultConfigPath, nil
	}
	return "", fmt.Errorf("cmd: set %s or DefaultConfigPath", env)
}

// announce logs readiness after the app's own start hook and the shutdown
// before its stop hook.
func announce(ro *coretelegram.RunOptions, started time.Time) {
	onStart, onStop := ro.OnStart, ro.OnStop
	ro.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		if onStart != nil {
			if err := onStart(ctx, rt); err != nil {
				return err
			}
		}
		logger.Info(ctx, logger.CompApp, "ready", slog.Duration("startup", time.Since(started)))
		return nil
	}
	ro.OnStop = func(ctx context.Context, rt coretelegram.Runtime) error {
		logger.Info(ctx, logger.CompApp, "shutdown")
		if onStop != nil {
			return onStop(ctx, rt)
		}
		return nil
	}
}

// runAll runs the bot and every task; when any of them returns the rest are
// cancelled.
func runAll(ctx context.Context, bot func(context.Context, coretelegram.RunOptions) error, ro coretelegram.RunOptions, tasks []Task) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stop()
		return bot(gctx, ro)
	})
	for _, t := range tasks {
		if t.Run == nil {
			continue
		}
		g.Go(func() error {
			defer stop()
			if err := t.Run(gctx); err != nil {
				return fmt.Errorf("cmd: task %s: %w", t.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func loadEnvFiles(files []string) {
	for _, f := range files {
		err := godotenv.Load(f)
		switch {
		case err == nil:
			log.Printf("env file loaded: %s", f)
		case !errors.Is(err, fs.ErrNotExist):
			log.Printf("env file %s: %v", f, err)
		}
	}
}
