// Package telegram runs the bot: it builds the telebot instance for the
// configured update mode, installs middlewares and routes, publishes the
// command menu and blocks until the context is cancelled.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	coreconfig "github.com/m3rciful/insurebot/core/config"
	"github.com/m3rciful/insurebot/core/logger"
	"github.com/m3rciful/insurebot/core/netutil"
	tghelpers "github.com/m3rciful/insurebot/core/telegram/helpers"
	"github.com/m3rciful/insurebot/core/telegram/middleware"
	tgsender "github.com/m3rciful/insurebot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

const defaultLongPoll = 10 * time.Second

// Middleware is a named global middleware.
type Middleware struct {
	Name string
	Use  tele.MiddlewareFunc
}

// Route binds a handler to a telebot endpoint such as "/start" or tele.OnText.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions configure RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	// Sender sizes the outbound queue when Dispatcher is nil.
	Sender     tgsender.Options
	Dispatcher *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	// KeepWebhook skips deleting a stale webhook in long-poll mode.
	KeepWebhook bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime is handed to the lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// DefaultMiddlewares returns recover, rate limit (when configured), update
// logging and reply counting, in that order.
func DefaultMiddlewares(cfg *coreconfig.Config, onLimited tele.HandlerFunc) []Middleware {
	mws := []Middleware{{Name: "recover", Use: middleware.Recover}}
	if cfg != nil && cfg.RateLimit.IntervalMS > 0 {
		mws = append(mws, Middleware{Name: "rate_limit", Use: middleware.RateLimit(middleware.RateLimitOptions{
			Interval:  time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond,
			Exclude:   cfg.RateLimit.ExcludeUpdates,
			OnLimited: onLimited,
		})})
	}
	return append(mws,
		Middleware{Name: "updates", Use: middleware.LogUpdates},
		Middleware{Name: "replies", Use: middleware.CountReplies},
	)
}

// Poller returns the telebot poller for the configured run mode.
func Poller(cfg *coreconfig.Config) tele.Poller {
	if cfg.Telegram.RunMode == coreconfig.RunModeWebhook {
		return &tele.Webhook{
			Listen:   net.JoinHostPort(cfg.Webhook.Listen, strconv.Itoa(cfg.Webhook.Port)),
			Endpoint: &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
		}
	}
	timeout := defaultLongPoll
	if s := cfg.Telegram.LongPollTimeoutSeconds; s > 0 {
		timeout = time.Duration(s) * time.Second
	}
	return &tele.LongPoller{Timeout: timeout}
}

// RunTelegram serves updates until ctx is done. A cancelled context is a
// clean shutdown and returns nil.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	cfg := opts.Config
	if cfg == nil {
		return errors.New("telegram: nil config")
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}

	poller := Poller(cfg)
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Telegram.Token,
		Poller:  poller,
		Client:  apiClient(poller),
		OnError: onError,
	})
	if err != nil {
		return fmt.Errorf("telegram: new bot: %w", err)
	}
	logMode(ctx, bot, poller, opts.KeepWebhook)

	disp := opts.Dispatcher
	if disp == nil {
		so := opts.Sender
		if so.Workers == 0 {
			so.Workers = cfg.Telegram.Workers
		}
		disp = tgsender.NewDispatcher(so)
	}
	tghelpers.SetDispatcher(disp)
	defer func() {
		disp.Close()
		tghelpers.SetDispatcher(nil)
	}()

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, r := range opts.Routes {
		if r.Endpoint != nil && r.Handler != nil {
			bot.Handle(r.Endpoint, r.Handler)
		}
	}
	if err := bot.SetCommands(opts.Registry.Menu()); err != nil {
		logger.Error(ctx, logger.CompWire, "commands.publish.fail", slog.Any("err", err))
	}

	rt := Runtime{Bot: bot, Dispatcher: disp, Registry: opts.Registry}
	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		bot.Start()
	}()
	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
	case <-done:
	}

	if opts.OnStop != nil {
		return opts.OnStop(context.WithoutCancel(ctx), rt)
	}
	return nil
}

// apiClient sizes the HTTP timeouts above the long poll window, since
// getUpdates holds its response until the window closes.
func apiClient(p tele.Poller) *http.Client {
	var opts netutil.ClientOptions
	if lp, ok := p.(*tele.LongPoller); ok {
		opts.ResponseTimeout = lp.Timeout + 5*time.Second
		opts.Timeout = max(30*time.Second, lp.Timeout+15*time.Second)
	}
	return netutil.NewHTTPClient(opts)
}

func logMode(ctx context.Context, bot *tele.Bot, p tele.Poller, keepWebhook bool) {
	switch p := p.(type) {
	case *tele.Webhook:
		logger.Info(ctx, logger.CompTG, "mode",
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", p.Listen))
	case *tele.LongPoller:
		logger.Info(ctx, logger.CompTG, "mode",
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.Duration("timeout", p.Timeout))
		if keepWebhook {
			return
		}
		if err := bot.RemoveWebhook(false); err != nil {
			logger.Warn(ctx, logger.CompTG, "webhook.delete.fail", slog.String("err", tgsender.Redact(err)))
		}
	}
}

func onError(err error, c tele.Context) {
	if err == nil {
		return
	}
	ctx := context.Background()
	if c != nil {
		ctx = tghelpers.BuildContext(c)
	}
	logger.Warn(ctx, logger.CompTG, "handler.error", slog.String("err", logger.Clip(tgsender.Redact(err), 256)))
}
