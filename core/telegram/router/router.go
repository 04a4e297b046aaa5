// Package router turns a Registry and per-kind message handlers into telebot
// routes. Every handler run ends with one "handler.done" log line.
package router

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/insurebot/core/logger"
	tg "github.com/m3rciful/insurebot/core/telegram"
	"github.com/m3rciful/insurebot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/insurebot/core/telegram/helpers"
	"github.com/m3rciful/insurebot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Messages receives non-command messages by kind. A nil handler leaves the
// kind unrouted.
type Messages struct {
	Text     tele.HandlerFunc
	Photo    tele.HandlerFunc
	Document tele.HandlerFunc
	// Media gets stickers, voice, video and the like.
	Media tele.HandlerFunc
}

// Routes returns one route per command, one callback route and the message
// routes. Text starting with a command alias runs that command.
func Routes(reg *tg.Registry, m Messages) []tg.Route {
	var routes []tg.Route
	for _, name := range reg.CommandNames() {
		_, cmd, _ := reg.Command(name)
		routes = append(routes, tg.Route{Endpoint: name, Handler: named(handlerName(name), cmd.Handler)})
	}
	routes = append(routes,
		tg.Route{Endpoint: tele.OnCallback, Handler: callback(reg)},
		tg.Route{Endpoint: tele.OnText, Handler: text(reg, m.Text)},
	)
	for _, r := range []tg.Route{
		{Endpoint: tele.OnPhoto, Handler: m.Photo},
		{Endpoint: tele.OnDocument, Handler: m.Document},
		{Endpoint: tele.OnMedia, Handler: m.Media},
	} {
		if r.Handler != nil {
			name := strings.TrimPrefix(r.Endpoint.(string), "\a")
			routes = append(routes, tg.Route{Endpoint: r.Endpoint, Handler: named(name, r.Handler)})
		}
	}
	logger.Info(context.Background(), logger.CompWire, "routes",
		slog.Int("commands", len(reg.CommandNames())),
		slog.Int("callbacks", len(reg.CallbackKeys())),
		slog.Int("routes", len(routes)))
	return routes
}

func callback(reg *tg.Registry) tele.HandlerFunc {
	return func(c tele.Context) error {
		key, _ := callbacks.Parse(c.Callback())
		h, ok := reg.Callback(key)
		if !ok {
			h = reg.CallbackNotFound()
		}
		return run(c, "callback."+handlerName(key), h, slog.Bool("known", ok))
	}
}

func text(reg *tg.Registry, fallback tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if w := firstWord(c.Text()); strings.HasPrefix(w, "/") {
			if name, cmd, ok := reg.Command(w); ok {
				return run(c, handlerName(name), cmd.Handler)
			}
		}
		return run(c, "text", fallback)
	}
}

func named(name string, h tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error { return run(c, name, h) }
}

func run(c tele.Context, name string, h tele.HandlerFunc, extra ...slog.Attr) error {
	ctx := tghelpers.WithHandler(c, name)
	start := time.Now()
	var err error
	status := "skip"
	if h != nil {
		if err = h(c); err != nil {
			status = "fail"
		} else {
			status = "ok"
		}
	}
	replies := middleware.Replies(c)
	attrs := append([]slog.Attr{
		slog.String("status", status),
		slog.Int("replies", replies.Sent()),
		slog.Bool("keyboard", replies.Keyboard()),
		slog.Duration("duration", time.Since(start)),
	}, extra...)
	if err != nil {
		attrs = append(attrs, slog.String("err", logger.Clip(err.Error(), 256)))
	}
	logger.Info(ctx, logger.CompTG, "handler.done", attrs...)
	return err
}

func handlerName(s string) string {
	s = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "/"))
	if s == "" {
		return "unknown"
	}
	return strings.ReplaceAll(s, " ", "_")
}

// firstWord returns the leading token of a message, without a "@botname"
// suffix.
func firstWord(s string) string {
	if i := strings.IndexAny(s, " \n@"); i >= 0 {
		return s[:i]
	}
	return s
}
