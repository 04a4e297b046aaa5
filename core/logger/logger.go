// Package logger is the structured logging layer shared by the bot.
//
// Lines are written as key=value pairs or JSON with a stable key order. Every
// line carries a component and an event; request metadata (rid, update, chat,
// user, handler) is taken from the context. Until Init runs every helper is a
// no-op, so packages can log unconditionally.
package logger

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/insurebot/core/buildinfo"
	coreconfig "github.com/m3rciful/insurebot/core/config"
)

// Components used across the repository.
const (
	CompApp          = "app"
	CompDB           = "db"
	CompMigrate      = "db.migrate"
	CompTG           = "tg"
	CompWire         = "tg.wire"
	CompSender       = "tg.sender"
	CompConversation = "conversation"
	CompStore        = "store.sessions"
	CompExtraction   = "extraction"
	CompFallback     = "fallback"
	CompPolicy       = "policy"
	CompHTTP         = "http"
)

var (
	root     atomic.Pointer[slog.Logger]
	level    slog.LevelVar
	debugs   = newSampler(1, 50)
	traceAll atomic.Bool

	initOnce sync.Once
	closeMu  sync.Mutex
	sinks    []*sink
	files    []io.Closer

	discard = slog.New(slog.DiscardHandler)
)

// Init configures the process logger from cfg. Only the first call has effect.
func Init(cfg *coreconfig.Config) error {
	var err error
	initOnce.Do(func() {
		lc := coreconfig.LoggingConfig{}
		if cfg != nil {
			lc = cfg.Logging
		}
		level.Set(parseLevel(lc.Level))
		debugs.set(parseRatio(lc.DebugSample))
		traceAll.Store(truthy(os.Getenv("LOG_TRACE")))

		outs, errOuts, opened, oerr := openOutputs(lc)
		if oerr != nil {
			err = oerr
			return
		}
		files = opened
		out := newSink(outs)
		sinks = append(sinks, out)
		var errSink *sink
		if len(errOuts) > 0 {
			errSink = newSink(errOuts)
			sinks = append(sinks, errSink)
		}

		h := newHandler(handlerOptions{
			level:  &level,
			out:    out,
			errOut: errSink,
			json:   useJSON(lc),
			order:  keyOrder(lc.KeysOrder),
		})
		l := slog.New(h)
		root.Store(l)
		slog.SetDefault(l)

		Info(context.Background(), CompApp, "startup",
			slog.String("go_version", runtime.Version()),
			slog.String("version", buildinfo.Version),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("profile", profile(lc)),
		)
	})
	return err
}

// Shutdown flushes and closes every output. It is safe to call more than once.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()
	var errs []error
	for _, s := range sinks {
		errs = append(errs, s.Close())
	}
	for _, f := range files {
		errs = append(errs, f.Close())
	}
	sinks, files = nil, nil
	return errors.Join(errs...)
}

// For returns a logger tagged with component. It discards output before Init.
func For(component string) *slog.Logger {
	l := root.Load()
	if l == nil {
		return discard
	}
	return l.With("component", component)
}

// Log writes one event line for component.
func Log(ctx context.Context, lvl slog.Level, component, event string, attrs ...slog.Attr) {
	l := root.Load()
	if l == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.Enabled(ctx, lvl) {
		return
	}
	all := make([]slog.Attr, 0, len(attrs)+1)
	all = append(all, slog.String("component", component))
	all = append(all, attrs...)
	l.LogAttrs(ctx, lvl, event, all...)
}

// Debug logs a debug event.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Log(ctx, slog.LevelDebug, component, event, attrs...)
}

// Info logs an info event.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Log(ctx, slog.LevelInfo, component, event, attrs...)
}

// Warn logs a warning event.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Log(ctx, slog.LevelWarn, component, event, attrs...)
}

// Error logs an error event.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Log(ctx, slog.LevelError, component, event, attrs...)
}

// SampleDebug reports whether a high-volume debug event should be written.
// LOG_TRACE=1 disables sampling.
func SampleDebug() bool {
	return traceAll.Load() || debugs.allow()
}

// RoundMS rounds d to whole milliseconds.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// Clip drops control characters from s and cuts it to max runes.
func Clip(s string, max int) string {
	if max <= 0 {
		return ""
	}
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n == max {
			break
		}
		if r != '\n' && r != '\t' && (r < 0x20 || r == 0x7f || (r >= 0x80 && r < 0xa0) || r == 0x200b || r == 0xfeff) {
			continue
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func useJSON(lc coreconfig.LoggingConfig) bool {
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "json":
		return true
	case "kv", "text":
		return false
	}
	p := profile(lc)
	return p != "debug" && p != "dev"
}

func profile(lc coreconfig.LoggingConfig) string {
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		return p
	}
	return "prod"
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func openOutputs(lc coreconfig.LoggingConfig) (outs, errOuts []io.Writer, opened []io.Closer, err error) {
	outs = []io.Writer{os.Stdout}
	dir := strings.TrimSpace(lc.Dir)
	if dir == "" {
		return outs, nil, nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, nil, err
	}
	open := func(name string) (*os.File, error) {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, nil
		}
		return os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	}
	if f, ferr := open(lc.BotFile); ferr != nil {
		log.Printf("logger: bot log file not opened: %v", ferr)
	} else if f != nil {
		outs = append(outs, f)
		opened = append(opened, f)
	}
	if f, ferr := open(lc.ErrorsFile); ferr != nil {
		log.Printf("logger: errors log file not opened: %v", ferr)
	} else if f != nil {
		errOuts = append(errOuts, f)
		opened = append(opened, f)
	}
	return outs, errOuts, opened, nil
}
