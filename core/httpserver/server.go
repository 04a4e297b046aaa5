// Package httpserver exposes the ops endpoints served next to the bot:
// liveness, readiness, build info and webhook administration.
package httpserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/m3rciful/insurebot/core/buildinfo"
	"github.com/m3rciful/insurebot/core/logger"
)

// DefaultWebhookPath is appended to the host passed to the set-webhook endpoint.
const DefaultWebhookPath = "/api/telegram/webhook"

// WebhookManager switches the bot between webhook and polling delivery.
type WebhookManager interface {
	SetWebhook(ctx context.Context, url string) error
	RemoveWebhook(ctx context.Context) error
}

// Options configure the ops server.
type Options struct {
	Listen string
	// AdminToken guards /admin routes; empty disables them.
	AdminToken string
	// Ready reports whether dependencies are reachable; nil means always ready.
	Ready       func(ctx context.Context) error
	WebhookPath string
	// ShutdownTimeout bounds graceful shutdown; 0 -> 10s.
	ShutdownTimeout time.Duration
}

type managerBox struct {
	m WebhookManager
}

// Server is a chi-based HTTP server for operational endpoints.
type Server struct {
	opts     Options
	router   chi.Router
	webhooks atomic.Pointer[managerBox]
}

// New builds the router. The server starts accepting connections in Run.
func New(opts Options) *Server {
	if opts.WebhookPath == "" {
		opts.WebhookPath = DefaultWebhookPath
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{opts: opts}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/healthz"))

	r.Get("/readyz", s.handleReady)
	r.Get("/version", s.handleVersion)
	if opts.AdminToken != "" {
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireToken)
			r.Post("/webhook", s.handleSetWebhook)
			r.Delete("/webhook", s.handleRemoveWebhook)
		})
	}
	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetWebhookManager makes the admin webhook routes available. Passing nil disables them again.
func (s *Server) SetWebhookManager(m WebhookManager) {
	if m == nil {
		s.webhooks.Store(nil)
		return
	}
	s.webhooks.Store(&managerBox{m: m})
}

func (s *Server) webhookManager() WebhookManager {
	box := s.webhooks.Load()
	if box == nil {
		return nil
	}
	return box.m
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, logger.CompHTTP, "listen", slog.String("listen", s.opts.Listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("httpserver: listen %s: %w", s.opts.Listen, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpserver: shutdown: %w", err)
	}
	logger.Info(shutdownCtx, logger.CompHTTP, "stopped")
	return nil
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.opts.Ready(ctx); err != nil {
		logger.Warn(r.Context(), logger.CompHTTP, "ready.fail", slog.String("err", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.Current())
}

func (s *Server) handleSetWebhook(w http.ResponseWriter, r *http.Request) {
	m := s.webhookManager()
	if m == nil {
		writeError(w, http.StatusServiceUnavailable, "bot is not running")
		return
	}
	host := strings.TrimRight(strings.TrimSpace(r.URL.Query().Get("url")), "/")
	if host == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}
	u, err := url.Parse(host)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		writeError(w, http.StatusBadRequest, "url must be an absolute https URL")
		return
	}
	target := host + s.opts.WebhookPath
	if err := m.SetWebhook(r.Context(), target); err != nil {
		logger.Error(r.Context(), logger.CompHTTP, "webhook.set.fail", slog.String("err", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to set webhook: "+err.Error())
		return
	}
	logger.Info(r.Context(), logger.CompHTTP, "webhook.set", slog.String("public_url", target))
	writeJSON(w, http.StatusOK, map[string]string{"webhook": target})
}

func (s *Server) handleRemoveWebhook(w http.ResponseWriter, r *http.Request) {
	m := s.webhookManager()
	if m == nil {
		writeError(w, http.StatusServiceUnavailable, "bot is not running")
		return
	}
	if err := m.RemoveWebhook(r.Context()); err != nil {
		logger.Error(r.Context(), logger.CompHTTP, "webhook.remove.fail", slog.String("err", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to remove webhook: "+err.Error())
		return
	}
	logger.Info(r.Context(), logger.CompHTTP, "webhook.remove")
	writeJSON(w, http.StatusOK, map[string]string{"webhook": ""})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	want := []byte("Bearer " + s.opts.AdminToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		if rid := chimw.GetReqID(ctx); rid != "" {
			ctx = logger.WithRID(ctx, rid)
			r = r.WithContext(ctx)
		}
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		logger.Debug(ctx, logger.CompHTTP, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("http_code", status),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
