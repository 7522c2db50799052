package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hnrobert/gridlogin/internal/auth"
	"github.com/hnrobert/gridlogin/internal/daemon"
	"github.com/hnrobert/gridlogin/internal/logger"
)

// Trigger schedules an asynchronous sweep. *sweeper.Sweeper implements it.
type Trigger interface {
	Trigger()
}

type App struct {
	secret   []byte
	daemon   *daemon.Daemon
	sweeper  Trigger
	gatherer prometheus.Gatherer
}

// NewApp wires the admin API of d. An empty adminSecret gets a random one,
// which leaves the token guarded endpoints unreachable.
func NewApp(d *daemon.Daemon, adminSecret string, sw Trigger, g prometheus.Gatherer) (*App, error) {
	if adminSecret == "" {
		s, err := auth.NewRandomSecretB64(32)
		if err != nil {
			return nil, err
		}
		logger.Warn("server: no admin secret configured, admin endpoints disabled")
		adminSecret = s
	}
	key, err := auth.DecodeSecret(adminSecret)
	if err != nil {
		return nil, err
	}
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return &App{
		secret:   key,
		daemon:   d,
		sweeper:  sw,
		gatherer: g,
	}, nil
}

func (a *App) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(a.withAuthContext)

	r.Get("/api/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{\"ok\":true}\n"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/api/logins/{username}", a.requireAdmin(a.handleLogins))
		r.Get("/api/ratelimit", a.requireAdmin(a.handleRateLimit))
		r.Post("/api/refresh", a.requireAdmin(a.handleRefresh))
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug("server: %s %s from %s: %d in %s", r.Method, r.URL.Path, r.RemoteAddr,
			ww.Status(), time.Since(start).Round(time.Microsecond))
	})
}

// Serve runs an HTTP server for h on addr until ctx is done.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("server: listening on %s", addr)
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
