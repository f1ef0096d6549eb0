// Package opsserver exposes the operational HTTP surface of the daemon:
// Prometheus metrics, a liveness probe and a dump of the resolved routing
// table.
package opsserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"go.uber.org/fx"

	"github.com/logwirehq/logwire/internal/util"
	"github.com/logwirehq/logwire/pkg/common/logctx"
	"github.com/logwirehq/logwire/pkg/logroute"
)

type Config struct {
	Port uint64 `json:"port" yaml:"port"`
}

type Server struct {
	srv *http.Server
	l   *slog.Logger
}

func New(l *slog.Logger, reg *logroute.Registry, conf Config) *Server {
	l = l.With(slog.String("component", "ops_server"))

	return &Server{
		l: l,
		srv: &http.Server{
			Addr:    fmt.Sprintf("0.0.0.0:%d", conf.Port),
			Handler: newRouter(l, reg),
		},
	}
}

func NewFX(l *slog.Logger, reg *logroute.Registry, conf Config, lc fx.Lifecycle) *Server {
	s := New(l, reg, conf)
	lc.Append(fx.StartStopHook(
		func() {
			s.l.Info("ops server is listenning", slog.String("address", s.srv.Addr))
			go func() {
				if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.l.Error("ops server failed", logctx.Error(err))
				}
			}()
		},
		func(ctx context.Context) error {
			return s.srv.Shutdown(ctx)
		},
	))

	return s
}

func newRouter(l *slog.Logger, reg *logroute.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logctx.InjectRequestIDToLogContext())

	r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Get("/debug/routing", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := util.WriteJsonTo(reg.Routing(), w); err != nil {
			l.WarnContext(req.Context(), "cannot write routing snapshot", logctx.Error(err))
		}
	})

	return r
}
