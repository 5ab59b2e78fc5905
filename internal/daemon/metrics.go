package daemon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Zain0205/travelin-chat/internal/config"
	"github.com/Zain0205/travelin-chat/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// MetricsServer exposes Prometheus metrics over HTTP when metrics_addr is
// configured. With no address it does nothing.
type MetricsServer struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewMetricsServer creates the metrics listener.
func NewMetricsServer(cfg *config.Config, logger *zap.Logger) *MetricsServer {
	ms := &MetricsServer{logger: logger}
	if cfg.MetricsAddr == "" {
		return ms
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	ms.srv = &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ms
}

// Start serves in the background.
func (m *MetricsServer) Start() {
	if m.srv == nil {
		return
	}
	m.logger.Info("metrics server starting", zap.String("addr", m.srv.Addr))
	go func() {
		if err := m.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", zap.Error(err))
		}
	}()
}

// Stop shuts the listener down.
func (m *MetricsServer) Stop(ctx context.Context) {
	if m.srv == nil {
		return
	}
	if err := m.srv.Shutdown(ctx); err != nil {
		m.logger.Warn("metrics server shutdown", zap.Error(err))
	}
}
