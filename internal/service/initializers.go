// File: internal/service/initializers.go
package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codedoc/api/schemas"
	"github.com/xkilldash9x/codedoc/internal/config"
	"github.com/xkilldash9x/codedoc/internal/llmclient"
	"github.com/xkilldash9x/codedoc/internal/observability"
	"github.com/xkilldash9x/codedoc/internal/store"
)

// InitializeLLMClient builds the tiered router described by cfg.
func InitializeLLMClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	router, err := llmclient.NewRouterFromConfig(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize LLM client.", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	return router, nil
}

// InitializeStore opens the session archive. A nil store with a nil error
// means archiving is disabled.
func InitializeStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (schemas.SessionStore, error) {
	s, err := store.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}
	if s == nil {
		logger.Debug("Session archive disabled.")
		return nil, nil
	}
	logger.Debug("Session archive ready.", zap.String("driver", cfg.Driver))
	return s, nil
}

// MetricsServer exposes a Prometheus registry over HTTP.
type MetricsServer struct {
	srv    *http.Server
	ln     net.Listener
	logger *zap.Logger
}

// StartMetricsServer listens on addr and serves g at /metrics in the
// background. Use port 0 to pick a free port.
func StartMetricsServer(addr string, g prometheus.Gatherer, logger *zap.Logger) (*MetricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for metrics on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(g))

	m := &MetricsServer{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
		logger: logger.Named("metrics"),
	}
	go func() {
		if err := m.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("Metrics server stopped unexpectedly.", zap.Error(err))
		}
	}()
	m.logger.Info("Serving metrics.", zap.String("address", m.Addr()))
	return m, nil
}

// Addr is the address the server is bound to.
func (m *MetricsServer) Addr() string {
	return m.ln.Addr().String()
}

// Shutdown stops accepting scrapes and waits for in-flight ones.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
