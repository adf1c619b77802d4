// File: internal/service/components.go
package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codedoc/api/schemas"
	"github.com/xkilldash9x/codedoc/internal/autofix"
	"github.com/xkilldash9x/codedoc/internal/detector"
	"github.com/xkilldash9x/codedoc/internal/diffcomposer"
	"github.com/xkilldash9x/codedoc/internal/observability"
	"github.com/xkilldash9x/codedoc/internal/oracle"
)

const shutdownTimeout = 30 * time.Second

// Components holds everything a repair run needs and owns its lifecycle.
type Components struct {
	LLM           schemas.LLMClient
	Detector      *detector.Detector
	Oracle        *oracle.Oracle
	Composer      *diffcomposer.Composer
	Store         schemas.SessionStore
	Registry      *prometheus.Registry
	Metrics       *observability.Metrics
	MetricsServer *MetricsServer
	Orchestrator  *autofix.Orchestrator
	Manager       *autofix.Manager

	logger *zap.Logger
}

// Shutdown stops running sessions first, then releases the resources they
// depend on. It is safe on a partially built Components.
func (c *Components) Shutdown() {
	logger := c.logger
	if logger == nil {
		logger = observability.GetLogger()
	}
	logger.Debug("Beginning components shutdown sequence.")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if c.Manager != nil {
		if err := c.Manager.Shutdown(ctx); err != nil {
			logger.Warn("Sessions did not stop before the shutdown deadline.", zap.Error(err))
		}
	}
	if c.MetricsServer != nil {
		if err := c.MetricsServer.Shutdown(ctx); err != nil {
			logger.Warn("Error during metrics server shutdown.", zap.Error(err))
		}
	}
	if c.Oracle != nil {
		if err := c.Oracle.Close(); err != nil {
			logger.Warn("Error closing test runner.", zap.Error(err))
		}
	}
	if c.LLM != nil {
		if err := c.LLM.Close(); err != nil {
			logger.Warn("Error closing LLM client.", zap.Error(err))
		}
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			logger.Warn("Error closing session store.", zap.Error(err))
		}
	}
	logger.Debug("All components shut down.")
}
