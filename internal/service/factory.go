// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codedoc/api/schemas"
	"github.com/xkilldash9x/codedoc/internal/autofix"
	"github.com/xkilldash9x/codedoc/internal/config"
	"github.com/xkilldash9x/codedoc/internal/detector"
	"github.com/xkilldash9x/codedoc/internal/diffcomposer"
	"github.com/xkilldash9x/codedoc/internal/observability"
	"github.com/xkilldash9x/codedoc/internal/oracle"
)

// ComponentFactory builds the components for a repair run. Commands depend
// on the interface so tests can substitute the whole stack.
type ComponentFactory interface {
	Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error)
	// CreateLLM builds only the inference client, for commands that need
	// nothing else.
	CreateLLM(ctx context.Context, cfg *config.Config, logger *zap.Logger) (schemas.LLMClient, error)
}

type concreteFactory struct{}

// NewComponentFactory returns the production factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// CreateLLM builds the tiered router from cfg.
func (f *concreteFactory) CreateLLM(ctx context.Context, cfg *config.Config, logger *zap.Logger) (schemas.LLMClient, error) {
	return InitializeLLMClient(ctx, cfg.LLM(), logger)
}

// Create wires detector, LLM router, oracle, composer, archive and metrics
// into an orchestrator and session manager. On error everything built so
// far is shut down.
func (f *concreteFactory) Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (comps *Components, err error) {
	c := &Components{logger: logger}
	defer func() {
		if err != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(err))
			c.Shutdown()
			comps = nil
		}
	}()

	c.Detector = detector.NewDetector(cfg.Detector(), logger)
	c.Composer = diffcomposer.New()

	if c.LLM, err = InitializeLLMClient(ctx, cfg.LLM(), logger); err != nil {
		return nil, err
	}

	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = observability.NewMetrics(c.Registry)

	if c.Oracle, err = oracle.New(cfg.Oracle(), logger, oracle.WithMetrics(c.Metrics)); err != nil {
		return nil, fmt.Errorf("failed to initialize test oracle: %w", err)
	}
	if c.Store, err = InitializeStore(ctx, cfg.Store(), logger); err != nil {
		return nil, err
	}
	if mc := cfg.Metrics(); mc.Enabled {
		if c.MetricsServer, err = StartMetricsServer(mc.Address, c.Registry, logger); err != nil {
			return nil, err
		}
	}

	repairCfg := cfg.Repair()
	opts := []autofix.OrchestratorOption{autofix.WithMetrics(c.Metrics)}
	if repairCfg.Explain {
		opts = append(opts, autofix.WithExplainer(autofix.NewExplainer(logger, c.LLM, repairCfg.InferenceTimeout)))
	}
	c.Orchestrator, err = autofix.NewOrchestrator(repairCfg, autofix.Dependencies{
		Detector: c.Detector,
		Syntax:   c.Detector,
		LLM:      c.LLM,
		Oracle:   c.Oracle,
		Composer: c.Composer,
	}, logger, opts...)
	if err != nil {
		return nil, err
	}

	mgrOpts := []autofix.ManagerOption{autofix.WithRetention(repairCfg.RetainSessions)}
	if c.Store != nil {
		mgrOpts = append(mgrOpts, autofix.WithStore(c.Store))
	}
	c.Manager = autofix.NewManager(c.Orchestrator, logger, mgrOpts...)

	logger.Debug("Repair components initialized.",
		zap.String("oracle_runner", cfg.Oracle().Runner),
		zap.String("store", cfg.Store().Driver),
		zap.Bool("explain", repairCfg.Explain),
	)
	return c, nil
}
