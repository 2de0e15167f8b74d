package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/nimbuslabs/nimbus/internal/activity"
	"github.com/nimbuslabs/nimbus/internal/config"
	"github.com/nimbuslabs/nimbus/internal/core"
	"github.com/nimbuslabs/nimbus/internal/db"
	"github.com/nimbuslabs/nimbus/internal/logging"
	"github.com/nimbuslabs/nimbus/internal/metrics"
	"github.com/nimbuslabs/nimbus/internal/provision"
	"github.com/nimbuslabs/nimbus/internal/workflow"
)

const taskQueue = "nimbus-tasks"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("worker"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	corePool, err := db.NewCorePool(ctx, cfg.CoreDatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to core database")
	}
	defer corePool.Close()
	metrics.RegisterPgxPoolMetrics(corePool)

	quotas, err := cfg.LoadStorageQuotas()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load storage quotas")
	}

	tc, err := temporalclient.Dial(temporalclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	projects := core.NewProjectService(corePool)
	steps := core.NewProvisioningStepService(corePool)
	keys := core.NewAPIKeyService(corePool)

	handlers := provision.NewHandlers(corePool, projects, steps, keys, cfg, quotas,
		provision.NewS3Verifier(cfg), logger)
	engine := provision.NewEngine(projects, steps, provision.NewRegistry(handlers), logger)

	w := worker.New(tc, taskQueue, worker.Options{})

	w.RegisterActivity(activity.NewProvision(engine))

	w.RegisterWorkflow(workflow.ProvisionProjectWorkflow)
	w.RegisterWorkflow(workflow.RunProjectStepWorkflow)

	if cfg.MetricsAddr != "" {
		metricsSrv := metrics.NewServer(cfg.MetricsAddr)
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("starting metrics server")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	logger.Info().Str("taskQueue", taskQueue).Msg("starting temporal worker")
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal().Err(err).Msg("worker failed")
	}
}
