// cmd/loan-console/serve.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"loan-decision/internal/common/camunda"
	"loan-decision/internal/common/config"
	"loan-decision/internal/common/logger"
	"loan-decision/internal/common/observability"
	"loan-decision/internal/form"
	"loan-decision/internal/server"
	"loan-decision/internal/verdict"
	evaluateapplication "loan-decision/internal/workers/evaluate-application"
	"loan-decision/pkg/catalog"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/spf13/cobra"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		address string
		source  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the loan application form",
		Long: `Starts the web server with the form page, the JSON API and the
/predict endpoint. When camunda.enabled is set, the
evaluate-loan-application job worker runs alongside it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Server.Address = address
			}
			if source != "" {
				cfg.Verdict.Source = source
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "listen address (overrides server.address)")
	cmd.Flags().StringVar(&source, "source", "", "verdict source: rules or remote (overrides verdict.source)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log := newLogger(cfg.Logging).WithFields(map[string]interface{}{
		"app":         cfg.App.Name,
		"environment": cfg.App.Environment,
	})
	log.Info("starting loan console", map[string]interface{}{
		"source": cfg.Verdict.Source,
		"store":  cfg.Session.Store,
	})

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return err
	}

	rng := verdict.NewRand()
	source, err := buildSource(cfg, rng, log)
	if err != nil {
		return err
	}

	store, redisClient, err := buildStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	controller := form.NewController(form.Options{
		Store:         store,
		Source:        source,
		Catalog:       cat,
		Rand:          rng,
		Observability: obs,
		Logger:        log,
	})

	var zeebe *camunda.Client
	if cfg.Camunda.Enabled {
		zeebe, err = camunda.NewClient(ctx, cfg.Camunda.BrokerAddress, log)
		if err != nil {
			return err
		}
		defer zeebe.Close()

		jobWorker := startEvaluateWorker(zeebe, cfg, controller, cat, log)
		defer jobWorker.Close()
	}

	srv, err := server.New(server.Options{
		Config:     cfg.Server,
		SessionTTL: cfg.SessionTTL(),
		Controller: controller,
		Ready: func(ctx context.Context) error {
			if redisClient != nil {
				if err := redisClient.Ping(ctx); err != nil {
					return err
				}
			}
			if zeebe != nil {
				return zeebe.HealthCheck(ctx)
			}
			return nil
		},
		Logger: log,
	})
	if err != nil {
		return err
	}

	if err := srv.Run(ctx); err != nil {
		log.WithError(err).Error("server stopped with error", nil)
		return err
	}
	log.Info("loan console stopped gracefully", nil)
	return nil
}

func startEvaluateWorker(client *camunda.Client, cfg *config.Config, controller *form.Controller, cat *catalog.Catalog, log logger.Logger) worker.JobWorker {
	handler := evaluateapplication.NewHandler(
		evaluateapplication.LoadConfig(cfg.Camunda.Worker),
		controller,
		cat,
		log,
	)
	return camunda.StartWorker(client.GetClient(), evaluateapplication.TaskType, cfg.Camunda.Worker, handler, log)
}
