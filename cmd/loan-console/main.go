// cmd/loan-console/main.go
package main

import (
	"fmt"
	"os"

	"loan-decision/internal/common/config"
	"loan-decision/internal/common/logger"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "loan-console",
		Short: "Loan application evaluation console",
		Long: `loan-console serves the loan application form and evaluates
applications with the configured verdict source.

The verdict source is either the inline rule evaluator ("rules") or an
external prediction endpoint ("remote"), selected by verdict.source.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a config file (default: configs/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")

	cmd.AddCommand(
		newServeCmd(opts),
		newEvaluateCmd(opts),
		newDemoCmd(),
	)
	return cmd
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFromFile(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig) logger.Logger {
	return logger.NewStructured(cfg.Level, cfg.Format, cfg.Output)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
