// cmd/loan-console/evaluate.go
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"loan-decision/internal/common/errors"
	"loan-decision/internal/common/validation"
	"loan-decision/internal/form"
	"loan-decision/internal/models"
	"loan-decision/internal/session"
	"loan-decision/internal/verdict"
	"loan-decision/pkg/catalog"

	"github.com/spf13/cobra"
)

type evaluateResult struct {
	*models.Verdict
	ReferenceID string `json:"referenceId"`
	Source      string `json:"source"`
}

func newEvaluateCmd(root *rootOptions) *cobra.Command {
	var (
		file    string
		source  string
		noDelay bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate one application from a JSON file",
		Long: `Reads an application (a JSON object of field name to value) and
prints the verdict.

Example:
  loan-console evaluate --file application.json
  loan-console demo --strong | loan-console evaluate --file -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if source != "" {
				cfg.Verdict.Source = source
			}
			if noDelay {
				cfg.Rules.DelayMs = 0
			}
			// stdout carries the verdict
			cfg.Logging.Output = "stderr"
			log := newLogger(cfg.Logging)

			app, err := readApplication(cmd, file)
			if err != nil {
				return err
			}

			cat, err := catalog.Load(cfg.Catalog.Path)
			if err != nil {
				return err
			}
			if result := validation.ValidateInput(app, cat.Schema()); !result.Valid {
				verr := errors.NewApplicationValidationFailedError(result.Fields())
				return fmt.Errorf("%s (%s)", verr.Message, verr.Details)
			}

			rng := verdict.NewRand()
			src, err := buildSource(cfg, rng, log)
			if err != nil {
				return err
			}
			controller := form.NewController(form.Options{
				Store:   session.NewMemoryStore(cfg.SessionTTL(), cfg.SessionLockTTL()),
				Source:  src,
				Catalog: cat,
				Rand:    rng,
				Logger:  log,
			})

			v, err := controller.Evaluate(cmd.Context(), app)
			if err != nil {
				return errors.AsStandardError(err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(evaluateResult{
				Verdict:     v,
				ReferenceID: controller.ReferenceID(app),
				Source:      controller.SourceName(),
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", `application JSON file, "-" for stdin`)
	cmd.Flags().StringVar(&source, "source", "", "verdict source: rules or remote (overrides verdict.source)")
	cmd.Flags().BoolVar(&noDelay, "no-delay", false, "skip the rule evaluator's artificial delay")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readApplication(cmd *cobra.Command, file string) (models.Application, error) {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("read application: %w", err)
	}

	var app models.Application
	if err := json.Unmarshal(data, &app); err != nil {
		return nil, fmt.Errorf("parse application: %w", err)
	}
	return app, nil
}
