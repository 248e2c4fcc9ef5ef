// internal/workers/evaluate-application/handler.go
package evaluateapplication

import (
	"context"
	"encoding/json"
	"fmt"

	"loan-decision/internal/common/errors"
	"loan-decision/internal/common/logger"
	"loan-decision/internal/common/metrics"
	"loan-decision/internal/common/validation"
	"loan-decision/internal/models"
	"loan-decision/pkg/catalog"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "evaluate-loan-application"
)

// Evaluator produces verdicts; *form.Controller satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, app models.Application) (*models.Verdict, error)
	ReferenceID(app models.Application) string
	SourceName() string
}

type Handler struct {
	config       *Config
	evaluator    Evaluator
	catalog      *catalog.Catalog
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, evaluator Evaluator, cat *catalog.Catalog, log logger.Logger) *Handler {
	if cat == nil {
		cat = catalog.Default()
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		evaluator:    evaluator,
		catalog:      cat,
		errorHandler: errors.NewErrorHandler(log),
		logger:       log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(client, job, fmt.Errorf("parse input: %w", err))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.fail(client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	app := input.Application
	if app == nil {
		app = models.Application{}
	}

	if result := validation.ValidateInput(app, h.catalog.Schema()); !result.Valid {
		return nil, errors.NewApplicationValidationFailedError(result.Fields())
	}

	v, err := h.evaluator.Evaluate(ctx, app)
	if err != nil {
		return nil, err
	}

	output := &Output{
		Status:      v.Status,
		Confidence:  v.Confidence,
		Reasons:     v.Reasons,
		Approved:    v.Approved(),
		ReferenceID: h.evaluator.ReferenceID(app),
		Source:      h.evaluator.SourceName(),
	}

	h.logger.Info("application evaluated", map[string]interface{}{
		"status":      output.Status,
		"confidence":  output.Confidence,
		"referenceId": output.ReferenceID,
	})
	return output, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) fail(client worker.JobClient, job entities.Job, err error) {
	stdErr := errors.AsStandardError(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.errorHandler.HandleJobError(context.Background(), client, job, stdErr)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
