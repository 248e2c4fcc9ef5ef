// Package form implements the loan application form: field edits,
// submission to the active verdict source, reset and demo fill.
package form

import (
	"context"
	stderrors "errors"
	"fmt"
	"html"
	"strings"
	"time"

	"loan-decision/internal/common/errors"
	"loan-decision/internal/common/logger"
	"loan-decision/internal/common/metrics"
	"loan-decision/internal/common/observability"
	"loan-decision/internal/common/validation"
	"loan-decision/internal/demo"
	"loan-decision/internal/models"
	"loan-decision/internal/session"
	"loan-decision/internal/verdict"
	"loan-decision/pkg/catalog"

	"github.com/microcosm-cc/bluemonday"
)

// ErrUnknownField is returned when a field name is not in the catalog.
var ErrUnknownField = stderrors.New("unknown form field")

var errLockLost = stderrors.New("session lock lost during evaluation")

// Controller owns every session's form state. Each method works on one
// session; state lives in the Store between calls.
type Controller struct {
	store     session.Store
	source    verdict.Source
	generator *demo.Generator
	catalog   *catalog.Catalog
	rng       verdict.Rand
	sanitizer *bluemonday.Policy
	obs       *observability.Observability
	logger    logger.Logger
	now       func() time.Time
}

type Options struct {
	Store         session.Store
	Source        verdict.Source
	Catalog       *catalog.Catalog
	Rand          verdict.Rand
	Observability *observability.Observability
	Logger        logger.Logger
}

func NewController(opts Options) *Controller {
	if opts.Rand == nil {
		opts.Rand = verdict.NewRand()
	}
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	return &Controller{
		store:     opts.Store,
		source:    opts.Source,
		generator: demo.NewGenerator(opts.Rand),
		catalog:   opts.Catalog,
		rng:       opts.Rand,
		sanitizer: bluemonday.StrictPolicy(),
		obs:       opts.Observability,
		logger:    opts.Logger.WithFields(map[string]interface{}{"component": "form", "source": opts.Source.Name()}),
		now:       time.Now,
	}
}

// Catalog returns the field catalog the form is built from.
func (c *Controller) Catalog() *catalog.Catalog { return c.catalog }

// SourceName names the active verdict source.
func (c *Controller) SourceName() string { return c.source.Name() }

// State returns a snapshot of the session's form. Evaluating reports
// whether a submission currently holds the session lock.
func (c *Controller) State(ctx context.Context, sid string) (*models.FormState, error) {
	state, err := c.store.Get(ctx, sid)
	if err != nil {
		return nil, errors.NewSessionStoreFailedError("get", err)
	}
	locked, err := c.store.Locked(ctx, sid)
	if err != nil {
		return nil, errors.NewSessionStoreFailedError("lock status", err)
	}
	state.Evaluating = locked
	return state, nil
}

// TakeState returns the snapshot and clears a pending error so that it is
// shown only once.
func (c *Controller) TakeState(ctx context.Context, sid string) (*models.FormState, error) {
	state, err := c.State(ctx, sid)
	if err != nil {
		return nil, err
	}
	if state.Error == "" {
		return state, nil
	}
	shown := state.Clone()
	state.Error = ""
	if err := c.put(ctx, sid, state); err != nil {
		return nil, err
	}
	return shown, nil
}

// UpdateField overwrites one entry of the application. Text is stripped
// of markup; values are not otherwise coerced.
func (c *Controller) UpdateField(ctx context.Context, sid, name string, value interface{}) error {
	return c.UpdateFields(ctx, sid, map[string]interface{}{name: value})
}

// UpdateFields applies several field edits in one store round trip. An
// empty string removes the entry.
func (c *Controller) UpdateFields(ctx context.Context, sid string, values map[string]interface{}) error {
	for name := range values {
		if !c.catalog.Has(name) {
			return fmt.Errorf("%w: %s", ErrUnknownField, name)
		}
	}

	state, err := c.State(ctx, sid)
	if err != nil {
		return err
	}
	for name, value := range values {
		if s, ok := value.(string); ok {
			value = c.sanitize(s)
			if value == "" {
				delete(state.Application, name)
				continue
			}
		}
		state.Application[name] = value
	}
	return c.put(ctx, sid, state)
}

// Submit freezes the current application and evaluates it. Only one
// submission per session may be outstanding; a second one fails with
// EVALUATION_IN_FLIGHT. On failure no verdict is stored and the
// user-facing message is kept in State.Error.
func (c *Controller) Submit(ctx context.Context, sid string) (*models.Verdict, error) {
	token, ok, err := c.store.TryLock(ctx, sid)
	if err != nil {
		return nil, errors.NewSessionStoreFailedError("lock", err)
	}
	if !ok {
		return nil, errors.NewEvaluationInFlightError(sid)
	}
	// Store writes after the evaluation must land even if the request
	// context has ended.
	bg := context.WithoutCancel(ctx)
	defer func() {
		if err := c.store.Unlock(bg, sid, token); err != nil {
			c.logger.WithError(err).Warn("failed to release session lock", map[string]interface{}{"session": sid})
		}
	}()

	state, err := c.State(ctx, sid)
	if err != nil {
		return nil, err
	}

	if result := validation.ValidateInput(state.Application, c.catalog.Schema()); !result.Valid {
		verr := errors.NewApplicationValidationFailedError(result.Fields())
		state.Error = verr.Message
		if err := c.put(bg, sid, state); err != nil {
			return nil, err
		}
		return nil, verr
	}

	frozen := state.Application.Clone()
	revision := state.Revision
	state.Verdict = nil
	state.ReferenceID = ""
	state.Error = ""
	if err := c.put(ctx, sid, state); err != nil {
		return nil, err
	}

	evalCtx, cancel := context.WithCancel(ctx)
	stop := c.holdLock(evalCtx, cancel, sid, token)
	v, evalErr := c.Evaluate(evalCtx, frozen)
	stop()

	if owned, err := c.store.Refresh(bg, sid, token); err == nil && !owned {
		c.logger.Warn("session lock lost, result discarded", map[string]interface{}{"session": sid})
		return nil, errors.NewEvaluationCancelledError(errLockLost)
	}

	state, err = c.State(bg, sid)
	if err != nil {
		return nil, err
	}

	if evalErr != nil {
		state.Error = errors.AsStandardError(evalErr).Message
		if err := c.put(bg, sid, state); err != nil {
			return nil, err
		}
		return nil, evalErr
	}

	if state.Revision == revision {
		state.Verdict = v
		state.ReferenceID = c.ReferenceID(frozen)
	} else {
		c.logger.Info("form replaced during evaluation, verdict discarded", map[string]interface{}{"session": sid})
	}
	if err := c.put(bg, sid, state); err != nil {
		return nil, err
	}
	return v.Clone(), nil
}

// holdLock refreshes the submission lock every third of its TTL until the
// returned stop func is called. Losing the lock cancels the evaluation.
func (c *Controller) holdLock(ctx context.Context, cancel context.CancelFunc, sid, token string) (stop func()) {
	interval := c.store.LockTTL() / 3
	if interval <= 0 {
		return cancel
	}

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := c.store.Refresh(ctx, sid, token)
				if err != nil {
					c.logger.WithError(err).Warn("failed to refresh session lock", map[string]interface{}{"session": sid})
					continue
				}
				if !ok {
					c.logger.Warn("session lock lost, cancelling evaluation", map[string]interface{}{"session": sid})
					cancel()
					return
				}
			}
		}
	}()

	return func() {
		close(done)
		<-finished
		cancel()
	}
}

// Evaluate runs the verdict source on app without touching any session.
// Context cancellation is reported as EVALUATION_CANCELLED.
func (c *Controller) Evaluate(ctx context.Context, app models.Application) (*models.Verdict, error) {
	source := c.source.Name()
	gauge := metrics.EvaluationsInFlight.WithLabelValues(source)
	gauge.Inc()
	defer gauge.Dec()

	start := c.now()
	v, err := c.source.Evaluate(ctx, app.Clone())
	elapsed := c.now().Sub(start)
	metrics.EvaluationDuration.WithLabelValues(source).Observe(elapsed.Seconds())

	if err != nil {
		var typed *errors.StandardError
		if !stderrors.As(err, &typed) && (stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)) {
			err = errors.NewEvaluationCancelledError(err)
		}
		stdErr := errors.AsStandardError(err)
		metrics.EvaluationsFailed.WithLabelValues(source, string(stdErr.Code)).Inc()
		c.obs.RecordEvaluation(ctx, source, "error", elapsed)
		c.logger.WithError(err).Warn("evaluation failed", map[string]interface{}{
			"errorCode": string(stdErr.Code),
			"duration":  elapsed.Milliseconds(),
		})
		return nil, err
	}

	metrics.EvaluationsTotal.WithLabelValues(source, v.Status).Inc()
	c.obs.RecordEvaluation(ctx, source, v.Status, elapsed)
	return v, nil
}

// Reset clears the application, verdict and error unconditionally.
func (c *Controller) Reset(ctx context.Context, sid string) error {
	old, err := c.State(ctx, sid)
	if err != nil {
		return err
	}
	state := models.NewFormState()
	state.Revision = old.Revision + 1
	return c.put(ctx, sid, state)
}

// FillDemoData replaces the application with a generated profile and
// clears any verdict.
func (c *Controller) FillDemoData(ctx context.Context, sid string) (models.Application, error) {
	old, err := c.State(ctx, sid)
	if err != nil {
		return nil, err
	}
	state := models.NewFormState()
	state.Application = c.generator.Random()
	state.Revision = old.Revision + 1
	if err := c.put(ctx, sid, state); err != nil {
		return nil, err
	}
	return state.Application.Clone(), nil
}

// DemoApplication returns a generated profile without storing it.
func (c *Controller) DemoApplication() models.Application {
	return c.generator.Random()
}

func (c *Controller) put(ctx context.Context, sid string, state *models.FormState) error {
	state.UpdatedAt = c.now().UTC()
	state.Evaluating = false
	if err := c.store.Put(ctx, sid, state); err != nil {
		return errors.NewSessionStoreFailedError("put", err)
	}
	return nil
}

func (c *Controller) sanitize(value string) string {
	return html.UnescapeString(c.sanitizer.Sanitize(value))
}

// ReferenceID returns the applicant's own id, or a generated EVAL-nnnnn
// reference when none was entered.
func (c *Controller) ReferenceID(app models.Application) string {
	if id := strings.TrimSpace(app.String("Applicant_ID")); id != "" {
		return id
	}
	return fmt.Sprintf("EVAL-%d", 10000+c.rng.IntN(90000))
}
