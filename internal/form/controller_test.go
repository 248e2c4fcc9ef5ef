package form

import (
	"context"
	"fmt"
	"testing"
	"time"

	"loan-decision/internal/common/errors"
	"loan-decision/internal/common/logger"
	"loan-decision/internal/models"
	"loan-decision/internal/session"
	"loan-decision/internal/verdict"
	"loan-decision/internal/verdict/rules"
	"loan-decision/pkg/catalog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	evaluate func(ctx context.Context, app models.Application) (*models.Verdict, error)
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Evaluate(ctx context.Context, app models.Application) (*models.Verdict, error) {
	return s.evaluate(ctx, app)
}

type fixedRand struct{}

func (fixedRand) IntN(n int) int   { return 0 }
func (fixedRand) Float64() float64 { return 0 }

func newController(t *testing.T, source verdict.Source) (*Controller, *session.MemoryStore) {
	return newControllerWithStore(t, source, session.NewMemoryStore(time.Hour, time.Minute))
}

func newControllerWithStore[S session.Store](t *testing.T, source verdict.Source, store S) (*Controller, S) {
	c := NewController(Options{
		Store:   store,
		Source:  source,
		Rand:    fixedRand{},
		Catalog: catalog.Default(),
		Logger:  logger.NewTestLogger(t),
	})
	return c, store
}

func completeApplication() map[string]interface{} {
	values := map[string]interface{}{}
	for _, name := range catalog.Default().Names() {
		values[name] = "x"
	}
	values["Applicant_ID"] = ""
	values["Credit_Score"] = "700"
	values["Annual_Income"] = "1200000"
	values["Loan_Amount_Requested"] = "2000000"
	values["Default_Risk"] = "Low"
	values["Loan_History"] = "Good"
	values["Employment_Status"] = "Employed"
	return values
}

func fillForm(t *testing.T, c *Controller, sid string, values map[string]interface{}) {
	require.NoError(t, c.UpdateFields(context.Background(), sid, values))
}

func TestSubmit_RulesApproved(t *testing.T) {
	c, _ := newController(t, rules.New(0, fixedRand{}, logger.NewTestLogger(t)))
	ctx := context.Background()

	values := completeApplication()
	values["Applicant_ID"] = "APP-10023"
	fillForm(t, c, "s", values)

	v, err := c.Submit(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, v.Status)
	assert.Contains(t, v.Reasons, rules.ReasonStableEmployment)

	state, err := c.State(ctx, "s")
	require.NoError(t, err)
	assert.False(t, state.Evaluating)
	assert.Equal(t, v, state.Verdict)
	assert.Equal(t, "APP-10023", state.ReferenceID)
	assert.Empty(t, state.Error)
}

func TestSubmit_RulesRejectedLowCredit(t *testing.T) {
	c, _ := newController(t, rules.New(0, fixedRand{}, logger.NewTestLogger(t)))

	values := completeApplication()
	values["Credit_Score"] = "600"
	fillForm(t, c, "s", values)

	v, err := c.Submit(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, v.Status)
	assert.Equal(t, []string{rules.ReasonLowCreditScore}, v.Reasons)
}

func TestSubmit_ReferenceIDFallback(t *testing.T) {
	c, _ := newController(t, rules.New(0, fixedRand{}, logger.NewTestLogger(t)))
	fillForm(t, c, "s", completeApplication())

	_, err := c.Submit(context.Background(), "s")
	require.NoError(t, err)

	state, err := c.State(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, "EVAL-10000", state.ReferenceID)
}

func TestSubmit_RequiresEveryField(t *testing.T) {
	called := false
	c, _ := newController(t, &stubSource{evaluate: func(ctx context.Context, app models.Application) (*models.Verdict, error) {
		called = true
		return &models.Verdict{}, nil
	}})

	values := completeApplication()
	values["Applicant_ID"] = "APP-1"
	delete(values, "Loan_Term")
	fillForm(t, c, "s", values)

	_, err := c.Submit(context.Background(), "s")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeApplicationValidationFailed))
	assert.False(t, called)

	state, err := c.TakeState(context.Background(), "s")
	require.NoError(t, err)
	assert.NotEmpty(t, state.Error)
	assert.Nil(t, state.Verdict)
}

func TestSubmit_SourceErrorIsShownOnce(t *testing.T) {
	failure := errors.NewPredictionServiceFailedError("Machine Learning models are not loaded.", 503, fmt.Errorf("503"))
	c, _ := newController(t, &stubSource{evaluate: func(ctx context.Context, app models.Application) (*models.Verdict, error) {
		return nil, failure
	}})
	ctx := context.Background()

	values := completeApplication()
	values["Applicant_ID"] = "APP-1"
	fillForm(t, c, "s", values)

	_, err := c.Submit(ctx, "s")
	assert.ErrorIs(t, err, failure)

	shown, err := c.TakeState(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "Machine Learning models are not loaded.", shown.Error)
	assert.False(t, shown.Evaluating)
	assert.Nil(t, shown.Verdict)

	again, err := c.TakeState(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, again.Error)
	assert.Equal(t, "APP-1", again.Application["Applicant_ID"], "fields survive a failed submission")
}

func TestSubmit_OneOutstandingPerSession(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	c, _ := newController(t, &stubSource{evaluate: func(ctx context.Context, app models.Application) (*models.Verdict, error) {
		close(started)
		<-release
		return &models.Verdict{Status: models.StatusApproved, Confidence: "90%"}, nil
	}})
	ctx := context.Background()

	values := completeApplication()
	values["Applicant_ID"] = "APP-1"
	fillForm(t, c, "s", values)
	fillForm(t, c, "other", values)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(ctx, "s")
		done <- err
	}()
	<-started

	state, err := c.State(ctx, "s")
	require.NoError(t, err)
	assert.True(t, state.Evaluating)

	_, err = c.Submit(ctx, "s")
	assert.True(t, errors.HasCode(err, errors.ErrCodeEvaluationInFlight))

	// Editing while evaluating does not touch the frozen snapshot.
	require.NoError(t, c.UpdateField(ctx, "s", "Credit_Score", "500"))

	close(release)
	require.NoError(t, <-done)

	state, err = c.State(ctx, "s")
	require.NoError(t, err)
	assert.False(t, state.Evaluating)
	assert.Equal(t, models.StatusApproved, state.Verdict.Status)
	assert.Equal(t, "500", state.Application["Credit_Score"])
}

func TestSubmit_SnapshotIsFrozen(t *testing.T) {
	var seen models.Application
	c, _ := newController(t, &stubSource{evaluate: func(ctx context.Context, app models.Application) (*models.Verdict, error) {
		seen = app
		return &models.Verdict{Status: models.StatusRejected}, nil
	}})
	ctx := context.Background()

	values := completeApplication()
	values["Applicant_ID"] = "APP-1"
	fillForm(t, c, "s", values)
	_, err := c.Submit(ctx, "s")
	require.NoError(t, err)

	require.NoError(t, c.UpdateField(ctx, "s", "Credit_Score", "300"))
	assert.Equal(t, "700", seen["Credit_Score"])
}

func TestSubmit_ResetDuringEvaluationDiscardsVerdict(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	c, _ := newController(t, &stubSource{evaluate: func(ctx context.Context, app models.Application) (*models.Verdict, error) {
		close(started)
		<-release
		return &models.Verdict{Status: models.StatusApproved}, nil
	}})
	ctx := context.Background()

	values := completeApplication()
	values["Applicant_ID"] = "APP-1"
	fillForm(t, c, "s", values)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(ctx, "s")
		done <- err
	}()
	<-started
	require.NoError(t, c.Reset(ctx, "s"))
	close(release)
	require.NoError(t, <-done)

	state, err := c.State(ctx, "s")
	require.NoError(t, err)
	assert.True(t, state.Application.IsEmpty())
	assert.Nil(t, state.Verdict)
	assert.False(t, state.Evaluating)
}

func TestSubmit_CancelledContext(t *testing.T) {
	c, _ := newController(t, rules.New(time.Minute, fixedRand{}, logger.NewTestLogger(t)))

	values := completeApplication()
	values["Applicant_ID"] = "APP-1"
	fillForm(t, c, "s", values)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.Submit(ctx, "s")
	assert.True(t, errors.HasCode(err, errors.ErrCodeEvaluationCancelled))

	state, err := c.State(context.Background(), "s")
	require.NoError(t, err)
	assert.False(t, state.Evaluating)
	assert.Nil(t, state.Verdict)

	// The lock was released so the form can be submitted again.
	_, ok, err := c.store.TryLock(context.Background(), "s")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReset(t *testing.T) {
	c, _ := newController(t, rules.New(0, fixedRand{}, logger.NewTestLogger(t)))
	ctx := context.Background()

	fillForm(t, c, "s", completeApplication())
	_, err := c.Submit(ctx, "s")
	require.NoError(t, err)

	require.NoError(t, c.Reset(ctx, "s"))

	state, err := c.State(ctx, "s")
	require.NoError(t, err)
	assert.True(t, state.Application.IsEmpty())
	assert.Nil(t, state.Verdict)
	assert.Empty(t, state.ReferenceID)
}

func TestFillDemoData(t *testing.T) {
	c, _ := newController(t, rules.New(0, fixedRand{}, logger.NewTestLogger(t)))
	ctx := context.Background()

	fillForm(t, c, "s", completeApplication())
	_, err := c.Submit(ctx, "s")
	require.NoError(t, err)

	app, err := c.FillDemoData(ctx, "s")
	require.NoError(t, err)

	state, err := c.State(ctx, "s")
	require.NoError(t, err)
	assert.Nil(t, state.Verdict)
	for _, name := range c.Catalog().Names() {
		assert.NotEmpty(t, state.Application.String(name), "field %s", name)
	}
	assert.Equal(t, app, state.Application)
}

func TestUpdateField(t *testing.T) {
	c, _ := newController(t, rules.New(0, fixedRand{}, logger.NewTestLogger(t)))
	ctx := context.Background()

	require.NoError(t, c.UpdateField(ctx, "s", "City_Town", "<b>Pune</b><script>alert(1)</script>"))
	require.NoError(t, c.UpdateField(ctx, "s", "Loan_Purpose", "Home & Car"))
	require.NoError(t, c.UpdateField(ctx, "s", "Credit_Score", float64(710)))

	err := c.UpdateField(ctx, "s", "Nickname", "bob")
	assert.ErrorIs(t, err, ErrUnknownField)

	state, err := c.State(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "Pune", state.Application["City_Town"])
	assert.Equal(t, "Home & Car", state.Application["Loan_Purpose"])
	assert.Equal(t, float64(710), state.Application["Credit_Score"])
	assert.NotContains(t, state.Application, "Nickname")

	require.NoError(t, c.UpdateField(ctx, "s", "City_Town", ""))
	state, err = c.State(ctx, "s")
	require.NoError(t, err)
	assert.NotContains(t, state.Application, "City_Town")
}

func TestSessionsAreIsolated(t *testing.T) {
	c, _ := newController(t, rules.New(0, fixedRand{}, logger.NewTestLogger(t)))
	ctx := context.Background()

	require.NoError(t, c.UpdateField(ctx, "a", "Age", "30"))
	require.NoError(t, c.Reset(ctx, "b"))

	a, err := c.State(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "30", a.Application["Age"])
}

// blockingSource holds every evaluation until release is closed.
func blockingSource() (*stubSource, chan struct{}, chan struct{}) {
	started := make(chan struct{}, 8)
	release := make(chan struct{})
	return &stubSource{evaluate: func(ctx context.Context, app models.Application) (*models.Verdict, error) {
		started <- struct{}{}
		select {
		case <-release:
			return &models.Verdict{Status: models.StatusApproved, Confidence: "90%"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}, started, release
}

func TestSubmit_StaleEvaluatingFlagIsIgnored(t *testing.T) {
	source, started, release := blockingSource()
	c, store := newController(t, source)
	ctx := context.Background()

	values := completeApplication()
	values["Applicant_ID"] = "APP-1"
	fillForm(t, c, "s", values)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(ctx, "s")
		done <- err
	}()
	<-started

	// A reset that read the state mid-evaluation and wrote it back late.
	stale, err := c.State(ctx, "s")
	require.NoError(t, err)
	require.True(t, stale.Evaluating)
	require.NoError(t, c.Reset(ctx, "s"))

	inFlight, err := c.State(ctx, "s")
	require.NoError(t, err)
	assert.True(t, inFlight.Evaluating, "reset does not end a running evaluation")

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, store.Put(ctx, "s", stale))

	state, err := c.State(ctx, "s")
	require.NoError(t, err)
	assert.False(t, state.Evaluating)

	require.NoError(t, c.Reset(ctx, "s"))
	_, err = c.FillDemoData(ctx, "s")
	require.NoError(t, err)
	state, err = c.State(ctx, "s")
	require.NoError(t, err)
	assert.False(t, state.Evaluating)
}

func TestSubmit_LockOutlivesItsTTL(t *testing.T) {
	source, started, release := blockingSource()
	c, _ := newControllerWithStore(t, source, session.NewMemoryStore(time.Hour, 50*time.Millisecond))
	ctx := context.Background()

	values := completeApplication()
	values["Applicant_ID"] = "APP-1"
	fillForm(t, c, "s", values)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(ctx, "s")
		done <- err
	}()
	<-started

	time.Sleep(120 * time.Millisecond)
	_, err := c.Submit(ctx, "s")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeEvaluationInFlight))
	assert.Len(t, started, 0, "second submission must not reach the source")

	close(release)
	require.NoError(t, <-done)

	state, err := c.State(ctx, "s")
	require.NoError(t, err)
	assert.False(t, state.Evaluating)
	assert.Equal(t, models.StatusApproved, state.Verdict.Status)
}

// lostLockStore never confirms a refresh, as if the lock had been taken
// over by another submission.
type lostLockStore struct {
	*session.MemoryStore
}

func (lostLockStore) Refresh(ctx context.Context, id, token string) (bool, error) {
	return false, nil
}

func TestSubmit_LostLockCancelsEvaluation(t *testing.T) {
	source, _, _ := blockingSource()
	c, _ := newControllerWithStore(t, source, lostLockStore{session.NewMemoryStore(time.Hour, 30*time.Millisecond)})
	ctx := context.Background()

	values := completeApplication()
	values["Applicant_ID"] = "APP-1"
	fillForm(t, c, "s", values)

	_, err := c.Submit(ctx, "s")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeEvaluationCancelled))

	state, err := c.State(ctx, "s")
	require.NoError(t, err)
	assert.Nil(t, state.Verdict)
	assert.False(t, state.Evaluating)
}
