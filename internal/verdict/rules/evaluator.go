// internal/verdict/rules/evaluator.go
package rules

import (
	"context"
	"fmt"
	"math"
	"time"

	"loan-decision/internal/common/logger"
	"loan-decision/internal/models"
	"loan-decision/internal/verdict"
)

const (
	Name = "rules"

	MinCreditScore    = 650
	MaxIncomeMultiple = 5

	ReasonLowCreditScore   = "Credit score is below the acceptable threshold (650)."
	ReasonExcessiveAmount  = "Requested loan amount exceeds the debt-to-income limits."
	ReasonHighDefaultRisk  = "System flagged a high baseline default risk."
	ReasonBadLoanHistory   = "Applicant has a poor previous loan repayment history."
	ReasonMeetsRequirement = "Credit score and income levels meet standard requirements."
	ReasonStableEmployment = "Stable employment status confirmed."
)

// Evaluator is the in-process verdict source: four threshold rules, a
// random confidence and an artificial delay.
type Evaluator struct {
	rng    verdict.Rand
	delay  time.Duration
	logger logger.Logger
}

var _ verdict.Source = (*Evaluator)(nil)

func New(delay time.Duration, rng verdict.Rand, log logger.Logger) *Evaluator {
	if rng == nil {
		rng = verdict.NewRand()
	}
	return &Evaluator{
		rng:    rng,
		delay:  delay,
		logger: log.WithFields(map[string]interface{}{"source": Name}),
	}
}

func (e *Evaluator) Name() string { return Name }

// Evaluate waits out the configured delay and then applies Decide. The
// only error is the context ending during the wait.
func (e *Evaluator) Evaluate(ctx context.Context, app models.Application) (*models.Verdict, error) {
	if e.delay > 0 {
		timer := time.NewTimer(e.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	v := e.Decide(app)
	e.logger.Info("application evaluated", map[string]interface{}{
		"status":     v.Status,
		"confidence": v.Confidence,
		"reasons":    len(v.Reasons),
	})
	return v, nil
}

// Decide applies the rules without any delay. Rules run in a fixed order
// and every one that fires contributes its reason.
func (e *Evaluator) Decide(app models.Application) *models.Verdict {
	var reasons []string

	if app.Int("Credit_Score") < MinCreditScore {
		reasons = append(reasons, ReasonLowCreditScore)
	}
	if exceedsMultiple(app.Int("Loan_Amount_Requested"), app.Int("Annual_Income"), MaxIncomeMultiple) {
		reasons = append(reasons, ReasonExcessiveAmount)
	}
	if app.String("Default_Risk") == "High" {
		reasons = append(reasons, ReasonHighDefaultRisk)
	}
	if app.String("Loan_History") == "Bad" {
		reasons = append(reasons, ReasonBadLoanHistory)
	}

	if len(reasons) > 0 {
		return &models.Verdict{
			Status:     models.StatusRejected,
			Confidence: formatConfidence(70 + e.rng.IntN(20)),
			Reasons:    reasons,
		}
	}

	reasons = []string{ReasonMeetsRequirement}
	if app.String("Employment_Status") == "Employed" {
		reasons = append(reasons, ReasonStableEmployment)
	}
	return &models.Verdict{
		Status:     models.StatusApproved,
		Confidence: formatConfidence(80 + e.rng.IntN(15)),
		Reasons:    reasons,
	}
}

// exceedsMultiple reports amount > income*multiple without overflowing.
func exceedsMultiple(amount, income, multiple int64) bool {
	if income > math.MaxInt64/multiple {
		return false
	}
	if income < math.MinInt64/multiple {
		return true
	}
	return amount > income*multiple
}

func formatConfidence(pct int) string {
	return fmt.Sprintf("%d%%", pct)
}
