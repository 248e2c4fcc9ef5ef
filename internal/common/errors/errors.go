// Package errors provides the structured error type shared by the web
// server, the verdict sources and the job worker, plus its BPMN mapping.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeApplicationValidationFailed ErrorCode = "APPLICATION_VALIDATION_FAILED"
	ErrCodePredictionServiceFailed     ErrorCode = "PREDICTION_SERVICE_FAILED"
	ErrCodePredictionResponseInvalid   ErrorCode = "PREDICTION_RESPONSE_INVALID"
	ErrCodeEvaluationInFlight          ErrorCode = "EVALUATION_IN_FLIGHT"
	ErrCodeEvaluationCancelled         ErrorCode = "EVALUATION_CANCELLED"
	ErrCodeSessionStoreFailed          ErrorCode = "SESSION_STORE_FAILED"
	ErrCodeInternal                    ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error. Message is
// safe to show to the person filling in the form.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// NewApplicationValidationFailedError reports missing or empty form fields.
func NewApplicationValidationFailedError(fields []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeApplicationValidationFailed,
		Message:   "Please complete every field before evaluating the application.",
		Details:   fmt.Sprintf("missing: %s", strings.Join(fields, ", ")),
		Retryable: false,
		Metadata:  map[string]interface{}{"fields": fields},
		Timestamp: time.Now().UTC(),
	}
}

// NewPredictionServiceFailedError wraps a failed call to the prediction
// endpoint. message is what the user sees; cause keeps the transport error.
func NewPredictionServiceFailedError(message string, status int, cause error) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &StandardError{
		Code:      ErrCodePredictionServiceFailed,
		Message:   message,
		Details:   details,
		Retryable: false,
		Metadata:  map[string]interface{}{"status": status},
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewPredictionResponseInvalidError is returned when response validation
// is enabled and the body does not look like a verdict.
func NewPredictionResponseInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodePredictionResponseInvalid,
		Message:   "The prediction service returned an unexpected response.",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEvaluationInFlightError rejects a second submission for the same form.
func NewEvaluationInFlightError(sessionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeEvaluationInFlight,
		Message:   "An evaluation is already running for this application.",
		Details:   fmt.Sprintf("session: %s", sessionID),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewEvaluationCancelledError reports that the caller went away mid-evaluation.
func NewEvaluationCancelledError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeEvaluationCancelled,
		Message:   "The evaluation was interrupted.",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewSessionStoreFailedError wraps a session backend failure.
func NewSessionStoreFailedError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionStoreFailed,
		Message:   "Form state is temporarily unavailable.",
		Details:   fmt.Sprintf("op: %s, error: %s", op, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// AsStandardError unwraps err into a *StandardError, or wraps it as an
// internal error when it is not one.
func AsStandardError(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// HasCode reports whether err is a StandardError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	return stderrors.As(err, &stdErr) && stdErr.Code == code
}

// GetRetryCount returns the number of job retries granted per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeSessionStoreFailed, ErrCodeEvaluationInFlight:
		return 3
	case ErrCodeEvaluationCancelled:
		return 1
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "PREDICTION"):
		return "REMOTE"
	case strings.HasPrefix(codeStr, "EVALUATION"):
		return "EVALUATION"
	case strings.HasPrefix(codeStr, "SESSION"):
		return "SESSION"
	case strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
