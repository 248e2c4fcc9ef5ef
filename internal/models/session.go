// internal/models/session.go
package models

import "time"

// FormState is the per-session snapshot of a form: what has been entered,
// the last verdict and any error waiting to be shown. Revision changes
// whenever the application is replaced wholesale.
type FormState struct {
	Application Application `json:"application"`
	Verdict     *Verdict    `json:"verdict,omitempty"`
	ReferenceID string      `json:"referenceId,omitempty"`
	Evaluating  bool        `json:"evaluating"` // set from the session lock on read
	Error       string      `json:"error,omitempty"`
	Revision    int         `json:"revision"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// NewFormState returns an empty, idle form.
func NewFormState() *FormState {
	return &FormState{Application: Application{}}
}

// Clone returns a deep copy.
func (s *FormState) Clone() *FormState {
	if s == nil {
		return nil
	}
	out := *s
	out.Application = s.Application.Clone()
	out.Verdict = s.Verdict.Clone()
	return &out
}
