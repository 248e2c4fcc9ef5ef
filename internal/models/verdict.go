package models

const (
	StatusApproved = "Approved"
	StatusRejected = "Rejected"
)

// Verdict is the outcome of one evaluation. Remote verdicts are adopted
// as received, so Status may hold values other than the two constants.
type Verdict struct {
	Status     string   `json:"status"`
	Confidence string   `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

// Approved reports whether the verdict approves the application.
func (v *Verdict) Approved() bool {
	return v != nil && v.Status == StatusApproved
}

// Clone returns a deep copy.
func (v *Verdict) Clone() *Verdict {
	if v == nil {
		return nil
	}
	out := *v
	out.Reasons = append([]string(nil), v.Reasons...)
	return &out
}
