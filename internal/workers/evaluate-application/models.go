// internal/workers/evaluate-application/models.go
package evaluateapplication

import "loan-decision/internal/models"

type Input struct {
	Application models.Application `json:"application"`
}

type Output struct {
	Status      string   `json:"status"`
	Confidence  string   `json:"confidence"`
	Reasons     []string `json:"reasons"`
	Approved    bool     `json:"approved"`
	ReferenceID string   `json:"referenceId"`
	Source      string   `json:"source"`
}
