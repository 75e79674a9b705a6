// Package report defines the persisted record of one script execution and
// the writer that lands it on disk.
package report

import (
	"time"
)

// Result statuses for individual measurements.
const (
	ResultOk    = "ok"
	ResultError = "error"
)

// MeasurementResult is one captured measurement. Immutable after creation;
// the interpreter appends them in execution order.
type MeasurementResult struct {
	Timestamp time.Time      `json:"timestamp"`
	Line      int            `json:"line"`
	Alias     string         `json:"alias,omitempty"`
	Values    map[string]any `json:"values"`
	Status    string         `json:"status"`
	Error     string         `json:"error,omitempty"`
}

// RunError is one recorded execution error with its script location.
type RunError struct {
	Line    int    `json:"line"`
	Alias   string `json:"alias,omitempty"`
	Message string `json:"message"`
}

// RunReport aggregates everything one run produced. It is created when the
// run starts, filled in by the interpreter, and written once at the end;
// after that the run's in-memory state is discarded.
type RunReport struct {
	RunID      string    `json:"run_id"`
	Script     string    `json:"script"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	PlannedSteps  int `json:"planned_steps"`
	StepsExecuted int `json:"steps_executed"`

	Results []MeasurementResult `json:"results"`
	Errors  []RunError          `json:"errors,omitempty"`
}

// AddResult appends a measurement in execution order.
func (r *RunReport) AddResult(m MeasurementResult) {
	r.Results = append(r.Results, m)
}

// AddError records an execution error.
func (r *RunReport) AddError(line int, alias, message string) {
	r.Errors = append(r.Errors, RunError{Line: line, Alias: alias, Message: message})
}
