package app

import "time"

// Operation is one CLI invocation. Its ID tags every log line written while it runs.
type Operation struct {
	ID      string
	Name    string
	Started time.Time
	Status  string // "success" or "error"
}

// NewOperation starts an operation at now. The ID is derived from the start time.
func NewOperation(name string, now time.Time) *Operation {
	return &Operation{
		ID:      now.UTC().Format("20060102T150405Z"),
		Name:    name,
		Started: now,
		Status:  "success",
	}
}

// Fail marks the operation as failed.
func (op *Operation) Fail() {
	op.Status = "error"
}

// Failed returns true if Fail was called.
func (op *Operation) Failed() bool {
	return op.Status == "error"
}

// Elapsed returns the time since the operation started.
func (op *Operation) Elapsed(now time.Time) time.Duration {
	return now.Sub(op.Started)
}
