// Package domain defines distillation runs: one row per attempt to fold signals
// into a new state version.
package domain

import "time"

// Status is the lifecycle state of a run. A run is terminal once completed or
// failed and is never mutated after that.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run records one distillation attempt. OutputVersion is reserved before the
// compression call executes; a failed run leaves its reserved version unused.
type Run struct {
	ID            string
	LabID         string
	InputVersion  *int // nil for the initial distillation of a lab
	OutputVersion int
	SignalIDs     []string
	PromptVersion string
	Model         string
	Status        Status
	StartedAt     time.Time
	CompletedAt   *time.Time
}
