package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no execution matches an ID or prefix.
var ErrNotFound = errors.New("execution not found")

// ErrAmbiguous is returned when an ID prefix matches more than one execution.
var ErrAmbiguous = errors.New("ambiguous execution prefix")

// ExecutionStatus is how an execution ended.
type ExecutionStatus string

const (
	StatusSucceeded           ExecutionStatus = "succeeded"
	StatusExecutionFailed     ExecutionStatus = "execution_failed"
	StatusProtocolError       ExecutionStatus = "protocol_error"
	StatusInfrastructureError ExecutionStatus = "infrastructure_error"
)

// Execution is the audit record of one pipeline run. It holds metadata
// only, never the script or its output.
type Execution struct {
	ID          string          `json:"id" yaml:"id"`
	Status      ExecutionStatus `json:"status" yaml:"status"`
	ExitCode    int             `json:"exit_code" yaml:"exit_code"`
	Degraded    bool            `json:"degraded" yaml:"degraded"`
	Markers     int             `json:"markers" yaml:"markers"`
	Error       string          `json:"error,omitempty" yaml:"error,omitempty"`
	ScriptBytes int             `json:"script_bytes" yaml:"script_bytes"`
	StdoutBytes int             `json:"stdout_bytes" yaml:"stdout_bytes"`
	StderrBytes int             `json:"stderr_bytes" yaml:"stderr_bytes"`
	DurationMS  int64           `json:"duration_ms" yaml:"duration_ms"`
	CreatedAt   time.Time       `json:"created_at" yaml:"created_at"`
}

// ExecutionListOptions controls filtering and pagination for ListExecutions.
type ExecutionListOptions struct {
	Status       ExecutionStatus
	DegradedOnly bool
	Limit        int
	Offset       int
}

// Store is the persistence interface for the execution audit log.
type Store interface {
	// RecordExecution inserts an execution. The ID field must be set by the caller.
	RecordExecution(ctx context.Context, e *Execution) error

	// GetExecution returns an execution by ID or ID prefix.
	GetExecution(ctx context.Context, id string) (*Execution, error)

	// ListExecutions returns executions ordered by created_at descending.
	ListExecutions(ctx context.Context, opts ExecutionListOptions) ([]Execution, error)

	// PruneExecutions deletes executions created before the given time and
	// returns how many were removed.
	PruneExecutions(ctx context.Context, before time.Time) (int64, error)

	// Close releases resources.
	Close() error
}
