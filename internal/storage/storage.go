package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an execution record does not exist.
var ErrNotFound = errors.New("execution not found")

// ExecutionStatus is the outcome of a relayed execution.
type ExecutionStatus string

const (
	StatusSuccess ExecutionStatus = "success"
	StatusError   ExecutionStatus = "error"
)

// Execution is the audit record of one relayed execution. Code and output
// bodies are not stored, only their sizes.
type Execution struct {
	ID          string          `json:"id"`
	SandboxID   string          `json:"sandbox_id"`
	Status      ExecutionStatus `json:"status"`
	Stage       string          `json:"stage,omitempty"`
	Message     string          `json:"message,omitempty"`
	CodeBytes   int             `json:"code_bytes"`
	StdoutBytes int             `json:"stdout_bytes"`
	StderrBytes int             `json:"stderr_bytes"`
	Timeout     int             `json:"timeout"`
	RemoteAddr  string          `json:"remote_addr"`
	Transport   string          `json:"transport"`
	StartedAt   time.Time       `json:"started_at"`
	DurationMS  int64           `json:"duration_ms"`
}

// ListOptions controls filtering and pagination for ListExecutions.
type ListOptions struct {
	Status ExecutionStatus
	Limit  int
	Offset int
}

// Store is the persistence interface for execution history.
type Store interface {
	// RecordExecution inserts a record. The ID field must be set by the caller.
	RecordExecution(ctx context.Context, e *Execution) error

	// GetExecution returns a record by ID or ID prefix.
	GetExecution(ctx context.Context, id string) (*Execution, error)

	// ListExecutions returns records ordered by started_at descending.
	ListExecutions(ctx context.Context, opts ListOptions) ([]Execution, error)

	// Close releases resources.
	Close() error
}
