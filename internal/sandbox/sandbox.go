package sandbox

import (
	"context"
	"time"
)

// CreateOpts describes a sandbox session to open.
type CreateOpts struct {
	Template string
	Timeout  time.Duration // sandbox lifetime enforced by the provider
	Metadata map[string]string
	Envs     map[string]string
}

// RunOpts controls a single code execution inside a session.
type RunOpts struct {
	Language string            // empty means the template's default (Python)
	Envs     map[string]string // extra environment for this run

	// OnStdout and OnStderr, when set, receive each output chunk as the
	// provider emits it, in order.
	OnStdout func(line string)
	OnStderr func(line string)
}

// Logs holds the ordered output chunks of one execution.
type Logs struct {
	Stdout []string `json:"stdout"`
	Stderr []string `json:"stderr"`
}

// ExecutionError is an exception raised by the submitted code itself. It is
// part of a successful run, not a failure to run.
type ExecutionError struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Traceback string `json:"traceback"`
}

// Execution is the output of one RunCode call.
type Execution struct {
	Logs           Logs
	Error          *ExecutionError
	ExecutionCount int
}

// Session is one isolated remote execution context.
type Session interface {
	ID() string
	RunCode(ctx context.Context, code string, opts RunOpts) (*Execution, error)
	// Close destroys the remote sandbox. It is safe to call more than once.
	Close(ctx context.Context) error
}

// Provider opens sandbox sessions.
type Provider interface {
	Create(ctx context.Context, opts CreateOpts) (Session, error)
}
