// Package relay runs one snippet of code in a freshly created remote sandbox
// and normalizes the outcome.
package relay

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/michaelbrown/aether/internal/sandbox"
)

const closeTimeout = 30 * time.Second

// Stage identifies where an execution failed.
type Stage string

const (
	StageCreate Stage = "create"
	StageRun    Stage = "run"
)

// ExecutionError is any failure of the remote collaborator. Its message is
// what callers see.
type ExecutionError struct {
	Stage     Stage
	SandboxID string
	Err       error
}

func (e *ExecutionError) Error() string { return e.Err.Error() }

func (e *ExecutionError) Unwrap() error { return e.Err }

// Request is one execution.
type Request struct {
	Code     string
	Timeout  int // advisory, seconds; 0 selects the policy default
	Metadata map[string]string

	OnStdout func(string)
	OnStderr func(string)
}

// Output is a successful execution. UserError is set when the submitted code
// raised; the run itself still succeeded.
type Output struct {
	Stdout    string
	Stderr    string
	SandboxID string
	UserError *sandbox.ExecutionError
}

// Tracker is told about every session while it is open.
type Tracker interface {
	Add(s sandbox.Session)
	Remove(sandboxID string)
}

// Relay opens one sandbox per Execute call and always destroys it before
// returning.
type Relay struct {
	provider sandbox.Provider
	policy   sandbox.Policy
	tracker  Tracker
	logger   zerolog.Logger
}

// New creates a Relay. tracker may be nil.
func New(provider sandbox.Provider, policy sandbox.Policy, tracker Tracker, logger zerolog.Logger) *Relay {
	return &Relay{
		provider: provider,
		policy:   policy,
		tracker:  tracker,
		logger:   logger.With().Str("component", "relay").Logger(),
	}
}

// Execute runs req.Code. A non-nil error is always an *ExecutionError.
func (r *Relay) Execute(ctx context.Context, req Request) (*Output, error) {
	log := r.logger
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		log = log.With().Str("request_id", id).Logger()
	}

	log.Info().Msg("Spawning Sandbox...")
	sess, err := r.provider.Create(ctx, r.policy.CreateOpts(req.Timeout, req.Metadata))
	if err != nil {
		log.Error().Err(err).Str("stage", string(StageCreate)).Msg("Execution Failed")
		return nil, &ExecutionError{Stage: StageCreate, Err: err}
	}
	log = log.With().Str("sandbox_id", sess.ID()).Logger()
	defer r.release(ctx, sess, log)
	if r.tracker != nil {
		r.tracker.Add(sess)
	}

	log.Info().Msg("Sandbox Active. Running Code...")

	exec, err := sess.RunCode(ctx, req.Code, sandbox.RunOpts{
		OnStdout: req.OnStdout,
		OnStderr: req.OnStderr,
	})
	if err != nil {
		log.Error().Err(err).Str("stage", string(StageRun)).Msg("Execution Failed")
		return nil, &ExecutionError{Stage: StageRun, SandboxID: sess.ID(), Err: err}
	}

	if exec.Error != nil {
		log.Warn().Str("error_name", exec.Error.Name).Str("error_value", exec.Error.Value).Msg("Code raised an exception")
	}

	return &Output{
		Stdout:    strings.Join(exec.Logs.Stdout, "\n"),
		Stderr:    strings.Join(exec.Logs.Stderr, "\n"),
		SandboxID: sess.ID(),
		UserError: exec.Error,
	}, nil
}

// release destroys the sandbox even when the caller's context is already
// cancelled.
func (r *Relay) release(ctx context.Context, sess sandbox.Session, log zerolog.Logger) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()

	if err := sess.Close(closeCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to destroy sandbox")
	} else {
		log.Debug().Msg("Sandbox destroyed")
	}
	if r.tracker != nil {
		r.tracker.Remove(sess.ID())
	}
}

type requestIDKey struct{}

// WithRequestID attaches a request id that Execute adds to its log lines.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}
