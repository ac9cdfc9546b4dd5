// Package sandboxtest provides an in-memory sandbox provider for tests.
package sandboxtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/michaelbrown/aether/internal/sandbox"
)

// Provider is a sandbox.Provider that counts sessions and returns canned
// output. The zero value succeeds with empty output.
type Provider struct {
	Stdout    []string
	Stderr    []string
	UserError *sandbox.ExecutionError
	CreateErr error
	RunErr    error
	CloseErr  error
	RunPanic  any

	// Hold, when non-nil, blocks RunCode until it is closed.
	Hold chan struct{}

	mu       sync.Mutex
	created  int
	closed   int
	lastOpts sandbox.CreateOpts
	codes    []string
}

func (p *Provider) Create(ctx context.Context, opts sandbox.CreateOpts) (sandbox.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}
	p.created++
	p.lastOpts = opts
	return &session{p: p, id: fmt.Sprintf("sbx-stub-%d", p.created)}, nil
}

// Created returns how many sessions were opened.
func (p *Provider) Created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

// Closed returns how many sessions were destroyed.
func (p *Provider) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// LastOpts returns the options of the most recent Create call.
func (p *Provider) LastOpts() sandbox.CreateOpts {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastOpts
}

// Codes returns every snippet passed to RunCode, in order.
func (p *Provider) Codes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.codes...)
}

type session struct {
	p    *Provider
	id   string
	once sync.Once
}

func (s *session) ID() string { return s.id }

func (s *session) RunCode(ctx context.Context, code string, opts sandbox.RunOpts) (*sandbox.Execution, error) {
	s.p.mu.Lock()
	s.p.codes = append(s.p.codes, code)
	hold := s.p.Hold
	s.p.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.p.RunPanic != nil {
		panic(s.p.RunPanic)
	}
	if s.p.RunErr != nil {
		return nil, s.p.RunErr
	}

	for _, line := range s.p.Stdout {
		if opts.OnStdout != nil {
			opts.OnStdout(line)
		}
	}
	for _, line := range s.p.Stderr {
		if opts.OnStderr != nil {
			opts.OnStderr(line)
		}
	}
	return &sandbox.Execution{
		Logs: sandbox.Logs{
			Stdout: append([]string{}, s.p.Stdout...),
			Stderr: append([]string{}, s.p.Stderr...),
		},
		Error: s.p.UserError,
	}, nil
}

func (s *session) Close(ctx context.Context) error {
	s.once.Do(func() {
		s.p.mu.Lock()
		s.p.closed++
		s.p.mu.Unlock()
	})
	return s.p.CloseErr
}
