package relay

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/aether/internal/sandbox"
	"github.com/michaelbrown/aether/internal/sandbox/sandboxtest"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Create(ctx context.Context, opts sandbox.CreateOpts) (sandbox.Session, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(sandbox.Session), args.Error(1)
}

type mockSession struct {
	mock.Mock
}

func (m *mockSession) ID() string { return "sbx-mock" }

func (m *mockSession) RunCode(ctx context.Context, code string, opts sandbox.RunOpts) (*sandbox.Execution, error) {
	args := m.Called(ctx, code, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sandbox.Execution), args.Error(1)
}

func (m *mockSession) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type recordingTracker struct {
	added, removed []string
}

func (t *recordingTracker) Add(s sandbox.Session) { t.added = append(t.added, s.ID()) }
func (t *recordingTracker) Remove(id string)      { t.removed = append(t.removed, id) }

func testPolicy() sandbox.Policy {
	return sandbox.Policy{Template: "code-interpreter-v1", DefaultTimeout: time.Minute}
}

func TestExecuteJoinsOutput(t *testing.T) {
	sess := &mockSession{}
	sess.On("RunCode", mock.Anything, "print('a'); print('b')", mock.Anything).Return(&sandbox.Execution{
		Logs: sandbox.Logs{Stdout: []string{"a", "b"}, Stderr: []string{}},
	}, nil)
	sess.On("Close", mock.Anything).Return(nil)

	prov := &mockProvider{}
	prov.On("Create", mock.Anything, mock.MatchedBy(func(o sandbox.CreateOpts) bool {
		return o.Template == "code-interpreter-v1" && o.Timeout == time.Minute
	})).Return(sess, nil)

	tracker := &recordingTracker{}
	r := New(prov, testPolicy(), tracker, zerolog.Nop())

	out, err := r.Execute(context.Background(), Request{Code: "print('a'); print('b')"})
	require.NoError(t, err)
	assert.Equal(t, "a\nb", out.Stdout)
	assert.Equal(t, "", out.Stderr)
	assert.Equal(t, "sbx-mock", out.SandboxID)

	prov.AssertNumberOfCalls(t, "Create", 1)
	sess.AssertNumberOfCalls(t, "Close", 1)
	assert.Equal(t, []string{"sbx-mock"}, tracker.added)
	assert.Equal(t, []string{"sbx-mock"}, tracker.removed)
}

func TestExecuteRunFailureStillCloses(t *testing.T) {
	sess := &mockSession{}
	sess.On("RunCode", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("connection reset by peer"))
	sess.On("Close", mock.Anything).Return(nil)

	prov := &mockProvider{}
	prov.On("Create", mock.Anything, mock.Anything).Return(sess, nil)

	var logs bytes.Buffer
	r := New(prov, testPolicy(), nil, zerolog.New(&logs))

	out, err := r.Execute(context.Background(), Request{Code: "x"})
	assert.Nil(t, out)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, StageRun, execErr.Stage)
	assert.Equal(t, "sbx-mock", execErr.SandboxID)
	assert.Equal(t, "connection reset by peer", err.Error())

	sess.AssertNumberOfCalls(t, "Close", 1)
	assert.Contains(t, logs.String(), `"level":"error"`)
	assert.Contains(t, logs.String(), "Execution Failed")
}

func TestExecuteCreateFailure(t *testing.T) {
	prov := &mockProvider{}
	prov.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("quota exceeded"))

	r := New(prov, testPolicy(), nil, zerolog.Nop())

	_, err := r.Execute(context.Background(), Request{Code: "x"})

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, StageCreate, execErr.Stage)
	assert.Equal(t, "quota exceeded", err.Error())
}

func TestExecuteCloseFailureKeepsResult(t *testing.T) {
	stub := &sandboxtest.Provider{Stdout: []string{"2"}, CloseErr: errors.New("kill failed")}
	r := New(stub, testPolicy(), nil, zerolog.Nop())

	out, err := r.Execute(context.Background(), Request{Code: "print(1+1)"})
	require.NoError(t, err)
	assert.Equal(t, "2", out.Stdout)
	assert.Equal(t, 1, stub.Closed())
}

func TestExecuteClosesOnPanic(t *testing.T) {
	stub := &sandboxtest.Provider{RunPanic: "boom"}
	r := New(stub, testPolicy(), nil, zerolog.Nop())

	assert.Panics(t, func() {
		r.Execute(context.Background(), Request{Code: "x"})
	})
	assert.Equal(t, 1, stub.Created())
	assert.Equal(t, 1, stub.Closed())
}

func TestExecuteClosesAfterCancel(t *testing.T) {
	stub := &sandboxtest.Provider{Hold: make(chan struct{})}
	r := New(stub, testPolicy(), nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.Execute(ctx, Request{Code: "import time; time.sleep(100)"})
		done <- err
	}()

	require.Eventually(t, func() bool { return len(stub.Codes()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, stub.Closed())
}

func TestExecutePassesTimeoutAndMetadata(t *testing.T) {
	stub := &sandboxtest.Provider{}
	p := testPolicy()
	p.MaxTimeout = 5 * time.Minute
	r := New(stub, p, nil, zerolog.Nop())

	_, err := r.Execute(context.Background(), Request{Code: "", Timeout: 600, Metadata: map[string]string{"request_id": "r1"}})
	require.NoError(t, err)

	opts := stub.LastOpts()
	assert.Equal(t, 5*time.Minute, opts.Timeout)
	assert.Equal(t, "r1", opts.Metadata["request_id"])
	assert.Equal(t, []string{""}, stub.Codes(), "empty code is forwarded as-is")
}

func TestExecuteReportsUserError(t *testing.T) {
	stub := &sandboxtest.Provider{
		Stderr:    []string{"Traceback ..."},
		UserError: &sandbox.ExecutionError{Name: "NameError", Value: "name 'x' is not defined"},
	}
	r := New(stub, testPolicy(), nil, zerolog.Nop())

	out, err := r.Execute(context.Background(), Request{Code: "x"})
	require.NoError(t, err)
	require.NotNil(t, out.UserError)
	assert.Equal(t, "NameError", out.UserError.Name)
	assert.Equal(t, "Traceback ...", out.Stderr)
}

func TestExecuteStreamsOutput(t *testing.T) {
	stub := &sandboxtest.Provider{Stdout: []string{"a", "b"}, Stderr: []string{"c"}}
	r := New(stub, testPolicy(), nil, zerolog.Nop())

	var got []string
	_, err := r.Execute(context.Background(), Request{
		Code:     "x",
		OnStdout: func(s string) { got = append(got, "out:"+s) },
		OnStderr: func(s string) { got = append(got, "err:"+s) },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"out:a", "out:b", "err:c"}, got)
}

func TestExecuteLogsRequestID(t *testing.T) {
	var logs bytes.Buffer
	r := New(&sandboxtest.Provider{}, testPolicy(), nil, zerolog.New(&logs))

	_, err := r.Execute(WithRequestID(context.Background(), "req-42"), Request{Code: "x"})
	require.NoError(t, err)
	assert.Contains(t, logs.String(), `"request_id":"req-42"`)
	assert.Contains(t, logs.String(), "Spawning Sandbox...")
}
