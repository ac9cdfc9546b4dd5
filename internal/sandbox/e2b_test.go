package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/aether/internal/sandbox/e2bapi"
)

// fakeE2B emulates the control plane and the code interpreter on one server.
type fakeE2B struct {
	mu        sync.Mutex
	created   []e2bapi.NewSandbox
	killed    []string
	apiKeys   []string
	tokens    []string
	events    []string
	createErr int
	killCode  int
}

func (f *fakeE2B) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/sandboxes":
		f.apiKeys = append(f.apiKeys, r.Header.Get("X-API-KEY"))
		w.Header().Set("Content-Type", "application/json")
		if f.createErr != 0 {
			w.WriteHeader(f.createErr)
			fmt.Fprint(w, `{"code":429,"message":"rate limit exceeded"}`)
			return
		}
		var req e2bapi.NewSandbox
		json.NewDecoder(r.Body).Decode(&req)
		f.created = append(f.created, req)
		token := "tok"
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(e2bapi.Sandbox{
			SandboxID:       fmt.Sprintf("sbx%d", len(f.created)),
			TemplateID:      req.TemplateID,
			EnvdAccessToken: &token,
		})
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/sandboxes/"):
		f.killed = append(f.killed, strings.TrimPrefix(r.URL.Path, "/sandboxes/"))
		if f.killCode != 0 {
			w.WriteHeader(f.killCode)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPost && r.URL.Path == "/execute":
		f.tokens = append(f.tokens, r.Header.Get("X-Access-Token"))
		for _, ev := range f.events {
			fmt.Fprintln(w, ev)
		}
	default:
		http.NotFound(w, r)
	}
}

func newTestE2B(t *testing.T, fake *fakeE2B) *E2B {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	e, err := NewE2B(E2BOptions{APIKey: "e2b_test", APIURL: srv.URL})
	require.NoError(t, err)
	e.sandboxURL = func(string, string) string { return srv.URL }
	return e
}

func TestE2BCreateRunClose(t *testing.T) {
	fake := &fakeE2B{events: []string{
		`{"type":"stdout","text":"a","timestamp":1}`,
		`{"type":"stderr","text":"warn","timestamp":2}`,
		`{"type":"stdout","text":"b","timestamp":3}`,
		`{"type":"number_of_executions","execution_count":1}`,
		`{"type":"end_of_execution"}`,
	}}
	e := newTestE2B(t, fake)
	ctx := context.Background()

	sess, err := e.Create(ctx, CreateOpts{Template: "code-interpreter-v1", Timeout: 90 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "sbx1", sess.ID())

	var streamed []string
	exec, err := sess.RunCode(ctx, "print(1)", RunOpts{
		OnStdout: func(s string) { streamed = append(streamed, "out:"+s) },
		OnStderr: func(s string) { streamed = append(streamed, "err:"+s) },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, exec.Logs.Stdout)
	assert.Equal(t, []string{"warn"}, exec.Logs.Stderr)
	assert.Equal(t, 1, exec.ExecutionCount)
	assert.Nil(t, exec.Error)
	assert.Equal(t, []string{"out:a", "err:warn", "out:b"}, streamed)

	require.NoError(t, sess.Close(ctx))
	require.NoError(t, sess.Close(ctx), "second close is a no-op")

	assert.Equal(t, []string{"e2b_test"}, fake.apiKeys)
	assert.Equal(t, "code-interpreter-v1", fake.created[0].TemplateID)
	require.NotNil(t, fake.created[0].Timeout)
	assert.Equal(t, int32(90), *fake.created[0].Timeout)
	assert.Equal(t, []string{"tok"}, fake.tokens)
	assert.Equal(t, []string{"sbx1"}, fake.killed)
}

func TestE2BRunCodeReportsUserError(t *testing.T) {
	fake := &fakeE2B{events: []string{
		`{"type":"error","name":"ZeroDivisionError","value":"division by zero","traceback":"..."}`,
		`{"type":"end_of_execution"}`,
	}}
	e := newTestE2B(t, fake)

	sess, err := e.Create(context.Background(), CreateOpts{})
	require.NoError(t, err)

	exec, err := sess.RunCode(context.Background(), "1/0", RunOpts{})
	require.NoError(t, err)
	require.NotNil(t, exec.Error)
	assert.Equal(t, "ZeroDivisionError", exec.Error.Name)
	assert.Empty(t, exec.Logs.Stdout)
}

func TestE2BRunCodeUnexpectedEnd(t *testing.T) {
	fake := &fakeE2B{events: []string{
		`{"type":"stdout","text":"partial"}`,
		`{"type":"unexpected_end_of_execution"}`,
	}}
	e := newTestE2B(t, fake)

	sess, err := e.Create(context.Background(), CreateOpts{})
	require.NoError(t, err)

	_, err = sess.RunCode(context.Background(), "while True: pass", RunOpts{})
	assert.ErrorContains(t, err, "ended unexpectedly")
}

func TestE2BCreateAPIError(t *testing.T) {
	fake := &fakeE2B{createErr: http.StatusTooManyRequests}
	e := newTestE2B(t, fake)

	_, err := e.Create(context.Background(), CreateOpts{Template: "base"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "rate limit exceeded", apiErr.Message)
}

func TestE2BCloseTreatsNotFoundAsGone(t *testing.T) {
	fake := &fakeE2B{killCode: http.StatusNotFound}
	e := newTestE2B(t, fake)

	sess, err := e.Create(context.Background(), CreateOpts{})
	require.NoError(t, err)
	assert.NoError(t, sess.Close(context.Background()))
}

func TestE2BCloseFailure(t *testing.T) {
	fake := &fakeE2B{killCode: http.StatusInternalServerError}
	e := newTestE2B(t, fake)

	sess, err := e.Create(context.Background(), CreateOpts{})
	require.NoError(t, err)
	assert.Error(t, sess.Close(context.Background()))
}

func TestE2BUnreachable(t *testing.T) {
	e, err := NewE2B(E2BOptions{APIKey: "k", APIURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	_, err = e.Create(context.Background(), CreateOpts{})
	assert.Error(t, err)
}

func TestE2BDebugSkipsControlPlane(t *testing.T) {
	e, err := NewE2B(E2BOptions{Debug: true, APIURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	sess, err := e.Create(context.Background(), CreateOpts{})
	require.NoError(t, err)
	assert.Equal(t, debugSandboxID, sess.ID())
	assert.Equal(t, "http://localhost:49999", e.sandboxURL(sess.ID(), "e2b.app"))
	assert.NoError(t, sess.Close(context.Background()))
}

func TestE2BSandboxURL(t *testing.T) {
	e, err := NewE2B(E2BOptions{})
	require.NoError(t, err)
	assert.Equal(t, "https://49999-abc.e2b.app", e.sandboxURL("abc", "e2b.app"))
}

func TestE2BCreateSendsMetadataAndEnvs(t *testing.T) {
	fake := &fakeE2B{}
	e := newTestE2B(t, fake)

	_, err := e.Create(context.Background(), CreateOpts{
		Template: "base",
		Metadata: map[string]string{"request_id": "r1"},
		Envs:     map[string]string{"LANG": "C"},
	})
	require.NoError(t, err)

	req := fake.created[0]
	assert.Nil(t, req.Timeout, "zero lifetime is left to the provider default")
	require.NotNil(t, req.Metadata)
	assert.Equal(t, e2bapi.SandboxMetadata{"request_id": "r1"}, *req.Metadata)
	require.NotNil(t, req.EnvVars)
	assert.Equal(t, e2bapi.EnvVars{"LANG": "C"}, *req.EnvVars)
}

func TestE2BCreateClampsLifetime(t *testing.T) {
	fake := &fakeE2B{}
	e := newTestE2B(t, fake)

	_, err := e.Create(context.Background(), CreateOpts{Timeout: math.MaxInt64})
	require.NoError(t, err)

	require.NotNil(t, fake.created[0].Timeout)
	assert.Equal(t, int32(math.MaxInt32), *fake.created[0].Timeout)
}
