package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/michaelbrown/aether/internal/sandbox/e2bapi"
)

const (
	codeInterpreterPort = 49999
	debugSandboxID      = "debug_sandbox_id"
	maxErrorBody        = 4 << 10
	maxEventSize        = 32 << 20
)

// E2BOptions configures the E2B client.
type E2BOptions struct {
	APIKey         string
	APIURL         string        // control plane, e.g. https://api.e2b.app
	Domain         string        // sandbox domain, e.g. e2b.app
	RequestTimeout time.Duration // upper bound on one RunCode call; 0 means none
	Debug          bool          // talk to a code interpreter on localhost:49999
	HTTPClient     *http.Client
}

// APIError is a non-2xx response from E2B.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: e2b returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: e2b returned status %d: %s", e.Op, e.StatusCode, e.Message)
}

// E2B opens sandboxes on the E2B platform and runs code through the code
// interpreter that the template starts inside each sandbox.
type E2B struct {
	opts E2BOptions
	http *http.Client // code interpreter traffic
	api  e2bapi.ClientWithResponsesInterface

	// sandboxURL returns the base URL of the code interpreter for a sandbox.
	sandboxURL func(sandboxID, domain string) string
}

// NewE2B creates an E2B provider.
func NewE2B(opts E2BOptions) (*E2B, error) {
	if opts.APIURL == "" {
		opts.APIURL = "https://api.e2b.app"
	}
	if opts.Domain == "" {
		opts.Domain = "e2b.app"
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	api, err := e2bapi.NewClientWithResponses(opts.APIURL,
		e2bapi.WithHTTPClient(hc),
		e2bapi.WithRequestEditorFn(func(_ context.Context, req *http.Request) error {
			req.Header.Set("X-API-KEY", opts.APIKey)
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("creating e2b api client: %w", err)
	}

	e := &E2B{opts: opts, http: hc, api: api}
	e.sandboxURL = func(sandboxID, domain string) string {
		if e.opts.Debug {
			return fmt.Sprintf("http://localhost:%d", codeInterpreterPort)
		}
		return fmt.Sprintf("https://%d-%s.%s", codeInterpreterPort, sandboxID, domain)
	}
	return e, nil
}

func (e *E2B) Create(ctx context.Context, opts CreateOpts) (Session, error) {
	if e.opts.Debug {
		return &e2bSession{client: e, id: debugSandboxID, domain: e.opts.Domain}, nil
	}

	body := e2bapi.NewSandbox{TemplateID: opts.Template}
	if secs := opts.Timeout / time.Second; secs > 0 {
		timeout := int32(min(secs, math.MaxInt32))
		body.Timeout = &timeout
	}
	if len(opts.Metadata) > 0 {
		md := e2bapi.SandboxMetadata(opts.Metadata)
		body.Metadata = &md
	}
	if len(opts.Envs) > 0 {
		envs := e2bapi.EnvVars(opts.Envs)
		body.EnvVars = &envs
	}

	resp, err := e.api.PostSandboxesWithResponse(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("creating sandbox: %w", err)
	}
	created := resp.JSON201
	if created == nil {
		return nil, newAPIError("creating sandbox", resp.StatusCode(), resp.Body)
	}
	if created.SandboxID == "" {
		return nil, errors.New("creating sandbox: e2b returned no sandbox id")
	}

	domain := e.opts.Domain
	if created.Domain != nil && *created.Domain != "" {
		domain = *created.Domain
	}
	var token string
	if created.EnvdAccessToken != nil {
		token = *created.EnvdAccessToken
	}

	return &e2bSession{
		client:      e,
		id:          created.SandboxID,
		accessToken: token,
		domain:      domain,
	}, nil
}

type e2bSession struct {
	client      *E2B
	id          string
	accessToken string
	domain      string

	closeOnce sync.Once
	closeErr  error
}

func (s *e2bSession) ID() string { return s.id }

type executeRequest struct {
	Code     string            `json:"code"`
	Language string            `json:"language,omitempty"`
	EnvVars  map[string]string `json:"env_vars,omitempty"`
}

// executeEvent is one line of the code interpreter's NDJSON stream.
type executeEvent struct {
	Type           string `json:"type"`
	Text           string `json:"text"`
	Name           string `json:"name"`
	Value          string `json:"value"`
	Traceback      string `json:"traceback"`
	ExecutionCount int    `json:"execution_count"`
}

func (s *e2bSession) RunCode(ctx context.Context, code string, opts RunOpts) (*Execution, error) {
	if timeout := s.client.opts.RequestTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body, err := json.Marshal(executeRequest{Code: code, Language: opts.Language, EnvVars: opts.Envs})
	if err != nil {
		return nil, fmt.Errorf("encoding execute request: %w", err)
	}

	url := s.client.sandboxURL(s.id, s.domain) + "/execute"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.accessToken != "" {
		req.Header.Set("X-Access-Token", s.accessToken)
	}

	resp, err := s.client.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("running code in sandbox %s: %w", s.id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadGateway {
		return nil, fmt.Errorf("sandbox %s is not reachable: it may have timed out", s.id)
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, newAPIError("running code", resp.StatusCode, data)
	}

	exec := &Execution{Logs: Logs{Stdout: []string{}, Stderr: []string{}}}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxEventSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var ev executeEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("decoding execution event: %w", err)
		}

		switch ev.Type {
		case "stdout":
			exec.Logs.Stdout = append(exec.Logs.Stdout, ev.Text)
			if opts.OnStdout != nil {
				opts.OnStdout(ev.Text)
			}
		case "stderr":
			exec.Logs.Stderr = append(exec.Logs.Stderr, ev.Text)
			if opts.OnStderr != nil {
				opts.OnStderr(ev.Text)
			}
		case "error":
			exec.Error = &ExecutionError{Name: ev.Name, Value: ev.Value, Traceback: ev.Traceback}
		case "number_of_executions":
			exec.ExecutionCount = ev.ExecutionCount
		case "unexpected_end_of_execution":
			return nil, fmt.Errorf("execution in sandbox %s ended unexpectedly", s.id)
		case "end_of_execution":
			return exec, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading execution stream: %w", err)
	}
	return exec, nil
}

func (s *e2bSession) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if s.client.opts.Debug {
			return
		}
		s.closeErr = s.client.kill(ctx, s.id)
	})
	return s.closeErr
}

func (e *E2B) kill(ctx context.Context, sandboxID string) error {
	resp, err := e.api.DeleteSandboxesSandboxIDWithResponse(ctx, sandboxID)
	if err != nil {
		return fmt.Errorf("killing sandbox %s: %w", sandboxID, err)
	}

	switch resp.StatusCode() {
	case http.StatusNoContent, http.StatusOK, http.StatusNotFound:
		// 404: already gone (timed out on the provider side)
		return nil
	default:
		return newAPIError("killing sandbox "+sandboxID, resp.StatusCode(), resp.Body)
	}
}

func newAPIError(op string, status int, data []byte) error {
	if len(data) > maxErrorBody {
		data = data[:maxErrorBody]
	}

	var payload e2bapi.Error
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &payload) == nil && payload.Message != "" {
		msg = payload.Message
	}
	return &APIError{Op: op, StatusCode: status, Message: msg}
}
