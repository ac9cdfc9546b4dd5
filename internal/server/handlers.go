package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/michaelbrown/aether/internal/relay"
	"github.com/michaelbrown/aether/internal/storage"
)

const maxRequestBody = 5 << 20

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// --- Wire types ---

type healthResponse struct {
	Status   string `json:"status"`
	System   string `json:"system"`
	Location string `json:"location"`
}

type executeRequest struct {
	Code    *string `json:"code"`
	Timeout *int    `json:"timeout"`
}

type executeSuccess struct {
	Status    string `json:"status"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	SandboxID string `json:"sandbox_id"`
}

type executeFailure struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// validate returns the code and timeout of a well-formed request.
func (req executeRequest) validate() (string, int, error) {
	if req.Code == nil {
		return "", 0, errors.New("code: field required")
	}
	timeout := 0
	if req.Timeout != nil {
		if *req.Timeout < 0 {
			return "", 0, fmt.Errorf("timeout: must be >= 0, got %d", *req.Timeout)
		}
		timeout = *req.Timeout
	}
	return *req.Code, timeout, nil
}

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, s.health)
}

// --- Execute ---

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeDetail(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeDetail(w, http.StatusUnprocessableEntity, "body: field required")
		default:
			writeDetail(w, http.StatusUnprocessableEntity, "invalid JSON: "+err.Error())
		}
		return
	}

	code, timeout, err := req.validate()
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	out, err := s.execute(r.Context(), r, "http", relay.Request{Code: code, Timeout: timeout})
	writeJSON(w, http.StatusOK, envelope(out, err))
}

// envelope maps a relay outcome onto the wire result.
func envelope(out *relay.Output, err error) any {
	if err != nil {
		return executeFailure{Status: "error", Message: err.Error()}
	}
	return executeSuccess{
		Status:    "success",
		Stdout:    out.Stdout,
		Stderr:    out.Stderr,
		SandboxID: out.SandboxID,
	}
}

// execute relays one request and records it in the history store when one is
// configured.
func (s *Server) execute(ctx context.Context, r *http.Request, transport string, req relay.Request) (*relay.Output, error) {
	ctx = relay.WithRequestID(ctx, middleware.GetReqID(r.Context()))

	start := time.Now()
	out, err := s.relay.Execute(ctx, req)

	if s.store != nil {
		s.record(ctx, r, transport, req, start, out, err)
	}
	return out, err
}

func (s *Server) record(ctx context.Context, r *http.Request, transport string, req relay.Request, start time.Time, out *relay.Output, err error) {
	rec := &storage.Execution{
		ID:         uuid.New().String(),
		Status:     storage.StatusSuccess,
		CodeBytes:  len(req.Code),
		Timeout:    req.Timeout,
		RemoteAddr: r.RemoteAddr,
		Transport:  transport,
		StartedAt:  start.UTC(),
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		rec.Status = storage.StatusError
		rec.Message = err.Error()
		var execErr *relay.ExecutionError
		if errors.As(err, &execErr) {
			rec.Stage = string(execErr.Stage)
			rec.SandboxID = execErr.SandboxID
		}
	} else {
		rec.SandboxID = out.SandboxID
		rec.StdoutBytes = len(out.Stdout)
		rec.StderrBytes = len(out.Stderr)
	}

	if err := s.store.RecordExecution(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn().Err(err).Str("execution_id", rec.ID).Msg("Failed to record execution")
	}
}

// --- History ---

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeDetail(w, http.StatusNotFound, "execution history is disabled")
		return
	}

	opts := storage.ListOptions{}
	if status := r.URL.Query().Get("status"); status != "" {
		opts.Status = storage.ExecutionStatus(status)
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			opts.Limit = n
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil {
			opts.Offset = n
		}
	}

	executions, err := s.store.ListExecutions(r.Context(), opts)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	if executions == nil {
		executions = []storage.Execution{}
	}
	writeJSON(w, http.StatusOK, executions)
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeDetail(w, http.StatusNotFound, "execution history is disabled")
		return
	}

	id := chi.URLParam(r, "id")
	e, err := s.store.GetExecution(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, "execution not found")
		} else {
			writeDetail(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, e)
}

// --- Sandboxes ---

func (s *Server) handleListSandboxes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"count":     s.sessions.Count(),
		"sandboxes": s.sessions.IDs(),
	})
}
