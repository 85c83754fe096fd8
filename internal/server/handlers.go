package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/michaelbrown/pyexec/internal/executor"
	"github.com/michaelbrown/pyexec/internal/storage"
)

// DegradedHeader is set on responses whose script ran without isolation.
const DegradedHeader = "X-Sandbox-Degraded"

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// isJSON accepts application/json and application/*+json, parameters allowed.
func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" ||
		(strings.HasPrefix(mt, "application/") && strings.HasSuffix(mt, "+json"))
}

// --- Execution ---

// outcome is one finished request: the status and body to send back.
type outcome struct {
	status   int
	body     any
	degraded bool
}

// run decodes a submission body and pushes it through the pipeline.
func (s *Server) run(body []byte) outcome {
	script, err := executor.DecodeSubmission(body)
	if err == nil {
		var resp *executor.Response
		resp, err = s.pipeline.Execute(s.runCtx, script)
		if err == nil {
			return outcome{status: http.StatusOK, body: resp, degraded: resp.Degraded}
		}
	}
	e := executor.AsError(err)
	return outcome{status: e.Kind.HTTPStatus(), body: e, degraded: e.Degraded}
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if !isJSON(r.Header.Get("Content-Type")) {
		e := executor.InputError(executor.MsgNotJSON)
		writeJSON(w, e.Kind.HTTPStatus(), e)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		e := executor.InputError(executor.MsgInvalidJSON)
		writeJSON(w, e.Kind.HTTPStatus(), e)
		return
	}

	out := s.run(body)
	if out.degraded {
		w.Header().Set(DegradedHeader, "true")
	}
	writeJSON(w, out.status, out.body)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Audit log ---

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "execution log disabled")
		return
	}

	q := r.URL.Query()
	opts := storage.ExecutionListOptions{
		Status:       storage.ExecutionStatus(q.Get("status")),
		DegradedOnly: q.Get("degraded") == "true",
	}
	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			opts.Limit = n
		}
	}
	if offset := q.Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil {
			opts.Offset = n
		}
	}

	execs, err := s.store.ListExecutions(r.Context(), opts)
	if err != nil {
		s.logger.Error("listing executions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}

	if execs == nil {
		execs = []storage.Execution{}
	}
	writeJSON(w, http.StatusOK, execs)
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "execution log disabled")
		return
	}

	exec, err := s.store.GetExecution(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "execution not found")
		case errors.Is(err, storage.ErrAmbiguous):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("loading execution failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load execution")
		}
		return
	}

	writeJSON(w, http.StatusOK, exec)
}
