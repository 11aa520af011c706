package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/isdmx/codebox/executor"
)

type executeOptions struct {
	MemoryLimitBytes int64   `json:"memoryLimitBytes"`
	CPULimit         float64 `json:"cpuLimit"`
	TimeoutMs        int64   `json:"timeoutMs"`
}

// executeRequest accepts the program input as either "stdin" or "input"
type executeRequest struct {
	Language string          `json:"language"`
	Code     string          `json:"code"`
	Stdin    *string         `json:"stdin"`
	Input    *string         `json:"input"`
	Options  *executeOptions `json:"options"`
}

type executeResponse struct {
	ErrorType string `json:"errorType,omitempty"`
	Message   string `json:"message,omitempty"`
	Output    string `json:"output"`
	executor.Result
	DurationMs int64 `json:"durationMs"`
}

type errorResponse struct {
	ErrorType string `json:"errorType"`
	Message   string `json:"message"`
}

func (r executeRequest) toRequest() executor.Request {
	req := executor.Request{
		Language: r.Language,
		Code:     r.Code,
	}
	switch {
	case r.Stdin != nil:
		req.Stdin = *r.Stdin
	case r.Input != nil:
		req.Stdin = *r.Input
	}
	if r.Options != nil {
		req.Options = executor.Options{
			MemoryLimitBytes: r.Options.MemoryLimitBytes,
			CPULimit:         r.Options.CPULimit,
			Timeout:          time.Duration(r.Options.TimeoutMs) * time.Millisecond,
		}
	}
	return req
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.config.MaxBodyKB)*1024)

	var body executeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, executor.ValidationError, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, executor.ValidationError, "invalid JSON body: "+err.Error())
		return
	}

	result, err := s.executor.Execute(r.Context(), body.toRequest())
	if err != nil {
		kind := executor.KindOf(err)
		message := err.Error()
		var execErr *executor.Error
		if errors.As(err, &execErr) {
			message = execErr.Message
		}

		status := http.StatusInternalServerError
		if kind == executor.ValidationError {
			status = http.StatusBadRequest
		} else {
			s.logger.Error("execution failed", zap.Error(err),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		}
		writeError(w, status, kind, message)
		return
	}

	resp := executeResponse{
		Output:     result.Stdout,
		Result:     result,
		DurationMs: result.Duration.Milliseconds(),
	}
	status := http.StatusOK
	if kind := result.ErrorKind(); kind != "" {
		resp.ErrorType = string(kind)
		resp.Message = result.Message()
		status = http.StatusBadRequest
	}
	if result.CompileFailed {
		resp.Output = result.CompileOutput
	}

	writeJSON(w, status, resp)
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"languages": s.executor.Languages()})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind executor.ErrorKind, message string) {
	writeJSON(w, status, errorResponse{ErrorType: string(kind), Message: message})
}
