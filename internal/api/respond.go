package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kalambet/claritydesk/internal/classify"
	"github.com/kalambet/claritydesk/internal/intake"
	"github.com/kalambet/claritydesk/internal/orchestrator"
	"github.com/kalambet/claritydesk/internal/records"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

// classifiedBody is the error envelope extended with the classified fields.
type classifiedBody struct {
	Message  string            `json:"message"`
	Type     string            `json:"type"`
	Category classify.Category `json:"category"`
	Title    string            `json:"title"`
	Detail   string            `json:"detail"`
	Trace    string            `json:"trace"`
}

func classified(ce *classify.Error) classifiedBody {
	errType := "generation_error"
	if ce.Category == classify.SyncInterruption {
		errType = "sync_interrupted"
	}
	return classifiedBody{
		Message:  ce.Error(),
		Type:     errType,
		Category: ce.Category,
		Title:    ce.Title,
		Detail:   ce.Detail,
		Trace:    ce.Trace,
	}
}

// writeFailure maps orchestrator errors to HTTP responses. record, when
// non-nil, is the failed record to include alongside a classified error.
func writeFailure(w http.ResponseWriter, err error, record any) {
	var ce *classify.Error
	switch {
	case errors.As(err, &ce):
		body := map[string]any{"error": classified(ce)}
		if record != nil {
			body["record"] = record
		}
		writeJSON(w, http.StatusBadGateway, body)
	case errors.Is(err, intake.ErrInvalidInput):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, orchestrator.ErrBusy):
		httpError(w, http.StatusConflict, "busy", "%v", err)
	case errors.Is(err, orchestrator.ErrNothingToRetry):
		httpError(w, http.StatusConflict, "nothing_to_retry", "%v", err)
	case errors.Is(err, records.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}
