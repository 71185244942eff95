// Package api exposes the orchestrator to UIs: a bearer-authenticated HTTP
// API and an MCP tool server.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/claritydesk/internal/intake"
	"github.com/kalambet/claritydesk/internal/orchestrator"
	"github.com/kalambet/claritydesk/internal/records"
)

const maxIntakeBodySize = 20 << 20 // 20MB, photos are inlined as base64

// Service is the orchestrator surface the UI boundary calls into.
type Service interface {
	SubmitTechnical(ctx context.Context, in intake.TechnicalInput) (records.TechnicalRecord, error)
	SubmitStrategic(ctx context.Context, in intake.StrategicInput) (records.StrategicRecord, error)
	Retry(ctx context.Context) (records.Entry, error)
	Dismiss()
	SyncQueue(ctx context.Context) (orchestrator.SyncResult, error)
	Delete(v records.Variant, id string) error

	State() orchestrator.State
	CanRetry() bool
	Merged() []records.Entry
	Technical(id string) (records.TechnicalRecord, error)
	Strategic(id string) (records.StrategicRecord, error)
}

type AppDeps struct {
	Service Service
	Token   string
	// Metrics, when set, is served unauthenticated at /metrics.
	Metrics http.Handler
	// BaseContext bounds work that outlives the request, such as a queue
	// sync. Nil means context.Background.
	BaseContext context.Context
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	orchestrator.State
	CanRetry        bool     `json:"can_retry"`
	LoadingMessages []string `json:"loading_messages,omitempty"`
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/status", handleStatus(deps))
		r.Post("/reports", handleSubmitTechnical(deps))
		r.Post("/judgments", handleSubmitStrategic(deps))
		r.Post("/retry", handleRetry(deps))
		r.Post("/error/dismiss", handleDismiss(deps))
		r.Post("/sync", handleSync(deps))
		r.Get("/records", handleListRecords(deps))
		r.Get("/records/{variant}/{id}", handleGetRecord(deps))
		r.Delete("/records/{variant}/{id}", handleDeleteRecord(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusOf(svc Service) StatusResponse {
	st := svc.State()
	resp := StatusResponse{State: st, CanRetry: svc.CanRetry()}
	if st.Status == orchestrator.StatusLoading {
		resp.LoadingMessages = orchestrator.LoadingMessages
	}
	return resp
}

func handleStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statusOf(deps.Service))
	}
}

// validatable is implemented by both intake payloads.
type validatable interface {
	Validate() error
}

func decodeIntake[T any, PT interface {
	*T
	validatable
}](w http.ResponseWriter, r *http.Request) (T, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxIntakeBodySize)
	defer r.Body.Close()

	var in T
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return in, false
	}
	if err := PT(&in).Validate(); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return in, false
	}
	return in, true
}

// submitCode is 201 for a completed record and 202 for one queued offline.
func submitCode(s records.Status) int {
	if s == records.StatusPending {
		return http.StatusAccepted
	}
	return http.StatusCreated
}

func handleSubmitTechnical(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := decodeIntake[intake.TechnicalInput](w, r)
		if !ok {
			return
		}
		rec, err := deps.Service.SubmitTechnical(r.Context(), in)
		if err != nil {
			var failed any
			if rec.ID != "" {
				failed = rec
			}
			writeFailure(w, err, failed)
			return
		}
		writeJSON(w, submitCode(rec.Status), rec)
	}
}

func handleSubmitStrategic(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := decodeIntake[intake.StrategicInput](w, r)
		if !ok {
			return
		}
		rec, err := deps.Service.SubmitStrategic(r.Context(), in)
		if err != nil {
			var failed any
			if rec.ID != "" {
				failed = rec
			}
			writeFailure(w, err, failed)
			return
		}
		writeJSON(w, submitCode(rec.Status), rec)
	}
}

func handleRetry(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := deps.Service.Retry(r.Context())
		if err != nil {
			var failed any
			if entry.ID != "" {
				failed = entry
			}
			writeFailure(w, err, failed)
			return
		}
		writeJSON(w, submitCode(entry.Status), entry)
	}
}

func handleDismiss(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Service.Dismiss()
		writeJSON(w, http.StatusOK, statusOf(deps.Service))
	}
}

func handleSync(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// A client that hangs up mid-sync must not interrupt the queue;
		// only daemon shutdown does.
		ctx, cancel := detach(r.Context(), deps.BaseContext)
		defer cancel()
		res, err := deps.Service.SyncQueue(ctx)
		if err != nil {
			writeFailure(w, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// detach returns a context carrying ctx's values that is cancelled only
// when base is.
func detach(ctx, base context.Context) (context.Context, context.CancelFunc) {
	if base == nil {
		base = context.Background()
	}
	out, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(base, cancel)
	return out, func() {
		stop()
		cancel()
	}
}

func handleListRecords(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := deps.Service.Merged()
		if v := r.URL.Query().Get("type"); v != "" {
			variant, err := records.ParseVariant(v)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			filtered := entries[:0]
			for _, e := range entries {
				if e.Variant == variant {
					filtered = append(filtered, e)
				}
			}
			entries = filtered
		}
		if entries == nil {
			entries = []records.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleGetRecord(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variant, err := records.ParseVariant(chi.URLParam(r, "variant"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		id := chi.URLParam(r, "id")

		var rec any
		switch variant {
		case records.Technical:
			rec, err = deps.Service.Technical(id)
		case records.Strategic:
			rec, err = deps.Service.Strategic(id)
		}
		if err != nil {
			writeFailure(w, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleDeleteRecord(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variant, err := records.ParseVariant(chi.URLParam(r, "variant"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err := deps.Service.Delete(variant, chi.URLParam(r, "id")); err != nil {
			writeFailure(w, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}
