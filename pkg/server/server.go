// Package server exposes a flow engine over HTTP.
//
// The handler wraps an Engine and registers REST routes on a gorilla/mux
// router. Run creation can execute synchronously or be submitted for a
// worker to pick up later.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hboehmer-IW/prefect/pkg/api"
	"github.com/hboehmer-IW/prefect/pkg/worker"
)

// Handler handles flow engine API requests.
type Handler struct {
	engine api.Engine
	worker *worker.Worker
	logger *slog.Logger
}

// New creates a Handler serving the given engine. logger may be nil, in which
// case slog.Default() is used.
func New(engine api.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine: engine,
		logger: logger,
	}
}

// SetWorker attaches a worker so that scheduled run requests are enqueued
// for asynchronous execution. Without a worker, scheduled runs are only
// persisted; something else must call RunScheduled.
func (h *Handler) SetWorker(w *worker.Worker) {
	h.worker = w
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/flows/{name}/runs", h.CreateRun).Methods("POST")
	r.HandleFunc("/runs", h.ListRuns).Methods("GET")
	r.HandleFunc("/runs/{id}", h.GetRun).Methods("GET")
	r.HandleFunc("/runs/{id}/events", h.ListRunEvents).Methods("GET")
	r.HandleFunc("/runs/{id}/retry", h.RetryRun).Methods("POST")
	r.HandleFunc("/runs/{id}/cancel", h.CancelRun).Methods("POST")
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// runJSON is the wire representation of a flow run.
type runJSON struct {
	ID       string `json:"id"`
	FlowName string `json:"flow_name"`

	State        string `json:"state"`
	StateMessage string `json:"state_message,omitempty"`

	Parameters any    `json:"parameters,omitempty"`
	Output     any    `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`

	RunCount       int     `json:"run_count"`
	TotalRunTimeMS float64 `json:"total_run_time_ms"`

	StartTime              *time.Time `json:"start_time,omitempty"`
	EndTime                *time.Time `json:"end_time,omitempty"`
	ExpectedStartTime      *time.Time `json:"expected_start_time,omitempty"`
	NextScheduledStartTime *time.Time `json:"next_scheduled_start_time,omitempty"`

	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

func toRunJSON(run *api.FlowRun) runJSON {
	out := runJSON{
		ID:                     run.ID,
		FlowName:               run.FlowName,
		State:                  string(run.StateType),
		Parameters:             run.Parameters,
		Output:                 run.Output,
		RunCount:               run.RunCount,
		TotalRunTimeMS:         float64(run.TotalRunTime) / float64(time.Millisecond),
		StartTime:              run.StartTime,
		EndTime:                run.EndTime,
		ExpectedStartTime:      run.ExpectedStartTime,
		NextScheduledStartTime: run.NextScheduledStartTime,
		Created:                run.Created,
		Updated:                run.Updated,
	}
	if run.State != nil {
		out.StateMessage = run.State.Message
	}
	if run.Err != nil {
		out.Error = run.Err.Error()
	}
	return out
}

type eventJSON struct {
	RunID    string    `json:"run_id"`
	At       time.Time `json:"at"`
	Type     string    `json:"type"`
	FlowName string    `json:"flow_name,omitempty"`
	Attempt  int       `json:"attempt,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

type createRunRequest struct {
	Parameters any `json:"parameters"`

	// ScheduledAt, if set, submits the run instead of executing it
	// immediately.
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encoding response", slog.Any("error", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps engine errors onto HTTP statuses via the api sentinels.
func statusFor(err error) int {
	switch {
	case errors.Is(err, api.ErrFlowNotFound), errors.Is(err, api.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, api.ErrRunStateConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// CreateRun starts a run of a registered flow. With "scheduled_at" in the
// body the run is submitted in SCHEDULED state (and handed to the worker if
// one is attached); otherwise it executes synchronously, retries included.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req createRunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
			return
		}
	}

	if req.ScheduledAt != nil {
		run, err := h.engine.Submit(r.Context(), name, req.Parameters, *req.ScheduledAt)
		if err != nil {
			h.writeError(w, statusFor(err), err)
			return
		}
		if h.worker != nil {
			if err := h.worker.EnqueueStartRunAt(r.Context(), run.ID, *req.ScheduledAt); err != nil {
				h.logger.Error("enqueueing scheduled run",
					slog.String("run_id", run.ID), slog.Any("error", err))
			}
		}
		h.writeJSON(w, http.StatusAccepted, toRunJSON(run))
		return
	}

	run, err := h.engine.Run(r.Context(), name, req.Parameters)
	if err != nil {
		if run != nil {
			// The run executed and failed; report its final state rather
			// than a bare error.
			h.writeJSON(w, http.StatusOK, toRunJSON(run))
			return
		}
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toRunJSON(run))
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	filter := api.RunFilter{
		FlowName:  r.URL.Query().Get("flow"),
		StateType: api.StateType(r.URL.Query().Get("state")),
	}

	runs, err := h.engine.ListRuns(r.Context(), filter)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]runJSON, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunJSON(run))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	run, err := h.engine.GetRun(r.Context(), id)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusOK, toRunJSON(run))
}

func (h *Handler) ListRunEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	events, err := h.engine.ListEvents(r.Context(), id)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}

	out := make([]eventJSON, 0, len(events))
	for _, ev := range events {
		out = append(out, eventJSON{
			RunID:    ev.RunID,
			At:       ev.At,
			Type:     string(ev.Type),
			FlowName: ev.FlowName,
			Attempt:  ev.Attempt,
			Detail:   ev.Detail,
		})
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) RetryRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	run, err := h.engine.RetryRun(r.Context(), id)
	if err != nil {
		if run != nil {
			// Retried and failed again.
			h.writeJSON(w, http.StatusOK, toRunJSON(run))
			return
		}
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusOK, toRunJSON(run))
}

func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	run, err := h.engine.Cancel(r.Context(), id)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusOK, toRunJSON(run))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
