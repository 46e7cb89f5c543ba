package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/snarg/ta-engine/internal/store"
)

// RunAPI is the pipeline run representation for API responses.
type RunAPI struct {
	RunID            string     `json:"run_id"`
	ContentHash      string     `json:"content_hash"`
	IdentityHash     string     `json:"identity_hash"`
	RequestedModules []string   `json:"requested_modules"`
	ExecutionOrder   []string   `json:"execution_order"`
	Status           string     `json:"status"`
	RunDir           string     `json:"run_dir"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}

// ModuleRunAPI is the module run representation for API responses.
type ModuleRunAPI struct {
	ModuleName      string  `json:"module_name"`
	Status          string  `json:"status"`
	DurationSeconds float64 `json:"duration_seconds"`
	Reason          *string `json:"reason,omitempty"`
	ErrorType       *string `json:"error_type,omitempty"`
	ErrorMessage    *string `json:"error_message,omitempty"`
}

type RunsHandler struct {
	store *store.Store
}

func NewRunsHandler(st *store.Store) *RunsHandler {
	return &RunsHandler{store: st}
}

func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		WriteError(w, http.StatusServiceUnavailable, "no durable store configured")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			WriteError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	rows, err := h.store.ListPipelineRuns(r.Context(), limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	out := make([]RunAPI, 0, len(rows))
	for _, row := range rows {
		out = append(out, toRunAPI(row))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		WriteError(w, http.StatusServiceUnavailable, "no durable store configured")
		return
	}

	runID := chi.URLParam(r, "runID")
	row, err := h.store.GetPipelineRun(r.Context(), runID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	if row == nil {
		WriteError(w, http.StatusNotFound, "run not found")
		return
	}

	modRows, err := h.store.ListModuleRuns(r.Context(), runID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to load module runs")
		return
	}
	mods := make([]ModuleRunAPI, 0, len(modRows))
	for _, m := range modRows {
		mods = append(mods, ModuleRunAPI{
			ModuleName:      m.ModuleName,
			Status:          m.Status,
			DurationSeconds: m.DurationSeconds,
			Reason:          m.Reason,
			ErrorType:       m.ErrorType,
			ErrorMessage:    m.ErrorMessage,
		})
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"run":         toRunAPI(row),
		"module_runs": mods,
	})
}

func toRunAPI(row *store.PipelineRunRow) RunAPI {
	return RunAPI{
		RunID:            row.RunID,
		ContentHash:      row.ContentHash,
		IdentityHash:     row.IdentityHash,
		RequestedModules: row.RequestedModules,
		ExecutionOrder:   row.ExecutionOrder,
		Status:           row.Status,
		RunDir:           row.RunDir,
		StartedAt:        row.StartedAt,
		FinishedAt:       row.FinishedAt,
	}
}
