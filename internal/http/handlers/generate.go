package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vizgen/internal/jobs"
)

type jobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type jobStatusResponse struct {
	Status string       `json:"status"`
	Result *jobs.Result `json:"result"`
	Error  string       `json:"error,omitempty"`
}

// Generate accepts a visualization request, schedules the background job and
// returns its identifier immediately.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	var req jobs.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := req.Validate(); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	id := a.Orchestrator.Submit(req)
	a.Logger.Info().Str("job_id", id).Str("query", req.Query).Msg("handlers: scheduled visualization job")
	a.json(w, http.StatusAccepted, jobResponse{JobID: id, Status: string(jobs.StatusPending)})
}

// JobStatus reports the current state of a job, evicting stale entries first.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	a.Store.EvictStale(a.JobTTL)

	id := chi.URLParam(r, "job_id")
	job, ok := a.Store.Get(id)
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	a.json(w, http.StatusOK, jobStatusResponse{
		Status: string(job.Status),
		Result: job.Result,
		Error:  job.Error,
	})
}
