package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"vizgen/internal/infra"
	"vizgen/internal/jobs"
	"vizgen/internal/storage"
)

// App bundles the request handlers with their long-lived dependencies. It is
// constructed once at startup and passed to the router; tests build isolated
// instances.
type App struct {
	Store        *jobs.Store
	Orchestrator *jobs.Orchestrator
	Library      *storage.Library
	JobTTL       time.Duration
	Logger       infra.Logger
}

func NewApp(store *jobs.Store, orch *jobs.Orchestrator, lib *storage.Library, jobTTL time.Duration, logger infra.Logger) *App {
	if jobTTL <= 0 {
		jobTTL = jobs.DefaultMaxAge
	}
	return &App{
		Store:        store,
		Orchestrator: orch,
		Library:      lib,
		JobTTL:       jobTTL,
		Logger:       logger,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]string{"error": kind, "message": message})
}

// Health reports liveness.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
