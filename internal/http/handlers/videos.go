package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vizgen/internal/storage"
)

// DownloadVideo streams a rendered artifact to the caller.
func (a *App) DownloadVideo(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	f, err := a.Library.Open(filename)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "video not found")
			return
		}
		if errors.Is(err, storage.ErrInvalidFilename) {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid filename")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to open video")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to read video")
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	http.ServeContent(w, r, filename, info.ModTime(), f)
}

// DeleteVideo removes a rendered artifact together with its scene directory.
func (a *App) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if err := a.Library.Remove(filename); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "video not found")
			return
		}
		if errors.Is(err, storage.ErrInvalidFilename) {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid filename")
			return
		}
		a.Logger.Error().Err(err).Str("filename", filename).Msg("handlers: video deletion failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete video")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "message": "video deleted"})
}
