package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/verte-zerg/tuisplit/internal/engine"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("remote", r.RemoteAddr).
			WithField("duration", time.Since(start)).
			Debug("Request handled")
	})
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

// handleAction runs fn and replies with the snapshot taken after it was handled.
func (s *server) handleAction(fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r.Context()); err != nil {
			s.writeActionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
	}
}

func (s *server) handleSelectGroup(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid group id"})
		return
	}
	if err := s.ctrl.SelectGroup(r.Context(), id); err != nil {
		s.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *server) writeActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrStopped):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusRequestTimeout, errorResponse{err.Error()})
	default:
		s.log.WithError(err).Warn("action failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{err.Error()})
	}
}
