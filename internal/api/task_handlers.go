package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) runTask(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "task")
	started, err := s.scheduler.Launch(name)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if !started {
		writeError(w, http.StatusConflict, "task already running")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task": name, "status": "started"})
}

func (s *Server) latestTaskRun(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "task")
	run, err := s.scheduler.Latest(r.Context(), name)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
