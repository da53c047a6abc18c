package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/blogboost/ranktracker/internal/rank"
)

type trackingRequest struct {
	Keyword    string `json:"keyword"`
	BlogURL    string `json:"blog_url"`
	Title      string `json:"title"`
	ResultSize int    `json:"result_size"`
}

type toggleRequest struct {
	Active bool `json:"active"`
}

func (r trackingRequest) input() rank.TrackingInput {
	return rank.TrackingInput{
		Keyword:    r.Keyword,
		BlogURL:    r.BlogURL,
		Title:      r.Title,
		ResultSize: r.ResultSize,
	}
}

func decodeTrackingRequest(w http.ResponseWriter, r *http.Request) (trackingRequest, bool) {
	var req trackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return req, false
	}
	if strings.TrimSpace(req.Keyword) == "" {
		writeError(w, http.StatusBadRequest, "keyword required")
		return req, false
	}
	if strings.TrimSpace(req.BlogURL) == "" {
		writeError(w, http.StatusBadRequest, "blog_url required")
		return req, false
	}
	return req, true
}

func (s *Server) createTracking(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, ok := decodeTrackingRequest(w, r)
	if !ok {
		return
	}

	// The quota gate and the insert are separate steps; the unique
	// constraint still backstops concurrent creates.
	if err := s.trackings.EnsureCanAdd(r.Context(), owner); err != nil {
		s.writeDomainError(w, err)
		return
	}
	created, err := s.trackings.Create(r.Context(), owner, req.input())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listTrackings(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := s.trackings.List(r.Context(), owner)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trackings": list})
}

func (s *Server) limitStatus(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status, err := s.trackings.LimitStatus(r.Context(), owner)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) getTracking(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := s.ownedRequest(w, r)
	if !ok {
		return
	}
	t, err := s.trackings.Get(r.Context(), owner, id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) updateTracking(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := s.ownedRequest(w, r)
	if !ok {
		return
	}
	req, ok := decodeTrackingRequest(w, r)
	if !ok {
		return
	}
	updated, err := s.trackings.Update(r.Context(), owner, id, req.input())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) toggleTracking(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := s.ownedRequest(w, r)
	if !ok {
		return
	}
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	current, err := s.trackings.Get(r.Context(), owner, id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	// Reactivation competes for a quota slot; pausing never does.
	if req.Active && !current.Active {
		if err := s.trackings.EnsureCanAdd(r.Context(), owner); err != nil {
			s.writeDomainError(w, err)
			return
		}
	}

	updated, err := s.trackings.SetActive(r.Context(), owner, id, req.Active)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteTracking(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := s.ownedRequest(w, r)
	if !ok {
		return
	}
	if err := s.trackings.Delete(r.Context(), owner, id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) trackingRanks(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := s.ownedRequest(w, r)
	if !ok {
		return
	}
	history, err := s.trackings.FindBlogRanks(r.Context(), owner, id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// ownedRequest parses the owner header and tracking id, writing the 400
// itself when either is malformed.
func (s *Server) ownedRequest(w http.ResponseWriter, r *http.Request) (owner, id int64, ok bool) {
	owner, err := ownerFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	id, err = pathID(r, "tracking_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	return owner, id, true
}
