package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/blogboost/ranktracker/internal/rank"
)

const (
	defaultHistoryLimit = 30
	maxHistoryLimit     = 90
)

type collectRequest struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

type snapshotResponse struct {
	Snapshot rank.Snapshot     `json:"snapshot"`
	Blogs    []rank.RankedBlog `json:"blogs"`
}

func (s *Server) collectKeyword(w http.ResponseWriter, r *http.Request) {
	var req collectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Keyword) == "" {
		writeError(w, http.StatusBadRequest, "keyword required")
		return
	}

	result, err := s.collector.CollectRanks(r.Context(), req.Keyword, req.Count)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))
	if keyword == "" {
		writeError(w, http.StatusBadRequest, "keyword query parameter required")
		return
	}
	date := r.URL.Query().Get("date")
	if date != "" {
		if _, err := time.Parse(rank.DateLayout, date); err != nil {
			writeError(w, http.StatusBadRequest, "date must be formatted YYYY-MM-DD")
			return
		}
	}

	snap, blogs, err := s.collector.SnapshotForDate(r.Context(), keyword, date)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse{Snapshot: snap, Blogs: blogs})
}

func (s *Server) getSnapshotHistory(w http.ResponseWriter, r *http.Request) {
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))
	if keyword == "" {
		writeError(w, http.StatusBadRequest, "keyword query parameter required")
		return
	}
	limit, err := limitParam(r, defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snapshots, err := s.collector.History(r.Context(), keyword, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keyword": keyword, "snapshots": snapshots})
}

func limitParam(r *http.Request, def, max int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	if limit > max {
		limit = max
	}
	return limit, nil
}
