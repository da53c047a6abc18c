// Package memory provides in-memory store implementations for tests and
// local development. They mirror the Postgres stores' contracts, including
// uniqueness handling and summary preservation on blog upserts.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/blogboost/ranktracker/internal/rank"
)

type rankEntry struct {
	position int
	blogID   int64
}

// SnapshotStore keeps snapshots, blogs and rank entries in maps.
type SnapshotStore struct {
	mu         sync.RWMutex
	nextSnapID int64
	nextBlogID int64

	snapshots map[int64]rank.Snapshot
	byKeyDate map[string]int64
	blogs     map[int64]rank.Blog
	blogIDs   map[string]int64
	entries   map[int64][]rankEntry
}

// NewSnapshotStore returns an empty in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		snapshots: make(map[int64]rank.Snapshot),
		byKeyDate: make(map[string]int64),
		blogs:     make(map[int64]rank.Blog),
		blogIDs:   make(map[string]int64),
		entries:   make(map[int64][]rankEntry),
	}
}

func keyDate(keyword, date string) string { return keyword + "|" + date }

// Create persists the snapshot and its items, or returns the existing
// snapshot with created=false when the (keyword, date) pair is taken.
func (s *SnapshotStore) Create(_ context.Context, snap rank.Snapshot, items []rank.SearchItem) (rank.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKeyDate[keyDate(snap.Keyword, snap.Date)]; ok {
		return s.snapshots[id], false, nil
	}

	seen := make(map[int]struct{}, len(items))
	for _, item := range items {
		if _, dup := seen[item.Rank]; dup {
			return rank.Snapshot{}, false, fmt.Errorf("duplicate position %d in snapshot", item.Rank)
		}
		seen[item.Rank] = struct{}{}
	}

	now := time.Now().UTC()
	s.nextSnapID++
	stored := snap
	stored.ID = s.nextSnapID
	stored.CreatedAt = now
	s.snapshots[stored.ID] = stored
	s.byKeyDate[keyDate(snap.Keyword, snap.Date)] = stored.ID

	list := make([]rankEntry, 0, len(items))
	for _, item := range items {
		blogID := s.upsertBlog(item, now)
		list = append(list, rankEntry{position: item.Rank, blogID: blogID})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].position < list[j].position })
	s.entries[stored.ID] = list
	return stored, true, nil
}

// upsertBlog overwrites every field except Summary and CreatedAt, matching
// the Postgres ON CONFLICT clause.
func (s *SnapshotStore) upsertBlog(item rank.SearchItem, now time.Time) int64 {
	var content *string
	if item.Content != "" {
		c := item.Content
		content = &c
	}
	fetched := now

	if id, ok := s.blogIDs[item.Link]; ok {
		existing := s.blogs[id]
		existing.Title = item.Title
		existing.Description = item.Description
		existing.AuthorName = item.AuthorName
		existing.AuthorLink = item.AuthorLink
		existing.PostedAt = item.PostedAt
		existing.Content = content
		existing.ResolvedURL = item.ResolvedURL
		existing.FetchedAt = &fetched
		existing.UpdatedAt = now
		s.blogs[id] = existing
		return id
	}

	s.nextBlogID++
	s.blogs[s.nextBlogID] = rank.Blog{
		ID:          s.nextBlogID,
		Link:        item.Link,
		Title:       item.Title,
		Description: item.Description,
		AuthorName:  item.AuthorName,
		AuthorLink:  item.AuthorLink,
		PostedAt:    item.PostedAt,
		Content:     content,
		ResolvedURL: item.ResolvedURL,
		FetchedAt:   &fetched,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.blogIDs[item.Link] = s.nextBlogID
	return s.nextBlogID
}

// ByKeywordDate returns the snapshot for the keyword and date.
func (s *SnapshotStore) ByKeywordDate(_ context.Context, keyword, date string) (rank.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKeyDate[keyDate(keyword, date)]
	if !ok {
		return rank.Snapshot{}, rank.ErrSnapshotNotFound
	}
	return s.snapshots[id], nil
}

// History returns up to limit snapshots for the keyword, newest first.
func (s *SnapshotStore) History(_ context.Context, keyword string, limit int) ([]rank.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 30
	}
	var snaps []rank.Snapshot
	for _, snap := range s.snapshots {
		if snap.Keyword == keyword {
			snaps = append(snaps, snap)
		}
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Date > snaps[j].Date })
	if len(snaps) > limit {
		snaps = snaps[:limit]
	}
	return snaps, nil
}

// Ranked returns the ranked blogs of one snapshot in position order.
func (s *SnapshotStore) Ranked(_ context.Context, snapshotID int64) ([]rank.RankedBlog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.entries[snapshotID]
	ranked := make([]rank.RankedBlog, 0, len(list))
	for _, e := range list {
		ranked = append(ranked, rank.RankedBlog{Position: e.position, Blog: s.blogs[e.blogID]})
	}
	return ranked, nil
}

// BlogByLink returns the blog with the canonical link.
func (s *SnapshotStore) BlogByLink(_ context.Context, link string) (rank.Blog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.blogIDs[link]
	if !ok {
		return rank.Blog{}, rank.ErrBlogNotFound
	}
	return s.blogs[id], nil
}

// BlogRanks returns the observed ranks for one blog under one keyword
// within [fromDate, toDate], newest date first.
func (s *SnapshotStore) BlogRanks(_ context.Context, keyword, link, fromDate, toDate string) ([]rank.DatedRank, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blogID, ok := s.blogIDs[link]
	if !ok {
		return nil, nil
	}

	var snaps []rank.Snapshot
	for _, snap := range s.snapshots {
		if snap.Keyword == keyword && snap.Date >= fromDate && snap.Date <= toDate {
			snaps = append(snaps, snap)
		}
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Date > snaps[j].Date })

	var ranks []rank.DatedRank
	for _, snap := range snaps {
		for _, e := range s.entries[snap.ID] {
			if e.blogID == blogID {
				p := e.position
				ranks = append(ranks, rank.DatedRank{Date: snap.Date, Position: &p})
			}
		}
	}
	return ranks, nil
}

// SetSummary writes the derived summary of a blog; used to verify that
// re-collection preserves it.
func (s *SnapshotStore) SetSummary(link, summary string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.blogIDs[link]
	if !ok {
		return false
	}
	blog := s.blogs[id]
	blog.Summary = &summary
	s.blogs[id] = blog
	return true
}
