package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/blogboost/ranktracker/internal/rank"
)

// TrackingStore keeps tracking subscriptions in a map.
type TrackingStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]rank.Tracking
	unique map[string]int64
}

// NewTrackingStore returns an empty in-memory tracking store.
func NewTrackingStore() *TrackingStore {
	return &TrackingStore{
		rows:   make(map[int64]rank.Tracking),
		unique: make(map[string]int64),
	}
}

func uniqueKey(t rank.Tracking) string {
	return strconv.FormatInt(t.OwnerID, 10) + "|" + t.Keyword + "|" + t.BlogURL
}

// Create inserts a new subscription, enforcing the (owner, keyword, url)
// uniqueness the database constraint provides.
func (s *TrackingStore) Create(_ context.Context, t rank.Tracking) (rank.Tracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.unique[uniqueKey(t)]; ok {
		return rank.Tracking{}, rank.ErrDuplicateTracking
	}

	now := time.Now().UTC()
	s.nextID++
	t.ID = s.nextID
	t.CreatedAt = now
	t.UpdatedAt = now
	s.rows[t.ID] = t
	s.unique[uniqueKey(t)] = t.ID
	return t, nil
}

// Get returns the subscription by id.
func (s *TrackingStore) Get(_ context.Context, id int64) (rank.Tracking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.rows[id]
	if !ok {
		return rank.Tracking{}, rank.ErrTrackingNotFound
	}
	return t, nil
}

// ListByOwner returns every subscription of one owner, newest first.
func (s *TrackingStore) ListByOwner(_ context.Context, ownerID int64) ([]rank.Tracking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []rank.Tracking
	for _, t := range s.rows {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// CountActiveByOwner counts the owner's active subscriptions.
func (s *TrackingStore) CountActiveByOwner(_ context.Context, ownerID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.rows {
		if t.OwnerID == ownerID && t.Active {
			n++
		}
	}
	return n, nil
}

// SetActive flips the active flag.
func (s *TrackingStore) SetActive(_ context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.rows[id]
	if !ok {
		return rank.ErrTrackingNotFound
	}
	t.Active = active
	t.UpdatedAt = time.Now().UTC()
	s.rows[id] = t
	return nil
}

// Update overwrites the mutable fields of an existing subscription.
func (s *TrackingStore) Update(_ context.Context, t rank.Tracking) (rank.Tracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.rows[t.ID]
	if !ok {
		return rank.Tracking{}, rank.ErrTrackingNotFound
	}

	updated := existing
	updated.Keyword = t.Keyword
	updated.BlogURL = t.BlogURL
	updated.Title = t.Title
	updated.ResultSize = t.ResultSize
	if id, taken := s.unique[uniqueKey(updated)]; taken && id != t.ID {
		return rank.Tracking{}, rank.ErrDuplicateTracking
	}
	updated.UpdatedAt = time.Now().UTC()

	delete(s.unique, uniqueKey(existing))
	s.unique[uniqueKey(updated)] = updated.ID
	s.rows[t.ID] = updated
	return updated, nil
}

// Delete removes the subscription.
func (s *TrackingStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.rows[id]
	if !ok {
		return rank.ErrTrackingNotFound
	}
	delete(s.unique, uniqueKey(t))
	delete(s.rows, id)
	return nil
}

// ActiveKeywordsForOwners returns the distinct active keywords across the
// given owners, sorted ascending.
func (s *TrackingStore) ActiveKeywordsForOwners(_ context.Context, ownerIDs []int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owners := make(map[int64]struct{}, len(ownerIDs))
	for _, id := range ownerIDs {
		owners[id] = struct{}{}
	}
	set := make(map[string]struct{})
	for _, t := range s.rows {
		if !t.Active {
			continue
		}
		if _, ok := owners[t.OwnerID]; !ok {
			continue
		}
		set[t.Keyword] = struct{}{}
	}
	keywords := make([]string, 0, len(set))
	for k := range set {
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)
	if len(keywords) == 0 {
		return nil, nil
	}
	return keywords, nil
}

// TouchCollected stamps last_collected_at on every active subscription for
// the keyword.
func (s *TrackingStore) TouchCollected(_ context.Context, keyword string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.rows {
		if t.Keyword == keyword && t.Active {
			stamp := at
			t.LastCollectedAt = &stamp
			t.UpdatedAt = time.Now().UTC()
			s.rows[id] = t
		}
	}
	return nil
}
