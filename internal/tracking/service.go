// Package tracking implements user keyword tracking subscriptions:
// creation with first-day snapshot seeding, quota checks against the
// billing grant, and windowed rank-history reconstruction.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/blogboost/ranktracker/internal/rank"
)

// Config controls registry behavior.
type Config struct {
	// Timezone defines the calendar day for the history window. Nil means UTC.
	Timezone *time.Location
	// HistoryDays is the rank-history window length, today included.
	HistoryDays int
	// DefaultSize is the result size applied when a subscription omits one.
	DefaultSize int
}

// Deps are the collaborators of the tracking registry. Cache is optional.
type Deps struct {
	Store     rank.TrackingStore
	Snapshots rank.SnapshotStore
	Collector rank.Collector
	Billing   rank.BillingClient
	Cache     rank.HistoryCache
	Clock     rank.Clock
}

// Service implements the tracking registry.
type Service struct {
	cfg       Config
	store     rank.TrackingStore
	snapshots rank.SnapshotStore
	collector rank.Collector
	billing   rank.BillingClient
	cache     rank.HistoryCache
	clock     rank.Clock
	logger    *zap.Logger
}

// New constructs the tracking registry.
func New(cfg Config, deps Deps, logger *zap.Logger) *Service {
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 7
	}
	if cfg.DefaultSize <= 0 {
		cfg.DefaultSize = rank.DefaultResultSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:       cfg,
		store:     deps.Store,
		snapshots: deps.Snapshots,
		collector: deps.Collector,
		billing:   deps.Billing,
		cache:     deps.Cache,
		clock:     deps.Clock,
		logger:    logger,
	}
}

func (s *Service) normalize(in rank.TrackingInput) (rank.TrackingInput, error) {
	in.Keyword = strings.TrimSpace(in.Keyword)
	in.BlogURL = strings.TrimSpace(in.BlogURL)
	in.Title = strings.TrimSpace(in.Title)
	if in.Keyword == "" {
		return in, fmt.Errorf("keyword is required")
	}
	if in.BlogURL == "" {
		return in, fmt.Errorf("blog url is required")
	}
	if in.ResultSize <= 0 {
		in.ResultSize = s.cfg.DefaultSize
	}
	if in.ResultSize > 100 {
		in.ResultSize = 100
	}
	return in, nil
}

// Create registers a new subscription. Today's snapshot for the keyword is
// seeded first so the subscription has data to show; a seeding failure is
// logged and tolerated since the daily run will cover the keyword anyway.
// Quota is not checked here: callers gate creation with EnsureCanAdd.
func (s *Service) Create(ctx context.Context, ownerID int64, in rank.TrackingInput) (rank.Tracking, error) {
	in, err := s.normalize(in)
	if err != nil {
		return rank.Tracking{}, err
	}

	if _, err := s.collector.CollectRanks(ctx, in.Keyword, in.ResultSize); err != nil {
		s.logger.Warn("seed collection failed",
			zap.String("keyword", in.Keyword), zap.Int64("owner_id", ownerID), zap.Error(err))
	}

	created, err := s.store.Create(ctx, rank.Tracking{
		OwnerID:    ownerID,
		Keyword:    in.Keyword,
		BlogURL:    in.BlogURL,
		Title:      in.Title,
		Active:     true,
		ResultSize: in.ResultSize,
	})
	if err != nil {
		return rank.Tracking{}, fmt.Errorf("create tracking: %w", err)
	}
	s.logger.Info("tracking created",
		zap.Int64("tracking_id", created.ID),
		zap.Int64("owner_id", ownerID),
		zap.String("keyword", created.Keyword))
	return created, nil
}

// LimitStatus resolves the owner's quota standing: the billing grant's
// limit against the owner's active subscription count. A missing or
// expired grant maps to rank.ErrNoActiveGrant.
func (s *Service) LimitStatus(ctx context.Context, ownerID int64) (rank.LimitStatus, error) {
	grant, err := s.billing.ActiveGrant(ctx, ownerID)
	if err != nil {
		return rank.LimitStatus{}, fmt.Errorf("resolve grant: %w", err)
	}
	if !grant.Valid(s.clock.Now()) {
		return rank.LimitStatus{}, rank.ErrNoActiveGrant
	}

	current, err := s.store.CountActiveByOwner(ctx, ownerID)
	if err != nil {
		return rank.LimitStatus{}, fmt.Errorf("count active trackings: %w", err)
	}

	status := rank.LimitStatus{Max: grant.MaxTrackings, Current: current, CanAddMore: true}
	if grant.MaxTrackings != nil {
		remaining := *grant.MaxTrackings - current
		if remaining < 0 {
			remaining = 0
		}
		status.Remaining = &remaining
		status.CanAddMore = current < *grant.MaxTrackings
	}
	return status, nil
}

// EnsureCanAdd is the quota gate callers run before a create or a
// reactivation. The check and the subsequent write are two separate steps,
// not one atomic action.
func (s *Service) EnsureCanAdd(ctx context.Context, ownerID int64) error {
	status, err := s.LimitStatus(ctx, ownerID)
	if err != nil {
		return err
	}
	if !status.CanAddMore {
		return rank.ErrQuotaExceeded
	}
	return nil
}

func (s *Service) owned(ctx context.Context, ownerID, id int64) (rank.Tracking, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return rank.Tracking{}, fmt.Errorf("load tracking: %w", err)
	}
	if t.OwnerID != ownerID {
		return rank.Tracking{}, rank.ErrForbidden
	}
	return t, nil
}

// Get returns one owned subscription.
func (s *Service) Get(ctx context.Context, ownerID, id int64) (rank.Tracking, error) {
	return s.owned(ctx, ownerID, id)
}

// List returns the owner's subscriptions, newest first.
func (s *Service) List(ctx context.Context, ownerID int64) ([]rank.Tracking, error) {
	list, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list trackings: %w", err)
	}
	return list, nil
}

// SetActive flips a subscription's active flag. Already being in the
// desired state is a no-op that performs no write. Callers re-check quota
// via EnsureCanAdd before reactivating.
func (s *Service) SetActive(ctx context.Context, ownerID, id int64, desired bool) (rank.Tracking, error) {
	t, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return rank.Tracking{}, err
	}
	if t.Active == desired {
		return t, nil
	}
	if err := s.store.SetActive(ctx, id, desired); err != nil {
		return rank.Tracking{}, fmt.Errorf("toggle tracking: %w", err)
	}
	t.Active = desired
	return t, nil
}

// Update replaces the mutable fields of an owned subscription.
func (s *Service) Update(ctx context.Context, ownerID, id int64, in rank.TrackingInput) (rank.Tracking, error) {
	t, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return rank.Tracking{}, err
	}
	in, err = s.normalize(in)
	if err != nil {
		return rank.Tracking{}, err
	}

	t.Keyword = in.Keyword
	t.BlogURL = in.BlogURL
	t.Title = in.Title
	t.ResultSize = in.ResultSize
	updated, err := s.store.Update(ctx, t)
	if err != nil {
		return rank.Tracking{}, fmt.Errorf("update tracking: %w", err)
	}
	return updated, nil
}

// Delete removes an owned subscription.
func (s *Service) Delete(ctx context.Context, ownerID, id int64) error {
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete tracking: %w", err)
	}
	return nil
}

// FindBlogRanks reconstructs the windowed rank history of one owned
// subscription: one entry per calendar day, today first, rank null on days
// the tracked blog was not observed. A blog no snapshot has seen yet
// yields a fully null window, not an error.
func (s *Service) FindBlogRanks(ctx context.Context, ownerID, id int64) (rank.RankHistory, error) {
	t, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return rank.RankHistory{}, err
	}

	if s.cache != nil {
		if history, ok := s.cache.Get(ctx, t.ID); ok {
			return history, nil
		}
	}

	dates := s.window()
	var observed []rank.DatedRank
	_, err = s.snapshots.BlogByLink(ctx, t.BlogURL)
	switch {
	case errors.Is(err, rank.ErrBlogNotFound):
		// Not yet observed in any snapshot.
	case err != nil:
		return rank.RankHistory{}, fmt.Errorf("resolve tracked blog: %w", err)
	default:
		observed, err = s.snapshots.BlogRanks(ctx, t.Keyword, t.BlogURL, dates[len(dates)-1], dates[0])
		if err != nil {
			return rank.RankHistory{}, fmt.Errorf("load blog ranks: %w", err)
		}
	}

	byDate := make(map[string]*int, len(observed))
	for _, r := range observed {
		if _, seen := byDate[r.Date]; seen {
			// One rank per date; duplicates would violate the snapshot
			// schema, so keep the first and move on.
			continue
		}
		byDate[r.Date] = r.Position
	}

	history := rank.RankHistory{TrackingID: t.ID, Keyword: t.Keyword, BlogURL: t.BlogURL}
	history.Days = make([]rank.DatedRank, 0, len(dates))
	for _, d := range dates {
		history.Days = append(history.Days, rank.DatedRank{Date: d, Position: byDate[d]})
	}
	history.LatestRank, history.RankChange = trend(history.Days)

	if s.cache != nil {
		s.cache.Set(ctx, t.Keyword, history)
	}
	return history, nil
}

// window returns the history dates, newest first, today included.
func (s *Service) window() []string {
	today := s.clock.Now().In(s.cfg.Timezone)
	dates := make([]string, s.cfg.HistoryDays)
	for i := range dates {
		dates[i] = today.AddDate(0, 0, -i).Format(rank.DateLayout)
	}
	return dates
}

// trend derives the latest rank and its change from the two most recent
// observations. The change is previous minus latest, so a climb from 10
// to 4 reads +6.
func trend(days []rank.DatedRank) (latest, change *int) {
	var previous *int
	for _, d := range days {
		if d.Position == nil {
			continue
		}
		if latest == nil {
			latest = d.Position
			continue
		}
		previous = d.Position
		break
	}
	if latest != nil && previous != nil {
		delta := *previous - *latest
		change = &delta
	}
	return latest, change
}
