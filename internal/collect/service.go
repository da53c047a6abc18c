// Package collect implements daily search rank collection: one provider
// query per keyword per calendar day, persisted atomically with the
// ranked blogs it returned.
package collect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/blogboost/ranktracker/internal/archive"
	"github.com/blogboost/ranktracker/internal/metrics"
	"github.com/blogboost/ranktracker/internal/rank"
)

// Config controls collection behavior.
type Config struct {
	// Timezone defines the calendar day for snapshot dates. Nil means UTC.
	Timezone *time.Location
	// DefaultSize is the result count requested when the caller passes none.
	DefaultSize int
}

// Deps are the collaborators of the collection service. Archive, Events
// and Cache are optional; nil disables that side effect.
type Deps struct {
	Search  rank.SearchClient
	Store   rank.SnapshotStore
	Archive rank.Archive
	Events  rank.Publisher
	Cache   rank.HistoryCache
	Clock   rank.Clock
}

// Service implements rank.Collector.
type Service struct {
	cfg    Config
	search rank.SearchClient
	store  rank.SnapshotStore
	arch   rank.Archive
	events rank.Publisher
	cache  rank.HistoryCache
	clock  rank.Clock
	logger *zap.Logger
}

// New constructs the collection service.
func New(cfg Config, deps Deps, logger *zap.Logger) *Service {
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.DefaultSize <= 0 {
		cfg.DefaultSize = rank.DefaultResultSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:    cfg,
		search: deps.Search,
		store:  deps.Store,
		arch:   deps.Archive,
		events: deps.Events,
		cache:  deps.Cache,
		clock:  deps.Clock,
		logger: logger,
	}
}

func (s *Service) today() string {
	return s.clock.Now().In(s.cfg.Timezone).Format(rank.DateLayout)
}

// CollectRanks collects today's ranking for the keyword. A snapshot that
// already exists for today is returned as-is without touching the search
// provider; the at-most-once guarantee itself comes from the store's
// uniqueness handling, not from this read.
func (s *Service) CollectRanks(ctx context.Context, keyword string, count int) (rank.CollectResult, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return rank.CollectResult{}, fmt.Errorf("keyword is required")
	}
	if count <= 0 {
		count = s.cfg.DefaultSize
	}

	date := s.today()
	existing, err := s.store.ByKeywordDate(ctx, keyword, date)
	if err == nil {
		metrics.ObserveCollection(metrics.CollectionSkipped)
		s.logger.Debug("keyword already collected today",
			zap.String("keyword", keyword), zap.String("date", date))
		return rank.CollectResult{Snapshot: existing, New: false}, nil
	}
	if !errors.Is(err, rank.ErrSnapshotNotFound) {
		return rank.CollectResult{}, fmt.Errorf("check existing snapshot: %w", err)
	}

	result, err := s.search.Search(ctx, keyword, count)
	if err != nil {
		metrics.ObserveCollection(metrics.CollectionFailed)
		return rank.CollectResult{}, fmt.Errorf("search %q: %w", keyword, err)
	}

	snap, created, err := s.store.Create(ctx, rank.Snapshot{
		Keyword:      keyword,
		Date:         date,
		TotalResults: result.Total,
	}, result.Items)
	if err != nil {
		metrics.ObserveCollection(metrics.CollectionFailed)
		return rank.CollectResult{}, fmt.Errorf("persist snapshot: %w", err)
	}
	if !created {
		// Another collector won the insert race between our read and write.
		metrics.ObserveCollection(metrics.CollectionSkipped)
		s.logger.Info("lost snapshot race, keeping winner",
			zap.String("keyword", keyword), zap.String("date", date), zap.Int64("snapshot_id", snap.ID))
		return rank.CollectResult{Snapshot: snap, New: false}, nil
	}

	s.afterCollect(ctx, snap, result)
	metrics.ObserveCollection(metrics.CollectionFresh)
	s.logger.Info("collected keyword ranks",
		zap.String("keyword", keyword),
		zap.String("date", date),
		zap.Int64("snapshot_id", snap.ID),
		zap.Int64("total", result.Total),
		zap.Int("ranked", len(result.Items)))
	return rank.CollectResult{Snapshot: snap, New: true, Ranked: len(result.Items)}, nil
}

// afterCollect runs the side effects of a fresh snapshot. All of them are
// best effort; the snapshot is already durable.
func (s *Service) afterCollect(ctx context.Context, snap rank.Snapshot, result rank.SearchResult) {
	if s.arch != nil && len(result.Raw) > 0 {
		key := archive.ObjectKey(snap.Date, snap.Keyword)
		if uri, err := s.arch.Save(ctx, key, "application/json", result.Raw); err != nil {
			s.logger.Warn("archive raw response",
				zap.String("keyword", snap.Keyword), zap.String("key", key), zap.Error(err))
		} else if uri != "" {
			s.logger.Debug("archived raw response", zap.String("uri", uri))
		}
	}
	if s.events != nil {
		event := rank.CollectionEvent{
			Keyword:    snap.Keyword,
			Date:       snap.Date,
			SnapshotID: snap.ID,
			Total:      snap.TotalResults,
			Ranked:     len(result.Items),
		}
		if _, err := s.events.Publish(ctx, event); err != nil {
			metrics.ObserveEventPublish(false)
			s.logger.Warn("publish collection event",
				zap.String("keyword", snap.Keyword), zap.Error(err))
		} else {
			metrics.ObserveEventPublish(true)
		}
	}
	if s.cache != nil {
		s.cache.InvalidateKeyword(ctx, snap.Keyword)
	}
}

// SnapshotForDate returns the snapshot and its ranked blogs for one
// keyword and date. An empty date means today.
func (s *Service) SnapshotForDate(ctx context.Context, keyword, date string) (rank.Snapshot, []rank.RankedBlog, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return rank.Snapshot{}, nil, fmt.Errorf("keyword is required")
	}
	if date == "" {
		date = s.today()
	} else if _, err := time.Parse(rank.DateLayout, date); err != nil {
		return rank.Snapshot{}, nil, fmt.Errorf("invalid date %q: %w", date, err)
	}

	snap, err := s.store.ByKeywordDate(ctx, keyword, date)
	if err != nil {
		return rank.Snapshot{}, nil, fmt.Errorf("load snapshot: %w", err)
	}
	ranked, err := s.store.Ranked(ctx, snap.ID)
	if err != nil {
		return rank.Snapshot{}, nil, fmt.Errorf("load rank entries: %w", err)
	}
	return snap, ranked, nil
}

// History returns up to limit snapshots for the keyword, newest first.
func (s *Service) History(ctx context.Context, keyword string, limit int) ([]rank.Snapshot, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("keyword is required")
	}
	snaps, err := s.store.History(ctx, keyword, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return snaps, nil
}
