package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/blogboost/ranktracker/internal/rank"
)

// TrackingStore persists keyword tracking subscriptions.
//
// Schema (managed by the platform's migration pipeline):
//
//	CREATE TABLE tracked_keywords (
//	    id                BIGSERIAL PRIMARY KEY,
//	    owner_id          BIGINT      NOT NULL,
//	    keyword           TEXT        NOT NULL,
//	    blog_url          TEXT        NOT NULL,
//	    title             TEXT        NOT NULL DEFAULT '',
//	    active            BOOLEAN     NOT NULL DEFAULT true,
//	    result_size       INT         NOT NULL DEFAULT 40,
//	    last_collected_at TIMESTAMPTZ,
//	    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    UNIQUE (owner_id, keyword, blog_url)
//	);
type TrackingStore struct {
	pool pgxPool
}

// NewTrackingStore constructs a store over an existing pool.
func NewTrackingStore(pool pgxPool) *TrackingStore {
	return &TrackingStore{pool: pool}
}

const trackingColumns = `id, owner_id, keyword, blog_url, title, active, result_size, last_collected_at, created_at, updated_at`

const insertTrackingSQL = `
INSERT INTO tracked_keywords (owner_id, keyword, blog_url, title, active, result_size)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + trackingColumns

// Create inserts a new subscription. A duplicate (owner, keyword, blog)
// triple maps to rank.ErrDuplicateTracking.
func (s *TrackingStore) Create(ctx context.Context, t rank.Tracking) (rank.Tracking, error) {
	var out rank.Tracking
	err := s.pool.QueryRow(ctx, insertTrackingSQL, t.OwnerID, t.Keyword, t.BlogURL, t.Title, t.Active, t.ResultSize).
		Scan(&out.ID, &out.OwnerID, &out.Keyword, &out.BlogURL, &out.Title, &out.Active,
			&out.ResultSize, &out.LastCollectedAt, &out.CreatedAt, &out.UpdatedAt)
	if isUniqueViolation(err) {
		return rank.Tracking{}, rank.ErrDuplicateTracking
	}
	if err != nil {
		return rank.Tracking{}, fmt.Errorf("insert tracking: %w", err)
	}
	return out, nil
}

// Get returns the subscription by id, or rank.ErrTrackingNotFound.
func (s *TrackingStore) Get(ctx context.Context, id int64) (rank.Tracking, error) {
	var t rank.Tracking
	err := s.pool.QueryRow(ctx, `SELECT `+trackingColumns+` FROM tracked_keywords WHERE id = $1`, id).
		Scan(&t.ID, &t.OwnerID, &t.Keyword, &t.BlogURL, &t.Title, &t.Active,
			&t.ResultSize, &t.LastCollectedAt, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return rank.Tracking{}, rank.ErrTrackingNotFound
	}
	if err != nil {
		return rank.Tracking{}, fmt.Errorf("select tracking: %w", err)
	}
	return t, nil
}

// ListByOwner returns every subscription of one owner, newest first.
func (s *TrackingStore) ListByOwner(ctx context.Context, ownerID int64) ([]rank.Tracking, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+trackingColumns+` FROM tracked_keywords WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("select trackings: %w", err)
	}
	defer rows.Close()

	var out []rank.Tracking
	for rows.Next() {
		var t rank.Tracking
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Keyword, &t.BlogURL, &t.Title, &t.Active,
			&t.ResultSize, &t.LastCollectedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tracking: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trackings: %w", err)
	}
	return out, nil
}

// CountActiveByOwner counts the owner's active subscriptions.
func (s *TrackingStore) CountActiveByOwner(ctx context.Context, ownerID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM tracked_keywords WHERE owner_id = $1 AND active`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active trackings: %w", err)
	}
	return n, nil
}

// SetActive flips the active flag. Missing id maps to rank.ErrTrackingNotFound.
func (s *TrackingStore) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tracked_keywords SET active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("update tracking active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rank.ErrTrackingNotFound
	}
	return nil
}

// Update overwrites the mutable fields of an existing subscription.
func (s *TrackingStore) Update(ctx context.Context, t rank.Tracking) (rank.Tracking, error) {
	var out rank.Tracking
	err := s.pool.QueryRow(ctx, `
UPDATE tracked_keywords
SET keyword = $2, blog_url = $3, title = $4, result_size = $5, updated_at = now()
WHERE id = $1
RETURNING `+trackingColumns,
		t.ID, t.Keyword, t.BlogURL, t.Title, t.ResultSize).
		Scan(&out.ID, &out.OwnerID, &out.Keyword, &out.BlogURL, &out.Title, &out.Active,
			&out.ResultSize, &out.LastCollectedAt, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return rank.Tracking{}, rank.ErrTrackingNotFound
	}
	if isUniqueViolation(err) {
		return rank.Tracking{}, rank.ErrDuplicateTracking
	}
	if err != nil {
		return rank.Tracking{}, fmt.Errorf("update tracking: %w", err)
	}
	return out, nil
}

// Delete removes the subscription. Missing id maps to rank.ErrTrackingNotFound.
func (s *TrackingStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tracked_keywords WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tracking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rank.ErrTrackingNotFound
	}
	return nil
}

// ActiveKeywordsForOwners returns the distinct active keywords across the
// given owners, sorted ascending. An empty owner list yields no keywords.
func (s *TrackingStore) ActiveKeywordsForOwners(ctx context.Context, ownerIDs []int64) ([]string, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
SELECT DISTINCT keyword
FROM tracked_keywords
WHERE active AND owner_id = ANY($1)
ORDER BY keyword`, ownerIDs)
	if err != nil {
		return nil, fmt.Errorf("select active keywords: %w", err)
	}
	defer rows.Close()

	var keywords []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		keywords = append(keywords, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keywords: %w", err)
	}
	return keywords, nil
}

// TouchCollected stamps last_collected_at on every active subscription of
// the keyword.
func (s *TrackingStore) TouchCollected(ctx context.Context, keyword string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
UPDATE tracked_keywords
SET last_collected_at = $2, updated_at = now()
WHERE keyword = $1 AND active`, keyword, at)
	if err != nil {
		return fmt.Errorf("touch collected: %w", err)
	}
	return nil
}
