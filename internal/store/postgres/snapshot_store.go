package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/blogboost/ranktracker/internal/rank"
)

// SnapshotStore persists keyword snapshots, rank entries and blogs.
//
// Schema (managed by the platform's migration pipeline):
//
//	CREATE TABLE keyword_snapshots (
//	    id            BIGSERIAL PRIMARY KEY,
//	    keyword       TEXT        NOT NULL,
//	    snapshot_date DATE        NOT NULL,
//	    total_results BIGINT      NOT NULL DEFAULT 0,
//	    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    UNIQUE (keyword, snapshot_date)
//	);
//
//	CREATE TABLE blogs (
//	    id           BIGSERIAL PRIMARY KEY,
//	    link         TEXT        NOT NULL UNIQUE,
//	    title        TEXT        NOT NULL DEFAULT '',
//	    description  TEXT        NOT NULL DEFAULT '',
//	    author_name  TEXT        NOT NULL DEFAULT '',
//	    author_link  TEXT        NOT NULL DEFAULT '',
//	    posted_at    TEXT        NOT NULL DEFAULT '',
//	    content      TEXT,
//	    summary      TEXT,
//	    resolved_url TEXT        NOT NULL DEFAULT '',
//	    fetched_at   TIMESTAMPTZ,
//	    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
//	CREATE TABLE rank_entries (
//	    id          BIGSERIAL PRIMARY KEY,
//	    snapshot_id BIGINT      NOT NULL REFERENCES keyword_snapshots(id) ON DELETE CASCADE,
//	    position    INT         NOT NULL,
//	    blog_id     BIGINT      NOT NULL REFERENCES blogs(id),
//	    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    UNIQUE (snapshot_id, position)
//	);
//
// The UNIQUE (keyword, snapshot_date) index is the at-most-once collection
// guard; Create detects the conflict instead of checking first.
type SnapshotStore struct {
	pool pgxPool
}

// NewSnapshotStore constructs a store over an existing pool.
func NewSnapshotStore(pool pgxPool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

const insertSnapshotSQL = `
INSERT INTO keyword_snapshots (keyword, snapshot_date, total_results)
VALUES ($1, $2, $3)
ON CONFLICT (keyword, snapshot_date) DO NOTHING
RETURNING id, created_at`

// upsertBlogSQL overwrites every mutable column except summary, which a
// separate summarization process owns.
const upsertBlogSQL = `
INSERT INTO blogs (link, title, description, author_name, author_link, posted_at, content, resolved_url, fetched_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
ON CONFLICT (link) DO UPDATE SET
    title        = EXCLUDED.title,
    description  = EXCLUDED.description,
    author_name  = EXCLUDED.author_name,
    author_link  = EXCLUDED.author_link,
    posted_at    = EXCLUDED.posted_at,
    content      = EXCLUDED.content,
    resolved_url = EXCLUDED.resolved_url,
    fetched_at   = now(),
    updated_at   = now()
RETURNING id`

const insertEntrySQL = `
INSERT INTO rank_entries (snapshot_id, position, blog_id)
VALUES ($1, $2, $3)`

// Create persists the snapshot and its ranked items in one transaction.
// When the (keyword, date) row already exists the concurrent winner is
// re-read and returned with created=false.
func (s *SnapshotStore) Create(ctx context.Context, snap rank.Snapshot, items []rank.SearchItem) (rank.Snapshot, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return rank.Snapshot{}, false, fmt.Errorf("begin snapshot tx: %w", err)
	}

	stored := snap
	err = tx.QueryRow(ctx, insertSnapshotSQL, snap.Keyword, snap.Date, snap.TotalResults).
		Scan(&stored.ID, &stored.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		existing, readErr := s.ByKeywordDate(ctx, snap.Keyword, snap.Date)
		if readErr != nil {
			return rank.Snapshot{}, false, fmt.Errorf("read concurrent snapshot: %w", readErr)
		}
		return existing, false, nil
	}
	if err != nil {
		_ = tx.Rollback(ctx)
		return rank.Snapshot{}, false, fmt.Errorf("insert snapshot: %w", err)
	}

	for _, item := range items {
		var blogID int64
		err := tx.QueryRow(ctx, upsertBlogSQL,
			item.Link,
			item.Title,
			item.Description,
			item.AuthorName,
			item.AuthorLink,
			item.PostedAt,
			nullIfEmpty(item.Content),
			item.ResolvedURL,
		).Scan(&blogID)
		if err != nil {
			_ = tx.Rollback(ctx)
			return rank.Snapshot{}, false, fmt.Errorf("upsert blog %s: %w", item.Link, err)
		}
		if _, err := tx.Exec(ctx, insertEntrySQL, stored.ID, item.Rank, blogID); err != nil {
			_ = tx.Rollback(ctx)
			return rank.Snapshot{}, false, fmt.Errorf("insert rank entry %d: %w", item.Rank, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return rank.Snapshot{}, false, fmt.Errorf("commit snapshot tx: %w", err)
	}
	return stored, true, nil
}

const selectSnapshotSQL = `
SELECT id, keyword, snapshot_date::text, total_results, created_at
FROM keyword_snapshots`

// ByKeywordDate returns the snapshot for the keyword and date, or
// rank.ErrSnapshotNotFound.
func (s *SnapshotStore) ByKeywordDate(ctx context.Context, keyword, date string) (rank.Snapshot, error) {
	var snap rank.Snapshot
	err := s.pool.QueryRow(ctx, selectSnapshotSQL+` WHERE keyword = $1 AND snapshot_date = $2`, keyword, date).
		Scan(&snap.ID, &snap.Keyword, &snap.Date, &snap.TotalResults, &snap.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return rank.Snapshot{}, rank.ErrSnapshotNotFound
	}
	if err != nil {
		return rank.Snapshot{}, fmt.Errorf("select snapshot: %w", err)
	}
	return snap, nil
}

// History returns up to limit snapshots for the keyword, newest first.
func (s *SnapshotStore) History(ctx context.Context, keyword string, limit int) ([]rank.Snapshot, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.pool.Query(ctx, selectSnapshotSQL+` WHERE keyword = $1 ORDER BY snapshot_date DESC LIMIT $2`, keyword, limit)
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	defer rows.Close()

	var snaps []rank.Snapshot
	for rows.Next() {
		var snap rank.Snapshot
		if err := rows.Scan(&snap.ID, &snap.Keyword, &snap.Date, &snap.TotalResults, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return snaps, nil
}

const selectRankedSQL = `
SELECT e.position,
       b.id, b.link, b.title, b.description, b.author_name, b.author_link,
       b.posted_at, b.content, b.summary, b.resolved_url, b.fetched_at,
       b.created_at, b.updated_at
FROM rank_entries e
JOIN blogs b ON b.id = e.blog_id
WHERE e.snapshot_id = $1
ORDER BY e.position`

// Ranked returns the ranked blogs of one snapshot in position order.
func (s *SnapshotStore) Ranked(ctx context.Context, snapshotID int64) ([]rank.RankedBlog, error) {
	rows, err := s.pool.Query(ctx, selectRankedSQL, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("select rank entries: %w", err)
	}
	defer rows.Close()

	var ranked []rank.RankedBlog
	for rows.Next() {
		var rb rank.RankedBlog
		if err := rows.Scan(
			&rb.Position,
			&rb.Blog.ID, &rb.Blog.Link, &rb.Blog.Title, &rb.Blog.Description,
			&rb.Blog.AuthorName, &rb.Blog.AuthorLink, &rb.Blog.PostedAt,
			&rb.Blog.Content, &rb.Blog.Summary, &rb.Blog.ResolvedURL, &rb.Blog.FetchedAt,
			&rb.Blog.CreatedAt, &rb.Blog.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan rank entry: %w", err)
		}
		ranked = append(ranked, rb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rank entries: %w", err)
	}
	return ranked, nil
}

const selectBlogSQL = `
SELECT id, link, title, description, author_name, author_link, posted_at,
       content, summary, resolved_url, fetched_at, created_at, updated_at
FROM blogs
WHERE link = $1`

// BlogByLink returns the blog with the canonical link, or rank.ErrBlogNotFound.
func (s *SnapshotStore) BlogByLink(ctx context.Context, link string) (rank.Blog, error) {
	var b rank.Blog
	err := s.pool.QueryRow(ctx, selectBlogSQL, link).Scan(
		&b.ID, &b.Link, &b.Title, &b.Description, &b.AuthorName, &b.AuthorLink,
		&b.PostedAt, &b.Content, &b.Summary, &b.ResolvedURL, &b.FetchedAt,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return rank.Blog{}, rank.ErrBlogNotFound
	}
	if err != nil {
		return rank.Blog{}, fmt.Errorf("select blog: %w", err)
	}
	return b, nil
}

const selectBlogRanksSQL = `
SELECT s.snapshot_date::text, e.position
FROM rank_entries e
JOIN keyword_snapshots s ON s.id = e.snapshot_id
JOIN blogs b ON b.id = e.blog_id
WHERE s.keyword = $1 AND b.link = $2 AND s.snapshot_date BETWEEN $3 AND $4
ORDER BY s.snapshot_date DESC, e.position`

// BlogRanks returns the observed ranks for one blog under one keyword
// within [fromDate, toDate], newest date first. Duplicate positions for a
// date come back position-ascending so the caller's first-seen reduction
// keeps the best one.
func (s *SnapshotStore) BlogRanks(ctx context.Context, keyword, link, fromDate, toDate string) ([]rank.DatedRank, error) {
	rows, err := s.pool.Query(ctx, selectBlogRanksSQL, keyword, link, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("select blog ranks: %w", err)
	}
	defer rows.Close()

	var ranks []rank.DatedRank
	for rows.Next() {
		var (
			date     string
			position int
		)
		if err := rows.Scan(&date, &position); err != nil {
			return nil, fmt.Errorf("scan blog rank: %w", err)
		}
		p := position
		ranks = append(ranks, rank.DatedRank{Date: date, Position: &p})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blog ranks: %w", err)
	}
	return ranks, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
