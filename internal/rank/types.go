// Package rank defines core types shared across the collection and
// tracking subsystems.
package rank

import "time"

// DateLayout is the calendar-date format used for snapshot dates.
const DateLayout = "2006-01-02"

// DefaultResultSize is the result-set size used when a tracking
// subscription does not specify one.
const DefaultResultSize = 40

// SearchItem is one ranked provider result, enriched with fetched page
// content.
type SearchItem struct {
	Rank        int    `json:"rank"`
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	AuthorName  string `json:"author_name"`
	AuthorLink  string `json:"author_link"`
	PostedAt    string `json:"posted_at"`
	Content     string `json:"content,omitempty"`
	ResolvedURL string `json:"resolved_url,omitempty"`
}

// SearchResult is the provider response after normalization. Raw holds the
// unmodified response body for archival.
type SearchResult struct {
	Total int64        `json:"total"`
	Items []SearchItem `json:"items"`
	Raw   []byte       `json:"-"`
}

// Snapshot is the full ranked result set for one keyword on one calendar
// date. Date is a YYYY-MM-DD string in the service's reference timezone.
type Snapshot struct {
	ID           int64     `json:"id"`
	Keyword      string    `json:"keyword"`
	Date         string    `json:"date"`
	TotalResults int64     `json:"total_results"`
	CreatedAt    time.Time `json:"created_at"`
}

// Blog is the canonical record for a distinct post URL observed in any
// snapshot. Summary is written by a separate summarization process and is
// never overwritten by re-collection.
type Blog struct {
	ID          int64      `json:"id"`
	Link        string     `json:"link"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AuthorName  string     `json:"author_name"`
	AuthorLink  string     `json:"author_link"`
	PostedAt    string     `json:"posted_at"`
	Content     *string    `json:"content,omitempty"`
	Summary     *string    `json:"summary,omitempty"`
	ResolvedURL string     `json:"resolved_url,omitempty"`
	FetchedAt   *time.Time `json:"fetched_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// RankedBlog pairs a rank position with the blog that held it.
type RankedBlog struct {
	Position int  `json:"position"`
	Blog     Blog `json:"blog"`
}

// CollectResult reports the outcome of a collection attempt. New is false
// when a snapshot for the keyword and date already existed; Ranked counts
// only entries written by this call, so it is zero when New is false.
type CollectResult struct {
	Snapshot Snapshot `json:"snapshot"`
	New      bool     `json:"new"`
	Ranked   int      `json:"ranked"`
}

// Tracking is a user's standing request to monitor one keyword against one
// owned blog URL.
type Tracking struct {
	ID              int64      `json:"id"`
	OwnerID         int64      `json:"owner_id"`
	Keyword         string     `json:"keyword"`
	BlogURL         string     `json:"blog_url"`
	Title           string     `json:"title"`
	Active          bool       `json:"active"`
	ResultSize      int        `json:"result_size"`
	LastCollectedAt *time.Time `json:"last_collected_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TrackingInput carries the user-supplied fields for a new tracking
// subscription. Zero ResultSize falls back to DefaultResultSize.
type TrackingInput struct {
	Keyword    string `json:"keyword"`
	BlogURL    string `json:"blog_url"`
	Title      string `json:"title"`
	ResultSize int    `json:"result_size"`
}

// Grant is the quota signal supplied by the billing collaborator. A nil
// MaxTrackings means the plan is unlimited.
type Grant struct {
	OwnerID      int64      `json:"owner_id"`
	Status       string     `json:"status"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	MaxTrackings *int       `json:"max_trackings"`
}

// Valid reports whether the grant authorizes tracking at the given
// instant. TRIAL grants carry the same entitlements as ACTIVE ones.
func (g Grant) Valid(now time.Time) bool {
	if g.Status != GrantActive && g.Status != GrantTrial {
		return false
	}
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

// Grant statuses that permit tracking.
const (
	GrantActive = "ACTIVE"
	GrantTrial  = "TRIAL"
)

// LimitStatus reports how many tracking slots a plan grants and how many
// are in use. Nil Max/Remaining mean unlimited.
type LimitStatus struct {
	Max        *int `json:"max"`
	Current    int  `json:"current"`
	Remaining  *int `json:"remaining"`
	CanAddMore bool `json:"can_add_more"`
}

// DatedRank is one observed rank on one calendar date. A nil Position
// means the blog was not observed in that date's snapshot.
type DatedRank struct {
	Date     string `json:"date"`
	Position *int   `json:"rank"`
}

// RankHistory is the windowed, gap-filled rank history for one tracking
// subscription, newest date first. RankChange is previous minus latest, so
// a positive value means the blog rose.
type RankHistory struct {
	TrackingID int64       `json:"tracking_id"`
	Keyword    string      `json:"keyword"`
	BlogURL    string      `json:"blog_url"`
	LatestRank *int        `json:"latest_rank"`
	RankChange *int        `json:"rank_change"`
	Days       []DatedRank `json:"days"`
}

// TaskStatus represents the lifecycle state of a scheduled run.
type TaskStatus string

// Task statuses persisted in the audit log. A run starts RUNNING and moves
// exactly once to one of the terminal states.
const (
	TaskRunning   TaskStatus = "RUNNING"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskPartial   TaskStatus = "PARTIAL"
	TaskFailed    TaskStatus = "FAILED"
)

// ItemFailure records one failed item within a scheduled run.
type ItemFailure struct {
	Item  string `json:"item"`
	Error string `json:"error"`
}

// TaskRun is the audit record for one scheduled-task invocation.
type TaskRun struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Status      TaskStatus    `json:"status"`
	Total       int           `json:"total"`
	Processed   int           `json:"processed"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	DurationMs  *int64        `json:"duration_ms,omitempty"`
	Failures    []ItemFailure `json:"failures,omitempty"`
	Message     string        `json:"message,omitempty"`
}

// CollectionEvent is published after each fresh snapshot commit for
// downstream consumers (notification, summarization).
type CollectionEvent struct {
	Keyword    string `json:"keyword"`
	Date       string `json:"date"`
	SnapshotID int64  `json:"snapshot_id"`
	Total      int64  `json:"total"`
	Ranked     int    `json:"ranked"`
}

// FetchResult is what the content fetcher extracted from one page.
type FetchResult struct {
	Excerpt     string
	ResolvedURL string
	Rendered    bool
}
