package rank

import (
	"context"
	"time"
)

// SearchClient queries the external search provider for one keyword.
type SearchClient interface {
	Search(ctx context.Context, keyword string, count int) (SearchResult, error)
}

// ContentFetcher retrieves a post URL and extracts a bounded plain-text
// excerpt. Fetch failures degrade to an empty excerpt, never an error.
type ContentFetcher interface {
	Fetch(ctx context.Context, pageURL string) FetchResult
}

// SnapshotStore persists snapshots, rank entries and blogs.
type SnapshotStore interface {
	// Create persists the snapshot and its ranked items as one atomic
	// unit. When a snapshot for the same keyword and date already exists
	// (including a concurrent winner), the existing snapshot is returned
	// with created=false and nothing is written.
	Create(ctx context.Context, snap Snapshot, items []SearchItem) (result Snapshot, created bool, err error)
	ByKeywordDate(ctx context.Context, keyword, date string) (Snapshot, error)
	History(ctx context.Context, keyword string, limit int) ([]Snapshot, error)
	Ranked(ctx context.Context, snapshotID int64) ([]RankedBlog, error)
	BlogByLink(ctx context.Context, link string) (Blog, error)
	// BlogRanks returns the observed ranks for one blog under one keyword
	// within [fromDate, toDate], newest date first.
	BlogRanks(ctx context.Context, keyword, link, fromDate, toDate string) ([]DatedRank, error)
}

// TrackingStore persists tracking subscriptions.
type TrackingStore interface {
	Create(ctx context.Context, t Tracking) (Tracking, error)
	Get(ctx context.Context, id int64) (Tracking, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]Tracking, error)
	CountActiveByOwner(ctx context.Context, ownerID int64) (int, error)
	SetActive(ctx context.Context, id int64, active bool) error
	Update(ctx context.Context, t Tracking) (Tracking, error)
	Delete(ctx context.Context, id int64) error
	// ActiveKeywordsForOwners returns the distinct keywords across the
	// active subscriptions of the given owners, sorted.
	ActiveKeywordsForOwners(ctx context.Context, ownerIDs []int64) ([]string, error)
	// TouchCollected stamps last_collected_at on every active
	// subscription for the keyword.
	TouchCollected(ctx context.Context, keyword string, at time.Time) error
}

// TaskRunStore persists task audit records.
type TaskRunStore interface {
	Begin(ctx context.Context, run TaskRun) error
	Finish(ctx context.Context, run TaskRun) error
	Latest(ctx context.Context, name string) (TaskRun, error)
}

// Collector triggers and reads daily rank collection.
type Collector interface {
	CollectRanks(ctx context.Context, keyword string, count int) (CollectResult, error)
	SnapshotForDate(ctx context.Context, keyword, date string) (Snapshot, []RankedBlog, error)
	History(ctx context.Context, keyword string, limit int) ([]Snapshot, error)
}

// BillingClient is the billing collaborator consumed by the core: the
// quota signal plus the renewal and payment-retry operations driven by the
// scheduler. Business content lives on the billing side.
type BillingClient interface {
	ActiveGrant(ctx context.Context, ownerID int64) (Grant, error)
	ActiveOwners(ctx context.Context) ([]int64, error)
	RenewalsDue(ctx context.Context) ([]int64, error)
	Renew(ctx context.Context, subscriptionID int64) error
	FailedPayments(ctx context.Context) ([]int64, error)
	RetryPayment(ctx context.Context, paymentID int64) error
}

// Publisher pushes collection events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event CollectionEvent) (string, error)
}

// Archive stores raw provider responses and returns a URI.
type Archive interface {
	Save(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// HistoryCache caches computed rank histories. Implementations must treat
// cache trouble as a miss, never an error.
type HistoryCache interface {
	Get(ctx context.Context, trackingID int64) (RankHistory, bool)
	Set(ctx context.Context, keyword string, history RankHistory)
	InvalidateKeyword(ctx context.Context, keyword string)
}

// Pacer enforces the inter-call delay against the search provider.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task-run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
