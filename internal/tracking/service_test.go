package tracking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blogboost/ranktracker/internal/billing"
	"github.com/blogboost/ranktracker/internal/cache"
	"github.com/blogboost/ranktracker/internal/rank"
	memstore "github.com/blogboost/ranktracker/internal/store/memory"
)

type stubClock struct{ now time.Time }

func (c stubClock) Now() time.Time { return c.now }

type collectCall struct {
	keyword string
	count   int
}

type stubCollector struct {
	mu        sync.Mutex
	calls     []collectCall
	err       error
	onCollect func()
}

func (c *stubCollector) CollectRanks(_ context.Context, keyword string, count int) (rank.CollectResult, error) {
	c.mu.Lock()
	c.calls = append(c.calls, collectCall{keyword: keyword, count: count})
	hook := c.onCollect
	err := c.err
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return rank.CollectResult{}, err
	}
	return rank.CollectResult{New: true}, nil
}

func (c *stubCollector) SnapshotForDate(context.Context, string, string) (rank.Snapshot, []rank.RankedBlog, error) {
	return rank.Snapshot{}, nil, rank.ErrSnapshotNotFound
}

func (c *stubCollector) History(context.Context, string, int) ([]rank.Snapshot, error) {
	return nil, nil
}

func (c *stubCollector) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// countingTrackingStore counts SetActive writes so tests can prove the
// no-op contract.
type countingTrackingStore struct {
	*memstore.TrackingStore
	setActiveCalls int
}

func (s *countingTrackingStore) SetActive(ctx context.Context, id int64, active bool) error {
	s.setActiveCalls++
	return s.TrackingStore.SetActive(ctx, id, active)
}

type fixture struct {
	svc       *Service
	store     *countingTrackingStore
	snapshots *memstore.SnapshotStore
	collector *stubCollector
	billing   *billing.Fake
	cache     *cache.Memory
	clock     stubClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	f := &fixture{
		store:     &countingTrackingStore{TrackingStore: memstore.NewTrackingStore()},
		snapshots: memstore.NewSnapshotStore(),
		collector: &stubCollector{},
		billing:   billing.NewFake(),
		cache:     cache.NewMemory(),
		clock:     stubClock{now: time.Date(2026, 8, 23, 12, 0, 0, 0, seoul)},
	}
	f.svc = New(
		Config{Timezone: seoul, HistoryDays: 7},
		Deps{
			Store:     f.store,
			Snapshots: f.snapshots,
			Collector: f.collector,
			Billing:   f.billing,
			Cache:     f.cache,
			Clock:     f.clock,
		},
		nil,
	)
	return f
}

func (f *fixture) grant(ownerID int64, max *int) {
	f.billing.Grants[ownerID] = rank.Grant{OwnerID: ownerID, Status: rank.GrantActive, MaxTrackings: max}
}

func (f *fixture) seedSnapshot(t *testing.T, date string, items []rank.SearchItem) {
	t.Helper()
	_, created, err := f.snapshots.Create(context.Background(), rank.Snapshot{
		Keyword:      "군산 맛집",
		Date:         date,
		TotalResults: int64(len(items)),
	}, items)
	require.NoError(t, err)
	require.True(t, created)
}

func item(pos int, link string) rank.SearchItem {
	return rank.SearchItem{Rank: pos, Title: "글 제목", Link: link}
}

func intPtr(v int) *int { return &v }

func TestCreateSeedsSnapshotBeforeInsert(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	var rowsAtSeedTime int
	f.collector.onCollect = func() {
		list, err := f.store.ListByOwner(ctx, 1)
		require.NoError(t, err)
		rowsAtSeedTime = len(list)
	}

	created, err := f.svc.Create(ctx, 1, rank.TrackingInput{
		Keyword: "  군산 맛집  ",
		BlogURL: "https://blog.naver.com/foodie/223",
		Title:   "군산 여행기",
	})
	require.NoError(t, err)

	require.Equal(t, 1, f.collector.callCount())
	require.Equal(t, collectCall{keyword: "군산 맛집", count: rank.DefaultResultSize}, f.collector.calls[0])
	require.Zero(t, rowsAtSeedTime, "subscription row must not exist until seeding ran")

	require.Equal(t, int64(1), created.OwnerID)
	require.Equal(t, "군산 맛집", created.Keyword)
	require.True(t, created.Active)
	require.Equal(t, rank.DefaultResultSize, created.ResultSize)
}

func TestCreateToleratesSeedFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.collector.err = errors.New("provider down")

	created, err := f.svc.Create(context.Background(), 1, rank.TrackingInput{
		Keyword: "전주 카페",
		BlogURL: "https://blog.naver.com/latte/101",
	})
	require.NoError(t, err)
	require.Equal(t, 1, f.collector.callCount())
	require.True(t, created.Active)
}

func TestCreateRejectsDuplicate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	in := rank.TrackingInput{Keyword: "군산 맛집", BlogURL: "https://blog.naver.com/foodie/223"}

	_, err := f.svc.Create(ctx, 1, in)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, 1, in)
	require.ErrorIs(t, err, rank.ErrDuplicateTracking)

	list, err := f.svc.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestCreateValidatesInput(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, 1, rank.TrackingInput{BlogURL: "https://blog.naver.com/foodie/223"})
	require.Error(t, err)

	_, err = f.svc.Create(ctx, 1, rank.TrackingInput{Keyword: "군산 맛집"})
	require.Error(t, err)

	require.Zero(t, f.collector.callCount(), "invalid input must not reach the provider")
}

func TestCreateClampsResultSize(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	created, err := f.svc.Create(context.Background(), 1, rank.TrackingInput{
		Keyword:    "군산 맛집",
		BlogURL:    "https://blog.naver.com/foodie/223",
		ResultSize: 250,
	})
	require.NoError(t, err)
	require.Equal(t, 100, created.ResultSize)
	require.Equal(t, 100, f.collector.calls[0].count)
}

func TestLimitStatusCountsActiveOnly(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.grant(1, intPtr(3))

	for _, kw := range []string{"군산 맛집", "전주 카페"} {
		_, err := f.svc.Create(ctx, 1, rank.TrackingInput{Keyword: kw, BlogURL: "https://blog.naver.com/foodie/" + kw})
		require.NoError(t, err)
	}
	paused, err := f.svc.Create(ctx, 1, rank.TrackingInput{Keyword: "익산 빵집", BlogURL: "https://blog.naver.com/bread/1"})
	require.NoError(t, err)
	_, err = f.svc.SetActive(ctx, 1, paused.ID, false)
	require.NoError(t, err)

	status, err := f.svc.LimitStatus(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 3, *status.Max)
	require.Equal(t, 2, status.Current)
	require.Equal(t, 1, *status.Remaining)
	require.True(t, status.CanAddMore)
}

func TestLimitStatusAtQuota(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.grant(1, intPtr(3))

	for _, kw := range []string{"군산 맛집", "전주 카페", "익산 빵집"} {
		_, err := f.svc.Create(ctx, 1, rank.TrackingInput{Keyword: kw, BlogURL: "https://blog.naver.com/foodie/" + kw})
		require.NoError(t, err)
	}

	status, err := f.svc.LimitStatus(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 3, status.Current)
	require.Equal(t, 0, *status.Remaining)
	require.False(t, status.CanAddMore)

	require.ErrorIs(t, f.svc.EnsureCanAdd(ctx, 1), rank.ErrQuotaExceeded)
}

func TestLimitStatusUnlimitedPlan(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.grant(1, nil)

	for _, kw := range []string{"군산 맛집", "전주 카페", "익산 빵집", "부안 해물"} {
		_, err := f.svc.Create(ctx, 1, rank.TrackingInput{Keyword: kw, BlogURL: "https://blog.naver.com/foodie/" + kw})
		require.NoError(t, err)
	}

	status, err := f.svc.LimitStatus(ctx, 1)
	require.NoError(t, err)
	require.Nil(t, status.Max)
	require.Nil(t, status.Remaining)
	require.Equal(t, 4, status.Current)
	require.True(t, status.CanAddMore)
	require.NoError(t, f.svc.EnsureCanAdd(ctx, 1))
}

func TestLimitStatusRequiresValidGrant(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.LimitStatus(ctx, 1)
	require.ErrorIs(t, err, rank.ErrNoActiveGrant)

	expired := f.clock.Now().Add(-time.Hour)
	f.billing.Grants[1] = rank.Grant{OwnerID: 1, Status: rank.GrantActive, ExpiresAt: &expired}
	_, err = f.svc.LimitStatus(ctx, 1)
	require.ErrorIs(t, err, rank.ErrNoActiveGrant)

	f.billing.Grants[1] = rank.Grant{OwnerID: 1, Status: "CANCELLED"}
	_, err = f.svc.LimitStatus(ctx, 1)
	require.ErrorIs(t, err, rank.ErrNoActiveGrant)
}

func TestLimitStatusAcceptsTrialGrant(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	until := f.clock.Now().Add(24 * time.Hour)
	f.billing.Grants[1] = rank.Grant{OwnerID: 1, Status: rank.GrantTrial, ExpiresAt: &until, MaxTrackings: intPtr(1)}

	status, err := f.svc.LimitStatus(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, status.CanAddMore)
}

func TestSetActiveNoOpWritesNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, 1, rank.TrackingInput{Keyword: "군산 맛집", BlogURL: "https://blog.naver.com/foodie/223"})
	require.NoError(t, err)

	same, err := f.svc.SetActive(ctx, 1, created.ID, true)
	require.NoError(t, err)
	require.True(t, same.Active)
	require.Zero(t, f.store.setActiveCalls, "already-active toggle must not write")

	flipped, err := f.svc.SetActive(ctx, 1, created.ID, false)
	require.NoError(t, err)
	require.False(t, flipped.Active)
	require.Equal(t, 1, f.store.setActiveCalls)
}

func TestOwnershipChecks(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, 1, rank.TrackingInput{Keyword: "군산 맛집", BlogURL: "https://blog.naver.com/foodie/223"})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, 2, created.ID)
	require.ErrorIs(t, err, rank.ErrForbidden)
	_, err = f.svc.SetActive(ctx, 2, created.ID, false)
	require.ErrorIs(t, err, rank.ErrForbidden)
	require.ErrorIs(t, f.svc.Delete(ctx, 2, created.ID), rank.ErrForbidden)
	_, err = f.svc.FindBlogRanks(ctx, 2, created.ID)
	require.ErrorIs(t, err, rank.ErrForbidden)

	_, err = f.svc.Get(ctx, 1, created.ID+99)
	require.ErrorIs(t, err, rank.ErrTrackingNotFound)
}

func TestUpdateReplacesMutableFields(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, 1, rank.TrackingInput{Keyword: "군산 맛집", BlogURL: "https://blog.naver.com/foodie/223"})
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, 1, created.ID, rank.TrackingInput{
		Keyword:    "전주 카페",
		BlogURL:    "https://blog.naver.com/latte/101",
		Title:      "전주 카페 투어",
		ResultSize: 60,
	})
	require.NoError(t, err)
	require.Equal(t, created.ID, updated.ID)
	require.Equal(t, int64(1), updated.OwnerID)
	require.Equal(t, "전주 카페", updated.Keyword)
	require.Equal(t, 60, updated.ResultSize)
	require.True(t, updated.Active)
}

func TestDeleteRemovesSubscription(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, 1, rank.TrackingInput{Keyword: "군산 맛집", BlogURL: "https://blog.naver.com/foodie/223"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, 1, created.ID))
	_, err = f.svc.Get(ctx, 1, created.ID)
	require.ErrorIs(t, err, rank.ErrTrackingNotFound)
}

func TestFindBlogRanksGapFillsWindow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	tracked := "https://blog.naver.com/foodie/223"

	// Today at position 4, yesterday at 10, two days ago the snapshot
	// exists but the blog is absent, older days were never collected.
	f.seedSnapshot(t, "2026-08-23", []rank.SearchItem{item(1, "https://blog.naver.com/rival/1"), item(4, tracked)})
	f.seedSnapshot(t, "2026-08-22", []rank.SearchItem{item(10, tracked)})
	f.seedSnapshot(t, "2026-08-21", []rank.SearchItem{item(1, "https://blog.naver.com/rival/1")})

	created, err := f.svc.Create(ctx, 1, rank.TrackingInput{Keyword: "군산 맛집", BlogURL: tracked})
	require.NoError(t, err)

	history, err := f.svc.FindBlogRanks(ctx, 1, created.ID)
	require.NoError(t, err)

	require.Len(t, history.Days, 7)
	wantDates := []string{"2026-08-23", "2026-08-22", "2026-08-21", "2026-08-20", "2026-08-19", "2026-08-18", "2026-08-17"}
	for i, day := range history.Days {
		require.Equal(t, wantDates[i], day.Date)
	}
	require.Equal(t, 4, *history.Days[0].Position)
	require.Equal(t, 10, *history.Days[1].Position)
	for _, day := range history.Days[2:] {
		require.Nil(t, day.Position)
	}

	require.Equal(t, 4, *history.LatestRank)
	require.Equal(t, 6, *history.RankChange, "climbing from 10 to 4 reads +6")
}

func TestFindBlogRanksUnobservedBlog(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.seedSnapshot(t, "2026-08-23", []rank.SearchItem{item(1, "https://blog.naver.com/rival/1")})

	created, err := f.svc.Create(ctx, 1, rank.TrackingInput{Keyword: "군산 맛집", BlogURL: "https://blog.naver.com/unseen/9"})
	require.NoError(t, err)

	history, err := f.svc.FindBlogRanks(ctx, 1, created.ID)
	require.NoError(t, err)
	require.Len(t, history.Days, 7)
	for _, day := range history.Days {
		require.Nil(t, day.Position)
	}
	require.Nil(t, history.LatestRank)
	require.Nil(t, history.RankChange)
}

func TestFindBlogRanksSingleObservation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	tracked := "https://blog.naver.com/foodie/223"

	f.seedSnapshot(t, "2026-08-21", []rank.SearchItem{item(7, tracked)})

	created, err := f.svc.Create(ctx, 1, rank.TrackingInput{Keyword: "군산 맛집", BlogURL: tracked})
	require.NoError(t, err)

	history, err := f.svc.FindBlogRanks(ctx, 1, created.ID)
	require.NoError(t, err)
	require.Equal(t, 7, *history.LatestRank)
	require.Nil(t, history.RankChange, "one observation cannot produce a delta")
}

func TestFindBlogRanksWindowFollowsReferenceTimezone(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	// 20:00 UTC is already the next calendar day in Seoul.
	f.clock = stubClock{now: time.Date(2026, 8, 22, 20, 0, 0, 0, time.UTC)}
	f.svc.clock = f.clock

	created, err := f.svc.Create(ctx, 1, rank.TrackingInput{Keyword: "군산 맛집", BlogURL: "https://blog.naver.com/foodie/223"})
	require.NoError(t, err)

	history, err := f.svc.FindBlogRanks(ctx, 1, created.ID)
	require.NoError(t, err)
	require.Equal(t, "2026-08-23", history.Days[0].Date)
	require.Equal(t, "2026-08-17", history.Days[6].Date)
}

func TestFindBlogRanksServesFromCache(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	tracked := "https://blog.naver.com/foodie/223"

	created, err := f.svc.Create(ctx, 1, rank.TrackingInput{Keyword: "군산 맛집", BlogURL: tracked})
	require.NoError(t, err)

	sentinel := rank.RankHistory{TrackingID: created.ID, Keyword: "군산 맛집", BlogURL: tracked, LatestRank: intPtr(99)}
	f.cache.Set(ctx, "군산 맛집", sentinel)

	history, err := f.svc.FindBlogRanks(ctx, 1, created.ID)
	require.NoError(t, err)
	require.Equal(t, 99, *history.LatestRank)

	f.cache.InvalidateKeyword(ctx, "군산 맛집")
	history, err = f.svc.FindBlogRanks(ctx, 1, created.ID)
	require.NoError(t, err)
	require.Nil(t, history.LatestRank, "recomputed history reflects the store, not the stale entry")
}

func TestFindBlogRanksPopulatesCache(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	tracked := "https://blog.naver.com/foodie/223"

	f.seedSnapshot(t, "2026-08-23", []rank.SearchItem{item(2, tracked)})

	created, err := f.svc.Create(ctx, 1, rank.TrackingInput{Keyword: "군산 맛집", BlogURL: tracked})
	require.NoError(t, err)

	_, err = f.svc.FindBlogRanks(ctx, 1, created.ID)
	require.NoError(t, err)

	cached, ok := f.cache.Get(ctx, created.ID)
	require.True(t, ok)
	require.Equal(t, 2, *cached.LatestRank)
}
