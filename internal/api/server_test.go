package api

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blogboost/ranktracker/internal/billing"
	"github.com/blogboost/ranktracker/internal/cache"
	"github.com/blogboost/ranktracker/internal/collect"
	"github.com/blogboost/ranktracker/internal/config"
	iduuid "github.com/blogboost/ranktracker/internal/id/uuid"
	"github.com/blogboost/ranktracker/internal/metrics"
	"github.com/blogboost/ranktracker/internal/rank"
	"github.com/blogboost/ranktracker/internal/sched"
	memstore "github.com/blogboost/ranktracker/internal/store/memory"
	"github.com/blogboost/ranktracker/internal/throttle"
	"github.com/blogboost/ranktracker/internal/tracking"
)

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, nil)
	rec := f.do(http.MethodGet, "/healthz", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
}

func TestServer_ReadyzChecksDownstream(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, nil)
	f.readyErr = errors.New("pool closed")
	rec := f.do(http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	f.readyErr = nil
	rec = f.do(http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, nil)
	rec := f.do(http.MethodGet, "/metrics", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "# HELP")
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, func(cfg *config.Config) {
		cfg.Auth.Enabled = true
		cfg.Auth.APIKey = "secret"
	})

	rec := f.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodGet, "/healthz", "", map[string]string{"X-API-Key": "secret"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/healthz?api_key=secret", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, nil)
	rec := f.do(http.MethodGet, "/healthz", "", nil)

	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	require.EqualError(t, err, "hijacker not supported")

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	require.NoError(t, err)
	require.NotNil(t, buf)
	require.NoError(t, conn.Close())
	require.NoError(t, h.client.Close())
}

// --- helpers/fakes ---

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type stubSearch struct {
	mu    sync.Mutex
	items []rank.SearchItem
	err   error
	calls int
	gate  chan struct{}
}

func (s *stubSearch) Search(_ context.Context, _ string, _ int) (rank.SearchResult, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return rank.SearchResult{}, s.err
	}
	items := append([]rank.SearchItem(nil), s.items...)
	return rank.SearchResult{
		Total: int64(len(items)),
		Items: items,
		Raw:   []byte(`{"display":2}`),
	}, nil
}

func (s *stubSearch) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type apiFixture struct {
	server    *Server
	search    *stubSearch
	snapshots *memstore.SnapshotStore
	trackings *memstore.TrackingStore
	runs      *memstore.TaskRunStore
	billing   *billing.Fake
	readyErr  error
}

const (
	trackedBlog = "https://blog.naver.com/foodie/223"
	rivalBlog   = "https://blog.naver.com/rival/1"
)

func newAPIFixture(t *testing.T, mutate func(*config.Config)) *apiFixture {
	t.Helper()
	metrics.Init()
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	clk := fixedClock{now: time.Date(2026, 8, 23, 12, 0, 0, 0, seoul)}

	f := &apiFixture{
		search: &stubSearch{items: []rank.SearchItem{
			{Rank: 1, Title: "군산 여행 1편", Link: rivalBlog, AuthorName: "rival"},
			{Rank: 4, Title: "군산 맛집 총정리", Link: trackedBlog, AuthorName: "foodie"},
		}},
		snapshots: memstore.NewSnapshotStore(),
		trackings: memstore.NewTrackingStore(),
		runs:      memstore.NewTaskRunStore(),
		billing:   billing.NewFake(),
	}
	historyCache := cache.NewMemory()

	collector := collect.New(
		collect.Config{Timezone: seoul, DefaultSize: rank.DefaultResultSize},
		collect.Deps{Search: f.search, Store: f.snapshots, Cache: historyCache, Clock: clk},
		zap.NewNop(),
	)
	trackSvc := tracking.New(
		tracking.Config{Timezone: seoul, HistoryDays: 7},
		tracking.Deps{
			Store:     f.trackings,
			Snapshots: f.snapshots,
			Collector: collector,
			Billing:   f.billing,
			Cache:     historyCache,
			Clock:     clk,
		},
		zap.NewNop(),
	)
	tasks := sched.NewTasks(sched.Deps{
		Runs:      f.runs,
		IDs:       iduuid.NewUUIDGenerator(),
		Collector: collector,
		Trackings: f.trackings,
		Billing:   f.billing,
		Pacer:     throttle.New(0),
		Clock:     clk,
	}, zap.NewNop())
	scheduler, err := sched.NewScheduler(tasks, sched.Specs{}, zap.NewNop())
	require.NoError(t, err)

	cfg := config.Config{Server: config.ServerConfig{Port: 8080}}
	if mutate != nil {
		mutate(&cfg)
	}

	ready := func(context.Context) error { return f.readyErr }
	f.server = NewServer(collector, trackSvc, scheduler, ready, cfg, zap.NewNop())
	return f
}

func (f *apiFixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func asOwner(ownerID int64) map[string]string {
	return map[string]string{"X-Owner-ID": strconv.FormatInt(ownerID, 10)}
}

func (f *apiFixture) grant(ownerID int64, max *int) {
	f.billing.Grants[ownerID] = rank.Grant{OwnerID: ownerID, Status: rank.GrantActive, MaxTrackings: max}
}

func intPtr(v int) *int { return &v }

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}
