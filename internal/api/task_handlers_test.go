package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blogboost/ranktracker/internal/rank"
)

func TestServer_RunTask_Accepted(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, nil)
	rec := f.do(http.MethodPost, "/v1/tasks/payment_retry/run", "", nil)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "started")

	require.Eventually(t, func() bool {
		run, ok := f.latestRun(t, "payment_retry")
		return ok && run.Status == rank.TaskCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_RunTask_Unknown(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, nil)
	rec := f.do(http.MethodPost, "/v1/tasks/backfill/run", "", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_RunTask_Conflict(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, nil)
	f.search.gate = make(chan struct{})
	f.billing.Owners = []int64{1}
	_, err := f.trackings.Create(context.Background(), rank.Tracking{
		OwnerID:    1,
		Keyword:    "군산 맛집",
		BlogURL:    trackedBlog,
		Active:     true,
		ResultSize: 10,
	})
	require.NoError(t, err)

	rec := f.do(http.MethodPost, "/v1/tasks/rank_collection/run", "", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// The first run is parked on the provider call, so a second trigger
	// is rejected rather than queued.
	rec = f.do(http.MethodPost, "/v1/tasks/rank_collection/run", "", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "already running")

	close(f.search.gate)
	require.Eventually(t, func() bool {
		run, ok := f.latestRun(t, "rank_collection")
		return ok && run.Status == rank.TaskCompleted && run.Processed == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_LatestTaskRun_NotFound(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, nil)
	rec := f.do(http.MethodGet, "/v1/tasks/subscription_renewal/runs/latest", "", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func (f *apiFixture) latestRun(t *testing.T, task string) (rank.TaskRun, bool) {
	t.Helper()
	rec := f.do(http.MethodGet, "/v1/tasks/"+task+"/runs/latest", "", nil)
	if rec.Code != http.StatusOK {
		return rank.TaskRun{}, false
	}
	var run rank.TaskRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	return run, true
}
