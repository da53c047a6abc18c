package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blogboost/ranktracker/internal/rank"
)

func TestServer_CollectKeyword_Succeeds(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, nil)
	rec := f.do(http.MethodPost, "/v1/collect", `{"keyword":"군산 맛집"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result rank.CollectResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.True(t, result.New)
	require.Equal(t, "군산 맛집", result.Snapshot.Keyword)
	require.Equal(t, "2026-08-23", result.Snapshot.Date)
	require.Equal(t, 2, result.Ranked)

	// Same keyword again on the same date reads the stored snapshot back.
	rec = f.do(http.MethodPost, "/v1/collect", `{"keyword":"군산 맛집"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.False(t, result.New)
	require.Equal(t, 1, f.search.callCount())
}

func TestServer_CollectKeyword_InvalidJSON(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, nil)
	rec := f.do(http.MethodPost, "/v1/collect", `{"keyword":`, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid JSON")
}

func TestServer_CollectKeyword_MissingKeyword(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, nil)
	rec := f.do(http.MethodPost, "/v1/collect", `{"keyword":"   "}`, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "keyword required")
}

func TestServer_CollectKeyword_ProviderDown(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, nil)
	f.search.err = &rank.ProviderError{StatusCode: http.StatusInternalServerError}
	rec := f.do(http.MethodPost, "/v1/collect", `{"keyword":"전주 카페"}`, nil)

	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServer_GetSnapshot_ReturnsBlogs(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, nil)
	rec := f.do(http.MethodPost, "/v1/collect", `{"keyword":"군산 맛집"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Date omitted resolves to today in the reference timezone.
	rec = f.do(http.MethodGet, "/v1/snapshots?keyword=%EA%B5%B0%EC%82%B0%20%EB%A7%9B%EC%A7%91", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp snapshotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "2026-08-23", resp.Snapshot.Date)
	require.Len(t, resp.Blogs, 2)
	require.Equal(t, 1, resp.Blogs[0].Position)
	require.Equal(t, rivalBlog, resp.Blogs[0].Blog.Link)
}

func TestServer_GetSnapshot_Missing(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, nil)
	rec := f.do(http.MethodGet, "/v1/snapshots?keyword=%EC%97%86%EB%8A%94%20%ED%82%A4%EC%9B%8C%EB%93%9C", "", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_GetSnapshot_Validation(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, nil)

	rec := f.do(http.MethodGet, "/v1/snapshots", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "keyword query parameter required")

	rec = f.do(http.MethodGet, "/v1/snapshots?keyword=x&date=23-08-2026", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "YYYY-MM-DD")
}

func TestServer_SnapshotHistory(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, nil)
	seedSnapshot(t, f, "2026-08-22", "군산 맛집")
	rec := f.do(http.MethodPost, "/v1/collect", `{"keyword":"군산 맛집"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/v1/snapshots/history?keyword=%EA%B5%B0%EC%82%B0%20%EB%A7%9B%EC%A7%91&limit=10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Keyword   string          `json:"keyword"`
		Snapshots []rank.Snapshot `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "군산 맛집", resp.Keyword)
	require.Len(t, resp.Snapshots, 2)
	require.Equal(t, "2026-08-23", resp.Snapshots[0].Date)
	require.Equal(t, "2026-08-22", resp.Snapshots[1].Date)
}

func TestServer_SnapshotHistory_BadLimit(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, nil)
	rec := f.do(http.MethodGet, "/v1/snapshots/history?keyword=x&limit=zero", "", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "positive integer")
}

func seedSnapshot(t *testing.T, f *apiFixture, date, keyword string) {
	t.Helper()
	_, created, err := f.snapshots.Create(context.Background(), rank.Snapshot{
		Keyword:      keyword,
		Date:         date,
		TotalResults: 2,
	}, []rank.SearchItem{
		{Rank: 10, Title: "군산 맛집 총정리", Link: trackedBlog, AuthorName: "foodie"},
	})
	require.NoError(t, err)
	require.True(t, created)
}
