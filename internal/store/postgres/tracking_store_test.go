package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/blogboost/ranktracker/internal/rank"
)

func trackingRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "owner_id", "keyword", "blog_url", "title", "active",
		"result_size", "last_collected_at", "created_at", "updated_at",
	})
}

func TestTrackingCreateReturnsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery("INSERT INTO tracked_keywords").
		WithArgs(int64(1), "군산 맛집", "https://blog.naver.com/foodie", "내 블로그", true, 40).
		WillReturnRows(trackingRows().
			AddRow(int64(5), int64(1), "군산 맛집", "https://blog.naver.com/foodie", "내 블로그", true, 40, nil, now, now))

	store := NewTrackingStore(mock)
	tr, err := store.Create(context.Background(), rank.Tracking{
		OwnerID:    1,
		Keyword:    "군산 맛집",
		BlogURL:    "https://blog.naver.com/foodie",
		Title:      "내 블로그",
		Active:     true,
		ResultSize: 40,
	})
	require.NoError(t, err)
	require.Equal(t, int64(5), tr.ID)
	require.True(t, tr.Active)
	require.Nil(t, tr.LastCollectedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackingCreateDuplicate(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO tracked_keywords").
		WithArgs(int64(1), "군산 맛집", "https://blog.naver.com/foodie", "", true, 40).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "tracked_keywords_owner_id_keyword_blog_url_key"})

	store := NewTrackingStore(mock)
	_, err = store.Create(context.Background(), rank.Tracking{
		OwnerID:    1,
		Keyword:    "군산 맛집",
		BlogURL:    "https://blog.naver.com/foodie",
		Active:     true,
		ResultSize: 40,
	})
	require.ErrorIs(t, err, rank.ErrDuplicateTracking)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackingGetMissing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM tracked_keywords").
		WithArgs(int64(404)).
		WillReturnError(pgx.ErrNoRows)

	store := NewTrackingStore(mock)
	_, err = store.Get(context.Background(), 404)
	require.ErrorIs(t, err, rank.ErrTrackingNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackingListByOwner(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	collected := now.Add(-6 * time.Hour)
	mock.ExpectQuery("FROM tracked_keywords").
		WithArgs(int64(1)).
		WillReturnRows(trackingRows().
			AddRow(int64(6), int64(1), "전주 카페", "https://blog.naver.com/foodie", "", true, 20, &collected, now, now).
			AddRow(int64(5), int64(1), "군산 맛집", "https://blog.naver.com/foodie", "", false, 40, nil, now, now))

	store := NewTrackingStore(mock)
	list, err := store.ListByOwner(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "전주 카페", list[0].Keyword)
	require.NotNil(t, list[0].LastCollectedAt)
	require.False(t, list[1].Active)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackingCountActiveByOwner(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT count").
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	store := NewTrackingStore(mock)
	n, err := store.CountActiveByOwner(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackingSetActive(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE tracked_keywords").
		WithArgs(int64(5), false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	store := NewTrackingStore(mock)
	require.NoError(t, store.SetActive(context.Background(), 5, false))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackingSetActiveMissing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE tracked_keywords").
		WithArgs(int64(404), true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	store := NewTrackingStore(mock)
	err = store.SetActive(context.Background(), 404, true)
	require.ErrorIs(t, err, rank.ErrTrackingNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackingUpdateReturnsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery("UPDATE tracked_keywords").
		WithArgs(int64(5), "군산 맛집 추천", "https://blog.naver.com/foodie", "새 이름", 20).
		WillReturnRows(trackingRows().
			AddRow(int64(5), int64(1), "군산 맛집 추천", "https://blog.naver.com/foodie", "새 이름", true, 20, nil, now, now))

	store := NewTrackingStore(mock)
	tr, err := store.Update(context.Background(), rank.Tracking{
		ID:         5,
		Keyword:    "군산 맛집 추천",
		BlogURL:    "https://blog.naver.com/foodie",
		Title:      "새 이름",
		ResultSize: 20,
	})
	require.NoError(t, err)
	require.Equal(t, "군산 맛집 추천", tr.Keyword)
	require.Equal(t, 20, tr.ResultSize)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackingDeleteMissing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM tracked_keywords").
		WithArgs(int64(404)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	store := NewTrackingStore(mock)
	err = store.Delete(context.Background(), 404)
	require.ErrorIs(t, err, rank.ErrTrackingNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveKeywordsForOwners(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT DISTINCT keyword").
		WithArgs([]int64{1, 2}).
		WillReturnRows(pgxmock.NewRows([]string{"keyword"}).
			AddRow("군산 맛집").
			AddRow("전주 카페"))

	store := NewTrackingStore(mock)
	keywords, err := store.ActiveKeywordsForOwners(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	require.Equal(t, []string{"군산 맛집", "전주 카페"}, keywords)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveKeywordsForOwnersEmpty(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewTrackingStore(mock)
	keywords, err := store.ActiveKeywordsForOwners(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, keywords)
	// No query is issued when there are no owners.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTouchCollected(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2026, 8, 23, 2, 1, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE tracked_keywords").
		WithArgs("군산 맛집", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	store := NewTrackingStore(mock)
	require.NoError(t, store.TouchCollected(context.Background(), "군산 맛집", at))
	require.NoError(t, mock.ExpectationsWereMet())
}
