package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/lmei/steamscout/internal/catalog"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func newTestStore(t *testing.T) (*Store, pgxmock.PgxPoolIface, time.Time) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	now := time.Unix(1_700_000_000, 0).UTC()
	store, err := NewWithPool(mock, 3, fixedClock{now: now})
	require.NoError(t, err)
	return store, mock, now
}

func TestSeedInsertsNewIDsOnly(t *testing.T) {
	t.Parallel()

	store, mock, _ := newTestStore(t)

	mock.ExpectExec("INSERT INTO apps").
		WithArgs([]int64{10, 20, 30}).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	added, err := store.Seed(context.Background(), []catalog.AppID{10, 20, 30})
	require.NoError(t, err)
	require.Equal(t, 2, added)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedChunksLargeInput(t *testing.T) {
	t.Parallel()

	store, mock, _ := newTestStore(t)

	ids := make([]catalog.AppID, seedChunkSize+1)
	for i := range ids {
		ids[i] = catalog.AppID(i + 1)
	}

	mock.ExpectExec("INSERT INTO apps").
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", int64(seedChunkSize)))
	mock.ExpectExec("INSERT INTO apps").
		WithArgs([]int64{int64(seedChunkSize + 1)}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	added, err := store.Seed(context.Background(), ids)
	require.NoError(t, err)
	require.Equal(t, seedChunkSize+1, added)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCount(t *testing.T) {
	t.Parallel()

	store, mock, _ := newTestStore(t)

	mock.ExpectQuery("SELECT count").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(42)))

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 42, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectDiscoveryBatch(t *testing.T) {
	t.Parallel()

	store, mock, _ := newTestStore(t)

	rows := pgxmock.NewRows([]string{"appid"}).AddRow(int64(1)).AddRow(int64(5))
	mock.ExpectQuery("SELECT appid FROM apps").
		WithArgs(100).
		WillReturnRows(rows)

	ids, err := store.SelectDiscoveryBatch(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, []catalog.AppID{1, 5}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectClassifyBatchPassesStaleness(t *testing.T) {
	t.Parallel()

	store, mock, now := newTestStore(t)
	staleBefore := now.Add(-30 * 24 * time.Hour)

	rows := pgxmock.NewRows([]string{"appid"}).AddRow(int64(7))
	mock.ExpectQuery("SELECT appid FROM apps").
		WithArgs(50, staleBefore).
		WillReturnRows(rows)

	ids, err := store.SelectClassifyBatch(context.Background(), 50, staleBefore)
	require.NoError(t, err)
	require.Equal(t, []catalog.AppID{7}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectClassifyBatchEmptyIsNotAnError(t *testing.T) {
	t.Parallel()

	store, mock, now := newTestStore(t)

	mock.ExpectQuery("SELECT appid FROM apps").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"appid"}))

	ids, err := store.SelectClassifyBatch(context.Background(), 50, now)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestMarkFetched(t *testing.T) {
	t.Parallel()

	store, mock, now := newTestStore(t)

	mock.ExpectExec("UPDATE apps SET fetched").
		WithArgs(int64(77), true, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.MarkFetched(context.Background(), 77, true))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkClassifiedResetsRetries(t *testing.T) {
	t.Parallel()

	store, mock, now := newTestStore(t)

	mock.ExpectExec("UPDATE apps SET fetched = TRUE, classified = TRUE").
		WithArgs(int64(77), true, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.MarkClassified(context.Background(), 77, true))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFailureBelowCeiling(t *testing.T) {
	t.Parallel()

	store, mock, now := newTestStore(t)

	rows := pgxmock.NewRows([]string{"retry_count", "classified"}).AddRow(1, false)
	mock.ExpectQuery("UPDATE apps SET retry_count").
		WithArgs(int64(3), 3, now).
		WillReturnRows(rows)

	retries, closed, err := store.RecordFailure(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, 1, retries)
	require.False(t, closed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFailureAtCeilingClosesRow(t *testing.T) {
	t.Parallel()

	store, mock, now := newTestStore(t)

	rows := pgxmock.NewRows([]string{"retry_count", "classified"}).AddRow(3, true)
	mock.ExpectQuery("UPDATE apps SET retry_count").
		WithArgs(int64(7), 3, now).
		WillReturnRows(rows)

	retries, closed, err := store.RecordFailure(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, 3, retries)
	require.True(t, closed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistenceErrorsAreTagged(t *testing.T) {
	t.Parallel()

	store, mock, _ := newTestStore(t)

	mock.ExpectQuery("SELECT count").
		WillReturnError(errors.New("connection reset"))

	_, err := store.Count(context.Background())
	require.ErrorIs(t, err, catalog.ErrPersistence)
}
