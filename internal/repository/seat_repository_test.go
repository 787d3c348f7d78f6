package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/showbook-chat/internal/database"
	"github.com/iliyamo/showbook-chat/internal/model"
)

func TestLockSeatsIsPerSeatCompareAndSet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	until := time.Date(2026, 5, 1, 18, 10, 0, 0, time.UTC)
	lock := `UPDATE seats SET status = 'LOCKED', locked_until = \? WHERE id = \? AND status = 'AVAILABLE'`
	mock.ExpectExec(lock).WithArgs(until, uint64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(lock).WithArgs(until, uint64(2)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(lock).WithArgs(until, uint64(3)).WillReturnResult(sqlmock.NewResult(0, 1))

	locked, err := NewSeatRepo(db).LockSeats(context.Background(), []uint64{1, 2, 3}, until.Add(400*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3}, locked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitSeatsRequiresFreshLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE seats SET status = 'BOOKED', locked_until = NULL\s+WHERE status = 'LOCKED' AND locked_until > \? AND id IN \(\?, \?\)`).
		WithArgs(now, uint64(4), uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := NewSeatRepo(db).CommitSeats(context.Background(), []uint64{4, 5}, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseExpiredLocksSkipsRelockedSeats(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id FROM seats WHERE status = 'LOCKED' AND locked_until <= \?`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7).AddRow(8))
	release := `UPDATE seats SET status = 'AVAILABLE', locked_until = NULL\s+WHERE id = \? AND status = 'LOCKED' AND locked_until <= \?`
	mock.ExpectExec(release).WithArgs(uint64(7), now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(release).WithArgs(uint64(8), now).WillReturnResult(sqlmock.NewResult(0, 0))

	released, err := NewSeatRepo(db).ReleaseExpiredLocks(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []uint64{7}, released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseHeldSeatsMatchesTheHold(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	until := time.Date(2026, 5, 1, 18, 10, 0, 0, time.UTC)
	now := time.Date(2026, 5, 1, 18, 4, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE seats SET status = 'AVAILABLE', locked_until = NULL\s+WHERE status = 'LOCKED' AND locked_until = \? AND locked_until > \? AND id IN \(\?, \?\)`).
		WithArgs(until, now, uint64(4), uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := NewSeatRepo(db).ReleaseHeldSeats(context.Background(), []uint64{4, 5}, until.Add(300*time.Millisecond), now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseExpiredLocksReportsScanErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id FROM seats WHERE status = 'LOCKED'`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7).RowError(0, errors.New("connection reset")))

	_, err = NewSeatRepo(db).ReleaseExpiredLocks(context.Background(), now)
	assert.EqualError(t, err, "connection reset")
}

func TestReleaseExpiredLocksReportsRowsAffectedErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id FROM seats WHERE status = 'LOCKED'`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec(`UPDATE seats SET status = 'AVAILABLE'`).
		WithArgs(uint64(7), now).
		WillReturnResult(sqlmock.NewErrorResult(errors.New("driver lost count")))

	released, err := NewSeatRepo(db).ReleaseExpiredLocks(context.Background(), now)
	assert.EqualError(t, err, "driver lost count")
	assert.Empty(t, released)
}

func TestEmptySeatSetsSkipTheDatabase(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewSeatRepo(db)
	ctx := context.Background()

	n, err := repo.CommitSeats(ctx, nil, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = repo.ReleaseSeats(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = repo.ReleaseHeldSeats(ctx, nil, time.Now(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = repo.CountFreshLocks(ctx, nil, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	seats, err := repo.FindByCodes(ctx, 1, nil)
	require.NoError(t, err)
	assert.Nil(t, seats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAvailableExcludesSelection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM seats\s+WHERE show_id = \? AND category_id = \? AND status = 'AVAILABLE' AND seat_code NOT IN \(\?, \?\) ORDER BY row_label, seat_number LIMIT \?`).
		WithArgs(uint64(1), uint64(2), "A1", "A2", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "show_id", "category_id", "row_label", "seat_number", "seat_code", "status", "locked_until"}).
			AddRow(13, 1, 2, "A", 3, "A3", model.SeatAvailable, nil))

	seats, err := NewSeatRepo(db).ListAvailable(context.Background(), 1, 2, []string{"A1", "A2"}, 10)
	require.NoError(t, err)
	require.Len(t, seats, 1)
	assert.Equal(t, "A3", seats[0].Code)
	assert.Nil(t, seats[0].LockedUntil)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCategoryNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT id, show_id, name, price_cents FROM seat_categories`).
		WithArgs(uint64(9), uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "show_id", "name", "price_cents"}))

	_, err = NewSeatRepo(db).GetCategory(context.Background(), 1, 9)
	assert.ErrorIs(t, err, ErrCategoryNotFound)
}

func TestRepositoriesJoinCarriedTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	until := time.Date(2026, 5, 1, 18, 10, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE seats SET status = 'LOCKED'`).WithArgs(until, uint64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO bookings`).WillReturnError(errors.New("duplicate booking_ref"))
	mock.ExpectRollback()

	seats, bookings := NewSeatRepo(db), NewBookingRepo(db)
	err = database.NewTransactor(db).WithTx(context.Background(), func(ctx context.Context) error {
		if _, err := seats.LockSeats(ctx, []uint64{1}, until); err != nil {
			return err
		}
		return bookings.Create(ctx, &model.Booking{Ref: "BK-1"})
	})
	assert.EqualError(t, err, "duplicate booking_ref")
	assert.NoError(t, mock.ExpectationsWereMet())
}
