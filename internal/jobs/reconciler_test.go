package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/showbook-chat/internal/model"
	"github.com/iliyamo/showbook-chat/internal/reservation"
	"github.com/iliyamo/showbook-chat/internal/storetest"
)

type world struct {
	st     *storetest.Store
	rec    *Reconciler
	now    *time.Time
	showID uint64
}

func newWorld(t *testing.T) *world {
	t.Helper()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	st := storetest.New()
	st.Now = clock
	showID := st.AddShow(model.Show{Keyword: "SHOW_JOB", Status: model.ShowStatusBookingEnabled})
	st.AddCategory(showID, "Gold", 1000, "A1", "A2", "A3", "A4")
	engine := reservation.NewEngine(st, reservation.WithClock(clock), reservation.WithHold(10*time.Minute))
	return &world{st: st, rec: NewReconciler(engine, st, st, st, time.Minute, nil), now: &now, showID: showID}
}

func (w *world) pending(t *testing.T, status string, until time.Time, codes ...string) *model.Booking {
	t.Helper()
	b := &model.Booking{Ref: "BK-" + codes[0], ShowID: w.showID, Status: status, Quantity: len(codes), TicketVersion: 1}
	for _, c := range codes {
		u := until
		w.st.SetSeat(w.showID, c, model.SeatLocked, &u)
		b.Lines = append(b.Lines, model.BookingSeat{SeatID: w.st.Seat(w.showID, c).ID, SeatCode: c, PriceCents: 1000})
	}
	require.NoError(t, w.st.Create(context.Background(), b))
	return b
}

func TestSweepReleasesLapsedHoldsAndExpiresBookings(t *testing.T) {
	w := newWorld(t)
	lapsed := w.pending(t, model.BookingSeatsSelected, w.now.Add(-time.Second), "A1", "A2")
	live := w.pending(t, model.BookingSeatsSelected, w.now.Add(5*time.Minute), "A3")

	rep, err := w.rec.Sweep(context.Background())
	require.NoError(t, err)

	assert.Len(t, rep.ReleasedSeats, 2)
	assert.Equal(t, []uint64{lapsed.ID}, rep.ExpiredBookings)
	assert.Equal(t, model.SeatAvailable, w.st.Seat(w.showID, "A1").Status)
	assert.Equal(t, model.SeatAvailable, w.st.Seat(w.showID, "A2").Status)
	assert.Equal(t, model.SeatLocked, w.st.Seat(w.showID, "A3").Status)

	got, err := w.st.GetByID(context.Background(), lapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingExpired, got.Status)
	got, err = w.st.GetByID(context.Background(), live.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingSeatsSelected, got.Status)
	assert.Equal(t, []string{model.LogBookingExpired}, w.st.LogActions())

	rep, err = w.rec.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rep.ReleasedSeats)
	assert.Len(t, w.st.Logs(), 1, "second sweep is a no-op")
}

func TestSweepLeavesSettledBookingsAlone(t *testing.T) {
	w := newWorld(t)
	b := w.pending(t, model.BookingCancelled, w.now.Add(-time.Minute), "A4")

	rep, err := w.rec.Sweep(context.Background())
	require.NoError(t, err)
	assert.Len(t, rep.ReleasedSeats, 1)
	assert.Empty(t, rep.ExpiredBookings)
	got, err := w.st.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, got.Status)
}

func TestHoldEndingExactlyNowIsReleased(t *testing.T) {
	w := newWorld(t)
	w.pending(t, model.BookingSeatsSelected, *w.now, "A1")

	rep, err := w.rec.Sweep(context.Background())
	require.NoError(t, err)
	assert.Len(t, rep.ReleasedSeats, 1)
}

func TestProcessTaskRunsSweep(t *testing.T) {
	w := newWorld(t)
	w.pending(t, model.BookingSeatsSelected, w.now.Add(-time.Second), "A1")

	task := NewReleaseExpiredSeatsTask()
	assert.Equal(t, TypeReleaseExpiredSeats, task.Type())
	require.NoError(t, w.rec.ProcessTask(context.Background(), task))
	assert.Equal(t, model.SeatAvailable, w.st.Seat(w.showID, "A1").Status)
}

type failingExpirer struct{ BookingExpirer }

func (failingExpirer) ExpireSelectedForSeats(context.Context, []uint64) ([]uint64, error) {
	return nil, errors.New("db down")
}

func TestFailedSweepRollsBackAndSkipsRetry(t *testing.T) {
	w := newWorld(t)
	w.pending(t, model.BookingSeatsSelected, w.now.Add(-time.Second), "A1")
	w.rec.bookings = failingExpirer{w.st}

	err := w.rec.ProcessTask(context.Background(), NewReleaseExpiredSeatsTask())
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, model.SeatLocked, w.st.Seat(w.showID, "A1").Status, "release rolled back")
}

func TestRunStopsWithContext(t *testing.T) {
	w := newWorld(t)
	w.pending(t, model.BookingSeatsSelected, w.now.Add(-time.Second), "A2")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.rec.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return w.st.Seat(w.showID, "A2").Status == model.SeatAvailable
	}, time.Second, 10*time.Millisecond, "first sweep runs immediately")
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewReconcilerDefaultsInterval(t *testing.T) {
	r := NewReconciler(nil, nil, nil, nil, 0, nil)
	assert.Equal(t, time.Minute, r.Interval())
}
