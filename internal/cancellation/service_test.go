package cancellation_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/showbook-chat/internal/apperr"
	"github.com/iliyamo/showbook-chat/internal/cancellation"
	"github.com/iliyamo/showbook-chat/internal/model"
	"github.com/iliyamo/showbook-chat/internal/queue"
	"github.com/iliyamo/showbook-chat/internal/reservation"
	"github.com/iliyamo/showbook-chat/internal/storetest"
)

type fakeTickets struct {
	issued []int
}

func (f *fakeTickets) Issue(_ context.Context, b *model.Booking, codes []string) (string, error) {
	f.issued = append(f.issued, b.TicketVersion)
	return fmt.Sprintf("https://t.example/qr/%s-v%d.png", b.Ref, b.TicketVersion), nil
}

type fakeEvents struct {
	cancelled []queue.BookingCancelledEvent
}

func (f *fakeEvents) PublishBookingCancelled(_ context.Context, ev queue.BookingCancelledEvent) error {
	f.cancelled = append(f.cancelled, ev)
	return nil
}

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	st      *storetest.Store
	svc     *cancellation.Service
	tickets *fakeTickets
	events  *fakeEvents
	showID  uint64
	booking *model.Booking
}

func newFixture(t *testing.T, show model.Show) *fixture {
	t.Helper()
	st := storetest.New()
	st.Now = func() time.Time { return now }
	show.Keyword = "SHOW_CX"
	if show.StartsAt.IsZero() {
		show.StartsAt = now.Add(30 * time.Hour)
	}
	show.Status = model.ShowStatusBookingEnabled
	showID := st.AddShow(show)
	prices := map[string]int64{"A1": 100, "A2": 150, "A3": 200}
	var lines []model.BookingSeat
	var total int64
	for _, code := range []string{"A1", "A2", "A3"} {
		catID := st.AddCategory(showID, "Cat-"+code, prices[code], code)
		seat := st.Seat(showID, code)
		st.SetSeat(showID, code, model.SeatBooked, nil)
		lines = append(lines, model.BookingSeat{SeatID: seat.ID, SeatCode: code, CategoryID: catID, PriceCents: prices[code]})
		total += prices[code]
	}
	b := &model.Booking{
		Ref: "BK-CX000001", ShowID: showID, BookerName: "Asha", BookerPhone: "919800000001",
		Quantity: 3, TotalCents: total, Status: model.BookingConfirmed, TicketVersion: 1, Lines: lines,
	}
	require.NoError(t, st.Create(context.Background(), b))

	tickets, events := &fakeTickets{}, &fakeEvents{}
	eng := reservation.NewEngine(st, reservation.WithClock(st.Now))
	svc := cancellation.NewService(cancellation.Deps{
		Tx:            st,
		Shows:         st.ShowReader(),
		Bookings:      st,
		Cancellations: st.Cancellations(),
		Logs:          st,
		Engine:        eng,
		Tickets:       tickets,
		Events:        events,
		Clock:         func() time.Time { return now },
	})
	return &fixture{st: st, svc: svc, tickets: tickets, events: events, showID: showID, booking: b}
}

var standardSlabs = []model.RefundSlab{{HoursBeforeShow: 48, RefundPercent: 100}, {HoursBeforeShow: 24, RefundPercent: 50}, {HoursBeforeShow: 0, RefundPercent: 0}}

func TestPartialCancellationArithmetic(t *testing.T) {
	f := newFixture(t, model.Show{CancellationAllowed: true, RefundSlabs: standardSlabs})

	res, err := f.svc.CancelPartial(context.Background(), f.booking.ID, []string{"a2"}, "test")
	require.NoError(t, err)

	assert.False(t, res.Full)
	assert.Equal(t, 50, res.Cancellation.RefundPercent)
	assert.Equal(t, int64(75), res.Cancellation.RefundCents)
	assert.Equal(t, []string{"A2"}, res.Cancellation.SeatCodes)
	assert.Equal(t, model.RefundPending, res.Cancellation.RefundStatus)

	stored, err := f.st.GetByID(context.Background(), f.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, stored.Status)
	assert.Equal(t, 2, stored.Quantity)
	assert.Equal(t, int64(300), stored.TotalCents)
	assert.Equal(t, []string{"A1", "A3"}, stored.SeatCodes())
	assert.Equal(t, 2, stored.TicketVersion)
	assert.Equal(t, res.TicketURL, stored.TicketURL)
	assert.Equal(t, []int{2}, f.tickets.issued)

	assert.Equal(t, model.SeatAvailable, f.st.Seat(f.showID, "A2").Status)
	assert.Equal(t, model.SeatBooked, f.st.Seat(f.showID, "A1").Status)
	assert.Equal(t, []string{model.LogPartialCancellation}, f.st.LogActions())

	require.Len(t, f.events.cancelled, 1)
	assert.Equal(t, 2, f.events.cancelled[0].RemainingQuantity)
	assert.False(t, f.events.cancelled[0].Full)
}

func TestRepeatedPartialCancellation(t *testing.T) {
	f := newFixture(t, model.Show{CancellationAllowed: true, RefundSlabs: standardSlabs})
	ctx := context.Background()

	_, err := f.svc.CancelPartial(ctx, f.booking.ID, []string{"A1"}, "")
	require.NoError(t, err)
	res, err := f.svc.CancelPartial(ctx, f.booking.ID, []string{"A3"}, "")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Booking.Quantity)
	assert.Equal(t, int64(150), res.Booking.TotalCents)
	assert.Equal(t, 3, res.Booking.TicketVersion)
	assert.Len(t, f.st.CancellationsMade(), 2)
}

func TestPartialCancellationOfEverySeatIsFull(t *testing.T) {
	f := newFixture(t, model.Show{CancellationAllowed: true, RefundSlabs: standardSlabs})

	res, err := f.svc.CancelPartial(context.Background(), f.booking.ID, []string{"A3", "A1", "A2"}, "")
	require.NoError(t, err)
	assert.True(t, res.Full)
	assert.Equal(t, int64(225), res.Cancellation.RefundCents)
	assert.Empty(t, f.tickets.issued)
}

func TestCancelFull(t *testing.T) {
	f := newFixture(t, model.Show{CancellationAllowed: true, RefundSlabs: standardSlabs, StartsAt: now.Add(72 * time.Hour)})

	res, err := f.svc.CancelFull(context.Background(), f.booking.ID, "changed plans")
	require.NoError(t, err)
	assert.True(t, res.Full)
	assert.Equal(t, 100, res.Cancellation.RefundPercent)
	assert.Equal(t, int64(450), res.Cancellation.RefundCents)
	assert.InDelta(t, 72.0, res.Cancellation.HoursBeforeShow, 1e-9)

	stored, err := f.st.GetByID(context.Background(), f.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, stored.Status)
	for _, code := range []string{"A1", "A2", "A3"} {
		assert.Equal(t, model.SeatAvailable, f.st.Seat(f.showID, code).Status)
	}
	require.Len(t, f.events.cancelled, 1)
	assert.True(t, f.events.cancelled[0].Full)
	assert.Zero(t, f.events.cancelled[0].RemainingQuantity)

	_, err = f.svc.CancelFull(context.Background(), f.booking.ID, "again")
	assert.True(t, apperr.Is(err, apperr.KindPolicyDenied))
}

func TestPreviewPolicyDenials(t *testing.T) {
	cases := []struct {
		name string
		show model.Show
	}{
		{"cancellation disallowed", model.Show{CancellationAllowed: false, RefundSlabs: standardSlabs}},
		{"refund window closed", model.Show{CancellationAllowed: true, RefundSlabs: standardSlabs, StartsAt: now.Add(5 * time.Hour)}},
		{"show started", model.Show{CancellationAllowed: true, RefundSlabs: standardSlabs, StartsAt: now.Add(-time.Hour)}},
		{"no policy", model.Show{CancellationAllowed: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.show)
			_, err := f.svc.Preview(context.Background(), f.booking.ID)
			assert.True(t, apperr.Is(err, apperr.KindPolicyDenied), "got %v", err)

			_, err = f.svc.CancelPartial(context.Background(), f.booking.ID, []string{"A1"}, "")
			assert.True(t, apperr.Is(err, apperr.KindPolicyDenied))
			assert.Empty(t, f.st.CancellationsMade())
		})
	}
}

func TestPreviewUnknownBooking(t *testing.T) {
	f := newFixture(t, model.Show{CancellationAllowed: true, RefundSlabs: standardSlabs})
	_, err := f.svc.Preview(context.Background(), 999999)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCancelPartialRejectsForeignSeat(t *testing.T) {
	f := newFixture(t, model.Show{CancellationAllowed: true, RefundSlabs: standardSlabs})
	_, err := f.svc.CancelPartial(context.Background(), f.booking.ID, []string{"Z9"}, "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.CancelPartial(context.Background(), f.booking.ID, nil, "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
