package checkin_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/showbook-chat/internal/checkin"
	"github.com/iliyamo/showbook-chat/internal/model"
	"github.com/iliyamo/showbook-chat/internal/storetest"
	"github.com/iliyamo/showbook-chat/internal/ticket"
)

type fixture struct {
	st      *storetest.Store
	signer  *ticket.Signer
	svc     *checkin.Service
	showID  uint64
	booking *model.Booking
}

func newFixture(t *testing.T, status string, version int) *fixture {
	t.Helper()
	st := storetest.New()
	showID := st.AddShow(model.Show{Keyword: "SHOW_CHK", Status: model.ShowStatusBookingEnabled})
	st.AddCategory(showID, "Gold", 1000, "A1", "A2")
	b := &model.Booking{
		Ref: "BK-CHECK001", ShowID: showID, Status: status, Quantity: 2, TicketVersion: version,
		Lines: []model.BookingSeat{
			{SeatID: st.Seat(showID, "A1").ID, SeatCode: "A1"},
			{SeatID: st.Seat(showID, "A2").ID, SeatCode: "A2"},
		},
	}
	require.NoError(t, st.Create(context.Background(), b))
	signer := ticket.NewSigner("test-secret")
	return &fixture{st: st, signer: signer, svc: checkin.NewService(st, st, st, signer, nil), showID: showID, booking: b}
}

func (f *fixture) token(t *testing.T, version int, showID uint64) string {
	t.Helper()
	tok, err := f.signer.Sign(ticket.Claims{Ref: f.booking.Ref, ShowID: showID, Seats: []string{"A1", "A2"}, Version: version})
	require.NoError(t, err)
	return tok
}

func TestVerifyAdmitsCurrentTicketOnce(t *testing.T) {
	f := newFixture(t, model.BookingConfirmed, 1)
	tok := f.token(t, 1, f.showID)

	out, err := f.svc.Verify(context.Background(), tok, f.showID)
	require.NoError(t, err)
	assert.True(t, out.Valid)
	assert.Equal(t, model.BookingCheckedIn, out.Booking.Status)
	assert.Equal(t, []string{model.LogCheckedIn}, f.st.LogActions())

	out, err = f.svc.Verify(context.Background(), tok, f.showID)
	require.NoError(t, err)
	assert.False(t, out.Valid)
	assert.Equal(t, checkin.ReasonAlreadyCheckedIn, out.Reason)
}

func TestVerifyRejections(t *testing.T) {
	cases := []struct {
		name       string
		status     string
		version    int
		tokVersion int
		tokShow    func(f *fixture) uint64
		scanShow   func(f *fixture) uint64
		raw        string
		want       string
	}{
		{name: "stale after partial cancellation", status: model.BookingConfirmed, version: 2, tokVersion: 1, want: checkin.ReasonStaleTicket},
		{name: "cancelled", status: model.BookingCancelled, version: 1, tokVersion: 1, want: checkin.ReasonBookingCancelled},
		{name: "unpaid", status: model.BookingSeatsSelected, version: 1, tokVersion: 1, want: checkin.ReasonNotConfirmed},
		{name: "expired", status: model.BookingExpired, version: 1, tokVersion: 1, want: checkin.ReasonNotConfirmed},
		{name: "other show at the door", status: model.BookingConfirmed, version: 1, tokVersion: 1,
			scanShow: func(f *fixture) uint64 { return f.showID + 1000 }, want: checkin.ReasonShowMismatch},
		{name: "token names another show", status: model.BookingConfirmed, version: 1, tokVersion: 1,
			tokShow: func(f *fixture) uint64 { return f.showID + 1000 }, scanShow: func(*fixture) uint64 { return 0 }, want: checkin.ReasonShowMismatch},
		{name: "garbage", status: model.BookingConfirmed, version: 1, raw: "not-a-token", want: checkin.ReasonInvalidToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.status, tc.version)
			tokShow, scanShow := f.showID, f.showID
			if tc.tokShow != nil {
				tokShow = tc.tokShow(f)
			}
			if tc.scanShow != nil {
				scanShow = tc.scanShow(f)
			}
			raw := tc.raw
			if raw == "" {
				raw = f.token(t, tc.tokVersion, tokShow)
			}

			out, err := f.svc.Verify(context.Background(), raw, scanShow)
			require.NoError(t, err)
			assert.False(t, out.Valid)
			assert.Equal(t, tc.want, out.Reason)
			assert.Empty(t, f.st.Logs())
		})
	}
}

func TestVerifyUnknownBooking(t *testing.T) {
	f := newFixture(t, model.BookingConfirmed, 1)
	tok, err := f.signer.Sign(ticket.Claims{Ref: "BK-GHOST", ShowID: f.showID, Version: 1})
	require.NoError(t, err)

	out, err := f.svc.Verify(context.Background(), tok, 0)
	require.NoError(t, err)
	assert.Equal(t, checkin.ReasonBookingNotFound, out.Reason)
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	f := newFixture(t, model.BookingConfirmed, 1)
	forged, err := ticket.NewSigner("other-secret").Sign(ticket.Claims{Ref: f.booking.Ref, ShowID: f.showID, Version: 1})
	require.NoError(t, err)

	out, err := f.svc.Verify(context.Background(), forged, f.showID)
	require.NoError(t, err)
	assert.Equal(t, checkin.ReasonInvalidToken, out.Reason)
}
