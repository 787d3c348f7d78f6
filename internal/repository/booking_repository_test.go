package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/showbook-chat/internal/model"
)

func TestCreateInsertsBookingAndLines(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	holdUntil := time.Date(2026, 5, 1, 18, 10, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO bookings .*UTC_TIMESTAMP\(\), UTC_TIMESTAMP\(\)\)`).
		WithArgs("BK-AB12CD34", uint64(3), "Asha", 29, "asha@example.com", "919800000001", 2, int64(50000),
			model.BookingSeatsSelected, "WHATSAPP", 1, holdUntil).
		WillReturnResult(sqlmock.NewResult(41, 1))
	mock.ExpectExec(`INSERT INTO booking_seats \(booking_id, seat_id, category_id, price_cents\) VALUES \(\?, \?, \?, \?\),\(\?, \?, \?, \?\)`).
		WithArgs(uint64(41), uint64(11), uint64(2), int64(25000), uint64(41), uint64(12), uint64(2), int64(25000)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	b := &model.Booking{
		Ref: "BK-AB12CD34", ShowID: 3, BookerName: "Asha", BookerAge: 29, BookerEmail: "asha@example.com",
		BookerPhone: "919800000001", Quantity: 2, TotalCents: 50000, Status: model.BookingSeatsSelected,
		Source: "WHATSAPP", TicketVersion: 1, HoldUntil: ptrTime(holdUntil.Add(700 * time.Millisecond)),
		Lines: []model.BookingSeat{
			{SeatID: 11, SeatCode: "A1", CategoryID: 2, PriceCents: 25000},
			{SeatID: 12, SeatCode: "A2", CategoryID: 2, PriceCents: 25000},
		},
	}
	require.NoError(t, NewBookingRepo(db).Create(context.Background(), b))
	assert.Equal(t, uint64(41), b.ID)
	assert.Equal(t, uint64(41), b.Lines[1].BookingID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmConflictsUnlessSeatsSelected(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sentAt := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE bookings SET status = 'CONFIRMED'.*WHERE id = \? AND status = 'SEATS_SELECTED'`).
		WithArgs("https://t/qr/1.png", sentAt, uint64(41)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewBookingRepo(db).Confirm(context.Background(), 41, "https://t/qr/1.png", sentAt)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	q := `UPDATE bookings SET status = \?, updated_at = UTC_TIMESTAMP\(\) WHERE id = \? AND status = \?`
	mock.ExpectExec(q).WithArgs(model.BookingExpired, uint64(5), model.BookingSeatsSelected).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(model.BookingExpired, uint64(5), model.BookingSeatsSelected).WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewBookingRepo(db)
	assert.NoError(t, repo.TransitionStatus(context.Background(), 5, model.BookingSeatsSelected, model.BookingExpired))
	assert.ErrorIs(t, repo.TransitionStatus(context.Background(), 5, model.BookingSeatsSelected, model.BookingExpired), ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDLoadsLines(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2026, 5, 1, 17, 50, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .* FROM bookings WHERE id = \?`).WithArgs(uint64(41)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "booking_ref", "show_id", "booker_name", "booker_age", "booker_email",
			"booker_phone", "quantity", "total_cents", "status", "source", "ticket_url", "ticket_version", "ticket_sent_at",
			"hold_until", "created_at", "updated_at"}).
			AddRow(41, "BK-AB12CD34", 3, "Asha", 29, nil, "919800000001", 2, 50000, model.BookingConfirmed, "WHATSAPP",
				"https://t/qr/1.png", 1, nil, created.Add(10*time.Minute), created, created))
	mock.ExpectQuery(`FROM booking_seats bs JOIN seats s`).WithArgs(uint64(41)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "booking_id", "seat_id", "seat_code", "category_id", "price_cents"}).
			AddRow(1, 41, 11, "A1", 2, 25000).
			AddRow(2, 41, 12, "A2", 2, 25000))

	b, err := NewBookingRepo(db).GetByID(context.Background(), 41)
	require.NoError(t, err)
	assert.Equal(t, "", b.BookerEmail)
	assert.Nil(t, b.TicketSentAt)
	require.NotNil(t, b.HoldUntil)
	assert.Equal(t, created.Add(10*time.Minute), *b.HoldUntil)
	assert.Equal(t, []string{"A1", "A2"}, b.SeatCodes())
	assert.Equal(t, []uint64{11, 12}, b.SeatIDs())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByRefNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM bookings WHERE booking_ref = \?`).WithArgs("BK-NOPE").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = NewBookingRepo(db).GetByRef(context.Background(), "BK-NOPE")
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestExpireSelectedForSeats(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT DISTINCT b.id FROM bookings b`).WithArgs(uint64(11), uint64(12)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(41).AddRow(42))
	q := `UPDATE bookings SET status = \?`
	mock.ExpectExec(q).WithArgs(model.BookingExpired, uint64(41), model.BookingSeatsSelected).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(model.BookingExpired, uint64(42), model.BookingSeatsSelected).WillReturnResult(sqlmock.NewResult(0, 0))

	ids, err := NewBookingRepo(db).ExpireSelectedForSeats(context.Background(), []uint64{11, 12})
	require.NoError(t, err)
	assert.Equal(t, []uint64{41}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func ptrTime(t time.Time) *time.Time { return &t }
