package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/showbook-chat/internal/database"
	"github.com/iliyamo/showbook-chat/internal/model"
)

// BookingRepo persists bookings and their seat lines.
type BookingRepo struct {
	db *sql.DB
}

func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, booking_ref, show_id, booker_name, booker_age, booker_email, booker_phone,
	quantity, total_cents, status, source, ticket_url, ticket_version, ticket_sent_at, hold_until, created_at, updated_at`

// Create inserts the booking and its lines.  On success b.ID and the
// BookingID of every line are populated.  Callers run it inside the same
// transaction as the seat locks it describes.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	conn := database.Conn(ctx, r.db)
	res, err := conn.ExecContext(ctx,
		`INSERT INTO bookings (booking_ref, show_id, booker_name, booker_age, booker_email, booker_phone,
		                       quantity, total_cents, status, source, ticket_version, hold_until, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, UTC_TIMESTAMP(), UTC_TIMESTAMP())`,
		b.Ref, b.ShowID, b.BookerName, b.BookerAge, b.BookerEmail, b.BookerPhone,
		b.Quantity, b.TotalCents, b.Status, b.Source, b.TicketVersion, nullableTime(b.HoldUntil))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	if len(b.Lines) == 0 {
		return nil
	}
	query := `INSERT INTO booking_seats (booking_id, seat_id, category_id, price_cents) VALUES `
	args := make([]any, 0, len(b.Lines)*4)
	for i := range b.Lines {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		b.Lines[i].BookingID = b.ID
		args = append(args, b.ID, b.Lines[i].SeatID, b.Lines[i].CategoryID, b.Lines[i].PriceCents)
	}
	_, err = conn.ExecContext(ctx, query, args...)
	return err
}

// GetByID returns a booking with its lines.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
}

// GetByRef returns a booking with its lines by its public reference.
func (r *BookingRepo) GetByRef(ctx context.Context, ref string) (*model.Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE booking_ref = ?`, ref)
}

func (r *BookingRepo) get(ctx context.Context, q string, arg any) (*model.Booking, error) {
	conn := database.Conn(ctx, r.db)
	var (
		b      model.Booking
		email  sql.NullString
		ticket sql.NullString
		sentAt sql.NullTime
		holdAt sql.NullTime
	)
	err := conn.QueryRowContext(ctx, q, arg).Scan(&b.ID, &b.Ref, &b.ShowID, &b.BookerName, &b.BookerAge,
		&email, &b.BookerPhone, &b.Quantity, &b.TotalCents, &b.Status, &b.Source, &ticket,
		&b.TicketVersion, &sentAt, &holdAt, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	b.BookerEmail = email.String
	b.TicketURL = ticket.String
	b.TicketSentAt = nullTimePtr(sentAt)
	b.HoldUntil = nullTimePtr(holdAt)

	rows, err := conn.QueryContext(ctx,
		`SELECT bs.id, bs.booking_id, bs.seat_id, s.seat_code, bs.category_id, bs.price_cents
		 FROM booking_seats bs JOIN seats s ON s.id = bs.seat_id
		 WHERE bs.booking_id = ?
		 ORDER BY s.row_label, s.seat_number`, b.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l model.BookingSeat
		if err := rows.Scan(&l.ID, &l.BookingID, &l.SeatID, &l.SeatCode, &l.CategoryID, &l.PriceCents); err != nil {
			return nil, err
		}
		b.Lines = append(b.Lines, l)
	}
	return &b, rows.Err()
}

// TransitionStatus moves a booking from one status to another.  It returns
// ErrConflict when the booking is not currently in status from.
func (r *BookingRepo) TransitionStatus(ctx context.Context, id uint64, from, to string) error {
	return r.update(ctx,
		`UPDATE bookings SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND status = ?`,
		to, id, from)
}

// Confirm marks a SEATS_SELECTED booking CONFIRMED and stores its ticket.
func (r *BookingRepo) Confirm(ctx context.Context, id uint64, ticketURL string, sentAt time.Time) error {
	return r.update(ctx,
		`UPDATE bookings SET status = 'CONFIRMED', ticket_url = ?, ticket_sent_at = ?, updated_at = UTC_TIMESTAMP()
		 WHERE id = ? AND status = 'SEATS_SELECTED'`,
		ticketURL, dbTime(sentAt), id)
}

// RemoveLines deletes the lines of a booking for the given seats.
func (r *BookingRepo) RemoveLines(ctx context.Context, bookingID uint64, seatIDs []uint64) error {
	if len(seatIDs) == 0 {
		return nil
	}
	q := `DELETE FROM booking_seats WHERE booking_id = ? AND seat_id IN (` + placeholders(len(seatIDs)) + `)`
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, q, idArgs(seatIDs, bookingID)...)
	return err
}

// Reissue stores the recomputed totals of a CONFIRMED booking after a
// partial cancellation together with its replacement ticket.
func (r *BookingRepo) Reissue(ctx context.Context, id uint64, quantity int, totalCents int64, ticketVersion int, ticketURL string, sentAt time.Time) error {
	return r.update(ctx,
		`UPDATE bookings SET quantity = ?, total_cents = ?, ticket_version = ?, ticket_url = ?, ticket_sent_at = ?,
		        updated_at = UTC_TIMESTAMP()
		 WHERE id = ? AND status = 'CONFIRMED'`,
		quantity, totalCents, ticketVersion, ticketURL, dbTime(sentAt), id)
}

// ExpireSelectedForSeats marks every SEATS_SELECTED booking that holds one
// of the given seats as EXPIRED and returns their ids.
func (r *BookingRepo) ExpireSelectedForSeats(ctx context.Context, seatIDs []uint64) ([]uint64, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	conn := database.Conn(ctx, r.db)
	rows, err := conn.QueryContext(ctx,
		`SELECT DISTINCT b.id FROM bookings b
		 JOIN booking_seats bs ON bs.booking_id = b.id
		 WHERE b.status = 'SEATS_SELECTED' AND bs.seat_id IN (`+placeholders(len(seatIDs))+`)`,
		idArgs(seatIDs)...)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	expired := make([]uint64, 0, len(ids))
	for _, id := range ids {
		err := r.TransitionStatus(ctx, id, model.BookingSeatsSelected, model.BookingExpired)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return expired, err
		}
		expired = append(expired, id)
	}
	return expired, nil
}

func (r *BookingRepo) update(ctx context.Context, q string, args ...any) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}
