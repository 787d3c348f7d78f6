package model

import "time"

// Booking status values. A booking waiting for payment is persisted as
// SEATS_SELECTED; the conversation tracks the payment step.
const (
	BookingSeatsSelected = "SEATS_SELECTED"
	BookingConfirmed     = "CONFIRMED"
	BookingCheckedIn     = "CHECKED_IN"
	BookingCancelled     = "CANCELLED"
	BookingExpired       = "EXPIRED"
)

// Booking is created when a customer finishes seat selection.  Quantity and
// TotalCents always equal the count and the price sum of Lines; both are
// recomputed whenever lines are removed by a partial cancellation.
//
// HoldUntil identifies the seat locks taken for the booking: while a seat is
// LOCKED with exactly that deadline the lock is this booking's.
//
// TicketVersion increases every time a new ticket token is issued for the
// booking, which invalidates previously issued tokens.
type Booking struct {
	ID            uint64        // bookings.id
	Ref           string        // bookings.booking_ref
	ShowID        uint64        // bookings.show_id
	BookerName    string        // bookings.booker_name
	BookerAge     int           // bookings.booker_age
	BookerEmail   string        // bookings.booker_email
	BookerPhone   string        // bookings.booker_phone
	Quantity      int           // bookings.quantity
	TotalCents    int64         // bookings.total_cents
	Status        string        // bookings.status
	Source        string        // bookings.source
	TicketURL     string        // bookings.ticket_url
	TicketVersion int           // bookings.ticket_version
	TicketSentAt  *time.Time    // bookings.ticket_sent_at
	HoldUntil     *time.Time    // bookings.hold_until, the locked_until its seats were locked with
	CreatedAt     time.Time     // bookings.created_at
	UpdatedAt     time.Time     // bookings.updated_at
	Lines         []BookingSeat // booking_seats, ordered by seat code
}

// BookingSeat is one (seat, category, price paid) line of a booking.
type BookingSeat struct {
	ID         uint64 // booking_seats.id
	BookingID  uint64 // booking_seats.booking_id
	SeatID     uint64 // booking_seats.seat_id
	SeatCode   string // seats.seat_code
	CategoryID uint64 // booking_seats.category_id
	PriceCents int64  // booking_seats.price_cents
}

// SeatIDs returns the seat ids of all lines in order.
func (b *Booking) SeatIDs() []uint64 {
	ids := make([]uint64, 0, len(b.Lines))
	for _, l := range b.Lines {
		ids = append(ids, l.SeatID)
	}
	return ids
}

// SeatCodes returns the seat codes of all lines in order.
func (b *Booking) SeatCodes() []string {
	codes := make([]string, 0, len(b.Lines))
	for _, l := range b.Lines {
		codes = append(codes, l.SeatCode)
	}
	return codes
}

// Payment is the one-to-one payment record of a confirmed booking.
type Payment struct {
	ID          uint64    // payments.id
	BookingID   uint64    // payments.booking_id
	Ref         string    // payments.payment_ref
	AmountCents int64     // payments.amount_cents
	Currency    string    // payments.currency
	Gateway     string    // payments.gateway
	Status      string    // payments.status
	PaidAt      time.Time // payments.paid_at
}

const PaymentPaid = "PAID"
