package model

import "time"

// Refund status values of a cancellation.
const (
	RefundPending   = "PENDING"
	RefundProcessed = "PROCESSED"
	RefundFailed    = "FAILED"
)

// Cancellation records one full or partial cancellation of a booking.  A
// booking has several only after a sequence of partial cancellations.
type Cancellation struct {
	ID              uint64    // cancellations.id
	BookingID       uint64    // cancellations.booking_id
	SeatCodes       []string  // cancellations.seat_codes (JSON)
	RefundPercent   int       // cancellations.refund_percent
	RefundCents     int64     // cancellations.refund_cents
	HoursBeforeShow float64   // cancellations.hours_before_show
	RefundStatus    string    // cancellations.refund_status
	Reason          string    // cancellations.reason
	CreatedAt       time.Time // cancellations.created_at
}
