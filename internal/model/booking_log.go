package model

import "time"

// Audit actions written to booking_logs.
const (
	LogSeatsLocked         = "SEATS_LOCKED"
	LogTicketIssued        = "TICKET_ISSUED"
	LogBookingExpired      = "BOOKING_EXPIRED"
	LogBookingCancelled    = "BOOKING_CANCELLED"
	LogPartialCancellation = "PARTIAL_CANCELLATION"
	LogCheckedIn           = "CHECKED_IN"
)

// BookingLog is an append-only audit entry.
type BookingLog struct {
	ID          uint64         // booking_logs.id
	BookingID   *uint64        // booking_logs.booking_id (nullable)
	ShowID      uint64         // booking_logs.show_id
	Action      string         // booking_logs.action
	Description string         // booking_logs.description
	Metadata    map[string]any // booking_logs.metadata (JSON)
	CreatedAt   time.Time      // booking_logs.created_at
}
