// Package queue defines message payloads exchanged over the message broker.
package queue

// Queue names. Both queues are durable.
const (
	BookingConfirmedQueue = "booking.confirmed"
	BookingCancelledQueue = "booking.cancelled"
)

// BookingConfirmedEvent is published when a booking is paid and ticketed.
// It carries enough for downstream consumers to log or notify without
// querying the primary database.
type BookingConfirmedEvent struct {
	BookingID        uint64   `json:"booking_id"`
	BookingRef       string   `json:"booking_ref"`
	ShowID           uint64   `json:"show_id"`
	ShowTitle        string   `json:"show_title"`
	Venue            string   `json:"venue"`
	StartsAt         string   `json:"starts_at"`
	Phone            string   `json:"phone"`
	SeatCodes        []string `json:"seats"`
	TotalAmountCents int64    `json:"total_amount_cents"`
	TicketURL        string   `json:"ticket_url"`
	ConfirmedAt      string   `json:"confirmed_at"`
}

// BookingCancelledEvent is published for every full or partial
// cancellation of a confirmed booking.
type BookingCancelledEvent struct {
	BookingID         uint64   `json:"booking_id"`
	BookingRef        string   `json:"booking_ref"`
	ShowID            uint64   `json:"show_id"`
	CancelledSeats    []string `json:"cancelled_seats"`
	Full              bool     `json:"full"`
	RefundPercent     int      `json:"refund_percent"`
	RefundAmountCents int64    `json:"refund_amount_cents"`
	RemainingQuantity int      `json:"remaining_quantity"`
	CancelledAt       string   `json:"cancelled_at"`
}
