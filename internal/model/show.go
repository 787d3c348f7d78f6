package model

import "time"

// Show status values. Only BOOKING_ENABLED shows accept new conversations.
const (
	ShowStatusDraft           = "DRAFT"
	ShowStatusPublished       = "PUBLISHED"
	ShowStatusBookingEnabled  = "BOOKING_ENABLED"
	ShowStatusBookingDisabled = "BOOKING_DISABLED"
	ShowStatusCompleted       = "COMPLETED"
	ShowStatusCancelled       = "CANCELLED"
)

// Show is a scheduled event that customers reach by scanning its keyword
// (for example "SHOW_1A2B3C4D") at the venue.
//
// Fields:
//  ID                  – primary key identifier.
//  Keyword             – unique entry trigger printed in the venue QR code.
//  StartsAt            – show start, always stored and compared in UTC.
//  Status              – lifecycle status (see ShowStatus constants).
//  CancellationAllowed – whether confirmed bookings may be cancelled.
//  RefundSlabs         – time based refund policy, stored as JSON.
type Show struct {
	ID                  uint64       // shows.id
	Keyword             string       // shows.keyword
	Title               string       // shows.title
	Description         string       // shows.description
	Venue               string       // shows.venue
	City                string       // shows.city
	StartsAt            time.Time    // shows.starts_at (UTC)
	PosterURL           string       // shows.poster_url
	Status              string       // shows.status
	CancellationAllowed bool         // shows.cancellation_allowed
	RefundSlabs         []RefundSlab // shows.refund_slabs
	CreatedAt           time.Time    // shows.created_at
	UpdatedAt           time.Time    // shows.updated_at
}

// RefundSlab maps "at least HoursBeforeShow hours before the start" to a
// refund percentage. The JSON names match the stored policy documents.
type RefundSlab struct {
	HoursBeforeShow float64 `json:"hoursBeforeShow"`
	RefundPercent   int     `json:"refundPercent"`
}

// AcceptsBookings reports whether new bookings may be started for the show.
func (s *Show) AcceptsBookings() bool {
	return s.Status == ShowStatusBookingEnabled
}
