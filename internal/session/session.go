// Package session keeps the conversational state of each customer between
// inbound messages.
package session

import (
	"context"
	"slices"
	"time"
)

// Step is the position of a conversation in the booking flow.
type Step string

const (
	StepShowEntry          Step = "SHOW_ENTRY"
	StepCollectingDetails  Step = "COLLECTING_DETAILS"
	StepSelectingCategory  Step = "SELECTING_CATEGORY"
	StepSelectingQuantity  Step = "SELECTING_QUANTITY"
	StepSelectingSeats     Step = "SELECTING_SEATS"
	StepAwaitingPayment    Step = "AWAITING_PAYMENT"
	StepConfirmed          Step = "CONFIRMED"
	StepAwaitingCancelType Step = "AWAITING_CANCEL_TYPE"
	StepAwaitingCancelSeat Step = "AWAITING_CANCEL_SEATS"
)

// Steps lists every step in flow order.
var Steps = []Step{
	StepShowEntry, StepCollectingDetails, StepSelectingCategory, StepSelectingQuantity,
	StepSelectingSeats, StepAwaitingPayment, StepConfirmed, StepAwaitingCancelType, StepAwaitingCancelSeat,
}

// BeforeConfirmed reports whether the step is on the booking path ahead of
// payment confirmation.
func (s Step) BeforeConfirmed() bool {
	switch s {
	case StepShowEntry, StepCollectingDetails, StepSelectingCategory, StepSelectingQuantity,
		StepSelectingSeats, StepAwaitingPayment:
		return true
	}
	return false
}

// InCancelFlow reports whether the step belongs to the post-confirmation
// cancellation sub-flow.
func (s Step) InCancelFlow() bool {
	return s == StepAwaitingCancelType || s == StepAwaitingCancelSeat
}

// Session is the state of one customer's conversation.
type Session struct {
	Step          Step     `json:"step"`
	ShowID        uint64   `json:"showId"`
	Keyword       string   `json:"keyword,omitempty"`
	Name          string   `json:"name,omitempty"`
	Age           int      `json:"age,omitempty"`
	Email         string   `json:"email,omitempty"`
	CategoryID    uint64   `json:"categoryId,omitempty"`
	Quantity      int      `json:"quantity,omitempty"`
	SelectedSeats []string `json:"selectedSeats,omitempty"`
	BookingID     uint64   `json:"bookingId,omitempty"`

	CancelBookingID     uint64   `json:"cancelBookingId,omitempty"`
	CancelableSeats     []string `json:"cancelableSeats,omitempty"`
	SelectedCancelSeats []string `json:"selectedCancelSeats,omitempty"`
	RefundPercent       int      `json:"refundPercent,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.SelectedSeats = slices.Clone(s.SelectedSeats)
	c.CancelableSeats = slices.Clone(s.CancelableSeats)
	c.SelectedCancelSeats = slices.Clone(s.SelectedCancelSeats)
	return &c
}

// Patch is a partial update.  Nil fields are left untouched; a non-nil
// pointer to an empty slice clears that slice.
type Patch struct {
	Step          *Step
	ShowID        *uint64
	Keyword       *string
	Name          *string
	Age           *int
	Email         *string
	CategoryID    *uint64
	Quantity      *int
	SelectedSeats *[]string
	BookingID     *uint64

	CancelBookingID     *uint64
	CancelableSeats     *[]string
	SelectedCancelSeats *[]string
	RefundPercent       *int
}

// Apply writes every supplied field of p into s.
func (p Patch) Apply(s *Session) {
	if p.Step != nil {
		s.Step = *p.Step
	}
	if p.ShowID != nil {
		s.ShowID = *p.ShowID
	}
	if p.Keyword != nil {
		s.Keyword = *p.Keyword
	}
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Age != nil {
		s.Age = *p.Age
	}
	if p.Email != nil {
		s.Email = *p.Email
	}
	if p.CategoryID != nil {
		s.CategoryID = *p.CategoryID
	}
	if p.Quantity != nil {
		s.Quantity = *p.Quantity
	}
	if p.SelectedSeats != nil {
		s.SelectedSeats = slices.Clone(*p.SelectedSeats)
	}
	if p.BookingID != nil {
		s.BookingID = *p.BookingID
	}
	if p.CancelBookingID != nil {
		s.CancelBookingID = *p.CancelBookingID
	}
	if p.CancelableSeats != nil {
		s.CancelableSeats = slices.Clone(*p.CancelableSeats)
	}
	if p.SelectedCancelSeats != nil {
		s.SelectedCancelSeats = slices.Clone(*p.SelectedCancelSeats)
	}
	if p.RefundPercent != nil {
		s.RefundPercent = *p.RefundPercent
	}
}

// Store holds one Session per customer id.
//
// Get returns (nil, nil) when no session exists.  Merge applies a Patch
// atomically and is a no-op returning (nil, nil) when the session is absent;
// concurrent merges on one id never interleave.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Set(ctx context.Context, id string, s *Session) error
	Merge(ctx context.Context, id string, p Patch) (*Session, error)
	Delete(ctx context.Context, id string) error
}
