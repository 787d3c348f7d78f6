// Package cancellation cancels confirmed bookings in full or in part and
// records the refund owed under the show's refund policy.
package cancellation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/iliyamo/showbook-chat/internal/apperr"
	"github.com/iliyamo/showbook-chat/internal/model"
	"github.com/iliyamo/showbook-chat/internal/queue"
	"github.com/iliyamo/showbook-chat/internal/refund"
	"github.com/iliyamo/showbook-chat/internal/repository"
	"github.com/iliyamo/showbook-chat/internal/reservation"
)

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type ShowReader interface {
	GetByID(ctx context.Context, id uint64) (*model.Show, error)
}

type BookingStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Booking, error)
	TransitionStatus(ctx context.Context, id uint64, from, to string) error
	RemoveLines(ctx context.Context, bookingID uint64, seatIDs []uint64) error
	Reissue(ctx context.Context, id uint64, quantity int, totalCents int64, ticketVersion int, ticketURL string, sentAt time.Time) error
}

type CancellationStore interface {
	Create(ctx context.Context, c *model.Cancellation) error
}

type AuditLog interface {
	Append(ctx context.Context, l *model.BookingLog) error
}

type TicketIssuer interface {
	Issue(ctx context.Context, b *model.Booking, seatCodes []string) (string, error)
}

type EventPublisher interface {
	PublishBookingCancelled(ctx context.Context, ev queue.BookingCancelledEvent) error
}

// Deps are the collaborators of a Service.  Events, Logger and Clock are
// optional.
type Deps struct {
	Tx            Transactor
	Shows         ShowReader
	Bookings      BookingStore
	Cancellations CancellationStore
	Logs          AuditLog
	Engine        *reservation.Engine
	Tickets       TicketIssuer
	Events        EventPublisher
	Logger        *slog.Logger
	Clock         func() time.Time
}

type Service struct {
	Deps
	now func() time.Time
}

func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	d.Logger = d.Logger.With("component", "cancellation")
	now := d.Clock
	if now == nil {
		now = time.Now
	}
	return &Service{Deps: d, now: now}
}

// Quote is the refund a booking would receive if cancelled now.
type Quote struct {
	Booking         *model.Booking
	Show            *model.Show
	Percent         int
	HoursBeforeShow float64
}

// RefundCents is the refund for cancelling the whole booking.
func (q *Quote) RefundCents() int64 {
	return refund.Amount(q.Booking.TotalCents, q.Percent)
}

// RefundFor is the refund for cancelling only the given seats.  Codes that
// are not part of the booking contribute nothing.
func (q *Quote) RefundFor(codes []string) int64 {
	var paid int64
	for _, l := range q.Booking.Lines {
		if slices.Contains(codes, l.SeatCode) {
			paid += l.PriceCents
		}
	}
	return refund.Amount(paid, q.Percent)
}

// Result describes a completed cancellation.  Booking is the state after
// the cancellation; TicketURL is the replacement ticket of a partial one.
type Result struct {
	Booking      *model.Booking
	Cancellation *model.Cancellation
	Full         bool
	TicketURL    string
}

// Preview resolves the refund for a booking without changing anything.  It
// fails with PolicyDenied when the booking is not CONFIRMED, the show
// disallows cancellation, the show has started or the policy resolves to 0%.
func (s *Service) Preview(ctx context.Context, bookingID uint64) (*Quote, error) {
	const op = "cancellation.preview"
	b, err := s.Bookings.GetByID(ctx, bookingID)
	if errors.Is(err, repository.ErrBookingNotFound) {
		return nil, apperr.NotFound(op, "We couldn't find that booking.")
	}
	if err != nil {
		return nil, apperr.Transient(op, err)
	}
	if b.Status != model.BookingConfirmed {
		return nil, apperr.PolicyDenied(op, "Only confirmed bookings can be cancelled.")
	}
	show, err := s.Shows.GetByID(ctx, b.ShowID)
	if errors.Is(err, repository.ErrShowNotFound) {
		return nil, apperr.NotFound(op, "We couldn't find the show for this booking.")
	}
	if err != nil {
		return nil, apperr.Transient(op, err)
	}
	if !show.CancellationAllowed {
		return nil, apperr.PolicyDenied(op, "Cancellations are not allowed for this show.")
	}
	hours := refund.HoursBefore(show.StartsAt, s.now())
	if hours <= 0 {
		return nil, apperr.PolicyDenied(op, "This show has already started, so the booking can no longer be cancelled.")
	}
	pct := refund.ResolvePercent(show.RefundSlabs, hours, show.CancellationAllowed)
	if pct == 0 {
		return nil, apperr.PolicyDenied(op, "The refund window for this show has closed, so the booking can no longer be cancelled.")
	}
	return &Quote{Booking: b, Show: show, Percent: pct, HoursBeforeShow: hours}, nil
}

// CancelFull releases every seat of the booking, marks it CANCELLED and
// records one PENDING refund over its total.
func (s *Service) CancelFull(ctx context.Context, bookingID uint64, reason string) (*Result, error) {
	var res *Result
	err := s.Tx.WithTx(ctx, func(ctx context.Context) error {
		q, err := s.Preview(ctx, bookingID)
		if err != nil {
			return err
		}
		res, err = s.cancelAll(ctx, q, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.published(ctx, res)
	return res, nil
}

// CancelPartial cancels the given seats.  The refund covers only their paid
// prices.  Cancelling every seat is a full cancellation; otherwise the
// booking keeps its remaining lines, its quantity and total are recomputed,
// a new ticket version is issued and it stays CONFIRMED.
func (s *Service) CancelPartial(ctx context.Context, bookingID uint64, seatCodes []string, reason string) (*Result, error) {
	const op = "cancellation.partial"
	codes := normalizeCodes(seatCodes)
	if len(codes) == 0 {
		return nil, apperr.Validation(op, "Select at least one seat to cancel.")
	}
	var res *Result
	err := s.Tx.WithTx(ctx, func(ctx context.Context) error {
		q, err := s.Preview(ctx, bookingID)
		if err != nil {
			return err
		}
		b := q.Booking
		owned := b.SeatCodes()
		for _, c := range codes {
			if !slices.Contains(owned, c) {
				return apperr.Validation(op, fmt.Sprintf("Seat %s is not part of this booking.", c))
			}
		}
		if len(codes) == len(owned) {
			res, err = s.cancelAll(ctx, q, reason)
			return err
		}
		res, err = s.cancelSome(ctx, q, codes, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.published(ctx, res)
	return res, nil
}

func (s *Service) cancelAll(ctx context.Context, q *Quote, reason string) (*Result, error) {
	const op = "cancellation.full"
	b := q.Booking
	if _, err := s.Engine.Release(ctx, b.SeatIDs()); err != nil {
		return nil, err
	}
	if err := s.Bookings.TransitionStatus(ctx, b.ID, model.BookingConfirmed, model.BookingCancelled); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperr.PolicyDenied(op, "This booking is no longer active.")
		}
		return nil, apperr.Transient(op, err)
	}
	c := &model.Cancellation{
		BookingID:       b.ID,
		SeatCodes:       b.SeatCodes(),
		RefundPercent:   q.Percent,
		RefundCents:     q.RefundCents(),
		HoursBeforeShow: q.HoursBeforeShow,
		RefundStatus:    model.RefundPending,
		Reason:          reason,
	}
	if err := s.Cancellations.Create(ctx, c); err != nil {
		return nil, apperr.Transient(op, err)
	}
	if err := s.Logs.Append(ctx, &model.BookingLog{
		BookingID:   &b.ID,
		ShowID:      b.ShowID,
		Action:      model.LogBookingCancelled,
		Description: fmt.Sprintf("Booking %s cancelled, %d%% refund", b.Ref, q.Percent),
		Metadata: map[string]any{
			"seats":          c.SeatCodes,
			"refund_percent": c.RefundPercent,
			"refund_cents":   c.RefundCents,
			"hours_before":   c.HoursBeforeShow,
		},
	}); err != nil {
		return nil, apperr.Transient(op, err)
	}
	after := *b
	after.Status = model.BookingCancelled
	return &Result{Booking: &after, Cancellation: c, Full: true}, nil
}

func (s *Service) cancelSome(ctx context.Context, q *Quote, codes []string, reason string) (*Result, error) {
	const op = "cancellation.partial"
	b := q.Booking
	var (
		released  []uint64
		remaining []model.BookingSeat
		total     int64
	)
	for _, l := range b.Lines {
		if slices.Contains(codes, l.SeatCode) {
			released = append(released, l.SeatID)
			continue
		}
		remaining = append(remaining, l)
		total += l.PriceCents
	}

	after := *b
	after.Lines = remaining
	after.Quantity = len(remaining)
	after.TotalCents = total
	after.TicketVersion = b.TicketVersion + 1
	url, err := s.Tickets.Issue(ctx, &after, after.SeatCodes())
	if err != nil {
		return nil, apperr.Transient(op, fmt.Errorf("reissue ticket: %w", err))
	}
	now := s.now().UTC()
	after.TicketURL = url
	after.TicketSentAt = &now

	if _, err := s.Engine.Release(ctx, released); err != nil {
		return nil, err
	}
	if err := s.Bookings.RemoveLines(ctx, b.ID, released); err != nil {
		return nil, apperr.Transient(op, err)
	}
	if err := s.Bookings.Reissue(ctx, b.ID, after.Quantity, after.TotalCents, after.TicketVersion, url, now); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperr.PolicyDenied(op, "This booking is no longer active.")
		}
		return nil, apperr.Transient(op, err)
	}
	c := &model.Cancellation{
		BookingID:       b.ID,
		SeatCodes:       codes,
		RefundPercent:   q.Percent,
		RefundCents:     q.RefundFor(codes),
		HoursBeforeShow: q.HoursBeforeShow,
		RefundStatus:    model.RefundPending,
		Reason:          reason,
	}
	if err := s.Cancellations.Create(ctx, c); err != nil {
		return nil, apperr.Transient(op, err)
	}
	if err := s.Logs.Append(ctx, &model.BookingLog{
		BookingID:   &b.ID,
		ShowID:      b.ShowID,
		Action:      model.LogPartialCancellation,
		Description: fmt.Sprintf("Booking %s: cancelled %s, %d%% refund", b.Ref, strings.Join(codes, ", "), q.Percent),
		Metadata: map[string]any{
			"seats":          codes,
			"refund_percent": c.RefundPercent,
			"refund_cents":   c.RefundCents,
			"remaining":      after.Quantity,
			"ticket_version": after.TicketVersion,
		},
	}); err != nil {
		return nil, apperr.Transient(op, err)
	}
	return &Result{Booking: &after, Cancellation: c, TicketURL: url}, nil
}

func (s *Service) published(ctx context.Context, res *Result) {
	s.Logger.Info("booking cancelled", "booking", res.Booking.Ref, "full", res.Full,
		"refund_percent", res.Cancellation.RefundPercent, "refund_cents", res.Cancellation.RefundCents)
	if s.Events == nil {
		return
	}
	ev := queue.BookingCancelledEvent{
		BookingID:         res.Booking.ID,
		BookingRef:        res.Booking.Ref,
		ShowID:            res.Booking.ShowID,
		CancelledSeats:    res.Cancellation.SeatCodes,
		Full:              res.Full,
		RefundPercent:     res.Cancellation.RefundPercent,
		RefundAmountCents: res.Cancellation.RefundCents,
		RemainingQuantity: res.Booking.Quantity,
		CancelledAt:       s.now().UTC().Format(time.RFC3339),
	}
	if res.Full {
		ev.RemainingQuantity = 0
	}
	if err := s.Events.PublishBookingCancelled(ctx, ev); err != nil {
		s.Logger.Warn("publish booking.cancelled failed", "booking", res.Booking.Ref, "error", err)
	}
}

func normalizeCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}
