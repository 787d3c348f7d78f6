// Package checkin admits ticket holders at the venue.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iliyamo/showbook-chat/internal/apperr"
	"github.com/iliyamo/showbook-chat/internal/model"
	"github.com/iliyamo/showbook-chat/internal/repository"
	"github.com/iliyamo/showbook-chat/internal/ticket"
)

// Rejection reasons reported to the scanner.
const (
	ReasonInvalidToken     = "INVALID_TOKEN"
	ReasonBookingNotFound  = "BOOKING_NOT_FOUND"
	ReasonShowMismatch     = "SHOW_MISMATCH"
	ReasonBookingCancelled = "BOOKING_CANCELLED"
	ReasonAlreadyCheckedIn = "ALREADY_CHECKED_IN"
	ReasonNotConfirmed     = "NOT_CONFIRMED"
	ReasonStaleTicket      = "STALE_TICKET"
)

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type BookingStore interface {
	GetByRef(ctx context.Context, ref string) (*model.Booking, error)
	TransitionStatus(ctx context.Context, id uint64, from, to string) error
}

type AuditLog interface {
	Append(ctx context.Context, l *model.BookingLog) error
}

type TokenParser interface {
	Parse(raw string) (*ticket.Claims, error)
}

// Outcome of a scan.  Reason is empty when Valid.
type Outcome struct {
	Valid   bool
	Reason  string
	Booking *model.Booking
}

type Service struct {
	tx       Transactor
	bookings BookingStore
	logs     AuditLog
	tokens   TokenParser
	log      *slog.Logger
}

func NewService(tx Transactor, bookings BookingStore, logs AuditLog, tokens TokenParser, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{tx: tx, bookings: bookings, logs: logs, tokens: tokens, log: logger.With("component", "checkin")}
}

// Verify checks a scanned token against the booking it names and, when it
// is the current ticket of a CONFIRMED booking for showID, moves the booking
// to CHECKED_IN.  A showID of 0 skips the show check.  Rejections are
// reported through Outcome; the error is reserved for storage failures.
func (s *Service) Verify(ctx context.Context, raw string, showID uint64) (*Outcome, error) {
	const op = "checkin.verify"
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return &Outcome{Reason: ReasonInvalidToken}, nil
	}
	var out *Outcome
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		b, err := s.bookings.GetByRef(ctx, claims.Ref)
		if errors.Is(err, repository.ErrBookingNotFound) {
			out = &Outcome{Reason: ReasonBookingNotFound}
			return nil
		}
		if err != nil {
			return apperr.Transient(op, err)
		}
		if reason := rejection(b, claims, showID); reason != "" {
			out = &Outcome{Reason: reason, Booking: b}
			return nil
		}
		err = s.bookings.TransitionStatus(ctx, b.ID, model.BookingConfirmed, model.BookingCheckedIn)
		if errors.Is(err, repository.ErrConflict) {
			out = &Outcome{Reason: ReasonAlreadyCheckedIn, Booking: b}
			return nil
		}
		if err != nil {
			return apperr.Transient(op, err)
		}
		if err := s.logs.Append(ctx, &model.BookingLog{
			BookingID:   &b.ID,
			ShowID:      b.ShowID,
			Action:      model.LogCheckedIn,
			Description: fmt.Sprintf("Booking %s checked in", b.Ref),
			Metadata:    map[string]any{"seats": b.SeatCodes(), "ticket_version": b.TicketVersion},
		}); err != nil {
			return apperr.Transient(op, err)
		}
		b.Status = model.BookingCheckedIn
		out = &Outcome{Valid: true, Booking: b}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !out.Valid {
		s.log.Info("ticket rejected", "ref", claims.Ref, "reason", out.Reason)
	}
	return out, nil
}

func rejection(b *model.Booking, claims *ticket.Claims, showID uint64) string {
	switch {
	case claims.ShowID != b.ShowID, showID != 0 && b.ShowID != showID:
		return ReasonShowMismatch
	case b.Status == model.BookingCancelled:
		return ReasonBookingCancelled
	case b.Status == model.BookingCheckedIn:
		return ReasonAlreadyCheckedIn
	case b.Status != model.BookingConfirmed:
		return ReasonNotConfirmed
	case claims.Version != b.TicketVersion:
		return ReasonStaleTicket
	}
	return ""
}
