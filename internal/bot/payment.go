package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/showbook-chat/internal/apperr"
	"github.com/iliyamo/showbook-chat/internal/model"
	"github.com/iliyamo/showbook-chat/internal/repository"
	"github.com/iliyamo/showbook-chat/internal/session"
	"github.com/iliyamo/showbook-chat/internal/whatsapp"
)

// errHoldLapsed aborts the confirmation transaction when a hold ran out
// between the freshness check and the commit.
var errHoldLapsed = errors.New("seat hold lapsed")

func (b *Bot) sendPaymentPrompt(ctx context.Context, to string, bk *model.Booking, lockedUntil string) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🧾 Booking *%s*\n", bk.Ref)
	fmt.Fprintf(&sb, "Seats: %s\n", strings.Join(bk.SeatCodes(), ", "))
	fmt.Fprintf(&sb, "Total: %s\n\n", b.money(bk.TotalCents))
	if lockedUntil != "" {
		fmt.Fprintf(&sb, "Your seats are held until %s. ", lockedUntil)
	}
	sb.WriteString("Tap Confirm Payment once you have paid at the counter.")
	b.notify.buttons(ctx, to, whatsapp.ButtonMessage{
		Body: sb.String(),
		Buttons: []whatsapp.Button{
			{ID: idConfirmPayment, Title: "💳 Confirm Payment"},
			{ID: idCancel, Title: "Cancel"},
		},
	})
}

// onConfirmPayment books the held seats, records the payment, issues the
// ticket and confirms the booking as one unit.  A lapsed hold expires the
// booking instead.
func (b *Bot) onConfirmPayment(ctx context.Context, sess *session.Session, ev Event) error {
	const op = "bot.confirm_payment"
	bk, err := b.Bookings.GetByID(ctx, sess.BookingID)
	if errors.Is(err, repository.ErrBookingNotFound) {
		return apperr.NotFound(op, "Sorry, we couldn't find your booking. "+msgScanAgain)
	}
	if err != nil {
		return apperr.Transient(op, err)
	}
	show, err := b.Shows.GetByID(ctx, bk.ShowID)
	if err != nil {
		return apperr.Transient(op, err)
	}

	switch bk.Status {
	case model.BookingSeatsSelected:
	case model.BookingConfirmed:
		// Already confirmed by an earlier tap whose reply got lost.
		if _, err := b.Sessions.Merge(ctx, ev.Sender, session.Patch{Step: ptr(session.StepConfirmed)}); err != nil {
			return apperr.Transient(op, err)
		}
		b.sendTicket(ctx, ev.Sender, bk, show)
		return nil
	default:
		return apperr.Expired(op, "This booking is no longer active.")
	}

	ids := bk.SeatIDs()
	fresh, err := b.Engine.IsHeldAndFresh(ctx, ids)
	if err != nil {
		return err
	}
	if !fresh || len(ids) != bk.Quantity {
		return b.expire(ctx, bk)
	}

	now := b.now().UTC()
	err = b.Tx.WithTx(ctx, func(ctx context.Context) error {
		n, err := b.Engine.Commit(ctx, ids)
		if err != nil {
			return err
		}
		if n != len(ids) {
			return errHoldLapsed
		}
		if err := b.Payments.Create(ctx, &model.Payment{
			BookingID:   bk.ID,
			Ref:         "PAY-" + uuid.NewString(),
			AmountCents: bk.TotalCents,
			Currency:    b.Config.Currency,
			Gateway:     "CASH",
			Status:      model.PaymentPaid,
			PaidAt:      now,
		}); err != nil {
			return apperr.Transient(op, err)
		}
		url, err := b.Tickets.Issue(ctx, bk, bk.SeatCodes())
		if err != nil {
			return apperr.Transient(op, fmt.Errorf("issue ticket: %w", err))
		}
		if err := b.Bookings.Confirm(ctx, bk.ID, url, now); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return errHoldLapsed
			}
			return apperr.Transient(op, err)
		}
		bk.TicketURL = url
		bk.TicketSentAt = &now
		return b.appendLog(ctx, op, bk, model.LogTicketIssued,
			fmt.Sprintf("Booking %s confirmed, ticket v%d issued", bk.Ref, bk.TicketVersion),
			map[string]any{"seats": bk.SeatCodes(), "total_cents": bk.TotalCents, "ticket_version": bk.TicketVersion})
	})
	if errors.Is(err, errHoldLapsed) {
		return b.expire(ctx, bk)
	}
	if err != nil {
		return err
	}
	bk.Status = model.BookingConfirmed

	if _, err := b.Sessions.Merge(ctx, ev.Sender, session.Patch{Step: ptr(session.StepConfirmed)}); err != nil {
		b.Logger.Warn("session update after confirmation failed", "sender", ev.Sender, "booking", bk.Ref, "error", err)
	}
	b.Logger.Info("booking confirmed", "sender", ev.Sender, "booking", bk.Ref, "seats", bk.SeatCodes(), "total_cents", bk.TotalCents)
	b.sendTicket(ctx, ev.Sender, bk, show)
	b.publishConfirmed(ctx, bk, show)
	return nil
}

// expire marks a pending booking EXPIRED.  Its seats are not released
// here: once a hold has lapsed another customer may already hold them, and
// the reconciler frees whatever is still stale.
func (b *Bot) expire(ctx context.Context, bk *model.Booking) error {
	const op = "bot.expire"
	err := b.Tx.WithTx(ctx, func(ctx context.Context) error {
		if err := b.Bookings.TransitionStatus(ctx, bk.ID, model.BookingSeatsSelected, model.BookingExpired); err != nil {
			return err
		}
		return b.appendLog(ctx, op, bk, model.LogBookingExpired,
			fmt.Sprintf("Booking %s expired before payment", bk.Ref),
			map[string]any{"seats": bk.SeatCodes()})
	})
	if err != nil && !errors.Is(err, repository.ErrConflict) {
		b.Logger.Warn("expire booking failed", "booking", bk.Ref, "error", err)
	}
	return apperr.Expired(op, msgExpired)
}

func (b *Bot) appendLog(ctx context.Context, op string, bk *model.Booking, action, desc string, meta map[string]any) error {
	if err := b.Logs.Append(ctx, &model.BookingLog{
		BookingID:   &bk.ID,
		ShowID:      bk.ShowID,
		Action:      action,
		Description: desc,
		Metadata:    meta,
	}); err != nil {
		return apperr.Transient(op, err)
	}
	return nil
}

func (b *Bot) sendTicket(ctx context.Context, to string, bk *model.Booking, show *model.Show) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🎉 Booking confirmed!\n\n🎭 %s\n", show.Title)
	fmt.Fprintf(&sb, "📍 %s\n", show.Venue)
	fmt.Fprintf(&sb, "🗓️ %s\n", show.StartsAt.UTC().Format(time.RFC1123))
	fmt.Fprintf(&sb, "🪑 %s\n", strings.Join(bk.SeatCodes(), ", "))
	fmt.Fprintf(&sb, "💰 %s\n", b.money(bk.TotalCents))
	fmt.Fprintf(&sb, "🔖 %s\n\nShow this QR code at the entrance.", bk.Ref)
	b.notify.image(ctx, to, bk.TicketURL, sb.String())
	if show.CancellationAllowed {
		b.notify.buttons(ctx, to, whatsapp.ButtonMessage{
			Body:    "Need to cancel later? Tap below any time before the show.",
			Buttons: []whatsapp.Button{{ID: idCancel, Title: "Cancel Booking"}},
		})
	}
}
