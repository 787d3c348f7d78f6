package bot

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/iliyamo/showbook-chat/internal/apperr"
	"github.com/iliyamo/showbook-chat/internal/cancellation"
	"github.com/iliyamo/showbook-chat/internal/session"
	"github.com/iliyamo/showbook-chat/internal/whatsapp"
)

const cancelReason = "customer request via chat"

func (b *Bot) onCancelIntent(ctx context.Context, sess *session.Session, ev Event) error {
	const op = "bot.cancel_intent"
	q, err := b.Cancel.Preview(ctx, sess.BookingID)
	if err != nil {
		return err
	}
	if _, err := b.Sessions.Merge(ctx, ev.Sender, session.Patch{
		Step:                ptr(session.StepAwaitingCancelType),
		CancelBookingID:     ptr(q.Booking.ID),
		CancelableSeats:     ptr(q.Booking.SeatCodes()),
		SelectedCancelSeats: ptr([]string{}),
		RefundPercent:       ptr(q.Percent),
	}); err != nil {
		return apperr.Transient(op, err)
	}
	b.sendCancelType(ctx, ev.Sender, q)
	return nil
}

func (b *Bot) sendCancelType(ctx context.Context, to string, q *cancellation.Quote) {
	body := fmt.Sprintf("Booking *%s* (%s)\nCancelling now refunds %d%%: %s for all seats.\n\nWhat would you like to cancel?",
		q.Booking.Ref, strings.Join(q.Booking.SeatCodes(), ", "), q.Percent, b.money(q.RefundCents()))
	buttons := []whatsapp.Button{{ID: idCancelFull, Title: "Cancel All Seats"}}
	if len(q.Booking.Lines) > 1 {
		buttons = append(buttons, whatsapp.Button{ID: idCancelPartial, Title: "Cancel Some Seats"})
	}
	buttons = append(buttons, whatsapp.Button{ID: idCancel, Title: "Keep Booking"})
	b.notify.buttons(ctx, to, whatsapp.ButtonMessage{Body: body, Buttons: buttons})
}

func (b *Bot) onKeepBooking(ctx context.Context, sess *session.Session, ev Event) error {
	if _, err := b.Sessions.Merge(ctx, ev.Sender, backToConfirmed()); err != nil {
		return apperr.Transient("bot.keep_booking", err)
	}
	b.notify.text(ctx, ev.Sender, msgKeepBooking)
	return nil
}

func (b *Bot) onCancelFull(ctx context.Context, sess *session.Session, ev Event) error {
	res, err := b.Cancel.CancelFull(ctx, sess.CancelBookingID, cancelReason)
	if err != nil {
		return err
	}
	b.dropSession(ctx, b.Logger, ev.Sender)
	b.notify.text(ctx, ev.Sender, b.cancelledText(res))
	return nil
}

func (b *Bot) onCancelPartial(ctx context.Context, sess *session.Session, ev Event) error {
	const op = "bot.cancel_partial"
	q, err := b.Cancel.Preview(ctx, sess.CancelBookingID)
	if err != nil {
		return err
	}
	next, err := b.Sessions.Merge(ctx, ev.Sender, session.Patch{
		Step:                ptr(session.StepAwaitingCancelSeat),
		CancelableSeats:     ptr(q.Booking.SeatCodes()),
		SelectedCancelSeats: ptr([]string{}),
		RefundPercent:       ptr(q.Percent),
	})
	if err != nil {
		return apperr.Transient(op, err)
	}
	if next == nil {
		return nil
	}
	b.sendCancelPicker(ctx, ev.Sender, q, next.SelectedCancelSeats)
	return nil
}

// sendCancelPicker lists the booked seats with a tick on those selected for
// cancellation and the refund they would bring.
func (b *Bot) sendCancelPicker(ctx context.Context, to string, q *cancellation.Quote, selected []string) {
	rows := make([]whatsapp.Row, 0, len(q.Booking.Lines))
	for _, l := range q.Booking.Lines {
		title := l.SeatCode
		if slices.Contains(selected, l.SeatCode) {
			title = "✅ " + title
		}
		rows = append(rows, whatsapp.Row{
			ID:          prefixCancelSeat + l.SeatCode,
			Title:       title,
			Description: fmt.Sprintf("Paid %s", b.money(l.PriceCents)),
		})
	}
	body := fmt.Sprintf("Tap seats to select or unselect them. Refund rate: %d%%.", q.Percent)
	if len(selected) > 0 {
		body += fmt.Sprintf("\n\nSelected: %s\nRefund: %s", strings.Join(selected, ", "), b.money(q.RefundFor(selected)))
	}
	b.notify.list(ctx, to, whatsapp.ListMessage{
		Body:     body,
		Button:   "Your seats",
		Sections: []whatsapp.Section{{Title: q.Booking.Ref, Rows: rows}},
	})
	buttons := make([]whatsapp.Button, 0, 3)
	if len(selected) > 0 {
		buttons = append(buttons,
			whatsapp.Button{ID: idConfirmCancel, Title: "Confirm Cancel"},
			whatsapp.Button{ID: idCancelClear, Title: "Clear Ticks"},
		)
	}
	buttons = append(buttons, whatsapp.Button{ID: idCancel, Title: "Keep Booking"})
	b.notify.buttons(ctx, to, whatsapp.ButtonMessage{Body: "When you're ready:", Buttons: buttons})
}

func (b *Bot) onCancelSeat(ctx context.Context, sess *session.Session, ev Event) error {
	const op = "bot.cancel_seat"
	code := strings.ToUpper(strings.TrimSpace(ev.Arg))
	if !slices.Contains(sess.CancelableSeats, code) {
		return apperr.Validation(op, fmt.Sprintf("Seat %s is not part of this booking.", code))
	}
	selected := slices.Clone(sess.SelectedCancelSeats)
	if i := slices.Index(selected, code); i >= 0 {
		selected = slices.Delete(selected, i, i+1)
	} else {
		selected = append(selected, code)
	}
	return b.updateCancelSelection(ctx, op, ev.Sender, sess, selected)
}

func (b *Bot) onCancelClear(ctx context.Context, sess *session.Session, ev Event) error {
	return b.updateCancelSelection(ctx, "bot.cancel_clear", ev.Sender, sess, []string{})
}

func (b *Bot) updateCancelSelection(ctx context.Context, op, to string, sess *session.Session, selected []string) error {
	q, err := b.Cancel.Preview(ctx, sess.CancelBookingID)
	if err != nil {
		return err
	}
	if _, err := b.Sessions.Merge(ctx, to, session.Patch{SelectedCancelSeats: ptr(selected)}); err != nil {
		return apperr.Transient(op, err)
	}
	b.sendCancelPicker(ctx, to, q, selected)
	return nil
}

func (b *Bot) onConfirmCancel(ctx context.Context, sess *session.Session, ev Event) error {
	const op = "bot.confirm_cancel"
	if len(sess.SelectedCancelSeats) == 0 {
		return apperr.Validation(op, "Select at least one seat to cancel.")
	}
	res, err := b.Cancel.CancelPartial(ctx, sess.CancelBookingID, sess.SelectedCancelSeats, cancelReason)
	if err != nil {
		return err
	}
	if res.Full {
		b.dropSession(ctx, b.Logger, ev.Sender)
		b.notify.text(ctx, ev.Sender, b.cancelledText(res))
		return nil
	}
	if _, err := b.Sessions.Merge(ctx, ev.Sender, backToConfirmed()); err != nil {
		b.Logger.Warn("session update after partial cancellation failed", "sender", ev.Sender, "error", err)
	}
	caption := fmt.Sprintf("%s\n\n🎟️ Updated ticket for %s. Your previous ticket is no longer valid.",
		b.cancelledText(res), strings.Join(res.Booking.SeatCodes(), ", "))
	b.notify.image(ctx, ev.Sender, res.TicketURL, caption)
	return nil
}

func (b *Bot) cancelledText(res *cancellation.Result) string {
	c := res.Cancellation
	if res.Full {
		return fmt.Sprintf("❌ Booking %s cancelled.\n💰 Refund: %s (%d%%), we'll process it shortly.\n\n%s",
			res.Booking.Ref, b.money(c.RefundCents), c.RefundPercent, msgScanAgain)
	}
	return fmt.Sprintf("✂️ Cancelled %s from booking %s.\n💰 Refund: %s (%d%%), we'll process it shortly.",
		strings.Join(c.SeatCodes, ", "), res.Booking.Ref, b.money(c.RefundCents), c.RefundPercent)
}

// repromptCancel re-sends the prompt of a cancel sub-flow step with a
// fresh refund quote.
func (b *Bot) repromptCancel(ctx context.Context, to string, sess *session.Session) error {
	q, err := b.Cancel.Preview(ctx, sess.CancelBookingID)
	if err != nil {
		b.notify.text(ctx, to, orDefault(apperr.Message(err), msgTryLater))
		return nil
	}
	if sess.Step == session.StepAwaitingCancelSeat {
		b.sendCancelPicker(ctx, to, q, sess.SelectedCancelSeats)
		return nil
	}
	b.sendCancelType(ctx, to, q)
	return nil
}
