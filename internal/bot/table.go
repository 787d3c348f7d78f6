package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/showbook-chat/internal/model"
	"github.com/iliyamo/showbook-chat/internal/repository"
	"github.com/iliyamo/showbook-chat/internal/session"
	"github.com/iliyamo/showbook-chat/internal/whatsapp"
)

// transitions is the (step, kind) table.  Triggers and the pre-payment
// cancel are resolved in route before the table is consulted.
func (b *Bot) transitions() map[session.Step]map[Kind]handlerFunc {
	return map[session.Step]map[Kind]handlerFunc{
		session.StepShowEntry: {
			KindBookNow: b.onBookNow,
		},
		session.StepCollectingDetails: {
			KindDetails: b.onDetails,
			KindBookNow: b.onBookNow,
		},
		session.StepSelectingCategory: {
			KindCategory: b.onCategory,
		},
		session.StepSelectingQuantity: {
			KindQuantity: b.onQuantity,
			KindCategory: b.onCategory,
		},
		session.StepSelectingSeats: {
			KindSeat:       b.onSeat,
			KindSeatsDone:  b.onSeatsDone,
			KindSeatsClear: b.onSeatsClear,
		},
		session.StepAwaitingPayment: {
			KindConfirmPayment: b.onConfirmPayment,
		},
		session.StepConfirmed: {
			KindCancel: b.onCancelIntent,
		},
		session.StepAwaitingCancelType: {
			KindCancelFull:    b.onCancelFull,
			KindCancelPartial: b.onCancelPartial,
			KindCancel:        b.onKeepBooking,
		},
		session.StepAwaitingCancelSeat: {
			KindCancelSeat:    b.onCancelSeat,
			KindCancelClear:   b.onCancelClear,
			KindConfirmCancel: b.onConfirmCancel,
			KindCancel:        b.onKeepBooking,
		},
	}
}

// reprompt re-sends the prompt of the session's current step.
func (b *Bot) reprompt(ctx context.Context, to string, sess *session.Session) {
	var err error
	switch sess.Step {
	case session.StepShowEntry:
		var show *model.Show
		if show, err = b.Shows.GetByID(ctx, sess.ShowID); err == nil {
			b.sendShowIntro(ctx, to, show)
		}
	case session.StepCollectingDetails:
		b.notify.text(ctx, to, msgDetailsForm)
	case session.StepSelectingCategory:
		err = b.sendCategories(ctx, to, sess.ShowID)
	case session.StepSelectingQuantity:
		err = b.sendQuantities(ctx, to, sess.ShowID, sess.CategoryID)
	case session.StepSelectingSeats:
		err = b.sendSeatPicker(ctx, to, sess)
	case session.StepAwaitingPayment:
		var bk *model.Booking
		if bk, err = b.Bookings.GetByID(ctx, sess.BookingID); err == nil {
			b.sendPaymentPrompt(ctx, to, bk, "")
		}
	case session.StepConfirmed:
		b.notify.buttons(ctx, to, whatsapp.ButtonMessage{
			Body:    msgConfirmedHelp,
			Buttons: []whatsapp.Button{{ID: idCancel, Title: "Cancel Booking"}},
		})
	case session.StepAwaitingCancelType, session.StepAwaitingCancelSeat:
		err = b.repromptCancel(ctx, to, sess)
	}
	if err != nil {
		b.Logger.Warn("reprompt failed", "sender", to, "step", string(sess.Step), "error", err)
	}
}

// onUnrecognized answers input that has no meaning in the current step.
// The session is left untouched.
func (b *Bot) onUnrecognized(ctx context.Context, sess *session.Session, ev Event) error {
	body := msgDidntUnderstand
	var buttons []whatsapp.Button
	if sess.Keyword != "" {
		buttons = append(buttons, whatsapp.Button{ID: restartID(sess.Keyword), Title: "🔄 Start Over"})
	}
	switch {
	case sess.Step.BeforeConfirmed():
		buttons = append(buttons, whatsapp.Button{ID: idCancel, Title: "Cancel"})
	case sess.Step == session.StepConfirmed:
		buttons = append(buttons, whatsapp.Button{ID: idCancel, Title: "Cancel Booking"})
	default:
		buttons = append(buttons, whatsapp.Button{ID: idCancel, Title: "Keep Booking"})
	}
	b.notify.buttons(ctx, ev.Sender, whatsapp.ButtonMessage{Body: body, Buttons: buttons})
	return nil
}

// onAbort is the cancel command before payment: the pending booking, if
// any, is cancelled and its holds released, and the session is destroyed
// whatever happens to the booking.
func (b *Bot) onAbort(ctx context.Context, sess *session.Session, ev Event) error {
	if sess.BookingID != 0 {
		b.releasePending(ctx, sess.BookingID, model.BookingCancelled, "cancelled by customer before payment")
	}
	b.dropSession(ctx, b.Logger, ev.Sender)
	b.notify.text(ctx, ev.Sender, msgAborted)
	return nil
}

// releasePending moves a SEATS_SELECTED booking to the given status and
// frees the seats still locked under its hold.  A lapsed hold, or a seat
// another customer has locked since, is left alone.  Failures are logged;
// the reconciler frees anything left behind once the hold lapses.
func (b *Bot) releasePending(ctx context.Context, bookingID uint64, status, reason string) {
	log := b.Logger.With("booking_id", bookingID)
	bk, err := b.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		if !errors.Is(err, repository.ErrBookingNotFound) {
			log.Warn("load pending booking failed", "error", err)
		}
		return
	}
	if bk.Status != model.BookingSeatsSelected {
		return
	}
	err = b.Tx.WithTx(ctx, func(ctx context.Context) error {
		if err := b.Bookings.TransitionStatus(ctx, bk.ID, model.BookingSeatsSelected, status); err != nil {
			return err
		}
		if bk.HoldUntil != nil {
			if _, err := b.Engine.ReleaseHold(ctx, bk.SeatIDs(), *bk.HoldUntil); err != nil {
				return err
			}
		}
		return b.Logs.Append(ctx, &model.BookingLog{
			BookingID:   &bk.ID,
			ShowID:      bk.ShowID,
			Action:      auditActionFor(status),
			Description: fmt.Sprintf("Booking %s %s", bk.Ref, reason),
			Metadata:    map[string]any{"seats": bk.SeatCodes()},
		})
	})
	switch {
	case errors.Is(err, repository.ErrConflict):
		log.Info("pending booking already settled")
	case err != nil:
		log.Warn("release pending booking failed", "error", err)
	default:
		log.Info("pending booking released", "booking", bk.Ref, "status", status)
	}
}

func (b *Bot) hold() time.Duration {
	if b.Config.SeatHold > 0 {
		return b.Config.SeatHold
	}
	return b.Engine.Hold()
}

func auditActionFor(status string) string {
	if status == model.BookingExpired {
		return model.LogBookingExpired
	}
	return model.LogBookingCancelled
}

func backToConfirmed() session.Patch {
	return session.Patch{
		Step:                ptr(session.StepConfirmed),
		CancelBookingID:     ptr(uint64(0)),
		CancelableSeats:     ptr([]string{}),
		SelectedCancelSeats: ptr([]string{}),
		RefundPercent:       ptr(0),
	}
}
