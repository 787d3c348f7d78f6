package bot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/showbook-chat/internal/apperr"
	"github.com/iliyamo/showbook-chat/internal/model"
	"github.com/iliyamo/showbook-chat/internal/reservation"
	"github.com/iliyamo/showbook-chat/internal/session"
	"github.com/iliyamo/showbook-chat/internal/whatsapp"
)

// sendSeatPicker renders the next page of free seats.  Once the quota is
// filled the list is not rendered again; only Done and Clear are offered.
// Done is offered as soon as one seat is picked, so a customer can book
// fewer seats than asked for when the category runs out.
func (b *Bot) sendSeatPicker(ctx context.Context, to string, sess *session.Session) error {
	picked := len(sess.SelectedSeats)
	if picked >= sess.Quantity {
		b.seatActions(ctx, to, fmt.Sprintf("✅ You picked %d of %d seats: %s\n\nTap Done to hold them.",
			picked, sess.Quantity, strings.Join(sess.SelectedSeats, ", ")))
		return nil
	}
	seats, err := b.Inventory.ListAvailable(ctx, sess.ShowID, sess.CategoryID, sess.SelectedSeats, b.Config.SeatPageSize)
	if err != nil {
		return err
	}
	if len(seats) == 0 {
		msg := "Sorry, there are no more free seats in this category."
		if picked > 0 {
			b.seatActions(ctx, to, fmt.Sprintf("%s Tap Done to book the %d %s you picked (%s) or Clear to start over.",
				msg, picked, plural(picked, "seat"), strings.Join(sess.SelectedSeats, ", ")))
		} else {
			b.notify.text(ctx, to, msg+" "+msgScanAgain)
		}
		return nil
	}
	rows := make([]whatsapp.Row, 0, len(seats))
	for _, s := range seats {
		rows = append(rows, whatsapp.Row{
			ID:          prefixSeat + s.Code,
			Title:       s.Code,
			Description: fmt.Sprintf("Row %s · seat %d", s.RowLabel, s.SeatNumber),
		})
	}
	body := fmt.Sprintf("🪑 Pick seat %d of %d.", picked+1, sess.Quantity)
	if picked > 0 {
		body += "\nSelected so far: " + strings.Join(sess.SelectedSeats, ", ")
	}
	b.notify.list(ctx, to, whatsapp.ListMessage{
		Body:     body,
		Button:   "Seats",
		Sections: []whatsapp.Section{{Title: "Available seats", Rows: rows}},
	})
	if picked > 0 {
		b.seatActions(ctx, to, fmt.Sprintf("Tap Done to proceed with your current %d %s.", picked, plural(picked, "seat")))
	}
	return nil
}

// seatActions offers Done, Clear and Cancel once at least one seat is picked.
func (b *Bot) seatActions(ctx context.Context, to, body string) {
	b.notify.buttons(ctx, to, whatsapp.ButtonMessage{Body: body, Buttons: []whatsapp.Button{
		{ID: idSeatsDone, Title: "✅ Done"},
		{ID: idSeatsClear, Title: "🔄 Clear"},
		{ID: idCancel, Title: "Cancel"},
	}})
}

func (b *Bot) onSeat(ctx context.Context, sess *session.Session, ev Event) error {
	const op = "bot.seat"
	code := strings.ToUpper(strings.TrimSpace(ev.Arg))
	if len(sess.SelectedSeats) >= sess.Quantity {
		return apperr.Validation(op, fmt.Sprintf("You already picked all %d seats. Tap Done to continue or Clear to start over.", sess.Quantity))
	}
	if slices.Contains(sess.SelectedSeats, code) {
		return apperr.Validation(op, fmt.Sprintf("You already picked %s.", code))
	}
	found, err := b.Inventory.FindByCodes(ctx, sess.ShowID, []string{code})
	if err != nil {
		return apperr.Transient(op, err)
	}
	if len(found) == 0 {
		return apperr.Validation(op, fmt.Sprintf("There is no seat %s. Please pick one from the list.", code))
	}
	seat := found[0]
	if seat.CategoryID != sess.CategoryID {
		return apperr.Validation(op, fmt.Sprintf("Seat %s is not in the category you chose.", code))
	}
	if seat.Status != model.SeatAvailable {
		return apperr.Conflict(op, fmt.Sprintf("😔 Sorry, seat %s was just taken. Please pick another.", code))
	}
	next, err := b.Sessions.Merge(ctx, ev.Sender, session.Patch{
		SelectedSeats: ptr(append(slices.Clone(sess.SelectedSeats), code)),
	})
	if err != nil {
		return apperr.Transient(op, err)
	}
	if next == nil {
		return nil
	}
	if err := b.sendSeatPicker(ctx, ev.Sender, next); err != nil {
		return apperr.Transient(op, err)
	}
	return nil
}

func (b *Bot) onSeatsClear(ctx context.Context, sess *session.Session, ev Event) error {
	next, err := b.Sessions.Merge(ctx, ev.Sender, session.Patch{SelectedSeats: ptr([]string{})})
	if err != nil {
		return apperr.Transient("bot.seats_clear", err)
	}
	if next == nil {
		return nil
	}
	b.notify.text(ctx, ev.Sender, "🔄 Selection cleared.")
	if err := b.sendSeatPicker(ctx, ev.Sender, next); err != nil {
		return apperr.Transient("bot.seats_clear", err)
	}
	return nil
}

// onSeatsDone re-checks the selection, locks it and opens a SEATS_SELECTED
// booking in one transaction.
func (b *Bot) onSeatsDone(ctx context.Context, sess *session.Session, ev Event) error {
	const op = "bot.seats_done"
	if len(sess.SelectedSeats) == 0 {
		return apperr.Validation(op, "You haven't picked any seats yet.")
	}

	found, err := b.Inventory.FindByCodes(ctx, sess.ShowID, sess.SelectedSeats)
	if err != nil {
		return apperr.Transient(op, err)
	}
	byCode := make(map[string]model.Seat, len(found))
	for _, s := range found {
		byCode[s.Code] = s
	}
	var good, lost []string
	for _, code := range sess.SelectedSeats {
		if s, ok := byCode[code]; ok && s.Status == model.SeatAvailable && s.CategoryID == sess.CategoryID {
			good = append(good, code)
		} else {
			lost = append(lost, code)
		}
	}
	if len(lost) > 0 {
		return b.seatsLost(ctx, ev.Sender, op, good, lost)
	}

	cat, err := b.Inventory.GetCategory(ctx, sess.ShowID, sess.CategoryID)
	if err != nil {
		return apperr.Transient(op, err)
	}
	bk := &model.Booking{
		Ref:           newBookingRef(),
		ShowID:        sess.ShowID,
		BookerName:    sess.Name,
		BookerAge:     sess.Age,
		BookerEmail:   sess.Email,
		BookerPhone:   ev.Sender,
		Status:        model.BookingSeatsSelected,
		Source:        "WHATSAPP",
		TicketVersion: 1,
	}
	ids := make([]uint64, 0, len(good))
	for _, code := range good {
		s := byCode[code]
		ids = append(ids, s.ID)
		bk.Lines = append(bk.Lines, model.BookingSeat{SeatID: s.ID, SeatCode: s.Code, CategoryID: cat.ID, PriceCents: cat.PriceCents})
		bk.TotalCents += cat.PriceCents
	}
	bk.Quantity = len(bk.Lines)

	var lockedUntil string
	err = b.Tx.WithTx(ctx, func(ctx context.Context) error {
		res, err := b.Engine.Lock(ctx, ids, b.hold())
		if err != nil {
			return err
		}
		if len(res.AlreadyTaken) > 0 {
			taken := &reservation.SeatsTakenError{SeatIDs: res.AlreadyTaken}
			for _, l := range bk.Lines {
				if slices.Contains(res.AlreadyTaken, l.SeatID) {
					taken.Codes = append(taken.Codes, l.SeatCode)
				}
			}
			return taken
		}
		lockedUntil = res.LockedUntil.UTC().Format("15:04 MST")
		holdUntil := res.LockedUntil
		bk.HoldUntil = &holdUntil
		if err := b.Bookings.Create(ctx, bk); err != nil {
			return apperr.Transient(op, err)
		}
		if err := b.Logs.Append(ctx, &model.BookingLog{
			BookingID:   &bk.ID,
			ShowID:      bk.ShowID,
			Action:      model.LogSeatsLocked,
			Description: fmt.Sprintf("Booking %s holds %s", bk.Ref, strings.Join(good, ", ")),
			Metadata:    map[string]any{"seats": good, "locked_until": res.LockedUntil.UTC().Format("2006-01-02T15:04:05Z")},
		}); err != nil {
			return apperr.Transient(op, err)
		}
		return nil
	})
	var taken *reservation.SeatsTakenError
	if errors.As(err, &taken) {
		keep := slices.DeleteFunc(slices.Clone(good), func(c string) bool { return slices.Contains(taken.Codes, c) })
		return b.seatsLost(ctx, ev.Sender, op, keep, taken.Codes)
	}
	if err != nil {
		return err
	}

	if _, err := b.Sessions.Merge(ctx, ev.Sender, session.Patch{
		Step:      ptr(session.StepAwaitingPayment),
		BookingID: ptr(bk.ID),
	}); err != nil {
		return apperr.Transient(op, err)
	}
	b.Logger.Info("seats held", "sender", ev.Sender, "booking", bk.Ref, "seats", good)
	b.sendPaymentPrompt(ctx, ev.Sender, bk, lockedUntil)
	return nil
}

// seatsLost keeps the still-good part of the selection and asks for
// replacements of the rest.
func (b *Bot) seatsLost(ctx context.Context, to, op string, keep, lost []string) error {
	if _, err := b.Sessions.Merge(ctx, to, session.Patch{SelectedSeats: ptr(keep)}); err != nil {
		return apperr.Transient(op, err)
	}
	return apperr.Conflict(op, fmt.Sprintf("😔 Sorry, %s %s just taken. Please pick %d %s.",
		strings.Join(lost, ", "), plural(len(lost), "was", "were"), len(lost), plural(len(lost), "replacement")))
}

func newBookingRef() string {
	return "BK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// plural picks forms[0] for n == 1.  A single form gets an "s" appended.
func plural(n int, forms ...string) string {
	if n == 1 {
		return forms[0]
	}
	if len(forms) > 1 {
		return forms[1]
	}
	return forms[0] + "s"
}
