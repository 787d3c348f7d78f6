package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/showbook-chat/internal/apperr"
	"github.com/iliyamo/showbook-chat/internal/model"
	"github.com/iliyamo/showbook-chat/internal/repository"
	"github.com/iliyamo/showbook-chat/internal/session"
	"github.com/iliyamo/showbook-chat/internal/whatsapp"
)

// onTrigger (re)starts a conversation for the show behind the keyword.  Any
// earlier session of the sender is replaced; a pending booking it carried is
// released first.
func (b *Bot) onTrigger(ctx context.Context, ev Event) error {
	const op = "bot.trigger"
	show, err := b.Shows.GetByKeyword(ctx, ev.Arg)
	if errors.Is(err, repository.ErrShowNotFound) {
		return apperr.NotFound(op, "Sorry, we couldn't find a show for that code. Please scan the QR code at the venue again.")
	}
	if err != nil {
		return apperr.Transient(op, err)
	}
	if !show.AcceptsBookings() {
		return apperr.PolicyDenied(op, fmt.Sprintf("Sorry, bookings for %s are closed right now.", show.Title))
	}

	prev, err := b.Sessions.Get(ctx, ev.Sender)
	if err != nil {
		return apperr.Transient(op, err)
	}
	if prev != nil && prev.Step.BeforeConfirmed() && prev.BookingID != 0 {
		b.releasePending(ctx, prev.BookingID, model.BookingCancelled, "abandoned by restarting the conversation")
	}

	sess := &session.Session{
		Step:      session.StepShowEntry,
		ShowID:    show.ID,
		Keyword:   show.Keyword,
		UpdatedAt: b.now().UTC(),
	}
	if err := b.Sessions.Set(ctx, ev.Sender, sess); err != nil {
		return apperr.Transient(op, err)
	}
	b.Logger.Info("conversation started", "sender", ev.Sender, "show", show.Keyword)
	b.sendShowIntro(ctx, ev.Sender, show)
	return nil
}

func (b *Bot) sendShowIntro(ctx context.Context, to string, show *model.Show) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🎭 *%s*\n", show.Title)
	if show.Description != "" {
		sb.WriteString(show.Description + "\n")
	}
	fmt.Fprintf(&sb, "\n📍 %s", show.Venue)
	if show.City != "" {
		fmt.Fprintf(&sb, ", %s", show.City)
	}
	fmt.Fprintf(&sb, "\n🗓️ %s", show.StartsAt.UTC().Format("Mon 02 Jan 2006, 15:04 MST"))
	intro := sb.String()

	if show.PosterURL != "" {
		b.notify.image(ctx, to, show.PosterURL, intro)
	} else {
		b.notify.text(ctx, to, intro)
	}
	b.notify.buttons(ctx, to, whatsapp.ButtonMessage{
		Body: "Would you like to book tickets?",
		Buttons: []whatsapp.Button{
			{ID: idBookNow, Title: "🎟️ Book Now"},
			{ID: idCancel, Title: "Cancel"},
		},
	})
}

func (b *Bot) onBookNow(ctx context.Context, sess *session.Session, ev Event) error {
	if _, err := b.Sessions.Merge(ctx, ev.Sender, session.Patch{Step: ptr(session.StepCollectingDetails)}); err != nil {
		return apperr.Transient("bot.book_now", err)
	}
	b.notify.text(ctx, ev.Sender, msgDetailsForm)
	return nil
}

// detailsForm is the booker profile typed by the customer.
type detailsForm struct {
	Name  string `validate:"required,min=2,max=100"`
	Age   int    `validate:"required,min=1,max=120"`
	Email string `validate:"required,email,max=255"`
}

// parseDetails reads "LABEL: value" lines.  Labels are case-insensitive and
// unknown lines are ignored.
func parseDetails(text string) detailsForm {
	var f detailsForm
	for _, line := range strings.Split(text, "\n") {
		label, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(label)) {
		case "name", "full name":
			f.Name = value
		case "age":
			if n, err := strconv.Atoi(value); err == nil {
				f.Age = n
			}
		case "email", "e-mail", "mail":
			f.Email = strings.ToLower(value)
		}
	}
	return f
}

func (b *Bot) onDetails(ctx context.Context, sess *session.Session, ev Event) error {
	const op = "bot.details"
	f := parseDetails(ev.Text)
	if err := b.validate.Struct(f); err != nil {
		return apperr.Wrap(apperr.KindValidation, op, detailsProblem(err), err)
	}
	if _, err := b.Sessions.Merge(ctx, ev.Sender, session.Patch{
		Step:  ptr(session.StepSelectingCategory),
		Name:  ptr(f.Name),
		Age:   ptr(f.Age),
		Email: ptr(f.Email),
	}); err != nil {
		return apperr.Transient(op, err)
	}
	b.notify.text(ctx, ev.Sender, fmt.Sprintf("Thanks, %s! ✅", f.Name))
	if err := b.sendCategories(ctx, ev.Sender, sess.ShowID); err != nil {
		return apperr.Transient(op, err)
	}
	return nil
}

// detailsProblem turns the first failed rule into a customer message.
func detailsProblem(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "Please check your details and try again."
	}
	switch ve[0].Field() {
	case "Name":
		return "Please include your name (at least 2 characters) on a line starting with NAME:"
	case "Age":
		return "Please include your age as a number between 1 and 120 on a line starting with AGE:"
	default:
		return "Please include a valid email address on a line starting with EMAIL:"
	}
}

func (b *Bot) sendCategories(ctx context.Context, to string, showID uint64) error {
	cats, err := b.Inventory.AvailabilityByCategory(ctx, showID)
	if err != nil {
		return err
	}
	rows := make([]whatsapp.Row, 0, len(cats))
	for _, c := range cats {
		desc := fmt.Sprintf("%s · %d left", b.money(c.PriceCents), c.Available)
		if c.Available == 0 {
			desc = fmt.Sprintf("%s · sold out", b.money(c.PriceCents))
		}
		rows = append(rows, whatsapp.Row{ID: fmt.Sprintf("%s%d", prefixCategory, c.ID), Title: c.Name, Description: desc})
	}
	if len(rows) == 0 {
		b.notify.text(ctx, to, "Sorry, no seats have been released for this show yet.")
		return nil
	}
	b.notify.list(ctx, to, whatsapp.ListMessage{
		Body:     "🪑 Choose a seat category:",
		Button:   "Categories",
		Sections: []whatsapp.Section{{Title: "Categories", Rows: rows}},
	})
	return nil
}

// availability returns the category and its live count of free seats.
func (b *Bot) availability(ctx context.Context, op string, showID, categoryID uint64) (*model.CategoryAvailability, error) {
	cats, err := b.Inventory.AvailabilityByCategory(ctx, showID)
	if err != nil {
		return nil, apperr.Transient(op, err)
	}
	for i := range cats {
		if cats[i].ID == categoryID {
			return &cats[i], nil
		}
	}
	return nil, apperr.NotFound(op, "Sorry, that seat category doesn't exist for this show. "+msgScanAgain)
}

func (b *Bot) onCategory(ctx context.Context, sess *session.Session, ev Event) error {
	const op = "bot.category"
	id, err := strconv.ParseUint(ev.Arg, 10, 64)
	if err != nil {
		return apperr.Validation(op, "Please choose a category from the list.")
	}
	if _, err := b.Inventory.GetCategory(ctx, sess.ShowID, id); err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			return apperr.NotFound(op, "Sorry, that seat category doesn't exist for this show. "+msgScanAgain)
		}
		return apperr.Transient(op, err)
	}
	cat, err := b.availability(ctx, op, sess.ShowID, id)
	if err != nil {
		return err
	}
	if cat.Available == 0 {
		return apperr.Validation(op, fmt.Sprintf("😔 %s is sold out. Please choose another category.", cat.Name))
	}
	if _, err := b.Sessions.Merge(ctx, ev.Sender, session.Patch{
		Step:          ptr(session.StepSelectingQuantity),
		CategoryID:    ptr(id),
		Quantity:      ptr(0),
		SelectedSeats: ptr([]string{}),
	}); err != nil {
		return apperr.Transient(op, err)
	}
	b.quantityList(ctx, ev.Sender, cat)
	return nil
}

func (b *Bot) sendQuantities(ctx context.Context, to string, showID, categoryID uint64) error {
	cat, err := b.availability(ctx, "bot.quantity", showID, categoryID)
	if err != nil {
		return err
	}
	b.quantityList(ctx, to, cat)
	return nil
}

func (b *Bot) quantityList(ctx context.Context, to string, cat *model.CategoryAvailability) {
	limit := min(b.Config.MaxSeats, cat.Available)
	rows := make([]whatsapp.Row, 0, limit)
	for n := 1; n <= limit; n++ {
		title := fmt.Sprintf("%d ticket", n)
		if n > 1 {
			title += "s"
		}
		rows = append(rows, whatsapp.Row{
			ID:          fmt.Sprintf("%s%d", prefixQuantity, n),
			Title:       title,
			Description: b.money(cat.PriceCents * int64(n)),
		})
	}
	b.notify.list(ctx, to, whatsapp.ListMessage{
		Body:     fmt.Sprintf("%s · %s per seat · %d available\n\nHow many tickets?", cat.Name, b.money(cat.PriceCents), cat.Available),
		Button:   "Quantity",
		Sections: []whatsapp.Section{{Title: "Tickets", Rows: rows}},
	})
}

func (b *Bot) onQuantity(ctx context.Context, sess *session.Session, ev Event) error {
	const op = "bot.quantity"
	n, err := strconv.Atoi(ev.Arg)
	if err != nil || n < 1 || n > b.Config.MaxSeats {
		return apperr.Validation(op, fmt.Sprintf("Please choose between 1 and %d tickets.", b.Config.MaxSeats))
	}
	cat, err := b.availability(ctx, op, sess.ShowID, sess.CategoryID)
	if err != nil {
		return err
	}
	if n > cat.Available {
		return apperr.Validation(op, fmt.Sprintf("Only %d seats are left in %s.", cat.Available, cat.Name))
	}
	next, err := b.Sessions.Merge(ctx, ev.Sender, session.Patch{
		Step:          ptr(session.StepSelectingSeats),
		Quantity:      ptr(n),
		SelectedSeats: ptr([]string{}),
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
