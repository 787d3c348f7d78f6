// Package bot runs the booking conversation: it interprets every inbound
// message against the customer's session step, drives category, quantity
// and seat selection, takes payment confirmation and hands confirmed
// bookings to the cancellation engine.
package bot

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/showbook-chat/internal/apperr"
	"github.com/iliyamo/showbook-chat/internal/cancellation"
	"github.com/iliyamo/showbook-chat/internal/config"
	"github.com/iliyamo/showbook-chat/internal/dedup"
	"github.com/iliyamo/showbook-chat/internal/model"
	"github.com/iliyamo/showbook-chat/internal/queue"
	"github.com/iliyamo/showbook-chat/internal/ratelimit"
	"github.com/iliyamo/showbook-chat/internal/reservation"
	"github.com/iliyamo/showbook-chat/internal/session"
	"github.com/iliyamo/showbook-chat/internal/whatsapp"
)

// Messenger delivers outbound messages.  Delivery is best effort.
type Messenger interface {
	SendText(ctx context.Context, to, body string) error
	SendButtons(ctx context.Context, to string, m whatsapp.ButtonMessage) error
	SendList(ctx context.Context, to string, m whatsapp.ListMessage) error
	SendImage(ctx context.Context, to, link, caption string) error
}

type Shows interface {
	GetByKeyword(ctx context.Context, keyword string) (*model.Show, error)
	GetByID(ctx context.Context, id uint64) (*model.Show, error)
}

type Inventory interface {
	AvailabilityByCategory(ctx context.Context, showID uint64) ([]model.CategoryAvailability, error)
	GetCategory(ctx context.Context, showID, categoryID uint64) (*model.SeatCategory, error)
	ListAvailable(ctx context.Context, showID, categoryID uint64, exclude []string, limit int) ([]model.Seat, error)
	FindByCodes(ctx context.Context, showID uint64, codes []string) ([]model.Seat, error)
}

type Bookings interface {
	Create(ctx context.Context, b *model.Booking) error
	GetByID(ctx context.Context, id uint64) (*model.Booking, error)
	TransitionStatus(ctx context.Context, id uint64, from, to string) error
	Confirm(ctx context.Context, id uint64, ticketURL string, sentAt time.Time) error
}

type Payments interface {
	Create(ctx context.Context, p *model.Payment) error
}

type AuditLog interface {
	Append(ctx context.Context, l *model.BookingLog) error
}

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type TicketIssuer interface {
	Issue(ctx context.Context, b *model.Booking, seatCodes []string) (string, error)
}

type Canceller interface {
	Preview(ctx context.Context, bookingID uint64) (*cancellation.Quote, error)
	CancelFull(ctx context.Context, bookingID uint64, reason string) (*cancellation.Result, error)
	CancelPartial(ctx context.Context, bookingID uint64, seatCodes []string, reason string) (*cancellation.Result, error)
}

type EventPublisher interface {
	PublishBookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error
}

type Limiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

// Deps are the collaborators of a Bot.  Limiter, Events, Logger and Clock
// are optional.
type Deps struct {
	Sessions  session.Store
	Guard     dedup.Guard
	Limiter   Limiter
	Tx        Transactor
	Shows     Shows
	Inventory Inventory
	Bookings  Bookings
	Payments  Payments
	Logs      AuditLog
	Engine    *reservation.Engine
	Tickets   TicketIssuer
	Cancel    Canceller
	Events    EventPublisher
	Messenger Messenger
	Config    config.BookingConfig
	Logger    *slog.Logger
	Clock     func() time.Time
}

type handlerFunc func(ctx context.Context, sess *session.Session, ev Event) error

// Bot is safe for concurrent use.  Messages from one sender are handled one
// at a time; different senders proceed in parallel and only meet at the
// seat compare-and-set in the reservation engine.
type Bot struct {
	Deps
	table    map[session.Step]map[Kind]handlerFunc
	locks    senderLocks
	validate *validator.Validate
	notify   notifier
	now      func() time.Time
}

func New(d Deps) *Bot {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	d.Logger = d.Logger.With("component", "bot")
	if d.Config.MaxSeats < 1 {
		d.Config.MaxSeats = 5
	}
	if d.Config.SeatPageSize < 1 {
		d.Config.SeatPageSize = 10
	}
	if d.Config.CurrencySymbol == "" {
		d.Config.CurrencySymbol = "₹"
	}
	now := d.Clock
	if now == nil {
		now = time.Now
	}
	b := &Bot{
		Deps:     d,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		notify:   notifier{m: d.Messenger, log: d.Logger},
		now:      now,
	}
	b.table = b.transitions()
	return b
}

// Dispatch handles one inbound event.  It never returns an error: the
// transport has already been acknowledged, so failures are classified,
// logged and answered with a message to the customer where useful.
func (b *Bot) Dispatch(ctx context.Context, ev Event) {
	log := b.Logger.With("event", ev.ID, "sender", ev.Sender, "kind", ev.Kind.String())
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while handling event", "panic", r)
		}
	}()

	if dup, err := b.Guard.Seen(ctx, ev.ID); err != nil {
		log.Warn("dedup check failed; processing anyway", "error", err)
	} else if dup {
		log.Debug("duplicate delivery dropped")
		return
	}
	if b.Limiter != nil {
		d, err := b.Limiter.Allow(ctx, "wa:"+ev.Sender)
		if err != nil {
			log.Warn("rate limiter unavailable", "error", err)
		} else if !d.Allowed {
			log.Warn("sender rate limited", "retry_after", d.RetryAfter)
			return
		}
	}

	unlock := b.locks.lock(ev.Sender)
	defer unlock()

	if err := b.route(ctx, ev); err != nil {
		b.recoverFrom(ctx, log, ev, err)
	}
}

func (b *Bot) route(ctx context.Context, ev Event) error {
	if ev.Kind == KindTrigger {
		return b.onTrigger(ctx, ev)
	}
	sess, err := b.Sessions.Get(ctx, ev.Sender)
	if err != nil {
		return apperr.Transient("bot.session", err)
	}
	if sess == nil {
		b.notify.text(ctx, ev.Sender, msgNoSession)
		return nil
	}
	if ev.Kind == KindCancel && sess.Step.BeforeConfirmed() {
		return b.onAbort(ctx, sess, ev)
	}
	return b.handlerFor(sess.Step, ev.Kind)(ctx, sess, ev)
}

// handlerFor resolves the transition table.  Pairs without an entry are
// answered with the "didn't understand" prompt and leave the session as is.
func (b *Bot) handlerFor(step session.Step, kind Kind) handlerFunc {
	if h, ok := b.table[step][kind]; ok {
		return h
	}
	return b.onUnrecognized
}

// recoverFrom applies the outcome associated with the error's kind.
func (b *Bot) recoverFrom(ctx context.Context, log *slog.Logger, ev Event, err error) {
	kind := apperr.KindOf(err)
	msg := apperr.Message(err)
	log = log.With("error_kind", kind.String(), "error", err)

	switch kind {
	case apperr.KindValidation, apperr.KindConflict:
		log.Info("input rejected")
		b.notify.text(ctx, ev.Sender, orDefault(msg, msgDidntUnderstand))
		if sess, gerr := b.Sessions.Get(ctx, ev.Sender); gerr == nil && sess != nil {
			b.reprompt(ctx, ev.Sender, sess)
		}
	case apperr.KindNotFound:
		log.Warn("flow ended: not found")
		b.notify.text(ctx, ev.Sender, orDefault(msg, msgNotFound))
		b.dropSession(ctx, log, ev.Sender)
	case apperr.KindPolicyDenied:
		log.Info("request denied by policy")
		b.notify.text(ctx, ev.Sender, orDefault(msg, msgTryLater))
		if sess, gerr := b.Sessions.Get(ctx, ev.Sender); gerr == nil && sess != nil && sess.Step.InCancelFlow() {
			if _, merr := b.Sessions.Merge(ctx, ev.Sender, backToConfirmed()); merr != nil {
				log.Warn("reset to confirmed failed", "merge_error", merr)
			}
		}
	case apperr.KindExpired:
		log.Warn("flow ended: expired")
		keyword := ""
		if sess, gerr := b.Sessions.Get(ctx, ev.Sender); gerr == nil && sess != nil {
			keyword = sess.Keyword
		}
		b.dropSession(ctx, log, ev.Sender)
		b.offerRestart(ctx, ev.Sender, orDefault(msg, msgExpired), keyword)
	default:
		log.Error("event handling failed")
		b.notify.text(ctx, ev.Sender, msgTryLater)
	}
}

func (b *Bot) dropSession(ctx context.Context, log *slog.Logger, sender string) {
	if err := b.Sessions.Delete(ctx, sender); err != nil {
		log.Warn("delete session failed", "delete_error", err)
	}
}

func (b *Bot) offerRestart(ctx context.Context, to, body, keyword string) {
	if keyword == "" {
		b.notify.text(ctx, to, body+"\n\n"+msgScanAgain)
		return
	}
	b.notify.buttons(ctx, to, whatsapp.ButtonMessage{
		Body:    body,
		Buttons: []whatsapp.Button{{ID: restartID(keyword), Title: "🔄 Try Again"}},
	})
}

func (b *Bot) publishConfirmed(ctx context.Context, bk *model.Booking, show *model.Show) {
	if b.Events == nil {
		return
	}
	ev := queue.BookingConfirmedEvent{
		BookingID:        bk.ID,
		BookingRef:       bk.Ref,
		ShowID:           bk.ShowID,
		ShowTitle:        show.Title,
		Venue:            show.Venue,
		StartsAt:         show.StartsAt.UTC().Format(time.RFC3339),
		Phone:            bk.BookerPhone,
		SeatCodes:        bk.SeatCodes(),
		TotalAmountCents: bk.TotalCents,
		TicketURL:        bk.TicketURL,
		ConfirmedAt:      b.now().UTC().Format(time.RFC3339),
	}
	if err := b.Events.PublishBookingConfirmed(ctx, ev); err != nil {
		b.Logger.Warn("publish booking.confirmed failed", "booking", bk.Ref, "error", err)
	}
}

func (b *Bot) money(cents int64) string {
	return fmt.Sprintf("%s%d.%02d", b.Config.CurrencySymbol, cents/100, cents%100)
}

// notifier logs delivery failures instead of returning them.  A booking
// committed to storage stays committed even if the message about it is
// lost.
type notifier struct {
	m   Messenger
	log *slog.Logger
}

func (n notifier) text(ctx context.Context, to, body string) {
	if err := n.m.SendText(ctx, to, body); err != nil {
		n.log.Warn("send text failed", "to", to, "error", err)
	}
}

func (n notifier) buttons(ctx context.Context, to string, m whatsapp.ButtonMessage) {
	if err := n.m.SendButtons(ctx, to, m); err != nil {
		n.log.Warn("send buttons failed", "to", to, "error", err)
	}
}

func (n notifier) list(ctx context.Context, to string, m whatsapp.ListMessage) {
	if err := n.m.SendList(ctx, to, m); err != nil {
		n.log.Warn("send list failed", "to", to, "error", err)
	}
}

func (n notifier) image(ctx context.Context, to, link, caption string) {
	if err := n.m.SendImage(ctx, to, link, caption); err != nil {
		n.log.Warn("send image failed", "to", to, "error", err)
	}
}

const lockStripes = 64

// senderLocks serialises events per sender within this process.  Across
// instances the session store's atomic merge and the seat compare-and-set
// keep state consistent.
type senderLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *senderLocks) lock(sender string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sender))
	m := &l.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}

func ptr[T any](v T) *T { return &v }

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
