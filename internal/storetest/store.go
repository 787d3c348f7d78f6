// Package storetest provides an in-memory implementation of the repository
// contracts for tests of the booking services.  It follows the same
// conditional update rules as the MySQL repositories, including returning
// repository.ErrConflict when a status precondition does not hold.
package storetest

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/showbook-chat/internal/model"
	"github.com/iliyamo/showbook-chat/internal/repository"
)

type txKey struct{}

// Store holds every entity in memory.  Methods are safe for concurrent use;
// WithTx restores a snapshot when fn fails and is meant for single
// goroutine tests.
type Store struct {
	mu            sync.Mutex
	nextID        uint64
	shows         map[uint64]*model.Show
	categories    map[uint64]*model.SeatCategory
	seats         map[uint64]*model.Seat
	bookings      map[uint64]*model.Booking
	payments      []model.Payment
	cancellations []model.Cancellation
	logs          []model.BookingLog

	// Now stamps created bookings.  Defaults to time.Now.
	Now func() time.Time
}

func New() *Store {
	return &Store{
		nextID:     100,
		shows:      map[uint64]*model.Show{},
		categories: map[uint64]*model.SeatCategory{},
		seats:      map[uint64]*model.Seat{},
		bookings:   map[uint64]*model.Booking{},
		Now:        time.Now,
	}
}

func (s *Store) id() uint64 {
	s.nextID++
	return s.nextID
}

// AddShow stores a show and returns its id.
func (s *Store) AddShow(sh model.Show) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sh.ID == 0 {
		sh.ID = s.id()
	}
	s.shows[sh.ID] = &sh
	return sh.ID
}

// AddCategory stores a category with one AVAILABLE seat per code.
func (s *Store) AddCategory(showID uint64, name string, priceCents int64, codes ...string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	cat := &model.SeatCategory{ID: s.id(), ShowID: showID, Name: name, PriceCents: priceCents}
	s.categories[cat.ID] = cat
	for _, code := range codes {
		seat := &model.Seat{ID: s.id(), ShowID: showID, CategoryID: cat.ID, Code: code, Status: model.SeatAvailable}
		seat.RowLabel = strings.TrimRight(code, "0123456789")
		for _, r := range strings.TrimPrefix(code, seat.RowLabel) {
			seat.SeatNumber = seat.SeatNumber*10 + int(r-'0')
		}
		s.seats[seat.ID] = seat
	}
	return cat.ID
}

// Seat returns a copy of the seat with the given code.
func (s *Store) Seat(showID uint64, code string) model.Seat {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seat := range s.seats {
		if seat.ShowID == showID && seat.Code == code {
			return copySeat(seat)
		}
	}
	return model.Seat{}
}

// SetSeat overwrites the status and hold of a seat.
func (s *Store) SetSeat(showID uint64, code, status string, lockedUntil *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seat := range s.seats {
		if seat.ShowID == showID && seat.Code == code {
			seat.Status = status
			seat.LockedUntil = lockedUntil
		}
	}
}

// Bookings returns copies of every booking ordered by id.
func (s *Store) Bookings() []model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		out = append(out, copyBooking(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) PaymentsMade() []model.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.payments)
}

func (s *Store) CancellationsMade() []model.Cancellation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.cancellations)
}

// Logs returns the audit entries in append order.
func (s *Store) Logs() []model.BookingLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.logs)
}

// LogActions returns the action of every audit entry in append order.
func (s *Store) LogActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.logs))
	for _, l := range s.logs {
		out = append(out, l.Action)
	}
	return out
}

// WithTx runs fn and rolls every change back when it returns an error.
// Nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	nextID        uint64
	seats         map[uint64]*model.Seat
	bookings      map[uint64]*model.Booking
	payments      []model.Payment
	cancellations []model.Cancellation
	logs          []model.BookingLog
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{
		nextID:        s.nextID,
		seats:         make(map[uint64]*model.Seat, len(s.seats)),
		bookings:      make(map[uint64]*model.Booking, len(s.bookings)),
		payments:      slices.Clone(s.payments),
		cancellations: slices.Clone(s.cancellations),
		logs:          slices.Clone(s.logs),
	}
	for id, seat := range s.seats {
		c := copySeat(seat)
		snap.seats[id] = &c
	}
	for id, b := range s.bookings {
		c := copyBooking(b)
		snap.bookings[id] = &c
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = snap.nextID
	s.seats = snap.seats
	s.bookings = snap.bookings
	s.payments = snap.payments
	s.cancellations = snap.cancellations
	s.logs = snap.logs
}

// Shows

func (s *Store) GetByKeyword(_ context.Context, keyword string) (*model.Show, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sh := range s.shows {
		if strings.EqualFold(sh.Keyword, keyword) {
			c := *sh
			return &c, nil
		}
	}
	return nil, repository.ErrShowNotFound
}

// ShowByID is GetByID for shows; bookings own the GetByID name.
func (s *Store) ShowByID(_ context.Context, id uint64) (*model.Show, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shows[id]
	if !ok {
		return nil, repository.ErrShowNotFound
	}
	c := *sh
	return &c, nil
}

// Inventory

func (s *Store) AvailabilityByCategory(_ context.Context, showID uint64) ([]model.CategoryAvailability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CategoryAvailability
	for _, cat := range s.categories {
		if cat.ShowID != showID {
			continue
		}
		ca := model.CategoryAvailability{SeatCategory: *cat}
		for _, seat := range s.seats {
			if seat.CategoryID == cat.ID && seat.Status == model.SeatAvailable {
				ca.Available++
			}
		}
		out = append(out, ca)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, showID, categoryID uint64) (*model.SeatCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cat, ok := s.categories[categoryID]
	if !ok || cat.ShowID != showID {
		return nil, repository.ErrCategoryNotFound
	}
	c := *cat
	return &c, nil
}

func (s *Store) ListAvailable(_ context.Context, showID, categoryID uint64, exclude []string, limit int) ([]model.Seat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Seat
	for _, seat := range s.sortedSeats() {
		if seat.ShowID == showID && seat.CategoryID == categoryID && seat.Status == model.SeatAvailable &&
			!slices.Contains(exclude, seat.Code) {
			out = append(out, copySeat(seat))
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) FindByCodes(_ context.Context, showID uint64, codes []string) ([]model.Seat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Seat
	for _, seat := range s.sortedSeats() {
		if seat.ShowID == showID && slices.Contains(codes, seat.Code) {
			out = append(out, copySeat(seat))
		}
	}
	return out, nil
}

func (s *Store) sortedSeats() []*model.Seat {
	ids := slices.Sorted(maps.Keys(s.seats))
	out := make([]*model.Seat, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.seats[id])
	}
	return out
}

// Seat transitions

func (s *Store) LockSeats(_ context.Context, ids []uint64, until time.Time) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var locked []uint64
	for _, id := range ids {
		if seat, ok := s.seats[id]; ok && seat.Status == model.SeatAvailable {
			u := until
			seat.Status, seat.LockedUntil = model.SeatLocked, &u
			locked = append(locked, id)
		}
	}
	return locked, nil
}

func (s *Store) CommitSeats(_ context.Context, ids []uint64, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if seat, ok := s.seats[id]; ok && fresh(seat, now) {
			seat.Status, seat.LockedUntil = model.SeatBooked, nil
			n++
		}
	}
	return n, nil
}

func (s *Store) ReleaseSeats(_ context.Context, ids []uint64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if seat, ok := s.seats[id]; ok && (seat.Status == model.SeatLocked || seat.Status == model.SeatBooked) {
			seat.Status, seat.LockedUntil = model.SeatAvailable, nil
			n++
		}
	}
	return n, nil
}

func (s *Store) ReleaseHeldSeats(_ context.Context, ids []uint64, until, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if seat, ok := s.seats[id]; ok && fresh(seat, now) && seat.LockedUntil.Equal(until) {
			seat.Status, seat.LockedUntil = model.SeatAvailable, nil
			n++
		}
	}
	return n, nil
}

func (s *Store) CountFreshLocks(_ context.Context, ids []uint64, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if seat, ok := s.seats[id]; ok && fresh(seat, now) {
			n++
		}
	}
	return n, nil
}

func (s *Store) ReleaseExpiredLocks(_ context.Context, now time.Time) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var released []uint64
	for _, seat := range s.sortedSeats() {
		if seat.Status == model.SeatLocked && seat.LockedUntil != nil && !seat.LockedUntil.After(now) {
			seat.Status, seat.LockedUntil = model.SeatAvailable, nil
			released = append(released, seat.ID)
		}
	}
	return released, nil
}

func fresh(seat *model.Seat, now time.Time) bool {
	return seat.Status == model.SeatLocked && seat.LockedUntil != nil && seat.LockedUntil.After(now)
}

// Bookings

func (s *Store) Create(_ context.Context, b *model.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = s.id()
	now := s.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	for i := range b.Lines {
		b.Lines[i].ID = s.id()
		b.Lines[i].BookingID = b.ID
	}
	c := copyBooking(b)
	s.bookings[b.ID] = &c
	return nil
}

func (s *Store) GetByID(_ context.Context, id uint64) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, repository.ErrBookingNotFound
	}
	c := copyBooking(b)
	return &c, nil
}

func (s *Store) GetByRef(_ context.Context, ref string) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.Ref == ref {
			c := copyBooking(b)
			return &c, nil
		}
	}
	return nil, repository.ErrBookingNotFound
}

func (s *Store) TransitionStatus(_ context.Context, id uint64, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.Status != from {
		return repository.ErrConflict
	}
	b.Status = to
	return nil
}

func (s *Store) Confirm(_ context.Context, id uint64, ticketURL string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.Status != model.BookingSeatsSelected {
		return repository.ErrConflict
	}
	b.Status, b.TicketURL, b.TicketSentAt = model.BookingConfirmed, ticketURL, &sentAt
	return nil
}

func (s *Store) RemoveLines(_ context.Context, bookingID uint64, seatIDs []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bookings[bookingID]; ok {
		b.Lines = slices.DeleteFunc(b.Lines, func(l model.BookingSeat) bool { return slices.Contains(seatIDs, l.SeatID) })
	}
	return nil
}

func (s *Store) Reissue(_ context.Context, id uint64, quantity int, totalCents int64, ticketVersion int, ticketURL string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.Status != model.BookingConfirmed {
		return repository.ErrConflict
	}
	b.Quantity, b.TotalCents, b.TicketVersion, b.TicketURL, b.TicketSentAt = quantity, totalCents, ticketVersion, ticketURL, &sentAt
	return nil
}

func (s *Store) ExpireSelectedForSeats(_ context.Context, seatIDs []uint64) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []uint64
	for _, id := range slices.Sorted(maps.Keys(s.bookings)) {
		b := s.bookings[id]
		if b.Status != model.BookingSeatsSelected {
			continue
		}
		if slices.ContainsFunc(b.Lines, func(l model.BookingSeat) bool { return slices.Contains(seatIDs, l.SeatID) }) {
			b.Status = model.BookingExpired
			expired = append(expired, id)
		}
	}
	return expired, nil
}

// Audit log

func (s *Store) Append(_ context.Context, l *model.BookingLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.ID = s.id()
	l.CreatedAt = s.Now().UTC()
	s.logs = append(s.logs, *l)
	return nil
}

// Payments and cancellations share the Create name with bookings, so they
// are exposed through adapters.

type Payments struct{ s *Store }

func (s *Store) Payments() Payments { return Payments{s} }

func (p Payments) Create(_ context.Context, pay *model.Payment) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	pay.ID = p.s.id()
	p.s.payments = append(p.s.payments, *pay)
	return nil
}

type Cancellations struct{ s *Store }

func (s *Store) Cancellations() Cancellations { return Cancellations{s} }

func (c Cancellations) Create(_ context.Context, cn *model.Cancellation) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	cn.ID = c.s.id()
	cn.CreatedAt = c.s.Now().UTC()
	c.s.cancellations = append(c.s.cancellations, *cn)
	return nil
}

// ShowReader adapts the store to the GetByID contract for shows.
type ShowReader struct{ s *Store }

func (s *Store) ShowReader() ShowReader { return ShowReader{s} }

func (r ShowReader) GetByKeyword(ctx context.Context, keyword string) (*model.Show, error) {
	return r.s.GetByKeyword(ctx, keyword)
}

func (r ShowReader) GetByID(ctx context.Context, id uint64) (*model.Show, error) {
	return r.s.ShowByID(ctx, id)
}

func copySeat(seat *model.Seat) model.Seat {
	c := *seat
	if seat.LockedUntil != nil {
		t := *seat.LockedUntil
		c.LockedUntil = &t
	}
	return c
}

func copyBooking(b *model.Booking) model.Booking {
	c := *b
	c.Lines = slices.Clone(b.Lines)
	if b.HoldUntil != nil {
		t := *b.HoldUntil
		c.HoldUntil = &t
	}
	return c
}

// SetBookingCreatedAt overwrites the creation time of a booking.
func (s *Store) SetBookingCreatedAt(id uint64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bookings[id]; ok {
		b.CreatedAt = at
	}
}
