// Package reservation owns the seat hold lifecycle:
//
//	AVAILABLE --Lock--> LOCKED --Commit--> BOOKED
//	LOCKED/BOOKED --Release--> AVAILABLE
//
// Every transition is a compare-and-set on the seat status performed by the
// SeatStore, which is what keeps two conversations (possibly on two
// instances) from holding the same seat.  No in-process lock is involved.
package reservation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/iliyamo/showbook-chat/internal/apperr"
)

// DefaultHold is the hold window used when none is configured.
const DefaultHold = 10 * time.Minute

// SeatStore performs the conditional seat updates.  Implementations join
// any transaction carried by ctx.
type SeatStore interface {
	// LockSeats moves AVAILABLE seats to LOCKED until the given time and
	// returns the ids that moved.
	LockSeats(ctx context.Context, ids []uint64, until time.Time) ([]uint64, error)
	// CommitSeats moves seats LOCKED past now to BOOKED.
	CommitSeats(ctx context.Context, ids []uint64, now time.Time) (int, error)
	// ReleaseSeats moves LOCKED or BOOKED seats to AVAILABLE.
	ReleaseSeats(ctx context.Context, ids []uint64) (int, error)
	// ReleaseHeldSeats moves seats still LOCKED until exactly until, with
	// until after now, to AVAILABLE.
	ReleaseHeldSeats(ctx context.Context, ids []uint64, until, now time.Time) (int, error)
	// CountFreshLocks counts seats LOCKED past now.
	CountFreshLocks(ctx context.Context, ids []uint64, now time.Time) (int, error)
	// ReleaseExpiredLocks frees every seat whose hold ended at or before now.
	ReleaseExpiredLocks(ctx context.Context, now time.Time) ([]uint64, error)
}

// LockResult splits the requested seats into those now held by the caller
// and those that were not AVAILABLE.
type LockResult struct {
	Locked       []uint64
	AlreadyTaken []uint64
	LockedUntil  time.Time
}

// SeatsTakenError reports seats lost to a concurrent customer.  It is a
// recoverable conflict.
type SeatsTakenError struct {
	SeatIDs []uint64
	Codes   []string
}

func (e *SeatsTakenError) Error() string {
	if len(e.Codes) > 0 {
		return "seats already taken: " + strings.Join(e.Codes, ", ")
	}
	return fmt.Sprintf("seats already taken: %v", e.SeatIDs)
}

// Engine applies the hold lifecycle through a SeatStore.
type Engine struct {
	store SeatStore
	hold  time.Duration
	now   func() time.Time
	log   *slog.Logger
}

type Option func(*Engine)

// WithHold sets the default hold window.
func WithHold(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.hold = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

func NewEngine(store SeatStore, opts ...Option) *Engine {
	e := &Engine{store: store, hold: DefaultHold, now: time.Now, log: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Hold returns the default hold window.
func (e *Engine) Hold() time.Duration { return e.hold }

// Now returns the engine clock in UTC.
func (e *Engine) Now() time.Time { return e.now().UTC() }

// Lock holds every AVAILABLE seat in ids for hold (the engine default when
// hold <= 0).  Seats that were not AVAILABLE are reported in AlreadyTaken;
// that is never an error.  Callers that need all-or-nothing run Lock inside
// a transaction and roll back when AlreadyTaken is non-empty.
func (e *Engine) Lock(ctx context.Context, ids []uint64, hold time.Duration) (LockResult, error) {
	if hold <= 0 {
		hold = e.hold
	}
	ids = dedupe(ids)
	until := e.Now().Add(hold)
	locked, err := e.store.LockSeats(ctx, ids, until)
	if err != nil {
		return LockResult{}, apperr.Transient("reservation.lock", err)
	}
	res := LockResult{Locked: locked, LockedUntil: until}
	for _, id := range ids {
		if !slices.Contains(locked, id) {
			res.AlreadyTaken = append(res.AlreadyTaken, id)
		}
	}
	if len(res.AlreadyTaken) > 0 {
		e.log.Info("seats already taken", "component", "reservation", "requested", len(ids), "taken", res.AlreadyTaken)
	}
	return res, nil
}

// Commit books seats whose hold is still running and returns how many were
// committed.  Seats whose hold lapsed are left untouched, so a count lower
// than len(ids) means the hold expired between Lock and Commit.
func (e *Engine) Commit(ctx context.Context, ids []uint64) (int, error) {
	n, err := e.store.CommitSeats(ctx, dedupe(ids), e.Now())
	if err != nil {
		return 0, apperr.Transient("reservation.commit", err)
	}
	return n, nil
}

// Release returns LOCKED or BOOKED seats to AVAILABLE.
func (e *Engine) Release(ctx context.Context, ids []uint64) (int, error) {
	n, err := e.store.ReleaseSeats(ctx, dedupe(ids))
	if err != nil {
		return 0, apperr.Transient("reservation.release", err)
	}
	return n, nil
}

// ReleaseHold frees the seats of a hold taken by Lock with the given
// LockedUntil while that hold is still running.  Seats that another hold
// has taken since are not touched.
func (e *Engine) ReleaseHold(ctx context.Context, ids []uint64, until time.Time) (int, error) {
	n, err := e.store.ReleaseHeldSeats(ctx, dedupe(ids), until, e.Now())
	if err != nil {
		return 0, apperr.Transient("reservation.release_hold", err)
	}
	return n, nil
}

// IsHeldAndFresh reports whether every seat in ids is LOCKED with a hold
// ending in the future.  An empty set is never held.
func (e *Engine) IsHeldAndFresh(ctx context.Context, ids []uint64) (bool, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return false, nil
	}
	n, err := e.store.CountFreshLocks(ctx, ids, e.Now())
	if err != nil {
		return false, apperr.Transient("reservation.fresh", err)
	}
	return n == len(ids), nil
}

// ReleaseExpired frees every lapsed hold and returns the released seats.
func (e *Engine) ReleaseExpired(ctx context.Context) ([]uint64, error) {
	ids, err := e.store.ReleaseExpiredLocks(ctx, e.Now())
	if err != nil {
		return ids, apperr.Transient("reservation.release_expired", err)
	}
	return ids, nil
}

func dedupe(ids []uint64) []uint64 {
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
