// Package jobs runs the background maintenance of seat inventory.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/showbook-chat/internal/apperr"
	"github.com/iliyamo/showbook-chat/internal/model"
	"github.com/iliyamo/showbook-chat/internal/reservation"
)

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type BookingExpirer interface {
	GetByID(ctx context.Context, id uint64) (*model.Booking, error)
	ExpireSelectedForSeats(ctx context.Context, seatIDs []uint64) ([]uint64, error)
}

type AuditLog interface {
	Append(ctx context.Context, l *model.BookingLog) error
}

// Report summarises one sweep.
type Report struct {
	ReleasedSeats   []uint64
	ExpiredBookings []uint64
}

// Reconciler returns lapsed seat holds to inventory and expires the
// unpaid bookings that held them.
type Reconciler struct {
	engine   *reservation.Engine
	bookings BookingExpirer
	logs     AuditLog
	tx       Transactor
	interval time.Duration
	log      *slog.Logger
}

func NewReconciler(engine *reservation.Engine, bookings BookingExpirer, logs AuditLog, tx Transactor, interval time.Duration, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		engine:   engine,
		bookings: bookings,
		logs:     logs,
		tx:       tx,
		interval: interval,
		log:      logger.With("component", "reconciler"),
	}
}

func (r *Reconciler) Interval() time.Duration { return r.interval }

// Sweep releases every lapsed hold and expires the SEATS_SELECTED bookings
// referencing those seats in one transaction.  Running it with nothing to
// do is a no-op.
func (r *Reconciler) Sweep(ctx context.Context) (Report, error) {
	var rep Report
	err := r.tx.WithTx(ctx, func(ctx context.Context) error {
		released, err := r.engine.ReleaseExpired(ctx)
		if err != nil {
			return err
		}
		if len(released) == 0 {
			return nil
		}
		expired, err := r.bookings.ExpireSelectedForSeats(ctx, released)
		if err != nil {
			return apperr.Transient("jobs.sweep", err)
		}
		for _, id := range expired {
			b, err := r.bookings.GetByID(ctx, id)
			if err != nil {
				return apperr.Transient("jobs.sweep", err)
			}
			if err := r.logs.Append(ctx, &model.BookingLog{
				BookingID:   &b.ID,
				ShowID:      b.ShowID,
				Action:      model.LogBookingExpired,
				Description: fmt.Sprintf("Booking %s expired: seat hold lapsed before payment", b.Ref),
				Metadata:    map[string]any{"seats": b.SeatCodes()},
			}); err != nil {
				return apperr.Transient("jobs.sweep", err)
			}
		}
		rep = Report{ReleasedSeats: released, ExpiredBookings: expired}
		return nil
	})
	if err != nil {
		return Report{}, err
	}
	if len(rep.ReleasedSeats) > 0 {
		r.log.Info("released expired holds", "seats", len(rep.ReleasedSeats), "expired_bookings", rep.ExpiredBookings)
	}
	return rep, nil
}

// Run sweeps once immediately and then on every tick until ctx is done.  A
// failed sweep is logged and retried on the next tick.
func (r *Reconciler) Run(ctx context.Context) {
	r.log.Info("reconciler started", "interval", r.interval.String())
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		r.safeSweep(ctx)
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return
		case <-t.C:
		}
	}
}

func (r *Reconciler) safeSweep(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("sweep panicked", "panic", p)
		}
	}()
	if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
		r.log.Warn("sweep failed; retrying next tick", "error_kind", apperr.KindOf(err).String(), "error", err)
	}
}
