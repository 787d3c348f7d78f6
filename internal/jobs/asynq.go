package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TypeReleaseExpiredSeats is the periodic sweep task.
const TypeReleaseExpiredSeats = "seats:release_expired"

const maintenanceQueue = "maintenance"

// NewReleaseExpiredSeatsTask builds the sweep task.  It carries no payload.
func NewReleaseExpiredSeatsTask() *asynq.Task {
	return asynq.NewTask(TypeReleaseExpiredSeats, nil)
}

// ProcessTask implements asynq.Handler.  A failed sweep is not retried by
// asynq; the next scheduled run picks the work up.
func (r *Reconciler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	rep, err := r.Sweep(ctx)
	if err != nil {
		r.log.Warn("scheduled sweep failed", "task", t.Type(), "error", err)
		return fmt.Errorf("sweep: %v: %w", err, asynq.SkipRetry)
	}
	r.log.Debug("scheduled sweep done", "released", len(rep.ReleasedSeats))
	return nil
}

// NewServeMux routes the sweep task to r.
func NewServeMux(r *Reconciler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeReleaseExpiredSeats, r)
	return mux
}

// RunAsynq registers the sweep on an asynq scheduler and processes it on an
// asynq server until ctx is done.  Every instance may run this: Unique
// keeps one pending sweep per interval across the fleet.
func RunAsynq(ctx context.Context, redisOpt asynq.RedisClientOpt, r *Reconciler) error {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{maintenanceQueue: 1},
	})
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC})

	spec := fmt.Sprintf("@every %s", r.interval)
	if _, err := scheduler.Register(spec, NewReleaseExpiredSeatsTask(),
		asynq.Queue(maintenanceQueue),
		asynq.MaxRetry(0),
		asynq.Unique(r.interval),
	); err != nil {
		return fmt.Errorf("register sweep: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := srv.Start(NewServeMux(r)); err != nil {
		scheduler.Shutdown()
		return fmt.Errorf("start asynq server: %w", err)
	}
	r.log.Info("asynq reconciler started", "spec", spec)

	<-ctx.Done()
	scheduler.Shutdown()
	srv.Shutdown()
	return nil
}
