package booking

import (
	"context"
	"log"
	"time"
)

// DefaultReaperInterval matches the source system's sweep cadence.
const DefaultReaperInterval = time.Minute

// Reaper periodically deletes expired slot reservations. Deletion is
// idempotent, so running multiple replicas is safe. Failures are logged and
// retried on the next tick.
type Reaper struct {
	locks    LockStore
	interval time.Duration
	now      func() time.Time
}

func NewReaper(locks LockStore, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultReaperInterval
	}
	return &Reaper{
		locks:    locks,
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	r.sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("reaper stopping")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// SweepOnce deletes every reservation that expired before now.
func (r *Reaper) SweepOnce(ctx context.Context) (int64, error) {
	return r.locks.DeleteExpired(ctx, r.now())
}

func (r *Reaper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := r.SweepOnce(sweepCtx)
	if err != nil {
		log.Printf("reaper sweep error: %v", err)
		return
	}
	if n > 0 {
		log.Printf("reaper removed %d expired reservations in %s", n, time.Since(start))
	}
}
