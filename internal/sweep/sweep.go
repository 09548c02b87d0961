// internal/sweep/sweep.go
//
// Expiry sweep: a cron-scheduled pass that suspends servers whose
// subscription or trial has lapsed.
//
// Context
// -------
// The sweep goes through the same reconciliation service as a user-
// triggered suspend, so the state machine, row locking, remote-first
// ordering, and audit trail all apply unchanged.  AlreadyInState and
// NotProvisioned outcomes are expected here (a concurrent admin action or
// an unprovisioned trial) and are skipped quietly.
package sweep

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/yanizio/gamehost/internal/auth"
	"github.com/yanizio/gamehost/internal/gameserver"
	"github.com/yanizio/gamehost/internal/metrics"
	"github.com/yanizio/gamehost/internal/reconcile"
)

// batchSize bounds one pass so a huge backlog cannot stall the scheduler.
const batchSize = 200

// ExpiredLister is the slice of the server repository the sweep reads.
type ExpiredLister interface {
	ExpiredActive(ctx context.Context, limit int) ([]gameserver.Server, error)
}

// Suspender is the slice of the reconciliation service the sweep drives.
type Suspender interface {
	Suspend(ctx context.Context, actor auth.Identity, serverID uint64) (*reconcile.OpResult, error)
}

// Sweeper runs the scheduled expiry pass.
type Sweeper struct {
	store ExpiredLister
	svc   Suspender
	log   *zap.SugaredLogger
	cron  *cron.Cron
}

// New wires a Sweeper.
func New(store ExpiredLister, svc Suspender, log *zap.SugaredLogger) *Sweeper {
	return &Sweeper{store: store, svc: svc, log: log, cron: cron.New()}
}

// Start registers the schedule and launches the cron runner.  An empty
// schedule disables the sweep.
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		s.log.Infow("expiry sweep disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(schedule, s.Run); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Infow("expiry sweep scheduled", "schedule", schedule)
	return nil
}

// Stop halts the scheduler and waits for a running pass to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Run performs one sweep pass.  Exported so an admin endpoint or test can
// trigger it outside the schedule.
func (s *Sweeper) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	expired, err := s.store.ExpiredActive(ctx, batchSize)
	if err != nil {
		s.log.Errorw("expiry sweep query failed", "err", err)
		return
	}

	suspended := 0
	for _, srv := range expired {
		_, err := s.svc.Suspend(ctx, auth.System(), srv.ID)
		switch {
		case err == nil:
			suspended++
			metrics.SweepSuspendedTotal.Inc()
		case errors.Is(err, reconcile.ErrAlreadyInState),
			errors.Is(err, reconcile.ErrNotProvisioned),
			errors.Is(err, reconcile.ErrNotFound):
			// Raced with another actor or the row is not actionable.
		default:
			s.log.Warnw("expiry sweep suspend failed",
				"server_id", srv.ID, "err", err)
		}
	}
	if len(expired) > 0 {
		s.log.Infow("expiry sweep pass done",
			"expired", len(expired), "suspended", suspended)
	}
}
