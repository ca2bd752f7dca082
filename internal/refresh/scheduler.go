package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/SovereignSignal/discusswatch/internal/logger"
)

// sweepTimeout bounds one scheduled refresh pass. A pass that cannot finish
// inside it leaves the remaining sources for the next tick.
const sweepTimeout = 2 * time.Minute

// Scheduler runs the periodic refresh sweep.
type Scheduler struct {
	cron     *cron.Cron
	orch     *Orchestrator
	interval time.Duration
	log      logger.Logger
}

// NewScheduler creates a scheduler that sweeps every interval.
func NewScheduler(orch *Orchestrator, interval time.Duration, log logger.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		orch:     orch,
		interval: interval,
		log:      log,
	}
}

// Start registers the sweep job and starts the cron loop. It runs one sweep
// immediately so a fresh process begins filling the cache without waiting a
// full interval.
func (s *Scheduler) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return fmt.Errorf("schedule refresh sweep: %w", err)
	}
	s.cron.Start()
	go s.sweep()
	s.log.Info("refresh scheduler started", logger.Duration("interval", s.interval))
	return nil
}

// Stop stops the cron loop and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("refresh scheduler stopped")
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	s.orch.RefreshAll(ctx)
}
