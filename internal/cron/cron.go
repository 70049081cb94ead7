package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/Marga-Ghale/grove-backend/internal/service"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweeper rewrites stale pending transfers. Trustee expiry is lazy and
// is not scheduled here.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Scheduler handles scheduled tasks
type Scheduler struct {
	cron      *cron.Cron
	transfers Sweeper
	spec      string
	timeout   time.Duration
	log       zerolog.Logger
}

// NewScheduler creates a new scheduler running the transfer sweep on spec
func NewScheduler(transfers service.TransferService, spec string, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		transfers: transfers,
		spec:      spec,
		timeout:   time.Minute,
		log:       log,
	}
}

// Start registers the jobs and starts the scheduler
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.sweepTransfers); err != nil {
		return fmt.Errorf("invalid transfer sweep schedule %q: %w", s.spec, err)
	}

	s.cron.Start()
	s.log.Info().Str("transfer_sweep", s.spec).Msg("[Cron] Scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running job
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("[Cron] Scheduler stopped")
}

func (s *Scheduler) sweepTransfers() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.log.Debug().Msg("[Cron] Running stale transfer sweep...")
	n, err := s.transfers.SweepExpired(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("[Cron] Error sweeping stale transfers")
		return
	}
	if n > 0 {
		s.log.Info().Int("expired", n).Msg("[Cron] Stale transfers expired")
	}
}

// ManualTrigger runs a job immediately
func (s *Scheduler) ManualTrigger(checkType string) {
	switch checkType {
	case "transfers", "all":
		s.sweepTransfers()
	}
}
