package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"dealmatch/config"
	"dealmatch/services"
)

// Scheduler drives the daily digest builds, either on a cron expression or
// a fixed interval.
type Scheduler struct {
	cfg    *config.Config
	digest *services.DigestService
	cron   *cron.Cron
	ticker *time.Ticker
	stopCh chan struct{}
	log    zerolog.Logger
}

func New(cfg *config.Config, digest *services.DigestService, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		digest: digest,
		cron:   cron.New(),
		stopCh: make(chan struct{}),
		log:    log.With().Str("component", "scheduler").Logger(),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	run := func() {
		now := time.Now().In(s.cfg.Timezone)
		if err := s.digest.RunDaily(ctx, now); err != nil {
			s.log.Error().Err(err).Msg("scheduled digest run failed")
		}
	}

	if s.cfg.Digest.Cron != "" {
		s.log.Info().Str("cron", s.cfg.Digest.Cron).Msg("starting digest scheduler")
		_, err := s.cron.AddFunc(s.cfg.Digest.Cron, run)
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
		return nil
	}

	if s.cfg.Digest.Interval > 0 {
		s.log.Info().Dur("interval", s.cfg.Digest.Interval).Msg("starting digest scheduler")
		s.ticker = time.NewTicker(s.cfg.Digest.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					run()
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
		return nil
	}

	s.log.Info().Msg("no digest schedule configured")
	return nil
}

func (s *Scheduler) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
	s.cron.Stop()
}
