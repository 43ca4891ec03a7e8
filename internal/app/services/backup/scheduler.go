package backup

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/pulsehr/analytics_layer/pkg/logger"
)

// Scheduler runs retention purges, and optionally full data-directory
// snapshots, on a cron schedule. It implements system.Service.
type Scheduler struct {
	svc           *Service
	cron          *cron.Cron
	schedule      string
	dataDir       string
	retentionDays int
	log           *logger.Logger
}

// NewScheduler builds a scheduler. schedule uses cron syntax (or descriptors
// like "@daily"); an empty dataDir disables the periodic CreateAll pass.
func NewScheduler(svc *Service, schedule, dataDir string, retentionDays int, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("backup-scheduler")
	}
	if schedule == "" {
		schedule = "@daily"
	}
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Scheduler{
		svc:           svc,
		cron:          cron.New(),
		schedule:      schedule,
		dataDir:       dataDir,
		retentionDays: retentionDays,
		log:           log,
	}
}

func (s *Scheduler) Name() string { return "backup-scheduler" }

// Start registers the cron entry and begins running it.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, s.run)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.WithField("schedule", s.schedule).Info("backup scheduler started")
	return nil
}

// Stop halts the cron loop and waits for a running pass to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	return nil
}

func (s *Scheduler) run() {
	ctx := context.Background()

	if s.dataDir != "" {
		if _, err := s.svc.CreateAll(ctx, s.dataDir); err != nil {
			s.log.WithError(err).Warn("scheduled snapshot pass failed")
		}
	}
	if _, err := s.svc.PurgeOlderThan(ctx, s.retentionDays); err != nil {
		s.log.WithError(err).Warn("scheduled retention purge failed")
	}
}
