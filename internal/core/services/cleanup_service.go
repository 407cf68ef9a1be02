package services

import (
	"context"
	"time"

	"school-crm-api/internal/adapters/persistence/repositories"
	"school-crm-api/internal/pkg/metrics"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// CleanupService prunes expired refresh tokens on a cron schedule.
// Expired rows are already refused by RefreshToken; this only bounds table size.
type CleanupService struct {
	refreshTokenRepo repositories.RefreshTokenRepository
	cron             *cron.Cron
	log              zerolog.Logger
	now              func() time.Time
}

// NewCleanupService creates a cleanup service with a seconds-aware scheduler
func NewCleanupService(refreshTokenRepo repositories.RefreshTokenRepository, log zerolog.Logger) *CleanupService {
	return &CleanupService{
		refreshTokenRepo: refreshTokenRepo,
		cron:             cron.New(cron.WithSeconds()),
		log:              log.With().Str("component", "cleanup").Logger(),
		now:              time.Now,
	}
}

// Start registers the purge job and starts the scheduler. An empty schedule
// disables the job.
func (s *CleanupService) Start(schedule string) error {
	if schedule == "" {
		s.log.Info().Msg("refresh token cleanup disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_, _ = s.RunOnce(ctx)
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Str("schedule", schedule).Msg("refresh token cleanup scheduled")
	return nil
}

// Stop stops the scheduler and waits for a running job
func (s *CleanupService) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce deletes every refresh token that expired before now
func (s *CleanupService) RunOnce(ctx context.Context) (int64, error) {
	deleted, err := s.refreshTokenRepo.DeleteExpired(ctx, s.now())
	if err != nil {
		s.log.Error().Err(err).Msg("refresh token cleanup failed")
		return 0, err
	}

	metrics.ExpiredTokensPurged.Add(float64(deleted))
	s.log.Info().Int64("deleted", deleted).Msg("expired refresh tokens purged")
	return deleted, nil
}
