package reaper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/openpress/identity/internal/account"
	"github.com/openpress/identity/internal/config"
)

// Scheduler periodically reclaims accounts whose restoration deadline has
// passed. Login and restore already treat those accounts as gone; the
// scheduler just makes the deletion physical. Each record is deleted
// independently so one failure never aborts the rest of the batch, and a run
// that finds nothing does nothing.
type Scheduler struct {
	repo     account.Repository
	log      *zap.Logger
	interval time.Duration
	now      func() time.Time
}

func NewScheduler(config *config.ReaperConfig, log *zap.Logger, repo account.Repository) *Scheduler {
	return &Scheduler{
		repo:     repo,
		log:      log,
		interval: config.Interval,
		now:      time.Now,
	}
}

// Start runs one sweep immediately, then one per interval until ctx is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("starting account reaper", zap.Duration("interval", s.interval))

	s.RunOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("stopping account reaper")
			return
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

// RunOnce performs a single sweep and returns the number of accounts deleted.
func (s *Scheduler) RunOnce() int {
	now := s.now()

	expired, err := s.repo.FindReapable(now)
	if err != nil {
		s.log.Error("failed to list expired deactivated accounts", zap.Error(err))
		return 0
	}

	deleted := 0
	for _, acct := range expired {
		if err := s.repo.DeleteProfileByAccountID(acct.ID); err != nil {
			s.log.Error("failed to delete profile of expired account",
				zap.String("account_id", acct.ID.String()),
				zap.Error(err))
			continue
		}

		if err := s.repo.Delete(acct.ID); err != nil {
			s.log.Error("failed to delete expired account",
				zap.String("account_id", acct.ID.String()),
				zap.Error(err))
			continue
		}

		deleted++
		s.log.Info("deleted expired account",
			zap.String("account_id", acct.ID.String()),
			zap.String("email", acct.Email))
	}

	if deleted > 0 {
		s.log.Info("account reaper sweep completed", zap.Int("deleted", deleted))
	}

	return deleted
}
