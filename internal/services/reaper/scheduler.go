package reaper

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/sessions"
)

// HistoryPurger removes history records older than a retention window
type HistoryPurger interface {
	Purge(ctx context.Context, retention time.Duration, now time.Time) (int, error)
}

// Settings are the windows the reaper enforces. A zero window disables that pass.
type Settings struct {
	SessionIdle      time.Duration
	JobMaxIdle       time.Duration
	HistoryRetention time.Duration
}

// Stats is the outcome of one reap pass
type Stats struct {
	SessionsExpired int
	HandlesReaped   int
	HistoryPurged   int
	Duration        time.Duration
}

// Scheduler periodically reclaims idle sessions, finished-but-unpolled jobs
// and expired history
type Scheduler struct {
	sessions *sessions.Manager
	history  HistoryPurger // Optional: nil skips history retention
	settings Settings
	cron     *cron.Cron
	running  sync.Mutex
	logger   arbor.ILogger
}

// NewScheduler creates a new reaper scheduler
func NewScheduler(sessionManager *sessions.Manager, history HistoryPurger, settings Settings, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		sessions: sessionManager,
		history:  history,
		settings: settings,
		cron:     cron.New(cron.WithSeconds()),
		logger:   logger,
	}
}

// Start begins the scheduled reaping
func (s *Scheduler) Start(schedule string) error {
	if schedule == "" {
		// Default: every minute
		schedule = "0 */1 * * * *"
	}

	_, err := s.cron.AddFunc(schedule, func() {
		s.RunOnce(context.Background(), time.Now())
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", schedule).
		Msg("Reaper scheduler started")

	return nil
}

// Stop stops the scheduler and waits for a running pass to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Reaper scheduler stopped")
}

// RunOnce performs one reap pass. Overlapping passes are skipped.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) Stats {
	var stats Stats
	if !s.running.TryLock() {
		s.logger.Debug().Msg("Reap already in progress, skipping")
		return stats
	}
	defer s.running.Unlock()

	start := time.Now()

	stats.SessionsExpired = s.sessions.Expire(s.settings.SessionIdle, now)

	if s.settings.JobMaxIdle > 0 {
		for _, session := range s.sessions.All() {
			if n := session.Registry.ReapIdle(s.settings.JobMaxIdle, now); n > 0 {
				s.logger.Debug().
					Str("session_id", session.ID).
					Int("reaped", n).
					Msg("Dropped idle finished jobs")
				stats.HandlesReaped += n
			}
		}
	}

	if s.history != nil && s.settings.HistoryRetention > 0 {
		purged, err := s.history.Purge(ctx, s.settings.HistoryRetention, now)
		if err != nil {
			s.logger.Error().Err(err).Msg("History purge failed")
		}
		stats.HistoryPurged = purged
	}

	stats.Duration = time.Since(start)

	if stats.SessionsExpired > 0 || stats.HandlesReaped > 0 || stats.HistoryPurged > 0 {
		s.logger.Info().
			Int("sessions_expired", stats.SessionsExpired).
			Int("handles_reaped", stats.HandlesReaped).
			Int("history_purged", stats.HistoryPurged).
			Dur("duration", stats.Duration).
			Msg("Reap completed")
	}

	return stats
}
