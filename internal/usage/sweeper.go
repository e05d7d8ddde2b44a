package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/apextrack/internal/metrics"
	"github.com/goodtune/apextrack/internal/storage"
	"github.com/rs/zerolog"
)

// DefaultSweepInterval is how often the sweeper looks for abandoned sessions
const DefaultSweepInterval = time.Minute

// Sweeper periodically abandons active sessions older than the tracker's
// threshold. It only ever goes through Tracker.MarkAbandoned.
type Sweeper struct {
	tracker  *Tracker
	interval time.Duration
	logger   zerolog.Logger
}

// NewSweeper creates a new abandonment sweeper
func NewSweeper(tracker *Tracker, interval time.Duration, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		tracker:  tracker,
		interval: interval,
		logger:   logger.With().Str("component", "abandon-sweeper").Logger(),
	}
}

// Run sweeps on every tick until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := s.tracker.Clock().Ticker(s.interval)
	defer ticker.Stop()

	s.logger.Info().
		Dur("interval", s.interval).
		Dur("abandon_after", s.tracker.AbandonAfter()).
		Msg("Abandonment sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Abandonment sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("Abandonment sweep failed")
			}
		}
	}
}

// SweepOnce abandons every active session past the threshold. A failure on
// one session is recorded and the sweep carries on. Only listing errors are
// returned.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	defer func() {
		metrics.SweepRuns.Inc()
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	live, err := s.tracker.sessions.ListActiveOrPaused(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to list live sessions: %w", err)
	}
	metrics.LiveSessions.Set(float64(len(live)))

	result := SweepResult{
		Examined:  len(live),
		Abandoned: []string{},
		Failures:  map[string]error{},
	}

	now := s.tracker.Clock().Now()
	for _, session := range staleSessions(live, now, s.tracker.AbandonAfter()) {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		_, err := s.tracker.MarkAbandoned(ctx, session.ID)
		switch {
		case err == nil:
			result.Abandoned = append(result.Abandoned, session.ID)
			metrics.SweepAbandoned.Inc()
		case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotFound):
			// stopped, paused or deleted since the listing
			result.Skipped = append(result.Skipped, session.ID)
			s.logger.Debug().Err(err).Str("session_id", session.ID).Msg("Skipped session during sweep")
		default:
			result.Failures[session.ID] = err
			metrics.SweepFailures.Inc()
			s.logger.Error().Err(err).
				Str("session_id", session.ID).
				Str("asset_id", session.AssetID).
				Msg("Failed to abandon session")
		}
	}

	if len(result.Abandoned) > 0 || len(result.Failures) > 0 {
		s.logger.Info().
			Int("examined", result.Examined).
			Int("abandoned", len(result.Abandoned)).
			Int("failed", len(result.Failures)).
			Msg("Abandonment sweep complete")
	}

	return result, nil
}

// staleSessions selects active sessions that started more than threshold ago
func staleSessions(live []storage.Session, now time.Time, threshold time.Duration) []storage.Session {
	var stale []storage.Session
	for _, session := range live {
		if session.Status == storage.SessionActive && now.Sub(session.StartedAt) > threshold {
			stale = append(stale, session)
		}
	}
	return stale
}
