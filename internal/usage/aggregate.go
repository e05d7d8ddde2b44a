package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/apextrack/internal/storage"
)

// TotalHours sums the durations of completed sessions and converts them to
// hours rounded half-up to two decimals. Abandoned and live sessions do not
// count. The result depends only on the input, so recomputing is idempotent.
func TotalHours(sessions []storage.Session) float64 {
	var minutes int64
	for _, s := range sessions {
		if s.Status != storage.SessionCompleted || s.Duration == nil {
			continue
		}
		minutes += *s.Duration
	}
	return minutesToHours(minutes)
}

// minutesToHours rounds in hundredths of an hour using integers only.
// minutes*100/60 never lands exactly on .5, so half-up and half-even agree.
func minutesToHours(minutes int64) float64 {
	return float64(floorDiv(minutes*100+30, 60)) / 100
}

// lastUsed returns the latest end time among completed sessions
func lastUsed(sessions []storage.Session) *time.Time {
	var latest *time.Time
	for _, s := range sessions {
		if s.Status != storage.SessionCompleted || s.EndedAt == nil {
			continue
		}
		if latest == nil || s.EndedAt.After(*latest) {
			end := *s.EndedAt
			latest = &end
		}
	}
	return latest
}

// RecomputeTotal rebuilds an asset's total usage hours from its session
// history and writes it back to the registry.
func (t *Tracker) RecomputeTotal(ctx context.Context, assetID string) (float64, error) {
	defer t.assetLocks.Lock(assetID)()

	sessions, err := t.sessions.ListByAsset(ctx, assetID)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions for asset %s: %w", assetID, err)
	}

	total := TotalHours(sessions)

	if err := t.assets.SetUsage(ctx, assetID, total, lastUsed(sessions)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, notFound("asset %s not found", assetID)
		}
		return 0, fmt.Errorf("failed to write usage for asset %s: %w", assetID, err)
	}

	t.logger.Debug().
		Str("asset_id", assetID).
		Int("sessions", len(sessions)).
		Float64("total_hours", total).
		Msg("Recomputed asset usage")

	return total, nil
}
