package usage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/goodtune/apextrack/internal/metrics"
	"github.com/goodtune/apextrack/internal/storage"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

const (
	// DefaultAbandonAfter is how long an active session may run before the sweeper abandons it
	DefaultAbandonAfter = 24 * time.Hour

	// DefaultAssetNameCacheSize bounds the asset display-name cache
	DefaultAssetNameCacheSize = 1024
)

// Tracker owns every usage session transition. Mutations of one session are
// serialized by a per-session lock; transitions that touch asset status also
// hold the asset lock, always acquired before the session lock.
type Tracker struct {
	sessions     storage.SessionStore
	assets       storage.AssetStore
	clock        clock.Clock
	newID        func() string
	abandonAfter time.Duration
	names        *lru.Cache[string, string]
	sessionLocks keyedMutex
	assetLocks   keyedMutex
	logger       zerolog.Logger
}

// Config holds tracker configuration
type Config struct {
	AbandonAfter       time.Duration
	AssetNameCacheSize int
	Clock              clock.Clock
	NewID              func() string
}

// NewTracker creates a new usage tracker
func NewTracker(store storage.Store, config Config, logger zerolog.Logger) (*Tracker, error) {
	if config.AbandonAfter == 0 {
		config.AbandonAfter = DefaultAbandonAfter
	}
	if config.AssetNameCacheSize <= 0 {
		config.AssetNameCacheSize = DefaultAssetNameCacheSize
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.NewID == nil {
		config.NewID = uuid.NewString
	}

	names, err := lru.New[string, string](config.AssetNameCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create asset name cache: %w", err)
	}

	return &Tracker{
		sessions:     store.Sessions(),
		assets:       store.Assets(),
		clock:        config.Clock,
		newID:        config.NewID,
		abandonAfter: config.AbandonAfter,
		names:        names,
		logger:       logger.With().Str("component", "usage-tracker").Logger(),
	}, nil
}

// AbandonAfter returns the age past which an active session counts as abandoned
func (t *Tracker) AbandonAfter() time.Duration {
	return t.abandonAfter
}

// Clock returns the tracker's time source
func (t *Tracker) Clock() clock.Clock {
	return t.clock
}

// Start opens a timed session on an asset that has no live session
func (t *Tracker) Start(ctx context.Context, req StartRequest) (*storage.Session, error) {
	assetID := strings.TrimSpace(req.AssetID)
	if assetID == "" {
		return nil, validation("asset_id is required")
	}

	asset, err := t.asset(ctx, assetID)
	if err != nil {
		return nil, err
	}

	defer t.assetLocks.Lock(assetID)()

	existing, err := t.sessions.FindActiveOrPaused(ctx, assetID)
	if err == nil {
		return nil, &Error{
			Kind:    KindConflict,
			Message: fmt.Sprintf("asset already has an active session (%s)", existing.ID),
		}
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up live session: %w", err)
	}

	now := t.clock.Now()
	session := storage.Session{
		ID:          t.newID(),
		AssetID:     assetID,
		AssetName:   asset.Name,
		Type:        storage.SessionTimed,
		Status:      storage.SessionActive,
		StartedAt:   now,
		Description: req.Description,
		Location:    req.Location,
		PerformedBy: req.PerformedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := t.sessions.Insert(ctx, session); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, conflict("asset already has an active session")
		}
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	t.setAssetStatus(ctx, assetID, storage.AssetInUse)

	metrics.SessionTransitions.WithLabelValues("start").Inc()
	metrics.LiveSessions.Inc()

	t.logger.Info().
		Str("session_id", session.ID).
		Str("asset_id", assetID).
		Str("performed_by", req.PerformedBy).
		Msg("Started usage session")

	return &session, nil
}

// Pause suspends an active session
func (t *Tracker) Pause(ctx context.Context, id string) (*storage.Session, error) {
	session, err := t.modify(ctx, id, false, func(s *storage.Session, now time.Time) error {
		if s.Status != storage.SessionActive {
			return invalidTransition("session is not active")
		}
		s.Status = storage.SessionPaused
		s.PausedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.SessionTransitions.WithLabelValues("pause").Inc()
	t.logger.Debug().Str("session_id", id).Msg("Paused usage session")

	return session, nil
}

// Resume continues a paused session, folding the pause into TotalPausedMs
func (t *Tracker) Resume(ctx context.Context, id string) (*storage.Session, error) {
	session, err := t.modify(ctx, id, false, func(s *storage.Session, now time.Time) error {
		if s.Status != storage.SessionPaused {
			return invalidTransition("session is not paused")
		}
		foldPause(s, now)
		s.Status = storage.SessionActive
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.SessionTransitions.WithLabelValues("resume").Inc()
	t.logger.Debug().
		Str("session_id", id).
		Int64("total_paused_ms", session.TotalPausedMs).
		Msg("Resumed usage session")

	return session, nil
}

// Stop completes a live session and recomputes the asset's usage hours
func (t *Tracker) Stop(ctx context.Context, id string, req StopRequest) (*storage.Session, error) {
	session, err := t.modify(ctx, id, true, func(s *storage.Session, now time.Time) error {
		if !s.Status.Live() {
			return invalidTransition("session is not active")
		}
		foldPause(s, now)

		minutes := elapsedMinutes(s.StartedAt, now, s.TotalPausedMs)
		s.EndedAt = &now
		s.Duration = &minutes
		s.Status = storage.SessionCompleted
		if req.Description != "" {
			s.Description = req.Description
		}
		if req.JobSiteName != "" {
			s.JobSiteName = req.JobSiteName
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.SessionTransitions.WithLabelValues("stop").Inc()
	metrics.UsageMinutesRecorded.WithLabelValues(string(session.Type)).Add(float64(*session.Duration))

	t.logger.Info().
		Str("session_id", id).
		Str("asset_id", session.AssetID).
		Int64("duration_minutes", *session.Duration).
		Msg("Stopped usage session")

	t.reaggregate(ctx, session.AssetID)

	return session, nil
}

// MarkAbandoned closes an active session that has outlived the abandonment
// threshold. Paused sessions are never abandoned.
func (t *Tracker) MarkAbandoned(ctx context.Context, id string) (*storage.Session, error) {
	session, err := t.modify(ctx, id, true, func(s *storage.Session, now time.Time) error {
		if s.Status != storage.SessionActive {
			return invalidTransition("session is not active")
		}
		if age := now.Sub(s.StartedAt); age <= t.abandonAfter {
			return invalidTransition("session has only been active for %s", age.Truncate(time.Second))
		}
		s.Status = storage.SessionAbandoned
		s.EndedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.SessionTransitions.WithLabelValues("abandon").Inc()

	t.logger.Warn().
		Str("session_id", id).
		Str("asset_id", session.AssetID).
		Time("started_at", session.StartedAt).
		Msg("Marked usage session abandoned")

	return session, nil
}

// Cancel abandons a live session regardless of its age
func (t *Tracker) Cancel(ctx context.Context, id string) (*storage.Session, error) {
	session, err := t.modify(ctx, id, true, func(s *storage.Session, now time.Time) error {
		if !s.Status.Live() {
			return invalidTransition("session is not active")
		}
		foldPause(s, now)
		s.Status = storage.SessionAbandoned
		s.EndedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.SessionTransitions.WithLabelValues("cancel").Inc()

	t.logger.Info().
		Str("session_id", id).
		Str("asset_id", session.AssetID).
		Msg("Cancelled usage session")

	return session, nil
}

// CreateManual records a completed session after the fact. It does not
// touch asset status and is not subject to the one-live-session rule.
func (t *Tracker) CreateManual(ctx context.Context, req ManualRequest) (*storage.Session, error) {
	assetID := strings.TrimSpace(req.AssetID)
	if assetID == "" {
		return nil, validation("asset_id is required")
	}
	if req.StartTime.IsZero() {
		return nil, validation("start_time is required")
	}
	if req.DurationMinutes <= 0 {
		return nil, validation("duration must be a positive number of minutes")
	}

	name, err := t.assetName(ctx, assetID)
	if err != nil {
		return nil, err
	}

	now := t.clock.Now()
	endedAt := req.StartTime.Add(time.Duration(req.DurationMinutes) * time.Minute)
	duration := req.DurationMinutes

	session := storage.Session{
		ID:          t.newID(),
		AssetID:     assetID,
		AssetName:   name,
		Type:        storage.SessionManual,
		Status:      storage.SessionCompleted,
		StartedAt:   req.StartTime,
		EndedAt:     &endedAt,
		Duration:    &duration,
		Description: req.Description,
		Location:    req.Location,
		PerformedBy: req.PerformedBy,
		JobSiteName: req.JobSiteName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := t.sessions.Insert(ctx, session); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, conflict("session %s already exists", session.ID)
		}
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	metrics.SessionTransitions.WithLabelValues("manual").Inc()
	metrics.UsageMinutesRecorded.WithLabelValues(string(session.Type)).Add(float64(duration))

	t.logger.Info().
		Str("session_id", session.ID).
		Str("asset_id", assetID).
		Int64("duration_minutes", duration).
		Msg("Recorded manual usage session")

	t.reaggregate(ctx, assetID)

	return &session, nil
}

// Update corrects fields of a completed or abandoned session. Live sessions
// can only change through their transitions, and no edit can reopen one.
func (t *Tracker) Update(ctx context.Context, id string, req UpdateRequest) (*storage.Session, error) {
	if req.empty() {
		return nil, validation("no fields to update")
	}
	if req.Status != nil && !req.Status.Terminal() {
		return nil, invalidTransition("status can only be set to completed or abandoned")
	}
	if req.Duration != nil && *req.Duration < 0 {
		return nil, validation("duration must not be negative")
	}

	session, err := t.modify(ctx, id, false, func(s *storage.Session, now time.Time) error {
		if !s.Status.Terminal() {
			return invalidTransition("only completed or abandoned sessions can be edited")
		}

		start := s.StartedAt
		if req.StartTime != nil {
			start = *req.StartTime
		}
		end := s.EndedAt
		if req.EndTime != nil {
			end = req.EndTime
		}
		if (req.StartTime != nil || req.EndTime != nil) && end != nil && !end.After(start) {
			return validation("end_time must be after start_time")
		}

		s.StartedAt = start
		if end != nil {
			e := *end
			s.EndedAt = &e
		}

		switch {
		case req.Duration != nil:
			d := *req.Duration
			s.Duration = &d
		case req.EndTime != nil:
			d := floorDiv(s.EndedAt.Sub(s.StartedAt).Milliseconds(), 60000)
			s.Duration = &d
		}

		if req.Description != nil {
			s.Description = *req.Description
		}
		if req.Location != nil {
			s.Location = *req.Location
		}
		if req.PerformedBy != nil {
			s.PerformedBy = *req.PerformedBy
		}
		if req.JobSiteName != nil {
			s.JobSiteName = *req.JobSiteName
		}
		if req.Status != nil {
			s.Status = *req.Status
		}

		// A completed session always carries a duration
		if s.Status == storage.SessionCompleted && s.Duration == nil {
			if s.EndedAt == nil {
				return validation("end_time is required to complete a session")
			}
			d := elapsedMinutes(s.StartedAt, *s.EndedAt, s.TotalPausedMs)
			s.Duration = &d
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.SessionTransitions.WithLabelValues("update").Inc()
	t.logger.Info().Str("session_id", id).Str("asset_id", session.AssetID).Msg("Updated usage session")

	t.reaggregate(ctx, session.AssetID)

	return session, nil
}

// Delete removes a terminal session. A live session is refused unless force
// is set, in which case it is cancelled first so the asset is released.
func (t *Tracker) Delete(ctx context.Context, id string, force bool) error {
	current, err := t.load(ctx, id)
	if err != nil {
		return err
	}

	if current.Status.Live() {
		if !force {
			return invalidTransition("session is still live; cancel it before deleting")
		}
		if _, err := t.Cancel(ctx, id); err != nil && !errors.Is(err, ErrInvalidTransition) {
			return err
		}
	}

	unlock := t.sessionLocks.Lock(id)
	session, err := t.load(ctx, id)
	if err == nil {
		err = t.sessions.Delete(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			err = notFound("session %s not found", id)
		}
	}
	unlock()
	if err != nil {
		return err
	}

	metrics.SessionTransitions.WithLabelValues("delete").Inc()
	t.logger.Info().Str("session_id", id).Str("asset_id", session.AssetID).Msg("Deleted usage session")

	t.reaggregate(ctx, session.AssetID)

	return nil
}

// Get returns a session by ID
func (t *Tracker) Get(ctx context.Context, id string) (*storage.Session, error) {
	return t.load(ctx, id)
}

// ActiveForAsset returns the asset's active or paused session
func (t *Tracker) ActiveForAsset(ctx context.Context, assetID string) (*storage.Session, error) {
	session, err := t.sessions.FindActiveOrPaused(ctx, assetID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFound("asset %s has no active session", assetID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up live session: %w", err)
	}
	return session, nil
}

// ListActive returns every active or paused session, oldest first
func (t *Tracker) ListActive(ctx context.Context) ([]storage.Session, error) {
	sessions, err := t.sessions.ListActiveOrPaused(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list live sessions: %w", err)
	}
	storage.SortNewestFirst(sessions)
	slices.Reverse(sessions)
	return sessions, nil
}

// History returns all of an asset's sessions, newest first
func (t *Tracker) History(ctx context.Context, assetID string) ([]storage.Session, error) {
	sessions, err := t.sessions.ListByAsset(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions for asset %s: %w", assetID, err)
	}
	return sessions, nil
}

// Asset returns an asset from the registry
func (t *Tracker) Asset(ctx context.Context, id string) (*storage.Asset, error) {
	return t.asset(ctx, id)
}

// Assets lists the registry
func (t *Tracker) Assets(ctx context.Context) ([]storage.Asset, error) {
	assets, err := t.assets.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	return assets, nil
}

// UpsertAsset registers or renames an asset. Usage fields are derived and
// kept from the stored record. Callers may toggle maintenance; in_use is
// owned by the session lifecycle.
func (t *Tracker) UpsertAsset(ctx context.Context, asset storage.Asset) (*storage.Asset, error) {
	asset.ID = strings.TrimSpace(asset.ID)
	if asset.ID == "" {
		return nil, validation("id is required")
	}
	if strings.TrimSpace(asset.Name) == "" {
		return nil, validation("name is required")
	}
	if asset.Status == storage.AssetInUse {
		return nil, validation("status in_use is set by starting a session")
	}

	defer t.assetLocks.Lock(asset.ID)()

	existing, err := t.assets.Get(ctx, asset.ID)
	switch {
	case err == nil:
		asset.TotalUsageHours = existing.TotalUsageHours
		asset.LastUsedAt = existing.LastUsedAt
		asset.CreatedAt = existing.CreatedAt
		if asset.Status == "" {
			asset.Status = existing.Status
		}
	case errors.Is(err, storage.ErrNotFound):
		asset.TotalUsageHours = 0
		asset.LastUsedAt = nil
	default:
		return nil, fmt.Errorf("failed to load asset %s: %w", asset.ID, err)
	}

	if asset.Status == "" || asset.Status == storage.AssetAvailable {
		asset.Status = storage.AssetAvailable
		_, err := t.sessions.FindActiveOrPaused(ctx, asset.ID)
		switch {
		case err == nil:
			asset.Status = storage.AssetInUse
		case !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("failed to look up live session: %w", err)
		}
	}

	if err := t.assets.Upsert(ctx, asset); err != nil {
		return nil, fmt.Errorf("failed to save asset %s: %w", asset.ID, err)
	}
	t.names.Add(asset.ID, asset.Name)

	t.logger.Debug().Str("asset_id", asset.ID).Str("status", string(asset.Status)).Msg("Saved asset")

	return t.asset(ctx, asset.ID)
}

// modify applies fn to a fresh copy of the session under its lock and writes
// the result with a single Replace. With withAsset the asset lock is held too
// and a session that turned terminal releases its asset.
func (t *Tracker) modify(ctx context.Context, id string, withAsset bool, fn func(*storage.Session, time.Time) error) (*storage.Session, error) {
	if withAsset {
		current, err := t.load(ctx, id)
		if err != nil {
			return nil, err
		}
		defer t.assetLocks.Lock(current.AssetID)()
	}
	defer t.sessionLocks.Lock(id)()

	session, err := t.load(ctx, id)
	if err != nil {
		return nil, err
	}
	wasLive := session.Status.Live()

	now := t.clock.Now()
	if err := fn(session, now); err != nil {
		return nil, err
	}
	session.UpdatedAt = now

	if err := t.sessions.Replace(ctx, *session); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, conflict("session %s changed concurrently", id)
		}
		return nil, fmt.Errorf("failed to save session %s: %w", id, err)
	}

	if wasLive && session.Status.Terminal() {
		metrics.LiveSessions.Dec()
		if withAsset {
			t.setAssetStatus(ctx, session.AssetID, storage.AssetAvailable)
		}
	}

	return session, nil
}

func (t *Tracker) load(ctx context.Context, id string) (*storage.Session, error) {
	session, err := t.sessions.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFound("session %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return session, nil
}

func (t *Tracker) asset(ctx context.Context, id string) (*storage.Asset, error) {
	asset, err := t.assets.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFound("asset %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load asset %s: %w", id, err)
	}
	t.names.Add(asset.ID, asset.Name)
	return asset, nil
}

// assetName checks the asset is still registered and resolves its display
// name, serving the name from the cache when it can. The registry may be
// shared with other processes, so existence is never taken from the cache.
func (t *Tracker) assetName(ctx context.Context, id string) (string, error) {
	ok, err := t.assets.Exists(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to check asset %s: %w", id, err)
	}
	if !ok {
		t.names.Remove(id)
		return "", notFound("asset %s not found", id)
	}
	if name, ok := t.names.Get(id); ok {
		return name, nil
	}
	asset, err := t.asset(ctx, id)
	if err != nil {
		return "", err
	}
	return asset.Name, nil
}

// setAssetStatus writes the asset status unless it is under maintenance.
// The session change is already durable, so failures are logged only.
// Callers hold the asset lock.
func (t *Tracker) setAssetStatus(ctx context.Context, assetID string, status storage.AssetStatus) {
	asset, err := t.assets.Get(ctx, assetID)
	if err != nil {
		t.logger.Error().Err(err).Str("asset_id", assetID).Msg("Failed to load asset for status update")
		return
	}
	if asset.Status == storage.AssetMaintenance || asset.Status == status {
		return
	}
	if err := t.assets.SetStatus(ctx, assetID, status); err != nil {
		t.logger.Error().Err(err).
			Str("asset_id", assetID).
			Str("status", string(status)).
			Msg("Failed to update asset status")
	}
}

// reaggregate refreshes usage hours after a transition. Errors are logged;
// RecomputeTotal can reconcile later.
func (t *Tracker) reaggregate(ctx context.Context, assetID string) {
	if _, err := t.RecomputeTotal(ctx, assetID); err != nil {
		t.logger.Error().Err(err).Str("asset_id", assetID).Msg("Failed to recompute usage hours")
	}
}

// foldPause adds an in-progress pause to TotalPausedMs and clears PausedAt
func foldPause(s *storage.Session, now time.Time) {
	if s.PausedAt == nil {
		return
	}
	s.TotalPausedMs += now.Sub(*s.PausedAt).Milliseconds()
	s.PausedAt = nil
}

// elapsedMinutes is the whole minutes between start and end excluding pauses
func elapsedMinutes(start, end time.Time, pausedMs int64) int64 {
	return floorDiv(end.Sub(start).Milliseconds()-pausedMs, 60000)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
