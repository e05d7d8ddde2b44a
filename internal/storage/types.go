package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SessionStatus is the lifecycle state of a usage session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
)

// Live reports whether the session still holds its asset.
func (s SessionStatus) Live() bool {
	return s == SessionActive || s == SessionPaused
}

// Terminal reports whether no further transition is possible.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionAbandoned
}

// UnmarshalJSON implements json.Unmarshaler to normalize status to lowercase.
func (s *SessionStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	normalized := SessionStatus(strings.ToLower(raw))
	switch normalized {
	case SessionActive, SessionPaused, SessionCompleted, SessionAbandoned:
		*s = normalized
		return nil
	default:
		return fmt.Errorf("invalid session status: %s (must be active, paused, completed, or abandoned)", raw)
	}
}

// SessionType distinguishes live-tracked sessions from retroactive entries.
type SessionType string

const (
	SessionManual SessionType = "manual"
	SessionTimed  SessionType = "timed"
)

// AssetStatus is the availability of an asset.
type AssetStatus string

const (
	AssetAvailable   AssetStatus = "available"
	AssetInUse       AssetStatus = "in_use"
	AssetMaintenance AssetStatus = "maintenance"
)

// UnmarshalJSON implements json.Unmarshaler to validate asset status values.
func (s *AssetStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	normalized := AssetStatus(strings.ToLower(raw))
	switch normalized {
	case AssetAvailable, AssetInUse, AssetMaintenance:
		*s = normalized
		return nil
	default:
		return fmt.Errorf("invalid asset status: %s (must be available, in_use, or maintenance)", raw)
	}
}

// Session represents a single period an asset was in use.
type Session struct {
	ID            string        `json:"id"`
	AssetID       string        `json:"asset_id"`
	AssetName     string        `json:"asset_name,omitempty"`
	Type          SessionType   `json:"type"`
	Status        SessionStatus `json:"status"`
	StartedAt     time.Time     `json:"started_at"`
	PausedAt      *time.Time    `json:"paused_at,omitempty"`
	TotalPausedMs int64         `json:"total_paused_ms"`
	EndedAt       *time.Time    `json:"ended_at,omitempty"`
	Duration      *int64        `json:"duration,omitempty"` // minutes
	Description   string        `json:"description,omitempty"`
	Location      string        `json:"location,omitempty"`
	PerformedBy   string        `json:"performed_by,omitempty"`
	JobSiteName   string        `json:"job_site_name,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (s Session) Clone() Session {
	out := s
	if s.PausedAt != nil {
		t := *s.PausedAt
		out.PausedAt = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	if s.Duration != nil {
		d := *s.Duration
		out.Duration = &d
	}
	return out
}

// Asset is the slice of the asset registry record the session core reads and writes.
type Asset struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Status          AssetStatus `json:"status"`
	TotalUsageHours float64     `json:"total_usage_hours"`
	LastUsedAt      *time.Time  `json:"last_used_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}
