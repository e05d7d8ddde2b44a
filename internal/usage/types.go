package usage

import (
	"time"

	"github.com/goodtune/apextrack/internal/storage"
)

// StartRequest opens a timed session on an asset
type StartRequest struct {
	AssetID     string `json:"asset_id"`
	Location    string `json:"location,omitempty"`
	PerformedBy string `json:"performed_by,omitempty"`
	Description string `json:"description,omitempty"`
}

// StopRequest carries metadata merged into a session when it completes.
// Empty fields leave the existing value alone.
type StopRequest struct {
	Description string `json:"description,omitempty"`
	JobSiteName string `json:"job_site_name,omitempty"`
}

// ManualRequest records a retroactive, already completed session
type ManualRequest struct {
	AssetID         string    `json:"asset_id"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int64     `json:"duration"`
	Description     string    `json:"description,omitempty"`
	Location        string    `json:"location,omitempty"`
	PerformedBy     string    `json:"performed_by,omitempty"`
	JobSiteName     string    `json:"job_site_name,omitempty"`
}

// UpdateRequest corrects a terminal session. Nil fields are left unchanged.
type UpdateRequest struct {
	StartTime   *time.Time             `json:"start_time,omitempty"`
	EndTime     *time.Time             `json:"end_time,omitempty"`
	Duration    *int64                 `json:"duration,omitempty"`
	Description *string                `json:"description,omitempty"`
	Location    *string                `json:"location,omitempty"`
	PerformedBy *string                `json:"performed_by,omitempty"`
	JobSiteName *string                `json:"job_site_name,omitempty"`
	Status      *storage.SessionStatus `json:"status,omitempty"`
}

func (r UpdateRequest) empty() bool {
	return r.StartTime == nil && r.EndTime == nil && r.Duration == nil &&
		r.Description == nil && r.Location == nil && r.PerformedBy == nil &&
		r.JobSiteName == nil && r.Status == nil
}

// SweepResult summarizes one abandonment sweep
type SweepResult struct {
	Examined  int              `json:"examined"`
	Abandoned []string         `json:"abandoned"`
	Skipped   []string         `json:"skipped,omitempty"`
	Failures  map[string]error `json:"-"`
}
