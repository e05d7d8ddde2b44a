package redis

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goodtune/apextrack/internal/storage"
)

// sessionFields flattens a session into HSET field/value pairs. Optional
// fields are omitted when unset.
func sessionFields(session storage.Session) []interface{} {
	fields := []interface{}{
		"id", session.ID,
		"asset_id", session.AssetID,
		"type", string(session.Type),
		"status", string(session.Status),
		"started_at", formatTime(session.StartedAt),
		"total_paused_ms", session.TotalPausedMs,
		"created_at", formatTime(session.CreatedAt),
		"updated_at", formatTime(session.UpdatedAt),
	}

	optional := [][2]string{
		{"asset_name", session.AssetName},
		{"description", session.Description},
		{"location", session.Location},
		{"performed_by", session.PerformedBy},
		{"job_site_name", session.JobSiteName},
	}
	for _, field := range optional {
		if field[1] != "" {
			fields = append(fields, field[0], field[1])
		}
	}

	if session.PausedAt != nil {
		fields = append(fields, "paused_at", formatTime(*session.PausedAt))
	}
	if session.EndedAt != nil {
		fields = append(fields, "ended_at", formatTime(*session.EndedAt))
	}
	if session.Duration != nil {
		fields = append(fields, "duration", *session.Duration)
	}

	return fields
}

// parseSession converts a Redis hash to Session
func parseSession(data map[string]string) (*storage.Session, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	startedAt, err := parseTime(data["started_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}

	createdAt, err := parseTime(data["created_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	updatedAt, err := parseTime(data["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	totalPausedMs, err := strconv.ParseInt(data["total_paused_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse total_paused_ms: %w", err)
	}

	session := &storage.Session{
		ID:            data["id"],
		AssetID:       data["asset_id"],
		AssetName:     data["asset_name"],
		Type:          storage.SessionType(data["type"]),
		Status:        storage.SessionStatus(data["status"]),
		StartedAt:     startedAt,
		TotalPausedMs: totalPausedMs,
		Description:   data["description"],
		Location:      data["location"],
		PerformedBy:   data["performed_by"],
		JobSiteName:   data["job_site_name"],
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}

	if raw, ok := data["paused_at"]; ok {
		pausedAt, err := parseTime(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse paused_at: %w", err)
		}
		session.PausedAt = &pausedAt
	}

	if raw, ok := data["ended_at"]; ok {
		endedAt, err := parseTime(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ended_at: %w", err)
		}
		session.EndedAt = &endedAt
	}

	if raw, ok := data["duration"]; ok {
		duration, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse duration: %w", err)
		}
		session.Duration = &duration
	}

	return session, nil
}

// assetFields flattens an asset into HSET field/value pairs, excluding created_at
// which the upsert script owns.
func assetFields(asset storage.Asset) []interface{} {
	fields := []interface{}{
		"id", asset.ID,
		"name", asset.Name,
		"status", string(asset.Status),
		"total_usage_hours", strconv.FormatFloat(asset.TotalUsageHours, 'f', -1, 64),
		"updated_at", formatTime(asset.UpdatedAt),
	}
	if asset.LastUsedAt != nil {
		fields = append(fields, "last_used_at", formatTime(*asset.LastUsedAt))
	}
	return fields
}

// parseAsset converts a Redis hash to Asset
func parseAsset(data map[string]string) (*storage.Asset, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	totalHours, err := strconv.ParseFloat(data["total_usage_hours"], 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse total_usage_hours: %w", err)
	}

	createdAt, err := parseTime(data["created_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	updatedAt, err := parseTime(data["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	asset := &storage.Asset{
		ID:              data["id"],
		Name:            data["name"],
		Status:          storage.AssetStatus(data["status"]),
		TotalUsageHours: totalHours,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}

	if raw, ok := data["last_used_at"]; ok {
		lastUsed, err := parseTime(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last_used_at: %w", err)
		}
		asset.LastUsedAt = &lastUsed
	}

	return asset, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, raw)
}

func isReply(err error, reply string) bool {
	return err != nil && strings.Contains(err.Error(), reply)
}
