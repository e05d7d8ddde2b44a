package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/goodtune/apextrack/internal/storage"
	"github.com/redis/go-redis/v9"
)

var (
	upsertAsset = redis.NewScript(upsertAssetScript)
	patchAsset  = redis.NewScript(patchAssetScript)
)

type assetStore struct {
	client *redis.Client
	keys   keyspace
}

// Get retrieves an asset by ID
func (s *assetStore) Get(ctx context.Context, id string) (*storage.Asset, error) {
	data, err := s.client.HGetAll(ctx, s.keys.asset(id)).Result()
	if err != nil {
		return nil, err
	}
	return parseAsset(data)
}

// Exists reports whether the asset is registered
func (s *assetStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, s.keys.asset(id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns every registered asset
func (s *assetStore) List(ctx context.Context) ([]storage.Asset, error) {
	ids, err := s.client.SMembers(ctx, s.keys.assets()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []storage.Asset{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.keys.asset(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	assets := make([]storage.Asset, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}

		asset, err := parseAsset(data)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *asset)
	}

	return assets, nil
}

// Upsert creates or updates an asset
func (s *assetStore) Upsert(ctx context.Context, asset storage.Asset) error {
	now := time.Now()
	if asset.Status == "" {
		asset.Status = storage.AssetAvailable
	}
	createdAt := asset.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	asset.UpdatedAt = now

	keys := []string{s.keys.asset(asset.ID), s.keys.assets()}
	args := []interface{}{asset.ID, formatTime(createdAt)}
	args = append(args, assetFields(asset)...)

	return upsertAsset.Run(ctx, s.client, keys, args...).Err()
}

// SetStatus updates the asset status
func (s *assetStore) SetStatus(ctx context.Context, id string, status storage.AssetStatus) error {
	return s.patch(ctx, id,
		"status", string(status),
		"updated_at", formatTime(time.Now()),
	)
}

// SetUsage writes the derived usage fields. A nil lastUsedAt clears it.
func (s *assetStore) SetUsage(ctx context.Context, id string, totalHours float64, lastUsedAt *time.Time) error {
	args := []interface{}{
		"total_usage_hours", strconv.FormatFloat(totalHours, 'f', -1, 64),
		"updated_at", formatTime(time.Now()),
	}
	lastUsed := ""
	if lastUsedAt != nil {
		lastUsed = formatTime(*lastUsedAt)
	}
	args = append(args, "last_used_at", lastUsed)
	return s.patch(ctx, id, args...)
}

func (s *assetStore) patch(ctx context.Context, id string, args ...interface{}) error {
	err := patchAsset.Run(ctx, s.client, []string{s.keys.asset(id)}, args...).Err()
	if isReply(err, notFoundReply) {
		return storage.ErrNotFound
	}
	return err
}
