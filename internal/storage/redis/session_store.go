package redis

import (
	"context"
	"fmt"

	"github.com/goodtune/apextrack/internal/storage"
	"github.com/redis/go-redis/v9"
)

var (
	writeSession  = redis.NewScript(writeSessionScript)
	deleteSession = redis.NewScript(deleteSessionScript)
)

type sessionStore struct {
	client *redis.Client
	keys   keyspace
}

// Get retrieves a session by ID
func (s *sessionStore) Get(ctx context.Context, id string) (*storage.Session, error) {
	data, err := s.client.HGetAll(ctx, s.keys.session(id)).Result()
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	return parseSession(data)
}

// FindActiveOrPaused follows the asset's live pointer
func (s *sessionStore) FindActiveOrPaused(ctx context.Context, assetID string) (*storage.Session, error) {
	id, err := s.client.Get(ctx, s.keys.assetLive(assetID)).Result()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

// ListByAsset returns the asset's sessions newest-first
func (s *sessionStore) ListByAsset(ctx context.Context, assetID string) ([]storage.Session, error) {
	ids, err := s.client.ZRevRange(ctx, s.keys.assetSessions(assetID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	sessions, err := s.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}

	storage.SortNewestFirst(sessions)
	return sessions, nil
}

// ListActiveOrPaused returns all live sessions
func (s *sessionStore) ListActiveOrPaused(ctx context.Context) ([]storage.Session, error) {
	ids, err := s.client.SMembers(ctx, s.keys.liveSessions()).Result()
	if err != nil {
		return nil, err
	}

	return s.fetch(ctx, ids)
}

// Insert creates a session, failing if the id exists
func (s *sessionStore) Insert(ctx context.Context, session storage.Session) error {
	return s.write(ctx, "insert", session)
}

// Replace overwrites a session, failing if the id is missing
func (s *sessionStore) Replace(ctx context.Context, session storage.Session) error {
	return s.write(ctx, "replace", session)
}

// Delete removes a session and its index entries
func (s *sessionStore) Delete(ctx context.Context, id string) error {
	assetID, err := s.client.HGet(ctx, s.keys.session(id), "asset_id").Result()
	if err == redis.Nil {
		return storage.ErrNotFound
	}
	if err != nil {
		return err
	}

	keys := []string{
		s.keys.session(id),
		s.keys.liveSessions(),
		s.keys.assetLive(assetID),
		s.keys.assetSessions(assetID),
	}

	err = deleteSession.Run(ctx, s.client, keys, id).Err()
	if isReply(err, notFoundReply) {
		return storage.ErrNotFound
	}
	return err
}

func (s *sessionStore) write(ctx context.Context, mode string, session storage.Session) error {
	keys := []string{
		s.keys.session(session.ID),
		s.keys.liveSessions(),
		s.keys.assetLive(session.AssetID),
		s.keys.assetSessions(session.AssetID),
	}

	live := "0"
	if session.Status.Live() {
		live = "1"
	}

	args := []interface{}{mode, session.ID, live, session.StartedAt.UnixMilli()}
	args = append(args, sessionFields(session)...)

	err := writeSession.Run(ctx, s.client, keys, args...).Err()
	if isReply(err, conflictReply) {
		return storage.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("write session %s: %w", session.ID, err)
	}
	return nil
}

// fetch pipelines HGETALL for each id, skipping entries that vanished meanwhile
func (s *sessionStore) fetch(ctx context.Context, ids []string) ([]storage.Session, error) {
	if len(ids) == 0 {
		return []storage.Session{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.keys.session(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	sessions := make([]storage.Session, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}

		session, err := parseSession(data)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}

	return sessions, nil
}
