package memory

import (
	"context"
	"sync"
	"time"

	"github.com/goodtune/apextrack/internal/storage"
)

// Store implements the storage.Store interface with process-local maps.
type Store struct {
	sessions *sessionStore
	assets   *assetStore
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		sessions: &sessionStore{
			byID:    make(map[string]storage.Session),
			live:    make(map[string]string),
			byAsset: make(map[string]map[string]struct{}),
		},
		assets: &assetStore{byID: make(map[string]storage.Asset)},
	}
}

// Close is a no-op; the maps are released with the store.
func (s *Store) Close() error { return nil }

// Sessions returns the session store.
func (s *Store) Sessions() storage.SessionStore { return s.sessions }

// Assets returns the asset store.
func (s *Store) Assets() storage.AssetStore { return s.assets }

type sessionStore struct {
	mu      sync.RWMutex
	byID    map[string]storage.Session
	live    map[string]string              // assetID -> live sessionID
	byAsset map[string]map[string]struct{} // assetID -> sessionIDs
}

func (s *sessionStore) Get(ctx context.Context, id string) (*storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := session.Clone()
	return &out, nil
}

func (s *sessionStore) FindActiveOrPaused(ctx context.Context, assetID string) (*storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.live[assetID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := s.byID[id].Clone()
	return &out, nil
}

func (s *sessionStore) ListByAsset(ctx context.Context, assetID string) ([]storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	ids := s.byAsset[assetID]
	sessions := make([]storage.Session, 0, len(ids))
	for id := range ids {
		sessions = append(sessions, s.byID[id].Clone())
	}
	s.mu.RUnlock()

	storage.SortNewestFirst(sessions)
	return sessions, nil
}

func (s *sessionStore) ListActiveOrPaused(ctx context.Context) ([]storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]storage.Session, 0, len(s.live))
	for _, id := range s.live {
		sessions = append(sessions, s.byID[id].Clone())
	}
	return sessions, nil
}

func (s *sessionStore) Insert(ctx context.Context, session storage.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[session.ID]; exists {
		return storage.ErrConflict
	}
	if session.Status.Live() {
		if other, taken := s.live[session.AssetID]; taken && other != session.ID {
			return storage.ErrConflict
		}
	}
	s.put(session.Clone())
	return nil
}

func (s *sessionStore) Replace(ctx context.Context, session storage.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, exists := s.byID[session.ID]
	if !exists {
		return storage.ErrConflict
	}
	if session.Status.Live() {
		if other, taken := s.live[session.AssetID]; taken && other != session.ID {
			return storage.ErrConflict
		}
	}
	s.drop(previous)
	s.put(session.Clone())
	return nil
}

func (s *sessionStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, exists := s.byID[id]
	if !exists {
		return storage.ErrNotFound
	}
	s.drop(previous)
	return nil
}

// put and drop maintain the indexes; callers hold the write lock.
func (s *sessionStore) put(session storage.Session) {
	s.byID[session.ID] = session
	ids, ok := s.byAsset[session.AssetID]
	if !ok {
		ids = make(map[string]struct{})
		s.byAsset[session.AssetID] = ids
	}
	ids[session.ID] = struct{}{}
	if session.Status.Live() {
		s.live[session.AssetID] = session.ID
	}
}

func (s *sessionStore) drop(session storage.Session) {
	delete(s.byID, session.ID)
	if ids, ok := s.byAsset[session.AssetID]; ok {
		delete(ids, session.ID)
		if len(ids) == 0 {
			delete(s.byAsset, session.AssetID)
		}
	}
	if s.live[session.AssetID] == session.ID {
		delete(s.live, session.AssetID)
	}
}

type assetStore struct {
	mu   sync.RWMutex
	byID map[string]storage.Asset
}

func (s *assetStore) Get(ctx context.Context, id string) (*storage.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	asset, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &asset, nil
}

func (s *assetStore) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byID[id]
	return ok, nil
}

func (s *assetStore) List(ctx context.Context) ([]storage.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	assets := make([]storage.Asset, 0, len(s.byID))
	for _, asset := range s.byID {
		assets = append(assets, asset)
	}
	return assets, nil
}

func (s *assetStore) Upsert(ctx context.Context, asset storage.Asset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.byID[asset.ID]; ok {
		asset.CreatedAt = existing.CreatedAt
	} else if asset.CreatedAt.IsZero() {
		asset.CreatedAt = now
	}
	if asset.Status == "" {
		asset.Status = storage.AssetAvailable
	}
	asset.UpdatedAt = now
	s.byID[asset.ID] = asset
	return nil
}

func (s *assetStore) SetStatus(ctx context.Context, id string, status storage.AssetStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	asset, ok := s.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	asset.Status = status
	asset.UpdatedAt = time.Now()
	s.byID[id] = asset
	return nil
}

func (s *assetStore) SetUsage(ctx context.Context, id string, totalHours float64, lastUsedAt *time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	asset, ok := s.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	asset.TotalUsageHours = totalHours
	asset.LastUsedAt = nil
	if lastUsedAt != nil {
		t := *lastUsedAt
		asset.LastUsedAt = &t
	}
	asset.UpdatedAt = time.Now()
	s.byID[id] = asset
	return nil
}
