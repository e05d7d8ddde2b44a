package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record is missing from storage.
	ErrNotFound = errors.New("storage: record not found")

	// ErrConflict is returned when an insert hits an existing id or a replace misses one.
	ErrConflict = errors.New("storage: record conflict")
)

// Store represents the root storage interface.
type Store interface {
	Close() error
	Sessions() SessionStore
	Assets() AssetStore
}

// SessionStore holds usage-session records. Every method is atomic with
// respect to concurrent calls; read-modify-write sequences spanning several
// calls must be serialized by the caller.
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	// FindActiveOrPaused returns the live session for an asset or ErrNotFound.
	FindActiveOrPaused(ctx context.Context, assetID string) (*Session, error)
	// ListByAsset returns the asset's sessions newest-first by StartedAt.
	ListByAsset(ctx context.Context, assetID string) ([]Session, error)
	// ListActiveOrPaused returns every live session in no particular order.
	ListActiveOrPaused(ctx context.Context) ([]Session, error)
	Insert(ctx context.Context, session Session) error
	Replace(ctx context.Context, session Session) error
	Delete(ctx context.Context, id string) error
}

// AssetStore is the registry of assets sessions refer to.
type AssetStore interface {
	Get(ctx context.Context, id string) (*Asset, error)
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]Asset, error)
	Upsert(ctx context.Context, asset Asset) error
	SetStatus(ctx context.Context, id string, status AssetStatus) error
	SetUsage(ctx context.Context, id string, totalHours float64, lastUsedAt *time.Time) error
}
