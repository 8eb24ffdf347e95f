package storage

import (
	"context"
	"errors"

	"github.com/qiuqing005/maoxian/internal/models"
)

// ErrNotFound indicates a requested record or index is missing.
var ErrNotFound = errors.New("record not found")

// ErrCorrupt indicates a persisted document could not be decoded or failed
// validation. Callers treat the record as absent rather than failing hard.
var ErrCorrupt = errors.New("corrupt record")

// Store persists adventure records and per-owner indices. It is a durable
// mirror of the engine's in-memory state, not a second source of truth.
// Implementations must be safe for concurrent use.
type Store interface {
	PutRecord(ctx context.Context, rec *models.AdventureRecord) error
	GetRecord(ctx context.Context, ownerID, adventureID string) (*models.AdventureRecord, error)
	DeleteRecord(ctx context.Context, ownerID, adventureID string) error

	PutIndex(ctx context.Context, idx *models.UserIndex) error
	GetIndex(ctx context.Context, ownerID string) (*models.UserIndex, error)

	ListOwners(ctx context.Context) ([]string, error)
	DeleteOwner(ctx context.Context, ownerID string) error
	DeleteAll(ctx context.Context) error

	Close() error
}
