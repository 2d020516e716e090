package server

import (
	"context"

	"github.com/afroash/envdash/internal/models"
	"github.com/afroash/envdash/internal/sampling"
	"github.com/afroash/envdash/internal/storage"
)

// ReadingStore is the write side of the reading store
// storage.SQLiteStore and storage.MemoryStore implement this interface
type ReadingStore interface {
	// Append stores a validated reading and returns the stored copy
	Append(ctx context.Context, reading *models.Reading) (*models.Reading, error)

	// AppendBatch stores readings atomically, in order
	AppendBatch(ctx context.Context, readings []*models.Reading) ([]*models.Reading, error)

	// Stats returns statistics about the store
	Stats(ctx context.Context) (*storage.Stats, error)
}

// QueryService answers dashboard range queries
// sampling.Service implements this interface
type QueryService interface {
	// Query returns the live reading and the sampled series for a range token
	Query(ctx context.Context, token string) (*sampling.Result, error)

	// Latest returns the most recent reading, nil for an empty store
	Latest(ctx context.Context) (*models.Reading, error)

	// Table returns the range table tokens are resolved against
	Table() *sampling.Table

	// DefaultRange is the token used when a query names none
	DefaultRange() string
}
