package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/afroash/envdash/internal/models"
)

// ErrUnavailable marks every failure to read from or write to a store
var ErrUnavailable = errors.New("reading store unavailable")

// Store is the append-only reading collection. Implementations assign the
// reading ID and timestamp on append; timestamps never decrease.
type Store interface {
	// Append stores a reading and returns the stored copy
	Append(ctx context.Context, reading *models.Reading) (*models.Reading, error)

	// AppendBatch stores readings atomically, in order
	AppendBatch(ctx context.Context, readings []*models.Reading) ([]*models.Reading, error)

	// Latest returns the most recent reading, or nil when the store is empty
	Latest(ctx context.Context) (*models.Reading, error)

	// Range returns readings with start <= timestamp <= end in the given order
	Range(ctx context.Context, start, end time.Time, order models.Order) ([]*models.Reading, error)

	// Stats returns statistics about the store
	Stats(ctx context.Context) (*Stats, error)

	// Close releases the store
	Close() error
}

// Stats contains information about a store
type Stats struct {
	Driver         string     `json:"driver"`
	TotalReadings  int64      `json:"total_readings"`
	OldestReading  *time.Time `json:"oldest_reading,omitempty"`
	NewestReading  *time.Time `json:"newest_reading,omitempty"`
	DatabaseSizeMB float64    `json:"database_size_mb,omitempty"`
	Capacity       int        `json:"capacity,omitempty"`
	Evicted        int64      `json:"evicted,omitempty"`
}

// Option configures a store
type Option func(*stamper)

// WithClock replaces the wall clock used to timestamp readings
func WithClock(now func() time.Time) Option {
	return func(s *stamper) {
		s.now = now
	}
}

// stamper hands out reading IDs and millisecond timestamps that never go
// backwards, even if the wall clock does. Callers serialize access.
type stamper struct {
	now  func() time.Time
	last time.Time
}

func newStamper(opts ...Option) *stamper {
	s := &stamper{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *stamper) stamp(r *models.Reading) (*models.Reading, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate reading id: %w", err)
	}

	ts := s.now().UTC().Truncate(time.Millisecond)
	if ts.Before(s.last) {
		ts = s.last
	}
	s.last = ts

	stored := r.Copy()
	stored.ID = id.String()
	stored.Timestamp = ts
	return stored, nil
}

// Options selects and configures a store implementation
type Options struct {
	Driver         string // "sqlite" or "memory"
	Path           string
	MemoryCapacity int
}

// Open creates the store described by opts
func Open(opts Options, logger zerolog.Logger, storeOpts ...Option) (Store, error) {
	switch opts.Driver {
	case "", "sqlite":
		return NewSQLiteStore(opts.Path, logger, storeOpts...)
	case "memory":
		return NewMemoryStore(opts.MemoryCapacity, logger, storeOpts...), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}

var errClosed = fmt.Errorf("%w: store is closed", ErrUnavailable)

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
