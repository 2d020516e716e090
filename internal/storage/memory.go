package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/envdash/internal/models"
)

// DefaultMemoryCapacity is the number of readings kept by a MemoryStore
const DefaultMemoryCapacity = 1000

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory ring buffer for sensor readings. When full,
// the oldest reading is dropped.
type MemoryStore struct {
	capacity int
	logger   zerolog.Logger

	mutex    sync.RWMutex
	readings []*models.Reading // oldest first
	stamper  *stamper
	evicted  int64
	closed   bool
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(capacity int, logger zerolog.Logger, opts ...Option) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{
		capacity: capacity,
		logger:   logger,
		readings: make([]*models.Reading, 0, capacity),
		stamper:  newStamper(opts...),
	}
}

// Append adds a reading to the store
func (ms *MemoryStore) Append(ctx context.Context, reading *models.Reading) (*models.Reading, error) {
	stored, err := ms.AppendBatch(ctx, []*models.Reading{reading})
	if err != nil {
		return nil, err
	}
	return stored[0], nil
}

// AppendBatch adds readings in order
func (ms *MemoryStore) AppendBatch(ctx context.Context, readings []*models.Reading) ([]*models.Reading, error) {
	if len(readings) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}

	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	if ms.closed {
		return nil, errClosed
	}

	scratch := *ms.stamper
	stored := make([]*models.Reading, 0, len(readings))
	for _, reading := range readings {
		r, err := scratch.stamp(reading)
		if err != nil {
			return nil, err
		}
		stored = append(stored, r)
	}
	ms.stamper.last = scratch.last

	for _, r := range stored {
		if len(ms.readings) >= ms.capacity {
			ms.readings[0] = nil
			ms.readings = ms.readings[1:] // Remove oldest
			ms.evicted++
		}
		ms.readings = append(ms.readings, r)
	}

	// Returned readings must not alias internal data
	out := make([]*models.Reading, len(stored))
	for i, r := range stored {
		out[i] = r.Copy()
	}
	return out, nil
}

// Latest returns the most recent reading
func (ms *MemoryStore) Latest(ctx context.Context) (*models.Reading, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	if ms.closed {
		return nil, errClosed
	}
	if len(ms.readings) == 0 {
		return nil, nil
	}
	// Return a copy, not a pointer to internal data
	return ms.readings[len(ms.readings)-1].Copy(), nil
}

// Range returns copies of the readings within [start, end]
func (ms *MemoryStore) Range(ctx context.Context, start, end time.Time, order models.Order) ([]*models.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}

	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	if ms.closed {
		return nil, errClosed
	}

	startMs, endMs := start.UnixMilli(), end.UnixMilli()
	lo := sort.Search(len(ms.readings), func(i int) bool {
		return ms.readings[i].UnixMilli() >= startMs
	})
	hi := sort.Search(len(ms.readings), func(i int) bool {
		return ms.readings[i].UnixMilli() > endMs
	})

	result := make([]*models.Reading, 0, max(hi-lo, 0))
	if order == models.Descending {
		for i := hi - 1; i >= lo; i-- {
			result = append(result, ms.readings[i].Copy())
		}
		return result, nil
	}
	for i := lo; i < hi; i++ {
		result = append(result, ms.readings[i].Copy())
	}
	return result, nil
}

// Stats returns statistics about the store
func (ms *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	stats := &Stats{
		Driver:        "memory",
		TotalReadings: int64(len(ms.readings)),
		Capacity:      ms.capacity,
		Evicted:       ms.evicted,
	}
	if n := len(ms.readings); n > 0 {
		oldest := ms.readings[0].Timestamp
		newest := ms.readings[n-1].Timestamp
		stats.OldestReading = &oldest
		stats.NewestReading = &newest
	}
	return stats, nil
}

// Close drops all data. Further calls fail with ErrUnavailable.
func (ms *MemoryStore) Close() error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ms.readings = nil
	ms.closed = true
	ms.logger.Debug().Int64("evicted", ms.evicted).Msg("Memory store closed")
	return nil
}
