package agent

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Buffer is a thread-safe bounded FIFO of encoded ingest payloads waiting
// to be uploaded
type Buffer struct {
	payloads   []json.RawMessage
	capacity   int
	dropOldest bool
	mutex      sync.RWMutex
	stats      BufferStats
}

// BufferStats tracks buffer usage statistics
type BufferStats struct {
	TotalPushed   int64
	TotalDropped  int64
	HighWaterMark int
	LastPushTime  time.Time
	LastDropTime  time.Time
}

// NewBuffer creates a new buffer with given capacity
func NewBuffer(capacity int, dropOldest bool) *Buffer {
	return &Buffer{
		payloads:   make([]json.RawMessage, 0, capacity),
		capacity:   capacity,
		dropOldest: dropOldest,
	}
}

// Push adds a payload to the buffer
// Returns false if the payload was dropped (when full and dropOldest=false)
func (b *Buffer) Push(payload json.RawMessage) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if len(b.payloads) >= b.capacity {
		b.stats.TotalDropped++
		b.stats.LastDropTime = time.Now()
		if !b.dropOldest {
			return false
		}
		b.payloads[0] = nil
		b.payloads = b.payloads[1:]
	}
	b.payloads = append(b.payloads, payload)
	b.stats.TotalPushed++
	b.stats.LastPushTime = time.Now()

	if len(b.payloads) > b.stats.HighWaterMark {
		b.stats.HighWaterMark = len(b.payloads)
	}

	return true
}

// PopBatch removes and returns up to n payloads, oldest first
func (b *Buffer) PopBatch(n int) []json.RawMessage {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	count := min(n, len(b.payloads))
	if count <= 0 {
		return nil
	}
	result := make([]json.RawMessage, count)
	copy(result, b.payloads[:count])
	clear(b.payloads[:count])
	b.payloads = b.payloads[count:]
	return result
}

// Requeue puts a batch that failed to send back at the front, keeping order.
// Whatever no longer fits is dropped from the front of the batch.
func (b *Buffer) Requeue(batch []json.RawMessage) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	room := b.capacity - len(b.payloads)
	if room <= 0 {
		b.stats.TotalDropped += int64(len(batch))
		b.stats.LastDropTime = time.Now()
		return
	}
	if len(batch) > room {
		b.stats.TotalDropped += int64(len(batch) - room)
		b.stats.LastDropTime = time.Now()
		batch = batch[len(batch)-room:]
	}

	merged := make([]json.RawMessage, 0, b.capacity)
	merged = append(merged, batch...)
	merged = append(merged, b.payloads...)
	b.payloads = merged
}

// Peek returns up to n payloads without removing them
func (b *Buffer) Peek(n int) []json.RawMessage {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	count := min(n, len(b.payloads))
	if count <= 0 {
		return nil
	}
	result := make([]json.RawMessage, count)
	copy(result, b.payloads[:count])
	return result
}

// Size returns the current number of payloads in the buffer
func (b *Buffer) Size() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.payloads)
}

// IsEmpty returns true if buffer has no payloads
func (b *Buffer) IsEmpty() bool {
	return b.Size() == 0
}

// Capacity returns the maximum capacity of the buffer
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Stats returns a copy of current buffer statistics
func (b *Buffer) Stats() BufferStats {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.stats
}

// String returns a human-readable representation of buffer state
func (b *Buffer) String() string {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	mode := "drop-newest"
	if b.dropOldest {
		mode = "drop-oldest"
	}

	return fmt.Sprintf("Buffer[%d/%d, dropped: %d, mode: %s]",
		len(b.payloads),
		b.capacity,
		b.stats.TotalDropped,
		mode,
	)
}
