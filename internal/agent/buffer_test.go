package agent

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"
)

// payload builds a distinguishable test payload
func payload(i int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"temperature":%d,"humidity":40,"sound":0}`, i))
}

func TestNewBuffer(t *testing.T) {
	buf := NewBuffer(100, true)

	if buf.Capacity() != 100 {
		t.Errorf("Capacity = %d, want 100", buf.Capacity())
	}
	if buf.Size() != 0 {
		t.Errorf("Initial size = %d, want 0", buf.Size())
	}
	if !buf.IsEmpty() {
		t.Error("New buffer should be empty")
	}
}

func TestBuffer_PopBatch(t *testing.T) {
	buf := NewBuffer(10, true)
	for i := 0; i < 5; i++ {
		buf.Push(payload(i))
	}

	got := buf.PopBatch(3)
	if len(got) != 3 {
		t.Fatalf("PopBatch(3) returned %d payloads, want 3", len(got))
	}
	if string(got[0]) != string(payload(0)) {
		t.Errorf("First payload = %s, want oldest", got[0])
	}
	if buf.Size() != 2 {
		t.Errorf("Size after pop = %d, want 2", buf.Size())
	}

	rest := buf.PopBatch(10)
	if len(rest) != 2 {
		t.Errorf("PopBatch(10) returned %d payloads, want 2", len(rest))
	}
	if buf.PopBatch(1) != nil {
		t.Error("PopBatch on empty buffer should return nil")
	}
}

func TestBuffer_Peek(t *testing.T) {
	buf := NewBuffer(10, true)
	buf.Push(payload(1))
	buf.Push(payload(2))

	got := buf.Peek(5)
	if len(got) != 2 {
		t.Fatalf("Peek(5) returned %d payloads, want 2", len(got))
	}
	if buf.Size() != 2 {
		t.Errorf("Peek should not remove payloads, size = %d", buf.Size())
	}
}

func TestBuffer_DropOldest(t *testing.T) {
	buf := NewBuffer(3, true)
	for i := 0; i < 3; i++ {
		buf.Push(payload(i))
	}

	if !buf.Push(payload(99)) {
		t.Error("Push should succeed in drop-oldest mode")
	}

	got := buf.PopBatch(3)
	if string(got[0]) != string(payload(1)) {
		t.Errorf("After drop-oldest, first = %s, want payload 1", got[0])
	}
	if string(got[2]) != string(payload(99)) {
		t.Errorf("After drop-oldest, last = %s, want payload 99", got[2])
	}
}

func TestBuffer_DropNewest(t *testing.T) {
	buf := NewBuffer(3, false)
	for i := 0; i < 3; i++ {
		buf.Push(payload(i))
	}

	if buf.Push(payload(99)) {
		t.Error("Push should return false when buffer full and drop-newest")
	}

	got := buf.PopBatch(3)
	if string(got[2]) != string(payload(2)) {
		t.Errorf("Last = %s, want payload 2 (99 should be dropped)", got[2])
	}
}

func TestBuffer_Requeue(t *testing.T) {
	buf := NewBuffer(5, true)
	for i := 0; i < 4; i++ {
		buf.Push(payload(i))
	}

	batch := buf.PopBatch(3) // 0,1,2
	buf.Push(payload(4))     // 3,4
	buf.Requeue(batch)       // 0,1,2,3,4

	got := buf.PopBatch(5)
	if len(got) != 5 {
		t.Fatalf("Size after requeue = %d, want 5", len(got))
	}
	for i, p := range got {
		if string(p) != string(payload(i)) {
			t.Errorf("Position %d = %s, want payload %d", i, p, i)
		}
	}
}

func TestBuffer_RequeueOverflow(t *testing.T) {
	buf := NewBuffer(3, true)
	buf.Push(payload(0))
	buf.Push(payload(1))
	batch := buf.PopBatch(2)

	buf.Push(payload(2))
	buf.Push(payload(3))
	buf.Requeue(batch) // room for one: keeps payload 1

	got := buf.PopBatch(3)
	want := []int{1, 2, 3}
	for i, p := range got {
		if string(p) != string(payload(want[i])) {
			t.Errorf("Position %d = %s, want payload %d", i, p, want[i])
		}
	}
	if stats := buf.Stats(); stats.TotalDropped != 1 {
		t.Errorf("TotalDropped = %d, want 1", stats.TotalDropped)
	}
}

func TestBuffer_Stats(t *testing.T) {
	buf := NewBuffer(3, true)
	for i := 0; i < 5; i++ {
		buf.Push(payload(i))
	}

	stats := buf.Stats()
	if stats.TotalPushed != 5 {
		t.Errorf("TotalPushed = %d, want 5", stats.TotalPushed)
	}
	if stats.TotalDropped != 2 {
		t.Errorf("TotalDropped = %d, want 2", stats.TotalDropped)
	}
	if stats.HighWaterMark != 3 {
		t.Errorf("HighWaterMark = %d, want 3", stats.HighWaterMark)
	}
	if stats.LastPushTime.IsZero() {
		t.Error("LastPushTime should be set")
	}
}

func TestBuffer_ThreadSafety(t *testing.T) {
	buf := NewBuffer(1000, true)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf.Push(payload(id*100 + j))
			}
		}(i)
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if batch := buf.PopBatch(10); j%10 == 0 {
					buf.Requeue(batch)
				}
				time.Sleep(time.Millisecond)
			}
		}()
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf.Size()
				buf.Peek(5)
				buf.Stats()
			}
		}()
	}

	wg.Wait()
	if buf.Size() > buf.Capacity() {
		t.Errorf("Size %d exceeds capacity %d", buf.Size(), buf.Capacity())
	}
	t.Logf("Final buffer state: %s", buf.String())
}

func BenchmarkBuffer_Push(b *testing.B) {
	buf := NewBuffer(10000, true)
	p := payload(1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Push(p)
	}
}
