// ABOUTME: Tests for the event ID dedupe filter
// ABOUTME: Covers duplicate detection, TTL expiry and capacity eviction

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestFilter(ttl time.Duration, size int) (*Filter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	f := New(ttl, size)
	f.now = clock.now
	return f, clock
}

func TestSeen_DetectsDuplicates(t *testing.T) {
	f, _ := newTestFilter(time.Minute, 10)

	if f.Seen("$a") {
		t.Error("first sighting reported as duplicate")
	}
	if !f.Seen("$a") {
		t.Error("second sighting not reported as duplicate")
	}
	if f.Seen("$b") {
		t.Error("different id reported as duplicate")
	}
}

func TestSeen_EmptyIDNeverDuplicate(t *testing.T) {
	f, _ := newTestFilter(time.Minute, 10)
	f.Seen("")
	if f.Seen("") {
		t.Error("empty id reported as duplicate")
	}
	if f.Len() != 0 {
		t.Errorf("empty id should not be stored, len=%d", f.Len())
	}
}

func TestSeen_Expires(t *testing.T) {
	f, clock := newTestFilter(time.Minute, 10)

	f.Seen("$a")
	clock.advance(59 * time.Second)
	if !f.Seen("$a") {
		t.Error("id forgotten before TTL")
	}

	clock.advance(2 * time.Minute)
	if f.Seen("$a") {
		t.Error("id remembered after TTL")
	}
}

func TestSeen_EvictsOldestAtCapacity(t *testing.T) {
	f, _ := newTestFilter(time.Hour, 3)

	for i := range 4 {
		f.Seen(fmt.Sprintf("$%d", i))
	}
	if f.Len() != 3 {
		t.Errorf("expected 3 entries, got %d", f.Len())
	}
	if f.Seen("$0") {
		t.Error("oldest id should have been evicted")
	}
	if !f.Seen("$3") {
		t.Error("newest id should still be remembered")
	}
}

func TestSeen_Concurrent(t *testing.T) {
	f := New(time.Minute, 1000)
	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !f.Seen("$same") {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if fresh != 1 {
		t.Errorf("expected exactly one fresh sighting, got %d", fresh)
	}
}
