// ABOUTME: Bounded TTL filter that drops redelivered chat event IDs
// ABOUTME: Expired entries are pruned lazily on each call; no background goroutine

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	id   string
	seen time.Time
}

// Filter remembers event IDs for ttl, holding at most size of them.
// The oldest ID is forgotten first when the filter is full.
type Filter struct {
	mu    sync.Mutex
	ttl   time.Duration
	size  int
	index map[string]*list.Element
	order *list.List // oldest at front
	now   func() time.Time
}

// New creates a Filter. Non-positive ttl or size fall back to 10 minutes and 4096.
func New(ttl time.Duration, size int) *Filter {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if size <= 0 {
		size = 4096
	}
	return &Filter{
		ttl:   ttl,
		size:  size,
		index: make(map[string]*list.Element),
		order: list.New(),
		now:   time.Now,
	}
}

// Seen reports whether id was recorded within the TTL, and records it if not.
// Empty IDs are never considered duplicates.
func (f *Filter) Seen(id string) bool {
	if id == "" {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	f.pruneLocked(now)

	if _, ok := f.index[id]; ok {
		return true
	}

	if f.order.Len() >= f.size {
		f.removeLocked(f.order.Front())
	}
	f.index[id] = f.order.PushBack(&entry{id: id, seen: now})
	return false
}

// Len returns the number of remembered IDs.
func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.order.Len()
}

// pruneLocked drops expired entries from the front. Must be called with mu held.
func (f *Filter) pruneLocked(now time.Time) {
	for e := f.order.Front(); e != nil; e = f.order.Front() {
		if now.Sub(e.Value.(*entry).seen) < f.ttl {
			return
		}
		f.removeLocked(e)
	}
}

func (f *Filter) removeLocked(e *list.Element) {
	if e == nil {
		return
	}
	f.order.Remove(e)
	delete(f.index, e.Value.(*entry).id)
}
