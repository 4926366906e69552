package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/sclog/sclog-go/pkg/sclog/event"
)

// DefaultCapacity is the per-feed retained event count.
const DefaultCapacity = 500

// DurableStore is the optional persistence layer behind the in-memory
// store. Evicted events remain queryable through it.
type DurableStore interface {
	Insert(ctx context.Context, ev event.Finalized) error
	List(ctx context.Context, limit, offset int) ([]event.Finalized, bool, error)
}

// Page is one result of LoadMore.
type Page struct {
	Events  []event.Finalized
	HasMore bool
}

// MemStore keeps the most recent finalized events in memory for live
// display: one global feed plus one feed per named player. Eviction is
// oldest-first and independent of durable persistence.
type MemStore struct {
	mu       sync.RWMutex
	capacity int
	global   []event.Finalized
	byPlayer map[string][]event.Finalized
	durable  DurableStore
}

// MemStoreOption configures a MemStore.
type MemStoreOption func(*MemStore)

// WithDurable attaches a durable store. Every delivered event is also
// persisted, and LoadMore pages over the durable history.
func WithDurable(d DurableStore) MemStoreOption {
	return func(s *MemStore) { s.durable = d }
}

// NewMemStore creates a MemStore retaining up to capacity events per
// feed. Non-positive capacity uses DefaultCapacity.
func NewMemStore(capacity int, opts ...MemStoreOption) *MemStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &MemStore{
		capacity: capacity,
		byPlayer: make(map[string][]event.Finalized),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Deliver records ev in the global feed and in the feed of every actor
// it names, evicting oldest-first past capacity. When a durable store is
// attached the event is persisted as well; a persistence failure does
// not prevent the in-memory update.
func (s *MemStore) Deliver(ctx context.Context, ev event.Finalized) error {
	var errs []error
	if s.durable != nil {
		if err := s.durable.Insert(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}

	s.mu.Lock()
	s.global = appendCapped(s.global, ev, s.capacity)
	for _, handle := range actorsOf(ev) {
		s.byPlayer[handle] = appendCapped(s.byPlayer[handle], ev, s.capacity)
	}
	s.mu.Unlock()

	return errors.Join(errs...)
}

// Recent returns up to n events from the global feed, newest first.
func (s *MemStore) Recent(n int) []event.Finalized {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.global, n)
}

// PlayerFeed returns up to n events naming handle, newest first.
func (s *MemStore) PlayerFeed(handle string, n int) []event.Finalized {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.byPlayer[handle], n)
}

// LoadMore pages over the merged in-memory and durable history, newest
// first. Offset is relative to insertion order at call time; duplicate
// suppression across pages is the caller's responsibility via event ID.
func (s *MemStore) LoadMore(ctx context.Context, count, offset int) (Page, error) {
	if count <= 0 {
		return Page{}, nil
	}

	// The durable store holds everything the memory feed holds and more,
	// so it serves pagination whole when present.
	if s.durable != nil {
		events, hasMore, err := s.durable.List(ctx, count, offset)
		if err != nil {
			return Page{}, err
		}
		return Page{Events: events, HasMore: hasMore}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	total := len(s.global)
	if offset >= total {
		return Page{}, nil
	}
	end := total - offset
	start := end - count
	if start < 0 {
		start = 0
	}
	events := make([]event.Finalized, 0, end-start)
	for i := end - 1; i >= start; i-- {
		events = append(events, s.global[i])
	}
	return Page{Events: events, HasMore: start > 0}, nil
}

func appendCapped(feed []event.Finalized, ev event.Finalized, capacity int) []event.Finalized {
	feed = append(feed, ev)
	if len(feed) > capacity {
		feed = append(feed[:0], feed[len(feed)-capacity:]...)
	}
	return feed
}

func newestFirst(feed []event.Finalized, n int) []event.Finalized {
	if n <= 0 || len(feed) == 0 {
		return nil
	}
	if n > len(feed) {
		n = len(feed)
	}
	out := make([]event.Finalized, 0, n)
	for i := len(feed) - 1; i >= len(feed)-n; i-- {
		out = append(out, feed[i])
	}
	return out
}

func actorsOf(ev event.Finalized) []string {
	seen := make(map[string]struct{}, len(ev.Subjects)+len(ev.Objects))
	var out []string
	for _, list := range [][]string{ev.Objects, ev.Subjects} {
		for _, h := range list {
			if h == "" || h == "unknown" {
				continue
			}
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = struct{}{}
			out = append(out, h)
		}
	}
	return out
}
