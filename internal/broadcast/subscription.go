package broadcast

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Subscription is one subscriber's view of a Hub.
type Subscription struct {
	hub *Hub

	filterMu sync.RWMutex
	filters  FilterSet

	// mu serialises enqueue and close so events keep publish order and
	// nothing is sent on a closed channel.
	mu     sync.Mutex
	queue  chan Event
	closed bool

	dropped atomic.Uint64
}

// Events returns the channel events arrive on. It is closed when the
// subscription is closed, either by Close, by the hub shutting down, or by
// the Disconnect overflow policy.
func (s *Subscription) Events() <-chan Event {
	return s.queue
}

// Filters returns the current filter set.
func (s *Subscription) Filters() FilterSet {
	s.filterMu.RLock()
	defer s.filterMu.RUnlock()
	return slices.Clone(s.filters)
}

// AddFilter widens the subscription to also receive events matching f and
// returns the resulting set. Events already queued are kept.
func (s *Subscription) AddFilter(f Filter) FilterSet {
	s.filterMu.Lock()
	defer s.filterMu.Unlock()
	s.filters = s.filters.Add(f)
	return slices.Clone(s.filters)
}

// RemoveFilter narrows the subscription by the entries in f (see
// FilterSet.Remove) and returns the resulting set. An empty set matches
// nothing.
func (s *Subscription) RemoveFilter(f Filter) FilterSet {
	s.filterMu.Lock()
	defer s.filterMu.Unlock()
	s.filters = s.filters.Remove(f)
	return slices.Clone(s.filters)
}

// Dropped returns how many events were discarded for this subscriber.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
	s.shutdown()
}

// Closed reports whether the subscription has been closed.
func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Subscription) matches(e Event) bool {
	s.filterMu.RLock()
	defer s.filterMu.RUnlock()
	return s.filters.Matches(e)
}

// enqueue adds e without blocking, applying the overflow policy when the
// queue is full.
func (s *Subscription) enqueue(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.queue <- e:
		s.hub.delivered.Add(1)
		return
	default:
	}

	switch s.hub.overflow {
	case Disconnect:
		s.dropped.Add(1)
		s.hub.dropped.Add(1)
		s.closed = true
		close(s.queue)
		s.hub.remove(s)
		s.hub.logger.Warn("slow subscriber disconnected", "kind", e.Kind)
	default:
		// Make room by discarding the oldest event. The consumer may have
		// drained one concurrently, in which case nothing is discarded.
		select {
		case <-s.queue:
			s.dropped.Add(1)
			s.hub.dropped.Add(1)
		default:
		}
		select {
		case s.queue <- e:
			s.hub.delivered.Add(1)
		default:
			s.dropped.Add(1)
			s.hub.dropped.Add(1)
		}
	}
}

func (s *Subscription) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.queue)
}
