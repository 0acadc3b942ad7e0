package broadcast

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Logger defines the logging interface used by the Hub.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// OverflowPolicy decides what happens when a subscriber's queue is full.
type OverflowPolicy string

// Overflow policies.
const (
	// DropOldest discards the oldest queued event to make room.
	DropOldest OverflowPolicy = "drop_oldest"

	// Disconnect closes the slow subscription.
	Disconnect OverflowPolicy = "disconnect"
)

// DefaultBufferSize is the per-subscriber queue length.
const DefaultBufferSize = 256

// Config tunes a Hub.
type Config struct {
	BufferSize int
	Overflow   OverflowPolicy
}

// Validate checks the policy name.
func (c Config) Validate() error {
	switch c.Overflow {
	case "", DropOldest, Disconnect:
		return nil
	default:
		return fmt.Errorf("broadcast: unknown overflow policy %q", c.Overflow)
	}
}

// Hub fans events out to subscribers.
//
// A Hub is created once at startup and passed to whatever publishes or
// subscribes; there is no package-level instance. Publishing never blocks:
// each subscriber has a bounded queue and the overflow policy applies when
// it is full. Each subscriber sees events in publish order. Events are not
// retained, so a subscriber only receives events published after it
// subscribed.
type Hub struct {
	bufferSize int
	overflow   OverflowPolicy
	logger     Logger

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub creates a Hub.
func NewHub(cfg Config) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Overflow == "" {
		cfg.Overflow = DropOldest
	}
	return &Hub{
		bufferSize: cfg.BufferSize,
		overflow:   cfg.Overflow,
		logger:     noopLogger{},
		subs:       make(map[*Subscription]struct{}),
	}
}

// SetLogger sets the logger for the hub.
func (h *Hub) SetLogger(logger Logger) {
	h.logger = logger
}

// Subscribe registers a subscriber. The returned subscription receives
// every later event matching filter until Close is called.
// Subscribing to a closed hub returns an already closed subscription.
func (h *Hub) Subscribe(filter Filter) *Subscription {
	sub := &Subscription{
		hub:     h,
		filters: FilterSet{filter},
		queue:   make(chan Event, h.bufferSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.shutdown()
		return sub
	}
	h.subs[sub] = struct{}{}
	count := len(h.subs)
	h.mu.Unlock()

	h.logger.Debug("subscriber added", "subscribers", count)
	return sub
}

// Publish delivers e to every subscriber whose filter matches.
func (h *Hub) Publish(e Event) {
	h.published.Add(1)

	// Snapshot subscribers, then deliver without holding the hub lock.
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		if s.matches(e) {
			s.enqueue(e)
		}
	}
}

// PublishTo delivers e only to subscribers that listed topic.
func (h *Hub) PublishTo(topic string, e Event) {
	e.Topic = topic
	h.Publish(e)
}

// SubscriberCount returns the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Stats is a snapshot of hub counters.
type Stats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
}

// Stats returns current hub counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Subscribers: h.SubscriberCount(),
		Published:   h.published.Load(),
		Delivered:   h.delivered.Load(),
		Dropped:     h.dropped.Load(),
	}
}

// Close closes every subscription. Later Publish calls are no-ops for
// delivery and later Subscribe calls return closed subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[*Subscription]struct{})
	h.mu.Unlock()

	for s := range subs {
		s.shutdown()
	}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}
