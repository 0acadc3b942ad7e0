package broadcast

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Kind names an event type.
type Kind string

// Event kinds.
const (
	KindReadingIngested     Kind = "reading.ingested"
	KindAlertRaised         Kind = "alert.raised"
	KindStockChanged        Kind = "stock.changed"
	KindDeviceStatusChanged Kind = "device.status_changed"
)

// AllKinds returns every event kind.
func AllKinds() []Kind {
	return []Kind{KindReadingIngested, KindAlertRaised, KindStockChanged, KindDeviceStatusChanged}
}

// Event is a message fanned out to live observers.
type Event struct {
	ID            string    `json:"id"`
	Kind          Kind      `json:"kind"`
	DeviceID      string    `json:"device_id,omitempty"`
	CatalogItemID string    `json:"catalog_item_id,omitempty"`
	Topic         string    `json:"topic,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Payload       any       `json:"payload,omitempty"`
}

// NewEvent creates an event with a fresh ID and the current time.
func NewEvent(kind Kind, deviceID, itemID string, payload any) Event {
	return Event{
		ID:            uuid.NewString(),
		Kind:          kind,
		DeviceID:      deviceID,
		CatalogItemID: itemID,
		Timestamp:     time.Now().UTC(),
		Payload:       payload,
	}
}

// StockChange is the payload of a stock.changed event.
type StockChange struct {
	ItemID    string `json:"item_id"`
	Previous  int    `json:"previous"`
	Current   int    `json:"current"`
	Source    string `json:"source"`
	ReadingID string `json:"reading_id,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`
}

// Filter selects the events a subscription receives. An empty list in
// any field matches everything for that field.
//
// Topics is different: events published with PublishTo carry a topic and
// reach only subscriptions listing it. Untargeted events ignore Topics.
type Filter struct {
	Kinds   []Kind   `json:"kinds,omitempty"`
	Devices []string `json:"devices,omitempty"`
	Items   []string `json:"items,omitempty"`
	Topics  []string `json:"topics,omitempty"`
}

// Matches reports whether e passes the filter.
func (f Filter) Matches(e Event) bool {
	if e.Topic != "" && !slices.Contains(f.Topics, e.Topic) {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, e.Kind) {
		return false
	}
	if len(f.Devices) > 0 && !slices.Contains(f.Devices, e.DeviceID) {
		return false
	}
	if len(f.Items) > 0 && !slices.Contains(f.Items, e.CatalogItemID) {
		return false
	}
	return true
}

// Remove returns f without the entries listed in other.
func (f Filter) Remove(other Filter) Filter {
	return Filter{
		Kinds:   minus(f.Kinds, other.Kinds),
		Devices: minus(f.Devices, other.Devices),
		Items:   minus(f.Items, other.Items),
		Topics:  minus(f.Topics, other.Topics),
	}
}

// IsEmpty reports whether the filter lists nothing.
func (f Filter) IsEmpty() bool {
	return len(f.Kinds) == 0 && len(f.Devices) == 0 && len(f.Items) == 0 && len(f.Topics) == 0
}

// Equal reports whether f and other list the same entries, in any order.
func (f Filter) Equal(other Filter) bool {
	return sameSet(f.Kinds, other.Kinds) && sameSet(f.Devices, other.Devices) &&
		sameSet(f.Items, other.Items) && sameSet(f.Topics, other.Topics)
}

// drained reports whether narrowing f to n emptied a field f restricted.
// Such a filter would match more than f did.
func drained(f, n Filter) bool {
	return (len(f.Kinds) > 0 && len(n.Kinds) == 0) ||
		(len(f.Devices) > 0 && len(n.Devices) == 0) ||
		(len(f.Items) > 0 && len(n.Items) == 0) ||
		(len(f.Topics) > 0 && len(n.Topics) == 0)
}

// FilterSet is a disjunction of filters: an event passes if any member
// matches it. Fields within one Filter are combined with AND, so widening a
// subscription adds a member instead of merging fields.
type FilterSet []Filter

// Matches reports whether any member passes e.
func (fs FilterSet) Matches(e Event) bool {
	for _, f := range fs {
		if f.Matches(e) {
			return true
		}
	}
	return false
}

// Add returns fs with f appended unless an equal filter is present.
func (fs FilterSet) Add(f Filter) FilterSet {
	for _, have := range fs {
		if have.Equal(f) {
			return slices.Clone(fs)
		}
	}
	return append(slices.Clone(fs), f)
}

// Remove narrows every member by the entries in other. A member that
// would be left without a restriction it had is dropped.
func (fs FilterSet) Remove(other Filter) FilterSet {
	var out FilterSet
	for _, f := range fs {
		n := f.Remove(other)
		if drained(f, n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func sameSet[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for _, v := range a {
		if !slices.Contains(b, v) {
			return false
		}
	}
	for _, v := range b {
		if !slices.Contains(a, v) {
			return false
		}
	}
	return true
}

func minus[T comparable](a, b []T) []T {
	var out []T
	for _, v := range a {
		if !slices.Contains(b, v) {
			out = append(out, v)
		}
	}
	return out
}
