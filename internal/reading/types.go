package reading

import (
	"time"

	"github.com/nerrad567/storefront-telemetry/internal/alert"
	"github.com/nerrad567/storefront-telemetry/internal/sensor"
)

// Reading is one telemetry data point emitted by a device.
// Everything except Processed is immutable once stored.
type Reading struct {
	ID            string          `json:"id"`
	DeviceID      string          `json:"device_id"`
	SensorKind    sensor.Kind     `json:"sensor_type"`
	CatalogItemID *string         `json:"catalog_item_id,omitempty"`
	Value         sensor.Value    `json:"value"`
	Unit          string          `json:"unit"`
	Location      sensor.Location `json:"location"`
	Metadata      Metadata        `json:"metadata"`
	Alert         *alert.Alert    `json:"alert,omitempty"`
	Processed     bool            `json:"processed"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Filter selects readings for Query. Zero fields are not applied.
type Filter struct {
	DeviceID       string
	CatalogItemID  string
	AlertTriggered *bool
	From           time.Time
	To             time.Time
	Limit          int
}

// Query limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// EffectiveLimit clamps Limit to (0, MaxLimit], defaulting to DefaultLimit.
func (f Filter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultLimit
	case f.Limit > MaxLimit:
		return MaxLimit
	default:
		return f.Limit
	}
}

// Matches reports whether r satisfies the filter. Used by in-memory
// implementations and tests.
func (f Filter) Matches(r *Reading) bool {
	if f.DeviceID != "" && r.DeviceID != f.DeviceID {
		return false
	}
	if f.CatalogItemID != "" && (r.CatalogItemID == nil || *r.CatalogItemID != f.CatalogItemID) {
		return false
	}
	if f.AlertTriggered != nil {
		triggered := r.Alert != nil && r.Alert.Triggered
		if triggered != *f.AlertTriggered {
			return false
		}
	}
	if !f.From.IsZero() && r.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.CreatedAt.After(f.To) {
		return false
	}
	return true
}
