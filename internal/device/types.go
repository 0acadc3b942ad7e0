package device

import (
	"time"

	"github.com/nerrad567/storefront-telemetry/internal/sensor"
)

// Device is a physical sensor deployed in a warehouse.
// This matches the devices table in migrations/20260301_090000_devices.up.sql.
type Device struct {
	// Identity
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Kind sensor.Kind `json:"kind"`

	Location sensor.Location `json:"location"`

	// Operational state
	Status       Status `json:"status"`
	IsOnline     bool   `json:"is_online"`
	BatteryLevel *int   `json:"battery_level,omitempty"`

	// LastReading is overwritten by every accepted reading for the device.
	LastReading *LastReading `json:"last_reading,omitempty"`

	// Thresholds enable range alerting. Nil means no range alerting.
	Thresholds *Thresholds `json:"thresholds,omitempty"`

	// CatalogItemID associates the device with a stocked product.
	CatalogItemID *string `json:"catalog_item_id,omitempty"`

	// Timestamps
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// LastReading is the denormalised snapshot of a device's latest reading.
type LastReading struct {
	Value     sensor.Value `json:"value"`
	Unit      string       `json:"unit"`
	Timestamp time.Time    `json:"timestamp"`
}

// Thresholds is an optional numeric range. Either bound may be absent.
type Thresholds struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// DeepCopy creates an independent copy of the Device.
// Pointer fields are cloned so the copy can be modified without touching
// the registry cache.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cp := *d

	if d.Location.Coordinates != nil {
		c := *d.Location.Coordinates
		cp.Location.Coordinates = &c
	}
	if d.BatteryLevel != nil {
		b := *d.BatteryLevel
		cp.BatteryLevel = &b
	}
	if d.LastReading != nil {
		lr := *d.LastReading
		cp.LastReading = &lr
	}
	if d.Thresholds != nil {
		th := Thresholds{}
		if d.Thresholds.Min != nil {
			v := *d.Thresholds.Min
			th.Min = &v
		}
		if d.Thresholds.Max != nil {
			v := *d.Thresholds.Max
			th.Max = &v
		}
		cp.Thresholds = &th
	}
	if d.CatalogItemID != nil {
		s := *d.CatalogItemID
		cp.CatalogItemID = &s
	}
	if d.LastSeenAt != nil {
		t := *d.LastSeenAt
		cp.LastSeenAt = &t
	}

	return &cp
}

// Status is the administrative status of a device.
type Status string

// Device statuses.
const (
	StatusActive      Status = "active"
	StatusInactive    Status = "inactive"
	StatusMaintenance Status = "maintenance"
	StatusError       Status = "error"
)

// AllStatuses returns every valid status.
func AllStatuses() []Status {
	return []Status{StatusActive, StatusInactive, StatusMaintenance, StatusError}
}

// StatusUpdate is a partial update of a device's operational state.
// Nil fields are left unchanged.
type StatusUpdate struct {
	Status       *Status `json:"status,omitempty"`
	IsOnline     *bool   `json:"is_online,omitempty"`
	BatteryLevel *int    `json:"battery_level,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u StatusUpdate) Empty() bool {
	return u.Status == nil && u.IsOnline == nil && u.BatteryLevel == nil
}
