package ingestion

import (
	"encoding/json"

	"github.com/nerrad567/storefront-telemetry/internal/sensor"
)

// Submission is a raw reading as sent by a device or gateway.
//
// SensorType defaults to the device kind. CatalogItemID overrides the
// device's associated item. Metadata is loosely typed and normalised per
// sensor kind during validation.
type Submission struct {
	DeviceID      string         `json:"device_id"`
	SensorType    sensor.Kind    `json:"sensor_type,omitempty"`
	Value         *sensor.Value  `json:"value"`
	Unit          string         `json:"unit,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CatalogItemID *string        `json:"catalog_item_id,omitempty"`
}

// UnmarshalJSON accepts both snake_case and the camelCase keys older
// device firmware sends (deviceId, sensorType, catalogItemId).
func (s *Submission) UnmarshalJSON(data []byte) error {
	var wire struct {
		DeviceID         string         `json:"device_id"`
		DeviceIDAlt      string         `json:"deviceId"`
		SensorType       sensor.Kind    `json:"sensor_type"`
		SensorTypeAlt    sensor.Kind    `json:"sensorType"`
		Value            *sensor.Value  `json:"value"`
		Unit             string         `json:"unit"`
		Metadata         map[string]any `json:"metadata"`
		CatalogItemID    *string        `json:"catalog_item_id"`
		CatalogItemIDAlt *string        `json:"catalogItemId"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*s = Submission{
		DeviceID:      firstNonEmpty(wire.DeviceID, wire.DeviceIDAlt),
		SensorType:    sensor.Kind(firstNonEmpty(string(wire.SensorType), string(wire.SensorTypeAlt))),
		Value:         wire.Value,
		Unit:          wire.Unit,
		Metadata:      wire.Metadata,
		CatalogItemID: wire.CatalogItemID,
	}
	if s.CatalogItemID == nil {
		s.CatalogItemID = wire.CatalogItemIDAlt
	}
	return nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
