package reading

import (
	"encoding/json"
	"math"

	"github.com/nerrad567/storefront-telemetry/internal/sensor"
)

// RFIDAction is the direction of an RFID gate scan.
type RFIDAction string

// RFID actions.
const (
	ActionInbound  RFIDAction = "inbound"
	ActionOutbound RFIDAction = "outbound"
)

// RFIDScan is the metadata shape for RFID readings. PreviousStock and
// CurrentStock are filled in by reconciliation so consumers can see the
// delta without re-reading the catalog item.
type RFIDScan struct {
	Action        RFIDAction
	Quantity      int
	PreviousStock *int
	CurrentStock  *int
}

// WeightSample is the metadata shape for weight readings.
type WeightSample struct {
	EstimatedQuantity *int
	UnitWeight        *float64
}

// EnvironmentCoReading carries co-located environmental values reported
// alongside a temperature or humidity reading.
type EnvironmentCoReading struct {
	Humidity *float64
	Pressure *float64
}

// Metadata is a structured variant: at most one known shape is set, and
// keys no shape claims are kept in Extra. On the wire it is a flat JSON
// object.
type Metadata struct {
	RFID        *RFIDScan
	Weight      *WeightSample
	Environment *EnvironmentCoReading
	Extra       map[string]any
}

// Wire keys for the known shapes.
const (
	keyAction            = "action"
	keyQuantity          = "quantity"
	keyPreviousStock     = "previousStock"
	keyCurrentStock      = "currentStock"
	keyEstimatedQuantity = "estimatedQuantity"
	keyUnitWeight        = "unitWeight"
	keyHumidity          = "humidity"
	keyPressure          = "pressure"
)

// ParseMetadata builds the structured variant for a sensor kind from a
// loosely-typed submission map. Keys that do not belong to the kind's
// shape, or that have the wrong type, are kept in Extra.
func ParseMetadata(kind sensor.Kind, raw map[string]any) Metadata {
	rest := make(map[string]any, len(raw))
	for k, v := range raw {
		rest[k] = v
	}

	var md Metadata
	switch kind {
	case sensor.KindRFID:
		scan := &RFIDScan{Action: ActionInbound}
		if s, ok := rest[keyAction].(string); ok && (s == string(ActionInbound) || s == string(ActionOutbound)) {
			scan.Action = RFIDAction(s)
			delete(rest, keyAction)
		}
		if n, ok := takeInt(rest, keyQuantity); ok {
			scan.Quantity = n
		}
		if n, ok := takeInt(rest, keyPreviousStock); ok {
			scan.PreviousStock = &n
		}
		if n, ok := takeInt(rest, keyCurrentStock); ok {
			scan.CurrentStock = &n
		}
		md.RFID = scan
	case sensor.KindWeight:
		ws := &WeightSample{}
		if n, ok := takeInt(rest, keyEstimatedQuantity); ok {
			ws.EstimatedQuantity = &n
		}
		if f, ok := takeFloat(rest, keyUnitWeight); ok {
			ws.UnitWeight = &f
		}
		if ws.EstimatedQuantity != nil || ws.UnitWeight != nil {
			md.Weight = ws
		}
	case sensor.KindTemperature, sensor.KindHumidity:
		env := &EnvironmentCoReading{}
		if f, ok := takeFloat(rest, keyHumidity); ok {
			env.Humidity = &f
		}
		if f, ok := takeFloat(rest, keyPressure); ok {
			env.Pressure = &f
		}
		if env.Humidity != nil || env.Pressure != nil {
			md.Environment = env
		}
	}

	if len(rest) > 0 {
		md.Extra = rest
	}
	return md
}

// Flatten renders the metadata as the flat wire map.
func (m Metadata) Flatten() map[string]any {
	out := make(map[string]any, len(m.Extra)+4)
	for k, v := range m.Extra {
		out[k] = v
	}

	switch {
	case m.RFID != nil:
		out[keyAction] = string(m.RFID.Action)
		out[keyQuantity] = m.RFID.Quantity
		if m.RFID.PreviousStock != nil {
			out[keyPreviousStock] = *m.RFID.PreviousStock
		}
		if m.RFID.CurrentStock != nil {
			out[keyCurrentStock] = *m.RFID.CurrentStock
		}
	case m.Weight != nil:
		if m.Weight.EstimatedQuantity != nil {
			out[keyEstimatedQuantity] = *m.Weight.EstimatedQuantity
		}
		if m.Weight.UnitWeight != nil {
			out[keyUnitWeight] = *m.Weight.UnitWeight
		}
	case m.Environment != nil:
		if m.Environment.Humidity != nil {
			out[keyHumidity] = *m.Environment.Humidity
		}
		if m.Environment.Pressure != nil {
			out[keyPressure] = *m.Environment.Pressure
		}
	}
	return out
}

// IsZero reports whether no shape and no extra keys are set.
func (m Metadata) IsZero() bool {
	return m.RFID == nil && m.Weight == nil && m.Environment == nil && len(m.Extra) == 0
}

// MarshalJSON writes the flat wire object.
func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Flatten())
}

// UnmarshalJSON reads a flat wire object. Without a sensor kind the shape
// is inferred from the keys present.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = ParseMetadata(inferKind(raw), raw)
	return nil
}

func inferKind(raw map[string]any) sensor.Kind {
	switch {
	case has(raw, keyAction, keyPreviousStock, keyCurrentStock):
		return sensor.KindRFID
	case has(raw, keyEstimatedQuantity, keyUnitWeight):
		return sensor.KindWeight
	case has(raw, keyHumidity, keyPressure):
		return sensor.KindTemperature
	default:
		return ""
	}
}

func has(raw map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := raw[k]; ok {
			return true
		}
	}
	return false
}

// takeFloat removes key from m when it holds a number.
func takeFloat(m map[string]any, key string) (float64, bool) {
	var f float64
	switch v := m[key].(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	delete(m, key)
	return f, true
}

// takeInt removes key from m when it holds a whole number.
func takeInt(m map[string]any, key string) (int, bool) {
	v, present := m[key]
	if !present {
		return 0, false
	}
	f, ok := takeFloat(m, key)
	if !ok {
		return 0, false
	}
	if f != math.Trunc(f) {
		m[key] = v
		return 0, false
	}
	return int(f), true
}
