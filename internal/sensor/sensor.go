// Package sensor holds the vocabulary shared by devices and readings:
// sensor kinds, physical locations and the numeric-or-text reading value.
package sensor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind is the class of physical sensor a device carries.
type Kind string

// Sensor kinds.
const (
	KindTemperature Kind = "temperature"
	KindHumidity    Kind = "humidity"
	KindRFID        Kind = "rfid"
	KindWeight      Kind = "weight"
	KindMotion      Kind = "motion"
	KindCamera      Kind = "camera"
	KindBarcode     Kind = "barcode"
)

// AllKinds returns every supported sensor kind.
func AllKinds() []Kind {
	return []Kind{
		KindTemperature,
		KindHumidity,
		KindRFID,
		KindWeight,
		KindMotion,
		KindCamera,
		KindBarcode,
	}
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	for _, known := range AllKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// GeoPoint is an optional WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

// Location places a device (and the readings it emits) in a warehouse.
type Location struct {
	Warehouse   string    `json:"warehouse" bson:"warehouse"`
	Zone        string    `json:"zone" bson:"zone"`
	Coordinates *GeoPoint `json:"coordinates,omitempty" bson:"coordinates,omitempty"`
}

// Value is a reading payload: numeric for most sensors, text for RFID tags.
// The zero Value is the number 0.
type Value struct {
	num    float64
	text   string
	isText bool
}

// Number returns a numeric Value.
func Number(f float64) Value {
	return Value{num: f}
}

// Text returns a text Value.
func Text(s string) Value {
	return Value{text: s, isText: true}
}

// Float returns the numeric value and true, or 0 and false for text values.
func (v Value) Float() (float64, bool) {
	if v.isText {
		return 0, false
	}
	return v.num, true
}

// Text returns the text value and true, or "" and false for numeric values.
func (v Value) Text() (string, bool) {
	if !v.isText {
		return "", false
	}
	return v.text, true
}

// IsNumeric reports whether v holds a number.
func (v Value) IsNumeric() bool {
	return !v.isText
}

// String formats the value without a unit: numbers use the shortest
// representation ("35", "21.5"), text is returned as is.
func (v Value) String() string {
	if v.isText {
		return v.text
	}
	return strconv.FormatFloat(v.num, 'f', -1, 64)
}

// MarshalJSON encodes numbers as JSON numbers and text as JSON strings.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.isText {
		return json.Marshal(v.text)
	}
	return json.Marshal(v.num)
}

// UnmarshalJSON accepts a JSON number or string. Strings are kept as text;
// Coerce decides whether a string should become a number.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("sensor value must be a number or string: %w", err)
	}
	*v = Number(f)
	return nil
}

// Coerce normalises a submitted value for a sensor kind. RFID values are
// always text (numeric tags are rendered as strings). Other kinds convert
// parsable text to a number; unparsable text stays text.
func Coerce(kind Kind, v Value) Value {
	if kind == KindRFID {
		if v.isText {
			return v
		}
		return Text(v.String())
	}
	if v.isText {
		if f, err := strconv.ParseFloat(v.text, 64); err == nil {
			return Number(f)
		}
	}
	return v
}
