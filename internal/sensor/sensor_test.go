package sensor

import (
	"encoding/json"
	"testing"
)

func TestKindValid(t *testing.T) {
	for _, k := range AllKinds() {
		if !k.Valid() {
			t.Errorf("%q.Valid() = false", k)
		}
	}
	if Kind("lidar").Valid() {
		t.Error(`"lidar".Valid() = true, want false`)
	}
}

func TestValueString(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Number(35), "35"},
		{Number(21.5), "21.5"},
		{Number(-3), "-3"},
		{Text("E200-3411"), "E200-3411"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestValueJSON(t *testing.T) {
	tests := []struct {
		raw     string
		numeric bool
		want    string
	}{
		{`35`, true, "35"},
		{`14.25`, true, "14.25"},
		{`"TAG-001"`, false, "TAG-001"},
		{`"35"`, false, "35"},
	}
	for _, tt := range tests {
		var v Value
		if err := json.Unmarshal([]byte(tt.raw), &v); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", tt.raw, err)
		}
		if v.IsNumeric() != tt.numeric {
			t.Errorf("Unmarshal(%s).IsNumeric() = %v, want %v", tt.raw, v.IsNumeric(), tt.numeric)
		}
		if v.String() != tt.want {
			t.Errorf("Unmarshal(%s).String() = %q, want %q", tt.raw, v.String(), tt.want)
		}
		out, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("Marshal error = %v", err)
		}
		if string(out) != tt.raw {
			t.Errorf("Marshal = %s, want %s", out, tt.raw)
		}
	}

	var v Value
	if err := json.Unmarshal([]byte(`{"a":1}`), &v); err == nil {
		t.Error("Unmarshal(object) expected error")
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		in      Value
		numeric bool
		want    string
	}{
		{"rfid text stays text", KindRFID, Text("TAG"), false, "TAG"},
		{"rfid number becomes text", KindRFID, Number(1234), false, "1234"},
		{"temperature numeric string parsed", KindTemperature, Text("35.5"), true, "35.5"},
		{"temperature garbage stays text", KindTemperature, Text("n/a"), false, "n/a"},
		{"weight number untouched", KindWeight, Number(14), true, "14"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Coerce(tt.kind, tt.in)
			if got.IsNumeric() != tt.numeric || got.String() != tt.want {
				t.Errorf("Coerce() = (%v, %q), want (%v, %q)", got.IsNumeric(), got.String(), tt.numeric, tt.want)
			}
		})
	}
}
