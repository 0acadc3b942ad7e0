package alert

import (
	"testing"

	"github.com/nerrad567/storefront-telemetry/internal/sensor"
)

func f(v float64) *float64 { return &v }

func TestEvaluateThreshold(t *testing.T) {
	cold := &Range{Min: f(2), Max: f(8)}

	tests := []struct {
		name     string
		kind     sensor.Kind
		value    sensor.Value
		unit     string
		bounds   *Range
		want     Severity
		wantMsg  string
		wantNone bool
	}{
		{
			name: "above max", kind: sensor.KindTemperature, value: sensor.Number(35), unit: "C",
			bounds: &Range{Min: f(10), Max: f(30)}, want: SeverityHigh,
			wantMsg: "temperature reading 35C is outside threshold range",
		},
		{
			name: "below min", kind: sensor.KindTemperature, value: sensor.Number(1.5), unit: "C",
			bounds: cold, want: SeverityLow,
			wantMsg: "temperature reading 1.5C is outside threshold range",
		},
		{name: "inside", kind: sensor.KindTemperature, value: sensor.Number(5), bounds: cold, wantNone: true},
		{name: "on boundary", kind: sensor.KindTemperature, value: sensor.Number(8), bounds: cold, wantNone: true},
		{name: "no thresholds", kind: sensor.KindHumidity, value: sensor.Number(999), bounds: nil, wantNone: true},
		{name: "text value fails open", kind: sensor.KindTemperature, value: sensor.Text("err"), bounds: cold, wantNone: true},
		{name: "only max", kind: sensor.KindHumidity, value: sensor.Number(-20), bounds: &Range{Max: f(60)}, wantNone: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateThreshold(tt.kind, tt.value, tt.unit, tt.bounds)
			if tt.wantNone {
				if got != nil {
					t.Errorf("EvaluateThreshold() = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("EvaluateThreshold() = nil, want alert")
			}
			if !got.Triggered || got.Severity != tt.want || got.Origin != OriginThreshold {
				t.Errorf("alert = %+v", got)
			}
			if got.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", got.Message, tt.wantMsg)
			}
		})
	}
}

func TestEvaluateLowStock(t *testing.T) {
	tests := []struct {
		estimate, threshold int
		want                Severity
		wantMsg             string
	}{
		{0, 5, SeverityCritical, "Low stock detected: 0 units remaining"},
		{3, 5, SeverityMedium, "Low stock detected: 3 units remaining"},
		{5, 5, "", ""},
		{12, 5, "", ""},
	}

	for _, tt := range tests {
		got := EvaluateLowStock(tt.estimate, tt.threshold)
		if tt.want == "" {
			if got != nil {
				t.Errorf("EvaluateLowStock(%d, %d) = %+v, want nil", tt.estimate, tt.threshold, got)
			}
			continue
		}
		if got == nil || got.Severity != tt.want || got.Message != tt.wantMsg || got.Origin != OriginLowStock {
			t.Errorf("EvaluateLowStock(%d, %d) = %+v", tt.estimate, tt.threshold, got)
		}
	}
}

func TestMerge(t *testing.T) {
	high := &Alert{Severity: SeverityHigh, Origin: OriginThreshold}
	low := &Alert{Severity: SeverityLow, Origin: OriginThreshold}
	crit := &Alert{Severity: SeverityCritical, Origin: OriginLowStock}
	med := &Alert{Severity: SeverityMedium, Origin: OriginLowStock}

	if Merge(nil, nil) != nil {
		t.Error("Merge(nil, nil) should be nil")
	}
	if Merge(high, nil) != high || Merge(nil, med) != med {
		t.Error("Merge should return the only alert")
	}
	if Merge(low, crit) != crit {
		t.Error("critical low stock should win over low threshold")
	}
	if Merge(high, med) != high {
		t.Error("high threshold should win over medium low stock")
	}
}
