// Package alert evaluates readings against device thresholds and catalog
// low-stock levels.
//
// Evaluation is pure and never fails: a value that cannot be interpreted
// as a number produces no alert. Threshold alerts and low-stock alerts use
// separate severity scales and are told apart by Origin.
package alert

import (
	"fmt"
	"strconv"

	"github.com/nerrad567/storefront-telemetry/internal/sensor"
)

// Severity grades an alert.
type Severity string

// Alert severities.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Origin identifies which rule raised an alert.
type Origin string

// Alert origins.
const (
	OriginThreshold Origin = "threshold"
	OriginLowStock  Origin = "low_stock"
)

// Alert annotates a reading that crossed a threshold or signalled low stock.
type Alert struct {
	Triggered bool     `json:"triggered" bson:"triggered"`
	Severity  Severity `json:"severity" bson:"severity"`
	Message   string   `json:"message" bson:"message"`
	Origin    Origin   `json:"origin" bson:"origin"`
}

// Range is an optional numeric band. A nil bound is not checked.
type Range struct {
	Min *float64
	Max *float64
}

// EvaluateThreshold checks a reading value against a device's range.
//
// Parameters:
//   - kind: sensor kind of the reading, used in the message
//   - value: the reading value; text values never alert
//   - unit: appended directly after the value in the message
//   - bounds: nil means the device has no range alerting
//
// Returns:
//   - *Alert: low severity below Min, high severity above Max, nil otherwise
func EvaluateThreshold(kind sensor.Kind, value sensor.Value, unit string, bounds *Range) *Alert {
	if bounds == nil {
		return nil
	}

	v, ok := value.Float()
	if !ok {
		return nil
	}

	var severity Severity
	switch {
	case bounds.Min != nil && v < *bounds.Min:
		severity = SeverityLow
	case bounds.Max != nil && v > *bounds.Max:
		severity = SeverityHigh
	default:
		return nil
	}

	return &Alert{
		Triggered: true,
		Severity:  severity,
		Message: fmt.Sprintf("%s reading %s%s is outside threshold range",
			kind, strconv.FormatFloat(v, 'f', -1, 64), unit),
		Origin: OriginThreshold,
	}
}

// EvaluateLowStock checks an estimated on-shelf quantity against an item's
// low-stock threshold. An estimate of zero is critical; anything else
// under the threshold is medium.
func EvaluateLowStock(estimate, threshold int) *Alert {
	if estimate >= threshold {
		return nil
	}

	severity := SeverityMedium
	if estimate <= 0 {
		severity = SeverityCritical
	}

	return &Alert{
		Triggered: true,
		Severity:  severity,
		Message:   fmt.Sprintf("Low stock detected: %d units remaining", estimate),
		Origin:    OriginLowStock,
	}
}

// Merge picks the alert to attach when both rules fire. The more severe
// one wins; on a tie the threshold alert is kept.
func Merge(threshold, lowStock *Alert) *Alert {
	switch {
	case threshold == nil:
		return lowStock
	case lowStock == nil:
		return threshold
	case rank(lowStock.Severity) > rank(threshold.Severity):
		return lowStock
	default:
		return threshold
	}
}

func rank(s Severity) int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}
