package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nerrad567/storefront-telemetry/internal/sensor"
)

// Validation constants.
const (
	maxNameLength = 100
	maxIDLength   = 128
)

// Pre-computed validation set for O(1) status lookups.
var validStatuses map[Status]struct{}

func init() {
	validStatuses = make(map[Status]struct{}, len(AllStatuses()))
	for _, s := range AllStatuses() {
		validStatuses[s] = struct{}{}
	}
}

// ValidateDevice performs validation on a device before it is stored.
// Returns an error describing the first validation failure found.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}

	if len(d.ID) > maxIDLength {
		return fmt.Errorf("%w: id exceeds %d characters", ErrInvalidDevice, maxIDLength)
	}

	if err := ValidateName(d.Name); err != nil {
		return err
	}

	if err := ValidateKind(d.Kind); err != nil {
		return err
	}

	if err := ValidateStatus(d.Status); err != nil {
		return err
	}

	if err := ValidateBattery(d.BatteryLevel); err != nil {
		return err
	}

	return ValidateThresholds(d.Thresholds)
}

// ValidateName checks that a name is non-empty and within length limits.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(trimmed) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateKind checks that a sensor kind is recognised.
func ValidateKind(k sensor.Kind) error {
	if !k.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, k)
	}
	return nil
}

// ValidateStatus checks that a status is recognised.
func ValidateStatus(s Status) error {
	if _, ok := validStatuses[s]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return nil
}

// ValidateBattery checks an optional battery percentage.
func ValidateBattery(level *int) error {
	if level == nil {
		return nil
	}
	if *level < 0 || *level > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidBattery, *level)
	}
	return nil
}

// ValidateThresholds checks that min does not exceed max when both are set.
func ValidateThresholds(th *Thresholds) error {
	if th == nil || th.Min == nil || th.Max == nil {
		return nil
	}
	if *th.Min > *th.Max {
		return fmt.Errorf("%w: min %g is greater than max %g", ErrInvalidThresholds, *th.Min, *th.Max)
	}
	return nil
}

// ValidateStatusUpdate checks the fields present in a partial update.
func ValidateStatusUpdate(u StatusUpdate) error {
	if u.Empty() {
		return fmt.Errorf("%w: no fields to update", ErrInvalidDevice)
	}
	if u.Status != nil {
		if err := ValidateStatus(*u.Status); err != nil {
			return err
		}
	}
	return ValidateBattery(u.BatteryLevel)
}

// GenerateID creates a new unique device ID.
func GenerateID() string {
	return uuid.New().String()
}
