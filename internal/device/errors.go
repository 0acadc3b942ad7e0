package device

import "errors"

var (
	ErrDeviceNotFound = errors.New("device: not found")
	ErrDeviceExists   = errors.New("device: already exists")
)

// Validation failures. All of them satisfy IsValidation.
var (
	ErrInvalidDevice     = errors.New("device: invalid")
	ErrInvalidName       = errors.New("device: invalid name")
	ErrInvalidKind       = errors.New("device: invalid kind")
	ErrInvalidStatus     = errors.New("device: invalid status")
	ErrInvalidBattery    = errors.New("device: battery level outside 0-100")
	ErrInvalidThresholds = errors.New("device: threshold min above max")
)

var validationErrors = []error{
	ErrInvalidDevice, ErrInvalidName, ErrInvalidKind,
	ErrInvalidStatus, ErrInvalidBattery, ErrInvalidThresholds,
}

// IsValidation reports whether err is one of the ErrInvalid* values,
// i.e. the caller sent bad input rather than the store failing.
func IsValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
