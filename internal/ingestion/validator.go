package ingestion

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/nerrad567/storefront-telemetry/internal/device"
	"github.com/nerrad567/storefront-telemetry/internal/reading"
	"github.com/nerrad567/storefront-telemetry/internal/sensor"
)

// validate resolves the submission's device and builds the canonical
// reading. The reading gets its ID here so reconciliation can reference
// it; CreatedAt is assigned at persist time.
func (p *Pipeline) validate(ctx context.Context, sub Submission) (*reading.Reading, *device.Device, error) {
	if sub.DeviceID == "" {
		return nil, nil, fmt.Errorf("%w: device_id is required", ErrInvalidSubmission)
	}
	if sub.Value == nil {
		return nil, nil, fmt.Errorf("%w: value is required", ErrInvalidSubmission)
	}
	if sub.SensorType != "" && !sub.SensorType.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown sensor_type %q", ErrInvalidSubmission, sub.SensorType)
	}

	opCtx, cancel := p.opContext(ctx)
	dev, err := p.devices.GetDevice(opCtx, sub.DeviceID)
	cancel()
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnknownDevice, sub.DeviceID)
		}
		return nil, nil, classify("resolving device", err)
	}

	kind := sub.SensorType
	if kind == "" {
		kind = dev.Kind
	} else if kind != dev.Kind {
		p.logger.Debug("sensor type differs from device kind",
			"device_id", dev.ID, "sensor_type", kind, "device_kind", dev.Kind)
	}

	value := sensor.Coerce(kind, *sub.Value)
	if f, ok := value.Float(); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return nil, nil, fmt.Errorf("%w: value %q is not a finite number", ErrInvalidSubmission, value.String())
	}

	rd := &reading.Reading{
		ID:            uuid.NewString(),
		DeviceID:      dev.ID,
		SensorKind:    kind,
		CatalogItemID: resolveItem(sub.CatalogItemID, dev.CatalogItemID),
		Value:         value,
		Unit:          sub.Unit,
		Location:      dev.Location,
		Metadata:      reading.ParseMetadata(kind, sub.Metadata),
	}
	if rd.Location.Coordinates != nil {
		c := *rd.Location.Coordinates
		rd.Location.Coordinates = &c
	}

	return rd, dev, nil
}

// resolveItem picks the submitted item, else the device's item, else none.
func resolveItem(submitted, fromDevice *string) *string {
	for _, id := range []*string{submitted, fromDevice} {
		if id != nil && *id != "" {
			v := *id
			return &v
		}
	}
	return nil
}
