// Package device provides the Device Registry for the storefront telemetry core.
//
// The registry is the catalogue of physical sensors (scales, RFID gates,
// environment probes, cameras, barcode scanners) deployed across
// warehouses. Devices are provisioned elsewhere; this package reads them,
// tracks their online state and keeps the denormalised last-reading
// snapshot that dashboards display.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────┐
//	│                      Device Registry                       │
//	│                                                            │
//	│  ┌────────────────┐    ┌────────────────┐  ┌────────────┐ │
//	│  │    Registry    │───▶│   Repository   │  │ Validation │ │
//	│  │ (registry.go)  │    │(repository.go) │  │            │ │
//	│  │ • cache        │    │ • SQLite       │  │ • kind     │ │
//	│  │ • device locks │    │ • atomic UPDATE│  │ • battery  │ │
//	│  └────────────────┘    └────────────────┘  └────────────┘ │
//	└───────────────────────────────────────────────────────────┘
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	// Called by ingestion after a reading is stored
//	dev, err := registry.RecordReading(ctx, id, device.LastReading{
//	    Value: sensor.Number(4.2), Unit: "C", Timestamp: now,
//	})
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Lookups are served from an
// RWMutex-protected cache of deep copies. Writes for one device are
// serialised by a striped lock; writes for different devices do not block
// each other.
package device
