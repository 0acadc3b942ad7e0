// Package ingestion turns raw device submissions into stored, annotated
// readings.
//
// A submission arrives over HTTP (internal/api) or MQTT (Subscriber) and
// passes through Pipeline.Ingest:
//
//  1. validate: resolve the device, default the sensor type, coerce the
//     value, normalise metadata and resolve the catalog item
//  2. evaluate the threshold alert and reconcile inventory concurrently
//  3. persist the reading, then record it on the device; a device failure
//     deletes the stored reading again
//  4. mark the reading processed when reconciliation ran
//  5. publish reading.ingested, alert.raised and stock.changed events and
//     write time-series points
//
// Stage 3 is the only part that can reject a submission after
// validation. Reconciliation and broadcast failures are logged.
package ingestion
