// Package inventory reconciles catalog stock against telemetry.
//
// Weight sensors report a shelf weight; the reconciler estimates the unit
// count and corrects stock when the estimate drifts past a dead-band. RFID
// gates report inbound and outbound scans that add or remove units. Every
// applied change is appended to the stock_movements ledger.
//
// Stock is never negative. All writes are compare-and-swap updates keyed by
// item ID, so reconciliations for the same item serialise on that item's
// quantity alone.
package inventory
