// Package reading defines the Reading record and the Readings Store.
//
// A Reading is immutable once stored except for its processed flag, which
// moves from false to true exactly once. Two stores implement Repository:
// SQLiteRepository (default) and MongoRepository.
//
// Metadata is a structured variant rather than a free-form map: RFID
// scans, weight samples and environmental co-readings have typed shapes,
// and unknown keys are preserved in Metadata.Extra. The JSON form stays a
// flat object so existing device firmware and dashboards keep working.
package reading
