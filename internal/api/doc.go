// Package api serves the telemetry core over HTTP and WebSocket.
//
// Routes:
//
//	POST  /api/v1/readings               ingest one submission
//	GET   /api/v1/readings               query readings (device_id, catalog_item_id, alert, from, to, limit)
//	GET   /api/v1/readings/{id}
//	GET   /api/v1/devices                list (kind, warehouse)
//	GET   /api/v1/devices/{id}
//	PATCH /api/v1/devices/{id}/status    status, is_online, battery_level
//	GET   /api/v1/items/{id}             stock record
//	GET   /api/v1/items/{id}/movements   stock ledger
//	GET   /api/v1/health
//	GET   /api/v1/stats
//	GET   /ws                            live events
//
// Errors are JSON {status, code, message}. Ingestion errors map to 400
// (invalid), 404 (unknown device), 503 (store failure) and 504 (timeout).
//
// # WebSocket
//
// A client sends
//
//	{"type": "subscribe", "id": "1", "payload": {"kinds": ["alert.raised"], "devices": ["TEMP_001"]}}
//
// and then receives {"type": "event", "event_type": "alert.raised", "payload": {...}}
// for matching events. Each connection owns one broadcast subscription, so
// a slow client loses its own oldest events without slowing anyone else.
package api
