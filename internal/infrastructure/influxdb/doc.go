// Package influxdb records numeric sensor readings and stock levels in
// InfluxDB v2 for dashboards and trend queries.
//
// The store of record for readings is the reading repository; this sink
// is best-effort. Points are batched by the client library and flushed
// on an interval or on Close.
//
// Measurements:
//
//	sensor_readings  tags: device_id, sensor_type, unit, warehouse, catalog_item_id
//	                 fields: value, alert_triggered
//	stock_levels     tags: catalog_item_id, source
//	                 fields: quantity
package influxdb
