package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementReadings = "sensor_readings"
	measurementStock    = "stock_levels"
)

// Sample is one numeric reading destined for the time-series store.
// Tags are low-cardinality dimensions; Value is the only field besides
// the alert flag.
type Sample struct {
	DeviceID       string
	Kind           string
	Unit           string
	Warehouse      string
	CatalogItemID  string
	Value          float64
	AlertTriggered bool
	At             time.Time
}

// readingPoint converts s into a line-protocol point. Empty tags are
// omitted.
func readingPoint(s Sample) *write.Point {
	tags := map[string]string{
		"device_id":   s.DeviceID,
		"sensor_type": s.Kind,
	}
	for k, v := range map[string]string{
		"unit":            s.Unit,
		"warehouse":       s.Warehouse,
		"catalog_item_id": s.CatalogItemID,
	} {
		if v != "" {
			tags[k] = v
		}
	}

	return write.NewPoint(measurementReadings, tags, map[string]any{
		"value":           s.Value,
		"alert_triggered": s.AlertTriggered,
	}, s.At)
}

func stockPoint(itemID string, quantity int, source string, at time.Time) *write.Point {
	return write.NewPoint(measurementStock,
		map[string]string{"catalog_item_id": itemID, "source": source},
		map[string]any{"quantity": quantity},
		at)
}

// WriteReading queues a numeric reading. Dropped silently when the
// client is closed.
//
//	client.WriteReading(influxdb.Sample{DeviceID: "TEMP_001", Kind: "temperature", Value: 21.5, At: now})
func (c *Client) WriteReading(s Sample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(readingPoint(s))
	c.queued.Add(1)
}

// WriteStockLevel queues the stock quantity of a catalog item after a
// reconciliation.
func (c *Client) WriteStockLevel(itemID string, quantity int, source string, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(stockPoint(itemID, quantity, source, at))
	c.queued.Add(1)
}
