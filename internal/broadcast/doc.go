// Package broadcast distributes ingestion events to live observers.
//
// The Hub is an explicitly owned component: create it once, hand it to
// the ingestion pipeline (publisher) and to the WebSocket endpoint and MQTT
// mirror (subscribers).
//
//	hub := broadcast.NewHub(broadcast.Config{BufferSize: 256, Overflow: broadcast.DropOldest})
//	sub := hub.Subscribe(broadcast.Filter{Kinds: []broadcast.Kind{broadcast.KindAlertRaised}})
//	defer sub.Close()
//
//	for e := range sub.Events() {
//	    ...
//	}
//
// Delivery is best effort. Each subscriber has a bounded FIFO queue; when
// it fills, DropOldest discards the oldest queued event and Disconnect
// closes the subscription. Publish never waits for a subscriber.
package broadcast
