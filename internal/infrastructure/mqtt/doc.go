// Package mqtt connects the telemetry core to an MQTT broker.
//
// Devices that cannot call the HTTP API publish JSON submissions to
// storefront/telemetry/{device_id}. The ingestion subscriber consumes
// them through this client, and the broadcast mirror publishes events to
// storefront/events/{kind}.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllTelemetry(), 1, handler)
package mqtt
