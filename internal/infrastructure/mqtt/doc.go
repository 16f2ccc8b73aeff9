// Package mqtt provides MQTT client connectivity for esplink.
//
// This package manages:
//   - Connection to the broker with auto-reconnect and clean sessions
//   - Message publishing with QoS acknowledgment
//   - Topic subscriptions, restored after every reconnect
//   - Last Will and Testament (LWT) on esplink/system/status
//
// # Architecture
//
// ESP8266 devices and esplink share three topics:
//
//	device  --telemetry-->  broker  -->  esplink   (sensor readings)
//	device  --status----->  broker  -->  esplink   (command acknowledgments)
//	esplink --control---->  broker  -->  device    (commands)
//
// The topic names come from configuration; see Topics.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().Status(), 1, handleStatus)
//	err = client.Publish(client.Topics().Control(), payload, 1, false)
package mqtt
