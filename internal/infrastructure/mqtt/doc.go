// Package mqtt provides the broker client boundary for iotlink.
//
// It wraps github.com/eclipse/paho.mqtt.golang behind a small, poll-driven
// surface: the session manager binds an endpoint, performs single connect
// attempts, sends subscriptions and publishes, and calls Loop once per
// dispatcher step. paho's own goroutines never touch session state; they
// only enqueue messages and connection-loss events for Loop to drain.
//
// # Reconnection
//
// paho's auto-reconnect and connect-retry are disabled. The session manager
// owns the reconnect throttle and replays subscriptions after every
// successful connect.
//
// # Diagnostics
//
// Every connect attempt records a ReturnCode (CONNACK) and an ErrorCode
// (client failure class). Both are read-only and exposed through the admin
// status endpoint.
//
// # Status topic
//
// When Options.StatusTopic is set (iotlink/<device>/status), the client
// configures a retained Last Will, publishes a retained "online" message
// after connecting and a graceful "offline" message on Disconnect.
//
// # Usage
//
//	client := mqtt.New(mqtt.Options{StatusTopic: mqtt.Topics{}.DeviceStatus("greenhouse-01")})
//	client.Begin("broker.local", 1883)
//	if client.Connect("greenhouse-01", "user", "pass") {
//	    client.Subscribe("sensor/cmd")
//	}
//	for {
//	    client.Loop()
//	}
package mqtt
