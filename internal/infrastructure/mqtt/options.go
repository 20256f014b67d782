package mqtt

import (
	"fmt"
	"net"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	// defaultConnectTimeout bounds a single connect attempt when Options
	// does not set one.
	defaultConnectTimeout = 2 * time.Second

	// defaultKeepAlive is the keepalive interval used until SetKeepAlive.
	defaultKeepAlive = 30 * time.Second

	// defaultBufferSize is the largest accepted payload in bytes.
	defaultBufferSize = 512

	// defaultInboundQueue is the capacity of the inbound message queue.
	defaultInboundQueue = 64

	// defaultMaxDispatch bounds messages handed to the handler per Loop.
	defaultMaxDispatch = 8

	// defaultStatusTimeout bounds the wait for the graceful offline publish.
	defaultStatusTimeout = 250 * time.Millisecond

	// defaultDisconnectQuiesce is the time (ms) paho may spend flushing
	// pending work on disconnect.
	defaultDisconnectQuiesce = 100
)

// buildClientOptions creates paho options for one connect attempt.
//
// This configures:
//   - Broker URL (tcp://host:port)
//   - Client ID and optional credentials
//   - Clean session mode
//   - Keepalive and connect timeout
//
// Library-side reconnection is disabled: the session manager owns the
// reconnect policy and replays subscriptions itself.
func buildClientOptions(host string, port int, clientID, username, password string, keepAlive, connectTimeout time.Duration) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker("tcp://" + net.JoinHostPort(host, strconv.Itoa(port)))
	opts.SetClientID(clientID)

	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)

	return opts
}

// configureLWT sets up Last Will and Testament for offline detection.
//
// The broker publishes the will if the device drops without a clean
// disconnect (power loss, network failure).
//
// Topic: iotlink/<device>/status
// QoS: 1
// Retained: true (new subscribers see last status)
func configureLWT(opts *pahomqtt.ClientOptions, topic, clientID string) {
	opts.SetWill(topic, buildStatusPayload(clientID, "offline", "unexpected_disconnect"), 1, true)
}

// buildStatusPayload creates the JSON payload for status messages.
// An empty reason is omitted.
func buildStatusPayload(clientID, status, reason string) string {
	if reason == "" {
		return fmt.Sprintf(
			`{"status":%q,"client_id":%q,"timestamp":%q}`,
			status, clientID, time.Now().UTC().Format(time.RFC3339),
		)
	}
	return fmt.Sprintf(
		`{"status":%q,"client_id":%q,"reason":%q,"timestamp":%q}`,
		status, clientID, reason, time.Now().UTC().Format(time.RFC3339),
	)
}
