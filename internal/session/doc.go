// Package session manages the single message-broker session of the device.
//
// A Manager layers an MQTT session on top of network association:
//
//   - Start (association hook) binds the broker endpoint and attempts the
//     first connect.
//   - Step (poll dispatcher) services broker I/O while connected, detects
//     drops lazily and retries at most once per reconnect interval after a
//     failure.
//   - Every successful connect subscribes each topic of the frozen
//     subscription set, in insertion order, duplicates included.
//   - ForceDisconnect holds the session down until ForceReconnect, which
//     makes one immediate attempt regardless of the throttle.
//
// Publishes are best-effort: without a configured, associated and
// connected session they return silently.
//
// The Manager is not safe for concurrent use; it is owned by the control
// goroutine (see package node).
package session
