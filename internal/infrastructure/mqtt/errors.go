package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrEndpointNotBound is returned when Connect is attempted before Begin.
	ErrEndpointNotBound = errors.New("mqtt: broker endpoint not bound")

	// ErrConnectionFailed is returned when a connect attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrInvalidTopic is returned when an empty or invalid topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrWildcardTopic is returned when publishing to a topic filter.
	ErrWildcardTopic = errors.New("mqtt: cannot publish to a wildcard topic")

	// ErrPayloadTooLarge is returned when a payload exceeds the buffer size.
	ErrPayloadTooLarge = errors.New("mqtt: payload exceeds buffer size")
)
