package mqtt

// Publish sends payload to topic at QoS 0, not retained.
//
// Delivery is fire-and-forget: the call never waits for the broker. The
// payload is copied, so the caller may reuse its buffer immediately.
//
// Parameters:
//   - topic: The topic to publish to (no wildcards)
//   - payload: The message payload, at most Options.BufferSize bytes
//
// Returns:
//   - bool: true if the message was handed to the connection
//
// Example:
//
//	ok := client.Publish("sensor/temp", []byte("21.500"))
func (c *Client) Publish(topic string, payload []byte) bool {
	if err := ValidatePublishTopic(topic); err != nil {
		c.logWarn("MQTT publish rejected", "topic", topic, "error", err)
		return false
	}
	if len(payload) > c.opts.BufferSize {
		c.lastError = ErrorBufferTooShort
		c.logWarn("MQTT publish rejected",
			"topic", topic,
			"error", ErrPayloadTooLarge,
			"size", len(payload),
			"limit", c.opts.BufferSize,
		)
		return false
	}
	if !c.Connected() {
		return false
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)

	token := c.client.Publish(topic, 0, false, buf)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			c.lastError = ErrorNetworkFailedWrite
			c.logWarn("MQTT publish failed", "topic", topic, "error", err)
			return false
		}
	default:
	}

	return true
}
