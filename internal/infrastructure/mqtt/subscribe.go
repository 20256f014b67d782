package mqtt

import (
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// subackFailure is the SUBACK code a broker returns for a refused filter.
const subackFailure = 0x80

// pendingSubscription is a SUBSCRIBE whose SUBACK has not been checked yet.
type pendingSubscription struct {
	topic string
	token pahomqtt.Token
}

// subscribeResulter is implemented by paho's SubscribeToken.
type subscribeResulter interface {
	Result() map[string]byte
}

// Subscribe sends a SUBSCRIBE for topic at QoS 0 without waiting for the
// SUBACK. Messages are delivered to the handler set with OnMessage.
//
// The SUBACK is checked by a later Loop; a refusal sets LastError to
// ErrorFailedSubscription and is logged.
//
// Topics can include MQTT wildcards:
//   - + (single-level): "sensor/+/temp"
//   - # (multi-level): "sensor/#"
//
// Parameters:
//   - topic: The topic filter to subscribe to
//
// Returns:
//   - bool: true if the SUBSCRIBE was sent
func (c *Client) Subscribe(topic string) bool {
	if topic == "" {
		c.logWarn("MQTT subscribe rejected", "error", ErrInvalidTopic)
		return false
	}
	if !c.Connected() {
		return false
	}

	token := c.client.Subscribe(topic, 0, nil)
	c.pending = append(c.pending, pendingSubscription{topic: topic, token: token})
	return true
}

// pendingSubscriptions returns the number of SUBSCRIBEs awaiting a SUBACK.
func (c *Client) pendingSubscriptions() int {
	return len(c.pending)
}

// settleSubscriptions checks completed SUBSCRIBE tokens and keeps the rest.
func (c *Client) settleSubscriptions() {
	remaining := c.pending[:0]
	for _, sub := range c.pending {
		select {
		case <-sub.token.Done():
			if !subscriptionAccepted(sub) {
				c.lastError = ErrorFailedSubscription
				c.logWarn("MQTT subscription refused", "topic", sub.topic, "error", sub.token.Error())
			}
		default:
			remaining = append(remaining, sub)
		}
	}
	c.pending = remaining
}

func subscriptionAccepted(sub pendingSubscription) bool {
	if sub.token.Error() != nil {
		return false
	}
	if r, ok := sub.token.(subscribeResulter); ok {
		if code, found := r.Result()[sub.topic]; found && code == subackFailure {
			return false
		}
	}
	return true
}
