package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the base for all topics owned by the agent itself.
// Application topics (subscriptions and telemetry) are chosen by the
// operator and are not prefixed.
const TopicPrefix = "iotlink"

// Topics provides builders for agent-owned MQTT topics.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.DeviceStatus("greenhouse-01")
//	// Returns: "iotlink/greenhouse-01/status"
type Topics struct{}

// DeviceStatus returns the retained online/offline status topic, which is
// also the Last Will topic.
//
// Example: iotlink/greenhouse-01/status
func (Topics) DeviceStatus(device string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefix, device)
}

// ValidatePublishTopic checks that topic can be published to.
//
// Returns:
//   - error: ErrInvalidTopic for an empty topic, ErrWildcardTopic when the
//     topic contains '+' or '#'
func ValidatePublishTopic(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q", ErrWildcardTopic, topic)
	}
	return nil
}
