package mqtt

import "strings"

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "ethernetip"

// Topic suffixes below the configured prefix.
const (
	suffixData   = "data"
	suffixStatus = "status"
	suffixHealth = "health"
)

// Topics builds the bridge's MQTT topics from the configured prefix.
//
//	topics := mqtt.NewTopics("plant/line1")
//	topics.Data()   // "plant/line1/data"
//	topics.Status() // "plant/line1/status"
type Topics struct {
	prefix string
}

// NewTopics returns a topic builder for prefix.
// Surrounding slashes are trimmed; an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the normalised topic prefix.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// Data returns the topic telemetry envelopes are published to.
//
// Example: ethernetip/data
func (t Topics) Data() string {
	return t.Prefix() + "/" + suffixData
}

// Status returns the retained online/offline status topic (also the LWT topic).
//
// Example: ethernetip/status
func (t Topics) Status() string {
	return t.Prefix() + "/" + suffixStatus
}

// Health returns the retained health report topic.
//
// Example: ethernetip/health
func (t Topics) Health() string {
	return t.Prefix() + "/" + suffixHealth
}
