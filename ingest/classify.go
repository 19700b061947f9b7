// Package ingest normalizes inbound telemetry messages into stored readings.
// It classifies messages by topic, validates and coerces payload fields, and
// resolves the sending device before appending to the reading store. Every
// processed message terminates in a structured Outcome; only storage faults
// escape as errors.
package ingest

import (
	"strings"
)

// MessageClass identifies which reading family a message belongs to.
type MessageClass int

const (
	// MessageUnrecognized is a message on a topic outside the known hierarchy
	MessageUnrecognized MessageClass = iota
	// MessageGateway is a gateway link-quality reading
	MessageGateway
	// MessageSensor is a temperature sensor reading
	MessageSensor
)

// String returns the string representation of the message class
func (c MessageClass) String() string {
	switch c {
	case MessageGateway:
		return "gateway"
	case MessageSensor:
		return "sensor"
	default:
		return "unrecognized"
	}
}

// Classifier maps topics to message classes by prefix containment. Prefixes
// come from the configured subscription filters with the MQTT multi-level
// wildcard stripped.
type Classifier struct {
	gatewayPrefix     string
	temperaturePrefix string
}

// NewClassifier builds a classifier from the configured topic filters.
// A trailing "#" wildcard on either filter is removed before matching.
func NewClassifier(gatewayTopic, temperatureTopic string) *Classifier {
	return &Classifier{
		gatewayPrefix:     strings.TrimSuffix(gatewayTopic, "#"),
		temperaturePrefix: strings.TrimSuffix(temperatureTopic, "#"),
	}
}

// Classify determines the message class for a delivery topic. The gateway
// prefix is checked first: a topic matching both filters classifies as
// gateway.
func (c *Classifier) Classify(topic string) MessageClass {
	if c.gatewayPrefix != "" && strings.Contains(topic, c.gatewayPrefix) {
		return MessageGateway
	}
	if c.temperaturePrefix != "" && strings.Contains(topic, c.temperaturePrefix) {
		return MessageSensor
	}
	return MessageUnrecognized
}
