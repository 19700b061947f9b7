package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	c := NewClassifier("/readings/gateway/#", "/readings/temperature/#")

	tests := []struct {
		name  string
		topic string
		want  MessageClass
	}{
		{"gateway topic", "/readings/gateway/AA:BB", MessageGateway},
		{"temperature topic", "/readings/temperature/CC:DD", MessageSensor},
		{"deep gateway topic", "/readings/gateway/site1/AA:BB", MessageGateway},
		{"unrelated topic", "/commands/gateway", MessageUnrecognized},
		{"bare base", "/readings", MessageUnrecognized},
		{"empty topic", "", MessageUnrecognized},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, c.Classify(test.topic))
		})
	}
}

func TestClassify_GatewayWinsOverlap(t *testing.T) {
	// Filters that textually overlap: the gateway check runs first
	c := NewClassifier("/readings/#", "/readings/temperature/#")
	assert.Equal(t, MessageGateway, c.Classify("/readings/temperature/CC:DD"))
}

func TestClassify_NoWildcard(t *testing.T) {
	c := NewClassifier("/readings/gateway/", "/readings/temperature/")
	assert.Equal(t, MessageGateway, c.Classify("/readings/gateway/AA:BB"))
}

func TestMessageClassString(t *testing.T) {
	assert.Equal(t, "gateway", MessageGateway.String())
	assert.Equal(t, "sensor", MessageSensor.String())
	assert.Equal(t, "unrecognized", MessageUnrecognized.String())
}
