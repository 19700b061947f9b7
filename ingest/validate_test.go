package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateGateway(t *testing.T) {
	v := NewValidator()

	reading, rej := v.ValidateGateway(map[string]any{
		"macAddress": "AA:BB",
		"timestamp":  "2024-01-01 10:00:00",
		"rssi":       float64(-70),
	})
	require.Nil(t, rej)
	assert.Equal(t, "AA:BB", reading.MacAddress)
	assert.Equal(t, -70, reading.RSSI)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), reading.Timestamp)
}

func TestValidateGateway_Rejections(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name   string
		body   map[string]any
		reason Reason
		field  string
	}{
		{
			"missing macAddress",
			map[string]any{"timestamp": "2024-01-01 10:00:00", "rssi": float64(1)},
			ReasonBadPayload, "macAddress",
		},
		{
			"non-string macAddress",
			map[string]any{"macAddress": float64(12), "timestamp": "2024-01-01 10:00:00", "rssi": float64(1)},
			ReasonBadPayload, "macAddress",
		},
		{
			"missing timestamp",
			map[string]any{"macAddress": "AA:BB", "rssi": float64(1)},
			ReasonBadPayload, "timestamp",
		},
		{
			"bad timestamp format",
			map[string]any{"macAddress": "AA:BB", "timestamp": "01/01/2024", "rssi": float64(1)},
			ReasonInvalidFormat, "timestamp",
		},
		{
			"missing rssi",
			map[string]any{"macAddress": "AA:BB", "timestamp": "2024-01-01 10:00:00"},
			ReasonBadPayload, "rssi",
		},
		{
			"non-numeric rssi",
			map[string]any{"macAddress": "AA:BB", "timestamp": "2024-01-01 10:00:00", "rssi": "strong"},
			ReasonInvalidFormat, "rssi",
		},
		{
			"fractional rssi",
			map[string]any{"macAddress": "AA:BB", "timestamp": "2024-01-01 10:00:00", "rssi": 1.5},
			ReasonInvalidFormat, "rssi",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, rej := v.ValidateGateway(test.body)
			require.NotNil(t, rej)
			assert.Equal(t, test.reason, rej.Reason)
			assert.Equal(t, test.field, rej.Field)
		})
	}
}

func TestValidateGateway_NumericStringRSSI(t *testing.T) {
	v := NewValidator()

	reading, rej := v.ValidateGateway(map[string]any{
		"macAddress": "AA:BB",
		"timestamp":  "2024-01-01 10:00:00",
		"rssi":       "-70",
	})
	require.Nil(t, rej)
	assert.Equal(t, -70, reading.RSSI)
}

func TestValidateSensor(t *testing.T) {
	v := NewValidator()

	reading, rej := v.ValidateSensor(map[string]any{
		"macAddress":  "CC:DD",
		"timestamp":   "2024-06-15 08:30:00",
		"temperature": 21.375,
	})
	require.Nil(t, rej)
	assert.Equal(t, "CC:DD", reading.MacAddress)
	assert.Equal(t, 21.375, reading.Temperature)
}

func TestValidateSensor_NumericStringTemperature(t *testing.T) {
	v := NewValidator()

	reading, rej := v.ValidateSensor(map[string]any{
		"macAddress":  "CC:DD",
		"timestamp":   "2024-06-15 08:30:00",
		"temperature": "21.375",
	})
	require.Nil(t, rej)
	assert.Equal(t, 21.375, reading.Temperature)
}

func TestValidateSensor_Rejections(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name   string
		body   map[string]any
		reason Reason
		field  string
	}{
		{
			"missing temperature",
			map[string]any{"macAddress": "CC:DD", "timestamp": "2024-06-15 08:30:00"},
			ReasonBadPayload, "temperature",
		},
		{
			"non-numeric temperature",
			map[string]any{"macAddress": "CC:DD", "timestamp": "2024-06-15 08:30:00", "temperature": "warm"},
			ReasonInvalidFormat, "temperature",
		},
		{
			"boolean temperature",
			map[string]any{"macAddress": "CC:DD", "timestamp": "2024-06-15 08:30:00", "temperature": true},
			ReasonInvalidFormat, "temperature",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, rej := v.ValidateSensor(test.body)
			require.NotNil(t, rej)
			assert.Equal(t, test.reason, rej.Reason)
			assert.Equal(t, test.field, rej.Field)
		})
	}
}

func TestReasonHTTPStatus(t *testing.T) {
	assert.Equal(t, 400, ReasonBadPayload.HTTPStatus())
	assert.Equal(t, 400, ReasonInvalidFormat.HTTPStatus())
	assert.Equal(t, 404, ReasonDeviceNotFound.HTTPStatus())
}
