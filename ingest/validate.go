package ingest

import (
	"math"
	"strconv"
	"time"

	"github.com/c360/meshtel/pkg/walltime"
)

// GatewayReading is a validated gateway message, ready to persist.
type GatewayReading struct {
	MacAddress string
	Timestamp  time.Time
	RSSI       int
}

// SensorReading is a validated temperature message, ready to persist.
type SensorReading struct {
	MacAddress  string
	Timestamp   time.Time
	Temperature float64
}

// Validator checks decoded message bodies field by field and coerces them
// into typed readings. The raw map never travels past validation.
type Validator struct{}

// NewValidator creates a validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateGateway validates a gateway message body. Field order matters for
// the reported rejection: macAddress, then timestamp, then rssi.
func (v *Validator) ValidateGateway(body map[string]any) (GatewayReading, *Rejection) {
	mac, rej := v.macAddress(body)
	if rej != nil {
		return GatewayReading{}, rej
	}
	ts, rej := v.timestamp(body)
	if rej != nil {
		return GatewayReading{}, rej
	}
	rssi, rej := v.intField(body, "rssi")
	if rej != nil {
		return GatewayReading{}, rej
	}
	return GatewayReading{MacAddress: mac, Timestamp: ts, RSSI: rssi}, nil
}

// ValidateSensor validates a temperature message body.
func (v *Validator) ValidateSensor(body map[string]any) (SensorReading, *Rejection) {
	mac, rej := v.macAddress(body)
	if rej != nil {
		return SensorReading{}, rej
	}
	ts, rej := v.timestamp(body)
	if rej != nil {
		return SensorReading{}, rej
	}
	temp, rej := v.floatField(body, "temperature")
	if rej != nil {
		return SensorReading{}, rej
	}
	return SensorReading{MacAddress: mac, Timestamp: ts, Temperature: temp}, nil
}

func (v *Validator) macAddress(body map[string]any) (string, *Rejection) {
	raw, ok := body["macAddress"]
	if !ok {
		return "", &Rejection{Reason: ReasonBadPayload, Field: "macAddress", Detail: "required field missing"}
	}
	mac, ok := raw.(string)
	if !ok || mac == "" {
		return "", &Rejection{Reason: ReasonBadPayload, Field: "macAddress", Detail: "must be a non-empty string"}
	}
	return mac, nil
}

func (v *Validator) timestamp(body map[string]any) (time.Time, *Rejection) {
	raw, ok := body["timestamp"]
	if !ok {
		return time.Time{}, &Rejection{Reason: ReasonBadPayload, Field: "timestamp", Detail: "required field missing"}
	}
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, &Rejection{Reason: ReasonInvalidFormat, Field: "timestamp", Detail: "must be a string"}
	}
	ts, err := walltime.Parse(s)
	if err != nil {
		return time.Time{}, &Rejection{Reason: ReasonInvalidFormat, Field: "timestamp", Detail: err.Error()}
	}
	return ts, nil
}

// intField coerces a JSON number or numeric string to int. Decoded JSON
// numbers arrive as float64; a fractional value is rejected rather than
// truncated.
func (v *Validator) intField(body map[string]any, field string) (int, *Rejection) {
	raw, ok := body[field]
	if !ok {
		return 0, &Rejection{Reason: ReasonBadPayload, Field: field, Detail: "required field missing"}
	}
	switch val := raw.(type) {
	case float64:
		if val != math.Trunc(val) {
			return 0, &Rejection{Reason: ReasonInvalidFormat, Field: field, Detail: "must be an integer"}
		}
		return int(val), nil
	case string:
		n, err := strconv.Atoi(val)
		if err != nil {
			return 0, &Rejection{Reason: ReasonInvalidFormat, Field: field, Detail: "not a valid integer"}
		}
		return n, nil
	default:
		return 0, &Rejection{Reason: ReasonInvalidFormat, Field: field, Detail: "must be a number"}
	}
}

// floatField coerces a JSON number or numeric string to float64.
func (v *Validator) floatField(body map[string]any, field string) (float64, *Rejection) {
	raw, ok := body[field]
	if !ok {
		return 0, &Rejection{Reason: ReasonBadPayload, Field: field, Detail: "required field missing"}
	}
	switch val := raw.(type) {
	case float64:
		return val, nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, &Rejection{Reason: ReasonInvalidFormat, Field: field, Detail: "not a valid number"}
		}
		return f, nil
	default:
		return 0, &Rejection{Reason: ReasonInvalidFormat, Field: field, Detail: "must be a number"}
	}
}
