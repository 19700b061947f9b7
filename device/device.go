// Package device provides the read-only device directory: identity records
// for pre-provisioned field devices and class resolution from their free-text
// classification.
package device

import (
	"strings"
)

// Class identifies what kind of device a directory entry describes.
// The stored classification is free text; the class is derived from it by
// case-insensitive marker containment and resolved once at lookup time rather
// than re-derived at call sites.
type Class int

const (
	// ClassUnknown is a device whose classification matches no known marker
	ClassUnknown Class = iota
	// ClassGateway is a relay device monitored for link quality (RSSI)
	ClassGateway
	// ClassSensor is a temperature sensor
	ClassSensor
)

// Class markers searched for in the classification text. Gateway is checked
// first; a classification containing both markers resolves as gateway.
const (
	gatewayMarker = "GATEWAY"
	sensorMarker  = "TEMPERATURE"
)

// String returns the string representation of the class
func (c Class) String() string {
	switch c {
	case ClassGateway:
		return "gateway"
	case ClassSensor:
		return "sensor"
	default:
		return "unknown"
	}
}

// ClassFromInfo derives the device class from the free-text classification
func ClassFromInfo(info string) Class {
	upper := strings.ToUpper(info)
	if strings.Contains(upper, gatewayMarker) {
		return ClassGateway
	}
	if strings.Contains(upper, sensorMarker) {
		return ClassSensor
	}
	return ClassUnknown
}

// Device is a pre-provisioned device identity record. The pipeline only reads
// devices; creation and mutation happen out-of-band.
type Device struct {
	ID         int64  `json:"id"`
	MacAddress string `json:"mac_address"`
	InternalID int64  `json:"internal_id"`
	Info       string `json:"info"`
	Class      Class  `json:"-"`
}
