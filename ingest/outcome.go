package ingest

import (
	"net/http"
)

// Reason categorizes why a message was rejected.
type Reason string

const (
	// ReasonBadPayload is a malformed body or a missing required field
	ReasonBadPayload Reason = "bad_payload"
	// ReasonInvalidFormat is a present field that failed parsing or coercion
	ReasonInvalidFormat Reason = "invalid_format"
	// ReasonDeviceNotFound is an unregistered or misclassified sender
	ReasonDeviceNotFound Reason = "device_not_found"
)

// HTTPStatus maps the rejection reason to the status code the API surface
// responds with.
func (r Reason) HTTPStatus() int {
	if r == ReasonDeviceNotFound {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

// Rejection describes a structured rejection of a single message.
type Rejection struct {
	Reason Reason `json:"reason"`
	Field  string `json:"field,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Outcome is the terminal result of processing one message. Exactly one of
// Accepted or Rejection describes it: accepted outcomes carry the resolved
// device and the new record id, rejected outcomes carry the rejection.
type Outcome struct {
	IngestID  string       `json:"ingest_id"`
	Class     MessageClass `json:"-"`
	Accepted  bool         `json:"accepted"`
	DeviceID  int64        `json:"device_id,omitempty"`
	RecordID  int64        `json:"record_id,omitempty"`
	Rejection *Rejection   `json:"rejection,omitempty"`
}

func accepted(ingestID string, class MessageClass, deviceID, recordID int64) *Outcome {
	return &Outcome{
		IngestID: ingestID,
		Class:    class,
		Accepted: true,
		DeviceID: deviceID,
		RecordID: recordID,
	}
}

func rejected(ingestID string, class MessageClass, r *Rejection) *Outcome {
	return &Outcome{
		IngestID:  ingestID,
		Class:     class,
		Rejection: r,
	}
}
