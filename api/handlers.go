package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/c360/meshtel/device"
	mterrors "github.com/c360/meshtel/errors"
	"github.com/c360/meshtel/ingest"
	"github.com/c360/meshtel/pkg/walltime"
	"github.com/c360/meshtel/store"
)

// gatewayReadingJSON is the wire shape of one gateway reading
type gatewayReadingJSON struct {
	ID        int64  `json:"id"`
	GatewayID int64  `json:"gatewayId"`
	Timestamp string `json:"timestamp"`
	RSSI      int    `json:"rssi"`
}

// sensorReadingJSON is the wire shape of one temperature reading
type sensorReadingJSON struct {
	ID          int64   `json:"id"`
	DeviceID    int64   `json:"deviceId"`
	Timestamp   string  `json:"timestamp"`
	Temperature float64 `json:"temperature"`
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"statusCode": code, "error": msg})
}

// decodeBody enforces the JSON content type before reading the body. A wrong
// content type is rejected up front, without touching the pipeline.
func decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	ct := r.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
		writeError(w, http.StatusBadRequest, "Content-Type must be application/json")
		return nil, false
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not a JSON object")
		return nil, false
	}
	return body, true
}

func (s *Server) submitGateway(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody(w, r)
	if !ok {
		return
	}

	outcome, err := s.pipeline.IngestAPI(r.Context(), ingest.MessageGateway, body)
	if err != nil {
		s.logger.Error("gateway submission failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "reading store unavailable")
		return
	}
	if !outcome.Accepted {
		writeError(w, outcome.Rejection.Reason.HTTPStatus(), rejectionMessage(outcome.Rejection))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"statusCode": http.StatusOK,
		"gatewayId":  outcome.DeviceID,
		"readingId":  outcome.RecordID,
	})
}

func (s *Server) submitSensor(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody(w, r)
	if !ok {
		return
	}

	outcome, err := s.pipeline.IngestAPI(r.Context(), ingest.MessageSensor, body)
	if err != nil {
		s.logger.Error("temperature submission failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "reading store unavailable")
		return
	}
	if !outcome.Accepted {
		writeError(w, outcome.Rejection.Reason.HTTPStatus(), rejectionMessage(outcome.Rejection))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"statusCode": http.StatusOK,
		"deviceId":   outcome.DeviceID,
		"readingId":  outcome.RecordID,
	})
}

func rejectionMessage(rej *ingest.Rejection) string {
	if rej.Field == "" {
		return rej.Detail
	}
	if rej.Reason == ingest.ReasonDeviceNotFound {
		return "device not found: " + rej.Detail
	}
	return rej.Field + ": " + rej.Detail
}

// parseRange reads the optional readingsFrom / readingsTo query parameters
func parseRange(r *http.Request) (store.TimeRange, string, error) {
	var tr store.TimeRange

	if from := r.URL.Query().Get("readingsFrom"); from != "" {
		ts, err := walltime.Parse(from)
		if err != nil {
			return tr, "readingsFrom", err
		}
		tr.From = ts
	}
	if to := r.URL.Query().Get("readingsTo"); to != "" {
		ts, err := walltime.Parse(to)
		if err != nil {
			return tr, "readingsTo", err
		}
		tr.To = ts
	}
	return tr, "", nil
}

// resolveQueryDevice handles the shared macAddress lookup for the query
// endpoints; it writes the error response and returns false on failure.
func (s *Server) resolveQueryDevice(w http.ResponseWriter, r *http.Request, want device.Class) (int64, store.TimeRange, bool) {
	mac := r.URL.Query().Get("macAddress")
	if mac == "" {
		writeError(w, http.StatusBadRequest, "macAddress query parameter is required")
		return 0, store.TimeRange{}, false
	}

	tr, field, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, field+": "+err.Error())
		return 0, store.TimeRange{}, false
	}

	dev, err := s.directory.Resolve(r.Context(), mac, want)
	if err != nil {
		if errors.Is(err, mterrors.ErrDeviceNotFound) {
			writeError(w, http.StatusNotFound, "device not found: "+mac)
		} else {
			s.logger.Error("device lookup failed", "mac", mac, "error", err)
			writeError(w, http.StatusServiceUnavailable, "reading store unavailable")
		}
		return 0, store.TimeRange{}, false
	}

	return dev.ID, tr, true
}

func (s *Server) queryGateway(w http.ResponseWriter, r *http.Request) {
	deviceID, tr, ok := s.resolveQueryDevice(w, r, device.ClassGateway)
	if !ok {
		return
	}

	readings, err := s.store.GatewayReadings(r.Context(), deviceID, tr)
	if err != nil {
		s.logger.Error("gateway reading query failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "reading store unavailable")
		return
	}

	out := make([]gatewayReadingJSON, 0, len(readings))
	for _, reading := range readings {
		out = append(out, gatewayReadingJSON{
			ID:        reading.ID,
			GatewayID: reading.GatewayID,
			Timestamp: walltime.Format(reading.Timestamp),
			RSSI:      reading.RSSI,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"statusCode": http.StatusOK,
		"gatewayId":  deviceID,
		"readings":   out,
	})
}

func (s *Server) querySensor(w http.ResponseWriter, r *http.Request) {
	deviceID, tr, ok := s.resolveQueryDevice(w, r, device.ClassSensor)
	if !ok {
		return
	}

	readings, err := s.store.SensorReadings(r.Context(), deviceID, tr)
	if err != nil {
		s.logger.Error("temperature reading query failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "reading store unavailable")
		return
	}

	out := make([]sensorReadingJSON, 0, len(readings))
	for _, reading := range readings {
		out = append(out, sensorReadingJSON{
			ID:          reading.ID,
			DeviceID:    reading.DeviceID,
			Timestamp:   walltime.Format(reading.Timestamp),
			Temperature: reading.Temperature,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"statusCode": http.StatusOK,
		"deviceId":   deviceID,
		"readings":   out,
	})
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	var internalIDs []int64
	if raw := r.URL.Query().Get("internal_id"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "internal_id: not a valid integer: "+part)
				return
			}
			internalIDs = append(internalIDs, id)
		}
	}

	devices, err := s.directory.List(r.Context(), internalIDs)
	if err != nil {
		s.logger.Error("device listing failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "reading store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"statusCode": http.StatusOK,
		"devices":    devices,
	})
}

// publishRequest is the body of POST /api/publish
type publishRequest struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

func (s *Server) publish(w http.ResponseWriter, r *http.Request) {
	if s.publisher == nil {
		writeError(w, http.StatusNotImplemented, "transport publishing is not enabled")
		return
	}

	ct := r.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
		writeError(w, http.StatusBadRequest, "Content-Type must be application/json")
		return
	}

	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not a JSON object")
		return
	}
	if req.Topic == "" {
		writeError(w, http.StatusBadRequest, "topic is required")
		return
	}
	if len(req.Payload) == 0 {
		writeError(w, http.StatusBadRequest, "payload is required")
		return
	}

	if err := s.publisher.Publish(req.Topic, req.Payload); err != nil {
		s.logger.Error("publish failed", "topic", req.Topic, "error", err)
		writeError(w, http.StatusServiceUnavailable, "broker unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"statusCode": http.StatusOK,
		"topic":      req.Topic,
	})
}
