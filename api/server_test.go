package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/meshtel/config"
	"github.com/c360/meshtel/device"
	"github.com/c360/meshtel/health"
	"github.com/c360/meshtel/ingest"
	"github.com/c360/meshtel/store"
)

type recordingPublisher struct {
	topics []string
	err    error
}

func (p *recordingPublisher) Publish(topic string, _ []byte) error {
	p.topics = append(p.topics, topic)
	return p.err
}

type apiHarness struct {
	server    *Server
	store     *store.Store
	publisher *recordingPublisher
	gateway   int64
	sensor    int64
}

func newTestServer(t *testing.T) *apiHarness {
	t.Helper()

	ctx := context.Background()
	s, err := store.Open(ctx, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.EnsureSchema(ctx))

	h := &apiHarness{store: s, publisher: &recordingPublisher{}}

	seed := func(mac string, internalID int64, info string) int64 {
		res, err := s.DB().Exec(
			`INSERT INTO devices (mac_address, internal_id, info) VALUES (?, ?, ?)`,
			mac, internalID, info)
		require.NoError(t, err)
		id, err := res.LastInsertId()
		require.NoError(t, err)
		return id
	}
	h.gateway = seed("AA:BB", 1, "GATEWAY unit")
	h.sensor = seed("CC:DD", 2, "Temperature sensor")

	directory := device.NewSQLDirectory(s.DB(), nil)
	pipeline, err := ingest.NewPipeline(ingest.Deps{
		Directory:  directory,
		Store:      s,
		Classifier: ingest.NewClassifier("/readings/gateway/#", "/readings/temperature/#"),
	})
	require.NoError(t, err)

	monitor := health.NewMonitor()
	monitor.Register("reading-store", s)

	h.server, err = NewServer(Deps{
		Config:    config.Default().HTTP,
		Pipeline:  pipeline,
		Directory: directory,
		Store:     s,
		Publisher: h.publisher,
		Health:    monitor,
	})
	require.NoError(t, err)
	return h
}

func (h *apiHarness) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSubmitGateway(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(t, http.MethodPost, "/api/gateway-readings",
		`{"macAddress":"AA:BB","timestamp":"2024-01-01 10:00:00","rssi":-70}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, float64(200), body["statusCode"])
	assert.Equal(t, float64(h.gateway), body["gatewayId"])
	assert.NotZero(t, body["readingId"])
}

func TestSubmitGateway_WrongContentType(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/gateway-readings",
		strings.NewReader(`{"macAddress":"AA:BB"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "application/json")
}

func TestSubmitGateway_UnknownDevice(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(t, http.MethodPost, "/api/gateway-readings",
		`{"macAddress":"ZZ:ZZ","timestamp":"2024-01-01 10:00:00","rssi":-70}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, float64(404), body["statusCode"])
}

func TestSubmitGateway_BadTimestamp(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(t, http.MethodPost, "/api/gateway-readings",
		`{"macAddress":"AA:BB","timestamp":"yesterday","rssi":-70}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "timestamp")
}

func TestSubmitSensor(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(t, http.MethodPost, "/api/temperature-readings",
		`{"macAddress":"CC:DD","timestamp":"2024-06-15 08:30:00","temperature":21.375}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, float64(h.sensor), body["deviceId"])
}

func TestQueryGateway(t *testing.T) {
	h := newTestServer(t)

	for _, stamp := range []string{"2024-01-01 10:00:00", "2024-01-02 10:00:00", "2024-01-03 10:00:00"} {
		rec := h.do(t, http.MethodPost, "/api/gateway-readings",
			`{"macAddress":"AA:BB","timestamp":"`+stamp+`","rssi":-70}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := h.do(t, http.MethodGet,
		"/api/gateway-readings?macAddress=AA:BB&readingsFrom=2024-01-02%2000:00:00", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	readings := body["readings"].([]any)
	require.Len(t, readings, 2)

	// Newest first, walltime-formatted
	first := readings[0].(map[string]any)
	assert.Equal(t, "2024-01-03 10:00:00", first["timestamp"])
}

func TestQueryGateway_MissingMac(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(t, http.MethodGet, "/api/gateway-readings", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "macAddress")
}

func TestQueryGateway_UnknownDevice(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(t, http.MethodGet, "/api/gateway-readings?macAddress=ZZ:ZZ", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueryGateway_BadRangeBound(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(t, http.MethodGet,
		"/api/gateway-readings?macAddress=AA:BB&readingsTo=tomorrow", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "readingsTo")
}

func TestQueryGateway_EmptySet(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(t, http.MethodGet, "/api/gateway-readings?macAddress=AA:BB", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	readings := body["readings"].([]any)
	assert.Empty(t, readings)
}

func TestQuerySensor_ClassMismatch(t *testing.T) {
	h := newTestServer(t)

	// A gateway's address on the temperature endpoint is not resolvable
	rec := h.do(t, http.MethodGet, "/api/temperature-readings?macAddress=AA:BB", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListDevices(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(t, http.MethodGet, "/api/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	devices := body["devices"].([]any)
	require.Len(t, devices, 2)
}

func TestListDevices_Filter(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(t, http.MethodGet, "/api/devices?internal_id=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	devices := body["devices"].([]any)
	require.Len(t, devices, 1)
	assert.Equal(t, "CC:DD", devices[0].(map[string]any)["mac_address"])
}

func TestListDevices_BadFilter(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(t, http.MethodGet, "/api/devices?internal_id=two", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPublish(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(t, http.MethodPost, "/api/publish",
		`{"topic":"/readings/gateway/AA:BB","payload":{"macAddress":"AA:BB","rssi":-70}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, h.publisher.topics, 1)
	assert.Equal(t, "/readings/gateway/AA:BB", h.publisher.topics[0])
}

func TestPublish_MissingTopic(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(t, http.MethodPost, "/api/publish", `{"payload":{}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPublish_NoPublisher(t *testing.T) {
	h := newTestServer(t)
	h.server.publisher = nil

	rec := h.do(t, http.MethodPost, "/api/publish", `{"topic":"/x","payload":{}}`)
	require.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}
