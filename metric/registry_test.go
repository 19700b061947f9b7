package metric

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_CoreMetricsRegistered(t *testing.T) {
	r := NewRegistry()
	require.NotNil(t, r.Metrics)

	// Counters must be usable immediately
	r.Metrics.MessagesReceived.WithLabelValues("transport").Inc()
	r.Metrics.MessagesAccepted.WithLabelValues("transport", "gateway").Inc()
	r.Metrics.MessagesRejected.WithLabelValues("api", "bad_payload").Inc()
	r.Metrics.MessagesDropped.Inc()
	r.Metrics.StoreErrors.Inc()

	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, fam := range families {
		names[fam.GetName()] = true
	}
	assert.True(t, names["meshtel_ingest_messages_received_total"])
	assert.True(t, names["meshtel_ingest_messages_accepted_total"])
	assert.True(t, names["meshtel_ingest_messages_rejected_total"])
	assert.True(t, names["meshtel_ingest_messages_dropped_total"])
	assert.True(t, names["meshtel_store_errors_total"])
}

func TestRegisterCounter_Duplicate(t *testing.T) {
	r := NewRegistry()

	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter_total"})
	require.NoError(t, r.RegisterCounter("mqtt-input", "test", c))

	c2 := prometheus.NewCounter(prometheus.CounterOpts{Name: "other_counter_total"})
	err := r.RegisterCounter("mqtt-input", "test", c2)
	assert.Error(t, err)
}

func TestUnregister(t *testing.T) {
	r := NewRegistry()

	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter_total"})
	require.NoError(t, r.RegisterCounter("mqtt-input", "test", c))

	assert.True(t, r.Unregister("mqtt-input", "test"))
	assert.False(t, r.Unregister("mqtt-input", "test"))

	// Re-registering after unregister works
	assert.NoError(t, r.RegisterCounter("mqtt-input", "test", c))
}

func TestHandler_ServesExposition(t *testing.T) {
	r := NewRegistry()
	r.Metrics.MessagesReceived.WithLabelValues("transport").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "meshtel_ingest_messages_received_total")
}
