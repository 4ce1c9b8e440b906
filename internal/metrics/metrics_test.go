package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.EdgesReceived.Add(127)
	m.RecordReject("preamble")
	m.RecordReject("preamble")
	m.RecordChecksumError("B")
	m.RecordDrop("registry_full")
	m.RecordMeasurement("thermohygro_ch1")
	m.Sensors.Set(3)

	assert.Equal(t, 127.0, testutil.ToFloat64(m.EdgesReceived))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FrameRejects.WithLabelValues("preamble")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChecksumErrors.WithLabelValues("B")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PacketsDropped.WithLabelValues("registry_full")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Measurements.WithLabelValues("thermohygro_ch1")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Sensors))
}

func TestMQTTStatus(t *testing.T) {
	m := New()
	m.RecordMQTTStatus(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MQTTConnected))
	m.RecordMQTTStatus(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.MQTTConnected))

	m.RecordMQTTBufferDrop()
	m.RecordMQTTBufferDrop()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MQTTBufferDropped))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.FramesDecoded.Inc()
	m.RecordDeliver(20 * time.Microsecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "cresta_decoder_frames_total 1")
	assert.Contains(t, string(body), "cresta_registry_deliver_duration_seconds_count 1")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestPrivateRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a, b := New(), New()
	a.EdgesDropped.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.EdgesDropped))
}
