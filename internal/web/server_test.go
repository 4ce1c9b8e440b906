package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/cresta-receiver/internal/cresta"
	"github.com/sweeney/cresta-receiver/internal/metrics"
	"github.com/sweeney/cresta-receiver/internal/registry"
	"github.com/sweeney/cresta-receiver/internal/status"
	tu "github.com/sweeney/cresta-receiver/internal/testutil"
)

var captured = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ts      *httptest.Server
	tracker *status.Tracker
	reg     *registry.Registry
}

func newTestServer(t *testing.T) *fixture {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":80",
		GPIOChip:    "gpiochip0",
		GPIOLine:    27,
		Workers:     2,
		MaxSensors:  64,
	}
	log, _ := test.NewNullLogger()
	f := &fixture{
		tracker: status.NewTracker(start, cfg),
		reg:     registry.New(registry.Config{}, log),
	}
	srv := New(":0", f.tracker, f.reg, metrics.New().Handler())
	f.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(f.ts.Close)
	return f
}

func (f *fixture) publish(t *testing.T, data [cresta.MaxDataLen]byte) *registry.Sensor {
	t.Helper()
	p := cresta.PacketFromData(data)
	s, err := f.reg.ResolveOrCreate(p.Address, p.Type)
	require.NoError(t, err)
	_, err = f.reg.Publish(s, cresta.NewMeasurement(p, captured))
	require.NoError(t, err)
	return s
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestJSONEndpoint(t *testing.T) {
	f := newTestServer(t)
	f.publish(t, tu.ThermoHygroData)
	f.tracker.Update(status.Counters{Frames: 5, Published: 4}, status.Summarize(f.reg.Sensors()))
	f.tracker.SetMQTTConnected(true)

	resp, body := get(t, f.ts.URL+"/index.json")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var sj status.StatusJSON
	require.NoError(t, json.Unmarshal(body, &sj))
	assert.True(t, sj.Status.MQTT.Connected)
	assert.Equal(t, "tcp://192.168.1.200:1883", sj.Status.MQTT.Broker)
	assert.Equal(t, uint64(5), sj.Status.Counters.Frames)
	assert.Equal(t, 27, sj.Status.Config.GPIOLine)
	require.Len(t, sj.Status.Sensors, 1)
	assert.Equal(t, "thermohygro_ch1", sj.Status.Sensors[0].Name)
}

func TestJSONNetworkInfo(t *testing.T) {
	f := newTestServer(t)
	f.tracker.SetNetwork(&status.NetworkInfo{
		Type:   "wifi",
		IP:     "192.168.1.42",
		Status: "connected",
		SSID:   "MyNet",
	})

	_, body := get(t, f.ts.URL+"/index.json")

	var sj status.StatusJSON
	require.NoError(t, json.Unmarshal(body, &sj))
	require.NotNil(t, sj.Status.Network)
	assert.Equal(t, "192.168.1.42", sj.Status.Network.IP)
}

func TestHTMLEndpointRoot(t *testing.T) {
	f := newTestServer(t)
	f.publish(t, tu.ThermoHygroData)
	f.tracker.Update(status.Counters{}, status.Summarize(f.reg.Sensors()))

	resp, body := get(t, f.ts.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"))
	assert.Contains(t, string(body), "thermohygro_ch1")
	assert.Contains(t, string(body), "21.5°C")
	assert.Contains(t, string(body), `href="/sensors/0x20"`)
}

func TestHTMLEndpointNoSensors(t *testing.T) {
	f := newTestServer(t)

	resp, body := get(t, f.ts.URL+"/index.html")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "No sensors heard yet.")
}

func TestNotFoundForUnknownPath(t *testing.T) {
	f := newTestServer(t)

	resp, _ := get(t, f.ts.URL+"/nonexistent")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSensorRecord(t *testing.T) {
	f := newTestServer(t)
	s := f.publish(t, tu.RainData)
	want, err := s.Current().MarshalBinary()
	require.NoError(t, err)

	for _, key := range []string{"0x81", "129", "rain"} {
		t.Run(key, func(t *testing.T) {
			resp, body := get(t, f.ts.URL+"/sensors/"+key)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))
			assert.Len(t, body, cresta.RecordSize)
			assert.Equal(t, want, body)
			assert.Equal(t, captured.Format(http.TimeFormat), resp.Header.Get("Last-Modified"))
		})
	}
}

func TestSensorRecordLastModifiedMatchesBody(t *testing.T) {
	f := newTestServer(t)
	s := f.publish(t, tu.RainData)
	later := captured.Add(time.Hour)
	_, err := f.reg.Publish(s, cresta.NewMeasurement(cresta.PacketFromData(tu.RainData), later))
	require.NoError(t, err)

	resp, body := get(t, f.ts.URL+"/sensors/rain")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var m cresta.Measurement
	require.NoError(t, m.UnmarshalBinary(body))
	assert.Equal(t, uint64(later.Unix()), m.Time)
	assert.Equal(t, m.Timestamp().Format(http.TimeFormat), resp.Header.Get("Last-Modified"))
}

func TestSensorRecordRange(t *testing.T) {
	f := newTestServer(t)
	s := f.publish(t, tu.RainData)
	rec, err := s.Current().MarshalBinary()
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, f.ts.URL+"/sensors/0x81", nil)
	require.NoError(t, err)
	req.Header.Set("Range", "bytes=8-")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, rec[8:], body)
}

func TestSensorRecordErrors(t *testing.T) {
	f := newTestServer(t)
	_, err := f.reg.ResolveOrCreate(0x80, cresta.TypeAnemometer)
	require.NoError(t, err)

	tests := []struct {
		key  string
		want int
	}{
		{"0x80", http.StatusServiceUnavailable},
		{"0x42", http.StatusNotFound},
		{"nosuchsensor", http.StatusNotFound},
		{"300", http.StatusBadRequest},
		{"-1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			resp, _ := get(t, f.ts.URL+"/sensors/"+tt.key)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newTestServer(t)

	resp, body := get(t, f.ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "cresta_decoder_edges_total")
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	f := newTestServer(t)

	_, body := get(t, f.ts.URL+"/index.json")
	var before status.StatusJSON
	require.NoError(t, json.Unmarshal(body, &before))
	assert.Empty(t, before.Status.Sensors)
	assert.False(t, before.Status.MQTT.Connected)

	f.publish(t, tu.AnemometerData)
	f.tracker.Update(status.Counters{Published: 1}, status.Summarize(f.reg.Sensors()))
	f.tracker.SetMQTTConnected(true)

	_, body = get(t, f.ts.URL+"/index.json")
	var after status.StatusJSON
	require.NoError(t, json.Unmarshal(body, &after))
	require.Len(t, after.Status.Sensors, 1)
	assert.Equal(t, "anemometer", after.Status.Sensors[0].Type)
	assert.True(t, after.Status.MQTT.Connected)
}
