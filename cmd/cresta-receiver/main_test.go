package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/cresta-receiver/internal/cresta"
	"github.com/sweeney/cresta-receiver/internal/gpio"
	"github.com/sweeney/cresta-receiver/internal/metrics"
	"github.com/sweeney/cresta-receiver/internal/mqtt"
	"github.com/sweeney/cresta-receiver/internal/status"
	"github.com/sweeney/cresta-receiver/internal/store"
	tu "github.com/sweeney/cresta-receiver/internal/testutil"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		assert.Equal(t, canonical, got)
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	require.NotNil(t, info)
	assert.Equal(t, &status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}, info)
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	assert.Nil(t, readNetworkInfo())
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "ethernet")
	t.Setenv(envNetworkIP, "")

	info := readNetworkInfo()
	require.NotNil(t, info)
	assert.Equal(t, "ethernet", info.Type)
	assert.Empty(t, info.IP)
}

func TestConfigureLogging(t *testing.T) {
	log := logrus.New()
	require.NoError(t, configureLogging(log, "debug"))
	assert.Equal(t, logrus.DebugLevel, log.Level)

	assert.Error(t, configureLogging(log, "loud"))
}

// fakeClock returns a clock that advances by step on every call.
type fakeClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.t
	c.t = c.t.Add(c.step)
	return t
}

type harness struct {
	src     *gpio.FakeSource
	pub     *mqtt.FakePublisher
	store   *store.FakeStore
	metrics *metrics.Metrics
	d       *daemon

	tick chan time.Time
	sig  chan os.Signal
	done chan error
}

func newHarness(t *testing.T, cfg runConfig, clock func() time.Time) *harness {
	t.Helper()
	log, _ := test.NewNullLogger()
	h := &harness{
		src:     gpio.NewFakeSource(8192),
		pub:     mqtt.NewFakePublisher(),
		store:   &store.FakeStore{},
		metrics: metrics.New(),
		tick:    make(chan time.Time),
		sig:     make(chan os.Signal, 1),
		done:    make(chan error, 1),
	}
	h.pub.Connected = true
	h.d = newDaemon(cfg, daemonDeps{
		source:     h.src,
		publisher:  h.pub,
		mqttStatus: h.pub,
		store:      h.store,
		metrics:    h.metrics,
		log:        log,
		now:        clock,
	})
	return h
}

func (h *harness) start() {
	go func() { h.done <- h.d.run(h.tick, h.sig) }()
}

func (h *harness) stop(t *testing.T, s os.Signal) {
	t.Helper()
	h.sig <- s
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func (h *harness) waitMeasurements(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(h.pub.Measurements()) >= n
	}, 5*time.Second, 5*time.Millisecond)
}

func TestRunLoopPublishesMeasurement(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), step: time.Millisecond}
	h := newHarness(t, runConfig{}, clock.now)
	h.start()

	h.src.Push(tu.Trace(488, tu.ThermoHygroFrame)...)
	h.waitMeasurements(t, 1)
	h.stop(t, syscall.SIGTERM)

	events := h.pub.Measurements()
	require.Len(t, events, 1)
	assert.Equal(t, "thermohygro_ch1", events[0].Sensor.Name)
	assert.Equal(t, tu.ThermoHygroData, events[0].Measurement.Data)
	assert.Equal(t, uint64(1), events[0].Measurement.Seq)

	assert.Equal(t, []string{"STARTUP", "DISCOVERED", "SHUTDOWN"}, h.pub.SystemEventNames())
	discovered := h.pub.SystemEvents[1]
	require.NotNil(t, discovered.Sensor)
	assert.Equal(t, uint8(0x20), discovered.Sensor.Address)

	saved := h.store.Saved()
	require.Len(t, saved, 1)
	assert.Equal(t, "thermohygro_ch1", saved[0].Name)
	require.NotNil(t, saved[0].Readings)
	assert.InDelta(t, 21.5, *saved[0].Readings.Temperature, 1e-9)
}

func TestRunLoopStartupRetained(t *testing.T) {
	h := newHarness(t, runConfig{Broker: "tcp://broker:1883"}, time.Now)
	h.start()
	h.stop(t, syscall.SIGINT)

	require.Len(t, h.pub.SystemEvents, 2)
	startup := h.pub.SystemEvents[0]
	assert.Equal(t, "STARTUP", startup.Event)
	assert.True(t, startup.Retained)

	var sj status.StatusJSON
	require.NoError(t, json.Unmarshal(startup.RawPayload, &sj))
	assert.Equal(t, "STARTUP", sj.Status.Event)
	assert.Equal(t, "tcp://broker:1883", sj.Status.MQTT.Broker)
	assert.True(t, sj.Status.MQTT.Connected)
}

func TestRunLoopShutdownSignals(t *testing.T) {
	for _, tt := range []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGHUP, "UNKNOWN"},
	} {
		t.Run(tt.want, func(t *testing.T) {
			h := newHarness(t, runConfig{}, time.Now)
			h.start()
			h.stop(t, tt.sig)

			last := h.pub.SystemEvents[len(h.pub.SystemEvents)-1]
			assert.Equal(t, "SHUTDOWN", last.Event)
			assert.Equal(t, tt.want, last.Reason)
			assert.True(t, last.Retained)
			assert.Contains(t, string(last.RawPayload), fmt.Sprintf(`"reason":%q`, tt.want))
		})
	}
}

func TestRunLoopSourceClosed(t *testing.T) {
	h := newHarness(t, runConfig{}, time.Now)
	h.start()

	h.src.Push(tu.Trace(500, tu.RainFrame)...)
	require.NoError(t, h.src.Close())

	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after source closed")
	}

	assert.Len(t, h.pub.Measurements(), 1)
	last := h.pub.SystemEvents[len(h.pub.SystemEvents)-1]
	assert.Equal(t, "SHUTDOWN", last.Event)
	assert.Equal(t, "SOURCE_CLOSED", last.Reason)
}

func TestRunLoopHeartbeat(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), step: time.Minute}
	h := newHarness(t, runConfig{Heartbeat: 5 * time.Minute}, clock.now)
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkIP, "10.0.0.7")
	h.start()

	for i := 0; i < 12; i++ {
		h.tick <- time.Time{}
	}
	h.stop(t, syscall.SIGTERM)

	var heartbeats []mqtt.SystemEvent
	for _, e := range h.pub.SystemEvents {
		if e.Event == "HEARTBEAT" {
			heartbeats = append(heartbeats, e)
		}
	}
	require.NotEmpty(t, heartbeats)
	assert.Less(t, len(heartbeats), 12)
	assert.False(t, heartbeats[0].Retained)
	assert.Contains(t, string(heartbeats[0].RawPayload), `"ip":"10.0.0.7"`)
}

func TestRunLoopHeartbeatDisabled(t *testing.T) {
	clock := &fakeClock{t: time.Now(), step: time.Hour}
	h := newHarness(t, runConfig{}, clock.now)
	h.start()
	for i := 0; i < 5; i++ {
		h.tick <- time.Time{}
	}
	h.stop(t, syscall.SIGTERM)

	assert.NotContains(t, h.pub.SystemEventNames(), "HEARTBEAT")
}

func TestRunLoopTickRefreshesStatus(t *testing.T) {
	h := newHarness(t, runConfig{}, time.Now)
	h.start()

	h.src.Push(tu.Trace(488, tu.AnemometerFrame)...)
	h.waitMeasurements(t, 1)
	h.tick <- time.Time{}
	h.tick <- time.Time{}

	snap := h.d.tracker.Snapshot()
	h.stop(t, syscall.SIGTERM)

	require.Len(t, snap.Sensors, 1)
	assert.Equal(t, "anemometer", snap.Sensors[0].Name)
	assert.Equal(t, uint64(1), snap.Counters.Published)
	assert.True(t, snap.MQTTConnected)
}

func TestRunLoopPublishErrorDoesNotStop(t *testing.T) {
	h := newHarness(t, runConfig{}, time.Now)
	h.pub.PublishError = errors.New("broker gone")
	h.start()

	h.src.Push(tu.Trace(488, tu.RainFrame, tu.RainFrame)...)
	require.Eventually(t, func() bool {
		return h.d.rx.Stats().Published == 2
	}, 5*time.Second, 5*time.Millisecond)
	h.stop(t, syscall.SIGTERM)

	assert.Len(t, h.store.Saved(), 2)
}

func TestRunLoopStoreError(t *testing.T) {
	h := newHarness(t, runConfig{}, time.Now)
	h.store.Err = errors.New("disk full")
	h.start()

	h.src.Push(tu.Trace(488, tu.RainFrame)...)
	h.waitMeasurements(t, 1)
	h.stop(t, syscall.SIGTERM)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.StoreErrors))
}

func TestRunLoopWithoutStore(t *testing.T) {
	log, _ := test.NewNullLogger()
	src := gpio.NewFakeSource(4096)
	pub := mqtt.NewFakePublisher()
	d := newDaemon(runConfig{}, daemonDeps{
		source:    src,
		publisher: pub,
		log:       log,
		now:       time.Now,
	})

	done := make(chan error, 1)
	go func() { done <- d.run(nil, nil) }()
	src.Push(tu.Trace(488, tu.RainFrame)...)
	require.NoError(t, src.Close())
	require.NoError(t, <-done)

	assert.Len(t, pub.Measurements(), 1)
}

func TestReplay(t *testing.T) {
	var trace strings.Builder
	trace.WriteString("# two sensors\n")
	for i, d := range tu.Trace(500, tu.ThermoHygroFrame, tu.RainFrame) {
		if i%16 == 15 {
			trace.WriteString("\n")
		}
		fmt.Fprintf(&trace, "%d ", d)
	}

	log, hook := test.NewNullLogger()
	var out bytes.Buffer
	require.NoError(t, replay(strings.NewReader(trace.String()), &out, log))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var p mqtt.Payload
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &p))
	assert.Equal(t, "thermohygro_ch1", p.Sensor.Name)
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &p))
	assert.Equal(t, "rain", p.Sensor.Name)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "replay finished", hook.LastEntry().Message)
	assert.Equal(t, uint64(2), hook.LastEntry().Data["published"])
}

func TestReplayInvalidTrace(t *testing.T) {
	log, _ := test.NewNullLogger()
	err := replay(strings.NewReader("500 abc\n"), &bytes.Buffer{}, log)
	assert.ErrorContains(t, err, "trace line 1")
}

func record(t *testing.T, data [cresta.MaxDataLen]byte) []byte {
	t.Helper()
	m := cresta.NewMeasurement(cresta.PacketFromData(data), time.Unix(1772366400, 0))
	b, err := m.MarshalBinary()
	require.NoError(t, err)
	return b
}

func TestShowLong(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, show(&out, record(t, tu.ThermoHygroData), false))

	s := out.String()
	assert.Contains(t, s, "Thermo-hygro sensor\n")
	assert.Contains(t, s, "\tTemperature = 21.5 °C\n")
	assert.Contains(t, s, "\tHumidity = 45 %\n")
	assert.Contains(t, s, "\tBattery = OK\n")
}

func TestShowShort(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, show(&out, record(t, tu.ThermoHygroData), true))
	assert.Equal(t, "1772366400:21.5:45:1\n", out.String())
}

func TestShowAnemometer(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, show(&out, record(t, tu.AnemometerData), false))
	assert.Contains(t, out.String(), "Anemometer\n")
	assert.Contains(t, out.String(), "\tWind direction = ")
}

func TestShowRainShort(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, show(&out, record(t, tu.RainData), true))
	assert.True(t, strings.HasPrefix(out.String(), "1772366400:"))
	assert.Equal(t, 3, strings.Count(out.String(), ":")+1)
}

func TestShowInvalidRecord(t *testing.T) {
	assert.Error(t, show(&bytes.Buffer{}, []byte{1, 2, 3}, false))
}

func TestShowUnknownType(t *testing.T) {
	var data [cresta.MaxDataLen]byte
	data[0] = cresta.Preamble
	data[3] = 0x05
	assert.Error(t, show(&bytes.Buffer{}, record(t, data), false))
}
