package main

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/cresta-receiver/internal/cresta"
	"github.com/sweeney/cresta-receiver/internal/gpio"
	"github.com/sweeney/cresta-receiver/internal/metrics"
	"github.com/sweeney/cresta-receiver/internal/mqtt"
	"github.com/sweeney/cresta-receiver/internal/receiver"
	"github.com/sweeney/cresta-receiver/internal/registry"
	"github.com/sweeney/cresta-receiver/internal/status"
	"github.com/sweeney/cresta-receiver/internal/store"
)

// storeTimeout bounds a single history insert.
const storeTimeout = 5 * time.Second

type daemonDeps struct {
	source     gpio.Source
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus // may be nil
	store      store.Store           // may be nil
	metrics    *metrics.Metrics
	log        *logrus.Logger
	now        func() time.Time
}

// daemon wires the receive path to its outputs.
type daemon struct {
	daemonDeps
	heartbeat time.Duration

	reg     *registry.Registry
	rx      *receiver.Receiver
	tracker *status.Tracker

	lastDropped uint64
}

func newDaemon(cfg runConfig, deps daemonDeps) *daemon {
	d := &daemon{daemonDeps: deps, heartbeat: cfg.Heartbeat}

	d.reg = registry.New(registry.Config{
		MaxSensors: cfg.MaxSensors,
		OnDiscover: d.onDiscover,
	}, deps.log)
	d.rx = receiver.New(receiver.Config{
		Workers:       cfg.Workers,
		QueueSize:     cfg.QueueSize,
		OnMeasurement: d.onMeasurement,
	}, d.reg, deps.metrics, deps.log)
	d.rx.SetClock(deps.now)

	d.tracker = status.NewTracker(deps.now(), status.Config{
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.Broker,
		HTTPAddr:    cfg.HTTPAddr,
		GPIOChip:    cfg.Chip,
		GPIOLine:    cfg.Line,
		Workers:     cfg.Workers,
		MaxSensors:  cfg.MaxSensors,
		Store:       deps.store != nil,
	})
	return d
}

func sensorInfo(s *registry.Sensor) mqtt.SensorInfo {
	return mqtt.SensorInfo{Name: s.Name(), Address: s.Address(), Type: s.Type()}
}

func (d *daemon) onDiscover(s *registry.Sensor) {
	info := sensorInfo(s)
	err := d.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp: d.now(),
		Event:     mqtt.EventDiscovered,
		Sensor:    &info,
	})
	if err != nil {
		d.log.WithError(err).WithField("sensor", s.Name()).Warn("failed to publish discovery event")
	}
}

func (d *daemon) onMeasurement(s *registry.Sensor, m *cresta.Measurement) {
	if err := d.publisher.Publish(mqtt.MeasurementEvent{Sensor: sensorInfo(s), Measurement: m}); err != nil {
		d.log.WithError(err).WithField("sensor", s.Name()).Warn("publish error")
	}

	if d.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := d.store.Save(ctx, store.NewRecord(s.Name(), m)); err != nil {
		if d.metrics != nil {
			d.metrics.StoreErrors.Inc()
		}
		d.log.WithError(err).Warn("history store error")
	}
}

// run publishes STARTUP, runs the receive path and the status loop until a
// signal arrives or the edge source closes, then publishes SHUTDOWN.
func (d *daemon) run(tick <-chan time.Time, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.refresh()
	d.publishStatus(mqtt.EventStartup, "", true)

	rxDone := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(rxDone)
		return d.rx.Run(gctx, d.source.Edges())
	})

	loopErr := d.runLoop(tick, sig, rxDone)
	cancel()
	rxErr := g.Wait()
	d.reg.Close()
	return errors.Join(loopErr, rxErr)
}

func (d *daemon) runLoop(tick <-chan time.Time, sig <-chan os.Signal, rxDone <-chan struct{}) error {
	lastHeartbeat := d.now()

	for {
		select {
		case s := <-sig:
			d.log.WithField("signal", s.String()).Info("shutting down")
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			d.refresh()
			d.publishStatus(mqtt.EventShutdown, signalName, true)
			return nil

		case <-rxDone:
			d.log.Warn("edge source closed, shutting down")
			d.refresh()
			d.publishStatus(mqtt.EventShutdown, "SOURCE_CLOSED", true)
			return nil

		case <-tick:
			t := d.now()
			d.refresh()

			if d.heartbeat > 0 && t.Sub(lastHeartbeat) >= d.heartbeat {
				lastHeartbeat = t
				snap := d.tracker.Snapshot()
				d.log.WithFields(logrus.Fields{
					"uptime":    snap.Uptime().Truncate(time.Second),
					"sensors":   len(snap.Sensors),
					"published": snap.Counters.Published,
				}).Info("heartbeat")
				if net := readNetworkInfo(); net != nil {
					d.tracker.SetNetwork(net)
				}
				d.publishStatus(mqtt.EventHeartbeat, "", false)
			}
		}
	}
}

// refresh copies the pipeline counters and sensor list into the tracker.
func (d *daemon) refresh() {
	st := d.rx.Stats()
	dropped := d.source.Dropped()
	if d.metrics != nil && dropped > d.lastDropped {
		d.metrics.EdgesDropped.Add(float64(dropped - d.lastDropped))
	}
	d.lastDropped = dropped

	d.tracker.Update(status.Counters{
		Edges:          st.Edges,
		EdgesDropped:   dropped,
		Frames:         st.Frames,
		Rejects:        st.Rejects,
		ChecksumErrors: st.ChecksumErrors,
		LengthErrors:   st.LengthErrors,
		QueueDropped:   st.QueueDropped,
		RegistryFull:   st.RegistryFull,
		Published:      st.Published,
	}, status.Summarize(d.reg.Sensors()))
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

func (d *daemon) publishStatus(event, reason string, retained bool) {
	snap := d.tracker.Snapshot()
	err := d.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  d.now(),
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		d.log.WithError(err).WithField("event", event).Warn("failed to publish system event")
		return
	}
	d.log.WithField("event", event).Debug("published system event")
}
