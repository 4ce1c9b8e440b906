// Package receiver runs the receive path: edge durations are decoded into
// raw frames on one goroutine, and a pool of workers validates the frames
// and publishes them to the sensor registry. Frames of one sensor always go
// to the same worker, so they are published in capture order.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/cresta-receiver/internal/cresta"
	"github.com/sweeney/cresta-receiver/internal/manchester"
	"github.com/sweeney/cresta-receiver/internal/metrics"
	"github.com/sweeney/cresta-receiver/internal/registry"
)

// Defaults for Config.
const (
	DefaultWorkers   = 2
	DefaultQueueSize = 64
)

// Config holds pipeline settings.
type Config struct {
	// Workers is the number of validate-and-publish goroutines.
	Workers int

	// QueueSize bounds the frames waiting for each worker.
	QueueSize int

	// OnMeasurement, if set, is called from a worker after every publication.
	OnMeasurement func(*registry.Sensor, *cresta.Measurement)
}

// Stats is a point-in-time copy of the pipeline counters.
type Stats struct {
	Edges          uint64
	Frames         uint64
	Rejects        map[string]uint64
	ChecksumErrors uint64
	LengthErrors   uint64
	QueueDropped   uint64
	RegistryFull   uint64
	Published      uint64
}

type frame struct {
	raw cresta.RawPacket
	at  time.Time
}

// Receiver connects a decoder to a registry.
type Receiver struct {
	cfg     Config
	reg     *registry.Registry
	metrics *metrics.Metrics
	log     *logrus.Logger
	now     func() time.Time

	edges          atomic.Uint64
	frames         atomic.Uint64
	rejects        []atomic.Uint64
	checksumErrors atomic.Uint64
	lengthErrors   atomic.Uint64
	queueDropped   atomic.Uint64
	registryFull   atomic.Uint64
	published      atomic.Uint64
}

// New creates a receiver publishing into reg.
func New(cfg Config, reg *registry.Registry, m *metrics.Metrics, log *logrus.Logger) *Receiver {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Receiver{
		cfg:     cfg,
		reg:     reg,
		metrics: m,
		log:     log,
		now:     time.Now,
		rejects: make([]atomic.Uint64, len(manchester.Reasons())),
	}
}

// SetClock replaces the capture clock. Call before Run.
func (r *Receiver) SetClock(now func() time.Time) {
	r.now = now
}

// Run decodes edges until the channel is closed or ctx is cancelled, then
// waits for queued frames to be delivered.
func (r *Receiver) Run(ctx context.Context, edges <-chan uint32) error {
	queues := make([]chan frame, r.cfg.Workers)
	for i := range queues {
		queues[i] = make(chan frame, r.cfg.QueueSize)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer func() {
			for _, q := range queues {
				close(q)
			}
		}()
		return r.decode(ctx, edges, queues)
	})

	for _, q := range queues {
		g.Go(func() error {
			for f := range q {
				// Delivery errors are counted and logged; they never stop the pipeline.
				_ = r.Deliver(f.raw, f.at)
			}
			return nil
		})
	}

	return g.Wait()
}

func (r *Receiver) decode(ctx context.Context, edges <-chan uint32, queues []chan frame) error {
	dec := manchester.New()
	dec.OnReject = r.recordReject

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-edges:
			if !ok {
				return nil
			}
			r.edges.Add(1)
			if r.metrics != nil {
				r.metrics.EdgesReceived.Inc()
			}

			raw, ok := dec.Feed(d)
			if !ok {
				continue
			}
			r.frames.Add(1)
			if r.metrics != nil {
				r.metrics.FramesDecoded.Inc()
			}

			select {
			case queues[shard(raw, len(queues))] <- frame{raw: raw, at: r.now()}:
			default:
				r.queueDropped.Add(1)
				if r.metrics != nil {
					r.metrics.RecordDrop("queue_full")
				}
				r.log.Warn("frame queue full, dropping frame")
			}
		}
	}
}

// shard picks the worker for a frame. Unscrambling is a per-byte bijection,
// so the raw address byte identifies the sensor before validation.
func shard(raw cresta.RawPacket, workers int) int {
	return int(raw[1]) % workers
}

func (r *Receiver) recordReject(reason manchester.Reason) {
	r.rejects[reason].Add(1)
	if r.metrics != nil {
		r.metrics.RecordReject(reason.String())
	}
	// Idle noise produces clock rejects continuously.
	if reason != manchester.ReasonClock {
		r.log.WithField("reason", reason.String()).Debug("frame abandoned")
	}
}

// Deliver validates a raw frame captured at the given time and publishes
// it to the owning sensor, creating the sensor on first sighting.
func (r *Receiver) Deliver(raw cresta.RawPacket, at time.Time) error {
	start := time.Now()
	if r.metrics != nil {
		defer func() { r.metrics.RecordDeliver(time.Since(start)) }()
	}

	p, err := cresta.Decrypt(raw)
	if err != nil {
		var cerr *cresta.ChecksumError
		switch {
		case errors.As(err, &cerr):
			r.checksumErrors.Add(1)
			if r.metrics != nil {
				r.metrics.RecordChecksumError(cerr.Checksum)
			}
		case errors.Is(err, cresta.ErrInvalidLength):
			r.lengthErrors.Add(1)
			if r.metrics != nil {
				r.metrics.RecordDrop("invalid_length")
			}
		}
		r.log.WithError(err).Debug("packet discarded")
		return err
	}

	s, err := r.reg.ResolveOrCreate(p.Address, p.Type)
	if err != nil {
		if errors.Is(err, registry.ErrRegistryFull) {
			r.registryFull.Add(1)
			if r.metrics != nil {
				r.metrics.RecordDrop("registry_full")
			}
		}
		r.log.WithError(err).WithField("address", fmt.Sprintf("0x%02x", p.Address)).Warn("packet dropped")
		return fmt.Errorf("resolve sensor: %w", err)
	}
	if s.Type() != p.Type {
		r.log.WithFields(logrus.Fields{
			"address":  fmt.Sprintf("0x%02x", p.Address),
			"type":     p.Type.String(),
			"expected": s.Type().String(),
		}).Debug("sensor type differs from first sighting")
	}

	m, err := r.reg.Publish(s, cresta.NewMeasurement(p, at))
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	r.published.Add(1)
	if r.metrics != nil {
		r.metrics.RecordMeasurement(s.Name())
		r.metrics.Sensors.Set(float64(r.reg.Len()))
	}

	if r.cfg.OnMeasurement != nil {
		r.cfg.OnMeasurement(s, m)
	}
	return nil
}

// Stats returns the pipeline counters.
func (r *Receiver) Stats() Stats {
	s := Stats{
		Edges:          r.edges.Load(),
		Frames:         r.frames.Load(),
		Rejects:        make(map[string]uint64, len(r.rejects)),
		ChecksumErrors: r.checksumErrors.Load(),
		LengthErrors:   r.lengthErrors.Load(),
		QueueDropped:   r.queueDropped.Load(),
		RegistryFull:   r.registryFull.Load(),
		Published:      r.published.Load(),
	}
	for i := range r.rejects {
		s.Rejects[manchester.Reason(i).String()] = r.rejects[i].Load()
	}
	return s
}
