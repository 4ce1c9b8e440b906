package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sweeney/cresta-receiver/internal/gpio"
	"github.com/sweeney/cresta-receiver/internal/metrics"
	"github.com/sweeney/cresta-receiver/internal/mqtt"
	"github.com/sweeney/cresta-receiver/internal/receiver"
	"github.com/sweeney/cresta-receiver/internal/registry"
	"github.com/sweeney/cresta-receiver/internal/store"
	"github.com/sweeney/cresta-receiver/internal/web"
)

// statusInterval is how often the status tracker is refreshed.
const statusInterval = time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Receive sensors from the GPIO line and publish their measurements",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(loadRunConfig())
	},
}

func init() {
	f := runCmd.Flags()
	f.String("gpio.chip", gpio.DefaultChip, "GPIO chip the receiver is wired to")
	f.Int("gpio.line", gpio.DefaultLine, "GPIO line offset of the receiver data pin")
	f.Int("gpio.queue", gpio.DefaultQueue, "edge durations buffered between the line handler and the decoder")
	f.String("mqtt.broker", "tcp://192.168.1.200:1883", "MQTT broker address (empty to disable)")
	f.String("mqtt.client_id", "cresta-receiver", "MQTT client ID")
	f.String("http.addr", ":80", "HTTP status address (empty to disable)")
	f.Duration("heartbeat", 15*time.Minute, "heartbeat interval (0 to disable)")
	f.Int("workers", receiver.DefaultWorkers, "packet validation workers")
	f.Int("queue_size", receiver.DefaultQueueSize, "decoded frames waiting for each worker")
	f.Int("max_sensors", registry.DefaultMaxSensors, "maximum number of distinct sensors")
	f.String("postgres.url", "", "PostgreSQL URL for measurement history (empty to disable)")
	f.String("postgres.table", store.DefaultTable, "measurement history table")
	cobra.CheckErr(viper.BindPFlags(f))

	rootCmd.AddCommand(runCmd)
}

type runConfig struct {
	Chip          string
	Line          int
	Queue         int
	Broker        string
	ClientID      string
	HTTPAddr      string
	Heartbeat     time.Duration
	Workers       int
	QueueSize     int
	MaxSensors    int
	PostgresURL   string
	PostgresTable string
}

func loadRunConfig() runConfig {
	return runConfig{
		Chip:          viper.GetString("gpio.chip"),
		Line:          viper.GetInt("gpio.line"),
		Queue:         viper.GetInt("gpio.queue"),
		Broker:        viper.GetString("mqtt.broker"),
		ClientID:      viper.GetString("mqtt.client_id"),
		HTTPAddr:      viper.GetString("http.addr"),
		Heartbeat:     viper.GetDuration("heartbeat"),
		Workers:       viper.GetInt("workers"),
		QueueSize:     viper.GetInt("queue_size"),
		MaxSensors:    viper.GetInt("max_sensors"),
		PostgresURL:   viper.GetString("postgres.url"),
		PostgresTable: viper.GetString("postgres.table"),
	}
}

func run(cfg runConfig) error {
	m := metrics.New()

	src, err := gpio.NewRealSource(cfg.Chip, cfg.Line, cfg.Queue)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer src.Close()

	var publisher mqtt.Publisher = discardPublisher{}
	var mqttStatus mqtt.ConnectionStatus
	if cfg.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Config{
			Broker:             cfg.Broker,
			ClientID:           cfg.ClientID,
			OnConnectionChange: m.RecordMQTTStatus,
			OnBufferDrop:       m.RecordMQTTBufferDrop,
		}, logger)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer p.Close()
		publisher, mqttStatus = p, p
	}

	var history store.Store
	if cfg.PostgresURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pg, err := store.New(ctx, cfg.PostgresURL, cfg.PostgresTable, logger)
		if err == nil {
			err = pg.EnsureSchema(ctx)
		}
		cancel()
		if err != nil {
			return fmt.Errorf("init store: %w", err)
		}
		defer pg.Close()
		history = pg
	}

	d := newDaemon(cfg, daemonDeps{
		source:     src,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		store:      history,
		metrics:    m,
		log:        logger,
		now:        time.Now,
	})
	if net := readNetworkInfo(); net != nil {
		d.tracker.SetNetwork(net)
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, d.tracker, d.reg, m.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.WithField("addr", cfg.HTTPAddr).Info("http status server listening")
	}

	logger.WithFields(logrus.Fields{
		"chip":      cfg.Chip,
		"line":      cfg.Line,
		"broker":    cfg.Broker,
		"heartbeat": cfg.Heartbeat,
		"workers":   cfg.Workers,
	}).Info("started")

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return d.run(ticker.C, sigCh)
}

// discardPublisher stands in when MQTT is disabled.
type discardPublisher struct{}

func (discardPublisher) Publish(mqtt.MeasurementEvent) error { return nil }
func (discardPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (discardPublisher) Close() error { return nil }
