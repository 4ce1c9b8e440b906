package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sweeney/cresta-receiver/internal/cresta"
	"github.com/sweeney/cresta-receiver/internal/gpio"
	"github.com/sweeney/cresta-receiver/internal/mqtt"
	"github.com/sweeney/cresta-receiver/internal/receiver"
	"github.com/sweeney/cresta-receiver/internal/registry"
)

var replayCmd = &cobra.Command{
	Use:   "replay <trace>",
	Short: "Decode a recorded trace of edge durations (\"-\" reads stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		return replay(in, cmd.OutOrStdout(), logger)
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

// replay decodes a trace and writes one JSON measurement payload per line,
// in publication order.
func replay(in io.Reader, out io.Writer, log *logrus.Logger) error {
	durations, err := gpio.ReadTrace(in)
	if err != nil {
		return err
	}

	reg := registry.New(registry.Config{}, log)
	defer reg.Close()

	var writeErr error
	rx := receiver.New(receiver.Config{
		// One worker keeps the output in decode order.
		Workers: 1,
		OnMeasurement: func(s *registry.Sensor, m *cresta.Measurement) {
			payload, err := mqtt.FormatPayload(mqtt.MeasurementEvent{Sensor: sensorInfo(s), Measurement: m})
			if err == nil {
				_, err = fmt.Fprintf(out, "%s\n", payload)
			}
			if err != nil && writeErr == nil {
				writeErr = err
			}
		},
	}, reg, nil, log)

	if err := rx.Run(context.Background(), gpio.NewReplaySource(durations).Edges()); err != nil {
		return err
	}

	st := rx.Stats()
	log.WithFields(logrus.Fields{
		"edges":           st.Edges,
		"frames":          st.Frames,
		"checksum_errors": st.ChecksumErrors,
		"published":       st.Published,
		"sensors":         reg.Len(),
	}).Info("replay finished")
	return writeErr
}
