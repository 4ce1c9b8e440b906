package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/cresta-receiver/internal/cresta"
)

var showShort bool

var showCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Print the readings of an exported measurement record",
	Long: `Print the readings of an exported measurement record, as served by
GET /sensors/{addr}. With --short, only the values are printed, separated
by ":" and prefixed with the capture time in Unix seconds.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		return show(cmd.OutOrStdout(), b, showShort)
	},
}

func init() {
	showCmd.Flags().BoolVarP(&showShort, "short", "s", false, "only print raw values")
	rootCmd.AddCommand(showCmd)
}

func show(w io.Writer, record []byte, short bool) error {
	var m cresta.Measurement
	if err := m.UnmarshalBinary(record); err != nil {
		return err
	}
	p := m.Packet()
	r, err := cresta.ExtractReadings(p)
	if err != nil {
		return err
	}
	if short {
		return writeShort(w, m.Time, p.Type, r)
	}
	return writeLong(w, m.Timestamp(), p.Type, r)
}

func battery(ok bool) string {
	if ok {
		return "OK"
	}
	return "LOW"
}

func batteryBit(ok bool) int {
	if ok {
		return 1
	}
	return 0
}

func writeLong(w io.Writer, at time.Time, typ cresta.SensorType, r cresta.Readings) error {
	var err error
	line := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format+"\n", args...)
		}
	}

	switch typ {
	case cresta.TypeThermoHygro:
		line("Thermo-hygro sensor")
		line("\tTime = %s", at.Format(time.RFC3339))
		line("\tTemperature = %.1f °C", *r.Temperature)
		line("\tHumidity = %d %%", *r.Humidity)
	case cresta.TypeAnemometer:
		line("Anemometer")
		line("\tTime = %s", at.Format(time.RFC3339))
		line("\tTemperature = %.1f °C", *r.Temperature)
		line("\tWind chill = %.1f °C", *r.WindChill)
		line("\tWind speed = %.2f km/h", *r.WindSpeed)
		line("\tWind gust = %.2f km/h", *r.WindGust)
		line("\tWind direction = %.1f °", *r.WindDirection)
	case cresta.TypeUV:
		line("UV sensor")
		line("\tTime = %s", at.Format(time.RFC3339))
		line("\tAbsolute temperature = %.1f °C", *r.AbsoluteTemperature)
		line("\tMED/h = %.1f", *r.MEDPerHour)
		line("\tUV index = %.1f", *r.UVIndex)
		line("\tUV level = %d", *r.UVLevel)
	case cresta.TypeRain:
		line("Rain sensor")
		line("\tTime = %s", at.Format(time.RFC3339))
		line("\tRain ticks = %d", *r.RainTicks)
	default:
		return fmt.Errorf("unknown sensor type 0x%02x", uint8(typ))
	}
	line("\tBattery = %s", battery(r.BatteryOK))
	return err
}

func writeShort(w io.Writer, sec uint64, typ cresta.SensorType, r cresta.Readings) error {
	var err error
	switch typ {
	case cresta.TypeThermoHygro:
		_, err = fmt.Fprintf(w, "%d:%.1f:%d:%d\n", sec, *r.Temperature, *r.Humidity, batteryBit(r.BatteryOK))
	case cresta.TypeAnemometer:
		_, err = fmt.Fprintf(w, "%d:%.1f:%.1f:%.2f:%.2f:%.1f:%d\n", sec,
			*r.Temperature, *r.WindChill, *r.WindSpeed, *r.WindGust, *r.WindDirection, batteryBit(r.BatteryOK))
	case cresta.TypeUV:
		_, err = fmt.Fprintf(w, "%d:%.1f:%.1f:%.1f:%d:%d\n", sec,
			*r.AbsoluteTemperature, *r.MEDPerHour, *r.UVIndex, *r.UVLevel, batteryBit(r.BatteryOK))
	case cresta.TypeRain:
		_, err = fmt.Fprintf(w, "%d:%d:%d\n", sec, *r.RainTicks, batteryBit(r.BatteryOK))
	default:
		err = fmt.Errorf("unknown sensor type 0x%02x", uint8(typ))
	}
	return err
}
