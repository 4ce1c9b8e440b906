package cresta

import (
	"errors"
	"fmt"
)

// KmPerMile converts the anemometer's mph readings to km/h.
const KmPerMile = 1.60934

// ErrTemperatureSign is returned when a temperature sign nibble is neither 0x4 nor 0xC.
var ErrTemperatureSign = errors.New("cresta: unexpected temperature sign")

// Readings are the physical quantities carried by a packet. Only the fields
// belonging to the packet's sensor type are set.
type Readings struct {
	Temperature         *float64 `json:"temperature_c,omitempty"`
	Humidity            *int     `json:"humidity_pct,omitempty"`
	WindChill           *float64 `json:"windchill_c,omitempty"`
	WindSpeed           *float64 `json:"wind_speed_kmh,omitempty"`
	WindGust            *float64 `json:"wind_gust_kmh,omitempty"`
	WindDirection       *float64 `json:"wind_direction_deg,omitempty"`
	AbsoluteTemperature *float64 `json:"absolute_temperature_c,omitempty"`
	MEDPerHour          *float64 `json:"med_per_hour,omitempty"`
	UVIndex             *float64 `json:"uv_index,omitempty"`
	UVLevel             *int     `json:"uv_level,omitempty"`
	RainTicks           *int     `json:"rain_ticks,omitempty"`
	BatteryOK           bool     `json:"battery_ok"`
}

// ExtractReadings decodes the readings of a decrypted packet.
func ExtractReadings(p Packet) (Readings, error) {
	d := p.Data
	r := Readings{BatteryOK: p.BatteryOK}

	switch p.Type {
	case TypeThermoHygro:
		t, err := temperature(d, 4)
		if err != nil {
			return r, err
		}
		h := int(d[6]>>4)*10 + int(d[6]&0x0f)
		r.Temperature = &t
		r.Humidity = &h

	case TypeAnemometer:
		t, err := temperature(d, 4)
		if err != nil {
			return r, err
		}
		// Windchill uses the temperature encoding at offset 6.
		wc, err := temperature(d, 6)
		if err != nil {
			return r, err
		}
		speed := bcd3(d[9]&0x0f, d[8]>>4, d[8]&0x0f) * KmPerMile
		gust := bcd3(d[10]>>4, d[10]&0x0f, d[9]>>4) * KmPerMile
		dir := windDirection(d[11] >> 4)
		r.Temperature = &t
		r.WindChill = &wc
		r.WindSpeed = &speed
		r.WindGust = &gust
		r.WindDirection = &dir

	case TypeUV:
		abs := bcd3(d[5]&0x0f, d[4]>>4, d[4]&0x0f)
		medh := bcd3(d[6]>>4, d[6]&0x0f, d[5]>>4)
		idx := bcd3(d[8]&0x0f, d[7]>>4, d[7]&0x0f)
		level := int(d[8] >> 4)
		r.AbsoluteTemperature = &abs
		r.MEDPerHour = &medh
		r.UVIndex = &idx
		r.UVLevel = &level

	case TypeRain:
		ticks := int(d[5])<<8 | int(d[4])
		r.RainTicks = &ticks

	default:
		return r, fmt.Errorf("cresta: no readings for sensor type %s", p.Type)
	}

	return r, nil
}

// bcd3 combines three BCD digits into tens.ones.tenths.
func bcd3(tens, ones, tenths byte) float64 {
	return float64(tens)*10 + float64(ones) + float64(tenths)/10
}

// temperature decodes the signed BCD temperature whose lowest byte is at offset.
// The high nibble of offset+1 carries the sign: 0x4 negative, 0xC positive.
func temperature(d [MaxDataLen]byte, offset int) (float64, error) {
	t := bcd3(d[offset+1]&0x0f, d[offset]>>4, d[offset]&0x0f)
	switch d[offset+1] >> 4 {
	case 0x04:
		return -t, nil
	case 0x0c:
		return t, nil
	}
	return 0, fmt.Errorf("%w: 0x%x", ErrTemperatureSign, d[offset+1]>>4)
}

// windDirection converts the gray-coded 16-point compass nibble into degrees.
func windDirection(count byte) float64 {
	count ^= (count & 8) >> 1
	count ^= (count & 4) >> 1
	count ^= (count & 2) >> 1
	count = -count & 0x0f
	return 22.5 * float64(count)
}
