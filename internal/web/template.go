package web

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/sweeney/cresta-receiver/internal/cresta"
	"github.com/sweeney/cresta-receiver/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"hex": func(addr uint8) string {
		return fmt.Sprintf("0x%02x", addr)
	},
	"readings": formatReadings,
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="30">
<title>Cresta Receiver</title>
<style>
body { font-family: monospace; max-width: 900px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.with_data { color: green; }
.no_data { color: orange; }
.low { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Cresta Receiver</h1>

<h2>Sensors</h2>
{{if .Sensors}}<table>
<tr><th>Name</th><th>Address</th><th>Type</th><th>State</th><th>Seq</th><th>Last seen</th><th>Battery</th><th>Readings</th></tr>
{{range .Sensors}}<tr>
<td><a href="/sensors/{{hex .Address}}">{{.Name}}</a></td>
<td>{{hex .Address}}</td>
<td>{{.Type}}</td>
<td class="{{.State}}">{{.State}}</td>
<td>{{.Seq}}</td>
<td>{{if .LastSeen.IsZero}}never{{else}}{{.LastSeen.UTC.Format "2006-01-02T15:04:05Z"}}{{end}}</td>
<td>{{if .BatteryOK}}ok{{else if .Seq}}<span class="low">low</span>{{end}}</td>
<td>{{readings .Readings}}</td>
</tr>{{end}}
</table>{{else}}<p>No sensors heard yet.</p>{{end}}

<h2>Receive Path</h2>
<table>
<tr><th>Edges</th><td>{{.Counters.Edges}}</td></tr>
<tr><th>Edges dropped</th><td>{{.Counters.EdgesDropped}}</td></tr>
<tr><th>Frames</th><td>{{.Counters.Frames}}</td></tr>
{{range $reason, $n := .Counters.Rejects}}<tr><th>Rejected ({{$reason}})</th><td>{{$n}}</td></tr>
{{end}}<tr><th>Checksum errors</th><td>{{.Counters.ChecksumErrors}}</td></tr>
<tr><th>Length errors</th><td>{{.Counters.LengthErrors}}</td></tr>
<tr><th>Queue drops</th><td>{{.Counters.QueueDropped}}</td></tr>
<tr><th>Registry full</th><td>{{.Counters.RegistryFull}}</td></tr>
<tr><th>Published</th><td>{{.Counters.Published}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>GPIO</th><td>{{.Config.GPIOChip}} line {{.Config.GPIOLine}}</td></tr>
<tr><th>Workers</th><td>{{.Config.Workers}}</td></tr>
<tr><th>Max sensors</th><td>{{.Config.MaxSensors}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>History store</th><td>{{if .Config.Store}}enabled{{else}}disabled{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">Metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}

func formatReadings(r *cresta.Readings) string {
	if r == nil {
		return ""
	}
	var parts []string
	add := func(format string, v *float64) {
		if v != nil {
			parts = append(parts, fmt.Sprintf(format, *v))
		}
	}
	add("%.1f°C", r.Temperature)
	if r.Humidity != nil {
		parts = append(parts, fmt.Sprintf("%d%%", *r.Humidity))
	}
	add("chill %.1f°C", r.WindChill)
	add("wind %.1f km/h", r.WindSpeed)
	add("gust %.1f km/h", r.WindGust)
	add("%.1f°", r.WindDirection)
	add("UV %.1f", r.UVIndex)
	add("%.1f MED/h", r.MEDPerHour)
	if r.RainTicks != nil {
		parts = append(parts, fmt.Sprintf("%d ticks", *r.RainTicks))
	}
	return strings.Join(parts, ", ")
}
