package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/fan-controller/internal/status"
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
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "unknown"
		}
		return s
	},
	"clock": func(t time.Time) string {
		return t.Local().Format("15:04:05")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Fan Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Fan Controller</h1>

{{range .Fans}}
<h2 id="fan-{{.Name}}">{{.Name}}</h2>
<table>
<tr><th>Light</th><td class="{{stateOrUnknown .Light}}">{{stateOrUnknown .Light}}</td></tr>
<tr><th>Fan</th><td class="{{stateOrUnknown .Fan}}">{{stateOrUnknown .Fan}}</td></tr>
{{if .Motion}}<tr><th>Motion</th><td>{{.Motion}}</td></tr>{{end}}
{{if .Presence}}<tr><th>Presence</th><td>{{.Presence}}</td></tr>{{end}}
{{if .TrendEnabled}}<tr><th>Humidity</th><td>{{printf "%.1f" .Humidity}} (avg {{printf "%.2f" .HumidityAverage}})</td></tr>{{end}}
{{range .Slots}}<tr><th>{{.Slot}} timer</th><td>{{if .Live}}fires {{clock .Deadline}}{{else}}idle{{end}}</td></tr>
{{end}}
<tr><th>Fan on / main off / backup off</th><td>{{.Counts.FanOn}} / {{.Counts.PrimaryOff}} / {{.Counts.BackupOff}}</td></tr>
<tr><th>Trend triggers</th><td>{{.Counts.TrendTriggers}}</td></tr>
<tr><th>Command errors</th><td>{{.Counts.CommandErrors}}</td></tr>
</table>
<p><a href="/fans/{{.Name}}">JSON</a></p>
{{else}}
<p>No fans running.</p>
{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>State prefix</th><td>{{.Config.StatePrefix}}</td></tr>
<tr><th>Topic prefix</th><td>{{.Config.TopicPrefix}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Sample</th><td>{{.Config.SampleMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
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
