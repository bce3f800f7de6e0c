package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/fan-controller/internal/logic"
	"github.com/sweeney/fan-controller/internal/status"
)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		SampleMs:    15000,
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		StatePrefix: "homeassistant",
		TopicPrefix: "fan-controller",
		HTTPPort:    ":8080",
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func bathroom(fan string) logic.Snapshot {
	return logic.Snapshot{
		Name:  "bathroom",
		Light: "off",
		Fan:   fan,
		Slots: []logic.SlotSnapshot{
			{Slot: logic.SlotPrimary, Live: fan == "on", Deadline: time.Date(2026, 1, 1, 0, 10, 0, 0, time.UTC)},
			{Slot: logic.SlotBackup},
			{Slot: logic.SlotMotion},
		},
		Counts: logic.Counts{FanOn: 5, PrimaryOff: 2},
	}
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.UpdateFan(bathroom("on"))
	tr.SetMQTTConnected(true)

	resp, body := get(t, ts.URL+"/index.json")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var sj status.StatusJSON
	require.NoError(t, json.Unmarshal([]byte(body), &sj))
	assert.True(t, sj.Status.MQTT.Connected)
	assert.Equal(t, "tcp://192.168.1.200:1883", sj.Status.MQTT.Broker)
	require.Len(t, sj.Status.Fans, 1)
	assert.Equal(t, "on", sj.Status.Fans[0].Fan)
	assert.Equal(t, 5, sj.Status.Fans[0].Counts.FanOn)
	assert.True(t, sj.Status.Fans[0].Timers["primary"].Live)
	assert.Equal(t, int64(15000), sj.Status.Config.SampleMs)
}

func TestJSONNoFans(t *testing.T) {
	ts, _ := newTestServer(t)

	_, body := get(t, ts.URL+"/index.json")
	var sj status.StatusJSON
	require.NoError(t, json.Unmarshal([]byte(body), &sj))
	assert.Empty(t, sj.Status.Fans)
	assert.False(t, sj.Status.MQTT.Connected)
}

func TestFanEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.UpdateFan(bathroom("off"))

	resp, body := get(t, ts.URL+"/fans/bathroom")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, string(status.FormatFanJSON(bathroom("off"))), body)

	resp, _ = get(t, ts.URL+"/fans/kitchen")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTMLEndpoints(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.UpdateFan(bathroom("on"))

	for _, path := range []string{"/", "/index.html"} {
		resp, body := get(t, ts.URL+path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"), path)
		assert.Contains(t, body, `<h2 id="fan-bathroom">bathroom</h2>`)
		assert.Contains(t, body, "primary timer")
		assert.Contains(t, body, "fires ")
	}
}

func TestHTMLWithoutFans(t *testing.T) {
	ts, _ := newTestServer(t)

	_, body := get(t, ts.URL+"/")
	assert.Contains(t, body, "No fans running.")
	assert.Contains(t, body, "disconnected")
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, _ := get(t, ts.URL+"/nonexistent")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.UpdateFan(bathroom("on"))

	_, body := get(t, ts.URL+"/fans/bathroom")
	assert.Contains(t, body, `"fan":"on"`)

	tr.UpdateFan(bathroom("off"))
	_, body = get(t, ts.URL+"/fans/bathroom")
	assert.Contains(t, body, `"fan":"off"`)
}
