// internal/httpapi/server_test.go
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/tamzrod/mightywatt/internal/device"
	"github.com/tamzrod/mightywatt/internal/poller"
	"github.com/tamzrod/mightywatt/internal/protocol"
	"github.com/tamzrod/mightywatt/internal/status"
	"github.com/tamzrod/mightywatt/internal/transport"
)

// ---- fake device ----

type call struct {
	name  string
	value float64
}

type fakeDevice struct {
	mu        sync.Mutex
	calls     []call
	snap      status.Snapshot
	statusErr error
	age       float64
	rate      float64
}

func (f *fakeDevice) record(name string, v float64) {
	f.mu.Lock()
	f.calls = append(f.calls, call{name, v})
	f.mu.Unlock()
}

func (f *fakeDevice) Status() (status.Snapshot, error) { return f.snap, f.statusErr }

func (f *fakeDevice) Properties() status.Properties {
	return status.Properties{FirmwareVersion: "2.5.3", MaxPower: 75}
}

func (f *fakeDevice) MsSinceLastUpdate() float64 { return f.age }

func (f *fakeDevice) SetMode(m protocol.Mode, v float64) error {
	if _, err := protocol.EncodeSetpoint(m, v); err != nil {
		return err
	}
	f.record(m.String(), v)
	return nil
}

func (f *fakeDevice) SetRemote(remote bool) error {
	v := 0.0
	if remote {
		v = 1
	}
	f.record("remote", v)
	return nil
}

func (f *fakeDevice) SetTemperatureThreshold(v float64) error {
	if _, err := protocol.EncodeTemperatureThreshold(v); err != nil {
		return err
	}
	f.record("threshold", v)
	return nil
}

func (f *fakeDevice) Stop() error {
	f.record("stop", 0)
	return nil
}

func (f *fakeDevice) SetUpdateRate(hz float64) error {
	if err := poller.ValidateRate(hz); err != nil {
		return err
	}
	f.rate = hz
	return nil
}

func (f *fakeDevice) UpdateRate() float64 { return f.rate }

func (f *fakeDevice) Port() string { return "/dev/ttyACM0" }

func (f *fakeDevice) lastCall() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return call{}
	}
	return f.calls[len(f.calls)-1]
}

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func get(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("%s: decode body: %v", path, err)
	}
	return rec.Code, body
}

// ---- tests ----

func TestStatus_JSONFieldNames(t *testing.T) {
	dev := &fakeDevice{snap: status.Snapshot{
		Current:       1,
		Voltage:       5,
		Power:         5,
		Resistance:    5,
		CurrentStatus: status.Overheat,
		Faults:        []string{"OVERHEAT"},
	}}
	h := New(dev, quietLog()).Handler()

	for _, path := range []string{"/status", "/api/status"} {
		code, body := get(t, h, path)
		if code != http.StatusOK {
			t.Fatalf("%s: code=%d", path, code)
		}
		if body["current"] != 1.0 || body["power"] != 5.0 || body["currentStatus"] != 8.0 {
			t.Fatalf("%s: unexpected body %v", path, body)
		}
	}
}

func TestModeRoutes(t *testing.T) {
	dev := &fakeDevice{}
	h := New(dev, quietLog()).Handler()

	for _, mode := range []string{"cc", "cv", "cp", "cr"} {
		code, body := get(t, h, "/mode/"+mode+"/1.5")
		if code != http.StatusOK || body["success"] != true {
			t.Fatalf("%s: code=%d body=%v", mode, code, body)
		}
		if c := dev.lastCall(); c.name != mode || c.value != 1.5 {
			t.Fatalf("%s: device saw %+v", mode, c)
		}
	}
}

func TestValidationIsBadRequest(t *testing.T) {
	h := New(&fakeDevice{}, quietLog()).Handler()

	for _, path := range []string{
		"/mode/cc/-1",
		"/mode/cc/abc",
		"/mode/xx/1",
		"/voltage-sensing/both",
		"/temperature-threshold/300",
		"/update-rate/1",
	} {
		code, body := get(t, h, path)
		if code != http.StatusBadRequest {
			t.Fatalf("%s: code=%d body=%v", path, code, body)
		}
		if _, ok := body["error"]; !ok {
			t.Fatalf("%s: missing error field", path)
		}
	}
}

func TestStatusErrorsMapToUnavailable(t *testing.T) {
	for _, err := range []error{
		device.ErrStale,
		fmt.Errorf("device: last poll failed: %w", transport.ErrComm),
	} {
		h := New(&fakeDevice{statusErr: err}, quietLog()).Handler()
		if code, _ := get(t, h, "/status"); code != http.StatusServiceUnavailable {
			t.Fatalf("%v: code=%d", err, code)
		}
	}

	h := New(&fakeDevice{statusErr: errors.New("boom")}, quietLog()).Handler()
	if code, _ := get(t, h, "/status"); code != http.StatusInternalServerError {
		t.Fatalf("unclassified error: code=%d", code)
	}
}

func TestSensingStopAndAge(t *testing.T) {
	dev := &fakeDevice{age: 42}
	h := New(dev, quietLog()).Handler()

	get(t, h, "/voltage-sensing/remote")
	if c := dev.lastCall(); c.name != "remote" || c.value != 1 {
		t.Fatalf("remote: device saw %+v", c)
	}
	get(t, h, "/api/voltage-sensing/local")
	if c := dev.lastCall(); c.name != "remote" || c.value != 0 {
		t.Fatalf("local: device saw %+v", c)
	}
	get(t, h, "/stop")
	if c := dev.lastCall(); c.name != "stop" {
		t.Fatalf("stop: device saw %+v", c)
	}

	_, body := get(t, h, "/ms_since_last_update")
	if body["ms_since_last_update"] != 42.0 {
		t.Fatalf("age body %v", body)
	}
}

func TestUpdateRate(t *testing.T) {
	dev := &fakeDevice{rate: 10}
	h := New(dev, quietLog()).Handler()

	if code, _ := get(t, h, "/update-rate/50"); code != http.StatusOK {
		t.Fatalf("set rate code=%d", code)
	}
	_, body := get(t, h, "/update-rate")
	if body["update_rate"] != 50.0 {
		t.Fatalf("rate body %v", body)
	}
}

func TestHealth(t *testing.T) {
	dev := &fakeDevice{age: 100}
	h := New(dev, quietLog(), WithStaleAfter(time.Second)).Handler()

	if code, body := get(t, h, "/health"); code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("fresh: code=%d body=%v", code, body)
	}

	dev.age = 1500
	if code, body := get(t, h, "/health"); code != http.StatusServiceUnavailable || body["status"] != "stale" {
		t.Fatalf("stale: code=%d body=%v", code, body)
	}
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "mightywatt_ticks_total 1\n")
	})
	h := New(&fakeDevice{}, quietLog(), WithMetrics(metrics)).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "mightywatt_ticks_total") {
		t.Fatalf("metrics body %q", rec.Body.String())
	}
}

func TestWebsocketStream(t *testing.T) {
	hub := NewHub(quietLog())
	defer hub.Stop()

	srv := httptest.NewServer(New(&fakeDevice{}, quietLog(), WithHub(hub)).Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Observe(poller.PollResult{Snapshot: status.Snapshot{Current: 2.5}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg struct {
		Status status.Snapshot `json:"status"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	if msg.Status.Current != 2.5 {
		t.Fatalf("streamed current = %v", msg.Status.Current)
	}
}

func TestHubStop_DisconnectsClients(t *testing.T) {
	hub := NewHub(quietLog())

	srv := httptest.NewServer(New(&fakeDevice{}, quietLog(), WithHub(hub)).Handler())
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Stop()
	if n := hub.ClientCount(); n != 0 {
		t.Fatalf("clients after Stop = %d", n)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}

	// later clients are dropped straight after the upgrade
	late, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial after Stop: %v", err)
	}
	defer late.Close()
	late.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := late.ReadMessage(); err == nil {
		t.Fatalf("expected read error after Stop")
	}
	if n := hub.ClientCount(); n != 0 {
		t.Fatalf("late client registered, count = %d", n)
	}
}
