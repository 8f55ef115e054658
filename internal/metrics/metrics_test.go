// internal/metrics/metrics_test.go
package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tamzrod/mightywatt/internal/poller"
	"github.com/tamzrod/mightywatt/internal/status"
)

// value returns the first sample of the named family (counter or gauge).
func value(t *testing.T, m *Metrics, name string) float64 {
	t.Helper()
	mfs, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather err=%v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		metric := mf.GetMetric()[0]
		if c := metric.GetCounter(); c != nil {
			return c.GetValue()
		}
		return metric.GetGauge().GetValue()
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestObserve_Success(t *testing.T) {
	m := New()

	at := time.Unix(1700000000, 0)
	m.Observe(poller.PollResult{
		At: at,
		Snapshot: status.Snapshot{
			Current:       1.5,
			Voltage:       4,
			Power:         6,
			Resistance:    2.5,
			Temperature:   41,
			Remote:        true,
			CurrentStatus: status.Overheat,
			At:            at,
		},
	})

	cases := map[string]float64{
		"mightywatt_ticks_total":                   1,
		"mightywatt_tick_errors_total":             0,
		"mightywatt_current_amperes":               1.5,
		"mightywatt_voltage_volts":                 4,
		"mightywatt_power_watts":                   6,
		"mightywatt_resistance_ohms":               2.5,
		"mightywatt_temperature_celsius":           41,
		"mightywatt_fault_bits":                    8,
		"mightywatt_remote_sensing":                1,
		"mightywatt_last_update_timestamp_seconds": 1700000000,
	}
	for name, want := range cases {
		if got := value(t, m, name); got != want {
			t.Fatalf("%s = %v, want %v", name, got, want)
		}
	}
}

func TestObserve_FailureKeepsGauges(t *testing.T) {
	m := New()

	m.Observe(poller.PollResult{Snapshot: status.Snapshot{Voltage: 12}})
	m.Observe(poller.PollResult{Err: errors.New("short read")})

	if got := value(t, m, "mightywatt_ticks_total"); got != 2 {
		t.Fatalf("ticks = %v", got)
	}
	if got := value(t, m, "mightywatt_tick_errors_total"); got != 1 {
		t.Fatalf("tick errors = %v", got)
	}
	if got := value(t, m, "mightywatt_voltage_volts"); got != 12 {
		t.Fatalf("voltage gauge should keep last good value, got %v", got)
	}
}

func TestHandler_ExposesHandshakeAttempts(t *testing.T) {
	m := New()
	m.HandshakeAttempt("identify", 1)
	m.HandshakeAttempt("identify", 2)
	m.HandshakeAttempt("properties", 1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`mightywatt_handshake_attempts_total{phase="identify"} 2`,
		`mightywatt_handshake_attempts_total{phase="properties"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}
