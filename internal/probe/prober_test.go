package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmaes/prometheus-shelly-exporter/internal/cache"
	"github.com/dmaes/prometheus-shelly-exporter/internal/config"
	exporterrors "github.com/dmaes/prometheus-shelly-exporter/internal/errors"
	"github.com/dmaes/prometheus-shelly-exporter/internal/metrics"
)

const plugStatusJSON = `{
	"wifi_sta": {"connected": true},
	"cloud": {"enabled": true, "connected": false},
	"mqtt": {"connected": false},
	"serial": 42,
	"update": {"has_update": false},
	"ram_total": 51104,
	"ram_free": 38916,
	"fs_size": 233681,
	"fs_free": 162648,
	"uptime": 1234,
	"temperature": 28.5,
	"overtemperature": false,
	"relays": [
		{"ison": true, "has_timer": false, "overpower": false},
		{"ison": false, "has_timer": true, "timer_started": 1700000000,
		 "timer_duration": 30, "timer_remaining": 12, "overpower": false}
	],
	"meters": [
		{"power": 48.2, "is_valid": true, "total": 12345},
		{"power": 0, "is_valid": true, "total": 678}
	]
}`

const plugSettingsJSON = `{
	"max_power": 2500,
	"led_status_disable": false,
	"led_power_disable": true
}`

const trvStatusJSON = `{
	"wifi_sta": {"connected": true},
	"cloud": {"enabled": false, "connected": false},
	"mqtt": {"connected": true},
	"serial": 7,
	"update": {"has_update": true},
	"ram_total": 97280,
	"ram_free": 22000,
	"fs_size": 65536,
	"fs_free": 59000,
	"uptime": 99,
	"bat": {"value": 84, "voltage": 3.9},
	"charger": false,
	"thermostats": [
		{"pos": 12.5,
		 "target_t": {"enabled": true, "value": 21},
		 "tmp": {"value": 19.8, "is_valid": true},
		 "schedule": true, "schedule_profile": 1, "boost_minutes": 30}
	]
}`

const htStatusJSON = `{
	"wifi_sta": {"connected": false},
	"cloud": {"enabled": true, "connected": true},
	"mqtt": {"connected": false},
	"serial": 3,
	"update": {"has_update": false},
	"ram_total": 50592,
	"ram_free": 39000,
	"fs_size": 233681,
	"fs_free": 165000,
	"uptime": 17,
	"bat": {"value": 99, "voltage": 2.92},
	"hum": {"value": 54.5, "is_valid": true},
	"tmp": {"value": 22.12, "is_valid": true}
}`

// deviceServer fakes a Shelly device serving fixed JSON per path.
func deviceServer(t *testing.T, responses map[string]string) (*httptest.Server, string) {
	t.Helper()
	mux := http.NewServeMux()
	for path, body := range responses {
		body := body
		mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, strings.TrimPrefix(srv.URL, "http://")
}

func testConfig() config.Config {
	return config.Config{
		Timeout:   5 * time.Second,
		TargetCfg: map[string]config.TargetConfig{},
	}
}

func seriesValues(fam *metrics.Family) []float64 {
	if fam == nil {
		return nil
	}
	values := make([]float64, 0, len(fam.Series))
	for _, s := range fam.Series {
		values = append(values, s.Value)
	}
	return values
}

func TestProbePlugS(t *testing.T) {
	_, target := deviceServer(t, map[string]string{
		"/shelly":   `{"type": "SHPLG-S"}`,
		"/status":   plugStatusJSON,
		"/settings": plugSettingsJSON,
	})

	prober := NewProber(testConfig(), nil)
	col, err := prober.Probe(context.Background(), target, "", "")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	// Every series carries the collection identity labels.
	for _, fam := range col.Families() {
		for _, s := range fam.Series {
			if s.Labels["name"] != target || s.Labels["type"] != "SHPLG-S" {
				t.Errorf("Series %s missing identity labels: %v", fam.Name, s.Labels)
			}
		}
	}

	ison := col.Family("shelly_relay_ison")
	if got := seriesValues(ison); len(got) != 2 || got[0] != 1 || got[1] != 0 {
		t.Errorf("Expected relay_ison [1 0], got %v", got)
	}
	if ison.Series[0].Labels["relay"] != "0" || ison.Series[1].Labels["relay"] != "1" {
		t.Errorf("Expected relay labels 0 and 1, got %v and %v",
			ison.Series[0].Labels, ison.Series[1].Labels)
	}

	if got := seriesValues(col.Family("shelly_relay_has_timer")); len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("Expected relay_has_timer [0 1], got %v", got)
	}

	// Timer details exist only for the channel with an armed timer.
	for _, name := range []string{
		"shelly_relay_timer_started",
		"shelly_relay_timer_duration",
		"shelly_relay_timer_remaining",
	} {
		fam := col.Family(name)
		if fam == nil || len(fam.Series) != 1 {
			t.Fatalf("Expected exactly one %s series, got %+v", name, fam)
		}
		if fam.Series[0].Labels["relay"] != "1" {
			t.Errorf("Expected %s on relay 1, got labels %v", name, fam.Series[0].Labels)
		}
	}
	if got := col.Family("shelly_relay_timer_remaining").Series[0].Value; got != 12 {
		t.Errorf("Expected timer_remaining 12, got %v", got)
	}

	if got := seriesValues(col.Family("shelly_meter_power")); len(got) != 2 || got[0] != 48.2 || got[1] != 0 {
		t.Errorf("Expected meter_power [48.2 0], got %v", got)
	}
	if got := seriesValues(col.Family("shelly_meter_total")); len(got) != 2 || got[0] != 12345 || got[1] != 678 {
		t.Errorf("Expected meter_total [12345 678], got %v", got)
	}

	if got := col.Family("shelly_max_power"); got == nil || got.Series[0].Value != 2500 {
		t.Errorf("Expected max_power 2500, got %+v", got)
	}
	if got := col.Family("shelly_led_power_disable"); got == nil || got.Series[0].Value != 1 {
		t.Errorf("Expected led_power_disable 1, got %+v", got)
	}
	if got := col.Family("shelly_temperature"); got == nil || got.Series[0].Value != 28.5 {
		t.Errorf("Expected temperature 28.5, got %+v", got)
	}
	if got := col.Family("shelly_uptime"); got == nil || got.Type != metrics.Counter {
		t.Errorf("Expected uptime counter, got %+v", got)
	}
}

func TestProbePlug1SkipsLedAndTemperature(t *testing.T) {
	_, target := deviceServer(t, map[string]string{
		"/shelly":   `{"type": "SHPLG-1"}`,
		"/status":   plugStatusJSON,
		"/settings": `{"max_power": 3500}`,
	})

	prober := NewProber(testConfig(), nil)
	col, err := prober.Probe(context.Background(), target, "", "")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	if col.Family("shelly_led_status_disable") != nil {
		t.Error("Plug-1 must not report LED settings")
	}
	if col.Family("shelly_temperature") != nil {
		t.Error("Plug-1 must not report internal temperature")
	}
	if got := col.Family("shelly_max_power"); got == nil || got.Series[0].Value != 3500 {
		t.Errorf("Expected max_power 3500, got %+v", got)
	}
}

func TestProbeTRV(t *testing.T) {
	_, target := deviceServer(t, map[string]string{
		"/shelly": `{"type": "SHTRV-01"}`,
		"/status": trvStatusJSON,
	})

	prober := NewProber(testConfig(), nil)
	col, err := prober.Probe(context.Background(), target, "", "")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	if got := col.Family("shelly_bat_charge"); got == nil || got.Series[0].Value != 84 {
		t.Errorf("Expected bat_charge 84, got %+v", got)
	}
	if got := col.Family("shelly_bat_charger"); got == nil || got.Series[0].Value != 0 {
		t.Errorf("Expected bat_charger 0, got %+v", got)
	}

	targetT := col.Family("shelly_thermostat_target_t")
	if targetT == nil || targetT.Series[0].Value != 21 {
		t.Fatalf("Expected thermostat_target_t 21, got %+v", targetT)
	}
	if targetT.Series[0].Labels["thermostats"] != "0" {
		t.Errorf("Expected thermostats label 0, got %v", targetT.Series[0].Labels)
	}
	if got := col.Family("shelly_pos"); got == nil || got.Series[0].Value != 12.5 {
		t.Errorf("Expected pos 12.5, got %+v", got)
	}
	if got := col.Family("shelly_thermostat_is_scheduled"); got == nil || got.Series[0].Value != 1 {
		t.Errorf("Expected thermostat_is_scheduled 1, got %+v", got)
	}
	if got := col.Family("shelly_thermostat_boost_minutes"); got == nil || got.Series[0].Value != 30 {
		t.Errorf("Expected thermostat_boost_minutes 30, got %+v", got)
	}
}

func TestProbeHT(t *testing.T) {
	_, target := deviceServer(t, map[string]string{
		"/shelly": `{"type": "SHHT-1"}`,
		"/status": htStatusJSON,
	})

	prober := NewProber(testConfig(), nil)
	col, err := prober.Probe(context.Background(), target, "", "")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	if got := col.Family("shelly_humidity"); got == nil || got.Series[0].Value != 54.5 {
		t.Errorf("Expected humidity 54.5, got %+v", got)
	}
	if got := col.Family("shelly_temperature"); got == nil || got.Series[0].Value != 22.12 {
		t.Errorf("Expected temperature 22.12, got %+v", got)
	}
	if got := col.Family("shelly_humidity_valid"); got == nil || got.Series[0].Value != 1 {
		t.Errorf("Expected humidity_valid 1, got %+v", got)
	}
	if got := col.Family("shelly_bat_voltage"); got == nil || got.Series[0].Value != 2.92 {
		t.Errorf("Expected bat_voltage 2.92, got %+v", got)
	}
}

func TestProbeUnknownTypeReportsBaseOnly(t *testing.T) {
	_, target := deviceServer(t, map[string]string{
		"/shelly": `{"type": "SHSW-25"}`,
		"/status": plugStatusJSON,
	})

	prober := NewProber(testConfig(), nil)
	col, err := prober.Probe(context.Background(), target, "", "")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	for _, name := range []string{
		"shelly_wifi_sta_connected", "shelly_cloud_enabled", "shelly_cloud_connected",
		"shelly_mqtt_connected", "shelly_serial", "shelly_has_update",
		"shelly_ram_total", "shelly_ram_free", "shelly_fs_size", "shelly_fs_free",
		"shelly_uptime",
	} {
		if col.Family(name) == nil {
			t.Errorf("Expected base metric %s", name)
		}
	}
	if col.Len() != 11 {
		t.Errorf("Expected exactly the 11 base families, got %d", col.Len())
	}
	if col.Family("shelly_relay_ison") != nil {
		t.Error("Unknown type must not get relay metrics")
	}
}

func TestProbeMissingFieldFails(t *testing.T) {
	_, target := deviceServer(t, map[string]string{
		"/shelly": `{"type": "SHHT-1"}`,
		"/status": `{"wifi_sta": {"connected": true}}`,
	})

	prober := NewProber(testConfig(), nil)
	_, err := prober.Probe(context.Background(), target, "", "")
	if err == nil {
		t.Fatal("Expected probe to fail on missing fields")
	}
	if !exporterrors.IsProbeError(err) {
		t.Errorf("Expected a ProbeError, got %T: %v", err, err)
	}
	if !errors.Is(err, exporterrors.ErrMissingField) {
		t.Errorf("Expected ErrMissingField, got %v", err)
	}
}

func TestProbeUnreachableTarget(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 200 * time.Millisecond
	prober := NewProber(cfg, nil)

	_, err := prober.Probe(context.Background(), "127.0.0.1:1", "", "")
	if err == nil {
		t.Fatal("Expected probe to fail")
	}
	if !exporterrors.IsProbeError(err) {
		t.Errorf("Expected a ProbeError, got %T: %v", err, err)
	}
}

func TestProbeTargetCfgOverrides(t *testing.T) {
	mux := http.NewServeMux()
	authed := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != "override" || pass != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		}
	}
	mux.HandleFunc("/shelly", authed(`{"type": "SHHT-1"}`))
	mux.HandleFunc("/status", authed(htStatusJSON))
	srv := httptest.NewServer(mux)
	defer srv.Close()
	target := strings.TrimPrefix(srv.URL, "http://")

	cfg := testConfig()
	cfg.TargetCfg[target] = config.TargetConfig{
		Username:    "override",
		Password:    "secret",
		ExtraLabels: map[string]string{"location": "attic", "name": "must-lose"},
	}

	prober := NewProber(cfg, nil)
	col, err := prober.Probe(context.Background(), target, "global", "creds")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	s := col.Family("shelly_humidity").Series[0]
	if s.Labels["location"] != "attic" {
		t.Errorf("Expected extra label location=attic, got %v", s.Labels)
	}
	// Identity labels always win over configured extras.
	if s.Labels["name"] != target {
		t.Errorf("Expected name label %q, got %q", target, s.Labels["name"])
	}
}

func TestProbeUsesTypeCache(t *testing.T) {
	var shellyHits int
	mux := http.NewServeMux()
	mux.HandleFunc("/shelly", func(w http.ResponseWriter, _ *http.Request) {
		shellyHits++
		_, _ = w.Write([]byte(`{"type": "SHHT-1"}`))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(htStatusJSON))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	target := strings.TrimPrefix(srv.URL, "http://")

	prober := NewProber(testConfig(), cache.NewTypeCache(time.Minute))

	for i := 0; i < 3; i++ {
		if _, err := prober.Probe(context.Background(), target, "", ""); err != nil {
			t.Fatalf("Probe %d failed: %v", i, err)
		}
	}
	if shellyHits != 1 {
		t.Errorf("Expected one /shelly hit with a warm type cache, got %d", shellyHits)
	}
}

func TestDown(t *testing.T) {
	col := Down("plug1")
	fam := col.Family("shelly_down")
	if fam == nil || len(fam.Series) != 1 {
		t.Fatalf("Expected a single down series, got %+v", fam)
	}
	if fam.Series[0].Value != 1 {
		t.Errorf("Expected down=1, got %v", fam.Series[0].Value)
	}
	if fam.Series[0].Labels["name"] != "plug1" {
		t.Errorf("Expected name label plug1, got %v", fam.Series[0].Labels)
	}
	if col.Len() != 1 {
		t.Errorf("Expected only the down family, got %d", col.Len())
	}
}
