package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/multierr"

	"github.com/chrissnell/altiguard/internal/types"
)

const sampleConfig = `
session:
  tick-interval: 500ms
  all-stale-timeout: 2m
  max-duration: 6h
danger:
  enabled-triggers: [INSTANT_RATE, TOTAL_GAIN]
  instant-rate-threshold: 300
  total-gain-threshold: 1200
sensors:
  altitude: udp
  acceleration: udp
  location: nmea
  udp:
    listen-addr: 127.0.0.1:9000
  nmea:
    serial-device: /dev/ttyUSB0
    reconnect-delay: 10s
storage:
  backend: sqlite
  sqlite:
    path: /var/lib/altiguard/tracks.db
notifiers:
  - type: log
  - type: webhook
    webhook:
      url: http://localhost:9999/alerts
  - type: aprs
    aprs:
      callsign: N0CALL-9
      recipient: N0CALL
api:
  port: 9090
`

func TestYAMLProviderLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		t.Fatal(err)
	}

	p := NewYAMLProvider(path)
	cfg, err := p.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Session.TickInterval != 500*time.Millisecond {
		t.Errorf("tick interval = %v", cfg.Session.TickInterval)
	}
	if cfg.Session.AllStaleTimeout != 2*time.Minute {
		t.Errorf("all-stale timeout = %v", cfg.Session.AllStaleTimeout)
	}
	if cfg.Session.MaxDuration != 6*time.Hour {
		t.Errorf("max duration = %v", cfg.Session.MaxDuration)
	}
	if cfg.Session.NotifyTimeout != 5*time.Second {
		t.Errorf("notify timeout default = %v", cfg.Session.NotifyTimeout)
	}
	if cfg.Sensors.NMEA.Baud != 9600 || cfg.Sensors.NMEA.ReconnectDelay != 10*time.Second {
		t.Errorf("nmea = %+v", cfg.Sensors.NMEA)
	}
	if cfg.API.ListenAddr != "0.0.0.0" || cfg.API.Port != 9090 {
		t.Errorf("api = %+v", cfg.API)
	}

	settings := cfg.Danger.Settings()
	if !settings.IsEnabled(types.TriggerInstantRate) || settings.IsEnabled(types.TriggerAverageRate) {
		t.Errorf("enabled triggers = %v", settings.EnabledTriggers)
	}
	if settings.InstantRateThr != 300 || settings.TotalGainThr != 1200 {
		t.Errorf("thresholds = %+v", settings)
	}

	storage, err := p.GetStorageConfig()
	if err != nil {
		t.Fatal(err)
	}
	if storage.Backend != BackendSQLite || storage.SQLite.Path != "/var/lib/altiguard/tracks.db" {
		t.Errorf("storage = %+v", storage)
	}

	notifiers, err := p.GetNotifiers()
	if err != nil {
		t.Fatal(err)
	}
	if len(notifiers) != 3 {
		t.Fatalf("got %d notifiers", len(notifiers))
	}
	if notifiers[1].Webhook.Timeout != 5*time.Second {
		t.Errorf("webhook timeout default = %v", notifiers[1].Webhook.Timeout)
	}
	if notifiers[2].APRS.APRSISServer == "" {
		t.Error("aprs server default not applied")
	}
}

func TestLazyGetters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sensors:\n  altitude: simulated\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	storage, err := NewYAMLProvider(path).GetStorageConfig()
	if err != nil {
		t.Fatal(err)
	}
	if storage.Backend != BackendMemory {
		t.Errorf("backend = %q, want memory", storage.Backend)
	}
}

func TestMissingFile(t *testing.T) {
	if _, err := NewYAMLProvider(filepath.Join(t.TempDir(), "absent.yaml")).LoadConfig(); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		errors []string
	}{
		{
			name:   "unknown field",
			doc:    "sensors:\n  altitude: udp\n  barometer: udp\n",
			errors: []string{"barometer"},
		},
		{
			name:   "bad duration",
			doc:    "session:\n  tick-interval: soon\n  max-duration: forever\nsensors:\n  altitude: udp\n",
			errors: []string{"session.tick-interval", "session.max-duration"},
		},
		{
			name:   "no sensors",
			doc:    "storage:\n  backend: memory\n",
			errors: []string{"at least one sensor"},
		},
		{
			name: "several problems",
			doc: `
danger:
  enabled-triggers: [INSTANT_RATE, SPEED]
  total-gain-threshold: -5
sensors:
  altitude: nmea
  location: carrier-pigeon
storage:
  backend: sqlite
notifiers:
  - type: webhook
  - type: sms
`,
			errors: []string{
				`unknown trigger "SPEED"`,
				"total-gain-threshold must not be negative",
				"nmea only provides location",
				"serial-device is required",
				`unknown source type "carrier-pigeon"`,
				"storage.sqlite.path is required",
				"notifiers[0]: webhook.url is required",
				`notifiers[1]: unknown type "sms"`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected an error")
			}
			for _, want := range tt.errors {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not mention %q", err, want)
				}
			}
		})
	}
}

func TestValidateCollectsEveryError(t *testing.T) {
	cfg := &ConfigData{
		Sensors: SensorsData{Altitude: "bogus"},
		Storage: StorageData{Backend: "tape"},
	}
	errs := multierr.Errors(cfg.Validate())
	// unknown source, no sensors configured, unknown backend
	if len(errs) != 3 {
		t.Fatalf("got %d errors: %v", len(errs), errs)
	}
}
