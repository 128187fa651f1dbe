package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from YAML file, applies
// defaults and validates the result.
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	config, err := Parse(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", y.filename, err)
	}

	y.config = config
	return config, nil
}

// Parse decodes a YAML document into ConfigData, then applies defaults and validates it.
func Parse(b []byte) (*ConfigData, error) {
	// Load into temporary struct with YAML tags
	var yamlConfig ConfigYAML
	if err := yaml.UnmarshalStrict(b, &yamlConfig); err != nil {
		return nil, err
	}

	config, err := yamlConfig.convert()
	if err != nil {
		return nil, err
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// GetStorageConfig returns storage configuration
func (y *YAMLProvider) GetStorageConfig() (*StorageData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &y.config.Storage, nil
}

// GetNotifiers returns notifier configurations
func (y *YAMLProvider) GetNotifiers() ([]NotifierData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return y.config.Notifiers, nil
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

// durations parses every named duration string, collecting all failures.
type durations struct {
	err error
}

func (d *durations) parse(field, v string) time.Duration {
	if v == "" {
		return 0
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		d.err = multierr.Append(d.err, fmt.Errorf("%s: %w", field, err))
		return 0
	}
	return dur
}

func (c ConfigYAML) convert() (*ConfigData, error) {
	var d durations

	config := &ConfigData{
		Session: SessionData{
			TickInterval:    d.parse("session.tick-interval", c.Session.TickInterval),
			BufferSize:      c.Session.BufferSize,
			AllStaleTimeout: d.parse("session.all-stale-timeout", c.Session.AllStaleTimeout),
			MaxDuration:     d.parse("session.max-duration", c.Session.MaxDuration),
			NotifyTimeout:   d.parse("session.notify-timeout", c.Session.NotifyTimeout),
		},
		Danger: DangerData{
			EnabledTriggers:  c.Danger.EnabledTriggers,
			InstantRate:      c.Danger.InstantRate,
			AverageRate:      c.Danger.AverageRate,
			RelativeAltitude: c.Danger.RelativeAltitude,
			TotalGain:        c.Danger.TotalGain,
		},
		Sensors: SensorsData{
			Acceleration: c.Sensors.Acceleration,
			Altitude:     c.Sensors.Altitude,
			Location:     c.Sensors.Location,
			UDP: UDPData{
				ListenAddr: c.Sensors.UDP.ListenAddr,
			},
			NMEA: NMEAData{
				SerialDevice:   c.Sensors.NMEA.SerialDevice,
				Baud:           c.Sensors.NMEA.Baud,
				ReconnectDelay: d.parse("sensors.nmea.reconnect-delay", c.Sensors.NMEA.ReconnectDelay),
			},
			Simulated: SimulatedData{
				Interval:      d.parse("sensors.simulated.interval", c.Sensors.Simulated.Interval),
				Seed:          c.Sensors.Simulated.Seed,
				BaseAltitude:  c.Sensors.Simulated.BaseAltitude,
				ClimbRate:     c.Sensors.Simulated.ClimbRate,
				WaveAmplitude: c.Sensors.Simulated.WaveAmplitude,
				Latitude:      c.Sensors.Simulated.Latitude,
				Longitude:     c.Sensors.Simulated.Longitude,
				Heading:       c.Sensors.Simulated.Heading,
				GroundSpeed:   c.Sensors.Simulated.GroundSpeed,
			},
		},
		Storage: StorageData{
			Backend: c.Storage.Backend,
		},
		API: APIData{
			ListenAddr: c.API.ListenAddr,
			Port:       c.API.Port,
			Cert:       c.API.Cert,
			Key:        c.API.Key,
		},
		Log: LogData{
			File:       c.Log.File,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
		},
	}

	// Convert storage
	if c.Storage.SQLite != nil {
		config.Storage.SQLite = &SQLiteData{
			Path: c.Storage.SQLite.Path,
		}
	}
	if c.Storage.TimescaleDB != nil {
		config.Storage.TimescaleDB = &TimescaleDBData{
			ConnectionString: c.Storage.TimescaleDB.ConnectionString,
			Listen:           c.Storage.TimescaleDB.Listen,
		}
	}

	// Convert notifiers
	config.Notifiers = make([]NotifierData, len(c.Notifiers))
	for i, n := range c.Notifiers {
		config.Notifiers[i] = NotifierData{
			Type: n.Type,
		}
		if n.Webhook != nil {
			config.Notifiers[i].Webhook = &WebhookData{
				URL:     n.Webhook.URL,
				Timeout: d.parse(fmt.Sprintf("notifiers[%d].webhook.timeout", i), n.Webhook.Timeout),
			}
		}
		if n.APRS != nil {
			config.Notifiers[i].APRS = &APRSData{
				Callsign:     n.APRS.Callsign,
				Passcode:     n.APRS.Passcode,
				APRSISServer: n.APRS.APRSISServer,
				Recipient:    n.APRS.Recipient,
			}
		}
	}

	if d.err != nil {
		return nil, d.err
	}
	return config, nil
}

// YAML-specific structs with proper YAML tags for parsing the file format
type ConfigYAML struct {
	Session   SessionYAML    `yaml:"session,omitempty"`
	Danger    DangerYAML     `yaml:"danger,omitempty"`
	Sensors   SensorsYAML    `yaml:"sensors,omitempty"`
	Storage   StorageYAML    `yaml:"storage,omitempty"`
	Notifiers []NotifierYAML `yaml:"notifiers,omitempty"`
	API       APIYAML        `yaml:"api,omitempty"`
	Log       LogYAML        `yaml:"log,omitempty"`
}

type SessionYAML struct {
	TickInterval    string `yaml:"tick-interval,omitempty"`
	BufferSize      int    `yaml:"buffer-size,omitempty"`
	AllStaleTimeout string `yaml:"all-stale-timeout,omitempty"`
	MaxDuration     string `yaml:"max-duration,omitempty"`
	NotifyTimeout   string `yaml:"notify-timeout,omitempty"`
}

type DangerYAML struct {
	EnabledTriggers  []string `yaml:"enabled-triggers,omitempty"`
	InstantRate      float64  `yaml:"instant-rate-threshold,omitempty"`
	AverageRate      float64  `yaml:"average-rate-threshold,omitempty"`
	RelativeAltitude float64  `yaml:"relative-altitude-threshold,omitempty"`
	TotalGain        float64  `yaml:"total-gain-threshold,omitempty"`
}

type SensorsYAML struct {
	Acceleration string        `yaml:"acceleration,omitempty"`
	Altitude     string        `yaml:"altitude,omitempty"`
	Location     string        `yaml:"location,omitempty"`
	UDP          UDPYAML       `yaml:"udp,omitempty"`
	NMEA         NMEAYAML      `yaml:"nmea,omitempty"`
	Simulated    SimulatedYAML `yaml:"simulated,omitempty"`
}

type UDPYAML struct {
	ListenAddr string `yaml:"listen-addr,omitempty"`
}

type NMEAYAML struct {
	SerialDevice   string `yaml:"serial-device,omitempty"`
	Baud           int    `yaml:"baud,omitempty"`
	ReconnectDelay string `yaml:"reconnect-delay,omitempty"`
}

type SimulatedYAML struct {
	Interval      string  `yaml:"interval,omitempty"`
	Seed          int64   `yaml:"seed,omitempty"`
	BaseAltitude  float64 `yaml:"base-altitude,omitempty"`
	ClimbRate     float64 `yaml:"climb-rate,omitempty"`
	WaveAmplitude float64 `yaml:"wave-amplitude,omitempty"`
	Latitude      float64 `yaml:"latitude,omitempty"`
	Longitude     float64 `yaml:"longitude,omitempty"`
	Heading       float64 `yaml:"heading,omitempty"`
	GroundSpeed   float64 `yaml:"ground-speed,omitempty"`
}

type StorageYAML struct {
	Backend     string           `yaml:"backend,omitempty"`
	SQLite      *SQLiteYAML      `yaml:"sqlite,omitempty"`
	TimescaleDB *TimescaleDBYAML `yaml:"timescaledb,omitempty"`
}

type SQLiteYAML struct {
	Path string `yaml:"path"`
}

type TimescaleDBYAML struct {
	ConnectionString string `yaml:"connection-string"`
	Listen           bool   `yaml:"listen,omitempty"`
}

type NotifierYAML struct {
	Type    string       `yaml:"type"`
	Webhook *WebhookYAML `yaml:"webhook,omitempty"`
	APRS    *APRSYAML    `yaml:"aprs,omitempty"`
}

type WebhookYAML struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout,omitempty"`
}

type APRSYAML struct {
	Callsign     string `yaml:"callsign,omitempty"`
	Passcode     string `yaml:"passcode,omitempty"`
	APRSISServer string `yaml:"aprs-is-server,omitempty"`
	Recipient    string `yaml:"recipient,omitempty"`
}

type APIYAML struct {
	ListenAddr string `yaml:"listen-addr,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	Cert       string `yaml:"cert,omitempty"`
	Key        string `yaml:"key,omitempty"`
}

type LogYAML struct {
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max-size-mb,omitempty"`
	MaxBackups int    `yaml:"max-backups,omitempty"`
	MaxAgeDays int    `yaml:"max-age-days,omitempty"`
}
