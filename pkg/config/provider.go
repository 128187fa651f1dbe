package config

import (
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/chrissnell/altiguard/internal/types"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetStorageConfig() (*StorageData, error)
	GetNotifiers() ([]NotifierData, error)

	IsReadOnly() bool
	Close() error
}

// Sensor source types
const (
	SourceSimulated = "simulated"
	SourceUDP       = "udp"
	SourceNMEA      = "nmea"
)

// Storage backend types
const (
	BackendMemory      = "memory"
	BackendSQLite      = "sqlite"
	BackendTimescaleDB = "timescaledb"
)

// Notifier types
const (
	NotifierLog     = "log"
	NotifierWebhook = "webhook"
	NotifierAPRS    = "aprs"
)

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Session   SessionData    `json:"session"`
	Danger    DangerData     `json:"danger"`
	Sensors   SensorsData    `json:"sensors"`
	Storage   StorageData    `json:"storage"`
	Notifiers []NotifierData `json:"notifiers,omitempty"`
	API       APIData        `json:"api"`
	Log       LogData        `json:"log"`
}

// SessionData holds pipeline timing
type SessionData struct {
	TickInterval    time.Duration `json:"tick_interval"`
	BufferSize      int           `json:"buffer_size,omitempty"`
	AllStaleTimeout time.Duration `json:"all_stale_timeout,omitempty"`
	MaxDuration     time.Duration `json:"max_duration"`
	NotifyTimeout   time.Duration `json:"notify_timeout"`
}

// DangerData holds trigger selection and thresholds
type DangerData struct {
	EnabledTriggers  []string `json:"enabled_triggers"`
	InstantRate      float64  `json:"instant_rate_threshold"`
	AverageRate      float64  `json:"average_rate_threshold"`
	RelativeAltitude float64  `json:"relative_altitude_threshold"`
	TotalGain        float64  `json:"total_gain_threshold"`
}

// Settings converts the configuration into evaluator settings.
func (d DangerData) Settings() types.DangerSettings {
	s := types.DangerSettings{
		InstantRateThr: d.InstantRate,
		AverageRateThr: d.AverageRate,
		RelativeAltThr: d.RelativeAltitude,
		TotalGainThr:   d.TotalGain,
	}
	for _, t := range d.EnabledTriggers {
		s.EnabledTriggers = append(s.EnabledTriggers, types.DangerTrigger(t))
	}
	return s
}

// SensorsData selects a source type per sensor. An empty type disables the sensor.
type SensorsData struct {
	Acceleration string        `json:"acceleration,omitempty"`
	Altitude     string        `json:"altitude,omitempty"`
	Location     string        `json:"location,omitempty"`
	UDP          UDPData       `json:"udp"`
	NMEA         NMEAData      `json:"nmea"`
	Simulated    SimulatedData `json:"simulated"`
}

type UDPData struct {
	ListenAddr string `json:"listen_addr"`
}

type NMEAData struct {
	SerialDevice   string        `json:"serial_device"`
	Baud           int           `json:"baud,omitempty"`
	ReconnectDelay time.Duration `json:"reconnect_delay,omitempty"`
}

// SimulatedData drives the synthetic climb profile. Zero profile values fall
// back to the built-in profile.
type SimulatedData struct {
	Interval      time.Duration `json:"interval,omitempty"`
	Seed          int64         `json:"seed,omitempty"`
	BaseAltitude  float64       `json:"base_altitude,omitempty"`
	ClimbRate     float64       `json:"climb_rate,omitempty"`
	WaveAmplitude float64       `json:"wave_amplitude,omitempty"`
	Latitude      float64       `json:"latitude,omitempty"`
	Longitude     float64       `json:"longitude,omitempty"`
	Heading       float64       `json:"heading,omitempty"`
	GroundSpeed   float64       `json:"ground_speed,omitempty"`
}

// StorageData holds the configuration for the track point store
type StorageData struct {
	Backend     string           `json:"backend"`
	SQLite      *SQLiteData      `json:"sqlite,omitempty"`
	TimescaleDB *TimescaleDBData `json:"timescaledb,omitempty"`
}

type SQLiteData struct {
	Path string `json:"path"`
}

type TimescaleDBData struct {
	ConnectionString string `json:"connection_string"`
	// Listen enables LISTEN/NOTIFY driven point streams.
	Listen bool `json:"listen,omitempty"`
}

// NotifierData configures one alert delivery channel
type NotifierData struct {
	Type    string       `json:"type"`
	Webhook *WebhookData `json:"webhook,omitempty"`
	APRS    *APRSData    `json:"aprs,omitempty"`
}

type WebhookData struct {
	URL     string        `json:"url"`
	Timeout time.Duration `json:"timeout,omitempty"`
}

type APRSData struct {
	Callsign     string `json:"callsign"`
	Passcode     string `json:"passcode,omitempty"`
	APRSISServer string `json:"aprs_is_server"`
	Recipient    string `json:"recipient"`
}

// APIData holds the REST server settings
type APIData struct {
	ListenAddr string `json:"listen_addr,omitempty"`
	Port       int    `json:"port,omitempty"`
	Cert       string `json:"cert,omitempty"`
	Key        string `json:"key,omitempty"`
}

type LogData struct {
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
}

// ApplyDefaults fills every unset value that has a sensible default.
func (c *ConfigData) ApplyDefaults() {
	if c.Session.TickInterval == 0 {
		c.Session.TickInterval = time.Second
	}
	if c.Session.MaxDuration == 0 {
		c.Session.MaxDuration = 12 * time.Hour
	}
	if c.Session.NotifyTimeout == 0 {
		c.Session.NotifyTimeout = 5 * time.Second
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendMemory
	}
	if c.Sensors.NMEA.Baud == 0 {
		c.Sensors.NMEA.Baud = 9600
	}
	if c.Sensors.UDP.ListenAddr == "" {
		c.Sensors.UDP.ListenAddr = "0.0.0.0:7701"
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = "0.0.0.0"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	for i := range c.Notifiers {
		if n := c.Notifiers[i].Webhook; n != nil && n.Timeout == 0 {
			n.Timeout = 5 * time.Second
		}
		if a := c.Notifiers[i].APRS; a != nil && a.APRSISServer == "" {
			a.APRSISServer = "noam.aprs2.net:14580"
		}
	}
}

// Validate reports every configuration problem at once.
func (c *ConfigData) Validate() error {
	var err error

	if c.Session.TickInterval < 0 {
		err = multierr.Append(err, fmt.Errorf("session.tick-interval must be positive"))
	}
	if c.Session.AllStaleTimeout < 0 {
		err = multierr.Append(err, fmt.Errorf("session.all-stale-timeout must not be negative"))
	}
	if c.Session.BufferSize < 0 {
		err = multierr.Append(err, fmt.Errorf("session.buffer-size must not be negative"))
	}

	for _, t := range c.Danger.EnabledTriggers {
		if !types.DangerTrigger(t).Valid() {
			err = multierr.Append(err, fmt.Errorf("danger.enabled-triggers: unknown trigger %q", t))
		}
	}
	for name, v := range map[string]float64{
		"instant-rate-threshold":      c.Danger.InstantRate,
		"average-rate-threshold":      c.Danger.AverageRate,
		"relative-altitude-threshold": c.Danger.RelativeAltitude,
		"total-gain-threshold":        c.Danger.TotalGain,
	} {
		if v < 0 {
			err = multierr.Append(err, fmt.Errorf("danger.%s must not be negative", name))
		}
	}

	sensors := map[string]string{
		"acceleration": c.Sensors.Acceleration,
		"altitude":     c.Sensors.Altitude,
		"location":     c.Sensors.Location,
	}
	configured := false
	for name, typ := range sensors {
		switch typ {
		case "":
		case SourceSimulated, SourceUDP:
			configured = true
		case SourceNMEA:
			configured = true
			if name != "location" {
				err = multierr.Append(err, fmt.Errorf("sensors.%s: nmea only provides location", name))
			}
			if c.Sensors.NMEA.SerialDevice == "" {
				err = multierr.Append(err, fmt.Errorf("sensors.nmea.serial-device is required"))
			}
		default:
			err = multierr.Append(err, fmt.Errorf("sensors.%s: unknown source type %q", name, typ))
		}
	}
	if !configured {
		err = multierr.Append(err, fmt.Errorf("at least one sensor must be configured"))
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Storage.SQLite == nil || c.Storage.SQLite.Path == "" {
			err = multierr.Append(err, fmt.Errorf("storage.sqlite.path is required"))
		}
	case BackendTimescaleDB:
		if c.Storage.TimescaleDB == nil || c.Storage.TimescaleDB.ConnectionString == "" {
			err = multierr.Append(err, fmt.Errorf("storage.timescaledb.connection-string is required"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend))
	}

	for i, n := range c.Notifiers {
		switch n.Type {
		case NotifierLog:
		case NotifierWebhook:
			if n.Webhook == nil || n.Webhook.URL == "" {
				err = multierr.Append(err, fmt.Errorf("notifiers[%d]: webhook.url is required", i))
			}
		case NotifierAPRS:
			if n.APRS == nil || n.APRS.Callsign == "" || n.APRS.Recipient == "" {
				err = multierr.Append(err, fmt.Errorf("notifiers[%d]: aprs.callsign and aprs.recipient are required", i))
			}
		default:
			err = multierr.Append(err, fmt.Errorf("notifiers[%d]: unknown type %q", i, n.Type))
		}
	}

	return err
}
