package managers

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/chrissnell/altiguard/internal/interfaces"
	"github.com/chrissnell/altiguard/internal/sensors/nmea"
	"github.com/chrissnell/altiguard/internal/sensors/simulated"
	"github.com/chrissnell/altiguard/internal/sensors/udp"
	"github.com/chrissnell/altiguard/pkg/config"
)

// SensorManager holds the sources selected by configuration. Unconfigured
// sensors stay nil.
type SensorManager struct {
	Acceleration interfaces.AccelerationSource
	Altitude     interfaces.AltitudeSource
	Location     interfaces.LocationSource

	// UDP is set when any sensor is fed by the UDP receiver.
	UDP *udp.Receiver
}

// NewSensorManager builds every configured sensor source.
func NewSensorManager(c config.SensorsData, logger *zap.SugaredLogger) (*SensorManager, error) {
	sm := &SensorManager{}

	receiver := func() *udp.Receiver {
		if sm.UDP == nil {
			sm.UDP = udp.NewReceiver(c.UDP.ListenAddr, logger.Named("udp"))
		}
		return sm.UDP
	}
	sim := simulatedConfig(c.Simulated)

	switch c.Acceleration {
	case "":
	case config.SourceSimulated:
		sm.Acceleration = simulated.NewAcceleration(sim)
	case config.SourceUDP:
		sm.Acceleration = receiver().Acceleration()
	default:
		return nil, fmt.Errorf("unsupported acceleration source %q", c.Acceleration)
	}

	switch c.Altitude {
	case "":
	case config.SourceSimulated:
		sm.Altitude = simulated.NewAltitude(sim)
	case config.SourceUDP:
		sm.Altitude = receiver().Altitude()
	default:
		return nil, fmt.Errorf("unsupported altitude source %q", c.Altitude)
	}

	switch c.Location {
	case "":
	case config.SourceSimulated:
		sm.Location = simulated.NewLocation(sim)
	case config.SourceUDP:
		sm.Location = receiver().Location()
	case config.SourceNMEA:
		sm.Location = nmea.New(nmea.Config{
			Device:         c.NMEA.SerialDevice,
			Baud:           c.NMEA.Baud,
			ReconnectDelay: c.NMEA.ReconnectDelay,
		}, nmea.OpenSerial, logger.Named("nmea"))
	default:
		return nil, fmt.Errorf("unsupported location source %q", c.Location)
	}

	if sm.Acceleration == nil && sm.Altitude == nil && sm.Location == nil {
		return nil, fmt.Errorf("no sensors configured")
	}
	return sm, nil
}

// simulatedConfig overlays the configured profile values on the built-in climb.
func simulatedConfig(c config.SimulatedData) simulated.Config {
	p := simulated.DefaultProfile()
	if c.BaseAltitude != 0 {
		p.BaseAltitude = c.BaseAltitude
	}
	if c.ClimbRate != 0 {
		p.ClimbRate = c.ClimbRate
	}
	if c.WaveAmplitude != 0 {
		p.WaveAmplitude = c.WaveAmplitude
	}
	if c.Latitude != 0 || c.Longitude != 0 {
		p.Lat, p.Lon = c.Latitude, c.Longitude
	}
	if c.Heading != 0 {
		p.Heading = c.Heading
	}
	if c.GroundSpeed != 0 {
		p.GroundSpeed = c.GroundSpeed
	}
	return simulated.Config{
		Interval: c.Interval,
		Profile:  p,
		Seed:     c.Seed,
	}
}
