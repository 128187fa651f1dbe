// Package simulated produces synthetic sensor readings that follow a climb
// profile. It backs the development configuration and the sensor simulator.
package simulated

import (
	"math"
	"time"

	"github.com/chrissnell/altiguard/pkg/geoid"
)

const metresPerDegree = 111320.0

// Profile describes a steady climb with a superimposed wave, walked along a
// fixed heading.
type Profile struct {
	BaseAltitude  float64
	ClimbRate     float64 // m/min
	WaveAmplitude float64
	WavePeriod    time.Duration
	Lat           float64
	Lon           float64
	Heading       float64 // degrees from north
	GroundSpeed   float64 // m/s
	Noise         float64 // altitude noise stddev in metres
}

// DefaultProfile is a moderate alpine climb.
func DefaultProfile() Profile {
	return Profile{
		BaseAltitude:  1500,
		ClimbRate:     12,
		WaveAmplitude: 3,
		WavePeriod:    2 * time.Minute,
		Lat:           46.0207,
		Lon:           7.7491,
		Heading:       45,
		GroundSpeed:   0.8,
		Noise:         0.3,
	}
}

// AltitudeAt returns the noiseless MSL altitude after elapsed.
func (p Profile) AltitudeAt(elapsed time.Duration) float64 {
	alt := p.BaseAltitude + p.ClimbRate*elapsed.Minutes()
	if p.WaveAmplitude != 0 && p.WavePeriod > 0 {
		alt += p.WaveAmplitude * math.Sin(2*math.Pi*elapsed.Seconds()/p.WavePeriod.Seconds())
	}
	return alt
}

// PositionAt returns the position after walking for elapsed.
func (p Profile) PositionAt(elapsed time.Duration) (lat, lon float64) {
	d := p.GroundSpeed * elapsed.Seconds()
	h := p.Heading * math.Pi / 180
	lat = p.Lat + d*math.Cos(h)/metresPerDegree
	lon = p.Lon + d*math.Sin(h)/(metresPerDegree*math.Cos(p.Lat*math.Pi/180))
	return lat, lon
}

// EllipsoidHeightAt is the height a GPS receiver would report.
func (p Profile) EllipsoidHeightAt(elapsed time.Duration) float64 {
	lat, lon := p.PositionAt(elapsed)
	return p.AltitudeAt(elapsed) + geoid.CalculateGeoidHeight(lat, lon)
}

// PressureAt converts an altitude to pressure in hPa with the standard atmosphere.
func PressureAt(altitude float64) float64 {
	return 1013.25 * math.Pow(1-2.25577e-5*altitude, 5.25588)
}
