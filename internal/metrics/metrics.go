// Package metrics derives the per-point metrics of a track: vertical and
// horizontal speed, cumulative gain and loss, altitude relative to the session
// baseline, and the running mean vertical speed.
package metrics

import (
	"errors"

	"github.com/chrissnell/altiguard/internal/types"
	"github.com/chrissnell/altiguard/pkg/geoid"
	"github.com/chrissnell/altiguard/pkg/rate"
)

// ErrNoAltitude is returned for samples that carry no altitude source at all.
var ErrNoAltitude = errors.New("sample has no altitude")

// Source names the sensor an altitude was read from.
type Source int

const (
	SourceNone Source = iota
	SourceBarometer
	SourceGPS
)

func (s Source) String() string {
	switch s {
	case SourceBarometer:
		return "barometer"
	case SourceGPS:
		return "gps"
	default:
		return "none"
	}
}

// AltitudeSource returns the preferred altitude source present in a sample.
func AltitudeSource(s types.AggregateSample) Source {
	switch {
	case s.Altitude != nil:
		return SourceBarometer
	case s.Location != nil:
		return SourceGPS
	default:
		return SourceNone
	}
}

// SourceAltitude returns the MSL altitude reported by src in a sample. A GPS
// ellipsoid height is converted to MSL with the geoid model.
func SourceAltitude(s types.AggregateSample, src Source) (float64, bool) {
	switch src {
	case SourceBarometer:
		if s.Altitude != nil {
			return s.Altitude.Altitude, true
		}
	case SourceGPS:
		if s.Location != nil {
			return geoid.EllipsoidToMSL(s.Location.Altitude, s.Location.Lat, s.Location.Lon), true
		}
	}
	return 0, false
}

// CurrentAltitude returns the MSL altitude of a sample from its preferred
// source. The barometer is preferred over GPS.
func CurrentAltitude(s types.AggregateSample) (float64, bool) {
	return SourceAltitude(s, AltitudeSource(s))
}

// Compute derives the metrics of a new sample. prev is the previous track
// point of the session, or nil for the first one. n is the 1-based index of
// the new point since the baseline was set. Danger fields are left unset.
func Compute(prev *types.TrackPoint, sample types.AggregateSample, baseline float64, n int) (types.Metrics, error) {
	altitude, ok := CurrentAltitude(sample)
	if !ok {
		return types.Metrics{}, ErrNoAltitude
	}
	return compute(prev, altitude, sample, baseline, n), nil
}

func compute(prev *types.TrackPoint, altitude float64, sample types.AggregateSample, baseline float64, n int) types.Metrics {
	m := vertical(prev, altitude, sample, baseline, n)
	m.VHorizontal = horizontal(prev, sample)
	m.VTotal = rate.TotalSpeed(m.VVertical, m.VHorizontal)
	return m
}

// vertical computes every altitude-derived field. Recompute runs the same code
// on stored points so replaying a history reproduces the live values exactly.
func vertical(prev *types.TrackPoint, altitude float64, sample types.AggregateSample, baseline float64, n int) types.Metrics {
	m := types.Metrics{
		RelAltitude: altitude - baseline,
		AlertType:   types.AlertNone,
	}
	if prev == nil {
		m.AvgVertical = runningMean(0, m.VVertical, n)
		return m
	}

	delta := altitude - prev.Altitude
	m.VVertical = rate.VerticalSpeed(delta, sample.Timestamp.Sub(prev.Timestamp))
	m.Gain = prev.Gain
	m.Loss = prev.Loss
	if delta > 0 {
		m.Gain += delta
	} else if delta < 0 {
		m.Loss -= delta
	}
	m.AvgVertical = runningMean(prev.AvgVertical, m.VVertical, n)
	return m
}

// horizontal prefers the receiver's Doppler speed and falls back to the
// distance from the previous fix over the elapsed time.
func horizontal(prev *types.TrackPoint, sample types.AggregateSample) float64 {
	loc := sample.Location
	if loc == nil {
		return 0
	}
	if loc.HasSpeed {
		return loc.Speed
	}
	if prev == nil || !prev.HasLocation {
		return 0
	}
	d := rate.GroundDistance(prev.Lat, prev.Lon, loc.Lat, loc.Lon)
	return rate.HorizontalSpeed(d, sample.Timestamp.Sub(prev.Timestamp))
}

// runningMean applies avg_n = avg_{n-1} + (v_n - avg_{n-1}) / n.
func runningMean(prevAvg, v float64, n int) float64 {
	if n <= 0 {
		return prevAvg
	}
	return prevAvg + (v-prevAvg)/float64(n)
}
