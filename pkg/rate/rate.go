// Package rate converts altitude and position deltas into speeds.
//
// Vertical speeds are expressed in metres per minute, which is how climbers
// usually talk about ascent rate. Horizontal and total speeds are in metres
// per second.
package rate

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/globe"
	"github.com/soniakeys/unit"
)

// SecondsPerMinute converts between m/min and m/s.
const SecondsPerMinute = 60.0

// VerticalSpeed returns the vertical speed in m/min for an altitude change over
// the actual elapsed time. A non-positive elapsed time yields 0.
func VerticalSpeed(deltaAltitude float64, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return deltaAltitude / secs * SecondsPerMinute
}

// PerMinuteToPerSecond converts a vertical speed from m/min to m/s.
func PerMinuteToPerSecond(v float64) float64 {
	return v / SecondsPerMinute
}

// HorizontalSpeed returns distance/elapsed in m/s, or 0 for a non-positive elapsed time.
func HorizontalSpeed(distance float64, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return distance / secs
}

// TotalSpeed combines a vertical speed in m/min and a horizontal speed in m/s
// into a 3D speed in m/s. The vertical component is divided by 60 first.
func TotalSpeed(verticalPerMinute, horizontal float64) float64 {
	return math.Hypot(PerMinuteToPerSecond(verticalPerMinute), horizontal)
}

// GroundDistance returns the distance in metres between two WGS84 positions
// measured along the surface of the IAU 1976 ellipsoid.
func GroundDistance(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}
	// meeus measures longitude positively westward; the sign flip is applied
	// to both points so the distance is unaffected.
	p1 := globe.Coord{Lat: unit.AngleFromDeg(lat1), Lon: unit.AngleFromDeg(-lon1)}
	p2 := globe.Coord{Lat: unit.AngleFromDeg(lat2), Lon: unit.AngleFromDeg(-lon2)}
	km := globe.Earth76.Distance(p1, p2)
	if math.IsNaN(km) || math.IsInf(km, 0) {
		return 0
	}
	return km * 1000
}
