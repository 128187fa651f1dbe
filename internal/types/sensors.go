package types

import "time"

// AccelerationData is a single accelerometer reading in m/s² along the device axes.
type AccelerationData struct {
	X         float64   `json:"x" msgpack:"x"`
	Y         float64   `json:"y" msgpack:"y"`
	Z         float64   `json:"z" msgpack:"z"`
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
}

// AltitudeData is a barometric altitude reading. Altitude is in metres above
// mean sea level and Pressure is in hPa.
type AltitudeData struct {
	Altitude  float64   `json:"altitude" msgpack:"altitude"`
	Pressure  float64   `json:"pressure" msgpack:"pressure"`
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
}

// LocationData is a GPS fix. Altitude is the WGS84 ellipsoid height as
// reported by the receiver, not mean sea level. Speed is in m/s and is only
// meaningful when HasSpeed is set.
type LocationData struct {
	Lat       float64   `json:"lat" msgpack:"lat"`
	Lon       float64   `json:"lon" msgpack:"lon"`
	Altitude  float64   `json:"altitude" msgpack:"altitude"`
	Speed     float64   `json:"speed" msgpack:"speed"`
	HasSpeed  bool      `json:"has_speed" msgpack:"has_speed"`
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
}

// AggregateSample is one fused reading built from the latest known value of
// each source at a tick. Sources that have never emitted are nil. A present
// value may be stale; its own Timestamp tells how old it is.
type AggregateSample struct {
	Accel     *AccelerationData
	Altitude  *AltitudeData
	Location  *LocationData
	Timestamp time.Time
}

// Empty reports whether no source contributed to the sample.
func (s AggregateSample) Empty() bool {
	return s.Accel == nil && s.Altitude == nil && s.Location == nil
}

// Newest returns the timestamp of the most recent source value in the sample,
// or the zero time if the sample is empty.
func (s AggregateSample) Newest() time.Time {
	var newest time.Time
	if s.Accel != nil && s.Accel.Timestamp.After(newest) {
		newest = s.Accel.Timestamp
	}
	if s.Altitude != nil && s.Altitude.Timestamp.After(newest) {
		newest = s.Altitude.Timestamp
	}
	if s.Location != nil && s.Location.Timestamp.After(newest) {
		newest = s.Location.Timestamp
	}
	return newest
}
