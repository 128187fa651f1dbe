// Package udp receives phone sensor readings as msgpack datagrams and exposes
// them as three independent sources.
package udp

import (
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/chrissnell/altiguard/internal/types"
)

const (
	KindAcceleration = "accel"
	KindBarometer    = "baro"
	KindGPS          = "gps"
)

var ErrUnknownKind = errors.New("unknown packet kind")

// Packet is one sensor reading on the wire. Ts is milliseconds since the Unix
// epoch; zero means the receive time is used. Speed is omitted when the
// receiver has no Doppler speed.
type Packet struct {
	Kind string `msgpack:"t"`
	Ts   int64  `msgpack:"ts,omitempty"`

	X float64 `msgpack:"x,omitempty"`
	Y float64 `msgpack:"y,omitempty"`
	Z float64 `msgpack:"z,omitempty"`

	Altitude float64 `msgpack:"alt,omitempty"`
	Pressure float64 `msgpack:"p,omitempty"`

	Lat   float64  `msgpack:"lat,omitempty"`
	Lon   float64  `msgpack:"lon,omitempty"`
	Speed *float64 `msgpack:"spd,omitempty"`
}

// Encode serializes a packet.
func Encode(p Packet) ([]byte, error) {
	return msgpack.Marshal(&p)
}

// Decode parses a datagram and checks its kind.
func Decode(b []byte) (Packet, error) {
	var p Packet
	if err := msgpack.Unmarshal(b, &p); err != nil {
		return Packet{}, fmt.Errorf("decoding packet: %w", err)
	}
	switch p.Kind {
	case KindAcceleration, KindBarometer, KindGPS:
		return p, nil
	}
	return Packet{}, fmt.Errorf("%w: %q", ErrUnknownKind, p.Kind)
}

// Time returns the reading time, falling back to now.
func (p Packet) Time(now time.Time) time.Time {
	if p.Ts == 0 {
		return now
	}
	return time.UnixMilli(p.Ts)
}

func (p Packet) Acceleration(now time.Time) types.AccelerationData {
	return types.AccelerationData{X: p.X, Y: p.Y, Z: p.Z, Timestamp: p.Time(now)}
}

func (p Packet) AltitudeData(now time.Time) types.AltitudeData {
	return types.AltitudeData{Altitude: p.Altitude, Pressure: p.Pressure, Timestamp: p.Time(now)}
}

// Location converts a gps packet. Altitude is the ellipsoid height.
func (p Packet) Location(now time.Time) types.LocationData {
	loc := types.LocationData{Lat: p.Lat, Lon: p.Lon, Altitude: p.Altitude, Timestamp: p.Time(now)}
	if p.Speed != nil {
		loc.Speed = *p.Speed
		loc.HasSpeed = true
	}
	return loc
}

// AccelerationPacket builds a packet from a reading.
func AccelerationPacket(a types.AccelerationData) Packet {
	return Packet{Kind: KindAcceleration, Ts: a.Timestamp.UnixMilli(), X: a.X, Y: a.Y, Z: a.Z}
}

func BarometerPacket(a types.AltitudeData) Packet {
	return Packet{Kind: KindBarometer, Ts: a.Timestamp.UnixMilli(), Altitude: a.Altitude, Pressure: a.Pressure}
}

func GPSPacket(l types.LocationData) Packet {
	p := Packet{Kind: KindGPS, Ts: l.Timestamp.UnixMilli(), Lat: l.Lat, Lon: l.Lon, Altitude: l.Altitude}
	if l.HasSpeed {
		speed := l.Speed
		p.Speed = &speed
	}
	return p
}
