// Package nmea reads GPS fixes from an NMEA 0183 receiver on a serial port.
package nmea

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const knotsToMetresPerSecond = 0.514444

var (
	ErrChecksum    = errors.New("nmea checksum mismatch")
	ErrMalformed   = errors.New("malformed nmea sentence")
	ErrUnsupported = errors.New("unsupported nmea sentence")
)

// GGA is a fix data sentence. Altitude is above mean sea level and
// Separation is the geoid height reported by the receiver, so the WGS84
// ellipsoid height is Altitude + Separation.
type GGA struct {
	Time       time.Duration // since UTC midnight
	Lat, Lon   float64
	Quality    int
	Satellites int
	HDOP       float64
	Altitude   float64
	Separation float64
}

// EllipsoidHeight returns the fix height above the WGS84 ellipsoid.
func (g GGA) EllipsoidHeight() float64 {
	return g.Altitude + g.Separation
}

// RMC is the recommended minimum sentence carrying ground speed.
type RMC struct {
	Time     time.Time
	Valid    bool
	Lat, Lon float64
	Speed    float64 // m/s
	HasSpeed bool
}

// Parse decodes one sentence. It returns a GGA or an RMC value.
func Parse(line string) (interface{}, error) {
	fields, err := split(line)
	if err != nil {
		return nil, err
	}
	if len(fields[0]) != 5 {
		return nil, fmt.Errorf("%w: bad address %q", ErrMalformed, fields[0])
	}
	switch fields[0][2:] {
	case "GGA":
		return parseGGA(fields)
	case "RMC":
		return parseRMC(fields)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, fields[0])
	}
}

// split verifies the checksum and returns the comma-separated fields without
// the leading '$'.
func split(line string) ([]string, error) {
	line = strings.TrimSpace(line)
	if len(line) < 6 || line[0] != '$' {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, line)
	}
	body := line[1:]
	if star := strings.LastIndexByte(body, '*'); star >= 0 {
		want, err := strconv.ParseUint(body[star+1:], 16, 8)
		if err != nil || len(body)-star-1 != 2 {
			return nil, fmt.Errorf("%w: bad checksum field in %q", ErrMalformed, line)
		}
		body = body[:star]
		if got := Checksum(body); got != byte(want) {
			return nil, fmt.Errorf("%w: got %02X want %02X", ErrChecksum, got, want)
		}
	}
	return strings.Split(body, ","), nil
}

// Checksum is the XOR of every byte between '$' and '*'.
func Checksum(body string) byte {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return sum
}

func parseGGA(f []string) (GGA, error) {
	if len(f) < 12 {
		return GGA{}, fmt.Errorf("%w: GGA has %d fields", ErrMalformed, len(f))
	}
	var g GGA
	var err error
	if g.Time, err = parseTimeOfDay(f[1]); err != nil {
		return GGA{}, err
	}
	if g.Lat, err = parseCoord(f[2], f[3], 2); err != nil {
		return GGA{}, err
	}
	if g.Lon, err = parseCoord(f[4], f[5], 3); err != nil {
		return GGA{}, err
	}
	if g.Quality, err = strconv.Atoi(f[6]); err != nil {
		return GGA{}, fmt.Errorf("%w: fix quality %q", ErrMalformed, f[6])
	}
	g.Satellites, _ = strconv.Atoi(f[7])
	g.HDOP, _ = strconv.ParseFloat(f[8], 64)
	if g.Quality > 0 {
		if g.Altitude, err = strconv.ParseFloat(f[9], 64); err != nil {
			return GGA{}, fmt.Errorf("%w: altitude %q", ErrMalformed, f[9])
		}
		g.Separation, _ = strconv.ParseFloat(f[11], 64)
	}
	return g, nil
}

func parseRMC(f []string) (RMC, error) {
	if len(f) < 10 {
		return RMC{}, fmt.Errorf("%w: RMC has %d fields", ErrMalformed, len(f))
	}
	tod, err := parseTimeOfDay(f[1])
	if err != nil {
		return RMC{}, err
	}
	r := RMC{Valid: f[2] == "A"}
	if r.Lat, err = parseCoord(f[3], f[4], 2); err != nil {
		return RMC{}, err
	}
	if r.Lon, err = parseCoord(f[5], f[6], 3); err != nil {
		return RMC{}, err
	}
	if f[7] != "" {
		knots, err := strconv.ParseFloat(f[7], 64)
		if err != nil {
			return RMC{}, fmt.Errorf("%w: speed %q", ErrMalformed, f[7])
		}
		r.Speed = knots * knotsToMetresPerSecond
		r.HasSpeed = true
	}
	if len(f[9]) == 6 {
		date, err := time.Parse("020106", f[9])
		if err != nil {
			return RMC{}, fmt.Errorf("%w: date %q", ErrMalformed, f[9])
		}
		r.Time = date.Add(tod)
	}
	return r, nil
}

// parseTimeOfDay reads hhmmss(.sss).
func parseTimeOfDay(s string) (time.Duration, error) {
	if len(s) < 6 {
		return 0, fmt.Errorf("%w: time %q", ErrMalformed, s)
	}
	h, err1 := strconv.Atoi(s[0:2])
	m, err2 := strconv.Atoi(s[2:4])
	sec, err3 := strconv.ParseFloat(s[4:], 64)
	if err1 != nil || err2 != nil || err3 != nil || h > 23 || m > 59 || sec >= 61 {
		return 0, fmt.Errorf("%w: time %q", ErrMalformed, s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec*float64(time.Second)), nil
}

// parseCoord converts (d)ddmm.mmmm plus hemisphere into signed degrees. An
// empty field means no fix and yields zero.
func parseCoord(v, hemi string, degDigits int) (float64, error) {
	if v == "" {
		return 0, nil
	}
	if len(v) < degDigits+2 {
		return 0, fmt.Errorf("%w: coordinate %q", ErrMalformed, v)
	}
	deg, err1 := strconv.Atoi(v[:degDigits])
	minutes, err2 := strconv.ParseFloat(v[degDigits:], 64)
	if err1 != nil || err2 != nil || minutes >= 60 {
		return 0, fmt.Errorf("%w: coordinate %q", ErrMalformed, v)
	}
	out := float64(deg) + minutes/60
	switch hemi {
	case "N", "E":
	case "S", "W":
		out = -out
	default:
		return 0, fmt.Errorf("%w: hemisphere %q", ErrMalformed, hemi)
	}
	return out, nil
}
