// Package geoid converts GPS ellipsoid heights to mean sea level heights using a
// coarse global model of the geoid undulation.
//
// The model is a fixed sum of a zonal harmonic base, a handful of tapered
// regional bias boxes for the well known geoid highs and lows, and two small
// longitude harmonics. It is accurate to tens of metres at best. Danger
// detection only depends on altitude differences within a session, where a
// constant offset cancels out.
package geoid

import "math"

const (
	// MinUndulation and MaxUndulation bound the result of CalculateGeoidHeight.
	// They match the extremes of the real geoid (Indian Ocean low, New Guinea high).
	MinUndulation = -110.0
	MaxUndulation = 85.0
)

// region is a latitude/longitude box whose bias fades to zero at its edges
type region struct {
	name           string
	latMin, latMax float64
	lonMin, lonMax float64
	bias           float64
}

var regions = []region{
	{name: "indian ocean low", latMin: -20, latMax: 30, lonMin: 45, lonMax: 105, bias: -75},
	{name: "new guinea high", latMin: -20, latMax: 10, lonMin: 120, lonMax: 170, bias: 65},
	{name: "north atlantic high", latMin: 35, latMax: 70, lonMin: -45, lonMax: 10, bias: 50},
	{name: "hudson bay low", latMin: 45, latMax: 70, lonMin: -110, lonMax: -65, bias: -40},
	{name: "andes high", latMin: -40, latMax: 5, lonMin: -85, lonMax: -60, bias: 25},
	{name: "tibet low", latMin: 20, latMax: 45, lonMin: 70, lonMax: 105, bias: -30},
	{name: "east pacific low", latMin: 10, latMax: 35, lonMin: -130, lonMax: -100, bias: -35},
	{name: "ross sea low", latMin: -90, latMax: -60, lonMin: -180, lonMax: 180, bias: -20},
}

// CalculateGeoidHeight returns the approximate geoid undulation N in metres at
// the given coordinates. The function is total: any input, including NaN,
// poles and the antimeridian, yields a value in [MinUndulation, MaxUndulation].
func CalculateGeoidHeight(lat, lon float64) float64 {
	lat = normalizeLat(lat)
	lon = normalizeLon(lon)

	phi := lat * math.Pi / 180
	lambda := lon * math.Pi / 180
	s := math.Sin(phi)
	c := math.Cos(phi)

	// Zonal harmonics (Legendre P2 and P4 in sin(latitude))
	p2 := 0.5 * (3*s*s - 1)
	p4 := (35*s*s*s*s - 30*s*s + 3) / 8
	n := -10*p2 + 6*p4

	for _, r := range regions {
		n += r.bias * r.weight(lat, lon)
	}

	// Longitude-dependent terms vanish toward the poles
	n += 7 * c * math.Sin(2*lambda+0.5)
	n += 3 * c * c * math.Cos(3*lambda)

	return clamp(n, MinUndulation, MaxUndulation)
}

// EllipsoidToMSL converts a WGS84 ellipsoid height to a mean sea level height.
func EllipsoidToMSL(ellipsoidHeight, lat, lon float64) float64 {
	return ellipsoidHeight - CalculateGeoidHeight(lat, lon)
}

func (r region) weight(lat, lon float64) float64 {
	if lat < r.latMin || lat > r.latMax || lon < r.lonMin || lon > r.lonMax {
		return 0
	}
	wLat := math.Sin(math.Pi * (lat - r.latMin) / (r.latMax - r.latMin))
	if r.latMin == -90 {
		// Polar caps keep full weight at the pole itself
		wLat = math.Sin(0.5 * math.Pi * (r.latMax - lat) / (r.latMax - r.latMin))
	}
	wLon := 1.0
	if r.lonMax-r.lonMin < 360 {
		wLon = math.Sin(math.Pi * (lon - r.lonMin) / (r.lonMax - r.lonMin))
	}
	return wLat * wLon
}

func normalizeLat(lat float64) float64 {
	if math.IsNaN(lat) {
		return 0
	}
	return clamp(lat, -90, 90)
}

func normalizeLon(lon float64) float64 {
	if math.IsNaN(lon) || math.IsInf(lon, 0) {
		return 0
	}
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}
