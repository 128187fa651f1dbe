package simulated

import (
	"context"
	"math/rand"
	"time"

	"github.com/chrissnell/altiguard/internal/sensors"
	"github.com/chrissnell/altiguard/internal/types"
)

const DefaultInterval = 200 * time.Millisecond

// Config controls one simulated source.
type Config struct {
	Interval time.Duration
	Profile  Profile
	Seed     int64
}

type generator[T any] func(p Profile, elapsed time.Duration, now time.Time, rng *rand.Rand) T

// Source emits one generated reading per interval. Elapsed time restarts at
// every Start.
type Source[T any] struct {
	cfg  Config
	gen  generator[T]
	now  func() time.Time
	life sensors.Lifecycle[T]
}

func newSource[T any](cfg Config, gen generator[T]) *Source[T] {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Source[T]{cfg: cfg, gen: gen, now: time.Now}
}

// NewAcceleration emits gravity plus small movement noise.
func NewAcceleration(cfg Config) *Source[types.AccelerationData] {
	return newSource(cfg, func(p Profile, elapsed time.Duration, now time.Time, rng *rand.Rand) types.AccelerationData {
		return types.AccelerationData{
			X:         rng.NormFloat64() * 0.2,
			Y:         rng.NormFloat64() * 0.2,
			Z:         9.80665 + rng.NormFloat64()*0.1,
			Timestamp: now,
		}
	})
}

// NewAltitude emits barometric altitude readings along the profile.
func NewAltitude(cfg Config) *Source[types.AltitudeData] {
	return newSource(cfg, func(p Profile, elapsed time.Duration, now time.Time, rng *rand.Rand) types.AltitudeData {
		alt := p.AltitudeAt(elapsed) + rng.NormFloat64()*p.Noise
		return types.AltitudeData{Altitude: alt, Pressure: PressureAt(alt), Timestamp: now}
	})
}

// NewLocation emits GPS fixes with ellipsoid heights and ground speed.
func NewLocation(cfg Config) *Source[types.LocationData] {
	return newSource(cfg, func(p Profile, elapsed time.Duration, now time.Time, rng *rand.Rand) types.LocationData {
		lat, lon := p.PositionAt(elapsed)
		return types.LocationData{
			Lat:       lat,
			Lon:       lon,
			Altitude:  p.EllipsoidHeightAt(elapsed) + rng.NormFloat64()*p.Noise*3,
			Speed:     p.GroundSpeed,
			HasSpeed:  true,
			Timestamp: now,
		}
	})
}

func (s *Source[T]) Start(ctx context.Context) error {
	return s.life.Start(ctx, s.run)
}

func (s *Source[T]) Stop() error {
	return s.life.Stop()
}

func (s *Source[T]) Readings() <-chan T {
	return s.life.Readings()
}

func (s *Source[T]) run(ctx context.Context, emit func(T) bool) error {
	rng := rand.New(rand.NewSource(s.cfg.Seed))
	started := s.now()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := s.now()
			if !emit(s.gen(s.cfg.Profile, now.Sub(started), now, rng)) {
				return nil
			}
		}
	}
}
