package simulated

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/chrissnell/altiguard/pkg/geoid"
)

func TestProfile(t *testing.T) {
	p := DefaultProfile()

	if got := p.AltitudeAt(0); got != p.BaseAltitude {
		t.Errorf("AltitudeAt(0) = %v, want %v", got, p.BaseAltitude)
	}
	// One full wave period later only the climb remains.
	if got, want := p.AltitudeAt(p.WavePeriod), p.BaseAltitude+p.ClimbRate*p.WavePeriod.Minutes(); math.Abs(got-want) > 1e-9 {
		t.Errorf("AltitudeAt(period) = %v, want %v", got, want)
	}

	lat, lon := p.PositionAt(10 * time.Minute)
	if lat <= p.Lat || lon <= p.Lon {
		t.Errorf("heading 45 must move north-east, got %v,%v", lat, lon)
	}

	msl := p.AltitudeAt(time.Minute)
	lat, lon = p.PositionAt(time.Minute)
	if got := geoid.EllipsoidToMSL(p.EllipsoidHeightAt(time.Minute), lat, lon); math.Abs(got-msl) > 1e-9 {
		t.Errorf("ellipsoid height does not round-trip: %v vs %v", got, msl)
	}
}

func TestPressureAt(t *testing.T) {
	if got := PressureAt(0); math.Abs(got-1013.25) > 1e-9 {
		t.Errorf("PressureAt(0) = %v", got)
	}
	if got := PressureAt(1500); got < 840 || got > 850 {
		t.Errorf("PressureAt(1500) = %v, want about 845", got)
	}
}

func TestSourcesEmit(t *testing.T) {
	cfg := Config{Interval: 2 * time.Millisecond, Profile: DefaultProfile(), Seed: 7}

	alt := NewAltitude(cfg)
	if err := alt.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case r := <-alt.Readings():
		if math.Abs(r.Altitude-cfg.Profile.BaseAltitude) > 10 {
			t.Errorf("first altitude %v too far from base", r.Altitude)
		}
	case <-time.After(time.Second):
		t.Fatal("no altitude reading")
	}
	if err := alt.Stop(); err != nil {
		t.Fatal(err)
	}

	loc := NewLocation(cfg)
	if err := loc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	r := <-loc.Readings()
	if !r.HasSpeed || r.Speed != cfg.Profile.GroundSpeed {
		t.Errorf("unexpected fix %+v", r)
	}
	loc.Stop()

	acc := NewAcceleration(cfg)
	acc.Start(context.Background())
	a := <-acc.Readings()
	if math.Abs(a.Z-9.80665) > 1 {
		t.Errorf("unexpected acceleration %+v", a)
	}
	acc.Stop()
}
