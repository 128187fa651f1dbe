package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chrissnell/altiguard/internal/testutil"
	"github.com/chrissnell/altiguard/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAggregator(cfg Config) (*Aggregator, *testutil.Source[types.AccelerationData], *testutil.Source[types.AltitudeData], *testutil.Source[types.LocationData]) {
	accel := testutil.NewAccelerationSource()
	alt := testutil.NewAltitudeSource()
	loc := testutil.NewLocationSource()
	return New(accel, alt, loc, cfg, zap.NewNop().Sugar()), accel, alt, loc
}

func TestSnapshotDiscardsWhenNothingEmitted(t *testing.T) {
	a, _, _, _ := newTestAggregator(Config{})

	_, ok := a.Snapshot(time.Now())
	assert.False(t, ok)
	assert.Equal(t, uint64(1), a.Stats().Empty)
}

func TestSnapshotUsesLatestKnownValues(t *testing.T) {
	a, _, _, _ := newTestAggregator(Config{})
	base := time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)

	a.altitudeCell.Set(types.AltitudeData{Altitude: 1500, Timestamp: base}, base)
	a.altitudeCell.Set(types.AltitudeData{Altitude: 1502, Timestamp: base.Add(time.Second)}, base.Add(time.Second))

	s, ok := a.Snapshot(base.Add(2 * time.Second))
	require.True(t, ok)
	require.NotNil(t, s.Altitude)
	assert.Equal(t, 1502.0, s.Altitude.Altitude)
	assert.Nil(t, s.Accel, "a source that never emitted is absent")
	assert.Nil(t, s.Location)
	assert.Equal(t, uint64(1), a.Stats().Partial)

	// A stalled source keeps contributing its last value
	s, ok = a.Snapshot(base.Add(10 * time.Second))
	require.True(t, ok)
	assert.Equal(t, 1502.0, s.Altitude.Altitude)
	assert.Equal(t, base.Add(time.Second), s.Altitude.Timestamp)
}

func TestOfferDropsOldest(t *testing.T) {
	a, _, _, _ := newTestAggregator(Config{BufferSize: 2})
	base := time.Now()

	for i := 0; i < 5; i++ {
		a.offer(types.AggregateSample{Timestamp: base.Add(time.Duration(i) * time.Second)})
	}

	require.Len(t, a.out, 2)
	first := <-a.out
	second := <-a.out
	assert.Equal(t, base.Add(3*time.Second), first.Timestamp)
	assert.Equal(t, base.Add(4*time.Second), second.Timestamp)
	assert.Equal(t, uint64(3), a.Stats().Dropped)
	assert.Equal(t, uint64(5), a.Stats().Emitted)
}

func TestRunProducesOrderedSamples(t *testing.T) {
	a, accel, alt, loc := newTestAggregator(Config{Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	require.NoError(t, a.Run(ctx, &wg))
	assert.Equal(t, 1, accel.Starts())
	assert.Equal(t, 1, alt.Starts())
	assert.Equal(t, 1, loc.Starts())

	require.True(t, alt.Emit(types.AltitudeData{Altitude: 1500, Timestamp: time.Now()}))

	var samples []types.AggregateSample
	for len(samples) < 5 {
		select {
		case s := <-a.Samples():
			samples = append(samples, s)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for samples")
		}
	}
	for i := 1; i < len(samples); i++ {
		assert.True(t, samples[i].Timestamp.After(samples[i-1].Timestamp), "samples must be strictly ordered")
	}
	for _, s := range samples {
		require.NotNil(t, s.Altitude)
		assert.Equal(t, 1500.0, s.Altitude.Altitude)
	}

	cancel()
	wg.Wait()

	_, open := <-a.Samples()
	for open {
		_, open = <-a.Samples()
	}
	assert.Equal(t, 1, accel.Stops())
	assert.Equal(t, 1, alt.Stops())
	assert.Equal(t, 1, loc.Stops())
}

func TestRunContinuesAfterSourceTerminates(t *testing.T) {
	a, accel, alt, _ := newTestAggregator(Config{Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	require.NoError(t, a.Run(ctx, &wg))

	require.True(t, accel.Emit(types.AccelerationData{Z: 9.81, Timestamp: time.Now()}))
	require.Eventually(t, func() bool {
		_, ok := a.accelCell.Get()
		return ok
	}, time.Second, time.Millisecond)

	accel.Terminate()
	require.True(t, alt.Emit(types.AltitudeData{Altitude: 1200, Timestamp: time.Now()}))

	require.Eventually(t, func() bool {
		select {
		case s := <-a.Samples():
			return s.Accel != nil && s.Accel.Z == 9.81 && s.Altitude != nil && s.Altitude.Altitude == 1200
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestRunReportsAllSourcesStale(t *testing.T) {
	a, _, _, _ := newTestAggregator(Config{Interval: 5 * time.Millisecond, AllStaleTimeout: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	require.NoError(t, a.Run(ctx, &wg))

	select {
	case err := <-a.Errors():
		assert.True(t, errors.Is(err, ErrAllSourcesStale))
	case <-time.After(time.Second):
		t.Fatal("expected a staleness error")
	}
	wg.Wait()
}

func TestRunStartFailureStopsStartedSources(t *testing.T) {
	a, accel, _, loc := newTestAggregator(Config{})
	loc.StartErr = errors.New("gps unavailable")

	err := a.Run(context.Background(), &sync.WaitGroup{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gps unavailable")
	assert.Equal(t, 1, accel.Stops())
}

func TestNilSourcesAreAbsent(t *testing.T) {
	alt := testutil.NewAltitudeSource()
	a := New(nil, alt, nil, Config{}, zap.NewNop().Sugar())
	now := time.Now()
	a.altitudeCell.Set(types.AltitudeData{Altitude: 10}, now)

	s, ok := a.Snapshot(now)
	require.True(t, ok)
	assert.Nil(t, s.Accel)
	assert.Nil(t, s.Location)
	assert.Equal(t, uint64(0), a.Stats().Partial, "only configured sources count toward a gap")
}
