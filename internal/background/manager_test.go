package background

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/altiguard/internal/aggregator"
	"github.com/chrissnell/altiguard/internal/session"
	"github.com/chrissnell/altiguard/internal/storage/memory"
	"github.com/chrissnell/altiguard/internal/testutil"
	"github.com/chrissnell/altiguard/internal/types"
)

func newManager(t *testing.T, g *testutil.Guarantee, maxDuration time.Duration, agg aggregator.Config) (*Manager, *memory.Store, *testutil.Source[types.AltitudeData]) {
	t.Helper()
	store := memory.New(nil)
	alt := testutil.NewAltitudeSource()
	if agg.Interval == 0 {
		agg.Interval = 5 * time.Millisecond
	}
	factory := func() *session.Tracker {
		return session.NewTracker(session.Dependencies{
			Altitude: alt,
			Points:   store,
			Sessions: store,
		}, session.Options{Aggregator: agg})
	}
	return New(g, factory, maxDuration, nil), store, alt
}

func TestStartStopReleasesGuarantee(t *testing.T) {
	g := &testutil.Guarantee{}
	m, store, alt := newManager(t, g, time.Hour, aggregator.Config{})
	ctx := context.Background()

	id, err := m.StartBackgroundSession(ctx)
	require.NoError(t, err)
	alt.Emit(types.AltitudeData{Altitude: 2000, Timestamp: time.Now()})

	_, err = m.StartBackgroundSession(ctx)
	assert.ErrorIs(t, err, ErrSessionActive)

	require.Eventually(t, func() bool { return len(store.Points(id)) >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, m.StopBackgroundSession(ctx))

	starts, stops := g.Counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
	assert.IsType(t, session.SessionStopped{}, m.Tracker().State())
	assert.False(t, m.Expired())

	// Points are written as they are produced, not at stop.
	assert.Equal(t, len(store.Points(id)), m.Tracker().State().(session.SessionStopped).Summary.PointCount)

	next, err := m.StartBackgroundSession(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, id, next)
	require.NoError(t, m.StopBackgroundSession(ctx))

	starts, stops = g.Counts()
	assert.Equal(t, 2, starts)
	assert.Equal(t, 2, stops)
}

func TestMaxDurationStopsSession(t *testing.T) {
	g := &testutil.Guarantee{}
	m, store, alt := newManager(t, g, 60*time.Millisecond, aggregator.Config{})

	id, err := m.StartBackgroundSession(context.Background())
	require.NoError(t, err)
	alt.Emit(types.AltitudeData{Altitude: 350, Timestamp: time.Now()})

	select {
	case <-m.Tracker().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session not stopped at its deadline")
	}
	require.Eventually(t, func() bool {
		_, stops := g.Counts()
		return stops == 1
	}, time.Second, 5*time.Millisecond)

	assert.True(t, m.Expired())
	sess, err := store.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.SessionStatusStopped, sess.Status)

	// Stopping after expiry is a no-op.
	require.NoError(t, m.StopBackgroundSession(context.Background()))
}

func TestFailedSessionReleasesGuarantee(t *testing.T) {
	g := &testutil.Guarantee{}
	m, _, _ := newManager(t, g, time.Hour, aggregator.Config{AllStaleTimeout: 20 * time.Millisecond})

	_, err := m.StartBackgroundSession(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, stops := g.Counts()
		return stops == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.IsType(t, session.Error{}, m.Tracker().State())
}

func TestGuaranteeFailurePreventsStart(t *testing.T) {
	g := &testutil.Guarantee{StartErr: errors.New("denied")}
	m, _, alt := newManager(t, g, time.Hour, aggregator.Config{})

	_, err := m.StartBackgroundSession(context.Background())
	require.Error(t, err)
	assert.Nil(t, m.Tracker())
	assert.Equal(t, 0, alt.Starts())
}

func TestStopWithoutSession(t *testing.T) {
	m, _, _ := newManager(t, &testutil.Guarantee{}, time.Hour, aggregator.Config{})
	assert.ErrorIs(t, m.StopBackgroundSession(context.Background()), ErrNoSession)
}

func TestLoggingGuarantee(t *testing.T) {
	g := NewLoggingGuarantee(nil)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return clock }

	assert.ErrorIs(t, g.Stop(), ErrNotHeld)
	require.NoError(t, g.Start())
	require.NoError(t, g.Start())
	assert.True(t, g.Held())

	clock = clock.Add(90 * time.Minute)
	require.NoError(t, g.Stop())
	assert.False(t, g.Held())
	assert.Equal(t, 90*time.Minute, g.HeldTime())
}
