package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/altiguard/internal/aggregator"
	"github.com/chrissnell/altiguard/internal/storage/memory"
	"github.com/chrissnell/altiguard/internal/testutil"
	"github.com/chrissnell/altiguard/internal/types"
)

type fixture struct {
	tracker  *Tracker
	store    *memory.Store
	altitude *testutil.Source[types.AltitudeData]
	accel    *testutil.Source[types.AccelerationData]
	notifier *testutil.Notifier
}

func newFixture(t *testing.T, points *faultyPoints, opts Options) *fixture {
	t.Helper()
	store := memory.New(nil)
	f := &fixture{
		store:    store,
		altitude: testutil.NewAltitudeSource(),
		accel:    testutil.NewAccelerationSource(),
		notifier: &testutil.Notifier{Result: true},
	}
	if points == nil {
		points = &faultyPoints{}
	}
	points.Store = store
	if opts.Aggregator.Interval == 0 {
		opts.Aggregator.Interval = 5 * time.Millisecond
	}
	f.tracker = NewTracker(Dependencies{
		Acceleration: f.accel,
		Altitude:     f.altitude,
		Points:       points,
		Sessions:     store,
		Notifier:     f.notifier,
	}, opts)
	return f
}

// faultyPoints fails every insert after the first failAfter ones.
type faultyPoints struct {
	*memory.Store
	failAfter int

	mu      sync.Mutex
	inserts int
}

func (p *faultyPoints) Insert(ctx context.Context, tp types.TrackPoint) (int64, error) {
	p.mu.Lock()
	p.inserts++
	n := p.inserts
	p.mu.Unlock()
	if p.failAfter > 0 && n > p.failAfter {
		return 0, errors.New("disk full")
	}
	return p.Store.Insert(ctx, tp)
}

func waitForState(t *testing.T, ch <-chan State, match func(State) bool) State {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if match(s) {
				return s
			}
		case <-deadline:
			t.Fatal("timed out waiting for state")
			return nil
		}
	}
}

func loadedWith(n int) func(State) bool {
	return func(s State) bool {
		l, ok := s.(Loaded)
		return ok && len(l.History) >= n
	}
}

func TestStartStopLifecycle(t *testing.T) {
	f := newFixture(t, nil, Options{})
	states, unsubscribe := f.tracker.Subscribe()
	defer unsubscribe()

	assert.IsType(t, Loading{}, <-states)

	id, err := f.tracker.Start(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	f.altitude.Emit(types.AltitudeData{Altitude: 1500, Timestamp: time.Now()})
	f.accel.Emit(types.AccelerationData{Z: 9.81, Timestamp: time.Now()})

	st := waitForState(t, states, loadedWith(3)).(Loaded)
	assert.Equal(t, st.History[len(st.History)-1], st.Latest)
	assert.Equal(t, 1500.0, st.Latest.Altitude)
	for i := 1; i < len(st.History); i++ {
		assert.True(t, st.History[i].Timestamp.After(st.History[i-1].Timestamp), "points must be strictly ordered")
	}

	require.NoError(t, f.tracker.Stop(context.Background(), id))
	stopped, ok := f.tracker.State().(SessionStopped)
	require.True(t, ok, "state is %T", f.tracker.State())
	assert.Equal(t, id, stopped.SessionID)

	stored := f.store.Points(id)
	assert.Equal(t, len(stored), stopped.Summary.PointCount)
	assert.GreaterOrEqual(t, len(stored), 3)

	sess, err := f.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.SessionStatusStopped, sess.Status)
	assert.Equal(t, 1500.0, sess.BaselineAltitude)

	assert.Equal(t, 1, f.altitude.Starts())
	assert.Equal(t, 1, f.altitude.Stops())

	select {
	case <-f.tracker.Done():
	default:
		t.Fatal("Done not closed after stop")
	}
}

func TestDoubleStopIsNoop(t *testing.T) {
	f := newFixture(t, nil, Options{})
	id, err := f.tracker.Start(context.Background())
	require.NoError(t, err)
	f.altitude.Emit(types.AltitudeData{Altitude: 10, Timestamp: time.Now()})

	require.NoError(t, f.tracker.Stop(context.Background(), id))
	first := f.tracker.State()
	count := len(f.store.Points(id))

	require.NoError(t, f.tracker.Stop(context.Background(), id))
	assert.Equal(t, first, f.tracker.State())
	assert.Equal(t, count, len(f.store.Points(id)))
	assert.Equal(t, 1, f.altitude.Stops())
}

func TestStopErrors(t *testing.T) {
	f := newFixture(t, nil, Options{})
	assert.ErrorIs(t, f.tracker.Stop(context.Background(), "nope"), ErrNotStarted)

	id, err := f.tracker.Start(context.Background())
	require.NoError(t, err)
	defer f.tracker.Stop(context.Background(), id)

	assert.ErrorIs(t, f.tracker.Stop(context.Background(), "other"), ErrUnknownSession)
	_, err = f.tracker.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestInsertFailureIsTerminal(t *testing.T) {
	f := newFixture(t, &faultyPoints{failAfter: 2}, Options{})
	states, unsubscribe := f.tracker.Subscribe()
	defer unsubscribe()

	id, err := f.tracker.Start(context.Background())
	require.NoError(t, err)
	f.altitude.Emit(types.AltitudeData{Altitude: 700, Timestamp: time.Now()})

	st := waitForState(t, states, func(s State) bool { _, ok := s.(Error); return ok }).(Error)
	assert.Contains(t, st.Message, "disk full")

	select {
	case <-f.tracker.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after failure")
	}

	assert.Len(t, f.store.Points(id), 2)
	sess, err := f.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.SessionStatusFailed, sess.Status)
	assert.Equal(t, 1, f.altitude.Stops())

	// Stopping a failed session changes nothing.
	require.NoError(t, f.tracker.Stop(context.Background(), id))
	assert.IsType(t, Error{}, f.tracker.State())
}

type failingSessions struct {
	*memory.Store
}

func (failingSessions) CreateSession(context.Context, types.Session) error {
	return errors.New("read-only database")
}

func TestCreateSessionFailure(t *testing.T) {
	store := memory.New(nil)
	tr := NewTracker(Dependencies{
		Altitude: testutil.NewAltitudeSource(),
		Points:   store,
		Sessions: failingSessions{store},
	}, Options{})

	_, err := tr.Start(context.Background())
	require.ErrorIs(t, err, ErrPersistence)
	assert.IsType(t, Error{}, tr.State())
}

func TestAllSourcesStale(t *testing.T) {
	f := newFixture(t, nil, Options{Aggregator: aggregator.Config{
		Interval:        5 * time.Millisecond,
		AllStaleTimeout: 30 * time.Millisecond,
	}})
	id, err := f.tracker.Start(context.Background())
	require.NoError(t, err)

	select {
	case <-f.tracker.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stale session did not fail")
	}
	st, ok := f.tracker.State().(Error)
	require.True(t, ok)
	assert.Contains(t, st.Message, "stale")

	sess, err := f.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.SessionStatusFailed, sess.Status)
}

func TestAlertNotifiedOnChangeOnly(t *testing.T) {
	f := newFixture(t, nil, Options{Danger: types.DangerSettings{
		EnabledTriggers: []types.DangerTrigger{types.TriggerInstantRate, types.TriggerTotalGain},
		InstantRateThr:  1000,
		TotalGainThr:    50,
	}})
	states, unsubscribe := f.tracker.Subscribe()
	defer unsubscribe()

	id, err := f.tracker.Start(context.Background())
	require.NoError(t, err)

	f.altitude.Emit(types.AltitudeData{Altitude: 1000, Timestamp: time.Now()})
	waitForState(t, states, loadedWith(1))

	f.altitude.Emit(types.AltitudeData{Altitude: 1100, Timestamp: time.Now()})
	waitForState(t, states, func(s State) bool {
		l, ok := s.(Loaded)
		return ok && l.Latest.AlertType == types.AlertTotalHeightExceeded
	})
	current := len(f.store.Points(id))
	waitForState(t, states, loadedWith(current+5))

	require.NoError(t, f.tracker.Stop(context.Background(), id))

	sent := f.notifier.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, types.AlertRapidAscent, sent[0].AlertType)
	assert.Equal(t, types.AlertTotalHeightExceeded, sent[1].AlertType)
	assert.Equal(t, types.AlertRapidAscent.Title(), sent[0].Title)

	stopped := f.tracker.State().(SessionStopped)
	assert.Equal(t, 2, stopped.Summary.AlertCount)
	assert.Equal(t, 100.0, stopped.Summary.Gain)
}

func TestHistoryIsNotAliased(t *testing.T) {
	f := newFixture(t, nil, Options{})
	states, unsubscribe := f.tracker.Subscribe()
	defer unsubscribe()

	id, err := f.tracker.Start(context.Background())
	require.NoError(t, err)
	defer f.tracker.Stop(context.Background(), id)

	f.altitude.Emit(types.AltitudeData{Altitude: 1, Timestamp: time.Now()})
	early := waitForState(t, states, loadedWith(1)).(Loaded)
	snapshot := append([]types.TrackPoint(nil), early.History...)

	waitForState(t, states, loadedWith(len(snapshot)+3))
	assert.Equal(t, snapshot, early.History)
	assert.Equal(t, len(early.History), cap(early.History))
}
