package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/altiguard/internal/types"
)

type fakeLoader struct {
	mu     sync.Mutex
	points []types.TrackPoint
	err    error
}

func (f *fakeLoader) load(context.Context) ([]types.TrackPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]types.TrackPoint(nil), f.points...), nil
}

func (f *fakeLoader) add(p types.TrackPoint) {
	f.mu.Lock()
	f.points = append(f.points, p)
	f.mu.Unlock()
}

func TestStreamerDeliversNewestList(t *testing.T) {
	s := NewStreamer(nil)
	loader := &fakeLoader{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := s.Stream(ctx, "a", loader.load)
	require.NoError(t, err)
	assert.Empty(t, <-stream)
	assert.Equal(t, 1, s.Subscribers("a"))

	for i := 0; i < 5; i++ {
		loader.add(types.TrackPoint{SessionID: "a", ID: int64(i + 1)})
		s.Notify("a")
	}

	require.Eventually(t, func() bool {
		select {
		case points := <-stream:
			return len(points) == 5
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return s.Subscribers("a") == 0 }, time.Second, 5*time.Millisecond)
}

func TestStreamerInitialLoadError(t *testing.T) {
	s := NewStreamer(nil)
	loader := &fakeLoader{err: errors.New("boom")}

	_, err := s.Stream(context.Background(), "a", loader.load)
	require.Error(t, err)
	assert.Equal(t, 0, s.Subscribers("a"))
}

type stubStore struct {
	insertErr error
}

func (s *stubStore) Insert(context.Context, types.TrackPoint) (int64, error) { return 1, s.insertErr }
func (s *stubStore) StreamBySession(context.Context, string) (<-chan []types.TrackPoint, error) {
	return nil, nil
}
func (s *stubStore) DeleteBySession(context.Context, string) error { return nil }
func (s *stubStore) CreateSession(context.Context, types.Session) error { return nil }
func (s *stubStore) FinishSession(context.Context, types.SessionSummary) error { return nil }
func (s *stubStore) GetSession(context.Context, string) (types.Session, error) { return types.Session{}, nil }
func (s *stubStore) ListSessions(context.Context) ([]types.Session, error) { return nil, nil }
func (s *stubStore) Close() error { return nil }

func TestMonitoredRecordsHealth(t *testing.T) {
	hm := NewHealthManager()
	inner := &stubStore{}
	m := NewMonitored("sqlite", inner, hm)

	_, err := m.Insert(context.Background(), types.TrackPoint{})
	require.NoError(t, err)
	assert.True(t, hm.IsHealthy("sqlite", time.Minute))

	inner.insertErr = errors.New("disk full")
	_, err = m.Insert(context.Background(), types.TrackPoint{})
	require.Error(t, err)
	assert.False(t, hm.IsHealthy("sqlite", time.Minute))

	h, ok := hm.GetHealth("sqlite")
	require.True(t, ok)
	assert.Equal(t, StatusUnhealthy, h.Status)
	assert.Equal(t, "disk full", h.Error)
	assert.Len(t, hm.GetAllHealth(), 1)
	assert.False(t, hm.IsHealthy("missing", time.Minute))
}
