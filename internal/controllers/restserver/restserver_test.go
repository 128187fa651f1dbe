package restserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/chrissnell/altiguard/internal/aggregator"
	"github.com/chrissnell/altiguard/internal/background"
	"github.com/chrissnell/altiguard/internal/session"
	"github.com/chrissnell/altiguard/internal/storage"
	"github.com/chrissnell/altiguard/internal/storage/memory"
	"github.com/chrissnell/altiguard/internal/testutil"
	"github.com/chrissnell/altiguard/internal/types"
	"github.com/chrissnell/altiguard/pkg/config"
	"github.com/chrissnell/altiguard/pkg/responseformat"
)

type fixture struct {
	srv      *httptest.Server
	manager  *background.Manager
	mem      *memory.Store
	health   *storage.HealthManager
	altitude *testutil.Source[types.AltitudeData]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := &fixture{
		mem:      memory.New(nil),
		health:   storage.NewHealthManager(),
		altitude: testutil.NewAltitudeSource(),
	}
	store := storage.NewMonitored(config.BackendMemory, f.mem, f.health)
	f.manager = background.New(&testutil.Guarantee{}, func() *session.Tracker {
		return session.NewTracker(session.Dependencies{
			Altitude: f.altitude,
			Points:   store,
			Sessions: store,
		}, session.Options{Aggregator: aggregator.Config{Interval: 5 * time.Millisecond}})
	}, time.Hour, nil)

	var wg sync.WaitGroup
	ctrl, err := NewController(ctx, &wg, config.APIData{}, f.manager, store, f.health, zap.NewNop().Sugar())
	require.NoError(t, err)
	f.srv = httptest.NewServer(ctrl.Router())
	t.Cleanup(func() {
		f.manager.StopBackgroundSession(context.Background())
		f.srv.Close()
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *fixture) start(t *testing.T) string {
	t.Helper()
	var started StartResponse
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/session/start", &started))
	require.NotEmpty(t, started.SessionID)
	f.altitude.Emit(types.AltitudeData{Altitude: 1500, Timestamp: time.Now()})
	return started.SessionID
}

func (f *fixture) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http") + path
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)

	var st SessionStatus
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/session", &st))
	assert.Equal(t, "idle", st.State)

	id := f.start(t)
	require.Eventually(t, func() bool { return len(f.mem.Points(id)) >= 3 }, 2*time.Second, 5*time.Millisecond)

	var body responseformat.ErrorBody
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/session/start", &body))
	assert.NotEmpty(t, body.Error)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/session", &st))
	assert.Equal(t, "loaded", st.State)
	assert.Equal(t, id, st.SessionID)
	require.NotNil(t, st.Latest)
	assert.Equal(t, 1500.0, st.Latest.Altitude)
	require.NotNil(t, st.Stats)
	assert.NotZero(t, st.Stats.Ticks)

	var points []types.TrackPoint
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/sessions/"+id+"/points", &points))
	assert.GreaterOrEqual(t, len(points), 3)

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodDelete, "/api/sessions/"+id+"/points", &body))

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/session/stop", &st))
	assert.Equal(t, "stopped", st.State)
	require.NotNil(t, st.Summary)
	assert.Equal(t, st.Summary.PointCount, len(f.mem.Points(id)))

	var rec types.Session
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/sessions/"+id, &rec))
	assert.Equal(t, types.SessionStatusStopped, rec.Status)
	assert.Equal(t, 1500.0, rec.BaselineAltitude)

	var sessions []types.Session
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/sessions", &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, id, sessions[0].ID)

	var replay ReplayResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/sessions/"+id+"/replay", &replay))
	assert.True(t, replay.Matches)
	assert.Equal(t, 1500.0, replay.Baseline)
	assert.Len(t, replay.Metrics, st.Summary.PointCount)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/sessions/"+id+"/points", nil))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/sessions/"+id+"/points", &points))
	assert.Empty(t, points)
}

func TestStopWithoutSession(t *testing.T) {
	f := newFixture(t)
	var body responseformat.ErrorBody
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/session/stop", &body))
	assert.Equal(t, background.ErrNoSession.Error(), body.Error)
}

func TestUnknownSession(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{
		"/api/sessions/nope",
		"/api/sessions/nope/points",
		"/api/sessions/nope/replay",
		"/api/sessions/nope/stream",
	} {
		t.Run(path, func(t *testing.T) {
			var body responseformat.ErrorBody
			assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, path, &body))
			assert.Contains(t, body.Error, "not found")
		})
	}
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/sessions/nope/points", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodGet, "/api/session/start", nil))
}

func TestMsgPackResponse(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/api/session?format=msgpack")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, responseformat.ContentTypeMsgPack, resp.Header.Get("Content-Type"))

	var got map[string]any
	require.NoError(t, msgpack.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "idle", got["state"])
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	var h HealthResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/health", &h))
	assert.Equal(t, "idle", h.Session)
	assert.NotEmpty(t, h.Version)

	id := f.start(t)
	require.Eventually(t, func() bool { return len(f.mem.Points(id)) >= 1 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/health", &h))
	assert.Equal(t, storage.StatusHealthy, h.Storage[config.BackendMemory].Status)

	f.health.Record("timescaledb", "insert", errors.New("connection refused"))
	require.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/api/health", &h))
	assert.Equal(t, "connection refused", h.Storage["timescaledb"].Error)
}

func TestStreamPoints(t *testing.T) {
	f := newFixture(t)
	id := f.start(t)

	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL("/api/sessions/"+id+"/stream"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var ids []int64
	for len(ids) < 5 {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		msgType, b, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, msgType)

		var batch []types.TrackPoint
		require.NoError(t, json.Unmarshal(b, &batch))
		for _, p := range batch {
			assert.Equal(t, id, p.SessionID)
			ids = append(ids, p.ID)
		}
	}
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1], "points are sent once, in order")
	}
}

func TestStreamPointsMsgPack(t *testing.T) {
	f := newFixture(t)
	id := f.start(t)
	require.Eventually(t, func() bool { return len(f.mem.Points(id)) >= 1 }, 2*time.Second, 5*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL("/api/sessions/"+id+"/stream?format=msgpack"), nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, b, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, msgType)

	var batch []map[string]any
	require.NoError(t, msgpack.Unmarshal(b, &batch))
	require.NotEmpty(t, batch)
	assert.Equal(t, id, batch[0]["session_id"])
}

func TestStreamSessionState(t *testing.T) {
	f := newFixture(t)

	var body responseformat.ErrorBody
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/session/stream", &body))

	id := f.start(t)
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL("/api/session/stream"), nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() SessionStatus {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, b, err := conn.ReadMessage()
		require.NoError(t, err)
		var st SessionStatus
		require.NoError(t, json.Unmarshal(b, &st))
		return st
	}

	st := read()
	assert.Equal(t, id, st.SessionID)
	assert.NotEqual(t, "stopped", st.State)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/session/stop", nil))
	for st.State != "stopped" {
		st = read()
	}
	require.NotNil(t, st.Summary)
	assert.Equal(t, id, st.Summary.SessionID)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestNewPoints(t *testing.T) {
	pts := func(n int) []types.TrackPoint {
		out := make([]types.TrackPoint, n)
		for i := range out {
			out[i].ID = int64(i + 1)
		}
		return out
	}

	tests := []struct {
		name     string
		points   []types.TrackPoint
		sent     int
		wantLen  int
		wantNil  bool
		wantSent int
	}{
		{"first empty list", nil, -1, 0, false, 0},
		{"first list", pts(3), -1, 3, false, 3},
		{"unchanged", pts(3), 3, 0, true, 3},
		{"appended", pts(5), 3, 2, false, 5},
		{"deleted", nil, 5, 0, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, sent := newPoints(tt.points, tt.sent)
			if tt.wantNil {
				assert.Nil(t, batch)
			} else {
				assert.NotNil(t, batch)
				assert.Len(t, batch, tt.wantLen)
			}
			assert.Equal(t, tt.wantSent, sent)
		})
	}
	batch, _ := newPoints(pts(5), 3)
	assert.Equal(t, int64(4), batch[0].ID)
}

func TestStatusFromState(t *testing.T) {
	latest := types.TrackPoint{ID: 2, Altitude: 1510}
	tests := []struct {
		state session.State
		want  SessionStatus
	}{
		{session.Loading{}, SessionStatus{State: "loading", SessionID: "s"}},
		{session.Loaded{Latest: latest, History: []types.TrackPoint{{ID: 1}, latest}},
			SessionStatus{State: "loaded", SessionID: "s", Latest: &latest, PointCount: 2}},
		{session.Stopping{SessionID: "s"}, SessionStatus{State: "stopping", SessionID: "s"}},
		{session.Error{Message: "disk full"}, SessionStatus{State: "error", SessionID: "s", Error: "disk full"}},
	}
	for _, tt := range tests {
		t.Run(session.Name(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFromState(tt.state, "s"))
		})
	}

	st := statusFromState(session.SessionStopped{SessionID: "s", Summary: types.SessionSummary{SessionID: "s", PointCount: 4}}, "")
	assert.Equal(t, "stopped", st.State)
	assert.Equal(t, "s", st.SessionID)
	assert.Equal(t, 4, st.PointCount)
}
