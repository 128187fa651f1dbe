package restserver

import (
	"context"
	"errors"
	"math"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/chrissnell/altiguard/internal/background"
	"github.com/chrissnell/altiguard/internal/constants"
	"github.com/chrissnell/altiguard/internal/metrics"
	"github.com/chrissnell/altiguard/internal/storage"
	"github.com/chrissnell/altiguard/internal/types"
	"github.com/chrissnell/altiguard/pkg/responseformat"
)

// replayTolerance absorbs float drift between live and replayed metrics.
const replayTolerance = 1e-6

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

func (h *Handlers) write(w http.ResponseWriter, req *http.Request, status int, data any) {
	if err := h.formatter.WriteStatus(w, req, status, data, nil); err != nil {
		h.controller.logger.Warnw("error writing response", "path", req.URL.Path, "error", err)
	}
}

func (h *Handlers) fail(w http.ResponseWriter, req *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.controller.logger.Errorw("request failed", "path", req.URL.Path, "error", err)
	}
	if werr := h.formatter.WriteError(w, req, status, err.Error()); werr != nil {
		h.controller.logger.Warnw("error writing response", "path", req.URL.Path, "error", werr)
	}
}

// currentStatus reports the state of the current or most recent session.
func (h *Handlers) currentStatus() SessionStatus {
	tr := h.controller.manager.Tracker()
	if tr == nil {
		return SessionStatus{State: stateIdle}
	}
	st := statusFromState(tr.State(), tr.SessionID())
	st.Expired = h.controller.manager.Expired()
	stats := tr.Stats()
	st.Stats = &stats
	return st
}

// activeSessionID returns the id of a session that has not reached a terminal state.
func (h *Handlers) activeSessionID() (string, bool) {
	tr := h.controller.manager.Tracker()
	if tr == nil || tr.State().Terminal() {
		return "", false
	}
	return tr.SessionID(), true
}

// GetHealth reports storage health. It answers 503 when any backend is unhealthy.
func (h *Handlers) GetHealth(w http.ResponseWriter, req *http.Request) {
	resp := HealthResponse{
		Version: constants.Version,
		Session: h.currentStatus().State,
		Storage: h.controller.health.GetAllHealth(),
	}

	status := http.StatusOK
	for _, hd := range resp.Storage {
		if hd.Status != storage.StatusHealthy {
			status = http.StatusServiceUnavailable
			break
		}
	}
	h.write(w, req, status, resp)
}

// GetSession returns the state of the current session.
func (h *Handlers) GetSession(w http.ResponseWriter, req *http.Request) {
	h.write(w, req, http.StatusOK, h.currentStatus())
}

// StartSession starts a new background session.
func (h *Handlers) StartSession(w http.ResponseWriter, req *http.Request) {
	id, err := h.controller.manager.StartBackgroundSession(req.Context())
	switch {
	case errors.Is(err, background.ErrSessionActive):
		h.fail(w, req, http.StatusConflict, err)
	case err != nil:
		h.fail(w, req, http.StatusInternalServerError, err)
	default:
		h.write(w, req, http.StatusCreated, StartResponse{SessionID: id})
	}
}

// StopSession stops the running session and returns its final state.
func (h *Handlers) StopSession(w http.ResponseWriter, req *http.Request) {
	err := h.controller.manager.StopBackgroundSession(req.Context())
	switch {
	case errors.Is(err, background.ErrNoSession):
		h.fail(w, req, http.StatusConflict, err)
	case err != nil:
		h.fail(w, req, http.StatusInternalServerError, err)
	default:
		h.write(w, req, http.StatusOK, h.currentStatus())
	}
}

// ListSessions returns every stored session, newest first.
func (h *Handlers) ListSessions(w http.ResponseWriter, req *http.Request) {
	sessions, err := h.controller.store.ListSessions(req.Context())
	if err != nil {
		h.fail(w, req, http.StatusInternalServerError, err)
		return
	}
	if sessions == nil {
		sessions = []types.Session{}
	}
	h.write(w, req, http.StatusOK, sessions)
}

// lookupSession writes a 404 or 500 and returns false when the session can't be loaded.
func (h *Handlers) lookupSession(w http.ResponseWriter, req *http.Request) (types.Session, bool) {
	id := mux.Vars(req)["id"]
	sess, err := h.controller.store.GetSession(req.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		h.fail(w, req, http.StatusNotFound, err)
		return types.Session{}, false
	}
	if err != nil {
		h.fail(w, req, http.StatusInternalServerError, err)
		return types.Session{}, false
	}
	return sess, true
}

// GetSessionRecord returns one stored session.
func (h *Handlers) GetSessionRecord(w http.ResponseWriter, req *http.Request) {
	sess, ok := h.lookupSession(w, req)
	if !ok {
		return
	}
	h.write(w, req, http.StatusOK, sess)
}

// loadPoints takes the current point list from the store stream.
func (h *Handlers) loadPoints(ctx context.Context, sessionID string) ([]types.TrackPoint, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := h.controller.store.StreamBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	select {
	case points, ok := <-ch:
		if !ok {
			return nil, errors.New("point stream closed before the first list")
		}
		if points == nil {
			points = []types.TrackPoint{}
		}
		return points, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetPoints returns the ordered track points of a session.
func (h *Handlers) GetPoints(w http.ResponseWriter, req *http.Request) {
	sess, ok := h.lookupSession(w, req)
	if !ok {
		return
	}
	points, err := h.loadPoints(req.Context(), sess.ID)
	if err != nil {
		h.fail(w, req, http.StatusInternalServerError, err)
		return
	}
	h.write(w, req, http.StatusOK, points)
}

// DeletePoints removes the stored points of a session that is not running.
func (h *Handlers) DeletePoints(w http.ResponseWriter, req *http.Request) {
	sess, ok := h.lookupSession(w, req)
	if !ok {
		return
	}
	if active, running := h.activeSessionID(); running && active == sess.ID {
		h.fail(w, req, http.StatusConflict, errors.New("session is still running"))
		return
	}
	if err := h.controller.store.DeleteBySession(req.Context(), sess.ID); err != nil {
		h.fail(w, req, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReplaySession recomputes the metrics of a session from its stored points
// and reports whether they match what was computed live.
func (h *Handlers) ReplaySession(w http.ResponseWriter, req *http.Request) {
	sess, ok := h.lookupSession(w, req)
	if !ok {
		return
	}
	points, err := h.loadPoints(req.Context(), sess.ID)
	if err != nil {
		h.fail(w, req, http.StatusInternalServerError, err)
		return
	}

	baseline := replayBaseline(sess, points)
	replayed := metrics.Recompute(points, baseline)
	h.write(w, req, http.StatusOK, ReplayResponse{
		SessionID: sess.ID,
		Baseline:  baseline,
		Metrics:   replayed,
		Matches:   metricsMatch(points, replayed),
	})
}

// replayBaseline uses the stored baseline of a stopped session. Running and
// failed sessions have no stored baseline, so it is taken from the first point.
func replayBaseline(sess types.Session, points []types.TrackPoint) float64 {
	if sess.Status == types.SessionStatusStopped || len(points) == 0 {
		return sess.BaselineAltitude
	}
	return points[0].Altitude - points[0].RelAltitude
}

func metricsMatch(points []types.TrackPoint, replayed []types.Metrics) bool {
	if len(points) != len(replayed) {
		return false
	}
	near := func(a, b float64) bool { return math.Abs(a-b) <= replayTolerance }
	for i, p := range points {
		m := replayed[i]
		if !near(p.VVertical, m.VVertical) || !near(p.VTotal, m.VTotal) ||
			!near(p.Gain, m.Gain) || !near(p.Loss, m.Loss) ||
			!near(p.RelAltitude, m.RelAltitude) || !near(p.AvgVertical, m.AvgVertical) {
			return false
		}
	}
	return true
}
