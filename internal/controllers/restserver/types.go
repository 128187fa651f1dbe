package restserver

import (
	"github.com/chrissnell/altiguard/internal/aggregator"
	"github.com/chrissnell/altiguard/internal/session"
	"github.com/chrissnell/altiguard/internal/storage"
	"github.com/chrissnell/altiguard/internal/types"
)

const stateIdle = "idle"

// SessionStatus is the API view of the tracker state machine.
type SessionStatus struct {
	State      string                `json:"state"`
	SessionID  string                `json:"session_id,omitempty"`
	Latest     *types.TrackPoint     `json:"latest,omitempty"`
	PointCount int                   `json:"point_count"`
	Summary    *types.SessionSummary `json:"summary,omitempty"`
	Error      string                `json:"error,omitempty"`
	Expired    bool                  `json:"expired,omitempty"`
	Stats      *aggregator.Stats     `json:"stats,omitempty"`
}

// StartResponse is returned by a successful session start.
type StartResponse struct {
	SessionID string `json:"session_id"`
}

// HealthResponse reports the tracker and storage backends.
type HealthResponse struct {
	Version string                        `json:"version"`
	Session string                        `json:"session"`
	Storage map[string]storage.HealthData `json:"storage"`
}

// ReplayResponse holds metrics recomputed from a stored history next to the
// metrics that were stored live.
type ReplayResponse struct {
	SessionID string          `json:"session_id"`
	Baseline  float64         `json:"baseline"`
	Metrics   []types.Metrics `json:"metrics"`
	Matches   bool            `json:"matches"`
}

// statusFromState converts a tracker state into its API view.
func statusFromState(s session.State, sessionID string) SessionStatus {
	st := SessionStatus{State: session.Name(s), SessionID: sessionID}
	switch v := s.(type) {
	case session.Loading:
	case session.Loaded:
		latest := v.Latest
		st.Latest = &latest
		st.PointCount = len(v.History)
	case session.Stopping:
		st.SessionID = v.SessionID
	case session.SessionStopped:
		summary := v.Summary
		st.SessionID = v.SessionID
		st.Summary = &summary
		st.PointCount = v.Summary.PointCount
	case session.Error:
		st.Error = v.Message
	}
	return st
}
