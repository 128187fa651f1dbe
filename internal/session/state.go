package session

import "github.com/chrissnell/altiguard/internal/types"

// State is the observable lifecycle state of a tracking session. The concrete
// types are Loading, Loaded, Stopping, SessionStopped and Error; consumers
// switch on them exhaustively.
type State interface {
	isState()
	// Terminal reports whether the state can no longer change.
	Terminal() bool
}

// Loading is the state between Start and the first persisted track point.
type Loading struct{}

// Loaded carries the newest track point and the ordered history of the
// session up to and including it. History must not be modified.
type Loaded struct {
	Latest  types.TrackPoint
	History []types.TrackPoint
}

// Stopping is entered when Stop has been requested and the pipeline is draining.
type Stopping struct {
	SessionID string
}

// SessionStopped is the terminal state after a clean stop.
type SessionStopped struct {
	SessionID string
	Summary   types.SessionSummary
}

// Error is the terminal state after an unrecoverable failure.
type Error struct {
	Message string
}

func (Loading) isState()        {}
func (Loaded) isState()         {}
func (Stopping) isState()       {}
func (SessionStopped) isState() {}
func (Error) isState()          {}

func (Loading) Terminal() bool        { return false }
func (Loaded) Terminal() bool         { return false }
func (Stopping) Terminal() bool       { return false }
func (SessionStopped) Terminal() bool { return true }
func (Error) Terminal() bool          { return true }

// Name returns a short label for logs and the status API.
func Name(s State) string {
	switch s.(type) {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Stopping:
		return "stopping"
	case SessionStopped:
		return "stopped"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// allowed reports whether the machine may move from one state to another.
func allowed(from, to State) bool {
	if from.Terminal() {
		return false
	}
	switch from.(type) {
	case Stopping:
		switch to.(type) {
		case SessionStopped, Error:
			return true
		}
		return false
	}
	switch to.(type) {
	case Loading:
		return false
	}
	return true
}
