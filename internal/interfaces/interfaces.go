// Package interfaces defines the collaborator contracts consumed by the tracking core.
package interfaces

import (
	"context"

	"github.com/chrissnell/altiguard/internal/types"
)

// AccelerationSource produces accelerometer readings. Start may be called again
// after Stop; each Start opens a fresh channel returned by Readings.
// The channel is closed when the source stops.
type AccelerationSource interface {
	Start(ctx context.Context) error
	Stop() error
	Readings() <-chan types.AccelerationData
}

// AltitudeSource produces barometric altitude readings.
type AltitudeSource interface {
	Start(ctx context.Context) error
	Stop() error
	Readings() <-chan types.AltitudeData
}

// LocationSource produces GPS fixes.
type LocationSource interface {
	Start(ctx context.Context) error
	Stop() error
	Readings() <-chan types.LocationData
}

// TrackPointStore persists track points in insertion order.
type TrackPointStore interface {
	Insert(ctx context.Context, p types.TrackPoint) (int64, error)

	// StreamBySession emits the full ordered point list of the session, once
	// immediately and again after every insert or delete. The channel is
	// closed when ctx is done.
	StreamBySession(ctx context.Context, sessionID string) (<-chan []types.TrackPoint, error)

	DeleteBySession(ctx context.Context, sessionID string) error
}

// SessionStore persists session records and their final summaries.
type SessionStore interface {
	CreateSession(ctx context.Context, s types.Session) error
	FinishSession(ctx context.Context, summary types.SessionSummary) error
	GetSession(ctx context.Context, id string) (types.Session, error)
	ListSessions(ctx context.Context) ([]types.Session, error)
}

// Store is a backend that provides both point and session persistence.
type Store interface {
	TrackPointStore
	SessionStore
	Close() error
}

// AlertNotifier delivers alerts to the athlete. Delivery is best effort and a
// false return never aborts tracking.
type AlertNotifier interface {
	SendAlertNotification(ctx context.Context, alertType types.AlertType, title, message string) bool
}

// BackgroundExecutionGuarantee keeps the host from suspending the pipeline
// while a session runs unattended.
type BackgroundExecutionGuarantee interface {
	Start() error
	Stop() error
}
