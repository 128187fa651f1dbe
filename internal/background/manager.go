// Package background keeps a tracking session alive while it runs unattended.
// It holds a BackgroundExecutionGuarantee for the lifetime of the session and
// ends the session when it exceeds its maximum duration.
package background

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/altiguard/internal/interfaces"
	"github.com/chrissnell/altiguard/internal/session"
)

// DefaultMaxDuration bounds a session when no limit is configured.
const DefaultMaxDuration = 12 * time.Hour

var (
	ErrSessionActive = errors.New("a background session is already running")
	ErrNoSession     = errors.New("no background session running")
)

// TrackerFactory builds a fresh tracker for every session.
type TrackerFactory func() *session.Tracker

// Manager runs at most one background session at a time.
type Manager struct {
	guarantee   interfaces.BackgroundExecutionGuarantee
	newTracker  TrackerFactory
	maxDuration time.Duration
	logger      *zap.SugaredLogger

	mu        sync.Mutex
	tracker   *session.Tracker
	sessionID string
	released  chan struct{}

	expired atomic.Bool
}

// New creates a Manager. A maxDuration of zero selects DefaultMaxDuration.
func New(guarantee interfaces.BackgroundExecutionGuarantee, factory TrackerFactory, maxDuration time.Duration, logger *zap.SugaredLogger) *Manager {
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if guarantee == nil {
		guarantee = NoopGuarantee{}
	}
	return &Manager{
		guarantee:   guarantee,
		newTracker:  factory,
		maxDuration: maxDuration,
		logger:      logger,
	}
}

// StartBackgroundSession acquires the execution guarantee and starts a new
// session. The guarantee is released when the session reaches a terminal state.
func (m *Manager) StartBackgroundSession(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tracker != nil && !m.tracker.State().Terminal() {
		return "", ErrSessionActive
	}
	if m.released != nil {
		<-m.released
	}

	if err := m.guarantee.Start(); err != nil {
		return "", fmt.Errorf("acquiring background execution: %w", err)
	}

	tr := m.newTracker()
	id, err := tr.Start(ctx)
	if err != nil {
		if gerr := m.guarantee.Stop(); gerr != nil {
			m.logger.Warnf("error releasing background execution: %v", gerr)
		}
		return "", err
	}

	m.tracker = tr
	m.sessionID = id
	m.expired.Store(false)
	m.released = make(chan struct{})
	go m.watch(tr, id, m.released)

	m.logger.Infow("background session started", "session_id", id, "max_duration", m.maxDuration)
	return id, nil
}

// StopBackgroundSession stops the running session and waits until the
// execution guarantee has been released.
func (m *Manager) StopBackgroundSession(ctx context.Context) error {
	m.mu.Lock()
	tr, id, released := m.tracker, m.sessionID, m.released
	m.mu.Unlock()

	if tr == nil {
		return ErrNoSession
	}
	err := tr.Stop(ctx, id)

	select {
	case <-released:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// Tracker returns the current or most recent tracker, or nil.
func (m *Manager) Tracker() *session.Tracker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tracker
}

// Expired reports whether the most recent session was ended by the duration limit.
func (m *Manager) Expired() bool {
	return m.expired.Load()
}

// watch ends the session at its deadline and releases the guarantee once
// the tracker is done, however it got there.
func (m *Manager) watch(tr *session.Tracker, id string, released chan struct{}) {
	defer close(released)

	timer := time.NewTimer(m.maxDuration)
	defer timer.Stop()

	select {
	case <-tr.Done():
	case <-timer.C:
		m.logger.Warnw("maximum session duration reached, stopping session", "session_id", id, "max_duration", m.maxDuration)
		m.expired.Store(true)
		if err := tr.Stop(context.Background(), id); err != nil {
			m.logger.Errorw("could not stop expired session", "session_id", id, "error", err)
		}
		<-tr.Done()
	}

	if err := m.guarantee.Stop(); err != nil {
		m.logger.Warnf("error releasing background execution: %v", err)
	}
	m.logger.Infow("background session released", "session_id", id, "state", session.Name(tr.State()))
}
