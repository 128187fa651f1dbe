// Package memory is a process-local store used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/chrissnell/altiguard/internal/storage"
	"github.com/chrissnell/altiguard/internal/types"
)

// Store keeps sessions and their points in memory.
type Store struct {
	mu       sync.RWMutex
	nextID   int64
	points   map[string][]types.TrackPoint
	sessions map[string]types.Session
	streamer *storage.Streamer
}

// New creates an empty Store.
func New(logger *zap.SugaredLogger) *Store {
	return &Store{
		points:   make(map[string][]types.TrackPoint),
		sessions: make(map[string]types.Session),
		streamer: storage.NewStreamer(logger),
	}
}

func (s *Store) Insert(ctx context.Context, p types.TrackPoint) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.nextID++
	p.ID = s.nextID
	s.points[p.SessionID] = append(s.points[p.SessionID], p)
	s.mu.Unlock()

	s.streamer.Notify(p.SessionID)
	return p.ID, nil
}

func (s *Store) StreamBySession(ctx context.Context, sessionID string) (<-chan []types.TrackPoint, error) {
	return s.streamer.Stream(ctx, sessionID, func(context.Context) ([]types.TrackPoint, error) {
		return s.Points(sessionID), nil
	})
}

// Points returns a copy of the session's points in insertion order.
func (s *Store) Points(sessionID string) []types.TrackPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.TrackPoint(nil), s.points[sessionID]...)
}

func (s *Store) DeleteBySession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.points, sessionID)
	s.mu.Unlock()

	s.streamer.Notify(sessionID)
	return nil
}

func (s *Store) CreateSession(ctx context.Context, sess types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.ID]; exists {
		return fmt.Errorf("session %s already exists", sess.ID)
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *Store) FinishSession(ctx context.Context, summary types.SessionSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[summary.SessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", summary.SessionID, storage.ErrNotFound)
	}
	summary.Apply(&sess)
	s.sessions[sess.ID] = sess
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return types.Session{}, fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	return sess, nil
}

// ListSessions returns every session, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]types.Session, error) {
	s.mu.RLock()
	out := make([]types.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (s *Store) Close() error {
	return nil
}
