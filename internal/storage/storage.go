// Package storage holds the pieces shared by the track point storage backends.
package storage

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/chrissnell/altiguard/internal/types"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

// LoadFunc reads the full ordered point list of a session.
type LoadFunc func(ctx context.Context) ([]types.TrackPoint, error)

// Streamer fans out change signals to StreamBySession subscribers. Backends
// call Notify after every write to a session.
type Streamer struct {
	mu     sync.Mutex
	subs   map[string]map[int]chan struct{}
	nextID int
	logger *zap.SugaredLogger
}

// NewStreamer creates an empty Streamer.
func NewStreamer(logger *zap.SugaredLogger) *Streamer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Streamer{
		subs:   make(map[string]map[int]chan struct{}),
		logger: logger,
	}
}

// Notify signals every subscriber of sessionID that its points changed.
func (s *Streamer) Notify(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs[sessionID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribers returns the number of active streams for sessionID.
func (s *Streamer) Subscribers(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[sessionID])
}

// Stream emits load's result immediately and again after every Notify for
// sessionID. A slow reader only ever sees the newest list. The returned
// channel is closed when ctx is done.
func (s *Streamer) Stream(ctx context.Context, sessionID string, load LoadFunc) (<-chan []types.TrackPoint, error) {
	// Subscribe before the first load so no write between the two is missed.
	sig, unsubscribe := s.subscribe(sessionID)

	points, err := load(ctx)
	if err != nil {
		unsubscribe()
		return nil, err
	}

	out := make(chan []types.TrackPoint, 1)
	out <- points

	go func() {
		defer close(out)
		defer unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case <-sig:
				points, err := load(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					s.logger.Warnw("could not reload session points", "session_id", sessionID, "error", err)
					continue
				}
				select {
				case <-out:
				default:
				}
				out <- points
			}
		}
	}()

	return out, nil
}

func (s *Streamer) subscribe(sessionID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.subs[sessionID] == nil {
		s.subs[sessionID] = make(map[int]chan struct{})
	}
	s.subs[sessionID][id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[sessionID], id)
		if len(s.subs[sessionID]) == 0 {
			delete(s.subs, sessionID)
		}
	}
}
