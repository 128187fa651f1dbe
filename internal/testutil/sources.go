// Package testutil provides in-memory fakes of the tracking collaborators for tests.
package testutil

import (
	"context"
	"sync"

	"github.com/chrissnell/altiguard/internal/types"
)

// Source is a restartable fake sensor source driven by Emit.
type Source[T any] struct {
	mu     sync.Mutex
	ch     chan T
	starts int
	stops  int

	StartErr error
	StopErr  error
}

// NewSource returns a stopped source.
func NewSource[T any]() *Source[T] {
	return &Source[T]{}
}

// NewAccelerationSource, NewAltitudeSource and NewLocationSource are typed shorthands.
func NewAccelerationSource() *Source[types.AccelerationData] { return NewSource[types.AccelerationData]() }
func NewAltitudeSource() *Source[types.AltitudeData] { return NewSource[types.AltitudeData]() }
func NewLocationSource() *Source[types.LocationData] { return NewSource[types.LocationData]() }

func (s *Source[T]) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StartErr != nil {
		return s.StartErr
	}
	s.ch = make(chan T, 64)
	s.starts++
	return nil
}

func (s *Source[T]) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		close(s.ch)
		s.ch = nil
	}
	s.stops++
	return s.StopErr
}

func (s *Source[T]) Readings() <-chan T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// Emit queues a value. It returns false if the source is not running or its
// buffer is full.
func (s *Source[T]) Emit(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return false
	}
	select {
	case s.ch <- v:
		return true
	default:
		return false
	}
}

// Terminate closes the channel as if the underlying stream ended on its own.
func (s *Source[T]) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		close(s.ch)
		s.ch = nil
	}
}

// Starts and Stops report how many times the lifecycle methods ran.
func (s *Source[T]) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

func (s *Source[T]) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}
