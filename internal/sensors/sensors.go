// Package sensors holds the lifecycle plumbing shared by the concrete sensor
// sources: a restartable reading channel and the transient read error type.
package sensors

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultBuffer is the reading channel capacity used when none is given.
const DefaultBuffer = 16

// ErrNotRunning is returned when stopping a source that is not running.
var ErrNotRunning = errors.New("sensor source not running")

// SensorReadError is a transient failure to read or decode one reading. The
// source logs it and keeps running; the aggregator keeps the last good value.
type SensorReadError struct {
	Sensor string
	Err    error
}

func (e *SensorReadError) Error() string {
	return fmt.Sprintf("%s read error: %v", e.Sensor, e.Err)
}

func (e *SensorReadError) Unwrap() error {
	return e.Err
}

// RunFunc produces readings until ctx is done. emit blocks until the reading
// is accepted or ctx is done, and reports whether it was accepted.
type RunFunc[T any] func(ctx context.Context, emit func(T) bool) error

// Lifecycle implements Start, Stop and Readings for a source. Each Start opens
// a fresh channel that is closed by the matching Stop.
type Lifecycle[T any] struct {
	Buffer int

	mu      sync.Mutex
	ch      chan T
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	lastErr error
}

// Start opens the reading channel and, if run is non-nil, runs it on its own
// goroutine. Starting a running source is a no-op.
func (l *Lifecycle[T]) Start(ctx context.Context, run RunFunc[T]) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil
	}

	buffer := l.Buffer
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan T, buffer)
	rctx, cancel := context.WithCancel(ctx)
	l.ch = ch
	l.cancel = cancel
	l.running = true
	l.lastErr = nil

	if run != nil {
		emit := func(v T) bool {
			select {
			case ch <- v:
				return true
			case <-rctx.Done():
				return false
			}
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			if err := run(rctx, emit); err != nil && rctx.Err() == nil {
				l.mu.Lock()
				l.lastErr = err
				l.mu.Unlock()
			}
		}()
	}
	return nil
}

// Stop cancels the producer, waits for it and closes the reading channel.
func (l *Lifecycle[T]) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = false
	cancel := l.cancel
	l.mu.Unlock()

	cancel()
	l.wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	close(l.ch)
	return l.lastErr
}

// Offer delivers a reading without blocking. It returns false when the source
// is stopped or its buffer is full.
func (l *Lifecycle[T]) Offer(v T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return false
	}
	select {
	case l.ch <- v:
		return true
	default:
		return false
	}
}

// Readings returns the channel opened by the most recent Start.
func (l *Lifecycle[T]) Readings() <-chan T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ch
}

// Running reports whether the source has been started and not stopped.
func (l *Lifecycle[T]) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}
