// Package session runs one tracking session: it wires the sensor sources into
// the aggregator, turns every aggregated sample into a persisted track point
// and exposes the lifecycle as a small state machine.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chrissnell/altiguard/internal/aggregator"
	"github.com/chrissnell/altiguard/internal/danger"
	"github.com/chrissnell/altiguard/internal/interfaces"
	"github.com/chrissnell/altiguard/internal/metrics"
	"github.com/chrissnell/altiguard/internal/types"
)

const defaultNotifyTimeout = 5 * time.Second

// Dependencies are the collaborators a Tracker drives. Any sensor source may
// be nil. Notifier may be nil to disable alert delivery.
type Dependencies struct {
	Acceleration interfaces.AccelerationSource
	Altitude     interfaces.AltitudeSource
	Location     interfaces.LocationSource
	Points       interfaces.TrackPointStore
	Sessions     interfaces.SessionStore
	Notifier     interfaces.AlertNotifier
	Logger       *zap.SugaredLogger
}

// Options tune a Tracker. The zero value is usable.
type Options struct {
	Aggregator    aggregator.Config
	Danger        types.DangerSettings
	NotifyTimeout time.Duration

	Now   func() time.Time
	NewID func() string
}

// Tracker runs a single session from Start to a terminal state. A Tracker is
// not reusable; create a new one for every session.
type Tracker struct {
	deps Dependencies
	opts Options
	log  *zap.SugaredLogger

	mu          sync.Mutex
	state       State
	session     types.Session
	started     bool
	subscribers map[int]chan State
	nextSub     int

	cancel       context.CancelFunc
	agg          *aggregator.Aggregator
	pipeline     sync.WaitGroup
	notifies     sync.WaitGroup
	startDone    chan struct{}
	consumerDone chan struct{}
	done         chan struct{}
	doneOnce     sync.Once

	// Owned by the consumer goroutine until consumerDone is closed.
	engine    *metrics.Engine
	history   []types.TrackPoint
	lastAlert types.AlertType
}

// NewTracker creates a Tracker in the Loading state.
func NewTracker(deps Dependencies, opts Options) *Tracker {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = defaultNotifyTimeout
	}
	return &Tracker{
		deps:         deps,
		opts:         opts,
		log:          deps.Logger,
		state:        Loading{},
		subscribers:  make(map[int]chan State),
		startDone:    make(chan struct{}),
		consumerDone: make(chan struct{}),
		done:         make(chan struct{}),
		lastAlert:    types.AlertNone,
	}
}

// Start creates the session record and launches the pipeline. It returns the
// new session id. The pipeline outlives ctx; only Stop or a failure ends it.
func (t *Tracker) Start(ctx context.Context) (string, error) {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return "", ErrAlreadyStarted
	}
	t.started = true
	t.session = types.Session{
		ID:        t.opts.NewID(),
		StartedAt: t.opts.Now(),
		Status:    types.SessionStatusActive,
	}
	sess := t.session
	t.mu.Unlock()
	defer close(t.startDone)

	t.engine = metrics.NewEngine(sess.ID)

	if err := t.deps.Sessions.CreateSession(ctx, sess); err != nil {
		err = fmt.Errorf("%w: creating session %s: %v", ErrPersistence, sess.ID, err)
		t.terminate(err)
		return "", err
	}

	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	agg := aggregator.New(t.deps.Acceleration, t.deps.Altitude, t.deps.Location, t.opts.Aggregator, t.log.Named("aggregator"))
	t.mu.Lock()
	t.agg = agg
	t.mu.Unlock()
	if err := agg.Run(pctx, &t.pipeline); err != nil {
		cancel()
		err = fmt.Errorf("starting sensors: %w", err)
		t.markFailed(sess)
		t.terminate(err)
		return "", err
	}

	go t.consume(pctx)

	t.log.Infow("session started", "session_id", sess.ID)
	return sess.ID, nil
}

// Stop drains the pipeline, writes the session summary and moves to
// SessionStopped. Stopping a session that already stopped or failed is a no-op.
func (t *Tracker) Stop(ctx context.Context, sessionID string) error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return ErrNotStarted
	}
	if sessionID != t.session.ID {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	t.mu.Unlock()

	// A concurrent Start finishes before the state is inspected.
	<-t.startDone

	t.mu.Lock()
	switch t.state.(type) {
	case SessionStopped, Error:
		t.mu.Unlock()
		return nil
	case Stopping:
		t.mu.Unlock()
		<-t.done
		return nil
	}
	t.setStateLocked(Stopping{SessionID: sessionID})
	cancel := t.cancel
	sess := t.session
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-t.consumerDone
	t.pipeline.Wait()
	t.notifies.Wait()

	if _, failed := t.State().(Error); failed {
		return nil
	}

	if baseline, ok := t.engine.Baseline(); ok {
		sess.BaselineAltitude = baseline
	}
	summary := Summarize(sess, types.SessionStatusStopped, t.history, t.opts.Now())
	if err := t.deps.Sessions.FinishSession(ctx, summary); err != nil {
		err = fmt.Errorf("%w: writing summary for %s: %v", ErrPersistence, sessionID, err)
		t.terminate(err)
		return err
	}

	t.mu.Lock()
	t.setStateLocked(SessionStopped{SessionID: sessionID, Summary: summary})
	t.mu.Unlock()
	t.doneOnce.Do(func() { close(t.done) })

	t.log.Infow("session stopped", "session_id", sessionID, "points", summary.PointCount,
		"gain", summary.Gain, "loss", summary.Loss)
	return nil
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SessionID returns the id assigned by Start, or "" before Start.
func (t *Tracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session.ID
}

// Done is closed once the tracker reaches a terminal state and its pipeline
// has exited.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

// Stats returns the aggregator counters, or zero values before Start.
func (t *Tracker) Stats() aggregator.Stats {
	t.mu.Lock()
	agg := t.agg
	t.mu.Unlock()
	if agg == nil {
		return aggregator.Stats{}
	}
	return agg.Stats()
}

// Subscribe returns a channel that receives the current state immediately and
// every later state. Each subscriber holds only the newest undelivered state.
// The returned function unsubscribes and closes the channel.
func (t *Tracker) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subscribers[id] = ch
	ch <- t.state
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subscribers, id)
			close(ch)
			t.mu.Unlock()
		})
	}
}

// setStateLocked moves to next if the transition is allowed and publishes it.
// t.mu must be held.
func (t *Tracker) setStateLocked(next State) bool {
	if !allowed(t.state, next) {
		return false
	}
	t.state = next
	for _, ch := range t.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
	return true
}

// terminate moves to the Error state and releases waiters.
func (t *Tracker) terminate(err error) {
	t.mu.Lock()
	moved := t.setStateLocked(Error{Message: err.Error()})
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if moved {
		t.log.Errorw("session failed", "session_id", t.SessionID(), "error", err)
	}
	t.doneOnce.Do(func() { close(t.done) })
}

// markFailed records the failed status on a best-effort basis.
func (t *Tracker) markFailed(sess types.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), t.opts.NotifyTimeout)
	defer cancel()

	if baseline, ok := t.engine.Baseline(); ok {
		sess.BaselineAltitude = baseline
	}
	summary := Summarize(sess, types.SessionStatusFailed, t.history, t.opts.Now())
	if err := t.deps.Sessions.FinishSession(ctx, summary); err != nil {
		t.log.Warnw("could not mark session failed", "session_id", sess.ID, "error", err)
	}
}

// consume is the only goroutine that touches the engine and the history.
func (t *Tracker) consume(ctx context.Context) {
	defer close(t.consumerDone)

	samples := t.agg.Samples()
	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case err := <-t.agg.Errors():
			t.fail(err)
			return
		case sample, ok := <-samples:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				select {
				case err := <-t.agg.Errors():
					t.fail(err)
				default:
					t.fail(errors.New("sensor aggregator stopped unexpectedly"))
				}
				return
			}
			if err := t.handle(ctx, sample); err != nil {
				if ctx.Err() != nil {
					t.log.Debugw("in-flight track point dropped during stop", "error", err)
					return
				}
				t.fail(err)
				return
			}
		}
	}
}

// fail runs on the consumer goroutine. It shuts the pipeline down and waits
// for it before releasing Done.
func (t *Tracker) fail(err error) {
	t.mu.Lock()
	cancel := t.cancel
	sess := t.session
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	t.pipeline.Wait()
	t.notifies.Wait()
	t.markFailed(sess)
	t.terminate(err)
}

func (t *Tracker) handle(ctx context.Context, sample types.AggregateSample) error {
	p, err := t.engine.Next(sample)
	if errors.Is(err, metrics.ErrNoAltitude) {
		t.log.Debugw("aggregation gap: sample without altitude before baseline", "timestamp", sample.Timestamp)
		return nil
	}
	if err != nil {
		return err
	}
	p.Metrics = danger.Apply(p.Metrics, t.opts.Danger)

	id, err := t.deps.Points.Insert(ctx, p)
	if err != nil {
		return fmt.Errorf("%w: inserting track point: %v", ErrPersistence, err)
	}
	p.ID = id
	t.engine.Commit(p)
	t.history = append(t.history, p)

	if p.AlertType != t.lastAlert && p.AlertType != types.AlertNone {
		t.notify(p)
	}
	t.lastAlert = p.AlertType

	n := len(t.history)
	t.mu.Lock()
	t.setStateLocked(Loaded{Latest: p, History: t.history[:n:n]})
	t.mu.Unlock()
	return nil
}

func (t *Tracker) notify(p types.TrackPoint) {
	if t.deps.Notifier == nil {
		return
	}
	title := p.AlertType.Title()
	message := fmt.Sprintf("%s at %s: vertical %.0f m/min, average %.0f m/min, relative altitude %.0f m, gain %.0f m",
		title, p.Timestamp.Format(time.RFC3339), p.VVertical, p.AvgVertical, p.RelAltitude, p.Gain)

	t.notifies.Add(1)
	go func() {
		defer t.notifies.Done()
		ctx, cancel := context.WithTimeout(context.Background(), t.opts.NotifyTimeout)
		defer cancel()
		if !t.deps.Notifier.SendAlertNotification(ctx, p.AlertType, title, message) {
			t.log.Warnw("alert notification not delivered", "session_id", p.SessionID, "alert", p.AlertType)
		}
	}()
}
