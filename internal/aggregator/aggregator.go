// Package aggregator fuses the acceleration, altitude and location streams into
// one sample per fixed tick.
//
// Each source is drained by its own goroutine into a latest-value Cell. A
// ticker goroutine snapshots the three cells and offers the result on a
// bounded channel that drops the oldest queued sample when full, so a slow
// consumer never blocks the producers.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chrissnell/altiguard/internal/interfaces"
	"github.com/chrissnell/altiguard/internal/types"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	DefaultInterval   = time.Second
	DefaultBufferSize = 8
)

// ErrAllSourcesStale is reported when every source has been silent for longer
// than Config.AllStaleTimeout.
var ErrAllSourcesStale = errors.New("all sensor sources stale")

// Config controls tick cadence, buffering and the staleness policy.
type Config struct {
	Interval   time.Duration
	BufferSize int

	// AllStaleTimeout of zero disables the all-sources-stale check.
	AllStaleTimeout time.Duration
}

// Stats are running counters, safe to read while the aggregator runs.
type Stats struct {
	Ticks    uint64    `json:"ticks"`
	Emitted  uint64    `json:"emitted"`
	Empty    uint64    `json:"empty"`
	Dropped  uint64    `json:"dropped"`
	Partial  uint64    `json:"partial"`
	LastEmit time.Time `json:"last_emit"`
}

// Aggregator combines three independent sources into AggregateSamples.
type Aggregator struct {
	accel    interfaces.AccelerationSource
	altitude interfaces.AltitudeSource
	location interfaces.LocationSource
	cfg      Config
	logger   *zap.SugaredLogger
	now      func() time.Time

	accelCell    Cell[types.AccelerationData]
	altitudeCell Cell[types.AltitudeData]
	locationCell Cell[types.LocationData]

	out  chan types.AggregateSample
	errs chan error

	ticks, emitted, empty, dropped, partial atomic.Uint64

	lastEmit atomic.Int64
}

// New creates an Aggregator. Any source may be nil, in which case its field is
// always absent from the produced samples.
func New(accel interfaces.AccelerationSource, altitude interfaces.AltitudeSource, location interfaces.LocationSource, cfg Config, logger *zap.SugaredLogger) *Aggregator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	return &Aggregator{
		accel:    accel,
		altitude: altitude,
		location: location,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		out:      make(chan types.AggregateSample, cfg.BufferSize),
		errs:     make(chan error, 1),
	}
}

// Samples returns the channel of aggregated samples. It is closed after Run's
// goroutines exit.
func (a *Aggregator) Samples() <-chan types.AggregateSample {
	return a.out
}

// Errors carries ErrAllSourcesStale when the staleness bound is exceeded.
func (a *Aggregator) Errors() <-chan error {
	return a.errs
}

// Run starts the configured sources, their producer goroutines and the ticker.
// Everything stops when ctx is cancelled; sources are stopped before the
// output channel is closed.
func (a *Aggregator) Run(ctx context.Context, wg *sync.WaitGroup) error {
	if err := a.startSources(ctx); err != nil {
		return err
	}

	var producers sync.WaitGroup
	if a.accel != nil {
		producers.Add(1)
		go drain(ctx, &producers, "acceleration", a.accel.Readings(), &a.accelCell, a.now, a.logger)
	}
	if a.altitude != nil {
		producers.Add(1)
		go drain(ctx, &producers, "altitude", a.altitude.Readings(), &a.altitudeCell, a.now, a.logger)
	}
	if a.location != nil {
		producers.Add(1)
		go drain(ctx, &producers, "location", a.location.Readings(), &a.locationCell, a.now, a.logger)
	}

	started := a.now()
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(a.out)

		a.tickLoop(ctx, started)

		if err := a.stopSources(); err != nil {
			a.logger.Warnf("error stopping sensor sources: %v", err)
		}
		producers.Wait()
	}()

	return nil
}

func (a *Aggregator) tickLoop(ctx context.Context, started time.Time) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("cancellation request received. Stopping sensor aggregator")
			return
		case <-ticker.C:
			now := a.now()
			if a.checkStale(now, started) {
				return
			}
			sample, ok := a.Snapshot(now)
			if !ok {
				continue
			}
			a.offer(sample)
		}
	}
}

// Snapshot builds a sample from the current cell contents. It returns false
// when no source has ever emitted.
func (a *Aggregator) Snapshot(now time.Time) (types.AggregateSample, bool) {
	a.ticks.Add(1)

	sample := types.AggregateSample{Timestamp: now}
	present := 0
	if v, ok := a.accelCell.Get(); ok {
		sample.Accel = &v
		present++
	}
	if v, ok := a.altitudeCell.Get(); ok {
		sample.Altitude = &v
		present++
	}
	if v, ok := a.locationCell.Get(); ok {
		sample.Location = &v
		present++
	}

	if present == 0 {
		a.empty.Add(1)
		return sample, false
	}
	if present < a.configuredSources() {
		a.partial.Add(1)
	}
	return sample, true
}

// offer enqueues a sample, evicting the oldest queued one if the buffer is
// full. Only the ticker goroutine sends on a.out.
func (a *Aggregator) offer(s types.AggregateSample) {
	for {
		select {
		case a.out <- s:
			a.emitted.Add(1)
			a.lastEmit.Store(s.Timestamp.UnixNano())
			return
		default:
		}
		select {
		case <-a.out:
			a.dropped.Add(1)
		default:
		}
	}
}

// checkStale reports whether the all-sources-stale bound was exceeded and, if
// so, publishes ErrAllSourcesStale.
func (a *Aggregator) checkStale(now, started time.Time) bool {
	if a.cfg.AllStaleTimeout <= 0 {
		return false
	}
	newest := started
	for _, t := range []func() (time.Time, bool){a.accelCell.Updated, a.altitudeCell.Updated, a.locationCell.Updated} {
		if u, ok := t(); ok && u.After(newest) {
			newest = u
		}
	}
	silent := now.Sub(newest)
	if silent <= a.cfg.AllStaleTimeout {
		return false
	}
	err := fmt.Errorf("%w: no reading for %v", ErrAllSourcesStale, silent.Round(time.Millisecond))
	a.logger.Error(err)
	select {
	case a.errs <- err:
	default:
	}
	return true
}

// Stats returns a snapshot of the running counters.
func (a *Aggregator) Stats() Stats {
	s := Stats{
		Ticks:   a.ticks.Load(),
		Emitted: a.emitted.Load(),
		Empty:   a.empty.Load(),
		Dropped: a.dropped.Load(),
		Partial: a.partial.Load(),
	}
	if ns := a.lastEmit.Load(); ns != 0 {
		s.LastEmit = time.Unix(0, ns)
	}
	return s
}

func (a *Aggregator) configuredSources() int {
	n := 0
	if a.accel != nil {
		n++
	}
	if a.altitude != nil {
		n++
	}
	if a.location != nil {
		n++
	}
	return n
}

func (a *Aggregator) startSources(ctx context.Context) error {
	if a.accel != nil {
		if err := a.accel.Start(ctx); err != nil {
			return fmt.Errorf("starting acceleration source: %w", err)
		}
	}
	if a.altitude != nil {
		if err := a.altitude.Start(ctx); err != nil {
			return multierr.Append(fmt.Errorf("starting altitude source: %w", err), a.stopSources())
		}
	}
	if a.location != nil {
		if err := a.location.Start(ctx); err != nil {
			return multierr.Append(fmt.Errorf("starting location source: %w", err), a.stopSources())
		}
	}
	return nil
}

func (a *Aggregator) stopSources() error {
	var err error
	if a.accel != nil {
		err = multierr.Append(err, a.accel.Stop())
	}
	if a.altitude != nil {
		err = multierr.Append(err, a.altitude.Stop())
	}
	if a.location != nil {
		err = multierr.Append(err, a.location.Stop())
	}
	return err
}

// drain copies every value from a source channel into its cell until the
// context is cancelled or the source closes its channel. A closed source is
// not an error; its last value keeps being used.
func drain[T any](ctx context.Context, wg *sync.WaitGroup, name string, ch <-chan T, cell *Cell[T], now func() time.Time, logger *zap.SugaredLogger) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-ch:
			if !ok {
				logger.Infof("%s source closed; continuing with its last value", name)
				return
			}
			cell.Set(v, now())
		}
	}
}
