package udp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/gnet/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/chrissnell/altiguard/internal/sensors"
	"github.com/chrissnell/altiguard/internal/types"
)

const bootTimeout = 5 * time.Second

// Receiver owns one UDP listener shared by its three sources. The listener
// runs while at least one of them is started.
type Receiver struct {
	gnet.BuiltinEventEngine

	addr   string
	logger *zap.SugaredLogger
	now    func() time.Time

	// opMu serializes listener start and stop; mu guards what OnBoot sets.
	opMu sync.Mutex
	refs int
	done chan error

	mu     sync.Mutex
	eng    gnet.Engine
	booted chan struct{}

	accel    *Source[types.AccelerationData]
	altitude *Source[types.AltitudeData]
	location *Source[types.LocationData]

	packets, rejected, dropped atomic.Uint64
}

// NewReceiver creates a receiver listening on addr, e.g. "0.0.0.0:7420".
func NewReceiver(addr string, logger *zap.SugaredLogger) *Receiver {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	r := &Receiver{addr: addr, logger: logger, now: time.Now}
	r.accel = &Source[types.AccelerationData]{r: r}
	r.altitude = &Source[types.AltitudeData]{r: r}
	r.location = &Source[types.LocationData]{r: r}
	return r
}

func (r *Receiver) Acceleration() *Source[types.AccelerationData] { return r.accel }
func (r *Receiver) Altitude() *Source[types.AltitudeData]         { return r.altitude }
func (r *Receiver) Location() *Source[types.LocationData]         { return r.location }

// Counters returns the number of accepted, undecodable and dropped datagrams.
func (r *Receiver) Counters() (packets, rejected, dropped uint64) {
	return r.packets.Load(), r.rejected.Load(), r.dropped.Load()
}

func (r *Receiver) OnBoot(eng gnet.Engine) gnet.Action {
	r.mu.Lock()
	r.eng = eng
	booted := r.booted
	r.mu.Unlock()
	close(booted)
	r.logger.Infof("UDP sensor receiver listening on %s", r.addr)
	return gnet.None
}

func (r *Receiver) OnTraffic(c gnet.Conn) gnet.Action {
	buf, err := c.Next(-1)
	if err != nil {
		r.logger.Debugf("reading datagram: %v", err)
		return gnet.None
	}
	r.Handle(buf)
	return gnet.None
}

// Handle decodes one datagram and hands it to the matching source. It never
// blocks; readings for a full or stopped source are dropped.
func (r *Receiver) Handle(b []byte) {
	p, err := Decode(b)
	if err != nil {
		r.rejected.Add(1)
		r.logger.Debug(&sensors.SensorReadError{Sensor: "udp", Err: err})
		return
	}
	r.packets.Add(1)

	now := r.now()
	var ok bool
	switch p.Kind {
	case KindAcceleration:
		ok = r.accel.life.Offer(p.Acceleration(now))
	case KindBarometer:
		ok = r.altitude.life.Offer(p.AltitudeData(now))
	case KindGPS:
		ok = r.location.life.Offer(p.Location(now))
	}
	if !ok {
		r.dropped.Add(1)
	}
}

func (r *Receiver) acquire() error {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	r.refs++
	if r.refs > 1 {
		return nil
	}

	booted := make(chan struct{})
	done := make(chan error, 1)
	r.mu.Lock()
	r.booted = booted
	r.mu.Unlock()
	r.done = done
	go func() {
		done <- gnet.Run(r, "udp://"+r.addr, gnet.WithMulticore(false), gnet.WithReusePort(true))
	}()

	var err error
	select {
	case <-booted:
	case err = <-done:
		if err == nil {
			err = errors.New("listener exited during startup")
		}
	case <-time.After(bootTimeout):
		err = fmt.Errorf("listener did not start within %v", bootTimeout)
	}
	if err != nil {
		r.refs--
		return fmt.Errorf("starting UDP receiver on %s: %w", r.addr, err)
	}
	return nil
}

func (r *Receiver) release() error {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	if r.refs == 0 {
		return nil
	}
	r.refs--
	if r.refs > 0 {
		return nil
	}

	r.mu.Lock()
	eng := r.eng
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), bootTimeout)
	defer cancel()
	err := eng.Stop(ctx)
	if runErr := <-r.done; runErr != nil {
		err = multierr.Append(err, runErr)
	}
	r.logger.Infof("UDP sensor receiver on %s stopped", r.addr)
	return err
}

// Source is one of the receiver's three reading streams.
type Source[T any] struct {
	r    *Receiver
	life sensors.Lifecycle[T]
	mu   sync.Mutex
}

func (s *Source[T]) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.life.Running() {
		return nil
	}
	if err := s.life.Start(ctx, nil); err != nil {
		return err
	}
	if err := s.r.acquire(); err != nil {
		return multierr.Append(err, s.life.Stop())
	}
	return nil
}

func (s *Source[T]) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.life.Running() {
		return nil
	}
	err := s.r.release()
	return multierr.Append(err, s.life.Stop())
}

func (s *Source[T]) Readings() <-chan T {
	return s.life.Readings()
}
