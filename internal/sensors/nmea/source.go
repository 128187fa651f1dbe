package nmea

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	serial "github.com/tarm/goserial"
	"go.uber.org/zap"

	"github.com/chrissnell/altiguard/internal/sensors"
	"github.com/chrissnell/altiguard/internal/types"
)

const (
	DefaultBaud           = 9600
	DefaultReconnectDelay = 5 * time.Second
)

// Config describes the serial GPS receiver.
type Config struct {
	Device         string
	Baud           int
	ReconnectDelay time.Duration
}

// Opener opens the receiver's byte stream.
type Opener func(device string, baud int) (io.ReadWriteCloser, error)

// OpenSerial opens a serial port with the given baud rate.
func OpenSerial(device string, baud int) (io.ReadWriteCloser, error) {
	return serial.OpenPort(&serial.Config{Name: device, Baud: baud})
}

// Source is a LocationSource backed by an NMEA receiver. It reconnects when
// the port disappears and skips sentences that fail to parse.
type Source struct {
	cfg    Config
	open   Opener
	logger *zap.SugaredLogger
	now    func() time.Time

	life       sensors.Lifecycle[types.LocationData]
	readErrors atomic.Uint64
}

// New creates a Source. A nil opener selects OpenSerial.
func New(cfg Config, open Opener, logger *zap.SugaredLogger) *Source {
	if cfg.Baud == 0 {
		cfg.Baud = DefaultBaud
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if open == nil {
		open = OpenSerial
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Source{
		cfg:    cfg,
		open:   open,
		logger: logger,
		now:    time.Now,
		life:   sensors.Lifecycle[types.LocationData]{},
	}
}

func (s *Source) Start(ctx context.Context) error {
	s.logger.Infof("starting NMEA GPS source on %s at %d baud", s.cfg.Device, s.cfg.Baud)
	return s.life.Start(ctx, s.run)
}

func (s *Source) Stop() error {
	return s.life.Stop()
}

func (s *Source) Readings() <-chan types.LocationData {
	return s.life.Readings()
}

// ReadErrors is the number of sentences rejected so far.
func (s *Source) ReadErrors() uint64 {
	return s.readErrors.Load()
}

func (s *Source) run(ctx context.Context, emit func(types.LocationData) bool) error {
	for {
		port, err := s.open(s.cfg.Device, s.cfg.Baud)
		if err != nil {
			s.logger.Errorf("failed to open serial port %s: %v", s.cfg.Device, err)
		} else {
			err = s.read(ctx, port, emit)
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warnf("lost GPS receiver on %s: %v", s.cfg.Device, err)
		}

		s.logger.Infof("sleeping %v and trying again", s.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.ReconnectDelay):
		}
	}
}

// read consumes sentences until the port fails or ctx is done.
func (s *Source) read(ctx context.Context, port io.ReadWriteCloser, emit func(types.LocationData) bool) error {
	var closeOnce sync.Once
	closePort := func() { closeOnce.Do(func() { port.Close() }) }
	defer closePort()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			closePort()
		case <-stop:
		}
	}()

	fixer := NewFixer(s.now)
	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		v, err := Parse(scanner.Text())
		if err != nil {
			if errors.Is(err, ErrUnsupported) {
				continue
			}
			s.readErrors.Add(1)
			s.logger.Debug(&sensors.SensorReadError{Sensor: "gps", Err: err})
			continue
		}
		loc, ok := fixer.Feed(v)
		if !ok {
			continue
		}
		if !emit(loc) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

// Fixer merges GGA and RMC sentences of the same epoch into one fix.
type Fixer struct {
	now     func() time.Time
	rmc     RMC
	rmcTime time.Duration
	haveRMC bool
}

// NewFixer creates a Fixer. now stamps fixes whose RMC date is unknown.
func NewFixer(now func() time.Time) *Fixer {
	if now == nil {
		now = time.Now
	}
	return &Fixer{now: now}
}

// Feed accepts a parsed sentence and returns a fix when a GGA with a valid
// position arrives. Speed is attached from an RMC of the same epoch.
func (f *Fixer) Feed(sentence interface{}) (types.LocationData, bool) {
	switch v := sentence.(type) {
	case RMC:
		f.rmc = v
		f.haveRMC = v.Valid
		if !v.Time.IsZero() {
			y, m, d := v.Time.Date()
			f.rmcTime = v.Time.Sub(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
		} else {
			f.haveRMC = false
		}
		return types.LocationData{}, false
	case GGA:
		if v.Quality == 0 {
			return types.LocationData{}, false
		}
		loc := types.LocationData{
			Lat:       v.Lat,
			Lon:       v.Lon,
			Altitude:  v.EllipsoidHeight(),
			Timestamp: f.now(),
		}
		if f.haveRMC && sameEpoch(f.rmcTime, v.Time) {
			loc.Timestamp = f.rmc.Time
			loc.Speed = f.rmc.Speed
			loc.HasSpeed = f.rmc.HasSpeed
		}
		return loc, true
	}
	return types.LocationData{}, false
}

func sameEpoch(a, b time.Duration) bool {
	d := a - b
	return d > -time.Millisecond && d < time.Millisecond
}
