// Package main replays a synthetic climb as UDP sensor packets, the way the
// phone app sends them to the daemon's udp sensor source.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/chrissnell/altiguard/internal/log"
	"github.com/chrissnell/altiguard/internal/sensors/simulated"
	"github.com/chrissnell/altiguard/internal/sensors/udp"
	"github.com/chrissnell/altiguard/internal/types"
)

func main() {
	target := flag.String("target", "127.0.0.1:7701", "Address of the altiguard UDP sensor listener")
	interval := flag.Duration("interval", 200*time.Millisecond, "Time between readings of each sensor")
	duration := flag.Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	seed := flag.Int64("seed", 1, "Random seed for sensor noise")
	baseAltitude := flag.Float64("base-altitude", 0, "Starting altitude in metres (0 keeps the default profile)")
	climbRate := flag.Float64("climb-rate", 0, "Climb rate in metres per minute (0 keeps the default profile)")
	noGPS := flag.Bool("no-gps", false, "Do not send GPS packets")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	profile := simulated.DefaultProfile()
	if *baseAltitude != 0 {
		profile.BaseAltitude = *baseAltitude
	}
	if *climbRate != 0 {
		profile.ClimbRate = *climbRate
	}
	cfg := simulated.Config{Interval: *interval, Profile: profile, Seed: *seed}

	conn, err := net.Dial("udp", *target)
	if err != nil {
		log.Errorf("could not open UDP socket to %v: %v", *target, err)
		os.Exit(1)
	}
	defer conn.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	sim := newSimulator(cfg, !*noGPS, log.GetSugaredLogger())
	log.Infow("sending simulated sensor packets", "target", *target, "interval", *interval,
		"base_altitude", profile.BaseAltitude, "climb_rate", profile.ClimbRate)
	sent, err := sim.run(ctx, conn)
	if err != nil {
		log.Errorf("simulator error: %v", err)
		os.Exit(1)
	}
	log.Infow("simulator stopped", "packets", sent)
}

type simulator struct {
	accel    *simulated.Source[types.AccelerationData]
	altitude *simulated.Source[types.AltitudeData]
	location *simulated.Source[types.LocationData]
	logger   *zap.SugaredLogger
}

func newSimulator(cfg simulated.Config, withGPS bool, logger *zap.SugaredLogger) *simulator {
	s := &simulator{
		accel:    simulated.NewAcceleration(cfg),
		altitude: simulated.NewAltitude(cfg),
		logger:   logger,
	}
	if withGPS {
		s.location = simulated.NewLocation(cfg)
	}
	return s
}

// run forwards every reading to w as one datagram until ctx is done. It
// returns the number of packets written.
func (s *simulator) run(ctx context.Context, w io.Writer) (int, error) {
	if err := s.accel.Start(ctx); err != nil {
		return 0, err
	}
	if err := s.altitude.Start(ctx); err != nil {
		return 0, multierr.Append(err, s.accel.Stop())
	}
	var locations <-chan types.LocationData
	if s.location != nil {
		if err := s.location.Start(ctx); err != nil {
			return 0, multierr.Combine(err, s.accel.Stop(), s.altitude.Stop())
		}
		locations = s.location.Readings()
	}

	sent, err := s.forward(ctx, w, s.accel.Readings(), s.altitude.Readings(), locations)

	err = multierr.Combine(err, s.accel.Stop(), s.altitude.Stop())
	if s.location != nil {
		err = multierr.Append(err, s.location.Stop())
	}
	return sent, err
}

func (s *simulator) forward(ctx context.Context, w io.Writer, accel <-chan types.AccelerationData, alt <-chan types.AltitudeData, loc <-chan types.LocationData) (int, error) {
	sent := 0
	write := func(p udp.Packet) error {
		b, err := udp.Encode(p)
		if err != nil {
			return err
		}
		if _, err := w.Write(b); err != nil {
			// The daemon may not be listening yet. UDP writes fail on ICMP refusals.
			s.logger.Debugw("packet not sent", "kind", p.Kind, "error", err)
			return nil
		}
		sent++
		return nil
	}

	for {
		var err error
		select {
		case <-ctx.Done():
			return sent, nil
		case a, ok := <-accel:
			if !ok {
				return sent, nil
			}
			err = write(udp.AccelerationPacket(a))
		case a, ok := <-alt:
			if !ok {
				return sent, nil
			}
			err = write(udp.BarometerPacket(a))
		case l, ok := <-loc:
			if !ok {
				return sent, nil
			}
			err = write(udp.GPSPacket(l))
		}
		if err != nil {
			return sent, err
		}
	}
}
