package metrics

import (
	"github.com/chrissnell/altiguard/internal/types"
	"github.com/chrissnell/altiguard/pkg/rate"
)

// Engine carries the session state between ticks: the baseline altitude, the
// number of points since the baseline and the previous point. It is owned by
// the single consumer goroutine of a session and is not safe for concurrent use.
//
// The source that fixed the baseline stays the altitude reference for the
// whole session. When only the other source reports, its readings are shifted
// by the last observed offset between the two so the track stays continuous.
type Engine struct {
	sessionID   string
	baseline    float64
	baselineSet bool
	reference   Source
	offset      float64
	offsetSet   bool
	count       int
	prev        *types.TrackPoint
}

// NewEngine creates an engine for one session.
func NewEngine(sessionID string) *Engine {
	return &Engine{sessionID: sessionID}
}

// Baseline returns the baseline altitude once it has been fixed.
func (e *Engine) Baseline() (float64, bool) {
	return e.baseline, e.baselineSet
}

// Reference returns the altitude source the baseline was taken from.
func (e *Engine) Reference() Source {
	return e.reference
}

// Count returns the number of points produced so far.
func (e *Engine) Count() int {
	return e.count
}

// Next turns a sample into the next track point. The first sample carrying an
// altitude fixes the baseline; samples before it return ErrNoAltitude.
func (e *Engine) Next(sample types.AggregateSample) (types.TrackPoint, error) {
	altitude, ok := e.altitude(sample)
	if !ok {
		return types.TrackPoint{}, ErrNoAltitude
	}
	if !e.baselineSet {
		e.baseline = altitude
		e.baselineSet = true
	}

	m := compute(e.prev, altitude, sample, e.baseline, e.count+1)

	p := types.TrackPoint{
		SessionID: e.sessionID,
		Timestamp: sample.Timestamp,
		Altitude:  altitude,
		Metrics:   m,
	}
	if sample.Location != nil {
		p.Lat = sample.Location.Lat
		p.Lon = sample.Location.Lon
		p.HasLocation = true
	}
	if sample.Accel != nil {
		p.AccelX = sample.Accel.X
		p.AccelY = sample.Accel.Y
		p.AccelZ = sample.Accel.Z
	}
	return p, nil
}

// Commit records p, after danger evaluation and persistence, as the previous
// point for the next tick.
func (e *Engine) Commit(p types.TrackPoint) {
	e.count++
	e.prev = &p
}

// Recompute replays a stored history and returns the altitude-derived metrics
// of every point. Horizontal speed cannot be replayed because the raw GPS
// speed is not stored, so it is copied from the stored point and only the
// total speed is recomputed from it.
func Recompute(points []types.TrackPoint, baseline float64) []types.Metrics {
	out := make([]types.Metrics, len(points))
	var prev *types.TrackPoint
	for i := range points {
		p := points[i]
		sample := types.AggregateSample{Timestamp: p.Timestamp}
		m := vertical(prev, p.Altitude, sample, baseline, i+1)
		m.VHorizontal = p.VHorizontal
		m.VTotal = rate.TotalSpeed(m.VVertical, m.VHorizontal)
		m.Danger = p.Danger
		m.AlertType = p.AlertType
		out[i] = m

		replayed := p
		replayed.Metrics = m
		prev = &replayed
	}
	return out
}

// altitude returns the sample's altitude in the session reference.
func (e *Engine) altitude(sample types.AggregateSample) (float64, bool) {
	if e.reference == SourceNone {
		e.reference = AltitudeSource(sample)
		if e.reference == SourceNone {
			return 0, false
		}
	}

	own, hasOwn := SourceAltitude(sample, e.reference)
	other, hasOther := SourceAltitude(sample, e.otherSource())
	switch {
	case hasOwn:
		if hasOther {
			e.offset = own - other
			e.offsetSet = true
		}
		return own, true
	case hasOther:
		if !e.offsetSet {
			// No overlap seen yet: continue from the last known altitude.
			last := e.baseline
			if e.prev != nil {
				last = e.prev.Altitude
			}
			e.offset = last - other
			e.offsetSet = true
		}
		return other + e.offset, true
	}
	return 0, false
}

func (e *Engine) otherSource() Source {
	if e.reference == SourceBarometer {
		return SourceGPS
	}
	return SourceBarometer
}
