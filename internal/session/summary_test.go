package session

import (
	"math"
	"testing"
	"time"

	"github.com/chrissnell/altiguard/internal/types"
)

func TestSummarize(t *testing.T) {
	start := time.Date(2026, 7, 4, 6, 0, 0, 0, time.UTC)
	sess := types.Session{ID: "abc", StartedAt: start, BaselineAltitude: 1500}

	point := func(alt, v, avg, gain, loss float64, alert types.AlertType) types.TrackPoint {
		return types.TrackPoint{
			SessionID: "abc",
			Altitude:  alt,
			Metrics: types.Metrics{
				VVertical: v, AvgVertical: avg, Gain: gain, Loss: loss,
				RelAltitude: alt - 1500, AlertType: alert,
			},
		}
	}
	points := []types.TrackPoint{
		point(1500, 0, 0, 0, 0, types.AlertNone),
		point(1505, 300, 150, 5, 0, types.AlertRapidAscent),
		point(1503, -120, 60, 5, 2, types.AlertNone),
		point(1520, 1020, 300, 22, 2, types.AlertRapidAscent),
		point(1520, 0, 240, 22, 2, types.AlertTotalHeightExceeded),
	}

	got := Summarize(sess, types.SessionStatusStopped, points, start.Add(10*time.Minute))

	if got.SessionID != "abc" || got.Status != types.SessionStatusStopped {
		t.Errorf("unexpected identity fields: %+v", got)
	}
	if got.Duration != 10*time.Minute {
		t.Errorf("duration = %v, want 10m", got.Duration)
	}
	if got.PointCount != 5 || got.Gain != 22 || got.Loss != 2 || got.FinalRelAltitude != 20 {
		t.Errorf("unexpected totals: %+v", got)
	}
	if got.MaxAltitude != 1520 || got.MinAltitude != 1500 {
		t.Errorf("altitude range = [%v, %v], want [1500, 1520]", got.MinAltitude, got.MaxAltitude)
	}
	if got.MaxAbsVertical != 1020 {
		t.Errorf("max |vertical| = %v, want 1020", got.MaxAbsVertical)
	}
	if got.AvgVertical != 240 {
		t.Errorf("avg vertical = %v, want 240", got.AvgVertical)
	}
	if got.AlertCount != 3 {
		t.Errorf("alert count = %v, want 3", got.AlertCount)
	}

	// Sample standard deviation of {0, 300, -120, 1020, 0}.
	mean := 1200.0 / 5
	ss := 0.0
	for _, v := range []float64{0, 300, -120, 1020, 0} {
		ss += (v - mean) * (v - mean)
	}
	want := math.Sqrt(ss / 4)
	if math.Abs(got.VerticalStdDev-want) > 1e-9 {
		t.Errorf("stddev = %v, want %v", got.VerticalStdDev, want)
	}
}

func TestSummarizeEmptyAndSingle(t *testing.T) {
	sess := types.Session{ID: "x"}
	empty := Summarize(sess, types.SessionStatusFailed, nil, time.Now())
	if empty.PointCount != 0 || empty.Duration != 0 || empty.VerticalStdDev != 0 {
		t.Errorf("empty summary = %+v", empty)
	}

	single := Summarize(sess, types.SessionStatusStopped, []types.TrackPoint{{Altitude: 42}}, time.Now())
	if single.VerticalStdDev != 0 || single.MaxAltitude != 42 || single.MinAltitude != 42 {
		t.Errorf("single summary = %+v", single)
	}
}
