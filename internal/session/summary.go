package session

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/chrissnell/altiguard/internal/types"
)

// Summarize builds the final summary of a session from its ordered points.
func Summarize(sess types.Session, status string, points []types.TrackPoint, endedAt time.Time) types.SessionSummary {
	summary := types.SessionSummary{
		SessionID:        sess.ID,
		Status:           status,
		EndedAt:          endedAt,
		BaselineAltitude: sess.BaselineAltitude,
		PointCount:       len(points),
	}
	if !sess.StartedAt.IsZero() && endedAt.After(sess.StartedAt) {
		summary.Duration = endedAt.Sub(sess.StartedAt)
	}
	if len(points) == 0 {
		return summary
	}

	altitudes := make([]float64, len(points))
	vertical := make([]float64, len(points))
	absVertical := make([]float64, len(points))
	last := types.AlertNone
	for i, p := range points {
		altitudes[i] = p.Altitude
		vertical[i] = p.VVertical
		absVertical[i] = math.Abs(p.VVertical)
		if p.AlertType != last && p.AlertType != types.AlertNone {
			summary.AlertCount++
		}
		last = p.AlertType
	}

	final := points[len(points)-1]
	summary.Gain = final.Gain
	summary.Loss = final.Loss
	summary.FinalRelAltitude = final.RelAltitude
	summary.AvgVertical = final.AvgVertical
	summary.MaxAltitude = floats.Max(altitudes)
	summary.MinAltitude = floats.Min(altitudes)
	summary.MaxAbsVertical = floats.Max(absVertical)
	if len(vertical) > 1 {
		summary.VerticalStdDev = stat.StdDev(vertical, nil)
	}
	return summary
}
