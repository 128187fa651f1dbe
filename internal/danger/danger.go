// Package danger decides whether a track point is hazardous under the
// configured trigger set.
package danger

import (
	"math"

	"github.com/chrissnell/altiguard/internal/types"
)

// Evaluate checks every enabled trigger against m. Danger is the OR of all
// triggers that fire; the alert type comes from the highest-priority one.
// It is a pure function of its inputs.
func Evaluate(m types.Metrics, s types.DangerSettings) (bool, types.AlertType) {
	danger := false
	alert := types.AlertNone

	for _, trigger := range types.AllTriggers {
		if !s.IsEnabled(trigger) {
			continue
		}
		fired, a := check(trigger, m, s)
		if !fired {
			continue
		}
		if !danger {
			alert = a
		}
		danger = true
	}
	return danger, alert
}

// Apply returns m with its Danger and AlertType fields set by Evaluate.
func Apply(m types.Metrics, s types.DangerSettings) types.Metrics {
	m.Danger, m.AlertType = Evaluate(m, s)
	return m
}

func check(trigger types.DangerTrigger, m types.Metrics, s types.DangerSettings) (bool, types.AlertType) {
	switch trigger {
	case types.TriggerInstantRate:
		return math.Abs(m.VVertical) > s.InstantRateThr, direction(m.VVertical)
	case types.TriggerAverageRate:
		return math.Abs(m.AvgVertical) > s.AverageRateThr, direction(m.AvgVertical)
	case types.TriggerRelativeAlt:
		return math.Abs(m.RelAltitude) > s.RelativeAltThr, types.AlertRelativeHeightExceeded
	case types.TriggerTotalGain:
		return m.Gain > s.TotalGainThr, types.AlertTotalHeightExceeded
	}
	return false, types.AlertNone
}

func direction(rate float64) types.AlertType {
	if rate < 0 {
		return types.AlertRapidDescent
	}
	return types.AlertRapidAscent
}
