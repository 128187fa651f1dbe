package types

// DangerTrigger identifies one configurable rule that can flag a session as hazardous.
type DangerTrigger string

const (
	TriggerInstantRate DangerTrigger = "INSTANT_RATE"
	TriggerAverageRate DangerTrigger = "AVERAGE_RATE"
	TriggerRelativeAlt DangerTrigger = "RELATIVE_ALT"
	TriggerTotalGain   DangerTrigger = "TOTAL_GAIN"
)

// AllTriggers lists every trigger in evaluation priority order.
var AllTriggers = []DangerTrigger{
	TriggerInstantRate,
	TriggerAverageRate,
	TriggerRelativeAlt,
	TriggerTotalGain,
}

// Valid reports whether t is a known trigger.
func (t DangerTrigger) Valid() bool {
	for _, known := range AllTriggers {
		if t == known {
			return true
		}
	}
	return false
}

// AlertType classifies the reason a track point was flagged as dangerous.
type AlertType string

const (
	AlertNone                   AlertType = "NONE"
	AlertRapidAscent            AlertType = "RAPID_ASCENT"
	AlertRapidDescent           AlertType = "RAPID_DESCENT"
	AlertRelativeHeightExceeded AlertType = "RELATIVE_HEIGHT_EXCEEDED"
	AlertTotalHeightExceeded    AlertType = "TOTAL_HEIGHT_EXCEEDED"
)

// Title returns a short human-readable headline for the alert.
func (a AlertType) Title() string {
	switch a {
	case AlertRapidAscent:
		return "Rapid ascent"
	case AlertRapidDescent:
		return "Rapid descent"
	case AlertRelativeHeightExceeded:
		return "Relative height exceeded"
	case AlertTotalHeightExceeded:
		return "Total height gain exceeded"
	default:
		return "No alert"
	}
}

// DangerSettings configures which triggers are evaluated and their thresholds.
// Rate thresholds are in metres per minute, altitude thresholds in metres.
type DangerSettings struct {
	EnabledTriggers []DangerTrigger `json:"enabled_triggers"`
	InstantRateThr  float64         `json:"instant_rate_threshold"`
	AverageRateThr  float64         `json:"average_rate_threshold"`
	RelativeAltThr  float64         `json:"relative_altitude_threshold"`
	TotalGainThr    float64         `json:"total_gain_threshold"`
}

// IsEnabled reports whether trigger t is part of the enabled set.
func (d DangerSettings) IsEnabled(t DangerTrigger) bool {
	for _, e := range d.EnabledTriggers {
		if e == t {
			return true
		}
	}
	return false
}
