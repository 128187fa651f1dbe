package types

import "time"

const (
	SessionStatusActive  = "active"
	SessionStatusStopped = "stopped"
	SessionStatusFailed  = "failed"
)

// Session is the persisted record of one tracking session.
type Session struct {
	ID               string    `gorm:"column:id;primaryKey" json:"id" msgpack:"id"`
	StartedAt        time.Time `gorm:"column:started_at" json:"started_at" msgpack:"started_at"`
	EndedAt          time.Time `gorm:"column:ended_at" json:"ended_at,omitempty" msgpack:"ended_at"`
	Status           string    `gorm:"column:status" json:"status" msgpack:"status"`
	BaselineAltitude float64   `gorm:"column:baseline_altitude" json:"baseline_altitude" msgpack:"baseline_altitude"`
	PointCount       int       `gorm:"column:point_count" json:"point_count" msgpack:"point_count"`
	Gain             float64   `gorm:"column:gain" json:"gain" msgpack:"gain"`
	Loss             float64   `gorm:"column:loss" json:"loss" msgpack:"loss"`
	MaxAltitude      float64   `gorm:"column:max_altitude" json:"max_altitude" msgpack:"max_altitude"`
	MinAltitude      float64   `gorm:"column:min_altitude" json:"min_altitude" msgpack:"min_altitude"`
	FinalRelAltitude float64   `gorm:"column:final_rel_altitude" json:"final_rel_altitude" msgpack:"final_rel_altitude"`
	AvgVertical      float64   `gorm:"column:avg_vertical" json:"avg_vertical" msgpack:"avg_vertical"`
	MaxAbsVertical   float64   `gorm:"column:max_abs_vertical" json:"max_abs_vertical" msgpack:"max_abs_vertical"`
	VerticalStdDev   float64   `gorm:"column:vertical_stddev" json:"vertical_stddev" msgpack:"vertical_stddev"`
	AlertCount       int       `gorm:"column:alert_count" json:"alert_count" msgpack:"alert_count"`
}

// TableName sets the table name used by GORM
func (Session) TableName() string {
	return "sessions"
}

// SessionSummary is written once when a session stops.
type SessionSummary struct {
	SessionID        string        `json:"session_id" msgpack:"session_id"`
	Status           string        `json:"status" msgpack:"status"`
	EndedAt          time.Time     `json:"ended_at" msgpack:"ended_at"`
	Duration         time.Duration `json:"duration" msgpack:"duration"`
	BaselineAltitude float64       `json:"baseline_altitude" msgpack:"baseline_altitude"`
	PointCount       int           `json:"point_count" msgpack:"point_count"`
	Gain             float64       `json:"gain" msgpack:"gain"`
	Loss             float64       `json:"loss" msgpack:"loss"`
	MaxAltitude      float64       `json:"max_altitude" msgpack:"max_altitude"`
	MinAltitude      float64       `json:"min_altitude" msgpack:"min_altitude"`
	FinalRelAltitude float64       `json:"final_rel_altitude" msgpack:"final_rel_altitude"`
	AvgVertical      float64       `json:"avg_vertical" msgpack:"avg_vertical"`
	MaxAbsVertical   float64       `json:"max_abs_vertical" msgpack:"max_abs_vertical"`
	VerticalStdDev   float64       `json:"vertical_stddev" msgpack:"vertical_stddev"`
	AlertCount       int           `json:"alert_count" msgpack:"alert_count"`
}

// Apply copies the summary values onto the session record.
func (s SessionSummary) Apply(sess *Session) {
	sess.Status = s.Status
	sess.EndedAt = s.EndedAt
	sess.BaselineAltitude = s.BaselineAltitude
	sess.PointCount = s.PointCount
	sess.Gain = s.Gain
	sess.Loss = s.Loss
	sess.MaxAltitude = s.MaxAltitude
	sess.MinAltitude = s.MinAltitude
	sess.FinalRelAltitude = s.FinalRelAltitude
	sess.AvgVertical = s.AvgVertical
	sess.MaxAbsVertical = s.MaxAbsVertical
	sess.VerticalStdDev = s.VerticalStdDev
	sess.AlertCount = s.AlertCount
}
