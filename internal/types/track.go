package types

import "time"

// Metrics holds the values derived for one track point. Vertical rates are in
// metres per minute, horizontal and total speeds in metres per second, and
// altitudes in metres.
type Metrics struct {
	VVertical   float64   `gorm:"column:v_vertical" json:"v_vertical" msgpack:"v_vertical"`
	VHorizontal float64   `gorm:"column:v_horizontal" json:"v_horizontal" msgpack:"v_horizontal"`
	VTotal      float64   `gorm:"column:v_total" json:"v_total" msgpack:"v_total"`
	Gain        float64   `gorm:"column:gain" json:"gain" msgpack:"gain"`
	Loss        float64   `gorm:"column:loss" json:"loss" msgpack:"loss"`
	RelAltitude float64   `gorm:"column:rel_altitude" json:"rel_altitude" msgpack:"rel_altitude"`
	AvgVertical float64   `gorm:"column:avg_vertical" json:"avg_vertical" msgpack:"avg_vertical"`
	Danger      bool      `gorm:"column:danger" json:"danger" msgpack:"danger"`
	AlertType   AlertType `gorm:"column:alert_type" json:"alert_type" msgpack:"alert_type"`
}

// TrackPoint is one persisted, fully computed sample belonging to a session.
// Track points are never modified after they are created.
type TrackPoint struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id" msgpack:"id"`
	SessionID   string    `gorm:"column:session_id;index" json:"session_id" msgpack:"session_id"`
	Timestamp   time.Time `gorm:"column:time" json:"timestamp" msgpack:"timestamp"`
	Lat         float64   `gorm:"column:lat" json:"lat" msgpack:"lat"`
	Lon         float64   `gorm:"column:lon" json:"lon" msgpack:"lon"`
	HasLocation bool      `gorm:"column:has_location" json:"has_location" msgpack:"has_location"`
	Altitude    float64   `gorm:"column:altitude" json:"altitude" msgpack:"altitude"`
	AccelX      float64   `gorm:"column:accel_x" json:"accel_x" msgpack:"accel_x"`
	AccelY      float64   `gorm:"column:accel_y" json:"accel_y" msgpack:"accel_y"`
	AccelZ      float64   `gorm:"column:accel_z" json:"accel_z" msgpack:"accel_z"`
	Metrics     `gorm:"embedded"`
}

// TableName sets the table name used by GORM
func (TrackPoint) TableName() string {
	return "track_points"
}
