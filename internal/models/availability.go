package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// TeacherAvailability stores one teacher's scheduling constraints.
// DailyWindows is a JSON object keyed by day name with {"off","start","end"}
// values; Blocks is a JSON array of {"day","all_days","start","end","reason"}.
// Times are 24-hour "HH:MM" strings.
type TeacherAvailability struct {
	Teacher          string         `db:"teacher" json:"teacher"`
	DailyWindows     types.JSONText `db:"daily_windows" json:"daily_windows"`
	Blocks           types.JSONText `db:"blocks" json:"blocks"`
	Preference       string         `db:"preference" json:"preference"`
	MaxClassesPerDay int            `db:"max_classes_per_day" json:"max_classes_per_day"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// AvailabilityWindow is one entry of TeacherAvailability.DailyWindows.
type AvailabilityWindow struct {
	Off   bool   `json:"off"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// AvailabilityBlock is one entry of TeacherAvailability.Blocks.
type AvailabilityBlock struct {
	Day     string `json:"day"`
	AllDays bool   `json:"all_days"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Reason  string `json:"reason"`
}
