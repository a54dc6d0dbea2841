package models

import (
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// Section is one cohort group within a semester.
type Section struct {
	Semester string `db:"semester" json:"semester"`
	Name     string `db:"name" json:"name"`
}

// Subject is a semester catalog entry.
type Subject struct {
	Semester       string `db:"semester" json:"semester"`
	Code           string `db:"code" json:"code"`
	Name           string `db:"name" json:"name"`
	Lectures       int    `db:"lectures" json:"lectures"`
	IsLab          bool   `db:"is_lab" json:"is_lab"`
	IsElective     bool   `db:"is_elective" json:"is_elective"`
	IsOpenElective bool   `db:"is_open_elective" json:"is_open_elective"`
}

// Room is a bookable classroom.
type Room struct {
	Name  string `db:"name" json:"name"`
	IsLab bool   `db:"is_lab" json:"is_lab"`
}

// SubjectMapping binds a subject within one section to its staff.
type SubjectMapping struct {
	Semester      string         `db:"semester" json:"semester"`
	Section       string         `db:"section" json:"section"`
	SubjectCode   string         `db:"subject_code" json:"subject_code"`
	TheoryTeacher string         `db:"theory_teacher" json:"theory_teacher"`
	LabTeachers   pq.StringArray `db:"lab_teachers" json:"lab_teachers"`
}

// DayTiming stores the slot grid configuration for one section-day. Times are
// 24-hour "HH:MM" strings; Breaks is a JSON array of {"start","end"} pairs.
type DayTiming struct {
	Semester   string         `db:"semester" json:"semester"`
	Section    string         `db:"section" json:"section"`
	Day        string         `db:"day" json:"day"`
	StartTime  string         `db:"start_time" json:"start_time"`
	SlotLength int            `db:"slot_length" json:"slot_length"`
	SlotCount  int            `db:"slot_count" json:"slot_count"`
	Breaks     types.JSONText `db:"breaks" json:"breaks"`
}

// TimingBreak is one entry of DayTiming.Breaks.
type TimingBreak struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// OpenElective is a university-fixed booking for an open elective subject.
type OpenElective struct {
	Semester    string `db:"semester" json:"semester"`
	Section     string `db:"section" json:"section"`
	SubjectCode string `db:"subject_code" json:"subject_code"`
	Day         string `db:"day" json:"day"`
	SlotIndex   int    `db:"slot_index" json:"slot_index"`
	Room        string `db:"room" json:"room"`
}
