package engine

import "strings"

// Kind tags what occupies a timetable cell.
type Kind string

const (
	KindTheory       Kind = "theory"
	KindLab          Kind = "lab"
	KindElective     Kind = "elective"
	KindOpenElective Kind = "open_elective"
)

// CellKey addresses one timetable cell.
type CellKey struct {
	Section string  `json:"section"`
	Day     Weekday `json:"day"`
	Slot    int     `json:"slot"`
}

// Offering is one parallel elective choice inside a synchronized elective
// cell: every section of the cohort teaches its electives at the same
// wall-clock time, each subject in its own room.
type Offering struct {
	Subject string `json:"subject"`
	Teacher string `json:"teacher"`
	Room    string `json:"room"`
}

// Assignment is the value occupying a cell. Exactly one assignment owns a
// cell at a time. Lab sessions span two contiguous cells: the first carries
// the full record, the second repeats it with Continuation set.
type Assignment struct {
	Kind         Kind       `json:"kind"`
	Subject      string     `json:"subject,omitempty"`
	Teachers     []string   `json:"teachers,omitempty"`
	Room         string     `json:"room,omitempty"`
	Continuation bool       `json:"continuation,omitempty"`
	Offerings    []Offering `json:"offerings,omitempty"`
}

// TeacherLabel renders the teacher field the way downstream consumers expect:
// cooperating lab instructors are joined with a slash.
func (a Assignment) TeacherLabel() string {
	return strings.Join(a.Teachers, "/")
}

// taughtBy reports whether the assignment books the given teacher.
func (a Assignment) taughtBy(teacher string) bool {
	for _, t := range a.Teachers {
		if t == teacher {
			return true
		}
	}
	return false
}
