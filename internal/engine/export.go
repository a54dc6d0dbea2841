package engine

import (
	"fmt"
	"sort"
)

// ClassRecord is one normalized timetable row, the shape persisted and fed to
// the exporters. Lab sessions collapse into a single row spanning both slots;
// synchronized elective cells expand into one row per offering.
type ClassRecord struct {
	Semester string `json:"semester" db:"semester"`
	Section  string `json:"section" db:"section"`
	Day      string `json:"day" db:"day"`
	Time     string `json:"time" db:"time_range"`
	Subject  string `json:"subject" db:"subject"`
	Teacher  string `json:"teacher" db:"teacher"`
	Room     string `json:"room" db:"room"`
	Kind     Kind   `json:"kind" db:"kind"`
}

// Violation is a hard-rule breach found by post-generation validation.
type Violation struct {
	Rule    string `json:"rule"`
	Teacher string `json:"teacher,omitempty"`
	Room    string `json:"room,omitempty"`
	Section string `json:"section,omitempty"`
	Day     string `json:"day"`
	Time    string `json:"time"`
	Detail  string `json:"detail"`
}

// PreferenceViolation is a soft mismatch against a teacher's declared time
// preference. Purely informational.
type PreferenceViolation struct {
	Teacher    string         `json:"teacher"`
	Section    string         `json:"section"`
	Day        string         `json:"day"`
	Time       string         `json:"time"`
	Preference TimePreference `json:"preference"`
	Penalty    int            `json:"penalty"`
}

func formatRange(start, end int) string {
	return fmt.Sprintf("%s-%s", FormatClock12h(start), FormatClock12h(end))
}

// BuildRecords flattens the cell map into ordered normalized rows.
func BuildRecords(in *Input, grid Grid, cells map[CellKey]Assignment) []ClassRecord {
	subjects := in.subjectIndex()
	name := func(code string) string {
		if sub, ok := subjects[code]; ok && sub.Name != "" {
			return sub.Name
		}
		return code
	}

	var records []ClassRecord
	for _, section := range in.Sections {
		for _, day := range in.days() {
			slots := grid.Slots(section, day)
			for idx, slot := range slots {
				entry, ok := cells[CellKey{Section: section, Day: day, Slot: idx}]
				if !ok || entry.Continuation {
					continue
				}

				end := slot.End
				if entry.Kind == KindLab && idx+1 < len(slots) {
					next, hasNext := cells[CellKey{Section: section, Day: day, Slot: idx + 1}]
					if hasNext && next.Continuation && next.Subject == entry.Subject {
						end = slots[idx+1].End
					}
				}

				base := ClassRecord{
					Semester: in.Semester,
					Section:  section,
					Day:      string(day),
					Time:     formatRange(slot.Start, end),
					Kind:     entry.Kind,
				}

				if entry.Kind == KindElective {
					for _, off := range entry.Offerings {
						rec := base
						rec.Subject = name(off.Subject)
						rec.Teacher = off.Teacher
						rec.Room = off.Room
						records = append(records, rec)
					}
					continue
				}

				rec := base
				rec.Subject = name(entry.Subject)
				rec.Teacher = entry.TeacherLabel()
				rec.Room = entry.Room
				records = append(records, rec)
			}
		}
	}
	return records
}

// Validate re-checks a finished timetable against the same snapshot the
// attempt was built from. Running it on the engine's own output must come
// back clean for everything the engine guarantees; it exists so externally
// edited or stored timetables can be audited with identical semantics.
func Validate(in *Input, grid Grid, cells map[CellKey]Assignment, checker *Checker) ([]Violation, []PreferenceViolation) {
	type slotUse struct {
		section string
		start   int
		end     int
	}
	teacherUse := make(map[string]map[timeKey][]slotUse)
	roomUse := make(map[string]map[timeKey][]slotUse)

	record := func(m map[string]map[timeKey][]slotUse, who string, tk timeKey, use slotUse) {
		if m[who] == nil {
			m[who] = make(map[timeKey][]slotUse)
		}
		m[who][tk] = append(m[who][tk], use)
	}

	var hard []Violation
	var soft []PreferenceViolation

	// A synchronized elective block shows up in every section's cells at the
	// same wall-clock moment on purpose, so its teachers and rooms count once.
	electiveTeacherSeen := make(map[string]map[timeKey]struct{})
	electiveRoomSeen := make(map[string]map[timeKey]struct{})
	seen := func(m map[string]map[timeKey]struct{}, who string, tk timeKey) bool {
		if _, ok := m[who][tk]; ok {
			return true
		}
		if m[who] == nil {
			m[who] = make(map[timeKey]struct{})
		}
		m[who][tk] = struct{}{}
		return false
	}

	for _, section := range in.Sections {
		for _, day := range in.days() {
			slots := grid.Slots(section, day)
			for idx, slot := range slots {
				entry, ok := cells[CellKey{Section: section, Day: day, Slot: idx}]
				if !ok {
					continue
				}
				tk := timeKey{Day: day, Start: slot.Start}
				use := slotUse{section: section, start: slot.Start, end: slot.End}

				teachers := entry.Teachers
				rooms := []string{entry.Room}
				if entry.Kind == KindElective {
					teachers = teachers[:0]
					rooms = rooms[:0]
					for _, off := range entry.Offerings {
						teachers = append(teachers, off.Teacher)
						rooms = append(rooms, off.Room)
					}
				}

				for _, teacher := range teachers {
					if teacher == "" {
						continue
					}
					if entry.Kind == KindElective {
						if seen(electiveTeacherSeen, teacher, tk) {
							continue
						}
					}
					record(teacherUse, teacher, tk, use)

					if ok, reason := checker.IsAvailable(teacher, day, slot.Start, slot.End); !ok {
						hard = append(hard, Violation{
							Rule:    "teacher_availability",
							Teacher: teacher,
							Section: section,
							Day:     string(day),
							Time:    formatRange(slot.Start, slot.End),
							Detail:  reason,
						})
					}
					if penalty := checker.PreferencePenalty(teacher, slot.Start); penalty > 0 {
						soft = append(soft, PreferenceViolation{
							Teacher:    teacher,
							Section:    section,
							Day:        string(day),
							Time:       formatRange(slot.Start, slot.End),
							Preference: checker.data[teacher].Preference,
							Penalty:    penalty,
						})
					}
				}
				for _, room := range rooms {
					if room == "" {
						continue
					}
					if entry.Kind == KindElective && seen(electiveRoomSeen, room, tk) {
						continue
					}
					record(roomUse, room, tk, use)
				}
			}
		}
	}

	for teacher, moments := range teacherUse {
		for tk, uses := range moments {
			if len(uses) < 2 {
				continue
			}
			hard = append(hard, Violation{
				Rule:    "teacher_double_booked",
				Teacher: teacher,
				Day:     string(tk.Day),
				Time:    formatRange(uses[0].start, uses[0].end),
				Detail:  fmt.Sprintf("%s booked in %d sections at once", teacher, len(uses)),
			})
		}
	}
	for room, moments := range roomUse {
		for tk, uses := range moments {
			if len(uses) < 2 {
				continue
			}
			hard = append(hard, Violation{
				Rule:   "room_double_booked",
				Room:   room,
				Day:    string(tk.Day),
				Time:   formatRange(uses[0].start, uses[0].end),
				Detail: fmt.Sprintf("room %s booked by %d sections at once", room, len(uses)),
			})
		}
	}

	sort.Slice(hard, func(i, j int) bool {
		if hard[i].Day != hard[j].Day {
			return hard[i].Day < hard[j].Day
		}
		if hard[i].Time != hard[j].Time {
			return hard[i].Time < hard[j].Time
		}
		return hard[i].Rule < hard[j].Rule
	})
	return hard, soft
}
