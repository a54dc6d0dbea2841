package engine

import (
	"math/rand"
	"sort"

	"go.uber.org/zap"
)

// timeKey identifies one wall-clock moment for occupancy bookkeeping. Two
// slots with the same day and start minute are the same booking moment even
// across sections.
type timeKey struct {
	Day   Weekday
	Start int
}

// demand is one still-unplaced lecture requirement.
type demand struct {
	section string
	code    string
	teacher string
	subject Subject
}

// attemptState owns every piece of mutable scheduling state for a single
// attempt. It is created fresh per attempt and never shared, which keeps
// retries independent and would keep parallel retries safe.
type attemptState struct {
	in       *Input
	grid     Grid
	checker  *Checker
	rng      *rand.Rand
	logger   *zap.Logger
	subjects map[string]Subject

	cells              map[CellKey]Assignment
	teacherBusy        map[string]map[timeKey]struct{}
	roomBusy           map[string]map[timeKey]struct{}
	teacherSectionBusy map[string]map[string]map[timeKey]struct{}
	classesPerDay      map[string]map[Weekday]int
	remaining          map[string]map[string]int
	labPairs           map[string]map[Weekday]int
	warnings           []string
}

func newAttemptState(in *Input, grid Grid, checker *Checker, rng *rand.Rand, logger *zap.Logger) *attemptState {
	s := &attemptState{
		in:                 in,
		grid:               grid,
		checker:            checker,
		rng:                rng,
		logger:             logger,
		subjects:           in.subjectIndex(),
		cells:              make(map[CellKey]Assignment),
		teacherBusy:        make(map[string]map[timeKey]struct{}),
		roomBusy:           make(map[string]map[timeKey]struct{}),
		teacherSectionBusy: make(map[string]map[string]map[timeKey]struct{}),
		classesPerDay:      make(map[string]map[Weekday]int),
		remaining:          make(map[string]map[string]int),
		labPairs:           make(map[string]map[Weekday]int),
	}

	for _, section := range in.Sections {
		s.remaining[section] = make(map[string]int)
		for code := range in.Mappings[section] {
			sub, ok := s.subjects[code]
			if !ok || sub.IsElective || sub.IsOpenElective || sub.Lectures <= 0 {
				continue
			}
			s.remaining[section][code] = sub.Lectures
		}
	}

	return s
}

func (s *attemptState) teacherBusyAt(teacher string, tk timeKey) bool {
	_, ok := s.teacherBusy[teacher][tk]
	return ok
}

func (s *attemptState) roomBusyAt(room string, tk timeKey) bool {
	_, ok := s.roomBusy[room][tk]
	return ok
}

func (s *attemptState) markTeacherBusy(teacher string, tk timeKey) {
	if s.teacherBusy[teacher] == nil {
		s.teacherBusy[teacher] = make(map[timeKey]struct{})
	}
	s.teacherBusy[teacher][tk] = struct{}{}
}

func (s *attemptState) clearTeacherBusy(teacher string, tk timeKey) {
	delete(s.teacherBusy[teacher], tk)
}

func (s *attemptState) markRoomBusy(room string, tk timeKey) {
	if s.roomBusy[room] == nil {
		s.roomBusy[room] = make(map[timeKey]struct{})
	}
	s.roomBusy[room][tk] = struct{}{}
}

func (s *attemptState) clearRoomBusy(room string, tk timeKey) {
	delete(s.roomBusy[room], tk)
}

func (s *attemptState) markSectionSlot(teacher, section string, tk timeKey) {
	if s.teacherSectionBusy[teacher] == nil {
		s.teacherSectionBusy[teacher] = make(map[string]map[timeKey]struct{})
	}
	if s.teacherSectionBusy[teacher][section] == nil {
		s.teacherSectionBusy[teacher][section] = make(map[timeKey]struct{})
	}
	s.teacherSectionBusy[teacher][section][tk] = struct{}{}
}

func (s *attemptState) clearSectionSlot(teacher, section string, tk timeKey) {
	delete(s.teacherSectionBusy[teacher][section], tk)
}

func (s *attemptState) bumpDayCount(teacher string, day Weekday, delta int) {
	if s.classesPerDay[teacher] == nil {
		s.classesPerDay[teacher] = make(map[Weekday]int)
	}
	s.classesPerDay[teacher][day] += delta
	if s.classesPerDay[teacher][day] < 0 {
		s.classesPerDay[teacher][day] = 0
	}
}

func (s *attemptState) dayCount(teacher string, day Weekday) int {
	return s.classesPerDay[teacher][day]
}

// freePlainRoom returns the first non-lab room free at the given moment.
func (s *attemptState) freePlainRoom(tk timeKey) (string, bool) {
	for _, room := range s.in.Rooms {
		if room.IsLab {
			continue
		}
		if !s.roomBusyAt(room.Name, tk) {
			return room.Name, true
		}
	}
	return "", false
}

// freeLabRoom returns the first lab-capable room free at both sub-slots.
func (s *attemptState) freeLabRoom(tk1, tk2 timeKey) (string, bool) {
	for _, room := range s.in.Rooms {
		if !room.IsLab {
			continue
		}
		if !s.roomBusyAt(room.Name, tk1) && !s.roomBusyAt(room.Name, tk2) {
			return room.Name, true
		}
	}
	return "", false
}

func (s *attemptState) totalRemaining() int {
	total := 0
	for _, bySubject := range s.remaining {
		for _, n := range bySubject {
			total += n
		}
	}
	return total
}

// stuckDemands lists every (section, subject) with positive remaining demand.
func (s *attemptState) stuckDemands() []demand {
	var stuck []demand
	for _, section := range s.in.Sections {
		codes := make([]string, 0, len(s.remaining[section]))
		for code, n := range s.remaining[section] {
			if n > 0 {
				codes = append(codes, code)
			}
		}
		sort.Strings(codes)
		for _, code := range codes {
			mapping := s.in.Mappings[section][code]
			stuck = append(stuck, demand{
				section: section,
				code:    code,
				teacher: mapping.TheoryTeacher,
				subject: s.subjects[code],
			})
		}
	}
	return stuck
}

// placeTheoryCell installs a theory lecture and books all occupancy for it.
func (s *attemptState) placeTheoryCell(section string, day Weekday, idx int, tk timeKey, code, teacher, room string) {
	s.cells[CellKey{Section: section, Day: day, Slot: idx}] = Assignment{
		Kind:     KindTheory,
		Subject:  code,
		Teachers: []string{teacher},
		Room:     room,
	}
	s.markTeacherBusy(teacher, tk)
	s.markRoomBusy(room, tk)
	s.markSectionSlot(teacher, section, tk)
	s.bumpDayCount(teacher, day, 1)
}

// removeTheoryCell vacates a theory lecture and releases its occupancy.
// The caller decides what happens to the displaced demand.
func (s *attemptState) removeTheoryCell(key CellKey, tk timeKey) Assignment {
	entry := s.cells[key]
	delete(s.cells, key)
	for _, teacher := range entry.Teachers {
		s.clearTeacherBusy(teacher, tk)
		s.clearSectionSlot(teacher, key.Section, tk)
		s.bumpDayCount(teacher, key.Day, -1)
	}
	s.clearRoomBusy(entry.Room, tk)
	return entry
}

// restoreTheoryCell undoes a removeTheoryCell.
func (s *attemptState) restoreTheoryCell(key CellKey, tk timeKey, entry Assignment) {
	s.cells[key] = entry
	for _, teacher := range entry.Teachers {
		s.markTeacherBusy(teacher, tk)
		s.markSectionSlot(teacher, key.Section, tk)
		s.bumpDayCount(teacher, key.Day, 1)
	}
	s.markRoomBusy(entry.Room, tk)
}
