package engine

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// placeOpenElectives installs university-scheduled open elective bookings.
// These are authoritative: the bookings go in even when they collide with a
// teacher's declared availability, and every collision is surfaced as a
// warning instead of failing the attempt.
func (s *attemptState) placeOpenElectives() {
	for _, section := range s.in.Sections {
		codes := make([]string, 0, len(s.in.OpenElectives[section]))
		for code := range s.in.OpenElectives[section] {
			codes = append(codes, code)
		}
		sort.Strings(codes)

		for _, code := range codes {
			mapping := s.in.Mappings[section][code]
			teacher := mapping.TheoryTeacher

			for _, p := range s.in.OpenElectives[section][code] {
				slots := s.grid.Slots(section, p.Day)
				if p.SlotIndex < 0 || p.SlotIndex >= len(slots) {
					s.warn(fmt.Sprintf("open elective %s for %s: slot %d does not exist on %s", code, section, p.SlotIndex, p.Day))
					continue
				}
				slot := slots[p.SlotIndex]
				tk := timeKey{Day: p.Day, Start: slot.Start}

				if teacher != "" {
					if ok, reason := s.checker.IsAvailable(teacher, p.Day, slot.Start, slot.End); !ok {
						s.warn(fmt.Sprintf("open elective %s for %s: %s", code, section, reason))
					}
					if s.teacherBusyAt(teacher, tk) {
						s.warn(fmt.Sprintf("open elective %s for %s: %s already teaching at %s on %s", code, section, teacher, FormatClock12h(slot.Start), p.Day))
					}
				}
				if p.Room != "" && s.roomBusyAt(p.Room, tk) {
					s.warn(fmt.Sprintf("open elective %s for %s: room %s already booked at %s on %s", code, section, p.Room, FormatClock12h(slot.Start), p.Day))
				}

				cell := Assignment{Kind: KindOpenElective, Subject: code, Room: p.Room}
				if teacher != "" {
					cell.Teachers = []string{teacher}
					s.markTeacherBusy(teacher, tk)
					s.markSectionSlot(teacher, section, tk)
					s.bumpDayCount(teacher, p.Day, 1)
				}
				if p.Room != "" {
					s.markRoomBusy(p.Room, tk)
				}
				s.cells[CellKey{Section: section, Day: p.Day, Slot: p.SlotIndex}] = cell
			}
		}
	}
}

// labPairAllowed enforces the per-day lab pair policy for a section: the
// baseline cap applies on every day, and at most ExtraPairDays days may run
// one pair over it.
func (s *attemptState) labPairAllowed(section string, day Weekday) bool {
	base := s.in.LabPolicy.MaxPairsPerDay
	if base <= 0 {
		base = 1
	}
	count := s.labPairs[section][day]
	if count < base {
		return true
	}
	if count > base {
		return false
	}

	extraUsed := 0
	for _, n := range s.labPairs[section] {
		if n > base {
			extraUsed++
		}
	}
	return extraUsed < s.in.LabPolicy.ExtraPairDays
}

func (s *attemptState) recordLabPair(section string, day Weekday) {
	if s.labPairs[section] == nil {
		s.labPairs[section] = make(map[Weekday]int)
	}
	s.labPairs[section][day]++
}

// placeLabs books one two-slot session per lab subject per section. Both
// instructors must be free for the merged interval, the room must be
// lab-capable, and the two slots must be contiguous with no break between
// them. A lab session needs two mapped instructors; labs with an incomplete
// mapping are skipped with a warning rather than failing the attempt.
// Returns false when a fully mapped lab could not be booked, which aborts
// the attempt.
func (s *attemptState) placeLabs() bool {
	for _, section := range s.in.Sections {
		var labCodes []string
		for code := range s.in.Mappings[section] {
			if sub, ok := s.subjects[code]; ok && sub.IsLab {
				labCodes = append(labCodes, code)
			}
		}
		sort.Strings(labCodes)
		s.rng.Shuffle(len(labCodes), func(i, j int) {
			labCodes[i], labCodes[j] = labCodes[j], labCodes[i]
		})

		for _, code := range labCodes {
			if n := len(s.in.Mappings[section][code].LabTeachers); n < 2 {
				s.warn(fmt.Sprintf("lab %s for %s has %d of 2 instructors mapped; session skipped", code, section, n))
				continue
			}
			if !s.placeOneLabPair(section, code) {
				s.logger.Debug("lab session could not be booked",
					zap.String("section", section),
					zap.String("subject", code))
				return false
			}
		}
	}
	return true
}

func (s *attemptState) placeOneLabPair(section, code string) bool {
	teachers := s.in.Mappings[section][code].LabTeachers

	days := append([]Weekday(nil), s.in.days()...)
	s.rng.Shuffle(len(days), func(i, j int) { days[i], days[j] = days[j], days[i] })

	for _, day := range days {
		if !s.labPairAllowed(section, day) {
			continue
		}
		slots := s.grid.Slots(section, day)
		for idx := 0; idx+1 < len(slots); idx++ {
			first, second := slots[idx], slots[idx+1]
			if first.End != second.Start {
				continue
			}
			k1 := CellKey{Section: section, Day: day, Slot: idx}
			k2 := CellKey{Section: section, Day: day, Slot: idx + 1}
			if _, used := s.cells[k1]; used {
				continue
			}
			if _, used := s.cells[k2]; used {
				continue
			}

			tk1 := timeKey{Day: day, Start: first.Start}
			tk2 := timeKey{Day: day, Start: second.Start}

			if !s.labTeachersFree(teachers, day, first.Start, second.End, tk1, tk2) {
				continue
			}
			room, ok := s.freeLabRoom(tk1, tk2)
			if !ok {
				continue
			}

			s.cells[k1] = Assignment{Kind: KindLab, Subject: code, Teachers: teachers, Room: room}
			s.cells[k2] = Assignment{Kind: KindLab, Subject: code, Teachers: teachers, Room: room, Continuation: true}
			for _, t := range teachers {
				s.markTeacherBusy(t, tk1)
				s.markTeacherBusy(t, tk2)
				s.markSectionSlot(t, section, tk1)
				s.markSectionSlot(t, section, tk2)
				s.bumpDayCount(t, day, 2)
			}
			s.markRoomBusy(room, tk1)
			s.markRoomBusy(room, tk2)
			s.recordLabPair(section, day)
			return true
		}
	}
	return false
}

func (s *attemptState) labTeachersFree(teachers []string, day Weekday, start, end int, tk1, tk2 timeKey) bool {
	for _, t := range teachers {
		if ok, _ := s.checker.IsAvailable(t, day, start, end); !ok {
			return false
		}
		if s.teacherBusyAt(t, tk1) || s.teacherBusyAt(t, tk2) {
			return false
		}
		// A lab pair adds two classes to the instructor's day.
		limit := s.checker.MaxClassesPerDay(t)
		if limit != 0 && s.dayCount(t, day)+2 > limit {
			return false
		}
	}
	return true
}

// electiveOffering tracks one parallel offering and how many synchronized
// sessions it still owes.
type electiveOffering struct {
	Offering
	remaining int
}

// electiveGroup is the cohort-wide set of parallel elective offerings.
type electiveGroup struct {
	offerings []electiveOffering
}

// active lists the offerings that still owe sessions.
func (g *electiveGroup) active() []Offering {
	var out []Offering
	for _, off := range g.offerings {
		if off.remaining > 0 {
			out = append(out, off.Offering)
		}
	}
	return out
}

// consume charges one booked session to every offering that took part.
func (g *electiveGroup) consume() {
	for i := range g.offerings {
		if g.offerings[i].remaining > 0 {
			g.offerings[i].remaining--
		}
	}
}

func (s *attemptState) buildElectiveGroup() *electiveGroup {
	group := &electiveGroup{}
	for _, sub := range s.in.Subjects {
		if !sub.IsElective || sub.IsOpenElective {
			continue
		}
		teacher := ""
		for _, section := range s.in.Sections {
			if m, ok := s.in.Mappings[section][sub.Code]; ok && m.TheoryTeacher != "" {
				teacher = m.TheoryTeacher
				break
			}
		}
		group.offerings = append(group.offerings, electiveOffering{
			Offering:  Offering{Subject: sub.Code, Teacher: teacher},
			remaining: sub.Lectures,
		})
	}
	return group
}

// placeElectives books the synchronized elective blocks. Every section of the
// cohort teaches at the same slot index, and every offering gets its own
// non-lab room free across all section time keys for that index. An offering
// leaves the rotation once its lecture count is met, so later blocks carry
// only the subjects that still owe sessions. Returns false when any required
// block could not be booked.
func (s *attemptState) placeElectives() bool {
	group := s.buildElectiveGroup()
	for {
		active := group.active()
		if len(active) == 0 {
			return true
		}
		if !s.placeOneElectiveBlock(active) {
			s.logger.Debug("synchronized elective block could not be booked",
				zap.Int("offerings", len(active)))
			return false
		}
		group.consume()
	}
}

func (s *attemptState) placeOneElectiveBlock(active []Offering) bool {
	days := append([]Weekday(nil), s.in.days()...)
	s.rng.Shuffle(len(days), func(i, j int) { days[i], days[j] = days[j], days[i] })

	for _, day := range days {
		maxSlots := 0
		for _, section := range s.in.Sections {
			if n := len(s.grid.Slots(section, day)); n > maxSlots {
				maxSlots = n
			}
		}

		indices := s.rng.Perm(maxSlots)
		for _, idx := range indices {
			keys, ok := s.electiveSlotOpen(day, idx)
			if !ok {
				continue
			}
			offerings, ok := s.assignElectiveRooms(active, day, keys)
			if !ok {
				continue
			}

			for _, section := range s.in.Sections {
				s.cells[CellKey{Section: section, Day: day, Slot: idx}] = Assignment{
					Kind:      KindElective,
					Offerings: offerings,
				}
			}
			for _, tk := range keys {
				for _, off := range offerings {
					if off.Teacher != "" {
						s.markTeacherBusy(off.Teacher, tk)
						s.bumpDayCount(off.Teacher, tk.Day, 1)
					}
					s.markRoomBusy(off.Room, tk)
				}
			}
			return true
		}
	}
	return false
}

// electiveSlotOpen checks that every section exposes slot idx on day, the
// cell is free in every section, and returns the distinct time keys covered.
func (s *attemptState) electiveSlotOpen(day Weekday, idx int) ([]timeKey, bool) {
	seen := make(map[timeKey]struct{})
	var keys []timeKey
	for _, section := range s.in.Sections {
		slots := s.grid.Slots(section, day)
		if idx >= len(slots) {
			return nil, false
		}
		if _, used := s.cells[CellKey{Section: section, Day: day, Slot: idx}]; used {
			return nil, false
		}
		tk := timeKey{Day: day, Start: slots[idx].Start}
		if _, dup := seen[tk]; !dup {
			seen[tk] = struct{}{}
			keys = append(keys, tk)
		}
	}
	return keys, true
}

// assignElectiveRooms finds a distinct free non-lab room per offering and
// verifies every offering teacher is free across all covered time keys.
func (s *attemptState) assignElectiveRooms(active []Offering, day Weekday, keys []timeKey) ([]Offering, bool) {
	for _, off := range active {
		if off.Teacher == "" {
			continue
		}
		for _, tk := range keys {
			if s.teacherBusyAt(off.Teacher, tk) {
				return nil, false
			}
			end := tk.Start
			for _, section := range s.in.Sections {
				for _, slot := range s.grid.Slots(section, day) {
					if slot.Start == tk.Start && slot.End > end {
						end = slot.End
					}
				}
			}
			if ok, _ := s.checker.IsAvailable(off.Teacher, day, tk.Start, end); !ok {
				return nil, false
			}
		}
	}

	taken := make(map[string]struct{})
	assigned := make([]Offering, 0, len(active))
	for _, off := range active {
		room := ""
		for _, r := range s.in.Rooms {
			if r.IsLab {
				continue
			}
			if _, dup := taken[r.Name]; dup {
				continue
			}
			free := true
			for _, tk := range keys {
				if s.roomBusyAt(r.Name, tk) {
					free = false
					break
				}
			}
			if free {
				room = r.Name
				break
			}
		}
		if room == "" {
			return nil, false
		}
		taken[room] = struct{}{}
		off.Room = room
		assigned = append(assigned, off)
	}
	return assigned, true
}

// candidate is one scored slot option for a theory lecture.
type candidate struct {
	day   Weekday
	idx   int
	slot  Interval
	room  string
	score float64
}

// placeTheory runs the randomized placement sweeps. Each sweep visits the
// sections in random order and books at most one pending lecture per section,
// so demand drains evenly instead of front-loading one section.
func (s *attemptState) placeTheory(attempts int) {
	for i := 0; i < attempts; i++ {
		if s.totalRemaining() == 0 {
			return
		}

		sections := append([]string(nil), s.in.Sections...)
		s.rng.Shuffle(len(sections), func(a, b int) { sections[a], sections[b] = sections[b], sections[a] })

		progressed := false
		for _, section := range sections {
			var codes []string
			for code, n := range s.remaining[section] {
				if n > 0 {
					codes = append(codes, code)
				}
			}
			if len(codes) == 0 {
				continue
			}
			sort.Strings(codes)
			s.rng.Shuffle(len(codes), func(a, b int) { codes[a], codes[b] = codes[b], codes[a] })

			for _, code := range codes {
				teacher := s.in.Mappings[section][code].TheoryTeacher
				if teacher == "" {
					continue
				}
				if s.placeLecture(section, code, teacher) {
					s.remaining[section][code]--
					progressed = true
					break
				}
			}
		}

		if !progressed && s.totalRemaining() > 0 {
			// Every section is stuck; further identical sweeps cannot help, so
			// hand the leftovers to the repair phases early.
			return
		}
	}
}

// placeLecture scores every legal slot for one lecture and commits the best.
// Slots where the teacher is idle across all their sections score highest;
// preference penalties shave the score so disfavored slots lose ties.
func (s *attemptState) placeLecture(section, code, teacher string) bool {
	var candidates []candidate
	for _, day := range s.in.days() {
		if !s.checker.WithinDailyLimit(teacher, s.dayCount(teacher, day)) {
			continue
		}
		slots := s.grid.Slots(section, day)
		for idx, slot := range slots {
			key := CellKey{Section: section, Day: day, Slot: idx}
			if _, used := s.cells[key]; used {
				continue
			}
			tk := timeKey{Day: day, Start: slot.Start}
			if s.teacherBusyAt(teacher, tk) {
				continue
			}
			if ok, _ := s.checker.IsAvailable(teacher, day, slot.Start, slot.End); !ok {
				continue
			}
			if s.wouldMakeTriple(section, day, idx, code) {
				continue
			}
			room, ok := s.freePlainRoom(tk)
			if !ok {
				continue
			}

			score := 1.0
			if s.teacherElsewhereAt(teacher, section, tk) {
				score = 0.0
			}
			score -= float64(s.checker.PreferencePenalty(teacher, slot.Start)) / 20.0
			candidates = append(candidates, candidate{day: day, idx: idx, slot: slot, room: room, score: score})
		}
	}
	if len(candidates) == 0 {
		return false
	}

	s.rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	best := candidates[0]
	tk := timeKey{Day: best.day, Start: best.slot.Start}
	s.placeTheoryCell(section, best.day, best.idx, tk, code, teacher, best.room)
	return true
}

// teacherElsewhereAt reports whether the teacher already uses this wall-clock
// moment in a different section this week.
func (s *attemptState) teacherElsewhereAt(teacher, section string, tk timeKey) bool {
	for other, moments := range s.teacherSectionBusy[teacher] {
		if other == section {
			continue
		}
		if _, ok := moments[tk]; ok {
			return true
		}
	}
	return false
}

// wouldMakeTriple reports whether booking code at idx would line up three
// consecutive theory lectures of the same subject.
func (s *attemptState) wouldMakeTriple(section string, day Weekday, idx int, code string) bool {
	same := func(i int) bool {
		a, ok := s.cells[CellKey{Section: section, Day: day, Slot: i}]
		return ok && a.Kind == KindTheory && a.Subject == code
	}
	if same(idx-1) && same(idx-2) {
		return true
	}
	if same(idx+1) && same(idx+2) {
		return true
	}
	return same(idx-1) && same(idx+1)
}

func (s *attemptState) warn(msg string) {
	s.warnings = append(s.warnings, msg)
}
