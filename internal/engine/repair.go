package engine

import (
	"sort"

	"go.uber.org/zap"
)

// swapRepair relocates already-placed lectures to open room for demand the
// randomized sweeps could not satisfy. Each round picks one stuck lecture and
// samples occupied cells taught by the same teacher anywhere in the cohort,
// since freeing one of that teacher's moments is what unblocks the demand.
// The stuck lecture lands in the freed cell when it fits, otherwise wherever
// the scored placement path finds room. A displaced lecture that cannot be
// rebooked immediately is requeued for the later repair passes rather than
// undoing the swap.
func (s *attemptState) swapRepair(budget, sample int) {
	for attempt := 0; attempt < budget; attempt++ {
		stuck := s.stuckDemands()
		if len(stuck) == 0 {
			return
		}
		d := stuck[s.rng.Intn(len(stuck))]
		if d.teacher == "" {
			continue
		}
		if s.trySwapFor(d, sample) {
			s.remaining[d.section][d.code]--
		}
	}
}

func (s *attemptState) trySwapFor(d demand, sample int) bool {
	victims := s.teacherTheoryCells(d.teacher)
	s.rng.Shuffle(len(victims), func(i, j int) { victims[i], victims[j] = victims[j], victims[i] })
	if len(victims) > sample {
		victims = victims[:sample]
	}

	for _, key := range victims {
		// Displacing the pending subject itself trades nothing.
		if key.Section == d.section && s.cells[key].Subject == d.code {
			continue
		}
		slots := s.grid.Slots(key.Section, key.Day)
		if key.Slot >= len(slots) {
			continue
		}
		slot := slots[key.Slot]
		tk := timeKey{Day: key.Day, Start: slot.Start}

		entry := s.removeTheoryCell(key, tk)

		placed := false
		if key.Section == d.section && s.lectureFits(d, key, slot, tk) {
			if room, ok := s.freePlainRoom(tk); ok {
				s.placeTheoryCell(d.section, key.Day, key.Slot, tk, d.code, d.teacher, room)
				placed = true
			}
		}
		if !placed {
			placed = s.placeLecture(d.section, d.code, d.teacher)
		}
		if !placed {
			s.restoreTheoryCell(key, tk, entry)
			continue
		}

		// The swap is kept either way; a displaced lecture that cannot be
		// rebooked right now goes back into the pending pool.
		if len(entry.Teachers) == 1 && s.placeLecture(key.Section, entry.Subject, entry.Teachers[0]) {
			s.logger.Debug("swap repair relocated a lecture",
				zap.String("section", key.Section),
				zap.String("displaced", entry.Subject),
				zap.String("placed", d.code))
		} else {
			s.remaining[key.Section][entry.Subject]++
			s.logger.Debug("swap repair requeued a displaced lecture",
				zap.String("section", key.Section),
				zap.String("displaced", entry.Subject),
				zap.String("placed", d.code))
		}
		return true
	}
	return false
}

// lectureFits applies the full placement checks for one stuck lecture at one
// specific freed cell.
func (s *attemptState) lectureFits(d demand, key CellKey, slot Interval, tk timeKey) bool {
	if s.teacherBusyAt(d.teacher, tk) {
		return false
	}
	if ok, _ := s.checker.IsAvailable(d.teacher, key.Day, slot.Start, slot.End); !ok {
		return false
	}
	if !s.checker.WithinDailyLimit(d.teacher, s.dayCount(d.teacher, key.Day)) {
		return false
	}
	return !s.wouldMakeTriple(d.section, key.Day, key.Slot, d.code)
}

// exhaustiveRepair is the last line of defense. Each pass retries every stuck
// lecture against every slot with the quality checks relaxed: the same-subject
// spacing rule and the daily ceiling are dropped, while teacher availability
// and double-booking remain binding. A pass that places nothing escalates the
// next ones to eviction, which throws out sampled lectures to make room; a
// desperate pass that still places nothing ends the phase.
func (s *attemptState) exhaustiveRepair(passes, desperateSample int) {
	desperate := false
	for pass := 0; pass < passes; pass++ {
		stuck := s.stuckDemands()
		if len(stuck) == 0 {
			return
		}

		progressed := false
		for _, d := range stuck {
			if d.teacher == "" {
				continue
			}
			for s.remaining[d.section][d.code] > 0 {
				if s.placeRelaxed(d) {
					s.remaining[d.section][d.code]--
					progressed = true
					continue
				}
				if desperate && s.placeByEviction(d, desperateSample) {
					s.remaining[d.section][d.code]--
					progressed = true
					continue
				}
				break
			}
		}

		if !progressed {
			if desperate {
				return
			}
			desperate = true
		}
	}
}

// placeRelaxed books the first slot where the teacher is genuinely free,
// ignoring spacing and workload preferences.
func (s *attemptState) placeRelaxed(d demand) bool {
	for _, day := range s.in.days() {
		slots := s.grid.Slots(d.section, day)
		for idx, slot := range slots {
			key := CellKey{Section: d.section, Day: day, Slot: idx}
			if _, used := s.cells[key]; used {
				continue
			}
			tk := timeKey{Day: day, Start: slot.Start}
			if s.teacherBusyAt(d.teacher, tk) {
				continue
			}
			if ok, _ := s.checker.IsAvailable(d.teacher, day, slot.Start, slot.End); !ok {
				continue
			}
			room, ok := s.freePlainRoom(tk)
			if !ok {
				continue
			}
			s.placeTheoryCell(d.section, day, idx, tk, d.code, d.teacher, room)
			return true
		}
	}
	return false
}

// placeByEviction throws out a sampled lecture and takes its slot. The
// availability check still gates the commit so desperation never books a
// teacher into a window they declared closed. The displaced demand goes back
// into the pending pool for a later pass.
func (s *attemptState) placeByEviction(d demand, sample int) bool {
	victims := s.sectionTheoryCells(d.section)
	s.rng.Shuffle(len(victims), func(i, j int) { victims[i], victims[j] = victims[j], victims[i] })
	if len(victims) > sample {
		victims = victims[:sample]
	}

	for _, key := range victims {
		// Evicting the same subject would trade one pending lecture for an
		// identical one and spin forever.
		if s.cells[key].Subject == d.code {
			continue
		}
		slots := s.grid.Slots(key.Section, key.Day)
		if key.Slot >= len(slots) {
			continue
		}
		slot := slots[key.Slot]
		tk := timeKey{Day: key.Day, Start: slot.Start}

		entry := s.removeTheoryCell(key, tk)

		if s.teacherBusyAt(d.teacher, tk) {
			s.restoreTheoryCell(key, tk, entry)
			continue
		}
		if ok, _ := s.checker.IsAvailable(d.teacher, key.Day, slot.Start, slot.End); !ok {
			s.restoreTheoryCell(key, tk, entry)
			continue
		}
		room, ok := s.freePlainRoom(tk)
		if !ok {
			s.restoreTheoryCell(key, tk, entry)
			continue
		}

		s.placeTheoryCell(d.section, key.Day, key.Slot, tk, d.code, d.teacher, room)
		s.remaining[key.Section][entry.Subject]++
		s.logger.Debug("evicted a lecture to place stuck demand",
			zap.String("section", key.Section),
			zap.String("evicted", entry.Subject),
			zap.String("placed", d.code))
		return true
	}
	return false
}

// teacherTheoryCells lists the relocatable cells taught by one teacher across
// every section. Labs, electives, and open electives are pinned and never
// candidates.
func (s *attemptState) teacherTheoryCells(teacher string) []CellKey {
	var keys []CellKey
	for key, entry := range s.cells {
		if entry.Kind != KindTheory || !entry.taughtBy(teacher) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Section != keys[j].Section {
			return keys[i].Section < keys[j].Section
		}
		if keys[i].Day != keys[j].Day {
			return keys[i].Day < keys[j].Day
		}
		return keys[i].Slot < keys[j].Slot
	})
	return keys
}

// sectionTheoryCells lists the relocatable cells of one section. Labs,
// electives, and open electives are pinned and never candidates.
func (s *attemptState) sectionTheoryCells(section string) []CellKey {
	var keys []CellKey
	for key, entry := range s.cells {
		if key.Section != section || entry.Kind != KindTheory {
			continue
		}
		keys = append(keys, key)
	}
	// Map iteration order is random independent of the seeded source, so the
	// list is sorted before any shuffle to keep runs reproducible.
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Day != keys[j].Day {
			return keys[i].Day < keys[j].Day
		}
		return keys[i].Slot < keys[j].Slot
	})
	return keys
}
