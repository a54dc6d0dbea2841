package engine

// GridKey addresses the slot list of one section on one day.
type GridKey struct {
	Section string  `json:"section"`
	Day     Weekday `json:"day"`
}

// Grid maps every (section, day) pair to its ordered bookable intervals.
type Grid map[GridKey][]Interval

// Slots returns the interval list for a pair, nil when none was configured.
func (g Grid) Slots(section string, day Weekday) []Interval {
	return g[GridKey{Section: section, Day: day}]
}

// BuildGrid derives the bookable slot tables from the timing catalog. The
// cursor walks forward from the day's start time; a cursor landing inside a
// break jumps to the break's end, and slot emission stops once the cursor
// reaches the end-of-day cutoff. Missing timing entries yield no slots.
func BuildGrid(in *Input) Grid {
	grid := make(Grid)
	for _, section := range in.Sections {
		timings := in.Timings[section]
		for _, day := range in.days() {
			cfg, ok := timings[day]
			if !ok || cfg.SlotCount <= 0 || cfg.SlotLength <= 0 {
				continue
			}

			cursor := cfg.Start
			slots := make([]Interval, 0, cfg.SlotCount)
			for i := 0; i < cfg.SlotCount; i++ {
				if in.DayEndCutoff > 0 && cursor >= in.DayEndCutoff {
					break
				}
				for _, brk := range cfg.Breaks {
					if brk.Start <= cursor && cursor < brk.End {
						cursor = brk.End
					}
				}
				slots = append(slots, Interval{Start: cursor, End: cursor + cfg.SlotLength})
				cursor += cfg.SlotLength
			}
			if len(slots) > 0 {
				grid[GridKey{Section: section, Day: day}] = slots
			}
		}
	}
	return grid
}
