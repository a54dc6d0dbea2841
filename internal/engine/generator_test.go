package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBudgets() Budgets {
	return Budgets{
		Retries:           2,
		PlacementAttempts: 300,
		SwapAttempts:      100,
		SweepPasses:       4,
		SwapSample:        5,
		DesperateSample:   5,
	}
}

func uniformTimings(sections []string, days []Weekday, start, slotLen, count int) map[string]map[Weekday]DayTiming {
	timings := make(map[string]map[Weekday]DayTiming, len(sections))
	for _, section := range sections {
		byDay := make(map[Weekday]DayTiming, len(days))
		for _, day := range days {
			byDay[day] = DayTiming{Start: start, SlotLength: slotLen, SlotCount: count}
		}
		timings[section] = byDay
	}
	return timings
}

func countTheory(res *Result, section, code string) int {
	n := 0
	for key, entry := range res.Cells {
		if key.Section == section && entry.Kind == KindTheory && entry.Subject == code && !entry.Continuation {
			n++
		}
	}
	return n
}

func TestGenerateSingleSlot(t *testing.T) {
	in := &Input{
		Semester: "1",
		Sections: []string{"A"},
		Days:     []Weekday{Monday},
		Subjects: []Subject{{Code: "M101", Name: "Calculus", Lectures: 1}},
		Rooms:    []Room{{Name: "R1"}},
		Mappings: map[string]map[string]SubjectMapping{
			"A": {"M101": {TheoryTeacher: "Rao"}},
		},
		Timings: uniformTimings([]string{"A"}, []Weekday{Monday}, 540, 55, 1),
	}

	gen := NewGenerator(StaticAvailability{}, testBudgets(), 42, nil)
	res, err := gen.Generate(context.Background(), in)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "Calculus", res.Records[0].Subject)
	assert.Equal(t, "Rao", res.Records[0].Teacher)
	assert.Equal(t, "R1", res.Records[0].Room)
	assert.Equal(t, "9:00 AM-9:55 AM", res.Records[0].Time)
	assert.Empty(t, res.HardViolations)
	assert.Empty(t, res.Unplaced)
}

func TestGenerateFillsAllDemand(t *testing.T) {
	sections := []string{"A", "B"}
	days := []Weekday{Monday, Tuesday, Wednesday}
	in := &Input{
		Semester: "3",
		Sections: sections,
		Days:     days,
		Subjects: []Subject{
			{Code: "CS301", Name: "Operating Systems", Lectures: 3},
			{Code: "CS302", Name: "Databases", Lectures: 3},
			{Code: "CS303", Name: "Networks", Lectures: 2},
		},
		Rooms: []Room{{Name: "R1"}, {Name: "R2"}},
		Mappings: map[string]map[string]SubjectMapping{
			"A": {
				"CS301": {TheoryTeacher: "Rao"},
				"CS302": {TheoryTeacher: "Iyer"},
				"CS303": {TheoryTeacher: "Mehta"},
			},
			"B": {
				"CS301": {TheoryTeacher: "Rao"},
				"CS302": {TheoryTeacher: "Iyer"},
				"CS303": {TheoryTeacher: "Mehta"},
			},
		},
		Timings: uniformTimings(sections, days, 540, 55, 5),
	}

	gen := NewGenerator(StaticAvailability{}, testBudgets(), 7, nil)
	res, err := gen.Generate(context.Background(), in)
	require.NoError(t, err)
	require.True(t, res.Success, "unplaced: %+v", res.Unplaced)

	for _, section := range sections {
		assert.Equal(t, 3, countTheory(res, section, "CS301"))
		assert.Equal(t, 3, countTheory(res, section, "CS302"))
		assert.Equal(t, 2, countTheory(res, section, "CS303"))
	}
	assert.Empty(t, res.HardViolations)
}

func TestGenerateSharedTeacherNeverDoubleBooked(t *testing.T) {
	sections := []string{"A", "B", "C"}
	days := []Weekday{Monday, Tuesday}
	mappings := make(map[string]map[string]SubjectMapping, len(sections))
	for _, s := range sections {
		mappings[s] = map[string]SubjectMapping{"CS310": {TheoryTeacher: "Rao"}}
	}
	in := &Input{
		Semester: "3",
		Sections: sections,
		Days:     days,
		Subjects: []Subject{{Code: "CS310", Name: "Compilers", Lectures: 3}},
		Rooms:    []Room{{Name: "R1"}, {Name: "R2"}, {Name: "R3"}},
		Mappings: mappings,
		Timings:  uniformTimings(sections, days, 540, 55, 6),
	}

	gen := NewGenerator(StaticAvailability{}, testBudgets(), 11, nil)
	res, err := gen.Generate(context.Background(), in)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Empty(t, res.HardViolations)

	grid := res.Grid
	booked := make(map[timeKey]string)
	for key, entry := range res.Cells {
		if !entry.taughtBy("Rao") {
			continue
		}
		slot := grid.Slots(key.Section, key.Day)[key.Slot]
		tk := timeKey{Day: key.Day, Start: slot.Start}
		prev, clash := booked[tk]
		require.False(t, clash, "Rao booked in %s and %s at the same moment", prev, key.Section)
		booked[tk] = key.Section
	}
}

func TestGenerateAvoidsTripleRuns(t *testing.T) {
	in := &Input{
		Semester: "3",
		Sections: []string{"A"},
		Days:     []Weekday{Monday, Tuesday, Wednesday},
		Subjects: []Subject{
			{Code: "CS301", Name: "Operating Systems", Lectures: 3},
			{Code: "CS302", Name: "Databases", Lectures: 3},
		},
		Rooms: []Room{{Name: "R1"}},
		Mappings: map[string]map[string]SubjectMapping{
			"A": {
				"CS301": {TheoryTeacher: "Rao"},
				"CS302": {TheoryTeacher: "Iyer"},
			},
		},
		Timings: uniformTimings([]string{"A"}, []Weekday{Monday, Tuesday, Wednesday}, 540, 55, 5),
	}

	gen := NewGenerator(StaticAvailability{}, testBudgets(), 3, nil)
	res, err := gen.Generate(context.Background(), in)
	require.NoError(t, err)
	require.True(t, res.Success)

	for _, day := range in.Days {
		run, prev := 0, ""
		for idx := range res.Grid.Slots("A", day) {
			entry, ok := res.Cells[CellKey{Section: "A", Day: day, Slot: idx}]
			if !ok || entry.Kind != KindTheory {
				run, prev = 0, ""
				continue
			}
			if entry.Subject == prev {
				run++
			} else {
				run, prev = 1, entry.Subject
			}
			assert.LessOrEqual(t, run, 2, "three %s lectures in a row on %s", entry.Subject, day)
		}
	}
}

func TestGenerateLabPairing(t *testing.T) {
	in := &Input{
		Semester: "3",
		Sections: []string{"A"},
		Days:     []Weekday{Monday, Tuesday},
		Subjects: []Subject{
			{Code: "CS301", Name: "Operating Systems", Lectures: 2},
			{Code: "CS351", Name: "OS Lab", IsLab: true},
		},
		Rooms: []Room{{Name: "R1"}, {Name: "L1", IsLab: true}},
		Mappings: map[string]map[string]SubjectMapping{
			"A": {
				"CS301": {TheoryTeacher: "Rao"},
				"CS351": {LabTeachers: []string{"Rao", "Iyer"}},
			},
		},
		Timings: uniformTimings([]string{"A"}, []Weekday{Monday, Tuesday}, 540, 55, 5),
	}

	gen := NewGenerator(StaticAvailability{}, testBudgets(), 21, nil)
	res, err := gen.Generate(context.Background(), in)
	require.NoError(t, err)
	require.True(t, res.Success)

	var first, second *CellKey
	for key, entry := range res.Cells {
		if entry.Kind != KindLab {
			continue
		}
		k := key
		if entry.Continuation {
			second = &k
		} else {
			first = &k
		}
		assert.Equal(t, "L1", entry.Room)
		assert.ElementsMatch(t, []string{"Rao", "Iyer"}, entry.Teachers)
	}
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first.Day, second.Day)
	assert.Equal(t, first.Slot+1, second.Slot)

	var labRecords []ClassRecord
	for _, rec := range res.Records {
		if rec.Kind == KindLab {
			labRecords = append(labRecords, rec)
		}
	}
	require.Len(t, labRecords, 1)
	assert.Equal(t, "Rao/Iyer", labRecords[0].Teacher)

	slots := res.Grid.Slots("A", first.Day)
	assert.Equal(t, formatRange(slots[first.Slot].Start, slots[second.Slot].End), labRecords[0].Time)
}

func TestGenerateSkipsLabWithoutTwoInstructors(t *testing.T) {
	in := &Input{
		Semester: "3",
		Sections: []string{"A"},
		Days:     []Weekday{Monday, Tuesday},
		Subjects: []Subject{
			{Code: "CS301", Name: "Operating Systems", Lectures: 2},
			{Code: "CS351", Name: "OS Lab", IsLab: true},
			{Code: "CS352", Name: "DB Lab", IsLab: true},
		},
		Rooms: []Room{{Name: "R1"}, {Name: "L1", IsLab: true}},
		Mappings: map[string]map[string]SubjectMapping{
			"A": {
				"CS301": {TheoryTeacher: "Rao"},
				"CS351": {},
				"CS352": {LabTeachers: []string{"Iyer"}},
			},
		},
		Timings: uniformTimings([]string{"A"}, []Weekday{Monday, Tuesday}, 540, 55, 4),
	}

	gen := NewGenerator(StaticAvailability{}, testBudgets(), 19, nil)
	res, err := gen.Generate(context.Background(), in)
	require.NoError(t, err)
	require.True(t, res.Success, "incomplete lab mappings must degrade, not fail the run")
	assert.Equal(t, 1, res.Attempts)

	for _, entry := range res.Cells {
		assert.NotEqual(t, KindLab, entry.Kind)
	}
	require.Len(t, res.Warnings, 2)
	joined := strings.Join(res.Warnings, "\n")
	assert.Contains(t, joined, "CS351")
	assert.Contains(t, joined, "CS352")
}

func TestGenerateRespectsOffDay(t *testing.T) {
	in := &Input{
		Semester: "3",
		Sections: []string{"A"},
		Days:     []Weekday{Monday, Tuesday},
		Subjects: []Subject{{Code: "CS301", Name: "Operating Systems", Lectures: 3}},
		Rooms:    []Room{{Name: "R1"}},
		Mappings: map[string]map[string]SubjectMapping{
			"A": {"CS301": {TheoryTeacher: "Rao"}},
		},
		Timings: uniformTimings([]string{"A"}, []Weekday{Monday, Tuesday}, 540, 55, 4),
	}
	availability := StaticAvailability{
		"Rao": {DailyWindows: map[Weekday]DayWindow{Monday: {Off: true}}},
	}

	gen := NewGenerator(availability, testBudgets(), 13, nil)
	res, err := gen.Generate(context.Background(), in)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Empty(t, res.HardViolations)

	for key := range res.Cells {
		assert.NotEqual(t, Monday, key.Day, "lecture booked on Rao's off day")
	}
}

func TestGenerateRespectsDailyCeiling(t *testing.T) {
	in := &Input{
		Semester: "3",
		Sections: []string{"A"},
		Days:     []Weekday{Monday, Tuesday},
		Subjects: []Subject{{Code: "CS301", Name: "Operating Systems", Lectures: 4}},
		Rooms:    []Room{{Name: "R1"}},
		Mappings: map[string]map[string]SubjectMapping{
			"A": {"CS301": {TheoryTeacher: "Rao"}},
		},
		Timings: uniformTimings([]string{"A"}, []Weekday{Monday, Tuesday}, 540, 55, 5),
	}
	availability := StaticAvailability{
		"Rao": {MaxClassesPerDay: 2},
	}

	gen := NewGenerator(availability, testBudgets(), 17, nil)
	res, err := gen.Generate(context.Background(), in)
	require.NoError(t, err)
	require.True(t, res.Success)

	perDay := make(map[Weekday]int)
	for key := range res.Cells {
		perDay[key.Day]++
	}
	for day, n := range perDay {
		assert.LessOrEqual(t, n, 2, "ceiling exceeded on %s", day)
	}
}

func TestGenerateOpenElectiveIsAuthoritative(t *testing.T) {
	in := &Input{
		Semester: "7",
		Sections: []string{"A"},
		Days:     []Weekday{Monday},
		Subjects: []Subject{
			{Code: "OE401", Name: "Design Thinking", IsOpenElective: true},
		},
		Rooms: []Room{{Name: "R1"}},
		Mappings: map[string]map[string]SubjectMapping{
			"A": {"OE401": {TheoryTeacher: "Mehta"}},
		},
		OpenElectives: map[string]map[string][]FixedPlacement{
			"A": {"OE401": {{Day: Monday, SlotIndex: 0, Room: "R1"}}},
		},
		Timings: uniformTimings([]string{"A"}, []Weekday{Monday}, 540, 55, 2),
	}
	availability := StaticAvailability{
		"Mehta": {DailyWindows: map[Weekday]DayWindow{Monday: {Off: true}}},
	}

	gen := NewGenerator(availability, testBudgets(), 5, nil)
	res, err := gen.Generate(context.Background(), in)
	require.NoError(t, err)
	require.True(t, res.Success)

	entry, ok := res.Cells[CellKey{Section: "A", Day: Monday, Slot: 0}]
	require.True(t, ok, "fixed booking must be installed despite the conflict")
	assert.Equal(t, KindOpenElective, entry.Kind)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "OE401")
}

func TestGenerateElectivesLockStep(t *testing.T) {
	sections := []string{"A", "B"}
	days := []Weekday{Monday, Tuesday}
	in := &Input{
		Semester: "5",
		Sections: sections,
		Days:     days,
		Subjects: []Subject{
			{Code: "CS301", Name: "Operating Systems", Lectures: 2},
			{Code: "EL501", Name: "Machine Learning", Lectures: 1, IsElective: true},
			{Code: "EL502", Name: "Cryptography", Lectures: 1, IsElective: true},
		},
		Rooms: []Room{{Name: "R1"}, {Name: "R2"}, {Name: "R3"}},
		Mappings: map[string]map[string]SubjectMapping{
			"A": {
				"CS301": {TheoryTeacher: "Rao"},
				"EL501": {TheoryTeacher: "Mehta"},
				"EL502": {TheoryTeacher: "Das"},
			},
			"B": {
				"CS301": {TheoryTeacher: "Iyer"},
				"EL501": {TheoryTeacher: "Mehta"},
				"EL502": {TheoryTeacher: "Das"},
			},
		},
		Timings: uniformTimings(sections, days, 540, 55, 5),
	}

	gen := NewGenerator(StaticAvailability{}, testBudgets(), 29, nil)
	res, err := gen.Generate(context.Background(), in)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Empty(t, res.HardViolations)

	var blocks []CellKey
	for key, entry := range res.Cells {
		if entry.Kind == KindElective {
			blocks = append(blocks, key)
			require.Len(t, entry.Offerings, 2)
			assert.NotEqual(t, entry.Offerings[0].Room, entry.Offerings[1].Room)
		}
	}
	require.Len(t, blocks, 2)
	assert.Equal(t, blocks[0].Day, blocks[1].Day)
	assert.Equal(t, blocks[0].Slot, blocks[1].Slot)
	assert.NotEqual(t, blocks[0].Section, blocks[1].Section)
}

func TestGenerateElectiveCountsFollowDemand(t *testing.T) {
	sections := []string{"A", "B"}
	days := []Weekday{Monday, Tuesday}
	in := &Input{
		Semester: "5",
		Sections: sections,
		Days:     days,
		Subjects: []Subject{
			{Code: "EL501", Name: "Machine Learning", Lectures: 1, IsElective: true},
			{Code: "EL502", Name: "Cryptography", Lectures: 2, IsElective: true},
		},
		Rooms: []Room{{Name: "R1"}, {Name: "R2"}},
		Mappings: map[string]map[string]SubjectMapping{
			"A": {"EL501": {TheoryTeacher: "Mehta"}, "EL502": {TheoryTeacher: "Das"}},
			"B": {"EL501": {TheoryTeacher: "Mehta"}, "EL502": {TheoryTeacher: "Das"}},
		},
		Timings: uniformTimings(sections, days, 540, 55, 5),
	}

	gen := NewGenerator(StaticAvailability{}, testBudgets(), 31, nil)
	res, err := gen.Generate(context.Background(), in)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Empty(t, res.HardViolations)

	for _, section := range sections {
		counts := make(map[string]int)
		for key, entry := range res.Cells {
			if key.Section != section || entry.Kind != KindElective {
				continue
			}
			for _, off := range entry.Offerings {
				counts[off.Subject]++
			}
		}
		assert.Equal(t, 1, counts["EL501"], "section %s", section)
		assert.Equal(t, 2, counts["EL502"], "section %s", section)
	}
}

func TestGenerateReportsUnplacedDemand(t *testing.T) {
	in := &Input{
		Semester: "1",
		Sections: []string{"A"},
		Days:     []Weekday{Monday},
		Subjects: []Subject{{Code: "M101", Name: "Calculus", Lectures: 3}},
		Rooms:    []Room{{Name: "R1"}},
		Mappings: map[string]map[string]SubjectMapping{
			"A": {"M101": {TheoryTeacher: "Rao"}},
		},
		Timings: uniformTimings([]string{"A"}, []Weekday{Monday}, 540, 55, 1),
	}

	gen := NewGenerator(StaticAvailability{}, testBudgets(), 42, nil)
	res, err := gen.Generate(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	require.Len(t, res.Unplaced, 1)
	assert.Equal(t, "M101", res.Unplaced[0].Subject)
	assert.Equal(t, 2, res.Unplaced[0].Count)
	assert.Equal(t, testBudgets().Retries, res.Attempts)
}

type countingSource struct {
	calls     int
	snapshots []map[string]TeacherAvailability
}

func (c *countingSource) Snapshot(context.Context) (map[string]TeacherAvailability, error) {
	snap := c.snapshots[c.calls%len(c.snapshots)]
	c.calls++
	return snap, nil
}

func TestGenerateTakesFreshSnapshotPerAttempt(t *testing.T) {
	in := &Input{
		Semester: "1",
		Sections: []string{"A"},
		Days:     []Weekday{Monday},
		Subjects: []Subject{{Code: "M101", Name: "Calculus", Lectures: 1}},
		Rooms:    []Room{{Name: "R1"}},
		Mappings: map[string]map[string]SubjectMapping{
			"A": {"M101": {TheoryTeacher: "Rao"}},
		},
		Timings: uniformTimings([]string{"A"}, []Weekday{Monday}, 540, 55, 2),
	}
	blocked := map[string]TeacherAvailability{
		"Rao": {DailyWindows: map[Weekday]DayWindow{Monday: {Off: true}}},
	}
	source := &countingSource{snapshots: []map[string]TeacherAvailability{blocked, {}}}

	gen := NewGenerator(source, testBudgets(), 9, nil)
	res, err := gen.Generate(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 2, source.calls)
}

func TestGenerateDeterministicUnderFixedSeed(t *testing.T) {
	build := func() *Input {
		return &Input{
			Semester: "3",
			Sections: []string{"A", "B"},
			Days:     []Weekday{Monday, Tuesday},
			Subjects: []Subject{
				{Code: "CS301", Name: "Operating Systems", Lectures: 3},
				{Code: "CS302", Name: "Databases", Lectures: 2},
			},
			Rooms: []Room{{Name: "R1"}, {Name: "R2"}},
			Mappings: map[string]map[string]SubjectMapping{
				"A": {"CS301": {TheoryTeacher: "Rao"}, "CS302": {TheoryTeacher: "Iyer"}},
				"B": {"CS301": {TheoryTeacher: "Rao"}, "CS302": {TheoryTeacher: "Iyer"}},
			},
			Timings: uniformTimings([]string{"A", "B"}, []Weekday{Monday, Tuesday}, 540, 55, 5),
		}
	}

	genA := NewGenerator(StaticAvailability{}, testBudgets(), 1234, nil)
	resA, err := genA.Generate(context.Background(), build())
	require.NoError(t, err)

	genB := NewGenerator(StaticAvailability{}, testBudgets(), 1234, nil)
	resB, err := genB.Generate(context.Background(), build())
	require.NoError(t, err)

	assert.Equal(t, resA.Records, resB.Records)
}

func TestGenerateRejectsBadInput(t *testing.T) {
	gen := NewGenerator(StaticAvailability{}, testBudgets(), 1, nil)

	_, err := gen.Generate(context.Background(), nil)
	assert.Error(t, err)

	_, err = gen.Generate(context.Background(), &Input{Semester: "1"})
	assert.Error(t, err)

	_, err = gen.Generate(context.Background(), &Input{
		Semester: "1",
		Sections: []string{"A", "A"},
		Subjects: []Subject{{Code: "M101", Lectures: 1}},
		Rooms:    []Room{{Name: "R1"}},
	})
	assert.Error(t, err)
}

func TestValidateIsCleanOnEngineOutput(t *testing.T) {
	in := &Input{
		Semester: "3",
		Sections: []string{"A", "B"},
		Days:     []Weekday{Monday, Tuesday},
		Subjects: []Subject{
			{Code: "CS301", Name: "Operating Systems", Lectures: 2},
			{Code: "CS302", Name: "Databases", Lectures: 2},
		},
		Rooms: []Room{{Name: "R1"}, {Name: "R2"}},
		Mappings: map[string]map[string]SubjectMapping{
			"A": {"CS301": {TheoryTeacher: "Rao"}, "CS302": {TheoryTeacher: "Iyer"}},
			"B": {"CS301": {TheoryTeacher: "Rao"}, "CS302": {TheoryTeacher: "Iyer"}},
		},
		Timings: uniformTimings([]string{"A", "B"}, []Weekday{Monday, Tuesday}, 540, 55, 4),
	}
	availability := StaticAvailability{
		"Rao": {Preference: PreferBeforeLunch},
	}

	gen := NewGenerator(availability, testBudgets(), 77, nil)
	res, err := gen.Generate(context.Background(), in)
	require.NoError(t, err)
	require.True(t, res.Success)

	snap, err := availability.Snapshot(context.Background())
	require.NoError(t, err)
	hard, _ := Validate(in, res.Grid, res.Cells, NewChecker(snap))
	assert.Empty(t, hard)
}
