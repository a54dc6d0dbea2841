package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildGridSkipsBreaks(t *testing.T) {
	in := &Input{
		Semester: "3",
		Sections: []string{"A"},
		Days:     []Weekday{Monday},
		Timings: map[string]map[Weekday]DayTiming{
			"A": {
				Monday: {
					Start:      540,
					SlotLength: 60,
					SlotCount:  4,
					Breaks:     []Interval{{Start: 660, End: 690}},
				},
			},
		},
	}

	grid := BuildGrid(in)
	slots := grid.Slots("A", Monday)
	require.Len(t, slots, 4)
	assert.Equal(t, Interval{Start: 540, End: 600}, slots[0])
	assert.Equal(t, Interval{Start: 600, End: 660}, slots[1])
	assert.Equal(t, Interval{Start: 690, End: 750}, slots[2])
	assert.Equal(t, Interval{Start: 750, End: 810}, slots[3])
}

func TestBuildGridStopsAtCutoff(t *testing.T) {
	in := &Input{
		Semester:     "3",
		Sections:     []string{"A"},
		Days:         []Weekday{Monday},
		DayEndCutoff: 1005,
		Timings: map[string]map[Weekday]DayTiming{
			"A": {
				Monday: {Start: 900, SlotLength: 55, SlotCount: 5},
			},
		},
	}

	grid := BuildGrid(in)
	slots := grid.Slots("A", Monday)
	require.Len(t, slots, 2)
	assert.Equal(t, 900, slots[0].Start)
	assert.Equal(t, 955, slots[1].Start)
}

func TestBuildGridMissingTimings(t *testing.T) {
	in := &Input{
		Semester: "3",
		Sections: []string{"A", "B"},
		Days:     []Weekday{Monday, Tuesday},
		Timings: map[string]map[Weekday]DayTiming{
			"A": {
				Monday: {Start: 540, SlotLength: 55, SlotCount: 3},
			},
		},
	}

	grid := BuildGrid(in)
	assert.Len(t, grid.Slots("A", Monday), 3)
	assert.Nil(t, grid.Slots("A", Tuesday))
	assert.Nil(t, grid.Slots("B", Monday))
}
