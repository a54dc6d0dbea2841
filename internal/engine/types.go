package engine

// Weekday names a teaching day. The engine only ever iterates the days the
// caller supplies, so a cohort that teaches Friday/Saturday simply passes
// those two days.
type Weekday string

const (
	Monday    Weekday = "Monday"
	Tuesday   Weekday = "Tuesday"
	Wednesday Weekday = "Wednesday"
	Thursday  Weekday = "Thursday"
	Friday    Weekday = "Friday"
	Saturday  Weekday = "Saturday"
	Sunday    Weekday = "Sunday"
)

// DefaultDays is the standard six-day teaching week.
var DefaultDays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// Interval is a half-open [Start, End) time range in minutes since midnight.
type Interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Subject describes one catalog entry for a semester.
type Subject struct {
	Code           string `json:"code"`
	Name           string `json:"name"`
	Lectures       int    `json:"lectures"`
	IsLab          bool   `json:"isLab"`
	IsElective     bool   `json:"isElective"`
	IsOpenElective bool   `json:"isOpenElective"`
}

// Room is a bookable classroom. Lab sessions require a lab-capable room.
type Room struct {
	Name  string `json:"name"`
	IsLab bool   `json:"isLab"`
}

// SubjectMapping binds a subject within one section to its staff.
type SubjectMapping struct {
	TheoryTeacher string   `json:"theoryTeacher"`
	LabTeachers   []string `json:"labTeachers"`
}

// DayTiming configures the bookable grid for one section on one day.
type DayTiming struct {
	Start      int        `json:"start"`
	SlotLength int        `json:"slotLength"`
	SlotCount  int        `json:"slotCount"`
	Breaks     []Interval `json:"breaks"`
}

// FixedPlacement is an out-of-band, authoritative open-elective booking.
type FixedPlacement struct {
	Day       Weekday `json:"day"`
	SlotIndex int     `json:"slotIndex"`
	Room      string  `json:"room"`
}

// LabDayPolicy bounds how many lab pairs a section may host per day.
// MaxPairsPerDay is the baseline cap; on at most ExtraPairDays days the
// section may host one pair beyond that baseline.
type LabDayPolicy struct {
	MaxPairsPerDay int `json:"maxPairsPerDay"`
	ExtraPairDays  int `json:"extraPairDays"`
}

// Input gathers every catalog one generation run consumes. All catalogs are
// read-only for the duration of a run; availability is pulled separately
// through an AvailabilitySource so each attempt sees a fresh snapshot.
type Input struct {
	Semester string
	Sections []string
	Days     []Weekday

	Subjects []Subject
	Rooms    []Room

	// Mappings: section -> subject code -> staff.
	Mappings map[string]map[string]SubjectMapping
	// Timings: section -> day -> grid configuration. Missing entries yield an
	// empty slot list for that pair rather than an error.
	Timings map[string]map[Weekday]DayTiming
	// OpenElectives: section -> subject code -> fixed bookings.
	OpenElectives map[string]map[string][]FixedPlacement

	LabPolicy LabDayPolicy

	// DayEndCutoff forbids slots starting at or after this minute. Zero means
	// no cutoff.
	DayEndCutoff int
}

func (in *Input) days() []Weekday {
	if len(in.Days) == 0 {
		return DefaultDays
	}
	return in.Days
}

func (in *Input) subjectIndex() map[string]Subject {
	idx := make(map[string]Subject, len(in.Subjects))
	for _, s := range in.Subjects {
		idx[s.Code] = s
	}
	return idx
}
