package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Budgets bounds every stochastic phase of a generation run. Production runs
// use DefaultBudgets; tests inject tiny values to keep runs fast and
// deterministic under a fixed seed.
type Budgets struct {
	Retries           int
	PlacementAttempts int
	SwapAttempts      int
	SweepPasses       int
	SwapSample        int
	DesperateSample   int
}

// DefaultBudgets returns the production-sized budgets.
func DefaultBudgets() Budgets {
	return Budgets{
		Retries:           5,
		PlacementAttempts: 20000,
		SwapAttempts:      10000,
		SweepPasses:       10,
		SwapSample:        15,
		DesperateSample:   30,
	}
}

// UnplacedDemand reports lecture demand the run could not satisfy.
type UnplacedDemand struct {
	Section string `json:"section"`
	Subject string `json:"subject"`
	Teacher string `json:"teacher"`
	Count   int    `json:"count"`
}

// Result is the full outcome of one generation run. Success means every
// required lecture landed; a false Success still carries the best partial
// timetable so callers can show what was placed and what was not.
type Result struct {
	Semester string                 `json:"semester"`
	Success  bool                   `json:"success"`
	Attempts int                    `json:"attempts"`
	Seed     int64                  `json:"seed"`
	Grid     Grid                   `json:"-"`
	Cells    map[CellKey]Assignment `json:"-"`
	Records  []ClassRecord          `json:"records"`
	Unplaced []UnplacedDemand       `json:"unplaced,omitempty"`

	HardViolations []Violation           `json:"hardViolations,omitempty"`
	SoftViolations []PreferenceViolation `json:"softViolations,omitempty"`
	Warnings       []string              `json:"warnings,omitempty"`
}

// Generator runs the multi-phase timetable construction with retries. Each
// attempt starts from empty state and a fresh availability snapshot, so a
// failed attempt leaves nothing behind and concurrent availability edits are
// picked up between attempts.
type Generator struct {
	source  AvailabilitySource
	budgets Budgets
	seed    int64
	logger  *zap.Logger
}

// NewGenerator builds a generator. A zero seed means seed from the clock.
func NewGenerator(source AvailabilitySource, budgets Budgets, seed int64, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{source: source, budgets: budgets, seed: seed, logger: logger}
}

// Generate produces a timetable for the input. It returns an error only for
// malformed input, snapshot failures, or cancellation; an unplaceable demand
// set comes back as a Result with Success false.
func (g *Generator) Generate(ctx context.Context, in *Input) (*Result, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	grid := BuildGrid(in)
	if len(grid) == 0 {
		return nil, fmt.Errorf("no bookable slots: every section/day timing is empty")
	}

	seed := g.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	var last *Result
	for attempt := 1; attempt <= g.budgets.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		snapshot, err := g.source.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("availability snapshot: %w", err)
		}
		checker := NewChecker(snapshot)
		rng := rand.New(rand.NewSource(seed + int64(attempt)))
		st := newAttemptState(in, grid, checker, rng, g.logger)

		st.placeOpenElectives()
		if !st.placeLabs() {
			g.logger.Info("attempt abandoned during lab booking",
				zap.String("semester", in.Semester),
				zap.Int("attempt", attempt))
			last = g.buildResult(in, grid, st, checker, attempt, seed)
			continue
		}
		if !st.placeElectives() {
			g.logger.Info("attempt abandoned during elective booking",
				zap.String("semester", in.Semester),
				zap.Int("attempt", attempt))
			last = g.buildResult(in, grid, st, checker, attempt, seed)
			continue
		}

		st.placeTheory(g.budgets.PlacementAttempts)
		if st.totalRemaining() > 0 {
			st.swapRepair(g.budgets.SwapAttempts, g.budgets.SwapSample)
		}
		if st.totalRemaining() > 0 {
			st.exhaustiveRepair(g.budgets.SweepPasses, g.budgets.DesperateSample)
		}

		last = g.buildResult(in, grid, st, checker, attempt, seed)
		if last.Success {
			g.logger.Info("timetable generated",
				zap.String("semester", in.Semester),
				zap.Int("attempt", attempt),
				zap.Int("records", len(last.Records)),
				zap.Int("warnings", len(last.Warnings)))
			return last, nil
		}
		g.logger.Warn("attempt left demand unplaced",
			zap.String("semester", in.Semester),
			zap.Int("attempt", attempt),
			zap.Int("unplacedKinds", len(last.Unplaced)))
	}

	return last, nil
}

func (g *Generator) buildResult(in *Input, grid Grid, st *attemptState, checker *Checker, attempt int, seed int64) *Result {
	hard, soft := Validate(in, grid, st.cells, checker)
	res := &Result{
		Semester:       in.Semester,
		Success:        st.totalRemaining() == 0,
		Attempts:       attempt,
		Seed:           seed,
		Grid:           grid,
		Cells:          st.cells,
		Records:        BuildRecords(in, grid, st.cells),
		Unplaced:       collectUnplaced(st),
		HardViolations: hard,
		SoftViolations: soft,
		Warnings:       st.warnings,
	}
	return res
}

func collectUnplaced(st *attemptState) []UnplacedDemand {
	var out []UnplacedDemand
	for _, section := range st.in.Sections {
		codes := make([]string, 0, len(st.remaining[section]))
		for code, n := range st.remaining[section] {
			if n > 0 {
				codes = append(codes, code)
			}
		}
		sort.Strings(codes)
		for _, code := range codes {
			out = append(out, UnplacedDemand{
				Section: section,
				Subject: code,
				Teacher: st.in.Mappings[section][code].TheoryTeacher,
				Count:   st.remaining[section][code],
			})
		}
	}
	return out
}

func validateInput(in *Input) error {
	if in == nil {
		return fmt.Errorf("nil input")
	}
	if in.Semester == "" {
		return fmt.Errorf("semester is required")
	}
	if len(in.Sections) == 0 {
		return fmt.Errorf("at least one section is required")
	}
	if len(in.Subjects) == 0 {
		return fmt.Errorf("at least one subject is required")
	}
	if len(in.Rooms) == 0 {
		return fmt.Errorf("at least one room is required")
	}
	seenSection := make(map[string]struct{}, len(in.Sections))
	for _, section := range in.Sections {
		if _, dup := seenSection[section]; dup {
			return fmt.Errorf("duplicate section %q", section)
		}
		seenSection[section] = struct{}{}
	}
	return nil
}
