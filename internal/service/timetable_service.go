package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/campusworks/timetable-api/internal/dto"
	"github.com/campusworks/timetable-api/internal/engine"
	"github.com/campusworks/timetable-api/internal/models"
	"github.com/campusworks/timetable-api/pkg/config"
	appErrors "github.com/campusworks/timetable-api/pkg/errors"
	"github.com/campusworks/timetable-api/pkg/export"
	"github.com/campusworks/timetable-api/pkg/jobs"
)

type catalogRepository interface {
	ListSections(ctx context.Context, semester string) ([]models.Section, error)
	ListSubjects(ctx context.Context, semester string) ([]models.Subject, error)
	ListRooms(ctx context.Context) ([]models.Room, error)
	ListMappings(ctx context.Context, semester string) ([]models.SubjectMapping, error)
	ListTimings(ctx context.Context, semester string) ([]models.DayTiming, error)
	ListOpenElectives(ctx context.Context, semester string) ([]models.OpenElective, error)
}

type timetableRepository interface {
	CreateVersioned(ctx context.Context, run *models.GenerationRun) error
	UpdateOutcome(ctx context.Context, run *models.GenerationRun) error
	FindRun(ctx context.Context, id string) (*models.GenerationRun, error)
	LatestCompleted(ctx context.Context, semester string) (*models.GenerationRun, error)
	ReplaceRecords(ctx context.Context, runID string, records []models.ClassRecord) error
	ListRecords(ctx context.Context, runID string) ([]models.ClassRecord, error)
}

// GenerationJob is the queue payload for asynchronous runs.
type GenerationJob struct {
	RunID    string
	Semester string
	Seed     int64
}

// TimetableService orchestrates generation runs: it assembles engine input
// from the catalogs, executes the engine, and persists the versioned outcome.
type TimetableService struct {
	catalogs  catalogRepository
	runs      timetableRepository
	source    engine.AvailabilitySource
	cache     ResultCache
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	engineCfg config.EngineConfig

	queue *jobs.Queue
}

// NewTimetableService constructs the service.
func NewTimetableService(
	catalogs catalogRepository,
	runs timetableRepository,
	source engine.AvailabilitySource,
	cache ResultCache,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	engineCfg config.EngineConfig,
) *TimetableService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cache == nil {
		cache = NoopResultCache{}
	}
	return &TimetableService{
		catalogs:  catalogs,
		runs:      runs,
		source:    source,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		engineCfg: engineCfg,
	}
}

// AttachQueue enables asynchronous generation through the worker pool.
func (s *TimetableService) AttachQueue(queue *jobs.Queue) {
	s.queue = queue
}

// Generate runs a generation synchronously and returns the persisted outcome.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerationRunResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation payload")
	}

	run := &models.GenerationRun{Semester: req.Semester}
	if err := s.runs.CreateVersioned(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create generation run")
	}

	return s.executeRun(ctx, run, req.Seed)
}

// Enqueue schedules a generation on the background workers.
func (s *TimetableService) Enqueue(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.QueuedRunResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation payload")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "asynchronous generation is disabled")
	}

	run := &models.GenerationRun{Semester: req.Semester}
	if err := s.runs.CreateVersioned(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create generation run")
	}

	job := jobs.Job{
		ID:      run.ID,
		Type:    "generate_timetable",
		Payload: GenerationJob{RunID: run.ID, Semester: run.Semester, Seed: req.Seed},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.failRun(ctx, run, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue generation run")
	}

	return &dto.QueuedRunResponse{ID: run.ID, Semester: run.Semester, Status: run.Status}, nil
}

// HandleGenerationJob is the queue handler for asynchronous runs.
func (s *TimetableService) HandleGenerationJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(GenerationJob)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for job %s", job.Payload, job.ID)
	}

	run, err := s.runs.FindRun(ctx, payload.RunID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", payload.RunID, err)
	}

	if _, err := s.executeRun(ctx, run, payload.Seed); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Code == appErrors.ErrScheduleIncomplete.Code {
			// The partial outcome is persisted on the run; retrying the job
			// verbatim would just reproduce it.
			s.logger.Warn("queued generation left demand unplaced", zap.String("run_id", run.ID))
			return nil
		}
		return err
	}
	return nil
}

// GetRun returns the stored outcome of one run.
func (s *TimetableService) GetRun(ctx context.Context, id string) (*dto.GenerationRunResponse, error) {
	run, err := s.runs.FindRun(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "generation run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load generation run")
	}
	return runToResponse(run), nil
}

// GetLatest returns the newest completed timetable for a semester.
func (s *TimetableService) GetLatest(ctx context.Context, semester string) (*dto.TimetableResponse, error) {
	if cached, ok := s.cache.GetTimetable(ctx, semester); ok {
		s.metrics.ObserveCacheHit(true)
		return cached, nil
	}
	s.metrics.ObserveCacheHit(false)

	run, err := s.runs.LatestCompleted(ctx, semester)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no completed timetable for this semester")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load latest run")
	}

	records, err := s.runs.ListRecords(ctx, run.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable records")
	}

	resp := &dto.TimetableResponse{Run: *runToResponse(run), Records: records}
	s.cache.SetTimetable(ctx, semester, resp)
	return resp, nil
}

// ExportFormat names a supported export encoding.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

// ExportLatest renders the newest completed timetable of a semester.
func (s *TimetableService) ExportLatest(ctx context.Context, semester, format string) ([]byte, string, string, error) {
	timetable, err := s.GetLatest(ctx, semester)
	if err != nil {
		return nil, "", "", err
	}

	dataset := export.Dataset{
		Headers: []string{"Section", "Day", "Time", "Subject", "Teacher", "Room", "Type"},
	}
	for _, rec := range timetable.Records {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Section": rec.Section,
			"Day":     rec.Day,
			"Time":    rec.TimeRange,
			"Subject": rec.Subject,
			"Teacher": rec.Teacher,
			"Room":    rec.Room,
			"Type":    rec.Kind,
		})
	}

	switch format {
	case ExportFormatCSV:
		payload, err := export.NewCSVExporter().Render(dataset)
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "csv export failed")
		}
		return payload, "text/csv", fmt.Sprintf("timetable-sem%s.csv", semester), nil
	case ExportFormatPDF:
		title := fmt.Sprintf("Semester %s Timetable", semester)
		payload, err := export.NewPDFExporter().Render(dataset, title)
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "pdf export failed")
		}
		return payload, "application/pdf", fmt.Sprintf("timetable-sem%s.pdf", semester), nil
	default:
		return nil, "", "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func (s *TimetableService) executeRun(ctx context.Context, run *models.GenerationRun, seedOverride int64) (*dto.GenerationRunResponse, error) {
	started := time.Now()

	run.Status = models.GenerationRunStatusRunning
	if err := s.runs.UpdateOutcome(ctx, run); err != nil {
		s.logger.Warn("failed to mark run as running", zap.String("run_id", run.ID), zap.Error(err))
	}

	in, err := s.buildInput(ctx, run.Semester)
	if err != nil {
		s.failRun(ctx, run, err)
		return nil, err
	}

	seed := seedOverride
	if seed == 0 {
		seed = s.engineCfg.Seed
	}
	gen := engine.NewGenerator(s.source, s.budgets(), seed, s.logger)
	res, err := gen.Generate(ctx, in)
	if err != nil {
		s.failRun(ctx, run, err)
		s.metrics.ObserveGeneration(string(models.GenerationRunStatusFailed), time.Since(started), 0, 0)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "timetable generation failed")
	}

	status := models.GenerationRunStatusCompleted
	if !res.Success {
		status = models.GenerationRunStatusPartial
	}
	run.Status = status
	run.Success = res.Success
	run.Attempts = res.Attempts
	run.Seed = res.Seed
	run.Warnings = mustJSON(res.Warnings, `[]`)
	run.Unplaced = mustJSON(res.Unplaced, `[]`)
	run.HardViolations = mustJSON(res.HardViolations, `[]`)
	run.SoftViolations = mustJSON(res.SoftViolations, `[]`)

	records := toClassRecords(run, res.Records)
	if err := s.runs.ReplaceRecords(ctx, run.ID, records); err != nil {
		s.failRun(ctx, run, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist timetable records")
	}
	if err := s.runs.UpdateOutcome(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist run outcome")
	}

	unplacedTotal := 0
	for _, u := range res.Unplaced {
		unplacedTotal += u.Count
	}
	s.metrics.ObserveGeneration(string(status), time.Since(started), res.Attempts, unplacedTotal)

	resp := &dto.GenerationRunResponse{
		ID:             run.ID,
		Semester:       run.Semester,
		Version:        run.Version,
		Status:         run.Status,
		Success:        run.Success,
		Attempts:       run.Attempts,
		Seed:           run.Seed,
		Warnings:       res.Warnings,
		Unplaced:       res.Unplaced,
		HardViolations: res.HardViolations,
		SoftViolations: res.SoftViolations,
		CreatedAt:      run.CreatedAt,
	}

	if !res.Success {
		s.logger.Warn("generation run left demand unplaced",
			zap.String("run_id", run.ID),
			zap.String("semester", run.Semester),
			zap.Int("unplaced", unplacedTotal))
		return resp, appErrors.Clone(appErrors.ErrScheduleIncomplete,
			fmt.Sprintf("could not place every required lecture; see run %s", run.ID))
	}

	s.cache.SetTimetable(ctx, run.Semester, &dto.TimetableResponse{Run: *resp, Records: records})
	s.logger.Info("generation run completed",
		zap.String("run_id", run.ID),
		zap.String("semester", run.Semester),
		zap.Int("version", run.Version),
		zap.Int("records", len(records)))
	return resp, nil
}

func (s *TimetableService) failRun(ctx context.Context, run *models.GenerationRun, cause error) {
	run.Status = models.GenerationRunStatusFailed
	run.Success = false
	if err := s.runs.UpdateOutcome(ctx, run); err != nil {
		s.logger.Error("failed to mark run as failed",
			zap.String("run_id", run.ID),
			zap.NamedError("cause", cause),
			zap.Error(err))
	}
}

// buildInput assembles the engine input from the stored catalogs.
func (s *TimetableService) buildInput(ctx context.Context, semester string) (*engine.Input, error) {
	sections, err := s.catalogs.ListSections(ctx, semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sections")
	}
	if len(sections) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("semester %s has no sections", semester))
	}

	subjects, err := s.catalogs.ListSubjects(ctx, semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}
	rooms, err := s.catalogs.ListRooms(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rooms")
	}
	mappings, err := s.catalogs.ListMappings(ctx, semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject mappings")
	}
	timings, err := s.catalogs.ListTimings(ctx, semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load day timings")
	}
	openElectives, err := s.catalogs.ListOpenElectives(ctx, semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load open electives")
	}

	in := &engine.Input{
		Semester: semester,
		Days:     engine.DefaultDays,
		LabPolicy: engine.LabDayPolicy{
			MaxPairsPerDay: s.engineCfg.LabMaxPairsPerDay,
			ExtraPairDays:  s.engineCfg.LabExtraPairDays,
		},
		Mappings:      make(map[string]map[string]engine.SubjectMapping),
		Timings:       make(map[string]map[engine.Weekday]engine.DayTiming),
		OpenElectives: make(map[string]map[string][]engine.FixedPlacement),
	}

	for _, section := range sections {
		in.Sections = append(in.Sections, section.Name)
	}
	for _, sub := range subjects {
		in.Subjects = append(in.Subjects, engine.Subject{
			Code:           sub.Code,
			Name:           sub.Name,
			Lectures:       sub.Lectures,
			IsLab:          sub.IsLab,
			IsElective:     sub.IsElective,
			IsOpenElective: sub.IsOpenElective,
		})
	}
	for _, room := range rooms {
		in.Rooms = append(in.Rooms, engine.Room{Name: room.Name, IsLab: room.IsLab})
	}
	for _, m := range mappings {
		if in.Mappings[m.Section] == nil {
			in.Mappings[m.Section] = make(map[string]engine.SubjectMapping)
		}
		in.Mappings[m.Section][m.SubjectCode] = engine.SubjectMapping{
			TheoryTeacher: m.TheoryTeacher,
			LabTeachers:   []string(m.LabTeachers),
		}
	}
	for _, t := range timings {
		converted, err := convertTiming(t)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
				fmt.Sprintf("invalid timing for section %s on %s", t.Section, t.Day))
		}
		if in.Timings[t.Section] == nil {
			in.Timings[t.Section] = make(map[engine.Weekday]engine.DayTiming)
		}
		in.Timings[t.Section][engine.Weekday(t.Day)] = converted
	}
	for _, oe := range openElectives {
		if in.OpenElectives[oe.Section] == nil {
			in.OpenElectives[oe.Section] = make(map[string][]engine.FixedPlacement)
		}
		in.OpenElectives[oe.Section][oe.SubjectCode] = append(in.OpenElectives[oe.Section][oe.SubjectCode], engine.FixedPlacement{
			Day:       engine.Weekday(oe.Day),
			SlotIndex: oe.SlotIndex,
			Room:      oe.Room,
		})
	}

	if cutoff := s.engineCfg.DayEndCutoff; cutoff != "" {
		minutes, err := engine.ParseClock(cutoff)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid day end cutoff")
		}
		in.DayEndCutoff = minutes
	}

	return in, nil
}

func convertTiming(t models.DayTiming) (engine.DayTiming, error) {
	start, err := engine.ParseClock(t.StartTime)
	if err != nil {
		return engine.DayTiming{}, err
	}
	converted := engine.DayTiming{
		Start:      start,
		SlotLength: t.SlotLength,
		SlotCount:  t.SlotCount,
	}

	if len(t.Breaks) > 0 {
		var raw []models.TimingBreak
		if err := json.Unmarshal(t.Breaks, &raw); err != nil {
			return engine.DayTiming{}, fmt.Errorf("decode breaks: %w", err)
		}
		for _, brk := range raw {
			bs, err := engine.ParseClock(brk.Start)
			if err != nil {
				return engine.DayTiming{}, err
			}
			be, err := engine.ParseClock(brk.End)
			if err != nil {
				return engine.DayTiming{}, err
			}
			converted.Breaks = append(converted.Breaks, engine.Interval{Start: bs, End: be})
		}
	}
	return converted, nil
}

func (s *TimetableService) budgets() engine.Budgets {
	budgets := engine.DefaultBudgets()
	if s.engineCfg.Retries > 0 {
		budgets.Retries = s.engineCfg.Retries
	}
	if s.engineCfg.PlacementAttempts > 0 {
		budgets.PlacementAttempts = s.engineCfg.PlacementAttempts
	}
	if s.engineCfg.SwapAttempts > 0 {
		budgets.SwapAttempts = s.engineCfg.SwapAttempts
	}
	if s.engineCfg.SweepPasses > 0 {
		budgets.SweepPasses = s.engineCfg.SweepPasses
	}
	if s.engineCfg.SwapSample > 0 {
		budgets.SwapSample = s.engineCfg.SwapSample
	}
	if s.engineCfg.DesperateSample > 0 {
		budgets.DesperateSample = s.engineCfg.DesperateSample
	}
	return budgets
}

func toClassRecords(run *models.GenerationRun, records []engine.ClassRecord) []models.ClassRecord {
	out := make([]models.ClassRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, models.ClassRecord{
			RunID:     run.ID,
			Semester:  rec.Semester,
			Section:   rec.Section,
			Day:       rec.Day,
			TimeRange: rec.Time,
			Subject:   rec.Subject,
			Teacher:   rec.Teacher,
			Room:      rec.Room,
			Kind:      string(rec.Kind),
		})
	}
	return out
}

func runToResponse(run *models.GenerationRun) *dto.GenerationRunResponse {
	resp := &dto.GenerationRunResponse{
		ID:        run.ID,
		Semester:  run.Semester,
		Version:   run.Version,
		Status:    run.Status,
		Success:   run.Success,
		Attempts:  run.Attempts,
		Seed:      run.Seed,
		CreatedAt: run.CreatedAt,
	}
	_ = json.Unmarshal(run.Warnings, &resp.Warnings)
	_ = json.Unmarshal(run.Unplaced, &resp.Unplaced)
	_ = json.Unmarshal(run.HardViolations, &resp.HardViolations)
	_ = json.Unmarshal(run.SoftViolations, &resp.SoftViolations)
	return resp
}

func mustJSON(v interface{}, fallback string) types.JSONText {
	raw, err := json.Marshal(v)
	if err != nil || string(raw) == "null" {
		return types.JSONText(fallback)
	}
	return types.JSONText(raw)
}
