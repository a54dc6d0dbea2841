package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusworks/timetable-api/internal/dto"
	"github.com/campusworks/timetable-api/internal/models"
	appErrors "github.com/campusworks/timetable-api/pkg/errors"
	"github.com/campusworks/timetable-api/pkg/response"
)

type timetableServiceMock struct {
	generateFn func(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerationRunResponse, error)
	enqueueFn  func(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.QueuedRunResponse, error)
	getRunFn   func(ctx context.Context, id string) (*dto.GenerationRunResponse, error)
	latestFn   func(ctx context.Context, semester string) (*dto.TimetableResponse, error)
	exportFn   func(ctx context.Context, semester, format string) ([]byte, string, string, error)
}

func (m *timetableServiceMock) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerationRunResponse, error) {
	return m.generateFn(ctx, req)
}

func (m *timetableServiceMock) Enqueue(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.QueuedRunResponse, error) {
	return m.enqueueFn(ctx, req)
}

func (m *timetableServiceMock) GetRun(ctx context.Context, id string) (*dto.GenerationRunResponse, error) {
	return m.getRunFn(ctx, id)
}

func (m *timetableServiceMock) GetLatest(ctx context.Context, semester string) (*dto.TimetableResponse, error) {
	return m.latestFn(ctx, semester)
}

func (m *timetableServiceMock) ExportLatest(ctx context.Context, semester, format string) ([]byte, string, string, error) {
	return m.exportFn(ctx, semester, format)
}

func newTestContext(t *testing.T, method, target string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

func TestTimetableHandlerGenerateSync(t *testing.T) {
	svc := &timetableServiceMock{
		generateFn: func(_ context.Context, req dto.GenerateTimetableRequest) (*dto.GenerationRunResponse, error) {
			assert.Equal(t, "3", req.Semester)
			return &dto.GenerationRunResponse{ID: "run-1", Semester: req.Semester, Version: 1,
				Status: models.GenerationRunStatusCompleted, Success: true}, nil
		},
	}
	h := NewTimetableHandler(svc)

	c, w := newTestContext(t, http.MethodPost, "/api/v1/timetables/generate",
		dto.GenerateTimetableRequest{Semester: "3"})
	h.Generate(c)

	assert.Equal(t, http.StatusOK, w.Code)
	envelope := decodeEnvelope(t, w)
	require.NotNil(t, envelope.Data)
	assert.Nil(t, envelope.Error)
}

func TestTimetableHandlerGenerateAsync(t *testing.T) {
	enqueued := false
	svc := &timetableServiceMock{
		enqueueFn: func(_ context.Context, req dto.GenerateTimetableRequest) (*dto.QueuedRunResponse, error) {
			enqueued = true
			return &dto.QueuedRunResponse{ID: "run-1", Semester: req.Semester,
				Status: models.GenerationRunStatusPending}, nil
		},
	}
	h := NewTimetableHandler(svc)

	c, w := newTestContext(t, http.MethodPost, "/api/v1/timetables/generate",
		dto.GenerateTimetableRequest{Semester: "3", Async: true})
	h.Generate(c)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, enqueued)
}

func TestTimetableHandlerGenerateBadBody(t *testing.T) {
	h := NewTimetableHandler(&timetableServiceMock{})

	c, w := newTestContext(t, http.MethodPost, "/api/v1/timetables/generate", nil)
	c.Request.Body = http.NoBody
	h.Generate(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	envelope := decodeEnvelope(t, w)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrValidation.Code, envelope.Error.Code)
}

func TestTimetableHandlerGenerateIncomplete(t *testing.T) {
	svc := &timetableServiceMock{
		generateFn: func(context.Context, dto.GenerateTimetableRequest) (*dto.GenerationRunResponse, error) {
			return nil, appErrors.Clone(appErrors.ErrScheduleIncomplete, "could not place every required lecture; see run run-1")
		},
	}
	h := NewTimetableHandler(svc)

	c, w := newTestContext(t, http.MethodPost, "/api/v1/timetables/generate",
		dto.GenerateTimetableRequest{Semester: "3"})
	h.Generate(c)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	envelope := decodeEnvelope(t, w)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrScheduleIncomplete.Code, envelope.Error.Code)
}

func TestTimetableHandlerLatest(t *testing.T) {
	svc := &timetableServiceMock{
		latestFn: func(_ context.Context, semester string) (*dto.TimetableResponse, error) {
			assert.Equal(t, "3", semester)
			return &dto.TimetableResponse{
				Run:     dto.GenerationRunResponse{ID: "run-1", Semester: semester},
				Records: []models.ClassRecord{{Section: "A", Day: "Monday"}},
			}, nil
		},
	}
	h := NewTimetableHandler(svc)

	c, w := newTestContext(t, http.MethodGet, "/api/v1/timetables/3/latest", nil)
	c.Params = gin.Params{{Key: "semester", Value: "3"}}
	h.Latest(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTimetableHandlerLatestNotFound(t *testing.T) {
	svc := &timetableServiceMock{
		latestFn: func(context.Context, string) (*dto.TimetableResponse, error) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no completed timetable for this semester")
		},
	}
	h := NewTimetableHandler(svc)

	c, w := newTestContext(t, http.MethodGet, "/api/v1/timetables/9/latest", nil)
	c.Params = gin.Params{{Key: "semester", Value: "9"}}
	h.Latest(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTimetableHandlerRun(t *testing.T) {
	svc := &timetableServiceMock{
		getRunFn: func(_ context.Context, id string) (*dto.GenerationRunResponse, error) {
			assert.Equal(t, "run-1", id)
			return &dto.GenerationRunResponse{ID: id, Status: models.GenerationRunStatusPartial}, nil
		},
	}
	h := NewTimetableHandler(svc)

	c, w := newTestContext(t, http.MethodGet, "/api/v1/timetables/runs/run-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "run-1"}}
	h.Run(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTimetableHandlerExport(t *testing.T) {
	svc := &timetableServiceMock{
		exportFn: func(_ context.Context, semester, format string) ([]byte, string, string, error) {
			assert.Equal(t, "3", semester)
			assert.Equal(t, "csv", format)
			return []byte("Section,Day\n"), "text/csv", "timetable-sem3.csv", nil
		},
	}
	h := NewTimetableHandler(svc)

	c, w := newTestContext(t, http.MethodGet, "/api/v1/timetables/3/latest/export?format=csv", nil)
	c.Params = gin.Params{{Key: "semester", Value: "3"}}
	h.Export(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "timetable-sem3.csv")
	assert.Equal(t, "Section,Day\n", w.Body.String())
}

func TestTimetableHandlerExportDefaultsToCSV(t *testing.T) {
	var seenFormat string
	svc := &timetableServiceMock{
		exportFn: func(_ context.Context, _, format string) ([]byte, string, string, error) {
			seenFormat = format
			return []byte{}, "text/csv", "timetable-sem3.csv", nil
		},
	}
	h := NewTimetableHandler(svc)

	c, _ := newTestContext(t, http.MethodGet, "/api/v1/timetables/3/latest/export", nil)
	c.Params = gin.Params{{Key: "semester", Value: "3"}}
	h.Export(c)

	assert.Equal(t, "csv", seenFormat)
}
