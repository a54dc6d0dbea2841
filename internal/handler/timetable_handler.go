package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusworks/timetable-api/internal/dto"
	appErrors "github.com/campusworks/timetable-api/pkg/errors"
	"github.com/campusworks/timetable-api/pkg/response"
)

type timetableService interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerationRunResponse, error)
	Enqueue(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.QueuedRunResponse, error)
	GetRun(ctx context.Context, id string) (*dto.GenerationRunResponse, error)
	GetLatest(ctx context.Context, semester string) (*dto.TimetableResponse, error)
	ExportLatest(ctx context.Context, semester, format string) ([]byte, string, string, error)
}

// TimetableHandler exposes generation and retrieval endpoints.
type TimetableHandler struct {
	service timetableService
}

// NewTimetableHandler constructs a TimetableHandler.
func NewTimetableHandler(service timetableService) *TimetableHandler {
	return &TimetableHandler{service: service}
}

// Generate godoc
// @Summary Generate a timetable
// @Description Runs the generation engine for a semester, synchronously or on the worker pool
// @Tags timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Generation request"
// @Success 200 {object} response.Envelope{data=dto.GenerationRunResponse}
// @Success 202 {object} response.Envelope{data=dto.QueuedRunResponse}
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation payload"))
		return
	}

	if req.Async {
		queued, err := h.service.Enqueue(c.Request.Context(), req)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Accepted(c, queued)
		return
	}

	resp, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp)
}

// Latest godoc
// @Summary Latest timetable for a semester
// @Description Returns the newest completed timetable with its run metadata
// @Tags timetables
// @Produce json
// @Param semester path string true "Semester"
// @Success 200 {object} response.Envelope{data=dto.TimetableResponse}
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables/{semester}/latest [get]
func (h *TimetableHandler) Latest(c *gin.Context) {
	semester := c.Param("semester")

	resp, err := h.service.GetLatest(c.Request.Context(), semester)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp)
}

// Run godoc
// @Summary Generation run details
// @Description Returns the stored outcome and diagnostics of one generation run
// @Tags timetables
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope{data=dto.GenerationRunResponse}
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables/runs/{id} [get]
func (h *TimetableHandler) Run(c *gin.Context) {
	id := c.Param("id")

	resp, err := h.service.GetRun(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp)
}

// Export godoc
// @Summary Export the latest timetable
// @Description Renders the newest completed timetable as CSV or PDF
// @Tags timetables
// @Produce text/csv
// @Produce application/pdf
// @Param semester path string true "Semester"
// @Param format query string true "Export format" Enums(csv, pdf)
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables/{semester}/latest/export [get]
func (h *TimetableHandler) Export(c *gin.Context) {
	semester := c.Param("semester")
	format := c.DefaultQuery("format", "csv")

	payload, contentType, filename, err := h.service.ExportLatest(c.Request.Context(), semester, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}
