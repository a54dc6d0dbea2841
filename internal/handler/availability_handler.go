package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusworks/timetable-api/internal/models"
	appErrors "github.com/campusworks/timetable-api/pkg/errors"
	"github.com/campusworks/timetable-api/pkg/response"
)

type availabilityService interface {
	List(ctx context.Context) ([]models.TeacherAvailability, error)
	Get(ctx context.Context, teacher string) (*models.TeacherAvailability, error)
	Save(ctx context.Context, record *models.TeacherAvailability) (*models.TeacherAvailability, error)
	Remove(ctx context.Context, teacher string) error
}

// AvailabilityHandler exposes teacher availability management.
type AvailabilityHandler struct {
	service availabilityService
}

// NewAvailabilityHandler constructs an AvailabilityHandler.
func NewAvailabilityHandler(service availabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: service}
}

// List godoc
// @Summary List teacher availability
// @Tags availability
// @Produce json
// @Success 200 {object} response.Envelope{data=[]models.TeacherAvailability}
// @Security BearerAuth
// @Router /availability [get]
func (h *AvailabilityHandler) List(c *gin.Context) {
	records, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records)
}

// Get godoc
// @Summary One teacher's availability
// @Tags availability
// @Produce json
// @Param teacher path string true "Teacher name"
// @Success 200 {object} response.Envelope{data=models.TeacherAvailability}
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /availability/{teacher} [get]
func (h *AvailabilityHandler) Get(c *gin.Context) {
	record, err := h.service.Get(c.Request.Context(), c.Param("teacher"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record)
}

// Save godoc
// @Summary Save a teacher's availability
// @Description Stores constraints applied on the next generation run
// @Tags availability
// @Accept json
// @Produce json
// @Param teacher path string true "Teacher name"
// @Param payload body models.TeacherAvailability true "Availability"
// @Success 200 {object} response.Envelope{data=models.TeacherAvailability}
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /availability/{teacher} [put]
func (h *AvailabilityHandler) Save(c *gin.Context) {
	var record models.TeacherAvailability
	if err := c.ShouldBindJSON(&record); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload"))
		return
	}
	record.Teacher = c.Param("teacher")

	saved, err := h.service.Save(c.Request.Context(), &record)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, saved)
}

// Delete godoc
// @Summary Delete a teacher's availability
// @Tags availability
// @Param teacher path string true "Teacher name"
// @Success 204
// @Security BearerAuth
// @Router /availability/{teacher} [delete]
func (h *AvailabilityHandler) Delete(c *gin.Context) {
	if err := h.service.Remove(c.Request.Context(), c.Param("teacher")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
