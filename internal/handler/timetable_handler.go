package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type timetableManager interface {
	List(ctx context.Context, query dto.TimetableEntryQuery) ([]models.TimetableEntry, error)
	Validate(ctx context.Context, req dto.TimetableEntryRequest) (*models.TimetableValidation, error)
	Create(ctx context.Context, req dto.TimetableEntryRequest, actorID string) (*models.TimetableEntry, error)
	Update(ctx context.Context, id string, req dto.UpdateTimetableEntryRequest, actorID string) (*models.TimetableEntry, error)
	Delete(ctx context.Context, id, actorID string) error
}

// TimetableHandler exposes committed timetable entries.
type TimetableHandler struct {
	service timetableManager
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(svc timetableManager) *TimetableHandler {
	return &TimetableHandler{service: svc}
}

// List godoc
// @Summary List timetable entries
// @Tags Timetable
// @Produce json
// @Param academic_semester_id query string true "Semester ID"
// @Param classroom_id query string false "Comma separated classroom IDs"
// @Param instructor_id query string false "Instructor ID"
// @Param room_id query string false "Room ID"
// @Param day_of_week query string false "Day"
// @Param include_inactive query bool false "Include deactivated entries"
// @Success 200 {object} response.Envelope
// @Router /timetable/entries [get]
func (h *TimetableHandler) List(c *gin.Context) {
	var query dto.TimetableEntryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid timetable query"))
		return
	}
	entries, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Validate godoc
// @Summary Check an entry for collisions without writing
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.TimetableEntryRequest true "Entry"
// @Success 200 {object} response.Envelope
// @Router /timetable/entries/validate [post]
func (h *TimetableHandler) Validate(c *gin.Context) {
	var req dto.TimetableEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid timetable entry payload"))
		return
	}
	result, err := h.service.Validate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Create godoc
// @Summary Create a timetable entry
// @Description Collisions are rejected with 409 and the conflict payload unless force is set.
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.TimetableEntryRequest true "Entry"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/entries [post]
func (h *TimetableHandler) Create(c *gin.Context) {
	var req dto.TimetableEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid timetable entry payload"))
		return
	}
	entry, err := h.service.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		writeTimetableError(c, err)
		return
	}
	response.Created(c, entry)
}

// Update godoc
// @Summary Move or edit a timetable entry
// @Tags Timetable
// @Accept json
// @Produce json
// @Param id path string true "Entry ID"
// @Param payload body dto.UpdateTimetableEntryRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/entries/{id} [put]
func (h *TimetableHandler) Update(c *gin.Context) {
	var req dto.UpdateTimetableEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid timetable entry payload"))
		return
	}
	entry, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		writeTimetableError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Delete godoc
// @Summary Deactivate a timetable entry
// @Tags Timetable
// @Param id path string true "Entry ID"
// @Success 204
// @Router /timetable/entries/{id} [delete]
func (h *TimetableHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), actorID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func writeTimetableError(c *gin.Context, err error) {
	var conflict *models.TimetableConflictError
	if errors.As(err, &conflict) {
		response.Conflict(c, conflict.Validation, err)
		return
	}
	response.Error(c, err)
}
