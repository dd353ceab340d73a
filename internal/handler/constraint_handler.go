package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type constraintManager interface {
	ListInstructorConstraints(ctx context.Context) ([]models.InstructorConstraint, error)
	GetInstructorConstraint(ctx context.Context, instructorID string) (*models.InstructorConstraint, error)
	UpsertInstructorConstraint(ctx context.Context, instructorID string, req dto.InstructorConstraintRequest) (*models.InstructorConstraint, error)
	ListSubjectConstraints(ctx context.Context) ([]models.SubjectConstraint, error)
	GetSubjectConstraint(ctx context.Context, subjectID string) (*models.SubjectConstraint, error)
	UpsertSubjectConstraint(ctx context.Context, subjectID string, req dto.SubjectConstraintRequest) (*models.SubjectConstraint, error)
}

type lockedSlotManager interface {
	List(ctx context.Context, semesterID string) ([]models.LockedSlot, error)
	Create(ctx context.Context, req dto.LockedSlotRequest, actorID string) (*models.LockedSlot, error)
	Update(ctx context.Context, id string, req dto.UpdateLockedSlotRequest) (*models.LockedSlot, error)
	Delete(ctx context.Context, id string) error
}

// ConstraintHandler exposes instructor, subject and locked-slot constraints.
type ConstraintHandler struct {
	constraints constraintManager
	locks       lockedSlotManager
}

// NewConstraintHandler constructs the handler.
func NewConstraintHandler(constraints constraintManager, locks lockedSlotManager) *ConstraintHandler {
	return &ConstraintHandler{constraints: constraints, locks: locks}
}

// ListInstructorConstraints godoc
// @Summary List instructor constraints
// @Tags Constraints
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /scheduling/instructors/constraints [get]
func (h *ConstraintHandler) ListInstructorConstraints(c *gin.Context) {
	items, err := h.constraints.ListInstructorConstraints(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// GetInstructorConstraint godoc
// @Summary Get an instructor's constraints
// @Description Instructors without stored constraints get the empty default.
// @Tags Constraints
// @Produce json
// @Param id path string true "Instructor ID"
// @Success 200 {object} response.Envelope
// @Router /scheduling/instructors/{id}/constraints [get]
func (h *ConstraintHandler) GetInstructorConstraint(c *gin.Context) {
	item, err := h.constraints.GetInstructorConstraint(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// PutInstructorConstraint godoc
// @Summary Replace an instructor's constraints
// @Tags Constraints
// @Accept json
// @Produce json
// @Param id path string true "Instructor ID"
// @Param payload body dto.InstructorConstraintRequest true "Constraints"
// @Success 200 {object} response.Envelope
// @Router /scheduling/instructors/{id}/constraints [put]
func (h *ConstraintHandler) PutInstructorConstraint(c *gin.Context) {
	var req dto.InstructorConstraintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid instructor constraint payload"))
		return
	}
	item, err := h.constraints.UpsertInstructorConstraint(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// ListSubjectConstraints godoc
// @Summary List subject constraints
// @Tags Constraints
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /scheduling/subjects/constraints [get]
func (h *ConstraintHandler) ListSubjectConstraints(c *gin.Context) {
	items, err := h.constraints.ListSubjectConstraints(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// GetSubjectConstraint godoc
// @Summary Get a subject's scheduling defaults
// @Tags Constraints
// @Produce json
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /scheduling/subjects/{id}/constraints [get]
func (h *ConstraintHandler) GetSubjectConstraint(c *gin.Context) {
	item, err := h.constraints.GetSubjectConstraint(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// PutSubjectConstraint godoc
// @Summary Replace a subject's scheduling defaults
// @Tags Constraints
// @Accept json
// @Produce json
// @Param id path string true "Subject ID"
// @Param payload body dto.SubjectConstraintRequest true "Constraints"
// @Success 200 {object} response.Envelope
// @Router /scheduling/subjects/{id}/constraints [put]
func (h *ConstraintHandler) PutSubjectConstraint(c *gin.Context) {
	var req dto.SubjectConstraintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid subject constraint payload"))
		return
	}
	item, err := h.constraints.UpsertSubjectConstraint(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// ListLockedSlots godoc
// @Summary List locked slots of a semester
// @Tags Constraints
// @Produce json
// @Param semester_id query string true "Semester ID"
// @Success 200 {object} response.Envelope
// @Router /scheduling/locked-slots [get]
func (h *ConstraintHandler) ListLockedSlots(c *gin.Context) {
	semesterID := c.Query("semester_id")
	if semesterID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "semester_id required"))
		return
	}
	items, err := h.locks.List(c.Request.Context(), semesterID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// CreateLockedSlot godoc
// @Summary Lock a slot
// @Tags Constraints
// @Accept json
// @Produce json
// @Param payload body dto.LockedSlotRequest true "Locked slot"
// @Success 201 {object} response.Envelope
// @Router /scheduling/locked-slots [post]
func (h *ConstraintHandler) CreateLockedSlot(c *gin.Context) {
	var req dto.LockedSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid locked slot payload"))
		return
	}
	item, err := h.locks.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// UpdateLockedSlot godoc
// @Summary Change a locked slot
// @Tags Constraints
// @Accept json
// @Produce json
// @Param id path string true "Locked slot ID"
// @Param payload body dto.UpdateLockedSlotRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Router /scheduling/locked-slots/{id} [put]
func (h *ConstraintHandler) UpdateLockedSlot(c *gin.Context) {
	var req dto.UpdateLockedSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid locked slot payload"))
		return
	}
	item, err := h.locks.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// DeleteLockedSlot godoc
// @Summary Remove a locked slot
// @Tags Constraints
// @Param id path string true "Locked slot ID"
// @Success 204
// @Router /scheduling/locked-slots/{id} [delete]
func (h *ConstraintHandler) DeleteLockedSlot(c *gin.Context) {
	if err := h.locks.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
