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

type schedulingManager interface {
	CreateJob(ctx context.Context, req dto.AutoScheduleRequest, actorID string) (*dto.AutoScheduleResponse, error)
	GetJob(ctx context.Context, id string) (*dto.SchedulingJobResponse, error)
	ListJobs(ctx context.Context, query dto.SchedulingJobQuery) ([]dto.SchedulingJobResponse, *models.Pagination, error)
	CancelJob(ctx context.Context, id string) (*dto.SchedulingJobResponse, error)
}

// SchedulingHandler exposes the auto-scheduling job endpoints.
type SchedulingHandler struct {
	service schedulingManager
}

// NewSchedulingHandler constructs the handler.
func NewSchedulingHandler(svc schedulingManager) *SchedulingHandler {
	return &SchedulingHandler{service: svc}
}

// AutoSchedule godoc
// @Summary Queue an auto-scheduling job
// @Description Validates the request and queues a run. Infeasible input is rejected with 422 unless allow_partial is set.
// @Tags Scheduling
// @Accept json
// @Produce json
// @Param payload body dto.AutoScheduleRequest true "Auto-schedule payload"
// @Success 202 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /scheduling/auto-schedule [post]
func (h *SchedulingHandler) AutoSchedule(c *gin.Context) {
	var req dto.AutoScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid auto-schedule payload"))
		return
	}
	resp, err := h.service.CreateJob(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, resp)
}

// ListJobs godoc
// @Summary List scheduling jobs
// @Tags Scheduling
// @Produce json
// @Param semester_id query string false "Semester ID"
// @Param status query string false "Job status"
// @Param limit query int false "Page size (default 50, max 100)"
// @Param page query int false "Page number, starting at 1"
// @Success 200 {object} response.Envelope
// @Router /scheduling/jobs [get]
func (h *SchedulingHandler) ListJobs(c *gin.Context) {
	var query dto.SchedulingJobQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid job query"))
		return
	}
	jobs, pagination, err := h.service.ListJobs(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, jobs, pagination)
}

// GetJob godoc
// @Summary Poll a scheduling job
// @Tags Scheduling
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /scheduling/jobs/{id} [get]
func (h *SchedulingHandler) GetJob(c *gin.Context) {
	job, err := h.service.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// CancelJob godoc
// @Summary Cancel a scheduling job
// @Description A pending job is cancelled at once; a running job stops after its current placement step.
// @Tags Scheduling
// @Produce json
// @Param id path string true "Job ID"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /scheduling/jobs/{id}/cancel [post]
func (h *SchedulingHandler) CancelJob(c *gin.Context) {
	job, err := h.service.CancelJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}
