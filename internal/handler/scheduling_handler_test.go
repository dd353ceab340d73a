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

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

type schedulingServiceMock struct {
	createReq   dto.AutoScheduleRequest
	createActor string
	createResp  *dto.AutoScheduleResponse
	createErr   error
	job         *dto.SchedulingJobResponse
	jobErr      error
	jobs        []dto.SchedulingJobResponse
	listQuery   dto.SchedulingJobQuery
	cancelled   string
}

func (m *schedulingServiceMock) CreateJob(ctx context.Context, req dto.AutoScheduleRequest, actorID string) (*dto.AutoScheduleResponse, error) {
	m.createReq = req
	m.createActor = actorID
	return m.createResp, m.createErr
}

func (m *schedulingServiceMock) GetJob(ctx context.Context, id string) (*dto.SchedulingJobResponse, error) {
	return m.job, m.jobErr
}

func (m *schedulingServiceMock) ListJobs(ctx context.Context, query dto.SchedulingJobQuery) ([]dto.SchedulingJobResponse, *models.Pagination, error) {
	m.listQuery = query
	return m.jobs, models.NewPagination(query.Page, query.Limit, len(m.jobs)), nil
}

func (m *schedulingServiceMock) CancelJob(ctx context.Context, id string) (*dto.SchedulingJobResponse, error) {
	m.cancelled = id
	return m.job, m.jobErr
}

func TestSchedulingHandlerAutoSchedule(t *testing.T) {
	svc := &schedulingServiceMock{
		createResp: &dto.AutoScheduleResponse{JobID: "job-1", Status: models.SchedulingStatusPending, Message: "scheduling job queued"},
	}
	handler := NewSchedulingHandler(svc)

	payload, _ := json.Marshal(dto.AutoScheduleRequest{SemesterID: "sem-1", ClassroomIDs: []string{"K"}, Algorithm: "GREEDY"})
	c, w := newGinContext(http.MethodPost, "/scheduling/auto-schedule", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	handler.AutoSchedule(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "admin", svc.createActor)
	assert.Equal(t, "GREEDY", svc.createReq.Algorithm)

	var data dto.AutoScheduleResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w)["data"], &data))
	assert.Equal(t, "job-1", data.JobID)
}

func TestSchedulingHandlerAutoScheduleBadPayload(t *testing.T) {
	handler := NewSchedulingHandler(&schedulingServiceMock{})
	c, w := newGinContext(http.MethodPost, "/scheduling/auto-schedule", []byte("{"))

	handler.AutoSchedule(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSchedulingHandlerAutoScheduleInfeasible(t *testing.T) {
	svc := &schedulingServiceMock{
		createErr: appErrors.Clone(appErrors.ErrSchedulingInfeasible, "instructor t-1 needs 12 periods").
			WithDetails([]map[string]string{{"type": "INSTRUCTOR_CAPACITY"}}),
	}
	handler := NewSchedulingHandler(svc)
	payload, _ := json.Marshal(dto.AutoScheduleRequest{SemesterID: "sem-1", ClassroomIDs: []string{"K"}})
	c, w := newGinContext(http.MethodPost, "/scheduling/auto-schedule", payload)

	handler.AutoSchedule(c)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var apiErr appErrors.Error
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w)["error"], &apiErr))
	assert.Equal(t, "SCHEDULING_INFEASIBLE", apiErr.Code)
	assert.NotNil(t, apiErr.Details)
}

func TestSchedulingHandlerListJobsBindsQuery(t *testing.T) {
	svc := &schedulingServiceMock{jobs: []dto.SchedulingJobResponse{{ID: "job-1"}}}
	handler := NewSchedulingHandler(svc)
	c, w := newGinContext(http.MethodGet, "/scheduling/jobs?semester_id=sem-1&status=RUNNING&limit=5&page=2", nil)

	handler.ListJobs(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.SchedulingJobQuery{SemesterID: "sem-1", Status: "RUNNING", Limit: 5, Page: 2}, svc.listQuery)

	var pagination models.Pagination
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w)["pagination"], &pagination))
	assert.Equal(t, models.Pagination{Page: 2, PageSize: 5, TotalCount: 1}, pagination)
}

func TestSchedulingHandlerGetJobNotFound(t *testing.T) {
	handler := NewSchedulingHandler(&schedulingServiceMock{jobErr: appErrors.Clone(appErrors.ErrNotFound, "scheduling job not found")})
	c, w := newGinContext(http.MethodGet, "/scheduling/jobs/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.GetJob(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSchedulingHandlerCancelJob(t *testing.T) {
	svc := &schedulingServiceMock{job: &dto.SchedulingJobResponse{ID: "job-1", Status: models.SchedulingStatusCancelled}}
	handler := NewSchedulingHandler(svc)
	c, w := newGinContext(http.MethodPost, "/scheduling/jobs/job-1/cancel", nil)
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}

	handler.CancelJob(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "job-1", svc.cancelled)
}

func TestSchedulingHandlerCancelFinishedJob(t *testing.T) {
	svc := &schedulingServiceMock{jobErr: appErrors.Clone(appErrors.ErrJobTerminal, "scheduling job is already COMPLETED")}
	handler := NewSchedulingHandler(svc)
	c, w := newGinContext(http.MethodPost, "/scheduling/jobs/job-1/cancel", nil)
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}

	handler.CancelJob(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}
