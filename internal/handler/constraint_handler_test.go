package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type constraintServiceMock struct {
	instructorID string
	instructor   dto.InstructorConstraintRequest
	subjectID    string
	subject      dto.SubjectConstraintRequest
	subjectErr   error
}

func (m *constraintServiceMock) ListInstructorConstraints(ctx context.Context) ([]models.InstructorConstraint, error) {
	return []models.InstructorConstraint{{InstructorID: "t-1"}}, nil
}

func (m *constraintServiceMock) GetInstructorConstraint(ctx context.Context, instructorID string) (*models.InstructorConstraint, error) {
	return &models.InstructorConstraint{InstructorID: instructorID}, nil
}

func (m *constraintServiceMock) UpsertInstructorConstraint(ctx context.Context, instructorID string, req dto.InstructorConstraintRequest) (*models.InstructorConstraint, error) {
	m.instructorID = instructorID
	m.instructor = req
	return &models.InstructorConstraint{InstructorID: instructorID}, nil
}

func (m *constraintServiceMock) ListSubjectConstraints(ctx context.Context) ([]models.SubjectConstraint, error) {
	return nil, nil
}

func (m *constraintServiceMock) GetSubjectConstraint(ctx context.Context, subjectID string) (*models.SubjectConstraint, error) {
	return nil, m.subjectErr
}

func (m *constraintServiceMock) UpsertSubjectConstraint(ctx context.Context, subjectID string, req dto.SubjectConstraintRequest) (*models.SubjectConstraint, error) {
	m.subjectID = subjectID
	m.subject = req
	return &models.SubjectConstraint{SubjectID: subjectID}, m.subjectErr
}

type lockedSlotServiceMock struct {
	semesterID string
	created    dto.LockedSlotRequest
	actor      string
	updatedID  string
	deletedID  string
	err        error
}

func (m *lockedSlotServiceMock) List(ctx context.Context, semesterID string) ([]models.LockedSlot, error) {
	m.semesterID = semesterID
	return []models.LockedSlot{}, m.err
}

func (m *lockedSlotServiceMock) Create(ctx context.Context, req dto.LockedSlotRequest, actorID string) (*models.LockedSlot, error) {
	m.created = req
	m.actor = actorID
	return &models.LockedSlot{ID: "lock-1"}, m.err
}

func (m *lockedSlotServiceMock) Update(ctx context.Context, id string, req dto.UpdateLockedSlotRequest) (*models.LockedSlot, error) {
	m.updatedID = id
	return &models.LockedSlot{ID: id}, m.err
}

func (m *lockedSlotServiceMock) Delete(ctx context.Context, id string) error {
	m.deletedID = id
	return m.err
}

func TestConstraintHandlerPutInstructorConstraint(t *testing.T) {
	svc := &constraintServiceMock{}
	handler := NewConstraintHandler(svc, &lockedSlotServiceMock{})
	payload := []byte(`{"hard_unavailable_slots":[{"day_of_week":"MON","period_id":"P1"}],"max_periods_per_day":6,"avoid_days":["FRI"]}`)
	c, w := newGinContext(http.MethodPut, "/scheduling/instructors/t-1/constraints", payload)
	c.Params = gin.Params{{Key: "id", Value: "t-1"}}

	handler.PutInstructorConstraint(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "t-1", svc.instructorID)
	assert.Equal(t, 6, svc.instructor.MaxPeriodsPerDay)
	assert.Equal(t, []string{"FRI"}, svc.instructor.AvoidDays)
	require.Len(t, svc.instructor.HardUnavailable, 1)
	assert.Equal(t, "P1", svc.instructor.HardUnavailable[0].PeriodID)
}

func TestConstraintHandlerListInstructorConstraints(t *testing.T) {
	handler := NewConstraintHandler(&constraintServiceMock{}, &lockedSlotServiceMock{})
	c, w := newGinContext(http.MethodGet, "/scheduling/instructors/constraints", nil)

	handler.ListInstructorConstraints(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decodeEnvelope(t, w)["data"]), `"t-1"`)
}

func TestConstraintHandlerSubjectNotFound(t *testing.T) {
	svc := &constraintServiceMock{subjectErr: appErrors.Clone(appErrors.ErrNotFound, "subject not found")}
	handler := NewConstraintHandler(svc, &lockedSlotServiceMock{})
	c, w := newGinContext(http.MethodGet, "/scheduling/subjects/s-9/constraints", nil)
	c.Params = gin.Params{{Key: "id", Value: "s-9"}}

	handler.GetSubjectConstraint(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConstraintHandlerPutSubjectConstraint(t *testing.T) {
	svc := &constraintServiceMock{}
	handler := NewConstraintHandler(svc, &lockedSlotServiceMock{})
	payload, _ := json.Marshal(dto.SubjectConstraintRequest{PeriodsPerWeek: 4, MinConsecutive: 2, MaxConsecutive: 2})
	c, w := newGinContext(http.MethodPut, "/scheduling/subjects/math/constraints", payload)
	c.Params = gin.Params{{Key: "id", Value: "math"}}

	handler.PutSubjectConstraint(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "math", svc.subjectID)
	assert.Equal(t, 4, svc.subject.PeriodsPerWeek)
}

func TestConstraintHandlerListLockedSlotsRequiresSemester(t *testing.T) {
	locks := &lockedSlotServiceMock{}
	handler := NewConstraintHandler(&constraintServiceMock{}, locks)

	c, w := newGinContext(http.MethodGet, "/scheduling/locked-slots", nil)
	handler.ListLockedSlots(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodGet, "/scheduling/locked-slots?semester_id=sem-1", nil)
	handler.ListLockedSlots(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sem-1", locks.semesterID)
}

func TestConstraintHandlerLockedSlotLifecycle(t *testing.T) {
	locks := &lockedSlotServiceMock{}
	handler := NewConstraintHandler(&constraintServiceMock{}, locks)

	payload, _ := json.Marshal(dto.LockedSlotRequest{
		SemesterID: "sem-1", ScopeType: "ALL_SCHOOL", SubjectID: "ceremony", DayOfWeek: "MON", PeriodIDs: []string{"P1"},
	})
	c, w := newGinContext(http.MethodPost, "/scheduling/locked-slots", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin"})
	handler.CreateLockedSlot(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "admin", locks.actor)
	assert.Equal(t, "ALL_SCHOOL", locks.created.ScopeType)

	c, w = newGinContext(http.MethodPut, "/scheduling/locked-slots/lock-1", []byte(`{"reason":"assembly"}`))
	c.Params = gin.Params{{Key: "id", Value: "lock-1"}}
	handler.UpdateLockedSlot(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "lock-1", locks.updatedID)

	c, w = newGinContext(http.MethodDelete, "/scheduling/locked-slots/lock-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "lock-1"}}
	handler.DeleteLockedSlot(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "lock-1", locks.deletedID)
}

func TestConstraintHandlerCreateLockedSlotBadPayload(t *testing.T) {
	handler := NewConstraintHandler(&constraintServiceMock{}, &lockedSlotServiceMock{})
	c, w := newGinContext(http.MethodPost, "/scheduling/locked-slots", []byte(`{"period_ids":"P1"}`))

	handler.CreateLockedSlot(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
