package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func TestInstructorConstraintRepositoryGetByInstructor(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInstructorConstraintRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"instructor_id", "hard_unavailable", "preferred_slots", "max_periods_per_day",
		"min_periods_per_day", "preferred_days", "avoid_days", "assigned_room_id", "created_at", "updated_at"}).
		AddRow("t-1", []byte(`[{"day_of_week":"MON","period_id":"P1"}]`), []byte(`[]`), 5, 0, "{TUE,WED}", "{}", "lab-1", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM instructor_constraints WHERE instructor_id = $1")).
		WithArgs("t-1").
		WillReturnRows(rows)

	constraint, err := repo.GetByInstructor(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, models.TimeSlots{{Day: models.DayMonday, PeriodID: "P1"}}, constraint.HardUnavailable)
	assert.Equal(t, models.Days{models.DayTuesday, models.DayWednesday}, constraint.PreferredDays)
	assert.Empty(t, constraint.AvoidDays)
	require.NotNil(t, constraint.AssignedRoomID)
	assert.Equal(t, "lab-1", *constraint.AssignedRoomID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstructorConstraintRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInstructorConstraintRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (instructor_id) DO UPDATE")).
		WithArgs("t-1", sqlmock.AnyArg(), sqlmock.AnyArg(), 6, 1, sqlmock.AnyArg(), sqlmock.AnyArg(), nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	constraint := &models.InstructorConstraint{InstructorID: "t-1", MaxPeriodsPerDay: 6, MinPeriodsPerDay: 1}
	require.NoError(t, repo.Upsert(context.Background(), constraint))
	assert.NotNil(t, constraint.HardUnavailable)
	assert.NotNil(t, constraint.PreferredDays)
	assert.False(t, constraint.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectConstraintRepositoryListFiltersSubjects(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubjectConstraintRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"subject_id", "periods_per_week", "min_consecutive", "max_consecutive",
		"preferred_time_of_day", "required_room_type", "created_at", "updated_at"}).
		AddRow("chem", 4, 2, 2, "MORNING", "LAB", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM subject_constraints WHERE subject_id = ANY($1) ORDER BY subject_id")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)

	constraints, err := repo.List(context.Background(), []string{"chem"})
	require.NoError(t, err)
	require.Len(t, constraints, 1)
	assert.Equal(t, models.TimeOfDayMorning, constraints[0].PreferredTimeOfDay)
	require.NotNil(t, constraints[0].RequiredRoomType)
	assert.Equal(t, "LAB", *constraints[0].RequiredRoomType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectConstraintRepositoryUpsertDefaultsTimeOfDay(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubjectConstraintRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO subject_constraints")).
		WithArgs("art", 2, 2, 2, "ANYTIME", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	constraint := &models.SubjectConstraint{SubjectID: "art", PeriodsPerWeek: 2, MinConsecutive: 2, MaxConsecutive: 2}
	require.NoError(t, repo.Upsert(context.Background(), constraint))
	assert.Equal(t, models.TimeOfDayAnytime, constraint.PreferredTimeOfDay)
	assert.NoError(t, mock.ExpectationsWereMet())
}
