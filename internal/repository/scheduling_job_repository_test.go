package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var schedulingJobRowColumns = []string{
	"id", "academic_semester_id", "classroom_ids", "algorithm", "status", "config", "progress", "quality_score",
	"scheduled_courses", "total_courses", "failed_courses", "iterations", "timed_out", "error_message", "created_by",
	"created_at", "started_at", "completed_at", "duration_ms",
}

func TestSchedulingJobRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSchedulingJobRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO scheduling_jobs")).
		WithArgs(sqlmock.AnyArg(), "sem-1", sqlmock.AnyArg(), "HYBRID", "PENDING", sqlmock.AnyArg(), 0, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	job := &models.SchedulingJob{
		SemesterID:   "sem-1",
		ClassroomIDs: []string{"A", "B"},
		Algorithm:    models.AlgorithmHybrid,
		Config:       models.SchedulingConfig{AllowPartial: true},
	}
	require.NoError(t, repo.Create(context.Background(), job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.SchedulingStatusPending, job.Status)
	assert.False(t, job.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulingJobRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSchedulingJobRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(schedulingJobRowColumns).
		AddRow("job-1", "sem-1", "{A,B}", "GREEDY", "COMPLETED", []byte(`{"allow_partial":true}`), 100, 87.5,
			3, 4, []byte(`[{"course_id":"c-4","reason":"no slot"}]`), 12, false, nil, "user-1",
			now, now, now, int64(1500))
	mock.ExpectQuery(regexp.QuoteMeta("FROM scheduling_jobs WHERE id = $1")).
		WithArgs("job-1").
		WillReturnRows(rows)

	job, err := repo.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, []string(job.ClassroomIDs))
	assert.True(t, job.Config.AllowPartial)
	require.NotNil(t, job.QualityScore)
	assert.Equal(t, 87.5, *job.QualityScore)
	require.Len(t, job.FailedCourses, 1)
	assert.Equal(t, "c-4", job.FailedCourses[0].CourseID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulingJobRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSchedulingJobRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM scheduling_jobs WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSchedulingJobRepositoryListAppliesFiltersAndLimit(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSchedulingJobRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND academic_semester_id = $1 AND status = $2 ORDER BY created_at DESC, id DESC LIMIT 50")).
		WithArgs("sem-1", "RUNNING").
		WillReturnRows(sqlmock.NewRows(schedulingJobRowColumns))

	jobs, err := repo.List(context.Background(), models.SchedulingJobFilter{SemesterID: "sem-1", Status: models.SchedulingStatusRunning, Limit: 500})
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulingJobRepositoryCountAndOffset(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSchedulingJobRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM scheduling_jobs WHERE 1=1 AND academic_semester_id = $1")).
		WithArgs("sem-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id DESC LIMIT 5 OFFSET 10")).
		WithArgs("sem-1").
		WillReturnRows(sqlmock.NewRows(schedulingJobRowColumns))

	filter := models.SchedulingJobFilter{SemesterID: "sem-1", Limit: 5, Offset: 10}
	total, err := repo.Count(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	_, err = repo.List(context.Background(), filter)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulingJobRepositoryMarkRunningIsConditional(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSchedulingJobRepository(db)

	started := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE scheduling_jobs SET status = $1, started_at = $2, progress = 0 WHERE id = $3 AND status = ANY($4)")).
		WithArgs("RUNNING", started, "job-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE scheduling_jobs SET status = $1")).
		WithArgs("RUNNING", started, "job-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.MarkRunning(context.Background(), "job-1", started)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkRunning(context.Background(), "job-2", started)
	require.NoError(t, err)
	assert.False(t, ok, "cancelled job must stay cancelled")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulingJobRepositoryUpdateProgressNeverLowers(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSchedulingJobRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET progress = GREATEST(progress, $1) WHERE id = $2 AND status = $3")).
		WithArgs(40, "job-1", "RUNNING").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateProgress(context.Background(), "job-1", 40))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulingJobRepositoryFinish(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSchedulingJobRepository(db)

	score := 91.25
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $12 AND status = ANY($13)")).
		WithArgs("COMPLETED", 100, &score, 4, 4, sqlmock.AnyArg(), 9, false, nil, sqlmock.AnyArg(), sqlmock.AnyArg(), "job-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	job := &models.SchedulingJob{
		ID:               "job-1",
		Status:           models.SchedulingStatusCompleted,
		Progress:         100,
		QualityScore:     &score,
		ScheduledCourses: 4,
		TotalCourses:     4,
		Iterations:       9,
	}
	ok, err := repo.Finish(context.Background(), nil, job)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotNil(t, job.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulingJobRepositoryFinishRejectsNonTerminal(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSchedulingJobRepository(db)

	_, err := repo.Finish(context.Background(), nil, &models.SchedulingJob{ID: "job-1", Status: models.SchedulingStatusRunning})
	assert.Error(t, err)
}
