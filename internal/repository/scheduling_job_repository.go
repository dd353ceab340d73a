package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const schedulingJobColumns = `id, academic_semester_id, classroom_ids, algorithm, status, config, progress, quality_score,
scheduled_courses, total_courses, failed_courses, iterations, timed_out, error_message, created_by, created_at,
started_at, completed_at, duration_ms`

// SchedulingJobRepository persists scheduling jobs. Status updates are conditional on the
// current status so a terminal job never changes again.
type SchedulingJobRepository struct {
	db *sqlx.DB
}

// NewSchedulingJobRepository constructs the repository.
func NewSchedulingJobRepository(db *sqlx.DB) *SchedulingJobRepository {
	return &SchedulingJobRepository{db: db}
}

func (r *SchedulingJobRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new PENDING job.
func (r *SchedulingJobRepository) Create(ctx context.Context, job *models.SchedulingJob) error {
	if job == nil {
		return fmt.Errorf("scheduling job payload is nil")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.SchedulingStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.FailedCourses == nil {
		job.FailedCourses = models.FailedCourses{}
	}

	const query = `INSERT INTO scheduling_jobs (id, academic_semester_id, classroom_ids, algorithm, status, config, progress, failed_courses, created_by, created_at)
VALUES (:id, :academic_semester_id, :classroom_ids, :algorithm, :status, :config, :progress, :failed_courses, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("insert scheduling job: %w", err)
	}
	return nil
}

// FindByID loads a job by its identifier.
func (r *SchedulingJobRepository) FindByID(ctx context.Context, id string) (*models.SchedulingJob, error) {
	query := `SELECT ` + schedulingJobColumns + ` FROM scheduling_jobs WHERE id = $1`
	var job models.SchedulingJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns the newest jobs matching the filter.
func (r *SchedulingJobRepository) List(ctx context.Context, filter models.SchedulingJobFilter) ([]models.SchedulingJob, error) {
	where, args := jobFilterClause(filter)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM scheduling_jobs WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		schedulingJobColumns, where, filter.PageSize(), offset)
	var jobs []models.SchedulingJob
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("list scheduling jobs: %w", err)
	}
	return jobs, nil
}

// Count returns how many jobs match the filter, ignoring its limit and offset.
func (r *SchedulingJobRepository) Count(ctx context.Context, filter models.SchedulingJobFilter) (int, error) {
	where, args := jobFilterClause(filter)
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM scheduling_jobs WHERE `+where, args...); err != nil {
		return 0, fmt.Errorf("count scheduling jobs: %w", err)
	}
	return total, nil
}

func jobFilterClause(filter models.SchedulingJobFilter) (string, []interface{}) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.SemesterID != "" {
		where = append(where, fmt.Sprintf("academic_semester_id = $%d", len(args)+1))
		args = append(args, filter.SemesterID)
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, string(filter.Status))
	}
	return strings.Join(where, " AND "), args
}

// ListByStatus returns jobs in any of the statuses, oldest first.
func (r *SchedulingJobRepository) ListByStatus(ctx context.Context, statuses ...models.SchedulingStatus) ([]models.SchedulingJob, error) {
	query := `SELECT ` + schedulingJobColumns + ` FROM scheduling_jobs WHERE status = ANY($1) ORDER BY created_at ASC, id ASC`
	var jobs []models.SchedulingJob
	if err := r.db.SelectContext(ctx, &jobs, query, statusArray(statuses)); err != nil {
		return nil, fmt.Errorf("list scheduling jobs by status: %w", err)
	}
	return jobs, nil
}

// MarkRunning moves a PENDING job to RUNNING. It reports false when the job was no
// longer pending, for example because it was cancelled while queued.
func (r *SchedulingJobRepository) MarkRunning(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	const query = `UPDATE scheduling_jobs SET status = $1, started_at = $2, progress = 0 WHERE id = $3 AND status = ANY($4)`
	result, err := r.db.ExecContext(ctx, query, string(models.SchedulingStatusRunning), startedAt, id,
		statusArray(models.TransitionSources(models.SchedulingStatusRunning)))
	if err != nil {
		return false, fmt.Errorf("mark scheduling job running: %w", err)
	}
	return affectedOne(result, "mark scheduling job running")
}

// UpdateProgress raises the stored progress; it never lowers it.
func (r *SchedulingJobRepository) UpdateProgress(ctx context.Context, id string, progress int) error {
	const query = `UPDATE scheduling_jobs SET progress = GREATEST(progress, $1) WHERE id = $2 AND status = $3`
	if _, err := r.db.ExecContext(ctx, query, progress, id, string(models.SchedulingStatusRunning)); err != nil {
		return fmt.Errorf("update scheduling job progress: %w", err)
	}
	return nil
}

// Finish writes a terminal status together with the run results. The update only applies
// when the current status may transition to job.Status.
func (r *SchedulingJobRepository) Finish(ctx context.Context, exec sqlx.ExtContext, job *models.SchedulingJob) (bool, error) {
	if job == nil || !job.Status.IsTerminal() {
		return false, fmt.Errorf("finish requires a terminal status")
	}
	if job.CompletedAt == nil {
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
	if job.FailedCourses == nil {
		job.FailedCourses = models.FailedCourses{}
	}

	const query = `UPDATE scheduling_jobs SET status = $1, progress = GREATEST(progress, $2), quality_score = $3,
scheduled_courses = $4, total_courses = $5, failed_courses = $6, iterations = $7, timed_out = $8,
error_message = $9, completed_at = $10, duration_ms = $11
WHERE id = $12 AND status = ANY($13)`
	result, err := r.exec(exec).ExecContext(ctx, query,
		string(job.Status), job.Progress, job.QualityScore,
		job.ScheduledCourses, job.TotalCourses, job.FailedCourses, job.Iterations, job.TimedOut,
		job.ErrorMessage, *job.CompletedAt, job.DurationMillis,
		job.ID, statusArray(models.TransitionSources(job.Status)))
	if err != nil {
		return false, fmt.Errorf("finish scheduling job: %w", err)
	}
	return affectedOne(result, "finish scheduling job")
}

func statusArray(statuses []models.SchedulingStatus) interface{} {
	values := make([]string, len(statuses))
	for i, status := range statuses {
		values[i] = string(status)
	}
	return pq.Array(values)
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func affectedOne(result rowsAffecter, op string) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return affected > 0, nil
}
