package dto

import (
	"time"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// AutoScheduleConfig tunes a scheduling run. Omitted values take service defaults.
type AutoScheduleConfig struct {
	ForceOverwrite  bool                   `json:"force_overwrite"`
	AllowPartial    bool                   `json:"allow_partial"`
	TimeoutSeconds  int                    `json:"timeout_seconds" validate:"omitempty,min=1"`
	MaxIterations   int                    `json:"max_iterations" validate:"omitempty,min=1"`
	MaxBacktrack    int                    `json:"max_backtrack" validate:"omitempty,min=1,max=32"`
	MinQualityScore float64                `json:"min_quality_score" validate:"omitempty,min=0,max=100"`
	Days            []string               `json:"days" validate:"omitempty,max=7,dive,required"`
	Weights         *models.QualityWeights `json:"weights,omitempty"`
}

// AutoScheduleRequest asks for an asynchronous scheduling run.
type AutoScheduleRequest struct {
	SemesterID   string             `json:"semester_id" validate:"required"`
	ClassroomIDs []string           `json:"classroom_ids" validate:"required,min=1,max=200,dive,required"`
	Algorithm    string             `json:"algorithm" validate:"omitempty,oneof=GREEDY BACKTRACKING HYBRID"`
	Config       AutoScheduleConfig `json:"config"`
}

// AutoScheduleResponse acknowledges a queued run.
type AutoScheduleResponse struct {
	JobID   string                  `json:"job_id"`
	Status  models.SchedulingStatus `json:"status"`
	Message string                  `json:"message"`
}

// SchedulingJobQuery filters job listings.
type SchedulingJobQuery struct {
	SemesterID string `form:"semester_id"`
	Status     string `form:"status" validate:"omitempty,oneof=PENDING RUNNING COMPLETED FAILED CANCELLED"`
	Limit      int    `form:"limit" validate:"omitempty,min=1,max=100"`
	Page       int    `form:"page" validate:"omitempty,min=1"`
}

// SchedulingJobResponse is the polling view of a job.
type SchedulingJobResponse struct {
	ID               string                     `json:"id"`
	SemesterID       string                     `json:"academic_semester_id"`
	ClassroomIDs     []string                   `json:"classroom_ids"`
	Algorithm        models.SchedulingAlgorithm `json:"algorithm"`
	Status           models.SchedulingStatus    `json:"status"`
	Config           models.SchedulingConfig    `json:"config"`
	Progress         int                        `json:"progress"`
	QualityScore     *float64                   `json:"quality_score,omitempty"`
	ScheduledCourses int                        `json:"scheduled_courses"`
	TotalCourses     int                        `json:"total_courses"`
	FailedCourses    []models.FailedCourse      `json:"failed_courses"`
	Iterations       int                        `json:"iterations"`
	TimedOut         bool                       `json:"timed_out"`
	ErrorMessage     *string                    `json:"error_message,omitempty"`
	CreatedBy        *string                    `json:"created_by,omitempty"`
	CreatedAt        time.Time                  `json:"created_at"`
	StartedAt        *time.Time                 `json:"started_at,omitempty"`
	CompletedAt      *time.Time                 `json:"completed_at,omitempty"`
	DurationMillis   *int64                     `json:"duration_ms,omitempty"`
}

// NewSchedulingJobResponse projects a stored job.
func NewSchedulingJobResponse(job models.SchedulingJob) SchedulingJobResponse {
	failed := []models.FailedCourse(job.FailedCourses)
	if failed == nil {
		failed = []models.FailedCourse{}
	}
	classrooms := []string(job.ClassroomIDs)
	if classrooms == nil {
		classrooms = []string{}
	}
	return SchedulingJobResponse{
		ID:               job.ID,
		SemesterID:       job.SemesterID,
		ClassroomIDs:     classrooms,
		Algorithm:        job.Algorithm,
		Status:           job.Status,
		Config:           job.Config,
		Progress:         job.Progress,
		QualityScore:     job.QualityScore,
		ScheduledCourses: job.ScheduledCourses,
		TotalCourses:     job.TotalCourses,
		FailedCourses:    failed,
		Iterations:       job.Iterations,
		TimedOut:         job.TimedOut,
		ErrorMessage:     job.ErrorMessage,
		CreatedBy:        job.CreatedBy,
		CreatedAt:        job.CreatedAt,
		StartedAt:        job.StartedAt,
		CompletedAt:      job.CompletedAt,
		DurationMillis:   job.DurationMillis,
	}
}
