package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
)

// SchedulingJobType tags scheduling runs in the dispatch queue.
const SchedulingJobType = "auto-schedule"

type schedulingJobStore interface {
	Create(ctx context.Context, job *models.SchedulingJob) error
	FindByID(ctx context.Context, id string) (*models.SchedulingJob, error)
	List(ctx context.Context, filter models.SchedulingJobFilter) ([]models.SchedulingJob, error)
	Count(ctx context.Context, filter models.SchedulingJobFilter) (int, error)
	ListByStatus(ctx context.Context, statuses ...models.SchedulingStatus) ([]models.SchedulingJob, error)
	MarkRunning(ctx context.Context, id string, startedAt time.Time) (bool, error)
	UpdateProgress(ctx context.Context, id string, progress int) error
	Finish(ctx context.Context, exec sqlx.ExtContext, job *models.SchedulingJob) (bool, error)
}

type problemLoader interface {
	Load(ctx context.Context, semesterID string, classroomIDs []string, cfg models.SchedulingConfig) (scheduler.Problem, error)
}

type schedulingDispatcher interface {
	Enqueue(job jobs.Job) error
	Remove(jobID string) bool
}

type schedulingMetrics interface {
	ObserveSchedulingJob(job *models.SchedulingJob)
}

// RunRegistry tracks the cancel functions of runs executing in this process.
type RunRegistry struct {
	mu   sync.Mutex
	runs map[string]context.CancelFunc
}

// NewRunRegistry creates an empty registry.
func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[string]context.CancelFunc)}
}

func (r *RunRegistry) register(jobID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[jobID] = cancel
}

func (r *RunRegistry) unregister(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, jobID)
}

// Cancel signals the run and reports whether it executes in this process.
func (r *RunRegistry) Cancel(jobID string) bool {
	r.mu.Lock()
	cancel, ok := r.runs[jobID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Active returns how many runs are executing.
func (r *RunRegistry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

// SchedulingService accepts scheduling requests and manages the job lifecycle. Runs execute
// asynchronously in SchedulingWorker.
type SchedulingService struct {
	jobs      schedulingJobStore
	loader    problemLoader
	queue     schedulingDispatcher
	runs      *RunRegistry
	metrics   schedulingMetrics
	defaults  SchedulingDefaults
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewSchedulingService constructs the service.
func NewSchedulingService(
	jobStore schedulingJobStore,
	loader problemLoader,
	queue schedulingDispatcher,
	runs *RunRegistry,
	metrics schedulingMetrics,
	defaults SchedulingDefaults,
	validate *validator.Validate,
	logger *zap.Logger,
) *SchedulingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if runs == nil {
		runs = NewRunRegistry()
	}
	return &SchedulingService{
		jobs:      jobStore,
		loader:    loader,
		queue:     queue,
		runs:      runs,
		metrics:   metrics,
		defaults:  defaults.withFallbacks(),
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateJob validates the request, stores a PENDING job and hands it to the dispatcher. Unless
// allow_partial is set, input that cannot possibly be scheduled is rejected before a job exists.
func (s *SchedulingService) CreateJob(ctx context.Context, req dto.AutoScheduleRequest, actorID string) (*dto.AutoScheduleResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid auto-schedule payload")
	}
	algorithm := models.SchedulingAlgorithm(req.Algorithm)
	if algorithm == "" {
		algorithm = models.AlgorithmHybrid
	}
	days, err := parseDays(req.Config.Days)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	cfg := s.defaults.normalizeConfig(models.SchedulingConfig{
		ForceOverwrite:  req.Config.ForceOverwrite,
		AllowPartial:    req.Config.AllowPartial,
		TimeoutSeconds:  req.Config.TimeoutSeconds,
		MaxIterations:   req.Config.MaxIterations,
		MaxBacktrack:    req.Config.MaxBacktrack,
		MinQualityScore: req.Config.MinQualityScore,
		Days:            days,
		Weights:         req.Config.Weights,
	})
	classroomIDs := uniqueSorted(req.ClassroomIDs)

	if !cfg.AllowPartial {
		problem, err := s.loader.Load(ctx, req.SemesterID, classroomIDs, cfg)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scheduling input")
		}
		if conflicts := scheduler.CheckFeasibility(problem); len(conflicts) > 0 {
			message := (&scheduler.FeasibilityError{Conflicts: conflicts}).Error()
			return nil, appErrors.Clone(appErrors.ErrSchedulingInfeasible, message).WithDetails(conflicts)
		}
	}

	job := &models.SchedulingJob{
		SemesterID:   req.SemesterID,
		ClassroomIDs: classroomIDs,
		Algorithm:    algorithm,
		Status:       models.SchedulingStatusPending,
		Config:       cfg,
		CreatedAt:    s.now().UTC(),
	}
	if actorID != "" {
		job.CreatedBy = &actorID
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create scheduling job")
	}

	if err := s.enqueue(job); err != nil {
		message := "failed to enqueue job"
		s.fail(ctx, job, message)
		if errors.Is(err, jobs.ErrQueueFull) {
			return nil, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "scheduling queue is full")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue scheduling job")
	}

	s.logger.Sugar().Infow("scheduling job queued", "job_id", job.ID, "semester_id", job.SemesterID,
		"classrooms", len(job.ClassroomIDs), "algorithm", job.Algorithm, "actor", actorID)
	return &dto.AutoScheduleResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "scheduling job queued",
	}, nil
}

// GetJob returns one job.
func (s *SchedulingService) GetJob(ctx context.Context, id string) (*dto.SchedulingJobResponse, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := dto.NewSchedulingJobResponse(*job)
	return &resp, nil
}

// ListJobs returns one page of the newest jobs matching the query.
func (s *SchedulingService) ListJobs(ctx context.Context, query dto.SchedulingJobQuery) ([]dto.SchedulingJobResponse, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid job query")
	}
	page := query.Page
	if page < 1 {
		page = 1
	}
	filter := models.SchedulingJobFilter{
		SemesterID: query.SemesterID,
		Status:     models.SchedulingStatus(query.Status),
		Limit:      query.Limit,
	}
	filter.Offset = (page - 1) * filter.PageSize()

	total, err := s.jobs.Count(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count scheduling jobs")
	}
	list, err := s.jobs.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list scheduling jobs")
	}
	out := make([]dto.SchedulingJobResponse, 0, len(list))
	for _, job := range list {
		out = append(out, dto.NewSchedulingJobResponse(job))
	}
	return out, models.NewPagination(page, filter.PageSize(), total), nil
}

// CancelJob stops a job. A PENDING job is cancelled at once; a RUNNING job is signalled and
// its worker records CANCELLED after the current placement step.
func (s *SchedulingService) CancelJob(ctx context.Context, id string) (*dto.SchedulingJobResponse, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, appErrors.Clone(appErrors.ErrJobTerminal, fmt.Sprintf("scheduling job is already %s", job.Status))
	}

	if job.Status == models.SchedulingStatusPending {
		s.queue.Remove(job.ID)
		ok, err := s.finish(ctx, job, models.SchedulingStatusCancelled, "cancelled before start")
		if err != nil {
			return nil, err
		}
		if !ok {
			// The worker picked it up in the meantime.
			s.runs.Cancel(job.ID)
		}
	} else if !s.runs.Cancel(job.ID) {
		// No worker in this process owns the run, so record the cancellation directly. A worker
		// elsewhere will find the job terminal and discard its placements.
		if _, err := s.finish(ctx, job, models.SchedulingStatusCancelled, "cancelled"); err != nil {
			return nil, err
		}
	}

	s.logger.Sugar().Infow("scheduling job cancellation requested", "job_id", job.ID, "status", job.Status)
	return s.GetJob(ctx, id)
}

// RecoverJobs runs at startup: RUNNING jobs left behind by a previous process are failed and
// PENDING jobs are queued again.
func (s *SchedulingService) RecoverJobs(ctx context.Context) error {
	running, err := s.jobs.ListByStatus(ctx, models.SchedulingStatusRunning)
	if err != nil {
		return fmt.Errorf("list running scheduling jobs: %w", err)
	}
	for i := range running {
		s.fail(ctx, &running[i], "interrupted: the service restarted before the run finished")
	}

	pending, err := s.jobs.ListByStatus(ctx, models.SchedulingStatusPending)
	if err != nil {
		return fmt.Errorf("list pending scheduling jobs: %w", err)
	}
	requeued := 0
	for i := range pending {
		if err := s.enqueue(&pending[i]); err != nil {
			s.logger.Sugar().Warnw("failed to requeue scheduling job", "job_id", pending[i].ID, "error", err)
			continue
		}
		requeued++
	}
	s.logger.Sugar().Infow("scheduling jobs recovered", "interrupted", len(running), "requeued", requeued)
	return nil
}

func (s *SchedulingService) enqueue(job *models.SchedulingJob) error {
	return s.queue.Enqueue(jobs.Job{
		ID:       job.ID,
		Type:     SchedulingJobType,
		Keys:     job.DispatchKeys(),
		Enqueued: job.CreatedAt,
	})
}

func (s *SchedulingService) load(ctx context.Context, id string) (*models.SchedulingJob, error) {
	job, err := s.jobs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "scheduling job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scheduling job")
	}
	return job, nil
}

func (s *SchedulingService) finish(ctx context.Context, job *models.SchedulingJob, status models.SchedulingStatus, message string) (bool, error) {
	now := s.now().UTC()
	job.Status = status
	job.CompletedAt = &now
	if message != "" {
		job.ErrorMessage = &message
	}
	ok, err := s.jobs.Finish(ctx, nil, job)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update scheduling job")
	}
	if ok && s.metrics != nil {
		s.metrics.ObserveSchedulingJob(job)
	}
	return ok, nil
}

func (s *SchedulingService) fail(ctx context.Context, job *models.SchedulingJob, message string) {
	if _, err := s.finish(ctx, job, models.SchedulingStatusFailed, message); err != nil {
		s.logger.Sugar().Warnw("failed to mark scheduling job failed", "job_id", job.ID, "error", err)
	}
}

func uniqueSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}
