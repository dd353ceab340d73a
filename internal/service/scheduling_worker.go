package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
)

type scheduleEngine interface {
	Schedule(ctx context.Context, p scheduler.Problem, opts scheduler.Options) (*scheduler.Result, error)
}

type schedulingEntryWriter interface {
	ListActiveAtSlots(ctx context.Context, exec sqlx.ExtContext, semesterID string, slots []models.TimeSlot) ([]models.TimetableEntry, error)
	LockSlots(ctx context.Context, tx sqlx.ExtContext, semesterID string, slots []models.TimeSlot) error
	BulkInsert(ctx context.Context, tx sqlx.ExtContext, entries []models.TimetableEntry) error
	Deactivate(ctx context.Context, exec sqlx.ExtContext, ids []string, at time.Time) (int64, error)
	DeactivateCourseEntries(ctx context.Context, exec sqlx.ExtContext, semesterID string, courseIDs []string, at time.Time) (int64, error)
}

// errRunSuperseded means the job left RUNNING while the worker was committing.
var errRunSuperseded = errors.New("scheduling job is no longer running")

// SchedulingWorker executes queued scheduling jobs. A run's placements are written in a
// single transaction together with the COMPLETED status, so a job never ends half-applied.
type SchedulingWorker struct {
	jobs    schedulingJobStore
	loader  problemLoader
	engine  scheduleEngine
	entries schedulingEntryWriter
	tx      txProvider
	runs    *RunRegistry
	refresh RefreshPublisher
	metrics schedulingMetrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewSchedulingWorker wires the worker. refresh and metrics may be nil.
func NewSchedulingWorker(
	jobStore schedulingJobStore,
	loader problemLoader,
	engine scheduleEngine,
	entries schedulingEntryWriter,
	tx txProvider,
	runs *RunRegistry,
	refresh RefreshPublisher,
	metrics schedulingMetrics,
	logger *zap.Logger,
) *SchedulingWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if runs == nil {
		runs = NewRunRegistry()
	}
	return &SchedulingWorker{
		jobs:    jobStore,
		loader:  loader,
		engine:  engine,
		entries: entries,
		tx:      tx,
		runs:    runs,
		refresh: refresh,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Handle processes a dequeued job. Run failures are recorded on the job and not returned.
func (w *SchedulingWorker) Handle(ctx context.Context, queued jobs.Job) error {
	job, err := w.jobs.FindByID(ctx, queued.ID)
	if err != nil {
		return fmt.Errorf("load scheduling job %s: %w", queued.ID, err)
	}
	if job.Status != models.SchedulingStatusPending {
		w.logger.Sugar().Infow("skipping scheduling job", "job_id", job.ID, "status", job.Status)
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.runs.register(job.ID, cancel)
	defer func() {
		w.runs.unregister(job.ID)
		cancel()
	}()

	started := w.now().UTC()
	ok, err := w.jobs.MarkRunning(ctx, job.ID, started)
	if err != nil {
		return fmt.Errorf("start scheduling job %s: %w", job.ID, err)
	}
	if !ok {
		w.logger.Sugar().Infow("scheduling job left pending before start", "job_id", job.ID)
		return nil
	}
	job.Status = models.SchedulingStatusRunning
	job.StartedAt = &started
	w.logger.Sugar().Infow("scheduling job started", "job_id", job.ID, "semester_id", job.SemesterID, "algorithm", job.Algorithm)

	w.execute(ctx, runCtx, job)
	return nil
}

func (w *SchedulingWorker) execute(ctx, runCtx context.Context, job *models.SchedulingJob) {
	problem, err := w.loader.Load(runCtx, job.SemesterID, job.ClassroomIDs, job.Config)
	if err != nil {
		if runCtx.Err() != nil {
			w.interrupted(ctx, job)
			return
		}
		w.finish(ctx, job, models.SchedulingStatusFailed, "failed to load scheduling input: "+err.Error())
		return
	}

	opts := engineOptions(job.Algorithm, job.Config)
	persisted := 0
	opts.Progress = func(done, total int) {
		if total <= 0 {
			return
		}
		progress := done * 100 / total
		if progress > 99 {
			progress = 99
		}
		if progress <= persisted {
			return
		}
		persisted = progress
		if err := w.jobs.UpdateProgress(ctx, job.ID, progress); err != nil {
			w.logger.Sugar().Warnw("failed to persist scheduling progress", "job_id", job.ID, "error", err)
		}
	}

	result, err := w.engine.Schedule(runCtx, problem, opts)
	if result != nil {
		applyResult(job, result)
	}
	switch {
	case errors.Is(err, scheduler.ErrCancelled):
		w.interrupted(ctx, job)
		return
	case err != nil:
		w.finish(ctx, job, models.SchedulingStatusFailed, "scheduling failed: "+err.Error())
		return
	}
	if reason := rejection(job.Config, result); reason != "" {
		w.finish(ctx, job, models.SchedulingStatusFailed, reason)
		return
	}
	if runCtx.Err() != nil {
		w.interrupted(ctx, job)
		return
	}

	if err := w.commit(ctx, job, result); err != nil {
		var conflict *commitConflictError
		switch {
		case errors.Is(err, errRunSuperseded):
			w.logger.Sugar().Infow("scheduling job changed state during commit; placements discarded", "job_id", job.ID)
		case errors.As(err, &conflict):
			w.finish(ctx, job, models.SchedulingStatusFailed, conflict.Error())
		default:
			w.finish(ctx, job, models.SchedulingStatusFailed, "failed to save timetable: "+err.Error())
		}
		return
	}

	w.observe(job)
	w.logger.Sugar().Infow("scheduling job completed", "job_id", job.ID, "scheduled", job.ScheduledCourses,
		"total", job.TotalCourses, "quality", result.QualityScore, "duration_ms", durationValue(job.DurationMillis))
	if w.refresh != nil {
		userID := ""
		if job.CreatedBy != nil {
			userID = *job.CreatedBy
		}
		if err := w.refresh.PublishRefresh(ctx, job.SemesterID, userID); err != nil {
			w.logger.Warn("failed to publish timetable refresh", zap.String("semester_id", job.SemesterID), zap.Error(err))
		}
	}
}

// interrupted distinguishes a user cancellation from a worker shutdown.
func (w *SchedulingWorker) interrupted(ctx context.Context, job *models.SchedulingJob) {
	if ctx.Err() != nil {
		persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		w.finish(persistCtx, job, models.SchedulingStatusFailed, "interrupted by shutdown")
		return
	}
	w.finish(ctx, job, models.SchedulingStatusCancelled, "cancelled")
}

type commitConflictError struct {
	conflicts int
}

func (e *commitConflictError) Error() string {
	return fmt.Sprintf("timetable changed while the job was running: %d conflicting entries", e.conflicts)
}

func (w *SchedulingWorker) commit(ctx context.Context, job *models.SchedulingJob, result *scheduler.Result) (err error) {
	entries := placementEntries(job, result.Placements)
	slots := entrySlots(entries)

	tx, err := w.tx.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = w.entries.LockSlots(ctx, tx, job.SemesterID, slots); err != nil {
		return err
	}
	at := w.now().UTC()
	if job.Config.ForceOverwrite {
		if _, err = w.entries.DeactivateCourseEntries(ctx, tx, job.SemesterID, placedCourseIDs(result.Placements), at); err != nil {
			return err
		}
	}

	existing, err := w.entries.ListActiveAtSlots(ctx, tx, job.SemesterID, slots)
	if err != nil {
		return err
	}
	var collisions []models.TimetableConflict
	for _, entry := range entries {
		collisions = append(collisions, DetectConflicts(entry, existing)...)
	}
	if len(collisions) > 0 {
		replaceable, foreign := splitByScope(collisions, job.ClassroomIDs)
		if !job.Config.ForceOverwrite {
			foreign = append(foreign, replaceable...)
		}
		if len(foreign) > 0 {
			err = &commitConflictError{conflicts: len(conflictingIDs(foreign))}
			return err
		}
		if _, err = w.entries.Deactivate(ctx, tx, conflictingIDs(replaceable), at); err != nil {
			return err
		}
	}

	if err = w.entries.BulkInsert(ctx, tx, entries); err != nil {
		return err
	}

	completed := w.now().UTC()
	job.Status = models.SchedulingStatusCompleted
	job.Progress = 100
	job.CompletedAt = &completed
	job.DurationMillis = elapsedMillis(job.StartedAt, completed)
	ok, err := w.jobs.Finish(ctx, tx, job)
	if err != nil {
		return err
	}
	if !ok {
		err = errRunSuperseded
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// splitByScope separates collisions with entries of the job's own classrooms, which a forced
// run may replace, from collisions with entries of any other classroom.
func splitByScope(conflicts []models.TimetableConflict, classroomIDs []string) (inScope, outOfScope []models.TimetableConflict) {
	scope := make(map[string]struct{}, len(classroomIDs))
	for _, id := range classroomIDs {
		scope[id] = struct{}{}
	}
	for _, conflict := range conflicts {
		if conflict.ExistingEntry == nil {
			continue
		}
		if _, ok := scope[conflict.ExistingEntry.ClassroomID]; ok {
			inScope = append(inScope, conflict)
			continue
		}
		outOfScope = append(outOfScope, conflict)
	}
	return inScope, outOfScope
}

func (w *SchedulingWorker) finish(ctx context.Context, job *models.SchedulingJob, status models.SchedulingStatus, message string) {
	completed := w.now().UTC()
	job.Status = status
	job.CompletedAt = &completed
	job.DurationMillis = elapsedMillis(job.StartedAt, completed)
	if message != "" {
		job.ErrorMessage = &message
	}
	ok, err := w.jobs.Finish(ctx, nil, job)
	if err != nil {
		w.logger.Sugar().Warnw("failed to record scheduling job outcome", "job_id", job.ID, "status", status, "error", err)
		return
	}
	if !ok {
		w.logger.Sugar().Infow("scheduling job already terminal", "job_id", job.ID)
		return
	}
	w.observe(job)
	w.logger.Sugar().Infow("scheduling job finished", "job_id", job.ID, "status", status, "reason", message)
}

func (w *SchedulingWorker) observe(job *models.SchedulingJob) {
	if w.metrics != nil {
		w.metrics.ObserveSchedulingJob(job)
	}
}

func applyResult(job *models.SchedulingJob, result *scheduler.Result) {
	score := result.QualityScore
	job.QualityScore = &score
	job.ScheduledCourses = result.ScheduledCourses
	job.TotalCourses = result.TotalCourses
	job.FailedCourses = models.FailedCourses(result.FailedCourses)
	job.Iterations = result.Iterations
	job.TimedOut = result.TimedOut
}

// rejection returns why a finished run must not be committed.
func rejection(cfg models.SchedulingConfig, result *scheduler.Result) string {
	if result.TimedOut && !cfg.AllowPartial {
		return fmt.Sprintf("scheduling timed out after %ds with %d of %d courses placed",
			cfg.TimeoutSeconds, result.ScheduledCourses, result.TotalCourses)
	}
	if len(result.FailedCourses) > 0 && !cfg.AllowPartial {
		return fmt.Sprintf("%d of %d courses could not be scheduled", len(result.FailedCourses), result.TotalCourses)
	}
	if result.QualityScore < cfg.MinQualityScore {
		return fmt.Sprintf("quality score %.2f is below the required minimum %.2f", result.QualityScore, cfg.MinQualityScore)
	}
	return ""
}

func placementEntries(job *models.SchedulingJob, placements []scheduler.Placement) []models.TimetableEntry {
	entries := make([]models.TimetableEntry, 0, len(placements))
	jobID := job.ID
	for _, placement := range placements {
		courseID := placement.CourseID
		subjectID := placement.SubjectID
		instructors := append([]string(nil), placement.InstructorIDs...)
		sort.Strings(instructors)
		entry := models.TimetableEntry{
			SemesterID:        job.SemesterID,
			ClassroomID:       placement.ClassroomID,
			Day:               placement.Day,
			PeriodID:          placement.PeriodID,
			EntryType:         models.EntryTypeCourse,
			ClassroomCourseID: &courseID,
			SubjectID:         &subjectID,
			InstructorIDs:     instructors,
			IsActive:          true,
			JobID:             &jobID,
			CreatedBy:         job.CreatedBy,
		}
		if placement.RoomID != "" {
			roomID := placement.RoomID
			entry.RoomID = &roomID
		}
		entries = append(entries, entry)
	}
	return entries
}

func entrySlots(entries []models.TimetableEntry) []models.TimeSlot {
	seen := make(map[models.TimeSlot]struct{}, len(entries))
	slots := make([]models.TimeSlot, 0, len(entries))
	for _, entry := range entries {
		slot := entry.Slot()
		if _, ok := seen[slot]; ok {
			continue
		}
		seen[slot] = struct{}{}
		slots = append(slots, slot)
	}
	return slots
}

func placedCourseIDs(placements []scheduler.Placement) []string {
	ids := make([]string, 0, len(placements))
	for _, placement := range placements {
		ids = append(ids, placement.CourseID)
	}
	return uniqueSorted(ids)
}

func elapsedMillis(started *time.Time, completed time.Time) *int64 {
	if started == nil {
		return nil
	}
	ms := completed.Sub(*started).Milliseconds()
	return &ms
}

func durationValue(ms *int64) int64 {
	if ms == nil {
		return 0
	}
	return *ms
}
