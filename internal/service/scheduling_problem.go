package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
)

type schedulingCourseReader interface {
	ListCourses(ctx context.Context, semesterID string, classroomIDs []string) ([]models.Course, error)
	ListPeriods(ctx context.Context) ([]models.Period, error)
	ListRooms(ctx context.Context) ([]models.Room, error)
}

type instructorConstraintLister interface {
	List(ctx context.Context, instructorIDs []string) ([]models.InstructorConstraint, error)
}

type lockedSlotLister interface {
	ListBySemester(ctx context.Context, semesterID string) ([]models.LockedSlot, error)
}

type semesterEntryLister interface {
	ListActiveBySemester(ctx context.Context, semesterID string) ([]models.TimetableEntry, error)
}

// SchedulingDefaults fill in run settings a request leaves out.
type SchedulingDefaults struct {
	Timeout       time.Duration
	MaxTimeout    time.Duration
	MaxIterations int
	MaxBacktrack  int
	Days          []models.Day
}

func (d SchedulingDefaults) withFallbacks() SchedulingDefaults {
	if d.Timeout <= 0 {
		d.Timeout = 300 * time.Second
	}
	if d.MaxTimeout <= 0 || d.MaxTimeout < d.Timeout {
		d.MaxTimeout = d.Timeout
	}
	if d.MaxIterations <= 0 {
		d.MaxIterations = 10000
	}
	if d.MaxBacktrack <= 0 {
		d.MaxBacktrack = 3
	}
	if len(d.Days) == 0 {
		d.Days = append([]models.Day(nil), models.DefaultSchoolDays...)
	}
	return d
}

// normalizeConfig returns the config that is persisted with the job: every tunable is explicit.
func (d SchedulingDefaults) normalizeConfig(cfg models.SchedulingConfig) models.SchedulingConfig {
	maxSeconds := int(d.MaxTimeout / time.Second)
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = int(d.Timeout / time.Second)
	}
	if cfg.TimeoutSeconds > maxSeconds {
		cfg.TimeoutSeconds = maxSeconds
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = d.MaxIterations
	}
	if cfg.MaxBacktrack <= 0 {
		cfg.MaxBacktrack = d.MaxBacktrack
	}
	if len(cfg.Days) == 0 {
		cfg.Days = append([]models.Day(nil), d.Days...)
	}
	if cfg.Weights == nil || cfg.Weights.IsZero() {
		weights := models.DefaultQualityWeights()
		cfg.Weights = &weights
	}
	return cfg
}

func engineOptions(algorithm models.SchedulingAlgorithm, cfg models.SchedulingConfig) scheduler.Options {
	opts := scheduler.Options{
		Algorithm:     algorithm,
		Timeout:       time.Duration(cfg.TimeoutSeconds) * time.Second,
		MaxIterations: cfg.MaxIterations,
		MaxBacktrack:  cfg.MaxBacktrack,
	}
	if cfg.Weights != nil {
		opts.Weights = *cfg.Weights
	}
	return opts
}

// ProblemLoader reads everything a run needs from the store.
type ProblemLoader struct {
	courses     schedulingCourseReader
	instructors instructorConstraintLister
	locks       lockedSlotLister
	entries     semesterEntryLister
}

// NewProblemLoader wires the loader.
func NewProblemLoader(courses schedulingCourseReader, instructors instructorConstraintLister, locks lockedSlotLister, entries semesterEntryLister) *ProblemLoader {
	return &ProblemLoader{courses: courses, instructors: instructors, locks: locks, entries: entries}
}

// Load fetches the reference data concurrently and then the constraints of the instructors
// teaching the loaded courses.
func (l *ProblemLoader) Load(ctx context.Context, semesterID string, classroomIDs []string, cfg models.SchedulingConfig) (scheduler.Problem, error) {
	problem := scheduler.Problem{
		SemesterID:     semesterID,
		Days:           cfg.Days,
		ForceOverwrite: cfg.ForceOverwrite,
		Instructors:    make(map[string]models.InstructorConstraint),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		courses, err := l.courses.ListCourses(gctx, semesterID, classroomIDs)
		if err != nil {
			return fmt.Errorf("load courses: %w", err)
		}
		problem.Courses = courses
		return nil
	})
	g.Go(func() error {
		periods, err := l.courses.ListPeriods(gctx)
		if err != nil {
			return fmt.Errorf("load periods: %w", err)
		}
		problem.Periods = periods
		return nil
	})
	g.Go(func() error {
		rooms, err := l.courses.ListRooms(gctx)
		if err != nil {
			return fmt.Errorf("load rooms: %w", err)
		}
		problem.Rooms = rooms
		return nil
	})
	g.Go(func() error {
		locks, err := l.locks.ListBySemester(gctx, semesterID)
		if err != nil {
			return fmt.Errorf("load locked slots: %w", err)
		}
		problem.LockedSlots = locks
		return nil
	})
	g.Go(func() error {
		entries, err := l.entries.ListActiveBySemester(gctx, semesterID)
		if err != nil {
			return fmt.Errorf("load timetable entries: %w", err)
		}
		problem.ExistingEntries = entries
		return nil
	})
	if err := g.Wait(); err != nil {
		return scheduler.Problem{}, err
	}

	instructorIDs := collectInstructorIDs(problem.Courses, problem.ExistingEntries, problem.LockedSlots)
	if len(instructorIDs) > 0 {
		constraints, err := l.instructors.List(ctx, instructorIDs)
		if err != nil {
			return scheduler.Problem{}, fmt.Errorf("load instructor constraints: %w", err)
		}
		for _, constraint := range constraints {
			problem.Instructors[constraint.InstructorID] = constraint
		}
	}
	return problem, nil
}

func collectInstructorIDs(courses []models.Course, entries []models.TimetableEntry, locks []models.LockedSlot) []string {
	seen := make(map[string]struct{})
	for _, course := range courses {
		for _, id := range course.InstructorIDs {
			seen[id] = struct{}{}
		}
	}
	for _, entry := range entries {
		for _, id := range entry.InstructorIDs {
			seen[id] = struct{}{}
		}
	}
	for _, lock := range locks {
		if lock.InstructorID != nil {
			seen[*lock.InstructorID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
