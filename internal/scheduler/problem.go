// Package scheduler places courses into a weekly timetable grid. It performs no I/O: callers
// load a Problem, run the Engine and persist the Result themselves.
package scheduler

import (
	"errors"
	"sort"
	"time"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// ErrCancelled is returned when the context is cancelled between placement steps.
var ErrCancelled = errors.New("scheduling cancelled")

// fixedOwner marks occupancy that no run may move (locked slots, existing entries).
const fixedOwner = "#fixed"

// Problem is everything a scheduling run reads.
type Problem struct {
	SemesterID      string                                 `yaml:"semester_id"`
	Days            []models.Day                           `yaml:"days"`
	Periods         []models.Period                        `yaml:"periods"`
	Rooms           []models.Room                          `yaml:"rooms"`
	Courses         []models.Course                        `yaml:"courses"`
	Instructors     map[string]models.InstructorConstraint `yaml:"instructors"`
	LockedSlots     []models.LockedSlot                    `yaml:"locked_slots"`
	ExistingEntries []models.TimetableEntry                `yaml:"-"`
	ForceOverwrite  bool                                   `yaml:"force_overwrite"`
}

// Options tunes a run.
type Options struct {
	Algorithm     models.SchedulingAlgorithm
	Timeout       time.Duration
	MaxIterations int
	MaxBacktrack  int
	Weights       models.QualityWeights
	Progress      func(done, total int)
}

func (o Options) withDefaults() Options {
	if !o.Algorithm.Valid() {
		o.Algorithm = models.AlgorithmBacktracking
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = 10000
	}
	if o.MaxBacktrack <= 0 {
		o.MaxBacktrack = 3
	}
	if o.Weights.IsZero() {
		o.Weights = models.DefaultQualityWeights()
	}
	return o
}

// Placement assigns one course period to a slot.
type Placement struct {
	CourseID      string     `json:"course_id" yaml:"course_id"`
	SubjectID     string     `json:"subject_id" yaml:"subject_id"`
	ClassroomID   string     `json:"classroom_id" yaml:"classroom_id"`
	InstructorIDs []string   `json:"instructor_ids" yaml:"instructor_ids"`
	Day           models.Day `json:"day_of_week" yaml:"day"`
	PeriodID      string     `json:"period_id" yaml:"period_id"`
	RoomID        string     `json:"room_id,omitempty" yaml:"room_id,omitempty"`
}

// Result is the outcome of a run.
type Result struct {
	Placements       []Placement           `json:"placements" yaml:"placements"`
	FailedCourses    []models.FailedCourse `json:"failed_courses" yaml:"failed_courses"`
	QualityScore     float64               `json:"quality_score" yaml:"quality_score"`
	ScheduledCourses int                   `json:"scheduled_courses" yaml:"scheduled_courses"`
	TotalCourses     int                   `json:"total_courses" yaml:"total_courses"`
	Iterations       int                   `json:"iterations" yaml:"iterations"`
	TimedOut         bool                  `json:"timed_out" yaml:"timed_out"`
	Duration         time.Duration         `json:"duration" yaml:"duration"`
}

// courseDemand is a course with what is still missing this week.
type courseDemand struct {
	course     models.Course
	needed     int
	blocks     []int
	splittable bool
	invalid    error
	usedDays   map[models.Day]bool
}

// index is the immutable, pre-sorted view of a Problem.
type index struct {
	semesterID string
	days       []models.Day
	periods    []models.Period
	periodPos  map[string]int
	morning    map[string]bool
	rooms      []models.Room
	roomByID   map[string]models.Room

	instructors map[string]models.InstructorConstraint
	blocked     map[string]map[models.TimeSlot]struct{}
	preferred   map[string]map[models.TimeSlot]struct{}

	demands      []*courseDemand
	demandByID   map[string]*courseDemand
	classrooms   map[string]int
	locks        []models.LockedSlot
	existing     []models.TimetableEntry
	ignoredEntry map[string]bool
}

func newIndex(p Problem) *index {
	ix := &index{
		semesterID:   p.SemesterID,
		periodPos:    make(map[string]int),
		morning:      make(map[string]bool),
		roomByID:     make(map[string]models.Room),
		instructors:  make(map[string]models.InstructorConstraint),
		blocked:      make(map[string]map[models.TimeSlot]struct{}),
		preferred:    make(map[string]map[models.TimeSlot]struct{}),
		demandByID:   make(map[string]*courseDemand),
		classrooms:   make(map[string]int),
		ignoredEntry: make(map[string]bool),
	}

	ix.days = normalizeDays(p.Days)

	ix.periods = append([]models.Period(nil), p.Periods...)
	sort.SliceStable(ix.periods, func(i, j int) bool {
		if ix.periods[i].Order != ix.periods[j].Order {
			return ix.periods[i].Order < ix.periods[j].Order
		}
		return ix.periods[i].ID < ix.periods[j].ID
	})
	for i, period := range ix.periods {
		ix.periodPos[period.ID] = i
		ix.morning[period.ID] = isMorning(period, i, len(ix.periods))
	}

	ix.rooms = append([]models.Room(nil), p.Rooms...)
	sort.Slice(ix.rooms, func(i, j int) bool { return ix.rooms[i].ID < ix.rooms[j].ID })
	for _, room := range ix.rooms {
		ix.roomByID[room.ID] = room
	}

	ix.locks = append([]models.LockedSlot(nil), p.LockedSlots...)
	sort.Slice(ix.locks, func(i, j int) bool { return ix.locks[i].ID < ix.locks[j].ID })

	for id, constraint := range p.Instructors {
		normalized := NormalizeInstructorConstraint(constraint)
		if normalized.InstructorID == "" {
			normalized.InstructorID = id
		}
		ix.instructors[id] = normalized
		ix.preferred[id] = normalized.PreferredSlots.Set()
	}
	for id, constraint := range ix.instructors {
		ix.blocked[id] = slotSet(ResolveEffectiveSlots(constraint, p.SemesterID, ix.locks))
	}
	// Instructors without a stored constraint can still be pinned by locks.
	for _, lock := range ix.locks {
		if lock.InstructorID == nil {
			continue
		}
		id := *lock.InstructorID
		if _, ok := ix.blocked[id]; !ok {
			ix.blocked[id] = slotSet(ResolveEffectiveSlots(models.InstructorConstraint{InstructorID: id}, p.SemesterID, ix.locks))
		}
	}

	courses := append([]models.Course(nil), p.Courses...)
	sort.Slice(courses, func(i, j int) bool { return courses[i].ID < courses[j].ID })
	for _, course := range courses {
		invalid := ValidateCourse(course)
		course.InstructorIDs = sortedCopy(course.InstructorIDs)
		if course.MinConsecutive <= 0 {
			course.MinConsecutive = 1
		}
		if course.MaxConsecutive <= 0 {
			course.MaxConsecutive = course.MinConsecutive
			if course.MaxConsecutive < 2 {
				course.MaxConsecutive = 2
			}
		}
		demand := &courseDemand{course: course, needed: course.PeriodsPerWeek, invalid: invalid, usedDays: make(map[models.Day]bool)}
		ix.demands = append(ix.demands, demand)
		ix.demandByID[course.ID] = demand
		ix.classrooms[course.ClassroomID] = course.GradeLevel
	}

	for _, entry := range p.ExistingEntries {
		if !entry.IsActive {
			continue
		}
		_, inScope := ix.classrooms[entry.ClassroomID]
		if p.ForceOverwrite && inScope && entry.EntryType == models.EntryTypeCourse {
			ix.ignoredEntry[entry.ID] = true
			continue
		}
		ix.existing = append(ix.existing, entry)
		if entry.EntryType != models.EntryTypeCourse || entry.ClassroomCourseID == nil {
			continue
		}
		if demand, ok := ix.demandByID[*entry.ClassroomCourseID]; ok {
			demand.needed--
			demand.usedDays[entry.Day] = true
		}
	}

	for _, lock := range ix.locks {
		for _, demand := range ix.demands {
			if demand.course.SubjectID != lock.SubjectID || !lock.AppliesTo(demand.course.ClassroomID, demand.course.GradeLevel) {
				continue
			}
			demand.needed -= len(lock.PeriodIDs)
			demand.usedDays[lock.Day] = true
		}
	}

	for _, demand := range ix.demands {
		if demand.needed < 0 {
			demand.needed = 0
		}
		demand.blocks, demand.splittable = splitBlocks(demand.needed, demand.course.MinConsecutive, demand.course.MaxConsecutive)
	}
	return ix
}

// pending returns demands that still need periods, plus invalid courses so they are reported
// rather than skipped.
func (ix *index) pending() []*courseDemand {
	out := make([]*courseDemand, 0, len(ix.demands))
	for _, demand := range ix.demands {
		if demand.needed > 0 || demand.invalid != nil {
			out = append(out, demand)
		}
	}
	return out
}

func (ix *index) slotsFrom(day models.Day, start, length int) ([]models.TimeSlot, bool) {
	if start < 0 || start+length > len(ix.periods) {
		return nil, false
	}
	slots := make([]models.TimeSlot, 0, length)
	for i := start; i < start+length; i++ {
		if i > start && ix.periods[i].Order != ix.periods[i-1].Order+1 {
			return nil, false
		}
		slots = append(slots, models.TimeSlot{Day: day, PeriodID: ix.periods[i].ID})
	}
	return slots, true
}

func (ix *index) instructorBlocked(instructorID string, slot models.TimeSlot) bool {
	_, blocked := ix.blocked[instructorID][slot]
	return blocked
}

func normalizeDays(days []models.Day) []models.Day {
	if len(days) == 0 {
		days = models.DefaultSchoolDays
	}
	seen := make(map[models.Day]bool, len(days))
	out := make([]models.Day, 0, len(days))
	for _, day := range days {
		if !day.Valid() || seen[day] {
			continue
		}
		seen[day] = true
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index() < out[j].Index() })
	return out
}

func isMorning(period models.Period, pos, total int) bool {
	if period.StartTime != "" {
		if start, err := time.Parse("15:04", period.StartTime); err == nil {
			return start.Hour() < 12
		}
	}
	return pos < (total+1)/2
}

func slotSet(slots []models.TimeSlot) map[models.TimeSlot]struct{} {
	out := make(map[models.TimeSlot]struct{}, len(slots))
	for _, slot := range slots {
		out[slot] = struct{}{}
	}
	return out
}

func sortedCopy(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}
