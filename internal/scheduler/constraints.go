package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// FieldError describes one invalid field of a constraint.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every problem found in one constraint.
type ValidationErrors []FieldError

// Error implements error.
func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return strings.Join(parts, "; ")
}

func (v ValidationErrors) orNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// ValidateInstructorConstraint checks an instructor constraint for impossible values.
func ValidateInstructorConstraint(c models.InstructorConstraint) error {
	var errs ValidationErrors
	if c.InstructorID == "" {
		errs = append(errs, FieldError{"instructor_id", "is required"})
	}
	if c.MaxPeriodsPerDay < 0 {
		errs = append(errs, FieldError{"max_periods_per_day", "must not be negative"})
	}
	if c.MinPeriodsPerDay < 0 {
		errs = append(errs, FieldError{"min_periods_per_day", "must not be negative"})
	}
	if c.MaxPeriodsPerDay > 0 && c.MinPeriodsPerDay > c.MaxPeriodsPerDay {
		errs = append(errs, FieldError{"min_periods_per_day", "must not exceed max_periods_per_day"})
	}
	for i, slot := range c.HardUnavailable {
		if !slot.Day.Valid() || slot.PeriodID == "" {
			errs = append(errs, FieldError{fmt.Sprintf("hard_unavailable_slots[%d]", i), "invalid slot"})
		}
	}
	for i, slot := range c.PreferredSlots {
		if !slot.Day.Valid() || slot.PeriodID == "" {
			errs = append(errs, FieldError{fmt.Sprintf("preferred_slots[%d]", i), "invalid slot"})
		}
	}
	for _, day := range c.PreferredDays {
		if !day.Valid() {
			errs = append(errs, FieldError{"preferred_days", fmt.Sprintf("invalid day %q", day)})
		}
		if c.AvoidDays.Contains(day) {
			errs = append(errs, FieldError{"avoid_days", fmt.Sprintf("%s is also a preferred day", day)})
		}
	}
	for _, day := range c.AvoidDays {
		if !day.Valid() {
			errs = append(errs, FieldError{"avoid_days", fmt.Sprintf("invalid day %q", day)})
		}
	}
	return errs.orNil()
}

// NormalizeInstructorConstraint drops preferred slots that are also hard-unavailable and
// removes duplicate slots, keeping the stored order stable.
func NormalizeInstructorConstraint(c models.InstructorConstraint) models.InstructorConstraint {
	c.HardUnavailable = dedupeSlots(c.HardUnavailable)
	hard := c.HardUnavailable.Set()
	preferred := make(models.TimeSlots, 0, len(c.PreferredSlots))
	for _, slot := range dedupeSlots(c.PreferredSlots) {
		if _, blocked := hard[slot]; blocked {
			continue
		}
		preferred = append(preferred, slot)
	}
	c.PreferredSlots = preferred
	return c
}

// ValidateSubjectConstraint checks per-subject defaults.
func ValidateSubjectConstraint(c models.SubjectConstraint) error {
	var errs ValidationErrors
	if c.SubjectID == "" {
		errs = append(errs, FieldError{"subject_id", "is required"})
	}
	if c.PeriodsPerWeek <= 0 {
		errs = append(errs, FieldError{"periods_per_week", "must be greater than zero"})
	}
	if c.MinConsecutive < 1 {
		errs = append(errs, FieldError{"min_consecutive_periods", "must be at least 1"})
	}
	if c.MaxConsecutive < c.MinConsecutive {
		errs = append(errs, FieldError{"max_consecutive_periods", "must not be lower than min_consecutive_periods"})
	}
	switch c.PreferredTimeOfDay {
	case "", models.TimeOfDayMorning, models.TimeOfDayAfternoon, models.TimeOfDayAnytime:
	default:
		errs = append(errs, FieldError{"preferred_time_of_day", fmt.Sprintf("invalid value %q", c.PreferredTimeOfDay)})
	}
	return errs.orNil()
}

// ValidateCourse checks the invariants of a course that needs placing.
func ValidateCourse(c models.Course) error {
	var errs ValidationErrors
	if c.PeriodsPerWeek <= 0 {
		errs = append(errs, FieldError{"periods_per_week", "must be greater than zero"})
	}
	if c.MinConsecutive > 0 && c.MaxConsecutive > 0 && c.MinConsecutive > c.MaxConsecutive {
		errs = append(errs, FieldError{"min_consecutive_periods", "exceeds max_consecutive_periods"})
	}
	if c.ClassroomID == "" {
		errs = append(errs, FieldError{"classroom_id", "is required"})
	}
	return errs.orNil()
}

// ResolveEffectiveSlots merges an instructor's hard-unavailable slots with every locked slot of
// the semester that pins the same instructor. The result is sorted by day then period id.
func ResolveEffectiveSlots(c models.InstructorConstraint, semesterID string, locks []models.LockedSlot) []models.TimeSlot {
	seen := make(map[models.TimeSlot]struct{})
	out := make([]models.TimeSlot, 0, len(c.HardUnavailable))
	add := func(slot models.TimeSlot) {
		if _, ok := seen[slot]; ok {
			return
		}
		seen[slot] = struct{}{}
		out = append(out, slot)
	}
	for _, slot := range c.HardUnavailable {
		add(slot)
	}
	for _, lock := range locks {
		if lock.InstructorID == nil || *lock.InstructorID != c.InstructorID {
			continue
		}
		if semesterID != "" && lock.SemesterID != "" && lock.SemesterID != semesterID {
			continue
		}
		for _, slot := range lock.Slots() {
			add(slot)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day.Index() < out[j].Day.Index()
		}
		return out[i].PeriodID < out[j].PeriodID
	})
	return out
}

// ConstraintConflict reports a course that cannot fit before any placement is attempted.
type ConstraintConflict struct {
	CourseID    string `json:"course_id"`
	SubjectCode string `json:"subject_code,omitempty"`
	SubjectName string `json:"subject_name,omitempty"`
	Classroom   string `json:"classroom,omitempty"`
	Required    int    `json:"required"`
	Available   int    `json:"available"`
	Reason      string `json:"reason"`
}

// FeasibilityError wraps the conflicts found by CheckFeasibility.
type FeasibilityError struct {
	Conflicts []ConstraintConflict
}

// Error implements error.
func (e *FeasibilityError) Error() string {
	if len(e.Conflicts) == 1 {
		return e.Conflicts[0].Reason
	}
	return fmt.Sprintf("%d courses cannot be scheduled", len(e.Conflicts))
}

// CheckFeasibility runs the static check for every course still needing periods. A course
// conflicts when its demand exceeds the slots where its classroom is free and all of its
// instructors are available, or when its blocks cannot be split or spread over the days.
func CheckFeasibility(p Problem) []ConstraintConflict {
	return newIndex(p).feasibility()
}

// Feasible is CheckFeasibility reported as an error.
func Feasible(p Problem) error {
	if conflicts := CheckFeasibility(p); len(conflicts) > 0 {
		return &FeasibilityError{Conflicts: conflicts}
	}
	return nil
}

func (ix *index) feasibility() []ConstraintConflict {
	fixed := newScheduleState(ix)
	var conflicts []ConstraintConflict
	for _, demand := range ix.pending() {
		if conflict, ok := ix.checkDemand(fixed, demand); !ok {
			conflicts = append(conflicts, conflict)
		}
	}
	return conflicts
}

func (ix *index) checkDemand(fixed *scheduleState, demand *courseDemand) (ConstraintConflict, bool) {
	course := demand.course
	conflict := ConstraintConflict{
		CourseID:    course.ID,
		SubjectCode: course.SubjectCode,
		SubjectName: course.SubjectName,
		Classroom:   classroomLabel(course),
		Required:    demand.needed,
	}
	if demand.invalid != nil {
		conflict.Reason = "invalid course: " + demand.invalid.Error()
		return conflict, false
	}
	if !demand.splittable {
		conflict.Reason = fmt.Sprintf("%d periods cannot be split into blocks of %d to %d consecutive periods",
			demand.needed, course.MinConsecutive, course.MaxConsecutive)
		return conflict, false
	}

	available := 0
	daysWithRoom := 0
	for _, day := range ix.days {
		if demand.usedDays[day] {
			continue
		}
		free := 0
		for _, period := range ix.periods {
			slot := models.TimeSlot{Day: day, PeriodID: period.ID}
			if !fixed.classroomFree(course.ClassroomID, slot) {
				continue
			}
			usable := true
			for _, instructorID := range course.InstructorIDs {
				if ix.instructorBlocked(instructorID, slot) || !fixed.instructorFree(instructorID, slot) {
					usable = false
					break
				}
			}
			if usable {
				free++
			}
		}
		available += free
		if free > 0 {
			daysWithRoom++
		}
	}
	conflict.Available = available

	if available < demand.needed {
		conflict.Reason = fmt.Sprintf("requires %d periods but only %d slots are free for the classroom and its instructors",
			demand.needed, available)
		return conflict, false
	}
	if len(demand.blocks) > daysWithRoom {
		conflict.Reason = fmt.Sprintf("requires %d separate days but only %d days have free slots",
			len(demand.blocks), daysWithRoom)
		return conflict, false
	}
	return conflict, true
}

// splitBlocks divides n periods into consecutive blocks of min..max periods, largest first.
// A demand smaller than min is a single short block; it tops up an already scheduled course.
func splitBlocks(n, minC, maxC int) ([]int, bool) {
	if n <= 0 {
		return nil, true
	}
	if minC < 1 {
		minC = 1
	}
	if maxC < minC {
		return nil, false
	}
	if n < minC {
		return []int{n}, true
	}
	var out []int
	for n > 0 {
		size := maxC
		if size > n {
			size = n
		}
		rest := n - size
		for rest > 0 && rest < minC && size > minC {
			size--
			rest++
		}
		if rest > 0 && rest < minC {
			return nil, false
		}
		out = append(out, size)
		n = rest
	}
	return out, true
}

func dedupeSlots(slots models.TimeSlots) models.TimeSlots {
	seen := make(map[models.TimeSlot]struct{}, len(slots))
	out := make(models.TimeSlots, 0, len(slots))
	for _, slot := range slots {
		if _, ok := seen[slot]; ok {
			continue
		}
		seen[slot] = struct{}{}
		out = append(out, slot)
	}
	return out
}

func classroomLabel(c models.Course) string {
	if c.ClassroomName != "" {
		return c.ClassroomName
	}
	return c.ClassroomID
}
