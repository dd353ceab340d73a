package models

import (
	"strconv"
	"time"

	"github.com/lib/pq"
)

// TimeOfDay expresses when a subject is preferably taught.
type TimeOfDay string

const (
	TimeOfDayMorning   TimeOfDay = "MORNING"
	TimeOfDayAfternoon TimeOfDay = "AFTERNOON"
	TimeOfDayAnytime   TimeOfDay = "ANYTIME"
)

// SubjectConstraint carries per-subject defaults for every course of that subject.
type SubjectConstraint struct {
	SubjectID          string    `db:"subject_id" json:"subject_id"`
	PeriodsPerWeek     int       `db:"periods_per_week" json:"periods_per_week"`
	MinConsecutive     int       `db:"min_consecutive" json:"min_consecutive_periods"`
	MaxConsecutive     int       `db:"max_consecutive" json:"max_consecutive_periods"`
	PreferredTimeOfDay TimeOfDay `db:"preferred_time_of_day" json:"preferred_time_of_day"`
	RequiredRoomType   *string   `db:"required_room_type" json:"required_room_type,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// InstructorConstraint stores hard and soft availability rules for an instructor.
type InstructorConstraint struct {
	InstructorID     string    `db:"instructor_id" json:"instructor_id" yaml:"instructor_id"`
	HardUnavailable  TimeSlots `db:"hard_unavailable" json:"hard_unavailable_slots" yaml:"hard_unavailable"`
	PreferredSlots   TimeSlots `db:"preferred_slots" json:"preferred_slots" yaml:"preferred_slots"`
	MaxPeriodsPerDay int       `db:"max_periods_per_day" json:"max_periods_per_day" yaml:"max_periods_per_day"`
	MinPeriodsPerDay int       `db:"min_periods_per_day" json:"min_periods_per_day" yaml:"min_periods_per_day"`
	PreferredDays    Days      `db:"preferred_days" json:"preferred_days" yaml:"preferred_days"`
	AvoidDays        Days      `db:"avoid_days" json:"avoid_days" yaml:"avoid_days"`
	AssignedRoomID   *string   `db:"assigned_room_id" json:"assigned_room_id,omitempty" yaml:"assigned_room_id"`
	CreatedAt        time.Time `db:"created_at" json:"created_at" yaml:"-"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at" yaml:"-"`
}

// LockScope selects which classrooms a locked slot applies to.
type LockScope string

const (
	LockScopeClassroom  LockScope = "CLASSROOM"
	LockScopeGradeLevel LockScope = "GRADE_LEVEL"
	LockScopeAllSchool  LockScope = "ALL_SCHOOL"
)

// LockedSlot is an externally fixed placement no scheduling run may alter.
type LockedSlot struct {
	ID           string         `db:"id" json:"id" yaml:"id"`
	SemesterID   string         `db:"academic_semester_id" json:"academic_semester_id" yaml:"-"`
	ScopeType    LockScope      `db:"scope_type" json:"scope_type" yaml:"scope_type"`
	ScopeIDs     pq.StringArray `db:"scope_ids" json:"scope_ids" yaml:"scope_ids"`
	SubjectID    string         `db:"subject_id" json:"subject_id" yaml:"subject_id"`
	Day          Day            `db:"day_of_week" json:"day_of_week" yaml:"day"`
	PeriodIDs    pq.StringArray `db:"period_ids" json:"period_ids" yaml:"period_ids"`
	RoomID       *string        `db:"room_id" json:"room_id,omitempty" yaml:"room_id"`
	InstructorID *string        `db:"instructor_id" json:"instructor_id,omitempty" yaml:"instructor_id"`
	Reason       *string        `db:"reason" json:"reason,omitempty" yaml:"reason"`
	CreatedBy    *string        `db:"created_by" json:"created_by,omitempty" yaml:"-"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at" yaml:"-"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at" yaml:"-"`
}

// Slots expands the lock into individual slots.
func (l LockedSlot) Slots() []TimeSlot {
	out := make([]TimeSlot, 0, len(l.PeriodIDs))
	for _, periodID := range l.PeriodIDs {
		out = append(out, TimeSlot{Day: l.Day, PeriodID: periodID})
	}
	return out
}

// AppliesTo reports whether the lock covers a classroom of the given grade level.
func (l LockedSlot) AppliesTo(classroomID string, gradeLevel int) bool {
	switch l.ScopeType {
	case LockScopeAllSchool:
		return true
	case LockScopeClassroom:
		for _, id := range l.ScopeIDs {
			if id == classroomID {
				return true
			}
		}
	case LockScopeGradeLevel:
		for _, id := range l.ScopeIDs {
			if id == strconv.Itoa(gradeLevel) {
				return true
			}
		}
	}
	return false
}

// Course is one classroom-subject pairing that needs weekly periods.
type Course struct {
	ID                 string         `db:"id" json:"id" yaml:"id"`
	SemesterID         string         `db:"academic_semester_id" json:"academic_semester_id" yaml:"-"`
	SubjectID          string         `db:"subject_id" json:"subject_id" yaml:"subject_id"`
	SubjectCode        string         `db:"subject_code" json:"subject_code" yaml:"subject_code"`
	SubjectName        string         `db:"subject_name" json:"subject_name" yaml:"subject_name"`
	ClassroomID        string         `db:"classroom_id" json:"classroom_id" yaml:"classroom_id"`
	ClassroomName      string         `db:"classroom_name" json:"classroom_name" yaml:"classroom_name"`
	GradeLevel         int            `db:"grade_level" json:"grade_level" yaml:"grade_level"`
	InstructorIDs      pq.StringArray `db:"instructor_ids" json:"instructor_ids" yaml:"instructor_ids"`
	PeriodsPerWeek     int            `db:"periods_per_week" json:"periods_per_week" yaml:"periods_per_week"`
	RequiredRoomType   string         `db:"required_room_type" json:"required_room_type,omitempty" yaml:"required_room_type"`
	MinConsecutive     int            `db:"min_consecutive" json:"min_consecutive_periods" yaml:"min_consecutive"`
	MaxConsecutive     int            `db:"max_consecutive" json:"max_consecutive_periods" yaml:"max_consecutive"`
	PreferredTimeOfDay TimeOfDay      `db:"preferred_time_of_day" json:"preferred_time_of_day,omitempty" yaml:"preferred_time_of_day"`
}

// ApplySubjectDefaults fills unset course fields from the subject constraint.
func (c *Course) ApplySubjectDefaults(sc *SubjectConstraint) {
	if sc == nil {
		return
	}
	if c.PeriodsPerWeek <= 0 {
		c.PeriodsPerWeek = sc.PeriodsPerWeek
	}
	if c.MinConsecutive <= 0 {
		c.MinConsecutive = sc.MinConsecutive
	}
	if c.MaxConsecutive <= 0 {
		c.MaxConsecutive = sc.MaxConsecutive
	}
	if c.PreferredTimeOfDay == "" {
		c.PreferredTimeOfDay = sc.PreferredTimeOfDay
	}
	if c.RequiredRoomType == "" && sc.RequiredRoomType != nil {
		c.RequiredRoomType = *sc.RequiredRoomType
	}
}
