package dto

import "github.com/noah-isme/sma-timetable-api/internal/models"

// InstructorConstraintRequest replaces an instructor's scheduling constraints.
type InstructorConstraintRequest struct {
	HardUnavailable  []models.TimeSlot `json:"hard_unavailable_slots" validate:"omitempty,dive"`
	PreferredSlots   []models.TimeSlot `json:"preferred_slots" validate:"omitempty,dive"`
	MaxPeriodsPerDay int               `json:"max_periods_per_day" validate:"min=0,max=24"`
	MinPeriodsPerDay int               `json:"min_periods_per_day" validate:"min=0,max=24"`
	PreferredDays    []string          `json:"preferred_days" validate:"omitempty,max=7"`
	AvoidDays        []string          `json:"avoid_days" validate:"omitempty,max=7"`
	AssignedRoomID   *string           `json:"assigned_room_id"`
}

// SubjectConstraintRequest replaces a subject's scheduling defaults.
type SubjectConstraintRequest struct {
	PeriodsPerWeek     int     `json:"periods_per_week" validate:"required,min=1,max=40"`
	MinConsecutive     int     `json:"min_consecutive_periods" validate:"omitempty,min=1"`
	MaxConsecutive     int     `json:"max_consecutive_periods" validate:"omitempty,min=1"`
	PreferredTimeOfDay string  `json:"preferred_time_of_day" validate:"omitempty,oneof=MORNING AFTERNOON ANYTIME"`
	RequiredRoomType   *string `json:"required_room_type"`
}

// LockedSlotRequest creates a locked slot.
type LockedSlotRequest struct {
	SemesterID   string   `json:"academic_semester_id" validate:"required"`
	ScopeType    string   `json:"scope_type" validate:"required,oneof=CLASSROOM GRADE_LEVEL ALL_SCHOOL"`
	ScopeIDs     []string `json:"scope_ids" validate:"required_unless=ScopeType ALL_SCHOOL,dive,required"`
	SubjectID    string   `json:"subject_id" validate:"required"`
	DayOfWeek    string   `json:"day_of_week" validate:"required"`
	PeriodIDs    []string `json:"period_ids" validate:"required,min=1,dive,required"`
	RoomID       *string  `json:"room_id"`
	InstructorID *string  `json:"instructor_id"`
	Reason       *string  `json:"reason" validate:"omitempty,max=500"`
}

// UpdateLockedSlotRequest changes a locked slot. Nil fields are unchanged.
type UpdateLockedSlotRequest struct {
	ScopeType    *string  `json:"scope_type" validate:"omitempty,oneof=CLASSROOM GRADE_LEVEL ALL_SCHOOL"`
	ScopeIDs     []string `json:"scope_ids" validate:"omitempty,dive,required"`
	DayOfWeek    *string  `json:"day_of_week"`
	PeriodIDs    []string `json:"period_ids" validate:"omitempty,dive,required"`
	RoomID       *string  `json:"room_id"`
	InstructorID *string  `json:"instructor_id"`
	Reason       *string  `json:"reason" validate:"omitempty,max=500"`
}
