package dto

// TimetableEntryRequest creates an entry. COURSE entries name the classroom course and
// inherit classroom, subject and instructors from it; other entry types name the classroom.
type TimetableEntryRequest struct {
	SemesterID        string   `json:"academic_semester_id" validate:"required"`
	EntryType         string   `json:"entry_type" validate:"omitempty,oneof=COURSE BREAK ACTIVITY HOMEROOM"`
	ClassroomCourseID string   `json:"classroom_course_id" validate:"required_if=EntryType COURSE"`
	ClassroomID       string   `json:"classroom_id"`
	DayOfWeek         string   `json:"day_of_week" validate:"required"`
	PeriodID          string   `json:"period_id" validate:"required"`
	RoomID            *string  `json:"room_id"`
	InstructorIDs     []string `json:"instructor_ids" validate:"omitempty,dive,required"`
	Note              *string  `json:"note" validate:"omitempty,max=500"`
	Force             bool     `json:"force"`
}

// UpdateTimetableEntryRequest moves or annotates an entry. Nil fields are unchanged.
type UpdateTimetableEntryRequest struct {
	DayOfWeek *string `json:"day_of_week"`
	PeriodID  *string `json:"period_id"`
	RoomID    *string `json:"room_id"`
	ClearRoom bool    `json:"clear_room"`
	Note      *string `json:"note" validate:"omitempty,max=500"`
	Force     bool    `json:"force"`
}

// TimetableEntryQuery filters entry listings.
type TimetableEntryQuery struct {
	SemesterID      string `form:"academic_semester_id" validate:"required"`
	ClassroomID     string `form:"classroom_id"`
	InstructorID    string `form:"instructor_id"`
	RoomID          string `form:"room_id"`
	DayOfWeek       string `form:"day_of_week"`
	IncludeInactive bool   `form:"include_inactive"`
}
