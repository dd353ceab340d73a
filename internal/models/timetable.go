package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Day is a day of the week in the timetable grid.
type Day string

const (
	DayMonday    Day = "MON"
	DayTuesday   Day = "TUE"
	DayWednesday Day = "WED"
	DayThursday  Day = "THU"
	DayFriday    Day = "FRI"
	DaySaturday  Day = "SAT"
	DaySunday    Day = "SUN"
)

// AllDays lists every day in calendar order.
var AllDays = []Day{DayMonday, DayTuesday, DayWednesday, DayThursday, DayFriday, DaySaturday, DaySunday}

// DefaultSchoolDays are used when a run does not name its days.
var DefaultSchoolDays = []Day{DayMonday, DayTuesday, DayWednesday, DayThursday, DayFriday}

// Index returns the position of the day in the week, or -1 when unknown.
func (d Day) Index() int {
	for i, day := range AllDays {
		if day == d {
			return i
		}
	}
	return -1
}

// Valid reports whether d is one of MON..SUN.
func (d Day) Valid() bool {
	return d.Index() >= 0
}

// ParseDay normalises user input such as "mon" or "Monday".
func ParseDay(raw string) (Day, error) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if len(value) > 3 {
		value = value[:3]
	}
	day := Day(value)
	if !day.Valid() {
		return "", fmt.Errorf("invalid day of week %q", raw)
	}
	return day, nil
}

// Days is a persisted list of days.
type Days []Day

// Value implements driver.Valuer storing the list as a text[] column.
func (d Days) Value() (driver.Value, error) {
	out := make([]string, len(d))
	for i, day := range d {
		out[i] = string(day)
	}
	return pq.StringArray(out).Value()
}

// Scan implements sql.Scanner.
func (d *Days) Scan(src interface{}) error {
	var raw pq.StringArray
	if err := raw.Scan(src); err != nil {
		return err
	}
	out := make(Days, len(raw))
	for i, value := range raw {
		out[i] = Day(value)
	}
	*d = out
	return nil
}

// Contains reports whether the list holds day.
func (d Days) Contains(day Day) bool {
	for _, candidate := range d {
		if candidate == day {
			return true
		}
	}
	return false
}

// TimeSlot is the atomic unit of placement.
type TimeSlot struct {
	Day      Day    `json:"day_of_week" yaml:"day"`
	PeriodID string `json:"period_id" yaml:"period"`
}

// Key renders the slot as "MON__<period>".
func (s TimeSlot) Key() string {
	return string(s.Day) + "__" + s.PeriodID
}

// ParseSlotKey is the inverse of TimeSlot.Key.
func ParseSlotKey(key string) (TimeSlot, error) {
	parts := strings.SplitN(key, "__", 2)
	if len(parts) != 2 || parts[1] == "" {
		return TimeSlot{}, fmt.Errorf("invalid slot key %q", key)
	}
	day, err := ParseDay(parts[0])
	if err != nil {
		return TimeSlot{}, err
	}
	return TimeSlot{Day: day, PeriodID: parts[1]}, nil
}

// TimeSlots is a JSONB-persisted list of slots.
type TimeSlots []TimeSlot

// Value implements driver.Valuer.
func (s TimeSlots) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *TimeSlots) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s = TimeSlots{}
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unsupported time slots type %T", src)
	}
}

// Set indexes the slots by key.
func (s TimeSlots) Set() map[TimeSlot]struct{} {
	out := make(map[TimeSlot]struct{}, len(s))
	for _, slot := range s {
		out[slot] = struct{}{}
	}
	return out
}

// Period is one teaching period of the school day.
type Period struct {
	ID        string `db:"id" json:"id" yaml:"id"`
	Name      string `db:"name" json:"name" yaml:"name"`
	Order     int    `db:"period_order" json:"order" yaml:"order"`
	StartTime string `db:"start_time" json:"start_time" yaml:"start_time"`
	EndTime   string `db:"end_time" json:"end_time" yaml:"end_time"`
}

// Room is a physical room that may be booked by placements.
type Room struct {
	ID       string `db:"id" json:"id" yaml:"id"`
	Name     string `db:"name" json:"name" yaml:"name"`
	RoomType string `db:"room_type" json:"room_type" yaml:"room_type"`
}

// EntryType distinguishes timetable entries.
type EntryType string

const (
	EntryTypeCourse   EntryType = "COURSE"
	EntryTypeBreak    EntryType = "BREAK"
	EntryTypeActivity EntryType = "ACTIVITY"
	EntryTypeHomeroom EntryType = "HOMEROOM"
)

// TimetableEntry is a committed placement. Entries are deactivated, never removed.
type TimetableEntry struct {
	ID                string         `db:"id" json:"id"`
	SemesterID        string         `db:"academic_semester_id" json:"academic_semester_id"`
	ClassroomID       string         `db:"classroom_id" json:"classroom_id"`
	Day               Day            `db:"day_of_week" json:"day_of_week"`
	PeriodID          string         `db:"period_id" json:"period_id"`
	EntryType         EntryType      `db:"entry_type" json:"entry_type"`
	RoomID            *string        `db:"room_id" json:"room_id,omitempty"`
	ClassroomCourseID *string        `db:"classroom_course_id" json:"classroom_course_id,omitempty"`
	SubjectID         *string        `db:"subject_id" json:"subject_id,omitempty"`
	InstructorIDs     pq.StringArray `db:"instructor_ids" json:"instructor_ids"`
	Note              *string        `db:"note" json:"note,omitempty"`
	IsActive          bool           `db:"is_active" json:"is_active"`
	JobID             *string        `db:"job_id" json:"job_id,omitempty"`
	CreatedBy         *string        `db:"created_by" json:"created_by,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
	DeactivatedAt     *time.Time     `db:"deactivated_at" json:"deactivated_at,omitempty"`
}

// Slot returns the entry's slot.
func (e TimetableEntry) Slot() TimeSlot {
	return TimeSlot{Day: e.Day, PeriodID: e.PeriodID}
}

// OccupiesClassroom reports whether the entry counts toward classroom uniqueness.
func (e TimetableEntry) OccupiesClassroom() bool {
	return e.EntryType != EntryTypeBreak
}

// TimetableEntryFilter narrows entry listings.
type TimetableEntryFilter struct {
	SemesterID      string
	ClassroomIDs    []string
	InstructorID    string
	RoomID          string
	Day             Day
	IncludeInactive bool
}

// ConflictType names the dimension a write collided on.
type ConflictType string

const (
	ConflictClassroom  ConflictType = "CLASSROOM_CONFLICT"
	ConflictInstructor ConflictType = "INSTRUCTOR_CONFLICT"
	ConflictRoom       ConflictType = "ROOM_CONFLICT"
)

// TimetableConflict describes one collision with an existing active entry.
type TimetableConflict struct {
	ConflictType  ConflictType    `json:"conflict_type"`
	Message       string          `json:"message"`
	ExistingEntry *TimetableEntry `json:"existing_entry,omitempty"`
}

// TimetableValidation is the typed payload returned for validation and 409 responses.
type TimetableValidation struct {
	IsValid   bool                `json:"is_valid"`
	Conflicts []TimetableConflict `json:"conflicts"`
}

// TimetableConflictError carries the collisions of a rejected write.
type TimetableConflictError struct {
	Validation TimetableValidation
}

// Error implements error.
func (e *TimetableConflictError) Error() string {
	if e == nil || len(e.Validation.Conflicts) == 0 {
		return "timetable conflict"
	}
	return e.Validation.Conflicts[0].Message
}
