package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// SchedulingAlgorithm selects the placement strategy of a run.
type SchedulingAlgorithm string

const (
	AlgorithmGreedy       SchedulingAlgorithm = "GREEDY"
	AlgorithmBacktracking SchedulingAlgorithm = "BACKTRACKING"
	AlgorithmHybrid       SchedulingAlgorithm = "HYBRID"
)

// Valid reports whether the algorithm is supported.
func (a SchedulingAlgorithm) Valid() bool {
	switch a {
	case AlgorithmGreedy, AlgorithmBacktracking, AlgorithmHybrid:
		return true
	}
	return false
}

// SchedulingStatus is the lifecycle state of a scheduling job.
type SchedulingStatus string

const (
	SchedulingStatusPending   SchedulingStatus = "PENDING"
	SchedulingStatusRunning   SchedulingStatus = "RUNNING"
	SchedulingStatusCompleted SchedulingStatus = "COMPLETED"
	SchedulingStatusFailed    SchedulingStatus = "FAILED"
	SchedulingStatusCancelled SchedulingStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is allowed.
func (s SchedulingStatus) IsTerminal() bool {
	switch s {
	case SchedulingStatusCompleted, SchedulingStatusFailed, SchedulingStatusCancelled:
		return true
	}
	return false
}

// CanTransition enforces PENDING -> RUNNING -> {COMPLETED, FAILED, CANCELLED}.
// A pending job may also be cancelled or failed before it starts.
func (s SchedulingStatus) CanTransition(to SchedulingStatus) bool {
	switch s {
	case SchedulingStatusPending:
		return to == SchedulingStatusRunning || to == SchedulingStatusCancelled || to == SchedulingStatusFailed
	case SchedulingStatusRunning:
		return to == SchedulingStatusCompleted || to == SchedulingStatusFailed || to == SchedulingStatusCancelled
	}
	return false
}

// TransitionSources lists every status allowed to move into to.
func TransitionSources(to SchedulingStatus) []SchedulingStatus {
	var out []SchedulingStatus
	for _, from := range []SchedulingStatus{SchedulingStatusPending, SchedulingStatusRunning} {
		if from.CanTransition(to) {
			out = append(out, from)
		}
	}
	return out
}

// QualityWeights weigh the soft components of the quality score.
type QualityWeights struct {
	TimeOfDay       float64 `json:"time_of_day" yaml:"time_of_day"`
	PreferredSlot   float64 `json:"preferred_slot" yaml:"preferred_slot"`
	PreferredDays   float64 `json:"preferred_days" yaml:"preferred_days"`
	Distribution    float64 `json:"distribution" yaml:"distribution"`
	UnplacedPenalty float64 `json:"unplaced_penalty" yaml:"unplaced_penalty"`
	OverloadPenalty float64 `json:"overload_penalty" yaml:"overload_penalty"`
	AvoidDayPenalty float64 `json:"avoid_day_penalty" yaml:"avoid_day_penalty"`
}

// DefaultQualityWeights returns the stock weighting.
func DefaultQualityWeights() QualityWeights {
	return QualityWeights{
		TimeOfDay:       15,
		PreferredSlot:   15,
		PreferredDays:   10,
		Distribution:    30,
		UnplacedPenalty: 10,
		OverloadPenalty: 2,
		AvoidDayPenalty: 5,
	}
}

// IsZero reports whether no weight was provided.
func (w QualityWeights) IsZero() bool {
	return w == QualityWeights{}
}

// SchedulingConfig tunes one run. It is persisted with the job.
type SchedulingConfig struct {
	ForceOverwrite  bool            `json:"force_overwrite"`
	AllowPartial    bool            `json:"allow_partial"`
	TimeoutSeconds  int             `json:"timeout_seconds"`
	MaxIterations   int             `json:"max_iterations"`
	MaxBacktrack    int             `json:"max_backtrack"`
	MinQualityScore float64         `json:"min_quality_score"`
	Days            []Day           `json:"days,omitempty"`
	Weights         *QualityWeights `json:"weights,omitempty"`
}

// Value implements driver.Valuer.
func (c SchedulingConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner.
func (c *SchedulingConfig) Scan(src interface{}) error {
	return scanJSON(src, c)
}

// FailedCourse explains why a course could not be placed.
type FailedCourse struct {
	CourseID    string `json:"course_id" yaml:"course_id"`
	SubjectCode string `json:"subject_code,omitempty" yaml:"subject_code"`
	SubjectName string `json:"subject_name,omitempty" yaml:"subject_name"`
	Classroom   string `json:"classroom,omitempty" yaml:"classroom"`
	Reason      string `json:"reason" yaml:"reason"`
}

// FailedCourses is the JSONB-persisted list of unplaced courses.
type FailedCourses []FailedCourse

// Value implements driver.Valuer.
func (f FailedCourses) Value() (driver.Value, error) {
	if f == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(f)
}

// Scan implements sql.Scanner.
func (f *FailedCourses) Scan(src interface{}) error {
	return scanJSON(src, f)
}

// SchedulingJob tracks an asynchronous scheduling run.
type SchedulingJob struct {
	ID               string              `db:"id" json:"id"`
	SemesterID       string              `db:"academic_semester_id" json:"academic_semester_id"`
	ClassroomIDs     pq.StringArray      `db:"classroom_ids" json:"classroom_ids"`
	Algorithm        SchedulingAlgorithm `db:"algorithm" json:"algorithm"`
	Status           SchedulingStatus    `db:"status" json:"status"`
	Config           SchedulingConfig    `db:"config" json:"config"`
	Progress         int                 `db:"progress" json:"progress"`
	QualityScore     *float64            `db:"quality_score" json:"quality_score,omitempty"`
	ScheduledCourses int                 `db:"scheduled_courses" json:"scheduled_courses"`
	TotalCourses     int                 `db:"total_courses" json:"total_courses"`
	FailedCourses    FailedCourses       `db:"failed_courses" json:"failed_courses"`
	Iterations       int                 `db:"iterations" json:"iterations"`
	TimedOut         bool                `db:"timed_out" json:"timed_out"`
	ErrorMessage     *string             `db:"error_message" json:"error_message,omitempty"`
	CreatedBy        *string             `db:"created_by" json:"created_by,omitempty"`
	CreatedAt        time.Time           `db:"created_at" json:"created_at"`
	StartedAt        *time.Time          `db:"started_at" json:"started_at,omitempty"`
	CompletedAt      *time.Time          `db:"completed_at" json:"completed_at,omitempty"`
	DurationMillis   *int64              `db:"duration_ms" json:"duration_ms,omitempty"`
}

// DispatchKeys returns one key per (semester, classroom); overlapping jobs share a key.
func (j SchedulingJob) DispatchKeys() []string {
	keys := make([]string, 0, len(j.ClassroomIDs))
	for _, classroomID := range j.ClassroomIDs {
		keys = append(keys, j.SemesterID+":"+classroomID)
	}
	return keys
}

// SchedulingJobFilter narrows job listings.
type SchedulingJobFilter struct {
	SemesterID string
	Status     SchedulingStatus
	Limit      int
	Offset     int
}

// PageSize clamps Limit to 1..100, defaulting to 50.
func (f SchedulingJobFilter) PageSize() int {
	if f.Limit <= 0 || f.Limit > 100 {
		return 50
	}
	return f.Limit
}

func scanJSON(src interface{}, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dest)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
}
