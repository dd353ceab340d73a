package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const timetableEntryColumns = `id, academic_semester_id, classroom_id, day_of_week, period_id, entry_type, room_id,
classroom_course_id, subject_id, instructor_ids, note, is_active, job_id, created_by, created_at, updated_at, deactivated_at`

// TimetableEntryRepository persists committed timetable entries. Entries are soft-deleted.
type TimetableEntryRepository struct {
	db *sqlx.DB
}

// NewTimetableEntryRepository constructs the repository.
func NewTimetableEntryRepository(db *sqlx.DB) *TimetableEntryRepository {
	return &TimetableEntryRepository{db: db}
}

func (r *TimetableEntryRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns entries matching the filter ordered by classroom, day and period.
func (r *TimetableEntryRepository) List(ctx context.Context, filter models.TimetableEntryFilter) ([]models.TimetableEntry, error) {
	where := []string{"e.academic_semester_id = $1"}
	args := []interface{}{filter.SemesterID}
	if !filter.IncludeInactive {
		where = append(where, "e.is_active")
	}
	if len(filter.ClassroomIDs) > 0 {
		where = append(where, fmt.Sprintf("e.classroom_id = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(filter.ClassroomIDs))
	}
	if filter.InstructorID != "" {
		where = append(where, fmt.Sprintf("$%d = ANY(e.instructor_ids)", len(args)+1))
		args = append(args, filter.InstructorID)
	}
	if filter.RoomID != "" {
		where = append(where, fmt.Sprintf("e.room_id = $%d", len(args)+1))
		args = append(args, filter.RoomID)
	}
	if filter.Day != "" {
		where = append(where, fmt.Sprintf("e.day_of_week = $%d", len(args)+1))
		args = append(args, string(filter.Day))
	}

	query := fmt.Sprintf(`SELECT %s FROM timetable_entries e
LEFT JOIN periods p ON p.id = e.period_id
WHERE %s
ORDER BY e.classroom_id, array_position(ARRAY['MON','TUE','WED','THU','FRI','SAT','SUN'], e.day_of_week), p.period_order, e.created_at`,
		prefixed("e", timetableEntryColumns), strings.Join(where, " AND "))
	var entries []models.TimetableEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list timetable entries: %w", err)
	}
	return entries, nil
}

// FindByID loads an entry by its identifier.
func (r *TimetableEntryRepository) FindByID(ctx context.Context, id string) (*models.TimetableEntry, error) {
	query := `SELECT ` + timetableEntryColumns + ` FROM timetable_entries WHERE id = $1`
	var entry models.TimetableEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListActiveAtSlots returns every active entry of the semester occupying any of the slots.
func (r *TimetableEntryRepository) ListActiveAtSlots(ctx context.Context, exec sqlx.ExtContext, semesterID string, slots []models.TimeSlot) ([]models.TimetableEntry, error) {
	if len(slots) == 0 {
		return nil, nil
	}
	days := make([]string, len(slots))
	periods := make([]string, len(slots))
	for i, slot := range slots {
		days[i] = string(slot.Day)
		periods[i] = slot.PeriodID
	}
	query := `SELECT ` + timetableEntryColumns + ` FROM timetable_entries
WHERE academic_semester_id = $1 AND is_active
AND (day_of_week, period_id) IN (SELECT * FROM unnest($2::text[], $3::text[]))
ORDER BY created_at, id`
	var entries []models.TimetableEntry
	if err := sqlx.SelectContext(ctx, r.exec(exec), &entries, query, semesterID, pq.Array(days), pq.Array(periods)); err != nil {
		return nil, fmt.Errorf("list timetable entries at slots: %w", err)
	}
	return entries, nil
}

// ListActiveBySemester returns every active entry of the semester.
func (r *TimetableEntryRepository) ListActiveBySemester(ctx context.Context, semesterID string) ([]models.TimetableEntry, error) {
	query := `SELECT ` + timetableEntryColumns + ` FROM timetable_entries WHERE academic_semester_id = $1 AND is_active ORDER BY id`
	var entries []models.TimetableEntry
	if err := r.db.SelectContext(ctx, &entries, query, semesterID); err != nil {
		return nil, fmt.Errorf("list active timetable entries: %w", err)
	}
	return entries, nil
}

// LockSlots takes a transaction-scoped advisory lock per slot so writers touching the same
// slot serialize. Keys are locked in sorted order to avoid deadlocks.
func (r *TimetableEntryRepository) LockSlots(ctx context.Context, tx sqlx.ExtContext, semesterID string, slots []models.TimeSlot) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	seen := make(map[string]struct{}, len(slots))
	keys := make([]string, 0, len(slots))
	for _, slot := range slots {
		key := "timetable:" + semesterID + ":" + slot.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return fmt.Errorf("lock timetable slot: %w", err)
		}
	}
	return nil
}

// Insert creates a single entry.
func (r *TimetableEntryRepository) Insert(ctx context.Context, exec sqlx.ExtContext, entry *models.TimetableEntry) error {
	if entry == nil {
		return fmt.Errorf("timetable entry payload is nil")
	}
	prepareEntry(entry, time.Now().UTC())
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), insertTimetableEntryQuery, entry); err != nil {
		return fmt.Errorf("insert timetable entry: %w", err)
	}
	return nil
}

// BulkInsert creates entries inside the caller's transaction.
func (r *TimetableEntryRepository) BulkInsert(ctx context.Context, tx sqlx.ExtContext, entries []models.TimetableEntry) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	now := time.Now().UTC()
	for i := range entries {
		prepareEntry(&entries[i], now)
		if _, err := sqlx.NamedExecContext(ctx, tx, insertTimetableEntryQuery, &entries[i]); err != nil {
			return fmt.Errorf("bulk insert timetable entry: %w", err)
		}
	}
	return nil
}

// Update rewrites the mutable fields of an active entry.
func (r *TimetableEntryRepository) Update(ctx context.Context, exec sqlx.ExtContext, entry *models.TimetableEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	const query = `UPDATE timetable_entries SET day_of_week = :day_of_week, period_id = :period_id, room_id = :room_id,
note = :note, updated_at = :updated_at WHERE id = :id AND is_active`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, entry)
	if err != nil {
		return fmt.Errorf("update timetable entry: %w", err)
	}
	ok, err := affectedOne(result, "update timetable entry")
	if err != nil {
		return err
	}
	if !ok {
		return sql.ErrNoRows
	}
	return nil
}

// Deactivate soft-deletes the entries and returns how many were still active.
func (r *TimetableEntryRepository) Deactivate(ctx context.Context, exec sqlx.ExtContext, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `UPDATE timetable_entries SET is_active = FALSE, deactivated_at = $1, updated_at = $1 WHERE id = ANY($2) AND is_active`
	result, err := r.exec(exec).ExecContext(ctx, query, at, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("deactivate timetable entries: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate timetable entries rows affected: %w", err)
	}
	return affected, nil
}

// DeactivateCourseEntries soft-deletes the active COURSE entries of the classroom courses.
func (r *TimetableEntryRepository) DeactivateCourseEntries(ctx context.Context, exec sqlx.ExtContext, semesterID string, courseIDs []string, at time.Time) (int64, error) {
	if len(courseIDs) == 0 {
		return 0, nil
	}
	const query = `UPDATE timetable_entries SET is_active = FALSE, deactivated_at = $1, updated_at = $1
WHERE academic_semester_id = $2 AND entry_type = $3 AND classroom_course_id = ANY($4) AND is_active`
	result, err := r.exec(exec).ExecContext(ctx, query, at, semesterID, string(models.EntryTypeCourse), pq.Array(courseIDs))
	if err != nil {
		return 0, fmt.Errorf("deactivate course entries: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate course entries rows affected: %w", err)
	}
	return affected, nil
}

const insertTimetableEntryQuery = `INSERT INTO timetable_entries (id, academic_semester_id, classroom_id, day_of_week, period_id, entry_type,
room_id, classroom_course_id, subject_id, instructor_ids, note, is_active, job_id, created_by, created_at, updated_at)
VALUES (:id, :academic_semester_id, :classroom_id, :day_of_week, :period_id, :entry_type,
:room_id, :classroom_course_id, :subject_id, :instructor_ids, :note, :is_active, :job_id, :created_by, :created_at, :updated_at)`

func prepareEntry(entry *models.TimetableEntry, now time.Time) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.EntryType == "" {
		entry.EntryType = models.EntryTypeCourse
	}
	if entry.InstructorIDs == nil {
		entry.InstructorIDs = pq.StringArray{}
	}
	entry.IsActive = true
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
