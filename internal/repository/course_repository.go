package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// courseSelect resolves per-course overrides against subject defaults.
const courseSelect = `SELECT cc.id, cc.academic_semester_id, cc.subject_id, s.code AS subject_code, s.name AS subject_name,
cc.classroom_id, c.name AS classroom_name, c.grade_level,
COALESCE(array_agg(ci.instructor_id ORDER BY ci.instructor_id) FILTER (WHERE ci.instructor_id IS NOT NULL), '{}') AS instructor_ids,
COALESCE(cc.periods_per_week, sc.periods_per_week, 0) AS periods_per_week,
COALESCE(cc.required_room_type, sc.required_room_type, '') AS required_room_type,
COALESCE(cc.min_consecutive, sc.min_consecutive, 1) AS min_consecutive,
COALESCE(cc.max_consecutive, sc.max_consecutive, 2) AS max_consecutive,
COALESCE(cc.preferred_time_of_day, sc.preferred_time_of_day, 'ANYTIME') AS preferred_time_of_day
FROM classroom_courses cc
JOIN subjects s ON s.id = cc.subject_id
JOIN classrooms c ON c.id = cc.classroom_id
LEFT JOIN subject_constraints sc ON sc.subject_id = cc.subject_id
LEFT JOIN classroom_course_instructors ci ON ci.classroom_course_id = cc.id`

const courseGroupBy = `GROUP BY cc.id, s.code, s.name, c.name, c.grade_level,
sc.periods_per_week, sc.required_room_type, sc.min_consecutive, sc.max_consecutive, sc.preferred_time_of_day`

// CourseRepository reads the reference data a scheduling run consumes: classroom courses,
// periods and rooms. The academic administration service owns these tables.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// ListCourses returns the active courses of the classrooms in the semester.
func (r *CourseRepository) ListCourses(ctx context.Context, semesterID string, classroomIDs []string) ([]models.Course, error) {
	query := courseSelect + `
WHERE cc.academic_semester_id = $1 AND cc.classroom_id = ANY($2) AND cc.is_active
` + courseGroupBy + `
ORDER BY cc.id`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, semesterID, pq.Array(classroomIDs)); err != nil {
		return nil, fmt.Errorf("list classroom courses: %w", err)
	}
	return courses, nil
}

// FindCourse loads one classroom course.
func (r *CourseRepository) FindCourse(ctx context.Context, id string) (*models.Course, error) {
	query := courseSelect + `
WHERE cc.id = $1
` + courseGroupBy
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// ListPeriods returns active teaching periods in day order.
func (r *CourseRepository) ListPeriods(ctx context.Context) ([]models.Period, error) {
	const query = `SELECT id, name, period_order, start_time, end_time FROM periods WHERE is_active AND is_teaching ORDER BY period_order, id`
	var periods []models.Period
	if err := r.db.SelectContext(ctx, &periods, query); err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	return periods, nil
}

// ListRooms returns active rooms ordered by id.
func (r *CourseRepository) ListRooms(ctx context.Context) ([]models.Room, error) {
	const query = `SELECT id, name, room_type FROM rooms WHERE is_active ORDER BY id`
	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}
