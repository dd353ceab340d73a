package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const instructorConstraintColumns = `instructor_id, hard_unavailable, preferred_slots, max_periods_per_day, min_periods_per_day,
preferred_days, avoid_days, assigned_room_id, created_at, updated_at`

// InstructorConstraintRepository persists per-instructor scheduling constraints.
type InstructorConstraintRepository struct {
	db *sqlx.DB
}

// NewInstructorConstraintRepository constructs the repository.
func NewInstructorConstraintRepository(db *sqlx.DB) *InstructorConstraintRepository {
	return &InstructorConstraintRepository{db: db}
}

// GetByInstructor returns the stored constraint of an instructor.
func (r *InstructorConstraintRepository) GetByInstructor(ctx context.Context, instructorID string) (*models.InstructorConstraint, error) {
	query := `SELECT ` + instructorConstraintColumns + ` FROM instructor_constraints WHERE instructor_id = $1`
	var constraint models.InstructorConstraint
	if err := r.db.GetContext(ctx, &constraint, query, instructorID); err != nil {
		return nil, err
	}
	return &constraint, nil
}

// List returns every stored constraint, optionally restricted to the given instructors.
func (r *InstructorConstraintRepository) List(ctx context.Context, instructorIDs []string) ([]models.InstructorConstraint, error) {
	query := `SELECT ` + instructorConstraintColumns + ` FROM instructor_constraints`
	args := []interface{}{}
	if len(instructorIDs) > 0 {
		query += ` WHERE instructor_id = ANY($1)`
		args = append(args, pq.Array(instructorIDs))
	}
	query += ` ORDER BY instructor_id`
	var constraints []models.InstructorConstraint
	if err := r.db.SelectContext(ctx, &constraints, query, args...); err != nil {
		return nil, fmt.Errorf("list instructor constraints: %w", err)
	}
	return constraints, nil
}

// Upsert creates or replaces an instructor constraint.
func (r *InstructorConstraintRepository) Upsert(ctx context.Context, constraint *models.InstructorConstraint) error {
	now := time.Now().UTC()
	if constraint.CreatedAt.IsZero() {
		constraint.CreatedAt = now
	}
	constraint.UpdatedAt = now
	if constraint.HardUnavailable == nil {
		constraint.HardUnavailable = models.TimeSlots{}
	}
	if constraint.PreferredSlots == nil {
		constraint.PreferredSlots = models.TimeSlots{}
	}
	if constraint.PreferredDays == nil {
		constraint.PreferredDays = models.Days{}
	}
	if constraint.AvoidDays == nil {
		constraint.AvoidDays = models.Days{}
	}

	const query = `INSERT INTO instructor_constraints (instructor_id, hard_unavailable, preferred_slots, max_periods_per_day,
		min_periods_per_day, preferred_days, avoid_days, assigned_room_id, created_at, updated_at)
		VALUES (:instructor_id, :hard_unavailable, :preferred_slots, :max_periods_per_day,
		:min_periods_per_day, :preferred_days, :avoid_days, :assigned_room_id, :created_at, :updated_at)
		ON CONFLICT (instructor_id) DO UPDATE
		SET hard_unavailable = EXCLUDED.hard_unavailable,
		    preferred_slots = EXCLUDED.preferred_slots,
		    max_periods_per_day = EXCLUDED.max_periods_per_day,
		    min_periods_per_day = EXCLUDED.min_periods_per_day,
		    preferred_days = EXCLUDED.preferred_days,
		    avoid_days = EXCLUDED.avoid_days,
		    assigned_room_id = EXCLUDED.assigned_room_id,
		    updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, constraint); err != nil {
		return fmt.Errorf("upsert instructor constraint: %w", err)
	}
	return nil
}
