package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const subjectConstraintColumns = `subject_id, periods_per_week, min_consecutive, max_consecutive, preferred_time_of_day,
required_room_type, created_at, updated_at`

// SubjectConstraintRepository persists per-subject scheduling defaults.
type SubjectConstraintRepository struct {
	db *sqlx.DB
}

// NewSubjectConstraintRepository constructs the repository.
func NewSubjectConstraintRepository(db *sqlx.DB) *SubjectConstraintRepository {
	return &SubjectConstraintRepository{db: db}
}

// GetBySubject returns the stored constraint of a subject.
func (r *SubjectConstraintRepository) GetBySubject(ctx context.Context, subjectID string) (*models.SubjectConstraint, error) {
	query := `SELECT ` + subjectConstraintColumns + ` FROM subject_constraints WHERE subject_id = $1`
	var constraint models.SubjectConstraint
	if err := r.db.GetContext(ctx, &constraint, query, subjectID); err != nil {
		return nil, err
	}
	return &constraint, nil
}

// List returns stored constraints, optionally restricted to the given subjects.
func (r *SubjectConstraintRepository) List(ctx context.Context, subjectIDs []string) ([]models.SubjectConstraint, error) {
	query := `SELECT ` + subjectConstraintColumns + ` FROM subject_constraints`
	args := []interface{}{}
	if len(subjectIDs) > 0 {
		query += ` WHERE subject_id = ANY($1)`
		args = append(args, pq.Array(subjectIDs))
	}
	query += ` ORDER BY subject_id`
	var constraints []models.SubjectConstraint
	if err := r.db.SelectContext(ctx, &constraints, query, args...); err != nil {
		return nil, fmt.Errorf("list subject constraints: %w", err)
	}
	return constraints, nil
}

// Upsert creates or replaces a subject constraint.
func (r *SubjectConstraintRepository) Upsert(ctx context.Context, constraint *models.SubjectConstraint) error {
	now := time.Now().UTC()
	if constraint.CreatedAt.IsZero() {
		constraint.CreatedAt = now
	}
	constraint.UpdatedAt = now
	if constraint.PreferredTimeOfDay == "" {
		constraint.PreferredTimeOfDay = models.TimeOfDayAnytime
	}

	const query = `INSERT INTO subject_constraints (subject_id, periods_per_week, min_consecutive, max_consecutive,
		preferred_time_of_day, required_room_type, created_at, updated_at)
		VALUES (:subject_id, :periods_per_week, :min_consecutive, :max_consecutive,
		:preferred_time_of_day, :required_room_type, :created_at, :updated_at)
		ON CONFLICT (subject_id) DO UPDATE
		SET periods_per_week = EXCLUDED.periods_per_week,
		    min_consecutive = EXCLUDED.min_consecutive,
		    max_consecutive = EXCLUDED.max_consecutive,
		    preferred_time_of_day = EXCLUDED.preferred_time_of_day,
		    required_room_type = EXCLUDED.required_room_type,
		    updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, constraint); err != nil {
		return fmt.Errorf("upsert subject constraint: %w", err)
	}
	return nil
}
