package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const lockedSlotColumns = `id, academic_semester_id, scope_type, scope_ids, subject_id, day_of_week, period_ids, room_id,
instructor_id, reason, created_by, created_at, updated_at`

// LockedSlotRepository persists slots fixed by administrators before scheduling.
type LockedSlotRepository struct {
	db *sqlx.DB
}

// NewLockedSlotRepository constructs the repository.
func NewLockedSlotRepository(db *sqlx.DB) *LockedSlotRepository {
	return &LockedSlotRepository{db: db}
}

// ListBySemester returns the locks of a semester ordered by id.
func (r *LockedSlotRepository) ListBySemester(ctx context.Context, semesterID string) ([]models.LockedSlot, error) {
	query := `SELECT ` + lockedSlotColumns + ` FROM locked_slots WHERE academic_semester_id = $1 ORDER BY id`
	var slots []models.LockedSlot
	if err := r.db.SelectContext(ctx, &slots, query, semesterID); err != nil {
		return nil, fmt.Errorf("list locked slots: %w", err)
	}
	return slots, nil
}

// FindByID loads a lock by its identifier.
func (r *LockedSlotRepository) FindByID(ctx context.Context, id string) (*models.LockedSlot, error) {
	query := `SELECT ` + lockedSlotColumns + ` FROM locked_slots WHERE id = $1`
	var slot models.LockedSlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// Create inserts a lock.
func (r *LockedSlotRepository) Create(ctx context.Context, slot *models.LockedSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	slot.CreatedAt = now
	slot.UpdatedAt = now
	if slot.ScopeIDs == nil {
		slot.ScopeIDs = []string{}
	}
	const query = `INSERT INTO locked_slots (id, academic_semester_id, scope_type, scope_ids, subject_id, day_of_week, period_ids,
room_id, instructor_id, reason, created_by, created_at, updated_at)
VALUES (:id, :academic_semester_id, :scope_type, :scope_ids, :subject_id, :day_of_week, :period_ids,
:room_id, :instructor_id, :reason, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("insert locked slot: %w", err)
	}
	return nil
}

// Update rewrites a lock.
func (r *LockedSlotRepository) Update(ctx context.Context, slot *models.LockedSlot) error {
	slot.UpdatedAt = time.Now().UTC()
	if slot.ScopeIDs == nil {
		slot.ScopeIDs = []string{}
	}
	const query = `UPDATE locked_slots SET scope_type = :scope_type, scope_ids = :scope_ids, day_of_week = :day_of_week,
period_ids = :period_ids, room_id = :room_id, instructor_id = :instructor_id, reason = :reason, updated_at = :updated_at
WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, slot)
	if err != nil {
		return fmt.Errorf("update locked slot: %w", err)
	}
	ok, err := affectedOne(result, "update locked slot")
	if err != nil {
		return err
	}
	if !ok {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a lock.
func (r *LockedSlotRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM locked_slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete locked slot: %w", err)
	}
	ok, err := affectedOne(result, "delete locked slot")
	if err != nil {
		return err
	}
	if !ok {
		return sql.ErrNoRows
	}
	return nil
}
