package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type lockedSlotRepository interface {
	ListBySemester(ctx context.Context, semesterID string) ([]models.LockedSlot, error)
	FindByID(ctx context.Context, id string) (*models.LockedSlot, error)
	Create(ctx context.Context, slot *models.LockedSlot) error
	Update(ctx context.Context, slot *models.LockedSlot) error
	Delete(ctx context.Context, id string) error
}

type periodReader interface {
	ListPeriods(ctx context.Context) ([]models.Period, error)
}

// LockedSlotService manages slots that scheduling runs must leave untouched.
type LockedSlotService struct {
	repo      lockedSlotRepository
	periods   periodReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLockedSlotService builds the service.
func NewLockedSlotService(repo lockedSlotRepository, periods periodReader, validate *validator.Validate, logger *zap.Logger) *LockedSlotService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LockedSlotService{repo: repo, periods: periods, validator: validate, logger: logger}
}

// List returns the locks of a semester.
func (s *LockedSlotService) List(ctx context.Context, semesterID string) ([]models.LockedSlot, error) {
	if semesterID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "semester_id is required")
	}
	slots, err := s.repo.ListBySemester(ctx, semesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list locked slots")
	}
	if slots == nil {
		slots = []models.LockedSlot{}
	}
	return slots, nil
}

// Create stores a new lock.
func (s *LockedSlotService) Create(ctx context.Context, req dto.LockedSlotRequest, actorID string) (*models.LockedSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid locked slot payload")
	}
	day, err := models.ParseDay(req.DayOfWeek)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	slot := &models.LockedSlot{
		SemesterID:   req.SemesterID,
		ScopeType:    models.LockScope(req.ScopeType),
		ScopeIDs:     req.ScopeIDs,
		SubjectID:    req.SubjectID,
		Day:          day,
		PeriodIDs:    req.PeriodIDs,
		RoomID:       req.RoomID,
		InstructorID: req.InstructorID,
		Reason:       req.Reason,
	}
	if actorID != "" {
		slot.CreatedBy = &actorID
	}
	if err := s.normalize(ctx, slot); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create locked slot")
	}
	s.logger.Sugar().Infow("locked slot created", "id", slot.ID, "semester_id", slot.SemesterID, "scope", slot.ScopeType, "day", slot.Day)
	return slot, nil
}

// Update changes a lock. Omitted fields keep their stored value.
func (s *LockedSlotService) Update(ctx context.Context, id string, req dto.UpdateLockedSlotRequest) (*models.LockedSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid locked slot payload")
	}
	slot, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "locked slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load locked slot")
	}

	if req.ScopeType != nil {
		slot.ScopeType = models.LockScope(*req.ScopeType)
	}
	if req.ScopeIDs != nil {
		slot.ScopeIDs = req.ScopeIDs
	}
	if req.DayOfWeek != nil {
		day, err := models.ParseDay(*req.DayOfWeek)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		slot.Day = day
	}
	if req.PeriodIDs != nil {
		slot.PeriodIDs = req.PeriodIDs
	}
	if req.RoomID != nil {
		slot.RoomID = emptyToNil(req.RoomID)
	}
	if req.InstructorID != nil {
		slot.InstructorID = emptyToNil(req.InstructorID)
	}
	if req.Reason != nil {
		slot.Reason = req.Reason
	}
	if err := s.normalize(ctx, slot); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, slot); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "locked slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update locked slot")
	}
	return slot, nil
}

// Delete removes a lock.
func (s *LockedSlotService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "locked slot not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete locked slot")
	}
	s.logger.Sugar().Infow("locked slot deleted", "id", id)
	return nil
}

// normalize checks the scope and rewrites period_ids into day order. Every period must exist
// and the periods must be consecutive.
func (s *LockedSlotService) normalize(ctx context.Context, slot *models.LockedSlot) error {
	switch slot.ScopeType {
	case models.LockScopeAllSchool:
		slot.ScopeIDs = []string{}
	case models.LockScopeClassroom, models.LockScopeGradeLevel:
		if len(slot.ScopeIDs) == 0 {
			return appErrors.Clone(appErrors.ErrValidation, "scope_ids is required for this scope_type")
		}
	default:
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid scope_type %q", slot.ScopeType))
	}
	if len(slot.PeriodIDs) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "period_ids must not be empty")
	}

	periods, err := s.periods.ListPeriods(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load periods")
	}
	ordered, err := consecutivePeriods(periods, slot.PeriodIDs)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	slot.PeriodIDs = ordered
	return nil
}

func consecutivePeriods(periods []models.Period, ids []string) ([]string, error) {
	byID := make(map[string]models.Period, len(periods))
	for _, period := range periods {
		byID[period.ID] = period
	}
	selected := make([]models.Period, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		period, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("period %s does not exist", id)
		}
		if seen[id] {
			return nil, fmt.Errorf("period %s listed twice", id)
		}
		seen[id] = true
		selected = append(selected, period)
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i].Order < selected[j].Order })
	out := make([]string, len(selected))
	for i, period := range selected {
		if i > 0 && period.Order != selected[i-1].Order+1 {
			return nil, fmt.Errorf("periods must be consecutive")
		}
		out[i] = period.ID
	}
	return out, nil
}

func emptyToNil(value *string) *string {
	if value == nil || *value == "" {
		return nil
	}
	return value
}
