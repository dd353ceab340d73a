package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type instructorConstraintRepository interface {
	GetByInstructor(ctx context.Context, instructorID string) (*models.InstructorConstraint, error)
	List(ctx context.Context, instructorIDs []string) ([]models.InstructorConstraint, error)
	Upsert(ctx context.Context, constraint *models.InstructorConstraint) error
}

type subjectConstraintRepository interface {
	GetBySubject(ctx context.Context, subjectID string) (*models.SubjectConstraint, error)
	List(ctx context.Context, subjectIDs []string) ([]models.SubjectConstraint, error)
	Upsert(ctx context.Context, constraint *models.SubjectConstraint) error
}

// ConstraintService manages instructor availability and subject defaults.
type ConstraintService struct {
	instructors instructorConstraintRepository
	subjects    subjectConstraintRepository
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewConstraintService builds the service.
func NewConstraintService(instructors instructorConstraintRepository, subjects subjectConstraintRepository, validate *validator.Validate, logger *zap.Logger) *ConstraintService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConstraintService{instructors: instructors, subjects: subjects, validator: validate, logger: logger}
}

// ListInstructorConstraints returns every stored instructor constraint.
func (s *ConstraintService) ListInstructorConstraints(ctx context.Context) ([]models.InstructorConstraint, error) {
	constraints, err := s.instructors.List(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list instructor constraints")
	}
	if constraints == nil {
		constraints = []models.InstructorConstraint{}
	}
	return constraints, nil
}

// GetInstructorConstraint returns the stored constraint or an unconstrained default.
func (s *ConstraintService) GetInstructorConstraint(ctx context.Context, instructorID string) (*models.InstructorConstraint, error) {
	constraint, err := s.instructors.GetByInstructor(ctx, instructorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.InstructorConstraint{
				InstructorID:    instructorID,
				HardUnavailable: models.TimeSlots{},
				PreferredSlots:  models.TimeSlots{},
				PreferredDays:   models.Days{},
				AvoidDays:       models.Days{},
			}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor constraint")
	}
	return constraint, nil
}

// UpsertInstructorConstraint replaces an instructor's constraint. Preferred slots that are also
// hard-unavailable are dropped before storing.
func (s *ConstraintService) UpsertInstructorConstraint(ctx context.Context, instructorID string, req dto.InstructorConstraintRequest) (*models.InstructorConstraint, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid instructor constraint payload")
	}
	preferredDays, err := parseDays(req.PreferredDays)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	avoidDays, err := parseDays(req.AvoidDays)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	constraint := models.InstructorConstraint{
		InstructorID:     instructorID,
		HardUnavailable:  models.TimeSlots(req.HardUnavailable),
		PreferredSlots:   models.TimeSlots(req.PreferredSlots),
		MaxPeriodsPerDay: req.MaxPeriodsPerDay,
		MinPeriodsPerDay: req.MinPeriodsPerDay,
		PreferredDays:    preferredDays,
		AvoidDays:        avoidDays,
		AssignedRoomID:   req.AssignedRoomID,
	}
	if err := scheduler.ValidateInstructorConstraint(constraint); err != nil {
		return nil, constraintValidationError(err, "invalid instructor constraint")
	}
	constraint = scheduler.NormalizeInstructorConstraint(constraint)

	if existing, err := s.instructors.GetByInstructor(ctx, instructorID); err == nil {
		constraint.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor constraint")
	}

	if err := s.instructors.Upsert(ctx, &constraint); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store instructor constraint")
	}
	s.logger.Sugar().Infow("instructor constraint stored", "instructor_id", instructorID,
		"hard_unavailable", len(constraint.HardUnavailable), "preferred", len(constraint.PreferredSlots))
	return &constraint, nil
}

// ListSubjectConstraints returns every stored subject constraint.
func (s *ConstraintService) ListSubjectConstraints(ctx context.Context) ([]models.SubjectConstraint, error) {
	constraints, err := s.subjects.List(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subject constraints")
	}
	if constraints == nil {
		constraints = []models.SubjectConstraint{}
	}
	return constraints, nil
}

// GetSubjectConstraint returns the stored subject constraint.
func (s *ConstraintService) GetSubjectConstraint(ctx context.Context, subjectID string) (*models.SubjectConstraint, error) {
	constraint, err := s.subjects.GetBySubject(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject constraint not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject constraint")
	}
	return constraint, nil
}

// UpsertSubjectConstraint replaces a subject's defaults. Consecutive bounds default to 1..2.
func (s *ConstraintService) UpsertSubjectConstraint(ctx context.Context, subjectID string, req dto.SubjectConstraintRequest) (*models.SubjectConstraint, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject constraint payload")
	}
	constraint := models.SubjectConstraint{
		SubjectID:          subjectID,
		PeriodsPerWeek:     req.PeriodsPerWeek,
		MinConsecutive:     req.MinConsecutive,
		MaxConsecutive:     req.MaxConsecutive,
		PreferredTimeOfDay: models.TimeOfDay(req.PreferredTimeOfDay),
		RequiredRoomType:   req.RequiredRoomType,
	}
	if constraint.MinConsecutive == 0 {
		constraint.MinConsecutive = 1
	}
	if constraint.MaxConsecutive == 0 {
		constraint.MaxConsecutive = constraint.MinConsecutive
		if constraint.MaxConsecutive < 2 {
			constraint.MaxConsecutive = 2
		}
	}
	if constraint.PreferredTimeOfDay == "" {
		constraint.PreferredTimeOfDay = models.TimeOfDayAnytime
	}
	if err := scheduler.ValidateSubjectConstraint(constraint); err != nil {
		return nil, constraintValidationError(err, "invalid subject constraint")
	}

	if existing, err := s.subjects.GetBySubject(ctx, subjectID); err == nil {
		constraint.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject constraint")
	}

	if err := s.subjects.Upsert(ctx, &constraint); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store subject constraint")
	}
	return &constraint, nil
}

func constraintValidationError(err error, message string) error {
	appErr := appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	var fields scheduler.ValidationErrors
	if errors.As(err, &fields) {
		return appErr.WithDetails(fields)
	}
	return appErr
}

func parseDays(raw []string) (models.Days, error) {
	days := make(models.Days, 0, len(raw))
	for _, value := range raw {
		day, err := models.ParseDay(value)
		if err != nil {
			return nil, err
		}
		if !days.Contains(day) {
			days = append(days, day)
		}
	}
	return days, nil
}
