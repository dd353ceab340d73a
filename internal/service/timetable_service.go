package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type timetableEntryRepository interface {
	List(ctx context.Context, filter models.TimetableEntryFilter) ([]models.TimetableEntry, error)
	FindByID(ctx context.Context, id string) (*models.TimetableEntry, error)
	ListActiveAtSlots(ctx context.Context, exec sqlx.ExtContext, semesterID string, slots []models.TimeSlot) ([]models.TimetableEntry, error)
	LockSlots(ctx context.Context, tx sqlx.ExtContext, semesterID string, slots []models.TimeSlot) error
	Insert(ctx context.Context, exec sqlx.ExtContext, entry *models.TimetableEntry) error
	Update(ctx context.Context, exec sqlx.ExtContext, entry *models.TimetableEntry) error
	Deactivate(ctx context.Context, exec sqlx.ExtContext, ids []string, at time.Time) (int64, error)
}

type courseReader interface {
	FindCourse(ctx context.Context, id string) (*models.Course, error)
	ListPeriods(ctx context.Context) ([]models.Period, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// RefreshPublisher tells collaborators that a semester's timetable changed.
type RefreshPublisher interface {
	PublishRefresh(ctx context.Context, semesterID, userID string) error
}

// TimetableService manages committed timetable entries. Every write holds an advisory lock
// on the slots it touches so concurrent writers cannot double-book a slot.
type TimetableService struct {
	entries   timetableEntryRepository
	courses   courseReader
	tx        txProvider
	refresh   RefreshPublisher
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewTimetableService builds the service. refresh may be nil.
func NewTimetableService(entries timetableEntryRepository, courses courseReader, tx txProvider, refresh RefreshPublisher, validate *validator.Validate, logger *zap.Logger) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableService{
		entries:   entries,
		courses:   courses,
		tx:        tx,
		refresh:   refresh,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// List returns entries of a semester.
func (s *TimetableService) List(ctx context.Context, query dto.TimetableEntryQuery) ([]models.TimetableEntry, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable query")
	}
	filter := models.TimetableEntryFilter{
		SemesterID:      query.SemesterID,
		InstructorID:    query.InstructorID,
		RoomID:          query.RoomID,
		IncludeInactive: query.IncludeInactive,
	}
	if query.ClassroomID != "" {
		filter.ClassroomIDs = strings.Split(query.ClassroomID, ",")
	}
	if query.DayOfWeek != "" {
		day, err := models.ParseDay(query.DayOfWeek)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		filter.Day = day
	}
	entries, err := s.entries.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable entries")
	}
	if entries == nil {
		entries = []models.TimetableEntry{}
	}
	return entries, nil
}

// Validate reports the collisions a create request would cause without writing anything.
func (s *TimetableService) Validate(ctx context.Context, req dto.TimetableEntryRequest) (*models.TimetableValidation, error) {
	entry, err := s.buildEntry(ctx, req, "")
	if err != nil {
		return nil, err
	}
	existing, err := s.entries.ListActiveAtSlots(ctx, nil, entry.SemesterID, []models.TimeSlot{entry.Slot()})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable entries")
	}
	validation := newValidation(DetectConflicts(*entry, existing))
	return &validation, nil
}

// Create stores a manual entry. Collisions reject the write unless req.Force is set, in which
// case the colliding entries are deactivated.
func (s *TimetableService) Create(ctx context.Context, req dto.TimetableEntryRequest, actorID string) (*models.TimetableEntry, error) {
	entry, err := s.buildEntry(ctx, req, actorID)
	if err != nil {
		return nil, err
	}
	slots := []models.TimeSlot{entry.Slot()}
	err = s.withSlotLock(ctx, entry.SemesterID, slots, func(tx *sqlx.Tx) error {
		if err := s.resolveConflicts(ctx, tx, entry, req.Force); err != nil {
			return err
		}
		if err := s.entries.Insert(ctx, tx, entry); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable entry")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Sugar().Infow("timetable entry created", "id", entry.ID, "semester_id", entry.SemesterID,
		"classroom_id", entry.ClassroomID, "slot", entry.Slot().Key(), "forced", req.Force)
	s.publish(ctx, entry.SemesterID, actorID)
	return entry, nil
}

// Update moves or annotates an active entry.
func (s *TimetableService) Update(ctx context.Context, id string, req dto.UpdateTimetableEntryRequest, actorID string) (*models.TimetableEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable entry payload")
	}
	entry, err := s.findActive(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := entry.Slot()

	if req.DayOfWeek != nil {
		day, err := models.ParseDay(*req.DayOfWeek)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		entry.Day = day
	}
	if req.PeriodID != nil {
		if err := s.ensurePeriod(ctx, *req.PeriodID); err != nil {
			return nil, err
		}
		entry.PeriodID = *req.PeriodID
	}
	if req.ClearRoom {
		entry.RoomID = nil
	} else if req.RoomID != nil {
		entry.RoomID = emptyToNil(req.RoomID)
	}
	if req.Note != nil {
		entry.Note = req.Note
	}

	slots := []models.TimeSlot{previous, entry.Slot()}
	err = s.withSlotLock(ctx, entry.SemesterID, slots, func(tx *sqlx.Tx) error {
		if err := s.resolveConflicts(ctx, tx, entry, req.Force); err != nil {
			return err
		}
		if err := s.entries.Update(ctx, tx, entry); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "timetable entry not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update timetable entry")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, entry.SemesterID, actorID)
	return entry, nil
}

// Delete deactivates an entry.
func (s *TimetableService) Delete(ctx context.Context, id, actorID string) error {
	entry, err := s.findActive(ctx, id)
	if err != nil {
		return err
	}
	err = s.withSlotLock(ctx, entry.SemesterID, []models.TimeSlot{entry.Slot()}, func(tx *sqlx.Tx) error {
		affected, err := s.entries.Deactivate(ctx, tx, []string{entry.ID}, s.now().UTC())
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable entry")
		}
		if affected == 0 {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable entry not found")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, entry.SemesterID, actorID)
	return nil
}

// DetectConflicts lists the collisions between candidate and the active entries sharing its
// slot. The candidate itself is skipped when it already exists. BREAK entries never collide
// on the classroom.
func DetectConflicts(candidate models.TimetableEntry, existing []models.TimetableEntry) []models.TimetableConflict {
	conflicts := make([]models.TimetableConflict, 0)
	slot := candidate.Slot()
	for i := range existing {
		other := existing[i]
		if !other.IsActive || other.Slot() != slot || (candidate.ID != "" && other.ID == candidate.ID) {
			continue
		}
		if other.ClassroomID == candidate.ClassroomID && other.OccupiesClassroom() && candidate.OccupiesClassroom() {
			conflicts = append(conflicts, models.TimetableConflict{
				ConflictType:  models.ConflictClassroom,
				Message:       fmt.Sprintf("classroom %s already has an entry at %s", candidate.ClassroomID, slot.Key()),
				ExistingEntry: &other,
			})
		}
		if shared := sharedInstructors(candidate.InstructorIDs, other.InstructorIDs); len(shared) > 0 {
			conflicts = append(conflicts, models.TimetableConflict{
				ConflictType:  models.ConflictInstructor,
				Message:       fmt.Sprintf("instructor %s is already teaching at %s", strings.Join(shared, ", "), slot.Key()),
				ExistingEntry: &other,
			})
		}
		if candidate.RoomID != nil && other.RoomID != nil && *candidate.RoomID == *other.RoomID {
			conflicts = append(conflicts, models.TimetableConflict{
				ConflictType:  models.ConflictRoom,
				Message:       fmt.Sprintf("room %s is already booked at %s", *candidate.RoomID, slot.Key()),
				ExistingEntry: &other,
			})
		}
	}
	return conflicts
}

func (s *TimetableService) buildEntry(ctx context.Context, req dto.TimetableEntryRequest, actorID string) (*models.TimetableEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable entry payload")
	}
	day, err := models.ParseDay(req.DayOfWeek)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	if err := s.ensurePeriod(ctx, req.PeriodID); err != nil {
		return nil, err
	}

	entry := &models.TimetableEntry{
		SemesterID:    req.SemesterID,
		ClassroomID:   req.ClassroomID,
		Day:           day,
		PeriodID:      req.PeriodID,
		EntryType:     models.EntryType(req.EntryType),
		RoomID:        emptyToNil(req.RoomID),
		InstructorIDs: req.InstructorIDs,
		Note:          req.Note,
		IsActive:      true,
	}
	if entry.EntryType == "" {
		entry.EntryType = models.EntryTypeCourse
	}
	if actorID != "" {
		entry.CreatedBy = &actorID
	}

	if entry.EntryType == models.EntryTypeCourse {
		if req.ClassroomCourseID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "classroom_course_id is required for COURSE entries")
		}
		course, err := s.courses.FindCourse(ctx, req.ClassroomCourseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "classroom course not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom course")
		}
		if course.SemesterID != req.SemesterID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "classroom course belongs to another semester")
		}
		if entry.ClassroomID != "" && entry.ClassroomID != course.ClassroomID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "classroom_id does not match the classroom course")
		}
		entry.ClassroomID = course.ClassroomID
		entry.ClassroomCourseID = &course.ID
		entry.SubjectID = &course.SubjectID
		if len(entry.InstructorIDs) == 0 {
			entry.InstructorIDs = append(entry.InstructorIDs, course.InstructorIDs...)
		}
	}
	if entry.ClassroomID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "classroom_id is required")
	}
	sort.Strings(entry.InstructorIDs)
	return entry, nil
}

func (s *TimetableService) ensurePeriod(ctx context.Context, periodID string) error {
	periods, err := s.courses.ListPeriods(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load periods")
	}
	for _, period := range periods {
		if period.ID == periodID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("period %s does not exist", periodID))
}

func (s *TimetableService) findActive(ctx context.Context, id string) (*models.TimetableEntry, error) {
	entry, err := s.entries.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable entry not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable entry")
	}
	if !entry.IsActive {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable entry not found")
	}
	return entry, nil
}

// resolveConflicts must run while the entry's slot is locked.
func (s *TimetableService) resolveConflicts(ctx context.Context, tx *sqlx.Tx, entry *models.TimetableEntry, force bool) error {
	existing, err := s.entries.ListActiveAtSlots(ctx, tx, entry.SemesterID, []models.TimeSlot{entry.Slot()})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable entries")
	}
	conflicts := DetectConflicts(*entry, existing)
	if len(conflicts) == 0 {
		return nil
	}
	if !force {
		return conflictError(newValidation(conflicts))
	}
	ids := conflictingIDs(conflicts)
	if _, err := s.entries.Deactivate(ctx, tx, ids, s.now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate conflicting entries")
	}
	s.logger.Sugar().Infow("conflicting timetable entries deactivated", "semester_id", entry.SemesterID, "slot", entry.Slot().Key(), "entries", ids)
	return nil
}

func (s *TimetableService) withSlotLock(ctx context.Context, semesterID string, slots []models.TimeSlot, fn func(tx *sqlx.Tx) error) (err error) {
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.entries.LockSlots(ctx, tx, semesterID, slots); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock timetable slots")
		return err
	}
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit timetable transaction")
		return err
	}
	return nil
}

func (s *TimetableService) publish(ctx context.Context, semesterID, actorID string) {
	if s.refresh == nil {
		return
	}
	if err := s.refresh.PublishRefresh(ctx, semesterID, actorID); err != nil {
		s.logger.Warn("failed to publish timetable refresh", zap.String("semester_id", semesterID), zap.Error(err))
	}
}

func newValidation(conflicts []models.TimetableConflict) models.TimetableValidation {
	if conflicts == nil {
		conflicts = []models.TimetableConflict{}
	}
	return models.TimetableValidation{IsValid: len(conflicts) == 0, Conflicts: conflicts}
}

func conflictError(validation models.TimetableValidation) error {
	return appErrors.Wrap(&models.TimetableConflictError{Validation: validation},
		appErrors.ErrTimetableConflict.Code, appErrors.ErrTimetableConflict.Status, appErrors.ErrTimetableConflict.Message)
}

func conflictingIDs(conflicts []models.TimetableConflict) []string {
	seen := make(map[string]bool)
	ids := make([]string, 0, len(conflicts))
	for _, conflict := range conflicts {
		if conflict.ExistingEntry == nil || seen[conflict.ExistingEntry.ID] {
			continue
		}
		seen[conflict.ExistingEntry.ID] = true
		ids = append(ids, conflict.ExistingEntry.ID)
	}
	sort.Strings(ids)
	return ids
}

func sharedInstructors(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(b))
	for _, id := range b {
		set[id] = struct{}{}
	}
	var shared []string
	for _, id := range a {
		if _, ok := set[id]; ok {
			shared = append(shared, id)
		}
	}
	sort.Strings(shared)
	return shared
}
