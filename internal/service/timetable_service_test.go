package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type fakeEntryRepo struct {
	active      []models.TimetableEntry
	byID        map[string]*models.TimetableEntry
	locked      [][]models.TimeSlot
	inserted    []models.TimetableEntry
	updated     []models.TimetableEntry
	deactivated []string
	bulk        []models.TimetableEntry
	courseOff   []string
	insertErr   error
}

func (f *fakeEntryRepo) List(ctx context.Context, filter models.TimetableEntryFilter) ([]models.TimetableEntry, error) {
	return f.active, nil
}

func (f *fakeEntryRepo) FindByID(ctx context.Context, id string) (*models.TimetableEntry, error) {
	if entry, ok := f.byID[id]; ok {
		copied := *entry
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeEntryRepo) ListActiveAtSlots(ctx context.Context, exec sqlx.ExtContext, semesterID string, slots []models.TimeSlot) ([]models.TimetableEntry, error) {
	want := make(map[models.TimeSlot]bool, len(slots))
	for _, slot := range slots {
		want[slot] = true
	}
	var out []models.TimetableEntry
	for _, entry := range f.active {
		if entry.IsActive && entry.SemesterID == semesterID && want[entry.Slot()] {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (f *fakeEntryRepo) ListActiveBySemester(ctx context.Context, semesterID string) ([]models.TimetableEntry, error) {
	var out []models.TimetableEntry
	for _, entry := range f.active {
		if entry.IsActive && entry.SemesterID == semesterID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (f *fakeEntryRepo) LockSlots(ctx context.Context, tx sqlx.ExtContext, semesterID string, slots []models.TimeSlot) error {
	if tx == nil {
		return errors.New("nil transaction provided")
	}
	f.locked = append(f.locked, slots)
	return nil
}

func (f *fakeEntryRepo) Insert(ctx context.Context, exec sqlx.ExtContext, entry *models.TimetableEntry) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	entry.ID = "new-entry"
	f.inserted = append(f.inserted, *entry)
	return nil
}

func (f *fakeEntryRepo) BulkInsert(ctx context.Context, tx sqlx.ExtContext, entries []models.TimetableEntry) error {
	f.bulk = append(f.bulk, entries...)
	return nil
}

func (f *fakeEntryRepo) Update(ctx context.Context, exec sqlx.ExtContext, entry *models.TimetableEntry) error {
	f.updated = append(f.updated, *entry)
	return nil
}

func (f *fakeEntryRepo) Deactivate(ctx context.Context, exec sqlx.ExtContext, ids []string, at time.Time) (int64, error) {
	var affected int64
	for _, id := range ids {
		for i := range f.active {
			if f.active[i].ID == id && f.active[i].IsActive {
				f.active[i].IsActive = false
				affected++
			}
		}
	}
	f.deactivated = append(f.deactivated, ids...)
	return affected, nil
}

func (f *fakeEntryRepo) DeactivateCourseEntries(ctx context.Context, exec sqlx.ExtContext, semesterID string, courseIDs []string, at time.Time) (int64, error) {
	f.courseOff = append(f.courseOff, courseIDs...)
	return int64(len(courseIDs)), nil
}

type fakeCourseReader struct {
	courses map[string]models.Course
	periods []models.Period
	rooms   []models.Room
}

func (f *fakeCourseReader) FindCourse(ctx context.Context, id string) (*models.Course, error) {
	course, ok := f.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &course, nil
}

func (f *fakeCourseReader) ListCourses(ctx context.Context, semesterID string, classroomIDs []string) ([]models.Course, error) {
	wanted := make(map[string]bool, len(classroomIDs))
	for _, id := range classroomIDs {
		wanted[id] = true
	}
	var out []models.Course
	for _, course := range f.courses {
		if course.SemesterID == semesterID && wanted[course.ClassroomID] {
			out = append(out, course)
		}
	}
	return out, nil
}

func (f *fakeCourseReader) ListPeriods(ctx context.Context) ([]models.Period, error) {
	return f.periods, nil
}

func (f *fakeCourseReader) ListRooms(ctx context.Context) ([]models.Room, error) {
	return f.rooms, nil
}

type recordingRefresh struct {
	calls []string
	err   error
}

func (r *recordingRefresh) PublishRefresh(ctx context.Context, semesterID, userID string) error {
	r.calls = append(r.calls, semesterID+"/"+userID)
	return r.err
}

func newTxMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func timetableFixture() (*fakeEntryRepo, *fakeCourseReader) {
	room := "lab-1"
	course := "cc-math-k"
	subject := "math"
	entries := &fakeEntryRepo{
		active: []models.TimetableEntry{{
			ID: "e-1", SemesterID: "sem-1", ClassroomID: "K", Day: models.DayMonday, PeriodID: "P1",
			EntryType: models.EntryTypeCourse, ClassroomCourseID: &course, SubjectID: &subject,
			InstructorIDs: pq.StringArray{"t-1"}, RoomID: &room, IsActive: true,
		}},
	}
	entries.byID = map[string]*models.TimetableEntry{"e-1": &entries.active[0]}
	courses := &fakeCourseReader{
		courses: map[string]models.Course{
			"cc-math-k":  {ID: "cc-math-k", SemesterID: "sem-1", SubjectID: "math", ClassroomID: "K", InstructorIDs: pq.StringArray{"t-1"}},
			"cc-chem-l":  {ID: "cc-chem-l", SemesterID: "sem-1", SubjectID: "chem", ClassroomID: "L", InstructorIDs: pq.StringArray{"t-1"}},
			"cc-bio-l":   {ID: "cc-bio-l", SemesterID: "sem-1", SubjectID: "bio", ClassroomID: "L", InstructorIDs: pq.StringArray{"t-2"}},
			"cc-old-sem": {ID: "cc-old-sem", SemesterID: "sem-0", SubjectID: "bio", ClassroomID: "L"},
		},
		periods: []models.Period{{ID: "P1", Order: 1}, {ID: "P2", Order: 2}},
	}
	return entries, courses
}

func TestDetectConflicts(t *testing.T) {
	room := "lab-1"
	existing := []models.TimetableEntry{
		{ID: "e-1", ClassroomID: "K", Day: models.DayMonday, PeriodID: "P1", EntryType: models.EntryTypeCourse, InstructorIDs: pq.StringArray{"t-1", "t-2"}, RoomID: &room, IsActive: true},
		{ID: "e-2", ClassroomID: "L", Day: models.DayMonday, PeriodID: "P1", EntryType: models.EntryTypeBreak, IsActive: true},
		{ID: "e-3", ClassroomID: "K", Day: models.DayTuesday, PeriodID: "P1", EntryType: models.EntryTypeCourse, InstructorIDs: pq.StringArray{"t-1"}, IsActive: true},
	}

	candidate := models.TimetableEntry{ClassroomID: "K", Day: models.DayMonday, PeriodID: "P1", EntryType: models.EntryTypeCourse, InstructorIDs: pq.StringArray{"t-2"}, RoomID: &room}
	conflicts := DetectConflicts(candidate, existing)
	require.Len(t, conflicts, 3)
	assert.Equal(t, models.ConflictClassroom, conflicts[0].ConflictType)
	assert.Equal(t, models.ConflictInstructor, conflicts[1].ConflictType)
	assert.Contains(t, conflicts[1].Message, "t-2")
	assert.Equal(t, models.ConflictRoom, conflicts[2].ConflictType)
	assert.Equal(t, "e-1", conflicts[2].ExistingEntry.ID)

	breakCandidate := models.TimetableEntry{ClassroomID: "L", Day: models.DayMonday, PeriodID: "P1", EntryType: models.EntryTypeCourse}
	assert.Empty(t, DetectConflicts(breakCandidate, existing), "BREAK entries do not hold the classroom")

	self := existing[0]
	assert.Empty(t, DetectConflicts(self, existing[:1]))
}

func TestTimetableServiceCreateRejectsConflict(t *testing.T) {
	entries, courses := timetableFixture()
	db, mock := newTxMock(t)
	refresh := &recordingRefresh{}
	svc := NewTimetableService(entries, courses, db, refresh, nil, nil)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), dto.TimetableEntryRequest{
		SemesterID: "sem-1", ClassroomCourseID: "cc-chem-l", DayOfWeek: "mon", PeriodID: "P1",
	}, "user-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrTimetableConflict))

	var conflictErr *models.TimetableConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.False(t, conflictErr.Validation.IsValid)
	require.Len(t, conflictErr.Validation.Conflicts, 1)
	assert.Equal(t, models.ConflictInstructor, conflictErr.Validation.Conflicts[0].ConflictType)

	assert.Empty(t, entries.inserted)
	assert.Empty(t, refresh.calls)
	assert.Equal(t, [][]models.TimeSlot{{{Day: models.DayMonday, PeriodID: "P1"}}}, entries.locked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableServiceCreateForceDeactivatesConflicts(t *testing.T) {
	entries, courses := timetableFixture()
	db, mock := newTxMock(t)
	refresh := &recordingRefresh{}
	svc := NewTimetableService(entries, courses, db, refresh, nil, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	entry, err := svc.Create(context.Background(), dto.TimetableEntryRequest{
		SemesterID: "sem-1", ClassroomCourseID: "cc-chem-l", DayOfWeek: "MON", PeriodID: "P1", Force: true,
	}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "L", entry.ClassroomID)
	assert.Equal(t, "chem", *entry.SubjectID)
	assert.Equal(t, []string{"e-1"}, entries.deactivated)
	require.Len(t, entries.inserted, 1)
	assert.Equal(t, []string{"sem-1/user-1"}, refresh.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableServiceCreateWithoutConflict(t *testing.T) {
	entries, courses := timetableFixture()
	db, mock := newTxMock(t)
	refresh := &recordingRefresh{err: errors.New("redis down")}
	svc := NewTimetableService(entries, courses, db, refresh, nil, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	entry, err := svc.Create(context.Background(), dto.TimetableEntryRequest{
		SemesterID: "sem-1", ClassroomCourseID: "cc-bio-l", DayOfWeek: "MON", PeriodID: "P1",
	}, "user-2")
	require.NoError(t, err, "refresh failures must not fail the write")
	assert.Equal(t, []string{"t-2"}, []string(entry.InstructorIDs))
	assert.Empty(t, entries.deactivated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableServiceCreateValidation(t *testing.T) {
	entries, courses := timetableFixture()
	db, _ := newTxMock(t)
	svc := NewTimetableService(entries, courses, db, nil, nil, nil)

	cases := []struct {
		name string
		req  dto.TimetableEntryRequest
		want *appErrors.Error
	}{
		{"unknown period", dto.TimetableEntryRequest{SemesterID: "sem-1", ClassroomCourseID: "cc-bio-l", DayOfWeek: "MON", PeriodID: "P9"}, appErrors.ErrValidation},
		{"bad day", dto.TimetableEntryRequest{SemesterID: "sem-1", ClassroomCourseID: "cc-bio-l", DayOfWeek: "XYZ", PeriodID: "P1"}, appErrors.ErrValidation},
		{"missing course", dto.TimetableEntryRequest{SemesterID: "sem-1", ClassroomCourseID: "nope", DayOfWeek: "MON", PeriodID: "P1"}, appErrors.ErrNotFound},
		{"other semester", dto.TimetableEntryRequest{SemesterID: "sem-1", ClassroomCourseID: "cc-old-sem", DayOfWeek: "MON", PeriodID: "P1"}, appErrors.ErrValidation},
		{"classroom mismatch", dto.TimetableEntryRequest{SemesterID: "sem-1", ClassroomCourseID: "cc-bio-l", ClassroomID: "K", DayOfWeek: "MON", PeriodID: "P1"}, appErrors.ErrValidation},
		{"break without classroom", dto.TimetableEntryRequest{SemesterID: "sem-1", EntryType: "BREAK", DayOfWeek: "MON", PeriodID: "P1"}, appErrors.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.req, "user-1")
			require.Error(t, err)
			assert.True(t, appErrors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestTimetableServiceValidate(t *testing.T) {
	entries, courses := timetableFixture()
	svc := NewTimetableService(entries, courses, nil, nil, nil, nil)

	result, err := svc.Validate(context.Background(), dto.TimetableEntryRequest{
		SemesterID: "sem-1", EntryType: "BREAK", ClassroomID: "K", DayOfWeek: "MON", PeriodID: "P1",
	})
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.NotNil(t, result.Conflicts)

	result, err = svc.Validate(context.Background(), dto.TimetableEntryRequest{
		SemesterID: "sem-1", EntryType: "ACTIVITY", ClassroomID: "K", DayOfWeek: "MON", PeriodID: "P1",
	})
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, models.ConflictClassroom, result.Conflicts[0].ConflictType)
}

func TestTimetableServiceUpdateLocksBothSlots(t *testing.T) {
	entries, courses := timetableFixture()
	db, mock := newTxMock(t)
	refresh := &recordingRefresh{}
	svc := NewTimetableService(entries, courses, db, refresh, nil, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	day := "TUE"
	period := "P2"
	entry, err := svc.Update(context.Background(), "e-1", dto.UpdateTimetableEntryRequest{DayOfWeek: &day, PeriodID: &period, ClearRoom: true}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.TimeSlot{Day: models.DayTuesday, PeriodID: "P2"}, entry.Slot())
	assert.Nil(t, entry.RoomID)
	require.Len(t, entries.locked, 1)
	assert.ElementsMatch(t, []models.TimeSlot{{Day: models.DayMonday, PeriodID: "P1"}, {Day: models.DayTuesday, PeriodID: "P2"}}, entries.locked[0])
	require.Len(t, entries.updated, 1)
	assert.Len(t, refresh.calls, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableServiceDelete(t *testing.T) {
	entries, courses := timetableFixture()
	db, mock := newTxMock(t)
	svc := NewTimetableService(entries, courses, db, nil, nil, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, svc.Delete(context.Background(), "e-1", "user-1"))
	assert.Equal(t, []string{"e-1"}, entries.deactivated)

	err := svc.Delete(context.Background(), "missing", "user-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
