package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func strPtr(v string) *string { return &v }

func fixturePeriods(n int) []models.Period {
	periods := make([]models.Period, 0, n)
	for i := 1; i <= n; i++ {
		periods = append(periods, models.Period{
			ID:        fmt.Sprintf("P%d", i),
			Name:      fmt.Sprintf("Period %d", i),
			Order:     i,
			StartTime: fmt.Sprintf("%02d:00", 6+i),
		})
	}
	return periods
}

func fixtureCourse(id, subject, classroom string, periods int, instructors ...string) models.Course {
	return models.Course{
		ID:             id,
		SubjectID:      subject,
		SubjectCode:    "SUB-" + subject,
		SubjectName:    "Subject " + subject,
		ClassroomID:    classroom,
		ClassroomName:  "Class " + classroom,
		GradeLevel:     10,
		InstructorIDs:  instructors,
		PeriodsPerWeek: periods,
		MinConsecutive: 1,
		MaxConsecutive: 2,
	}
}

func fixtureProblem() Problem {
	return Problem{
		SemesterID: "sem-1",
		Days:       []models.Day{models.DayMonday, models.DayTuesday, models.DayWednesday},
		Periods:    fixturePeriods(6),
		Rooms: []models.Room{
			{ID: "lab-2", Name: "Lab 2", RoomType: "LAB"},
			{ID: "lab-1", Name: "Lab 1", RoomType: "LAB"},
		},
		Courses: []models.Course{
			fixtureCourse("c-math-a", "math", "A", 4, "t-1"),
			fixtureCourse("c-math-b", "math", "B", 4, "t-1"),
			fixtureCourse("c-bio-a", "bio", "A", 2, "t-2"),
			fixtureCourse("c-bio-b", "bio", "B", 2, "t-2"),
			fixtureCourse("c-eng-a", "eng", "A", 3, "t-3"),
			fixtureCourse("c-eng-b", "eng", "B", 3, "t-3"),
		},
		Instructors: map[string]models.InstructorConstraint{
			"t-1": {InstructorID: "t-1", MaxPeriodsPerDay: 4, PreferredDays: models.Days{models.DayMonday}},
			"t-2": {InstructorID: "t-2", HardUnavailable: models.TimeSlots{{Day: models.DayMonday, PeriodID: "P1"}}},
			"t-3": {InstructorID: "t-3", AvoidDays: models.Days{models.DayWednesday}},
		},
	}
}

func withLab(p Problem) Problem {
	for i := range p.Courses {
		if p.Courses[i].SubjectID == "bio" {
			p.Courses[i].RequiredRoomType = "LAB"
		}
	}
	return p
}

func assertNoDoubleBooking(t *testing.T, placements []Placement) {
	t.Helper()
	classroom := map[string]string{}
	instructor := map[string]string{}
	room := map[string]string{}
	for _, p := range placements {
		slot := string(p.Day) + "/" + p.PeriodID
		key := p.ClassroomID + "@" + slot
		require.NotContains(t, classroom, key, "classroom double booked")
		classroom[key] = p.CourseID
		for _, id := range p.InstructorIDs {
			key := id + "@" + slot
			require.NotContains(t, instructor, key, "instructor double booked")
			instructor[key] = p.CourseID
		}
		if p.RoomID != "" {
			key := p.RoomID + "@" + slot
			require.NotContains(t, room, key, "room double booked")
			room[key] = p.CourseID
		}
	}
}

func periodsByCourse(placements []Placement) map[string]int {
	out := map[string]int{}
	for _, p := range placements {
		out[p.CourseID]++
	}
	return out
}

func TestSchedulePlacesEveryCourseWithoutDoubleBooking(t *testing.T) {
	for _, algorithm := range []models.SchedulingAlgorithm{models.AlgorithmGreedy, models.AlgorithmBacktracking, models.AlgorithmHybrid} {
		t.Run(string(algorithm), func(t *testing.T) {
			problem := withLab(fixtureProblem())
			res, err := NewEngine(nil).Schedule(context.Background(), problem, Options{Algorithm: algorithm})
			require.NoError(t, err)

			assert.Empty(t, res.FailedCourses)
			assert.Equal(t, 6, res.ScheduledCourses)
			assert.Equal(t, 6, res.TotalCourses)
			assertNoDoubleBooking(t, res.Placements)

			counts := periodsByCourse(res.Placements)
			for _, course := range problem.Courses {
				assert.Equal(t, course.PeriodsPerWeek, counts[course.ID], course.ID)
			}
			for _, p := range res.Placements {
				if p.SubjectID == "bio" {
					assert.Contains(t, []string{"lab-1", "lab-2"}, p.RoomID)
					assert.False(t, p.Day == models.DayMonday && p.PeriodID == "P1", "t-2 is unavailable MON P1")
				}
			}
			assert.Greater(t, res.QualityScore, 0.0)
			assert.LessOrEqual(t, res.QualityScore, 100.0)
		})
	}
}

func TestScheduleIsDeterministic(t *testing.T) {
	for _, algorithm := range []models.SchedulingAlgorithm{models.AlgorithmGreedy, models.AlgorithmBacktracking} {
		t.Run(string(algorithm), func(t *testing.T) {
			engine := NewEngine(nil)
			first, err := engine.Schedule(context.Background(), withLab(fixtureProblem()), Options{Algorithm: algorithm})
			require.NoError(t, err)

			reversed := withLab(fixtureProblem())
			for i, j := 0, len(reversed.Courses)-1; i < j; i, j = i+1, j-1 {
				reversed.Courses[i], reversed.Courses[j] = reversed.Courses[j], reversed.Courses[i]
			}
			for i := 0; i < 5; i++ {
				again, err := engine.Schedule(context.Background(), reversed, Options{Algorithm: algorithm})
				require.NoError(t, err)
				assert.Equal(t, first.Placements, again.Placements)
				assert.Equal(t, first.FailedCourses, again.FailedCourses)
				assert.Equal(t, first.QualityScore, again.QualityScore)
			}
		})
	}
}

func TestScheduleReportsCourseBlockedByHardUnavailability(t *testing.T) {
	periods := fixturePeriods(4)
	hard := models.TimeSlots{}
	for _, day := range []models.Day{models.DayMonday, models.DayTuesday} {
		for _, period := range periods {
			hard = append(hard, models.TimeSlot{Day: day, PeriodID: period.ID})
		}
	}
	problem := Problem{
		SemesterID: "sem-1",
		Days:       []models.Day{models.DayMonday, models.DayTuesday},
		Periods:    periods,
		Courses:    []models.Course{fixtureCourse("c-1", "chem", "K", 2, "t-9")},
		Instructors: map[string]models.InstructorConstraint{
			"t-9": {InstructorID: "t-9", HardUnavailable: hard},
		},
	}

	for _, algorithm := range []models.SchedulingAlgorithm{models.AlgorithmGreedy, models.AlgorithmBacktracking, models.AlgorithmHybrid} {
		res, err := NewEngine(nil).Schedule(context.Background(), problem, Options{Algorithm: algorithm})
		require.NoError(t, err)
		require.Len(t, res.FailedCourses, 1)
		assert.Equal(t, "c-1", res.FailedCourses[0].CourseID)
		assert.NotEmpty(t, res.FailedCourses[0].Reason)
		assert.Empty(t, res.Placements)
		assert.Equal(t, 0, res.ScheduledCourses)
		assert.Less(t, res.QualityScore, 100.0)
	}
}

func TestScheduleNeverTouchesLockedSlots(t *testing.T) {
	problem := fixtureProblem()
	problem.LockedSlots = []models.LockedSlot{
		{
			ID:           "lock-assembly",
			SemesterID:   "sem-1",
			ScopeType:    models.LockScopeAllSchool,
			SubjectID:    "assembly",
			Day:          models.DayMonday,
			PeriodIDs:    []string{"P1", "P2"},
			InstructorID: strPtr("t-3"),
		},
		{
			ID:         "lock-lab",
			SemesterID: "sem-1",
			ScopeType:  models.LockScopeClassroom,
			ScopeIDs:   []string{"B"},
			SubjectID:  "club",
			Day:        models.DayTuesday,
			PeriodIDs:  []string{"P3"},
			RoomID:     strPtr("lab-1"),
		},
	}
	before := fmt.Sprintf("%+v", problem.LockedSlots)

	res, err := NewEngine(nil).Schedule(context.Background(), withLab(problem), Options{Algorithm: models.AlgorithmHybrid})
	require.NoError(t, err)
	assert.Equal(t, before, fmt.Sprintf("%+v", problem.LockedSlots))

	for _, p := range res.Placements {
		if p.Day == models.DayMonday {
			assert.NotContains(t, []string{"P1", "P2"}, p.PeriodID, "assembly covers every classroom")
		}
		if p.Day == models.DayTuesday && p.PeriodID == "P3" {
			assert.NotEqual(t, "B", p.ClassroomID)
			assert.NotEqual(t, "lab-1", p.RoomID)
		}
	}
}

func TestScheduleCreditsLockedSlotOfSameSubject(t *testing.T) {
	problem := Problem{
		Days:    []models.Day{models.DayMonday, models.DayTuesday},
		Periods: fixturePeriods(4),
		Courses: []models.Course{fixtureCourse("c-pe", "pe", "A", 2)},
		LockedSlots: []models.LockedSlot{{
			ID: "lock-pe", ScopeType: models.LockScopeGradeLevel, ScopeIDs: []string{"10"},
			SubjectID: "pe", Day: models.DayMonday, PeriodIDs: []string{"P3"},
		}},
	}
	res, err := NewEngine(nil).Schedule(context.Background(), problem, Options{Algorithm: models.AlgorithmGreedy})
	require.NoError(t, err)
	require.Len(t, res.Placements, 1)
	assert.Equal(t, models.DayTuesday, res.Placements[0].Day)
}

func TestScheduleKeepsConsecutiveBlocksOnSeparateDays(t *testing.T) {
	course := fixtureCourse("c-art", "art", "A", 4)
	course.MinConsecutive = 2
	course.MaxConsecutive = 2
	problem := Problem{
		Days:    []models.Day{models.DayMonday, models.DayTuesday, models.DayWednesday},
		Periods: fixturePeriods(5),
		Courses: []models.Course{course},
	}
	res, err := NewEngine(nil).Schedule(context.Background(), problem, Options{Algorithm: models.AlgorithmGreedy})
	require.NoError(t, err)
	require.Len(t, res.Placements, 4)

	byDay := map[models.Day][]int{}
	for _, p := range res.Placements {
		var order int
		fmt.Sscanf(p.PeriodID, "P%d", &order)
		byDay[p.Day] = append(byDay[p.Day], order)
	}
	require.Len(t, byDay, 2)
	for _, orders := range byDay {
		require.Len(t, orders, 2)
		assert.Equal(t, orders[0]+1, orders[1])
	}
}

// backtrackingProblem is feasible, but greedy places x and z on their preferred periods and
// leaves y, which shares a classroom with x and an instructor with z, without a slot.
func backtrackingProblem() Problem {
	return Problem{
		Days:    []models.Day{models.DayMonday},
		Periods: fixturePeriods(2),
		Courses: []models.Course{
			fixtureCourse("x", "s1", "A", 1, "t-1"),
			fixtureCourse("z", "s2", "C", 1, "t-2"),
			fixtureCourse("y", "s3", "A", 1, "t-2"),
		},
		Instructors: map[string]models.InstructorConstraint{
			"t-1": {InstructorID: "t-1", PreferredSlots: models.TimeSlots{{Day: models.DayMonday, PeriodID: "P1"}}},
			"t-2": {InstructorID: "t-2", PreferredSlots: models.TimeSlots{{Day: models.DayMonday, PeriodID: "P2"}}},
		},
	}
}

func TestBacktrackingRecoversWhatGreedyLeavesUnplaced(t *testing.T) {
	engine := NewEngine(nil)

	greedy, err := engine.Schedule(context.Background(), backtrackingProblem(), Options{Algorithm: models.AlgorithmGreedy})
	require.NoError(t, err)
	require.Len(t, greedy.FailedCourses, 1)
	assert.Equal(t, "y", greedy.FailedCourses[0].CourseID)

	for _, algorithm := range []models.SchedulingAlgorithm{models.AlgorithmBacktracking, models.AlgorithmHybrid} {
		res, err := engine.Schedule(context.Background(), backtrackingProblem(), Options{Algorithm: algorithm})
		require.NoError(t, err)
		assert.Empty(t, res.FailedCourses, algorithm)
		assert.Equal(t, 3, res.ScheduledCourses)
		assertNoDoubleBooking(t, res.Placements)
		assert.Greater(t, res.QualityScore, greedy.QualityScore)
	}
}

func TestScheduleStopsWhenCancelled(t *testing.T) {
	problem := Problem{Days: models.DefaultSchoolDays, Periods: fixturePeriods(8)}
	for i := 0; i < 10; i++ {
		problem.Courses = append(problem.Courses, fixtureCourse(fmt.Sprintf("c-%02d", i), fmt.Sprintf("s-%02d", i), "A", 2))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var seen []int
	opts := Options{
		Algorithm: models.AlgorithmGreedy,
		Progress: func(done, total int) {
			seen = append(seen, done)
			if done == 5 {
				cancel()
			}
		},
	}

	res, err := NewEngine(nil).Schedule(ctx, problem, opts)
	require.ErrorIs(t, err, ErrCancelled)
	require.NotNil(t, res)
	assert.Equal(t, 5, res.ScheduledCourses)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, seen)
}

func TestScheduleProgressIsMonotonic(t *testing.T) {
	var seen []int
	_, err := NewEngine(nil).Schedule(context.Background(), backtrackingProblem(), Options{
		Algorithm: models.AlgorithmBacktracking,
		Progress:  func(done, total int) { seen = append(seen, done) },
	})
	require.NoError(t, err)
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i], seen[i-1])
	}
	assert.Equal(t, 3, seen[len(seen)-1])
}

func TestBacktrackingTimeoutFallsBackToPartialResult(t *testing.T) {
	engine := NewEngine(nil)
	base := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	calls := 0
	engine.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}

	res, err := engine.Schedule(context.Background(), backtrackingProblem(), Options{
		Algorithm: models.AlgorithmBacktracking,
		Timeout:   time.Second,
	})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	require.Len(t, res.FailedCourses, 3)
	assert.Equal(t, reasonTimeout, res.FailedCourses[0].Reason)
}

func TestScheduleHonoursExistingEntriesUnlessForced(t *testing.T) {
	courseID := "c-hist"
	problem := Problem{
		Days:    []models.Day{models.DayMonday, models.DayTuesday},
		Periods: fixturePeriods(3),
		Courses: []models.Course{fixtureCourse(courseID, "hist", "A", 2, "t-1")},
		ExistingEntries: []models.TimetableEntry{{
			ID: "e-1", ClassroomID: "A", Day: models.DayMonday, PeriodID: "P1",
			EntryType: models.EntryTypeCourse, ClassroomCourseID: &courseID, InstructorIDs: []string{"t-1"}, IsActive: true,
		}},
	}

	res, err := NewEngine(nil).Schedule(context.Background(), problem, Options{Algorithm: models.AlgorithmGreedy})
	require.NoError(t, err)
	require.Len(t, res.Placements, 1)
	assert.Equal(t, models.DayTuesday, res.Placements[0].Day)

	problem.ForceOverwrite = true
	res, err = NewEngine(nil).Schedule(context.Background(), problem, Options{Algorithm: models.AlgorithmGreedy})
	require.NoError(t, err)
	assert.Len(t, res.Placements, 2)
}

func TestScheduleWithNothingToPlace(t *testing.T) {
	res, err := NewEngine(nil).Schedule(context.Background(), Problem{Periods: fixturePeriods(2)}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalCourses)
	assert.Equal(t, 100.0, res.QualityScore)
	assert.Empty(t, res.Placements)
}

func TestScheduleReportsInvalidCourse(t *testing.T) {
	problem := Problem{
		Days:    []models.Day{models.DayMonday},
		Periods: fixturePeriods(3),
		Courses: []models.Course{
			fixtureCourse("c-empty", "art", "A", 0, "t-1"),
			fixtureCourse("c-math", "math", "A", 1, "t-2"),
		},
	}

	res, err := NewEngine(nil).Schedule(context.Background(), problem, Options{Algorithm: models.AlgorithmGreedy})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalCourses)
	assert.Equal(t, 1, res.ScheduledCourses)
	require.Len(t, res.FailedCourses, 1)
	assert.Equal(t, "c-empty", res.FailedCourses[0].CourseID)
	assert.Contains(t, res.FailedCourses[0].Reason, "invalid course")
}
