package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func TestSplitBlocks(t *testing.T) {
	cases := []struct {
		name     string
		n        int
		min, max int
		want     []int
		ok       bool
	}{
		{name: "nothing needed", n: 0, min: 1, max: 2, want: nil, ok: true},
		{name: "even split", n: 4, min: 2, max: 2, want: []int{2, 2}, ok: true},
		{name: "remainder single", n: 5, min: 1, max: 2, want: []int{2, 2, 1}, ok: true},
		{name: "rebalanced to respect min", n: 5, min: 2, max: 3, want: []int{3, 2}, ok: true},
		{name: "shrinks leading block", n: 4, min: 2, max: 3, want: []int{2, 2}, ok: true},
		{name: "short top up", n: 1, min: 2, max: 2, want: []int{1}, ok: true},
		{name: "odd demand with fixed pairs", n: 3, min: 2, max: 2, want: nil, ok: false},
		{name: "inverted bounds", n: 2, min: 3, max: 2, want: nil, ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := splitBlocks(tc.n, tc.min, tc.max)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestValidateInstructorConstraint(t *testing.T) {
	valid := models.InstructorConstraint{
		InstructorID:     "t-1",
		MaxPeriodsPerDay: 6,
		MinPeriodsPerDay: 2,
		HardUnavailable:  models.TimeSlots{{Day: models.DayFriday, PeriodID: "P1"}},
		PreferredDays:    models.Days{models.DayMonday},
		AvoidDays:        models.Days{models.DayFriday},
	}
	require.NoError(t, ValidateInstructorConstraint(valid))

	invalid := valid
	invalid.MinPeriodsPerDay = 8
	invalid.PreferredSlots = models.TimeSlots{{Day: "XYZ", PeriodID: "P1"}}
	invalid.AvoidDays = models.Days{models.DayMonday}

	err := ValidateInstructorConstraint(invalid)
	require.Error(t, err)
	var fields ValidationErrors
	require.ErrorAs(t, err, &fields)

	names := make([]string, 0, len(fields))
	for _, fe := range fields {
		names = append(names, fe.Field)
	}
	assert.ElementsMatch(t, []string{"min_periods_per_day", "preferred_slots[0]", "avoid_days"}, names)
}

func TestValidateSubjectConstraint(t *testing.T) {
	require.NoError(t, ValidateSubjectConstraint(models.SubjectConstraint{
		SubjectID: "math", PeriodsPerWeek: 4, MinConsecutive: 1, MaxConsecutive: 2,
		PreferredTimeOfDay: models.TimeOfDayMorning,
	}))

	err := ValidateSubjectConstraint(models.SubjectConstraint{
		SubjectID: "math", PeriodsPerWeek: 0, MinConsecutive: 3, MaxConsecutive: 2,
		PreferredTimeOfDay: "EVENING",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "periods_per_week")
	assert.Contains(t, err.Error(), "max_consecutive_periods")
	assert.Contains(t, err.Error(), "preferred_time_of_day")
}

func TestNormalizeInstructorConstraintPrefersHardUnavailability(t *testing.T) {
	monP1 := models.TimeSlot{Day: models.DayMonday, PeriodID: "P1"}
	monP2 := models.TimeSlot{Day: models.DayMonday, PeriodID: "P2"}

	got := NormalizeInstructorConstraint(models.InstructorConstraint{
		InstructorID:    "t-1",
		HardUnavailable: models.TimeSlots{monP1, monP1},
		PreferredSlots:  models.TimeSlots{monP2, monP1, monP2},
	})

	assert.Equal(t, models.TimeSlots{monP1}, got.HardUnavailable)
	assert.Equal(t, models.TimeSlots{monP2}, got.PreferredSlots)
}

func TestResolveEffectiveSlotsMergesInstructorLocks(t *testing.T) {
	instructor := "t-1"
	other := "t-2"
	constraint := models.InstructorConstraint{
		InstructorID:    instructor,
		HardUnavailable: models.TimeSlots{{Day: models.DayWednesday, PeriodID: "P4"}, {Day: models.DayMonday, PeriodID: "P2"}},
	}
	locks := []models.LockedSlot{
		{ID: "l-1", SemesterID: "sem-1", Day: models.DayMonday, PeriodIDs: []string{"P1", "P2"}, InstructorID: &instructor},
		{ID: "l-2", SemesterID: "sem-1", Day: models.DayTuesday, PeriodIDs: []string{"P3"}, InstructorID: &other},
		{ID: "l-3", SemesterID: "sem-0", Day: models.DayFriday, PeriodIDs: []string{"P1"}, InstructorID: &instructor},
		{ID: "l-4", SemesterID: "sem-1", Day: models.DayThursday, PeriodIDs: []string{"P5"}},
	}

	got := ResolveEffectiveSlots(constraint, "sem-1", locks)
	assert.Equal(t, []models.TimeSlot{
		{Day: models.DayMonday, PeriodID: "P1"},
		{Day: models.DayMonday, PeriodID: "P2"},
		{Day: models.DayWednesday, PeriodID: "P4"},
	}, got)
}

func TestCheckFeasibilityReportsShortage(t *testing.T) {
	hard := models.TimeSlots{}
	for _, period := range fixturePeriods(3) {
		hard = append(hard, models.TimeSlot{Day: models.DayMonday, PeriodID: period.ID})
	}
	problem := Problem{
		SemesterID: "sem-1",
		Days:       []models.Day{models.DayMonday, models.DayTuesday},
		Periods:    fixturePeriods(3),
		Courses: []models.Course{
			fixtureCourse("c-ok", "art", "A", 2, "t-2"),
			fixtureCourse("c-short", "math", "B", 4, "t-1"),
		},
		Instructors: map[string]models.InstructorConstraint{
			"t-1": {InstructorID: "t-1", HardUnavailable: hard},
		},
	}

	conflicts := CheckFeasibility(problem)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "c-short", conflicts[0].CourseID)
	assert.Equal(t, 4, conflicts[0].Required)
	assert.Equal(t, 3, conflicts[0].Available)
	assert.Equal(t, "Class B", conflicts[0].Classroom)

	err := Feasible(problem)
	var feasibility *FeasibilityError
	require.ErrorAs(t, err, &feasibility)
	assert.Len(t, feasibility.Conflicts, 1)
}

func TestCheckFeasibilityRequiresDistinctDays(t *testing.T) {
	course := fixtureCourse("c-pe", "pe", "A", 6)
	course.MinConsecutive = 2
	course.MaxConsecutive = 2
	problem := Problem{
		Days:    []models.Day{models.DayMonday, models.DayTuesday},
		Periods: fixturePeriods(6),
		Courses: []models.Course{course},
	}

	conflicts := CheckFeasibility(problem)
	require.Len(t, conflicts, 1)
	assert.Contains(t, conflicts[0].Reason, "separate days")
}

func TestCheckFeasibilityReportsCourseWithoutPeriods(t *testing.T) {
	problem := Problem{
		Days:    []models.Day{models.DayMonday},
		Periods: fixturePeriods(3),
		Courses: []models.Course{fixtureCourse("c-empty", "art", "A", 0, "t-1")},
	}

	conflicts := CheckFeasibility(problem)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "c-empty", conflicts[0].CourseID)
	assert.Contains(t, conflicts[0].Reason, "periods_per_week")
}

func TestQualityDistributionScore(t *testing.T) {
	assert.Equal(t, 1.0, distributionScore([]int{2}))
	assert.Equal(t, 1.0, distributionScore([]int{0, 2, 4}))
	assert.Equal(t, 0.9, distributionScore([]int{1, 0}))
	assert.Equal(t, 0.7, distributionScore([]int{0, 1, 2}))
	assert.Equal(t, 0.3, distributionScore([]int{0, 1, 2, 3, 4}))
}
