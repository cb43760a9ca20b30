package lesson

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
	"github.com/wingtsun-academy/progression-engine/pkg/timeutil"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGenerateDates_WednesdaysOfJanuary(t *testing.T) {
	dates := GenerateDates(2, day(2026, 1, 1), day(2026, 1, 31))

	require.Len(t, dates, 4)
	assert.Equal(t, day(2026, 1, 7), dates[0])
	assert.Equal(t, day(2026, 1, 14), dates[1])
	assert.Equal(t, day(2026, 1, 21), dates[2])
	assert.Equal(t, day(2026, 1, 28), dates[3])
}

func TestGenerateDates_StartOnMatchingDayIsIncluded(t *testing.T) {
	dates := GenerateDates(3, day(2026, 1, 1), day(2026, 1, 15))

	assert.Equal(t, []time.Time{day(2026, 1, 1), day(2026, 1, 8), day(2026, 1, 15)}, dates)
}

func TestGenerateDates_EmptyWhenNoOccurrence(t *testing.T) {
	assert.Empty(t, GenerateDates(0, day(2026, 1, 6), day(2026, 1, 11)))
	assert.Nil(t, GenerateDates(7, day(2026, 1, 1), day(2026, 2, 1)))
}

func TestGenerateDates_IsRestartable(t *testing.T) {
	a := GenerateDates(4, day(2026, 3, 1), day(2026, 6, 30))
	b := GenerateDates(4, day(2026, 3, 1), day(2026, 6, 30))
	assert.Equal(t, a, b)
	for _, d := range a {
		assert.Equal(t, 4, timeutil.MondayIndex(d))
	}
}

func validParams() ScheduleParams {
	return ScheduleParams{
		SchoolID:   "school-1",
		Branch:     shared.BranchWingTsun,
		LessonType: TypeGroup,
		DayOfWeek:  2,
		StartTime:  timeutil.TimeOfDay{Hour: 19},
		StartDate:  day(2026, 1, 1),
		EndDate:    day(2026, 1, 31),
		CreatedBy:  "manager-1",
	}
}

func TestNewSchedule_Validation(t *testing.T) {
	p := validParams()
	p.DayOfWeek = 7
	_, err := NewSchedule(p, DefaultDurations())
	assert.True(t, shared.IsValidation(err))

	p = validParams()
	p.LessonType = "SEMINAR"
	_, err = NewSchedule(p, DefaultDurations())
	assert.True(t, shared.IsValidation(err))

	p = validParams()
	p.EndDate = p.StartDate
	_, err = NewSchedule(p, DefaultDurations())
	assert.True(t, shared.IsValidation(err))

	s, err := NewSchedule(validParams(), DefaultDurations())
	require.NoError(t, err)
	assert.True(t, s.IsActive)
	assert.Equal(t, 2.0, s.DurationHours)
}

func TestSchedule_MissingDatesDiffsByCalendarDate(t *testing.T) {
	s, err := NewSchedule(validParams(), DefaultDurations())
	require.NoError(t, err)

	existing := []*Lesson{s.LessonOn(day(2026, 1, 7)), s.LessonOn(day(2026, 1, 21))}
	missing := s.MissingDates(existing)

	assert.Equal(t, []time.Time{day(2026, 1, 14), day(2026, 1, 28)}, missing)
}

func TestSchedule_LessonOn(t *testing.T) {
	s, err := NewSchedule(validParams(), DefaultDurations())
	require.NoError(t, err)

	l := s.LessonOn(day(2026, 1, 7))
	assert.Equal(t, time.Date(2026, 1, 7, 19, 0, 0, 0, time.UTC), l.LessonDate)
	assert.True(t, l.BelongsTo(s.ID))
	assert.Equal(t, "2026-01-07", l.DayKey())
	assert.Equal(t, 2.0, l.DurationHours)
}

func TestSchedule_ExtendAndDeactivate(t *testing.T) {
	s, err := NewSchedule(validParams(), DefaultDurations())
	require.NoError(t, err)

	assert.True(t, shared.IsValidation(s.ExtendTo(day(2026, 1, 10))))
	require.NoError(t, s.ExtendTo(day(2026, 2, 28)))
	assert.Equal(t, day(2026, 2, 28), s.EndDate)

	s.Deactivate()
	assert.True(t, shared.IsConflict(s.ExtendTo(day(2026, 3, 31))))
}

func TestNewAttendance_SnapshotsDuration(t *testing.T) {
	l, err := NewLesson("school-1", shared.BranchEscrima, TypePrivate, day(2026, 2, 2), 2.0, "m", "")
	require.NoError(t, err)

	a := NewAttendance(l, "student-1", "m")
	l.DurationHours = 3.0

	assert.Equal(t, 2.0, a.HoursCredited)
}

func TestFilterMatches(t *testing.T) {
	l, err := NewLesson("school-1", shared.BranchEscrima, TypeGroup, day(2026, 2, 2), 2.0, "m", "")
	require.NoError(t, err)

	assert.True(t, Filter{}.Matches(l))
	assert.True(t, Filter{SchoolID: "school-1", From: day(2026, 2, 1), To: day(2026, 2, 3)}.Matches(l))
	assert.False(t, Filter{Branch: shared.BranchWingTsun}.Matches(l))
	assert.False(t, Filter{From: day(2026, 2, 3)}.Matches(l))
}

func TestParseLessonType(t *testing.T) {
	lt, err := ParseLessonType("group")
	require.NoError(t, err)
	assert.Equal(t, TypeGroup, lt)

	_, err = ParseLessonType("workshop")
	assert.True(t, shared.IsValidation(err))
}
