package lesson

import (
	"time"

	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
	"github.com/wingtsun-academy/progression-engine/pkg/timeutil"
)

// LessonSchedule is a weekly recurrence template that materializes lessons
// on one weekday between StartDate and EndDate inclusive.
type LessonSchedule struct {
	ID            string             `json:"id"`
	SchoolID      string             `json:"school_id"`
	Branch        shared.Branch      `json:"branch"`
	LessonType    LessonType         `json:"lesson_type"`
	DayOfWeek     int                `json:"day_of_week"` // 0=Monday .. 6=Sunday
	StartTime     timeutil.TimeOfDay `json:"start_time"`
	DurationHours float64            `json:"duration_hours"`
	StartDate     time.Time          `json:"start_date"`
	EndDate       time.Time          `json:"end_date"`
	IsActive      bool               `json:"is_active"`
	CreatedBy     string             `json:"created_by"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// ScheduleParams carries the already-parsed inputs of a new schedule.
type ScheduleParams struct {
	SchoolID   string
	Branch     shared.Branch
	LessonType LessonType
	DayOfWeek  int
	StartTime  timeutil.TimeOfDay
	StartDate  time.Time
	EndDate    time.Time
	CreatedBy  string
}

// NewSchedule validates params and resolves the duration from the lesson type.
func NewSchedule(p ScheduleParams, durations Durations) (*LessonSchedule, error) {
	if p.SchoolID == "" {
		return nil, shared.Validationf("lesson", "NewSchedule", "school id is required")
	}
	if p.DayOfWeek < 0 || p.DayOfWeek > 6 {
		return nil, shared.NewDomainError("lesson", "NewSchedule", shared.ErrValueOutOfRange, "day_of_week must be between 0 and 6")
	}
	if !p.Branch.IsValid() {
		return nil, shared.Validationf("lesson", "NewSchedule", "unknown branch %q", p.Branch)
	}
	duration, err := durations.For(p.LessonType)
	if err != nil {
		return nil, err
	}
	if !p.EndDate.After(p.StartDate) {
		return nil, shared.Validationf("lesson", "NewSchedule", "end date must be after start date")
	}

	now := time.Now().UTC()
	return &LessonSchedule{
		ID:            shared.NewID(),
		SchoolID:      p.SchoolID,
		Branch:        p.Branch,
		LessonType:    p.LessonType,
		DayOfWeek:     p.DayOfWeek,
		StartTime:     p.StartTime,
		DurationHours: duration,
		StartDate:     timeutil.StartOfDay(p.StartDate),
		EndDate:       timeutil.StartOfDay(p.EndDate),
		IsActive:      true,
		CreatedBy:     p.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// GenerateDates returns every date on dayOfWeek (0=Monday) from start to end
// inclusive. When start already falls on dayOfWeek it is the first date.
func GenerateDates(dayOfWeek int, start, end time.Time) []time.Time {
	if dayOfWeek < 0 || dayOfWeek > 6 {
		return nil
	}
	current := timeutil.StartOfDay(start)
	last := timeutil.StartOfDay(end)

	for timeutil.MondayIndex(current) != dayOfWeek {
		current = timeutil.AddDays(current, 1)
	}

	var dates []time.Time
	for !current.After(last) {
		dates = append(dates, current)
		current = timeutil.AddDays(current, 7)
	}
	return dates
}

// Occurrences returns the full date sequence of the schedule.
func (s *LessonSchedule) Occurrences() []time.Time {
	return GenerateDates(s.DayOfWeek, s.StartDate, s.EndDate)
}

// MissingDates returns the occurrences that have no lesson yet, compared by
// calendar date.
func (s *LessonSchedule) MissingDates(existing []*Lesson) []time.Time {
	have := make(map[string]struct{}, len(existing))
	for _, l := range existing {
		have[l.DayKey()] = struct{}{}
	}

	var missing []time.Time
	for _, d := range s.Occurrences() {
		if _, ok := have[timeutil.DateKey(d)]; !ok {
			missing = append(missing, d)
		}
	}
	return missing
}

// LessonOn builds the lesson this schedule owns on date.
func (s *LessonSchedule) LessonOn(date time.Time) *Lesson {
	at := s.StartTime.On(date)
	id := s.ID
	return &Lesson{
		ID:            shared.NewID(),
		SchoolID:      s.SchoolID,
		Branch:        s.Branch,
		LessonType:    s.LessonType,
		LessonDate:    at,
		Day:           timeutil.StartOfDay(date),
		DurationHours: s.DurationHours,
		ScheduleID:    &id,
		CreatedBy:     s.CreatedBy,
		CreatedAt:     time.Now().UTC(),
	}
}

// ExtendTo moves the end date forward. The schedule must be active.
func (s *LessonSchedule) ExtendTo(newEnd time.Time) error {
	if err := s.EnsureActive(); err != nil {
		return err
	}
	newEnd = timeutil.StartOfDay(newEnd)
	if newEnd.Before(s.EndDate) {
		return shared.Validationf("lesson", "ExtendSchedule",
			"new end date %s is before the current end date %s", timeutil.FormatDate(newEnd), timeutil.FormatDate(s.EndDate))
	}
	s.EndDate = newEnd
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// EnsureActive fails with a conflict for an inactive schedule.
func (s *LessonSchedule) EnsureActive() error {
	if !s.IsActive {
		return shared.NewDomainError("lesson", "ExtendSchedule", shared.ErrInvalidState, "schedule is not active")
	}
	return nil
}

// Deactivate flips the schedule inactive. It cannot be undone.
func (s *LessonSchedule) Deactivate() {
	s.IsActive = false
	s.UpdatedAt = time.Now().UTC()
}
