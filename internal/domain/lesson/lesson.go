// Package lesson models concrete dated lessons, the weekly schedule templates
// that generate them, and the attendance records that credit training hours.
package lesson

import (
	"strings"
	"time"

	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
	"github.com/wingtsun-academy/progression-engine/pkg/timeutil"
)

// LessonType is the closed set of lesson formats.
type LessonType string

const (
	TypeGroup   LessonType = "GROUP"
	TypePrivate LessonType = "PRIVATE"
)

func (t LessonType) IsValid() bool {
	return t == TypeGroup || t == TypePrivate
}

// ParseLessonType parses a lesson type case-insensitively.
func ParseLessonType(s string) (LessonType, error) {
	t := LessonType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", shared.Validationf("lesson", "ParseLessonType", "unknown lesson type %q", s)
	}
	return t, nil
}

// Durations fixes the credited length of each lesson type in hours.
type Durations map[LessonType]float64

// DefaultDurations credits two hours for every lesson type.
func DefaultDurations() Durations {
	return Durations{TypeGroup: 2.0, TypePrivate: 2.0}
}

// For returns the duration of t.
func (d Durations) For(t LessonType) (float64, error) {
	h, ok := d[t]
	if !ok || !t.IsValid() {
		return 0, shared.Validationf("lesson", "Duration", "unknown lesson type %q", t)
	}
	return h, nil
}

// Lesson is one dated class. Its duration is fixed at creation.
type Lesson struct {
	ID            string        `json:"id"`
	SchoolID      string        `json:"school_id"`
	Branch        shared.Branch `json:"branch"`
	LessonType    LessonType    `json:"lesson_type"`
	LessonDate    time.Time     `json:"lesson_date"`
	Day           time.Time     `json:"lesson_day"`
	DurationHours float64       `json:"duration_hours"`
	ScheduleID    *string       `json:"schedule_id,omitempty"`
	CreatedBy     string        `json:"created_by"`
	Notes         string        `json:"notes,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// NewLesson builds an ad hoc lesson.
func NewLesson(schoolID string, branch shared.Branch, lessonType LessonType, at time.Time, duration float64, createdBy, notes string) (*Lesson, error) {
	if schoolID == "" {
		return nil, shared.Validationf("lesson", "NewLesson", "school id is required")
	}
	if !branch.IsValid() {
		return nil, shared.Validationf("lesson", "NewLesson", "unknown branch %q", branch)
	}
	if !lessonType.IsValid() {
		return nil, shared.Validationf("lesson", "NewLesson", "unknown lesson type %q", lessonType)
	}
	if duration <= 0 {
		return nil, shared.Validationf("lesson", "NewLesson", "duration must be positive")
	}
	return &Lesson{
		ID:            shared.NewID(),
		SchoolID:      schoolID,
		Branch:        branch,
		LessonType:    lessonType,
		LessonDate:    at,
		Day:           timeutil.StartOfDay(at),
		DurationHours: shared.RoundHours(duration),
		CreatedBy:     createdBy,
		Notes:         strings.TrimSpace(notes),
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// DayKey identifies the calendar date the lesson takes place on.
func (l *Lesson) DayKey() string {
	return timeutil.DateKey(l.Day)
}

// InFuture reports whether the lesson starts strictly after now.
func (l *Lesson) InFuture(now time.Time) bool {
	return l.LessonDate.After(now)
}

// BelongsTo reports whether the lesson was generated by schedule id.
func (l *Lesson) BelongsTo(scheduleID string) bool {
	return l.ScheduleID != nil && *l.ScheduleID == scheduleID
}
