package lesson

import (
	"context"
	"time"

	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
)

// Filter narrows lesson and report listings. Zero values mean "any".
type Filter struct {
	SchoolID string
	Branch   shared.Branch
	From     time.Time
	To       time.Time
	Limit    int
}

// Matches reports whether l passes the filter.
func (f Filter) Matches(l *Lesson) bool {
	if f.SchoolID != "" && l.SchoolID != f.SchoolID {
		return false
	}
	if f.Branch != "" && l.Branch != f.Branch {
		return false
	}
	if !f.From.IsZero() && l.LessonDate.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && l.LessonDate.After(f.To) {
		return false
	}
	return true
}

// LessonRepository persists lessons.
type LessonRepository interface {
	Create(ctx context.Context, l *Lesson) error

	// CreateForSchedule inserts a generated lesson unless the schedule already
	// has one on the same calendar date. Reports whether a row was inserted.
	CreateForSchedule(ctx context.Context, l *Lesson) (bool, error)

	Get(ctx context.Context, id string) (*Lesson, error)
	List(ctx context.Context, f Filter) ([]*Lesson, error)
	ListBySchedule(ctx context.Context, scheduleID string) ([]*Lesson, error)

	// Delete removes a lesson with zero attendance. Returns ErrInvalidState if
	// attendance exists and ErrNotFound if the lesson does not.
	Delete(ctx context.Context, id string) error

	// DeleteFutureUnattended removes every lesson of the schedule dated after
	// now that has no attendance, returning how many were removed.
	DeleteFutureUnattended(ctx context.Context, scheduleID string, now time.Time) (int, error)

	CountAttendance(ctx context.Context, lessonID string) (int, error)
}

// ScheduleRepository persists schedule templates.
type ScheduleRepository interface {
	Create(ctx context.Context, s *LessonSchedule) error
	Get(ctx context.Context, id string) (*LessonSchedule, error)

	// GetForUpdate reads the schedule and holds a row lock until the
	// transaction ends.
	GetForUpdate(ctx context.Context, id string) (*LessonSchedule, error)

	Update(ctx context.Context, s *LessonSchedule) error
	List(ctx context.Context, schoolID string, activeOnly bool) ([]*LessonSchedule, error)
}

// AttendanceRepository persists attendance records.
type AttendanceRepository interface {
	// Create inserts the record unless (lesson, student) already exists.
	// Reports whether a row was inserted.
	Create(ctx context.Context, a *Attendance) (bool, error)

	Get(ctx context.Context, id string) (*Attendance, error)

	// Delete removes the record and returns it. Returns ErrNotFound when no
	// row was deleted, so concurrent reverts credit back at most once.
	Delete(ctx context.Context, id string) (*Attendance, error)

	ListByLesson(ctx context.Context, lessonID string) ([]*Attendance, error)
	Report(ctx context.Context, f Filter) ([]ReportRow, error)
}
