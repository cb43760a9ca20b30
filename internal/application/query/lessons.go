package query

import (
	"context"
	"time"

	"github.com/wingtsun-academy/progression-engine/internal/application/uow"
	"github.com/wingtsun-academy/progression-engine/internal/domain/lesson"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
	"github.com/wingtsun-academy/progression-engine/pkg/timeutil"
)

// LessonFilterQuery selects lessons or report rows. Dates are YYYY-MM-DD and
// inclusive; empty fields do not filter.
type LessonFilterQuery struct {
	Actor    shared.Actor
	SchoolID string
	Branch   string
	From     string
	To       string
	Limit    int
}

// filter turns the query into a repository filter in loc.
func (q LessonFilterQuery) filter(loc *time.Location, op string) (lesson.Filter, error) {
	f := lesson.Filter{SchoolID: q.SchoolID, Limit: q.Limit}
	branch, err := optionalBranch(q.Branch)
	if err != nil {
		return f, err
	}
	f.Branch = branch
	if q.From != "" {
		if f.From, err = timeutil.ParseDate(q.From, loc); err != nil {
			return f, shared.WrapError("query", op, shared.ErrInvalidFormat, "from must use YYYY-MM-DD", err)
		}
	}
	if q.To != "" {
		to, err := timeutil.ParseDate(q.To, loc)
		if err != nil {
			return f, shared.WrapError("query", op, shared.ErrInvalidFormat, "to must use YYYY-MM-DD", err)
		}
		f.To = timeutil.AddDays(to, 1).Add(-time.Nanosecond)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, shared.Validationf("query", op, "to must not be before from")
	}
	return f, nil
}

// LessonsHandler serves the lesson read side: lessons, their attendance,
// schedules and the attendance report.
type LessonsHandler struct {
	deps Deps
}

// NewLessonsHandler creates a new LessonsHandler.
func NewLessonsHandler(deps Deps) *LessonsHandler {
	return &LessonsHandler{deps: deps.withDefaults()}
}

// GetLesson returns one lesson.
func (h *LessonsHandler) GetLesson(ctx context.Context, actor shared.Actor, id string) (*lesson.Lesson, error) {
	var out *lesson.Lesson
	err := h.deps.UoW.ReadOnly(ctx, func(ctx context.Context, repos uow.Repositories) error {
		l, err := repos.Lessons.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := authorizeSchoolRead(ctx, repos.Students, actor, l.SchoolID, "GetLesson"); err != nil {
			return err
		}
		out = l
		return nil
	})
	return out, err
}

// ListLessons returns lessons ordered by date.
func (h *LessonsHandler) ListLessons(ctx context.Context, q LessonFilterQuery) ([]*lesson.Lesson, error) {
	const op = "ListLessons"
	f, err := q.filter(h.deps.Location, op)
	if err != nil {
		return nil, err
	}
	var out []*lesson.Lesson
	err = h.deps.UoW.ReadOnly(ctx, func(ctx context.Context, repos uow.Repositories) error {
		if err := authorizeSchoolRead(ctx, repos.Students, q.Actor, q.SchoolID, op); err != nil {
			return err
		}
		out, err = repos.Lessons.List(ctx, f)
		return err
	})
	return nonNil(out), err
}

// ListLessonAttendance returns the attendance records of a lesson.
func (h *LessonsHandler) ListLessonAttendance(ctx context.Context, actor shared.Actor, lessonID string) ([]*lesson.Attendance, error) {
	var out []*lesson.Attendance
	err := h.deps.UoW.ReadOnly(ctx, func(ctx context.Context, repos uow.Repositories) error {
		l, err := repos.Lessons.Get(ctx, lessonID)
		if err != nil {
			return err
		}
		if err := authorizeSchoolRead(ctx, repos.Students, actor, l.SchoolID, "ListLessonAttendance"); err != nil {
			return err
		}
		out, err = repos.Attendance.ListByLesson(ctx, lessonID)
		return err
	})
	return nonNil(out), err
}

// ListSchedules returns the schedules of a school.
func (h *LessonsHandler) ListSchedules(ctx context.Context, actor shared.Actor, schoolID string, activeOnly bool) ([]*lesson.LessonSchedule, error) {
	var out []*lesson.LessonSchedule
	err := h.deps.UoW.ReadOnly(ctx, func(ctx context.Context, repos uow.Repositories) error {
		if err := authorizeSchoolRead(ctx, repos.Students, actor, schoolID, "ListSchedules"); err != nil {
			return err
		}
		var err error
		out, err = repos.Schedules.List(ctx, schoolID, activeOnly)
		return err
	})
	return nonNil(out), err
}

// AttendanceReport returns one row per credited attendance.
func (h *LessonsHandler) AttendanceReport(ctx context.Context, q LessonFilterQuery) ([]lesson.ReportRow, error) {
	const op = "AttendanceReport"
	f, err := q.filter(h.deps.Location, op)
	if err != nil {
		return nil, err
	}
	var out []lesson.ReportRow
	err = h.deps.UoW.ReadOnly(ctx, func(ctx context.Context, repos uow.Repositories) error {
		if err := authorizeSchoolRead(ctx, repos.Students, q.Actor, q.SchoolID, op); err != nil {
			return err
		}
		out, err = repos.Attendance.Report(ctx, f)
		return err
	})
	return nonNil(out), err
}

// nonNil keeps empty listings serializing as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
