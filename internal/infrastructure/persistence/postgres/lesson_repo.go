package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wingtsun-academy/progression-engine/internal/domain/lesson"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
	"github.com/wingtsun-academy/progression-engine/pkg/timeutil"
)

// anchorDate re-reads a DATE column, which pgx returns at UTC midnight, as
// midnight in the school time zone.
func anchorDate(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// filterClause renders f as a WHERE fragment over the lessons table aliased l.
func filterClause(f lesson.Filter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.SchoolID != "" {
		add("l.school_id = $%d", f.SchoolID)
	}
	if f.Branch != "" {
		add("l.branch = $%d", string(f.Branch))
	}
	if !f.From.IsZero() {
		add("l.lesson_date >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("l.lesson_date <= $%d", f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

// ══════════════════════════════════════════════════════════════════════════════
// LESSON REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// LessonRepository implements lesson.LessonRepository.
type LessonRepository struct {
	q   Querier
	loc *time.Location
}

const lessonColumns = `l.id, l.school_id, l.branch, l.lesson_type, l.lesson_date, l.lesson_day,
	l.duration_hours::float8, l.schedule_id, l.created_by, l.notes, l.created_at`

func (r *LessonRepository) scan(row interface{ Scan(...any) error }) (*lesson.Lesson, error) {
	var l lesson.Lesson
	var branch, lessonType string
	if err := row.Scan(&l.ID, &l.SchoolID, &branch, &lessonType, &l.LessonDate, &l.Day,
		&l.DurationHours, &l.ScheduleID, &l.CreatedBy, &l.Notes, &l.CreatedAt); err != nil {
		return nil, err
	}
	l.Branch = shared.Branch(branch)
	l.LessonType = lesson.LessonType(lessonType)
	l.LessonDate = l.LessonDate.In(r.loc)
	l.Day = anchorDate(l.Day, r.loc)
	return &l, nil
}

func (r *LessonRepository) list(ctx context.Context, query string, args ...any) ([]*lesson.Lesson, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list lessons: %w", err)
	}
	defer rows.Close()

	var out []*lesson.Lesson
	for rows.Next() {
		l, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lesson: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

const insertLesson = `
	INSERT INTO lessons (id, school_id, branch, lesson_type, lesson_date, lesson_day,
		duration_hours, schedule_id, created_by, notes, created_at)
	VALUES ($1, $2, $3, $4, $5, $6::date, $7, $8, $9, $10, $11)`

func lessonArgs(l *lesson.Lesson) []any {
	return []any{l.ID, l.SchoolID, string(l.Branch), string(l.LessonType), l.LessonDate,
		timeutil.FormatDate(l.Day), l.DurationHours, l.ScheduleID, l.CreatedBy, l.Notes, l.CreatedAt}
}

// Create inserts an ad hoc lesson.
func (r *LessonRepository) Create(ctx context.Context, l *lesson.Lesson) error {
	if _, err := r.q.Exec(ctx, insertLesson, lessonArgs(l)...); err != nil {
		if IsForeignKeyViolation(err) {
			return shared.NotFoundf("postgres", "CreateLesson", "school %s not found", l.SchoolID)
		}
		return fmt.Errorf("failed to create lesson: %w", err)
	}
	return nil
}

// CreateForSchedule inserts a generated lesson, skipping dates the schedule
// already covers.
func (r *LessonRepository) CreateForSchedule(ctx context.Context, l *lesson.Lesson) (bool, error) {
	tag, err := r.q.Exec(ctx, insertLesson+` ON CONFLICT (schedule_id, lesson_day) DO NOTHING`, lessonArgs(l)...)
	if err != nil {
		return false, fmt.Errorf("failed to create scheduled lesson: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Get returns a lesson by id.
func (r *LessonRepository) Get(ctx context.Context, id string) (*lesson.Lesson, error) {
	l, err := r.scan(r.q.QueryRow(ctx, `SELECT `+lessonColumns+` FROM lessons l WHERE l.id = $1`, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NotFoundf("postgres", "GetLesson", "lesson %s not found", id)
		}
		return nil, fmt.Errorf("failed to get lesson: %w", err)
	}
	return l, nil
}

// List returns lessons matching f ordered by start time.
func (r *LessonRepository) List(ctx context.Context, f lesson.Filter) ([]*lesson.Lesson, error) {
	where, args := filterClause(f)
	return r.list(ctx, `SELECT `+lessonColumns+` FROM lessons l`+where+` ORDER BY l.lesson_date`+limitClause(f.Limit), args...)
}

// ListBySchedule returns the lessons generated by scheduleID.
func (r *LessonRepository) ListBySchedule(ctx context.Context, scheduleID string) ([]*lesson.Lesson, error) {
	return r.list(ctx, `SELECT `+lessonColumns+` FROM lessons l WHERE l.schedule_id = $1 ORDER BY l.lesson_date`, scheduleID)
}

// Delete removes an unattended lesson.
func (r *LessonRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `
		DELETE FROM lessons l
		WHERE l.id = $1 AND NOT EXISTS (SELECT 1 FROM attendances a WHERE a.lesson_id = l.id)
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete lesson: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return shared.NewDomainError("postgres", "DeleteLesson", shared.ErrInvalidState, "lesson has attendance records")
}

// DeleteFutureUnattended removes the schedule's unattended lessons after now.
func (r *LessonRepository) DeleteFutureUnattended(ctx context.Context, scheduleID string, now time.Time) (int, error) {
	tag, err := r.q.Exec(ctx, `
		DELETE FROM lessons l
		WHERE l.schedule_id = $1
		  AND l.lesson_date > $2
		  AND NOT EXISTS (SELECT 1 FROM attendances a WHERE a.lesson_id = l.id)
	`, scheduleID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete future lessons: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CountAttendance returns how many attendance rows reference the lesson.
func (r *LessonRepository) CountAttendance(ctx context.Context, lessonID string) (int, error) {
	var n int
	if err := r.q.QueryRow(ctx, `SELECT count(*) FROM attendances WHERE lesson_id = $1`, lessonID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count attendance: %w", err)
	}
	return n, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ScheduleRepository implements lesson.ScheduleRepository.
type ScheduleRepository struct {
	q   Querier
	loc *time.Location
}

const scheduleColumns = `id, school_id, branch, lesson_type, day_of_week, to_char(start_time, 'HH24:MI'),
	duration_hours::float8, start_date, end_date, is_active, created_by, created_at, updated_at`

func (r *ScheduleRepository) scan(row interface{ Scan(...any) error }) (*lesson.LessonSchedule, error) {
	var s lesson.LessonSchedule
	var branch, lessonType, startTime string
	if err := row.Scan(&s.ID, &s.SchoolID, &branch, &lessonType, &s.DayOfWeek, &startTime,
		&s.DurationHours, &s.StartDate, &s.EndDate, &s.IsActive, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	tod, err := timeutil.ParseTimeOfDay(startTime)
	if err != nil {
		return nil, err
	}
	s.Branch = shared.Branch(branch)
	s.LessonType = lesson.LessonType(lessonType)
	s.StartTime = tod
	s.StartDate = anchorDate(s.StartDate, r.loc)
	s.EndDate = anchorDate(s.EndDate, r.loc)
	return &s, nil
}

func (r *ScheduleRepository) get(ctx context.Context, op, query, id string) (*lesson.LessonSchedule, error) {
	s, err := r.scan(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NotFoundf("postgres", op, "schedule %s not found", id)
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return s, nil
}

// Create inserts a schedule.
func (r *ScheduleRepository) Create(ctx context.Context, s *lesson.LessonSchedule) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO lesson_schedules (id, school_id, branch, lesson_type, day_of_week, start_time,
			duration_hours, start_date, end_date, is_active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::time, $7, $8::date, $9::date, $10, $11, $12, $13)
	`, s.ID, s.SchoolID, string(s.Branch), string(s.LessonType), s.DayOfWeek, s.StartTime.String(),
		s.DurationHours, timeutil.FormatDate(s.StartDate), timeutil.FormatDate(s.EndDate),
		s.IsActive, s.CreatedBy, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.NotFoundf("postgres", "CreateSchedule", "school %s not found", s.SchoolID)
		}
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	return nil
}

// Get returns a schedule by id.
func (r *ScheduleRepository) Get(ctx context.Context, id string) (*lesson.LessonSchedule, error) {
	return r.get(ctx, "GetSchedule", `SELECT `+scheduleColumns+` FROM lesson_schedules WHERE id = $1`, id)
}

// GetForUpdate returns a schedule and locks its row.
func (r *ScheduleRepository) GetForUpdate(ctx context.Context, id string) (*lesson.LessonSchedule, error) {
	return r.get(ctx, "GetScheduleForUpdate", `SELECT `+scheduleColumns+` FROM lesson_schedules WHERE id = $1 FOR UPDATE`, id)
}

// Update persists end date and active flag changes.
func (r *ScheduleRepository) Update(ctx context.Context, s *lesson.LessonSchedule) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE lesson_schedules SET end_date = $2::date, is_active = $3, updated_at = $4
		WHERE id = $1
	`, s.ID, timeutil.FormatDate(s.EndDate), s.IsActive, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("postgres", "UpdateSchedule", "schedule %s not found", s.ID)
	}
	return nil
}

// List returns schedules ordered by weekday and start time.
func (r *ScheduleRepository) List(ctx context.Context, schoolID string, activeOnly bool) ([]*lesson.LessonSchedule, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+scheduleColumns+` FROM lesson_schedules
		WHERE ($1 = '' OR school_id::text = $1) AND (NOT $2 OR is_active)
		ORDER BY day_of_week, start_time
	`, schoolID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var out []*lesson.LessonSchedule
	for rows.Next() {
		s, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
