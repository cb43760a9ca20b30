package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/wingtsun-academy/progression-engine/internal/domain/lesson"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
)

// AttendanceRepository implements lesson.AttendanceRepository.
type AttendanceRepository struct {
	q   Querier
	loc *time.Location
}

const attendanceColumns = `id, lesson_id, student_id, hours_credited::float8, created_by, created_at`

func scanAttendance(row interface{ Scan(...any) error }) (*lesson.Attendance, error) {
	var a lesson.Attendance
	if err := row.Scan(&a.ID, &a.LessonID, &a.StudentID, &a.HoursCredited, &a.CreatedBy, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts the record unless the student already attended the lesson.
func (r *AttendanceRepository) Create(ctx context.Context, a *lesson.Attendance) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO attendances (id, lesson_id, student_id, hours_credited, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (lesson_id, student_id) DO NOTHING
	`, a.ID, a.LessonID, a.StudentID, a.HoursCredited, a.CreatedBy, a.CreatedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return false, shared.NotFoundf("postgres", "CreateAttendance", "lesson or student not found")
		}
		return false, fmt.Errorf("failed to create attendance: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Get returns an attendance record by id.
func (r *AttendanceRepository) Get(ctx context.Context, id string) (*lesson.Attendance, error) {
	a, err := scanAttendance(r.q.QueryRow(ctx, `SELECT `+attendanceColumns+` FROM attendances WHERE id = $1`, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NotFoundf("postgres", "GetAttendance", "attendance %s not found", id)
		}
		return nil, fmt.Errorf("failed to get attendance: %w", err)
	}
	return a, nil
}

// Delete removes the record and returns what was removed. Only one of several
// concurrent deletes observes the row.
func (r *AttendanceRepository) Delete(ctx context.Context, id string) (*lesson.Attendance, error) {
	a, err := scanAttendance(r.q.QueryRow(ctx, `DELETE FROM attendances WHERE id = $1 RETURNING `+attendanceColumns, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NotFoundf("postgres", "DeleteAttendance", "attendance %s not found", id)
		}
		return nil, fmt.Errorf("failed to delete attendance: %w", err)
	}
	return a, nil
}

// ListByLesson returns the lesson's attendance in creation order.
func (r *AttendanceRepository) ListByLesson(ctx context.Context, lessonID string) ([]*lesson.Attendance, error) {
	rows, err := r.q.Query(ctx, `SELECT `+attendanceColumns+` FROM attendances WHERE lesson_id = $1 ORDER BY created_at`, lessonID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}
	defer rows.Close()

	var out []*lesson.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Report joins attendance with lessons, schools and students for export.
func (r *AttendanceRepository) Report(ctx context.Context, f lesson.Filter) ([]lesson.ReportRow, error) {
	where, args := filterClause(f)
	rows, err := r.q.Query(ctx, `
		SELECT l.lesson_date, l.school_id, COALESCE(sc.name, ''), l.branch, l.lesson_type,
		       a.student_id, COALESCE(st.full_name, ''), a.hours_credited::float8
		FROM attendances a
		JOIN lessons l ON l.id = a.lesson_id
		LEFT JOIN schools sc ON sc.id = l.school_id
		LEFT JOIN students st ON st.id = a.student_id
	`+where+` ORDER BY l.lesson_date, st.full_name`+limitClause(f.Limit), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build attendance report: %w", err)
	}
	defer rows.Close()

	var out []lesson.ReportRow
	for rows.Next() {
		var row lesson.ReportRow
		var branch, lessonType string
		if err := rows.Scan(&row.LessonDate, &row.SchoolID, &row.SchoolName, &branch, &lessonType,
			&row.StudentID, &row.StudentName, &row.HoursCredited); err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		row.LessonDate = row.LessonDate.In(r.loc)
		row.Branch = shared.Branch(branch)
		row.LessonType = lesson.LessonType(lessonType)
		out = append(out, row)
	}
	return out, rows.Err()
}
