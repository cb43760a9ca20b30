package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration is one versioned schema change.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies the embedded migrations and records them in
// schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a migrator over the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

// Migrate applies every pending migration in version order, each in its own
// transaction. It returns the number of migrations applied.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range m.migrations {
		if _, done := applied[mig.Version]; done {
			continue
		}
		if mig.UpSQL == "" {
			return count, fmt.Errorf("%w: missing up SQL for migration %d", ErrMigrationFailed, mig.Version)
		}

		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			_, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName),
				mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
		count++
	}
	return count, nil
}

// Rollback reverts the most recently applied migration. It returns the
// reverted version, or 0 when nothing was applied.
func (m *Migrator) Rollback(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	last := 0
	for v := range applied {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return 0, nil
	}

	var target *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			target = &m.migrations[i]
			break
		}
	}
	if target == nil || target.DownSQL == "" {
		return 0, fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
	}

	err = m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, target.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", last, err)
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
	if err != nil {
		return 0, err
	}
	return last, nil
}

// Status lists every embedded migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)
	for i := range result {
		if at, ok := applied[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = at
		}
	}
	return result, nil
}

// GetMigrations returns all embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_schools_students_progress", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_lessons", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_events", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "create_audit_logs", UpSQL: migration004Up, DownSQL: migration004Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: SCHOOLS, STUDENTS, PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS schools (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name VARCHAR(200) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS school_managers (
    user_id TEXT NOT NULL,
    school_id UUID NOT NULL REFERENCES schools(id) ON DELETE CASCADE,
    PRIMARY KEY (user_id, school_id)
);

CREATE TABLE IF NOT EXISTS students (
    id UUID PRIMARY KEY,
    user_id TEXT NOT NULL,
    school_id UUID NOT NULL REFERENCES schools(id),
    full_name VARCHAR(200) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_student_status CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED'))
);

CREATE INDEX IF NOT EXISTS idx_students_school_id ON students(school_id);

CREATE TABLE IF NOT EXISTS student_progress (
    id UUID PRIMARY KEY,
    student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    branch VARCHAR(20) NOT NULL,
    current_grade INTEGER NOT NULL DEFAULT 1,
    completed_hours NUMERIC(10,2) NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT uq_student_progress UNIQUE (student_id, branch),
    CONSTRAINT valid_progress_branch CHECK (branch IN ('WING_TSUN', 'ESCRIMA')),
    CONSTRAINT valid_grade CHECK (current_grade >= 1),
    CONSTRAINT valid_hours CHECK (completed_hours >= 0)
);

CREATE TABLE IF NOT EXISTS grade_requirements (
    id UUID PRIMARY KEY,
    branch VARCHAR(20) NOT NULL,
    grade INTEGER NOT NULL,
    grade_name VARCHAR(100) NOT NULL DEFAULT '',
    required_hours NUMERIC(10,2) NOT NULL,
    minimum_hours NUMERIC(10,2) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT uq_grade_requirement UNIQUE (branch, grade),
    CONSTRAINT valid_requirement_hours CHECK (required_hours >= minimum_hours AND minimum_hours >= 0)
);
`

const migration001Down = `
DROP TABLE IF EXISTS grade_requirements;
DROP TABLE IF EXISTS student_progress;
DROP TABLE IF EXISTS students;
DROP TABLE IF EXISTS school_managers;
DROP TABLE IF EXISTS schools;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: LESSONS, SCHEDULES, ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS lesson_schedules (
    id UUID PRIMARY KEY,
    school_id UUID NOT NULL REFERENCES schools(id),
    branch VARCHAR(20) NOT NULL,
    lesson_type VARCHAR(20) NOT NULL,
    day_of_week SMALLINT NOT NULL,
    start_time TIME NOT NULL,
    duration_hours NUMERIC(5,2) NOT NULL,
    start_date DATE NOT NULL,
    end_date DATE NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_by TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_day_of_week CHECK (day_of_week BETWEEN 0 AND 6),
    CONSTRAINT valid_schedule_range CHECK (end_date > start_date)
);

CREATE INDEX IF NOT EXISTS idx_lesson_schedules_school ON lesson_schedules(school_id) WHERE is_active;

CREATE TABLE IF NOT EXISTS lessons (
    id UUID PRIMARY KEY,
    school_id UUID NOT NULL REFERENCES schools(id),
    branch VARCHAR(20) NOT NULL,
    lesson_type VARCHAR(20) NOT NULL,
    lesson_date TIMESTAMP WITH TIME ZONE NOT NULL,
    lesson_day DATE NOT NULL,
    duration_hours NUMERIC(5,2) NOT NULL,
    schedule_id UUID REFERENCES lesson_schedules(id) ON DELETE SET NULL,
    created_by TEXT NOT NULL,
    notes TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT uq_schedule_lesson_day UNIQUE (schedule_id, lesson_day),
    CONSTRAINT valid_duration CHECK (duration_hours > 0)
);

CREATE INDEX IF NOT EXISTS idx_lessons_school_date ON lessons(school_id, lesson_date);
CREATE INDEX IF NOT EXISTS idx_lessons_schedule ON lessons(schedule_id) WHERE schedule_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS attendances (
    id UUID PRIMARY KEY,
    lesson_id UUID NOT NULL REFERENCES lessons(id) ON DELETE CASCADE,
    student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    hours_credited NUMERIC(5,2) NOT NULL,
    created_by TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT uq_attendance UNIQUE (lesson_id, student_id)
);

CREATE INDEX IF NOT EXISTS idx_attendances_student ON attendances(student_id);
`

const migration002Down = `
DROP TABLE IF EXISTS attendances;
DROP TABLE IF EXISTS lessons;
DROP TABLE IF EXISTS lesson_schedules;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: EVENTS AND SEMINARS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS events (
    id UUID PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    event_type VARCHAR(20) NOT NULL,
    scope VARCHAR(30) NOT NULL,
    event_date TIMESTAMP WITH TIME ZONE NOT NULL,
    is_completed BOOLEAN NOT NULL DEFAULT FALSE,
    completed_at TIMESTAMP WITH TIME ZONE,
    created_by TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_event_type CHECK (event_type IN ('EVENT', 'SEMINAR'))
);

CREATE TABLE IF NOT EXISTS event_schools (
    event_id UUID NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    school_id UUID NOT NULL REFERENCES schools(id),
    PRIMARY KEY (event_id, school_id)
);

CREATE TABLE IF NOT EXISTS event_registrations (
    id UUID PRIMARY KEY,
    event_id UUID NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    register_wt BOOLEAN NOT NULL DEFAULT FALSE,
    register_escrima BOOLEAN NOT NULL DEFAULT FALSE,
    will_take_exam BOOLEAN NOT NULL DEFAULT FALSE,
    exam_wt BOOLEAN NOT NULL DEFAULT FALSE,
    exam_escrima BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT uq_event_registration UNIQUE (event_id, student_id)
);

CREATE TABLE IF NOT EXISTS seminar_evaluations (
    id UUID PRIMARY KEY,
    event_id UUID NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    branch VARCHAR(20) NOT NULL,
    passed BOOLEAN NOT NULL,
    grade_before INTEGER NOT NULL,
    grade_after INTEGER NOT NULL,
    evaluated_by TEXT NOT NULL,
    evaluated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_seminar_evaluations_event ON seminar_evaluations(event_id);
`

const migration003Down = `
DROP TABLE IF EXISTS seminar_evaluations;
DROP TABLE IF EXISTS event_registrations;
DROP TABLE IF EXISTS event_schools;
DROP TABLE IF EXISTS events;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: AUDIT LOG
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
CREATE TABLE IF NOT EXISTS audit_logs (
    id UUID PRIMARY KEY,
    action VARCHAR(50) NOT NULL,
    entity_type VARCHAR(50) NOT NULL,
    entity_id TEXT NOT NULL,
    performed_by TEXT NOT NULL,
    details TEXT NOT NULL DEFAULT '',
    old_value TEXT,
    new_value TEXT,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_entity ON audit_logs(entity_type, entity_id);
CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at DESC);
`

const migration004Down = `
DROP TABLE IF EXISTS audit_logs;
`
