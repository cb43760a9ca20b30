package postgres

import (
	"context"
	"fmt"

	"github.com/wingtsun-academy/progression-engine/internal/domain/seminar"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
)

// SeminarRepository implements seminar.Repository.
type SeminarRepository struct {
	q Querier
}

const eventColumns = `e.id, e.name, e.description, e.event_type, e.scope, e.event_date,
	e.is_completed, e.completed_at, e.created_by, e.created_at,
	COALESCE((SELECT array_agg(es.school_id::text ORDER BY es.school_id) FROM event_schools es WHERE es.event_id = e.id), '{}')`

func scanEvent(row interface{ Scan(...any) error }) (*seminar.Event, error) {
	var e seminar.Event
	var eventType, scope string
	if err := row.Scan(&e.ID, &e.Name, &e.Description, &eventType, &scope, &e.EventDate,
		&e.IsCompleted, &e.CompletedAt, &e.CreatedBy, &e.CreatedAt, &e.SchoolIDs); err != nil {
		return nil, err
	}
	e.Type = seminar.EventType(eventType)
	e.Scope = seminar.Scope(scope)
	if len(e.SchoolIDs) == 0 {
		e.SchoolIDs = nil
	}
	return &e, nil
}

// Create inserts an event and its school scope.
func (r *SeminarRepository) Create(ctx context.Context, e *seminar.Event) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO events (id, name, description, event_type, scope, event_date, is_completed, completed_at, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.Name, e.Description, string(e.Type), string(e.Scope), e.EventDate,
		e.IsCompleted, e.CompletedAt, e.CreatedBy, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	for _, schoolID := range e.SchoolIDs {
		if _, err := r.q.Exec(ctx, `INSERT INTO event_schools (event_id, school_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			e.ID, schoolID); err != nil {
			if IsForeignKeyViolation(err) {
				return shared.NotFoundf("postgres", "CreateEvent", "school %s not found", schoolID)
			}
			return fmt.Errorf("failed to scope event: %w", err)
		}
	}
	return nil
}

func (r *SeminarRepository) get(ctx context.Context, op, query, id string) (*seminar.Event, error) {
	e, err := scanEvent(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NotFoundf("postgres", op, "event %s not found", id)
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// Get returns an event by id.
func (r *SeminarRepository) Get(ctx context.Context, id string) (*seminar.Event, error) {
	return r.get(ctx, "GetEvent", `SELECT `+eventColumns+` FROM events e WHERE e.id = $1`, id)
}

// GetForUpdate returns an event and locks its row.
func (r *SeminarRepository) GetForUpdate(ctx context.Context, id string) (*seminar.Event, error) {
	return r.get(ctx, "GetEventForUpdate", `SELECT `+eventColumns+` FROM events e WHERE e.id = $1 FOR UPDATE OF e`, id)
}

// MarkCompleted sets the completion latch. It never clears it.
func (r *SeminarRepository) MarkCompleted(ctx context.Context, e *seminar.Event) error {
	tag, err := r.q.Exec(ctx, `UPDATE events SET is_completed = TRUE, completed_at = $2 WHERE id = $1`, e.ID, e.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to complete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("postgres", "MarkCompleted", "event %s not found", e.ID)
	}
	return nil
}

// List returns events by date.
func (r *SeminarRepository) List(ctx context.Context, includeCompleted bool) ([]*seminar.Event, error) {
	rows, err := r.q.Query(ctx, `SELECT `+eventColumns+` FROM events e WHERE ($1 OR NOT e.is_completed) ORDER BY e.event_date`,
		includeCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []*seminar.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Registrations
// ─────────────────────────────────────────────────────────────────────────────

const registrationColumns = `id, event_id, student_id, register_wt, register_escrima, will_take_exam, exam_wt, exam_escrima, created_at`

func scanRegistration(row interface{ Scan(...any) error }) (*seminar.Registration, error) {
	var g seminar.Registration
	if err := row.Scan(&g.ID, &g.EventID, &g.StudentID, &g.RegisterWT, &g.RegisterEscrima,
		&g.WillTakeExam, &g.ExamWT, &g.ExamEscrima, &g.CreatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

// CreateRegistration inserts a registration.
func (r *SeminarRepository) CreateRegistration(ctx context.Context, g *seminar.Registration) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO event_registrations (`+registrationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, g.ID, g.EventID, g.StudentID, g.RegisterWT, g.RegisterEscrima, g.WillTakeExam, g.ExamWT, g.ExamEscrima, g.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("postgres", "CreateRegistration", shared.ErrAlreadyExists,
				"student is already registered for this event")
		}
		if IsForeignKeyViolation(err) {
			return shared.NotFoundf("postgres", "CreateRegistration", "student %s not found", g.StudentID)
		}
		return fmt.Errorf("failed to create registration: %w", err)
	}
	return nil
}

// GetRegistration returns the student's registration for the event.
func (r *SeminarRepository) GetRegistration(ctx context.Context, eventID, studentID string) (*seminar.Registration, error) {
	g, err := scanRegistration(r.q.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM event_registrations WHERE event_id = $1 AND student_id = $2`,
		eventID, studentID))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NotFoundf("postgres", "GetRegistration", "student %s is not registered", studentID)
		}
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return g, nil
}

// ListRegistrations returns the event's registrations in sign-up order.
func (r *SeminarRepository) ListRegistrations(ctx context.Context, eventID string) ([]*seminar.Registration, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+registrationColumns+` FROM event_registrations WHERE event_id = $1 ORDER BY created_at`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	defer rows.Close()

	var out []*seminar.Registration
	for rows.Next() {
		g, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Evaluations
// ─────────────────────────────────────────────────────────────────────────────

// CreateEvaluation inserts an exam outcome.
func (r *SeminarRepository) CreateEvaluation(ctx context.Context, e *seminar.Evaluation) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO seminar_evaluations (id, event_id, student_id, branch, passed, grade_before, grade_after, evaluated_by, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.EventID, e.StudentID, string(e.Branch), e.Passed, e.GradeBefore, e.GradeAfter, e.EvaluatedBy, e.EvaluatedAt)
	if err != nil {
		return fmt.Errorf("failed to create evaluation: %w", err)
	}
	return nil
}

// ListEvaluations returns the event's outcomes.
func (r *SeminarRepository) ListEvaluations(ctx context.Context, eventID string) ([]*seminar.Evaluation, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, event_id, student_id, branch, passed, grade_before, grade_after, evaluated_by, evaluated_at
		FROM seminar_evaluations WHERE event_id = $1 ORDER BY student_id, branch
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()

	var out []*seminar.Evaluation
	for rows.Next() {
		var e seminar.Evaluation
		var branch string
		if err := rows.Scan(&e.ID, &e.EventID, &e.StudentID, &branch, &e.Passed,
			&e.GradeBefore, &e.GradeAfter, &e.EvaluatedBy, &e.EvaluatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		e.Branch = shared.Branch(branch)
		out = append(out, &e)
	}
	return out, rows.Err()
}
