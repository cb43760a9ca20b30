package postgres

import (
	"context"
	"fmt"

	"github.com/wingtsun-academy/progression-engine/internal/domain/progression"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements progression.ProgressRepository. Hour and grade
// changes are applied in SQL so concurrent writers never overwrite each other.
type ProgressRepository struct {
	q Querier
}

const progressColumns = `id, student_id, branch, current_grade, completed_hours::float8, created_at, updated_at`

func scanProgress(row interface{ Scan(...any) error }) (*progression.StudentProgress, error) {
	var p progression.StudentProgress
	var branch string
	if err := row.Scan(&p.ID, &p.StudentID, &branch, &p.CurrentGrade, &p.CompletedHours, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Branch = shared.Branch(branch)
	return &p, nil
}

// Create inserts a new ledger record.
func (r *ProgressRepository) Create(ctx context.Context, p *progression.StudentProgress) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO student_progress (id, student_id, branch, current_grade, completed_hours, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.StudentID, string(p.Branch), p.CurrentGrade, p.CompletedHours, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("postgres", "CreateProgress", shared.ErrAlreadyExists, "progress already exists")
		}
		return fmt.Errorf("failed to create progress: %w", err)
	}
	return nil
}

// Get returns the record for (studentID, branch).
func (r *ProgressRepository) Get(ctx context.Context, studentID string, branch shared.Branch) (*progression.StudentProgress, error) {
	row := r.q.QueryRow(ctx, `SELECT `+progressColumns+` FROM student_progress WHERE student_id = $1 AND branch = $2`,
		studentID, string(branch))
	return r.scanOne(row, "GetProgress", studentID, branch)
}

func (r *ProgressRepository) scanOne(row interface{ Scan(...any) error }, op, studentID string, branch shared.Branch) (*progression.StudentProgress, error) {
	p, err := scanProgress(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NotFoundf("postgres", op, "no %s progress for student %s", branch, studentID)
		}
		return nil, fmt.Errorf("failed to read progress: %w", err)
	}
	return p, nil
}

// ListByStudent returns every branch record of studentID.
func (r *ProgressRepository) ListByStudent(ctx context.Context, studentID string) ([]*progression.StudentProgress, error) {
	rows, err := r.q.Query(ctx, `SELECT `+progressColumns+` FROM student_progress WHERE student_id = $1 ORDER BY branch`, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}
	defer rows.Close()

	var out []*progression.StudentProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan progress: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AddHours increments completed hours in place.
func (r *ProgressRepository) AddHours(ctx context.Context, studentID string, branch shared.Branch, hours float64) (*progression.StudentProgress, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE student_progress
		SET completed_hours = completed_hours + $3, updated_at = NOW()
		WHERE student_id = $1 AND branch = $2
		RETURNING `+progressColumns,
		studentID, string(branch), hours)
	return r.scanOne(row, "AddHours", studentID, branch)
}

// SubtractHours decrements completed hours in place, flooring at zero.
func (r *ProgressRepository) SubtractHours(ctx context.Context, studentID string, branch shared.Branch, hours float64) (*progression.StudentProgress, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE student_progress
		SET completed_hours = GREATEST(completed_hours - $3, 0), updated_at = NOW()
		WHERE student_id = $1 AND branch = $2
		RETURNING `+progressColumns,
		studentID, string(branch), hours)
	return r.scanOne(row, "SubtractHours", studentID, branch)
}

// IncrementGrade advances the grade by one in place.
func (r *ProgressRepository) IncrementGrade(ctx context.Context, studentID string, branch shared.Branch) (*progression.StudentProgress, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE student_progress
		SET current_grade = current_grade + 1, updated_at = NOW()
		WHERE student_id = $1 AND branch = $2
		RETURNING `+progressColumns,
		studentID, string(branch))
	return r.scanOne(row, "IncrementGrade", studentID, branch)
}

// SetGrade overwrites the grade and returns the previous one. The row is
// locked first so the returned value is the one actually replaced.
func (r *ProgressRepository) SetGrade(ctx context.Context, studentID string, branch shared.Branch, grade int) (int, error) {
	if grade < progression.InitialGrade {
		return 0, shared.Validationf("postgres", "SetGrade", "grade must be at least %d", progression.InitialGrade)
	}
	var old int
	err := r.q.QueryRow(ctx, `
		SELECT current_grade FROM student_progress
		WHERE student_id = $1 AND branch = $2
		FOR UPDATE
	`, studentID, string(branch)).Scan(&old)
	if err != nil {
		if IsNoRows(err) {
			return 0, shared.NotFoundf("postgres", "SetGrade", "no %s progress for student %s", branch, studentID)
		}
		return 0, fmt.Errorf("failed to lock progress: %w", err)
	}

	if _, err := r.q.Exec(ctx, `
		UPDATE student_progress SET current_grade = $3, updated_at = NOW()
		WHERE student_id = $1 AND branch = $2
	`, studentID, string(branch), grade); err != nil {
		return 0, fmt.Errorf("failed to set grade: %w", err)
	}
	return old, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUIREMENT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// RequirementRepository implements progression.RequirementRepository.
type RequirementRepository struct {
	q Querier
}

const requirementColumns = `id, branch, grade, grade_name, required_hours::float8, minimum_hours::float8, created_at, updated_at`

func scanRequirement(row interface{ Scan(...any) error }) (*progression.GradeRequirement, error) {
	var g progression.GradeRequirement
	var branch string
	if err := row.Scan(&g.ID, &branch, &g.Grade, &g.GradeName, &g.RequiredHours, &g.MinimumHours, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	g.Branch = shared.Branch(branch)
	return &g, nil
}

// Create inserts a catalog row.
func (r *RequirementRepository) Create(ctx context.Context, g *progression.GradeRequirement) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO grade_requirements (id, branch, grade, grade_name, required_hours, minimum_hours, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, g.ID, string(g.Branch), g.Grade, g.GradeName, g.RequiredHours, g.MinimumHours, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("postgres", "CreateRequirement", shared.ErrAlreadyExists,
				"requirement already exists for branch and grade")
		}
		return fmt.Errorf("failed to create grade requirement: %w", err)
	}
	return nil
}

// Get returns a catalog row by id.
func (r *RequirementRepository) Get(ctx context.Context, id string) (*progression.GradeRequirement, error) {
	g, err := scanRequirement(r.q.QueryRow(ctx, `SELECT `+requirementColumns+` FROM grade_requirements WHERE id = $1`, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NotFoundf("postgres", "GetRequirement", "grade requirement %s not found", id)
		}
		return nil, fmt.Errorf("failed to get grade requirement: %w", err)
	}
	return g, nil
}

// Update rewrites a catalog row.
func (r *RequirementRepository) Update(ctx context.Context, g *progression.GradeRequirement) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE grade_requirements
		SET branch = $2, grade = $3, grade_name = $4, required_hours = $5, minimum_hours = $6, updated_at = $7
		WHERE id = $1
	`, g.ID, string(g.Branch), g.Grade, g.GradeName, g.RequiredHours, g.MinimumHours, g.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("postgres", "UpdateRequirement", shared.ErrAlreadyExists,
				"requirement already exists for branch and grade")
		}
		return fmt.Errorf("failed to update grade requirement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("postgres", "UpdateRequirement", "grade requirement %s not found", g.ID)
	}
	return nil
}

// Find returns the row for (branch, grade) or nil when the catalog has none.
func (r *RequirementRepository) Find(ctx context.Context, branch shared.Branch, grade int) (*progression.GradeRequirement, error) {
	g, err := scanRequirement(r.q.QueryRow(ctx,
		`SELECT `+requirementColumns+` FROM grade_requirements WHERE branch = $1 AND grade = $2`,
		string(branch), grade))
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find grade requirement: %w", err)
	}
	return g, nil
}

// List returns catalog rows ordered by branch then grade.
func (r *RequirementRepository) List(ctx context.Context, branch shared.Branch) ([]*progression.GradeRequirement, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+requirementColumns+` FROM grade_requirements
		WHERE ($1 = '' OR branch = $1)
		ORDER BY branch, grade
	`, string(branch))
	if err != nil {
		return nil, fmt.Errorf("failed to list grade requirements: %w", err)
	}
	defer rows.Close()

	var out []*progression.GradeRequirement
	for rows.Next() {
		g, err := scanRequirement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grade requirement: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
