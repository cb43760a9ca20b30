package postgres

import (
	"context"
	"fmt"

	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
	"github.com/wingtsun-academy/progression-engine/internal/domain/student"
)

// StudentRepository implements student.Repository.
type StudentRepository struct {
	q Querier
}

const studentColumns = `id, user_id, school_id, full_name, status, created_at, updated_at`

func scanStudent(row interface{ Scan(...any) error }) (*student.Student, error) {
	var s student.Student
	var status string
	if err := row.Scan(&s.ID, &s.UserID, &s.SchoolID, &s.FullName, &status, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Status = student.Status(status)
	return &s, nil
}

// Create inserts a student.
func (r *StudentRepository) Create(ctx context.Context, s *student.Student) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO students (`+studentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.UserID, s.SchoolID, s.FullName, string(s.Status), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("postgres", "CreateStudent", shared.ErrAlreadyExists, "student already exists")
		}
		if IsForeignKeyViolation(err) {
			return shared.NotFoundf("postgres", "CreateStudent", "school %s not found", s.SchoolID)
		}
		return fmt.Errorf("failed to create student: %w", err)
	}
	return nil
}

func (r *StudentRepository) get(ctx context.Context, query, id string) (*student.Student, error) {
	s, err := scanStudent(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NotFoundf("postgres", "GetStudent", "student %s not found", id)
		}
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	return s, nil
}

// Get returns a student by id.
func (r *StudentRepository) Get(ctx context.Context, id string) (*student.Student, error) {
	return r.get(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id)
}

// GetForUpdate returns a student and locks its row.
func (r *StudentRepository) GetForUpdate(ctx context.Context, id string) (*student.Student, error) {
	return r.get(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1 FOR UPDATE`, id)
}

// UpdateStatus persists an approval or rejection.
func (r *StudentRepository) UpdateStatus(ctx context.Context, s *student.Student) error {
	tag, err := r.q.Exec(ctx, `UPDATE students SET status = $2, updated_at = $3 WHERE id = $1`,
		s.ID, string(s.Status), s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update student: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("postgres", "UpdateStudent", "student %s not found", s.ID)
	}
	return nil
}

// ManagesSchool reports whether userID manages schoolID.
func (r *StudentRepository) ManagesSchool(ctx context.Context, userID, schoolID string) (bool, error) {
	var ok bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM school_managers WHERE user_id = $1 AND school_id::text = $2)
	`, userID, schoolID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check school manager: %w", err)
	}
	return ok, nil
}
