package progression

import (
	"context"

	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
)

// ProgressRepository persists ledger records. Every mutation is an atomic
// read-modify-write on a single row; implementations must not lose concurrent
// updates to the same (student, branch).
type ProgressRepository interface {
	// Create stores a new record. Returns ErrAlreadyExists for a duplicate (student, branch).
	Create(ctx context.Context, p *StudentProgress) error

	// Get returns ErrNotFound if the student has no record for branch.
	Get(ctx context.Context, studentID string, branch shared.Branch) (*StudentProgress, error)

	// ListByStudent returns all branch records of a student.
	ListByStudent(ctx context.Context, studentID string) ([]*StudentProgress, error)

	// AddHours increments completed hours and returns the updated record.
	AddHours(ctx context.Context, studentID string, branch shared.Branch, hours float64) (*StudentProgress, error)

	// SubtractHours decrements completed hours with a floor of zero.
	SubtractHours(ctx context.Context, studentID string, branch shared.Branch, hours float64) (*StudentProgress, error)

	// IncrementGrade advances the grade by one and returns the updated record.
	IncrementGrade(ctx context.Context, studentID string, branch shared.Branch) (*StudentProgress, error)

	// SetGrade overwrites the grade and returns the previous grade.
	SetGrade(ctx context.Context, studentID string, branch shared.Branch, grade int) (int, error)
}

// RequirementRepository persists the grade requirement catalog.
type RequirementRepository interface {
	// Create returns ErrAlreadyExists for a duplicate (branch, grade).
	Create(ctx context.Context, r *GradeRequirement) error
	Get(ctx context.Context, id string) (*GradeRequirement, error)
	Update(ctx context.Context, r *GradeRequirement) error

	// Find returns the row for (branch, grade), or nil with no error when absent.
	Find(ctx context.Context, branch shared.Branch, grade int) (*GradeRequirement, error)

	// List returns rows ordered by branch then grade; branch "" lists all.
	List(ctx context.Context, branch shared.Branch) ([]*GradeRequirement, error)
}
