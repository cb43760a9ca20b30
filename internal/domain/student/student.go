// Package student models school membership of students and the
// manager-to-school assignments used for authorization.
package student

import (
	"context"
	"strings"
	"time"

	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
)

// Status is the enrollment state of a student.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Student belongs to exactly one school.
type Student struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	SchoolID  string    `json:"school_id"`
	FullName  string    `json:"full_name"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewStudent builds a pending enrollment.
func NewStudent(userID, schoolID, fullName string) (*Student, error) {
	if schoolID == "" {
		return nil, shared.Validationf("student", "NewStudent", "school id is required")
	}
	name := strings.TrimSpace(fullName)
	if name == "" {
		return nil, shared.Validationf("student", "NewStudent", "full name is required")
	}
	now := time.Now().UTC()
	return &Student{
		ID:        shared.NewID(),
		UserID:    userID,
		SchoolID:  schoolID,
		FullName:  name,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Approve moves a pending student to approved.
func (s *Student) Approve() error {
	return s.transition(StatusApproved)
}

// Reject moves a pending student to rejected.
func (s *Student) Reject() error {
	return s.transition(StatusRejected)
}

func (s *Student) transition(to Status) error {
	if s.Status != StatusPending {
		return shared.NewDomainError("student", "ChangeStatus", shared.ErrInvalidState,
			"student is "+strings.ToLower(string(s.Status))+", not pending")
	}
	s.Status = to
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Repository persists students and school manager assignments.
type Repository interface {
	Create(ctx context.Context, s *Student) error
	Get(ctx context.Context, id string) (*Student, error)

	// GetForUpdate locks the student row until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (*Student, error)

	UpdateStatus(ctx context.Context, s *Student) error

	// ManagesSchool reports whether userID is assigned as manager of schoolID.
	ManagesSchool(ctx context.Context, userID, schoolID string) (bool, error)
}
