package progression

import (
	"time"

	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
)

// InitialGrade is the grade every student starts at in every branch.
const InitialGrade = 1

// StudentProgress is the ledger record for one (student, branch). It is the
// only place training hours are written.
type StudentProgress struct {
	ID             string        `json:"id"`
	StudentID      string        `json:"student_id"`
	Branch         shared.Branch `json:"branch"`
	CurrentGrade   int           `json:"current_grade"`
	CompletedHours float64       `json:"completed_hours"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// NewStudentProgress opens a ledger at the initial grade with no hours.
func NewStudentProgress(studentID string, branch shared.Branch) (*StudentProgress, error) {
	if studentID == "" {
		return nil, shared.Validationf("progression", "NewStudentProgress", "student id is required")
	}
	if !branch.IsValid() {
		return nil, shared.Validationf("progression", "NewStudentProgress", "unknown branch %q", branch)
	}
	now := time.Now().UTC()
	return &StudentProgress{
		ID:           shared.NewID(),
		StudentID:    studentID,
		Branch:       branch,
		CurrentGrade: InitialGrade,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Credit adds hours to the ledger.
func (p *StudentProgress) Credit(hours float64) {
	p.CompletedHours = shared.RoundHours(p.CompletedHours + hours)
	p.UpdatedAt = time.Now().UTC()
}

// Revert removes hours, never going below zero.
func (p *StudentProgress) Revert(hours float64) {
	p.CompletedHours = shared.RoundHours(p.CompletedHours - hours)
	if p.CompletedHours < 0 {
		p.CompletedHours = 0
	}
	p.UpdatedAt = time.Now().UTC()
}

// Promote advances exactly one grade and returns the grades before and after.
func (p *StudentProgress) Promote() (before, after int) {
	before = p.CurrentGrade
	p.CurrentGrade++
	p.UpdatedAt = time.Now().UTC()
	return before, p.CurrentGrade
}

// SetGrade overrides the grade and returns the previous one.
func (p *StudentProgress) SetGrade(grade int) (int, error) {
	if grade < InitialGrade {
		return 0, shared.Validationf("progression", "SetGrade", "grade must be at least %d", InitialGrade)
	}
	old := p.CurrentGrade
	p.CurrentGrade = grade
	p.UpdatedAt = time.Now().UTC()
	return old, nil
}

// Status derives the remaining hours and eligibility against thresholds.
func (p *StudentProgress) Status(h Hours) (remaining float64, eligibility Eligibility) {
	return RemainingHours(h, p.CompletedHours), Classify(h, p.CompletedHours)
}
