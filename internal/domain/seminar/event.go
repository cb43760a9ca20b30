// Package seminar models school events, student registrations and the
// one-shot seminar evaluation that promotes passing students by one grade.
package seminar

import (
	"strings"
	"time"

	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
)

// EventType distinguishes plain events from examining seminars.
type EventType string

const (
	TypeEvent   EventType = "EVENT"
	TypeSeminar EventType = "SEMINAR"
)

func (t EventType) IsValid() bool { return t == TypeEvent || t == TypeSeminar }

// Scope tells which schools an event is open to.
type Scope string

const (
	ScopeAllSchools      Scope = "ALL_SCHOOLS"
	ScopeSelectedSchools Scope = "SELECTED_SCHOOLS"
)

func (s Scope) IsValid() bool { return s == ScopeAllSchools || s == ScopeSelectedSchools }

// Event is a school event. IsCompleted is a one-way latch: OPEN -> COMPLETED.
type Event struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Type        EventType  `json:"event_type"`
	Scope       Scope      `json:"scope"`
	SchoolIDs   []string   `json:"school_ids,omitempty"`
	EventDate   time.Time  `json:"event_date"`
	IsCompleted bool       `json:"is_completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
}

// EventParams carries the inputs of a new event.
type EventParams struct {
	Name        string
	Description string
	Type        EventType
	Scope       Scope
	SchoolIDs   []string
	EventDate   time.Time
	CreatedBy   string
}

// NewEvent validates params and opens a new event.
func NewEvent(p EventParams) (*Event, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, shared.Validationf("seminar", "NewEvent", "event name is required")
	}
	if !p.Type.IsValid() {
		return nil, shared.Validationf("seminar", "NewEvent", "unknown event type %q", p.Type)
	}
	if p.Scope == "" {
		p.Scope = ScopeAllSchools
	}
	if !p.Scope.IsValid() {
		return nil, shared.Validationf("seminar", "NewEvent", "unknown event scope %q", p.Scope)
	}
	if p.Scope == ScopeSelectedSchools && len(p.SchoolIDs) == 0 {
		return nil, shared.Validationf("seminar", "NewEvent", "selected-schools events need at least one school")
	}
	if p.Scope == ScopeAllSchools {
		p.SchoolIDs = nil
	}
	if p.EventDate.IsZero() {
		return nil, shared.Validationf("seminar", "NewEvent", "event date is required")
	}
	return &Event{
		ID:          shared.NewID(),
		Name:        name,
		Description: strings.TrimSpace(p.Description),
		Type:        p.Type,
		Scope:       p.Scope,
		SchoolIDs:   p.SchoolIDs,
		EventDate:   p.EventDate,
		CreatedBy:   p.CreatedBy,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// IsSeminar reports whether the event can hold exams.
func (e *Event) IsSeminar() bool { return e.Type == TypeSeminar }

// OpenTo reports whether students of schoolID may register.
func (e *Event) OpenTo(schoolID string) bool {
	if e.Scope == ScopeAllSchools {
		return true
	}
	for _, id := range e.SchoolIDs {
		if id == schoolID {
			return true
		}
	}
	return false
}

// EnsureEvaluable fails with a conflict unless the event is an open seminar.
func (e *Event) EnsureEvaluable() error {
	if !e.IsSeminar() {
		return shared.NewDomainError("seminar", "EvaluateSeminar", shared.ErrInvalidState, "event is not a seminar")
	}
	if e.IsCompleted {
		return shared.NewDomainError("seminar", "EvaluateSeminar", shared.ErrAlreadyProcessed, "seminar has already been evaluated")
	}
	return nil
}

// Complete seals the event. Completing twice is a conflict.
func (e *Event) Complete(at time.Time) error {
	if e.IsCompleted {
		return shared.NewDomainError("seminar", "Complete", shared.ErrAlreadyProcessed, "event is already completed")
	}
	e.IsCompleted = true
	e.CompletedAt = &at
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// Registration is a student's sign-up for an event, optionally with an exam
// per branch. Unique per (event, student).
type Registration struct {
	ID              string    `json:"id"`
	EventID         string    `json:"event_id"`
	StudentID       string    `json:"student_id"`
	RegisterWT      bool      `json:"register_wt"`
	RegisterEscrima bool      `json:"register_escrima"`
	WillTakeExam    bool      `json:"will_take_exam"`
	ExamWT          bool      `json:"exam_branch_wt"`
	ExamEscrima     bool      `json:"exam_branch_escrima"`
	CreatedAt       time.Time `json:"created_at"`
}

// RegistrationParams carries the flags a student submits.
type RegistrationParams struct {
	StudentID       string
	RegisterWT      bool
	RegisterEscrima bool
	WillTakeExam    bool
	ExamWT          bool
	ExamEscrima     bool
}

// Register builds a registration for the event. Exam flags are dropped
// unless the event is a seminar.
func (e *Event) Register(p RegistrationParams) (*Registration, error) {
	if e.IsCompleted {
		return nil, shared.NewDomainError("seminar", "Register", shared.ErrInvalidState, "event is already completed")
	}
	if p.StudentID == "" {
		return nil, shared.Validationf("seminar", "Register", "student id is required")
	}
	exam := p.WillTakeExam && e.IsSeminar()
	return &Registration{
		ID:              shared.NewID(),
		EventID:         e.ID,
		StudentID:       p.StudentID,
		RegisterWT:      p.RegisterWT,
		RegisterEscrima: p.RegisterEscrima,
		WillTakeExam:    exam,
		ExamWT:          exam && p.ExamWT,
		ExamEscrima:     exam && p.ExamEscrima,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// ExamBranches lists the branches the student is examined in, in stable order.
func (r *Registration) ExamBranches() []shared.Branch {
	if !r.WillTakeExam {
		return nil
	}
	var out []shared.Branch
	if r.ExamWT {
		out = append(out, shared.BranchWingTsun)
	}
	if r.ExamEscrima {
		out = append(out, shared.BranchEscrima)
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATION
// ══════════════════════════════════════════════════════════════════════════════

// Evaluation is the immutable outcome of one (event, student, branch) exam.
type Evaluation struct {
	ID          string        `json:"id"`
	EventID     string        `json:"event_id"`
	StudentID   string        `json:"student_id"`
	Branch      shared.Branch `json:"branch"`
	Passed      bool          `json:"passed"`
	GradeBefore int           `json:"grade_before"`
	GradeAfter  int           `json:"grade_after"`
	EvaluatedBy string        `json:"evaluated_by"`
	EvaluatedAt time.Time     `json:"evaluated_at"`
}

// NewPassedEvaluation records a one-grade promotion.
func NewPassedEvaluation(eventID, studentID string, branch shared.Branch, before, after int, by string, at time.Time) *Evaluation {
	return &Evaluation{
		ID:          shared.NewID(),
		EventID:     eventID,
		StudentID:   studentID,
		Branch:      branch,
		Passed:      true,
		GradeBefore: before,
		GradeAfter:  after,
		EvaluatedBy: by,
		EvaluatedAt: at,
	}
}
