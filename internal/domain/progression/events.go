package progression

import (
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
)

// ProgressCreatedEvent is emitted when a student's ledgers are opened.
type ProgressCreatedEvent struct {
	shared.BaseEvent
	StudentID string          `json:"student_id"`
	Branches  []shared.Branch `json:"branches"`
}

func NewProgressCreatedEvent(studentID string, branches []shared.Branch) ProgressCreatedEvent {
	return ProgressCreatedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventProgressCreated, studentID),
		StudentID: studentID,
		Branches:  branches,
	}
}

func (e ProgressCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"student_id": e.StudentID, "branches": e.Branches}
}

// GradeChangeReason tells why a grade moved.
type GradeChangeReason string

const (
	ReasonSeminarExam GradeChangeReason = "seminar_exam"
	ReasonManual      GradeChangeReason = "manual"
)

// GradeChangedEvent is emitted after a grade change commits.
type GradeChangedEvent struct {
	shared.BaseEvent
	StudentID string            `json:"student_id"`
	Branch    shared.Branch     `json:"branch"`
	OldGrade  int               `json:"old_grade"`
	NewGrade  int               `json:"new_grade"`
	Reason    GradeChangeReason `json:"reason"`
}

func NewGradeChangedEvent(studentID string, branch shared.Branch, oldGrade, newGrade int, reason GradeChangeReason) GradeChangedEvent {
	return GradeChangedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventGradeChanged, studentID),
		StudentID: studentID,
		Branch:    branch,
		OldGrade:  oldGrade,
		NewGrade:  newGrade,
		Reason:    reason,
	}
}

func (e GradeChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"branch":     e.Branch,
		"old_grade":  e.OldGrade,
		"new_grade":  e.NewGrade,
		"reason":     e.Reason,
	}
}
