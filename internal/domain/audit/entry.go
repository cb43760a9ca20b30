// Package audit defines the append-only audit trail written by every
// mutating operation.
package audit

import (
	"context"
	"time"

	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
)

// Action names the kind of change an entry records.
type Action string

const (
	ActionGradeChange       Action = "GRADE_CHANGE"
	ActionManualGradeChange Action = "MANUAL_GRADE_CHANGE"
	ActionAttendanceCreated Action = "ATTENDANCE_CREATED"
	ActionAttendanceDeleted Action = "ATTENDANCE_DELETED"
	ActionSeminarEvaluated  Action = "SEMINAR_EVALUATED"
	ActionEventCompleted    Action = "EVENT_COMPLETED"
	ActionStudentApproved   Action = "STUDENT_APPROVED"
	ActionStudentRejected   Action = "STUDENT_REJECTED"
	ActionScheduleCreated   Action = "SCHEDULE_CREATED"
	ActionScheduleExtended  Action = "SCHEDULE_EXTENDED"
	ActionScheduleDisabled  Action = "SCHEDULE_DEACTIVATED"
	ActionLessonCreated     Action = "LESSON_CREATED"
	ActionLessonDeleted     Action = "LESSON_DELETED"
	ActionRequirementSaved  Action = "GRADE_REQUIREMENT_SAVED"
)

// Entity type labels used in entries.
const (
	EntityStudentProgress  = "StudentProgress"
	EntityAttendance       = "Attendance"
	EntityLesson           = "Lesson"
	EntityLessonSchedule   = "LessonSchedule"
	EntityEvent            = "Event"
	EntityStudent          = "Student"
	EntityGradeRequirement = "GradeRequirement"
)

// Entry is one immutable audit record.
type Entry struct {
	ID          string    `json:"id"`
	Action      Action    `json:"action"`
	EntityType  string    `json:"entity_type"`
	EntityID    string    `json:"entity_id"`
	PerformedBy string    `json:"performed_by"`
	Details     string    `json:"details,omitempty"`
	OldValue    *string   `json:"old_value,omitempty"`
	NewValue    *string   `json:"new_value,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewEntry builds an entry without old/new values.
func NewEntry(action Action, entityType, entityID string, by shared.Actor, details string) *Entry {
	return &Entry{
		ID:          shared.NewID(),
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		PerformedBy: by.UserID,
		Details:     details,
		CreatedAt:   time.Now().UTC(),
	}
}

// WithValues records the value before and after the change.
func (e *Entry) WithValues(oldValue, newValue string) *Entry {
	e.OldValue = &oldValue
	e.NewValue = &newValue
	return e
}

// Filter narrows audit listings.
type Filter struct {
	EntityType string
	EntityID   string
	Action     Action
	Limit      int
}

// Repository is the append-only audit sink. Entries are never updated or
// deleted.
type Repository interface {
	Append(ctx context.Context, e *Entry) error

	// List returns entries newest first.
	List(ctx context.Context, f Filter) ([]*Entry, error)
}
