package seminar

import (
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
)

// SeminarEvaluatedEvent is emitted once a seminar is sealed.
type SeminarEvaluatedEvent struct {
	shared.BaseEvent
	EventID    string   `json:"event_id"`
	Promotions int      `json:"promotions"`
	StudentIDs []string `json:"student_ids"`
}

func NewSeminarEvaluatedEvent(eventID string, promotions int, studentIDs []string) SeminarEvaluatedEvent {
	return SeminarEvaluatedEvent{
		BaseEvent:  shared.NewBaseEvent(shared.EventSeminarEvaluated, eventID),
		EventID:    eventID,
		Promotions: promotions,
		StudentIDs: studentIDs,
	}
}

func (e SeminarEvaluatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"event_id":    e.EventID,
		"promotions":  e.Promotions,
		"student_ids": e.StudentIDs,
	}
}
