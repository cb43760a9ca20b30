package lesson

import (
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
)

// AttendanceCreditedEvent is emitted after hours were credited for a lesson.
type AttendanceCreditedEvent struct {
	shared.BaseEvent
	LessonID   string        `json:"lesson_id"`
	Branch     shared.Branch `json:"branch"`
	StudentIDs []string      `json:"student_ids"`
	Hours      float64       `json:"hours"`
}

func NewAttendanceCreditedEvent(l *Lesson, studentIDs []string) AttendanceCreditedEvent {
	return AttendanceCreditedEvent{
		BaseEvent:  shared.NewBaseEvent(shared.EventAttendanceCredited, l.ID),
		LessonID:   l.ID,
		Branch:     l.Branch,
		StudentIDs: studentIDs,
		Hours:      l.DurationHours,
	}
}

func (e AttendanceCreditedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"lesson_id":   e.LessonID,
		"branch":      e.Branch,
		"student_ids": e.StudentIDs,
		"hours":       e.Hours,
	}
}

// AttendanceRevertedEvent is emitted after an attendance record was reverted.
type AttendanceRevertedEvent struct {
	shared.BaseEvent
	AttendanceID string        `json:"attendance_id"`
	LessonID     string        `json:"lesson_id"`
	StudentID    string        `json:"student_id"`
	Branch       shared.Branch `json:"branch"`
	Hours        float64       `json:"hours"`
}

func NewAttendanceRevertedEvent(a *Attendance, branch shared.Branch) AttendanceRevertedEvent {
	return AttendanceRevertedEvent{
		BaseEvent:    shared.NewBaseEvent(shared.EventAttendanceReverted, a.ID),
		AttendanceID: a.ID,
		LessonID:     a.LessonID,
		StudentID:    a.StudentID,
		Branch:       branch,
		Hours:        a.HoursCredited,
	}
}

func (e AttendanceRevertedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"attendance_id": e.AttendanceID,
		"lesson_id":     e.LessonID,
		"student_id":    e.StudentID,
		"branch":        e.Branch,
		"hours":         e.Hours,
	}
}

// ScheduleEvent covers creation, extension and deactivation of a schedule.
type ScheduleEvent struct {
	shared.BaseEvent
	ScheduleID string `json:"schedule_id"`
	SchoolID   string `json:"school_id"`
	Lessons    int    `json:"lessons"`
}

// NewScheduleEvent builds a schedule event. lessons is the number of lessons
// created, or removed for a deactivation.
func NewScheduleEvent(t shared.EventType, s *LessonSchedule, lessons int) ScheduleEvent {
	return ScheduleEvent{
		BaseEvent:  shared.NewBaseEvent(t, s.ID),
		ScheduleID: s.ID,
		SchoolID:   s.SchoolID,
		Lessons:    lessons,
	}
}

func (e ScheduleEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"schedule_id": e.ScheduleID,
		"school_id":   e.SchoolID,
		"lessons":     e.Lessons,
	}
}
