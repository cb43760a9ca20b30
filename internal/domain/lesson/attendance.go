package lesson

import (
	"time"

	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
)

// Attendance records that a student took part in a lesson. HoursCredited is a
// snapshot of the lesson duration at credit time.
type Attendance struct {
	ID            string    `json:"id"`
	LessonID      string    `json:"lesson_id"`
	StudentID     string    `json:"student_id"`
	HoursCredited float64   `json:"hours_credited"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewAttendance snapshots the lesson duration for studentID.
func NewAttendance(l *Lesson, studentID, createdBy string) *Attendance {
	return &Attendance{
		ID:            shared.NewID(),
		LessonID:      l.ID,
		StudentID:     studentID,
		HoursCredited: l.DurationHours,
		CreatedBy:     createdBy,
		CreatedAt:     time.Now().UTC(),
	}
}

// ReportRow is one line of the attendance export.
type ReportRow struct {
	LessonDate    time.Time     `json:"lesson_date"`
	SchoolID      string        `json:"school_id"`
	SchoolName    string        `json:"school_name"`
	Branch        shared.Branch `json:"branch"`
	LessonType    LessonType    `json:"lesson_type"`
	StudentID     string        `json:"student_id"`
	StudentName   string        `json:"student_name"`
	HoursCredited float64       `json:"hours_credited"`
}
