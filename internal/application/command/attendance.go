package command

import (
	"context"
	"fmt"
	"strconv"

	"github.com/wingtsun-academy/progression-engine/internal/application/uow"
	"github.com/wingtsun-academy/progression-engine/internal/domain/audit"
	"github.com/wingtsun-academy/progression-engine/internal/domain/lesson"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
	"github.com/wingtsun-academy/progression-engine/pkg/logger"
)

// Reasons a student is skipped by bulk attendance crediting.
const (
	SkipUnknownStudent = "unknown_student"
	SkipOtherSchool    = "other_school"
	SkipDuplicate      = "duplicate"
)

// SkippedStudent reports a roster entry that was not credited.
type SkippedStudent struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// creditOne creates the attendance of one student and credits the lesson's
// hours to the student's ledger. A non-empty skip reason means nothing was
// written for that student.
func creditOne(ctx context.Context, repos uow.Repositories, l *lesson.Lesson, studentID string, actor shared.Actor, log *logger.Logger) (*lesson.Attendance, string, error) {
	st, err := repos.Students.Get(ctx, studentID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, SkipUnknownStudent, nil
		}
		return nil, "", err
	}
	if st.SchoolID != l.SchoolID {
		return nil, SkipOtherSchool, nil
	}

	a := lesson.NewAttendance(l, studentID, actor.UserID)
	inserted, err := repos.Attendance.Create(ctx, a)
	if err != nil {
		return nil, "", err
	}
	if !inserted {
		return nil, SkipDuplicate, nil
	}

	if _, err := repos.Progress.AddHours(ctx, studentID, l.Branch, a.HoursCredited); err != nil {
		if !shared.IsNotFound(err) {
			return nil, "", err
		}
		log.Debug("no progress record to credit", logger.StudentID(studentID), logger.Branch(string(l.Branch)))
	}

	entry := audit.NewEntry(audit.ActionAttendanceCreated, audit.EntityAttendance, a.ID, actor,
		fmt.Sprintf("Credited %.2f hours for lesson %s", a.HoursCredited, l.ID))
	if err := repos.Audit.Append(ctx, entry); err != nil {
		return nil, "", err
	}
	return a, "", nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CREDIT ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

// CreditAttendanceCommand records attendance for a roster of students.
type CreditAttendanceCommand struct {
	Actor      shared.Actor
	LessonID   string
	StudentIDs []string
}

// Validate validates the command.
func (c CreditAttendanceCommand) Validate() error {
	if c.LessonID == "" {
		return shared.Validationf("command", "CreditAttendance", "lesson_id is required")
	}
	if len(uniqueIDs(c.StudentIDs)) == 0 {
		return shared.Validationf("command", "CreditAttendance", "at least one student id is required")
	}
	return nil
}

// CreditAttendanceResult lists the records created and the students skipped.
type CreditAttendanceResult struct {
	Created []*lesson.Attendance `json:"created"`
	Skipped []SkippedStudent     `json:"skipped"`
}

// CreditAttendanceHandler handles CreditAttendanceCommand. Students outside
// the lesson's school and students already recorded are skipped, so repeating
// a roster is harmless.
type CreditAttendanceHandler struct {
	deps Deps
}

// NewCreditAttendanceHandler creates a new CreditAttendanceHandler.
func NewCreditAttendanceHandler(deps Deps) *CreditAttendanceHandler {
	return &CreditAttendanceHandler{deps: deps.withDefaults()}
}

// Handle executes the command.
func (h *CreditAttendanceHandler) Handle(ctx context.Context, cmd CreditAttendanceCommand) (*CreditAttendanceResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var result *CreditAttendanceResult
	var events []shared.Event
	err := h.deps.UoW.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		result = &CreditAttendanceResult{Created: []*lesson.Attendance{}, Skipped: []SkippedStudent{}}
		events = nil

		l, err := repos.Lessons.Get(ctx, cmd.LessonID)
		if err != nil {
			return err
		}
		if err := authorizeSchool(ctx, repos.Students, cmd.Actor, l.SchoolID, "CreditAttendance"); err != nil {
			return err
		}

		credited := make([]string, 0, len(cmd.StudentIDs))
		for _, studentID := range uniqueIDs(cmd.StudentIDs) {
			a, reason, err := creditOne(ctx, repos, l, studentID, cmd.Actor, h.deps.Logger)
			if err != nil {
				return err
			}
			if reason != "" {
				result.Skipped = append(result.Skipped, SkippedStudent{StudentID: studentID, Reason: reason})
				continue
			}
			result.Created = append(result.Created, a)
			credited = append(credited, studentID)
		}

		if len(credited) > 0 {
			events = append(events, lesson.NewAttendanceCreditedEvent(l, credited))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.deps.Logger.Info("attendance credited",
		logger.LessonID(cmd.LessonID),
		logger.ActorID(cmd.Actor.UserID),
		logger.Int("created", len(result.Created)),
		logger.Int("skipped", len(result.Skipped)))
	h.deps.publish(events)
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

// RecordAttendanceCommand records one student's attendance and, unlike the
// bulk form, reports every reason it could not.
type RecordAttendanceCommand struct {
	Actor     shared.Actor
	LessonID  string
	StudentID string
}

// Validate validates the command.
func (c RecordAttendanceCommand) Validate() error {
	if c.LessonID == "" || c.StudentID == "" {
		return shared.Validationf("command", "RecordAttendance", "lesson_id and student_id are required")
	}
	return nil
}

// RecordAttendanceHandler handles RecordAttendanceCommand.
type RecordAttendanceHandler struct {
	deps Deps
}

// NewRecordAttendanceHandler creates a new RecordAttendanceHandler.
func NewRecordAttendanceHandler(deps Deps) *RecordAttendanceHandler {
	return &RecordAttendanceHandler{deps: deps.withDefaults()}
}

// Handle executes the command.
func (h *RecordAttendanceHandler) Handle(ctx context.Context, cmd RecordAttendanceCommand) (*lesson.Attendance, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var created *lesson.Attendance
	var events []shared.Event
	err := h.deps.UoW.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		events = nil

		l, err := repos.Lessons.Get(ctx, cmd.LessonID)
		if err != nil {
			return err
		}
		if err := authorizeSchool(ctx, repos.Students, cmd.Actor, l.SchoolID, "RecordAttendance"); err != nil {
			return err
		}

		a, reason, err := creditOne(ctx, repos, l, cmd.StudentID, cmd.Actor, h.deps.Logger)
		if err != nil {
			return err
		}
		switch reason {
		case SkipUnknownStudent:
			return shared.NotFoundf("command", "RecordAttendance", "student %s not found", cmd.StudentID)
		case SkipOtherSchool:
			return shared.Validationf("command", "RecordAttendance", "student does not belong to the lesson's school")
		case SkipDuplicate:
			return shared.NewDomainError("command", "RecordAttendance", shared.ErrAlreadyExists,
				"attendance already recorded for this student")
		}

		created = a
		events = append(events, lesson.NewAttendanceCreditedEvent(l, []string{cmd.StudentID}))
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.deps.Logger.Info("attendance recorded",
		logger.LessonID(cmd.LessonID),
		logger.StudentID(cmd.StudentID),
		logger.Hours(created.HoursCredited))
	h.deps.publish(events)
	return created, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REVERT ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

// RevertAttendanceCommand deletes an attendance record and takes its hours
// back from the student's ledger.
type RevertAttendanceCommand struct {
	Actor        shared.Actor
	AttendanceID string
}

// RevertAttendanceResult describes what was reverted.
type RevertAttendanceResult struct {
	Attendance *lesson.Attendance `json:"attendance"`
	Branch     shared.Branch      `json:"branch"`

	// CompletedHours is the ledger total after the revert, nil when the
	// student had no ledger for the branch.
	CompletedHours *float64 `json:"completed_hours,omitempty"`
}

// RevertAttendanceHandler handles RevertAttendanceCommand.
type RevertAttendanceHandler struct {
	deps Deps
}

// NewRevertAttendanceHandler creates a new RevertAttendanceHandler.
func NewRevertAttendanceHandler(deps Deps) *RevertAttendanceHandler {
	return &RevertAttendanceHandler{deps: deps.withDefaults()}
}

// Handle executes the command. The attendance row is deleted before the
// ledger is touched, so of several concurrent reverts only one subtracts.
func (h *RevertAttendanceHandler) Handle(ctx context.Context, cmd RevertAttendanceCommand) (*RevertAttendanceResult, error) {
	if cmd.AttendanceID == "" {
		return nil, shared.Validationf("command", "RevertAttendance", "attendance_id is required")
	}

	var result *RevertAttendanceResult
	var events []shared.Event
	err := h.deps.UoW.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		events = nil

		existing, err := repos.Attendance.Get(ctx, cmd.AttendanceID)
		if err != nil {
			return err
		}
		l, err := repos.Lessons.Get(ctx, existing.LessonID)
		if err != nil {
			return err
		}
		if err := authorizeSchool(ctx, repos.Students, cmd.Actor, l.SchoolID, "RevertAttendance"); err != nil {
			return err
		}

		a, err := repos.Attendance.Delete(ctx, cmd.AttendanceID)
		if err != nil {
			return err
		}
		result = &RevertAttendanceResult{Attendance: a, Branch: l.Branch}

		entry := audit.NewEntry(audit.ActionAttendanceDeleted, audit.EntityAttendance, a.ID, cmd.Actor,
			fmt.Sprintf("Reverted %.2f hours for lesson %s", a.HoursCredited, l.ID))

		before, err := repos.Progress.Get(ctx, a.StudentID, l.Branch)
		switch {
		case err == nil:
			after, err := repos.Progress.SubtractHours(ctx, a.StudentID, l.Branch, a.HoursCredited)
			if err != nil {
				return err
			}
			hours := after.CompletedHours
			result.CompletedHours = &hours
			entry.WithValues(formatHours(before.CompletedHours), formatHours(after.CompletedHours))
		case !shared.IsNotFound(err):
			return err
		}

		if err := repos.Audit.Append(ctx, entry); err != nil {
			return err
		}
		events = append(events, lesson.NewAttendanceRevertedEvent(a, l.Branch))
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.deps.Logger.Info("attendance reverted",
		logger.String("attendance_id", cmd.AttendanceID),
		logger.StudentID(result.Attendance.StudentID),
		logger.Hours(result.Attendance.HoursCredited))
	h.deps.publish(events)
	return result, nil
}

func formatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', 2, 64)
}
