package command

import (
	"context"

	"github.com/wingtsun-academy/progression-engine/internal/application/uow"
	"github.com/wingtsun-academy/progression-engine/internal/domain/audit"
	"github.com/wingtsun-academy/progression-engine/internal/domain/progression"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
	"github.com/wingtsun-academy/progression-engine/internal/domain/student"
	"github.com/wingtsun-academy/progression-engine/pkg/logger"
)

// DecideStudentCommand approves or rejects a pending enrollment.
type DecideStudentCommand struct {
	Actor     shared.Actor
	StudentID string
	Approve   bool
}

// DecideStudentHandler handles DecideStudentCommand. Approval opens a ledger
// at the initial grade in every branch.
type DecideStudentHandler struct {
	deps Deps
}

// NewDecideStudentHandler creates a new DecideStudentHandler.
func NewDecideStudentHandler(deps Deps) *DecideStudentHandler {
	return &DecideStudentHandler{deps: deps.withDefaults()}
}

// Handle executes the command.
func (h *DecideStudentHandler) Handle(ctx context.Context, cmd DecideStudentCommand) (*student.Student, error) {
	const op = "DecideStudent"
	if cmd.StudentID == "" {
		return nil, shared.Validationf("command", op, "student_id is required")
	}

	var st *student.Student
	var events []shared.Event
	err := h.deps.UoW.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		events = nil

		var err error
		st, err = repos.Students.GetForUpdate(ctx, cmd.StudentID)
		if err != nil {
			return err
		}
		if err := authorizeSchool(ctx, repos.Students, cmd.Actor, st.SchoolID, op); err != nil {
			return err
		}

		old := st.Status
		action := audit.ActionStudentRejected
		if cmd.Approve {
			action = audit.ActionStudentApproved
			err = st.Approve()
		} else {
			err = st.Reject()
		}
		if err != nil {
			return err
		}
		if err := repos.Students.UpdateStatus(ctx, st); err != nil {
			return err
		}

		if cmd.Approve {
			branches := shared.AllBranches()
			for _, b := range branches {
				p, err := progression.NewStudentProgress(st.ID, b)
				if err != nil {
					return err
				}
				if err := repos.Progress.Create(ctx, p); err != nil && !shared.IsAlreadyExists(err) {
					return err
				}
			}
			events = append(events, progression.NewProgressCreatedEvent(st.ID, branches))
		}

		entry := audit.NewEntry(action, audit.EntityStudent, st.ID, cmd.Actor, st.FullName).
			WithValues(string(old), string(st.Status))
		return repos.Audit.Append(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	h.deps.Logger.Info("student enrollment decided",
		logger.StudentID(st.ID),
		logger.String("status", string(st.Status)))
	h.deps.publish(events)
	return st, nil
}
