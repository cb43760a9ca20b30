package command

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/wingtsun-academy/progression-engine/internal/application/uow"
	"github.com/wingtsun-academy/progression-engine/internal/domain/audit"
	"github.com/wingtsun-academy/progression-engine/internal/domain/progression"
	"github.com/wingtsun-academy/progression-engine/internal/domain/seminar"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
	"github.com/wingtsun-academy/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE EVENT
// ══════════════════════════════════════════════════════════════════════════════

// CreateEventCommand opens a new event or seminar.
type CreateEventCommand struct {
	Actor       shared.Actor
	Name        string
	Description string
	Type        string
	Scope       string
	SchoolIDs   []string
	EventDate   string
}

// CreateEventHandler handles CreateEventCommand.
type CreateEventHandler struct {
	deps Deps
}

// NewCreateEventHandler creates a new CreateEventHandler.
func NewCreateEventHandler(deps Deps) *CreateEventHandler {
	return &CreateEventHandler{deps: deps.withDefaults()}
}

// Handle executes the command.
func (h *CreateEventHandler) Handle(ctx context.Context, cmd CreateEventCommand) (*seminar.Event, error) {
	const op = "CreateEvent"
	if err := requireAdmin(cmd.Actor, op); err != nil {
		return nil, err
	}
	date, err := parseDate(cmd.EventDate, h.deps.Location, op, "event_date")
	if err != nil {
		return nil, err
	}
	e, err := seminar.NewEvent(seminar.EventParams{
		Name:        cmd.Name,
		Description: cmd.Description,
		Type:        seminar.EventType(cmd.Type),
		Scope:       seminar.Scope(cmd.Scope),
		SchoolIDs:   uniqueIDs(cmd.SchoolIDs),
		EventDate:   date,
		CreatedBy:   cmd.Actor.UserID,
	})
	if err != nil {
		return nil, err
	}

	err = h.deps.UoW.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		return repos.Seminars.Create(ctx, e)
	})
	if err != nil {
		return nil, err
	}

	h.deps.Logger.Info("event created",
		logger.EventID(e.ID),
		logger.String("event_type", string(e.Type)))
	return e, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER FOR EVENT
// ══════════════════════════════════════════════════════════════════════════════

// RegisterForEventCommand signs a student up for an event.
type RegisterForEventCommand struct {
	Actor           shared.Actor
	EventID         string
	StudentID       string
	RegisterWT      bool
	RegisterEscrima bool
	WillTakeExam    bool
	ExamWT          bool
	ExamEscrima     bool
}

// RegisterForEventHandler handles RegisterForEventCommand. Students may
// register themselves; managers may register students of their schools.
type RegisterForEventHandler struct {
	deps Deps
}

// NewRegisterForEventHandler creates a new RegisterForEventHandler.
func NewRegisterForEventHandler(deps Deps) *RegisterForEventHandler {
	return &RegisterForEventHandler{deps: deps.withDefaults()}
}

// Handle executes the command.
func (h *RegisterForEventHandler) Handle(ctx context.Context, cmd RegisterForEventCommand) (*seminar.Registration, error) {
	const op = "RegisterForEvent"
	if cmd.EventID == "" || cmd.StudentID == "" {
		return nil, shared.Validationf("command", op, "event_id and student_id are required")
	}
	if err := requireActor(cmd.Actor, op); err != nil {
		return nil, err
	}

	var reg *seminar.Registration
	err := h.deps.UoW.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		e, err := repos.Seminars.Get(ctx, cmd.EventID)
		if err != nil {
			return err
		}
		st, err := repos.Students.Get(ctx, cmd.StudentID)
		if err != nil {
			return err
		}
		if st.UserID != cmd.Actor.UserID {
			if err := authorizeSchool(ctx, repos.Students, cmd.Actor, st.SchoolID, op); err != nil {
				return err
			}
		}
		if !e.OpenTo(st.SchoolID) {
			return shared.Validationf("command", op, "event is not open to the student's school")
		}

		reg, err = e.Register(seminar.RegistrationParams{
			StudentID:       cmd.StudentID,
			RegisterWT:      cmd.RegisterWT,
			RegisterEscrima: cmd.RegisterEscrima,
			WillTakeExam:    cmd.WillTakeExam,
			ExamWT:          cmd.ExamWT,
			ExamEscrima:     cmd.ExamEscrima,
		})
		if err != nil {
			return err
		}
		return repos.Seminars.CreateRegistration(ctx, reg)
	})
	if err != nil {
		return nil, err
	}

	h.deps.Logger.Info("student registered for event",
		logger.EventID(cmd.EventID),
		logger.StudentID(cmd.StudentID))
	return reg, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATE SEMINAR
// ══════════════════════════════════════════════════════════════════════════════

// EvaluateSeminarCommand promotes the listed students by one grade in every
// branch they were examined in, then closes the seminar.
type EvaluateSeminarCommand struct {
	Actor             shared.Actor
	EventID           string
	PassingStudentIDs []string
}

// EvaluateSeminarResult summarizes the promotions.
type EvaluateSeminarResult struct {
	Event       *seminar.Event        `json:"event"`
	Evaluations []*seminar.Evaluation `json:"evaluations"`
	Skipped     []SkippedStudent      `json:"skipped"`
}

// Reasons a passing student (or one of their branches) is not promoted.
const (
	SkipNotRegistered = "not_registered"
	SkipNoExam        = "no_exam"
	SkipNoProgress    = "no_progress"
	SkipNotEligible   = "not_eligible"
)

// EvaluationOptions tune seminar evaluation.
type EvaluationOptions struct {
	// RequireEligibility skips branches whose completed hours classify as
	// NOT_ELIGIBLE for the current grade.
	RequireEligibility bool
}

// EvaluateSeminarHandler handles EvaluateSeminarCommand. The seminar is
// completed even when nobody is promoted.
type EvaluateSeminarHandler struct {
	deps  Deps
	table *progression.RequirementTable
	opts  EvaluationOptions
}

// NewEvaluateSeminarHandler creates a new EvaluateSeminarHandler.
func NewEvaluateSeminarHandler(deps Deps, table *progression.RequirementTable, opts EvaluationOptions) *EvaluateSeminarHandler {
	if table == nil {
		table = progression.DefaultRequirementTable()
	}
	return &EvaluateSeminarHandler{deps: deps.withDefaults(), table: table, opts: opts}
}

// Handle executes the command.
func (h *EvaluateSeminarHandler) Handle(ctx context.Context, cmd EvaluateSeminarCommand) (*EvaluateSeminarResult, error) {
	const op = "EvaluateSeminar"
	if cmd.EventID == "" {
		return nil, shared.Validationf("command", op, "event_id is required")
	}
	if err := requireAdmin(cmd.Actor, op); err != nil {
		return nil, err
	}

	var result *EvaluateSeminarResult
	var events []shared.Event
	err := h.deps.UoW.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		events = nil

		e, err := repos.Seminars.GetForUpdate(ctx, cmd.EventID)
		if err != nil {
			return err
		}
		if err := e.EnsureEvaluable(); err != nil {
			return err
		}

		now := h.deps.Clock.Now().UTC()
		result = &EvaluateSeminarResult{Evaluations: []*seminar.Evaluation{}, Skipped: []SkippedStudent{}}
		promoted := make([]string, 0, len(cmd.PassingStudentIDs))

		for _, studentID := range uniqueIDs(cmd.PassingStudentIDs) {
			reg, err := repos.Seminars.GetRegistration(ctx, e.ID, studentID)
			if err != nil {
				if shared.IsNotFound(err) {
					result.Skipped = append(result.Skipped, SkippedStudent{StudentID: studentID, Reason: SkipNotRegistered})
					continue
				}
				return err
			}
			branches := reg.ExamBranches()
			if len(branches) == 0 {
				result.Skipped = append(result.Skipped, SkippedStudent{StudentID: studentID, Reason: SkipNoExam})
				continue
			}

			passed := false
			for _, branch := range branches {
				ev, reason, err := h.promote(ctx, repos, e, studentID, branch, cmd.Actor, now)
				if err != nil {
					return err
				}
				if reason != "" {
					h.deps.Logger.Debug("branch not promoted",
						logger.StudentID(studentID),
						logger.Branch(string(branch)),
						logger.String("reason", reason))
					result.Skipped = append(result.Skipped, SkippedStudent{StudentID: studentID, Reason: reason + ":" + string(branch)})
					continue
				}
				passed = true
				result.Evaluations = append(result.Evaluations, ev)
				events = append(events, progression.NewGradeChangedEvent(studentID, branch,
					ev.GradeBefore, ev.GradeAfter, progression.ReasonSeminarExam))
			}
			if passed {
				promoted = append(promoted, studentID)
			}
		}

		if err := e.Complete(now); err != nil {
			return err
		}
		if err := repos.Seminars.MarkCompleted(ctx, e); err != nil {
			return err
		}
		result.Event = e

		entry := audit.NewEntry(audit.ActionEventCompleted, audit.EntityEvent, e.ID, cmd.Actor,
			fmt.Sprintf("Seminar %q evaluated: %d grade increments", e.Name, len(result.Evaluations))).
			WithValues("false", "true")
		if err := repos.Audit.Append(ctx, entry); err != nil {
			return err
		}
		events = append(events, seminar.NewSeminarEvaluatedEvent(e.ID, len(result.Evaluations), promoted))
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.deps.Logger.Info("seminar evaluated",
		logger.EventID(cmd.EventID),
		logger.ActorID(cmd.Actor.UserID),
		logger.Count(len(result.Evaluations)),
		logger.Int("skipped", len(result.Skipped)))
	h.deps.publish(events)
	return result, nil
}

// promote raises one branch by exactly one grade and records the outcome.
func (h *EvaluateSeminarHandler) promote(ctx context.Context, repos uow.Repositories, e *seminar.Event, studentID string, branch shared.Branch, actor shared.Actor, now time.Time) (*seminar.Evaluation, string, error) {
	p, err := repos.Progress.Get(ctx, studentID, branch)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, SkipNoProgress, nil
		}
		return nil, "", err
	}

	if h.opts.RequireEligibility {
		hours, err := resolveHours(ctx, repos, h.table, branch, p.CurrentGrade)
		if err != nil {
			return nil, "", err
		}
		if progression.Classify(hours, p.CompletedHours) == progression.NotEligible {
			return nil, SkipNotEligible, nil
		}
	}

	after, err := repos.Progress.IncrementGrade(ctx, studentID, branch)
	if err != nil {
		return nil, "", err
	}
	before := after.CurrentGrade - 1

	ev := seminar.NewPassedEvaluation(e.ID, studentID, branch, before, after.CurrentGrade, actor.UserID, now)
	if err := repos.Seminars.CreateEvaluation(ctx, ev); err != nil {
		return nil, "", err
	}

	entry := audit.NewEntry(audit.ActionSeminarEvaluated, audit.EntityStudentProgress, after.ID, actor,
		fmt.Sprintf("Passed %s exam at seminar %q", branch, e.Name)).
		WithValues(strconv.Itoa(before), strconv.Itoa(after.CurrentGrade))
	if err := repos.Audit.Append(ctx, entry); err != nil {
		return nil, "", err
	}
	return ev, "", nil
}
