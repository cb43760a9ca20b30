package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/wingtsun-academy/progression-engine/internal/application/uow"
	"github.com/wingtsun-academy/progression-engine/internal/domain/audit"
	"github.com/wingtsun-academy/progression-engine/internal/domain/progression"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
	"github.com/wingtsun-academy/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MANUAL GRADE CHANGE
// ══════════════════════════════════════════════════════════════════════════════

// ChangeGradeCommand overrides a student's grade in one branch.
type ChangeGradeCommand struct {
	Actor     shared.Actor
	StudentID string
	Branch    string
	NewGrade  int
	Note      string
}

// Validate validates the command.
func (c ChangeGradeCommand) Validate() error {
	if c.StudentID == "" {
		return shared.Validationf("command", "ChangeGrade", "student_id is required")
	}
	if c.NewGrade < progression.InitialGrade {
		return shared.NewDomainError("command", "ChangeGrade", shared.ErrValueOutOfRange, "grade must be at least 1")
	}
	if strings.TrimSpace(c.Note) == "" {
		return shared.Validationf("command", "ChangeGrade", "a note explaining the change is required")
	}
	return nil
}

// ChangeGradeResult carries both grades.
type ChangeGradeResult struct {
	StudentID string        `json:"student_id"`
	Branch    shared.Branch `json:"branch"`
	OldGrade  int           `json:"old_grade"`
	NewGrade  int           `json:"new_grade"`
}

// ChangeGradeHandler handles ChangeGradeCommand.
type ChangeGradeHandler struct {
	deps Deps
}

// NewChangeGradeHandler creates a new ChangeGradeHandler.
func NewChangeGradeHandler(deps Deps) *ChangeGradeHandler {
	return &ChangeGradeHandler{deps: deps.withDefaults()}
}

// Handle executes the command.
func (h *ChangeGradeHandler) Handle(ctx context.Context, cmd ChangeGradeCommand) (*ChangeGradeResult, error) {
	const op = "ChangeGrade"
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if err := requireAdmin(cmd.Actor, op); err != nil {
		return nil, err
	}
	branch, err := shared.ParseBranch(cmd.Branch)
	if err != nil {
		return nil, err
	}

	var result *ChangeGradeResult
	err = h.deps.UoW.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		p, err := repos.Progress.Get(ctx, cmd.StudentID, branch)
		if err != nil {
			return err
		}
		old, err := repos.Progress.SetGrade(ctx, cmd.StudentID, branch, cmd.NewGrade)
		if err != nil {
			return err
		}
		result = &ChangeGradeResult{StudentID: cmd.StudentID, Branch: branch, OldGrade: old, NewGrade: cmd.NewGrade}

		entry := audit.NewEntry(audit.ActionManualGradeChange, audit.EntityStudentProgress, p.ID, cmd.Actor,
			strings.TrimSpace(cmd.Note)).
			WithValues(strconv.Itoa(old), strconv.Itoa(cmd.NewGrade))
		return repos.Audit.Append(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	h.deps.Logger.Info("grade changed manually",
		logger.StudentID(cmd.StudentID),
		logger.Branch(string(branch)),
		logger.Int("old_grade", result.OldGrade),
		logger.Int("new_grade", result.NewGrade))
	h.deps.publish([]shared.Event{progression.NewGradeChangedEvent(cmd.StudentID, branch,
		result.OldGrade, result.NewGrade, progression.ReasonManual)})
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GRADE REQUIREMENT CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// SaveRequirementCommand creates a catalog row, or updates it when ID is set.
type SaveRequirementCommand struct {
	Actor         shared.Actor
	ID            string
	Branch        string
	Grade         int
	GradeName     string
	RequiredHours float64
	MinimumHours  float64
}

// SaveRequirementHandler handles SaveRequirementCommand.
type SaveRequirementHandler struct {
	deps Deps
}

// NewSaveRequirementHandler creates a new SaveRequirementHandler.
func NewSaveRequirementHandler(deps Deps) *SaveRequirementHandler {
	return &SaveRequirementHandler{deps: deps.withDefaults()}
}

// Handle executes the command. Branch and grade of an existing row are
// immutable; only the name and hours change.
func (h *SaveRequirementHandler) Handle(ctx context.Context, cmd SaveRequirementCommand) (*progression.GradeRequirement, error) {
	const op = "SaveRequirement"
	if err := requireAdmin(cmd.Actor, op); err != nil {
		return nil, err
	}

	var saved *progression.GradeRequirement
	err := h.deps.UoW.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		var oldValue string
		if cmd.ID == "" {
			branch, err := shared.ParseBranch(cmd.Branch)
			if err != nil {
				return err
			}
			r, err := progression.NewGradeRequirement(branch, cmd.Grade, cmd.GradeName, cmd.RequiredHours, cmd.MinimumHours)
			if err != nil {
				return err
			}
			if err := repos.Requirements.Create(ctx, r); err != nil {
				return err
			}
			saved = r
		} else {
			r, err := repos.Requirements.Get(ctx, cmd.ID)
			if err != nil {
				return err
			}
			oldValue = describeHours(r)
			r.GradeName = strings.TrimSpace(cmd.GradeName)
			r.RequiredHours = shared.RoundHours(cmd.RequiredHours)
			r.MinimumHours = shared.RoundHours(cmd.MinimumHours)
			if err := r.Validate(); err != nil {
				return err
			}
			r.UpdatedAt = h.deps.Clock.Now().UTC()
			if err := repos.Requirements.Update(ctx, r); err != nil {
				return err
			}
			saved = r
		}

		entry := audit.NewEntry(audit.ActionRequirementSaved, audit.EntityGradeRequirement, saved.ID, cmd.Actor,
			fmt.Sprintf("%s grade %d %q", saved.Branch, saved.Grade, saved.GradeName)).
			WithValues(oldValue, describeHours(saved))
		return repos.Audit.Append(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	h.deps.Logger.Info("grade requirement saved",
		logger.Branch(string(saved.Branch)),
		logger.Int("grade", saved.Grade))
	return saved, nil
}

func describeHours(r *progression.GradeRequirement) string {
	return formatHours(r.RequiredHours) + "/" + formatHours(r.MinimumHours)
}
