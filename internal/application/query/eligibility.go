package query

import (
	"context"

	"github.com/wingtsun-academy/progression-engine/internal/application/uow"
	"github.com/wingtsun-academy/progression-engine/internal/domain/progression"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// HOURS FOR GRADE
// ══════════════════════════════════════════════════════════════════════════════

// HoursForGradeQuery asks for the thresholds of a grade. Branch is optional;
// when set, a catalog row for (branch, grade) overrides the band table.
type HoursForGradeQuery struct {
	Branch string
	Grade  int
}

// HoursForGradeResult carries the thresholds of one grade.
type HoursForGradeResult struct {
	Branch        shared.Branch `json:"branch,omitempty"`
	Grade         int           `json:"grade"`
	GradeName     string        `json:"grade_name,omitempty"`
	RequiredHours float64       `json:"required_hours"`
	MinimumHours  float64       `json:"minimum_hours"`
}

// HoursForGradeHandler handles HoursForGradeQuery.
type HoursForGradeHandler struct {
	deps Deps
}

// NewHoursForGradeHandler creates a new HoursForGradeHandler.
func NewHoursForGradeHandler(deps Deps) *HoursForGradeHandler {
	return &HoursForGradeHandler{deps: deps.withDefaults()}
}

// Handle executes the query.
func (h *HoursForGradeHandler) Handle(ctx context.Context, q HoursForGradeQuery) (*HoursForGradeResult, error) {
	if q.Grade < progression.InitialGrade {
		return nil, shared.NewDomainError("query", "HoursForGrade", shared.ErrValueOutOfRange, "grade must be at least 1")
	}
	branch, err := optionalBranch(q.Branch)
	if err != nil {
		return nil, err
	}

	var result *HoursForGradeResult
	err = h.deps.UoW.ReadOnly(ctx, func(ctx context.Context, repos uow.Repositories) error {
		hours, name, err := resolveHours(ctx, repos, h.deps.Table, branch, q.Grade)
		if err != nil {
			return err
		}
		result = &HoursForGradeResult{
			Branch:        branch,
			Grade:         q.Grade,
			GradeName:     name,
			RequiredHours: hours.Required,
			MinimumHours:  hours.Minimum,
		}
		return nil
	})
	return result, err
}

// ══════════════════════════════════════════════════════════════════════════════
// CHECK ELIGIBILITY
// ══════════════════════════════════════════════════════════════════════════════

// CheckEligibilityQuery classifies completed hours against a grade.
type CheckEligibilityQuery struct {
	Branch         string
	Grade          int
	CompletedHours float64
}

// EligibilityResult is the outcome of an eligibility check.
type EligibilityResult struct {
	HoursForGradeResult
	CompletedHours float64                 `json:"completed_hours"`
	RemainingHours float64                 `json:"remaining_hours"`
	Eligibility    progression.Eligibility `json:"eligibility"`
}

// CheckEligibilityHandler handles CheckEligibilityQuery.
type CheckEligibilityHandler struct {
	hours *HoursForGradeHandler
}

// NewCheckEligibilityHandler creates a new CheckEligibilityHandler.
func NewCheckEligibilityHandler(deps Deps) *CheckEligibilityHandler {
	return &CheckEligibilityHandler{hours: NewHoursForGradeHandler(deps)}
}

// Handle executes the query.
func (h *CheckEligibilityHandler) Handle(ctx context.Context, q CheckEligibilityQuery) (*EligibilityResult, error) {
	if q.CompletedHours < 0 {
		return nil, shared.NewDomainError("query", "CheckEligibility", shared.ErrValueOutOfRange, "completed hours cannot be negative")
	}
	thresholds, err := h.hours.Handle(ctx, HoursForGradeQuery{Branch: q.Branch, Grade: q.Grade})
	if err != nil {
		return nil, err
	}
	hours := progression.Hours{Required: thresholds.RequiredHours, Minimum: thresholds.MinimumHours}
	return &EligibilityResult{
		HoursForGradeResult: *thresholds,
		CompletedHours:      q.CompletedHours,
		RemainingHours:      progression.RemainingHours(hours, q.CompletedHours),
		Eligibility:         progression.Classify(hours, q.CompletedHours),
	}, nil
}

func optionalBranch(s string) (shared.Branch, error) {
	if s == "" {
		return "", nil
	}
	return shared.ParseBranch(s)
}
