package query

import (
	"context"
	"time"

	"github.com/wingtsun-academy/progression-engine/internal/application/uow"
	"github.com/wingtsun-academy/progression-engine/internal/domain/progression"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
	"github.com/wingtsun-academy/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT PROGRESS VIEW
// ══════════════════════════════════════════════════════════════════════════════

// BranchProgressDTO is the progress of one student in one branch.
type BranchProgressDTO struct {
	Branch         shared.Branch           `json:"branch"`
	Grade          int                     `json:"grade"`
	GradeName      string                  `json:"grade_name,omitempty"`
	CompletedHours float64                 `json:"completed_hours"`
	RequiredHours  float64                 `json:"required_hours"`
	MinimumHours   float64                 `json:"minimum_hours"`
	RemainingHours float64                 `json:"remaining_hours"`
	Eligibility    progression.Eligibility `json:"eligibility"`
}

// ProgressView is the cached per-student progress document.
type ProgressView struct {
	StudentID   string              `json:"student_id"`
	SchoolID    string              `json:"school_id"`
	UserID      string              `json:"user_id"`
	FullName    string              `json:"full_name"`
	Branches    []BranchProgressDTO `json:"branches"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// ProgressCache stores progress views between ledger changes.
type ProgressCache interface {
	// Get returns nil with no error on a miss.
	Get(ctx context.Context, studentID string) (*ProgressView, error)
	Set(ctx context.Context, view *ProgressView) error
	Invalidate(ctx context.Context, studentID string) error
}

// GetStudentProgressQuery asks for a student's progress in every branch.
type GetStudentProgressQuery struct {
	Actor     shared.Actor
	StudentID string
}

// GetStudentProgressHandler handles GetStudentProgressQuery. Students may
// read their own progress; managers that of their schools.
type GetStudentProgressHandler struct {
	deps  Deps
	cache ProgressCache
}

// NewGetStudentProgressHandler creates a new handler. cache may be nil.
func NewGetStudentProgressHandler(deps Deps, cache ProgressCache) *GetStudentProgressHandler {
	return &GetStudentProgressHandler{deps: deps.withDefaults(), cache: cache}
}

// Handle executes the query.
func (h *GetStudentProgressHandler) Handle(ctx context.Context, q GetStudentProgressQuery) (*ProgressView, error) {
	const op = "GetStudentProgress"
	if q.StudentID == "" {
		return nil, shared.Validationf("query", op, "student_id is required")
	}
	if err := requireAuthenticated(q.Actor, op); err != nil {
		return nil, err
	}

	if h.cache != nil {
		view, err := h.cache.Get(ctx, q.StudentID)
		if err != nil {
			h.deps.Logger.Warn("progress cache read failed", logger.StudentID(q.StudentID), logger.Err(err))
		} else if view != nil {
			if err := h.authorize(ctx, q.Actor, view, op); err != nil {
				return nil, err
			}
			return view, nil
		}
	}

	view, err := h.build(ctx, q, op)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, view); err != nil {
			h.deps.Logger.Warn("progress cache write failed", logger.StudentID(q.StudentID), logger.Err(err))
		}
	}
	return view, nil
}

func (h *GetStudentProgressHandler) authorize(ctx context.Context, actor shared.Actor, view *ProgressView, op string) error {
	if view.UserID != "" && view.UserID == actor.UserID {
		return nil
	}
	return h.deps.UoW.ReadOnly(ctx, func(ctx context.Context, repos uow.Repositories) error {
		return authorizeSchoolRead(ctx, repos.Students, actor, view.SchoolID, op)
	})
}

func (h *GetStudentProgressHandler) build(ctx context.Context, q GetStudentProgressQuery, op string) (*ProgressView, error) {
	var view *ProgressView
	err := h.deps.UoW.ReadOnly(ctx, func(ctx context.Context, repos uow.Repositories) error {
		st, err := repos.Students.Get(ctx, q.StudentID)
		if err != nil {
			return err
		}
		if st.UserID != q.Actor.UserID {
			if err := authorizeSchoolRead(ctx, repos.Students, q.Actor, st.SchoolID, op); err != nil {
				return err
			}
		}

		records, err := repos.Progress.ListByStudent(ctx, st.ID)
		if err != nil {
			return err
		}
		view = &ProgressView{
			StudentID:   st.ID,
			SchoolID:    st.SchoolID,
			UserID:      st.UserID,
			FullName:    st.FullName,
			Branches:    make([]BranchProgressDTO, 0, len(records)),
			GeneratedAt: time.Now().UTC(),
		}
		for _, p := range records {
			hours, name, err := resolveHours(ctx, repos, h.deps.Table, p.Branch, p.CurrentGrade)
			if err != nil {
				return err
			}
			remaining, eligibility := p.Status(hours)
			view.Branches = append(view.Branches, BranchProgressDTO{
				Branch:         p.Branch,
				Grade:          p.CurrentGrade,
				GradeName:      name,
				CompletedHours: p.CompletedHours,
				RequiredHours:  hours.Required,
				MinimumHours:   hours.Minimum,
				RemainingHours: remaining,
				Eligibility:    eligibility,
			})
		}
		return nil
	})
	return view, err
}
