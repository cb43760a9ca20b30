package query

import (
	"context"

	"github.com/wingtsun-academy/progression-engine/internal/application/uow"
	"github.com/wingtsun-academy/progression-engine/internal/domain/audit"
	"github.com/wingtsun-academy/progression-engine/internal/domain/progression"
	"github.com/wingtsun-academy/progression-engine/internal/domain/seminar"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
)

// CatalogHandler serves reference data: the grade requirement catalog,
// events with their registrations and evaluations, and the audit trail.
type CatalogHandler struct {
	deps Deps
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(deps Deps) *CatalogHandler {
	return &CatalogHandler{deps: deps.withDefaults()}
}

// ListRequirements returns catalog rows, optionally for one branch.
func (h *CatalogHandler) ListRequirements(ctx context.Context, branch string) ([]*progression.GradeRequirement, error) {
	b, err := optionalBranch(branch)
	if err != nil {
		return nil, err
	}
	var out []*progression.GradeRequirement
	err = h.deps.UoW.ReadOnly(ctx, func(ctx context.Context, repos uow.Repositories) error {
		out, err = repos.Requirements.List(ctx, b)
		return err
	})
	return nonNil(out), err
}

// Bands returns the configured grade bands.
func (h *CatalogHandler) Bands() []progression.Band {
	return h.deps.Table.Bands()
}

// ListEvents returns events, open ones only unless includeCompleted.
func (h *CatalogHandler) ListEvents(ctx context.Context, includeCompleted bool) ([]*seminar.Event, error) {
	var out []*seminar.Event
	err := h.deps.UoW.ReadOnly(ctx, func(ctx context.Context, repos uow.Repositories) error {
		var err error
		out, err = repos.Seminars.List(ctx, includeCompleted)
		return err
	})
	return nonNil(out), err
}

// ListRegistrations returns the registrations of an event. Manager or above.
func (h *CatalogHandler) ListRegistrations(ctx context.Context, actor shared.Actor, eventID string) ([]*seminar.Registration, error) {
	if err := requireManager(actor, "ListRegistrations"); err != nil {
		return nil, err
	}
	var out []*seminar.Registration
	err := h.deps.UoW.ReadOnly(ctx, func(ctx context.Context, repos uow.Repositories) error {
		if _, err := repos.Seminars.Get(ctx, eventID); err != nil {
			return err
		}
		var err error
		out, err = repos.Seminars.ListRegistrations(ctx, eventID)
		return err
	})
	return nonNil(out), err
}

// ListEvaluations returns the exam outcomes of an event. Manager or above.
func (h *CatalogHandler) ListEvaluations(ctx context.Context, actor shared.Actor, eventID string) ([]*seminar.Evaluation, error) {
	if err := requireManager(actor, "ListEvaluations"); err != nil {
		return nil, err
	}
	var out []*seminar.Evaluation
	err := h.deps.UoW.ReadOnly(ctx, func(ctx context.Context, repos uow.Repositories) error {
		if _, err := repos.Seminars.Get(ctx, eventID); err != nil {
			return err
		}
		var err error
		out, err = repos.Seminars.ListEvaluations(ctx, eventID)
		return err
	})
	return nonNil(out), err
}

// DefaultAuditLimit caps audit listings without an explicit limit.
const DefaultAuditLimit = 100

// ListAudit returns audit entries newest first. Administrators only.
func (h *CatalogHandler) ListAudit(ctx context.Context, actor shared.Actor, f audit.Filter) ([]*audit.Entry, error) {
	if err := requireAuthenticated(actor, "ListAudit"); err != nil {
		return nil, err
	}
	if !actor.Role.IsAdminOrAbove() {
		return nil, shared.Forbiddenf("query", "ListAudit", "administrator role required")
	}
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = DefaultAuditLimit
	}
	var out []*audit.Entry
	err := h.deps.UoW.ReadOnly(ctx, func(ctx context.Context, repos uow.Repositories) error {
		var err error
		out, err = repos.Audit.List(ctx, f)
		return err
	})
	return nonNil(out), err
}

func requireManager(actor shared.Actor, op string) error {
	if err := requireAuthenticated(actor, op); err != nil {
		return err
	}
	if !actor.Role.IsManagerOrAbove() {
		return shared.Forbiddenf("query", op, "manager role required")
	}
	return nil
}
